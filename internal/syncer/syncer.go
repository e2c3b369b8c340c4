// Package syncer orchestrates reconciliation between this replica's
// local store and the remote document store: poll the remote version
// stamp, fetch and merge on change, persist locally, and push local
// mutations back after a debounce window.
package syncer

import (
	"context"

	"github.com/rglonek/bookmarks/internal/bookmarks"
)

// RemoteClient abstracts the remote document store. Stamps are opaque;
// the coordinator only ever compares them for equality.
type RemoteClient interface {
	// Check probes the current version stamp without transferring the
	// tree. Empty stamp means the board was never written.
	Check(ctx context.Context) (string, error)

	// Load fetches the full document and its stamp.
	Load(ctx context.Context) (bookmarks.Tree, string, error)

	// Save writes the full document and returns the new stamp.
	Save(ctx context.Context, tree bookmarks.Tree) (string, error)

	// Ping reports whether the store is reachable at all.
	Ping(ctx context.Context) error
}

// ReplicaStore abstracts local persistence. Load never fails: missing
// or corrupt data comes back as an empty tree.
type ReplicaStore interface {
	Load() bookmarks.Tree
	Save(tree bookmarks.Tree) error
	RemoteVersion() string
	SetRemoteVersion(version string) error
}

// ActivityState is the client lifecycle signal that gates polling.
type ActivityState int

const (
	// Active means a client is foregrounded and polling should run.
	Active ActivityState = iota

	// Background means no client is focused; the poll interval is
	// stopped entirely until the next Active transition.
	Background
)

func (a ActivityState) String() string {
	if a == Active {
		return "active"
	}

	return "background"
}

// syncState is the coordinator's mutable state. All fields are guarded
// by the coordinator's single mutex; there is deliberately no finer
// locking anywhere in the sync path.
type syncState struct {
	lastRemoteVersion string
	syncInFlight      bool
	online            bool
	activity          ActivityState
	remoteReachable   bool
	lastSyncAt        int64

	// pendingCheck is set by trigger edges (focus gain, connectivity
	// gain, manual refresh) and consumed by the run loop.
	pendingCheck bool
}

// Status is a read-only snapshot of the coordinator state, surfaced to
// clients so a stalled sync is visible rather than silent.
type Status struct {
	Online            bool   `json:"online"`
	Activity          string `json:"activity"`
	RemoteReachable   bool   `json:"remote_reachable"`
	LastRemoteVersion string `json:"last_remote_version,omitempty"`
	SyncInFlight      bool   `json:"sync_in_flight"`
	LastSyncAt        int64  `json:"last_sync_at,omitempty"`
}
