package e2e_test

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rglonek/bookmarks/internal/bookmarks"
	"github.com/rglonek/bookmarks/internal/docserver"
	"github.com/rglonek/bookmarks/internal/logging"
	"github.com/rglonek/bookmarks/internal/remote"
	"github.com/rglonek/bookmarks/internal/service"
	"github.com/rglonek/bookmarks/internal/store"
	"github.com/rglonek/bookmarks/internal/syncer"
)

const testBoard = "board-e2e"

// harness runs a real document server over httptest and hands out
// replicas wired against it, each with its own bbolt store.
type harness struct {
	t      *testing.T
	server *httptest.Server
	logger *slog.Logger
}

// replica bundles one replica's full stack.
type replica struct {
	store *store.Store
	coord *syncer.Coordinator
	svc   *service.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := logging.New("development", io.Discard)

	boardStore, err := docserver.OpenStore(filepath.Join(t.TempDir(), "boards.db"))
	require.NoError(t, err)
	t.Cleanup(func() { boardStore.Close() })

	server := httptest.NewServer(docserver.NewServer(boardStore, logger).Router())
	t.Cleanup(server.Close)

	return &harness{t: t, server: server, logger: logger}
}

// newReplica creates a replica named name syncing against the harness
// board. The debounce is kept tiny so pushes land quickly.
func (h *harness) newReplica(name string) *replica {
	h.t.Helper()

	st, err := store.Open(filepath.Join(h.t.TempDir(), name, "state.db"), h.logger)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { st.Close() })

	client := remote.NewClient(h.server.URL, testBoard, name, h.server.Client())

	coord := syncer.New(client, st, testBoard, syncer.Options{
		DebounceDelay:      time.Millisecond,
		CheckInterval:      time.Minute,
		SweepInterval:      time.Hour,
		TombstoneRetention: bookmarks.DefaultRetention,
	}, h.logger)

	return &replica{
		store: st,
		coord: coord,
		svc:   service.New(st, coord, h.logger),
	}
}

// waitForPush blocks until the replica's debounced push has landed a
// version newer than prev.
func (h *harness) waitForPush(r *replica, prev string) string {
	h.t.Helper()

	var version string
	require.Eventually(h.t, func() bool {
		status := r.coord.Status()
		version = status.LastRemoteVersion

		return version != prev && version != "" && !status.SyncInFlight
	}, 5*time.Second, 5*time.Millisecond)

	return version
}

// findBookmark walks the replica's local tree for the given id.
func findBookmark(tree bookmarks.Tree, id string) (bookmarks.Bookmark, bool) {
	for _, bucket := range tree.Buckets {
		for _, category := range bucket.Categories {
			for _, bookmark := range category.Bookmarks {
				if bookmark.ID == id {
					return bookmark, true
				}
			}
		}
	}

	return bookmarks.Bookmark{}, false
}
