package syncer

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/rglonek/bookmarks/internal/bookmarks"
	apperrors "github.com/rglonek/bookmarks/internal/errors"
)

const (
	// pushTimeout bounds a single debounced push attempt.
	pushTimeout = 60 * time.Second

	// kickChanSize is the capacity of the run loop's wake-up channel.
	// A single slot is enough: a pending kick already guarantees the
	// loop will re-read the current state.
	kickChanSize = 1
)

// Options holds the coordinator's timing knobs.
type Options struct {
	// DebounceDelay is the quiet period after the last local mutation
	// before a remote push fires.
	DebounceDelay time.Duration

	// CheckInterval is the poll period while a client is active.
	CheckInterval time.Duration

	// SweepInterval is how often expired tombstones are collected.
	SweepInterval time.Duration

	// TombstoneRetention is how long tombstones are kept before the
	// collector drops them.
	TombstoneRetention time.Duration
}

// Coordinator drives the sync cycle for one replica. All of its state
// transitions go through one mutex: concurrent triggers (interval,
// focus, connectivity, manual refresh, debounce fire) collapse into at
// most one in-flight network operation via the syncInFlight guard.
type Coordinator struct {
	remote   RemoteClient
	store    ReplicaStore
	logger   *slog.Logger
	opts     Options
	identity string

	mu    sync.Mutex
	state syncState

	// pushTimer is the cancel-and-replace debounce timer. pushGen
	// invalidates fires from timers that were superseded after their
	// callback was already scheduled.
	pushTimer *time.Timer
	pushGen   uint64

	// kick wakes the run loop to re-evaluate state after a trigger.
	kick chan struct{}
}

// New creates a coordinator. identity is the board this replica syncs
// against; with an empty identity every sync cycle is a no-op.
func New(remote RemoteClient, store ReplicaStore, identity string, opts Options, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		remote:   remote,
		store:    store,
		logger:   logger,
		opts:     opts,
		identity: identity,
		kick:     make(chan struct{}, kickChanSize),
		state: syncState{
			online:            true,
			activity:          Active,
			remoteReachable:   true,
			lastRemoteVersion: store.RemoteVersion(),
		},
	}
}

// Status returns a snapshot of the coordinator state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Status{
		Online:            c.state.online,
		Activity:          c.state.activity.String(),
		RemoteReachable:   c.state.remoteReachable,
		LastRemoteVersion: c.state.lastRemoteVersion,
		SyncInFlight:      c.state.syncInFlight,
		LastSyncAt:        c.state.lastSyncAt,
	}
}

// Run is the coordinator's event loop: an immediate startup sweep and
// sync, then interval checks while active, daily tombstone sweeps, and
// trigger-driven checks. Blocks until the context is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	c.sweepTombstones()
	c.CheckAndSync(ctx)

	sweepTicker := time.NewTicker(c.opts.SweepInterval)
	defer sweepTicker.Stop()

	// The poll ticker exists only while a client is active. A nil
	// channel blocks forever in select, so stopping the ticker and
	// nilling the channel halts interval polling entirely.
	var (
		checkTicker *time.Ticker
		checkC      <-chan time.Time
	)

	stopPolling := func() {
		if checkTicker != nil {
			checkTicker.Stop()
			checkTicker = nil
			checkC = nil
		}
	}
	defer stopPolling()

	startPolling := func() {
		if checkTicker == nil {
			checkTicker = time.NewTicker(c.opts.CheckInterval)
			checkC = checkTicker.C
		}
	}

	startPolling()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-checkC:
			c.CheckAndSync(ctx)

		case <-sweepTicker.C:
			c.sweepTombstones()

		case <-c.kick:
			c.mu.Lock()
			active := c.state.activity == Active
			pending := c.state.pendingCheck
			c.state.pendingCheck = false
			c.mu.Unlock()

			if active {
				startPolling()
			} else {
				stopPolling()
			}

			if pending {
				c.CheckAndSync(ctx)
			}
		}
	}
}

// CheckAndSync runs one sync cycle: probe the remote stamp and, if it
// moved, fetch, merge, persist locally, and, when the merge beat the
// remote copy somewhere, schedule a push back. A cycle already in flight, an offline state, or a
// missing identity make it a no-op. Failures downgrade remote
// reachability and leave the local tree untouched; nothing is thrown.
func (c *Coordinator) CheckAndSync(ctx context.Context) {
	c.mu.Lock()
	if c.state.syncInFlight || !c.state.online || c.identity == "" {
		c.mu.Unlock()
		return
	}

	c.state.syncInFlight = true
	last := c.state.lastRemoteVersion
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.state.syncInFlight = false
		c.mu.Unlock()
	}()

	stamp, err := c.remote.Check(ctx)
	if err != nil {
		c.setReachable(false)
		c.logger.Warn("remote check failed", slog.String("error", err.Error()))

		return
	}

	c.setReachable(true)

	if stamp == last {
		return
	}

	remoteTree, loadedStamp, err := c.remote.Load(ctx)

	switch {
	case errors.Is(err, apperrors.ErrNoRemoteDocument):
		// The board was reset or never written: merge against an empty
		// tree so local content survives and gets pushed back.
		remoteTree = bookmarks.Tree{}
		loadedStamp = ""

	case err != nil:
		c.setReachable(false)
		c.logger.Warn("remote load failed", slog.String("error", err.Error()))

		return
	}

	merged := bookmarks.Merge(c.store.Load(), remoteTree)

	// A failed local persist aborts the cycle without advancing the
	// version cursor: the store still holds the pre-merge tree, so
	// pushing now would overwrite the remote with stale data. Leaving
	// the cursor at its old value makes the next cycle re-fetch and
	// re-merge.
	if err := c.store.Save(merged); err != nil {
		c.logger.Warn("persisting merged tree failed", slog.String("error", err.Error()))

		return
	}

	c.setRemoteVersion(loadedStamp)

	c.logger.Info("synced from remote",
		slog.String("version", loadedStamp),
		slog.Int("buckets", len(merged.Buckets)),
	)

	// Push only when the merge changed something relative to what the
	// remote holds. When the remote copy was strictly newer the merge
	// equals it and there is nothing to write back; pushing anyway
	// would bump the stamp and send every other replica into a pull
	// loop.
	if !reflect.DeepEqual(merged, remoteTree) {
		c.SchedulePush()
	}
}

// SchedulePush (re)arms the debounced remote push. Each call cancels
// the previous timer and starts a fresh one, so a burst of mutations
// collapses into a single remote write carrying the final state.
func (c *Coordinator) SchedulePush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pushGen++
	gen := c.pushGen

	if c.pushTimer != nil {
		c.pushTimer.Stop()
	}

	c.pushTimer = time.AfterFunc(c.opts.DebounceDelay, func() {
		c.firePush(gen)
	})
}

// firePush is the debounce timer callback. A fire whose generation was
// superseded, or that lands while a sync cycle is in flight or the
// replica is offline, is skipped outright -- not queued. The local
// write already succeeded synchronously, so no data is at risk; the
// next cycle or mutation pushes the latest state.
func (c *Coordinator) firePush(gen uint64) {
	c.mu.Lock()
	if gen != c.pushGen {
		c.mu.Unlock()
		return
	}

	if c.state.syncInFlight || !c.state.online || c.identity == "" {
		c.mu.Unlock()
		c.logger.Debug("push skipped", slog.Uint64("gen", gen))

		return
	}

	c.state.syncInFlight = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.state.syncInFlight = false
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()

	tree := c.store.Load()

	stamp, err := c.remote.Save(ctx, tree)
	if err != nil {
		c.setReachable(false)
		c.logger.Warn("remote push failed", slog.String("error", err.Error()))

		return
	}

	c.setReachable(true)
	c.setRemoteVersion(stamp)

	c.logger.Info("pushed to remote",
		slog.String("version", stamp),
		slog.Int("buckets", len(tree.Buckets)),
	)
}

// SetOnline consumes a connectivity transition. Gaining connectivity
// triggers one immediate check; losing it marks the remote unreachable
// without attempting further network calls.
func (c *Coordinator) SetOnline(online bool) {
	c.mu.Lock()

	prev := c.state.online
	c.state.online = online

	if online == prev {
		c.mu.Unlock()
		return
	}

	if online {
		c.state.pendingCheck = true
	} else {
		c.state.remoteReachable = false
	}

	c.mu.Unlock()

	c.logger.Info("connectivity changed", slog.Bool("online", online))
	c.wake()
}

// SetActivity consumes a lifecycle transition. Foregrounding restarts
// interval polling and triggers one immediate check; backgrounding
// stops the interval entirely.
func (c *Coordinator) SetActivity(state ActivityState) {
	c.mu.Lock()

	prev := c.state.activity
	c.state.activity = state

	if state == prev {
		c.mu.Unlock()
		return
	}

	if state == Active {
		c.state.pendingCheck = true
	}

	c.mu.Unlock()

	c.logger.Info("activity changed", slog.String("state", state.String()))
	c.wake()
}

// Refresh requests one immediate sync cycle (a manual refresh).
func (c *Coordinator) Refresh() {
	c.mu.Lock()
	c.state.pendingCheck = true
	c.mu.Unlock()

	c.wake()
}

// wake nudges the run loop. A full channel means a wake-up is already
// pending, which is just as good.
func (c *Coordinator) wake() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// sweepTombstones runs the tombstone collector over the local tree and
// persists (and later pushes) the result when anything was dropped.
func (c *Coordinator) sweepTombstones() {
	tree := c.store.Load()
	swept := bookmarks.Sweep(tree, c.opts.TombstoneRetention, time.Now())

	if reflect.DeepEqual(tree, swept) {
		return
	}

	if err := c.store.Save(swept); err != nil {
		c.logger.Warn("persisting swept tree failed", slog.String("error", err.Error()))
		return
	}

	c.logger.Info("tombstones collected",
		slog.Int("buckets_before", len(tree.Buckets)),
		slog.Int("buckets_after", len(swept.Buckets)),
	)

	c.SchedulePush()
}

func (c *Coordinator) setReachable(reachable bool) {
	c.mu.Lock()
	c.state.remoteReachable = reachable
	c.mu.Unlock()
}

func (c *Coordinator) setRemoteVersion(stamp string) {
	if err := c.store.SetRemoteVersion(stamp); err != nil {
		c.logger.Warn("persisting remote version failed", slog.String("error", err.Error()))
	}

	c.mu.Lock()
	c.state.lastRemoteVersion = stamp
	c.state.lastSyncAt = time.Now().UnixMilli()
	c.mu.Unlock()
}
