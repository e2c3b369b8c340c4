package syncer

import (
	"context"
	"log/slog"
	"time"
)

// pingTimeout bounds one connectivity probe.
const pingTimeout = 10 * time.Second

// Pinger is the subset of the remote client the monitor needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SignalSink consumes connectivity and lifecycle transitions. The
// coordinator satisfies this; its setters are edge-detecting, so the
// monitor can report levels and only real transitions propagate.
type SignalSink interface {
	SetOnline(online bool)
	SetActivity(state ActivityState)
}

// Monitor turns external signals into the two booleans the coordinator
// reads. Connectivity is probed against the remote store on a fixed
// interval; activity signals arrive from clients via ReportFocus and
// ReportBlur (the control API forwards them), keeping the coordinator
// decoupled from whatever UI framework produced them.
type Monitor struct {
	sink     SignalSink
	pinger   Pinger
	interval time.Duration
	logger   *slog.Logger
}

// NewMonitor creates a monitor feeding the given sink.
func NewMonitor(sink SignalSink, pinger Pinger, interval time.Duration, logger *slog.Logger) *Monitor {
	return &Monitor{
		sink:     sink,
		pinger:   pinger,
		interval: interval,
		logger:   logger,
	}
}

// Run probes connectivity until the context is cancelled. The first
// probe happens immediately so startup does not wait a full interval
// to discover the remote is down.
func (m *Monitor) Run(ctx context.Context) error {
	m.probe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	err := m.pinger.Ping(pingCtx)
	if err != nil {
		m.logger.Debug("connectivity probe failed", slog.String("error", err.Error()))
	}

	m.sink.SetOnline(err == nil)
}

// ReportFocus forwards a client focus signal.
func (m *Monitor) ReportFocus() {
	m.sink.SetActivity(Active)
}

// ReportBlur forwards a client blur signal.
func (m *Monitor) ReportBlur() {
	m.sink.SetActivity(Background)
}

// ReportOnline forwards an explicit client connectivity signal. The
// prober may override it on its next tick if it disagrees.
func (m *Monitor) ReportOnline(online bool) {
	m.sink.SetOnline(online)
}
