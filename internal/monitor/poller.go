package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/tphakala/vigil/internal/alerting"
	"github.com/tphakala/vigil/internal/logger"
	"github.com/tphakala/vigil/internal/observability/metrics"
)

// Engine evaluates a snapshot against the rule set.
type Engine interface {
	CheckAlerts(snapshot alerting.Snapshot, history []alerting.Snapshot) []*alerting.Alert
}

// PollerOptions configures a Poller.
type PollerOptions struct {
	Interval   time.Duration
	WindowSize int
	WindowAge  time.Duration
	Logger     logger.Logger
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

// Poller runs collectors on a ticker and evaluates every snapshot against
// the engine. Each source keeps its own history window so lookback
// operators compare like with like.
type Poller struct {
	engine     Engine
	collectors []Collector
	interval   time.Duration
	windowSize int
	windowAge  time.Duration

	mu      sync.Mutex
	windows map[string]*alerting.SnapshotWindow

	log     logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewPoller(engine Engine, opts PollerOptions, collectors ...Collector) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Poller{
		engine:     engine,
		collectors: collectors,
		interval:   opts.Interval,
		windowSize: opts.WindowSize,
		windowAge:  opts.WindowAge,
		windows:    make(map[string]*alerting.SnapshotWindow),
		log:        opts.Logger.Module("monitor"),
		metrics:    opts.Metrics,
		now:        opts.Now,
	}
}

// Ingest evaluates snapshot against the window for source, then appends it
// to that window. Snapshots from one source are evaluated in arrival order.
func (p *Poller) Ingest(source string, snapshot alerting.Snapshot) []*alerting.Alert {
	if snapshot == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.windows[source]
	if !ok {
		w = alerting.NewSnapshotWindow(p.windowSize, p.windowAge)
		p.windows[source] = w
	}

	fired := p.engine.CheckAlerts(snapshot, w.History())
	w.Record(snapshot, p.now())
	p.metrics.SnapshotReceived(source)

	if len(fired) > 0 {
		p.log.Debug("snapshot triggered alerts",
			logger.String("source", source),
			logger.Int("alerts", len(fired)))
	}
	return fired
}

// History returns the retained snapshots for source, oldest first.
func (p *Poller) History(source string) []alerting.Snapshot {
	p.mu.Lock()
	w, ok := p.windows[source]
	p.mu.Unlock()
	if !ok {
		return nil
	}
	return w.History()
}

// Run polls every collector once immediately and then on each tick until
// ctx is done.
func (p *Poller) Run(ctx context.Context) {
	p.log.Info("poller started",
		logger.Duration("interval", p.interval),
		logger.Int("collectors", len(p.collectors)))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			p.log.Info("poller stopped")
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	for _, c := range p.collectors {
		snapshot, err := c.Collect(ctx)
		if err != nil {
			if ctx.Err() == nil {
				p.log.Warn("collector failed",
					logger.String("collector", c.Name()),
					logger.Error(err))
			}
			continue
		}
		p.Ingest(c.Name(), snapshot)
	}
}
