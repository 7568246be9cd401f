package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tphakala/vigil/internal/alerting"
	"github.com/tphakala/vigil/internal/logger"
	"github.com/tphakala/vigil/internal/observability/metrics"
)

// Dispatcher defaults.
const (
	DefaultWorkers     = 4
	DefaultQueueSize   = 256
	DefaultSendTimeout = 30 * time.Second
)

// Failure messages recorded when an alert never reaches a channel.
const (
	ErrMsgQueueFull     = "dispatch queue full"
	ErrMsgStopped       = "dispatcher stopped"
	ErrMsgNotConfigured = "channel not configured"
)

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
	// RateLimit caps sends per second on each channel. Zero means unlimited.
	RateLimit float64
	RateBurst int
	Logger    logger.Logger
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

type job struct {
	alert    *alerting.Alert
	channels []alerting.Channel
	record   func(alerting.NotificationAttempt)
}

// Dispatcher fans alerts out to channels on a fixed pool of workers. It
// implements alerting.Notifier.
type Dispatcher struct {
	channels map[alerting.Channel]Channel
	limiters map[alerting.Channel]*rate.Limiter
	timeout  time.Duration

	mu      sync.RWMutex
	stopped bool
	jobs    chan job
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	log     logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewDispatcher starts the worker pool. Later channels replace earlier ones
// of the same kind.
func NewDispatcher(opts DispatcherOptions, channels ...Channel) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	limit := rate.Inf
	burst := opts.RateBurst
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
		if burst <= 0 {
			burst = 1
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		channels: make(map[alerting.Channel]Channel, len(channels)),
		limiters: make(map[alerting.Channel]*rate.Limiter, len(channels)),
		timeout:  opts.SendTimeout,
		jobs:     make(chan job, opts.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
		log:      opts.Logger.Module("notification"),
		metrics:  opts.Metrics,
		now:      opts.Now,
	}
	for _, ch := range channels {
		d.channels[ch.Kind()] = ch
		d.limiters[ch.Kind()] = rate.NewLimiter(limit, burst)
	}

	for range opts.Workers {
		d.wg.Go(d.worker)
	}
	d.log.Info("notification dispatcher started",
		logger.Int("workers", opts.Workers),
		logger.Int("queue_size", opts.QueueSize),
		logger.Int("channels", len(d.channels)))
	return d
}

// Channel returns the registered channel of the given kind.
func (d *Dispatcher) Channel(kind alerting.Channel) (Channel, bool) {
	ch, ok := d.channels[kind]
	return ch, ok
}

// Notify queues alert for delivery and returns immediately. When the queue
// is full or the dispatcher is stopped every channel is recorded as failed.
func (d *Dispatcher) Notify(alert *alerting.Alert, channels []alerting.Channel, record func(alerting.NotificationAttempt)) {
	if alert == nil || len(channels) == 0 {
		return
	}
	if record == nil {
		record = func(alerting.NotificationAttempt) {}
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		d.failAll(channels, record, ErrMsgStopped)
		return
	}
	select {
	case d.jobs <- job{alert: alert, channels: channels, record: record}:
	default:
		d.log.Warn("notification queue full, dropping alert",
			logger.String("alert_id", alert.ID),
			logger.Int("channels", len(channels)))
		d.failAll(channels, record, ErrMsgQueueFull)
	}
}

func (d *Dispatcher) failAll(channels []alerting.Channel, record func(alerting.NotificationAttempt), msg string) {
	now := d.now()
	for _, ch := range channels {
		d.metrics.NotificationSent(string(ch), false, 0)
		record(alerting.NotificationAttempt{Channel: ch, SentAt: now, Success: false, Error: msg})
	}
}

func (d *Dispatcher) worker() {
	for j := range d.jobs {
		d.deliver(j)
	}
}

// deliver sends one alert to all of its channels concurrently.
func (d *Dispatcher) deliver(j job) {
	var g errgroup.Group
	for _, kind := range j.channels {
		g.Go(func() error {
			j.record(d.send(kind, j.alert))
			return nil
		})
	}
	_ = g.Wait()
}

func (d *Dispatcher) send(kind alerting.Channel, alert *alerting.Alert) alerting.NotificationAttempt {
	start := d.now()
	attempt := alerting.NotificationAttempt{Channel: kind, SentAt: start}

	ch, ok := d.channels[kind]
	if !ok {
		attempt.Error = ErrMsgNotConfigured
		d.metrics.NotificationSent(string(kind), false, 0)
		return attempt
	}
	if !ch.Enabled() {
		attempt.Error = ErrChannelDisabled.Error()
		d.metrics.NotificationSent(string(kind), false, 0)
		return attempt
	}

	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()

	err := d.limiters[kind].Wait(ctx)
	if err == nil {
		err = safeSend(ctx, ch, alert)
	}
	elapsed := d.now().Sub(start)
	d.metrics.NotificationSent(string(kind), err == nil, elapsed)

	if err != nil {
		attempt.Error = err.Error()
		d.log.Warn("notification send failed",
			logger.String("alert_id", alert.ID),
			logger.String("channel", string(kind)),
			logger.Duration("elapsed", elapsed),
			logger.Error(err))
		return attempt
	}
	attempt.Success = true
	d.log.Debug("notification sent",
		logger.String("alert_id", alert.ID),
		logger.String("channel", string(kind)),
		logger.Duration("elapsed", elapsed))
	return attempt
}

// safeSend converts a panicking channel into a delivery error.
func safeSend(ctx context.Context, ch Channel, alert *alerting.Alert) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = deliveryError(fmt.Errorf("channel panicked: %v", r), ch.Kind(), alert.ID)
		}
	}()
	return ch.Send(ctx, alert)
}

// Stop rejects new alerts, waits for queued ones to be delivered and stops
// the workers. It is safe to call more than once.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.jobs)
	d.mu.Unlock()

	d.wg.Wait()
	d.cancel()
	d.log.Info("notification dispatcher stopped")
}

// Pending returns the number of queued alerts.
func (d *Dispatcher) Pending() int {
	return len(d.jobs)
}

var _ alerting.Notifier = (*Dispatcher)(nil)
