package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/roombook/internal/metrics"
)

// DispatcherOptions tunes a Dispatcher.
type DispatcherOptions struct {
	// Buffer is the queue capacity; Publish drops events once it is full.
	Buffer int
	// MaxAttempts bounds deliveries per sink per event.
	MaxAttempts int
	// Backoff is the delay before the second attempt; it doubles afterwards.
	Backoff         time.Duration
	DeliveryTimeout time.Duration
	Logger          *slog.Logger
}

// Dispatcher queues events and delivers them to every sink from a single
// goroutine, so events reach each sink in publish order.
type Dispatcher struct {
	opts  DispatcherOptions
	sinks []Sink

	mu     sync.RWMutex
	closed bool
	queue  chan Event

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

var _ Publisher = (*Dispatcher)(nil)

// NewDispatcher starts a dispatcher delivering to sinks.
func NewDispatcher(opts DispatcherOptions, sinks ...Sink) *Dispatcher {
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 100 * time.Millisecond
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	opts.Logger = opts.Logger.With(slog.String("component", "event_dispatcher"))

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		opts:   opts,
		sinks:  sinks,
		queue:  make(chan Event, opts.Buffer),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// Publish enqueues event. It never blocks: when the queue is full or the
// dispatcher is closed the event is dropped and logged.
func (d *Dispatcher) Publish(ctx context.Context, event Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(ctx, event, "dispatcher closed")
		return
	}
	select {
	case d.queue <- event:
		metrics.EventsPublished.WithLabelValues(string(event.Type)).Inc()
	default:
		d.drop(ctx, event, "queue full")
	}
}

// Close stops accepting events and waits until the queue is drained or ctx
// ends, whichever comes first.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-d.done
		return ctx.Err()
	}
}

func (d *Dispatcher) drop(ctx context.Context, event Event, reason string) {
	metrics.EventsDropped.WithLabelValues(string(event.Type)).Inc()
	d.opts.Logger.WarnContext(ctx, "event dropped",
		slog.String("reason", reason),
		slog.String("event_id", event.ID),
		slog.String("event_type", string(event.Type)),
		slog.String("reservation_id", event.ReservationID),
	)
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for event := range d.queue {
		for _, sink := range d.sinks {
			d.deliver(sink, event)
		}
	}
}

func (d *Dispatcher) deliver(sink Sink, event Event) {
	delay := d.opts.Backoff
	var err error
	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(delay)
			select {
			case <-d.ctx.Done():
				timer.Stop()
				d.fail(sink, event, attempt-1, d.ctx.Err())
				return
			case <-timer.C:
			}
			delay *= 2
		}

		ctx, cancel := context.WithTimeout(d.ctx, d.opts.DeliveryTimeout)
		err = sink.Deliver(ctx, event)
		cancel()
		if err == nil {
			return
		}
		d.opts.Logger.Debug("event delivery attempt failed",
			slog.String("sink", sink.Name()),
			slog.String("event_id", event.ID),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
	}
	d.fail(sink, event, d.opts.MaxAttempts, err)
}

func (d *Dispatcher) fail(sink Sink, event Event, attempts int, err error) {
	metrics.EventDeliveryFailures.WithLabelValues(sink.Name()).Inc()
	d.opts.Logger.Warn("event delivery failed",
		slog.String("sink", sink.Name()),
		slog.String("event_id", event.ID),
		slog.String("event_type", string(event.Type)),
		slog.Int("attempts", attempts),
		slog.Any("error", err),
	)
}
