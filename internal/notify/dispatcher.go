package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DukeRupert/pixeldraft/internal/metrics"
)

// Config holds the configuration for the notification dispatcher.
type Config struct {
	// Concurrency is the number of delivery goroutines.
	// Default: 2
	Concurrency int

	// QueueSize bounds the number of events waiting for delivery. Events
	// arriving while the queue is full are dropped.
	// Default: 256
	QueueSize int

	// DeliveryTimeout is the maximum time one delivery attempt may take.
	// Default: 10 seconds
	DeliveryTimeout time.Duration

	// MaxAttempts is how many times a delivery is tried per sink.
	// Default: 3
	MaxAttempts int

	// RetryBackoff is the wait before the first retry; it doubles after
	// each failed attempt.
	// Default: 1 second
	RetryBackoff time.Duration

	// ShutdownTimeout is how long Stop waits for queued events to drain.
	// Default: 10 seconds
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Concurrency:     2,
		QueueSize:       256,
		DeliveryTimeout: 10 * time.Second,
		MaxAttempts:     3,
		RetryBackoff:    time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.Concurrency > 100 {
		return fmt.Errorf("concurrency too high (max 100), got %d", c.Concurrency)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("queue size must be at least 1, got %d", c.QueueSize)
	}
	if c.DeliveryTimeout <= 0 {
		return fmt.Errorf("delivery timeout must be positive, got %v", c.DeliveryTimeout)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff must not be negative, got %v", c.RetryBackoff)
	}
	if c.ShutdownTimeout < time.Second {
		return fmt.Errorf("shutdown timeout must be at least 1 second, got %v", c.ShutdownTimeout)
	}
	return nil
}

// Dispatcher delivers events to every sink on a bounded pool of goroutines.
// Enqueue never blocks the request that produced the event.
type Dispatcher struct {
	sinks  []Sink
	config Config
	logger *slog.Logger

	queue    chan Event
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewDispatcher creates a Dispatcher. It must be started with Start and
// stopped with Stop.
func NewDispatcher(config Config, logger *slog.Logger, sinks ...Sink) (*Dispatcher, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if len(sinks) == 0 {
		return nil, fmt.Errorf("at least one sink is required")
	}
	return &Dispatcher{
		sinks:  sinks,
		config: config,
		logger: logger,
		queue:  make(chan Event, config.QueueSize),
		stopCh: make(chan struct{}),
	}, nil
}

// Start launches the delivery goroutines. Deliveries use ctx as parent;
// cancel it to abort in-flight retries.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.config.Concurrency; i++ {
		d.wg.Add(1)
		go d.run(ctx, i+1)
	}
	d.logger.Info("notification dispatcher started",
		"concurrency", d.config.Concurrency,
		"sinks", len(d.sinks),
	)
}

// Enqueue queues e for delivery. It reports false when the queue is full
// or the dispatcher is stopping, in which case the event is dropped.
func (d *Dispatcher) Enqueue(e Event) bool {
	metrics.NotificationEmitted(string(e.Resource), string(e.Kind))

	select {
	case <-d.stopCh:
		return false
	default:
	}

	select {
	case d.queue <- e:
		metrics.NotificationQueueDepth.Inc()
		return true
	default:
		d.logger.Warn("notification queue full, dropping event",
			"event_id", e.ID,
			"account_id", e.AccountID,
			"kind", e.Kind,
		)
		return false
	}
}

// Stop stops accepting events, drains the queue and waits for the
// goroutines, up to ShutdownTimeout.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.logger.Info("stopping notification dispatcher...")
		close(d.stopCh)

		done := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			d.logger.Info("notification dispatcher stopped gracefully")
		case <-time.After(d.config.ShutdownTimeout):
			d.logger.Warn("notification dispatcher shutdown timeout exceeded, some events may be lost")
		}
	})
}

func (d *Dispatcher) run(ctx context.Context, workerID int) {
	defer d.wg.Done()

	logger := d.logger.With("worker_id", workerID)
	for {
		select {
		case e := <-d.queue:
			metrics.NotificationQueueDepth.Dec()
			d.deliver(ctx, e, logger)
		case <-d.stopCh:
			// Drain what is already queued, then exit.
			for {
				select {
				case e := <-d.queue:
					metrics.NotificationQueueDepth.Dec()
					d.deliver(ctx, e, logger)
				default:
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, e Event, logger *slog.Logger) {
	for _, sink := range d.sinks {
		d.deliverTo(ctx, sink, e, logger.With("sink", sink.Name(), "event_id", e.ID))
	}
}

// deliverTo retries transient failures with exponential backoff.
func (d *Dispatcher) deliverTo(ctx context.Context, sink Sink, e Event, logger *slog.Logger) {
	backoff := d.config.RetryBackoff

	for attempt := 1; attempt <= d.config.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, d.config.DeliveryTimeout)
		err := sink.Deliver(attemptCtx, e)
		cancel()

		if err == nil {
			metrics.NotificationDelivered(sink.Name())
			return
		}

		if IsPermanent(err) {
			logger.Warn("notification failed with permanent error, will not retry", "error", err)
			metrics.NotificationFailed(sink.Name())
			return
		}

		if attempt == d.config.MaxAttempts {
			logger.Error("notification failed, giving up", "attempts", attempt, "error", err)
			metrics.NotificationFailed(sink.Name())
			return
		}

		logger.Warn("notification failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		metrics.NotificationRetried(sink.Name())

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			metrics.NotificationFailed(sink.Name())
			return
		}
		backoff *= 2
	}
}
