package action

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ledgerline-labs/ledgerline-go/internal/domain"
)

// Job is one deferred action execution: async actions and retry-policy
// failures are enqueued after the owning transition commits.
type Job struct {
	Action     domain.TransitionAction
	Invocation Invocation
}

type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	RetryDelay  time.Duration
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
	return c
}

// Dispatcher runs deferred actions on a bounded worker pool. Delivery is
// at-least-once: a failed attempt is retried in place up to MaxAttempts with
// a fixed delay.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
	cfg      DispatcherConfig

	queue chan Job
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewDispatcher(registry *Registry, logger *slog.Logger, cfg DispatcherConfig) *Dispatcher {
	cfg = cfg.withDefaults()
	return &Dispatcher{
		registry: registry,
		logger:   logger,
		cfg:      cfg,
		queue:    make(chan Job, cfg.QueueSize),
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

var ErrQueueFull = errors.New("action queue is full")

func (d *Dispatcher) Enqueue(job Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New("dispatcher is closed")
	}
	select {
	case d.queue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops intake and waits for queued jobs to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for job := range d.queue {
		d.run(ctx, job)
	}
}

func (d *Dispatcher) run(ctx context.Context, job Job) {
	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return
		}
		lastErr = d.registry.Execute(ctx, job.Action, job.Invocation)
		if lastErr == nil {
			return
		}
		if d.logger != nil {
			d.logger.Warn("deferred action failed",
				"action_id", job.Action.ID,
				"action_type", job.Action.ActionType,
				"entity_type", job.Invocation.Entity.Type,
				"entity_id", job.Invocation.Entity.ID,
				"attempt", attempt,
				"error", lastErr.Error(),
			)
		}
		if attempt == d.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.cfg.RetryDelay):
		}
	}
	if d.logger != nil {
		d.logger.Error("deferred action exhausted retries",
			"action_id", job.Action.ID,
			"action_type", job.Action.ActionType,
			"entity_type", job.Invocation.Entity.Type,
			"entity_id", job.Invocation.Entity.ID,
			"error", lastErr.Error(),
		)
	}
}
