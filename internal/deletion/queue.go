// Package deletion removes regions locally and forwards deletes of stored
// annotations to the annotation store through a bounded, rate limited and
// idempotent background queue.
package deletion

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/tphakala/audio-annotator/internal/annotation"
	"github.com/tphakala/audio-annotator/internal/errors"
	"github.com/tphakala/audio-annotator/internal/logger"
)

// Remover deletes a stored annotation
type Remover interface {
	DeleteAnnotation(ctx context.Context, id annotation.ID) error
}

// Outcome of a queued delete
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeNotFound  Outcome = "not_found"
	OutcomeError     Outcome = "error"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeDropped   Outcome = "dropped"
)

// Observer is notified about every delete command, typically metrics
type Observer interface {
	ObserveDelete(outcome Outcome, duration time.Duration)
}

// Command asks the store to delete one annotation
type Command struct {
	AnnotationID annotation.ID
	RegionID     string
	EnqueuedAt   time.Time
}

// Config holds queue configuration
type Config struct {
	QueueSize      int
	Workers        int
	RateLimit      float64 // deletes per second
	Burst          int
	DedupeTTL      time.Duration
	RequestTimeout time.Duration
}

// DefaultConfig returns the default queue configuration
func DefaultConfig() Config {
	return Config{
		QueueSize:      64,
		Workers:        2,
		RateLimit:      5,
		Burst:          5,
		DedupeTTL:      10 * time.Minute,
		RequestTimeout: 15 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.QueueSize < 1 {
		c.QueueSize = d.QueueSize
	}
	if c.Workers < 1 {
		c.Workers = d.Workers
	}
	if c.RateLimit <= 0 {
		c.RateLimit = d.RateLimit
	}
	if c.Burst < 1 {
		c.Burst = d.Burst
	}
	if c.DedupeTTL <= 0 {
		c.DedupeTTL = d.DedupeTTL
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
}

// Stats contains runtime counters of the queue
type Stats struct {
	Enqueued   uint64
	Duplicates uint64
	Dropped    uint64
	Succeeded  uint64
	NotFound   uint64
	Failed     uint64
}

// Queue drains delete commands with a fixed worker pool. Enqueue never blocks.
type Queue struct {
	remover  Remover
	cfg      Config
	commands chan Command
	limiter  *rate.Limiter
	ledger   *cache.Cache
	observer Observer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	enqueued   atomic.Uint64
	duplicates atomic.Uint64
	dropped    atomic.Uint64
	succeeded  atomic.Uint64
	notFound   atomic.Uint64
	failed     atomic.Uint64

	log logger.Logger
}

// QueueOption configures a Queue
type QueueOption func(*Queue)

// WithObserver attaches an observer for delete outcomes
func WithObserver(o Observer) QueueOption {
	return func(q *Queue) { q.observer = o }
}

// NewQueue starts cfg.Workers workers forwarding deletes to remover
func NewQueue(remover Remover, cfg Config, opts ...QueueOption) *Queue {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	q := &Queue{
		remover:  remover,
		cfg:      cfg,
		commands: make(chan Command, cfg.QueueSize),
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		// No janitor goroutine, expired ids are evicted lazily on Add
		ledger: cache.New(cfg.DedupeTTL, 0),
		ctx:    ctx,
		cancel: cancel,
		log:    logger.Global().Module("deletion"),
	}
	for _, opt := range opts {
		opt(q)
	}

	q.log.Info("starting deletion workers",
		logger.Int("workers", cfg.Workers),
		logger.Int("queue_size", cfg.QueueSize),
		logger.Float64("rate_limit", cfg.RateLimit))

	for i := range cfg.Workers {
		q.wg.Add(1)
		go q.worker(i)
	}
	return q
}

// Enqueue accepts a command without blocking. It returns false when the
// annotation was already handled, the queue is full or shut down.
func (q *Queue) Enqueue(cmd Command) bool {
	if !cmd.AnnotationID.Valid() {
		return false
	}
	if cmd.EnqueuedAt.IsZero() {
		cmd.EnqueuedAt = time.Now()
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.record(OutcomeDropped, 0)
		q.log.Warn("delete dropped, queue shut down", logger.Int64("annotation_id", int64(cmd.AnnotationID)))
		return false
	}

	key := strconv.FormatInt(int64(cmd.AnnotationID), 10)
	if err := q.ledger.Add(key, cmd.EnqueuedAt, cache.DefaultExpiration); err != nil {
		q.record(OutcomeDuplicate, 0)
		q.log.Debug("duplicate delete ignored", logger.Int64("annotation_id", int64(cmd.AnnotationID)))
		return false
	}

	select {
	case q.commands <- cmd:
		q.enqueued.Add(1)
		return true
	default:
		// Forget the id so a later attempt can go through
		q.ledger.Delete(key)
		q.record(OutcomeDropped, 0)
		q.log.Warn("delete dropped, queue full",
			logger.Int64("annotation_id", int64(cmd.AnnotationID)),
			logger.Int("queue_size", q.cfg.QueueSize))
		return false
	}
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()

	log := q.log.With(logger.Int("worker_id", id))
	log.Debug("worker started")

	for cmd := range q.commands {
		q.process(cmd, log)
	}

	log.Debug("worker stopping, queue closed")
}

func (q *Queue) process(cmd Command, log logger.Logger) {
	defer func() {
		if r := recover(); r != nil {
			q.record(OutcomeError, 0)
			log.Error("delete panicked",
				logger.Int64("annotation_id", int64(cmd.AnnotationID)),
				logger.Any("panic", r))
		}
	}()

	if err := q.limiter.Wait(q.ctx); err != nil {
		q.record(OutcomeError, 0)
		log.Warn("delete abandoned during shutdown",
			logger.Int64("annotation_id", int64(cmd.AnnotationID)),
			logger.Error(err))
		return
	}

	// In-flight requests are bounded by their own timeout, not by shutdown
	ctx, cancel := context.WithTimeout(context.Background(), q.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	err := q.remover.DeleteAnnotation(ctx, cmd.AnnotationID)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		q.record(OutcomeSuccess, elapsed)
		log.Info("annotation deleted",
			logger.Int64("annotation_id", int64(cmd.AnnotationID)),
			logger.Duration("duration", elapsed))
	case errors.IsNotFound(err):
		q.record(OutcomeNotFound, elapsed)
		log.Info("annotation already gone",
			logger.Int64("annotation_id", int64(cmd.AnnotationID)))
	default:
		// Local state is already gone, the failure is only logged
		q.record(OutcomeError, elapsed)
		log.Error("remote delete failed",
			logger.Int64("annotation_id", int64(cmd.AnnotationID)),
			logger.String("region_id", cmd.RegionID),
			logger.Error(err))
	}
}

func (q *Queue) record(outcome Outcome, d time.Duration) {
	switch outcome {
	case OutcomeSuccess:
		q.succeeded.Add(1)
	case OutcomeNotFound:
		q.notFound.Add(1)
	case OutcomeError:
		q.failed.Add(1)
	case OutcomeDuplicate:
		q.duplicates.Add(1)
	case OutcomeDropped:
		q.dropped.Add(1)
	}
	if q.observer != nil {
		q.observer.ObserveDelete(outcome, d)
	}
}

// Shutdown stops accepting commands and waits for workers to drain the queue.
// Commands still waiting on the rate limiter when timeout expires are abandoned.
func (q *Queue) Shutdown(timeout time.Duration) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.commands)
	q.mu.Unlock()

	q.log.Info("shutting down deletion queue", logger.Duration("timeout", timeout))

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		q.log.Info("deletion queue shutdown complete")
		return nil
	case <-time.After(timeout):
		q.cancel()
		<-done
		q.log.Warn("deletion queue shutdown timeout exceeded")
		return errors.Newf("deletion queue shutdown timeout exceeded").
			Component("deletion").
			Category(errors.CategoryTimeout).
			Context("timeout", timeout.String()).
			Build()
	}
}

// Stats returns current queue counters
func (q *Queue) Stats() Stats {
	return Stats{
		Enqueued:   q.enqueued.Load(),
		Duplicates: q.duplicates.Load(),
		Dropped:    q.dropped.Load(),
		Succeeded:  q.succeeded.Load(),
		NotFound:   q.notFound.Load(),
		Failed:     q.failed.Load(),
	}
}

// Pending returns the number of queued commands
func (q *Queue) Pending() int {
	return len(q.commands)
}
