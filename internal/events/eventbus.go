package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/audio-annotator/internal/errors"
	"github.com/tphakala/audio-annotator/internal/logger"
)

// Config holds bus configuration
type Config struct {
	BufferSize int
	// Workers > 1 gives up per-consumer ordering
	Workers int
}

// DefaultConfig keeps a single worker so consumers see events in publish order
func DefaultConfig() Config {
	return Config{BufferSize: 256, Workers: 1}
}

// Bus delivers events to every registered consumer on background workers.
// Publishing never blocks; a full buffer drops the event.
type Bus struct {
	eventChan chan Event
	workers   int

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
	closed  atomic.Bool
	mu      sync.Mutex

	consumers []Consumer

	received  atomic.Uint64
	processed atomic.Uint64
	dropped   atomic.Uint64
	failures  atomic.Uint64

	log logger.Logger
}

// New returns a bus; workers start with the first consumer
func New(cfg Config) *Bus {
	d := DefaultConfig()
	if cfg.BufferSize < 1 {
		cfg.BufferSize = d.BufferSize
	}
	if cfg.Workers < 1 {
		cfg.Workers = d.Workers
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		eventChan: make(chan Event, cfg.BufferSize),
		workers:   cfg.Workers,
		ctx:       ctx,
		cancel:    cancel,
		log:       logger.Global().Module("events"),
	}
}

// RegisterConsumer adds a consumer. Names must be unique.
func (b *Bus) RegisterConsumer(consumer Consumer) error {
	if b == nil || consumer == nil {
		return errors.Newf("event bus or consumer is nil").
			Component("events").
			Category(errors.CategoryValidation).
			Build()
	}
	if b.closed.Load() {
		return errors.Newf("event bus is shut down").
			Component("events").
			Category(errors.CategoryState).
			Build()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.consumers {
		if existing.Name() == consumer.Name() {
			return errors.Newf("consumer %s already registered", consumer.Name()).
				Component("events").
				Category(errors.CategoryConflict).
				Build()
		}
	}
	b.consumers = append(b.consumers, consumer)
	b.log.Info("registered event consumer", logger.String("consumer", consumer.Name()))

	if !b.running.Swap(true) {
		for i := range b.workers {
			b.wg.Go(func() { b.worker(i) })
		}
	}
	return nil
}

// TryPublish hands event to the workers without blocking. It returns false
// when the event was dropped or nobody listens.
func (b *Bus) TryPublish(event Event) bool {
	if b == nil || event == nil || b.closed.Load() || !b.running.Load() {
		return false
	}

	select {
	case b.eventChan <- event:
		b.received.Add(1)
		return true
	default:
		b.dropped.Add(1)
		b.log.Debug("event dropped due to full buffer", logger.String("kind", string(event.Kind())))
		return false
	}
}

func (b *Bus) worker(id int) {
	log := b.log.With(logger.Int("worker_id", id))
	for {
		select {
		case <-b.ctx.Done():
			// Drain what is already buffered before leaving
			for {
				select {
				case event := <-b.eventChan:
					b.dispatch(event, log)
				default:
					return
				}
			}
		case event := <-b.eventChan:
			b.dispatch(event, log)
		}
	}
}

func (b *Bus) dispatch(event Event, log logger.Logger) {
	b.mu.Lock()
	consumers := make([]Consumer, len(b.consumers))
	copy(consumers, b.consumers)
	b.mu.Unlock()

	for _, consumer := range consumers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.failures.Add(1)
					log.Error("consumer panicked",
						logger.String("consumer", consumer.Name()),
						logger.Any("panic", r),
						logger.String("kind", string(event.Kind())))
				}
			}()

			if err := consumer.Handle(event); err != nil {
				b.failures.Add(1)
				log.Warn("consumer error",
					logger.String("consumer", consumer.Name()),
					logger.String("kind", string(event.Kind())),
					logger.Error(err))
				return
			}
			b.processed.Add(1)
		}()
	}
}

// Shutdown stops accepting events, delivers what is buffered and waits for
// the workers up to timeout.
func (b *Bus) Shutdown(timeout time.Duration) error {
	if b == nil || b.closed.Swap(true) {
		return nil
	}
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.log.Info("event bus stopped", logger.Uint64("processed", b.processed.Load()))
		return nil
	case <-time.After(timeout):
		return errors.Newf("event bus shutdown timed out after %s", timeout).
			Component("events").
			Category(errors.CategoryTimeout).
			Build()
	}
}

// Stats returns a snapshot of the counters
func (b *Bus) Stats() Stats {
	if b == nil {
		return Stats{}
	}
	return Stats{
		EventsReceived:  b.received.Load(),
		EventsProcessed: b.processed.Load(),
		EventsDropped:   b.dropped.Load(),
		ConsumerErrors:  b.failures.Load(),
	}
}
