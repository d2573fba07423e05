package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	PollInterval time.Duration
	BatchSize    int32
	MaxRetries   int
	RetryDelay   time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		BatchSize:    100,
		MaxRetries:   3,
		RetryDelay:   time.Second,
	}
}

// Worker relays unsent outbox rows to the publisher on a fixed poll
// interval. Delivery is at-least-once; consumers dedupe on event ID.
type Worker struct {
	repo      *Repository
	publisher EventPublisher
	config    Config
	metrics   MetricsCollector

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewWorker(repo *Repository, publisher EventPublisher, cfg Config, metrics MetricsCollector) *Worker {
	if metrics == nil {
		metrics = &NoOpMetricsCollector{}
	}
	return &Worker{
		repo:      repo,
		publisher: publisher,
		config:    cfg,
		metrics:   metrics,
		stopChan:  make(chan struct{}),
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	log.Info().
		Dur("poll_interval", w.config.PollInterval).
		Int32("batch_size", w.config.BatchSize).
		Msg("outbox worker started")

	return nil
}

func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker not running")
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()

	log.Info().Msg("outbox worker stopped")
	return nil
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	// Process immediately on start
	w.processOutbox(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.processOutbox(ctx)
		}
	}
}

func (w *Worker) processOutbox(ctx context.Context) {
	start := time.Now()

	published, err := w.repo.DrainUnsent(ctx, w.config.BatchSize, func(ev OutboxEvent) error {
		return w.publishWithRetry(ctx, ev)
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to process outbox batch")
		return
	}
	w.metrics.RecordBatchProcessed(published, time.Since(start))

	if lag, err := w.repo.CountUnsent(ctx); err == nil {
		w.metrics.RecordOutboxLag(lag)
	}

	if published > 0 {
		log.Info().Int("published", published).Msg("processed outbox events")
	}
}

func (w *Worker) publishWithRetry(ctx context.Context, event OutboxEvent) error {
	var lastErr error

	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.config.RetryDelay * time.Duration(attempt)):
			}
		}

		start := time.Now()
		err := w.publisher.Publish(ctx, event)
		w.metrics.RecordEventProcessed(event.EventType, err == nil, time.Since(start))
		if err != nil {
			lastErr = err
			w.metrics.RecordPublishAttempt(event.EventType, attempt+1, false)
			log.Warn().
				Str("event_id", event.ID.String()).
				Int("attempt", attempt+1).
				Err(err).
				Msg("failed to publish event, retrying")
			continue
		}

		w.metrics.RecordPublishAttempt(event.EventType, attempt+1, true)
		return nil
	}

	return fmt.Errorf("failed after %d attempts: %w", w.config.MaxRetries+1, lastErr)
}
