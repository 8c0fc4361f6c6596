package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sajpe/visitgate/internal/metrics"
	"github.com/sajpe/visitgate/internal/model"
)

// ConsumerGroup is the Redis consumer group of visit persisters.
const ConsumerGroup = "visit_writers"

// Repository persists visits. BulkInsert must ignore duplicates.
type Repository interface {
	BulkInsert(ctx context.Context, visits []*model.Visit) error
}

// WorkerConfig tunes the worker loop.
type WorkerConfig struct {
	BatchSize       int
	BlockTimeout    time.Duration
	MaxRetries      int
	RetryBase       time.Duration
	ClaimInterval   time.Duration
	ClaimIdle       time.Duration
	MetricsInterval time.Duration
}

// DefaultWorkerConfig returns the production settings.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		BatchSize:       200,
		BlockTimeout:    5 * time.Second,
		MaxRetries:      3,
		RetryBase:       time.Second,
		ClaimInterval:   10 * time.Second,
		ClaimIdle:       30 * time.Second,
		MetricsInterval: 5 * time.Second,
	}
}

// Worker moves visits from the stream into the repository.
type Worker struct {
	redis      *redis.Client
	repo       Repository
	logger     *slog.Logger
	metrics    metrics.Recorder
	consumerID string
	cfg        WorkerConfig

	claimStart  string
	lastClaim   time.Time
	lastMetrics time.Time

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWorker creates a Worker.
func NewWorker(client *redis.Client, repo Repository, cfg WorkerConfig, consumerID string, logger *slog.Logger, recorder metrics.Recorder) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Worker{
		redis:      client,
		repo:       repo,
		logger:     logger.With("component", "report.worker", "consumer_id", consumerID),
		metrics:    recorder,
		consumerID: consumerID,
		cfg:        cfg,
		claimStart: "0-0",
	}
}

// Run consumes the stream until ctx is cancelled or Shutdown is called.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("worker already started")
	}
	w.started = true
	w.done = make(chan struct{})
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	defer close(w.done)

	if err := w.ensureGroup(ctx); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}

	w.logger.Info("visit worker started")

	for {
		if ctx.Err() != nil {
			w.logger.Info("visit worker stopping")
			return nil
		}
		if err := w.ProcessOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			w.logger.Error("process error", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

// Shutdown stops the loop and waits for the current batch.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	select {
	case <-done:
		w.logger.Info("visit worker shutdown complete")
		return nil
	case <-ctx.Done():
		w.logger.Warn("visit worker shutdown timed out")
		return ctx.Err()
	}
}

func (w *Worker) ensureGroup(ctx context.Context) error {
	err := w.redis.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// ProcessOnce handles one batch: reclaimed messages first, then new ones.
// Messages are acknowledged only after they are persisted.
func (w *Worker) ProcessOnce(ctx context.Context) error {
	w.maybeUpdateQueueDepth(ctx)

	messages, err := w.maybeClaimPending(ctx)
	if err != nil {
		w.logger.Warn("failed to claim pending messages", "error", err)
	}
	if len(messages) == 0 {
		messages, err = w.readBatch(ctx)
		if err != nil {
			return err
		}
	}
	if len(messages) == 0 {
		return nil
	}

	visits, ids := w.parseMessages(ctx, messages)
	if len(visits) > 0 {
		if err := w.persistWithRetry(ctx, visits); err != nil {
			w.logger.Error("batch failed after retries", "batch_size", len(visits), "error", err)
			return err
		}
	}
	return w.ack(ctx, ids)
}

func (w *Worker) maybeClaimPending(ctx context.Context) ([]redis.XMessage, error) {
	if w.cfg.ClaimInterval <= 0 || w.cfg.ClaimIdle <= 0 {
		return nil, nil
	}
	if !w.lastClaim.IsZero() && time.Since(w.lastClaim) < w.cfg.ClaimInterval {
		return nil, nil
	}
	w.lastClaim = time.Now()

	messages, next, err := w.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamKey,
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		MinIdle:  w.cfg.ClaimIdle,
		Start:    w.claimStart,
		Count:    int64(w.cfg.BatchSize),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	if next != "" {
		w.claimStart = next
	}
	return messages, nil
}

func (w *Worker) maybeUpdateQueueDepth(ctx context.Context) {
	if w.cfg.MetricsInterval <= 0 {
		return
	}
	if !w.lastMetrics.IsZero() && time.Since(w.lastMetrics) < w.cfg.MetricsInterval {
		return
	}
	w.lastMetrics = time.Now()

	groups, err := w.redis.XInfoGroups(ctx, StreamKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		w.logger.Warn("failed to read stream group info", "error", err)
		return
	}
	for _, g := range groups {
		if g.Name == ConsumerGroup {
			w.metrics.SetReportQueueDepth(g.Pending + g.Lag)
			return
		}
	}
}

func (w *Worker) readBatch(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := w.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		Streams:  []string{StreamKey, ">"},
		Count:    int64(w.cfg.BatchSize),
		Block:    w.cfg.BlockTimeout,
	}).Result()
	if errors.Is(err, redis.Nil) || len(streams) == 0 {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	return streams[0].Messages, nil
}

// parseMessages decodes the batch. Poison messages are dead-lettered but
// their IDs are still returned for acknowledgement.
func (w *Worker) parseMessages(ctx context.Context, messages []redis.XMessage) ([]*model.Visit, []string) {
	visits := make([]*model.Visit, 0, len(messages))
	ids := make([]string, 0, len(messages))

	for _, msg := range messages {
		ids = append(ids, msg.ID)

		raw, ok := msg.Values["payload"].(string)
		if !ok {
			w.deadLetter(ctx, msg, "invalid_format", "payload field missing or not a string")
			continue
		}
		var payload model.VisitPayload
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			w.deadLetter(ctx, msg, "unmarshal_error", err.Error())
			continue
		}
		if err := ValidatePayload(payload); err != nil {
			w.deadLetter(ctx, msg, "validation_error", err.Error())
			continue
		}

		visits = append(visits, &model.Visit{VisitPayload: payload, EventID: msg.ID})
	}
	return visits, ids
}

func (w *Worker) deadLetter(ctx context.Context, msg redis.XMessage, reason, detail string) {
	w.logger.Warn("dead-lettering poison message",
		"message_id", msg.ID,
		"reason", reason,
		"detail", detail,
	)

	err := w.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStreamKey,
		MaxLen: 10000,
		Approx: true,
		Values: map[string]interface{}{
			"original_id":      msg.ID,
			"reason":           reason,
			"detail":           detail,
			"payload":          msg.Values["payload"],
			"dead_lettered_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		w.logger.Error("failed to write to dead-letter stream", "message_id", msg.ID, "error", err)
	}
	w.metrics.IncReportProcessed("dead_lettered")
}

func (w *Worker) persistWithRetry(ctx context.Context, visits []*model.Visit) error {
	var lastErr error
	for attempt := 0; attempt < w.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := w.cfg.RetryBase << attempt
			w.logger.Warn("batch insert failed, retrying",
				"attempt", attempt,
				"backoff", backoff,
				"error", lastErr,
			)
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		start := time.Now()
		if lastErr = w.repo.BulkInsert(ctx, visits); lastErr == nil {
			w.logger.Info("batch persisted", "visits", len(visits), "duration", time.Since(start))
			w.metrics.ObserveReportBatchSize(len(visits))
			for range visits {
				w.metrics.IncReportProcessed("success")
			}
			return nil
		}
	}

	for range visits {
		w.metrics.IncReportProcessed("failed")
	}
	return fmt.Errorf("bulk insert: %w", lastErr)
}

func (w *Worker) ack(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := w.redis.XAck(ctx, StreamKey, ConsumerGroup, ids...).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}
