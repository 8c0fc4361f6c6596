// Package report delivers finished visit records to their sinks: the
// external collector and the Redis stream that feeds the visits table.
package report

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sajpe/visitgate/internal/metrics"
	"github.com/sajpe/visitgate/internal/model"
)

// DefaultTimeout bounds a single sink delivery.
const DefaultTimeout = 5 * time.Second

// Sink receives flattened visit records.
type Sink interface {
	Name() string
	Send(ctx context.Context, payload model.VisitPayload) error
}

// Reporter fans a record out to every sink without blocking the caller.
// Failed deliveries are logged and counted, never retried.
type Reporter struct {
	sinks   []Sink
	timeout time.Duration
	logger  *slog.Logger
	metrics metrics.Recorder

	wg sync.WaitGroup
}

// NewReporter creates a Reporter. A non-positive timeout means DefaultTimeout.
func NewReporter(sinks []Sink, timeout time.Duration, logger *slog.Logger, recorder metrics.Recorder) *Reporter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Reporter{
		sinks:   sinks,
		timeout: timeout,
		logger:  logger.With("component", "report"),
		metrics: recorder,
	}
}

// Submit sends record to all sinks in the background.
func (r *Reporter) Submit(record model.VisitRecord) {
	payload := record.Flatten()
	for _, sink := range r.sinks {
		r.wg.Add(1)
		go r.deliver(sink, payload)
	}
}

func (r *Reporter) deliver(sink Sink, payload model.VisitPayload) {
	defer r.wg.Done()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("report sink panicked", "sink", sink.Name(), "panic", rec)
			r.metrics.IncReportSubmitted(sink.Name(), "dropped")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := sink.Send(ctx, payload); err != nil {
		r.logger.Warn("failed to report visit",
			"sink", sink.Name(),
			"visit_id", payload.VisitID,
			"error", err,
		)
		r.metrics.IncReportSubmitted(sink.Name(), "dropped")
		return
	}

	r.logger.Debug("visit reported", "sink", sink.Name(), "visit_id", payload.VisitID)
	r.metrics.IncReportSubmitted(sink.Name(), "success")
}

// Shutdown waits for in-flight deliveries or until ctx is done.
func (r *Reporter) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		r.logger.Warn("report shutdown timed out")
		return ctx.Err()
	}
}
