package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncVisit(category, brand string)                {}
func (n *NoopRecorder) ObservePipelineDuration(duration time.Duration) {}
func (n *NoopRecorder) IncIdentityDegraded()                           {}
func (n *NoopRecorder) IncLocationResolved(source string)              {}
func (n *NoopRecorder) IncProviderAttempt(provider, outcome string)    {}
func (n *NoopRecorder) IncLocationCacheHit()                           {}
func (n *NoopRecorder) IncRedirectDecision(kind string)                {}
func (n *NoopRecorder) IncReportSubmitted(sink, status string)         {}
func (n *NoopRecorder) IncReportProcessed(status string)               {}
func (n *NoopRecorder) ObserveReportBatchSize(size int)                {}
func (n *NoopRecorder) SetReportQueueDepth(depth int64)                {}
func (n *NoopRecorder) IncRateLimited()                                {}
