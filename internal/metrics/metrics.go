// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
type Recorder interface {
	// Pipeline metrics
	IncVisit(category, brand string)
	ObservePipelineDuration(duration time.Duration)
	IncIdentityDegraded()

	// Location metrics
	IncLocationResolved(source string)
	IncProviderAttempt(provider, outcome string) // outcome: "success", "failed"
	IncLocationCacheHit()

	// Redirect metrics
	IncRedirectDecision(kind string) // kind: "web", "store", "deeplink", "manual"

	// Reporting metrics
	IncReportSubmitted(sink, status string) // status: "success" or "dropped"
	IncReportProcessed(status string)       // status: "success", "failed", "skipped"
	ObserveReportBatchSize(size int)
	SetReportQueueDepth(depth int64)

	// Rate limiting
	IncRateLimited()
}
