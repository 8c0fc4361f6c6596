package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	Visits            map[string]uint64 // key: category/brand
	PipelineRuns      uint64
	IdentityDegraded  uint64
	LocationSources   map[string]uint64
	ProviderAttempts  map[string]uint64 // key: provider/outcome
	LocationCacheHits uint64
	RedirectDecisions map[string]uint64
	ReportsSubmitted  map[string]uint64 // key: sink/status
	ReportsProcessed  map[string]uint64
	ReportQueueDepth  int64
	RateLimited       uint64
}

// InMemoryRecorder stores metrics in memory for tests and the CLI.
type InMemoryRecorder struct {
	mu       sync.Mutex
	counters map[string]map[string]uint64

	pipelineRuns      uint64
	identityDegraded  uint64
	locationCacheHits uint64
	reportQueueDepth  int64
	rateLimited       uint64
}

var _ Recorder = (*InMemoryRecorder)(nil)

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{counters: make(map[string]map[string]uint64)}
}

func (m *InMemoryRecorder) inc(family, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters[family] == nil {
		m.counters[family] = make(map[string]uint64)
	}
	m.counters[family][key]++
}

func (m *InMemoryRecorder) family(name string) map[string]uint64 {
	out := make(map[string]uint64, len(m.counters[name]))
	for k, v := range m.counters[name] {
		out[k] = v
	}
	return out
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Visits:            m.family("visits"),
		PipelineRuns:      atomic.LoadUint64(&m.pipelineRuns),
		IdentityDegraded:  atomic.LoadUint64(&m.identityDegraded),
		LocationSources:   m.family("location_sources"),
		ProviderAttempts:  m.family("provider_attempts"),
		LocationCacheHits: atomic.LoadUint64(&m.locationCacheHits),
		RedirectDecisions: m.family("redirect_decisions"),
		ReportsSubmitted:  m.family("reports_submitted"),
		ReportsProcessed:  m.family("reports_processed"),
		ReportQueueDepth:  atomic.LoadInt64(&m.reportQueueDepth),
		RateLimited:       atomic.LoadUint64(&m.rateLimited),
	}
}

// IncVisit counts a completed pipeline run by category and brand.
func (m *InMemoryRecorder) IncVisit(category, brand string) {
	m.inc("visits", category+"/"+brand)
}

// ObservePipelineDuration counts pipeline runs.
func (m *InMemoryRecorder) ObservePipelineDuration(time.Duration) {
	atomic.AddUint64(&m.pipelineRuns, 1)
}

func (m *InMemoryRecorder) IncIdentityDegraded() {
	atomic.AddUint64(&m.identityDegraded, 1)
}

func (m *InMemoryRecorder) IncLocationResolved(source string) {
	m.inc("location_sources", source)
}

func (m *InMemoryRecorder) IncProviderAttempt(provider, outcome string) {
	m.inc("provider_attempts", provider+"/"+outcome)
}

func (m *InMemoryRecorder) IncLocationCacheHit() {
	atomic.AddUint64(&m.locationCacheHits, 1)
}

func (m *InMemoryRecorder) IncRedirectDecision(kind string) {
	m.inc("redirect_decisions", kind)
}

func (m *InMemoryRecorder) IncReportSubmitted(sink, status string) {
	m.inc("reports_submitted", sink+"/"+status)
}

func (m *InMemoryRecorder) IncReportProcessed(status string) {
	m.inc("reports_processed", status)
}

// ObserveReportBatchSize is not tracked in memory.
func (m *InMemoryRecorder) ObserveReportBatchSize(int) {}

func (m *InMemoryRecorder) SetReportQueueDepth(depth int64) {
	atomic.StoreInt64(&m.reportQueueDepth, depth)
}

func (m *InMemoryRecorder) IncRateLimited() {
	atomic.AddUint64(&m.rateLimited, 1)
}
