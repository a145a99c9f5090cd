package metrics

import (
	"sync"
	"time"
)

// taskCounters is the per-task slice of Metrics.
type taskCounters struct {
	Requests  int64
	Failures  int64
	CacheHits int64
}

type Metrics struct {
	mu sync.RWMutex

	// Counters
	tasks               map[string]*taskCounters
	MessagesPersisted   int64
	PersistenceFailures int64

	// Timings
	LastProcessingTime    time.Duration
	AverageProcessingTime time.Duration
	TotalProcessingTime   time.Duration
	ProcessingCount       int64

	// Status
	StartedAt     time.Time
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = New()

func New() *Metrics {
	return &Metrics{
		tasks:     make(map[string]*taskCounters),
		StartedAt: time.Now(),
		IsHealthy: true,
	}
}

// task must be called with mu held.
func (m *Metrics) task(name string) *taskCounters {
	tc, ok := m.tasks[name]
	if !ok {
		tc = &taskCounters{}
		m.tasks[name] = tc
	}
	return tc
}

func (m *Metrics) IncrementRequests(task string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.task(task).Requests++
}

func (m *Metrics) IncrementCacheHits(task string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.task(task).CacheHits++
}

func (m *Metrics) IncrementMessagesPersisted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesPersisted++
}

func (m *Metrics) IncrementPersistenceFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PersistenceFailures++
}

// RecordFailure counts a failed task and marks the service unhealthy until
// the next success.
func (m *Metrics) RecordFailure(task string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.task(task).Failures++
	m.LastError = err.Error()
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

// RecordSuccess records a completed task and its duration.
func (m *Metrics) RecordSuccess(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastProcessingTime = duration
	m.TotalProcessingTime += duration
	m.ProcessingCount++
	m.AverageProcessingTime = m.TotalProcessingTime / time.Duration(m.ProcessingCount)
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tasks := make(map[string]interface{}, len(m.tasks))
	for name, tc := range m.tasks {
		tasks[name] = map[string]int64{
			"requests":   tc.Requests,
			"failures":   tc.Failures,
			"cache_hits": tc.CacheHits,
		}
	}

	stats := map[string]interface{}{
		"tasks":                      tasks,
		"messages_persisted":         m.MessagesPersisted,
		"persistence_failures":       m.PersistenceFailures,
		"last_processing_time_ms":    m.LastProcessingTime.Milliseconds(),
		"average_processing_time_ms": m.AverageProcessingTime.Milliseconds(),
		"uptime_seconds":             int64(time.Since(m.StartedAt).Seconds()),
		"last_error":                 m.LastError,
		"is_healthy":                 m.IsHealthy,
	}
	if !m.LastRunTime.IsZero() {
		stats["last_run_time"] = m.LastRunTime.Format(time.RFC3339)
	}
	if !m.LastErrorTime.IsZero() {
		stats["last_error_time"] = m.LastErrorTime.Format(time.RFC3339)
	}
	return stats
}
