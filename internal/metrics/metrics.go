package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	EntriesFetched     int64
	SourceFailures     int64
	DuplicatesFiltered int64
	StoreErrors        int64
	EntriesSelected    int64
	StarvedSections    int64
	DigestsBuilt       int64
	MessagesSent       int64
	MessagesFailed     int64

	// Timings
	LastBuildTime    time.Duration
	AverageBuildTime time.Duration
	TotalBuildTime   time.Duration

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = New()

func New() *Metrics {
	return &Metrics{IsHealthy: true}
}

func (m *Metrics) add(counter *int64, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*counter += int64(n)
}

func (m *Metrics) AddEntriesFetched(n int) { m.add(&m.EntriesFetched, n) }
func (m *Metrics) IncrementSourceFailures() { m.add(&m.SourceFailures, 1) }
func (m *Metrics) IncrementDuplicates() { m.add(&m.DuplicatesFiltered, 1) }
func (m *Metrics) IncrementStoreErrors() { m.add(&m.StoreErrors, 1) }
func (m *Metrics) AddEntriesSelected(n int) { m.add(&m.EntriesSelected, n) }
func (m *Metrics) IncrementStarvedSections() { m.add(&m.StarvedSections, 1) }
func (m *Metrics) IncrementMessagesSent() { m.add(&m.MessagesSent, 1) }
func (m *Metrics) IncrementMessagesFailed() { m.add(&m.MessagesFailed, 1) }

// RecordBuild records one finished digest build.
func (m *Metrics) RecordBuild(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DigestsBuilt++
	m.LastBuildTime = duration
	m.TotalBuildTime += duration
	m.AverageBuildTime = m.TotalBuildTime / time.Duration(m.DigestsBuilt)
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"entries_fetched":       m.EntriesFetched,
		"source_failures":       m.SourceFailures,
		"duplicates_filtered":   m.DuplicatesFiltered,
		"store_errors":          m.StoreErrors,
		"entries_selected":      m.EntriesSelected,
		"starved_sections":      m.StarvedSections,
		"digests_built":         m.DigestsBuilt,
		"messages_sent":         m.MessagesSent,
		"messages_failed":       m.MessagesFailed,
		"last_build_time_ms":    m.LastBuildTime.Milliseconds(),
		"average_build_time_ms": m.AverageBuildTime.Milliseconds(),
		"last_run_time":         m.LastRunTime.Format(time.RFC3339),
		"last_error_time":       m.LastErrorTime.Format(time.RFC3339),
		"last_error":            m.LastError,
		"is_healthy":            m.IsHealthy,
	}
}
