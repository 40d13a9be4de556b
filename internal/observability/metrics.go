package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters for the API and the polling engine.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	engineCount  map[string]int64
	cycles       int64
	lastCycle    time.Time
	lastDuration time.Duration
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		engineCount:  make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + strconv.Itoa(status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// Incr bumps an engine counter such as "ingest.created" by n.
func (m *Metrics) Incr(name string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engineCount[name] += int64(n)
}

// RecordCycle notes the completion of one polling cycle.
func (m *Metrics) RecordCycle(started time.Time, duration time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles++
	m.lastCycle = started
	m.lastDuration = duration
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Requests          map[string]int64 `json:"requests"`
	Errors            map[string]int64 `json:"errors"`
	Engine            map[string]int64 `json:"engine"`
	Cycles            int64            `json:"cycles"`
	LastCycleAt       *time.Time       `json:"last_cycle_at,omitempty"`
	LastCycleDuration string           `json:"last_cycle_duration,omitempty"`
}

// Snapshot copies the counters.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{
		Requests: copyCounts(m.requestCount),
		Errors:   copyCounts(m.errorCount),
		Engine:   copyCounts(m.engineCount),
		Cycles:   m.cycles,
	}
	if !m.lastCycle.IsZero() {
		last := m.lastCycle
		snap.LastCycleAt = &last
		snap.LastCycleDuration = m.lastDuration.String()
	}
	return snap
}

// EngineCounter returns a single engine counter.
func (m *Metrics) EngineCounter(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engineCount[name]
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
