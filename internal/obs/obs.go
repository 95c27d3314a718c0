// Package obs collects the engine's structured cycle records, counters, and
// alert predicates.
//
// Every adapter reports cache hits/misses and failures here; the scheduler
// emits one CycleRecord per cycle. Nothing in this package blocks: it is a
// mutex-guarded in-memory ledger the read API and the log layer sample from.
package obs

import (
	"log/slog"
	"sync"
	"time"

	"prediction-engine/pkg/types"
)

// AgentCycleRecord captures one agent's outcome within a cycle.
type AgentCycleRecord struct {
	AgentID          types.AgentID `json:"agent_id"`
	CandidateMarkets int           `json:"candidate_markets"`
	NewTrades        int           `json:"new_trades"`
	ClosedTrades     int           `json:"closed_trades"`
	OpenPositions    int           `json:"open_positions"`
	EquityUSD        float64       `json:"equity_usd"`
	DrawdownPct      float64       `json:"drawdown_pct"`
	CycleMs          int64         `json:"cycle_ms"`
	Error            string        `json:"error,omitempty"`
}

// CycleRecord is the structured record of one full scheduler cycle.
type CycleRecord struct {
	StartedAt  time.Time          `json:"started_at"`
	DurationMs int64              `json:"duration_ms"`
	Markets    int                `json:"markets"`
	News       int                `json:"news"`
	Agents     []AgentCycleRecord `json:"agents"`
}

type adapterStats struct {
	hits        int64
	misses      int64
	failures    int64
	consecutive int
	rejects     int64
	lastFailure time.Time
	lastSuccess time.Time
}

// Metrics is the process-wide observability ledger.
type Metrics struct {
	mu       sync.Mutex
	logger   *slog.Logger
	adapters map[string]*adapterStats

	cyclesRun     int64
	ticksSkipped  int64
	lastCycle     *CycleRecord
	lastCandidate time.Time // last time any agent had candidateMarkets > 0

	drawdownStops map[types.AgentID]bool
}

// NewMetrics creates an empty ledger.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger:        logger.With("component", "obs"),
		adapters:      make(map[string]*adapterStats),
		drawdownStops: make(map[types.AgentID]bool),
		lastCandidate: time.Now(),
	}
}

func (m *Metrics) adapter(name string) *adapterStats {
	st, ok := m.adapters[name]
	if !ok {
		st = &adapterStats{}
		m.adapters[name] = st
	}
	return st
}

// CacheHit records a cache hit for an adapter.
func (m *Metrics) CacheHit(adapter string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adapter(adapter).hits++
}

// CacheMiss records a cache miss for an adapter.
func (m *Metrics) CacheMiss(adapter string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adapter(adapter).misses++
}

// AdapterFailure records an upstream failure and advances the consecutive
// failure counter used by the alert predicate.
func (m *Metrics) AdapterFailure(adapter string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.adapter(adapter)
	st.failures++
	st.consecutive++
	st.lastFailure = time.Now()
	m.logger.Warn("adapter failure", "adapter", adapter, "error", err, "consecutive", st.consecutive)
}

// AdapterSuccess resets the consecutive failure streak.
func (m *Metrics) AdapterSuccess(adapter string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.adapter(adapter)
	st.consecutive = 0
	st.lastSuccess = time.Now()
}

// RecordRejects counts upstream records dropped during normalization.
func (m *Metrics) RecordRejects(adapter string, n int) {
	if n == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adapter(adapter).rejects += int64(n)
}

// HitRatio returns an adapter's cache hit ratio (0 when it has no traffic).
func (m *Metrics) HitRatio(adapter string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.adapter(adapter)
	total := st.hits + st.misses
	if total == 0 {
		return 0
	}
	return float64(st.hits) / float64(total)
}

// RecordCycle stores the latest cycle record and feeds the
// no-candidates alert window.
func (m *Metrics) RecordCycle(rec CycleRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cyclesRun++
	m.lastCycle = &rec
	for _, a := range rec.Agents {
		if a.CandidateMarkets > 0 {
			m.lastCandidate = rec.StartedAt
			break
		}
	}
	m.logger.Info("cycle complete",
		"duration_ms", rec.DurationMs,
		"markets", rec.Markets,
		"news", rec.News,
		"agents", len(rec.Agents),
	)
}

// RecordSkippedTick counts a scheduler tick dropped because a cycle was
// still in flight.
func (m *Metrics) RecordSkippedTick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticksSkipped++
}

// SetDrawdownStop flags or clears an agent's max-drawdown stop.
func (m *Metrics) SetDrawdownStop(agent types.AgentID, stopped bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drawdownStops[agent] = stopped
}

// LastCycle returns the most recent cycle record (nil before the first cycle).
func (m *Metrics) LastCycle() *CycleRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCycle
}

// CyclesRun returns the number of completed cycles.
func (m *Metrics) CyclesRun() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cyclesRun
}

// TicksSkipped returns the number of dropped scheduler ticks.
func (m *Metrics) TicksSkipped() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ticksSkipped
}

// ————————————————————————————————————————————————————————————————————————
// Alert predicates
// ————————————————————————————————————————————————————————————————————————

// AlertConsecutiveFailures reports whether an adapter has failed n or more
// times in a row.
func (m *Metrics) AlertConsecutiveFailures(adapter string, n int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adapter(adapter).consecutive >= n
}

// AlertNoCandidates reports whether every agent has had zero candidate
// markets for longer than the given window.
func (m *Metrics) AlertNoCandidates(window time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Since(m.lastCandidate) > window
}

// AlertDrawdownStop reports whether any agent is at or above the
// max-drawdown stop.
func (m *Metrics) AlertDrawdownStop() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, stopped := range m.drawdownStops {
		if stopped {
			return true
		}
	}
	return false
}
