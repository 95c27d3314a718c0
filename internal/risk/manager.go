// Package risk enforces the per-agent drawdown stop.
//
// Each agent's portfolio is evaluated once per cycle. A drawdown of 40% or
// more from the equity high-water mark puts the agent in cooldown: open
// positions keep running their exit rules, but no new entries are allowed.
// Cooldown lifts when drawdown recovers under 30% or the cooldown duration
// elapses, whichever comes first.
package risk

import (
	"log/slog"
	"sync"
	"time"

	"prediction-engine/internal/obs"
	"prediction-engine/internal/strategy"
	"prediction-engine/pkg/types"
)

const (
	drawdownStopPct   = 0.40
	drawdownResumePct = 0.30
)

type cooldownState struct {
	active bool
	until  time.Time
}

// Manager tracks cooldown state for every agent.
type Manager struct {
	cooldownDuration time.Duration
	metrics          *obs.Metrics
	logger           *slog.Logger
	now              func() time.Time

	mu        sync.Mutex
	cooldowns map[types.AgentID]cooldownState
}

func NewManager(cooldownDuration time.Duration, metrics *obs.Metrics, logger *slog.Logger) *Manager {
	return &Manager{
		cooldownDuration: cooldownDuration,
		metrics:          metrics,
		logger:           logger.With("component", "risk"),
		now:              time.Now,
		cooldowns:        make(map[types.AgentID]cooldownState),
	}
}

// Evaluate updates the agent's cooldown from its marked portfolio and
// mirrors the state onto the portfolio for persistence and the read API.
func (rm *Manager) Evaluate(p *types.AgentPortfolio) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	now := rm.now()
	dd := strategy.Drawdown(p)
	state := rm.cooldowns[p.AgentID]

	switch {
	case state.active && (dd < drawdownResumePct || now.After(state.until)):
		state = cooldownState{}
		rm.logger.Info("drawdown cooldown lifted", "agent", p.AgentID, "drawdown", dd)
	case !state.active && dd >= drawdownStopPct:
		state = cooldownState{active: true, until: now.Add(rm.cooldownDuration)}
		rm.logger.Warn("drawdown stop tripped",
			"agent", p.AgentID, "drawdown", dd, "cooldown_until", state.until)
	}
	rm.cooldowns[p.AgentID] = state

	if state.active {
		until := state.until
		p.CooldownUntil = &until
	} else {
		p.CooldownUntil = nil
	}
	rm.metrics.SetDrawdownStop(p.AgentID, state.active)
}

// CanOpen reports whether the agent may open new positions.
func (rm *Manager) CanOpen(agent types.AgentID) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return !rm.cooldowns[agent].active
}

// Restore seeds cooldown state from a persisted portfolio on startup.
func (rm *Manager) Restore(p *types.AgentPortfolio) {
	if p.CooldownUntil == nil {
		return
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.now().Before(*p.CooldownUntil) {
		rm.cooldowns[p.AgentID] = cooldownState{active: true, until: *p.CooldownUntil}
	}
}
