package llm

import (
	"sync"
	"time"

	"prediction-engine/pkg/types"
)

// DecisionCache memoizes decisions per (agent, market) pair. It exists so a
// market surviving several consecutive cycles costs one model call, not one
// per cycle.
type DecisionCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]decisionEntry
}

type decisionEntry struct {
	decision types.TradeDecision
	storedAt time.Time
}

func NewDecisionCache(ttl time.Duration) *DecisionCache {
	return &DecisionCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]decisionEntry),
	}
}

// Get returns the cached decision for the pair if it is still fresh.
func (c *DecisionCache) Get(agent types.AgentID, marketID string) (types.TradeDecision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[types.TradeKey(agent, marketID)]
	if !ok || c.now().Sub(e.storedAt) >= c.ttl {
		return types.TradeDecision{}, false
	}
	return e.decision, true
}

// Put stores a decision. Fallback decisions are cached the same way as model
// decisions; the source does not matter to the freshness contract.
func (c *DecisionCache) Put(agent types.AgentID, marketID string, d types.TradeDecision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[types.TradeKey(agent, marketID)] = decisionEntry{decision: d, storedAt: c.now()}
}

// Sweep drops expired entries. Called opportunistically from the cycle loop.
func (c *DecisionCache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := c.now().Add(-c.ttl)
	for k, e := range c.entries {
		if e.storedAt.Before(cutoff) {
			delete(c.entries, k)
		}
	}
}
