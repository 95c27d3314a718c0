package engine

import (
	"sort"
	"sync"
	"time"

	"prediction-engine/pkg/types"
)

// emptySetGrace is how long an empty cached trade set is distrusted. Right
// after a cycle opens trades the cache may still hold the pre-cycle empty
// list; within the grace window an empty hit is treated as a miss so readers
// see the fresh state.
const emptySetGrace = 10 * time.Second

// tradeCache memoizes each agent's open-trade list keyed by the market set
// it was computed against. A hit requires both freshness and an identical
// sorted market-id set: if the market universe shifted, the cached list may
// reference markets that no longer exist.
type tradeCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[types.AgentID]tradeCacheEntry
}

type tradeCacheEntry struct {
	trades    []types.Trade
	marketIDs []string // sorted
	storedAt  time.Time
}

func newTradeCache(ttl time.Duration) *tradeCache {
	return &tradeCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[types.AgentID]tradeCacheEntry),
	}
}

// get returns the cached trades when the entry is fresh and was computed
// against the same market set.
func (c *tradeCache) get(agent types.AgentID, marketIDs []string) ([]types.Trade, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[agent]
	if !ok {
		return nil, false
	}
	age := c.now().Sub(e.storedAt)
	if age >= c.ttl {
		return nil, false
	}
	if len(e.trades) == 0 && age < emptySetGrace {
		return nil, false
	}
	if !equalSorted(e.marketIDs, sortedIDs(marketIDs)) {
		return nil, false
	}
	return e.trades, true
}

// put stores the agent's trade list with the market set it reflects.
func (c *tradeCache) put(agent types.AgentID, marketIDs []string, trades []types.Trade) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[agent] = tradeCacheEntry{
		trades:    trades,
		marketIDs: sortedIDs(marketIDs),
		storedAt:  c.now(),
	}
}

// invalidate drops one agent's entry, called after any trade mutation.
func (c *tradeCache) invalidate(agent types.AgentID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, agent)
}

func sortedIDs(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	sort.Strings(out)
	return out
}

func equalSorted(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
