// Package determinism provides the stable primitives every decision in the
// engine is derived from: seed strings, a 32-bit avalanche hash, uniform
// pseudo-random draws, and clamping.
//
// The contract is strict: identical inputs yield identical outputs across
// process restarts, and no other source of randomness may influence trading
// decisions. This is what makes a Trade reproducible from
// (agentId, marketId, index).
package determinism

import (
	"hash/fnv"
	"strconv"
	"strings"

	"prediction-engine/pkg/types"
)

// Seed builds the canonical cache/idempotency key for a decision:
// "agentId:marketId:index".
func Seed(agent types.AgentID, marketID string, index int) string {
	var b strings.Builder
	b.WriteString(string(agent))
	b.WriteByte(':')
	b.WriteString(marketID)
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(index))
	return b.String()
}

// Hash32 is the fixed 32-bit FNV-1a hash used for jitter and pseudo-random
// draws. FNV never fails, so the error return is ignored.
func Hash32(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

// Draw01 maps a seed to a deterministic uniform value in [0, 1).
func Draw01(seed string) float64 {
	return float64(Hash32(seed)) / (1 << 32)
}

// Clamp bounds x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
