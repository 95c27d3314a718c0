package strategy

import (
	"time"

	"prediction-engine/pkg/types"
)

// Exit thresholds. TP and SL are expressed on the YES probability axis; the
// NO side mirrors them around 0.5.
const (
	takeProfitYes = 0.85
	stopLossYes   = 0.35
	takeProfitNo  = 1 - takeProfitYes
	stopLossNo    = 1 - stopLossYes

	// Score decay only applies to entries that had a meaningful score.
	scoreDecayFloor = 10.0
	scoreDecayRatio = 0.5
)

// LifecycleConfig carries the configurable parts of exit evaluation.
type LifecycleConfig struct {
	PositionTimeout time.Duration
	CloseFrozen     bool
}

// ExitDecision says whether a position closes this cycle and at what
// probability the PnL is marked.
type ExitDecision struct {
	Close           bool
	Reason          types.ExitReason
	ExitProbability float64
}

// EvaluateExit runs the exit rules for one open position against the current
// market state. Terminal market states are checked before price rules: a
// resolved market pays out regardless of where TP or SL sat.
func EvaluateExit(pos types.Position, m types.Market, currentScore float64, cfg LifecycleConfig, now time.Time) ExitDecision {
	switch m.Status {
	case types.MarketInvalid:
		// Voided market: unwind at entry so PnL is exactly zero.
		return ExitDecision{Close: true, Reason: types.ExitMarketInvalid, ExitProbability: pos.EntryProbability}
	case types.MarketResolved:
		if m.Outcome == nil {
			// Resolved upstream without a published outcome: flat close.
			return ExitDecision{Close: true, Reason: types.ExitResolved, ExitProbability: pos.EntryProbability}
		}
		exit := 0.0
		if *m.Outcome == types.SideYes {
			exit = 1.0
		}
		return ExitDecision{Close: true, Reason: types.ExitResolved, ExitProbability: exit}
	case types.MarketFrozen:
		if cfg.CloseFrozen {
			return ExitDecision{Close: true, Reason: types.ExitManual, ExitProbability: m.Probability}
		}
		return ExitDecision{}
	}

	p := m.Probability
	if pos.Side == types.SideYes {
		if p >= takeProfitYes {
			return ExitDecision{Close: true, Reason: types.ExitTakeProfit, ExitProbability: p}
		}
		if p <= stopLossYes {
			return ExitDecision{Close: true, Reason: types.ExitStopLoss, ExitProbability: p}
		}
	} else {
		if p <= takeProfitNo {
			return ExitDecision{Close: true, Reason: types.ExitTakeProfit, ExitProbability: p}
		}
		if p >= stopLossNo {
			return ExitDecision{Close: true, Reason: types.ExitStopLoss, ExitProbability: p}
		}
	}

	if now.Sub(pos.OpenedAt) >= cfg.PositionTimeout {
		return ExitDecision{Close: true, Reason: types.ExitTimeout, ExitProbability: p}
	}

	if pos.EntryScore >= scoreDecayFloor && currentScore < pos.EntryScore*scoreDecayRatio {
		return ExitDecision{Close: true, Reason: types.ExitScoreDecay, ExitProbability: p}
	}

	return ExitDecision{}
}

// ShouldFlip reports whether a fresh decision reverses an open position:
// opposite side with confidence at or above the flip threshold. The flip
// closes the old position (reason FLIP) and opens the new side in the same
// cycle.
func ShouldFlip(pos types.Position, decision types.TradeDecision, flipConfidence float64) bool {
	return decision.Side == pos.Side.Opposite() && decision.Confidence >= flipConfidence
}

// PnL marks a position at an exit probability. Direction is +1 for YES and
// -1 for NO, so a YES position gains when probability rises.
func PnL(side types.Side, entry, exit, sizeUSD float64) float64 {
	return side.Direction() * (exit - entry) * sizeUSD
}
