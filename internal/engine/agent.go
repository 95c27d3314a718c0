package engine

import (
	"context"
	"fmt"
	"time"

	"prediction-engine/internal/determinism"
	"prediction-engine/internal/llm"
	"prediction-engine/internal/obs"
	"prediction-engine/internal/scoring"
	"prediction-engine/internal/strategy"
	"prediction-engine/pkg/types"
)

// cycleSnapshot is the shared read-only state every agent sees in one cycle.
type cycleSnapshot struct {
	cycle    int
	markets  []types.Market
	articles []types.NewsArticle
	byID     map[string]types.Market
	probs    map[string]float64
}

// runAgentCycle runs exits, mark-to-market, risk, and entries for one agent.
// Panics and store errors are captured into the record; the other agents
// never see them. Any failure rolls the agent's in-memory state back to the
// cycle's start, so a later cycle retries from the last persisted state.
func (e *Engine) runAgentCycle(ctx context.Context, profile types.AgentProfile, snap cycleSnapshot) (rec obs.AgentCycleRecord) {
	start := e.now()
	rec.AgentID = profile.ID

	e.mu.RLock()
	p := e.portfolios[profile.ID]
	e.mu.RUnlock()

	checkpoint := p.Clone()
	savedOpen := e.openTradesFor(profile.ID)

	defer func() {
		if r := recover(); r != nil {
			rec.Error = fmt.Sprintf("agent cycle panic: %v", r)
			e.logger.Error("agent cycle panicked", "agent", profile.ID, "panic", r)
		}
		if rec.Error != "" {
			e.rollbackAgent(profile.ID, checkpoint, savedOpen)
			rec.NewTrades = 0
			rec.ClosedTrades = 0
			rec.OpenPositions = len(checkpoint.OpenPositions)
			rec.EquityUSD = checkpoint.Equity()
			rec.DrawdownPct = strategy.Drawdown(checkpoint)
		}
		rec.CycleMs = e.now().Sub(start).Milliseconds()
	}()

	adaptive := e.adaptive.Current(profile.ID)
	lifecycle := strategy.LifecycleConfig{
		PositionTimeout: e.cfg.Engine.PositionTimeout,
		CloseFrozen:     e.cfg.Engine.CloseFrozen,
	}

	closed, err := e.processExits(profile, p, snap, adaptive, lifecycle)
	rec.ClosedTrades = closed
	if err != nil {
		rec.Error = err.Error()
		return rec
	}

	strategy.MarkToMarket(p, snap.probs, e.now())
	e.riskMgr.Evaluate(p)

	candidates := scoring.FilterCandidates(snap.markets, profile)
	rec.CandidateMarkets = len(candidates)

	ranked := scoring.RankByScore(candidates, snap.articles, profile, adaptive, e.now())
	if e.riskMgr.CanOpen(profile.ID) {
		opened, flipped, err := e.processEntries(ctx, profile, p, ranked, snap, adaptive)
		rec.NewTrades = opened
		rec.ClosedTrades += flipped
		if err != nil {
			rec.Error = err.Error()
			return rec
		}
	}

	if err := e.persistAgent(p); err != nil {
		rec.Error = err.Error()
		return rec
	}
	e.publishSnapshot(profile.ID, p)

	rec.OpenPositions = len(p.OpenPositions)
	rec.EquityUSD = p.Equity()
	rec.DrawdownPct = strategy.Drawdown(p)
	return rec
}

// processExits runs the exit rules over every open position. Positions whose
// markets vanished from the snapshot are held at their entry mark until the
// market reappears or times out. Stops on the first persistence failure.
func (e *Engine) processExits(
	profile types.AgentProfile,
	p *types.AgentPortfolio,
	snap cycleSnapshot,
	adaptive *types.AdaptiveConfig,
	lifecycle strategy.LifecycleConfig,
) (int, error) {
	now := e.now()
	closed := 0
	for marketID, pos := range p.OpenPositions {
		m, ok := snap.byID[marketID]
		if !ok {
			if now.Sub(pos.OpenedAt) >= lifecycle.PositionTimeout {
				if err := e.closeTrade(p, profile.ID, marketID, types.ExitTimeout, pos.EntryProbability, now); err != nil {
					return closed, err
				}
				closed++
			}
			continue
		}

		currentScore := scoring.Score(m, snap.articles, profile, adaptive, now).Score
		exit := strategy.EvaluateExit(pos, m, currentScore, lifecycle, now)
		if exit.Close {
			if err := e.closeTrade(p, profile.ID, marketID, exit.Reason, exit.ExitProbability, now); err != nil {
				return closed, err
			}
			closed++
		}
	}
	return closed, nil
}

// processEntries walks the ranked candidates best first, deciding, shaping
// through the personality rules, flipping, and opening until the agent's
// trade slots are full. Returns opened trades and flip closes; stops on the
// first persistence failure.
func (e *Engine) processEntries(
	ctx context.Context,
	profile types.AgentProfile,
	p *types.AgentPortfolio,
	ranked []types.ScoredMarket,
	snap cycleSnapshot,
	adaptive *types.AdaptiveConfig,
) (opened, flipped int, err error) {
	now := e.now()
	for _, sm := range ranked {
		if pos, held := p.OpenPositions[sm.ID]; held {
			decision, seed := e.decide(ctx, profile, sm, snap)
			eff := strategy.Personality(sm, now)
			decision = eff.Shape(decision)
			if !strategy.ShouldFlip(pos, decision, e.cfg.Engine.FlipConfidence) {
				continue
			}
			if err := e.closeTrade(p, profile.ID, sm.ID, types.ExitFlip, sm.Probability, now); err != nil {
				return opened, flipped, err
			}
			flipped++
			ok, err := e.openTrade(p, profile, sm, decision, seed, adaptive, eff.SizeMultiplier, snap.cycle)
			if err != nil {
				return opened, flipped, err
			}
			if ok {
				opened++
			}
			continue
		}

		if len(p.OpenPositions) >= profile.MaxTrades {
			continue
		}

		decision, seed := e.decide(ctx, profile, sm, snap)
		eff := strategy.Personality(sm, now)
		decision = eff.Shape(decision)
		ok, err := e.openTrade(p, profile, sm, decision, seed, adaptive, eff.SizeMultiplier, snap.cycle)
		if err != nil {
			return opened, flipped, err
		}
		if ok {
			opened++
		}
	}
	return opened, flipped, nil
}

// decide returns the decision for one (agent, market) pair: cache, then
// model, then deterministic fallback. The seed is returned so the trade
// records how its decision could be replayed.
func (e *Engine) decide(ctx context.Context, profile types.AgentProfile, sm types.ScoredMarket, snap cycleSnapshot) (types.TradeDecision, string) {
	seed := determinism.Seed(profile.ID, sm.ID, snap.cycle)

	if d, ok := e.decisions.Get(profile.ID, sm.ID); ok {
		e.metrics.CacheHit("decision")
		return d, seed
	}
	e.metrics.CacheMiss("decision")

	if client, ok := e.clients[profile.ID]; ok {
		req := llm.DecisionRequest{
			Market:  sm,
			News:    scoring.MatchingArticles(sm.Question, snap.articles, 5),
			Profile: profile,
		}
		if e.search != nil && e.search.Enabled() {
			req.Search = e.search.SearchWeb(ctx, sm.Question)
		}

		d, err := client.Decide(ctx, req)
		if err == nil {
			e.metrics.AdapterSuccess("llm:" + string(profile.ID))
			e.decisions.Put(profile.ID, sm.ID, d)
			return d, seed
		}
		e.metrics.AdapterFailure("llm:"+string(profile.ID), err)
	}

	d := strategy.FallbackDecision(seed, sm, profile)
	e.decisions.Put(profile.ID, sm.ID, d)
	return d, seed
}

// openTrade sizes and opens the position and persists the trade row.
// Returns false when sizing drops the entry.
func (e *Engine) openTrade(
	p *types.AgentPortfolio,
	profile types.AgentProfile,
	sm types.ScoredMarket,
	decision types.TradeDecision,
	seed string,
	adaptive *types.AdaptiveConfig,
	sizeMultiplier float64,
	cycle int,
) (bool, error) {
	now := e.now()
	size, ok := strategy.PositionSize(sm, decision, profile, adaptive, p, sizeMultiplier)
	if !ok {
		return false, nil
	}

	trade := types.Trade{
		ID:               fmt.Sprintf("%s:%s:%d", profile.ID, sm.ID, cycle),
		AgentID:          profile.ID,
		MarketID:         sm.ID,
		Side:             decision.Side,
		SizeUSD:          size,
		EntryProbability: sm.Probability,
		EntryScore:       sm.Score,
		Confidence:       decision.Confidence,
		Status:           types.TradeOpen,
		OpenedAt:         now,
		Reasoning:        decision.Reasoning,
		Seed:             seed,
	}

	strategy.OpenPosition(p, trade, sm.Category)

	e.mu.Lock()
	e.openTrades[types.TradeKey(profile.ID, sm.ID)] = trade
	e.mu.Unlock()

	// Memory first, store second: if this write fails the rollback discards
	// the in-memory entry and the store never saw the trade.
	if err := e.store.SaveTrade(trade); err != nil {
		return false, fmt.Errorf("persist trade %s: %w", trade.ID, err)
	}
	e.trades.invalidate(profile.ID)

	e.logger.Info("trade opened",
		"agent", profile.ID,
		"market", sm.ID,
		"side", trade.Side,
		"size_usd", fmt.Sprintf("%.2f", size),
		"confidence", fmt.Sprintf("%.2f", decision.Confidence))
	return true, nil
}

// closeTrade realizes the position and finalizes its trade row.
func (e *Engine) closeTrade(p *types.AgentPortfolio, agent types.AgentID, marketID string, reason types.ExitReason, exitProbability float64, now time.Time) error {
	pnl, ok := strategy.ClosePosition(p, marketID, exitProbability, now)
	if !ok {
		return nil
	}

	key := types.TradeKey(agent, marketID)
	e.mu.Lock()
	trade, found := e.openTrades[key]
	delete(e.openTrades, key)
	e.mu.Unlock()
	if !found {
		return nil
	}

	trade.Status = types.TradeClosed
	trade.PnLUSD = &pnl
	trade.ClosedAt = &now
	trade.ExitReason = reason

	if err := e.store.SaveTrade(trade); err != nil {
		return fmt.Errorf("persist trade close %s: %w", trade.ID, err)
	}
	e.trades.invalidate(agent)

	e.logger.Info("trade closed",
		"agent", agent,
		"market", marketID,
		"reason", reason,
		"pnl_usd", fmt.Sprintf("%.2f", pnl))
	return nil
}
