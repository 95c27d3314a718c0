package leaderboard

import (
	"sort"

	"prediction-engine/pkg/types"
)

// conflictThreshold marks a market as contested when agreement falls under
// it while both sides hold positions.
const conflictThreshold = 0.60

// openStake is one agent's live position feeding consensus.
type openStake struct {
	side       types.Side
	confidence float64
}

// BuildConsensus aggregates every agent's open positions per market. Markets
// with a single participant still get a record (agreement 1.0, no conflict).
// Records come back sorted by market id for stable output.
func BuildConsensus(portfolios []*types.AgentPortfolio, trades map[string]types.Trade, questions map[string]string) []types.ConsensusRecord {
	stakes := make(map[string][]openStake)
	for _, p := range portfolios {
		for marketID, pos := range p.OpenPositions {
			confidence := 0.0
			if t, ok := trades[types.TradeKey(p.AgentID, marketID)]; ok {
				confidence = t.Confidence
			}
			stakes[marketID] = append(stakes[marketID], openStake{side: pos.Side, confidence: confidence})
		}
	}

	records := make([]types.ConsensusRecord, 0, len(stakes))
	for marketID, list := range stakes {
		var yes, no int
		var confTotal float64
		for _, s := range list {
			if s.side == types.SideYes {
				yes++
			} else {
				no++
			}
			confTotal += s.confidence
		}

		majority := types.SideYes
		if no > yes {
			majority = types.SideNo
		}
		top := yes
		if no > top {
			top = no
		}
		agreement := float64(top) / float64(yes+no)

		records = append(records, types.ConsensusRecord{
			MarketID:      marketID,
			Question:      questions[marketID],
			Yes:           yes,
			No:            no,
			Side:          majority,
			Agreement:     agreement,
			AvgConfidence: confTotal / float64(len(list)),
			Conflict:      yes > 0 && no > 0 && agreement < conflictThreshold,
		})
	}

	sort.Slice(records, func(i, j int) bool { return records[i].MarketID < records[j].MarketID })
	return records
}
