package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"prediction-engine/internal/leaderboard"
	"prediction-engine/pkg/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser dashboards connect cross-origin; auth is out of scope for the
	// read-only surface.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// handleHealth reports liveness plus the scheduler's vital signs.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":        "ok",
		"cycles_run":    s.metrics.CyclesRun(),
		"ticks_skipped": s.metrics.TicksSkipped(),
	}
	if last := s.metrics.LastCycle(); last != nil {
		resp["last_cycle_at"] = last.StartedAt
		resp["last_cycle_ms"] = last.DurationMs
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// AgentProfileView is the public shape of an agent's identity, keyed by the
// frontend id.
type AgentProfileView struct {
	ID              string           `json:"id"`
	InternalID      types.AgentID    `json:"internal_id"`
	DisplayName     string           `json:"display_name"`
	Risk            types.RiskLevel  `json:"risk"`
	MaxTrades       int              `json:"max_trades"`
	FocusCategories []types.Category `json:"focus_categories"`
	Enabled         bool             `json:"enabled"`
}

func profileView(p types.AgentProfile) AgentProfileView {
	return AgentProfileView{
		ID:              p.ID.FrontendID(),
		InternalID:      p.ID,
		DisplayName:     p.DisplayName,
		Risk:            p.Risk,
		MaxTrades:       p.MaxTrades,
		FocusCategories: p.FocusCategories,
		Enabled:         p.Enabled,
	}
}

// profileFor resolves a frontend id against the configured roster.
func (s *Server) profileFor(frontendID string) (types.AgentProfile, bool) {
	agent, ok := types.AgentFromFrontendID(frontendID)
	if !ok {
		return types.AgentProfile{}, false
	}
	for _, p := range s.engine.Profiles() {
		if p.ID == agent {
			return p, true
		}
	}
	return types.AgentProfile{}, false
}

// handleAgentTrades serves GET /api/agents/{agentId}/trades. The path takes
// the frontend id (grok, gpt5, ...); unknown ids are 404.
func (s *Server) handleAgentTrades(w http.ResponseWriter, r *http.Request) {
	frontendID := chi.URLParam(r, "agentId")
	profile, ok := s.profileFor(frontendID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown agent: "+frontendID)
		return
	}

	trades, err := s.engine.AgentTrades(profile.ID)
	if err != nil {
		s.logger.Error("trades lookup failed", "agent", profile.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "trade lookup failed")
		return
	}
	if trades == nil {
		trades = []types.Trade{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"agent":  profileView(profile),
		"trades": trades,
	})
}

// handleAgentsSummary serves GET /api/agents/summary?window=30d. The window
// defaults to all-time; unknown windows are 400.
func (s *Server) handleAgentsSummary(w http.ResponseWriter, r *http.Request) {
	window := leaderboard.WindowAll
	if q := r.URL.Query().Get("window"); q != "" {
		found := false
		for _, known := range leaderboard.AllWindows() {
			if q == string(known) {
				window = known
				found = true
				break
			}
		}
		if !found {
			s.writeError(w, http.StatusBadRequest, "unknown window: "+q)
			return
		}
	}

	summaries, err := s.engine.Summaries(window)
	if err != nil {
		s.logger.Error("summary build failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "summary build failed")
		return
	}
	if summaries == nil {
		summaries = []leaderboard.AgentSummary{}
	}

	profiles := s.engine.Profiles()
	names := make(map[types.AgentID]string, len(profiles))
	tradesByAgent := make(map[string][]types.Trade, len(profiles))
	for _, p := range profiles {
		names[p.ID] = p.DisplayName
		trades, err := s.engine.AgentTrades(p.ID)
		if err != nil {
			s.logger.Error("trades lookup failed", "agent", p.ID, "error", err)
			s.writeError(w, http.StatusInternalServerError, "trade lookup failed")
			return
		}
		if trades == nil {
			trades = []types.Trade{}
		}
		tradesByAgent[p.ID.FrontendID()] = trades
	}

	totals := struct {
		PnLUSD      float64 `json:"pnl_usd"`
		OpenCount   int     `json:"open_count"`
		ClosedCount int     `json:"closed_count"`
		BestAgent   string  `json:"best_agent"`
	}{}
	described := make(map[string]string, len(summaries))
	for _, sum := range summaries {
		totals.PnLUSD += sum.RealizedPnLUSD
		totals.OpenCount += sum.OpenPositions
		totals.ClosedCount += sum.TradesCount
		described[sum.FrontendID] = leaderboard.Describe(names[sum.AgentID], sum)
	}
	if len(summaries) > 0 {
		// Summaries arrive ranked, best first.
		totals.BestAgent = summaries[0].FrontendID
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"window":          window,
		"agents":          summaries,
		"trades_by_agent": tradesByAgent,
		"totals":          totals,
		"summaries":       described,
	})
}

// handleConsensus serves GET /api/consensus.
func (s *Server) handleConsensus(w http.ResponseWriter, r *http.Request) {
	records := s.engine.Consensus()
	if records == nil {
		records = []types.ConsensusRecord{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"markets": records})
}

// handleWebSocket upgrades the connection and attaches it to the hub.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	newStreamClient(s.hub, conn)
}
