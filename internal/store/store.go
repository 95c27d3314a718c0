// Package store persists trades, portfolios, and adaptive configs in SQLite.
//
// The engine is the only writer; the read API and the tuner share the same
// handle. WAL mode keeps readers off the writer's lock. Trade rows are
// idempotent on trade id, and a CLOSED trade can never be flipped back to
// OPEN: close is terminal.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"prediction-engine/pkg/types"
)

// Store wraps the SQLite handle.
type Store struct {
	sql    *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the database at path and runs migrations.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Store{sql: sqlDB, logger: logger.With("component", "store")}
	if err := s.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	s.logger.Info("store opened", "path", path)
	return s, nil
}

func (s *Store) Close() error {
	return s.sql.Close()
}

func (s *Store) migrate() error {
	version := 0
	s.sql.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)

	if version < 1 {
		_, err := s.sql.Exec(`
			CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

			CREATE TABLE IF NOT EXISTS trades (
				id                TEXT PRIMARY KEY,
				agent_id          TEXT NOT NULL,
				market_id         TEXT NOT NULL,
				side              TEXT NOT NULL,
				size_usd          REAL NOT NULL,
				entry_probability REAL NOT NULL,
				entry_score       REAL NOT NULL,
				confidence        REAL NOT NULL,
				status            TEXT NOT NULL,
				pnl_usd           REAL,
				opened_at         TEXT NOT NULL,
				closed_at         TEXT,
				exit_reason       TEXT NOT NULL DEFAULT '',
				reasoning         TEXT NOT NULL DEFAULT '[]',
				seed              TEXT NOT NULL DEFAULT ''
			);
			CREATE INDEX IF NOT EXISTS idx_trades_agent_status ON trades(agent_id, status);
			CREATE INDEX IF NOT EXISTS idx_trades_agent_closed ON trades(agent_id, closed_at);

			CREATE TABLE IF NOT EXISTS portfolios (
				agent_id   TEXT PRIMARY KEY,
				data       TEXT NOT NULL,
				updated_at TEXT NOT NULL
			);

			CREATE TABLE IF NOT EXISTS adaptive_configs (
				agent_id        TEXT PRIMARY KEY,
				risk_multiplier REAL NOT NULL,
				category_bias   TEXT NOT NULL DEFAULT '{}',
				computed_at     TEXT NOT NULL
			);

			INSERT OR IGNORE INTO schema_version (version) VALUES (1);
		`)
		if err != nil {
			return fmt.Errorf("migration v1: %w", err)
		}
		s.logger.Info("applied migration v1")
	}
	return nil
}

// ————————————————————————————————————————————————————————————————————————
// Trades
// ————————————————————————————————————————————————————————————————————————

// SaveTrade upserts one trade. Saving the same state twice is a no-op;
// saving an OPEN state over a CLOSED row is rejected because close is
// terminal.
func (s *Store) SaveTrade(t types.Trade) error {
	var existing string
	err := s.sql.QueryRow("SELECT status FROM trades WHERE id = ?", t.ID).Scan(&existing)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("check trade %s: %w", t.ID, err)
	}
	if existing == string(types.TradeClosed) && t.Status == types.TradeOpen {
		return fmt.Errorf("trade %s is closed and cannot reopen", t.ID)
	}

	reasoning, err := json.Marshal(t.Reasoning)
	if err != nil {
		return fmt.Errorf("marshal reasoning: %w", err)
	}

	var pnl any
	if t.PnLUSD != nil {
		pnl = *t.PnLUSD
	}
	var closedAt any
	if t.ClosedAt != nil {
		closedAt = t.ClosedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err = s.sql.Exec(`
		INSERT INTO trades (id, agent_id, market_id, side, size_usd, entry_probability,
			entry_score, confidence, status, pnl_usd, opened_at, closed_at,
			exit_reason, reasoning, seed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			pnl_usd = excluded.pnl_usd,
			closed_at = excluded.closed_at,
			exit_reason = excluded.exit_reason`,
		t.ID, string(t.AgentID), t.MarketID, string(t.Side), t.SizeUSD,
		t.EntryProbability, t.EntryScore, t.Confidence, string(t.Status),
		pnl, t.OpenedAt.UTC().Format(time.RFC3339Nano), closedAt,
		string(t.ExitReason), string(reasoning), t.Seed)
	if err != nil {
		return fmt.Errorf("save trade %s: %w", t.ID, err)
	}
	return nil
}

// LoadTrades returns an agent's trades opened at or after since, oldest
// first. A zero since returns everything.
func (s *Store) LoadTrades(agent types.AgentID, since time.Time) ([]types.Trade, error) {
	rows, err := s.sql.Query(`
		SELECT id, agent_id, market_id, side, size_usd, entry_probability,
			entry_score, confidence, status, pnl_usd, opened_at, closed_at,
			exit_reason, reasoning, seed
		FROM trades
		WHERE agent_id = ? AND opened_at >= ?
		ORDER BY opened_at ASC`,
		string(agent), since.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// LoadOpenTrades returns every OPEN trade across all agents, used to rebuild
// state after a restart.
func (s *Store) LoadOpenTrades() ([]types.Trade, error) {
	rows, err := s.sql.Query(`
		SELECT id, agent_id, market_id, side, size_usd, entry_probability,
			entry_score, confidence, status, pnl_usd, opened_at, closed_at,
			exit_reason, reasoning, seed
		FROM trades
		WHERE status = ?
		ORDER BY opened_at ASC`, string(types.TradeOpen))
	if err != nil {
		return nil, fmt.Errorf("load open trades: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// ClosedTradesSince returns an agent's CLOSED trades with closed_at at or
// after since, oldest first. The tuner and leaderboard windows read here.
func (s *Store) ClosedTradesSince(agent types.AgentID, since time.Time) ([]types.Trade, error) {
	rows, err := s.sql.Query(`
		SELECT id, agent_id, market_id, side, size_usd, entry_probability,
			entry_score, confidence, status, pnl_usd, opened_at, closed_at,
			exit_reason, reasoning, seed
		FROM trades
		WHERE agent_id = ? AND status = ? AND closed_at >= ?
		ORDER BY closed_at ASC`,
		string(agent), string(types.TradeClosed), since.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("load closed trades: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

func scanTrades(rows *sql.Rows) ([]types.Trade, error) {
	var trades []types.Trade
	for rows.Next() {
		var (
			t         types.Trade
			agent     string
			side      string
			status    string
			reason    string
			reasoning string
			pnl       sql.NullFloat64
			openedAt  string
			closedAt  sql.NullString
		)
		if err := rows.Scan(&t.ID, &agent, &t.MarketID, &side, &t.SizeUSD,
			&t.EntryProbability, &t.EntryScore, &t.Confidence, &status,
			&pnl, &openedAt, &closedAt, &reason, &reasoning, &t.Seed); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}

		t.AgentID = types.AgentID(agent)
		t.Side = types.Side(side)
		t.Status = types.TradeStatus(status)
		t.ExitReason = types.ExitReason(reason)
		if pnl.Valid {
			v := pnl.Float64
			t.PnLUSD = &v
		}

		var err error
		if t.OpenedAt, err = time.Parse(time.RFC3339Nano, openedAt); err != nil {
			return nil, fmt.Errorf("parse opened_at: %w", err)
		}
		if closedAt.Valid {
			ts, err := time.Parse(time.RFC3339Nano, closedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse closed_at: %w", err)
			}
			t.ClosedAt = &ts
		}
		if err := json.Unmarshal([]byte(reasoning), &t.Reasoning); err != nil {
			return nil, fmt.Errorf("unmarshal reasoning: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ————————————————————————————————————————————————————————————————————————
// Portfolios
// ————————————————————————————————————————————————————————————————————————

// SavePortfolio persists a portfolio snapshot as JSON keyed by agent.
func (s *Store) SavePortfolio(p *types.AgentPortfolio) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal portfolio: %w", err)
	}
	_, err = s.sql.Exec(`
		INSERT INTO portfolios (agent_id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		string(p.AgentID), string(data), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save portfolio %s: %w", p.AgentID, err)
	}
	return nil
}

// LoadPortfolio restores one agent's portfolio. Returns nil, nil when the
// agent has never been persisted.
func (s *Store) LoadPortfolio(agent types.AgentID) (*types.AgentPortfolio, error) {
	var data string
	err := s.sql.QueryRow("SELECT data FROM portfolios WHERE agent_id = ?", string(agent)).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load portfolio %s: %w", agent, err)
	}

	var p types.AgentPortfolio
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("unmarshal portfolio %s: %w", agent, err)
	}
	if p.OpenPositions == nil {
		p.OpenPositions = make(map[string]types.Position)
	}
	return &p, nil
}

// ————————————————————————————————————————————————————————————————————————
// Adaptive configs
// ————————————————————————————————————————————————————————————————————————

// SaveAdaptiveConfig persists the tuner's output for one agent.
func (s *Store) SaveAdaptiveConfig(c types.AdaptiveConfig) error {
	bias, err := json.Marshal(c.CategoryBias)
	if err != nil {
		return fmt.Errorf("marshal category bias: %w", err)
	}
	_, err = s.sql.Exec(`
		INSERT INTO adaptive_configs (agent_id, risk_multiplier, category_bias, computed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET
			risk_multiplier = excluded.risk_multiplier,
			category_bias = excluded.category_bias,
			computed_at = excluded.computed_at`,
		string(c.AgentID), c.RiskMultiplier, string(bias),
		c.ComputedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save adaptive config %s: %w", c.AgentID, err)
	}
	return nil
}

// LoadAdaptiveConfig restores one agent's adaptive config. Returns nil, nil
// when the tuner has never run for the agent.
func (s *Store) LoadAdaptiveConfig(agent types.AgentID) (*types.AdaptiveConfig, error) {
	var (
		mult       float64
		bias       string
		computedAt string
	)
	err := s.sql.QueryRow(`
		SELECT risk_multiplier, category_bias, computed_at
		FROM adaptive_configs WHERE agent_id = ?`, string(agent)).
		Scan(&mult, &bias, &computedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load adaptive config %s: %w", agent, err)
	}

	c := types.AdaptiveConfig{AgentID: agent, RiskMultiplier: mult}
	if err := json.Unmarshal([]byte(bias), &c.CategoryBias); err != nil {
		return nil, fmt.Errorf("unmarshal category bias %s: %w", agent, err)
	}
	if c.ComputedAt, err = time.Parse(time.RFC3339Nano, computedAt); err != nil {
		return nil, fmt.Errorf("parse computed_at %s: %w", agent, err)
	}
	return &c, nil
}
