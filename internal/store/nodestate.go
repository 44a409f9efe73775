package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Harshitk-cp/elicit/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type NodeStateStore struct {
	db *pgxpool.Pool
}

func NewNodeStateStore(db *pgxpool.Pool) *NodeStateStore {
	return &NodeStateStore{db: db}
}

func (s *NodeStateStore) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.NodeState, error) {
	rows, err := s.db.Query(ctx,
		`SELECT session_id, node_id, label, node_type, registered_turn, depth, level, is_terminal,
			focus_count, last_focus_turn, current_focus_streak, turns_since_last_focus,
			turns_since_last_yield, last_yield_turn, yield_count, yield_rate,
			edge_count_incoming, edge_count_outgoing, strategy_usage_count, last_strategy_used,
			consecutive_same_strategy, response_depths, updated_at
		 FROM node_states WHERE session_id = $1
		 ORDER BY registered_turn ASC, label ASC, node_id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []domain.NodeState
	for rows.Next() {
		var (
			ns        domain.NodeState
			usageJSON []byte
			depths    []string
		)
		if err := rows.Scan(&ns.SessionID, &ns.NodeID, &ns.Label, &ns.NodeType, &ns.RegisteredTurn, &ns.Depth, &ns.Level, &ns.IsTerminal,
			&ns.FocusCount, &ns.LastFocusTurn, &ns.CurrentFocusStreak, &ns.TurnsSinceLastFocus,
			&ns.TurnsSinceLastYield, &ns.LastYieldTurn, &ns.YieldCount, &ns.YieldRate,
			&ns.EdgeCountIncoming, &ns.EdgeCountOutgoing, &usageJSON, &ns.LastStrategyUsed,
			&ns.ConsecutiveSameStrategy, &depths, &ns.UpdatedAt); err != nil {
			return nil, err
		}
		ns.StrategyUsageCount = make(map[string]int)
		if len(usageJSON) > 0 {
			if err := json.Unmarshal(usageJSON, &ns.StrategyUsageCount); err != nil {
				return nil, fmt.Errorf("unmarshal strategy_usage_count: %w", err)
			}
		}
		for _, d := range depths {
			ns.ResponseDepths = append(ns.ResponseDepths, domain.ResponseDepth(d))
		}
		states = append(states, ns)
	}
	return states, rows.Err()
}

// UpsertMany writes all states of a session in one batch.
func (s *NodeStateStore) UpsertMany(ctx context.Context, sessionID uuid.UUID, states []domain.NodeState) error {
	if len(states) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, ns := range states {
		usageJSON, err := json.Marshal(ns.StrategyUsageCount)
		if err != nil {
			return fmt.Errorf("marshal strategy_usage_count: %w", err)
		}
		depths := make([]string, len(ns.ResponseDepths))
		for i, d := range ns.ResponseDepths {
			depths[i] = string(d)
		}
		batch.Queue(
			`INSERT INTO node_states (session_id, node_id, label, node_type, registered_turn, depth, level, is_terminal,
				focus_count, last_focus_turn, current_focus_streak, turns_since_last_focus,
				turns_since_last_yield, last_yield_turn, yield_count, yield_rate,
				edge_count_incoming, edge_count_outgoing, strategy_usage_count, last_strategy_used,
				consecutive_same_strategy, response_depths, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, NOW())
			 ON CONFLICT (session_id, node_id) DO UPDATE SET
				focus_count = EXCLUDED.focus_count,
				last_focus_turn = EXCLUDED.last_focus_turn,
				current_focus_streak = EXCLUDED.current_focus_streak,
				turns_since_last_focus = EXCLUDED.turns_since_last_focus,
				turns_since_last_yield = EXCLUDED.turns_since_last_yield,
				last_yield_turn = EXCLUDED.last_yield_turn,
				yield_count = EXCLUDED.yield_count,
				yield_rate = EXCLUDED.yield_rate,
				edge_count_incoming = EXCLUDED.edge_count_incoming,
				edge_count_outgoing = EXCLUDED.edge_count_outgoing,
				strategy_usage_count = EXCLUDED.strategy_usage_count,
				last_strategy_used = EXCLUDED.last_strategy_used,
				consecutive_same_strategy = EXCLUDED.consecutive_same_strategy,
				response_depths = EXCLUDED.response_depths,
				updated_at = NOW()`,
			sessionID, ns.NodeID, ns.Label, ns.NodeType, ns.RegisteredTurn, ns.Depth, ns.Level, ns.IsTerminal,
			ns.FocusCount, ns.LastFocusTurn, ns.CurrentFocusStreak, ns.TurnsSinceLastFocus,
			ns.TurnsSinceLastYield, ns.LastYieldTurn, ns.YieldCount, ns.YieldRate,
			ns.EdgeCountIncoming, ns.EdgeCountOutgoing, usageJSON, ns.LastStrategyUsed,
			ns.ConsecutiveSameStrategy, depths,
		)
	}
	return s.db.SendBatch(ctx, batch).Close()
}
