package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/inferd/internal/trust"
)

// GetState loads an agent's trust state.
func (s *SQLiteStore) GetState(ctx context.Context, agentID string) (*trust.State, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM trust_states WHERE agent_id = ?", agentID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, trust.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query trust state: %w", err)
	}

	var state trust.State
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("decode trust state: %w", err)
	}
	if state.History == nil {
		state.History = []trust.Delta{}
	}
	return &state, nil
}

// PutState writes trust state under the optimistic version rule.
func (s *SQLiteStore) PutState(ctx context.Context, state *trust.State) error {
	next := state.Clone()
	next.Version = state.Version + 1
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode trust state: %w", err)
	}

	var res sql.Result
	if state.Version == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO trust_states (agent_id, raw_score, layer, version, data)
			 VALUES (?, ?, ?, ?, ?)`,
			next.AgentID, next.RawScore, next.Layer, next.Version, string(data))
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE trust_states SET raw_score = ?, layer = ?, version = ?, data = ?
			 WHERE agent_id = ? AND version = ?`,
			next.RawScore, next.Layer, next.Version, string(data), next.AgentID, state.Version)
	}
	if err != nil {
		return fmt.Errorf("write trust state: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("write trust state: %w", err)
	} else if n == 0 {
		return trust.ErrConflict
	}
	state.Version = next.Version
	return nil
}
