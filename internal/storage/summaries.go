package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/inferd/internal/belief"
	"github.com/fyrsmithlabs/inferd/internal/variable"
)

// GetSummary loads one Summary.
func (s *SQLiteStore) GetSummary(ctx context.Context, agentID, id string) (*belief.Summary, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM summaries WHERE agent_id = ? AND id = ?", agentID, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, belief.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	return decodeSummary(data)
}

// PutSummary inserts or updates a Summary under the optimistic version rule.
func (s *SQLiteStore) PutSummary(ctx context.Context, summary *belief.Summary) error {
	next := summary.Clone()
	next.Version = summary.Version + 1
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	var res sql.Result
	if summary.Version == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO summaries (agent_id, id, status, version, updated_at, data)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			next.AgentID, next.ID, string(next.Status), next.Version, next.UpdatedAt.UnixNano(), string(data))
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE summaries SET status = ?, version = ?, updated_at = ?, data = ?
			 WHERE agent_id = ? AND id = ? AND version = ?`,
			string(next.Status), next.Version, next.UpdatedAt.UnixNano(), string(data),
			next.AgentID, next.ID, summary.Version)
	}
	if err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	if n == 0 {
		return belief.ErrConflict
	}
	summary.Version = next.Version
	return nil
}

// ListSummaries returns Summaries matching the filter ordered by agent then id.
// Prefixes match bytewise, as strings.HasPrefix does.
func (s *SQLiteStore) ListSummaries(ctx context.Context, filter belief.ScopeFilter) ([]*belief.Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM summaries
		 WHERE (? = '' OR agent_id = ?) AND substr(CAST(id AS BLOB), 1, ?) = CAST(? AS BLOB)
		 ORDER BY agent_id, id`,
		filter.AgentID, filter.AgentID, len(filter.Prefix), filter.Prefix)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	var out []*belief.Summary
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summary, err := decodeSummary(data)
		if err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

// AppendHistory appends one audit entry.
func (s *SQLiteStore) AppendHistory(ctx context.Context, entry belief.HistoryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO history (id, agent_id, target_id, at, data) VALUES (?, ?, ?, ?, ?)",
		entry.ID, entry.AgentID, entry.TargetID, entry.At.UnixNano(), string(data))
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

// ListHistory returns an agent's history in insertion order. targetID
// filters like belief.MatchTarget; limit keeps only the most recent entries.
func (s *SQLiteStore) ListHistory(ctx context.Context, agentID, targetID string, limit int) ([]belief.HistoryEntry, error) {
	prefix := targetID
	exact := targetID != "" && prefix[len(prefix)-1] != ':'
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM (
		   SELECT seq, data FROM history
		   WHERE agent_id = ?
		     AND (CASE WHEN ? THEN target_id = ? ELSE substr(CAST(target_id AS BLOB), 1, ?) = CAST(? AS BLOB) END)
		   ORDER BY seq DESC
		   LIMIT ?
		 ) ORDER BY seq ASC`,
		agentID, exact, targetID, len(prefix), prefix, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []belief.HistoryEntry
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		var entry belief.HistoryEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			return nil, fmt.Errorf("decode history entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func decodeSummary(data string) (*belief.Summary, error) {
	var summary belief.Summary
	if err := json.Unmarshal([]byte(data), &summary); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	if summary.Metadata == nil {
		summary.Metadata = map[string]string{}
	}
	if summary.Variables == nil {
		summary.Variables = map[string]variable.Variable{}
	}
	return &summary, nil
}
