package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/inferd/internal/skill"
)

// GetRating loads one track rating.
func (s *SQLiteStore) GetRating(ctx context.Context, agentID string, track skill.Track) (*skill.Rating, error) {
	r := &skill.Rating{AgentID: agentID, Track: track}
	var updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT rating, attempts, updated_at, version FROM skill_ratings
		 WHERE agent_id = ? AND track = ?`, agentID, string(track),
	).Scan(&r.Rating, &r.Attempts, &updated, &r.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, skill.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query rating: %w", err)
	}
	r.UpdatedAt = fromUnixNano(updated)
	return r, nil
}

// PutRating writes a rating under the optimistic version rule.
func (s *SQLiteStore) PutRating(ctx context.Context, r *skill.Rating) error {
	var (
		res sql.Result
		err error
	)
	if r.Version == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO skill_ratings (agent_id, track, rating, attempts, updated_at, version)
			 VALUES (?, ?, ?, ?, ?, 1)`,
			r.AgentID, string(r.Track), r.Rating, r.Attempts, r.UpdatedAt.UnixNano())
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE skill_ratings SET rating = ?, attempts = ?, updated_at = ?, version = version + 1
			 WHERE agent_id = ? AND track = ? AND version = ?`,
			r.Rating, r.Attempts, r.UpdatedAt.UnixNano(), r.AgentID, string(r.Track), r.Version)
	}
	if err != nil {
		return fmt.Errorf("write rating: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("write rating: %w", err)
	} else if n == 0 {
		return skill.ErrConflict
	}
	r.Version++
	return nil
}

// ListRatings returns an agent's ratings ordered by track.
func (s *SQLiteStore) ListRatings(ctx context.Context, agentID string) ([]*skill.Rating, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT track, rating, attempts, updated_at, version FROM skill_ratings
		 WHERE agent_id = ? ORDER BY track`, agentID)
	if err != nil {
		return nil, fmt.Errorf("query ratings: %w", err)
	}
	defer rows.Close()

	var out []*skill.Rating
	for rows.Next() {
		r := &skill.Rating{AgentID: agentID}
		var track string
		var updated int64
		if err := rows.Scan(&track, &r.Rating, &r.Attempts, &updated, &r.Version); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		r.Track = skill.Track(track)
		r.UpdatedAt = fromUnixNano(updated)
		out = append(out, r)
	}
	return out, rows.Err()
}

// AppendAttempt appends one attempt record.
func (s *SQLiteStore) AppendAttempt(ctx context.Context, rec skill.AttemptRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO puzzle_attempts
		 (id, agent_id, puzzle_id, puzzle_type, track, difficulty, solved, attempts_used, rating_before, rating_after, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.AgentID, rec.PuzzleID, rec.PuzzleType, string(rec.Track), rec.Difficulty,
		rec.Solved, rec.AttemptsUsed, rec.RatingBefore, rec.RatingAfter, rec.At.UnixNano())
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// ListAttempts returns an agent's attempts in insertion order.
func (s *SQLiteStore) ListAttempts(ctx context.Context, agentID string) ([]skill.AttemptRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, puzzle_id, puzzle_type, track, difficulty, solved, attempts_used,
		        rating_before, rating_after, at
		 FROM puzzle_attempts WHERE agent_id = ? ORDER BY seq`, agentID)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []skill.AttemptRecord
	for rows.Next() {
		rec := skill.AttemptRecord{AgentID: agentID}
		var track string
		var at int64
		if err := rows.Scan(&rec.ID, &rec.PuzzleID, &rec.PuzzleType, &track, &rec.Difficulty,
			&rec.Solved, &rec.AttemptsUsed, &rec.RatingBefore, &rec.RatingAfter, &at); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		rec.Track = skill.Track(track)
		rec.At = fromUnixNano(at)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func fromUnixNano(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}
