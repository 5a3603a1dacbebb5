// Package skill keeps per-track Elo-style ratings on [0,1] and uses them to
// judge puzzle difficulty and recommend what an agent should try next.
package skill

import (
	"errors"
	"strings"
	"time"
)

// Track is a skill track.
type Track string

const (
	TrackLogic      Track = "logic"
	TrackPerception Track = "perception"
	TrackCreation   Track = "creation"
	TrackField      Track = "field"
)

// Tracks lists every track.
var Tracks = []Track{TrackLogic, TrackPerception, TrackCreation, TrackField}

// PuzzleTypeToTrack maps puzzle types to the track they exercise.
var PuzzleTypeToTrack = map[string]Track{
	"cipher":      TrackLogic,
	"world":       TrackLogic,
	"chain":       TrackLogic,
	"stego":       TrackPerception,
	"audio":       TrackPerception,
	"coordinates": TrackField,
	"meta":        TrackCreation,
}

// TrackFor returns the track of a puzzle type. Unknown types fall back to
// logic and report false.
func TrackFor(puzzleType string) (Track, bool) {
	t, ok := PuzzleTypeToTrack[normalizeType(puzzleType)]
	if !ok {
		return TrackLogic, false
	}
	return t, true
}

func normalizeType(puzzleType string) string {
	return strings.ToLower(strings.TrimSpace(puzzleType))
}

// InitialRating is the rating of a track before any attempt.
const InitialRating = 0.5

// Rating is an agent's rating on one track.
type Rating struct {
	AgentID   string    `json:"agent_id"`
	Track     Track     `json:"track"`
	Rating    float64   `json:"rating"`
	Attempts  int       `json:"attempts"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int64     `json:"version"`
}

// AttemptRecord is one puzzle attempt. Records are append-only.
type AttemptRecord struct {
	ID           string    `json:"id"`
	AgentID      string    `json:"agent_id"`
	PuzzleID     string    `json:"puzzle_id"`
	PuzzleType   string    `json:"puzzle_type"`
	Track        Track     `json:"track"`
	Difficulty   float64   `json:"difficulty"`
	Solved       bool      `json:"solved"`
	AttemptsUsed int       `json:"attempts_used"`
	RatingBefore float64   `json:"rating_before"`
	RatingAfter  float64   `json:"rating_after"`
	At           time.Time `json:"at"`
}

// AttemptRequest reports a puzzle attempt.
type AttemptRequest struct {
	AgentID      string  `json:"agent_id"`
	PuzzleID     string  `json:"puzzle_id"`
	PuzzleType   string  `json:"puzzle_type"`
	Difficulty   float64 `json:"difficulty"`
	Solved       bool    `json:"solved"`
	AttemptsUsed int     `json:"attempts_used"`
}

// AttemptResult is the rating change caused by an attempt.
type AttemptResult struct {
	Track     Track   `json:"track"`
	OldRating float64 `json:"old_rating"`
	NewRating float64 `json:"new_rating"`
	Change    float64 `json:"change"`
}

// Appropriateness is the verdict of CheckAppropriate.
type Appropriateness struct {
	Appropriate bool     `json:"appropriate"`
	Track       Track    `json:"track"`
	Rating      float64  `json:"rating"`
	Warnings    []string `json:"warnings"`
	Suggestions []string `json:"suggestions"`
}

// Recommendation is the output of Recommend.
type Recommendation struct {
	RecommendedType       string   `json:"recommended_type"`
	RecommendedDifficulty float64  `json:"recommended_difficulty"`
	Reasoning             string   `json:"reasoning"`
	AvoidTypes            []string `json:"avoid_types"`
	PlayerStrengths       []string `json:"player_strengths"`
	PlayerWeaknesses      []string `json:"player_weaknesses"`
}

var (
	// ErrNotFound is returned by stores for tracks without a rating.
	ErrNotFound = errors.New("skill rating not found")

	// ErrConflict is returned when a put loses an optimistic version check.
	ErrConflict = errors.New("skill rating version conflict")

	// ErrEmptyAgentID is returned when an operation has no agent scope.
	ErrEmptyAgentID = errors.New("agent ID cannot be empty")
)
