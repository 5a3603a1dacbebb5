// Package trust tracks each agent's trust score and the discrete layer it
// unlocks. Scores move through Evolve, are seeded and topped up by a gated
// heartbeat, and slowly decay after long inactivity without ever falling
// below the layer already reached.
package trust

import (
	"math"
	"time"
)

// Thresholds are the minimum raw scores of layers 0 through 5.
var Thresholds = [...]float64{0.00, 0.10, 0.25, 0.45, 0.65, 0.92}

// MaxLayer is the highest layer.
const MaxLayer = len(Thresholds) - 1

// LayerFor returns the highest layer whose threshold is at or below score.
func LayerFor(score float64) int {
	layer := 0
	for i, threshold := range Thresholds {
		if score >= threshold {
			layer = i
		}
	}
	return layer
}

// Clamp bounds a score to [0,1]. NaN maps to 0.
func Clamp(score float64) float64 {
	if math.IsNaN(score) || score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Delta is one entry of the trust history.
type Delta struct {
	Delta  float64   `json:"delta"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
	Score  float64   `json:"score"`
}

// State is an agent's trust state.
type State struct {
	AgentID           string    `json:"agent_id"`
	RawScore          float64   `json:"raw_score"`
	Layer             int       `json:"layer"`
	PendingCeremony   *int      `json:"pending_ceremony"`
	LastActivityAt    time.Time `json:"last_activity_at,omitempty"`
	LastTrustUpdateAt time.Time `json:"last_trust_update_at,omitempty"`
	LastHeartbeatAt   time.Time `json:"last_heartbeat_at,omitempty"`
	LastDecayAt       time.Time `json:"last_decay_at,omitempty"`
	History           []Delta   `json:"history"`
	Version           int64     `json:"version"`
}

// NewState returns the default state for an unseen agent.
func NewState(agentID string) *State {
	return &State{AgentID: agentID, History: []Delta{}}
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	if s.PendingCeremony != nil {
		p := *s.PendingCeremony
		out.PendingCeremony = &p
	}
	out.History = append([]Delta(nil), s.History...)
	return &out
}

// IsNew reports whether the state has never been credited.
func (s *State) IsNew() bool {
	return s.LastTrustUpdateAt.IsZero() && len(s.History) == 0
}

// apply adds delta, clamps, recomputes the layer and records history. A
// layer increase marks a ceremony as pending; falling below a pending layer
// cancels it.
func (s *State) apply(delta float64, reason string, at time.Time) (int, int) {
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		delta = 0
	}
	prev := s.Layer
	s.RawScore = Clamp(s.RawScore + delta)
	s.Layer = LayerFor(s.RawScore)

	if s.Layer > prev {
		layer := s.Layer
		s.PendingCeremony = &layer
	} else if s.PendingCeremony != nil && *s.PendingCeremony > s.Layer {
		s.PendingCeremony = nil
	}

	s.History = append(s.History, Delta{Delta: delta, Reason: reason, At: at, Score: s.RawScore})
	s.LastTrustUpdateAt = at
	return prev, s.Layer
}

// EventKind names a trust-relevant event.
type EventKind string

const (
	EventSessionComplete   EventKind = "session_complete"
	EventMissionComplete   EventKind = "mission_complete"
	EventMissionFailed     EventKind = "mission_failed"
	EventPuzzleSolved      EventKind = "puzzle_solved"
	EventExperimentSuccess EventKind = "experiment_success"
	EventExperimentFail    EventKind = "experiment_fail"
	EventCeremonyComplete  EventKind = "ceremony_complete"
)

// BaseDeltas are the unscaled deltas per event kind.
var BaseDeltas = map[EventKind]float64{
	EventSessionComplete:   0.008,
	EventMissionComplete:   0.025,
	EventMissionFailed:     -0.010,
	EventPuzzleSolved:      0.012,
	EventExperimentSuccess: 0.015,
	EventExperimentFail:    -0.015,
	EventCeremonyComplete:  0.005,
}

var missionLike = map[EventKind]bool{
	EventMissionComplete: true,
	EventMissionFailed:   true,
}

// ComputeDelta returns the trust delta for an event. Mission-like events
// scale by 0.5+score*0.5 when a quality score is given. Unknown kinds return
// false.
func ComputeDelta(kind EventKind, score *float64) (float64, bool) {
	base, ok := BaseDeltas[kind]
	if !ok {
		return 0, false
	}
	if score != nil && missionLike[kind] {
		base *= 0.5 + Clamp(*score)*0.5
	}
	return base, true
}
