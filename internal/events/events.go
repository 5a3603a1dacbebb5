// Package events publishes engine state changes to subscribers.
//
// Events are advisory: publishing is best effort and never fails the
// operation that produced the event. The NATS publisher writes each event to
//
//	{prefix}.{agent_id}.{kind}
//
// as JSON, so a consumer can subscribe to one agent (inferd.agent-1.>) or one
// kind across agents (inferd.*.experiment.resolved).
package events

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind names an event type.
type Kind string

const (
	KindExperimentOpened   Kind = "experiment.opened"
	KindExperimentResolved Kind = "experiment.resolved"
	KindMissionRecorded    Kind = "mission.recorded"
	KindTrustLayerChanged  Kind = "trust.layer_changed"
	KindCeremonyPending    Kind = "trust.ceremony_pending"
	KindSkillRated         Kind = "skill.rated"
)

// Event is one published state change.
type Event struct {
	ID       string         `json:"id"`
	Kind     Kind           `json:"kind"`
	AgentID  string         `json:"agent_id"`
	TargetID string         `json:"target_id,omitempty"`
	At       time.Time      `json:"at"`
	TraceID  string         `json:"trace_id,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// New returns an event with a fresh id.
func New(kind Kind, agentID, targetID string, at time.Time, data map[string]any) Event {
	return Event{
		ID:       uuid.New().String(),
		Kind:     kind,
		AgentID:  agentID,
		TargetID: targetID,
		At:       at,
		Data:     data,
	}
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// subjectToken makes s safe as a single NATS subject token.
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}

// Subject returns the subject ev is published on.
func Subject(prefix string, ev Event) string {
	return prefix + "." + subjectToken(ev.AgentID) + "." + string(ev.Kind)
}
