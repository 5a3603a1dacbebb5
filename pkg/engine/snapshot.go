package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/inferd/internal/belief"
	"github.com/fyrsmithlabs/inferd/internal/exploration"
)

// SnapshotRequest scopes a snapshot. An empty AgentID spans every agent;
// the exploration queue and history are then left empty because both are
// per agent.
type SnapshotRequest struct {
	AgentID string `json:"agent_id,omitempty"`
	Prefix  string `json:"prefix,omitempty"`
	// HistoryLimit overrides the configured limit when positive.
	HistoryLimit int `json:"history_limit,omitempty"`
	// Context overrides the computed failure rates for the queue.
	Context *exploration.Context `json:"context,omitempty"`
}

// Snapshot is the read-only view of everything the engine believes.
type Snapshot struct {
	Summaries    []*belief.Summary               `json:"summaries"`
	GlobalTraits map[string]belief.TraitEstimate `json:"global_traits"`
	Queue        []exploration.Candidate         `json:"queue"`
	History      []belief.HistoryEntry           `json:"history"`
	GeneratedAt  time.Time                       `json:"generated_at"`
}

// GetSnapshot builds a Snapshot. Nothing is persisted; decay is applied to
// the returned copies only.
func (e *Engine) GetSnapshot(ctx context.Context, req SnapshotRequest) (snap *Snapshot, err error) {
	ctx, o := e.startOp(ctx, "GetSnapshot", req.AgentID, attribute.String("prefix", req.Prefix))
	defer func() { o.end(ctx, err) }()

	now := e.beliefs.Now()
	res, err := e.beliefs.Snapshot(ctx, belief.ScopeFilter{AgentID: req.AgentID, Prefix: req.Prefix}, now)
	if err != nil {
		return nil, err
	}

	snap = &Snapshot{
		Summaries:    res.Summaries,
		GlobalTraits: res.GlobalTraits,
		Queue:        []exploration.Candidate{},
		History:      []belief.HistoryEntry{},
		GeneratedAt:  now,
	}
	if snap.Summaries == nil {
		snap.Summaries = []*belief.Summary{}
	}
	if req.AgentID == "" {
		return snap, nil
	}

	fc, err := e.resolveContext(ctx, req.AgentID, req.Context)
	if err != nil {
		return nil, err
	}
	queue, err := e.scheduler.Queue(ctx, req.AgentID, fc)
	if err != nil {
		return nil, err
	}
	if queue != nil {
		snap.Queue = queue
	}

	limit := e.cfg.HistoryLimit
	if req.HistoryLimit > 0 {
		limit = req.HistoryLimit
	}
	history, err := e.beliefs.History(ctx, req.AgentID, req.Prefix, limit)
	if err != nil {
		return nil, err
	}
	if history != nil {
		snap.History = history
	}

	e.log(ctx).Debug("snapshot built",
		zap.Int("summaries", len(snap.Summaries)),
		zap.Int("traits", len(snap.GlobalTraits)),
		zap.Int("queue", len(snap.Queue)))
	return snap, nil
}
