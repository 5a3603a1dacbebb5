package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/inferd/internal/events"
	"github.com/fyrsmithlabs/inferd/internal/trust"
)

// publish emits an event. Failures are logged and otherwise ignored.
func (e *Engine) publish(ctx context.Context, kind events.Kind, agentID, targetID string, data map[string]any) {
	ev := events.New(kind, agentID, targetID, e.now(), data)
	if err := e.events.Publish(ctx, ev); err != nil {
		e.log(ctx).Warn("event publish failed",
			zap.String("kind", string(kind)),
			zap.String("agent_id", agentID),
			zap.Error(err))
	}
}

// watchTrust runs a trust mutation and publishes layer and ceremony changes.
func (e *Engine) watchTrust(ctx context.Context, agentID string, mutate func() (*trust.State, error)) (*trust.State, error) {
	before, err := e.trust.GetState(ctx, agentID)
	if err != nil {
		return nil, err
	}
	prevLayer, prevPending := before.Layer, pendingLayer(before)

	after, err := mutate()
	if err != nil {
		return nil, err
	}

	if after.Layer != prevLayer {
		e.publish(ctx, events.KindTrustLayerChanged, agentID, "", map[string]any{
			"from":      prevLayer,
			"to":        after.Layer,
			"raw_score": after.RawScore,
		})
	}
	if p := pendingLayer(after); p >= 0 && p != prevPending {
		e.publish(ctx, events.KindCeremonyPending, agentID, "", map[string]any{
			"layer": p,
		})
	}
	return after, nil
}

func pendingLayer(s *trust.State) int {
	if s.PendingCeremony == nil {
		return -1
	}
	return *s.PendingCeremony
}
