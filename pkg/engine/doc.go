// Package engine is the in-process surface of inferd.
//
// An Engine composes the belief store, experiment lifecycle, mission
// recorder, trust engine, skill ratings and exploration scheduler behind one
// set of operations. Mutations are serialized per agent; reads never mutate.
// Every operation runs inside an OpenTelemetry span and is counted by
// operation and outcome.
//
//	eng, err := engine.NewInMemory(engine.DefaultConfig())
//	exp, err := eng.InitializeHypothesis(ctx, experiment.InitRequest{
//		AgentID:        "agent-7",
//		Hypothesis:     "follows instructions under time pressure",
//		ExperimentType: "compliance",
//		Traits:         []string{"compliance"},
//	})
//	snap, err := eng.GetSnapshot(ctx, engine.SnapshotRequest{AgentID: "agent-7"})
package engine
