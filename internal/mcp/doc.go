// Package mcp serves the inference engine as MCP tools over stdio.
//
// Tools cover the experiment lifecycle (experiment_initialize,
// experiment_observe, experiment_resolve), mission ingestion
// (mission_record), read access (snapshot_get), exploration
// (exploration_propose) and the trust heartbeat (trust_heartbeat). Agent
// ids are validated before any engine call.
package mcp
