// Package belief owns the per-agent Summaries that aggregate evidence about
// experiments, mission types and global traits.
//
// A Summary is created lazily by Ensure, the only creation path, and is
// updated by routing each Observation through a set of Bindings. A Binding
// pairs a variable.Spec with a function that extracts Evidence from the
// Observation, so a single mission note can update a binary success variable
// and a continuous score variable at once.
//
// Summaries move from active to resolved or abandoned and never back. Terminal
// Summaries keep accepting Observations into the history log for audit, but
// their Variables are frozen.
//
// # Identifiers
//
// Summary ids are namespaced:
//   - experiment:<id>
//   - mission:type:<type>
//   - global:trait:<name>
//
// Snapshot folds every global:trait:* latent trait into a flat name to
// estimate map so consumers do not have to know the layout.
package belief
