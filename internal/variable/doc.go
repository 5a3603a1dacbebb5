// Package variable implements the statistical families used to represent
// beliefs about an agent.
//
// Every family is a conjugate model with closed-form updates, so a Variable
// can be updated one observation at a time and persisted as a handful of
// sufficient statistics:
//   - binary: Beta over a success probability
//   - continuous_01: Beta fed with fractional pseudo-trials
//   - ordinal_k: Dirichlet over k ordered levels
//   - count: Gamma-Poisson over an event rate
//   - time_to_event: Gamma-Exponential with right-censoring
//   - categorical: Dirichlet over an open label set
//   - latent_trait: precision-weighted running estimate on [0,1]
//
// Stats is a sealed interface. Callers switch over the concrete types; adding a
// family means adding a type here and a case to each switch in this package.
package variable
