// Package coordinator is the top-level control loop. It seeds desired
// state from the topology manifest, folds per-tier convergence into a
// topology phase each tick, and sequences ordered teardown. The phase
// ladder is Provisioning, StorageBound, SecretsReady, Serving, with
// Degraded reachable from any rung when a tier cannot hold its desired
// replica count.
package coordinator
