/*
Package store provides the shared, namespace-scoped entity store behind all
control loops.

Every loop receives an explicit Store handle; there are no ambient
singletons and no direct calls between loops. State is re-derivable from
scratch on every reconciliation tick, so the store only needs durable
CRUD, not event history.

The BoltDB implementation keeps one bucket per entity kind with JSON
values. Namespaced entities are keyed "<namespace>/<id>", which makes
namespace teardown a single prefix sweep.
*/
package store
