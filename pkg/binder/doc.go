/*
Package binder implements the storage binder control loop.

The binder matches pending StorageClaims to available StorageVolumes:
smallest fitting capacity wins, ties broken by lowest volume ID, so
selection is deterministic. Binding is idempotent and exclusive: every
mutation of volume ownership happens under a single mutex, which is what
makes "a volume is bound to at most one claim" hold even under concurrent
bind attempts.

Release follows the retain reclaim policy: the volume is detached and
parked in Released, data intact, until AdminReset explicitly wipes it.
*/
package binder
