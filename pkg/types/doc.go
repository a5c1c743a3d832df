/*
Package types defines the shared entity model for the strata controller.

All control loops communicate exclusively through these entities as stored
in the shared store: a Tier declares the desired shape of one layer,
Instances are the reconciler's units of convergence, StorageClaim and
StorageVolume carry the binding relationship with retain semantics, and
ServiceEndpoint gives each tier a stable network identity.

The lifecycle ordering invariant lives here in type form: an Instance may
only reach InstanceStateReady once its secret gate (SecretPending cleared by
the materializer) and its storage gate (claim Bound) are both satisfied.
*/
package types
