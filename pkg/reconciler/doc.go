/*
Package reconciler converges each tier's live instance count on its
declared replica count.

One reconciler runs per tier, on its own schedule, talking only to the
shared store and the runtime boundary:

	count live instances
	  -> deficit:  create, gated through SecretPending / storage binding
	  -> surplus:  terminate oldest first
	  -> crashed:  sweep, then replace on a later pass

Replacement is never abandoned: a crashing instance costs a capped
exponential backoff delay, not a retry budget. Persistent failure leaves
the tier under-replicated and visible as degraded status upward; it is
never escalated to a process-fatal error.
*/
package reconciler
