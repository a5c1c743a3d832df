/*
Package secrets holds the namespace credential and materializes it for
instances.

CredentialStore seals payloads with AES-256-GCM before they reach the
entity store; credentials are write-once and read-only afterwards, so
concurrent readers need no locking. The Materializer implements the init
barrier: copy the credential into a per-instance staging directory, then
signal completion with a marker file the reconciler gates on. The gate is
state, not wall-clock delay: a slow materializer delays Ready, it never
gets raced past.
*/
package secrets
