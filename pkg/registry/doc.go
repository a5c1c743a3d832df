// Package registry provides named service endpoints for tiers. Internal
// endpoints resolve to Ready instances inside the namespace; external
// endpoints additionally hold a node-level port allocated from a fixed
// range, stable for the lifetime of the endpoint.
package registry
