// Package api serves the read-only operator surface over HTTP: topology
// status, tier detail, endpoint resolution, a server-sent event stream,
// and Prometheus metrics.
package api
