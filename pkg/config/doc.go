// Package config loads the daemon's TOML configuration: data and staging
// directories, listen address, loop intervals, backoff bounds, the
// external port range, and logging options. Every field has a default;
// a missing file is not an error.
package config
