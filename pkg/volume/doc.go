// Package volume implements the consumed storage boundary: a local
// directory-backed provider with retain-on-detach semantics and an explicit
// administrative reset, keeping data loss out of the normal control path.
package volume
