/*
Package topology parses and validates the declared topology manifest.

The manifest is the only configuration surface of the controller: a YAML
document declaring the namespace, its tiers (image, replicas, port,
dependencies, secret and storage requirements, external exposure), and
the shared credential. Validation is strict and runs before any control
loop starts; a malformed manifest is the one fatal startup condition.
*/
package topology
