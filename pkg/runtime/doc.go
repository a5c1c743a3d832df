/*
Package runtime defines the consumed process-execution boundary.

The controller creates, terminates, and polls instances through the Runtime
interface and nothing else; how processes actually run is an external
collaborator's problem. MemoryRuntime is the shipped implementation: an
in-process record keeper with crash and create-failure injection, enough to
drive every control loop and test without a container daemon.
*/
package runtime
