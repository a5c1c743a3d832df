// Package log wraps zerolog with controller-wide initialization and
// component-scoped child loggers.
package log
