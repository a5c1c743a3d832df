package runtime

import (
	"context"
)

// ProcessState is the runtime's view of one instance.
type ProcessState string

const (
	StateRunning ProcessState = "running"
	StateExited  ProcessState = "exited"
	StateUnknown ProcessState = "unknown"
)

// Status reports the observed state of a runtime instance.
type Status struct {
	State    ProcessState
	ExitCode int
}

// CreateSpec is what the controller hands the runtime to start an instance.
type CreateSpec struct {
	Namespace string
	Tier      string
	Image     string
	Port      int
	// Mounts maps host paths to container paths (bound storage, secret
	// staging). The runtime only plumbs them; it never inspects contents.
	Mounts map[string]string
	Env    []string
}

// Created is the runtime's handle for a started instance.
type Created struct {
	ID      string
	Address string
}

// Runtime is the consumed process-execution boundary. The controller only
// drives it; process execution itself is an external collaborator.
type Runtime interface {
	CreateInstance(ctx context.Context, spec CreateSpec) (*Created, error)
	TerminateInstance(ctx context.Context, id string) error
	InstanceStatus(ctx context.Context, id string) (Status, error)
}
