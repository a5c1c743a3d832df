package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryRuntime is an in-process Runtime implementation. Instances are
// records, not processes: creation succeeds immediately and instances run
// until terminated or explicitly crashed. Crash and create-failure
// injection make it usable for driving the controller without a container
// daemon.
type MemoryRuntime struct {
	mu        sync.Mutex
	procs     map[string]*proc
	nextIP    int
	failNext  int
	createErr error
}

type proc struct {
	spec     CreateSpec
	state    ProcessState
	exitCode int
	address  string
}

// NewMemoryRuntime creates an empty in-memory runtime.
func NewMemoryRuntime() *MemoryRuntime {
	return &MemoryRuntime{
		procs: make(map[string]*proc),
	}
}

func (r *MemoryRuntime) CreateInstance(_ context.Context, spec CreateSpec) (*Created, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failNext > 0 {
		r.failNext--
		err := r.createErr
		if err == nil {
			err = fmt.Errorf("injected create failure")
		}
		return nil, err
	}

	id := uuid.New().String()
	r.nextIP++
	address := fmt.Sprintf("10.88.0.%d", 1+r.nextIP%254)
	r.procs[id] = &proc{
		spec:    spec,
		state:   StateRunning,
		address: address,
	}
	return &Created{ID: id, Address: address}, nil
}

func (r *MemoryRuntime) TerminateInstance(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.procs[id]
	if !ok {
		return nil // already gone, termination is idempotent
	}
	p.state = StateExited
	p.exitCode = 0
	return nil
}

func (r *MemoryRuntime) InstanceStatus(_ context.Context, id string) (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.procs[id]
	if !ok {
		return Status{State: StateUnknown}, nil
	}
	return Status{State: p.state, ExitCode: p.exitCode}, nil
}

// Crash marks a running instance as exited with the given code, as if its
// process died unexpectedly.
func (r *MemoryRuntime) Crash(id string, exitCode int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.procs[id]; ok {
		p.state = StateExited
		p.exitCode = exitCode
	}
}

// FailNextCreates makes the next n CreateInstance calls fail with err
// (or a generic error when err is nil).
func (r *MemoryRuntime) FailNextCreates(n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = n
	r.createErr = err
}

// RunningCount returns the number of instances currently running.
func (r *MemoryRuntime) RunningCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, p := range r.procs {
		if p.state == StateRunning {
			count++
		}
	}
	return count
}
