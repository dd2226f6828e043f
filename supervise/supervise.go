// Package supervise starts, checks, and terminates hosted bot processes.
// The Runner interface hides whether a tenant runs as a plain child process
// or inside a container, so the rest of the orchestrator (and its tests)
// never touch the operating system directly.
package supervise

import (
	"context"
	"sync"
)

// Handle is one supervised tenant process.
type Handle interface {
	// Alive reports whether the process is still running, without blocking.
	Alive() bool
	// Terminate requests a graceful shutdown and escalates to a forced kill
	// after the stop timeout. Terminating an exited handle is a no-op.
	Terminate(ctx context.Context) error
	// Output returns the tail of the captured stdout/stderr for diagnostics.
	Output() string
	// ID identifies the process (PID or container ID) for logging.
	ID() string
}

// Runner launches a tenant's start entrypoint rooted at its workspace.
type Runner interface {
	Launch(ctx context.Context, workDir string) (Handle, error)
}

// tailBuffer captures the most recent output of a process, bounded so a
// chatty tenant cannot grow memory without limit.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, p...)
	if len(b.buf) > b.max {
		b.buf = b.buf[len(b.buf)-b.max:]
	}
	return len(p), nil
}

func (b *tailBuffer) Tail() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return string(b.buf)
}
