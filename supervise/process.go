package supervise

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	defaultGracePeriod = 5 * time.Second
	defaultStopTimeout = 10 * time.Second
	outputTailBytes    = 32 * 1024
)

// ProcessRunner launches tenants as plain child processes via the artifact's
// start script, with output captured for diagnostics.
type ProcessRunner struct {
	// StartCommand is the entrypoint executed with the workspace as working
	// directory.
	StartCommand []string
	// GracePeriod is how long after spawn the runner waits before deciding
	// the process came up; an exit inside the window is a launch failure.
	GracePeriod time.Duration
	// StopTimeout bounds graceful termination before a forced kill.
	StopTimeout time.Duration

	log *slog.Logger
}

func NewProcessRunner() *ProcessRunner {
	return &ProcessRunner{
		StartCommand: []string{"bash", "start"},
		GracePeriod:  defaultGracePeriod,
		StopTimeout:  defaultStopTimeout,
		log:          slog.Default().With("component", "supervise.process"),
	}
}

// Launch spawns the start entrypoint rooted at workDir and verifies the
// process survives the grace period. The child is intentionally not bound to
// ctx: it must outlive the provisioning request that started it.
func (r *ProcessRunner) Launch(ctx context.Context, workDir string) (Handle, error) {
	if len(r.StartCommand) == 0 {
		return nil, fmt.Errorf("start command is not configured")
	}

	out := newTailBuffer(outputTailBytes)
	cmd := exec.Command(r.StartCommand[0], r.StartCommand[1:]...)
	cmd.Dir = workDir
	cmd.Stdout = out
	cmd.Stderr = out
	// The start script forks the actual bot, so the tenant is a process
	// group, not a single pid. A fresh group lets Terminate signal the whole
	// tree, and WaitDelay keeps the reaper from hanging on output pipes
	// inherited by the script's children.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = r.StopTimeout

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start process: %w", err)
	}

	h := &processHandle{
		cmd:         cmd,
		out:         out,
		stopTimeout: r.StopTimeout,
		done:        make(chan struct{}),
	}
	go h.reap()

	r.log.Info("process started", "pid", cmd.Process.Pid, "dir", workDir)

	select {
	case <-h.done:
		reason := strings.TrimSpace(out.Tail())
		if reason == "" {
			if err := h.waitError(); err != nil {
				reason = err.Error()
			} else {
				reason = "process exited without output"
			}
		}
		return nil, fmt.Errorf("process exited during startup: %s", reason)
	case <-ctx.Done():
		_ = h.Terminate(context.Background())
		return nil, ctx.Err()
	case <-time.After(r.GracePeriod):
	}

	return h, nil
}

type processHandle struct {
	cmd         *exec.Cmd
	out         *tailBuffer
	stopTimeout time.Duration
	done        chan struct{}

	mu      sync.Mutex
	waitErr error
}

func (h *processHandle) reap() {
	err := h.cmd.Wait()
	h.mu.Lock()
	h.waitErr = err
	h.mu.Unlock()
	close(h.done)
}

func (h *processHandle) waitError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.waitErr
}

func (h *processHandle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (h *processHandle) Terminate(ctx context.Context) error {
	if !h.Alive() {
		return nil
	}

	h.signalGroup(syscall.SIGTERM)

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(h.stopTimeout):
	}

	h.signalGroup(syscall.SIGKILL)

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// signalGroup delivers sig to the tenant's whole process group so the bot
// forked by the start script goes down with it. Signal errors mean the group
// raced us to exit; the reaper settles it.
func (h *processHandle) signalGroup(sig syscall.Signal) {
	if err := syscall.Kill(-h.cmd.Process.Pid, sig); err != nil {
		_ = h.cmd.Process.Signal(sig)
	}
}

func (h *processHandle) Output() string {
	return h.out.Tail()
}

func (h *processHandle) ID() string {
	return strconv.Itoa(h.cmd.Process.Pid)
}
