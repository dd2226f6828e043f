package supervise

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

const (
	containerWorkDir = "/app"
	memoryLimit      = 512 * 1024 * 1024 // 512MB
	cpuQuota         = 100000            // 1 CPU core
	cpuPeriod        = 100000

	labelManaged = "musichost-managed"
	labelTenant  = "musichost-tenant"
)

// DockerRunner launches tenants inside containers with the workspace
// bind-mounted, for deployments where hosted bots must be isolated from the
// orchestrator host.
type DockerRunner struct {
	cli     *client.Client
	image   string
	network string

	GracePeriod time.Duration
	StopTimeout time.Duration

	log *slog.Logger
}

func NewDockerRunner(image, network string) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}

	return &DockerRunner{
		cli:         cli,
		image:       image,
		network:     network,
		GracePeriod: defaultGracePeriod,
		StopTimeout: defaultStopTimeout,
		log:         slog.Default().With("component", "supervise.docker"),
	}, nil
}

func containerName(workDir string) string {
	base := strings.ToLower(filepath.Base(workDir))
	if len(base) > 24 {
		base = base[:24]
	}
	return "mh-tenant-" + base
}

// Launch creates and starts a container running the artifact's start script,
// then verifies it survives the grace period.
func (r *DockerRunner) Launch(ctx context.Context, workDir string) (Handle, error) {
	name := containerName(workDir)

	// A leftover container from a failed earlier run blocks the name.
	_ = r.cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: true})

	hostConfig := &container.HostConfig{
		Binds: []string{fmt.Sprintf("%s:%s", workDir, containerWorkDir)},
		Resources: container.Resources{
			Memory:    memoryLimit,
			CPUQuota:  cpuQuota,
			CPUPeriod: cpuPeriod,
		},
	}
	if r.network != "" {
		hostConfig.NetworkMode = container.NetworkMode(r.network)
	}

	resp, err := r.cli.ContainerCreate(ctx,
		&container.Config{
			Image:      r.image,
			WorkingDir: containerWorkDir,
			Cmd:        []string{"bash", "start"},
			Labels: map[string]string{
				labelManaged: "true",
				labelTenant:  filepath.Base(workDir),
			},
		},
		hostConfig,
		nil, nil, name,
	)
	if err != nil {
		return nil, fmt.Errorf("container create: %w", err)
	}

	if err := r.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = r.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("container start: %w", err)
	}

	h := &containerHandle{cli: r.cli, containerID: resp.ID, stopTimeout: r.StopTimeout}

	r.log.Info("container started", "container", shortContainerID(resp.ID), "dir", workDir)

	select {
	case <-ctx.Done():
		_ = h.Terminate(context.Background())
		return nil, ctx.Err()
	case <-time.After(r.GracePeriod):
	}

	if !h.Alive() {
		reason := strings.TrimSpace(h.Output())
		if reason == "" {
			reason = "container exited without output"
		}
		_ = r.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("container exited during startup: %s", reason)
	}

	return h, nil
}

type containerHandle struct {
	cli         *client.Client
	containerID string
	stopTimeout time.Duration
}

func (h *containerHandle) Alive() bool {
	inspect, err := h.cli.ContainerInspect(context.Background(), h.containerID)
	if err != nil || inspect.State == nil {
		return false
	}
	return inspect.State.Running
}

func (h *containerHandle) Terminate(ctx context.Context) error {
	timeout := int(h.stopTimeout / time.Second)
	if err := h.cli.ContainerStop(ctx, h.containerID, container.StopOptions{Timeout: &timeout}); err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("container stop: %w", err)
	}
	if err := h.cli.ContainerRemove(ctx, h.containerID, container.RemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("container remove: %w", err)
	}
	return nil
}

func (h *containerHandle) Output() string {
	reader, err := h.cli.ContainerLogs(context.Background(), h.containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       "100",
	})
	if err != nil {
		return ""
	}
	defer reader.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, reader); err != nil {
		return ""
	}

	output := stdout.String()
	if errStr := stderr.String(); errStr != "" {
		output += "\n" + errStr
	}
	return output
}

func (h *containerHandle) ID() string {
	return shortContainerID(h.containerID)
}

func shortContainerID(containerID string) string {
	if len(containerID) > 12 {
		return containerID[:12]
	}
	return containerID
}
