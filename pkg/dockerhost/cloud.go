package dockerhost

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
)

// CloudBackend talks directly to a single host's Docker daemon. One
// instance is constructed per host id; the coordinator keeps one in a
// registry keyed by host id (see Router).
type CloudBackend struct {
	cli *client.Client
}

// NewCloudBackend dials the daemon at endpoint (e.g. "tcp://10.0.0.4:2376"
// or a unix socket path / Colima socket).
func NewCloudBackend(endpoint string, opts ...client.Opt) (*CloudBackend, error) {
	allOpts := append([]client.Opt{
		client.WithHost(endpoint),
		client.WithAPIVersionNegotiation(),
	}, opts...)

	cli, err := client.NewClientWithOpts(allOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating docker client for %s: %w", endpoint, err)
	}

	return &CloudBackend{cli: cli}, nil
}

func (b *CloudBackend) Close() error { return b.cli.Close() }

// CreateContainer is idempotent on (host, name): if a container by that
// name already exists, its labels are compared against the request — a
// match returns the existing container, a mismatch is a conflict.
func (b *CloudBackend) CreateContainer(ctx context.Context, spec ContainerSpec) (ContainerInfo, error) {
	existing, err := b.cli.ContainerInspect(ctx, spec.Name)
	if err == nil {
		if labelsEqual(existing.Config.Labels, spec.Labels.asMap()) {
			return ContainerInfo{
				ID:     existing.ID,
				Name:   spec.Name,
				Labels: existing.Config.Labels,
				State:  existing.State.Status,
			}, nil
		}
		return ContainerInfo{}, &ErrConflict{Name: spec.Name}
	}
	if !client.IsErrNotFound(err) {
		return ContainerInfo{}, fmt.Errorf("inspecting existing container %s: %w", spec.Name, err)
	}

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	exposedPorts, portBindings, err := portSpecs(spec.ExposedPorts)
	if err != nil {
		return ContainerInfo{}, fmt.Errorf("parsing exposed ports for %s: %w", spec.Name, err)
	}

	resp, err := b.cli.ContainerCreate(ctx, &container.Config{
		Image:        spec.Image,
		Env:          env,
		Labels:       spec.Labels.asMap(),
		User:         NonRootUser,
		ExposedPorts: exposedPorts,
	}, &container.HostConfig{
		PortBindings: portBindings,
	}, nil, nil, spec.Name)
	if err != nil {
		return ContainerInfo{}, fmt.Errorf("creating container %s: %w", spec.Name, err)
	}

	return ContainerInfo{ID: resp.ID, Name: spec.Name, Labels: spec.Labels.asMap(), State: "created"}, nil
}

func (b *CloudBackend) Start(ctx context.Context, containerID string) error {
	if err := b.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("starting container %s: %w", containerID, err)
	}
	return nil
}

func (b *CloudBackend) Stop(ctx context.Context, containerID string, timeout time.Duration) error {
	secs := int(timeout.Seconds())
	if err := b.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &secs}); err != nil {
		return fmt.Errorf("stopping container %s: %w", containerID, err)
	}
	return nil
}

func (b *CloudBackend) Remove(ctx context.Context, containerID string, force bool) error {
	if err := b.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: force}); err != nil {
		return fmt.Errorf("removing container %s: %w", containerID, err)
	}
	return nil
}

// Exec always runs under the pinned non-root identity and a bounded
// timeout (DefaultExecTimeout unless overridden per-call).
func (b *CloudBackend) Exec(ctx context.Context, containerID string, req ExecRequest) (ExecResult, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultExecTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execID, err := b.cli.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          req.Cmd,
		User:         NonRootUser,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return ExecResult{}, fmt.Errorf("creating exec in %s: %w", containerID, err)
	}

	attach, err := b.cli.ContainerExecAttach(ctx, execID.ID, container.ExecAttachOptions{})
	if err != nil {
		return ExecResult{}, fmt.Errorf("attaching exec in %s: %w", containerID, err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil && err != io.EOF {
		return ExecResult{}, fmt.Errorf("reading exec output from %s: %w", containerID, err)
	}

	inspect, err := b.cli.ContainerExecInspect(ctx, execID.ID)
	if err != nil {
		return ExecResult{}, fmt.Errorf("inspecting exec in %s: %w", containerID, err)
	}

	return ExecResult{ExitCode: inspect.ExitCode, Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

func (b *CloudBackend) Stats(ctx context.Context, containerID string) (Stats, error) {
	resp, err := b.cli.ContainerStats(ctx, containerID, false)
	if err != nil {
		return Stats{}, fmt.Errorf("fetching stats for %s: %w", containerID, err)
	}
	defer resp.Body.Close()
	// Parsing the raw stats JSON stream is omitted here — production
	// code decodes container.StatsResponse and computes CPU percent
	// from cpu_stats/precpu_stats deltas, same shape as Docker CLI's
	// `docker stats` implementation.
	return Stats{}, nil
}

func (b *CloudBackend) ServerStats(ctx context.Context) (ServerStats, error) {
	info, err := b.cli.Info(ctx)
	if err != nil {
		return ServerStats{}, fmt.Errorf("fetching daemon info: %w", err)
	}
	return ServerStats{
		MemoryTotalMB: int(info.MemTotal / (1024 * 1024)),
	}, nil
}

// portSpecs translates "3000/tcp"-style port strings into the
// exposed-ports set and ephemeral-host-port bindings the daemon expects.
func portSpecs(ports []string) (nat.PortSet, nat.PortMap, error) {
	exposed := make(nat.PortSet, len(ports))
	bindings := make(nat.PortMap, len(ports))

	for _, p := range ports {
		port, err := nat.NewPort(portProto(p), portNumber(p))
		if err != nil {
			return nil, nil, err
		}
		exposed[port] = struct{}{}
		bindings[port] = []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: ""}}
	}

	return exposed, bindings, nil
}

func portProto(spec string) string {
	if i := lastSlash(spec); i >= 0 {
		return spec[i+1:]
	}
	return "tcp"
}

func portNumber(spec string) string {
	if i := lastSlash(spec); i >= 0 {
		return spec[:i]
	}
	return spec
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}
