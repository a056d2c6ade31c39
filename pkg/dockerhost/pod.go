package dockerhost

import (
	"context"
	"fmt"
	"time"
)

// PodCaller is the subset of the reverse-RPC hub (C6) that PodBackend
// needs: a correlation-id request/response round trip to a named pod.
// Defined here rather than importing pkg/realtime directly so
// dockerhost stays a leaf package; pkg/realtime implements this
// interface.
type PodCaller interface {
	CallPod(ctx context.Context, podID, method string, params any, timeout time.Duration) (result any, err error)
}

// PodBackend proxies the uniform Backend operations to a self-hosted
// pod over the reverse-RPC channel instead of a direct daemon
// connection — the pod dialed out, so the coordinator can only reach it
// through an already-open socket.
type PodBackend struct {
	podID  string
	caller PodCaller
}

// NewPodBackend builds a Backend that proxies calls to podID via caller.
func NewPodBackend(podID string, caller PodCaller) *PodBackend {
	return &PodBackend{podID: podID, caller: caller}
}

func (b *PodBackend) call(ctx context.Context, method string, params any, timeout time.Duration) (map[string]any, error) {
	if timeout <= 0 {
		timeout = DefaultExecTimeout
	}
	raw, err := b.caller.CallPod(ctx, b.podID, method, params, timeout)
	if err != nil {
		return nil, fmt.Errorf("pod rpc %s: %w", method, err)
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("pod rpc %s: unexpected result shape", method)
	}
	return m, nil
}

func (b *PodBackend) CreateContainer(ctx context.Context, spec ContainerSpec) (ContainerInfo, error) {
	res, err := b.call(ctx, "workspace.create", map[string]any{
		"name":   spec.Name,
		"image":  spec.Image,
		"env":    spec.Env,
		"labels": spec.Labels.asMap(),
	}, 0)
	if err != nil {
		return ContainerInfo{}, err
	}
	return ContainerInfo{
		ID:    stringField(res, "container_id"),
		Name:  spec.Name,
		State: stringField(res, "state"),
	}, nil
}

func (b *PodBackend) Start(ctx context.Context, containerID string) error {
	_, err := b.call(ctx, "workspace.update", map[string]any{"container_id": containerID, "action": "start"}, 0)
	return err
}

func (b *PodBackend) Stop(ctx context.Context, containerID string, timeout time.Duration) error {
	_, err := b.call(ctx, "workspace.update", map[string]any{"container_id": containerID, "action": "stop"}, timeout)
	return err
}

func (b *PodBackend) Remove(ctx context.Context, containerID string, force bool) error {
	_, err := b.call(ctx, "workspace.delete", map[string]any{"container_id": containerID, "force": force}, 0)
	return err
}

func (b *PodBackend) Exec(ctx context.Context, containerID string, req ExecRequest) (ExecResult, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultExecTimeout
	}
	res, err := b.call(ctx, "exec", map[string]any{
		"container_id": containerID,
		"cmd":          req.Cmd,
		"user":         NonRootUser,
	}, timeout)
	if err != nil {
		return ExecResult{}, err
	}
	return ExecResult{
		ExitCode: intField(res, "exit_code"),
		Stdout:   stringField(res, "stdout"),
		Stderr:   stringField(res, "stderr"),
	}, nil
}

func (b *PodBackend) Stats(ctx context.Context, containerID string) (Stats, error) {
	res, err := b.call(ctx, "workspace.list", map[string]any{"container_id": containerID}, 0)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		CPUPercent:    floatField(res, "cpu_percent"),
		MemoryUsageMB: intField(res, "memory_usage_mb"),
	}, nil
}

func (b *PodBackend) ServerStats(ctx context.Context) (ServerStats, error) {
	res, err := b.call(ctx, "health", nil, 0)
	if err != nil {
		return ServerStats{}, err
	}
	return ServerStats{
		CPUPercent:    floatField(res, "cpu_percent"),
		MemoryUsedMB:  intField(res, "memory_used_mb"),
		MemoryTotalMB: intField(res, "memory_total_mb"),
	}, nil
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func floatField(m map[string]any, key string) float64 {
	if v, ok := m[key].(float64); ok {
		return v
	}
	return 0
}
