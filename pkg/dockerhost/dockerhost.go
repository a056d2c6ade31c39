// Package dockerhost presents a uniform container-operations interface
// over a heterogeneous fleet of hosts: cloud hosts reached by dialing a
// Docker daemon directly, and self-hosted pods reached only by
// reverse-RPC (the control direction is reversed — the pod dialed out).
package dockerhost

import (
	"context"
	"time"
)

// Labels are attached to every container this package creates, used for
// idempotent-create matching and for ownership bookkeeping.
type Labels struct {
	WorkspaceID string
	UserID      string
	SessionID   string
	Tier        string
}

func (l Labels) asMap() map[string]string {
	return map[string]string{
		"workspace_id": l.WorkspaceID,
		"user_id":      l.UserID,
		"session_id":   l.SessionID,
		"tier":         l.Tier,
	}
}

func labelsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// ContainerSpec describes the container to create.
type ContainerSpec struct {
	Name         string
	Image        string
	Env          map[string]string
	Labels       Labels
	ExposedPorts []string // e.g. "3000/tcp", published to ephemeral host ports
}

// ContainerInfo is what backends return for create/inspect calls.
type ContainerInfo struct {
	ID     string
	Name   string
	Labels map[string]string
	State  string
}

// ExecRequest describes a bounded, pinned-non-root exec call.
type ExecRequest struct {
	Cmd     []string
	Timeout time.Duration // zero means DefaultExecTimeout
}

// ExecResult is the outcome of an exec call.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Stats is a point-in-time resource usage snapshot for one container.
type Stats struct {
	CPUPercent    float64
	MemoryUsageMB int
	MemoryLimitMB int
}

// ServerStats is a point-in-time resource usage snapshot for a whole host.
type ServerStats struct {
	CPUPercent    float64
	MemoryUsedMB  int
	MemoryTotalMB int
	DiskUsedGB    int
	DiskTotalGB   int
}

// DefaultExecTimeout is used when ExecRequest.Timeout is zero.
const DefaultExecTimeout = 30 * time.Second

// NonRootUser is the pinned identity every exec runs under.
const NonRootUser = "podex:podex"

// ErrConflict is returned by CreateContainer when a container with the
// same (host, name) exists but its labels don't match the request.
type ErrConflict struct {
	Name string
}

func (e *ErrConflict) Error() string {
	return "container " + e.Name + " already exists with different labels"
}

// Backend is the uniform operation set a host-specific implementation
// must provide. Two concrete backends satisfy it: CloudBackend (direct
// daemon client) and PodBackend (proxied over the realtime hub).
type Backend interface {
	CreateContainer(ctx context.Context, spec ContainerSpec) (ContainerInfo, error)
	Start(ctx context.Context, containerID string) error
	Stop(ctx context.Context, containerID string, timeout time.Duration) error
	Remove(ctx context.Context, containerID string, force bool) error
	Exec(ctx context.Context, containerID string, req ExecRequest) (ExecResult, error)
	Stats(ctx context.Context, containerID string) (Stats, error)
	ServerStats(ctx context.Context) (ServerStats, error)
}
