package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/podexhq/coordinator/internal/coreerrors"
	"github.com/podexhq/coordinator/pkg/dockerhost"
	"github.com/podexhq/coordinator/pkg/placement"
	"github.com/podexhq/coordinator/pkg/tier"
)

// Store persists Workspace records. The orchestrator is the single
// writer; Store implementations must not apply any business logic.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (Workspace, error)
	Put(ctx context.Context, ws Workspace) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByHost(ctx context.Context, hostID string) ([]Workspace, error)
	ListByOwner(ctx context.Context, ownerUserID string) ([]Workspace, error)
}

// HostSnapshotter gives the orchestrator a live view of fleet capacity
// to hand to the placement engine.
type HostSnapshotter interface {
	Snapshot(ctx context.Context) ([]placement.Host, error)
}

// ContainerOps is the subset of dockerhost.Router the orchestrator
// needs, named here so this package doesn't have to import the concrete
// Router type for testing.
type ContainerOps interface {
	CreateContainer(ctx context.Context, hostID string, spec dockerhost.ContainerSpec) (dockerhost.ContainerInfo, error)
	Start(ctx context.Context, hostID, containerID string) error
	Stop(ctx context.Context, hostID, containerID string, timeout time.Duration) error
	Remove(ctx context.Context, hostID, containerID string, force bool) error
	Exec(ctx context.Context, hostID, containerID string, req dockerhost.ExecRequest) (dockerhost.ExecResult, error)
}

// Orchestrator owns the workspace state machine. It is the single
// writer to the workspace store; concurrent callers serialize per
// workspace id via an internal mutex registry.
type Orchestrator struct {
	store    Store
	hosts    HostSnapshotter
	docker   ContainerOps
	catalog  *tier.Catalog
	logger   *slog.Logger

	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
}

// NewOrchestrator builds an Orchestrator.
func NewOrchestrator(store Store, hosts HostSnapshotter, docker ContainerOps, catalog *tier.Catalog, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:   store,
		hosts:   hosts,
		docker:  docker,
		catalog: catalog,
		logger:  logger,
		locks:   make(map[uuid.UUID]*sync.Mutex),
	}
}

func (o *Orchestrator) lockFor(id uuid.UUID) *sync.Mutex {
	o.locksMu.Lock()
	defer o.locksMu.Unlock()
	l, ok := o.locks[id]
	if !ok {
		l = &sync.Mutex{}
		o.locks[id] = l
	}
	return l
}

// Result is returned by Create; it carries the placement decision that
// was made alongside the resulting workspace.
type Result struct {
	Workspace Workspace
	Placement placement.Decision
}

// Create resolves tier -> resource requirements, asks the placement
// engine for a host, asks the Docker abstraction to create the
// container, and only then persists the workspace record. On
// container-creation failure the workspace is never persisted and no
// host capacity is charged.
func (o *Orchestrator) Create(ctx context.Context, ownerUserID, sessionID string, cfg Config, strategyOverride placement.Strategy) (Result, error) {
	req, err := o.catalog.Requirements(cfg.Tier)
	if err != nil {
		return Result{}, coreerrors.Validation("resolving tier: %v", err)
	}

	hosts, err := o.hosts.Snapshot(ctx)
	if err != nil {
		return Result{}, coreerrors.Transport(err, "snapshotting host capacity")
	}

	decision := placement.Decide(placement.Request{
		Requirements: req,
		Strategy:     strategyOverride,
	}, hosts)
	if !decision.Success {
		return Result{}, coreerrors.Capacity("%s", decision.Reason)
	}

	id := uuid.New()
	name := "podex-ws-" + id.String()

	info, err := o.docker.CreateContainer(ctx, decision.HostID, dockerhost.ContainerSpec{
		Name:  name,
		Image: cfg.Image,
		Env:   cfg.Env,
		Labels: dockerhost.Labels{
			WorkspaceID: id.String(),
			UserID:      ownerUserID,
			SessionID:   sessionID,
			Tier:        string(cfg.Tier),
		},
	})
	if err != nil {
		// Container creation failed: no workspace record, no capacity charged.
		return Result{}, coreerrors.Transport(err, "creating container on host %s", decision.HostID)
	}

	ws := Workspace{
		ID:             id,
		OwnerUserID:    ownerUserID,
		SessionID:      sessionID,
		Status:         StatusCreating,
		Tier:           cfg.Tier,
		Hardware:       HardwareClass{VCPU: req.CPUCores, MemoryMB: req.MemoryMB, AcceleratorKind: req.GPUKind, AcceleratorQty: req.GPUCount},
		Image:          cfg.Image,
		HostID:         decision.HostID,
		ContainerID:    info.ID,
		CreatedAt:      time.Now(),
		LastActivity:   time.Now(),
		Env:            cfg.Env,
		RepositoryURLs: cfg.RepositoryURLs,
		PreserveData:   cfg.PreserveData,
	}

	if err := o.docker.Start(ctx, decision.HostID, info.ID); err != nil {
		ws.Status = StatusError
		ws.MigrationReason = ""
		_ = o.store.Put(ctx, ws)
		return Result{Workspace: ws, Placement: decision}, coreerrors.Transport(err, "starting container")
	}

	ws.Status = StatusRunning
	if err := o.store.Put(ctx, ws); err != nil {
		return Result{}, coreerrors.Transport(err, "persisting workspace")
	}

	return Result{Workspace: ws, Placement: decision}, nil
}

func (o *Orchestrator) transition(ctx context.Context, id uuid.UUID, to Status, mutate func(*Workspace)) (Workspace, error) {
	lock := o.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	ws, err := o.store.Get(ctx, id)
	if err != nil {
		return Workspace{}, coreerrors.NotFound("workspace %s: %v", id, err)
	}

	if !CanTransition(ws.Status, to) {
		return Workspace{}, &TransitionError{From: ws.Status, To: to}
	}

	ws.Status = to
	ws.LastActivity = time.Now()
	if mutate != nil {
		mutate(&ws)
	}

	if err := o.store.Put(ctx, ws); err != nil {
		return Workspace{}, coreerrors.Transport(err, "persisting workspace %s", id)
	}
	return ws, nil
}

// Stop preconditions on status == running.
func (o *Orchestrator) Stop(ctx context.Context, id uuid.UUID) (Workspace, error) {
	ws, err := o.store.Get(ctx, id)
	if err != nil {
		return Workspace{}, coreerrors.NotFound("workspace %s: %v", id, err)
	}
	if ws.Status != StatusRunning {
		return Workspace{}, &TransitionError{From: ws.Status, To: StatusStopped}
	}
	if err := o.docker.Stop(ctx, ws.HostID, ws.ContainerID, 30*time.Second); err != nil {
		o.logger.Error("stopping container", "workspace_id", id, "error", err)
	}
	return o.transition(ctx, id, StatusStopped, nil)
}

// Start preconditions on status == stopped.
func (o *Orchestrator) Start(ctx context.Context, id uuid.UUID) (Workspace, error) {
	ws, err := o.store.Get(ctx, id)
	if err != nil {
		return Workspace{}, coreerrors.NotFound("workspace %s: %v", id, err)
	}
	if ws.Status != StatusStopped {
		return Workspace{}, &TransitionError{From: ws.Status, To: StatusRunning}
	}
	if err := o.docker.Start(ctx, ws.HostID, ws.ContainerID); err != nil {
		return Workspace{}, coreerrors.Transport(err, "starting container")
	}
	return o.transition(ctx, id, StatusRunning, nil)
}

// Delete is idempotent: force-removes the container (retaining volumes
// iff PreserveData), then removes the workspace record. Container-remove
// errors are logged but never block record removal — the record is the
// source of truth.
func (o *Orchestrator) Delete(ctx context.Context, id uuid.UUID) error {
	lock := o.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	ws, err := o.store.Get(ctx, id)
	if err != nil {
		if coreerrors.KindOf(err) == coreerrors.KindNotFound {
			return nil // already gone: idempotent
		}
		return coreerrors.NotFound("workspace %s: %v", id, err)
	}

	if ws.ContainerID != "" {
		if err := o.docker.Remove(ctx, ws.HostID, ws.ContainerID, true); err != nil {
			o.logger.Error("removing container during workspace delete", "workspace_id", id, "error", err)
		}
	}

	return o.store.Delete(ctx, id)
}

// ExecResult mirrors the orchestrator-level exec contract: a synthetic
// exit code of -1 signals an orchestrator failure, never a successful
// in-container run.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Exec preconditions on status == running; otherwise returns the
// synthetic not-running result rather than an error, matching the
// orchestrator-level exit-code convention.
func (o *Orchestrator) Exec(ctx context.Context, id uuid.UUID, req dockerhost.ExecRequest) (ExecResult, error) {
	ws, err := o.store.Get(ctx, id)
	if err != nil {
		return ExecResult{}, coreerrors.NotFound("workspace %s: %v", id, err)
	}

	if ws.Status != StatusRunning {
		return ExecResult{ExitCode: -1, Stderr: fmt.Sprintf("not running (status=%s)", ws.Status)}, nil
	}

	res, err := o.docker.Exec(ctx, ws.HostID, ws.ContainerID, req)
	ws.LastActivity = time.Now()
	_ = o.store.Put(ctx, ws)

	if err != nil {
		return ExecResult{ExitCode: -1, Stderr: err.Error()}, nil
	}
	return ExecResult{ExitCode: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr}, nil
}

// HealthCheck runs the configured health check (default: a bare
// `echo healthy` exit-code check) inside the workspace.
func (o *Orchestrator) HealthCheck(ctx context.Context, id uuid.UUID, check Check) (bool, error) {
	ws, err := o.store.Get(ctx, id)
	if err != nil {
		return false, coreerrors.NotFound("workspace %s: %v", id, err)
	}
	if ws.Status != StatusRunning {
		return false, nil
	}

	res, err := o.docker.Exec(ctx, ws.HostID, ws.ContainerID, dockerhost.ExecRequest{
		Cmd:     check.Command(),
		Timeout: check.Timeout(),
	})
	if err != nil {
		return false, nil
	}
	return check.Evaluate(res), nil
}

// ListByHost returns all workspaces bound to a host. The placement
// snapshot builder in internal/app reads the same data from the
// store's ListByHost directly.
func (o *Orchestrator) ListByHost(ctx context.Context, hostID string) ([]Workspace, error) {
	return o.store.ListByHost(ctx, hostID)
}

// ListByOwner returns all workspaces belonging to an owner, newest
// first, used by the list endpoint to page through a caller's own
// workspaces.
func (o *Orchestrator) ListByOwner(ctx context.Context, ownerUserID string) ([]Workspace, error) {
	return o.store.ListByOwner(ctx, ownerUserID)
}

// Get returns a workspace by id.
func (o *Orchestrator) Get(ctx context.Context, id uuid.UUID) (Workspace, error) {
	return o.store.Get(ctx, id)
}
