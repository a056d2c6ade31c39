package workspace

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/podexhq/coordinator/internal/coreerrors"
	"github.com/podexhq/coordinator/pkg/dockerhost"
)

// Migrate performs the cold migration protocol: stop, mark migrating,
// create on the target host, rebind, start. No image is committed or
// transferred: the target container is created from ws.Image, not from
// a snapshot of the source container.
// If any step past "mark migrating" fails, the workspace is left in
// StatusError with a migration-failure reason — it is never silently
// resumed on the source host.
func (o *Orchestrator) Migrate(ctx context.Context, id uuid.UUID, targetHostID string) (Workspace, error) {
	lock := o.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	ws, err := o.store.Get(ctx, id)
	if err != nil {
		return Workspace{}, coreerrors.NotFound("workspace %s: %v", id, err)
	}

	if err := o.docker.Stop(ctx, ws.HostID, ws.ContainerID, 30*time.Second); err != nil {
		return Workspace{}, coreerrors.Transport(err, "stopping workspace before migration")
	}

	ws.Migrating = true
	if err := o.store.Put(ctx, ws); err != nil {
		return Workspace{}, coreerrors.Transport(err, "marking workspace as migrating")
	}

	// Past this point, any failure leaves the workspace in StatusError
	// rather than resuming it on the source host.
	fail := func(reason string, cause error) (Workspace, error) {
		ws.Status = StatusError
		ws.Migrating = false
		ws.MigrationReason = reason
		_ = o.store.Put(ctx, ws)
		return ws, coreerrors.Transport(cause, "%s", reason)
	}

	sourceHostID := ws.HostID
	sourceContainerID := ws.ContainerID

	info, err := o.docker.CreateContainer(ctx, targetHostID, dockerhost.ContainerSpec{
		Name:  "podex-ws-" + ws.ID.String(),
		Image: ws.Image,
		Env:   ws.Env,
		Labels: dockerhost.Labels{
			WorkspaceID: ws.ID.String(),
			UserID:      ws.OwnerUserID,
			SessionID:   ws.SessionID,
			Tier:        string(ws.Tier),
		},
	})
	if err != nil {
		return fail("creating container on target host "+targetHostID, err)
	}

	ws.HostID = targetHostID
	ws.ContainerID = info.ID

	if err := o.docker.Start(ctx, targetHostID, info.ID); err != nil {
		return fail("starting container on target host "+targetHostID, err)
	}

	ws.Status = StatusRunning
	ws.LastActivity = time.Now()
	ws.Migrating = false
	ws.MigrationReason = ""
	if err := o.store.Put(ctx, ws); err != nil {
		return Workspace{}, coreerrors.Transport(err, "persisting migrated workspace")
	}

	// Best-effort cleanup of the source container; failure here does
	// not affect the already-committed migration.
	if err := o.docker.Remove(ctx, sourceHostID, sourceContainerID, true); err != nil {
		o.logger.Error("removing source container after migration", "workspace_id", id, "error", err)
	}

	return ws, nil
}
