package workspace

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/podexhq/coordinator/internal/coreerrors"
)

const workspaceKeyPrefix = "podex:workspace:"
const workspaceHostIndexPrefix = "podex:workspace:host:"
const workspaceOwnerIndexPrefix = "podex:workspace:owner:"

func workspaceKey(id uuid.UUID) string    { return workspaceKeyPrefix + id.String() }
func hostIndexKey(hostID string) string   { return workspaceHostIndexPrefix + hostID }
func ownerIndexKey(ownerUserID string) string { return workspaceOwnerIndexPrefix + ownerUserID }

// RedisStore persists Workspace records in Redis, indexed by id, by
// host, and by owner so the placement snapshot's usage lookup, the
// orchestrator's ListByHost, and the owner-scoped list endpoint can
// each resolve their slice of workspaces without a scan.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore builds a RedisStore.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Get(ctx context.Context, id uuid.UUID) (Workspace, error) {
	raw, err := s.rdb.Get(ctx, workspaceKey(id)).Bytes()
	if err == redis.Nil {
		return Workspace{}, coreerrors.NotFound("workspace %s not found", id)
	}
	if err != nil {
		return Workspace{}, coreerrors.Transport(err, "fetching workspace %s", id)
	}
	var ws Workspace
	if err := json.Unmarshal(raw, &ws); err != nil {
		return Workspace{}, coreerrors.Fatal(err, "corrupt workspace record %s", id)
	}
	return ws, nil
}

func (s *RedisStore) Put(ctx context.Context, ws Workspace) error {
	b, err := json.Marshal(ws)
	if err != nil {
		return coreerrors.Validation("serializing workspace %s: %v", ws.ID, err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, workspaceKey(ws.ID), b, 0)
	if ws.HostID != "" {
		pipe.SAdd(ctx, hostIndexKey(ws.HostID), ws.ID.String())
	}
	if ws.OwnerUserID != "" {
		pipe.ZAdd(ctx, ownerIndexKey(ws.OwnerUserID), redis.Z{Score: float64(ws.CreatedAt.UnixMicro()), Member: ws.ID.String()})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return coreerrors.Transport(err, "persisting workspace %s", ws.ID)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id uuid.UUID) error {
	ws, err := s.Get(ctx, id)
	if err != nil {
		if coreerrors.KindOf(err) == coreerrors.KindNotFound {
			return nil
		}
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, workspaceKey(id))
	if ws.HostID != "" {
		pipe.SRem(ctx, hostIndexKey(ws.HostID), id.String())
	}
	if ws.OwnerUserID != "" {
		pipe.ZRem(ctx, ownerIndexKey(ws.OwnerUserID), id.String())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return coreerrors.Transport(err, "deleting workspace %s", id)
	}
	return nil
}

func (s *RedisStore) ListByHost(ctx context.Context, hostID string) ([]Workspace, error) {
	ids, err := s.rdb.SMembers(ctx, hostIndexKey(hostID)).Result()
	if err != nil {
		return nil, coreerrors.Transport(err, "listing workspaces for host %s", hostID)
	}

	out := make([]Workspace, 0, len(ids))
	for _, idStr := range ids {
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		ws, err := s.Get(ctx, id)
		if err != nil {
			if coreerrors.KindOf(err) == coreerrors.KindNotFound {
				s.rdb.SRem(ctx, hostIndexKey(hostID), idStr)
				continue
			}
			return nil, err
		}
		if ws.HostID != hostID {
			// Stale entry left behind when the workspace moved hosts.
			s.rdb.SRem(ctx, hostIndexKey(hostID), idStr)
			continue
		}
		out = append(out, ws)
	}
	return out, nil
}

// ListByOwner returns every workspace belonging to an owner, newest
// first. Paging (offset/limit) is applied by the caller, not here, so
// the handler's total_items count always reflects the full set.
func (s *RedisStore) ListByOwner(ctx context.Context, ownerUserID string) ([]Workspace, error) {
	ids, err := s.rdb.ZRevRange(ctx, ownerIndexKey(ownerUserID), 0, -1).Result()
	if err != nil {
		return nil, coreerrors.Transport(err, "listing workspaces for owner %s", ownerUserID)
	}

	out := make([]Workspace, 0, len(ids))
	for _, idStr := range ids {
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		ws, err := s.Get(ctx, id)
		if err != nil {
			if coreerrors.KindOf(err) == coreerrors.KindNotFound {
				s.rdb.ZRem(ctx, ownerIndexKey(ownerUserID), idStr)
				continue
			}
			return nil, err
		}
		out = append(out, ws)
	}
	return out, nil
}
