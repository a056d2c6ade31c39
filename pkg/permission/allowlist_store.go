package permission

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/podexhq/coordinator/internal/coreerrors"
)

func allowlistKey(sessionID string) string {
	return fmt.Sprintf("podex:permission:allowlist:%s", sessionID)
}

// AllowlistStore persists each session's approved-command allowlist as
// a Redis set (RedisAuditSink keeps the audit log as a capped list
// instead): no relational schema for per-session state exists in this
// tree, so it lives directly in Redis.
type AllowlistStore struct {
	rdb *redis.Client
}

func NewAllowlistStore(rdb *redis.Client) *AllowlistStore {
	return &AllowlistStore{rdb: rdb}
}

// Add records command as allowed for future calls in sessionID.
func (s *AllowlistStore) Add(ctx context.Context, sessionID, command string) error {
	if err := s.rdb.SAdd(ctx, allowlistKey(sessionID), command).Err(); err != nil {
		return coreerrors.Transport(err, "adding allowlist entry for session %s", sessionID)
	}
	return nil
}

// List returns every command approved so far for sessionID.
func (s *AllowlistStore) List(ctx context.Context, sessionID string) ([]string, error) {
	entries, err := s.rdb.SMembers(ctx, allowlistKey(sessionID)).Result()
	if err != nil {
		return nil, coreerrors.Transport(err, "listing allowlist for session %s", sessionID)
	}
	return entries, nil
}
