package permission

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/podexhq/coordinator/internal/coreerrors"
)

const auditLogKey = "podex:permission:audit"
const auditLogCap = 10000

// RedisAuditSink persists audit entries to a capped Redis list. The
// relational schema the teacher's equivalent audit table used is out
// of scope here, so entries live alongside the rest of this
// coordinator's Redis-backed state.
type RedisAuditSink struct {
	rdb *redis.Client
}

func NewRedisAuditSink(rdb *redis.Client) *RedisAuditSink {
	return &RedisAuditSink{rdb: rdb}
}

func (s *RedisAuditSink) WriteAuditEntries(ctx context.Context, entries []AuditEntry) error {
	pipe := s.rdb.Pipeline()
	for _, e := range entries {
		b, err := json.Marshal(e)
		if err != nil {
			return coreerrors.Validation("serializing audit entry: %v", err)
		}
		pipe.LPush(ctx, auditLogKey, b)
	}
	pipe.LTrim(ctx, auditLogKey, 0, auditLogCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return coreerrors.Transport(err, "writing %d audit entries", len(entries))
	}
	return nil
}

// Recent returns the most recent n audit entries, newest first.
func (s *RedisAuditSink) Recent(ctx context.Context, n int) ([]AuditEntry, error) {
	raw, err := s.rdb.LRange(ctx, auditLogKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, coreerrors.Transport(err, "reading audit log")
	}
	out := make([]AuditEntry, 0, len(raw))
	for _, b := range raw {
		var e AuditEntry
		if err := json.Unmarshal([]byte(b), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
