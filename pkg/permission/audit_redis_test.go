package permission

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestAuditSink(t *testing.T) *RedisAuditSink {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisAuditSink(rdb)
}

func TestRedisAuditSink_WriteAndRecent(t *testing.T) {
	s := newTestAuditSink(t)
	ctx := context.Background()

	entries := []AuditEntry{
		{SessionID: "sess-1", Tool: "bash", Outcome: "allowed", At: time.Now()},
		{SessionID: "sess-1", Tool: "edit", Outcome: "denied", At: time.Now()},
	}
	if err := s.WriteAuditEntries(ctx, entries); err != nil {
		t.Fatalf("WriteAuditEntries() error = %v", err)
	}

	got, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent() returned %d entries, want 2", len(got))
	}
	// LPush means the most recently written batch's last entry is newest.
	if got[0].Tool != "edit" || got[1].Tool != "bash" {
		t.Errorf("Recent() order = %+v", got)
	}
}

func TestRedisAuditSink_RecentCap(t *testing.T) {
	s := newTestAuditSink(t)
	ctx := context.Background()

	for i := 0; i < auditLogCap+10; i++ {
		if err := s.WriteAuditEntries(ctx, []AuditEntry{{SessionID: "sess-1", Tool: "bash"}}); err != nil {
			t.Fatalf("WriteAuditEntries() error = %v", err)
		}
	}

	got, err := s.Recent(ctx, auditLogCap+100)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != auditLogCap {
		t.Errorf("Recent() returned %d entries, want capped at %d", len(got), auditLogCap)
	}
}
