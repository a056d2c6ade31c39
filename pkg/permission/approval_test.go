package permission

import (
	"context"
	"testing"
	"time"
)

func TestBroker_ResolveDeliversDecision(t *testing.T) {
	b := NewBroker(time.Minute)
	id, wait := b.Request("sess-1", "rm -rf /tmp/x")

	go func() {
		info, ok := b.Resolve(id, Decision{Approved: true, AddAllowlist: true})
		if !ok {
			t.Error("Resolve() = false, want true for a known pending id")
		}
		if info.SessionID != "sess-1" || info.Command != "rm -rf /tmp/x" {
			t.Errorf("Resolve() info = %+v, want session/command from Request", info)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d, err := wait(ctx)
	if err != nil {
		t.Fatalf("wait() error = %v", err)
	}
	if !d.Approved || !d.AddAllowlist {
		t.Errorf("decision = %+v, want approved+add_allowlist", d)
	}
}

func TestBroker_ResolveUnknownIDReturnsFalse(t *testing.T) {
	b := NewBroker(time.Minute)
	id, _ := b.Request("sess-1", "ls")
	b.Resolve(id, Decision{Approved: true})

	if _, ok := b.Resolve(id, Decision{Approved: true}); ok {
		t.Error("Resolve() on an already-resolved id should return false")
	}
}

func TestBroker_ContextCancelUnblocksWait(t *testing.T) {
	b := NewBroker(time.Minute)
	_, wait := b.Request("sess-1", "ls")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := wait(ctx); err == nil {
		t.Error("expected wait() to return an error when context is already cancelled")
	}
}

func TestBroker_SweepFailsClosedPastTTL(t *testing.T) {
	b := NewBroker(time.Millisecond)
	_, wait := b.Request("sess-1", "ls")
	time.Sleep(5 * time.Millisecond)

	if n := b.Sweep(); n != 1 {
		t.Fatalf("Sweep() = %d, want 1 expired approval", n)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d, err := wait(ctx)
	if err != nil {
		t.Fatalf("wait() error = %v", err)
	}
	if d.Approved {
		t.Error("expected swept approval to fail closed (Approved=false)")
	}
}
