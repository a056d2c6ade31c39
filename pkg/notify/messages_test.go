package notify

import (
	"errors"
	"strings"
	"testing"
)

func TestFatalErrorBlocks_IncludesSourceAndError(t *testing.T) {
	msg := fatalErrorBlocks("placement", errors.New("no host satisfies request"))
	if len(msg.blocks) == 0 {
		t.Fatal("expected at least one block")
	}
	if !strings.Contains(msg.fallback, "placement") {
		t.Errorf("fallback = %q, want it to mention the source", msg.fallback)
	}
	if !strings.Contains(msg.fallback, "no host satisfies request") {
		t.Errorf("fallback = %q, want it to mention the error", msg.fallback)
	}
}

func TestHostOfflineBlocks_IncludesHostAndError(t *testing.T) {
	msg := hostOfflineBlocks("host-1", "box-a", "connection refused")
	if !strings.Contains(msg.fallback, "box-a") {
		t.Errorf("fallback = %q, want it to mention the hostname", msg.fallback)
	}
	if len(msg.blocks) < 3 {
		t.Errorf("expected a header, fields, and a last-error block, got %d blocks", len(msg.blocks))
	}
}

func TestHostOfflineBlocks_OmitsLastErrorBlockWhenEmpty(t *testing.T) {
	msg := hostOfflineBlocks("host-1", "box-a", "")
	if len(msg.blocks) != 2 {
		t.Errorf("expected header + fields only, got %d blocks", len(msg.blocks))
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	got := truncate("this is a long string", 10)
	if len(got) != 10 {
		t.Errorf("len(truncate(...)) = %d, want 10", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncate result = %q, want ellipsis suffix", got)
	}
}
