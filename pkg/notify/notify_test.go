package notify

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/podexhq/coordinator/internal/coreerrors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifier_DisabledWithoutBotToken(t *testing.T) {
	n := NewNotifier("", "#ops", testLogger())
	if n.IsEnabled() {
		t.Error("expected notifier without a bot token to be disabled")
	}
}

func TestNotifier_DisabledWithoutChannel(t *testing.T) {
	n := NewNotifier("xoxb-fake", "", testLogger())
	if n.IsEnabled() {
		t.Error("expected notifier without a channel to be disabled")
	}
}

func TestNotifier_NotifyFatalErrorNoopWhenDisabled(t *testing.T) {
	n := NewNotifier("", "", testLogger())
	if err := n.NotifyFatalError(context.Background(), "placement", coreerrors.Fatal(nil, "boom")); err != nil {
		t.Errorf("expected a noop, got error: %v", err)
	}
}

func TestNotifier_NotifyFatalErrorSkipsNonFatalKinds(t *testing.T) {
	n := NewNotifier("", "", testLogger())
	if err := n.NotifyFatalError(context.Background(), "placement", coreerrors.Validation("bad input")); err != nil {
		t.Errorf("expected a noop for a non-fatal kind, got error: %v", err)
	}
}

func TestNotifier_NotifyHostOfflineNoopWhenDisabled(t *testing.T) {
	n := NewNotifier("", "", testLogger())
	if err := n.NotifyHostOffline(context.Background(), "host-1", "box-a", "connection refused"); err != nil {
		t.Errorf("expected a noop, got error: %v", err)
	}
}
