package permission

import (
	"context"
	"strings"
	"testing"
)

func TestHookExecutor_RunsSimpleCommand(t *testing.T) {
	e := NewHookExecutor()
	res := e.Run(context.Background(), HookDefinition{ID: "h1", Command: "echo hello"}, nil)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if !strings.Contains(res.Output, "hello") {
		t.Errorf("Output = %q, want it to contain 'hello'", res.Output)
	}
}

func TestHookExecutor_RejectsForbiddenPattern(t *testing.T) {
	e := NewHookExecutor()
	res := e.Run(context.Background(), HookDefinition{ID: "h1", Command: "echo hi && rm -rf /"}, nil)
	if res.Success {
		t.Error("expected forbidden pattern to fail")
	}
}

func TestHookExecutor_RingBufferCapsAt100(t *testing.T) {
	e := NewHookExecutor()
	for i := 0; i < 110; i++ {
		e.Run(context.Background(), HookDefinition{ID: "h", Command: "echo x"}, nil)
	}
	if len(e.History()) != 100 {
		t.Errorf("History() len = %d, want 100", len(e.History()))
	}
}

func TestHookExecutor_NonzeroExitIsFailure(t *testing.T) {
	e := NewHookExecutor()
	res := e.Run(context.Background(), HookDefinition{ID: "h1", Command: "false"}, nil)
	if res.Success {
		t.Error("expected nonzero exit to be a failure")
	}
}
