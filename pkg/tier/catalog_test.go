package tier

import (
	"log/slog"
	"io"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCatalog_RequirementsUnknownTier(t *testing.T) {
	c := NewCatalog(testLogger())
	if _, err := c.Requirements(Tier("NOT_A_TIER")); err == nil {
		t.Fatal("expected error for unknown tier, got nil")
	}
}

func TestCatalog_RequirementsKnownTier(t *testing.T) {
	c := NewCatalog(testLogger())
	req, err := c.Requirements(Pro)
	if err != nil {
		t.Fatalf("Requirements(Pro) error = %v", err)
	}
	if req.CPUCores <= 0 || req.MemoryMB <= 0 {
		t.Errorf("unexpected zero-value requirements: %+v", req)
	}
}

func TestCatalog_GPUTierSetsRequirement(t *testing.T) {
	c := NewCatalog(testLogger())
	req, err := c.Requirements(GPU)
	if err != nil {
		t.Fatalf("Requirements(GPU) error = %v", err)
	}
	if !req.GPURequired || req.GPUKind == "" {
		t.Errorf("GPU tier should set GPURequired and GPUKind, got %+v", req)
	}
	if req.GPUCount != 1 {
		t.Errorf("GPU tier's default catalog entry should request 1 GPU, got %+v", req)
	}
}

func TestCatalog_ExtendAndDelete(t *testing.T) {
	c := NewCatalog(testLogger())

	c.Extend(Tier("CUSTOM"), HardwareSpec{Arch: "arm64", VCPU: 2, MemoryMB: 2048, DiskGBDefault: 10})
	if _, ok := c.Get(Tier("CUSTOM")); !ok {
		t.Fatal("expected CUSTOM tier to be present after Extend")
	}

	c.Delete(Tier("CUSTOM"))
	if _, ok := c.Get(Tier("CUSTOM")); ok {
		t.Fatal("expected CUSTOM tier to be gone after Delete")
	}
}

func TestCatalog_DeleteUnknownIsNoop(t *testing.T) {
	c := NewCatalog(testLogger())
	c.Delete(Tier("DOES_NOT_EXIST")) // must not panic
}
