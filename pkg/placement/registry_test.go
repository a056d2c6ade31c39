package placement

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/podexhq/coordinator/internal/coreerrors"
)

func newTestRegistry(t *testing.T, usage UsageFunc) *HostRegistry {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHostRegistry(rdb, usage, logger)
}

func TestHostRegistry_RegisterSnapshot(t *testing.T) {
	r := newTestRegistry(t, nil)
	ctx := context.Background()

	host := Host{ID: "host-1", Hostname: "h1", Status: HostActive, TotalCPU: 16, TotalMemoryMB: 65536}
	if err := r.Register(ctx, host); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	hosts, err := r.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(hosts) != 1 || hosts[0].ID != "host-1" || hosts[0].TotalCPU != 16 {
		t.Errorf("Snapshot() = %+v", hosts)
	}
}

func TestHostRegistry_SnapshotAppliesUsage(t *testing.T) {
	r := newTestRegistry(t, func(ctx context.Context, hostID string) (float64, int, error) {
		return 4.5, 2048, nil
	})
	ctx := context.Background()

	if err := r.Register(ctx, Host{ID: "host-1", TotalCPU: 16, TotalMemoryMB: 65536}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	hosts, err := r.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if hosts[0].UsedCPU != 4.5 || hosts[0].UsedMemoryMB != 2048 {
		t.Errorf("Snapshot() usage = %+v, want 4.5 cpu / 2048 mb", hosts[0])
	}
}

func TestHostRegistry_RegisterResetsUsage(t *testing.T) {
	r := newTestRegistry(t, nil)
	ctx := context.Background()

	host := Host{ID: "host-1", TotalCPU: 16, UsedCPU: 99}
	if err := r.Register(ctx, host); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	hosts, err := r.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if hosts[0].UsedCPU != 0 {
		t.Errorf("Register() should reset UsedCPU, got %v", hosts[0].UsedCPU)
	}
}

func TestHostRegistry_SetStatusNotFound(t *testing.T) {
	r := newTestRegistry(t, nil)
	err := r.SetStatus(context.Background(), "missing", HostDraining)
	if coreerrors.KindOf(err) != coreerrors.KindNotFound {
		t.Errorf("SetStatus() error kind = %v, want NotFound", coreerrors.KindOf(err))
	}
}

func TestHostRegistry_SetStatusUnregister(t *testing.T) {
	r := newTestRegistry(t, nil)
	ctx := context.Background()

	if err := r.Register(ctx, Host{ID: "host-1", Status: HostActive}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.SetStatus(ctx, "host-1", HostDraining); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}

	hosts, err := r.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if hosts[0].Status != HostDraining {
		t.Errorf("Snapshot() status = %v, want draining", hosts[0].Status)
	}

	if err := r.Unregister(ctx, "host-1"); err != nil {
		t.Fatalf("Unregister() error = %v", err)
	}
	hosts, err = r.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(hosts) != 0 {
		t.Errorf("Snapshot() after unregister = %+v, want empty", hosts)
	}
}
