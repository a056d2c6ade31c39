package placement

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/podexhq/coordinator/internal/coreerrors"
)

const registryKey = "podex:hosts"

// UsageFunc reports a host's currently-committed CPU/memory footprint,
// summed from the workspaces the orchestrator has actually placed on
// it. Injected rather than computed here so this package never has to
// import the workspace store it's being queried on behalf of.
type UsageFunc func(ctx context.Context, hostID string) (cpuCores float64, memoryMB int, err error)

// HostRegistry is the admin-facing host inventory backing the
// placement engine's live Snapshot. Total* capacity is registered once
// per host; UsedCPU and UsedMemoryMB are recomputed on every Snapshot
// from usage, so they track what was actually placed. UsedDiskGB is not
// computed: Register zeroes it and Snapshot reports it as zero.
type HostRegistry struct {
	rdb    *redis.Client
	usage  UsageFunc
	logger *slog.Logger
}

// NewHostRegistry builds a HostRegistry. usage may be nil, in which
// case Snapshot reports registered capacity with zero usage.
func NewHostRegistry(rdb *redis.Client, usage UsageFunc, logger *slog.Logger) *HostRegistry {
	return &HostRegistry{rdb: rdb, usage: usage, logger: logger}
}

// Register adds or replaces a host's registered capacity.
func (h *HostRegistry) Register(ctx context.Context, host Host) error {
	host.UsedCPU = 0
	host.UsedMemoryMB = 0
	host.UsedDiskGB = 0
	b, err := json.Marshal(host)
	if err != nil {
		return coreerrors.Validation("serializing host %s: %v", host.ID, err)
	}
	if err := h.rdb.HSet(ctx, registryKey, host.ID, b).Err(); err != nil {
		return coreerrors.Transport(err, "registering host %s", host.ID)
	}
	return nil
}

// Unregister removes a host from the registry entirely, e.g. when it's
// decommissioned.
func (h *HostRegistry) Unregister(ctx context.Context, hostID string) error {
	if err := h.rdb.HDel(ctx, registryKey, hostID).Err(); err != nil {
		return coreerrors.Transport(err, "unregistering host %s", hostID)
	}
	return nil
}

// SetStatus transitions a registered host between active/draining/offline.
func (h *HostRegistry) SetStatus(ctx context.Context, hostID string, status HostStatus) error {
	raw, err := h.rdb.HGet(ctx, registryKey, hostID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return coreerrors.NotFound("host %s not registered", hostID)
		}
		return coreerrors.Transport(err, "fetching host %s", hostID)
	}
	var host Host
	if err := json.Unmarshal(raw, &host); err != nil {
		return coreerrors.Fatal(err, "corrupt host record %s", hostID)
	}
	host.Status = status
	b, err := json.Marshal(host)
	if err != nil {
		return coreerrors.Validation("serializing host %s: %v", hostID, err)
	}
	if err := h.rdb.HSet(ctx, registryKey, hostID, b).Err(); err != nil {
		return coreerrors.Transport(err, "updating host %s", hostID)
	}
	return nil
}

// Snapshot implements workspace.HostSnapshotter.
func (h *HostRegistry) Snapshot(ctx context.Context) ([]Host, error) {
	raw, err := h.rdb.HGetAll(ctx, registryKey).Result()
	if err != nil {
		return nil, coreerrors.Transport(err, "scanning host registry")
	}

	hosts := make([]Host, 0, len(raw))
	for id, b := range raw {
		var host Host
		if err := json.Unmarshal([]byte(b), &host); err != nil {
			h.logger.Error("corrupt host record", "host_id", id, "error", err)
			continue
		}
		if h.usage != nil {
			cpu, memMB, err := h.usage(ctx, host.ID)
			if err != nil {
				h.logger.Error("computing host usage", "host_id", id, "error", err)
			} else {
				host.UsedCPU = cpu
				host.UsedMemoryMB = memMB
			}
		}
		hosts = append(hosts, host)
	}
	return hosts, nil
}
