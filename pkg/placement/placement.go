// Package placement implements the Capacity & Placement Engine: given a
// ResourceRequirements and a live snapshot of Hosts, it ranks and selects
// the host a new workspace should land on.
package placement

import (
	"fmt"
	"sort"

	"github.com/podexhq/coordinator/pkg/tier"
)

// Strategy selects how candidate hosts are ranked.
type Strategy string

const (
	BinPack        Strategy = "bin-pack"
	Spread         Strategy = "spread"
	Affinity       Strategy = "affinity"
	RegionLocality Strategy = "region-locality"
)

// HostStatus mirrors the host lifecycle states from the data model.
type HostStatus string

const (
	HostActive   HostStatus = "active"
	HostDraining HostStatus = "draining"
	HostOffline  HostStatus = "offline"
)

// AcceleratorInventory describes one kind of accelerator available on a
// host and how many units remain free.
type AcceleratorInventory struct {
	Kind      string
	Total     int
	Used      int
}

func (a AcceleratorInventory) Free() int { return a.Total - a.Used }

// Host is a read-only snapshot of one host's capacity used for a single
// placement decision. Callers build this from their live host registry;
// placement never mutates it.
type Host struct {
	ID            string
	Hostname      string
	Status        HostStatus
	Arch          string
	Region        string
	Labels        map[string]string
	TotalCPU      float64
	UsedCPU       float64
	TotalMemoryMB int
	UsedMemoryMB  int
	TotalDiskGB   int
	UsedDiskGB    int
	Accelerators  []AcceleratorInventory
}

func (h Host) freeCPU() float64    { return h.TotalCPU - h.UsedCPU }
func (h Host) freeMemoryMB() int   { return h.TotalMemoryMB - h.UsedMemoryMB }
func (h Host) freeDiskGB() int     { return h.TotalDiskGB - h.UsedDiskGB }

func (h Host) accelerator(kind string) (AcceleratorInventory, bool) {
	for _, a := range h.Accelerators {
		if a.Kind == kind {
			return a, true
		}
	}
	return AcceleratorInventory{}, false
}

// utilization returns the max of CPU/memory/disk fractional utilization
// the host would have after adding the given requirement.
func (h Host) utilizationAfter(req tier.ResourceRequirements) float64 {
	cpuFrac := 0.0
	if h.TotalCPU > 0 {
		cpuFrac = (h.UsedCPU + req.CPUCores) / h.TotalCPU
	}
	memFrac := 0.0
	if h.TotalMemoryMB > 0 {
		memFrac = float64(h.UsedMemoryMB+req.MemoryMB) / float64(h.TotalMemoryMB)
	}
	diskFrac := 0.0
	if h.TotalDiskGB > 0 {
		diskFrac = float64(h.UsedDiskGB+req.DiskGB) / float64(h.TotalDiskGB)
	}
	return max3(cpuFrac, memFrac, diskFrac)
}

func max3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

// Decision is the immutable result of a placement attempt.
type Decision struct {
	Success  bool
	HostID   string
	Hostname string
	Score    float64
	Reason   string
}

// Request carries everything the engine needs to make a decision.
type Request struct {
	Requirements    tier.ResourceRequirements
	Arch            string            // empty means any architecture matches
	Strategy        Strategy          // zero value defaults to BinPack
	AffinityHostID  string            // used only when Strategy == Affinity
	PreferredRegion string            // used only when Strategy == RegionLocality
	TierLabels      map[string]string // tier-/label-based admission rules to match against host Labels
}

// maxBinPackUtilization is the ceiling past which a bin-pack candidate is
// rejected even though it technically fits — a host projected past 95%
// on any axis is too tight to be a safe bin-pack target.
const maxBinPackUtilization = 0.95

// Decide ranks hosts and returns a Decision. An empty/zero Strategy is
// treated as BinPack.
func Decide(req Request, hosts []Host) Decision {
	strategy := req.Strategy
	if strategy == "" {
		strategy = BinPack
	}

	switch strategy {
	case Affinity:
		return decideAffinity(req, hosts)
	case RegionLocality:
		return decideRegionLocality(req, hosts)
	case Spread:
		return decideScored(req, hosts, spreadScore)
	default:
		return decideScored(req, hosts, binPackScore)
	}
}

func decideAffinity(req Request, hosts []Host) Decision {
	for _, h := range hosts {
		if h.ID == req.AffinityHostID {
			if ok, reason := passesFilters(req, h); ok {
				return Decision{Success: true, HostID: h.ID, Hostname: h.Hostname, Score: 1, Reason: "affinity match"}
			} else {
				// fall through to default strategy below, but note why affinity failed
				_ = reason
			}
			break
		}
	}
	d := decideScored(req, hosts, binPackScore)
	if !d.Success {
		d.Reason = "affinity host unavailable, and " + d.Reason
	}
	return d
}

func decideRegionLocality(req Request, hosts []Host) Decision {
	var regional []Host
	for _, h := range hosts {
		if h.Region == req.PreferredRegion {
			regional = append(regional, h)
		}
	}
	if len(regional) > 0 {
		d := decideScored(req, regional, binPackScore)
		if d.Success {
			return d
		}
	}
	return decideScored(req, hosts, binPackScore)
}

type scoreFn func(h Host, req tier.ResourceRequirements) (float64, bool)

func binPackScore(h Host, req tier.ResourceRequirements) (float64, bool) {
	u := h.utilizationAfter(req)
	if u > maxBinPackUtilization {
		return 0, false
	}
	return u, true
}

func spreadScore(h Host, req tier.ResourceRequirements) (float64, bool) {
	u := h.utilizationAfter(req)
	return 1 - u, true
}

func decideScored(req Request, hosts []Host, score scoreFn) Decision {
	type candidate struct {
		host  Host
		score float64
	}

	var firstFailAxis string
	var candidates []candidate

	for _, h := range hosts {
		ok, reason := passesFilters(req, h)
		if !ok {
			if firstFailAxis == "" {
				firstFailAxis = reason
			}
			continue
		}
		s, fits := score(h, req.Requirements)
		if !fits {
			if firstFailAxis == "" {
				firstFailAxis = "projected utilization exceeds safe bin-pack ceiling"
			}
			continue
		}
		candidates = append(candidates, candidate{host: h, score: s})
	}

	if len(candidates) == 0 {
		reason := firstFailAxis
		if reason == "" {
			reason = "no hosts available"
		}
		return Decision{Success: false, Reason: reason}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		// Deterministic tie-break by (hostname, host_id).
		if candidates[i].host.Hostname != candidates[j].host.Hostname {
			return candidates[i].host.Hostname < candidates[j].host.Hostname
		}
		return candidates[i].host.ID < candidates[j].host.ID
	})

	best := candidates[0]
	return Decision{
		Success:  true,
		HostID:   best.host.ID,
		Hostname: best.host.Hostname,
		Score:    best.score,
		Reason:   "selected by strategy score",
	}
}

// passesFilters applies the filter pipeline in the mandated order and
// returns a human-readable reason naming the first failed axis.
func passesFilters(req Request, h Host) (bool, string) {
	if h.Status != HostActive {
		return false, "host " + h.ID + " is not active (status=" + string(h.Status) + ")"
	}

	if req.Arch != "" && h.Arch != req.Arch {
		return false, "host " + h.ID + " architecture " + h.Arch + " does not match requested " + req.Arch
	}

	if req.Requirements.GPURequired {
		wantCount := req.Requirements.GPUCount
		if wantCount < 1 {
			wantCount = 1
		}
		acc, ok := h.accelerator(req.Requirements.GPUKind)
		if !ok || acc.Free() < wantCount {
			return false, fmt.Sprintf("no host with >= %d GPU of kind %s in active hosts", wantCount, req.Requirements.GPUKind)
		}
	}

	if h.freeCPU() < req.Requirements.CPUCores {
		return false, "insufficient free CPU on host " + h.ID
	}
	if h.freeMemoryMB() < req.Requirements.MemoryMB {
		return false, "insufficient free memory on host " + h.ID
	}
	if h.freeDiskGB() < req.Requirements.DiskGB {
		return false, "insufficient free disk on host " + h.ID
	}

	for k, v := range req.TierLabels {
		if h.Labels[k] != v {
			return false, "host " + h.ID + " does not satisfy admission label " + k + "=" + v
		}
	}

	return true, ""
}
