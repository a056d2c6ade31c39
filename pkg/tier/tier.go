// Package tier maps the closed set of subscription tiers onto concrete
// hardware resource requirements.
package tier

import "fmt"

// Tier is a closed enumeration of subscription/hardware classes.
type Tier string

const (
	Free       Tier = "FREE"
	Starter    Tier = "STARTER"
	Pro        Tier = "PRO"
	Team       Tier = "TEAM"
	Enterprise Tier = "ENTERPRISE"
	X86        Tier = "X86"
	ARM        Tier = "ARM"
	GPU        Tier = "GPU"
)

// ResourceRequirements is an immutable description of what a workspace
// needs from a host.
type ResourceRequirements struct {
	CPUCores    float64
	MemoryMB    int
	DiskGB      int
	GPURequired bool
	GPUKind     string
	GPUCount    int
}

// Requirements returns the resource requirements for a tier by consulting
// the catalog. Unknown tiers return an error — never silently coerced.
func (c *Catalog) Requirements(t Tier) (ResourceRequirements, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	spec, ok := c.specs[t]
	if !ok {
		return ResourceRequirements{}, fmt.Errorf("unknown tier %q", t)
	}

	req := ResourceRequirements{
		CPUCores: spec.VCPU,
		MemoryMB: spec.MemoryMB,
		DiskGB:   spec.DiskGBDefault,
	}
	if spec.Accelerator != nil {
		req.GPURequired = true
		req.GPUKind = spec.Accelerator.Kind
		req.GPUCount = spec.Accelerator.Count
		if req.GPUCount < 1 {
			req.GPUCount = 1
		}
	}
	return req, nil
}
