package tier

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Accelerator describes an optional GPU/accelerator attached to a
// hardware class.
type Accelerator struct {
	Kind       string `yaml:"kind"`
	Count      int    `yaml:"count"`
	MemoryGB   int    `yaml:"memory_gb"`
}

// HardwareSpec is the full hardware-class row for one tier.
type HardwareSpec struct {
	Arch          string       `yaml:"arch"`
	VCPU          float64      `yaml:"vcpu"`
	MemoryMB      int          `yaml:"memory_mb"`
	DiskGBDefault int          `yaml:"disk_gb_default"`
	DiskGBMax     int          `yaml:"disk_gb_max"`
	Accelerator   *Accelerator `yaml:"accelerator,omitempty"`
}

type catalogFile struct {
	Tiers map[string]HardwareSpec `yaml:"tiers"`
}

// Catalog is the tier → hardware-class table. Admins may extend it at
// runtime but never rename an existing tier's key out from under
// running workspaces.
type Catalog struct {
	mu     sync.RWMutex
	logger *slog.Logger
	specs  map[Tier]HardwareSpec
}

// defaultSpecs seeds the catalog when no YAML file is supplied, matching
// the hardware-spec table named in the external-interfaces contract.
func defaultSpecs() map[Tier]HardwareSpec {
	return map[Tier]HardwareSpec{
		Free:       {Arch: "x86_64", VCPU: 1, MemoryMB: 1024, DiskGBDefault: 5, DiskGBMax: 10},
		Starter:    {Arch: "x86_64", VCPU: 2, MemoryMB: 4096, DiskGBDefault: 20, DiskGBMax: 40},
		Pro:        {Arch: "x86_64", VCPU: 4, MemoryMB: 8192, DiskGBDefault: 50, DiskGBMax: 100},
		Team:       {Arch: "x86_64", VCPU: 8, MemoryMB: 16384, DiskGBDefault: 100, DiskGBMax: 200},
		Enterprise: {Arch: "x86_64", VCPU: 16, MemoryMB: 32768, DiskGBDefault: 200, DiskGBMax: 500},
		X86:        {Arch: "x86_64", VCPU: 4, MemoryMB: 8192, DiskGBDefault: 50, DiskGBMax: 100},
		ARM:        {Arch: "arm64", VCPU: 4, MemoryMB: 8192, DiskGBDefault: 50, DiskGBMax: 100},
		GPU: {
			Arch: "x86_64", VCPU: 8, MemoryMB: 32768, DiskGBDefault: 100, DiskGBMax: 200,
			Accelerator: &Accelerator{Kind: "a100_40gb", Count: 1, MemoryGB: 40},
		},
	}
}

// NewCatalog builds a Catalog from the default, hardcoded hardware table.
func NewCatalog(logger *slog.Logger) *Catalog {
	return &Catalog{logger: logger, specs: defaultSpecs()}
}

// LoadCatalog builds a Catalog from a YAML file at path, falling back to
// the default table if the file does not exist.
func LoadCatalog(logger *slog.Logger, path string) (*Catalog, error) {
	c := &Catalog{logger: logger, specs: defaultSpecs()}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("tier catalog file not found, using built-in defaults", "path", path)
			return c, nil
		}
		return nil, fmt.Errorf("reading tier catalog: %w", err)
	}

	var cf catalogFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parsing tier catalog: %w", err)
	}

	for name, spec := range cf.Tiers {
		c.specs[Tier(name)] = spec
	}

	return c, nil
}

// Get returns the hardware spec for a tier.
func (c *Catalog) Get(t Tier) (HardwareSpec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	spec, ok := c.specs[t]
	return spec, ok
}

// Extend adds or updates a tier's hardware spec. Admins may extend the
// catalog but this never removes an existing tier key — use Delete for
// that, explicitly.
func (c *Catalog) Extend(t Tier, spec HardwareSpec) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.specs[t] = spec
}

// Delete removes a tier from the catalog.
//
// This is a hard delete: any workspace created under this tier keeps
// its already-resolved ResourceRequirements (captured at creation time),
// so existing workspaces are unaffected, but the tier becomes
// unresolvable for new placements immediately. An older comment in this
// codepath's ancestry claimed this was a soft delete ("mark
// unavailable"); that was never true of the code, so we log a warning
// naming the discrepancy rather than silently perpetuate it.
func (c *Catalog) Delete(t Tier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.specs[t]; !ok {
		return
	}
	delete(c.specs, t)
	c.logger.Warn("hard-deleting tier from catalog (not a soft delete, despite historical comments claiming otherwise)",
		"tier", t)
}

// List returns all known tier names.
func (c *Catalog) List() []Tier {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Tier, 0, len(c.specs))
	for t := range c.specs {
		out = append(out, t)
	}
	return out
}
