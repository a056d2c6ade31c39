// Package workspace implements the Workspace Orchestrator: the
// lifecycle state machine for container-backed coding-agent workspaces,
// and the single-writer-per-workspace serialization that guards it.
package workspace

import (
	"time"

	"github.com/google/uuid"

	"github.com/podexhq/coordinator/pkg/tier"
)

// Status is a workspace's lifecycle state.
type Status string

const (
	StatusCreating Status = "creating"
	StatusRunning  Status = "running"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
	StatusDeleted  Status = "deleted"
)

// validTransitions enumerates the state machine; any transition not
// listed here fails fast rather than being silently absorbed.
var validTransitions = map[Status]map[Status]bool{
	StatusCreating: {StatusRunning: true, StatusError: true, StatusDeleted: true},
	StatusRunning:  {StatusStopped: true, StatusError: true, StatusDeleted: true},
	StatusStopped:  {StatusRunning: true, StatusError: true, StatusDeleted: true},
	StatusError:    {StatusDeleted: true, StatusRunning: true, StatusStopped: true},
	StatusDeleted:  {},
}

// CanTransition reports whether from -> to is a legal state transition.
func CanTransition(from, to Status) bool {
	next, ok := validTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// HardwareClass is the resolved, immutable-at-creation-time resource
// footprint a workspace was placed with.
type HardwareClass struct {
	Arch            string
	VCPU            float64
	MemoryMB        int
	AcceleratorKind string
	AcceleratorQty  int
}

// Workspace is the orchestrator's authoritative record for one
// container workspace.
type Workspace struct {
	ID               uuid.UUID
	OwnerUserID      string
	SessionID        string
	Status           Status
	Tier             tier.Tier
	Hardware         HardwareClass
	Image            string
	HostID           string // empty until placed
	ContainerID      string // empty until created
	CreatedAt        time.Time
	LastActivity     time.Time
	Env              map[string]string
	RepositoryURLs   []string
	PreserveData     bool
	Migrating        bool   // set for the duration of a cold migration; not a top-level Status
	MigrationReason  string // set only when Status==StatusError due to a failed cold migration
}

// Config is the caller-supplied configuration for Create.
type Config struct {
	Tier           tier.Tier
	Image          string
	Env            map[string]string
	RepositoryURLs []string
	PreserveData   bool
}

// TransitionError is returned when an invalid state transition is
// attempted.
type TransitionError struct {
	From, To Status
}

func (e *TransitionError) Error() string {
	return "invalid workspace state transition: " + string(e.From) + " -> " + string(e.To)
}
