package weaver

import (
	"time"

	"github.com/codeready-toolchain/loom/internal/ids"
)

// Status is a weaver's lifecycle phase.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusSucceeded
	StatusFailed
	StatusTerminating
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusTerminating:
		return "terminating"
	default:
		return "unknown"
	}
}

// Weaver is the projection returned to API callers.
type Weaver struct {
	ID            ids.WeaverID
	ContainerName string
	Status        Status
	Image         string
	Tags          map[string]string
	CreatedAt     time.Time
	LifetimeHours float64
	OwnerUserID   ids.UserID
}

// AgeHours computes the weaver's current age relative to now.
func (w Weaver) AgeHours(now time.Time) float64 {
	return now.Sub(w.CreatedAt).Hours()
}

// ResourceLimits bounds a weaver's container resources.
type ResourceLimits struct {
	MemoryLimitBytes int64
	CPULimitMillis   int64 // 0 means unset
}

// DefaultMemoryLimitBytes is the 16 GiB default from.
const DefaultMemoryLimitBytes = 16 * 1024 * 1024 * 1024

// CreateRequest is CreateWeaverRequest from.
type CreateRequest struct {
	Image         string
	Env           map[string]string
	Resources     ResourceLimits
	Tags          map[string]string
	LifetimeHours float64 // 0 means default
	Command       []string
	Args          []string
	Workdir       string
	Repo          string
	Branch        string
	OwnerUserID   ids.UserID
	OrgID         ids.OrgID
	RepoID        ids.RepoID
}

const (
	// DefaultLifetimeHours and MaxLifetimeHours bound CreateRequest.LifetimeHours.
	DefaultLifetimeHours = 4
	MaxLifetimeHours     = 48
)

// CleanupResult is returned by Cleanup.
type CleanupResult struct {
	DeletedIDs []ids.WeaverID
	Count      int
}
