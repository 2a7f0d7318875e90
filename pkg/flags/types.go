// Package flags implements the feature-flag engine: flags, per-environment
// configs and strategies, kill switches, SDK-key auth, exposure logging and
// stats, and the SSE broadcaster that pushes mutations to live SDK
// connections.
package flags

import (
	"time"

	"github.com/codeready-toolchain/loom/internal/ids"
)

// Reason is why Evaluate returned the variant it did.
type Reason string

const (
	ReasonKillSwitch         Reason = "kill_switch"
	ReasonPrerequisiteFailed Reason = "prerequisite_failed"
	ReasonDisabled           Reason = "disabled"
	ReasonStrategyMatched    Reason = "strategy_matched"
	ReasonStrategyUnmatched  Reason = "strategy_unmatched"
)

// KeyType is the class of SDK key.
type KeyType string

const (
	KeyTypeServer    KeyType = "server"
	KeyTypeClient    KeyType = "client"
	KeyTypeReadWrite KeyType = "readwrite"
)

// Prerequisite gates a flag on another flag_key evaluating to a specific
// variant in the same environment.
type Prerequisite struct {
	FlagKey         string `json:"flag_key"`
	RequiredVariant string `json:"required_variant"`
}

// Flag is a feature flag, optionally org-scoped (an empty OrgID is a
// platform-level flag).
type Flag struct {
	ID                      ids.FlagID
	OrgID                   ids.OrgID
	Key                     string
	Name                    string
	Tags                    []string
	Variants                []string
	DefaultVariant          string
	Prerequisites           []Prerequisite
	ExposureTrackingEnabled bool
	CreatedAt               time.Time
	ArchivedAt              *time.Time
}

// Config is the per-(flag, environment) enablement and strategy binding.
type Config struct {
	ID            string
	FlagID        ids.FlagID
	EnvironmentID ids.EnvironmentID
	Enabled       bool
	StrategyID    *ids.StrategyID
	UpdatedAt     time.Time
}

// Strategy is a rollout strategy: match conditions plus an optional
// percentage rollout and an optional active schedule window.
type Strategy struct {
	ID            ids.StrategyID
	Conditions    map[string]any
	Variant       string
	Percentage    *int
	PercentageKey string
	ScheduleStart *time.Time
	ScheduleEnd   *time.Time
}

// KillSwitch links a set of flag keys that are force-disabled while active.
type KillSwitch struct {
	ID          string
	OrgID       ids.OrgID
	FlagKeys    []string
	IsActive    bool
	ActivatedBy string
	Reason      string
	ActivatedAt *time.Time
}

// SDKKey is an Argon2-hashed credential scoped to one environment. The raw
// key is only ever returned at creation time.
type SDKKey struct {
	ID            ids.SDKKeyID
	EnvironmentID ids.EnvironmentID
	KeyType       KeyType
	KeyHash       string
	LastUsedAt    *time.Time
	RevokedAt     *time.Time
	CreatedAt     time.Time
}

// EvalContext is the input to Evaluate: the identity being evaluated for,
// plus arbitrary properties used by strategy conditions and percentage
// rollouts.
type EvalContext struct {
	UserID     string
	OrgID      string
	Properties map[string]any
}

// PropertyValue returns the evaluation-context property keyed by key,
// falling back to the well-known user_id/org_id fields so a strategy can
// roll out on either without every caller having to mirror them into
// Properties.
func (c EvalContext) PropertyValue(key string) (string, bool) {
	switch key {
	case "user_id":
		if c.UserID != "" {
			return c.UserID, true
		}
	case "org_id":
		if c.OrgID != "" {
			return c.OrgID, true
		}
	}
	if c.Properties == nil {
		return "", false
	}
	v, ok := c.Properties[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// EvalResult is the outcome of one Evaluate call.
type EvalResult struct {
	Variant string
	Reason  Reason
}

// Stats reports windowed evaluation counts for a (flag, environment) pair,
// used to surface stale flags.
type Stats struct {
	FlagID          ids.FlagID
	EnvironmentID   ids.EnvironmentID
	Count24h        int
	Count7d         int
	Count30d        int
	LastEvaluatedAt *time.Time
}

// StaleFlag is one row of ListStaleFlags' result.
type StaleFlag struct {
	Flag            Flag
	LastEvaluatedAt *time.Time
}
