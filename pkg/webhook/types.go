// Package webhook dispatches signed, retried HTTP callbacks for repo and
// org events.
package webhook

import (
	"time"

	"github.com/codeready-toolchain/loom/internal/ids"
)

// OwnerType names what a Webhook is scoped to.
type OwnerType string

const (
	OwnerRepo OwnerType = "repo"
	OwnerOrg  OwnerType = "org"
)

// PayloadFormat selects the wire shape a Webhook's deliveries are rendered in.
type PayloadFormat string

const (
	// PayloadGitHubCompat mirrors GitHub's push/repo payload shape.
	PayloadGitHubCompat PayloadFormat = "github_compat"
	// PayloadLoomV1 is the smaller first-party payload shape.
	PayloadLoomV1 PayloadFormat = "loom_v1"
)

// Status is a delivery's current disposition.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Webhook is a registered subscription: one URL receiving a named subset of
// events for one owner (a repo or an org).
type Webhook struct {
	ID            ids.WebhookID
	OwnerType     OwnerType
	OwnerID       string
	URL           string
	Secret        string
	PayloadFormat PayloadFormat
	Events        []string
	Enabled       bool
	CreatedAt     time.Time
}

// Matches reports whether this webhook is enabled and subscribed to event.
func (w Webhook) Matches(event string) bool {
	if !w.Enabled {
		return false
	}
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}

// Delivery is one attempt (and its retry history) to deliver event to a
// Webhook.
type Delivery struct {
	ID             ids.DeliveryID
	WebhookID      ids.WebhookID
	Event          string
	Payload        map[string]any
	Attempts       int
	NextRetryAt    *time.Time
	Status         Status
	LastStatusCode *int
	LastError      string
	CreatedAt      time.Time
	DeliveredAt    *time.Time
}

// Event is a domain occurrence to fan out to every matching webhook.
type Event struct {
	OwnerType OwnerType
	OwnerID   string
	Name      string
	Actor     string
	RepoID    ids.RepoID
	RepoName  string
	RepoOwner string
	Ref       string
	Payload   map[string]any
}

// Result is the outcome of one delivery attempt.
type Result struct {
	Success    bool
	StatusCode int
	Body       string
	Err        error
}
