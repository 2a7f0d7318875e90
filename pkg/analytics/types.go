// Package analytics implements Loom's identity resolution: persons,
// their distinct-id identities, the events they produced, and the
// merge bookkeeping that lets two distinct ids collapse onto one
// terminal person.
package analytics

import (
	"time"

	"github.com/codeready-toolchain/loom/internal/ids"
)

// IdentityKind distinguishes an anonymous distinct id from one
// established via Identify.
type IdentityKind string

const (
	IdentityKindAnonymous  IdentityKind = "anonymous"
	IdentityKindIdentified IdentityKind = "identified"
)

// MergeReasonKind is the closed set of flows that can cause a merge.
type MergeReasonKind string

const (
	MergeReasonIdentify MergeReasonKind = "identify"
	MergeReasonAlias    MergeReasonKind = "alias"
)

// MergeReason records which flow caused a merge and the two distinct
// ids (or user id/alias) involved, for audit purposes.
type MergeReason struct {
	Kind       MergeReasonKind
	DistinctID string
	Other      string // user_id for Identify, alias for Alias
}

// Person is a resolved analytics identity.
type Person struct {
	ID           ids.PersonID
	OrgID        ids.OrgID
	Properties   map[string]any
	MergedIntoID *ids.PersonID
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity is a (distinct_id, person) pairing within an org.
type Identity struct {
	ID         string
	OrgID      ids.OrgID
	PersonID   ids.PersonID
	DistinctID string
	Kind       IdentityKind
	CreatedAt  time.Time
}

// Event is an analytics event, optionally already resolved to a person.
type Event struct {
	ID         string
	OrgID      ids.OrgID
	DistinctID string
	PersonID   *ids.PersonID
	EventName  string
	Properties map[string]any
	Timestamp  time.Time
}

// Merge is a record of one person being merged into another.
type Merge struct {
	ID       string
	OrgID    ids.OrgID
	WinnerID ids.PersonID
	LoserID  ids.PersonID
	Reason   MergeReason
	Created  time.Time
}

// PersonWithIdentities is the projection Resolve/Identify/Alias return:
// the winner's view after any merge the call triggered.
type PersonWithIdentities struct {
	Person     Person
	Identities []Identity
}

// MergeDetails is what MergeAuditHook.OnMerge receives - a record of
// what a merge actually did, for audit logging.
type MergeDetails struct {
	OrgID                 ids.OrgID
	WinnerID              ids.PersonID
	LoserID               ids.PersonID
	Reason                MergeReason
	EventsReassigned      int
	IdentitiesTransferred int
}

// MergeAuditHook is notified whenever a merge crosses a person
// boundary. It is never invoked for identify/alias flows that resolve
// to the same person.
type MergeAuditHook interface {
	OnMerge(details MergeDetails)
}
