package analytics

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/loom/ent"
	"github.com/codeready-toolchain/loom/ent/event"
	"github.com/codeready-toolchain/loom/ent/personidentity"
	"github.com/codeready-toolchain/loom/ent/personmerge"
	"github.com/codeready-toolchain/loom/internal/ids"
)

// PersonService implements identity resolution, following
// pkg/identity's shape: a constructor over *ent.Client, invariants
// enforced transactionally, an optional audit hook invoked only after
// the transaction that earned it has committed.
type PersonService struct {
	client *ent.Client
	hook   MergeAuditHook
}

// NewPersonService constructs a PersonService. hook may be nil.
func NewPersonService(client *ent.Client, hook MergeAuditHook) *PersonService {
	return &PersonService{client: client, hook: hook}
}

// Resolve follows a distinct id to its terminal person, creating an
// anonymous person + identity atomically if none exists yet.
func (s *PersonService) Resolve(ctx context.Context, org ids.OrgID, distinctID string) (PersonWithIdentities, error) {
	tx, err := s.client.Tx(ctx)
	if err != nil {
		return PersonWithIdentities{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	pwi, err := s.resolveOrCreate(ctx, tx, org, distinctID)
	if err != nil {
		return PersonWithIdentities{}, err
	}
	if err := tx.Commit(); err != nil {
		return PersonWithIdentities{}, fmt.Errorf("commit: %w", err)
	}
	return pwi, nil
}

func (s *PersonService) resolveOrCreate(ctx context.Context, tx *ent.Tx, org ids.OrgID, distinctID string) (PersonWithIdentities, error) {
	ident, err := s.findIdentity(ctx, tx, org, distinctID)
	if err != nil {
		return PersonWithIdentities{}, err
	}
	if ident == nil {
		return s.createPersonWithIdentity(ctx, tx, org, distinctID, personidentity.KindAnonymous, nil)
	}

	p, err := s.terminalPerson(ctx, tx, ident.PersonID)
	if err != nil {
		return PersonWithIdentities{}, err
	}
	return s.projected(ctx, tx, p)
}

func (s *PersonService) findIdentity(ctx context.Context, tx *ent.Tx, org ids.OrgID, distinctID string) (*ent.PersonIdentity, error) {
	ident, err := tx.PersonIdentity.Query().
		Where(personidentity.OrgID(org.String()), personidentity.DistinctID(distinctID)).
		Only(ctx)
	if ent.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query identity: %w", err)
	}
	return ident, nil
}

func (s *PersonService) terminalPerson(ctx context.Context, tx *ent.Tx, personID string) (*ent.Person, error) {
	for {
		p, err := tx.Person.Get(ctx, personID)
		if err != nil {
			return nil, fmt.Errorf("load person %s: %w", personID, err)
		}
		if p.MergedIntoID == nil {
			return p, nil
		}
		personID = *p.MergedIntoID
	}
}

func (s *PersonService) createPersonWithIdentity(ctx context.Context, tx *ent.Tx, org ids.OrgID, distinctID string, kind personidentity.Kind, properties map[string]any) (PersonWithIdentities, error) {
	personID := uuid.NewString()
	p, err := tx.Person.Create().SetID(personID).SetOrgID(org.String()).SetProperties(properties).Save(ctx)
	if err != nil {
		return PersonWithIdentities{}, fmt.Errorf("create person: %w", err)
	}
	if _, err := tx.PersonIdentity.Create().
		SetID(uuid.NewString()).SetOrgID(org.String()).SetPersonID(personID).
		SetDistinctID(distinctID).SetKind(kind).
		Save(ctx); err != nil {
		return PersonWithIdentities{}, fmt.Errorf("create identity: %w", err)
	}
	return s.projected(ctx, tx, p)
}

func (s *PersonService) projected(ctx context.Context, tx *ent.Tx, p *ent.Person) (PersonWithIdentities, error) {
	idents, err := tx.PersonIdentity.Query().Where(personidentity.PersonID(p.ID)).All(ctx)
	if err != nil {
		return PersonWithIdentities{}, fmt.Errorf("query identities: %w", err)
	}
	return PersonWithIdentities{Person: toPerson(p), Identities: toIdentities(idents)}, nil
}

// Identify implements the four-case resolution in: creating a
// person, attaching a second identity to an existing one, or merging
// two persons together when both distinct_id and user_id are already
// known and resolve to different people.
func (s *PersonService) Identify(ctx context.Context, org ids.OrgID, distinctID, userID string, properties map[string]any) (PersonWithIdentities, error) {
	tx, err := s.client.Tx(ctx)
	if err != nil {
		return PersonWithIdentities{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	pwi, mergeDetails, err := s.identify(ctx, tx, org, distinctID, userID, properties)
	if err != nil {
		return PersonWithIdentities{}, err
	}
	if err := tx.Commit(); err != nil {
		return PersonWithIdentities{}, fmt.Errorf("commit: %w", err)
	}
	if mergeDetails != nil && s.hook != nil {
		s.hook.OnMerge(*mergeDetails)
	}
	return pwi, nil
}

func (s *PersonService) identify(ctx context.Context, tx *ent.Tx, org ids.OrgID, distinctID, userID string, properties map[string]any) (PersonWithIdentities, *MergeDetails, error) {
	distinctIdent, err := s.findIdentity(ctx, tx, org, distinctID)
	if err != nil {
		return PersonWithIdentities{}, nil, err
	}
	userIdent, err := s.findIdentity(ctx, tx, org, userID)
	if err != nil {
		return PersonWithIdentities{}, nil, err
	}

	switch {
	case distinctIdent == nil && userIdent == nil:
		pwi, err := s.createPersonWithIdentity(ctx, tx, org, distinctID, personidentity.KindAnonymous, properties)
		if err != nil {
			return PersonWithIdentities{}, nil, err
		}
		if _, err := tx.PersonIdentity.Create().
			SetID(uuid.NewString()).SetOrgID(org.String()).SetPersonID(pwi.Person.ID.String()).
			SetDistinctID(userID).SetKind(personidentity.KindIdentified).
			Save(ctx); err != nil {
			return PersonWithIdentities{}, nil, fmt.Errorf("create identified identity: %w", err)
		}
		p, err := tx.Person.Get(ctx, pwi.Person.ID.String())
		if err != nil {
			return PersonWithIdentities{}, nil, fmt.Errorf("reload person: %w", err)
		}
		pwi, err = s.projected(ctx, tx, p)
		return pwi, nil, err

	case distinctIdent != nil && userIdent == nil:
		p, err := s.terminalPerson(ctx, tx, distinctIdent.PersonID)
		if err != nil {
			return PersonWithIdentities{}, nil, err
		}
		if _, err := tx.PersonIdentity.Create().
			SetID(uuid.NewString()).SetOrgID(org.String()).SetPersonID(p.ID).
			SetDistinctID(userID).SetKind(personidentity.KindIdentified).
			Save(ctx); err != nil {
			return PersonWithIdentities{}, nil, fmt.Errorf("attach identified identity: %w", err)
		}
		p, err = s.mergeProperties(ctx, tx, p, properties)
		if err != nil {
			return PersonWithIdentities{}, nil, err
		}
		pwi, err := s.projected(ctx, tx, p)
		return pwi, nil, err

	case distinctIdent == nil && userIdent != nil:
		p, err := s.terminalPerson(ctx, tx, userIdent.PersonID)
		if err != nil {
			return PersonWithIdentities{}, nil, err
		}
		if _, err := tx.PersonIdentity.Create().
			SetID(uuid.NewString()).SetOrgID(org.String()).SetPersonID(p.ID).
			SetDistinctID(distinctID).SetKind(personidentity.KindAnonymous).
			Save(ctx); err != nil {
			return PersonWithIdentities{}, nil, fmt.Errorf("attach anonymous identity: %w", err)
		}
		p, err = s.mergeProperties(ctx, tx, p, properties)
		if err != nil {
			return PersonWithIdentities{}, nil, err
		}
		pwi, err := s.projected(ctx, tx, p)
		return pwi, nil, err

	default:
		personA, err := s.terminalPerson(ctx, tx, distinctIdent.PersonID)
		if err != nil {
			return PersonWithIdentities{}, nil, err
		}
		personB, err := s.terminalPerson(ctx, tx, userIdent.PersonID)
		if err != nil {
			return PersonWithIdentities{}, nil, err
		}

		if personA.ID == personB.ID {
			p, err := s.mergeProperties(ctx, tx, personA, properties)
			if err != nil {
				return PersonWithIdentities{}, nil, err
			}
			pwi, err := s.projected(ctx, tx, p)
			return pwi, nil, err
		}

		reason := MergeReason{Kind: MergeReasonIdentify, DistinctID: distinctID, Other: userID}
		winner, details, err := s.mergePersons(ctx, tx, org, personA, personB, reason)
		if err != nil {
			return PersonWithIdentities{}, nil, err
		}
		winner, err = s.mergeProperties(ctx, tx, winner, properties)
		if err != nil {
			return PersonWithIdentities{}, nil, err
		}
		pwi, err := s.projected(ctx, tx, winner)
		return pwi, &details, err
	}
}

// Alias is Identify's symmetric sibling without properties: same-person
// resolution is a true no-op, with no merge recorded.
func (s *PersonService) Alias(ctx context.Context, org ids.OrgID, distinctID, alias string) (PersonWithIdentities, error) {
	tx, err := s.client.Tx(ctx)
	if err != nil {
		return PersonWithIdentities{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	distinctIdent, err := s.findIdentity(ctx, tx, org, distinctID)
	if err != nil {
		return PersonWithIdentities{}, err
	}
	aliasIdent, err := s.findIdentity(ctx, tx, org, alias)
	if err != nil {
		return PersonWithIdentities{}, err
	}

	var pwi PersonWithIdentities
	var mergeDetails *MergeDetails

	switch {
	case distinctIdent == nil && aliasIdent == nil:
		pwi, err = s.createPersonWithIdentity(ctx, tx, org, distinctID, personidentity.KindAnonymous, nil)
		if err != nil {
			return PersonWithIdentities{}, err
		}
		if _, err := tx.PersonIdentity.Create().
			SetID(uuid.NewString()).SetOrgID(org.String()).SetPersonID(pwi.Person.ID.String()).
			SetDistinctID(alias).SetKind(personidentity.KindAnonymous).
			Save(ctx); err != nil {
			return PersonWithIdentities{}, fmt.Errorf("create alias identity: %w", err)
		}
		p, err := tx.Person.Get(ctx, pwi.Person.ID.String())
		if err != nil {
			return PersonWithIdentities{}, fmt.Errorf("reload person: %w", err)
		}
		pwi, err = s.projected(ctx, tx, p)
		if err != nil {
			return PersonWithIdentities{}, err
		}

	case distinctIdent != nil && aliasIdent == nil:
		p, err := s.terminalPerson(ctx, tx, distinctIdent.PersonID)
		if err != nil {
			return PersonWithIdentities{}, err
		}
		if _, err := tx.PersonIdentity.Create().
			SetID(uuid.NewString()).SetOrgID(org.String()).SetPersonID(p.ID).
			SetDistinctID(alias).SetKind(personidentity.KindAnonymous).
			Save(ctx); err != nil {
			return PersonWithIdentities{}, fmt.Errorf("attach alias identity: %w", err)
		}
		pwi, err = s.projected(ctx, tx, p)
		if err != nil {
			return PersonWithIdentities{}, err
		}

	case distinctIdent == nil && aliasIdent != nil:
		p, err := s.terminalPerson(ctx, tx, aliasIdent.PersonID)
		if err != nil {
			return PersonWithIdentities{}, err
		}
		if _, err := tx.PersonIdentity.Create().
			SetID(uuid.NewString()).SetOrgID(org.String()).SetPersonID(p.ID).
			SetDistinctID(distinctID).SetKind(personidentity.KindAnonymous).
			Save(ctx); err != nil {
			return PersonWithIdentities{}, fmt.Errorf("attach distinct identity: %w", err)
		}
		pwi, err = s.projected(ctx, tx, p)
		if err != nil {
			return PersonWithIdentities{}, err
		}

	default:
		personA, err := s.terminalPerson(ctx, tx, distinctIdent.PersonID)
		if err != nil {
			return PersonWithIdentities{}, err
		}
		personB, err := s.terminalPerson(ctx, tx, aliasIdent.PersonID)
		if err != nil {
			return PersonWithIdentities{}, err
		}

		if personA.ID == personB.ID {
			pwi, err = s.projected(ctx, tx, personA)
			if err != nil {
				return PersonWithIdentities{}, err
			}
			break
		}

		reason := MergeReason{Kind: MergeReasonAlias, DistinctID: distinctID, Other: alias}
		winner, details, err := s.mergePersons(ctx, tx, org, personA, personB, reason)
		if err != nil {
			return PersonWithIdentities{}, err
		}
		mergeDetails = &details
		pwi, err = s.projected(ctx, tx, winner)
		if err != nil {
			return PersonWithIdentities{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return PersonWithIdentities{}, fmt.Errorf("commit: %w", err)
	}
	if mergeDetails != nil && s.hook != nil {
		s.hook.OnMerge(*mergeDetails)
	}
	return pwi, nil
}

// selectWinner applies the merge winner-selection rule: identified beats
// anonymous; between two persons of the same standing, the older one wins.
func (s *PersonService) selectWinner(ctx context.Context, tx *ent.Tx, a, b *ent.Person) (winner, loser *ent.Person, err error) {
	aIdentified, err := s.personIsIdentified(ctx, tx, a.ID)
	if err != nil {
		return nil, nil, err
	}
	bIdentified, err := s.personIsIdentified(ctx, tx, b.ID)
	if err != nil {
		return nil, nil, err
	}

	if aIdentified != bIdentified {
		if aIdentified {
			return a, b, nil
		}
		return b, a, nil
	}

	if a.CreatedAt.Before(b.CreatedAt) {
		return a, b, nil
	}
	return b, a, nil
}

func (s *PersonService) personIsIdentified(ctx context.Context, tx *ent.Tx, personID string) (bool, error) {
	exists, err := tx.PersonIdentity.Query().
		Where(personidentity.PersonID(personID), personidentity.KindEQ(personidentity.KindIdentified)).
		Exist(ctx)
	if err != nil {
		return false, fmt.Errorf("check identified identity: %w", err)
	}
	return exists, nil
}

// mergePersons carries out the full merge recipe from: property
// merge, identity transfer, event reassignment, loser tombstoning, and
// the audit-trail row - all against the caller's transaction, returning
// the reloaded winner and the details for the post-commit audit hook.
func (s *PersonService) mergePersons(ctx context.Context, tx *ent.Tx, org ids.OrgID, a, b *ent.Person, reason MergeReason) (*ent.Person, MergeDetails, error) {
	winner, loser, err := s.selectWinner(ctx, tx, a, b)
	if err != nil {
		return nil, MergeDetails{}, err
	}

	winner, err = s.mergePropertiesFrom(ctx, tx, winner, loser)
	if err != nil {
		return nil, MergeDetails{}, err
	}

	identitiesTransferred, err := tx.PersonIdentity.Update().
		Where(personidentity.PersonID(loser.ID)).
		SetPersonID(winner.ID).
		Save(ctx)
	if err != nil {
		return nil, MergeDetails{}, fmt.Errorf("transfer identities: %w", err)
	}

	eventsReassigned, err := tx.Event.Update().
		Where(event.PersonID(loser.ID)).
		SetPersonID(winner.ID).
		Save(ctx)
	if err != nil {
		return nil, MergeDetails{}, fmt.Errorf("reassign events: %w", err)
	}

	if _, err := tx.Person.UpdateOneID(loser.ID).SetMergedIntoID(winner.ID).Save(ctx); err != nil {
		return nil, MergeDetails{}, fmt.Errorf("tombstone loser: %w", err)
	}

	if _, err := tx.PersonMerge.Create().
		SetID(uuid.NewString()).
		SetOrgID(org.String()).
		SetWinnerID(winner.ID).
		SetLoserID(loser.ID).
		SetReasonKind(personmerge.ReasonKind(reason.Kind)).
		SetReasonDistinctID(reason.DistinctID).
		SetReasonOther(reason.Other).
		Save(ctx); err != nil {
		return nil, MergeDetails{}, fmt.Errorf("record merge: %w", err)
	}

	return winner, MergeDetails{
		OrgID:                 org,
		WinnerID:              ids.PersonID(winner.ID),
		LoserID:               ids.PersonID(loser.ID),
		Reason:                reason,
		EventsReassigned:      eventsReassigned,
		IdentitiesTransferred: identitiesTransferred,
	}, nil
}

// mergeProperties applies caller-supplied properties to p - only keys
// absent in p's existing properties are added, matching the same
// "loser never overwrites winner" rule the merge flow itself follows.
func (s *PersonService) mergeProperties(ctx context.Context, tx *ent.Tx, p *ent.Person, properties map[string]any) (*ent.Person, error) {
	if len(properties) == 0 {
		return p, nil
	}
	merged := mergeMapsPreferExisting(p.Properties, properties)
	updated, err := tx.Person.UpdateOneID(p.ID).SetProperties(merged).Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("update properties: %w", err)
	}
	return updated, nil
}

func (s *PersonService) mergePropertiesFrom(ctx context.Context, tx *ent.Tx, winner, loser *ent.Person) (*ent.Person, error) {
	return s.mergeProperties(ctx, tx, winner, loser.Properties)
}

func mergeMapsPreferExisting(existing, incoming map[string]any) map[string]any {
	merged := make(map[string]any, len(existing)+len(incoming))
	for k, v := range incoming {
		merged[k] = v
	}
	for k, v := range existing {
		merged[k] = v
	}
	return merged
}

func toPerson(p *ent.Person) Person {
	var mergedInto *ids.PersonID
	if p.MergedIntoID != nil {
		id := ids.PersonID(*p.MergedIntoID)
		mergedInto = &id
	}
	return Person{
		ID:           ids.PersonID(p.ID),
		OrgID:        ids.OrgID(p.OrgID),
		Properties:   p.Properties,
		MergedIntoID: mergedInto,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func toIdentities(rows []*ent.PersonIdentity) []Identity {
	out := make([]Identity, len(rows))
	for i, r := range rows {
		out[i] = Identity{
			ID:         r.ID,
			OrgID:      ids.OrgID(r.OrgID),
			PersonID:   ids.PersonID(r.PersonID),
			DistinctID: r.DistinctID,
			Kind:       IdentityKind(r.Kind),
			CreatedAt:  r.CreatedAt,
		}
	}
	return out
}
