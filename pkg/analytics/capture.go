package analytics

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/loom/ent"
	"github.com/codeready-toolchain/loom/ent/personidentity"
	"github.com/codeready-toolchain/loom/internal/apperr"
	"github.com/codeready-toolchain/loom/internal/ids"
)

// Capture resolves distinctID to its terminal person (creating an
// anonymous one if needed, via Resolve) and persists one analytics
// event against it. This is the "capture" SDK call; Batch applies it
// to a slice of events so a single HTTP request can submit many.
func (s *PersonService) Capture(ctx context.Context, org ids.OrgID, distinctID, eventName string, properties map[string]any) (Event, error) {
	if eventName == "" {
		return Event{}, apperr.InvalidInput("event_name", "must not be empty")
	}

	pwi, err := s.Resolve(ctx, org, distinctID)
	if err != nil {
		return Event{}, fmt.Errorf("resolve distinct id: %w", err)
	}

	row, err := s.client.Event.Create().
		SetID(uuid.NewString()).
		SetOrgID(string(org)).
		SetDistinctID(distinctID).
		SetPersonID(string(pwi.Person.ID)).
		SetEventName(eventName).
		SetProperties(properties).
		Save(ctx)
	if err != nil {
		return Event{}, fmt.Errorf("create event: %w", err)
	}

	return fromEntEvent(row), nil
}

// Batch captures every event in turn, continuing past individual
// failures and returning the successfully captured ones alongside the
// first error encountered, if any, so a caller can decide whether a
// partial batch is acceptable.
func (s *PersonService) Batch(ctx context.Context, org ids.OrgID, events []CaptureRequest) ([]Event, error) {
	captured := make([]Event, 0, len(events))
	var firstErr error
	for _, req := range events {
		evt, err := s.Capture(ctx, org, req.DistinctID, req.EventName, req.Properties)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		captured = append(captured, evt)
	}
	return captured, firstErr
}

// Set merges properties onto distinctID's resolved person without
// recording an event, per the SDK's "$set" call.
func (s *PersonService) Set(ctx context.Context, org ids.OrgID, distinctID string, properties map[string]any) (PersonWithIdentities, error) {
	tx, err := s.client.Tx(ctx)
	if err != nil {
		return PersonWithIdentities{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ident, err := s.findIdentity(ctx, tx, org, distinctID)
	if err != nil {
		return PersonWithIdentities{}, err
	}

	var person *ent.Person
	if ident == nil {
		pwi, err := s.createPersonWithIdentity(ctx, tx, org, distinctID, personidentity.KindAnonymous, nil)
		if err != nil {
			return PersonWithIdentities{}, err
		}
		person, err = tx.Person.Get(ctx, string(pwi.Person.ID))
		if err != nil {
			return PersonWithIdentities{}, fmt.Errorf("load created person: %w", err)
		}
	} else {
		person, err = s.terminalPerson(ctx, tx, ident.PersonID)
		if err != nil {
			return PersonWithIdentities{}, err
		}
	}

	updated, err := s.mergeProperties(ctx, tx, person, properties)
	if err != nil {
		return PersonWithIdentities{}, fmt.Errorf("merge properties: %w", err)
	}
	result, err := s.projected(ctx, tx, updated)
	if err != nil {
		return PersonWithIdentities{}, err
	}
	if err := tx.Commit(); err != nil {
		return PersonWithIdentities{}, fmt.Errorf("commit: %w", err)
	}
	return result, nil
}

// CaptureRequest is one event within a Batch call.
type CaptureRequest struct {
	DistinctID string
	EventName  string
	Properties map[string]any
}

func fromEntEvent(row *ent.Event) Event {
	var personID *ids.PersonID
	if row.PersonID != nil {
		id := ids.PersonID(*row.PersonID)
		personID = &id
	}
	return Event{
		ID:         row.ID,
		OrgID:      ids.OrgID(row.OrgID),
		DistinctID: row.DistinctID,
		PersonID:   personID,
		EventName:  row.EventName,
		Properties: row.Properties,
		Timestamp:  row.Timestamp,
	}
}
