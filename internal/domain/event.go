package domain

import (
	"fmt"
	"maps"
	"time"
)

// SubjectKind distinguishes what an event is about. Entities and areas
// share one event log; both are versioned the same way.
type SubjectKind string

const (
	SubjectEntity SubjectKind = "entity"
	SubjectArea   SubjectKind = "area"
)

// EventKind is the transition recorded by an event.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventDeleted EventKind = "deleted"
)

// Event is one immutable transition in a subject's history.
//
// For a given subject, events form a total order by revision with no gaps,
// starting at 1. The store assigns revisions on append; callers never set
// them. Each event carries a full snapshot of the mutable payload, so a
// fold over the history reconstructs the projection without consulting
// any other record.
type Event struct {
	// ID is the log-wide event id (store-assigned).
	ID int64

	// Subject identifies the record the event belongs to. SubjectID is
	// zero for entity/area Created events until the store allocates one.
	Subject   SubjectKind
	SubjectID int64

	// Revision is the subject revision this event produced.
	Revision int64

	Kind EventKind

	// External carries the upstream id for entity Created events so a
	// replay can rebuild the projection's identity columns.
	External ExternalID

	// Name carries the human name for area events.
	Name string

	// Point is the geometry snapshot (entities), nil if unlocated.
	Point *Point

	// Geometry is the raw GeoJSON snapshot (areas).
	Geometry []byte

	// Tags is the tag snapshot at this revision.
	Tags map[string]string

	// RecordedAt is when the event was committed.
	RecordedAt time.Time
}

// ApplyToEntity folds the event into an entity projection.
// The zero Entity is a valid accumulator for a Created event.
func (ev *Event) ApplyToEntity(e *Entity) error {
	if ev.Subject != SubjectEntity {
		return fmt.Errorf("apply event %d: subject %q is not an entity", ev.ID, ev.Subject)
	}
	if ev.Revision != e.Revision+1 {
		return fmt.Errorf("apply event %d: revision %d does not follow %d", ev.ID, ev.Revision, e.Revision)
	}

	switch ev.Kind {
	case EventCreated:
		e.External = ev.External
	case EventUpdated, EventDeleted:
	default:
		return fmt.Errorf("apply event %d: unknown kind %q", ev.ID, ev.Kind)
	}

	if ev.SubjectID != 0 {
		e.ID = ev.SubjectID
	}
	e.Revision = ev.Revision
	e.Deleted = ev.Kind == EventDeleted
	e.LastSyncedAt = ev.RecordedAt
	if ev.Point != nil {
		p := *ev.Point
		e.Point = &p
	} else {
		e.Point = nil
	}
	e.Tags = maps.Clone(ev.Tags)
	if e.Tags == nil {
		e.Tags = map[string]string{}
	}
	return nil
}

// ApplyToArea folds the event into an area projection.
func (ev *Event) ApplyToArea(a *Area) error {
	if ev.Subject != SubjectArea {
		return fmt.Errorf("apply event %d: subject %q is not an area", ev.ID, ev.Subject)
	}
	if ev.Revision != a.Revision+1 {
		return fmt.Errorf("apply event %d: revision %d does not follow %d", ev.ID, ev.Revision, a.Revision)
	}

	if ev.SubjectID != 0 {
		a.ID = ev.SubjectID
	}
	a.Revision = ev.Revision
	a.Deleted = ev.Kind == EventDeleted
	a.UpdatedAt = ev.RecordedAt
	if ev.Name != "" || ev.Kind == EventCreated {
		a.Name = ev.Name
	}
	a.Geometry = append([]byte(nil), ev.Geometry...)
	a.Tags = maps.Clone(ev.Tags)
	if a.Tags == nil {
		a.Tags = map[string]string{}
	}
	return nil
}
