package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/poimirror/poimirror/internal/domain"
)

// History returns a subject's events from fromRevision (inclusive) in
// strictly increasing revision order. Pass fromRevision=1 for the full
// history. Returns an empty slice, not nil, for unknown subjects.
func (s *Store) History(ctx context.Context, subject domain.SubjectKind, subjectID int64, fromRevision int64) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subject_kind, subject_id, revision, kind, external_id, name, lon, lat, geometry, tags, recorded_at
		FROM events
		WHERE subject_kind = ? AND subject_id = ? AND revision >= ?
		ORDER BY revision ASC
	`, string(subject), subjectID, fromRevision)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	if events == nil {
		events = []domain.Event{}
	}
	return events, nil
}

// ReplayEntity folds an entity's full history into a projection.
//
// The result must equal the stored projection exactly; verifying that is
// how tests (and operators) prove the log and the projection have not
// drifted.
func (s *Store) ReplayEntity(ctx context.Context, entityID int64) (domain.Entity, error) {
	events, err := s.History(ctx, domain.SubjectEntity, entityID, 1)
	if err != nil {
		return domain.Entity{}, fmt.Errorf("replay entity %d: %w", entityID, err)
	}
	if len(events) == 0 {
		return domain.Entity{}, fmt.Errorf("replay entity %d: %w", entityID, ErrNotFound)
	}

	var e domain.Entity
	for i := range events {
		if err := events[i].ApplyToEntity(&e); err != nil {
			return domain.Entity{}, fmt.Errorf("replay entity %d: %w", entityID, err)
		}
	}
	return e, nil
}

// ReplayArea folds an area's full history into a projection.
func (s *Store) ReplayArea(ctx context.Context, areaID int64) (domain.Area, error) {
	events, err := s.History(ctx, domain.SubjectArea, areaID, 1)
	if err != nil {
		return domain.Area{}, fmt.Errorf("replay area %d: %w", areaID, err)
	}
	if len(events) == 0 {
		return domain.Area{}, fmt.Errorf("replay area %d: %w", areaID, ErrNotFound)
	}

	var a domain.Area
	for i := range events {
		if err := events[i].ApplyToArea(&a); err != nil {
			return domain.Area{}, fmt.Errorf("replay area %d: %w", areaID, err)
		}
	}
	return a, nil
}

// CreationTimes returns when each given entity's first event was
// committed (its revision 1 recorded_at). Unknown ids are omitted.
func (s *Store) CreationTimes(ctx context.Context, ids []int64) (map[int64]time.Time, error) {
	times := make(map[int64]time.Time, len(ids))
	if len(ids) == 0 {
		return times, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT subject_id, recorded_at FROM events
		WHERE subject_kind = ? AND revision = 1 AND subject_id IN (`+placeholders+`)
	`, append([]any{string(domain.SubjectEntity)}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("query creation times: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var recordedAt string
		if err := rows.Scan(&id, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan creation time: %w", err)
		}
		t, err := decodeTime(recordedAt)
		if err != nil {
			return nil, fmt.Errorf("creation time for entity %d: %w", id, err)
		}
		times[id] = t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate creation times: %w", err)
	}
	return times, nil
}

func scanEvent(rows *sql.Rows) (domain.Event, error) {
	var (
		ev         domain.Event
		subject    string
		kind       string
		external   sql.NullString
		name       sql.NullString
		lon, lat   sql.NullFloat64
		geometry   sql.NullString
		tagsJSON   string
		recordedAt string
	)
	if err := rows.Scan(
		&ev.ID,
		&subject,
		&ev.SubjectID,
		&ev.Revision,
		&kind,
		&external,
		&name,
		&lon,
		&lat,
		&geometry,
		&tagsJSON,
		&recordedAt,
	); err != nil {
		return domain.Event{}, err
	}

	ev.Subject = domain.SubjectKind(subject)
	ev.Kind = domain.EventKind(kind)
	ev.Name = name.String
	ev.Point = decodePoint(lon, lat)
	if geometry.Valid {
		ev.Geometry = []byte(geometry.String)
	}

	if external.Valid {
		ext, err := domain.ParseExternalID(external.String)
		if err != nil {
			return domain.Event{}, fmt.Errorf("event %d: %w", ev.ID, err)
		}
		ev.External = ext
	}

	tags, err := unmarshalTags(tagsJSON)
	if err != nil {
		return domain.Event{}, fmt.Errorf("event %d: %w", ev.ID, err)
	}
	ev.Tags = tags

	ev.RecordedAt, err = decodeTime(recordedAt)
	if err != nil {
		return domain.Event{}, fmt.Errorf("event %d: %w", ev.ID, err)
	}
	return ev, nil
}
