package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/poimirror/poimirror/internal/domain"
)

// AppendResult reports what an append committed.
type AppendResult struct {
	EventID   int64
	SubjectID int64
	Revision  int64
}

// AppendEvent appends one event and updates the subject's projection in a
// single transaction - the event row and the projection row commit
// together or not at all.
//
// Revisions are assigned here, not by the caller: a Created event gets
// revision 1 and a freshly allocated subject id; any other event gets the
// subject's current revision + 1. ev.Revision and ev.SubjectID (for
// Created) are ignored as inputs.
//
// A revision conflict (another append won the race for the same subject)
// returns *ConsistencyError and commits nothing.
func (s *Store) AppendEvent(ctx context.Context, ev domain.Event) (AppendResult, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return AppendResult{}, fmt.Errorf("append event: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := appendEventTx(ctx, tx, ev)
	if err != nil {
		return AppendResult{}, fmt.Errorf("append event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return AppendResult{}, fmt.Errorf("append event: commit: %w", err)
	}
	return res, nil
}

// AppendBatch appends a sequence of events atomically: either every event
// commits or none does. Used by sync so an interrupted pass never leaves a
// revision gap behind.
//
// Events for the same subject must appear in intended order; each one
// still gets its revision assigned by the store.
func (s *Store) AppendBatch(ctx context.Context, evs []domain.Event) ([]AppendResult, error) {
	if len(evs) == 0 {
		return []AppendResult{}, nil
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("append batch: %w", err)
	}
	defer tx.Rollback()

	results := make([]AppendResult, 0, len(evs))
	for i, ev := range evs {
		res, err := appendEventTx(ctx, tx, ev)
		if err != nil {
			return nil, fmt.Errorf("append batch: event %d: %w", i, err)
		}
		results = append(results, res)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("append batch: commit: %w", err)
	}
	return results, nil
}

// appendEventTx runs one append inside an existing transaction.
func appendEventTx(ctx context.Context, tx *sql.Tx, ev domain.Event) (AppendResult, error) {
	if ev.RecordedAt.IsZero() {
		ev.RecordedAt = time.Now().UTC()
	}

	switch ev.Subject {
	case domain.SubjectEntity:
		return appendEntityEventTx(ctx, tx, ev)
	case domain.SubjectArea:
		return appendAreaEventTx(ctx, tx, ev)
	default:
		return AppendResult{}, fmt.Errorf("unknown subject kind %q", ev.Subject)
	}
}

func appendEntityEventTx(ctx context.Context, tx *sql.Tx, ev domain.Event) (AppendResult, error) {
	tagsJSON, err := marshalTags(ev.Tags)
	if err != nil {
		return AppendResult{}, err
	}
	lon, lat := encodePoint(ev.Point)

	var subjectID, revision int64

	if ev.Kind == domain.EventCreated {
		if ev.SubjectID != 0 {
			return AppendResult{}, fmt.Errorf("created event must not carry a subject id (got %d)", ev.SubjectID)
		}
		if ev.External.Type == "" {
			return AppendResult{}, fmt.Errorf("created event missing external id")
		}

		// ON CONFLICT DO NOTHING + RowsAffected instead of relying on
		// driver error codes: a zero row count means another append
		// created this external id first.
		result, err := tx.ExecContext(ctx, `
			INSERT INTO entities
			(external_type, external_ref, revision, lon, lat, tags, deleted, last_synced_at)
			VALUES (?, ?, 1, ?, ?, ?, 0, ?)
			ON CONFLICT(external_type, external_ref) DO NOTHING
		`,
			ev.External.Type,
			ev.External.Ref,
			lon,
			lat,
			tagsJSON,
			encodeTime(ev.RecordedAt),
		)
		if err != nil {
			return AppendResult{}, fmt.Errorf("insert entity projection: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return AppendResult{}, fmt.Errorf("insert entity projection: rows affected: %w", err)
		}
		if affected == 0 {
			return AppendResult{}, &ConsistencyError{Subject: domain.SubjectEntity, Revision: 1}
		}
		subjectID, err = result.LastInsertId()
		if err != nil {
			return AppendResult{}, fmt.Errorf("insert entity projection: last insert id: %w", err)
		}
		revision = 1
	} else {
		subjectID = ev.SubjectID

		var current int64
		err := tx.QueryRowContext(ctx,
			`SELECT revision FROM entities WHERE id = ?`, subjectID,
		).Scan(&current)
		if err == sql.ErrNoRows {
			return AppendResult{}, fmt.Errorf("entity %d: %w", subjectID, ErrNotFound)
		}
		if err != nil {
			return AppendResult{}, fmt.Errorf("read entity revision: %w", err)
		}
		revision = current + 1

		deleted := 0
		if ev.Kind == domain.EventDeleted {
			deleted = 1
		}

		// The WHERE revision = ? guard makes the projection update a
		// compare-and-swap; losing it means a concurrent append
		// committed first.
		result, err := tx.ExecContext(ctx, `
			UPDATE entities
			SET revision = ?, lon = ?, lat = ?, tags = ?, deleted = ?, last_synced_at = ?
			WHERE id = ? AND revision = ?
		`,
			revision, lon, lat, tagsJSON, deleted, encodeTime(ev.RecordedAt),
			subjectID, current,
		)
		if err != nil {
			return AppendResult{}, fmt.Errorf("update entity projection: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return AppendResult{}, fmt.Errorf("update entity projection: rows affected: %w", err)
		}
		if affected != 1 {
			return AppendResult{}, &ConsistencyError{
				Subject:   domain.SubjectEntity,
				SubjectID: subjectID,
				Revision:  revision,
			}
		}
	}

	eventID, err := insertEventRow(ctx, tx, ev, subjectID, revision, tagsJSON)
	if err != nil {
		return AppendResult{}, err
	}

	return AppendResult{EventID: eventID, SubjectID: subjectID, Revision: revision}, nil
}

func appendAreaEventTx(ctx context.Context, tx *sql.Tx, ev domain.Event) (AppendResult, error) {
	tagsJSON, err := marshalTags(ev.Tags)
	if err != nil {
		return AppendResult{}, err
	}
	geometry := sql.NullString{String: string(ev.Geometry), Valid: len(ev.Geometry) > 0}

	var subjectID, revision int64

	if ev.Kind == domain.EventCreated {
		if ev.SubjectID != 0 {
			return AppendResult{}, fmt.Errorf("created event must not carry a subject id (got %d)", ev.SubjectID)
		}
		if ev.Name == "" {
			return AppendResult{}, fmt.Errorf("created area event missing name")
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO areas (name, revision, geometry, tags, deleted, updated_at)
			VALUES (?, 1, ?, ?, 0, ?)
		`,
			ev.Name, geometry, tagsJSON, encodeTime(ev.RecordedAt),
		)
		if err != nil {
			return AppendResult{}, fmt.Errorf("insert area projection: %w", err)
		}
		subjectID, err = result.LastInsertId()
		if err != nil {
			return AppendResult{}, fmt.Errorf("insert area projection: last insert id: %w", err)
		}
		revision = 1
	} else {
		subjectID = ev.SubjectID

		var current int64
		var currentName string
		err := tx.QueryRowContext(ctx,
			`SELECT revision, name FROM areas WHERE id = ?`, subjectID,
		).Scan(&current, &currentName)
		if err == sql.ErrNoRows {
			return AppendResult{}, fmt.Errorf("area %d: %w", subjectID, ErrNotFound)
		}
		if err != nil {
			return AppendResult{}, fmt.Errorf("read area revision: %w", err)
		}
		revision = current + 1

		name := ev.Name
		if name == "" {
			name = currentName
		}
		deleted := 0
		if ev.Kind == domain.EventDeleted {
			deleted = 1
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE areas
			SET revision = ?, name = ?, geometry = ?, tags = ?, deleted = ?, updated_at = ?
			WHERE id = ? AND revision = ?
		`,
			revision, name, geometry, tagsJSON, deleted, encodeTime(ev.RecordedAt),
			subjectID, current,
		)
		if err != nil {
			return AppendResult{}, fmt.Errorf("update area projection: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return AppendResult{}, fmt.Errorf("update area projection: rows affected: %w", err)
		}
		if affected != 1 {
			return AppendResult{}, &ConsistencyError{
				Subject:   domain.SubjectArea,
				SubjectID: subjectID,
				Revision:  revision,
			}
		}
	}

	eventID, err := insertEventRow(ctx, tx, ev, subjectID, revision, tagsJSON)
	if err != nil {
		return AppendResult{}, err
	}

	return AppendResult{EventID: eventID, SubjectID: subjectID, Revision: revision}, nil
}

// insertEventRow writes the immutable event record. The UNIQUE
// (subject_kind, subject_id, revision) constraint is the final guard on
// revision contiguity; a conflict here is a consistency fault.
func insertEventRow(ctx context.Context, tx *sql.Tx, ev domain.Event, subjectID, revision int64, tagsJSON string) (int64, error) {
	lon, lat := encodePoint(ev.Point)
	external := sql.NullString{}
	if ev.External.Type != "" {
		external = sql.NullString{String: ev.External.String(), Valid: true}
	}
	name := sql.NullString{String: ev.Name, Valid: ev.Name != ""}
	geometry := sql.NullString{String: string(ev.Geometry), Valid: len(ev.Geometry) > 0}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO events
		(subject_kind, subject_id, revision, kind, external_id, name, lon, lat, geometry, tags, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(subject_kind, subject_id, revision) DO NOTHING
	`,
		string(ev.Subject),
		subjectID,
		revision,
		string(ev.Kind),
		external,
		name,
		lon,
		lat,
		geometry,
		tagsJSON,
		encodeTime(ev.RecordedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("insert event: rows affected: %w", err)
	}
	if affected == 0 {
		return 0, &ConsistencyError{Subject: ev.Subject, SubjectID: subjectID, Revision: revision}
	}
	return result.LastInsertId()
}
