package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/poimirror/poimirror/internal/domain"
)

const entityColumns = `id, external_type, external_ref, revision, lon, lat, tags, deleted, last_synced_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(row scanner) (domain.Entity, error) {
	var (
		e        domain.Entity
		lon, lat sql.NullFloat64
		tagsJSON string
		deleted  int
		syncedAt string
	)
	if err := row.Scan(
		&e.ID,
		&e.External.Type,
		&e.External.Ref,
		&e.Revision,
		&lon,
		&lat,
		&tagsJSON,
		&deleted,
		&syncedAt,
	); err != nil {
		return domain.Entity{}, err
	}

	e.Point = decodePoint(lon, lat)
	e.Deleted = deleted != 0

	tags, err := unmarshalTags(tagsJSON)
	if err != nil {
		return domain.Entity{}, fmt.Errorf("entity %d: %w", e.ID, err)
	}
	e.Tags = tags

	e.LastSyncedAt, err = decodeTime(syncedAt)
	if err != nil {
		return domain.Entity{}, fmt.Errorf("entity %d: %w", e.ID, err)
	}
	return e, nil
}

// Entity returns the current projection for an internal id.
// Returns ErrNotFound for unknown ids.
func (s *Store) Entity(ctx context.Context, id int64) (domain.Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return domain.Entity{}, fmt.Errorf("entity %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.Entity{}, fmt.Errorf("read entity %d: %w", id, err)
	}
	return e, nil
}

// EntityByExternalID returns the current projection for an upstream id.
// Returns ErrNotFound for unknown ids.
func (s *Store) EntityByExternalID(ctx context.Context, ext domain.ExternalID) (domain.Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE external_type = ? AND external_ref = ?`,
		ext.Type, ext.Ref)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return domain.Entity{}, fmt.Errorf("entity %s: %w", ext, ErrNotFound)
	}
	if err != nil {
		return domain.Entity{}, fmt.Errorf("read entity %s: %w", ext, err)
	}
	return e, nil
}

// AllEntities returns every entity projection, deleted ones included.
// Sync diffing needs the deleted rows to tell "gone upstream, already
// deleted here" from "gone upstream, delete now".
func (s *Store) AllEntities(ctx context.Context) ([]domain.Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entityColumns+` FROM entities ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	return collectEntities(rows)
}

// ActiveLocatedEntities returns non-deleted entities that have a point.
// These are the only entities eligible for containment tests.
func (s *Store) ActiveLocatedEntities(ctx context.Context) ([]domain.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entityColumns+` FROM entities
		WHERE deleted = 0 AND lon IS NOT NULL AND lat IS NOT NULL
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query active entities: %w", err)
	}
	defer rows.Close()

	return collectEntities(rows)
}

// EntitiesByIDs returns projections for the given internal ids, ordered
// by id. Unknown ids are silently omitted.
func (s *Store) EntitiesByIDs(ctx context.Context, ids []int64) ([]domain.Entity, error) {
	if len(ids) == 0 {
		return []domain.Entity{}, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE id IN (`+placeholders+`) ORDER BY id ASC`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("query entities by ids: %w", err)
	}
	defer rows.Close()

	return collectEntities(rows)
}

func collectEntities(rows *sql.Rows) ([]domain.Entity, error) {
	var entities []domain.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	if entities == nil {
		entities = []domain.Entity{}
	}
	return entities, nil
}
