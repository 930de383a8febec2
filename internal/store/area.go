package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/poimirror/poimirror/internal/domain"
)

const areaColumns = `id, name, revision, geometry, tags, deleted, updated_at`

func scanArea(row scanner) (domain.Area, error) {
	var (
		a         domain.Area
		geometry  sql.NullString
		tagsJSON  string
		deleted   int
		updatedAt string
	)
	if err := row.Scan(
		&a.ID,
		&a.Name,
		&a.Revision,
		&geometry,
		&tagsJSON,
		&deleted,
		&updatedAt,
	); err != nil {
		return domain.Area{}, err
	}

	if geometry.Valid {
		a.Geometry = []byte(geometry.String)
	}
	a.Deleted = deleted != 0

	tags, err := unmarshalTags(tagsJSON)
	if err != nil {
		return domain.Area{}, fmt.Errorf("area %d: %w", a.ID, err)
	}
	a.Tags = tags

	a.UpdatedAt, err = decodeTime(updatedAt)
	if err != nil {
		return domain.Area{}, fmt.Errorf("area %d: %w", a.ID, err)
	}
	return a, nil
}

// Area returns the current projection for an area id.
// Returns ErrNotFound for unknown ids.
func (s *Store) Area(ctx context.Context, id int64) (domain.Area, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+areaColumns+` FROM areas WHERE id = ?`, id)
	a, err := scanArea(row)
	if err == sql.ErrNoRows {
		return domain.Area{}, fmt.Errorf("area %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.Area{}, fmt.Errorf("read area %d: %w", id, err)
	}
	return a, nil
}

// Areas returns all non-deleted area projections ordered by id.
func (s *Store) Areas(ctx context.Context) ([]domain.Area, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+areaColumns+` FROM areas WHERE deleted = 0 ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query areas: %w", err)
	}
	defer rows.Close()

	var areas []domain.Area
	for rows.Next() {
		a, err := scanArea(rows)
		if err != nil {
			return nil, fmt.Errorf("scan area: %w", err)
		}
		areas = append(areas, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate areas: %w", err)
	}
	if areas == nil {
		areas = []domain.Area{}
	}
	return areas, nil
}
