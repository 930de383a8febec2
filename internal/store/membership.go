package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Membership rows are a derived cache owned by the index: they hold no
// authoritative data and can always be reconstructed from the entity and
// area projections. The store only provides the persistence primitives;
// containment decisions live in the index.

// ReplaceEntityMemberships atomically replaces the set of areas an entity
// belongs to.
func (s *Store) ReplaceEntityMemberships(ctx context.Context, entityID int64, areaIDs []int64) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return fmt.Errorf("replace entity memberships: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM memberships WHERE entity_id = ?`, entityID); err != nil {
		return fmt.Errorf("replace entity memberships: delete: %w", err)
	}

	for _, areaID := range areaIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO memberships (entity_id, area_id) VALUES (?, ?)`,
			entityID, areaID); err != nil {
			return fmt.Errorf("replace entity memberships: insert area %d: %w", areaID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace entity memberships: commit: %w", err)
	}
	return nil
}

// ReplaceAreaMemberships atomically replaces the set of entities inside
// an area.
func (s *Store) ReplaceAreaMemberships(ctx context.Context, areaID int64, entityIDs []int64) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return fmt.Errorf("replace area memberships: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM memberships WHERE area_id = ?`, areaID); err != nil {
		return fmt.Errorf("replace area memberships: delete: %w", err)
	}

	for _, entityID := range entityIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO memberships (entity_id, area_id) VALUES (?, ?)`,
			entityID, areaID); err != nil {
			return fmt.Errorf("replace area memberships: insert entity %d: %w", entityID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace area memberships: commit: %w", err)
	}
	return nil
}

// MembersOf returns the entity ids currently inside an area, in id order.
func (s *Store) MembersOf(ctx context.Context, areaID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entity_id FROM memberships WHERE area_id = ? ORDER BY entity_id ASC`, areaID)
	if err != nil {
		return nil, fmt.Errorf("members of area %d: %w", areaID, err)
	}
	defer rows.Close()

	return collectIDs(rows, "entity")
}

// AreasOf returns the area ids currently containing an entity, in id
// order.
func (s *Store) AreasOf(ctx context.Context, entityID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT area_id FROM memberships WHERE entity_id = ? ORDER BY area_id ASC`, entityID)
	if err != nil {
		return nil, fmt.Errorf("areas of entity %d: %w", entityID, err)
	}
	defer rows.Close()

	return collectIDs(rows, "area")
}

// ClearMemberships drops the entire cache. Used by full rebuilds.
func (s *Store) ClearMemberships(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memberships`); err != nil {
		return fmt.Errorf("clear memberships: %w", err)
	}
	return nil
}

func collectIDs(rows *sql.Rows, kind string) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s id: %w", kind, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s ids: %w", kind, err)
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids, nil
}
