package store

import (
	"context"
	"fmt"
)

// Scope attribution rows record which sync scope last observed each
// entity, so deletion inference can stay inside the syncing scope. Like
// memberships they are sync metadata, not part of the event log. An
// entity may appear under several scopes.

// ReplaceScopeEntities atomically replaces the set of entities attributed
// to a scope. Used after a complete snapshot, which enumerates the scope
// fully.
func (s *Store) ReplaceScopeEntities(ctx context.Context, scope string, entityIDs []int64) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return fmt.Errorf("replace scope entities: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM scope_entities WHERE scope = ?`, scope); err != nil {
		return fmt.Errorf("replace scope entities: delete: %w", err)
	}

	for _, entityID := range entityIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO scope_entities (scope, entity_id) VALUES (?, ?)`,
			scope, entityID); err != nil {
			return fmt.Errorf("replace scope entities: insert entity %d: %w", entityID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace scope entities: commit: %w", err)
	}
	return nil
}

// AddScopeEntities attributes entities to a scope without dropping the
// rest of its set. Used after a partial snapshot, which proves presence
// but not absence.
func (s *Store) AddScopeEntities(ctx context.Context, scope string, entityIDs []int64) error {
	if len(entityIDs) == 0 {
		return nil
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return fmt.Errorf("add scope entities: %w", err)
	}
	defer tx.Rollback()

	for _, entityID := range entityIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO scope_entities (scope, entity_id) VALUES (?, ?)`,
			scope, entityID); err != nil {
			return fmt.Errorf("add scope entities: insert entity %d: %w", entityID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("add scope entities: commit: %w", err)
	}
	return nil
}

// ScopeEntities returns the entity ids attributed to a scope, in id
// order.
func (s *Store) ScopeEntities(ctx context.Context, scope string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entity_id FROM scope_entities WHERE scope = ? ORDER BY entity_id ASC`, scope)
	if err != nil {
		return nil, fmt.Errorf("entities in scope %q: %w", scope, err)
	}
	defer rows.Close()

	return collectIDs(rows, "entity")
}
