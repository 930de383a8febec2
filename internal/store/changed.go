package store

import (
	"context"
	"fmt"
	"time"

	"github.com/poimirror/poimirror/internal/domain"
)

// ChangedCursor marks a position in the changed-since listing.
//
// Pagination is keyset-based on (last_synced_at, id) rather than offset,
// so a page boundary stays stable while syncs commit new events: rows
// inserted behind the cursor are never re-served and never shift later
// pages.
type ChangedCursor struct {
	LastSyncedAt time.Time
	ID           int64
}

// ListChangedSince returns entities whose most recent event was committed
// strictly after since, ordered by (last_synced_at, id).
//
// Pass the cursor from the previous page to continue; nil starts from the
// beginning. The returned cursor is nil when the listing is exhausted.
// Deleted entities are included so consumers can mirror removals.
func (s *Store) ListChangedSince(ctx context.Context, since time.Time, cursor *ChangedCursor, limit int) ([]domain.Entity, *ChangedCursor, error) {
	if limit <= 0 {
		return nil, nil, fmt.Errorf("list changed since: limit must be positive, got %d", limit)
	}

	query := `SELECT ` + entityColumns + ` FROM entities WHERE last_synced_at > ?`
	args := []any{encodeTime(since)}

	if cursor != nil {
		// Row-value comparison keeps the (timestamp, id) tiebreak in one
		// sargable predicate.
		query += ` AND (last_synced_at, id) > (?, ?)`
		args = append(args, encodeTime(cursor.LastSyncedAt), cursor.ID)
	}

	// Fetch one extra row to learn whether another page exists.
	query += ` ORDER BY last_synced_at ASC, id ASC LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("list changed since: %w", err)
	}
	defer rows.Close()

	entities, err := collectEntities(rows)
	if err != nil {
		return nil, nil, fmt.Errorf("list changed since: %w", err)
	}

	var next *ChangedCursor
	if len(entities) > limit {
		entities = entities[:limit]
		last := entities[len(entities)-1]
		next = &ChangedCursor{LastSyncedAt: last.LastSyncedAt, ID: last.ID}
	}

	return entities, next, nil
}
