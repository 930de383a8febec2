// Package index maintains the entity-area membership cache.
//
// Membership is derived, never authoritative: every row can be recomputed
// from the entity and area projections, and RebuildAll does exactly that
// on cold start. Incremental reindexing touches only the changed side -
// one entity against all areas, or one area against all entities.
package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poimirror/poimirror/internal/store"
)

// Index computes and persists memberships.
//
// Thread-safety: safe for concurrent use. The parsed-geometry cache is
// guarded internally; membership writes go through the store's
// single-writer connection.
type Index struct {
	store *store.Store
	cache *geometryCache
}

// New creates an index over the given store.
func New(s *store.Store) *Index {
	return &Index{
		store: s,
		cache: newGeometryCache(),
	}
}

// ReindexEntity recomputes the entity's memberships against all known
// areas.
//
// The entity's latest committed revision is read here, after the append
// that triggered the reindex, so the result always reflects it. Deleted
// or unlocated entities get empty membership.
func (ix *Index) ReindexEntity(ctx context.Context, entityID int64) error {
	ent, err := ix.store.Entity(ctx, entityID)
	if err != nil {
		return fmt.Errorf("reindex entity %d: %w", entityID, err)
	}

	if ent.Deleted || ent.Point == nil {
		if err := ix.store.ReplaceEntityMemberships(ctx, entityID, nil); err != nil {
			return fmt.Errorf("reindex entity %d: %w", entityID, err)
		}
		return nil
	}

	areas, err := ix.store.Areas(ctx)
	if err != nil {
		return fmt.Errorf("reindex entity %d: %w", entityID, err)
	}

	var memberOf []int64
	for i := range areas {
		geom, ok := ix.cache.geometryFor(&areas[i])
		if !ok {
			continue
		}
		if geom.Contains(*ent.Point) {
			memberOf = append(memberOf, areas[i].ID)
		}
	}

	if err := ix.store.ReplaceEntityMemberships(ctx, entityID, memberOf); err != nil {
		return fmt.Errorf("reindex entity %d: %w", entityID, err)
	}
	return nil
}

// ReindexArea recomputes the area's member set against all active,
// located entities.
//
// Malformed area geometry disables containment for this area only: its
// membership is cleared and a BrokenAreaError is returned so the caller
// can report it, but other areas are unaffected.
func (ix *Index) ReindexArea(ctx context.Context, areaID int64) error {
	area, err := ix.store.Area(ctx, areaID)
	if err != nil {
		return fmt.Errorf("reindex area %d: %w", areaID, err)
	}

	if area.Deleted {
		if err := ix.store.ReplaceAreaMemberships(ctx, areaID, nil); err != nil {
			return fmt.Errorf("reindex area %d: %w", areaID, err)
		}
		return nil
	}

	geom, ok := ix.cache.geometryFor(&area)
	if !ok {
		if err := ix.store.ReplaceAreaMemberships(ctx, areaID, nil); err != nil {
			return fmt.Errorf("reindex area %d: %w", areaID, err)
		}
		return &BrokenAreaError{AreaID: areaID, Err: ix.cache.brokenReason(areaID)}
	}

	entities, err := ix.store.ActiveLocatedEntities(ctx)
	if err != nil {
		return fmt.Errorf("reindex area %d: %w", areaID, err)
	}

	var members []int64
	for i := range entities {
		if geom.Contains(*entities[i].Point) {
			members = append(members, entities[i].ID)
		}
	}

	if err := ix.store.ReplaceAreaMemberships(ctx, areaID, members); err != nil {
		return fmt.Errorf("reindex area %d: %w", areaID, err)
	}
	return nil
}

// RebuildStats summarizes a full rebuild.
type RebuildStats struct {
	Areas       int
	BrokenAreas int
	Entities    int
	Memberships int
}

// RebuildAll recomputes the whole cache from scratch. O(entities x areas);
// this is the cold-start path, not the steady state.
//
// Broken areas are counted and logged, never fatal to indexing the rest.
func (ix *Index) RebuildAll(ctx context.Context) (*RebuildStats, error) {
	if err := ix.store.ClearMemberships(ctx); err != nil {
		return nil, fmt.Errorf("rebuild: %w", err)
	}

	areas, err := ix.store.Areas(ctx)
	if err != nil {
		return nil, fmt.Errorf("rebuild: %w", err)
	}
	entities, err := ix.store.ActiveLocatedEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("rebuild: %w", err)
	}

	stats := &RebuildStats{Areas: len(areas), Entities: len(entities)}

	for i := range areas {
		geom, ok := ix.cache.geometryFor(&areas[i])
		if !ok {
			stats.BrokenAreas++
			slog.Warn("area geometry unusable, membership disabled",
				"area", areas[i].ID,
				"error", ix.cache.brokenReason(areas[i].ID),
			)
			continue
		}

		var members []int64
		for j := range entities {
			if geom.Contains(*entities[j].Point) {
				members = append(members, entities[j].ID)
			}
		}
		if err := ix.store.ReplaceAreaMemberships(ctx, areas[i].ID, members); err != nil {
			return nil, fmt.Errorf("rebuild area %d: %w", areas[i].ID, err)
		}
		stats.Memberships += len(members)
	}

	slog.Info("membership rebuild complete",
		"areas", stats.Areas,
		"broken_areas", stats.BrokenAreas,
		"entities", stats.Entities,
		"memberships", stats.Memberships,
	)
	return stats, nil
}

// MembersOf returns the entity ids currently inside an area.
func (ix *Index) MembersOf(ctx context.Context, areaID int64) ([]int64, error) {
	return ix.store.MembersOf(ctx, areaID)
}

// AreasOf returns the area ids currently containing an entity.
func (ix *Index) AreasOf(ctx context.Context, entityID int64) ([]int64, error) {
	return ix.store.AreasOf(ctx, entityID)
}
