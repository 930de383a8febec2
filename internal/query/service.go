// Package query is the read side of the mirror. It never writes: every
// method is a projection read, so callers can hold it concurrently with
// a running sync.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/poimirror/poimirror/internal/domain"
	"github.com/poimirror/poimirror/internal/store"
)

// DefaultPageSize bounds ChangedSince when the caller passes limit <= 0.
const DefaultPageSize = 100

// Service exposes read-only views over the store.
type Service struct {
	store *store.Store
}

// New creates a query service over the given store.
func New(s *store.Store) *Service {
	return &Service{store: s}
}

// Cursor is an opaque continuation token for paginated reads. A nil
// cursor means start from the beginning.
type Cursor = store.ChangedCursor

// EntityView is the external shape of an entity.
type EntityView struct {
	ID           int64             `json:"id"`
	ExternalID   string            `json:"external_id"`
	Lon          *float64          `json:"lon,omitempty"`
	Lat          *float64          `json:"lat,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
	Deleted      bool              `json:"deleted,omitempty"`
	Revision     int64             `json:"revision"`
	LastSyncedAt time.Time         `json:"last_synced_at"`
}

// AreaView is the external shape of an area. Geometry is passed through
// as the GeoJSON it was ingested with.
type AreaView struct {
	ID       int64             `json:"id"`
	Name     string            `json:"name"`
	Tags     map[string]string `json:"tags,omitempty"`
	Geometry json.RawMessage   `json:"geometry"`
	Revision int64             `json:"revision"`
}

// ReportView is the external shape of a snapshot row.
type ReportView struct {
	AreaID      int64               `json:"area_id"`
	Date        string              `json:"date"`
	Counts      domain.ReportCounts `json:"counts"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// Page is one window of a ChangedSince scan. Next is nil when the scan
// is exhausted.
type Page struct {
	Entities []EntityView `json:"entities"`
	Next     *Cursor      `json:"next,omitempty"`
}

// Entity returns one entity by internal id, deleted or not.
func (s *Service) Entity(ctx context.Context, id int64) (EntityView, error) {
	e, err := s.store.Entity(ctx, id)
	if err != nil {
		return EntityView{}, fmt.Errorf("query entity %d: %w", id, err)
	}
	return entityView(e), nil
}

// EntityByExternalID returns one entity by its source identifier.
func (s *Service) EntityByExternalID(ctx context.Context, ext domain.ExternalID) (EntityView, error) {
	e, err := s.store.EntityByExternalID(ctx, ext)
	if err != nil {
		return EntityView{}, fmt.Errorf("query entity %s: %w", ext, err)
	}
	return entityView(e), nil
}

// ChangedSince pages through entities whose last sync touch is strictly
// after since, oldest first. Deleted entities are included so mirrors
// downstream can drop them. Ordering is total (sync time, then id), so
// resuming from the returned cursor never skips or repeats a row.
func (s *Service) ChangedSince(ctx context.Context, since time.Time, cursor *Cursor, limit int) (Page, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	entities, next, err := s.store.ListChangedSince(ctx, since, cursor, limit)
	if err != nil {
		return Page{}, fmt.Errorf("query changed entities: %w", err)
	}

	page := Page{Entities: make([]EntityView, len(entities)), Next: next}
	for i, e := range entities {
		page.Entities[i] = entityView(e)
	}
	return page, nil
}

// Area returns one area by id.
func (s *Service) Area(ctx context.Context, id int64) (AreaView, error) {
	a, err := s.store.Area(ctx, id)
	if err != nil {
		return AreaView{}, fmt.Errorf("query area %d: %w", id, err)
	}
	return areaView(a), nil
}

// Areas lists all non-deleted areas.
func (s *Service) Areas(ctx context.Context) ([]AreaView, error) {
	areas, err := s.store.Areas(ctx)
	if err != nil {
		return nil, fmt.Errorf("query areas: %w", err)
	}
	views := make([]AreaView, len(areas))
	for i, a := range areas {
		views[i] = areaView(a)
	}
	return views, nil
}

// AreasOf returns the areas a given entity currently falls inside.
func (s *Service) AreasOf(ctx context.Context, entityID int64) ([]AreaView, error) {
	ids, err := s.store.AreasOf(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("query areas of entity %d: %w", entityID, err)
	}
	views := make([]AreaView, 0, len(ids))
	for _, id := range ids {
		a, err := s.store.Area(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("query areas of entity %d: %w", entityID, err)
		}
		views = append(views, areaView(a))
	}
	return views, nil
}

// Reports lists an area's snapshots with dates in [from, to], ascending.
// Empty bounds are open.
func (s *Service) Reports(ctx context.Context, areaID int64, from, to string) ([]ReportView, error) {
	snaps, err := s.store.ListSnapshots(ctx, areaID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query reports for area %d: %w", areaID, err)
	}
	views := make([]ReportView, len(snaps))
	for i, snap := range snaps {
		views[i] = ReportView{
			AreaID:      snap.AreaID,
			Date:        snap.Date,
			Counts:      snap.Counts,
			GeneratedAt: snap.GeneratedAt,
		}
	}
	return views, nil
}

func entityView(e domain.Entity) EntityView {
	v := EntityView{
		ID:           e.ID,
		ExternalID:   e.External.String(),
		Tags:         e.Tags,
		Deleted:      e.Deleted,
		Revision:     e.Revision,
		LastSyncedAt: e.LastSyncedAt,
	}
	if e.Point != nil {
		lon, lat := e.Point.Lon, e.Point.Lat
		v.Lon, v.Lat = &lon, &lat
	}
	return v
}

func areaView(a domain.Area) AreaView {
	return AreaView{
		ID:       a.ID,
		Name:     a.Name,
		Tags:     a.Tags,
		Geometry: json.RawMessage(a.Geometry),
		Revision: a.Revision,
	}
}
