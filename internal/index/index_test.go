package index

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poimirror/poimirror/internal/domain"
	"github.com/poimirror/poimirror/internal/store"
)

const squareGeoJSON = `{"type":"Polygon","coordinates":[[[13.0,52.0],[14.0,52.0],[14.0,53.0],[13.0,53.0],[13.0,52.0]]]}`

func newTestIndex(t *testing.T) (*Index, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s), s
}

func addEntity(t *testing.T, s *store.Store, ref int64, p *domain.Point) int64 {
	t.Helper()
	res, err := s.AppendEvent(context.Background(), domain.Event{
		Subject:    domain.SubjectEntity,
		Kind:       domain.EventCreated,
		External:   domain.ExternalID{Type: "node", Ref: ref},
		Point:      p,
		RecordedAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return res.SubjectID
}

func addArea(t *testing.T, s *store.Store, name, geometry string) int64 {
	t.Helper()
	res, err := s.AppendEvent(context.Background(), domain.Event{
		Subject:    domain.SubjectArea,
		Kind:       domain.EventCreated,
		Name:       name,
		Geometry:   []byte(geometry),
		RecordedAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return res.SubjectID
}

func TestReindexEntity_InsideAndOutside(t *testing.T) {
	ix, s := newTestIndex(t)
	ctx := context.Background()

	area := addArea(t, s, "box", squareGeoJSON)
	inside := addEntity(t, s, 1, &domain.Point{Lon: 13.5, Lat: 52.5})
	outside := addEntity(t, s, 2, &domain.Point{Lon: 20, Lat: 52.5})

	require.NoError(t, ix.ReindexEntity(ctx, inside))
	require.NoError(t, ix.ReindexEntity(ctx, outside))

	areas, err := ix.AreasOf(ctx, inside)
	require.NoError(t, err)
	assert.Equal(t, []int64{area}, areas)

	areas, err = ix.AreasOf(ctx, outside)
	require.NoError(t, err)
	assert.Empty(t, areas)
}

func TestReindexEntity_BoundaryPointIsMember(t *testing.T) {
	ix, s := newTestIndex(t)
	ctx := context.Background()

	area := addArea(t, s, "box", squareGeoJSON)
	onEdge := addEntity(t, s, 1, &domain.Point{Lon: 13.0, Lat: 52.5})

	require.NoError(t, ix.ReindexEntity(ctx, onEdge))

	areas, err := ix.AreasOf(ctx, onEdge)
	require.NoError(t, err)
	assert.Equal(t, []int64{area}, areas)
}

func TestReindexEntity_MoveAcrossBoundary(t *testing.T) {
	ix, s := newTestIndex(t)
	ctx := context.Background()

	area := addArea(t, s, "box", squareGeoJSON)
	id := addEntity(t, s, 1, &domain.Point{Lon: 13.5, Lat: 52.5})
	require.NoError(t, ix.ReindexEntity(ctx, id))

	areas, err := ix.AreasOf(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []int64{area}, areas)

	// Entity moves outside; after reindex the membership is gone.
	_, err = s.AppendEvent(ctx, domain.Event{
		Subject:    domain.SubjectEntity,
		SubjectID:  id,
		Kind:       domain.EventUpdated,
		Point:      &domain.Point{Lon: 20, Lat: 52.5},
		RecordedAt: time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NoError(t, ix.ReindexEntity(ctx, id))

	areas, err = ix.AreasOf(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, areas)
}

func TestReindexEntity_DeletedLosesMembership(t *testing.T) {
	ix, s := newTestIndex(t)
	ctx := context.Background()

	addArea(t, s, "box", squareGeoJSON)
	id := addEntity(t, s, 1, &domain.Point{Lon: 13.5, Lat: 52.5})
	require.NoError(t, ix.ReindexEntity(ctx, id))

	_, err := s.AppendEvent(ctx, domain.Event{
		Subject:    domain.SubjectEntity,
		SubjectID:  id,
		Kind:       domain.EventDeleted,
		Point:      &domain.Point{Lon: 13.5, Lat: 52.5},
		RecordedAt: time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NoError(t, ix.ReindexEntity(ctx, id))

	areas, err := ix.AreasOf(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, areas)
}

func TestReindexArea_BrokenGeometryIsQuarantined(t *testing.T) {
	ix, s := newTestIndex(t)
	ctx := context.Background()

	good := addArea(t, s, "good", squareGeoJSON)
	broken := addArea(t, s, "broken", `{"type":"Point","coordinates":[1,1]}`)
	id := addEntity(t, s, 1, &domain.Point{Lon: 13.5, Lat: 52.5})

	err := ix.ReindexArea(ctx, broken)
	require.Error(t, err)
	assert.True(t, IsBrokenArea(err))

	// The broken area stays empty; the good one still indexes.
	require.NoError(t, ix.ReindexArea(ctx, good))

	members, err := ix.MembersOf(ctx, good)
	require.NoError(t, err)
	assert.Equal(t, []int64{id}, members)

	members, err = ix.MembersOf(ctx, broken)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestRebuildAll(t *testing.T) {
	ix, s := newTestIndex(t)
	ctx := context.Background()

	area := addArea(t, s, "box", squareGeoJSON)
	addArea(t, s, "broken", `{"type":"Point","coordinates":[1,1]}`)
	in1 := addEntity(t, s, 1, &domain.Point{Lon: 13.2, Lat: 52.2})
	in2 := addEntity(t, s, 2, &domain.Point{Lon: 13.8, Lat: 52.8})
	addEntity(t, s, 3, &domain.Point{Lon: 0, Lat: 0})
	addEntity(t, s, 4, nil) // unlocated, never indexed

	stats, err := ix.RebuildAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Areas)
	assert.Equal(t, 1, stats.BrokenAreas)
	assert.Equal(t, 3, stats.Entities)
	assert.Equal(t, 2, stats.Memberships)

	members, err := ix.MembersOf(ctx, area)
	require.NoError(t, err)
	assert.Equal(t, []int64{in1, in2}, members)
}

func TestGeometryCache_InvalidatesOnRevisionBump(t *testing.T) {
	ix, s := newTestIndex(t)
	ctx := context.Background()

	area := addArea(t, s, "box", squareGeoJSON)
	id := addEntity(t, s, 1, &domain.Point{Lon: 13.5, Lat: 52.5})
	require.NoError(t, ix.ReindexArea(ctx, area))

	members, err := ix.MembersOf(ctx, area)
	require.NoError(t, err)
	require.Equal(t, []int64{id}, members)

	// The boundary shrinks away from the entity. The cache must pick up
	// the new revision, not serve the old polygon.
	_, err = s.AppendEvent(ctx, domain.Event{
		Subject:    domain.SubjectArea,
		SubjectID:  area,
		Kind:       domain.EventUpdated,
		Geometry:   []byte(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`),
		RecordedAt: time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NoError(t, ix.ReindexArea(ctx, area))

	members, err = ix.MembersOf(ctx, area)
	require.NoError(t, err)
	assert.Empty(t, members)
}
