package query

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poimirror/poimirror/internal/domain"
	"github.com/poimirror/poimirror/internal/store"
)

// seedFixture loads a small deterministic dataset: one area, one live
// member, one deleted entity, one stored report row.
func seedFixture(t *testing.T) (*Service, int64) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	day := func(d int) time.Time { return time.Date(2026, 8, d, 0, 0, 0, 0, time.UTC) }

	area, err := s.AppendEvent(ctx, domain.Event{
		Subject:    domain.SubjectArea,
		Kind:       domain.EventCreated,
		Name:       "Berlin",
		Geometry:   []byte(`{"type":"Polygon","coordinates":[[[13,52],[14,52],[14,53],[13,53],[13,52]]]}`),
		Tags:       map[string]string{"type": "community"},
		RecordedAt: day(1),
	})
	require.NoError(t, err)

	cafe, err := s.AppendEvent(ctx, domain.Event{
		Subject:    domain.SubjectEntity,
		Kind:       domain.EventCreated,
		External:   domain.ExternalID{Type: "node", Ref: 101},
		Point:      &domain.Point{Lon: 13.4, Lat: 52.5},
		Tags:       map[string]string{"name": "Cafe"},
		RecordedAt: day(2),
	})
	require.NoError(t, err)

	gone, err := s.AppendEvent(ctx, domain.Event{
		Subject:    domain.SubjectEntity,
		Kind:       domain.EventCreated,
		External:   domain.ExternalID{Type: "node", Ref: 102},
		RecordedAt: day(3),
	})
	require.NoError(t, err)
	_, err = s.AppendEvent(ctx, domain.Event{
		Subject:    domain.SubjectEntity,
		SubjectID:  gone.SubjectID,
		Kind:       domain.EventDeleted,
		RecordedAt: day(4),
	})
	require.NoError(t, err)

	require.NoError(t, s.ReplaceAreaMemberships(ctx, area.SubjectID, []int64{cafe.SubjectID}))

	require.NoError(t, s.SaveSnapshot(ctx, domain.ReportSnapshot{
		AreaID:      area.SubjectID,
		Date:        "2026-08-10",
		Counts:      domain.ReportCounts{TotalMembers: 1, Outdated: 1},
		GeneratedAt: time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC),
	}, false))

	return New(s), area.SubjectID
}

func assertGolden(t *testing.T, name string, v any) {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	require.NoError(t, err)
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, append(data, '\n'))
}

func TestChangedSince_Golden(t *testing.T) {
	svc, _ := seedFixture(t)

	page, err := svc.ChangedSince(context.Background(),
		time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), nil, 10)
	require.NoError(t, err)
	require.Nil(t, page.Next)

	assertGolden(t, "changed_entities", page)
}

func TestReports_Golden(t *testing.T) {
	svc, area := seedFixture(t)

	views, err := svc.Reports(context.Background(), area, "", "")
	require.NoError(t, err)

	assertGolden(t, "reports", views)
}

func TestEntity_ByIDAndExternalID(t *testing.T) {
	svc, _ := seedFixture(t)
	ctx := context.Background()

	byExt, err := svc.EntityByExternalID(ctx, domain.ExternalID{Type: "node", Ref: 101})
	require.NoError(t, err)
	assert.Equal(t, "node:101", byExt.ExternalID)
	require.NotNil(t, byExt.Lon)
	assert.Equal(t, 13.4, *byExt.Lon)

	byID, err := svc.Entity(ctx, byExt.ID)
	require.NoError(t, err)
	assert.Equal(t, byExt, byID)
}

func TestAreas(t *testing.T) {
	svc, area := seedFixture(t)

	views, err := svc.Areas(context.Background())
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, area, views[0].ID)
	assert.Equal(t, "Berlin", views[0].Name)
	assert.Equal(t, int64(1), views[0].Revision)
}

func TestAreasOf(t *testing.T) {
	svc, area := seedFixture(t)
	ctx := context.Background()

	member, err := svc.EntityByExternalID(ctx, domain.ExternalID{Type: "node", Ref: 101})
	require.NoError(t, err)

	areas, err := svc.AreasOf(ctx, member.ID)
	require.NoError(t, err)
	require.Len(t, areas, 1)
	assert.Equal(t, area, areas[0].ID)
}

func TestChangedSince_LimitDefaults(t *testing.T) {
	svc, _ := seedFixture(t)

	// A non-positive limit falls back to the default page size.
	page, err := svc.ChangedSince(context.Background(),
		time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), nil, 0)
	require.NoError(t, err)
	assert.Len(t, page.Entities, 2)
}
