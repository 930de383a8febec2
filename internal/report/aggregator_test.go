package report

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poimirror/poimirror/internal/domain"
	"github.com/poimirror/poimirror/internal/store"
	"github.com/poimirror/poimirror/internal/testutil"
)

var testNow = time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

func newTestAggregator(t *testing.T) (*Aggregator, *store.Store, *testutil.Clock) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := testutil.NewClock(testNow)
	return New(s, WithClock(clock.Now)), s, clock
}

func seedArea(t *testing.T, s *store.Store) int64 {
	t.Helper()
	res, err := s.AppendEvent(context.Background(), domain.Event{
		Subject:    domain.SubjectArea,
		Kind:       domain.EventCreated,
		Name:       "box",
		Geometry:   []byte(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`),
		RecordedAt: testNow.AddDate(0, -6, 0),
	})
	require.NoError(t, err)
	return res.SubjectID
}

// seedMember creates an entity and caches it as a member of the area.
func seedMember(t *testing.T, s *store.Store, areaID, ref int64, tags map[string]string, created time.Time) int64 {
	t.Helper()
	ctx := context.Background()
	res, err := s.AppendEvent(ctx, domain.Event{
		Subject:    domain.SubjectEntity,
		Kind:       domain.EventCreated,
		External:   domain.ExternalID{Type: "node", Ref: ref},
		Point:      &domain.Point{Lon: 0.5, Lat: 0.5},
		Tags:       tags,
		RecordedAt: created,
	})
	require.NoError(t, err)

	areas, err := s.AreasOf(ctx, res.SubjectID)
	require.NoError(t, err)
	require.NoError(t, s.ReplaceEntityMemberships(ctx, res.SubjectID, append(areas, areaID)))
	return res.SubjectID
}

func TestComputeSnapshot_Counts(t *testing.T) {
	agg, s, _ := newTestAggregator(t)
	ctx := context.Background()
	area := seedArea(t, s)

	old := testNow.AddDate(-2, 0, 0)
	// Checked last month, structured payment methods: up to date.
	seedMember(t, s, area, 1, map[string]string{
		"check_date":        "2026-07-15",
		"payment:onchain":   "yes",
		"payment:lightning": "yes",
	}, old)
	// Checked two years ago: outdated.
	seedMember(t, s, area, 2, map[string]string{"survey:date": "2024-01-10"}, old)
	// Never checked, legacy payment tag.
	seedMember(t, s, area, 3, map[string]string{"payment:bitcoin": "yes"}, old)
	// Created this week: counts as created and updated in window.
	seedMember(t, s, area, 4, nil, testNow.AddDate(0, 0, -3))
	// A contactless-capable ATM.
	seedMember(t, s, area, 5, map[string]string{
		"amenity":                        "atm",
		"payment:lightning_contactless": "yes",
	}, old)

	snap, err := agg.ComputeSnapshot(ctx, area, "2026-08-20")
	require.NoError(t, err)

	assert.Equal(t, 5, snap.Counts.TotalMembers)
	assert.Equal(t, 1, snap.Counts.UpToDate)
	assert.Equal(t, 4, snap.Counts.Outdated)
	assert.Equal(t, 1, snap.Counts.Legacy)
	assert.Equal(t, 1, snap.Counts.TotalATMs)
	assert.Equal(t, 1, snap.Counts.Onchain)
	assert.Equal(t, 1, snap.Counts.Lightning)
	assert.Equal(t, 1, snap.Counts.LightningContactless)
	assert.Equal(t, 1, snap.Counts.CreatedInWindow)
	assert.Equal(t, 1, snap.Counts.UpdatedInWindow)
	require.NotNil(t, snap.Counts.AvgVerificationDate)
}

func TestComputeSnapshot_PrefixedCheckDate(t *testing.T) {
	agg, s, _ := newTestAggregator(t)
	ctx := context.Background()
	area := seedArea(t, s)
	seedMember(t, s, area, 1,
		map[string]string{"check_date:currency:XBT": "2026-08-01"}, testNow.AddDate(-1, 0, 0))

	snap, err := agg.ComputeSnapshot(ctx, area, "2026-08-20")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Counts.UpToDate)
}

func TestComputeSnapshot_FutureCheckExcludedFromAverage(t *testing.T) {
	agg, s, _ := newTestAggregator(t)
	ctx := context.Background()
	area := seedArea(t, s)
	// A future-dated check still marks the element verified, but must
	// not drag the average forward.
	seedMember(t, s, area, 1, map[string]string{"check_date": "2030-01-01"}, testNow.AddDate(-1, 0, 0))

	snap, err := agg.ComputeSnapshot(ctx, area, "2026-08-20")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Counts.UpToDate)
	assert.Nil(t, snap.Counts.AvgVerificationDate)
}

func TestComputeSnapshot_PastDateIsImmutable(t *testing.T) {
	agg, s, clock := newTestAggregator(t)
	ctx := context.Background()
	area := seedArea(t, s)
	seedMember(t, s, area, 1, nil, testNow.AddDate(-1, 0, 0))

	first, err := agg.ComputeSnapshot(ctx, area, "2026-08-20")
	require.NoError(t, err)
	require.Equal(t, 1, first.Counts.TotalMembers)

	// The next day the member set changes...
	clock.Advance(24 * time.Hour)
	seedMember(t, s, area, 2, nil, testNow)

	// ...but recomputing yesterday returns the stored measurement.
	again, err := agg.ComputeSnapshot(ctx, area, "2026-08-20")
	require.NoError(t, err)
	assert.Equal(t, 1, again.Counts.TotalMembers)
	assert.True(t, again.GeneratedAt.Equal(first.GeneratedAt))
}

func TestComputeSnapshot_TodayIsRecomputed(t *testing.T) {
	agg, s, _ := newTestAggregator(t)
	ctx := context.Background()
	area := seedArea(t, s)
	seedMember(t, s, area, 1, nil, testNow.AddDate(-1, 0, 0))

	first, err := agg.ComputeSnapshot(ctx, area, "2026-08-20")
	require.NoError(t, err)
	require.Equal(t, 1, first.Counts.TotalMembers)

	seedMember(t, s, area, 2, nil, testNow.AddDate(-1, 0, 0))

	second, err := agg.ComputeSnapshot(ctx, area, "2026-08-20")
	require.NoError(t, err)
	assert.Equal(t, 2, second.Counts.TotalMembers)
}

func TestComputeSnapshot_RejectsFutureAndBadDates(t *testing.T) {
	agg, s, _ := newTestAggregator(t)
	area := seedArea(t, s)

	_, err := agg.ComputeSnapshot(context.Background(), area, "2026-08-21")
	assert.Error(t, err, "future date")

	_, err = agg.ComputeSnapshot(context.Background(), area, "not-a-date")
	assert.Error(t, err, "malformed date")
}

func TestComputeSnapshot_UnknownArea(t *testing.T) {
	agg, _, _ := newTestAggregator(t)

	_, err := agg.ComputeSnapshot(context.Background(), 404, "2026-08-20")
	assert.Error(t, err)
}

func TestComputeSnapshot_IgnoresDeletedMembers(t *testing.T) {
	agg, s, _ := newTestAggregator(t)
	ctx := context.Background()
	area := seedArea(t, s)
	id := seedMember(t, s, area, 1, nil, testNow.AddDate(-1, 0, 0))
	seedMember(t, s, area, 2, nil, testNow.AddDate(-1, 0, 0))

	// The first member went deleted after the last reindex; the stale
	// membership row must not be counted.
	_, err := s.AppendEvent(ctx, domain.Event{
		Subject:    domain.SubjectEntity,
		SubjectID:  id,
		Kind:       domain.EventDeleted,
		RecordedAt: testNow.Add(-time.Hour),
	})
	require.NoError(t, err)

	snap, err := agg.ComputeSnapshot(ctx, area, "2026-08-20")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Counts.TotalMembers)
}

func TestComputeAll(t *testing.T) {
	agg, s, _ := newTestAggregator(t)
	ctx := context.Background()
	area1 := seedArea(t, s)
	area2 := seedArea(t, s)
	seedMember(t, s, area1, 1, nil, testNow.AddDate(-1, 0, 0))

	snaps, err := agg.ComputeAll(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, area1, snaps[0].AreaID)
	assert.Equal(t, area2, snaps[1].AreaID)
	assert.Equal(t, 1, snaps[0].Counts.TotalMembers)
	assert.Equal(t, 0, snaps[1].Counts.TotalMembers)
}
