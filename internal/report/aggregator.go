// Package report computes the daily per-area statistical snapshots.
//
// Snapshots are point-in-time measurements: once a past date is written
// it is never recomputed, even when later syncs rewrite the same members.
// Only the current day's row may be replaced. That preserves the audit
// trail the mirror exists for.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poimirror/poimirror/internal/domain"
	"github.com/poimirror/poimirror/internal/store"
)

// Default measurement windows. The up-to-date window matches the
// source community's convention that a verification older than a year is
// stale.
const (
	DefaultUpToDateWindow = 365 * 24 * time.Hour
	DefaultActivityWindow = 30 * 24 * time.Hour
)

// Aggregator computes report snapshots from the store's projections and
// the membership cache. It reads entity data and writes only its own
// snapshot rows.
type Aggregator struct {
	store          *store.Store
	now            func() time.Time
	upToDateWindow time.Duration
	activityWindow time.Duration
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock overrides the wall clock (for tests).
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithUpToDateWindow sets how recent a verification must be to count an
// entity as up to date.
func WithUpToDateWindow(d time.Duration) Option {
	return func(a *Aggregator) { a.upToDateWindow = d }
}

// WithActivityWindow sets the trailing window for created/updated counts.
func WithActivityWindow(d time.Duration) Option {
	return func(a *Aggregator) { a.activityWindow = d }
}

// New creates an aggregator over the given store.
func New(s *store.Store, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:          s,
		now:            func() time.Time { return time.Now().UTC() },
		upToDateWindow: DefaultUpToDateWindow,
		activityWindow: DefaultActivityWindow,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ComputeSnapshot computes (or returns) the snapshot for one area and
// civil date ("2006-01-02", UTC).
//
// Idempotency: for a past date with an existing snapshot, the stored row
// is returned untouched - a no-op. For today, the row is recomputed and
// replaced. Future dates are rejected; there is nothing to measure yet.
func (a *Aggregator) ComputeSnapshot(ctx context.Context, areaID int64, date string) (domain.ReportSnapshot, error) {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return domain.ReportSnapshot{}, fmt.Errorf("compute snapshot: invalid date %q: %w", date, err)
	}

	now := a.now()
	today := now.UTC().Format(dateLayout)
	if date > today {
		return domain.ReportSnapshot{}, fmt.Errorf("compute snapshot: date %s is in the future", date)
	}

	isToday := date == today
	if !isToday {
		existing, err := a.store.Snapshot(ctx, areaID, date)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return domain.ReportSnapshot{}, fmt.Errorf("compute snapshot: %w", err)
		}
	}

	// Confirm the area exists before writing a row keyed on it.
	if _, err := a.store.Area(ctx, areaID); err != nil {
		return domain.ReportSnapshot{}, fmt.Errorf("compute snapshot: %w", err)
	}

	members, err := a.loadMembers(ctx, areaID)
	if err != nil {
		return domain.ReportSnapshot{}, fmt.Errorf("compute snapshot: %w", err)
	}

	ids := make([]int64, len(members))
	for i := range members {
		ids[i] = members[i].ID
	}
	createdAt, err := a.store.CreationTimes(ctx, ids)
	if err != nil {
		return domain.ReportSnapshot{}, fmt.Errorf("compute snapshot: %w", err)
	}

	snap := domain.ReportSnapshot{
		AreaID:      areaID,
		Date:        date,
		Counts:      computeCounts(members, now, createdAt, a.upToDateWindow, a.activityWindow),
		GeneratedAt: now,
	}

	if err := a.store.SaveSnapshot(ctx, snap, isToday); err != nil {
		return domain.ReportSnapshot{}, fmt.Errorf("compute snapshot: %w", err)
	}

	slog.Info("report snapshot written",
		"area", areaID,
		"date", date,
		"members", snap.Counts.TotalMembers,
	)
	return snap, nil
}

// ComputeAll computes today's snapshot for every non-deleted area.
// A failure for one area is logged and skipped; the rest still compute.
func (a *Aggregator) ComputeAll(ctx context.Context) ([]domain.ReportSnapshot, error) {
	areas, err := a.store.Areas(ctx)
	if err != nil {
		return nil, fmt.Errorf("compute all snapshots: %w", err)
	}

	today := a.now().UTC().Format(dateLayout)
	snaps := make([]domain.ReportSnapshot, 0, len(areas))
	for _, area := range areas {
		snap, err := a.ComputeSnapshot(ctx, area.ID, today)
		if err != nil {
			slog.Warn("snapshot failed for area", "area", area.ID, "error", err)
			continue
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// loadMembers resolves the area's member entities, dropping any row that
// went deleted after the last reindex. Membership is eventually
// consistent with the projections; the filter keeps a snapshot from
// counting a tombstone.
func (a *Aggregator) loadMembers(ctx context.Context, areaID int64) ([]domain.Entity, error) {
	ids, err := a.store.MembersOf(ctx, areaID)
	if err != nil {
		return nil, err
	}
	entities, err := a.store.EntitiesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	members := entities[:0]
	for _, e := range entities {
		if !e.Deleted {
			members = append(members, e)
		}
	}
	return members, nil
}
