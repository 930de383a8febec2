package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/poimirror/poimirror/internal/domain"
)

// Snapshot returns the report snapshot for (areaID, date).
// Returns ErrNotFound when no snapshot exists for that date.
func (s *Store) Snapshot(ctx context.Context, areaID int64, date string) (domain.ReportSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT area_id, date, counts, generated_at
		FROM report_snapshots
		WHERE area_id = ? AND date = ?
	`, areaID, date)

	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return domain.ReportSnapshot{}, fmt.Errorf("snapshot %d/%s: %w", areaID, date, ErrNotFound)
	}
	if err != nil {
		return domain.ReportSnapshot{}, fmt.Errorf("read snapshot %d/%s: %w", areaID, date, err)
	}
	return snap, nil
}

// SaveSnapshot writes a report snapshot.
//
// With overwrite=false the write fails if a row already exists for the
// (area, date) key - the aggregator uses this for past dates, which are
// immutable once written. With overwrite=true the existing row is
// replaced in the same transaction - the current day's snapshot is the
// only row ever rewritten.
func (s *Store) SaveSnapshot(ctx context.Context, snap domain.ReportSnapshot, overwrite bool) error {
	countsJSON, err := json.Marshal(snap.Counts)
	if err != nil {
		return fmt.Errorf("save snapshot: marshal counts: %w", err)
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	defer tx.Rollback()

	if overwrite {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM report_snapshots WHERE area_id = ? AND date = ?`,
			snap.AreaID, snap.Date); err != nil {
			return fmt.Errorf("save snapshot: delete existing: %w", err)
		}
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO report_snapshots (area_id, date, counts, generated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(area_id, date) DO NOTHING
	`,
		snap.AreaID, snap.Date, string(countsJSON), encodeTime(snap.GeneratedAt))
	if err != nil {
		return fmt.Errorf("save snapshot: insert: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("save snapshot: rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("save snapshot: row exists for area %d date %s and overwrite is off", snap.AreaID, snap.Date)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save snapshot: commit: %w", err)
	}
	return nil
}

// ListSnapshots returns snapshots for an area with from <= date <= to,
// ordered by date. Civil dates compare lexicographically; an empty bound
// is open.
func (s *Store) ListSnapshots(ctx context.Context, areaID int64, from, to string) ([]domain.ReportSnapshot, error) {
	query := `
		SELECT area_id, date, counts, generated_at
		FROM report_snapshots
		WHERE area_id = ?`
	args := []any{areaID}
	if from != "" {
		query += ` AND date >= ?`
		args = append(args, from)
	}
	if to != "" {
		query += ` AND date <= ?`
		args = append(args, to)
	}
	query += ` ORDER BY date ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []domain.ReportSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	if snaps == nil {
		snaps = []domain.ReportSnapshot{}
	}
	return snaps, nil
}

func scanSnapshot(row scanner) (domain.ReportSnapshot, error) {
	var (
		snap        domain.ReportSnapshot
		countsJSON  string
		generatedAt string
	)
	if err := row.Scan(&snap.AreaID, &snap.Date, &countsJSON, &generatedAt); err != nil {
		return domain.ReportSnapshot{}, err
	}
	if err := json.Unmarshal([]byte(countsJSON), &snap.Counts); err != nil {
		return domain.ReportSnapshot{}, fmt.Errorf("unmarshal counts: %w", err)
	}
	var err error
	snap.GeneratedAt, err = decodeTime(generatedAt)
	if err != nil {
		return domain.ReportSnapshot{}, err
	}
	return snap, nil
}
