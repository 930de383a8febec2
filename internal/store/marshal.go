package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/poimirror/poimirror/internal/domain"
)

// Timestamps are stored as RFC 3339 UTC text so that lexicographic SQL
// comparison matches chronological order.
const timeLayout = time.RFC3339

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func decodeTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode timestamp %q: %w", s, err)
	}
	return t, nil
}

// marshalTags serializes a tag mapping to JSON text. encoding/json sorts
// map keys, so equal mappings always produce identical text.
func marshalTags(tags map[string]string) (string, error) {
	if tags == nil {
		tags = map[string]string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("marshal tags: %w", err)
	}
	return string(b), nil
}

func unmarshalTags(raw string) (map[string]string, error) {
	tags := map[string]string{}
	if raw == "" {
		return tags, nil
	}
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	return tags, nil
}

// encodePoint splits an optional point into nullable lon/lat columns.
func encodePoint(p *domain.Point) (lon, lat sql.NullFloat64) {
	if p == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: p.Lon, Valid: true},
		sql.NullFloat64{Float64: p.Lat, Valid: true}
}

// decodePoint rebuilds an optional point from nullable lon/lat columns.
// A half-null pair is treated as unlocated rather than rejected; the
// schema never writes one.
func decodePoint(lon, lat sql.NullFloat64) *domain.Point {
	if !lon.Valid || !lat.Valid {
		return nil
	}
	return &domain.Point{Lon: lon.Float64, Lat: lat.Float64}
}
