package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poimirror/poimirror/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// at returns a second-precision UTC instant for deterministic round-trips.
func at(day, hour int) time.Time {
	return time.Date(2026, 8, day, hour, 0, 0, 0, time.UTC)
}

func mustAppend(t *testing.T, s *Store, ev domain.Event) AppendResult {
	t.Helper()
	res, err := s.AppendEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("AppendEvent(%s %s) failed: %v", ev.Subject, ev.Kind, err)
	}
	return res
}

func createdEntity(ref int64, p *domain.Point, tags map[string]string, recorded time.Time) domain.Event {
	return domain.Event{
		Subject:    domain.SubjectEntity,
		Kind:       domain.EventCreated,
		External:   domain.ExternalID{Type: "node", Ref: ref},
		Point:      p,
		Tags:       tags,
		RecordedAt: recorded,
	}
}

func createdArea(t *testing.T, s *Store, name string, recorded time.Time) AppendResult {
	t.Helper()
	return mustAppend(t, s, domain.Event{
		Subject:    domain.SubjectArea,
		Kind:       domain.EventCreated,
		Name:       name,
		Geometry:   []byte(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`),
		RecordedAt: recorded,
	})
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_OpensExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	res := mustAppend(t, s1, createdEntity(1, nil, nil, at(1, 0)))
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s2.Close()

	e, err := s2.Entity(context.Background(), res.SubjectID)
	if err != nil {
		t.Fatalf("Entity() after reopen failed: %v", err)
	}
	if e.External.Ref != 1 {
		t.Errorf("entity ref = %d, want 1", e.External.Ref)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}
}
