package store

import (
	"context"
	"testing"
)

func TestScopeEntities_ReplaceAndAdd(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e1 := mustAppend(t, s, createdEntity(1, nil, nil, at(1, 0))).SubjectID
	e2 := mustAppend(t, s, createdEntity(2, nil, nil, at(1, 1))).SubjectID
	e3 := mustAppend(t, s, createdEntity(3, nil, nil, at(1, 2))).SubjectID

	if err := s.ReplaceScopeEntities(ctx, "germany", []int64{e1, e2}); err != nil {
		t.Fatalf("ReplaceScopeEntities() failed: %v", err)
	}
	if err := s.ReplaceScopeEntities(ctx, "france", []int64{e1}); err != nil {
		t.Fatalf("ReplaceScopeEntities() failed: %v", err)
	}

	ids, err := s.ScopeEntities(ctx, "germany")
	if err != nil {
		t.Fatalf("ScopeEntities() failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != e1 || ids[1] != e2 {
		t.Errorf("germany = %v, want [%d %d]", ids, e1, e2)
	}

	// Add keeps the existing set; duplicates are ignored.
	if err := s.AddScopeEntities(ctx, "germany", []int64{e2, e3}); err != nil {
		t.Fatalf("AddScopeEntities() failed: %v", err)
	}
	ids, err = s.ScopeEntities(ctx, "germany")
	if err != nil {
		t.Fatalf("ScopeEntities() failed: %v", err)
	}
	if len(ids) != 3 {
		t.Errorf("after add, germany = %v, want 3 ids", ids)
	}

	// Replace drops what the new set no longer contains, and leaves other
	// scopes alone.
	if err := s.ReplaceScopeEntities(ctx, "germany", []int64{e3}); err != nil {
		t.Fatalf("ReplaceScopeEntities() failed: %v", err)
	}
	ids, err = s.ScopeEntities(ctx, "germany")
	if err != nil {
		t.Fatalf("ScopeEntities() failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != e3 {
		t.Errorf("after replace, germany = %v, want [%d]", ids, e3)
	}
	ids, err = s.ScopeEntities(ctx, "france")
	if err != nil {
		t.Fatalf("ScopeEntities() failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != e1 {
		t.Errorf("france = %v, want [%d]", ids, e1)
	}

	// A scope that never synced reads as empty, not as an error.
	ids, err = s.ScopeEntities(ctx, "nowhere")
	if err != nil {
		t.Fatalf("ScopeEntities() failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("unknown scope = %v, want empty", ids)
	}
}

func TestScopeEntities_UnknownEntityRejected(t *testing.T) {
	s := newTestStore(t)

	if err := s.ReplaceScopeEntities(context.Background(), "germany", []int64{999}); err == nil {
		t.Error("attribution of an unknown entity id was accepted")
	}
}
