// Package sync reconciles the external source's snapshots with the local
// versioned store.
//
// The engine has no access to an upstream change feed, so it diffs full
// snapshots: fetch everything matching the query, compare element by
// element against the current projections, and append the events the
// differences imply. Deletions are special - an element missing from a
// partial snapshot is not evidence of deletion, so they are only inferred
// when the source declares the snapshot complete for the scope, and only
// for entities that scope itself brought in. Each pass records which
// entities its scope observed, and the deletion sweep stays inside that
// set: a complete snapshot for one scope says nothing about entities
// mirrored under another.
//
// Scopes are expected to partition the upstream working set. Two scopes
// whose filters overlap will each claim the shared entities and fight
// over their deletion; configure overlapping filters as one scope.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/poimirror/poimirror/internal/domain"
	"github.com/poimirror/poimirror/internal/source"
	"github.com/poimirror/poimirror/internal/store"
)

// TokenGenerator generates run tokens for sync passes.
// Implemented by UUIDv7Generator (production) and testutil.FixedTokens.
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 run tokens.
//
// UUIDv7 embeds a timestamp in the most significant bits, so tokens sort
// by creation time - helpful when grepping logs across runs.
//
// Thread-safety: stateless, safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Reindexer is the piece of the area index the engine drives after a
// commit. Kept as an interface so the engine can run without indexing
// (and so tests can observe reindex calls).
type Reindexer interface {
	ReindexEntity(ctx context.Context, entityID int64) error
}

// Engine diffs source snapshots against the store and appends the
// resulting events.
//
// Concurrency: syncs for the same scope are serialized - a second
// request while one is running gets ErrSyncInProgress. Syncs for
// other scopes may run concurrently; the store's append path keeps
// revision assignment safe regardless. Serialization keys on the scope
// name, which is another reason scope filters must not overlap.
type Engine struct {
	store   *store.Store
	client  source.Client
	reindex Reindexer
	tokens  TokenGenerator
	now     func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithReindexer makes the engine reindex every touched entity after a
// successful commit.
func WithReindexer(r Reindexer) Option {
	return func(e *Engine) { e.reindex = r }
}

// WithTokenGenerator overrides the run token generator (for tests).
func WithTokenGenerator(g TokenGenerator) Option {
	return func(e *Engine) { e.tokens = g }
}

// WithClock overrides the wall clock (for tests).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates a sync engine over the given store and source client.
func New(s *store.Store, client source.Client, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		client:   client,
		tokens:   UUIDv7Generator{},
		now:      func() time.Time { return time.Now().UTC() },
		inflight: map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sync runs one pass for the query scope.
//
// A fetch failure aborts the run with nothing committed. Per-element
// validation failures are collected into the result and do not abort.
// The event batch for the pass commits atomically - an interrupted run
// leaves either the full batch or nothing, never a revision gap.
func (e *Engine) Sync(ctx context.Context, q source.Query) (*Result, error) {
	scope := q.Name
	if scope == "" {
		scope = q.Filter
	}
	if !e.acquire(scope) {
		return nil, fmt.Errorf("scope %q: %w", scope, ErrSyncInProgress)
	}
	defer e.release(scope)

	res := &Result{
		RunToken:  e.tokens.Generate(),
		Scope:     scope,
		StartedAt: e.now(),
	}
	log := slog.With("run", res.RunToken, "scope", scope)
	log.Info("sync starting")

	snapshot, err := e.client.Fetch(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("sync scope %q: %w", scope, err)
	}
	res.Complete = snapshot.Complete
	log.Info("snapshot fetched",
		"elements", len(snapshot.Elements),
		"complete", snapshot.Complete,
	)

	existing, err := e.store.AllEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync scope %q: %w", scope, err)
	}
	byExternal := make(map[string]domain.Entity, len(existing))
	for _, ent := range existing {
		byExternal[ent.External.String()] = ent
	}

	scopeIDs, err := e.store.ScopeEntities(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("sync scope %q: %w", scope, err)
	}
	inScope := make(map[int64]bool, len(scopeIDs))
	for _, id := range scopeIDs {
		inScope[id] = true
	}

	batch, seen := e.diff(snapshot, byExternal, inScope, res, log)

	results, err := e.store.AppendBatch(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("sync scope %q: %w", scope, err)
	}

	for i, ar := range results {
		if batch[i].Kind == domain.EventCreated {
			seen = append(seen, ar.SubjectID)
		}
	}
	if snapshot.Complete {
		err = e.store.ReplaceScopeEntities(ctx, scope, seen)
	} else {
		err = e.store.AddScopeEntities(ctx, scope, seen)
	}
	if err != nil {
		// Attribution is sync metadata; a stale set only makes the next
		// deletion sweep more conservative.
		log.Warn("scope attribution update failed", "error", err)
	}

	if e.reindex != nil {
		for _, ar := range results {
			if err := e.reindex.ReindexEntity(ctx, ar.SubjectID); err != nil {
				// Membership is a rebuildable cache; a reindex failure
				// must not fail the already-committed sync.
				log.Warn("reindex after sync failed", "entity", ar.SubjectID, "error", err)
			}
		}
	}

	res.Duration = e.now().Sub(res.StartedAt)
	log.Info("sync finished", "summary", res.String(), "duration", res.Duration)
	return res, nil
}

// diff computes the event batch implied by a snapshot, and the ids of
// known entities the snapshot observed (the scope's next attribution
// set, minus entities it is about to create).
func (e *Engine) diff(snapshot *source.Snapshot, byExternal map[string]domain.Entity, inScope map[int64]bool, res *Result, log *slog.Logger) (batch []domain.Event, seen []int64) {
	now := e.now()

	// present tracks every external id the snapshot mentioned, including
	// skipped elements: an element too malformed to mirror is still
	// present upstream and must not be inferred deleted.
	present := make(map[string]bool, len(snapshot.Elements))

	for _, el := range snapshot.Elements {
		ext := el.ExternalID()
		present[ext.String()] = true

		ent, known := byExternal[ext.String()]
		if known {
			// Present upstream, so it stays attributed to this scope even
			// when the element is skipped below.
			seen = append(seen, ent.ID)
		}

		if err := validateDescriptor(el); err != nil {
			res.Errors = append(res.Errors, EntityError{External: ext, Err: err})
			res.Skipped++
			log.Warn("element skipped", "external", ext.String(), "error", err)
			continue
		}

		tags := normalizeTags(el.Tags)

		switch {
		case !known:
			batch = append(batch, domain.Event{
				Subject:    domain.SubjectEntity,
				Kind:       domain.EventCreated,
				External:   ext,
				Point:      el.Point,
				Tags:       tags,
				RecordedAt: now,
			})
			res.Created++

		case ent.Deleted:
			// Reappeared upstream: resurrect regardless of payload.
			batch = append(batch, domain.Event{
				Subject:    domain.SubjectEntity,
				SubjectID:  ent.ID,
				Kind:       domain.EventUpdated,
				Point:      el.Point,
				Tags:       tags,
				RecordedAt: now,
			})
			res.Updated++

		case !ent.SamePayload(el.Point, tags):
			batch = append(batch, domain.Event{
				Subject:    domain.SubjectEntity,
				SubjectID:  ent.ID,
				Kind:       domain.EventUpdated,
				Point:      el.Point,
				Tags:       tags,
				RecordedAt: now,
			})
			res.Updated++

		default:
			// The common case on most passes: nothing changed, no event.
			res.Unchanged++
		}
	}

	if snapshot.Complete {
		for extKey, ent := range byExternal {
			if present[extKey] || ent.Deleted || !inScope[ent.ID] {
				continue
			}
			// Deleted events carry the last known payload so replay
			// reconstructs the projection without back-references.
			batch = append(batch, domain.Event{
				Subject:    domain.SubjectEntity,
				SubjectID:  ent.ID,
				Kind:       domain.EventDeleted,
				Point:      ent.Point,
				Tags:       ent.Tags,
				RecordedAt: now,
			})
			res.Deleted++
			log.Info("entity gone from complete snapshot", "external", extKey)
		}
	}

	return batch, seen
}

// normalizeTags canonicalizes tag text to NFC. Upstream editors disagree
// on character composition, and a byte-different but canonically equal
// respelling must not read as a payload change.
func normalizeTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[norm.NFC.String(k)] = norm.NFC.String(v)
	}
	return out
}

func validateDescriptor(d source.Descriptor) error {
	ext := d.ExternalID()
	if d.Type == "" || d.Ref <= 0 {
		return &ValidationError{External: ext, Reason: "missing element type or id"}
	}
	if d.Point != nil && !d.Point.Valid() {
		return &ValidationError{
			External: ext,
			Reason:   fmt.Sprintf("coordinates out of range (%f, %f)", d.Point.Lon, d.Point.Lat),
		}
	}
	return nil
}

func (e *Engine) acquire(scope string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[scope]; busy {
		return false
	}
	e.inflight[scope] = struct{}{}
	return true
}

func (e *Engine) release(scope string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, scope)
}
