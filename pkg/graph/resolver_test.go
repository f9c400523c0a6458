package graph

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type fakeSnapshot struct {
	entities  map[string]Entity   // kind + "\x00" + normalized name
	relations map[string]Relation // source + "\x00" + target + "\x00" + kind
}

func newFakeSnapshot() *fakeSnapshot {
	return &fakeSnapshot{
		entities:  map[string]Entity{},
		relations: map[string]Relation{},
	}
}

func (s *fakeSnapshot) addEntity(e Entity) {
	s.entities[string(e.Kind)+"\x00"+e.NormalizedName] = e
}

func (s *fakeSnapshot) FindEntityByName(_ context.Context, kind EntityKind, normalizedName string) (Entity, error) {
	e, ok := s.entities[string(kind)+"\x00"+normalizedName]
	if !ok {
		return Entity{}, ErrNotFound
	}
	return e, nil
}

func (s *fakeSnapshot) FindRelation(_ context.Context, sourceID, targetID, kind string) (Relation, error) {
	r, ok := s.relations[sourceID+"\x00"+targetID+"\x00"+kind]
	if !ok {
		return Relation{}, ErrNotFound
	}
	return r, nil
}

func newTestResolver() *Resolver {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	r := NewResolver(logger)
	seq := 0
	r.newID = func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	return r
}

func TestResolverCreatesNewEntities(t *testing.T) {
	r := newTestResolver()
	entry := Entry{ID: "entry-1"}
	result := ExtractionResult{
		Entities: []EntityCandidate{
			{Name: "Alice", Kind: KindPerson, Summary: "a friend"},
			{Name: "Paris", Kind: KindLocation},
		},
	}

	plan, err := r.Resolve(context.Background(), entry, result, newFakeSnapshot())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(plan.EntityOps) != 2 {
		t.Fatalf("entity ops = %d, want 2", len(plan.EntityOps))
	}
	for _, op := range plan.EntityOps {
		if op.Op != OpCreate {
			t.Errorf("op = %s, want create", op.Op)
		}
		if len(op.Entity.SourceEntryIDs) != 1 || op.Entity.SourceEntryIDs[0] != "entry-1" {
			t.Errorf("source entry ids = %v", op.Entity.SourceEntryIDs)
		}
	}
	if plan.EntityOps[0].Entity.NormalizedName != "alice" {
		t.Errorf("normalized = %q, want alice", plan.EntityOps[0].Entity.NormalizedName)
	}
}

func TestResolverDeduplicatesWithinResult(t *testing.T) {
	r := newTestResolver()
	result := ExtractionResult{
		Entities: []EntityCandidate{
			{Name: "Alice", Kind: KindPerson},
			{Name: "  alice  ", Kind: KindPerson},
			{Name: "ALICE", Kind: KindPerson},
		},
	}

	plan, err := r.Resolve(context.Background(), Entry{ID: "entry-1"}, result, newFakeSnapshot())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(plan.EntityOps) != 1 {
		t.Fatalf("entity ops = %d, want 1 after dedup", len(plan.EntityOps))
	}
}

func TestResolverDistinguishesKinds(t *testing.T) {
	r := newTestResolver()
	result := ExtractionResult{
		Entities: []EntityCandidate{
			{Name: "Paris", Kind: KindPerson},
			{Name: "Paris", Kind: KindLocation},
		},
	}

	plan, err := r.Resolve(context.Background(), Entry{ID: "entry-1"}, result, newFakeSnapshot())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// Same name under different kinds is two distinct entities.
	if len(plan.EntityOps) != 2 {
		t.Fatalf("entity ops = %d, want 2", len(plan.EntityOps))
	}
}

func TestResolverMergesExistingEntity(t *testing.T) {
	snapshot := newFakeSnapshot()
	existing := Entity{
		ID:             "existing-1",
		Kind:           KindPerson,
		Name:           "Alice",
		NormalizedName: "alice",
		Summary:        "old summary",
		SourceEntryIDs: []string{"entry-0"},
		CreatedAt:      time.Now().Add(-time.Hour),
	}
	snapshot.addEntity(existing)

	r := newTestResolver()
	result := ExtractionResult{
		Entities: []EntityCandidate{{Name: "Alice", Kind: KindPerson, Summary: "new summary"}},
	}
	plan, err := r.Resolve(context.Background(), Entry{ID: "entry-1"}, result, snapshot)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(plan.EntityOps) != 1 || plan.EntityOps[0].Op != OpMerge {
		t.Fatalf("ops = %+v, want one merge", plan.EntityOps)
	}
	merged := plan.EntityOps[0].Entity
	if merged.ID != "existing-1" {
		t.Errorf("merge must keep the existing ID, got %q", merged.ID)
	}
	if merged.Summary != "new summary" {
		t.Errorf("summary = %q, newer summary must win", merged.Summary)
	}
	if len(merged.SourceEntryIDs) != 2 {
		t.Errorf("source entry ids = %v, want union", merged.SourceEntryIDs)
	}
}

func TestResolverIdempotentReingestion(t *testing.T) {
	snapshot := newFakeSnapshot()
	snapshot.addEntity(Entity{
		ID: "existing-1", Kind: KindPerson, Name: "Alice", NormalizedName: "alice",
		SourceEntryIDs: []string{"entry-1"},
	})

	r := newTestResolver()
	result := ExtractionResult{
		Entities: []EntityCandidate{{Name: "Alice", Kind: KindPerson}},
	}
	plan, err := r.Resolve(context.Background(), Entry{ID: "entry-1"}, result, snapshot)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	merged := plan.EntityOps[0].Entity
	if len(merged.SourceEntryIDs) != 1 {
		t.Errorf("re-ingesting the same entry must not duplicate provenance: %v", merged.SourceEntryIDs)
	}
}

func TestResolverRelations(t *testing.T) {
	r := newTestResolver()
	result := ExtractionResult{
		Entities: []EntityCandidate{
			{Name: "Alice", Kind: KindPerson},
			{Name: "Acme Labs", Kind: KindOrganization},
		},
		Relations: []RelationCandidate{
			{Source: "Alice", Target: "Acme Labs", Kind: "works at", Confidence: 0.8},
			{Source: "entry-1", Target: "Alice", Kind: "MENTIONS", Confidence: 0.9},
			{Source: "Alice", Target: "Alice", Kind: "KNOWS"},           // self loop
			{Source: "Alice", Target: "Acme Labs", Kind: "WORKS_AT"},   // duplicate
			{Source: "Alice", Target: "Acme Labs", Kind: "invalid!!!"}, // bad kind
		},
	}

	plan, err := r.Resolve(context.Background(), Entry{ID: "entry-1"}, result, newFakeSnapshot())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(plan.RelationOps) != 2 {
		t.Fatalf("relation ops = %d, want 2: %+v", len(plan.RelationOps), plan.RelationOps)
	}

	worksAt := plan.RelationOps[0].Relation
	if worksAt.Kind != "WORKS_AT" {
		t.Errorf("kind = %q, want WORKS_AT", worksAt.Kind)
	}
	var aliceID, acmeID string
	for _, op := range plan.EntityOps {
		switch op.Entity.NormalizedName {
		case "alice":
			aliceID = op.Entity.ID
		case "acme labs":
			acmeID = op.Entity.ID
		}
	}
	if worksAt.SourceID != aliceID || worksAt.TargetID != acmeID {
		t.Errorf("endpoints = %s->%s, want %s->%s", worksAt.SourceID, worksAt.TargetID, aliceID, acmeID)
	}

	mentions := plan.RelationOps[1].Relation
	if mentions.SourceID != "entry-1" {
		t.Errorf("entry endpoint must pass through, got %q", mentions.SourceID)
	}
	if mentions.TargetID != aliceID {
		t.Errorf("target = %q, want %q", mentions.TargetID, aliceID)
	}
}

func TestResolverDropsRelationWithUnknownEndpoint(t *testing.T) {
	r := newTestResolver()
	result := ExtractionResult{
		Entities: []EntityCandidate{
			{Name: "Alice", Kind: KindPerson},
		},
		Relations: []RelationCandidate{
			// Charlie appears in no entity list and no snapshot; models emit
			// these routinely and they must not fail the whole extraction.
			{Source: "Alice", Target: "Charlie", Kind: "KNOWS", Confidence: 0.7},
			{Source: "entry-1", Target: "Alice", Kind: "MENTIONS", Confidence: 0.9},
		},
	}
	plan, err := r.Resolve(context.Background(), Entry{ID: "entry-1"}, result, newFakeSnapshot())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(plan.EntityOps) != 1 {
		t.Fatalf("entity ops = %d, want 1", len(plan.EntityOps))
	}
	if len(plan.RelationOps) != 1 || plan.RelationOps[0].Relation.Kind != "MENTIONS" {
		t.Fatalf("relation ops = %+v, want only the MENTIONS relation", plan.RelationOps)
	}
}

func TestResolverResolvesEndpointFromSnapshot(t *testing.T) {
	snapshot := newFakeSnapshot()
	snapshot.addEntity(Entity{ID: "o1", Kind: KindOrganization, Name: "Acme", NormalizedName: "acme"})

	r := newTestResolver()
	result := ExtractionResult{
		Entities: []EntityCandidate{
			{Name: "Alice", Kind: KindPerson},
		},
		Relations: []RelationCandidate{
			// Acme is absent from this extraction but already persisted.
			{Source: "Alice", Target: "Acme", Kind: "WORKS_AT", Confidence: 0.8},
		},
	}
	plan, err := r.Resolve(context.Background(), Entry{ID: "entry-1"}, result, snapshot)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(plan.RelationOps) != 1 {
		t.Fatalf("relation ops = %d, want 1", len(plan.RelationOps))
	}
	if got := plan.RelationOps[0].Relation.TargetID; got != "o1" {
		t.Errorf("target = %q, want persisted entity o1", got)
	}
}

func TestResolverMergesExistingRelation(t *testing.T) {
	snapshot := newFakeSnapshot()
	snapshot.addEntity(Entity{ID: "a1", Kind: KindPerson, Name: "Alice", NormalizedName: "alice"})
	snapshot.addEntity(Entity{ID: "o1", Kind: KindOrganization, Name: "Acme", NormalizedName: "acme"})
	snapshot.relations["a1\x00o1\x00WORKS_AT"] = Relation{
		SourceID: "a1", TargetID: "o1", Kind: "WORKS_AT", Confidence: 0.9, SourceEntryID: "entry-0",
	}

	r := newTestResolver()
	result := ExtractionResult{
		Entities: []EntityCandidate{
			{Name: "Alice", Kind: KindPerson},
			{Name: "Acme", Kind: KindOrganization},
		},
		Relations: []RelationCandidate{
			{Source: "Alice", Target: "Acme", Kind: "WORKS_AT", Confidence: 0.5},
		},
	}
	plan, err := r.Resolve(context.Background(), Entry{ID: "entry-1"}, result, snapshot)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(plan.RelationOps) != 1 || plan.RelationOps[0].Op != OpMerge {
		t.Fatalf("ops = %+v, want one merge", plan.RelationOps)
	}
	rel := plan.RelationOps[0].Relation
	if rel.Confidence != 0.9 {
		t.Errorf("confidence = %v, want max(0.9, 0.5)", rel.Confidence)
	}
	if rel.SourceEntryID != "entry-0" {
		t.Errorf("merge must keep original provenance, got %q", rel.SourceEntryID)
	}
}

func TestResolverSkipsEntryKindCandidates(t *testing.T) {
	r := newTestResolver()
	result := ExtractionResult{
		Entities: []EntityCandidate{
			{Name: "entry-1", Kind: KindEntry},
			{Name: "Alice", Kind: KindPerson},
		},
	}
	plan, err := r.Resolve(context.Background(), Entry{ID: "entry-1"}, result, newFakeSnapshot())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(plan.EntityOps) != 1 {
		t.Fatalf("entity ops = %d, want 1 (ENTRY candidates are never entities)", len(plan.EntityOps))
	}
}
