package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/momento-app/momento-graph/pkg/graph"
)

// MemoryStore is a mutex-guarded in-process Store with the same semantics as
// the Neo4j implementation. It backs tests and provider-only local runs
// where no graph database is available.
type MemoryStore struct {
	mu        sync.RWMutex
	entries   map[string]graph.Entry
	entities  map[string]graph.Entity
	nameIndex map[string]string // kind + "\x00" + normalized name -> entity id
	relations map[string]graph.Relation
	relOrder  []string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:   map[string]graph.Entry{},
		entities:  map[string]graph.Entity{},
		nameIndex: map[string]string{},
		relations: map[string]graph.Relation{},
	}
}

func (s *MemoryStore) EnsureSchema(context.Context) error { return nil }

func (s *MemoryStore) Close(context.Context) error { return nil }

func (s *MemoryStore) CreateEntry(_ context.Context, entry graph.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entry.ID]; ok {
		return graph.NewStoreError(graph.StoreConstraintViolation,
			errors.Errorf("entry %s already exists", entry.ID))
	}
	s.entries[entry.ID] = entry
	return nil
}

func (s *MemoryStore) GetEntry(_ context.Context, id string) (graph.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id]
	if !ok {
		return graph.Entry{}, graph.ErrNotFound
	}
	return entry, nil
}

func (s *MemoryStore) UpdateEntryStatus(_ context.Context, id string, status graph.EntryStatus, errorDetail string, degraded bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return graph.ErrNotFound
	}
	entry.Status = status
	entry.ErrorDetail = errorDetail
	entry.Degraded = degraded
	s.entries[id] = entry
	return nil
}

// ApplyPlan stages every operation before committing any of them: a relation
// referencing a node that exists neither in the store nor in the staged
// entity set rejects the whole plan.
func (s *MemoryStore) ApplyPlan(_ context.Context, plan graph.MutationPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make(map[string]graph.Entity, len(plan.EntityOps))
	stagedIndex := make(map[string]string, len(plan.EntityOps))
	for _, op := range plan.EntityOps {
		key := nameKey(op.Entity.Kind, op.Entity.NormalizedName)
		if op.Op == graph.OpCreate {
			if _, exists := s.nameIndex[key]; exists {
				return graph.NewStoreError(graph.StoreConstraintViolation,
					errors.Errorf("entity (%s, %s) already exists", op.Entity.Kind, op.Entity.NormalizedName))
			}
		}
		staged[op.Entity.ID] = op.Entity
		stagedIndex[key] = op.Entity.ID
	}

	nodeExists := func(id string) bool {
		if _, ok := staged[id]; ok {
			return true
		}
		if _, ok := s.entities[id]; ok {
			return true
		}
		_, ok := s.entries[id]
		return ok
	}
	for _, op := range plan.RelationOps {
		if !nodeExists(op.Relation.SourceID) || !nodeExists(op.Relation.TargetID) {
			return graph.NewStoreError(graph.StoreConstraintViolation,
				errors.Errorf("relation %s references unknown node", op.Relation.Kind))
		}
	}

	// Commit.
	for id, entity := range staged {
		s.entities[id] = entity
	}
	for key, id := range stagedIndex {
		s.nameIndex[key] = id
	}
	for _, op := range plan.RelationOps {
		key := relationKey(op.Relation.SourceID, op.Relation.TargetID, op.Relation.Kind)
		if existing, ok := s.relations[key]; ok {
			if op.Relation.Confidence > existing.Confidence {
				existing.Confidence = op.Relation.Confidence
				s.relations[key] = existing
			}
			continue
		}
		s.relations[key] = op.Relation
		s.relOrder = append(s.relOrder, key)
	}
	return nil
}

func (s *MemoryStore) FindEntityByName(_ context.Context, kind graph.EntityKind, normalizedName string) (graph.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.nameIndex[nameKey(kind, normalizedName)]
	if !ok {
		return graph.Entity{}, graph.ErrNotFound
	}
	return s.entities[id], nil
}

func (s *MemoryStore) FindRelation(_ context.Context, sourceID, targetID, kind string) (graph.Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rel, ok := s.relations[relationKey(sourceID, targetID, kind)]
	if !ok {
		return graph.Relation{}, graph.ErrNotFound
	}
	return rel, nil
}

func (s *MemoryStore) GetEntity(_ context.Context, id string) (graph.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entity, ok := s.entities[id]
	if !ok {
		return graph.Entity{}, graph.ErrNotFound
	}
	return entity, nil
}

func (s *MemoryStore) ListEntities(_ context.Context, offset, limit int) ([]graph.Entity, error) {
	if offset < 0 || limit <= 0 {
		return nil, graph.NewValidationError("offset must be >= 0 and limit > 0")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	sorted := s.sortedEntities()
	if offset >= len(sorted) {
		return []graph.Entity{}, nil
	}
	end := offset + limit
	if end > len(sorted) {
		end = len(sorted)
	}
	return sorted[offset:end], nil
}

func (s *MemoryStore) SearchEntities(_ context.Context, query string, limit int) ([]graph.Entity, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, graph.NewValidationError("search query is empty")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []graph.Entity
	for _, entity := range s.sortedEntities() {
		if strings.Contains(strings.ToLower(entity.Name), q) ||
			strings.Contains(strings.ToLower(entity.Summary), q) {
			out = append(out, entity)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	if out == nil {
		out = []graph.Entity{}
	}
	return out, nil
}

func (s *MemoryStore) ListRelations(_ context.Context, entityID string) ([]graph.Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []graph.Relation
	for _, key := range s.relOrder {
		rel := s.relations[key]
		if rel.SourceID == entityID || rel.TargetID == entityID {
			out = append(out, rel)
		}
	}
	if out == nil {
		out = []graph.Relation{}
	}
	return out, nil
}

// sortedEntities returns non-ENTRY entities in stable creation order.
func (s *MemoryStore) sortedEntities() []graph.Entity {
	out := make([]graph.Entity, 0, len(s.entities))
	for _, entity := range s.entities {
		if entity.Kind == graph.KindEntry {
			continue
		}
		out = append(out, entity)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func nameKey(kind graph.EntityKind, normalizedName string) string {
	return string(kind) + "\x00" + normalizedName
}

func relationKey(sourceID, targetID, kind string) string {
	return sourceID + "\x00" + targetID + "\x00" + kind
}
