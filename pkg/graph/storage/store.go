package storage

import (
	"context"

	"github.com/momento-app/momento-graph/pkg/graph"
)

// Store owns all read/write access to persisted entries, entities, and
// relations. ApplyPlan is the single serialization point for graph writes:
// one plan applies atomically or not at all.
//
// ENTRY nodes are addressable as relation endpoints but are excluded from
// entity listing and search; they are browsed through the entry operations.
type Store interface {
	graph.SnapshotReader

	EnsureSchema(ctx context.Context) error

	CreateEntry(ctx context.Context, entry graph.Entry) error
	GetEntry(ctx context.Context, id string) (graph.Entry, error)
	UpdateEntryStatus(ctx context.Context, id string, status graph.EntryStatus, errorDetail string, degraded bool) error

	// ApplyPlan executes a mutation plan as one atomic unit, entities before
	// relations.
	ApplyPlan(ctx context.Context, plan graph.MutationPlan) error

	GetEntity(ctx context.Context, id string) (graph.Entity, error)
	ListEntities(ctx context.Context, offset, limit int) ([]graph.Entity, error)
	SearchEntities(ctx context.Context, query string, limit int) ([]graph.Entity, error)
	ListRelations(ctx context.Context, entityID string) ([]graph.Relation, error)

	Close(ctx context.Context) error
}
