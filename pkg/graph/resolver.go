package graph

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// OpType distinguishes plan operations that create new records from ones that
// merge into existing records.
type OpType string

const (
	OpCreate OpType = "create"
	OpMerge  OpType = "merge"
)

// EntityOp is one planned entity mutation.
type EntityOp struct {
	Op     OpType
	Entity Entity
}

// RelationOp is one planned relation mutation.
type RelationOp struct {
	Op       OpType
	Relation Relation
}

// MutationPlan is the full set of graph writes for one extraction. The store
// applies it atomically, entities before relations so relations may reference
// entities created in the same plan.
type MutationPlan struct {
	EntryID     string
	Degraded    bool
	EntityOps   []EntityOp
	RelationOps []RelationOp
}

// Empty reports whether the plan contains no operations.
func (p MutationPlan) Empty() bool {
	return len(p.EntityOps) == 0 && len(p.RelationOps) == 0
}

// SnapshotReader is the view of current graph state the resolver reconciles
// against. Lookups miss with ErrNotFound.
type SnapshotReader interface {
	FindEntityByName(ctx context.Context, kind EntityKind, normalizedName string) (Entity, error)
	FindRelation(ctx context.Context, sourceID, targetID, kind string) (Relation, error)
}

// Resolver reconciles extraction candidates against the graph, producing a
// mutation plan. Resolution is deterministic: identical candidates against an
// identical snapshot always yield an equivalent plan, which is what makes
// re-ingestion idempotent.
type Resolver struct {
	log   *logrus.Entry
	newID func() string
}

// NewResolver builds a resolver.
func NewResolver(logger *logrus.Logger) *Resolver {
	return &Resolver{
		log:   logger.WithField("component", "resolver"),
		newID: func() string { return uuid.New().String() },
	}
}

// Resolve computes the mutation plan for one extraction result.
func (r *Resolver) Resolve(ctx context.Context, entry Entry, result ExtractionResult, snapshot SnapshotReader) (MutationPlan, error) {
	now := time.Now().UTC()
	plan := MutationPlan{EntryID: entry.ID, Degraded: result.Degraded}

	// Candidate names map to planned or already-persisted IDs so relation
	// endpoints can be rewritten below.
	nameToID := map[string]string{}

	seenEntities := map[string]bool{}
	for _, candidate := range result.Entities {
		if candidate.Kind == KindEntry {
			continue
		}
		normalized := NormalizeName(candidate.Name)
		if normalized == "" {
			continue
		}
		identity := string(candidate.Kind) + "\x00" + normalized
		if seenEntities[identity] {
			continue
		}
		seenEntities[identity] = true

		existing, err := snapshot.FindEntityByName(ctx, candidate.Kind, normalized)
		switch {
		case err == nil:
			plan.EntityOps = append(plan.EntityOps, EntityOp{
				Op:     OpMerge,
				Entity: mergeEntity(existing, candidate, entry.ID, now),
			})
			nameToID[normalized] = existing.ID
		case errors.Is(err, ErrNotFound):
			id := r.newID()
			plan.EntityOps = append(plan.EntityOps, EntityOp{
				Op: OpCreate,
				Entity: Entity{
					ID:             id,
					Kind:           candidate.Kind,
					Name:           candidate.Name,
					NormalizedName: normalized,
					Summary:        candidate.Summary,
					SourceEntryIDs: []string{entry.ID},
					CreatedAt:      now,
					UpdatedAt:      now,
				},
			})
			nameToID[normalized] = id
		default:
			return MutationPlan{}, errors.Wrap(err, "resolver: entity lookup")
		}
	}

	seenRelations := map[string]bool{}
	for _, candidate := range result.Relations {
		kind, ok := NormalizeRelationKind(candidate.Kind)
		if !ok {
			r.log.WithField("kind", candidate.Kind).Warn("dropping relation with invalid kind")
			continue
		}
		sourceID, err := r.resolveEndpoint(ctx, snapshot, candidate.Source, entry.ID, nameToID)
		if err != nil {
			return MutationPlan{}, errors.Wrap(err, "resolver: endpoint lookup")
		}
		targetID, err := r.resolveEndpoint(ctx, snapshot, candidate.Target, entry.ID, nameToID)
		if err != nil {
			return MutationPlan{}, errors.Wrap(err, "resolver: endpoint lookup")
		}
		if sourceID == "" || targetID == "" {
			r.log.WithFields(logrus.Fields{
				"kind":   kind,
				"source": candidate.Source,
				"target": candidate.Target,
			}).Warn("dropping relation with unknown endpoint")
			continue
		}
		if sourceID == targetID {
			continue
		}
		identity := sourceID + "\x00" + targetID + "\x00" + kind
		if seenRelations[identity] {
			continue
		}
		seenRelations[identity] = true

		existing, err := snapshot.FindRelation(ctx, sourceID, targetID, kind)
		switch {
		case err == nil:
			// Duplicate fact: no-op merge, confidence refreshed by max.
			confidence := existing.Confidence
			if candidate.Confidence > confidence {
				confidence = candidate.Confidence
			}
			plan.RelationOps = append(plan.RelationOps, RelationOp{
				Op: OpMerge,
				Relation: Relation{
					SourceID:      sourceID,
					TargetID:      targetID,
					Kind:          kind,
					Confidence:    confidence,
					SourceEntryID: existing.SourceEntryID,
				},
			})
		case errors.Is(err, ErrNotFound):
			plan.RelationOps = append(plan.RelationOps, RelationOp{
				Op: OpCreate,
				Relation: Relation{
					SourceID:      sourceID,
					TargetID:      targetID,
					Kind:          kind,
					Confidence:    candidate.Confidence,
					SourceEntryID: entry.ID,
				},
			})
		default:
			return MutationPlan{}, errors.Wrap(err, "resolver: relation lookup")
		}
	}

	return plan, nil
}

// resolveEndpoint maps a candidate endpoint to an entity ID. Endpoints name
// either the source entry, an entity from this plan, or an already-persisted
// entity looked up by name across kinds. Returns "" for endpoints that
// resolve to nothing; the caller drops the relation, the same policy parsing
// applies to malformed elements.
func (r *Resolver) resolveEndpoint(ctx context.Context, snapshot SnapshotReader, endpoint, entryID string, nameToID map[string]string) (string, error) {
	if endpoint == entryID {
		return entryID, nil
	}
	normalized := NormalizeName(endpoint)
	if normalized == "" {
		return "", nil
	}
	if id, ok := nameToID[normalized]; ok {
		return id, nil
	}
	for _, kind := range KnownKinds {
		existing, err := snapshot.FindEntityByName(ctx, kind, normalized)
		switch {
		case err == nil:
			nameToID[normalized] = existing.ID
			return existing.ID, nil
		case errors.Is(err, ErrNotFound):
		default:
			return "", err
		}
	}
	return "", nil
}

// mergeEntity unions non-empty fields from the candidate into the existing
// entity; the newer summary wins on conflict.
func mergeEntity(existing Entity, candidate EntityCandidate, entryID string, now time.Time) Entity {
	merged := existing
	if candidate.Summary != "" {
		merged.Summary = candidate.Summary
	}
	if candidate.Name != "" {
		merged.Name = candidate.Name
	}
	found := false
	for _, id := range merged.SourceEntryIDs {
		if id == entryID {
			found = true
			break
		}
	}
	if !found {
		merged.SourceEntryIDs = append(merged.SourceEntryIDs, entryID)
	}
	merged.UpdatedAt = now
	return merged
}
