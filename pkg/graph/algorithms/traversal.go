package algorithms

import (
	"context"

	"github.com/pkg/errors"

	"github.com/momento-app/momento-graph/pkg/graph"
)

// TraversalType selects the walk order.
type TraversalType string

const (
	BFS TraversalType = "BFS"
	DFS TraversalType = "DFS"
)

// EntityReader is the read surface a traversal needs. Both store
// implementations and the ingestion service satisfy it.
type EntityReader interface {
	GetEntity(ctx context.Context, id string) (graph.Entity, error)
	ListRelations(ctx context.Context, entityID string) ([]graph.Relation, error)
}

// Traversal walks the memory graph outward from a start entity, following
// relations in both directions up to a depth bound. ENTRY endpoints are
// crossed but not reported: the result holds entities only.
type Traversal struct {
	reader EntityReader
}

// NewTraversal builds a traversal over the given reader.
func NewTraversal(reader EntityReader) *Traversal {
	return &Traversal{reader: reader}
}

// Traverse returns the entities reachable from startID within maxDepth hops.
// The start entity is depth zero and always first in the result.
func (t *Traversal) Traverse(ctx context.Context, startID string, maxDepth int, traversalType TraversalType) ([]graph.Entity, error) {
	if maxDepth < 0 {
		return nil, errors.New("traversal: maxDepth must be >= 0")
	}
	visited := map[string]bool{}

	switch traversalType {
	case BFS:
		return t.bfs(ctx, startID, maxDepth, visited)
	case DFS:
		result := make([]graph.Entity, 0)
		return t.dfs(ctx, startID, maxDepth, visited, &result)
	default:
		return nil, errors.Errorf("traversal: unsupported type %q", traversalType)
	}
}

func (t *Traversal) bfs(ctx context.Context, startID string, maxDepth int, visited map[string]bool) ([]graph.Entity, error) {
	start, err := t.reader.GetEntity(ctx, startID)
	if err != nil {
		return nil, err
	}
	result := []graph.Entity{start}
	visited[startID] = true

	frontier := []string{startID}
	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			neighbors, err := t.neighbors(ctx, id)
			if err != nil {
				return nil, err
			}
			for _, neighborID := range neighbors {
				if visited[neighborID] {
					continue
				}
				visited[neighborID] = true
				entity, err := t.reader.GetEntity(ctx, neighborID)
				if errors.Is(err, graph.ErrNotFound) {
					// Entry node endpoint: crossed, never reported.
					next = append(next, neighborID)
					continue
				}
				if err != nil {
					return nil, err
				}
				result = append(result, entity)
				next = append(next, neighborID)
			}
		}
		frontier = next
	}
	return result, nil
}

func (t *Traversal) dfs(ctx context.Context, currentID string, depthLeft int, visited map[string]bool, result *[]graph.Entity) ([]graph.Entity, error) {
	if visited[currentID] {
		return *result, nil
	}
	visited[currentID] = true

	entity, err := t.reader.GetEntity(ctx, currentID)
	if err == nil {
		*result = append(*result, entity)
	} else if !errors.Is(err, graph.ErrNotFound) {
		return nil, err
	} else if len(*result) == 0 {
		// Unknown start node is an error; unknown interior nodes are
		// entry endpoints and just get crossed.
		return nil, err
	}

	if depthLeft == 0 {
		return *result, nil
	}
	neighbors, err := t.neighbors(ctx, currentID)
	if err != nil {
		return nil, err
	}
	for _, neighborID := range neighbors {
		if visited[neighborID] {
			continue
		}
		if _, err := t.dfs(ctx, neighborID, depthLeft-1, visited, result); err != nil {
			return nil, err
		}
	}
	return *result, nil
}

// neighbors lists the opposite endpoints of every relation touching id.
func (t *Traversal) neighbors(ctx context.Context, id string) ([]string, error) {
	relations, err := t.reader.ListRelations(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(relations))
	for _, rel := range relations {
		if rel.SourceID == id {
			out = append(out, rel.TargetID)
		} else {
			out = append(out, rel.SourceID)
		}
	}
	return out, nil
}
