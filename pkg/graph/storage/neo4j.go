package storage

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/momento-app/momento-graph/pkg/graph"
)

// Fixed-width UTC timestamps keep lexicographic and chronological order in
// sync, which ORDER BY relies on.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Labels and relationship types cannot be parameterized in Cypher; anything
// interpolated must match this.
var safeLabelRe = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// Neo4jConfig holds connection settings for the graph database.
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
	Timeout  time.Duration
}

// Neo4jStore persists the memory graph in Neo4j. Entries are :Entry nodes;
// extracted entities are :Entity nodes with an additional kind label, and
// relations are typed directed edges. All plan writes run inside a single
// managed transaction.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	timeout  time.Duration
	log      *logrus.Entry
}

var _ Store = (*Neo4jStore)(nil)

// NewNeo4jStore connects to Neo4j and verifies connectivity before returning.
func NewNeo4jStore(ctx context.Context, cfg Neo4jConfig, logger *logrus.Logger) (*Neo4jStore, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, graph.NewStoreError(graph.StoreUnavailable, errors.Wrap(err, "init driver"))
	}

	verifyCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, graph.NewStoreError(graph.StoreUnavailable, errors.Wrap(err, "verify connectivity"))
	}

	return &Neo4jStore{
		driver:   driver,
		database: cfg.Database,
		timeout:  cfg.Timeout,
		log:      logger.WithField("component", "neo4j"),
	}, nil
}

func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// EnsureSchema creates the uniqueness constraints entity identity depends on:
// entry/entity ids and, per kind label, the normalized name.
func (s *Neo4jStore) EnsureSchema(ctx context.Context) error {
	queries := []string{
		"CREATE CONSTRAINT entry_id IF NOT EXISTS FOR (e:Entry) REQUIRE e.id IS UNIQUE",
		"CREATE CONSTRAINT entity_id IF NOT EXISTS FOR (e:Entity) REQUIRE e.id IS UNIQUE",
	}
	for _, kind := range graph.KnownKinds {
		queries = append(queries, fmt.Sprintf(
			"CREATE CONSTRAINT entity_name_%s IF NOT EXISTS FOR (e:%s) REQUIRE e.normalized_name IS UNIQUE",
			strings.ToLower(string(kind)), kind))
	}
	return s.write(ctx, func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		for _, query := range queries {
			if _, err := tx.Run(ctx, query, nil); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Neo4jStore) CreateEntry(ctx context.Context, entry graph.Entry) error {
	query := `
		CREATE (e:Entry {
			id: $id,
			text: $text,
			format: $format,
			status: $status,
			error_detail: $error_detail,
			degraded: $degraded,
			created_at: $created_at
		})`
	return s.write(ctx, func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		_, err := tx.Run(ctx, query, map[string]any{
			"id":           entry.ID,
			"text":         entry.Text,
			"format":       string(entry.Format),
			"status":       string(entry.Status),
			"error_detail": entry.ErrorDetail,
			"degraded":     entry.Degraded,
			"created_at":   entry.CreatedAt.UTC().Format(timeLayout),
		})
		return err
	})
}

func (s *Neo4jStore) GetEntry(ctx context.Context, id string) (graph.Entry, error) {
	var entry graph.Entry
	err := s.read(ctx, func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		record, err := runSingle(ctx, tx, "MATCH (e:Entry {id: $id}) RETURN e", map[string]any{"id": id})
		if err != nil {
			return err
		}
		node, err := nodeFromRecord(record, "e")
		if err != nil {
			return err
		}
		entry = nodeToEntry(node)
		return nil
	})
	return entry, err
}

func (s *Neo4jStore) UpdateEntryStatus(ctx context.Context, id string, status graph.EntryStatus, errorDetail string, degraded bool) error {
	query := `
		MATCH (e:Entry {id: $id})
		SET e.status = $status, e.error_detail = $error_detail, e.degraded = $degraded
		RETURN e.id`
	return s.write(ctx, func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		_, err := runSingle(ctx, tx, query, map[string]any{
			"id":           id,
			"status":       string(status),
			"error_detail": errorDetail,
			"degraded":     degraded,
		})
		return err
	})
}

// ApplyPlan runs every planned mutation inside one managed transaction,
// entities before relations. Entity writes MERGE on (kind, normalized_name)
// so concurrent extractions of overlapping entities converge on one node
// instead of racing the resolver's snapshot.
func (s *Neo4jStore) ApplyPlan(ctx context.Context, plan graph.MutationPlan) error {
	if plan.Empty() {
		return nil
	}
	return s.write(ctx, func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		for _, op := range plan.EntityOps {
			if err := applyEntityOp(ctx, tx, op, plan.EntryID); err != nil {
				return err
			}
		}
		for _, op := range plan.RelationOps {
			if err := applyRelationOp(ctx, tx, op); err != nil {
				return err
			}
		}
		return nil
	})
}

func applyEntityOp(ctx context.Context, tx neo4j.ManagedTransaction, op graph.EntityOp, entryID string) error {
	label := string(op.Entity.Kind)
	if !safeLabelRe.MatchString(label) {
		return errors.Errorf("illegal entity kind label %q", label)
	}
	query := fmt.Sprintf(`
		MERGE (e:%s {normalized_name: $normalized_name})
		ON CREATE SET e.id = $id, e.created_at = $created_at, e.source_entry_ids = []
		SET e:Entity,
		    e.kind = $kind,
		    e.name = $name,
		    e.summary = CASE WHEN $summary = '' THEN coalesce(e.summary, '') ELSE $summary END,
		    e.updated_at = $updated_at,
		    e.source_entry_ids = [x IN coalesce(e.source_entry_ids, []) WHERE x <> $entry_id] + $entry_id`,
		label)
	_, err := tx.Run(ctx, query, map[string]any{
		"normalized_name": op.Entity.NormalizedName,
		"id":              op.Entity.ID,
		"kind":            string(op.Entity.Kind),
		"name":            op.Entity.Name,
		"summary":         op.Entity.Summary,
		"created_at":      op.Entity.CreatedAt.UTC().Format(timeLayout),
		"updated_at":      op.Entity.UpdatedAt.UTC().Format(timeLayout),
		"entry_id":        entryID,
	})
	return err
}

func applyRelationOp(ctx context.Context, tx neo4j.ManagedTransaction, op graph.RelationOp) error {
	kind, ok := graph.NormalizeRelationKind(op.Relation.Kind)
	if !ok {
		return errors.Errorf("illegal relation kind %q", op.Relation.Kind)
	}
	query := fmt.Sprintf(`
		MATCH (s {id: $source_id})
		MATCH (t {id: $target_id})
		MERGE (s)-[r:%s]->(t)
		ON CREATE SET r.confidence = $confidence, r.source_entry_id = $source_entry_id
		ON MATCH SET r.confidence = CASE
			WHEN coalesce(r.confidence, 0.0) < $confidence THEN $confidence
			ELSE r.confidence
		END`, kind)
	_, err := tx.Run(ctx, query, map[string]any{
		"source_id":       op.Relation.SourceID,
		"target_id":       op.Relation.TargetID,
		"confidence":      op.Relation.Confidence,
		"source_entry_id": op.Relation.SourceEntryID,
	})
	return err
}

func (s *Neo4jStore) FindEntityByName(ctx context.Context, kind graph.EntityKind, normalizedName string) (graph.Entity, error) {
	label := string(kind)
	if !safeLabelRe.MatchString(label) {
		return graph.Entity{}, graph.ErrNotFound
	}
	query := fmt.Sprintf("MATCH (e:Entity:%s {normalized_name: $normalized_name}) RETURN e LIMIT 1", label)
	var entity graph.Entity
	err := s.read(ctx, func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		record, err := runSingle(ctx, tx, query, map[string]any{"normalized_name": normalizedName})
		if err != nil {
			return err
		}
		node, err := nodeFromRecord(record, "e")
		if err != nil {
			return err
		}
		entity = nodeToEntity(node)
		return nil
	})
	return entity, err
}

func (s *Neo4jStore) FindRelation(ctx context.Context, sourceID, targetID, kind string) (graph.Relation, error) {
	normalized, ok := graph.NormalizeRelationKind(kind)
	if !ok {
		return graph.Relation{}, graph.ErrNotFound
	}
	query := fmt.Sprintf(`
		MATCH (s {id: $source_id})-[r:%s]->(t {id: $target_id})
		RETURN r, s.id AS source_id, t.id AS target_id LIMIT 1`, normalized)
	var relation graph.Relation
	err := s.read(ctx, func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		record, err := runSingle(ctx, tx, query, map[string]any{
			"source_id": sourceID,
			"target_id": targetID,
		})
		if err != nil {
			return err
		}
		rel, err := relationFromRecord(record)
		if err != nil {
			return err
		}
		relation = rel
		return nil
	})
	return relation, err
}

func (s *Neo4jStore) GetEntity(ctx context.Context, id string) (graph.Entity, error) {
	var entity graph.Entity
	err := s.read(ctx, func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		record, err := runSingle(ctx, tx, "MATCH (e:Entity {id: $id}) RETURN e", map[string]any{"id": id})
		if err != nil {
			return err
		}
		node, err := nodeFromRecord(record, "e")
		if err != nil {
			return err
		}
		entity = nodeToEntity(node)
		return nil
	})
	return entity, err
}

func (s *Neo4jStore) ListEntities(ctx context.Context, offset, limit int) ([]graph.Entity, error) {
	if offset < 0 || limit <= 0 {
		return nil, graph.NewValidationError("offset must be >= 0 and limit > 0")
	}
	query := `
		MATCH (e:Entity)
		RETURN e
		ORDER BY e.created_at ASC, e.id ASC
		SKIP $offset LIMIT $limit`
	return s.collectEntities(ctx, query, map[string]any{"offset": offset, "limit": limit})
}

// SearchEntities performs a case-insensitive, unanchored substring match over
// name and summary. Semantic search aliases to this until an embedding index
// is wired in; callers must not assume ranked relevance.
func (s *Neo4jStore) SearchEntities(ctx context.Context, query string, limit int) ([]graph.Entity, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, graph.NewValidationError("search query is empty")
	}
	if limit <= 0 {
		limit = 20
	}
	cypher := `
		MATCH (e:Entity)
		WHERE toLower(e.name) CONTAINS toLower($q)
		   OR toLower(coalesce(e.summary, '')) CONTAINS toLower($q)
		RETURN e
		ORDER BY e.created_at ASC, e.id ASC
		LIMIT $limit`
	return s.collectEntities(ctx, cypher, map[string]any{"q": q, "limit": limit})
}

func (s *Neo4jStore) ListRelations(ctx context.Context, entityID string) ([]graph.Relation, error) {
	query := `
		MATCH (s)-[r]->(t)
		WHERE s.id = $id OR t.id = $id
		RETURN r, s.id AS source_id, t.id AS target_id`
	var relations []graph.Relation
	err := s.read(ctx, func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		result, err := tx.Run(ctx, query, map[string]any{"id": entityID})
		if err != nil {
			return err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return err
		}
		relations = make([]graph.Relation, 0, len(records))
		for _, record := range records {
			rel, err := relationFromRecord(record)
			if err != nil {
				return err
			}
			relations = append(relations, rel)
		}
		return nil
	})
	return relations, err
}

func (s *Neo4jStore) collectEntities(ctx context.Context, query string, params map[string]any) ([]graph.Entity, error) {
	var entities []graph.Entity
	err := s.read(ctx, func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return err
		}
		entities = make([]graph.Entity, 0, len(records))
		for _, record := range records {
			node, err := nodeFromRecord(record, "e")
			if err != nil {
				return err
			}
			entities = append(entities, nodeToEntity(node))
		}
		return nil
	})
	return entities, err
}

type txFunc func(ctx context.Context, tx neo4j.ManagedTransaction) error

func (s *Neo4jStore) write(ctx context.Context, fn txFunc) error {
	return s.run(ctx, neo4j.AccessModeWrite, fn)
}

func (s *Neo4jStore) read(ctx context.Context, fn txFunc) error {
	return s.run(ctx, neo4j.AccessModeRead, fn)
}

func (s *Neo4jStore) run(ctx context.Context, mode neo4j.AccessMode, fn txFunc) error {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	session := s.driver.NewSession(opCtx, neo4j.SessionConfig{
		DatabaseName: s.database,
		AccessMode:   mode,
	})
	defer session.Close(opCtx)

	work := func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, fn(opCtx, tx)
	}
	var err error
	if mode == neo4j.AccessModeWrite {
		_, err = session.ExecuteWrite(opCtx, work)
	} else {
		_, err = session.ExecuteRead(opCtx, work)
	}
	return mapStoreError(err)
}

func runSingle(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) (*db.Record, error) {
	result, err := tx.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, graph.ErrNotFound
	}
	return records[0], nil
}

func nodeFromRecord(record *db.Record, key string) (neo4j.Node, error) {
	value, ok := record.Get(key)
	if !ok {
		return neo4j.Node{}, errors.Errorf("record missing %q", key)
	}
	node, ok := value.(neo4j.Node)
	if !ok {
		return neo4j.Node{}, errors.Errorf("record value %q is not a node", key)
	}
	return node, nil
}

func relationFromRecord(record *db.Record) (graph.Relation, error) {
	value, ok := record.Get("r")
	if !ok {
		return graph.Relation{}, errors.New("record missing relationship")
	}
	rel, ok := value.(neo4j.Relationship)
	if !ok {
		return graph.Relation{}, errors.New("record value is not a relationship")
	}
	sourceID, _ := record.Get("source_id")
	targetID, _ := record.Get("target_id")
	return graph.Relation{
		SourceID:      stringProp(map[string]any{"v": sourceID}, "v"),
		TargetID:      stringProp(map[string]any{"v": targetID}, "v"),
		Kind:          rel.Type,
		Confidence:    floatProp(rel.Props, "confidence"),
		SourceEntryID: stringProp(rel.Props, "source_entry_id"),
	}, nil
}

func nodeToEntry(node neo4j.Node) graph.Entry {
	return graph.Entry{
		ID:          stringProp(node.Props, "id"),
		Text:        stringProp(node.Props, "text"),
		Format:      graph.ContentFormat(stringProp(node.Props, "format")),
		Status:      graph.EntryStatus(stringProp(node.Props, "status")),
		ErrorDetail: stringProp(node.Props, "error_detail"),
		Degraded:    boolProp(node.Props, "degraded"),
		CreatedAt:   timeProp(node.Props, "created_at"),
	}
}

func nodeToEntity(node neo4j.Node) graph.Entity {
	return graph.Entity{
		ID:             stringProp(node.Props, "id"),
		Kind:           graph.EntityKind(stringProp(node.Props, "kind")),
		Name:           stringProp(node.Props, "name"),
		NormalizedName: stringProp(node.Props, "normalized_name"),
		Summary:        stringProp(node.Props, "summary"),
		SourceEntryIDs: stringSliceProp(node.Props, "source_entry_ids"),
		CreatedAt:      timeProp(node.Props, "created_at"),
		UpdatedAt:      timeProp(node.Props, "updated_at"),
	}
}

func stringProp(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

func boolProp(props map[string]any, key string) bool {
	if v, ok := props[key].(bool); ok {
		return v
	}
	return false
}

func floatProp(props map[string]any, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	default:
		return 0
	}
}

func timeProp(props map[string]any, key string) time.Time {
	if v, ok := props[key].(string); ok {
		if t, err := time.Parse(timeLayout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

func stringSliceProp(props map[string]any, key string) []string {
	raw, ok := props[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// mapStoreError folds driver failures into the store error taxonomy.
// ErrNotFound and validation errors pass through untouched.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, graph.ErrNotFound) {
		return graph.ErrNotFound
	}
	var ve *graph.ValidationError
	if errors.As(err, &ve) {
		return ve
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return graph.NewStoreError(graph.StoreTimeout, err)
	}
	var neoErr *db.Neo4jError
	if errors.As(err, &neoErr) {
		if strings.Contains(neoErr.Code, "ConstraintValidation") ||
			strings.Contains(neoErr.Code, "Schema") {
			return graph.NewStoreError(graph.StoreConstraintViolation, err)
		}
	}
	return graph.NewStoreError(graph.StoreUnavailable, err)
}
