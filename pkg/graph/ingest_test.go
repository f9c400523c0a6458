package graph_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/momento-app/momento-graph/pkg/graph"
	"github.com/momento-app/momento-graph/pkg/graph/providers"
	"github.com/momento-app/momento-graph/pkg/graph/storage"
)

// jsonProvider emits a fixed entity/relation set in the shared wire shape.
type jsonProvider struct {
	entities []map[string]any
	extraRel []map[string]any
	err      error
	calls    int
}

func (p *jsonProvider) Name() string { return "scripted" }

func (p *jsonProvider) Extract(_ context.Context, req graph.ProviderRequest) (string, error) {
	p.calls++
	if p.err != nil {
		return "", p.err
	}
	relations := make([]map[string]any, 0, len(p.entities))
	for _, e := range p.entities {
		relations = append(relations, map[string]any{
			"source": req.EntryID, "target": e["name"], "kind": "MENTIONS", "confidence": 0.9,
		})
	}
	relations = append(relations, p.extraRel...)
	payload, _ := json.Marshal(map[string]any{"entities": p.entities, "relations": relations})
	return string(payload), nil
}

func newSyncService(t *testing.T, store storage.Store, provider graph.ExtractionProvider, allowFallback bool) *graph.IngestionService {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	assembler, err := graph.NewWordAssembler(1000)
	if err != nil {
		t.Fatalf("NewWordAssembler: %v", err)
	}
	runner := graph.NewRunner(graph.RunnerConfig{
		Provider:      provider,
		Fallback:      providers.NewLocalProvider(logger),
		Parse:         providers.Parse,
		Assembler:     assembler,
		MaxRetries:    0,
		AllowFallback: allowFallback,
		Logger:        logger,
	})
	return graph.NewIngestionService(graph.ServiceConfig{
		Store:       store,
		Runner:      runner,
		Resolver:    graph.NewResolver(logger),
		Logger:      logger,
		Synchronous: true,
	})
}

func aliceProvider() *jsonProvider {
	return &jsonProvider{entities: []map[string]any{
		{"name": "Alice", "kind": "PERSON", "summary": "a friend", "confidence": 0.9},
	}}
}

func TestIngestRejectsEmptyText(t *testing.T) {
	service := newSyncService(t, storage.NewMemoryStore(), aliceProvider(), false)
	_, err := service.IngestEntry(context.Background(), "   ", graph.FormatText)
	var ve *graph.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestIngestRejectsUnknownFormat(t *testing.T) {
	service := newSyncService(t, storage.NewMemoryStore(), aliceProvider(), false)
	_, err := service.IngestEntry(context.Background(), "hello", graph.ContentFormat("pdf"))
	var ve *graph.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if !strings.Contains(ve.Error(), "pdf") {
		t.Errorf("error %q does not name the rejected format", ve.Error())
	}
}

func TestIngestSynchronousSuccess(t *testing.T) {
	store := storage.NewMemoryStore()
	service := newSyncService(t, store, aliceProvider(), false)
	ctx := context.Background()

	entry, err := service.IngestEntry(ctx, "Alice had coffee with me.", graph.FormatText)
	if err != nil {
		t.Fatalf("IngestEntry: %v", err)
	}
	if entry.Status != graph.EntryStatusSucceeded {
		t.Fatalf("status = %s (%s), want succeeded", entry.Status, entry.ErrorDetail)
	}

	entities, err := service.ListEntities(ctx, 0, 10)
	if err != nil {
		t.Fatalf("ListEntities: %v", err)
	}
	if len(entities) != 1 || entities[0].Name != "Alice" {
		t.Fatalf("entities = %+v, want Alice", entities)
	}

	relations, err := service.ListRelations(ctx, entities[0].ID)
	if err != nil {
		t.Fatalf("ListRelations: %v", err)
	}
	if len(relations) != 1 || relations[0].Kind != "MENTIONS" || relations[0].SourceID != entry.ID {
		t.Fatalf("relations = %+v, want entry MENTIONS Alice", relations)
	}
}

func TestIngestIdempotentAcrossEntries(t *testing.T) {
	store := storage.NewMemoryStore()
	service := newSyncService(t, store, aliceProvider(), false)
	ctx := context.Background()

	first, err := service.IngestEntry(ctx, "Alice again.", graph.FormatText)
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	second, err := service.IngestEntry(ctx, "Alice again.", graph.FormatText)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}

	entities, err := service.ListEntities(ctx, 0, 10)
	if err != nil {
		t.Fatalf("ListEntities: %v", err)
	}
	if len(entities) != 1 {
		t.Fatalf("entities = %d, want 1 (same fact must merge, not duplicate)", len(entities))
	}
	sources := entities[0].SourceEntryIDs
	if len(sources) != 2 {
		t.Fatalf("source entry ids = %v, want both %s and %s", sources, first.ID, second.ID)
	}
}

func TestIngestToleratesDanglingRelationEndpoint(t *testing.T) {
	store := storage.NewMemoryStore()
	provider := aliceProvider()
	provider.extraRel = []map[string]any{
		{"source": "Alice", "target": "Charlie", "kind": "KNOWS", "confidence": 0.7},
	}
	service := newSyncService(t, store, provider, false)
	ctx := context.Background()

	entry, err := service.IngestEntry(ctx, "Alice knows someone.", graph.FormatText)
	if err != nil {
		t.Fatalf("IngestEntry: %v", err)
	}
	if entry.Status != graph.EntryStatusSucceeded {
		t.Fatalf("status = %s (%s), want succeeded despite the unknown endpoint",
			entry.Status, entry.ErrorDetail)
	}

	entities, err := service.SearchText(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("SearchText: %v", err)
	}
	if len(entities) != 1 {
		t.Fatalf("entities = %d, want 1", len(entities))
	}
	relations, err := service.ListRelations(ctx, entities[0].ID)
	if err != nil {
		t.Fatalf("ListRelations: %v", err)
	}
	for _, rel := range relations {
		if rel.Kind == "KNOWS" {
			t.Errorf("dangling relation persisted: %+v", rel)
		}
	}
}

func TestIngestProviderFailureMarksEntryFailed(t *testing.T) {
	provider := &jsonProvider{err: graph.NewProviderError("scripted", graph.ProviderAuthFailure, errors.New("401"))}
	store := storage.NewMemoryStore()
	service := newSyncService(t, store, provider, false)
	ctx := context.Background()

	entry, err := service.IngestEntry(ctx, "Alice had coffee.", graph.FormatText)
	if err != nil {
		t.Fatalf("IngestEntry: %v", err)
	}
	if entry.Status != graph.EntryStatusFailed {
		t.Fatalf("status = %s, want failed", entry.Status)
	}
	if !strings.Contains(entry.ErrorDetail, "auth_failure") {
		t.Errorf("error detail = %q, want the provider error kind", entry.ErrorDetail)
	}

	entities, err := service.ListEntities(ctx, 0, 10)
	if err != nil {
		t.Fatalf("ListEntities: %v", err)
	}
	if len(entities) != 0 {
		t.Errorf("failed extraction must not mutate the graph, got %+v", entities)
	}
}

func TestIngestFallbackMarksEntryDegraded(t *testing.T) {
	provider := &jsonProvider{err: graph.NewProviderError("scripted", graph.ProviderAuthFailure, errors.New("401"))}
	store := storage.NewMemoryStore()
	service := newSyncService(t, store, provider, true)
	ctx := context.Background()

	entry, err := service.IngestEntry(ctx, "Alice had coffee with Bob.", graph.FormatText)
	if err != nil {
		t.Fatalf("IngestEntry: %v", err)
	}
	if entry.Status != graph.EntryStatusSucceeded {
		t.Fatalf("status = %s (%s), want succeeded via fallback", entry.Status, entry.ErrorDetail)
	}
	if !entry.Degraded {
		t.Error("fallback extraction must mark the entry degraded")
	}
}

func TestIngestNormalizesHTML(t *testing.T) {
	store := storage.NewMemoryStore()
	service := newSyncService(t, store, aliceProvider(), false)
	ctx := context.Background()

	entry, err := service.IngestEntry(ctx, "<p>Dinner with <strong>Alice</strong></p>", graph.FormatHTML)
	if err != nil {
		t.Fatalf("IngestEntry: %v", err)
	}
	stored, err := service.GetEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if strings.Contains(stored.Text, "<p>") {
		t.Errorf("stored text still contains HTML: %q", stored.Text)
	}
	if !strings.Contains(stored.Text, "Alice") {
		t.Errorf("stored text lost content: %q", stored.Text)
	}
}

func TestIngestReingestUnknownEntry(t *testing.T) {
	service := newSyncService(t, storage.NewMemoryStore(), aliceProvider(), false)
	err := service.Reingest(context.Background(), "missing")
	if !errors.Is(err, graph.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
