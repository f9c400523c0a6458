package graph

import (
	"context"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/momento-app/momento-graph/pkg/graph/metrics"
)

// GraphStore is the persistence surface the ingestion service runs against.
// Satisfied by both storage implementations.
type GraphStore interface {
	SnapshotReader

	CreateEntry(ctx context.Context, entry Entry) error
	GetEntry(ctx context.Context, id string) (Entry, error)
	UpdateEntryStatus(ctx context.Context, id string, status EntryStatus, errorDetail string, degraded bool) error

	ApplyPlan(ctx context.Context, plan MutationPlan) error

	GetEntity(ctx context.Context, id string) (Entity, error)
	ListEntities(ctx context.Context, offset, limit int) ([]Entity, error)
	SearchEntities(ctx context.Context, query string, limit int) ([]Entity, error)
	ListRelations(ctx context.Context, entityID string) ([]Relation, error)
}

// ServiceConfig wires an IngestionService.
type ServiceConfig struct {
	Store    GraphStore
	Runner   *Runner
	Resolver *Resolver
	Logger   *logrus.Logger

	// Synchronous runs extraction inline during IngestEntry instead of
	// through the dispatcher. Used by the batch CLI and tests.
	Synchronous bool

	Workers   int
	QueueSize int
}

// IngestionService accepts memory entries, schedules extraction, and exposes
// the graph read operations. It is the single entry point the HTTP, MCP, and
// CLI surfaces share.
type IngestionService struct {
	store      GraphStore
	runner     *Runner
	resolver   *Resolver
	dispatcher *Dispatcher
	sync       bool
	log        *logrus.Entry
	newID      func() string
}

// NewIngestionService builds the service and, unless synchronous, its
// dispatcher. Call Start before ingesting in asynchronous mode.
func NewIngestionService(cfg ServiceConfig) *IngestionService {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &IngestionService{
		store:    cfg.Store,
		runner:   cfg.Runner,
		resolver: cfg.Resolver,
		sync:     cfg.Synchronous,
		log:      logger.WithField("component", "ingestion"),
		newID:    func() string { return uuid.New().String() },
	}
	if !cfg.Synchronous {
		s.dispatcher = NewDispatcher(cfg.Workers, cfg.QueueSize, s.ProcessEntry, logger)
	}
	return s
}

// Start launches the dispatcher workers. No-op in synchronous mode.
func (s *IngestionService) Start(ctx context.Context) {
	if s.dispatcher != nil {
		s.dispatcher.Start(ctx)
	}
}

// Stop drains in-flight extractions. No-op in synchronous mode.
func (s *IngestionService) Stop() {
	if s.dispatcher != nil {
		s.dispatcher.Stop()
	}
}

// IngestEntry validates and persists a new entry, then schedules (or, in
// synchronous mode, runs) its extraction. The returned entry reflects the
// status at return time: pending when queued, terminal when synchronous.
func (s *IngestionService) IngestEntry(ctx context.Context, text string, format ContentFormat) (Entry, error) {
	if strings.TrimSpace(text) == "" {
		return Entry{}, NewValidationError("entry text is empty")
	}
	if format == "" {
		format = FormatText
	}
	normalized, err := normalizeContent(text, format)
	if err != nil {
		return Entry{}, err
	}

	entry := Entry{
		ID:        s.newID(),
		Text:      normalized,
		Format:    format,
		CreatedAt: time.Now().UTC(),
		Status:    EntryStatusPending,
	}
	if err := s.store.CreateEntry(ctx, entry); err != nil {
		return Entry{}, err
	}

	if s.sync {
		s.ProcessEntry(ctx, entry.ID)
		return s.store.GetEntry(ctx, entry.ID)
	}

	if err := s.dispatcher.Enqueue(entry.ID); err != nil {
		detail := "extraction not scheduled: " + err.Error()
		if updateErr := s.store.UpdateEntryStatus(ctx, entry.ID, EntryStatusFailed, detail, false); updateErr != nil {
			s.log.WithField("entry_id", entry.ID).WithError(updateErr).Error("recording enqueue failure")
		}
		return entry, err
	}
	return entry, nil
}

// Reingest reschedules extraction for an existing entry.
func (s *IngestionService) Reingest(ctx context.Context, entryID string) error {
	if _, err := s.store.GetEntry(ctx, entryID); err != nil {
		return err
	}
	if s.sync {
		s.ProcessEntry(ctx, entryID)
		return nil
	}
	return s.dispatcher.Enqueue(entryID)
}

// ProcessEntry runs the full extraction pipeline for one entry and records
// the outcome on it. Errors terminate in the entry's failed status; nothing
// propagates because extraction runs detached from the ingest caller.
func (s *IngestionService) ProcessEntry(ctx context.Context, entryID string) {
	logger := s.log.WithField("entry_id", entryID)

	entry, err := s.store.GetEntry(ctx, entryID)
	if err != nil {
		logger.WithError(err).Error("loading entry for extraction")
		return
	}
	if err := s.store.UpdateEntryStatus(ctx, entryID, EntryStatusRunning, "", false); err != nil {
		logger.WithError(err).Error("marking entry running")
		return
	}

	result, err := s.runner.Run(ctx, entry)
	if err != nil {
		s.recordFailure(ctx, entryID, err)
		return
	}

	plan, err := s.resolver.Resolve(ctx, entry, result, s.store)
	if err != nil {
		s.recordFailure(ctx, entryID, err)
		return
	}
	if err := s.store.ApplyPlan(ctx, plan); err != nil {
		s.recordFailure(ctx, entryID, err)
		return
	}
	s.observePlan(plan)

	if err := s.store.UpdateEntryStatus(ctx, entryID, EntryStatusSucceeded, "", result.Degraded); err != nil {
		logger.WithError(err).Error("marking entry succeeded")
		return
	}
	logger.WithFields(logrus.Fields{
		"provider":  result.Provider,
		"entities":  len(result.Entities),
		"relations": len(result.Relations),
		"degraded":  result.Degraded,
	}).Info("entry extracted")
}

func (s *IngestionService) recordFailure(ctx context.Context, entryID string, cause error) {
	detail := cause.Error()
	if pe, ok := AsProviderError(cause); ok {
		detail = string(pe.Kind) + ": " + pe.Error()
	}
	if err := s.store.UpdateEntryStatus(ctx, entryID, EntryStatusFailed, detail, false); err != nil {
		s.log.WithField("entry_id", entryID).WithError(err).Error("recording extraction failure")
	}
	s.log.WithField("entry_id", entryID).WithError(cause).Warn("extraction failed")
}

func (s *IngestionService) observePlan(plan MutationPlan) {
	for _, op := range plan.EntityOps {
		if op.Op == OpCreate {
			metrics.GraphNodeCount.WithLabelValues(string(op.Entity.Kind)).Inc()
		}
	}
	for _, op := range plan.RelationOps {
		if op.Op == OpCreate {
			metrics.GraphEdgeCount.WithLabelValues(op.Relation.Kind).Inc()
		}
	}
}

// GetEntry returns the entry with its current processing status.
func (s *IngestionService) GetEntry(ctx context.Context, id string) (Entry, error) {
	return s.store.GetEntry(ctx, id)
}

// GetEntity returns one entity by ID.
func (s *IngestionService) GetEntity(ctx context.Context, id string) (Entity, error) {
	return s.store.GetEntity(ctx, id)
}

// ListEntities pages through entities in stable creation order.
func (s *IngestionService) ListEntities(ctx context.Context, offset, limit int) ([]Entity, error) {
	return s.store.ListEntities(ctx, offset, limit)
}

// SearchText finds entities whose name or summary contains the query,
// case-insensitively.
func (s *IngestionService) SearchText(ctx context.Context, query string, limit int) ([]Entity, error) {
	return s.store.SearchEntities(ctx, query, limit)
}

// SearchSemantic currently aliases SearchText. The signature is the seam
// where an embedding-backed index plugs in; results carry no relevance
// ranking yet.
func (s *IngestionService) SearchSemantic(ctx context.Context, query string, limit int) ([]Entity, error) {
	return s.SearchText(ctx, query, limit)
}

// ListRelations returns all relations touching the entity, either direction.
func (s *IngestionService) ListRelations(ctx context.Context, entityID string) ([]Relation, error) {
	return s.store.ListRelations(ctx, entityID)
}

// normalizeContent converts non-plain formats to extraction-friendly text.
// HTML becomes markdown; markdown and plain text pass through.
func normalizeContent(text string, format ContentFormat) (string, error) {
	switch format {
	case FormatText, FormatMarkdown:
		return text, nil
	case FormatHTML:
		converted, err := htmltomarkdown.ConvertString(text)
		if err != nil {
			return "", NewValidationError("html content could not be parsed")
		}
		if strings.TrimSpace(converted) == "" {
			return "", NewValidationError("html content is empty after conversion")
		}
		return converted, nil
	default:
		return "", NewValidationError("unsupported content format %s", format)
	}
}
