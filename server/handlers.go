package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/momento-app/momento-graph/pkg/graph"
	"github.com/momento-app/momento-graph/pkg/graph/algorithms"
)

const (
	defaultListLimit   = 50
	defaultSearchLimit = 20
)

type handlers struct {
	service *graph.IngestionService
	log     *logrus.Entry
}

type ingestRequest struct {
	Text   string `json:"text"`
	Format string `json:"format"`
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) createEntry(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}
	entry, err := h.service.IngestEntry(c.Request.Context(), req.Text, graph.ContentFormat(req.Format))
	if err != nil {
		h.renderError(c, err)
		return
	}
	status := http.StatusAccepted
	if entry.Status != graph.EntryStatusPending {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"id": entry.ID, "status": entry.Status})
}

func (h *handlers) getEntry(c *gin.Context) {
	entry, err := h.service.GetEntry(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *handlers) getEntity(c *gin.Context) {
	entity, err := h.service.GetEntity(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, entity)
}

func (h *handlers) listEntities(c *gin.Context) {
	offset, err := intQuery(c, "offset", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be an integer"})
		return
	}
	limit, err := intQuery(c, "limit", defaultListLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
		return
	}
	entities, err := h.service.ListEntities(c.Request.Context(), offset, limit)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entities": entities, "offset": offset, "limit": limit})
}

func (h *handlers) listRelations(c *gin.Context) {
	id := c.Param("id")
	// A relation listing for an unknown entity is a 404, not an empty list.
	if _, err := h.service.GetEntity(c.Request.Context(), id); err != nil {
		if !errors.Is(err, graph.ErrNotFound) {
			h.renderError(c, err)
			return
		}
		if _, entryErr := h.service.GetEntry(c.Request.Context(), id); entryErr != nil {
			h.renderError(c, graph.ErrNotFound)
			return
		}
	}
	relations, err := h.service.ListRelations(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"relations": relations})
}

func (h *handlers) neighborhood(c *gin.Context) {
	depth, err := intQuery(c, "depth", 1)
	if err != nil || depth < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "depth must be a non-negative integer"})
		return
	}
	traversal := algorithms.NewTraversal(h.service)
	entities, err := traversal.Traverse(c.Request.Context(), c.Param("id"), depth, algorithms.BFS)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entities": entities, "depth": depth})
}

func (h *handlers) searchText(c *gin.Context) {
	h.search(c, h.service.SearchText)
}

func (h *handlers) searchSemantic(c *gin.Context) {
	h.search(c, h.service.SearchSemantic)
}

func (h *handlers) search(c *gin.Context, fn func(ctx context.Context, query string, limit int) ([]graph.Entity, error)) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}
	if req.Limit <= 0 {
		req.Limit = defaultSearchLimit
	}
	entities, err := fn(c.Request.Context(), req.Query, req.Limit)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entities": entities})
}

// renderError maps domain errors onto HTTP statuses without leaking
// internals. Unknown failures collapse to a generic 500.
func (h *handlers) renderError(c *gin.Context, err error) {
	var ve *graph.ValidationError
	var se *graph.StoreError
	switch {
	case errors.Is(err, graph.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, graph.ErrQueueFull):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ingestion queue full"})
	case errors.As(err, &se) && (se.Kind == graph.StoreUnavailable || se.Kind == graph.StoreTimeout):
		h.log.WithError(err).Error("store unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
	default:
		h.log.WithError(err).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func intQuery(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
