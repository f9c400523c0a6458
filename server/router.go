package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/momento-app/momento-graph/pkg/graph"
)

// NewRouter builds the HTTP API around the ingestion service.
func NewRouter(service *graph.IngestionService, logger *logrus.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())
	router.Use(requestLogger(logger))

	h := &handlers{service: service, log: logger.WithField("component", "http")}

	router.GET("/healthz", h.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/graph")
	{
		api.POST("/entries", h.createEntry)
		api.GET("/entries/:id", h.getEntry)
		api.GET("/entities", h.listEntities)
		api.GET("/entities/:id", h.getEntity)
		api.GET("/entities/:id/relations", h.listRelations)
		api.GET("/entities/:id/neighborhood", h.neighborhood)
		api.POST("/search/text", h.searchText)
		api.POST("/search/semantic", h.searchSemantic)
	}
	return router
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.WithFields(logrus.Fields{
			"component": "http",
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    c.Writer.Status(),
		}).Debug("request handled")
	}
}
