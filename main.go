package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/momento-app/momento-graph/config"
	"github.com/momento-app/momento-graph/pkg/graph"
	"github.com/momento-app/momento-graph/pkg/graph/metrics"
	"github.com/momento-app/momento-graph/pkg/graph/providers"
	"github.com/momento-app/momento-graph/pkg/graph/storage"
	httpserver "github.com/momento-app/momento-graph/server"
	"github.com/momento-app/momento-graph/tools"
)

func main() {
	envFile := flag.String("env", ".env", "Path to environment file")
	stdio := flag.Bool("stdio", false, "Serve MCP tools over stdio instead of HTTP")
	enableSSE := flag.Bool("sse", false, "Enable MCP SSE server alongside HTTP")
	sseAddr := flag.String("sse-addr", ":8081", "Address for the MCP SSE server")
	sseBasePath := flag.String("sse-base-path", "/mcp", "Base path for MCP SSE endpoints")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if err := godotenv.Load(*envFile); err != nil {
		logger.WithField("file", *envFile).Debug("no env file loaded")
	}
	cfg := config.Load()

	if level, err := logrus.ParseLevel(strings.ToLower(cfg.LogLevel)); err == nil {
		logger.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("opening graph store")
	}
	defer store.Close(context.Background())

	if err := store.EnsureSchema(ctx); err != nil {
		logger.WithError(err).Fatal("ensuring graph schema")
	}

	service, err := buildService(cfg, store, logger)
	if err != nil {
		logger.WithError(err).Fatal("building ingestion service")
	}
	service.Start(ctx)
	defer service.Stop()

	go systemMetricsLoop(ctx)

	mcpServer := server.NewMCPServer(
		"momento-graph",
		"1.0.0",
		server.WithLogging(),
	)
	tools.RegisterMemoryTools(mcpServer, service)
	tools.RegisterFetchTool(mcpServer, service)

	if *stdio {
		logger.Info("serving MCP over stdio")
		if err := server.ServeStdio(mcpServer); err != nil {
			logger.WithError(err).Fatal("stdio server error")
		}
		return
	}

	if *enableSSE || os.Getenv("ENABLE_SSE") == "true" {
		sseServer := server.NewSSEServer(
			mcpServer,
			server.WithBasePath(*sseBasePath),
			server.WithKeepAlive(true),
		)
		go func() {
			logger.WithFields(logrus.Fields{
				"addr":      *sseAddr,
				"base_path": *sseBasePath,
			}).Info("starting MCP SSE server")
			if err := sseServer.Start(*sseAddr); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Error("SSE server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := sseServer.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Warn("SSE server shutdown")
			}
		}()
	}

	router := httpserver.NewRouter(service, logger)
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}
	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("HTTP server stopped")
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP server shutdown")
	}
}

// openStore connects to Neo4j when configured and falls back to the
// in-process store otherwise, which keeps local development free of external
// services.
func openStore(ctx context.Context, cfg config.Settings, logger *logrus.Logger) (storage.Store, error) {
	if cfg.Neo4jURI == "" {
		logger.Warn("NEO4J_URI not set, using in-memory store; data is not persisted")
		return storage.NewMemoryStore(), nil
	}
	return storage.NewNeo4jStore(ctx, storage.Neo4jConfig{
		URI:      cfg.Neo4jURI,
		Username: cfg.Neo4jUser,
		Password: cfg.Neo4jPassword,
		Database: cfg.Neo4jDatabase,
	}, logger)
}

func buildService(cfg config.Settings, store storage.Store, logger *logrus.Logger) (*graph.IngestionService, error) {
	assembler, err := graph.NewAssembler(cfg.ContextWindowTokens)
	if err != nil {
		return nil, err
	}

	runner := graph.NewRunner(graph.RunnerConfig{
		Provider:            providers.FromSettings(cfg, logger),
		Fallback:            providers.NewLocalProvider(logger),
		Parse:               providers.Parse,
		Assembler:           assembler,
		Timeout:             cfg.ExtractionTimeout,
		MaxRetries:          cfg.MaxRetries,
		BackoffBase:         cfg.RetryBackoffBase,
		AllowFallback:       cfg.AllowFallback,
		ContextWindowTokens: cfg.ContextWindowTokens,
		Observers: []graph.Observer{
			graph.NewLogObserver(logger),
			graph.NewMetricsObserver(),
		},
		Logger: logger,
	})

	return graph.NewIngestionService(graph.ServiceConfig{
		Store:     store,
		Runner:    runner,
		Resolver:  graph.NewResolver(logger),
		Logger:    logger,
		Workers:   cfg.DispatcherWorkers,
		QueueSize: cfg.DispatcherQueueSize,
	}), nil
}

func systemMetricsLoop(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateSystemMetrics()
		}
	}
}
