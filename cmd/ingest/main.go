package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/momento-app/momento-graph/config"
	"github.com/momento-app/momento-graph/pkg/graph"
	"github.com/momento-app/momento-graph/pkg/graph/providers"
	"github.com/momento-app/momento-graph/pkg/graph/storage"
)

var (
	inputDir = flag.String("input", "", "Directory containing input text files")
	provider = flag.String("provider", "", "Extraction provider override (local, ollama, openai, anthropic)")
	envFile  = flag.String("env", ".env", "Path to environment file")
	logLevel = flag.String("log-level", "info", "Logging level (debug, info, warn, error)")
)

func main() {
	flag.Parse()

	logger := logrus.New()
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatalf("Invalid log level: %v", err)
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if *inputDir == "" {
		logger.Fatal("Input directory must be specified")
	}

	if err := godotenv.Load(*envFile); err != nil {
		logger.Debugf("No env file loaded from %s", *envFile)
	}
	cfg := config.Load()
	if *provider != "" {
		cfg.ExtractionProvider = strings.ToLower(*provider)
	}

	ctx := context.Background()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to open graph store: %v", err)
	}
	defer store.Close(ctx)

	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatalf("Failed to ensure graph schema: %v", err)
	}

	assembler, err := graph.NewAssembler(cfg.ContextWindowTokens)
	if err != nil {
		logger.Fatalf("Failed to build context assembler: %v", err)
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
		Observers:           []graph.Observer{graph.NewLogObserver(logger)},
		Logger:              logger,
	})

	// Batch mode processes entries inline so the process can exit when the
	// last file is done.
	service := graph.NewIngestionService(graph.ServiceConfig{
		Store:       store,
		Runner:      runner,
		Resolver:    graph.NewResolver(logger),
		Logger:      logger,
		Synchronous: true,
	})

	files, err := readInputFiles(*inputDir)
	if err != nil {
		logger.Fatalf("Failed to read input directory: %v", err)
	}
	if len(files) == 0 {
		logger.Fatal("No input files found")
	}
	logger.Infof("Ingesting %d input files...", len(files))

	var succeeded, failed int
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			logger.Errorf("Failed to read file %s: %v", file, err)
			failed++
			continue
		}

		entry, err := service.IngestEntry(ctx, string(content), formatForFile(file))
		if err != nil {
			logger.Errorf("Failed to ingest %s: %v", file, err)
			failed++
			continue
		}
		if entry.Status != graph.EntryStatusSucceeded {
			logger.Warnf("Entry %s from %s finished %s: %s", entry.ID, filepath.Base(file), entry.Status, entry.ErrorDetail)
			failed++
			continue
		}
		logger.Infof("Ingested %s as entry %s (degraded=%v)", filepath.Base(file), entry.ID, entry.Degraded)
		succeeded++
	}

	logger.Infof("Done: %d succeeded, %d failed", succeeded, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

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

func formatForFile(path string) graph.ContentFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md":
		return graph.FormatMarkdown
	case ".html", ".htm":
		return graph.FormatHTML
	default:
		return graph.FormatText
	}
}

// readInputFiles walks the input directory collecting ingestible files.
func readInputFiles(inputDir string) ([]string, error) {
	supportedExtensions := map[string]bool{
		".txt": true, ".md": true, ".html": true, ".htm": true,
	}

	var files []string
	err := filepath.Walk(inputDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			ext := strings.ToLower(filepath.Ext(path))
			if supportedExtensions[ext] {
				files = append(files, path)
			}
		}
		return nil
	})

	return files, err
}
