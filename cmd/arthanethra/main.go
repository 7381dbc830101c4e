// ArthaNethra server: ingests financial documents, runs the
// extraction/normalization/indexing pipeline, and serves the REST API.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/joho/godotenv"

	"github.com/arthanethra/arthanethra/pkg/analytics"
	"github.com/arthanethra/arthanethra/pkg/api"
	"github.com/arthanethra/arthanethra/pkg/chat"
	"github.com/arthanethra/arthanethra/pkg/config"
	"github.com/arthanethra/arthanethra/pkg/events"
	"github.com/arthanethra/arthanethra/pkg/extraction"
	"github.com/arthanethra/arthanethra/pkg/indexer"
	"github.com/arthanethra/arthanethra/pkg/ingestion"
	"github.com/arthanethra/arthanethra/pkg/llm"
	"github.com/arthanethra/arthanethra/pkg/models"
	"github.com/arthanethra/arthanethra/pkg/normalize"
	"github.com/arthanethra/arthanethra/pkg/parsers"
	"github.com/arthanethra/arthanethra/pkg/pipeline"
	"github.com/arthanethra/arthanethra/pkg/relationships"
	"github.com/arthanethra/arthanethra/pkg/risk"
	"github.com/arthanethra/arthanethra/pkg/schema"
	"github.com/arthanethra/arthanethra/pkg/store"
	"github.com/arthanethra/arthanethra/pkg/version"
)

// newLogger builds the process logger. When a log file is configured the
// output is duplicated to stdout and the file.
func newLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	var w io.Writer = os.Stdout
	cleanup := func() {}
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stdout, f)
		cleanup = func() { _ = f.Close() }
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	return slog.New(handler), cleanup, nil
}

func main() {
	// Load .env from the working directory when present
	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment", "error", err)
	}

	// 1. Configuration and logging
	cfg := config.Load()
	if err := cfg.EnsureDirs(); err != nil {
		slog.Error("Failed to create data directories", "error", err)
		os.Exit(1)
	}
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		slog.Error("Failed to initialize logging", "error", err)
		os.Exit(1)
	}
	defer closeLog()
	slog.SetDefault(logger)

	slog.Info("Starting ArthaNethra",
		"version", cfg.AppVersion,
		"commit", version.GitCommit,
		"addr", cfg.Addr(),
		"api_prefix", cfg.APIPrefix)

	ctx := context.Background()

	// 2. Document and graph store with snapshot recovery
	st := store.New(cfg.StateDir)
	if err := st.Load(); err != nil {
		slog.Error("Failed to load state snapshots", "error", err)
		os.Exit(1)
	}

	// 3. Bedrock runtime, chat client, and embedder
	awsOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
		awsOpts = append(awsOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		slog.Error("Failed to load AWS configuration", "error", err)
		os.Exit(1)
	}
	runtime := bedrockruntime.NewFromConfig(awsCfg)

	llmClient, err := llm.NewBedrock(runtime, cfg.BedrockModelID, cfg.FallbackModelIDs, logger)
	if err != nil {
		slog.Error("Failed to initialize Bedrock client", "error", err)
		os.Exit(1)
	}
	slog.Info("LLM client initialized", "model", cfg.BedrockModelID)

	// 4. Index backends. A backend that is disabled or unreachable degrades
	// to zero counts rather than blocking the pipeline.
	var vector *indexer.VectorStore
	if cfg.QdrantEnabled {
		embedder, embErr := llm.NewTitanEmbedder(runtime, cfg.EmbedModelID, logger)
		if embErr != nil {
			slog.Error("Failed to initialize embedder", "error", embErr)
			os.Exit(1)
		}
		vector, err = indexer.NewVectorStore(cfg.QdrantURL, cfg.QdrantAPIKey, embedder, logger)
		if err != nil {
			slog.Warn("Vector store unavailable, semantic search disabled", "url", cfg.QdrantURL, "error", err)
			vector = nil
		} else if err := vector.EnsureCollections(ctx); err != nil {
			slog.Warn("Vector store collection setup failed, semantic search disabled", "error", err)
			vector = nil
		}
	}
	var graph *indexer.GraphStore
	if cfg.Neo4jEnabled {
		graph, err = indexer.NewGraphStore(cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, logger)
		if err != nil {
			slog.Warn("Graph store unavailable, graph queries disabled", "uri", cfg.Neo4jURI, "error", err)
			graph = nil
		} else {
			defer func() {
				if err := graph.Close(context.Background()); err != nil {
					slog.Error("Error closing graph store", "error", err)
				}
			}()
		}
	}
	ix := indexer.New(vector, graph, logger)
	slog.Info("Index backends initialized",
		"vector", vector != nil, "graph", graph != nil)

	// 5. Extraction orchestrator with progress fan-out
	broadcaster := events.NewBroadcaster(logger)
	orchestrator := extraction.New(extraction.Options{
		ADE:            extraction.NewADEClient(cfg.ADEAPIURL, cfg.ADEAPIKey, logger),
		Store:          st,
		Schema:         schema.NewAnalyzer(logger),
		AdaptiveSchema: cfg.AdaptiveSchema,
		SyncMaxBytes:   cfg.ADESyncMaxBytes,
		PollMaxIters:   cfg.ADEPollMaxIters,
		CacheDir:       cfg.CacheDir,
		OnProgress: func(documentID string, p extraction.Progress) {
			broadcaster.Publish(events.Progress{
				DocumentID: documentID,
				Status:     models.StatusExtracting,
				Stage:      "extract",
				Message:    fmt.Sprintf("extraction %s: %d/%d", p.Status, p.Completed, p.Total),
			})
		},
		Logger: logger,
	})

	// 6. Pipeline stages
	normalizer := normalize.New(
		relationships.NewDetector(llmClient, logger),
		parsers.NewNarrativeParser(llmClient, cfg.BedrockModelID, logger),
		logger,
	)
	coordinator := pipeline.New(pipeline.Options{
		Store:       st,
		Ingestor:    ingestion.New(cfg.UploadDir, cfg.MaxUploadSize, logger),
		Extractor:   orchestrator,
		Builder:     normalizer,
		Indexer:     ix,
		Risks:       risk.New(llmClient, cfg.BedrockModelID, logger),
		Broadcaster: broadcaster,
		Logger:      logger,
	})

	// 7. Analytics engine and chat agent
	engine := analytics.New(ix, logger)
	agent := chat.New(llmClient, st, ix, engine, cfg.BedrockModelID, cfg.APIPrefix, logger)

	// 8. HTTP server
	server := api.NewServer(api.Options{
		Store:       st,
		Pipeline:    coordinator,
		Progress:    orchestrator,
		Search:      ix,
		Analytics:   engine,
		Agent:       agent,
		Broadcaster: broadcaster,
		Config:      cfg,
		Logger:      logger,
	})
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.Addr())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	// 9. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 10. Graceful shutdown: stop accepting requests, then snapshot state
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	if err := st.Save(); err != nil {
		slog.Error("Failed to save state snapshots", "error", err)
	}
	slog.Info("Shutdown complete")
}
