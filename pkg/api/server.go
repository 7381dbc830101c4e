// Package api exposes the REST and SSE surface over the pipeline, the
// knowledge graph, analytics and the chat agent.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arthanethra/arthanethra/pkg/analytics"
	"github.com/arthanethra/arthanethra/pkg/chat"
	"github.com/arthanethra/arthanethra/pkg/config"
	"github.com/arthanethra/arthanethra/pkg/events"
	"github.com/arthanethra/arthanethra/pkg/extraction"
	"github.com/arthanethra/arthanethra/pkg/indexer"
	"github.com/arthanethra/arthanethra/pkg/models"
	"github.com/arthanethra/arthanethra/pkg/pipeline"
	"github.com/arthanethra/arthanethra/pkg/store"
	"github.com/arthanethra/arthanethra/pkg/version"
)

// ProgressReader exposes per-document extraction progress for polling.
type ProgressReader interface {
	Progress(documentID string) extraction.Progress
}

// EntitySearcher runs semantic entity search for the graph-read endpoints.
type EntitySearcher interface {
	SearchEntities(ctx context.Context, query string, limit int, graphID string) []indexer.EntityHit
}

// ChatAgent answers analyst questions and writes risk summaries.
type ChatAgent interface {
	Chat(ctx context.Context, message string, cc chat.Context) <-chan chat.Chunk
	GenerateRiskSummary(ctx context.Context, risks []*models.Risk) (string, error)
}

// Options wires the server's collaborators. Search and Agent may be nil;
// the affected endpoints degrade to empty results or 503.
type Options struct {
	Store       *store.Store
	Pipeline    *pipeline.Coordinator
	Progress    ProgressReader
	Search      EntitySearcher
	Analytics   *analytics.Engine
	Agent       ChatAgent
	Broadcaster *events.Broadcaster
	Config      *config.Config
	Logger      *slog.Logger
}

// Server carries handler state.
type Server struct {
	store       *store.Store
	pipeline    *pipeline.Coordinator
	progress    ProgressReader
	search      EntitySearcher
	analytics   *analytics.Engine
	agent       ChatAgent
	broadcaster *events.Broadcaster
	cfg         *config.Config
	logger      *slog.Logger
}

// NewServer creates the API server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:       opts.Store,
		pipeline:    opts.Pipeline,
		progress:    opts.Progress,
		search:      opts.Search,
		analytics:   opts.Analytics,
		agent:       opts.Agent,
		broadcaster: opts.Broadcaster,
		cfg:         opts.Config,
		logger:      logger.With("component", "api"),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.corsMiddleware())

	r.GET("/health", s.health)

	g := r.Group(s.cfg.APIPrefix)
	{
		g.POST("/ingest", s.ingest)
		g.GET("/documents", s.listDocuments)
		g.GET("/documents/:id", s.getDocument)
		g.DELETE("/documents/:id", s.deleteDocument)
		g.GET("/documents/:id/pdf", s.serveDocumentFile)
		g.GET("/evidence/:id", s.serveDocumentFile)

		g.POST("/extract", s.extract)
		g.GET("/extract/status", s.extractStatus)
		g.GET("/extract/stream", s.extractStream)
		g.GET("/extract/jobs", s.listJobs)
		g.GET("/extract/jobs/:id", s.getJob)
		g.GET("/extract/jobs/:id/result", s.getJobResult)

		g.POST("/normalize", s.normalize)
		g.POST("/index", s.index)

		g.POST("/risk", s.detectRisks)
		g.GET("/risks", s.listRisks)
		g.GET("/risks/graph/:id", s.risksForGraph)
		g.GET("/risks/document/:id", s.risksForDocument)
		g.POST("/risks/analyze/:id", s.analyzeRisks)
		g.GET("/risks/:id/graph", s.riskGraph)
		g.GET("/risks/summary", s.riskSummary)

		g.GET("/graph/:id", s.getGraph)
		g.POST("/graph/query", s.queryGraph)
		g.GET("/entities", s.listEntities)
		g.GET("/entities/graph/:id", s.entitiesForGraph)
		g.GET("/entities/search", s.searchEntities)
		g.GET("/entities/:id", s.getEntity)
		g.GET("/relationships", s.listRelationships)
		g.GET("/relationships/graph/:id", s.relationshipsForGraph)

		g.GET("/analytics/dashboard", s.dashboard)
		g.GET("/analytics/risk-trends", s.riskTrends)
		g.GET("/analytics/metrics", s.listMetrics)
		g.POST("/analytics/compute", s.computeMetric)

		g.GET("/chat/sessions", s.listSessions)
		g.POST("/chat/sessions", s.createSession)
		g.GET("/chat/sessions/:id", s.getSession)
		g.PUT("/chat/sessions/:id", s.renameSession)
		g.DELETE("/chat/sessions/:id", s.deleteSession)
		g.GET("/chat/sessions/:id/messages", s.listMessages)
		g.POST("/chat/sessions/:id/messages", s.postMessage)
		g.POST("/chat/sessions/:id/documents/:doc_id", s.attachDocument)
		g.DELETE("/chat/sessions/:id/documents/:doc_id", s.detachDocument)

		g.POST("/ask", s.ask)
	}
	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"app":     s.cfg.AppName,
		"version": s.cfg.AppVersion,
		"commit":  version.GitCommit,
	})
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	allowed := make(map[string]bool, len(s.cfg.CORSOrigins))
	allowAll := false
	for _, o := range s.cfg.CORSOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || allowed[origin]) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
