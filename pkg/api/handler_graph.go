package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arthanethra/arthanethra/pkg/indexer"
	"github.com/arthanethra/arthanethra/pkg/models"
)

// normalize handles POST /normalize?document_id=... A fresh graph is built
// and installed, superseding any prior graphs for the document.
func (s *Server) normalize(c *gin.Context) {
	documentID := c.Query("document_id")
	if documentID == "" {
		badRequest(c, "document_id is required")
		return
	}
	graph, err := s.pipeline.Normalize(c.Request.Context(), documentID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, graph)
}

// index handles POST /index?graph_id=... (or document_id).
func (s *Server) index(c *gin.Context) {
	documentID := c.Query("document_id")
	if graphID := c.Query("graph_id"); graphID != "" {
		graph, err := s.store.GetGraph(graphID)
		if err != nil {
			s.respondError(c, err)
			return
		}
		documentID = graph.DocumentID
	}
	if documentID == "" {
		badRequest(c, "graph_id or document_id is required")
		return
	}
	stats, err := s.pipeline.Index(c.Request.Context(), documentID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) getGraph(c *gin.Context) {
	graph, err := s.store.GetGraph(c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, graph)
}

type graphQueryRequest struct {
	Query   string `json:"query" binding:"required"`
	GraphID string `json:"graph_id"`
	Limit   int    `json:"limit"`
}

// queryGraph handles POST /graph/query: semantic entity search.
func (s *Server) queryGraph(c *gin.Context) {
	var req graphQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}
	var hits []indexer.EntityHit
	if s.search != nil {
		hits = s.search.SearchEntities(c.Request.Context(), req.Query, req.Limit, req.GraphID)
	}
	if hits == nil {
		hits = []indexer.EntityHit{}
	}
	c.JSON(http.StatusOK, gin.H{"entities": hits, "count": len(hits)})
}

func (s *Server) listEntities(c *gin.Context) {
	entities := s.store.AllEntities()
	c.JSON(http.StatusOK, gin.H{"entities": entities, "count": len(entities)})
}

func (s *Server) entitiesForGraph(c *gin.Context) {
	entities := s.store.EntitiesForGraph(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"entities": entities, "count": len(entities)})
}

func (s *Server) getEntity(c *gin.Context) {
	entity, err := s.store.FindEntity(c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entity)
}

// searchEntities handles GET /entities/search?q=...&limit=...&graph_id=...
func (s *Server) searchEntities(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		badRequest(c, "q is required")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if limit <= 0 {
		limit = 10
	}
	var hits []indexer.EntityHit
	if s.search != nil {
		hits = s.search.SearchEntities(c.Request.Context(), query, limit, c.Query("graph_id"))
	}
	if hits == nil {
		hits = []indexer.EntityHit{}
	}
	c.JSON(http.StatusOK, gin.H{"entities": hits, "count": len(hits)})
}

func (s *Server) listRelationships(c *gin.Context) {
	var edges []*models.Edge
	for _, g := range s.store.ListGraphs() {
		edges = append(edges, g.Edges...)
	}
	if edges == nil {
		edges = []*models.Edge{}
	}
	c.JSON(http.StatusOK, gin.H{"relationships": edges, "count": len(edges)})
}

func (s *Server) relationshipsForGraph(c *gin.Context) {
	graph, err := s.store.GetGraph(c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"relationships": graph.Edges, "count": len(graph.Edges)})
}
