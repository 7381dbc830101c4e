package api

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/arthanethra/arthanethra/pkg/models"
	"github.com/arthanethra/arthanethra/pkg/risk"
)

// detectRisks handles POST /risk?graph_id=... Stored risks are returned
// as-is; otherwise a detection pass runs and its results are stored.
func (s *Server) detectRisks(c *gin.Context) {
	graphID := c.Query("graph_id")
	if graphID == "" {
		badRequest(c, "graph_id is required")
		return
	}
	risks := s.store.RisksForGraph(graphID)
	if len(risks) == 0 {
		var err error
		risks, err = s.pipeline.AnalyzeGraph(c.Request.Context(), graphID)
		if err != nil {
			s.respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"risks": risks, "summary": risk.Summary(risks)})
}

// analyzeRisks handles POST /risks/analyze/{graph_id}: always re-runs.
func (s *Server) analyzeRisks(c *gin.Context) {
	risks, err := s.pipeline.AnalyzeGraph(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"risks": risks, "summary": risk.Summary(risks)})
}

func (s *Server) listRisks(c *gin.Context) {
	risks := s.store.AllRisks()
	c.JSON(http.StatusOK, gin.H{"risks": risks, "summary": risk.Summary(risks)})
}

func (s *Server) risksForGraph(c *gin.Context) {
	risks := s.store.RisksForGraph(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"risks": risks, "summary": risk.Summary(risks)})
}

func (s *Server) risksForDocument(c *gin.Context) {
	documentID := c.Param("id")
	var risks []*models.Risk
	for _, graphID := range s.store.GraphsForDocument(documentID) {
		risks = append(risks, s.store.RisksForGraph(graphID)...)
	}
	if risks == nil {
		risks = []*models.Risk{}
	}
	c.JSON(http.StatusOK, gin.H{"risks": risks, "summary": risk.Summary(risks)})
}

// riskGraph handles GET /risks/{id}/graph: the risk's supporting subgraph.
func (s *Server) riskGraph(c *gin.Context) {
	r, err := s.store.FindRisk(c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if r.GraphData == nil {
		c.JSON(http.StatusOK, &models.Graph{GraphID: r.GraphID})
		return
	}
	c.JSON(http.StatusOK, r.GraphData)
}

// riskSummary handles GET /risks/summary?graph_id=...: a short executive
// summary written by the model.
func (s *Server) riskSummary(c *gin.Context) {
	if s.agent == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat agent not available"})
		return
	}
	var risks []*models.Risk
	if graphID := c.Query("graph_id"); graphID != "" {
		risks = s.store.RisksForGraph(graphID)
	} else {
		risks = s.store.AllRisks()
	}
	text, err := s.agent.GenerateRiskSummary(c.Request.Context(), risks)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": text, "risk_count": len(risks)})
}

// dashboard handles GET /analytics/dashboard.
func (s *Server) dashboard(c *gin.Context) {
	docs := s.store.ListDocuments()
	graphs := s.store.ListGraphs()
	risks := s.store.AllRisks()

	entities := 0
	edges := 0
	for _, g := range graphs {
		entities += len(g.Entities)
		edges += len(g.Edges)
	}
	indexed := 0
	failed := 0
	for _, d := range docs {
		switch {
		case d.Status == models.StatusFailed:
			failed++
		case d.Status.AtLeast(models.StatusIndexed):
			indexed++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"documents": gin.H{
			"total":   len(docs),
			"indexed": indexed,
			"failed":  failed,
		},
		"graphs":        len(graphs),
		"entities":      entities,
		"relationships": edges,
		"risks":         risk.Summary(risks),
	})
}

// riskTrends handles GET /analytics/risk-trends: risk counts grouped by
// type, ordered by frequency.
func (s *Server) riskTrends(c *gin.Context) {
	risks := s.store.AllRisks()
	byType := make(map[string]int)
	for _, r := range risks {
		byType[r.Type]++
	}
	type trend struct {
		Type  string `json:"type"`
		Count int    `json:"count"`
	}
	trends := make([]trend, 0, len(byType))
	for t, n := range byType {
		trends = append(trends, trend{Type: t, Count: n})
	}
	sort.Slice(trends, func(i, j int) bool {
		if trends[i].Count != trends[j].Count {
			return trends[i].Count > trends[j].Count
		}
		return trends[i].Type < trends[j].Type
	})
	c.JSON(http.StatusOK, gin.H{"trends": trends, "total_risks": len(risks)})
}

func (s *Server) listMetrics(c *gin.Context) {
	metrics := s.analytics.ListMetrics()
	c.JSON(http.StatusOK, gin.H{"metrics": metrics, "count": len(metrics)})
}

type computeMetricRequest struct {
	MetricName string         `json:"metric_name" binding:"required"`
	Params     map[string]any `json:"params"`
	GraphID    string         `json:"graph_id"`
}

// computeMetric handles POST /analytics/compute.
func (s *Server) computeMetric(c *gin.Context) {
	var req computeMetricRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	callContext := map[string]any{}
	if req.GraphID != "" {
		callContext["graph_id"] = req.GraphID
	}
	result := s.analytics.Compute(c.Request.Context(), req.MetricName, req.Params, callContext)
	c.JSON(http.StatusOK, result)
}
