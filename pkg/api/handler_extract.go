package api

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/arthanethra/arthanethra/pkg/models"
)

// extract handles POST /extract?document_id=...
func (s *Server) extract(c *gin.Context) {
	documentID := c.Query("document_id")
	if documentID == "" {
		badRequest(c, "document_id is required")
		return
	}
	doc, err := s.pipeline.Extract(c.Request.Context(), documentID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	entitiesCount := 0
	if doc.ADEOutput != nil {
		entitiesCount = len(doc.ADEOutput.Entities)
	}
	c.JSON(http.StatusOK, gin.H{
		"extraction_id":  doc.ExtractionID,
		"entities_count": entitiesCount,
		"ade_output":     doc.ADEOutput,
	})
}

// extractStatus handles GET /extract/status?document_id=...
func (s *Server) extractStatus(c *gin.Context) {
	documentID := c.Query("document_id")
	if documentID == "" {
		badRequest(c, "document_id is required")
		return
	}
	c.JSON(http.StatusOK, s.progress.Progress(documentID))
}

// extractStream handles GET /extract/stream?document_id=... as an SSE
// stream of progress frames. The stream ends on a terminal frame or when
// the client disconnects.
func (s *Server) extractStream(c *gin.Context) {
	documentID := c.Query("document_id")
	if documentID == "" {
		badRequest(c, "document_id is required")
		return
	}
	if s.broadcaster == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "streaming not available"})
		return
	}

	frames, cancel := s.broadcaster.Subscribe(documentID)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.Flush()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			writeSSE(c, frame)
			if frame.Terminal() {
				return
			}
		}
	}
}

// writeSSE writes one data frame and flushes.
func writeSSE(c *gin.Context, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.Writer.WriteString("data: ")
	c.Writer.Write(payload)
	c.Writer.WriteString("\n\n")
	c.Writer.Flush()
}

func (s *Server) listJobs(c *gin.Context) {
	jobs := s.store.ListJobs()
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}

func (s *Server) getJob(c *gin.Context) {
	job, err := s.store.GetJob(c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// getJobResult serves the cached extraction record of a completed job.
func (s *Server) getJobResult(c *gin.Context) {
	job, err := s.store.GetJob(c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if job.ResultPath == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "job has no result"})
		return
	}
	data, err := os.ReadFile(job.ResultPath)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job result is missing"})
		return
	}
	var output models.ADEOutput
	if err := json.Unmarshal(data, &output); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, output)
}
