package api

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/arthanethra/arthanethra/pkg/models"
)

// ingest handles POST /ingest (multipart upload).
func (s *Server) ingest(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		badRequest(c, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	mediaType := header.Header.Get("Content-Type")
	doc, err := s.pipeline.Ingest(file, header.Filename, mediaType)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// listDocuments handles GET /documents. Documents whose blob disappeared
// from disk are pruned from the store and omitted.
func (s *Server) listDocuments(c *gin.Context) {
	docs := s.store.ListDocuments()
	out := make([]*models.Document, 0, len(docs))
	for _, d := range docs {
		if d.FilePath != "" {
			if _, err := os.Stat(d.FilePath); os.IsNotExist(err) {
				s.logger.Warn("pruning document with missing blob", "document_id", d.ID, "path", d.FilePath)
				if err := s.pipeline.Delete(d.ID); err != nil {
					s.logger.Warn("pruning document failed", "document_id", d.ID, "error", err)
				}
				continue
			}
		}
		// Listings omit the extraction payload to keep responses small.
		d.ADEOutput = nil
		out = append(out, d)
	}
	c.JSON(http.StatusOK, gin.H{"documents": out, "count": len(out)})
}

func (s *Server) getDocument(c *gin.Context) {
	doc, err := s.store.GetDocument(c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) deleteDocument(c *gin.Context) {
	if err := s.pipeline.Delete(c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// serveDocumentFile handles GET /documents/{id}/pdf and /evidence/{id}.
func (s *Server) serveDocumentFile(c *gin.Context) {
	doc, err := s.store.GetDocument(c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if doc.FilePath == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "document has no stored file"})
		return
	}
	if _, err := os.Stat(doc.FilePath); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "stored file is missing"})
		return
	}
	if doc.MimeType != "" {
		c.Header("Content-Type", doc.MimeType)
	}
	c.File(doc.FilePath)
}
