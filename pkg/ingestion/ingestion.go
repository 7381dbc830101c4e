// Package ingestion accepts uploaded document streams, validates type and
// size, and writes blobs into the upload directory.
package ingestion

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/arthanethra/arthanethra/pkg/models"
	"github.com/arthanethra/arthanethra/pkg/services"
)

// acceptedMediaTypes is the closed set of upload types.
var acceptedMediaTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.ms-powerpoint":                                             true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"application/vnd.oasis.opendocument.text":                                    true,
	"application/vnd.oasis.opendocument.presentation":                            true,
	"image/jpeg":                    true,
	"image/png":                     true,
	"application/zip":               true,
	"application/x-zip-compressed":  true,
	"application/vnd.ms-excel":      true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"text/csv": true,
}

// Service writes validated uploads to disk and produces Document records.
type Service struct {
	uploadDir string
	maxSize   int64
	logger    *slog.Logger
}

// New builds an ingestion service rooted at uploadDir.
func New(uploadDir string, maxSize int64, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{uploadDir: uploadDir, maxSize: maxSize, logger: logger}
}

// Ingest validates and stores one upload. A size exactly at the limit is
// accepted; one byte over is rejected. The blob is written atomically via a
// temp file and rename, named {id}{ext}.
func (s *Service) Ingest(r io.Reader, filename, mediaType string) (*models.Document, error) {
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	if !acceptedMediaTypes[mediaType] {
		return nil, services.NewValidationError("mime_type", fmt.Sprintf("unsupported media type %q", mediaType))
	}

	id := models.NewDocumentID()
	ext := strings.ToLower(filepath.Ext(filename))
	finalPath := filepath.Join(s.uploadDir, id+ext)

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}
	tmp, err := os.CreateTemp(s.uploadDir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	// Copy one byte past the limit so an oversize stream is detectable
	// without reading it fully.
	written, err := io.Copy(tmp, io.LimitReader(r, s.maxSize+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("writing upload: %w", err)
	}
	if written > s.maxSize {
		return nil, services.NewValidationError("file", fmt.Sprintf("file exceeds maximum upload size of %d bytes", s.maxSize))
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return nil, fmt.Errorf("storing upload: %w", err)
	}

	doc := &models.Document{
		ID:         id,
		Filename:   filename,
		FilePath:   finalPath,
		FileSize:   written,
		MimeType:   mediaType,
		Status:     models.StatusUploaded,
		UploadedAt: time.Now().UTC(),
	}
	s.logger.Info("Document ingested",
		"document_id", id,
		"filename", filename,
		"size", written,
		"mime_type", mediaType)
	return doc, nil
}

// Delete removes a stored blob. Missing files are not an error.
func (s *Service) Delete(doc *models.Document) error {
	if doc.FilePath == "" {
		return nil
	}
	if err := os.Remove(doc.FilePath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
