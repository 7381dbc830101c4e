package ingestion

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthanethra/arthanethra/pkg/models"
	"github.com/arthanethra/arthanethra/pkg/services"
)

func TestIngestStoresBlob(t *testing.T) {
	dir := t.TempDir()
	svc := New(dir, 1<<20, nil)

	doc, err := svc.Ingest(bytes.NewReader([]byte("pdf content")), "q4.pdf", "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUploaded, doc.Status)
	assert.Equal(t, int64(11), doc.FileSize)
	assert.True(t, strings.HasPrefix(doc.ID, "doc_"))
	assert.Equal(t, filepath.Join(dir, doc.ID+".pdf"), doc.FilePath)

	data, err := os.ReadFile(doc.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "pdf content", string(data))

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestIngestRejectsUnsupportedMediaType(t *testing.T) {
	svc := New(t.TempDir(), 1<<20, nil)
	_, err := svc.Ingest(bytes.NewReader(nil), "m.mp4", "video/mp4")
	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))
}

func TestIngestSizeBoundary(t *testing.T) {
	svc := New(t.TempDir(), 100, nil)

	// Exactly at the limit passes.
	doc, err := svc.Ingest(bytes.NewReader(make([]byte, 100)), "a.pdf", "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(100), doc.FileSize)

	// One byte over fails.
	_, err = svc.Ingest(bytes.NewReader(make([]byte, 101)), "b.pdf", "application/pdf")
	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))
}

func TestIngestOversizeLeavesNoBlob(t *testing.T) {
	dir := t.TempDir()
	svc := New(dir, 10, nil)
	_, err := svc.Ingest(bytes.NewReader(make([]byte, 50)), "big.pdf", "application/pdf")
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDeleteMissingBlobIsNoError(t *testing.T) {
	svc := New(t.TempDir(), 1<<20, nil)
	doc := &models.Document{FilePath: filepath.Join(t.TempDir(), "gone.pdf")}
	assert.NoError(t, svc.Delete(doc))
}
