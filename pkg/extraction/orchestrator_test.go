package extraction

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthanethra/arthanethra/pkg/models"
	"github.com/arthanethra/arthanethra/pkg/store"
)

type fakeADE struct {
	mu          sync.Mutex
	parseCalls  []string
	extractErr  error
	parseErr    error
	parseResult func(filename string) *ParseResult
}

func (f *fakeADE) Parse(_ context.Context, filename string, _ []byte) (*ParseResult, error) {
	f.mu.Lock()
	f.parseCalls = append(f.parseCalls, filename)
	f.mu.Unlock()
	if f.parseErr != nil {
		return nil, f.parseErr
	}
	if f.parseResult != nil {
		return f.parseResult(filename), nil
	}
	return &ParseResult{Markdown: "# " + filename, PageCount: 2, Confidence: 0.9}, nil
}

func (f *fakeADE) Extract(_ context.Context, _ string, _ map[string]any) (map[string]any, error) {
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	return map[string]any{"summary": "parsed"}, nil
}

func (f *fakeADE) CreateParseJob(context.Context, string, []byte) (string, error) {
	return "job-1", nil
}

func (f *fakeADE) GetParseJob(context.Context, string) (*ParseJob, error) {
	return &ParseJob{JobID: "job-1", Status: "completed", Result: &ParseResult{Markdown: "# big"}}, nil
}

type fixedSchema struct{}

func (fixedSchema) Synthesize(string) (map[string]any, string, error) {
	return map[string]any{"type": "object"}, "financial_basic", nil
}

func writeTestDoc(t *testing.T, name, content string) *models.Document {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return &models.Document{
		ID:       models.NewDocumentID(),
		Filename: name,
		FilePath: path,
		FileSize: int64(len(content)),
		MimeType: "application/pdf",
		Status:   models.StatusUploaded,
	}
}

func TestExtractSyncPath(t *testing.T) {
	ade := &fakeADE{}
	st := store.New(t.TempDir())
	o := New(Options{ADE: ade, Store: st, Schema: fixedSchema{}, AdaptiveSchema: true, SyncMaxBytes: 1 << 20})
	doc := writeTestDoc(t, "q4.pdf", "pdf bytes")

	out, err := o.Extract(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "# q4.pdf", out.Markdown)
	assert.Equal(t, 2, out.Metadata.TotalPages)
	assert.Equal(t, map[string]any{"summary": "parsed"}, out.StructuredExtraction)

	p := o.Progress(doc.ID)
	assert.Equal(t, Progress{Status: "completed", Total: 1, Completed: 1, Failed: 0}, p)

	jobs := st.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobCompleted, jobs[0].Status)
	assert.Equal(t, "financial_basic", jobs[0].SchemaLabel)
}

func TestExtractFailureDegradesToParseOnly(t *testing.T) {
	ade := &fakeADE{extractErr: errors.New("schema rejected")}
	o := New(Options{ADE: ade, Store: store.New(t.TempDir())})
	doc := writeTestDoc(t, "q4.pdf", "pdf bytes")

	out, err := o.Extract(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "# q4.pdf", out.Markdown)
	assert.Nil(t, out.StructuredExtraction)
}

func TestExtractParseFailureFailsDocument(t *testing.T) {
	ade := &fakeADE{parseErr: errors.New("connection refused")}
	st := store.New(t.TempDir())
	o := New(Options{ADE: ade, Store: st})
	doc := writeTestDoc(t, "q4.pdf", "pdf bytes")

	_, err := o.Extract(context.Background(), doc)
	require.Error(t, err)
	assert.Equal(t, "failed", o.Progress(doc.ID).Status)

	jobs := st.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobFailed, jobs[0].Status)
}

func writeTestZip(t *testing.T, members map[string]string) *models.Document {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bundle.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	for name, content := range members {
		member, err := w.Create(name)
		require.NoError(t, err)
		_, err = member.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	info, err := os.Stat(path)
	require.NoError(t, err)
	return &models.Document{
		ID:       models.NewDocumentID(),
		Filename: "bundle.zip",
		FilePath: path,
		FileSize: info.Size(),
		MimeType: "application/zip",
		Status:   models.StatusUploaded,
	}
}

func TestExtractZipFanOut(t *testing.T) {
	ade := &fakeADE{parseResult: func(filename string) *ParseResult {
		return &ParseResult{Markdown: "# " + filename, PageCount: 3, Confidence: 0.8}
	}}
	st := store.New(t.TempDir())
	o := New(Options{ADE: ade, Store: st})
	doc := writeTestZip(t, map[string]string{
		"a.pdf":      "one",
		"b.pdf":      "two",
		"c.pdf":      "three",
		"notes.txt":  "skipped",
		"nested.zip": "skipped",
	})

	out, err := o.Extract(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, 9, out.Metadata.TotalPages)
	assert.InDelta(t, 0.8, out.Metadata.ConfidenceScore, 1e-9)
	assert.Len(t, ade.parseCalls, 3)

	p := o.Progress(doc.ID)
	assert.Equal(t, 3, p.Total)
	assert.Equal(t, 3, p.Completed)
	assert.Equal(t, 0, p.Failed)

	jobs := st.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, 3, jobs[0].Total)
	assert.Equal(t, 3, jobs[0].Completed)
}

func TestExtractZipNoSupportedMembers(t *testing.T) {
	ade := &fakeADE{}
	o := New(Options{ADE: ade, Store: store.New(t.TempDir())})
	doc := writeTestZip(t, map[string]string{"readme.txt": "hello"})

	out, err := o.Extract(context.Background(), doc)
	require.NoError(t, err)
	assert.Empty(t, out.Entities)
	assert.Empty(t, out.Tables)
	assert.Equal(t, "completed", o.Progress(doc.ID).Status)
	assert.Empty(t, ade.parseCalls)
}

func TestProgressIdleForUnknownDocument(t *testing.T) {
	o := New(Options{ADE: &fakeADE{}})
	assert.Equal(t, Progress{Status: "idle"}, o.Progress("doc_missing"))
}

func TestAggregate(t *testing.T) {
	out := aggregate([]*models.ADEOutput{
		{Markdown: "a", Metadata: models.ADEMetadata{TotalPages: 2, ConfidenceScore: 0.8}},
		nil,
		{Markdown: "b", Metadata: models.ADEMetadata{TotalPages: 3, ConfidenceScore: 0.6}},
	})
	assert.Equal(t, "a\n\nb", out.Markdown)
	assert.Equal(t, 5, out.Metadata.TotalPages)
	assert.InDelta(t, 0.7, out.Metadata.ConfidenceScore, 1e-9)
}
