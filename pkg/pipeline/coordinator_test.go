package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthanethra/arthanethra/pkg/events"
	"github.com/arthanethra/arthanethra/pkg/indexer"
	"github.com/arthanethra/arthanethra/pkg/models"
	"github.com/arthanethra/arthanethra/pkg/store"
)

type fakeIngestor struct {
	deleted []string
}

func (f *fakeIngestor) Ingest(r io.Reader, filename, mediaType string) (*models.Document, error) {
	data, _ := io.ReadAll(r)
	return &models.Document{
		ID:         models.NewDocumentID(),
		Filename:   filename,
		FileSize:   int64(len(data)),
		MimeType:   mediaType,
		Status:     models.StatusUploaded,
		UploadedAt: time.Now().UTC(),
	}, nil
}

func (f *fakeIngestor) Delete(doc *models.Document) error {
	f.deleted = append(f.deleted, doc.ID)
	return nil
}

type fakeExtractor struct {
	calls  int
	output *models.ADEOutput
	errs   []error
}

func (f *fakeExtractor) Extract(_ context.Context, _ *models.Document) (*models.ADEOutput, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return f.output, nil
}

type fakeBuilder struct {
	calls int
	err   error
}

func (f *fakeBuilder) Normalize(_ context.Context, _ *models.ADEOutput, documentID string) (*models.Graph, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &models.Graph{
		GraphID:    models.NewGraphID(),
		DocumentID: documentID,
		Entities: []*models.Entity{
			{ID: models.NewEntityID(), Type: models.EntityLoan, Name: "Series 2019 Loan", Properties: map[string]any{"rate": 0.09}, DocumentID: documentID},
		},
		Edges: []*models.Edge{
			{ID: models.NewEdgeID(), Type: models.EdgeHasLoan, Source: "a", Target: "b"},
		},
	}, nil
}

type fakeIndexer struct {
	entityCalls int
	chunkCalls  int
}

func (f *fakeIndexer) IndexEntities(_ context.Context, entities []*models.Entity) indexer.EntityStats {
	f.entityCalls++
	return indexer.EntityStats{VectorCount: len(entities), GraphCount: len(entities)}
}

func (f *fakeIndexer) IndexEdges(_ context.Context, edges []*models.Edge) indexer.EdgeStats {
	return indexer.EdgeStats{GraphCount: len(edges)}
}

func (f *fakeIndexer) IndexDocumentText(_ context.Context, _, _, _ string, _ []*models.Entity, _ int) indexer.ChunkStats {
	f.chunkCalls++
	return indexer.ChunkStats{ChunksIndexed: 2}
}

type fakeRisks struct {
	calls int
}

func (f *fakeRisks) Detect(_ context.Context, graph *models.Graph) []*models.Risk {
	f.calls++
	return []*models.Risk{
		{ID: models.NewRiskID(), Type: "High Variable Rate", Severity: models.SeverityHigh, GraphID: graph.GraphID},
	}
}

type fixture struct {
	coord       *Coordinator
	store       *store.Store
	ingestor    *fakeIngestor
	extractor   *fakeExtractor
	builder     *fakeBuilder
	indexer     *fakeIndexer
	risks       *fakeRisks
	broadcaster *events.Broadcaster
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:       store.New(t.TempDir()),
		ingestor:    &fakeIngestor{},
		extractor:   &fakeExtractor{output: sampleOutput()},
		builder:     &fakeBuilder{},
		indexer:     &fakeIndexer{},
		risks:       &fakeRisks{},
		broadcaster: events.NewBroadcaster(nil),
	}
	f.coord = New(Options{
		Store:       f.store,
		Ingestor:    f.ingestor,
		Extractor:   f.extractor,
		Builder:     f.builder,
		Indexer:     f.indexer,
		Risks:       f.risks,
		Broadcaster: f.broadcaster,
		Logger:      slog.Default(),
	})
	return f
}

func sampleOutput() *models.ADEOutput {
	return &models.ADEOutput{
		Markdown: "# Annual Report\n\nThe city carried long term debt.",
		Metadata: models.ADEMetadata{TotalPages: 3, ConfidenceScore: 0.8, ExtractionID: "ex-1"},
	}
}

func (f *fixture) upload(t *testing.T) *models.Document {
	t.Helper()
	doc, err := f.coord.Ingest(strings.NewReader("pdf bytes"), "report.pdf", "application/pdf")
	require.NoError(t, err)
	return doc
}

func TestIngestRegistersDocument(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t)

	stored, err := f.store.GetDocument(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUploaded, stored.Status)

	frame, ok := f.broadcaster.Latest(doc.ID)
	require.True(t, ok)
	assert.Equal(t, models.StatusUploaded, frame.Status)
	assert.Equal(t, "ingest", frame.Stage)
}

func TestExtractStoresOutput(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t)

	out, err := f.coord.Extract(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExtracted, out.Status)
	require.NotNil(t, out.ADEOutput)
	assert.Equal(t, 3, out.TotalPages)
	assert.Equal(t, "ex-1", out.ExtractionID)
	assert.InDelta(t, 0.8, out.ConfidenceScore, 0.001)
}

func TestExtractIdempotent(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t)

	_, err := f.coord.Extract(context.Background(), doc.ID)
	require.NoError(t, err)
	_, err = f.coord.Extract(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.extractor.calls)
}

func TestExtractFailureAndRetry(t *testing.T) {
	f := newFixture(t)
	f.extractor.errs = []error{errors.New("service unavailable")}
	doc := f.upload(t)

	_, err := f.coord.Extract(context.Background(), doc.ID)
	require.Error(t, err)

	failed, err := f.store.GetDocument(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, failed.Status)
	assert.Equal(t, "service unavailable", failed.ErrorMessage)

	frame, _ := f.broadcaster.Latest(doc.ID)
	assert.True(t, frame.Terminal())
	assert.Equal(t, "service unavailable", frame.Error)

	// Retry clears the failure and re-runs.
	out, err := f.coord.Extract(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExtracted, out.Status)
	assert.Empty(t, out.ErrorMessage)
	assert.Equal(t, 2, f.extractor.calls)
}

func TestNormalizeRequiresExtraction(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t)

	_, err := f.coord.Normalize(context.Background(), doc.ID)
	assert.Error(t, err)
}

func TestNormalizeSupersedesPriorGraph(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t)
	_, err := f.coord.Extract(context.Background(), doc.ID)
	require.NoError(t, err)

	first, err := f.coord.Normalize(context.Background(), doc.ID)
	require.NoError(t, err)
	f.store.PutRisks(first.GraphID, []*models.Risk{{ID: "risk-1", GraphID: first.GraphID}})

	second, err := f.coord.Normalize(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.GraphID, second.GraphID)

	_, err = f.store.GetGraph(first.GraphID)
	assert.Error(t, err)
	assert.Empty(t, f.store.RisksForGraph(first.GraphID))

	stored, err := f.store.GetDocument(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, second.GraphID, stored.GraphID)
	assert.Equal(t, 1, stored.EntitiesCount)
	assert.Equal(t, 1, stored.EdgesCount)
	assert.Equal(t, 2, f.builder.calls)
}

func TestIndexRunsAndCaches(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t)
	_, err := f.coord.Extract(context.Background(), doc.ID)
	require.NoError(t, err)
	_, err = f.coord.Normalize(context.Background(), doc.ID)
	require.NoError(t, err)

	stats, err := f.coord.Index(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entities.VectorCount)
	assert.Equal(t, 1, stats.Edges.GraphCount)
	assert.Equal(t, 2, stats.Chunks.ChunksIndexed)

	stored, err := f.store.GetDocument(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusIndexed, stored.Status)
	require.NotNil(t, stored.ProcessedAt)

	// Second invocation returns the recorded stats without re-indexing.
	again, err := f.coord.Index(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, stats, again)
	assert.Equal(t, 1, f.indexer.entityCalls)

	frame, _ := f.broadcaster.Latest(doc.ID)
	assert.True(t, frame.Done)
	assert.Equal(t, models.StatusIndexed, frame.Status)
}

func TestReindexAfterSupersede(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t)
	require.NoError(t, f.coord.Process(context.Background(), doc.ID))
	assert.Equal(t, 1, f.indexer.entityCalls)

	_, err := f.coord.Normalize(context.Background(), doc.ID)
	require.NoError(t, err)
	_, err = f.coord.Index(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, f.indexer.entityCalls)
}

func TestIndexRequiresGraph(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t)

	_, err := f.coord.Index(context.Background(), doc.ID)
	assert.Error(t, err)
}

func TestDetectRisksCaches(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t)
	require.NoError(t, f.coord.Process(context.Background(), doc.ID))
	assert.Equal(t, 1, f.risks.calls)

	risks, err := f.coord.DetectRisks(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Len(t, risks, 1)
	assert.False(t, risks[0].DetectedAt.IsZero())
	assert.Equal(t, 1, f.risks.calls)
}

func TestProcessRunsAllStages(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t)

	require.NoError(t, f.coord.Process(context.Background(), doc.ID))

	stored, err := f.store.GetDocument(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusIndexed, stored.Status)
	assert.Len(t, f.store.RisksForGraph(stored.GraphID), 1)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t)
	require.NoError(t, f.coord.Process(context.Background(), doc.ID))
	stored, _ := f.store.GetDocument(doc.ID)

	require.NoError(t, f.coord.Delete(doc.ID))

	_, err := f.store.GetDocument(doc.ID)
	assert.Error(t, err)
	_, err = f.store.GetGraph(stored.GraphID)
	assert.Error(t, err)
	assert.Equal(t, []string{doc.ID}, f.ingestor.deleted)
	_, ok := f.broadcaster.Latest(doc.ID)
	assert.False(t, ok)
}
