// Package pipeline coordinates the document processing stages: ingest,
// extract, normalize, index and risk detection. The coordinator owns every
// document status transition and publishes progress frames for streaming
// clients. Stages are keyed by document id and serialized per document.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/arthanethra/arthanethra/pkg/events"
	"github.com/arthanethra/arthanethra/pkg/indexer"
	"github.com/arthanethra/arthanethra/pkg/models"
	"github.com/arthanethra/arthanethra/pkg/services"
	"github.com/arthanethra/arthanethra/pkg/store"
)

// Ingestor accepts uploads and removes stored blobs.
type Ingestor interface {
	Ingest(r io.Reader, filename, mediaType string) (*models.Document, error)
	Delete(doc *models.Document) error
}

// Extractor produces the extraction record for a document.
type Extractor interface {
	Extract(ctx context.Context, doc *models.Document) (*models.ADEOutput, error)
}

// GraphBuilder turns an extraction record into a knowledge graph.
type GraphBuilder interface {
	Normalize(ctx context.Context, out *models.ADEOutput, documentID string) (*models.Graph, error)
}

// GraphIndexer pushes graphs and document text into the external indexes.
type GraphIndexer interface {
	IndexEntities(ctx context.Context, entities []*models.Entity) indexer.EntityStats
	IndexEdges(ctx context.Context, edges []*models.Edge) indexer.EdgeStats
	IndexDocumentText(ctx context.Context, documentID, markdown, filename string, entities []*models.Entity, totalPages int) indexer.ChunkStats
}

// RiskDetector runs risk passes over a graph.
type RiskDetector interface {
	Detect(ctx context.Context, graph *models.Graph) []*models.Risk
}

// IndexStats aggregates the per-target counts of one index run.
type IndexStats struct {
	Entities indexer.EntityStats `json:"entities"`
	Edges    indexer.EdgeStats   `json:"edges"`
	Chunks   indexer.ChunkStats  `json:"chunks"`
}

// Options wires the coordinator's collaborators. Broadcaster may be nil.
type Options struct {
	Store       *store.Store
	Ingestor    Ingestor
	Extractor   Extractor
	Builder     GraphBuilder
	Indexer     GraphIndexer
	Risks       RiskDetector
	Broadcaster *events.Broadcaster
	Logger      *slog.Logger
}

// Coordinator runs the pipeline stages.
type Coordinator struct {
	store       *store.Store
	ingestor    Ingestor
	extractor   Extractor
	builder     GraphBuilder
	indexer     GraphIndexer
	risks       RiskDetector
	broadcaster *events.Broadcaster
	logger      *slog.Logger

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex

	cacheMu     sync.Mutex
	indexedRuns map[string]IndexStats // graph_id -> stats of the last index run
}

// New builds a coordinator.
func New(opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:       opts.Store,
		ingestor:    opts.Ingestor,
		extractor:   opts.Extractor,
		builder:     opts.Builder,
		indexer:     opts.Indexer,
		risks:       opts.Risks,
		broadcaster: opts.Broadcaster,
		logger:      logger.With("component", "pipeline"),
		locks:       make(map[string]*sync.Mutex),
		indexedRuns: make(map[string]IndexStats),
	}
}

// documentLock serializes stage execution for one document.
func (c *Coordinator) documentLock(documentID string) *sync.Mutex {
	c.lockMu.Lock()
	defer c.lockMu.Unlock()
	mu, ok := c.locks[documentID]
	if !ok {
		mu = &sync.Mutex{}
		c.locks[documentID] = mu
	}
	return mu
}

func (c *Coordinator) publish(documentID string, status models.DocumentStatus, stage, message string, done bool) {
	if c.broadcaster == nil {
		return
	}
	c.broadcaster.Publish(events.Progress{
		DocumentID: documentID,
		Status:     status,
		Stage:      stage,
		Message:    message,
		Done:       done,
	})
}

func (c *Coordinator) publishFailure(documentID, stage string, err error) {
	if c.broadcaster == nil {
		return
	}
	c.broadcaster.Publish(events.Progress{
		DocumentID: documentID,
		Status:     models.StatusFailed,
		Stage:      stage,
		Error:      err.Error(),
		Done:       true,
	})
}

// advance moves the document status forward. Backward moves are skipped
// silently so a superseding normalize on an indexed document keeps the
// document's furthest status.
func (c *Coordinator) advance(documentID string, status models.DocumentStatus) *models.Document {
	doc, err := c.store.UpdateDocument(documentID, func(d *models.Document) error {
		if d.Status.CanTransition(status) {
			d.Status = status
			if status == models.StatusIndexed && d.ProcessedAt == nil {
				now := time.Now().UTC()
				d.ProcessedAt = &now
			}
		}
		return nil
	})
	if err != nil {
		return nil
	}
	return doc
}

// resumeFromFailure restores the stage's entry status on a failed document
// so the stage can re-run.
func (c *Coordinator) resumeFromFailure(documentID string, entry models.DocumentStatus) {
	_, _ = c.store.UpdateDocument(documentID, func(d *models.Document) error {
		if d.Status == models.StatusFailed {
			d.Status = entry
			d.ErrorMessage = ""
		}
		return nil
	})
}

// Ingest stores an upload and registers the document.
func (c *Coordinator) Ingest(r io.Reader, filename, mediaType string) (*models.Document, error) {
	doc, err := c.ingestor.Ingest(r, filename, mediaType)
	if err != nil {
		return nil, err
	}
	c.store.PutDocument(doc)
	c.logger.Info("document ingested", "document_id", doc.ID, "filename", doc.Filename, "size", doc.FileSize)
	c.publish(doc.ID, doc.Status, "ingest", "document uploaded", false)
	return doc, nil
}

// Extract runs remote extraction for a document. Re-invocation after a
// successful run returns the stored record.
func (c *Coordinator) Extract(ctx context.Context, documentID string) (*models.Document, error) {
	mu := c.documentLock(documentID)
	mu.Lock()
	defer mu.Unlock()

	doc, err := c.store.GetDocument(documentID)
	if err != nil {
		return nil, err
	}
	if doc.ADEOutput != nil && doc.Status.AtLeast(models.StatusExtracted) {
		return doc, nil
	}
	if doc.Status == models.StatusFailed {
		c.resumeFromFailure(documentID, models.StatusUploaded)
	}

	c.advance(documentID, models.StatusExtracting)
	c.publish(documentID, models.StatusExtracting, "extract", "extraction started", false)

	output, err := c.extractor.Extract(ctx, doc)
	if err != nil {
		c.logger.Error("extraction failed", "document_id", documentID, "error", err)
		c.store.MarkDocumentFailed(documentID, err.Error())
		c.publishFailure(documentID, "extract", err)
		return nil, fmt.Errorf("extracting document %s: %w", documentID, err)
	}

	doc, err = c.store.UpdateDocument(documentID, func(d *models.Document) error {
		d.ADEOutput = output
		d.TotalPages = output.Metadata.TotalPages
		d.ConfidenceScore = output.Metadata.ConfidenceScore
		d.ExtractionID = output.Metadata.ExtractionID
		if d.Status.CanTransition(models.StatusExtracted) {
			d.Status = models.StatusExtracted
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.publish(documentID, models.StatusExtracted, "extract", "extraction complete", false)
	return doc, nil
}

// Normalize builds a fresh graph from the extraction record and installs it,
// superseding any prior graphs for the document along with their risks.
// Unlike the other stages this always re-runs.
func (c *Coordinator) Normalize(ctx context.Context, documentID string) (*models.Graph, error) {
	mu := c.documentLock(documentID)
	mu.Lock()
	defer mu.Unlock()

	doc, err := c.store.GetDocument(documentID)
	if err != nil {
		return nil, err
	}
	if doc.ADEOutput == nil || !doc.Status.AtLeast(models.StatusExtracted) {
		return nil, fmt.Errorf("document %s is not extracted yet: %w", documentID, services.ErrInvalidInput)
	}
	if doc.Status == models.StatusFailed {
		c.resumeFromFailure(documentID, models.StatusExtracted)
	}

	c.advance(documentID, models.StatusNormalizing)
	c.publish(documentID, models.StatusNormalizing, "normalize", "building knowledge graph", false)

	graph, err := c.builder.Normalize(ctx, doc.ADEOutput, documentID)
	if err != nil {
		c.logger.Error("normalization failed", "document_id", documentID, "error", err)
		c.store.MarkDocumentFailed(documentID, err.Error())
		c.publishFailure(documentID, "normalize", err)
		return nil, fmt.Errorf("normalizing document %s: %w", documentID, err)
	}

	purged := c.store.SupersedeGraphs(documentID, graph)
	c.cacheMu.Lock()
	for _, id := range purged {
		delete(c.indexedRuns, id)
	}
	c.cacheMu.Unlock()
	if len(purged) > 0 {
		c.logger.Info("superseded prior graphs", "document_id", documentID, "purged", purged)
	}

	_, err = c.store.UpdateDocument(documentID, func(d *models.Document) error {
		d.GraphID = graph.GraphID
		d.EntitiesCount = len(graph.Entities)
		d.EdgesCount = len(graph.Edges)
		if d.Status.CanTransition(models.StatusNormalized) {
			d.Status = models.StatusNormalized
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.publish(documentID, models.StatusNormalized, "normalize",
		fmt.Sprintf("graph built with %d entities", len(graph.Entities)), false)
	return graph, nil
}

// Index pushes the document's current graph and text into the external
// indexes. Re-invocation for an already indexed graph returns the recorded
// stats without touching the stores.
func (c *Coordinator) Index(ctx context.Context, documentID string) (IndexStats, error) {
	mu := c.documentLock(documentID)
	mu.Lock()
	defer mu.Unlock()

	doc, err := c.store.GetDocument(documentID)
	if err != nil {
		return IndexStats{}, err
	}
	if doc.GraphID == "" || !doc.Status.AtLeast(models.StatusNormalized) {
		return IndexStats{}, fmt.Errorf("document %s has no graph to index: %w", documentID, services.ErrInvalidInput)
	}
	if doc.Status == models.StatusFailed {
		c.resumeFromFailure(documentID, models.StatusNormalized)
	}

	c.cacheMu.Lock()
	cached, ok := c.indexedRuns[doc.GraphID]
	c.cacheMu.Unlock()
	if ok && doc.Status.AtLeast(models.StatusIndexed) {
		return cached, nil
	}

	graph, err := c.store.GetGraph(doc.GraphID)
	if err != nil {
		return IndexStats{}, err
	}

	c.advance(documentID, models.StatusIndexing)
	c.publish(documentID, models.StatusIndexing, "index", "indexing graph", false)

	stats := IndexStats{
		Entities: c.indexer.IndexEntities(ctx, graph.Entities),
		Edges:    c.indexer.IndexEdges(ctx, graph.Edges),
	}
	if doc.ADEOutput != nil && doc.ADEOutput.Markdown != "" {
		stats.Chunks = c.indexer.IndexDocumentText(ctx, documentID, doc.ADEOutput.Markdown, doc.Filename, graph.Entities, doc.TotalPages)
	}

	c.cacheMu.Lock()
	c.indexedRuns[doc.GraphID] = stats
	c.cacheMu.Unlock()

	c.advance(documentID, models.StatusIndexed)
	c.publish(documentID, models.StatusIndexed, "index", "document indexed", true)
	return stats, nil
}

// DetectRisks runs risk detection over the document's current graph.
// Existing risks for the graph are returned as-is.
func (c *Coordinator) DetectRisks(ctx context.Context, documentID string) ([]*models.Risk, error) {
	doc, err := c.store.GetDocument(documentID)
	if err != nil {
		return nil, err
	}
	if doc.GraphID == "" {
		return nil, fmt.Errorf("document %s has no graph: %w", documentID, services.ErrInvalidInput)
	}
	if existing := c.store.RisksForGraph(doc.GraphID); len(existing) > 0 {
		return existing, nil
	}
	graph, err := c.store.GetGraph(doc.GraphID)
	if err != nil {
		return nil, err
	}

	risks := c.risks.Detect(ctx, graph)
	now := time.Now().UTC()
	for _, r := range risks {
		if r.DetectedAt.IsZero() {
			r.DetectedAt = now
		}
	}
	c.store.PutRisks(doc.GraphID, risks)
	c.logger.Info("risk detection stored", "document_id", documentID, "graph_id", doc.GraphID, "risks", len(risks))
	return risks, nil
}

// AnalyzeGraph re-runs risk detection for a graph, replacing any stored
// risks. Used when an analyst explicitly requests a fresh pass.
func (c *Coordinator) AnalyzeGraph(ctx context.Context, graphID string) ([]*models.Risk, error) {
	graph, err := c.store.GetGraph(graphID)
	if err != nil {
		return nil, err
	}
	risks := c.risks.Detect(ctx, graph)
	now := time.Now().UTC()
	for _, r := range risks {
		if r.DetectedAt.IsZero() {
			r.DetectedAt = now
		}
	}
	c.store.PutRisks(graphID, risks)
	c.logger.Info("risk analysis refreshed", "graph_id", graphID, "risks", len(risks))
	return risks, nil
}

// Process runs the full pipeline for an uploaded document. Stage failures
// stop the run; the failing stage has already recorded the error.
func (c *Coordinator) Process(ctx context.Context, documentID string) error {
	if _, err := c.Extract(ctx, documentID); err != nil {
		return err
	}
	if _, err := c.Normalize(ctx, documentID); err != nil {
		return err
	}
	if _, err := c.Index(ctx, documentID); err != nil {
		return err
	}
	if _, err := c.DetectRisks(ctx, documentID); err != nil {
		return err
	}
	return nil
}

// Delete removes the document, its blob, graphs, risks and progress state.
func (c *Coordinator) Delete(documentID string) error {
	doc, err := c.store.GetDocument(documentID)
	if err != nil {
		return err
	}
	if err := c.ingestor.Delete(doc); err != nil {
		c.logger.Warn("removing upload blob failed", "document_id", documentID, "error", err)
	}
	c.store.DeleteGraphsForDocument(documentID)
	if err := c.store.DeleteDocument(documentID); err != nil {
		return err
	}
	c.cacheMu.Lock()
	delete(c.indexedRuns, doc.GraphID)
	c.cacheMu.Unlock()
	if c.broadcaster != nil {
		c.broadcaster.Forget(documentID)
	}
	return nil
}
