package extraction

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arthanethra/arthanethra/pkg/models"
	"github.com/arthanethra/arthanethra/pkg/services"
	"github.com/arthanethra/arthanethra/pkg/store"
)

const (
	zipConcurrency   = 20
	pollInitialDelay = 1 * time.Second
	pollFactor       = 1.5
	pollMaxDelay     = 8 * time.Second
)

// archiveExtensions lists ZIP member types forwarded to the extraction
// service. Nested archives are skipped.
var memberExtensions = map[string]bool{
	".pdf": true, ".doc": true, ".docx": true,
	".ppt": true, ".pptx": true, ".odt": true, ".odp": true,
	".jpg": true, ".jpeg": true, ".png": true,
	".xls": true, ".xlsx": true, ".csv": true,
}

// Progress is the per-document extraction progress record exposed for
// polling and SSE.
type Progress struct {
	Status    string `json:"status"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
}

// SchemaSynthesizer turns parsed markdown into an extraction schema. The
// returned label names the schema family for the job record.
type SchemaSynthesizer interface {
	Synthesize(markdown string) (schema map[string]any, label string, err error)
}

// Options configures the orchestrator.
type Options struct {
	ADE            ADEAPI
	Store          *store.Store
	Schema         SchemaSynthesizer
	AdaptiveSchema bool
	SyncMaxBytes   int64
	PollMaxIters   int
	CacheDir       string

	// OnProgress is invoked after every progress update. Optional.
	OnProgress func(documentID string, p Progress)

	Logger *slog.Logger
}

// Orchestrator routes documents through the extraction service and tracks
// job and progress state.
type Orchestrator struct {
	ade        ADEAPI
	store      *store.Store
	schema     SchemaSynthesizer
	adaptive   bool
	syncMax    int64
	pollMax    int
	cacheDir   string
	onProgress func(string, Progress)
	logger     *slog.Logger

	mu       sync.RWMutex
	progress map[string]Progress
}

// New builds an extraction orchestrator.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pollMax := opts.PollMaxIters
	if pollMax <= 0 {
		pollMax = 60
	}
	syncMax := opts.SyncMaxBytes
	if syncMax <= 0 {
		syncMax = 15 * 1024 * 1024
	}
	return &Orchestrator{
		ade:        opts.ADE,
		store:      opts.Store,
		schema:     opts.Schema,
		adaptive:   opts.AdaptiveSchema,
		syncMax:    syncMax,
		pollMax:    pollMax,
		cacheDir:   opts.CacheDir,
		onProgress: opts.OnProgress,
		logger:     logger,
		progress:   make(map[string]Progress),
	}
}

// Progress returns a snapshot of the document's extraction progress.
func (o *Orchestrator) Progress(documentID string) Progress {
	o.mu.RLock()
	defer o.mu.RUnlock()
	p, ok := o.progress[documentID]
	if !ok {
		return Progress{Status: "idle"}
	}
	return p
}

func (o *Orchestrator) setProgress(documentID string, p Progress) {
	o.mu.Lock()
	o.progress[documentID] = p
	o.mu.Unlock()
	if o.onProgress != nil {
		o.onProgress(documentID, p)
	}
}

func (o *Orchestrator) bumpProgress(documentID string, completed, failed int) Progress {
	o.mu.Lock()
	p := o.progress[documentID]
	p.Completed += completed
	p.Failed += failed
	o.progress[documentID] = p
	o.mu.Unlock()
	if o.onProgress != nil {
		o.onProgress(documentID, p)
	}
	return p
}

// Extract produces the extraction record for a document, routing between the
// ZIP fan-out, synchronous, and job-polling paths by type and size. A job
// record is written to the store for the registry endpoints.
func (o *Orchestrator) Extract(ctx context.Context, doc *models.Document) (*models.ADEOutput, error) {
	job := &models.Job{
		ID:         models.NewJobID(),
		DocumentID: doc.ID,
		Status:     models.JobProcessing,
		Total:      1,
		StartedAt:  time.Now().UTC(),
	}

	isZip := strings.EqualFold(filepath.Ext(doc.Filename), ".zip") ||
		doc.MimeType == "application/zip" || doc.MimeType == "application/x-zip-compressed"

	var (
		output *models.ADEOutput
		err    error
	)
	if isZip {
		output, err = o.extractZip(ctx, doc, job)
	} else {
		o.setProgress(doc.ID, Progress{Status: "processing", Total: 1})
		if o.store != nil {
			o.store.PutJob(job)
		}
		output, err = o.extractSingle(ctx, doc, job)
		if err == nil {
			o.bumpProgress(doc.ID, 1, 0)
		} else {
			o.bumpProgress(doc.ID, 0, 1)
		}
	}

	o.finishJob(doc.ID, job, output, err)
	return output, err
}

func (o *Orchestrator) finishJob(documentID string, job *models.Job, output *models.ADEOutput, err error) {
	now := time.Now().UTC()
	job.FinishedAt = &now
	if err != nil {
		job.Status = models.JobFailed
		job.Error = err.Error()
		o.setStatusOnly(documentID, "failed")
	} else {
		job.Status = models.JobCompleted
		if path, werr := o.persistResult(job.ID, output); werr == nil {
			job.ResultPath = path
		} else {
			o.logger.Warn("Failed to persist extraction result", "job_id", job.ID, "error", werr)
		}
		o.setStatusOnly(documentID, "completed")
	}
	if o.store != nil {
		o.store.PutJob(job)
	}
}

func (o *Orchestrator) setStatusOnly(documentID, status string) {
	o.mu.Lock()
	p := o.progress[documentID]
	p.Status = status
	o.progress[documentID] = p
	o.mu.Unlock()
	if o.onProgress != nil {
		o.onProgress(documentID, p)
	}
}

// extractSingle handles one non-archive file: synchronous Parse below the
// size threshold, parse job with polling above it, then schema-guided
// Extract over the markdown.
func (o *Orchestrator) extractSingle(ctx context.Context, doc *models.Document, job *models.Job) (*models.ADEOutput, error) {
	data, err := os.ReadFile(doc.FilePath)
	if err != nil {
		return nil, fmt.Errorf("reading document blob: %w", err)
	}

	var parsed *ParseResult
	if int64(len(data)) <= o.syncMax {
		parsed, err = o.ade.Parse(ctx, doc.Filename, data)
	} else {
		parsed, err = o.parseViaJob(ctx, doc.Filename, data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", services.ErrTransient, err)
	}
	return o.extractFromParse(ctx, parsed, job), nil
}

// extractFromParse runs the Extract step over a parse result. Extract
// failures degrade to a parse-only record rather than failing the document.
func (o *Orchestrator) extractFromParse(ctx context.Context, parsed *ParseResult, job *models.Job) *models.ADEOutput {
	out := &models.ADEOutput{
		Markdown:  parsed.Markdown,
		Entities:  parsed.Entities,
		Tables:    parsed.Tables,
		KeyValues: parsed.KeyValues,
		Metadata: models.ADEMetadata{
			TotalPages:      parsed.PageCount,
			ConfidenceScore: parsed.Confidence,
			ExtractionID:    parsed.ExtractionID,
		},
	}

	schema, label := o.resolveSchema(parsed.Markdown)
	if job != nil && job.SchemaLabel == "" {
		job.SchemaLabel = label
	}

	structured, err := o.ade.Extract(ctx, parsed.Markdown, schema)
	if err != nil {
		o.logger.Warn("Extract step failed, keeping parse-only record",
			"schema", label,
			"error", err)
		return out
	}
	out.StructuredExtraction = structured
	return out
}

func (o *Orchestrator) resolveSchema(markdown string) (map[string]any, string) {
	if o.adaptive && o.schema != nil {
		schema, label, err := o.schema.Synthesize(markdown)
		if err == nil && schema != nil {
			return schema, label
		}
		if err != nil {
			o.logger.Warn("Schema synthesis failed, using default schema", "error", err)
		}
	}
	return defaultSchema(), "default"
}

// defaultSchema is the minimal fallback used when adaptive synthesis is off
// or fails.
func defaultSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"summary": map[string]any{"type": "string"},
		},
		"required": []string{"summary"},
	}
}

// parseViaJob submits an asynchronous parse job and polls it with backoff
// until completion or the iteration bound.
func (o *Orchestrator) parseViaJob(ctx context.Context, filename string, data []byte) (*ParseResult, error) {
	jobID, err := o.ade.CreateParseJob(ctx, filename, data)
	if err != nil {
		return nil, err
	}
	delay := pollInitialDelay
	for i := 0; i < o.pollMax; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * pollFactor)
		if delay > pollMaxDelay {
			delay = pollMaxDelay
		}
		job, err := o.ade.GetParseJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		switch job.Status {
		case "completed":
			if job.Result == nil {
				return nil, fmt.Errorf("parse job %s completed without a result", jobID)
			}
			return job.Result, nil
		case "failed":
			return nil, fmt.Errorf("parse job %s failed: %s", jobID, job.Error)
		}
	}
	return nil, fmt.Errorf("parse job %s did not complete after %d polls", jobID, o.pollMax)
}

// extractZip enumerates the archive, filters to supported member types, and
// fans out one Parse+Extract per member with bounded concurrency. Results
// are aggregated: entities, tables and key-values concatenated, page counts
// summed, confidences averaged.
func (o *Orchestrator) extractZip(ctx context.Context, doc *models.Document, job *models.Job) (*models.ADEOutput, error) {
	reader, err := zip.OpenReader(doc.FilePath)
	if err != nil {
		return nil, services.NewValidationError("file", fmt.Sprintf("invalid zip archive: %v", err))
	}
	defer reader.Close()

	var members []*zip.File
	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if memberExtensions[strings.ToLower(filepath.Ext(f.Name))] {
			members = append(members, f)
		}
	}

	job.Total = len(members)
	o.setProgress(doc.ID, Progress{Status: "processing", Total: len(members)})
	if o.store != nil {
		o.store.PutJob(job)
	}

	if len(members) == 0 {
		o.logger.Info("Archive has no supported members", "document_id", doc.ID)
		return &models.ADEOutput{Metadata: models.ADEMetadata{}}, nil
	}

	var (
		aggMu   sync.Mutex
		results = make([]*models.ADEOutput, len(members))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(zipConcurrency)
	for i, member := range members {
		g.Go(func() error {
			data, err := readZipMember(member)
			if err == nil {
				var parsed *ParseResult
				parsed, err = o.ade.Parse(gctx, filepath.Base(member.Name), data)
				if err == nil {
					out := o.extractFromParse(gctx, parsed, nil)
					aggMu.Lock()
					results[i] = out
					aggMu.Unlock()
					o.bumpProgress(doc.ID, 1, 0)
					return nil
				}
			}
			o.logger.Warn("Archive member extraction failed",
				"document_id", doc.ID,
				"member", member.Name,
				"error", err)
			o.bumpProgress(doc.ID, 0, 1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	job.Completed = o.Progress(doc.ID).Completed
	job.Failed = o.Progress(doc.ID).Failed
	return aggregate(results), nil
}

// aggregate merges per-member outputs into one record. Member order is
// preserved even though extraction completes out of order.
func aggregate(results []*models.ADEOutput) *models.ADEOutput {
	out := &models.ADEOutput{}
	var confidenceSum float64
	var confidenceN int
	var markdown []string
	for _, r := range results {
		if r == nil {
			continue
		}
		if r.Markdown != "" {
			markdown = append(markdown, r.Markdown)
		}
		out.Entities = append(out.Entities, r.Entities...)
		out.Tables = append(out.Tables, r.Tables...)
		out.KeyValues = append(out.KeyValues, r.KeyValues...)
		out.Metadata.TotalPages += r.Metadata.TotalPages
		if r.Metadata.ConfidenceScore > 0 {
			confidenceSum += r.Metadata.ConfidenceScore
			confidenceN++
		}
		if out.Metadata.ExtractionID == "" {
			out.Metadata.ExtractionID = r.Metadata.ExtractionID
		}
	}
	out.Markdown = strings.Join(markdown, "\n\n")
	if confidenceN > 0 {
		out.Metadata.ConfidenceScore = confidenceSum / float64(confidenceN)
	}
	return out
}

func readZipMember(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// persistResult writes the aggregated extraction to the cache directory so
// the job registry can serve it later.
func (o *Orchestrator) persistResult(jobID string, output *models.ADEOutput) (string, error) {
	if o.cacheDir == "" || output == nil {
		return "", nil
	}
	dir := filepath.Join(o.cacheDir, "results")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, jobID+".json")
	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
