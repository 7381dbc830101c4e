// Package extraction orchestrates remote document extraction: routing uploads
// through the synchronous, job-polling, or ZIP fan-out paths of an
// ADE-compatible Parse/Extract API and tracking per-document progress.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"time"

	"github.com/arthanethra/arthanethra/pkg/models"
)

const (
	totalTimeout   = 480 * time.Second
	connectTimeout = 10 * time.Second
)

// ParseResult is the response of a Parse call: document content rendered to
// markdown plus whatever structure the service recognized along the way.
type ParseResult struct {
	Markdown     string                  `json:"markdown"`
	Entities     []models.ExtractedEntry `json:"entities"`
	Tables       []models.ExtractedTable `json:"tables"`
	KeyValues    []models.KeyValue       `json:"key_values"`
	PageCount    int                     `json:"page_count"`
	Confidence   float64                 `json:"confidence"`
	ExtractionID string                  `json:"extraction_id"`
}

// ParseJob is the status of an asynchronous parse job.
type ParseJob struct {
	JobID  string       `json:"job_id"`
	Status string       `json:"status"`
	Result *ParseResult `json:"result,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// ADEAPI is the remote extraction surface the orchestrator depends on.
type ADEAPI interface {
	Parse(ctx context.Context, filename string, data []byte) (*ParseResult, error)
	Extract(ctx context.Context, markdown string, schema map[string]any) (map[string]any, error)
	CreateParseJob(ctx context.Context, filename string, data []byte) (string, error)
	GetParseJob(ctx context.Context, jobID string) (*ParseJob, error)
}

// ADEClient talks to an ADE-compatible extraction endpoint over HTTP.
type ADEClient struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	logger  *slog.Logger
	policy  retryPolicy
}

// NewADEClient builds a client with the service's connect and total deadlines.
func NewADEClient(baseURL, apiKey string, logger *slog.Logger) *ADEClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &ADEClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		logger:  logger,
		policy:  defaultRetryPolicy,
		httpc: &http.Client{
			Timeout: totalTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			},
		},
	}
}

// Parse uploads a file synchronously and returns its parsed content.
func (c *ADEClient) Parse(ctx context.Context, filename string, data []byte) (*ParseResult, error) {
	return withRetry(ctx, c.logger, c.policy, "parse", func(ctx context.Context) (*ParseResult, error) {
		body, contentType, err := multipartFile(filename, data)
		if err != nil {
			return nil, err
		}
		var result ParseResult
		if err := c.do(ctx, http.MethodPost, "/parse", body, contentType, &result); err != nil {
			return nil, err
		}
		return &result, nil
	})
}

// Extract runs schema-guided extraction over parsed markdown.
func (c *ADEClient) Extract(ctx context.Context, markdown string, schema map[string]any) (map[string]any, error) {
	payload := map[string]any{
		"markdown": markdown,
		"schema":   schema,
	}
	return withRetry(ctx, c.logger, c.policy, "extract", func(ctx context.Context) (map[string]any, error) {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		var result struct {
			Extraction map[string]any `json:"extraction"`
		}
		if err := c.do(ctx, http.MethodPost, "/extract", bytes.NewReader(body), "application/json", &result); err != nil {
			return nil, err
		}
		return result.Extraction, nil
	})
}

// CreateParseJob submits an asynchronous parse job for large documents.
func (c *ADEClient) CreateParseJob(ctx context.Context, filename string, data []byte) (string, error) {
	return withRetry(ctx, c.logger, c.policy, "create_parse_job", func(ctx context.Context) (string, error) {
		body, contentType, err := multipartFile(filename, data)
		if err != nil {
			return "", err
		}
		var result ParseJob
		if err := c.do(ctx, http.MethodPost, "/parse/jobs", body, contentType, &result); err != nil {
			return "", err
		}
		if result.JobID == "" {
			return "", fmt.Errorf("parse job response missing job_id")
		}
		return result.JobID, nil
	})
}

// GetParseJob fetches the current state of a parse job.
func (c *ADEClient) GetParseJob(ctx context.Context, jobID string) (*ParseJob, error) {
	return withRetry(ctx, c.logger, c.policy, "get_parse_job", func(ctx context.Context) (*ParseJob, error) {
		var result ParseJob
		if err := c.do(ctx, http.MethodGet, "/parse/jobs/"+jobID, nil, "", &result); err != nil {
			return nil, err
		}
		return &result, nil
	})
}

func (c *ADEClient) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &statusError{code: resp.StatusCode, body: truncate(string(data), 200)}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding %s response: %w", path, err)
		}
	}
	return nil
}

func multipartFile(filename string, data []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
