package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// DefaultEmbedModelID is the Bedrock embedding model used when none is
// configured. Titan v2 returns 1024-dimension vectors.
const (
	DefaultEmbedModelID = "amazon.titan-embed-text-v2:0"
	EmbedDimensions     = 1024
)

// Embedder produces vector embeddings for raw text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedRuntime mirrors the subset of the Bedrock runtime client used for
// embeddings. It matches *bedrockruntime.Client.
type EmbedRuntime interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// TitanEmbedder implements Embedder on the Bedrock Titan text embedding API.
type TitanEmbedder struct {
	runtime EmbedRuntime
	modelID string
	logger  *slog.Logger
}

// NewTitanEmbedder builds an embedder. modelID defaults to
// DefaultEmbedModelID when empty.
func NewTitanEmbedder(runtime EmbedRuntime, modelID string, logger *slog.Logger) (*TitanEmbedder, error) {
	if runtime == nil {
		return nil, errors.New("bedrock runtime client is required")
	}
	if modelID == "" {
		modelID = DefaultEmbedModelID
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TitanEmbedder{runtime: runtime, modelID: modelID, logger: logger}, nil
}

type titanEmbedRequest struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions"`
	Normalize  bool   `json:"normalize"`
}

type titanEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed issues one InvokeModel call per text. The Titan embedding API does
// not accept batches.
func (e *TitanEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		body, err := json.Marshal(titanEmbedRequest{
			InputText:  text,
			Dimensions: EmbedDimensions,
			Normalize:  true,
		})
		if err != nil {
			return nil, fmt.Errorf("encode embed request: %w", err)
		}
		output, err := e.runtime.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(e.modelID),
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
			Body:        body,
		})
		if err != nil {
			return nil, fmt.Errorf("invoke %s: %w", e.modelID, err)
		}
		var resp titanEmbedResponse
		if err := json.Unmarshal(output.Body, &resp); err != nil {
			return nil, fmt.Errorf("decode embed response: %w", err)
		}
		if len(resp.Embedding) == 0 {
			return nil, errors.New("embedding response is empty")
		}
		vectors = append(vectors, resp.Embedding)
	}
	return vectors, nil
}
