package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// ErrThrottled marks a provider rate limiting condition. The Bedrock client
// falls through its configured fallback models before surfacing it.
var ErrThrottled = errors.New("model request throttled")

// RuntimeClient mirrors the subset of the AWS Bedrock runtime client required
// by the adapter. It matches *bedrockruntime.Client so callers can pass either
// the real client or a fake in tests.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockClient implements Client on top of the Bedrock Converse API.
type BedrockClient struct {
	runtime   RuntimeClient
	modelID   string
	fallbacks []string
	logger    *slog.Logger
}

// NewBedrock builds a Converse-backed client. fallbacks lists model IDs tried
// in order when the primary model is throttled or unavailable.
func NewBedrock(runtime RuntimeClient, modelID string, fallbacks []string, logger *slog.Logger) (*BedrockClient, error) {
	if runtime == nil {
		return nil, errors.New("bedrock runtime client is required")
	}
	if modelID == "" {
		return nil, errors.New("model identifier is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BedrockClient{
		runtime:   runtime,
		modelID:   modelID,
		fallbacks: fallbacks,
		logger:    logger,
	}, nil
}

// Generate issues a completion request, walking the fallback model chain on
// throttling or service unavailability.
func (c *BedrockClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, errors.New("messages are required")
	}
	models := c.candidateModels(req.ModelID)
	var lastErr error
	for i, modelID := range models {
		input, err := buildConverseInput(req, modelID)
		if err != nil {
			return nil, err
		}
		output, err := c.runtime.Converse(ctx, input)
		if err == nil {
			return translateResponse(output, modelID)
		}
		if !isRetryableModelError(err) {
			return nil, fmt.Errorf("converse with %s: %w", modelID, err)
		}
		lastErr = err
		if i < len(models)-1 {
			c.logger.Warn("Model throttled, trying fallback",
				"model", modelID,
				"fallback", models[i+1],
				"error", err)
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrThrottled, lastErr)
}

func (c *BedrockClient) candidateModels(override string) []string {
	primary := c.modelID
	if override != "" {
		primary = override
	}
	models := []string{primary}
	for _, id := range c.fallbacks {
		if id != "" && id != primary {
			models = append(models, id)
		}
	}
	return models
}

func buildConverseInput(req *Request, modelID string) (*bedrockruntime.ConverseInput, error) {
	messages, err := encodeMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelID),
		Messages: messages,
	}
	if req.System != "" {
		input.System = []brtypes.SystemContentBlock{
			&brtypes.SystemContentBlockMemberText{Value: req.System},
		}
	}
	if cfg := encodeTools(req.Tools); cfg != nil {
		input.ToolConfig = cfg
	}
	if ic := inferenceConfig(req.MaxTokens, req.Temperature); ic != nil {
		input.InferenceConfig = ic
	}
	return input, nil
}

func encodeMessages(msgs []Message) ([]brtypes.Message, error) {
	conversation := make([]brtypes.Message, 0, len(msgs))
	for _, m := range msgs {
		blocks := make([]brtypes.ContentBlock, 0, 1+len(m.ToolCalls)+len(m.ToolResults))
		if m.Text != "" {
			blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: m.Text})
		}
		for _, tc := range m.ToolCalls {
			tb := brtypes.ToolUseBlock{
				Name:  aws.String(tc.Name),
				Input: rawToDocument(tc.Input),
			}
			if tc.ID != "" {
				tb.ToolUseId = aws.String(tc.ID)
			}
			blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{Value: tb})
		}
		for _, tr := range m.ToolResults {
			block := brtypes.ToolResultBlock{}
			if tr.ToolUseID != "" {
				block.ToolUseId = aws.String(tr.ToolUseID)
			}
			if s, ok := tr.Content.(string); ok {
				block.Content = []brtypes.ToolResultContentBlock{
					&brtypes.ToolResultContentBlockMemberText{Value: s},
				}
			} else {
				block.Content = []brtypes.ToolResultContentBlock{
					&brtypes.ToolResultContentBlockMemberJson{Value: lazyDocument(tr.Content)},
				}
			}
			blocks = append(blocks, &brtypes.ContentBlockMemberToolResult{Value: block})
		}
		if len(blocks) == 0 {
			continue
		}
		role := brtypes.ConversationRoleUser
		if m.Role == RoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		conversation = append(conversation, brtypes.Message{
			Role:    role,
			Content: blocks,
		})
	}
	if len(conversation) == 0 {
		return nil, errors.New("at least one user or assistant message is required")
	}
	return conversation, nil
}

func encodeTools(defs []ToolDefinition) *brtypes.ToolConfiguration {
	if len(defs) == 0 {
		return nil
	}
	toolList := make([]brtypes.Tool, 0, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			continue
		}
		spec := brtypes.ToolSpecification{
			Name:        aws.String(def.Name),
			Description: aws.String(def.Description),
			InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: schemaDocument(def.InputSchema)},
		}
		toolList = append(toolList, &brtypes.ToolMemberToolSpec{Value: spec})
	}
	if len(toolList) == 0 {
		return nil
	}
	return &brtypes.ToolConfiguration{Tools: toolList}
}

func inferenceConfig(maxTokens int, temp float32) *brtypes.InferenceConfiguration {
	var cfg brtypes.InferenceConfiguration
	if maxTokens > 0 {
		cfg.MaxTokens = aws.Int32(int32(maxTokens)) //nolint:gosec // AWS SDK requires int32
	}
	if temp > 0 {
		cfg.Temperature = aws.Float32(temp)
	}
	if cfg.MaxTokens == nil && cfg.Temperature == nil {
		return nil
	}
	return &cfg
}

func translateResponse(output *bedrockruntime.ConverseOutput, modelID string) (*Response, error) {
	if output == nil {
		return nil, errors.New("response is nil")
	}
	resp := &Response{ModelID: modelID, StopReason: string(output.StopReason)}
	if msg, ok := output.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			switch v := block.(type) {
			case *brtypes.ContentBlockMemberText:
				resp.Text += v.Value
			case *brtypes.ContentBlockMemberToolUse:
				call := ToolCall{Input: decodeDocument(v.Value.Input)}
				if v.Value.Name != nil {
					call.Name = *v.Value.Name
				}
				if v.Value.ToolUseId != nil {
					call.ID = *v.Value.ToolUseId
				}
				resp.ToolCalls = append(resp.ToolCalls, call)
			}
		}
	}
	if usage := output.Usage; usage != nil {
		resp.Usage = Usage{
			InputTokens:  int(ptrValue(usage.InputTokens)),
			OutputTokens: int(ptrValue(usage.OutputTokens)),
			TotalTokens:  int(ptrValue(usage.TotalTokens)),
		}
	}
	return resp, nil
}

// isRetryableModelError reports whether err warrants trying a fallback model:
// provider throttling codes, HTTP 429, or a 5xx from the service.
func isRetryableModelError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException", "ServiceUnavailableException", "ModelNotReadyException":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		status := respErr.HTTPStatusCode()
		return status == 429 || status >= 500
	}
	return false
}

func schemaDocument(schema map[string]any) document.Interface {
	if schema == nil {
		return lazyDocument(map[string]any{"type": "object"})
	}
	return lazyDocument(schema)
}

func rawToDocument(raw []byte) document.Interface {
	if len(raw) == 0 {
		return lazyDocument(map[string]any{})
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return lazyDocument(map[string]any{})
	}
	return lazyDocument(decoded)
}

func decodeDocument(doc document.Interface) json.RawMessage {
	if doc == nil {
		return nil
	}
	data, err := doc.MarshalSmithyDocument()
	if err != nil || len(data) == 0 {
		return nil
	}
	return json.RawMessage(data)
}

func lazyDocument(v any) document.Interface {
	return document.NewLazyDocument(&v)
}

func ptrValue[T ~int32 | ~int64](ptr *T) T {
	if ptr == nil {
		return 0
	}
	return *ptr
}
