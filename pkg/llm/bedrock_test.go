package llm

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRuntime struct {
	calls   []*bedrockruntime.ConverseInput
	outputs []*bedrockruntime.ConverseOutput
	errs    []error
}

func (f *fakeRuntime) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.calls = append(f.calls, params)
	i := len(f.calls) - 1
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	var out *bedrockruntime.ConverseOutput
	if i < len(f.outputs) {
		out = f.outputs[i]
	}
	return out, err
}

func textOutput(text string) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{
			Value: brtypes.Message{
				Role: brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: text},
				},
			},
		},
		StopReason: brtypes.StopReasonEndTurn,
	}
}

func TestBedrockGenerate(t *testing.T) {
	rt := &fakeRuntime{outputs: []*bedrockruntime.ConverseOutput{textOutput("hello")}}
	client, err := NewBedrock(rt, "model-a", nil, nil)
	require.NoError(t, err)

	resp, err := client.Generate(context.Background(), &Request{
		System:      "You are a test assistant.",
		Messages:    []Message{{Role: RoleUser, Text: "hi"}},
		MaxTokens:   256,
		Temperature: 0.3,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)
	assert.Equal(t, "model-a", resp.ModelID)
	assert.Equal(t, string(brtypes.StopReasonEndTurn), resp.StopReason)

	require.Len(t, rt.calls, 1)
	input := rt.calls[0]
	assert.Equal(t, "model-a", *input.ModelId)
	require.Len(t, input.System, 1)
	require.NotNil(t, input.InferenceConfig)
	assert.Equal(t, int32(256), *input.InferenceConfig.MaxTokens)
}

func TestBedrockGenerateRequiresMessages(t *testing.T) {
	client, err := NewBedrock(&fakeRuntime{}, "model-a", nil, nil)
	require.NoError(t, err)
	_, err = client.Generate(context.Background(), &Request{})
	assert.Error(t, err)
}

type throttleErr struct{}

func (throttleErr) Error() string                 { return "throttled" }
func (throttleErr) ErrorCode() string             { return "ThrottlingException" }
func (throttleErr) ErrorMessage() string          { return "throttled" }
func (throttleErr) ErrorFault() smithy.ErrorFault { return smithy.FaultServer }

func TestBedrockGenerateFallsBackOnThrottle(t *testing.T) {
	rt := &fakeRuntime{
		errs:    []error{throttleErr{}, nil},
		outputs: []*bedrockruntime.ConverseOutput{nil, textOutput("from fallback")},
	}
	client, err := NewBedrock(rt, "model-a", []string{"model-b"}, nil)
	require.NoError(t, err)

	resp, err := client.Generate(context.Background(), &Request{
		Messages: []Message{{Role: RoleUser, Text: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "from fallback", resp.Text)
	assert.Equal(t, "model-b", resp.ModelID)
	require.Len(t, rt.calls, 2)
	assert.Equal(t, "model-a", *rt.calls[0].ModelId)
	assert.Equal(t, "model-b", *rt.calls[1].ModelId)
}

func TestBedrockGenerateExhaustsFallbacks(t *testing.T) {
	rt := &fakeRuntime{errs: []error{throttleErr{}, throttleErr{}}}
	client, err := NewBedrock(rt, "model-a", []string{"model-b"}, nil)
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), &Request{
		Messages: []Message{{Role: RoleUser, Text: "hi"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrThrottled)
	assert.Len(t, rt.calls, 2)
}

func TestBedrockGenerateToolUse(t *testing.T) {
	out := &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{
			Value: brtypes.Message{
				Role: brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: "let me check"},
					&brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
						Name:      strPtr("graph_query"),
						ToolUseId: strPtr("t1"),
						Input:     lazyDocument(map[string]any{"entity_type": "Loan"}),
					}},
				},
			},
		},
		StopReason: brtypes.StopReasonToolUse,
	}
	rt := &fakeRuntime{outputs: []*bedrockruntime.ConverseOutput{out}}
	client, err := NewBedrock(rt, "model-a", nil, nil)
	require.NoError(t, err)

	resp, err := client.Generate(context.Background(), &Request{
		Messages: []Message{{Role: RoleUser, Text: "list loans"}},
		Tools: []ToolDefinition{{
			Name:        "graph_query",
			Description: "Query entities in the knowledge graph",
			InputSchema: map[string]any{"type": "object"},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "let me check", resp.Text)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "graph_query", resp.ToolCalls[0].Name)
	assert.Equal(t, "t1", resp.ToolCalls[0].ID)
	assert.JSONEq(t, `{"entity_type":"Loan"}`, string(resp.ToolCalls[0].Input))

	require.Len(t, rt.calls, 1)
	require.NotNil(t, rt.calls[0].ToolConfig)
	assert.Len(t, rt.calls[0].ToolConfig.Tools, 1)
}

func strPtr(s string) *string { return &s }
