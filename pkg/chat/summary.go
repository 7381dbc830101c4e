package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/arthanethra/arthanethra/pkg/llm"
	"github.com/arthanethra/arthanethra/pkg/models"
)

const riskSummaryPrompt = `Analyze these financial risks and provide a concise executive summary:

%s

Focus on:
1. Most critical risks
2. Overall risk level
3. Key recommendations

Keep it under 200 words and professional.`

const (
	summaryMaxTokens   = 1024
	summaryTemperature = 0.5
)

// GenerateRiskSummary produces a short executive summary of detected risks.
func (a *Agent) GenerateRiskSummary(ctx context.Context, risks []*models.Risk) (string, error) {
	if len(risks) == 0 {
		return "No risks detected for this analysis.", nil
	}
	rows := make([]map[string]any, 0, len(risks))
	for _, r := range risks {
		rows = append(rows, map[string]any{
			"type":           r.Type,
			"severity":       string(r.Severity),
			"description":    r.Description,
			"score":          r.Score,
			"recommendation": r.Recommendation,
		})
	}
	payload, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding risks: %w", err)
	}
	resp, err := a.client.Generate(ctx, &llm.Request{
		ModelID: a.modelID,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Text: fmt.Sprintf(riskSummaryPrompt, payload)},
		},
		MaxTokens:   summaryMaxTokens,
		Temperature: summaryTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("generating risk summary: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
