package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/arthanethra/arthanethra/pkg/llm"
	"github.com/arthanethra/arthanethra/pkg/models"
)

const maxAnomalyEntities = 50

const anomalySystemPrompt = `You are a financial risk analyst. You are given a summary of entities extracted from a financial document. Identify risks and anomalies the entities suggest: unusual concentrations, missing information, aggressive terms, liquidity or solvency concerns.

Respond with ONLY a JSON array of risk objects:
[
  {
    "type": "Risk type label",
    "severity": "low|medium|high|critical",
    "description": "What the risk is and why",
    "affected_entities": ["Entity Name"],
    "score": 0.0,
    "recommendation": "What to do about it"
  }
]

Return [] if nothing stands out. Do not invent entities that are not in the summary.`

type anomalyCandidate struct {
	Type             string   `json:"type"`
	Severity         string   `json:"severity"`
	Description      string   `json:"description"`
	AffectedEntities []string `json:"affected_entities"`
	Score            float64  `json:"score"`
	Recommendation   string   `json:"recommendation"`
}

// detectAnomalies asks the model for risks the rule table cannot express.
// Failures degrade to no anomalies; the rule pass already ran.
func (d *Detector) detectAnomalies(ctx context.Context, graph *models.Graph) []*models.Risk {
	if d.client == nil || len(graph.Entities) == 0 {
		return nil
	}

	summary := entitySummary(graph.Entities)
	resp, err := d.client.Generate(ctx, &llm.Request{
		ModelID: d.modelID,
		System:  anomalySystemPrompt,
		Messages: []llm.Message{{
			Role: llm.RoleUser,
			Text: "Entities extracted from the document:\n\n" + summary,
		}},
		MaxTokens:   2048,
		Temperature: 0.2,
	})
	if err != nil {
		d.logger.Warn("Anomaly detection failed", "graph_id", graph.GraphID, "error", err)
		return nil
	}

	payload := llm.ExtractJSON(resp.Text)
	if payload == "" {
		return nil
	}
	var candidates []anomalyCandidate
	if err := json.Unmarshal([]byte(payload), &candidates); err != nil {
		d.logger.Warn("Anomaly response is not a risk array", "error", err)
		return nil
	}

	byName := map[string]*models.Entity{}
	for _, entity := range graph.Entities {
		byName[strings.ToLower(entity.Name)] = entity
	}

	var risks []*models.Risk
	for _, candidate := range candidates {
		if candidate.Type == "" || candidate.Description == "" {
			continue
		}
		risk := &models.Risk{
			ID:             models.NewRiskID(),
			Type:           candidate.Type,
			Severity:       parseSeverity(candidate.Severity),
			Description:    candidate.Description,
			Score:          clampScore(candidate.Score),
			Recommendation: candidate.Recommendation,
			DocumentID:     graph.DocumentID,
			GraphID:        graph.GraphID,
		}
		for _, name := range candidate.AffectedEntities {
			if entity, ok := byName[strings.ToLower(name)]; ok {
				risk.AffectedEntityIDs = append(risk.AffectedEntityIDs, entity.ID)
				// Citations come from the first few affected entities.
				if len(risk.Citations) < 3 && len(entity.Citations) > 0 {
					risk.Citations = append(risk.Citations, entity.Citations[0])
				}
			}
		}
		risks = append(risks, risk)
	}
	return risks
}

// entitySummary renders up to maxAnomalyEntities entities grouped by type,
// one line each with a few salient properties.
func entitySummary(entities []*models.Entity) string {
	byType := map[string][]*models.Entity{}
	for _, entity := range entities {
		byType[string(entity.Type)] = append(byType[string(entity.Type)], entity)
	}
	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)

	var b strings.Builder
	count := 0
	for _, t := range types {
		fmt.Fprintf(&b, "%s:\n", t)
		for _, entity := range byType[t] {
			if count >= maxAnomalyEntities {
				return b.String()
			}
			fmt.Fprintf(&b, "- %s%s\n", entity.Name, propertyDigest(entity.Properties))
			count++
		}
	}
	return b.String()
}

// propertyDigest renders a handful of properties as " (k=v, ...)".
func propertyDigest(properties map[string]any) string {
	if len(properties) == 0 {
		return ""
	}
	keys := make([]string, 0, len(properties))
	for k := range properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > 5 {
		keys = keys[:5]
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, properties[k]))
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

func parseSeverity(raw string) models.RiskSeverity {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "low":
		return models.SeverityLow
	case "high":
		return models.SeverityHigh
	case "critical":
		return models.SeverityCritical
	default:
		return models.SeverityMedium
	}
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
