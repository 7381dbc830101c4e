// Package risk detects financial risks in normalized knowledge graphs. A
// deterministic rule pass scans entity properties against thresholds; an LLM
// anomaly pass looks for patterns the rules cannot name. Each risk may carry
// a subgraph of the entities and relationships relevant to it.
package risk

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/arthanethra/arthanethra/pkg/llm"
	"github.com/arthanethra/arthanethra/pkg/models"
)

type rule struct {
	name           string
	description    string
	entityType     models.EntityType
	property       string
	threshold      float64
	severity       models.RiskSeverity
	recommendation string
	violated       func(value, threshold float64) bool
	score          func(value, threshold float64) float64
}

func exceedsThreshold(value, threshold float64) bool { return value > threshold }
func belowThreshold(value, threshold float64) bool   { return value < threshold }

func ratioScore(value, threshold float64) float64 {
	return math.Min(value/threshold, 1.0)
}

func magnitudeScore(value, _ float64) float64 {
	return math.Min(math.Abs(value)/1_000_000, 1.0)
}

func shortfallScore(value, threshold float64) float64 {
	return math.Min((threshold-value)/threshold, 1.0)
}

var rules = []rule{
	{
		name:           "high_variable_rate",
		description:    "Variable-rate debt exceeds 8% threshold",
		entityType:     models.EntityLoan,
		property:       "rate",
		threshold:      0.08,
		severity:       models.SeverityHigh,
		recommendation: "Consider hedging strategies or refinancing to fixed-rate debt",
		violated:       exceedsThreshold,
		score:          ratioScore,
	},
	{
		name:           "high_debt_ratio",
		description:    "Debt-to-equity ratio exceeds 0.6 threshold",
		entityType:     models.EntityMetric,
		property:       "debt_ratio",
		threshold:      0.6,
		severity:       models.SeverityMedium,
		recommendation: "Consider debt restructuring or equity raising",
		violated:       exceedsThreshold,
		score:          ratioScore,
	},
	{
		name:           "negative_cash_flow",
		description:    "Negative operating cash flow",
		entityType:     models.EntityMetric,
		property:       "cash_flow",
		threshold:      0.0,
		severity:       models.SeverityHigh,
		recommendation: "Review operational efficiency and cost structure",
		violated:       belowThreshold,
		score:          magnitudeScore,
	},
	{
		name:           "approaching_maturity",
		description:    "Debt maturity within 12 months",
		entityType:     models.EntityLoan,
		property:       "days_to_maturity",
		threshold:      365,
		severity:       models.SeverityMedium,
		recommendation: "Prepare refinancing plan or cash reserves",
		violated:       belowThreshold,
		score:          shortfallScore,
	},
}

// Detector runs the rule and anomaly passes.
type Detector struct {
	client  llm.Client
	modelID string
	logger  *slog.Logger
}

// New builds a detector. client may be nil, which disables the LLM anomaly
// pass and subgraph synthesis (one-hop fallback still applies).
func New(client llm.Client, modelID string, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{client: client, modelID: modelID, logger: logger}
}

// Detect runs every pass over the graph and attaches a subgraph to each
// detected risk.
func (d *Detector) Detect(ctx context.Context, graph *models.Graph) []*models.Risk {
	if graph == nil {
		return nil
	}
	d.logger.Info("Running risk detection", "graph_id", graph.GraphID, "entities", len(graph.Entities))

	risks := d.applyRules(graph)
	risks = append(risks, d.missingCovenants(graph)...)
	risks = append(risks, d.detectAnomalies(ctx, graph)...)

	for _, r := range risks {
		r.GraphData = d.synthesizeSubgraph(ctx, r, graph)
	}
	d.logger.Info("Risk detection complete", "graph_id", graph.GraphID, "risks", len(risks))
	return risks
}

func (d *Detector) applyRules(graph *models.Graph) []*models.Risk {
	var risks []*models.Risk
	for _, rl := range rules {
		for _, entity := range graph.Entities {
			if entity.Type != rl.entityType {
				continue
			}
			value, ok := numericProperty(entity.Properties, rl.property)
			if !ok || !rl.violated(value, rl.threshold) {
				continue
			}
			risks = append(risks, &models.Risk{
				ID:                models.NewRiskID(),
				Type:              titleWords(rl.name),
				Severity:          rl.severity,
				Description:       rl.description + " - " + entity.Name,
				AffectedEntityIDs: []string{entity.ID},
				Citations:         entity.Citations,
				Score:             rl.score(value, rl.threshold),
				Threshold:         rl.threshold,
				ActualValue:       value,
				Recommendation:    rl.recommendation,
				DocumentID:        entity.DocumentID,
				GraphID:           graph.GraphID,
			})
		}
	}
	return risks
}

// missingCovenants flags every loan in a graph that carries no clause
// entities at all.
func (d *Detector) missingCovenants(graph *models.Graph) []*models.Risk {
	hasClauses := false
	for _, entity := range graph.Entities {
		if entity.Type == models.EntityClause {
			hasClauses = true
			break
		}
	}
	if hasClauses {
		return nil
	}

	var risks []*models.Risk
	for _, entity := range graph.Entities {
		if entity.Type != models.EntityLoan {
			continue
		}
		risks = append(risks, &models.Risk{
			ID:                models.NewRiskID(),
			Type:              "Missing Covenants",
			Severity:          models.SeverityMedium,
			Description:       "No covenant clauses found for loan: " + entity.Name,
			AffectedEntityIDs: []string{entity.ID},
			Citations:         entity.Citations,
			Score:             0.7,
			Threshold:         1.0,
			ActualValue:       0.0,
			Recommendation:    "Review loan agreement for required covenant clauses",
			DocumentID:        entity.DocumentID,
			GraphID:           graph.GraphID,
		})
	}
	return risks
}

// Summary counts risks by severity.
func Summary(risks []*models.Risk) map[string]any {
	summary := map[string]any{
		"total_risks":       len(risks),
		"high_severity":     0,
		"medium_severity":   0,
		"low_severity":      0,
		"critical_severity": 0,
	}
	for _, r := range risks {
		switch r.Severity {
		case models.SeverityHigh:
			summary["high_severity"] = summary["high_severity"].(int) + 1
		case models.SeverityMedium:
			summary["medium_severity"] = summary["medium_severity"].(int) + 1
		case models.SeverityLow:
			summary["low_severity"] = summary["low_severity"].(int) + 1
		case models.SeverityCritical:
			summary["critical_severity"] = summary["critical_severity"].(int) + 1
		}
	}
	return summary
}

func numericProperty(properties map[string]any, key string) (float64, bool) {
	value, ok := properties[key]
	if !ok {
		return 0, false
	}
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func titleWords(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
