package risk

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthanethra/arthanethra/pkg/llm"
	"github.com/arthanethra/arthanethra/pkg/models"
)

type fakeLLM struct {
	responses []*llm.Response
	errs      []error
	requests  []*llm.Request
}

func (f *fakeLLM) Generate(_ context.Context, req *llm.Request) (*llm.Response, error) {
	call := len(f.requests)
	f.requests = append(f.requests, req)
	if call < len(f.errs) && f.errs[call] != nil {
		return nil, f.errs[call]
	}
	if call < len(f.responses) {
		return f.responses[call], nil
	}
	return &llm.Response{Text: "[]"}, nil
}

func loanEntity(id, name string, properties map[string]any) *models.Entity {
	return &models.Entity{
		ID: id, Type: models.EntityLoan, Name: name,
		Properties: properties,
		Citations:  []models.Citation{{Page: 1, Section: "Loan Terms"}},
		DocumentID: "doc-1", GraphID: "graph-1",
	}
}

func testGraph(entities ...*models.Entity) *models.Graph {
	return &models.Graph{GraphID: "graph-1", DocumentID: "doc-1", Entities: entities}
}

func TestHighVariableRateRule(t *testing.T) {
	detector := New(nil, "", slog.Default())
	graph := testGraph(loanEntity("ent-1", "Loan L-100", map[string]any{"rate": 0.09}))

	risks := detector.Detect(context.Background(), graph)
	// The loan also has no clauses, so the covenant heuristic fires too.
	require.Len(t, risks, 2)

	r := risks[0]
	assert.Equal(t, "High Variable Rate", r.Type)
	assert.Equal(t, models.SeverityHigh, r.Severity)
	assert.Equal(t, "Variable-rate debt exceeds 8% threshold - Loan L-100", r.Description)
	assert.Equal(t, []string{"ent-1"}, r.AffectedEntityIDs)
	assert.Equal(t, 1.0, r.Score)
	assert.Equal(t, 0.08, r.Threshold)
	assert.Equal(t, 0.09, r.ActualValue)
	assert.Equal(t, "Consider hedging strategies or refinancing to fixed-rate debt", r.Recommendation)
	assert.Equal(t, "graph-1", r.GraphID)
	require.Len(t, r.Citations, 1)
	assert.Equal(t, "Loan Terms", r.Citations[0].Section)
}

func TestRuleThresholdBoundary(t *testing.T) {
	detector := New(nil, "", slog.Default())
	graph := testGraph(loanEntity("ent-1", "Loan A", map[string]any{"rate": 0.08}))

	risks := detector.Detect(context.Background(), graph)
	for _, r := range risks {
		assert.NotEqual(t, "High Variable Rate", r.Type)
	}
}

func TestNegativeCashFlowScore(t *testing.T) {
	detector := New(nil, "", slog.Default())
	metric := &models.Entity{
		ID: "ent-m", Type: models.EntityMetric, Name: "Operating Cash Flow",
		Properties: map[string]any{"cash_flow": -500000.0},
		DocumentID: "doc-1", GraphID: "graph-1",
	}
	risks := detector.Detect(context.Background(), testGraph(metric))

	require.Len(t, risks, 1)
	assert.Equal(t, "Negative Cash Flow", risks[0].Type)
	assert.Equal(t, models.SeverityHigh, risks[0].Severity)
	assert.InDelta(t, 0.5, risks[0].Score, 0.001)
}

func TestApproachingMaturityScore(t *testing.T) {
	detector := New(nil, "", slog.Default())
	graph := testGraph(
		loanEntity("ent-1", "Loan A", map[string]any{"days_to_maturity": 90.0}),
		&models.Entity{ID: "ent-c", Type: models.EntityClause, Name: "Covenants", GraphID: "graph-1"},
	)
	risks := detector.Detect(context.Background(), graph)

	require.Len(t, risks, 1)
	assert.Equal(t, "Approaching Maturity", risks[0].Type)
	assert.Equal(t, models.SeverityMedium, risks[0].Severity)
	assert.InDelta(t, (365.0-90.0)/365.0, risks[0].Score, 0.001)
}

func TestNumericPropertyFromString(t *testing.T) {
	detector := New(nil, "", slog.Default())
	metric := &models.Entity{
		ID: "ent-m", Type: models.EntityMetric, Name: "Leverage",
		Properties: map[string]any{"debt_ratio": "0.75"},
		GraphID:    "graph-1",
	}
	risks := detector.Detect(context.Background(), testGraph(metric))
	require.Len(t, risks, 1)
	assert.Equal(t, "High Debt Ratio", risks[0].Type)
	assert.Equal(t, 0.75, risks[0].ActualValue)
}

func TestMissingCovenants(t *testing.T) {
	detector := New(nil, "", slog.Default())
	graph := testGraph(
		loanEntity("ent-1", "Loan A", map[string]any{"principal": 1000000.0}),
		loanEntity("ent-2", "Loan B", map[string]any{"principal": 2000000.0}),
	)
	risks := detector.Detect(context.Background(), graph)

	require.Len(t, risks, 2)
	assert.Equal(t, "Missing Covenants", risks[0].Type)
	assert.Equal(t, "No covenant clauses found for loan: Loan A", risks[0].Description)
	assert.Equal(t, 0.7, risks[0].Score)
	assert.Equal(t, models.SeverityMedium, risks[0].Severity)
}

func TestMissingCovenantsSuppressedByClause(t *testing.T) {
	detector := New(nil, "", slog.Default())
	graph := testGraph(
		loanEntity("ent-1", "Loan A", nil),
		&models.Entity{ID: "ent-c", Type: models.EntityClause, Name: "Financial Covenants", GraphID: "graph-1"},
	)
	risks := detector.Detect(context.Background(), graph)
	assert.Empty(t, risks)
}

func TestSummary(t *testing.T) {
	risks := []*models.Risk{
		{Severity: models.SeverityHigh},
		{Severity: models.SeverityHigh},
		{Severity: models.SeverityMedium},
		{Severity: models.SeverityCritical},
	}
	summary := Summary(risks)
	assert.Equal(t, 4, summary["total_risks"])
	assert.Equal(t, 2, summary["high_severity"])
	assert.Equal(t, 1, summary["medium_severity"])
	assert.Equal(t, 0, summary["low_severity"])
	assert.Equal(t, 1, summary["critical_severity"])
}

func TestSummaryEmpty(t *testing.T) {
	summary := Summary(nil)
	assert.Equal(t, 0, summary["total_risks"])
	assert.Equal(t, 0, summary["high_severity"])
}
