package normalize

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthanethra/arthanethra/pkg/models"
)

type fakeDetector struct {
	detectCalls  int
	enhanceCalls int
	llmEdges     []*models.Edge
}

func (f *fakeDetector) Detect(_ context.Context, entities []*models.Entity, graphID string) []*models.Edge {
	f.detectCalls++
	return f.llmEdges
}

func (f *fakeDetector) Enhance(llmEdges, narrativeEdges []*models.Edge, entities []*models.Entity, graphID string) []*models.Edge {
	f.enhanceCalls++
	return llmEdges
}

type fakeNarrative struct {
	entities []*models.Entity
	edges    []*models.Edge
	calls    int
}

func (f *fakeNarrative) Extract(_ context.Context, markdown, documentID, graphID string) ([]*models.Entity, []*models.Edge, error) {
	f.calls++
	return f.entities, f.edges, nil
}

func schemaRecord(count int) *models.ADEOutput {
	out := &models.ADEOutput{Markdown: "Quarterly filing."}
	for i := 0; i < count; i++ {
		out.Entities = append(out.Entities, models.ExtractedEntry{
			Type:       "ORGANIZATION",
			Name:       fmt.Sprintf("Company %d", i),
			Properties: map[string]any{"index": i},
		})
	}
	return out
}

func TestNormalizeSchemaWins(t *testing.T) {
	detector := &fakeDetector{}
	n := New(detector, nil, nil)

	graph, err := n.Normalize(context.Background(), schemaRecord(25), "doc-1")
	require.NoError(t, err)
	assert.Len(t, graph.Entities, 25)
	assert.Equal(t, "schema", graph.Metadata["strategy"])
	assert.Equal(t, "doc-1", graph.DocumentID)
	assert.NotEmpty(t, graph.GraphID)
	for _, e := range graph.Entities {
		assert.Equal(t, models.EntityCompany, e.Type)
		assert.Equal(t, graph.GraphID, e.GraphID)
	}
	assert.Equal(t, 1, detector.detectCalls)
}

func TestNormalizeTypeMapping(t *testing.T) {
	out := &models.ADEOutput{
		Markdown: "x",
		Entities: []models.ExtractedEntry{
			{Type: "DEBT", Name: "Term Loan"},
			{Type: "financial_metric", Name: "Revenue"},
			{Type: "ALIEN_TYPE", Name: "Dropped"},
			{Type: "PERSON", Name: ""},
		},
	}
	n := New(&fakeDetector{}, nil, nil)
	graph, err := n.Normalize(context.Background(), out, "doc-1")
	require.NoError(t, err)

	require.Len(t, graph.Entities, 2)
	assert.Equal(t, models.EntityLoan, graph.Entities[0].Type)
	assert.Equal(t, models.EntityMetric, graph.Entities[1].Type)
}

func TestNormalizeSchemaMergesParserProperties(t *testing.T) {
	out := schemaRecord(20)
	out.Markdown = `<table>
<tr><th>Name</th><th>County</th><th>Assets</th></tr>
<tr><td>Company 3</td><td>Summit</td><td>900</td></tr>
</table>`

	n := New(&fakeDetector{}, nil, nil)
	graph, err := n.Normalize(context.Background(), out, "doc-1")
	require.NoError(t, err)
	require.Len(t, graph.Entities, 20)

	var merged *models.Entity
	for _, e := range graph.Entities {
		if e.Name == "Company 3" {
			merged = e
		}
	}
	require.NotNil(t, merged)
	assert.Equal(t, "Summit", merged.Properties["county"])
	assert.Equal(t, 900, merged.Properties["assets"])
	assert.Equal(t, 3, merged.Properties["index"], "existing properties stay")
}

func TestNormalizeKeyValuesAndDebtTables(t *testing.T) {
	out := &models.ADEOutput{
		Markdown:  "x",
		KeyValues: []models.KeyValue{{Key: "fiscal_year", Value: 2024, Page: 2}},
		Tables: []models.ExtractedTable{{
			ID:      "tbl-1",
			Page:    4,
			Caption: "Long-term debt schedule",
			Headers: []string{"Description", "Principal", "Interest Rate", "Maturity Date"},
			Rows:    [][]string{{"Series A Notes", "$10,000,000", "6.25%", "2030-01-01"}},
		}},
	}
	n := New(&fakeDetector{}, nil, nil)
	graph, err := n.Normalize(context.Background(), out, "doc-1")
	require.NoError(t, err)
	require.Len(t, graph.Entities, 2)

	kv := graph.Entities[0]
	assert.Equal(t, models.EntityMetric, kv.Type)
	assert.Equal(t, "fiscal_year", kv.Name)
	assert.Equal(t, 2024, kv.Properties["value"])

	loan := graph.Entities[1]
	assert.Equal(t, models.EntityLoan, loan.Type)
	assert.Equal(t, "Series A Notes", loan.Name)
	assert.Equal(t, 10000000.0, loan.Properties["principal"])
	assert.Equal(t, 6.25, loan.Properties["rate"])
	assert.Equal(t, "2030-01-01", loan.Properties["maturity"])
	assert.Equal(t, "tbl-1", loan.Citations[0].TableID)
}

func TestNormalizeSummaryFallback(t *testing.T) {
	out := &models.ADEOutput{
		Markdown: "x",
		StructuredExtraction: map[string]any{
			"summary": "The company refinanced $25 million of debt and holds $3.5 million cash.",
		},
	}
	n := New(&fakeDetector{}, nil, nil)
	graph, err := n.Normalize(context.Background(), out, "doc-1")
	require.NoError(t, err)

	require.Len(t, graph.Entities, 3)
	assert.Equal(t, "Document Summary", graph.Entities[0].Name)
	assert.Equal(t, "$25 million", graph.Entities[1].Name)
	assert.Equal(t, "$3.5 million", graph.Entities[2].Name)
}

func TestNormalizeSpecializedParserWins(t *testing.T) {
	markdown := `LOAN AGREEMENT
Loan #: LN-1
Lender: Big Bank Corp
Borrower: Small Shop LLC
Loan amount: $100,000 at an interest rate: 6.0% with a variable rate.
Principal and maturity terms: the monthly payment schedule runs through the maturity date.
`
	out := &models.ADEOutput{
		Markdown: markdown,
		Entities: []models.ExtractedEntry{{Type: "COMPANY", Name: "Small Shop LLC"}},
	}
	n := New(&fakeDetector{}, nil, nil)
	graph, err := n.Normalize(context.Background(), out, "doc-1")
	require.NoError(t, err)

	assert.Equal(t, "specialized", graph.Metadata["strategy"])
	assert.Greater(t, len(graph.Entities), 1)
}

func TestNormalizeNarrativeBranch(t *testing.T) {
	narrativeEntities := []*models.Entity{
		{ID: "ent-a", Type: models.EntityCompany, Name: "Acme", GraphID: "g"},
		{ID: "ent-b", Type: models.EntityCompany, Name: "Globex", GraphID: "g"},
	}
	narrativeEdges := []*models.Edge{
		{ID: "edge-1", Source: "ent-a", Target: "ent-b", Type: models.EdgeRelatedTo},
	}
	narrative := &fakeNarrative{entities: narrativeEntities, edges: narrativeEdges}
	detector := &fakeDetector{}
	n := New(detector, narrative, nil)

	out := &models.ADEOutput{
		Markdown: strings.Repeat("A long narrative about market conditions and counterparties. ", 200),
		Entities: []models.ExtractedEntry{
			{Type: "COMPANY", Name: "Acme"},
			{Type: "COMPANY", Name: "Globex"},
		},
	}
	graph, err := n.Normalize(context.Background(), out, "doc-1")
	require.NoError(t, err)

	assert.Equal(t, 1, narrative.calls)
	assert.Equal(t, "narrative", graph.Metadata["strategy"])
	assert.Len(t, graph.Entities, 2)
	require.Len(t, graph.Edges, 1)
	assert.Equal(t, "edge-1", graph.Edges[0].ID)
	assert.Equal(t, 0, detector.detectCalls, "narrative edges skip the LLM pass")
	assert.Equal(t, 1, detector.enhanceCalls, "heuristics still run")
}

func TestNormalizeShortDocumentSkipsNarrative(t *testing.T) {
	narrative := &fakeNarrative{}
	n := New(&fakeDetector{}, narrative, nil)

	out := &models.ADEOutput{Markdown: "short", Entities: []models.ExtractedEntry{{Type: "COMPANY", Name: "Acme"}}}
	_, err := n.Normalize(context.Background(), out, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 0, narrative.calls)
}

func TestNormalizeCountyEnrichment(t *testing.T) {
	out := &models.ADEOutput{
		Markdown: `<table>
<tr><th>City</th><th>County</th></tr>
<tr><td>Springfield</td><td>Clark</td></tr>
</table>`,
		Entities: []models.ExtractedEntry{{Type: "LOCATION", Name: "Springfield"}},
	}
	n := New(&fakeDetector{}, nil, nil)
	graph, err := n.Normalize(context.Background(), out, "doc-1")
	require.NoError(t, err)

	var springfield *models.Entity
	for _, e := range graph.Entities {
		if e.Name == "Springfield" && e.Type == models.EntityLocation {
			springfield = e
			break
		}
	}
	require.NotNil(t, springfield)
	assert.Equal(t, "Clark", springfield.Properties["county"])
}

func TestStructuralEdges(t *testing.T) {
	entities := []*models.Entity{
		{ID: "co", Type: models.EntityCompany},
		{ID: "sub", Type: models.EntitySubsidiary},
		{ID: "loan", Type: models.EntityLoan},
		{ID: "metric", Type: models.EntityMetric},
		{ID: "person", Type: models.EntityPerson},
	}
	edges := structuralEdges(entities, "graph-1")
	require.Len(t, edges, 3)

	types := map[string]models.EdgeType{}
	for _, e := range edges {
		assert.Equal(t, "co", e.Source)
		types[e.Target] = e.Type
	}
	assert.Equal(t, models.EdgeOwns, types["sub"])
	assert.Equal(t, models.EdgeHasLoan, types["loan"])
	assert.Equal(t, models.EdgeHasMetric, types["metric"])
}

func TestNormalizeNilOutput(t *testing.T) {
	n := New(&fakeDetector{}, nil, nil)
	_, err := n.Normalize(context.Background(), nil, "doc-1")
	assert.Error(t, err)
}
