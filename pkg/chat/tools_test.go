package chat

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthanethra/arthanethra/pkg/analytics"
	"github.com/arthanethra/arthanethra/pkg/indexer"
	"github.com/arthanethra/arthanethra/pkg/models"
)

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestGraphQueryTypeAndOperatorFilter(t *testing.T) {
	agent := newTestAgent(&fakeLLM{}, seedStore(t), &fakeSearcher{}, &fakeMetrics{})
	st := &runState{cc: Context{GraphID: "graph-1"}, surfaced: make(map[string]*models.Entity)}

	out := agent.graphQuery(context.Background(), st, mustJSON(t, map[string]any{
		"entity_types":     []string{"Location"},
		"property_filters": map[string]any{"accounts_payable": map[string]any{"$gt": 500000}},
	}))

	result := out.(map[string]any)
	assert.Equal(t, 1, result["count"])
	rows := result["entities"].([]map[string]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "Akron", rows[0]["name"])
	assert.Equal(t, "Location", rows[0]["type"])
}

func TestGraphQueryFuzzyPropertyName(t *testing.T) {
	s := seedStore(t)
	s.PutGraph(&models.Graph{
		GraphID: "graph-2",
		Entities: []*models.Entity{
			{
				ID:   "ent-city",
				Type: models.EntityLocation,
				Name: "Stow",
				Properties: map[string]any{
					"cash_and_cash_equivalents": 2500000.0,
				},
				GraphID: "graph-2",
			},
		},
	})
	agent := newTestAgent(&fakeLLM{}, s, &fakeSearcher{}, &fakeMetrics{})
	st := &runState{cc: Context{GraphID: "graph-2"}, surfaced: make(map[string]*models.Entity)}

	out := agent.graphQuery(context.Background(), st, mustJSON(t, map[string]any{
		"property_filters": map[string]any{"cash balance": map[string]any{"$gt": 1000000}},
	}))

	result := out.(map[string]any)
	assert.Equal(t, 1, result["count"])
}

func TestGraphQueryContextEntitySnapshot(t *testing.T) {
	agent := newTestAgent(&fakeLLM{}, seedStore(t), &fakeSearcher{}, &fakeMetrics{})
	snapshot := []*models.Entity{
		{ID: "snap-1", Type: models.EntityVendor, Name: "Acme Paving", Properties: map[string]any{"amount": 1200.0}},
	}
	st := &runState{cc: Context{Entities: snapshot}, surfaced: make(map[string]*models.Entity)}

	out := agent.graphQuery(context.Background(), st, mustJSON(t, map[string]any{
		"entity_types": []string{"Vendor"},
	}))

	result := out.(map[string]any)
	assert.Equal(t, 1, result["count"])
	assert.Len(t, st.surfaced, 1)
}

func TestGraphQuerySemanticFallback(t *testing.T) {
	search := &fakeSearcher{entityHits: []indexer.EntityHit{
		{ID: "ent-x", Name: "Summit Holdings", Type: "Company", Score: 0.91, GraphID: "graph-1"},
	}}
	agent := newTestAgent(&fakeLLM{}, seedStore(t), search, &fakeMetrics{})
	st := &runState{cc: Context{GraphID: "graph-1"}, surfaced: make(map[string]*models.Entity)}

	out := agent.graphQuery(context.Background(), st, mustJSON(t, map[string]any{
		"query_text":   "holding companies",
		"entity_types": []string{"Company"},
	}))

	result := out.(map[string]any)
	assert.Equal(t, 1, result["count"])
	rows := result["entities"].([]map[string]any)
	assert.Equal(t, "Summit Holdings", rows[0]["name"])
	assert.Contains(t, st.surfaced, "ent-x")
}

func TestDocumentSearch(t *testing.T) {
	search := &fakeSearcher{chunkHits: []indexer.ChunkHit{
		{ChunkID: "doc-1-chunk-3", DocumentID: "doc-1", Content: "debt service coverage", PageNumber: 14, Filename: "audit.pdf", Score: 0.88},
	}}
	agent := newTestAgent(&fakeLLM{}, seedStore(t), search, &fakeMetrics{})

	out := agent.documentSearch(context.Background(), mustJSON(t, map[string]any{"query": "coverage"}))

	result := out.(map[string]any)
	assert.Equal(t, 1, result["count"])
	rows := result["chunks"].([]map[string]any)
	assert.Equal(t, 14, rows[0]["page_number"])
	assert.Equal(t, "audit.pdf", rows[0]["filename"])
}

func TestDocumentSearchRequiresQuery(t *testing.T) {
	agent := newTestAgent(&fakeLLM{}, seedStore(t), &fakeSearcher{}, &fakeMetrics{})
	out := agent.documentSearch(context.Background(), json.RawMessage(`{}`))
	assert.Equal(t, "query is required", out.(map[string]any)["error"])
}

func TestDocLookupURL(t *testing.T) {
	agent := newTestAgent(&fakeLLM{}, seedStore(t), &fakeSearcher{}, &fakeMetrics{})

	out := agent.docLookup(mustJSON(t, map[string]any{"document_id": "doc-9", "page": 4}))
	result := out.(map[string]any)
	assert.Equal(t, "/api/v1/evidence/doc-9?page=4", result["url"])
	assert.Equal(t, 4, result["page"])

	out = agent.docLookup(mustJSON(t, map[string]any{"document_id": "doc-9"}))
	assert.Equal(t, "/api/v1/evidence/doc-9", out.(map[string]any)["url"])

	out = agent.docLookup(json.RawMessage(`{}`))
	assert.Equal(t, "document_id is required", out.(map[string]any)["error"])
}

func TestMetricComputeForwardsContext(t *testing.T) {
	metrics := &fakeMetrics{result: analytics.Result{"metric_name": "debt_risk", "count": 0}}
	agent := newTestAgent(&fakeLLM{}, seedStore(t), &fakeSearcher{}, metrics)
	cc := Context{GraphID: "graph-1", DocumentID: "doc-1"}

	out := agent.metricCompute(context.Background(), cc, mustJSON(t, map[string]any{
		"metric_name": "debt_risk",
		"params":      map[string]any{"debt_ratio_threshold": 0.8},
	}))

	assert.Equal(t, metrics.result, out)
	assert.Equal(t, "debt_risk", metrics.metricName)
	assert.Equal(t, 0.8, metrics.params["debt_ratio_threshold"])
	assert.Equal(t, "graph-1", metrics.callContext["graph_id"])
	assert.Equal(t, "doc-1", metrics.callContext["document_id"])
}

func TestGraphTraverseClampsDepth(t *testing.T) {
	search := &fakeSearcher{records: []indexer.EntityRecord{
		{ID: "ent-1", Name: "Akron", Type: "Location"},
	}}
	agent := newTestAgent(&fakeLLM{}, seedStore(t), search, &fakeMetrics{})

	out := agent.graphTraverse(context.Background(), mustJSON(t, map[string]any{
		"entity_name": "Akron",
		"depth":       9,
	}))

	assert.Equal(t, maxTraverseDepth, search.traverseDepth)
	assert.Equal(t, "Akron", search.traverseName)
	assert.Equal(t, 1, out.(map[string]any)["count"])
}

func TestGraphPathMissingEndpoint(t *testing.T) {
	search := &fakeSearcher{path: &indexer.PathResult{Found: false, Missing: []string{"Ghost Inc"}}}
	agent := newTestAgent(&fakeLLM{}, seedStore(t), search, &fakeMetrics{})

	out := agent.graphPath(context.Background(), mustJSON(t, map[string]any{
		"from_entity": "Akron",
		"to_entity":   "Ghost Inc",
	}))

	result := out.(map[string]any)
	assert.Equal(t, false, result["found"])
	assert.Equal(t, []string{"Ghost Inc"}, result["missing_entities"])
}

func TestGraphPathFound(t *testing.T) {
	search := &fakeSearcher{path: &indexer.PathResult{
		Found:         true,
		Nodes:         []string{"Akron", "Summit Holdings"},
		Relationships: []string{"OWES"},
		Length:        1,
	}}
	agent := newTestAgent(&fakeLLM{}, seedStore(t), search, &fakeMetrics{})

	out := agent.graphPath(context.Background(), mustJSON(t, map[string]any{
		"from_entity": "Akron",
		"to_entity":   "Summit Holdings",
	}))

	result := out.(map[string]any)
	assert.Equal(t, true, result["found"])
	assert.Equal(t, 1, result["length"])
	assert.NotContains(t, result, "missing_entities")
}

func TestGraphPatternDefaultMinimum(t *testing.T) {
	search := &fakeSearcher{records: []indexer.EntityRecord{
		{ID: "ent-1", Name: "Summit Holdings", Type: "Company", RelationshipCount: 7},
	}}
	agent := newTestAgent(&fakeLLM{}, seedStore(t), search, &fakeMetrics{})

	out := agent.graphPattern(context.Background(), json.RawMessage(`{}`))

	assert.Equal(t, defaultPatternMin, search.patternMin)
	rows := out.(map[string]any)["entities"].([]map[string]any)
	assert.Equal(t, 7, rows[0]["relationship_count"])
}

func TestNormalizeProperty(t *testing.T) {
	known := []string{"cash_and_cash_equivalents", "accounts_payable", "total_assets"}

	cases := []struct {
		in   string
		want string
	}{
		{"accounts_payable", "accounts_payable"},
		{"Accounts Payable", "accounts_payable"},
		{"cash balance", "cash_and_cash_equivalents"},
		{"total assets", "total_assets"},
		{"unrelated_field", "unrelated_field"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, normalizeProperty(tc.in, known), "input %q", tc.in)
	}
}

func TestMatchesCondition(t *testing.T) {
	assert.True(t, matchesCondition(600000.0, map[string]any{"$gt": 500000.0}))
	assert.False(t, matchesCondition(400000.0, map[string]any{"$gt": 500000.0}))
	assert.True(t, matchesCondition("1,200,000", map[string]any{"$gte": 1200000.0}))
	assert.True(t, matchesCondition(3.0, map[string]any{"$lt": 5.0, "$ne": 4.0}))
	assert.False(t, matchesCondition("n/a", map[string]any{"$gt": 0.0}))
	assert.False(t, matchesCondition(5.0, map[string]any{"$near": 5.0}))
	assert.True(t, matchesCondition("Akron", "akron"))
	assert.True(t, matchesCondition(42.0, 42))
	assert.False(t, matchesCondition("Akron", "Hudson"))
}
