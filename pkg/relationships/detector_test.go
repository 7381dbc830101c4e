package relationships

import (
	"context"
	"fmt"
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
	idx := len(f.requests)
	f.requests = append(f.requests, req)
	if idx < len(f.errs) && f.errs[idx] != nil {
		return nil, f.errs[idx]
	}
	if idx < len(f.responses) {
		return f.responses[idx], nil
	}
	return &llm.Response{Text: "[]"}, nil
}

func entity(id string, entityType models.EntityType, props map[string]any) *models.Entity {
	return &models.Entity{ID: id, Type: entityType, Name: id, Properties: props, GraphID: "graph-1"}
}

func TestDetectNoEntitiesSkipsLLM(t *testing.T) {
	fake := &fakeLLM{}
	d := NewDetector(fake, nil)

	edges := d.Detect(context.Background(), nil, "graph-1")
	assert.Empty(t, edges)
	assert.Empty(t, fake.requests, "no model call expected for an empty graph")
}

func TestDetectFiltersAndMaps(t *testing.T) {
	response := `Here are the relationships:
[
  {"source_id": "ent-a", "target_id": "ent-b", "edge_type": "LOCATED_IN", "confidence": 0.95, "reasoning": "same county"},
  {"source_id": "ent-a", "target_id": "ent-b", "edge_type": "OWNER_OF", "confidence": 0.7, "reasoning": "alias mapped"},
  {"source_id": "ent-a", "target_id": "ent-b", "edge_type": "RELATED_TO", "confidence": 0.4, "reasoning": "below threshold"},
  {"source_id": "ent-a", "target_id": "ent-missing", "edge_type": "RELATED_TO", "confidence": 0.9, "reasoning": "unknown target"}
]`
	fake := &fakeLLM{responses: []*llm.Response{{Text: response}}}
	d := NewDetector(fake, nil)

	entities := []*models.Entity{
		entity("ent-a", models.EntityLocation, nil),
		entity("ent-b", models.EntityLocation, nil),
	}
	edges := d.Detect(context.Background(), entities, "graph-1")

	require.Len(t, edges, 2)
	assert.Equal(t, models.EdgeLocatedIn, edges[0].Type)
	assert.Equal(t, 0.95, edges[0].Properties["confidence"])
	assert.Equal(t, "llm", edges[0].Properties["detected_by"])
	assert.Equal(t, models.EdgeOwns, edges[1].Type)
	assert.Equal(t, "OWNER_OF", edges[1].Properties["raw_edge_type"])

	require.Len(t, fake.requests, 1)
	assert.Equal(t, 2048, fake.requests[0].MaxTokens)
	assert.Equal(t, float32(0.2), fake.requests[0].Temperature)
}

func TestDetectChunksEntities(t *testing.T) {
	fake := &fakeLLM{}
	d := NewDetector(fake, nil)

	entities := make([]*models.Entity, 45)
	for i := range entities {
		entities[i] = entity(fmt.Sprintf("ent-%d", i), models.EntityMetric, nil)
	}
	d.Detect(context.Background(), entities, "graph-1")
	assert.Len(t, fake.requests, 3)
}

func TestDetectSkipsFailedChunks(t *testing.T) {
	ok := `[{"source_id": "ent-20", "target_id": "ent-21", "edge_type": "RELATED_TO", "confidence": 0.8}]`
	fake := &fakeLLM{
		responses: []*llm.Response{nil, {Text: ok}},
		errs:      []error{assert.AnError, nil},
	}
	d := NewDetector(fake, nil)

	entities := make([]*models.Entity, 25)
	for i := range entities {
		entities[i] = entity(fmt.Sprintf("ent-%d", i), models.EntityMetric, nil)
	}
	edges := d.Detect(context.Background(), entities, "graph-1")
	assert.Len(t, edges, 1)
}

func TestDetectAcceptsWrappedObject(t *testing.T) {
	response := `{"relationships": [{"source_id": "ent-a", "target_id": "ent-b", "edge_type": "SUPPLIES", "confidence": 0.8}]}`
	fake := &fakeLLM{responses: []*llm.Response{{Text: response}}}
	d := NewDetector(fake, nil)

	entities := []*models.Entity{
		entity("ent-a", models.EntityVendor, nil),
		entity("ent-b", models.EntityCompany, nil),
	}
	edges := d.Detect(context.Background(), entities, "graph-1")
	require.Len(t, edges, 1)
	assert.Equal(t, models.EdgeSuppliesTo, edges[0].Type)
}

func TestNormalizeEdgeType(t *testing.T) {
	tests := []struct {
		in   string
		want models.EdgeType
	}{
		{"LOCATED_IN", models.EdgeLocatedIn},
		{"located in", models.EdgeLocatedIn},
		{"owner-of", models.EdgeOwns},
		{"ASSOCIATED_TO", models.EdgeAssociatedWith},
		{"SOMETHING_ELSE", models.EdgeRelatedTo},
		{"", models.EdgeRelatedTo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeEdgeType(tt.in), tt.in)
	}
}

func TestEnhanceMainCompanyMetrics(t *testing.T) {
	d := NewDetector(nil, nil)
	entities := []*models.Entity{
		entity("ent-co", models.EntityCompany, nil),
		entity("ent-co2", models.EntityCompany, nil),
		entity("ent-m1", models.EntityMetric, nil),
		entity("ent-m2", models.EntityMetric, nil),
	}
	edges := d.Enhance(nil, nil, entities, "graph-1")

	require.Len(t, edges, 2)
	for _, e := range edges {
		assert.Equal(t, "ent-co", e.Source)
		assert.Equal(t, models.EdgeHasMetric, e.Type)
		assert.Equal(t, "heuristic", e.Properties["detected_by"])
	}
}

func TestEnhanceSharedPropertyEdges(t *testing.T) {
	d := NewDetector(nil, nil)
	entities := []*models.Entity{
		entity("ent-a", models.EntityLocation, map[string]any{"county": "Summit"}),
		entity("ent-b", models.EntityLocation, map[string]any{"county": "Summit"}),
		entity("ent-c", models.EntityLocation, map[string]any{"county": "n/a"}),
		entity("ent-d", models.EntityLocation, map[string]any{"county": nil}),
	}
	edges := d.Enhance(nil, nil, entities, "graph-1")

	require.Len(t, edges, 1)
	edge := edges[0]
	assert.Equal(t, models.EdgeLocatedIn, edge.Type)
	assert.Equal(t, "shared_county", edge.Properties["relationship"])
	assert.Equal(t, "Summit", edge.Properties["county"])
	assert.Equal(t, 0.9, edge.Properties["confidence"])
}

func TestEnhanceSuppressesNarrativeDuplicates(t *testing.T) {
	d := NewDetector(nil, nil)
	entities := []*models.Entity{
		entity("ent-a", models.EntityLocation, map[string]any{"county": "Summit"}),
		entity("ent-b", models.EntityLocation, map[string]any{"county": "Summit"}),
	}
	narrative := []*models.Edge{{ID: "edge-n", Source: "ent-a", Target: "ent-b", Type: models.EdgeRelatedTo, GraphID: "graph-1"}}

	edges := d.Enhance(nil, narrative, entities, "graph-1")
	assert.Empty(t, edges, "narrative edge already connects the pair")
}

func TestDeduplicate(t *testing.T) {
	a := &models.Edge{ID: "1", Source: "x", Target: "y", Type: models.EdgeRelatedTo}
	b := &models.Edge{ID: "2", Source: "x", Target: "y", Type: models.EdgeRelatedTo}
	c := &models.Edge{ID: "3", Source: "y", Target: "x", Type: models.EdgeRelatedTo}

	out := Deduplicate([]*models.Edge{a, b, c})
	require.Len(t, out, 2)
	assert.Equal(t, "1", out[0].ID)
	assert.Equal(t, "3", out[1].ID)
}
