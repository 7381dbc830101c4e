// Package relationships discovers edges between graph entities: a chunked
// LLM pass over entity summaries plus property-sharing heuristics.
package relationships

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/arthanethra/arthanethra/pkg/llm"
	"github.com/arthanethra/arthanethra/pkg/models"
)

const (
	defaultChunkSize = 20
	minConfidence    = 0.6
)

// edgeTypeAliases maps relation names the LLM tends to invent onto the
// closed edge-type set.
var edgeTypeAliases = map[string]models.EdgeType{
	"OWNER_OF":               models.EdgeOwns,
	"OWNED_BY":               models.EdgeSubsidiaryOf,
	"PARENT_OF":              models.EdgeOwns,
	"PARENT_COMPANY":         models.EdgeOwns,
	"CHILD_OF":               models.EdgeSubsidiaryOf,
	"SUBSIDIARY":             models.EdgeSubsidiaryOf,
	"PARTNER_OF":             models.EdgePartnersWith,
	"PARTNERSHIP_WITH":       models.EdgePartnersWith,
	"PROVIDES_SERVICES_TO":   models.EdgeProvidesServiceFor,
	"PROVIDES_SERVICE_TO":    models.EdgeProvidesServiceFor,
	"PROVIDES_SERVICE":       models.EdgeProvidesServiceFor,
	"PROVIDES_TO":            models.EdgeProvidesServiceFor,
	"SUPPLIES":               models.EdgeSuppliesTo,
	"SUPPLIES_FOR":           models.EdgeSuppliesTo,
	"SUPPLIER_OF":            models.EdgeSuppliesTo,
	"RECEIVES_SERVICE":       models.EdgeReceivesServiceFrom,
	"RECEIVES_SERVICES_FROM": models.EdgeReceivesServiceFrom,
	"CUSTOMER_OF":            models.EdgeReceivesServiceFrom,
	"CLIENT_OF":              models.EdgeReceivesServiceFrom,
	"INVESTED":               models.EdgeInvestedIn,
	"INVESTED_INTO":          models.EdgeInvestedIn,
	"INVESTOR_IN":            models.EdgeInvestedIn,
	"ACQUIRED_BY":            models.EdgeAcquired,
	"ACQUIRES":               models.EdgeAcquired,
	"GUARANTEED_BY":          models.EdgeGuarantees,
	"GUARANTEE_OF":           models.EdgeGuarantees,
	"GUARANTOR":              models.EdgeGuarantees,
	"LOANED_BY":              models.EdgeFinancedBy,
	"FINANCED":               models.EdgeFinancedBy,
	"BORROWS_FROM":           models.EdgeFinancedBy,
	"OWES_TO":                models.EdgeOwes,
	"OWES_TOWARDS":           models.EdgeOwes,
	"DEBT_TO":                models.EdgeOwes,
	"ISSUED_TO":              models.EdgeIssuedBy,
	"REGULATED":              models.EdgeRegulatedBy,
	"REPORTS_ABOUT":          models.EdgeReportsOn,
	"REFERENCED_IN":          models.EdgeMentionedIn,
	"MENTIONS":               models.EdgeReferences,
	"MENTIONED_BY":           models.EdgeReferences,
	"DOCUMENTS":              models.EdgeReportsOn,
	"CONNECTED_TO":           models.EdgeRelatedTo,
	"ASSOCIATED_TO":          models.EdgeAssociatedWith,
	"RELATES_TO":             models.EdgeRelatedTo,
	"LINKED_TO":              models.EdgeRelatedTo,
}

// groupingProperties are the fields whose shared values imply a relationship
// between two entities.
var groupingProperties = []string{
	"county", "state", "country", "region",
	"industry", "sector", "parent_company",
	"lender", "guarantor", "creditor",
	"party", "vendor", "supplier",
}

const detectionSystemPrompt = `You are a knowledge graph expert. Analyze entities and identify ALL meaningful relationships between them.

Your goal: Find EVERY relationship where entities are connected through:
1. **Shared Properties**: Entities with same property values (e.g., same county, same industry)
2. **Hierarchical Relationships**: Parent-child, part-of, located-in (city -> county -> state)
3. **Functional Relationships**: One entity serves/supplies/reports to another
4. **Organizational Relationships**: Ownership, subsidiary, partnership
5. **Financial Relationships**: Has loan, issued by, owes to
6. **Semantic Relationships**: ANY logical connection based on entity types and properties

Available relationship types:
- LOCATED_IN: Entity is in a location (city -> county -> state -> country)
- HAS_METRIC: Entity has associated metrics/measurements
- RELATED_TO: General semantic relationship (use for any meaningful connection)
- ISSUED_BY: Document/loan/debt issued by an entity
- HAS_LOAN: Entity has a loan
- OWNS: Owns a subsidiary/asset
- WORKS_FOR: Employment relationship
- SUBSIDIARY_OF: Is a subsidiary of
- REPORTS_TO: Hierarchical reporting
- SUPPLIES_TO: Vendor/supplier relationship
- MENTIONED_IN: Referenced in document/clause

**IMPORTANT INSTRUCTIONS**:
1. Look at entity NAMES and TYPES for obvious relationships
2. Compare all PROPERTIES - if entities share values, they're related
3. Infer hierarchical relationships from entity types (city LOCATED_IN county)
4. Create RELATED_TO for any meaningful connection not covered by specific types
5. Include ALL relationships - be comprehensive, not conservative
6. Minimum confidence: 0.6 (be inclusive, not restrictive)

Respond with JSON array:
[
  {
    "source_id": "entity_123",
    "target_id": "entity_456",
    "edge_type": "LOCATED_IN",
    "confidence": 0.95,
    "reasoning": "City of Akron is located in Summit County based on county property"
  }
]

GOAL: Maximum relationship discovery! Find EVERYTHING connected!`

// Detector infers edges between entities via chunked LLM calls and
// deterministic property heuristics.
type Detector struct {
	client    llm.Client
	chunkSize int
	logger    *slog.Logger
}

// NewDetector builds a relationship detector. client may be nil, in which
// case only heuristic edges are produced.
func NewDetector(client llm.Client, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		client:    client,
		chunkSize: defaultChunkSize,
		logger:    logger.With("component", "relationship_detector"),
	}
}

// Detect runs the chunked LLM pass. Zero entities short-circuit without any
// model call; failed chunks are skipped so partial results still land.
func (d *Detector) Detect(ctx context.Context, entities []*models.Entity, graphID string) []*models.Edge {
	if len(entities) == 0 || d.client == nil {
		return nil
	}
	known := make(map[string]bool, len(entities))
	for _, e := range entities {
		known[e.ID] = true
	}

	var edges []*models.Edge
	chunks := chunkEntities(entities, d.chunkSize)
	d.logger.Info("detecting relationships", "chunks", len(chunks), "entities", len(entities))
	for i, chunk := range chunks {
		if ctx.Err() != nil {
			break
		}
		chunkEdges, err := d.detectChunk(ctx, chunk, known, graphID)
		if err != nil {
			d.logger.Warn("relationship chunk failed", "chunk", i+1, "error", err)
			continue
		}
		edges = append(edges, chunkEdges...)
	}
	return Deduplicate(edges)
}

type relationCandidate struct {
	SourceID   string  `json:"source_id"`
	TargetID   string  `json:"target_id"`
	EdgeType   string  `json:"edge_type"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

func (d *Detector) detectChunk(ctx context.Context, chunk []*models.Entity, known map[string]bool, graphID string) ([]*models.Edge, error) {
	type entityDescription struct {
		ID         string         `json:"id"`
		Name       string         `json:"name"`
		Type       string         `json:"type"`
		Properties map[string]any `json:"properties"`
	}
	descriptions := make([]entityDescription, len(chunk))
	for i, e := range chunk {
		descriptions[i] = entityDescription{
			ID:         e.ID,
			Name:       e.Name,
			Type:       string(e.Type),
			Properties: e.Properties,
		}
	}
	payload, err := json.MarshalIndent(descriptions, "", "  ")
	if err != nil {
		return nil, err
	}

	resp, err := d.client.Generate(ctx, &llm.Request{
		System: detectionSystemPrompt,
		Messages: []llm.Message{{
			Role: llm.RoleUser,
			Text: "Analyze these entities and identify relationships between them:\n\n" + string(payload) + "\n\nProvide relationships in JSON format.",
		}},
		MaxTokens:   2048,
		Temperature: 0.2,
	})
	if err != nil {
		return nil, err
	}

	candidates, err := parseRelations(resp.Text)
	if err != nil {
		return nil, err
	}

	var edges []*models.Edge
	for _, rel := range candidates {
		if rel.Confidence == 0 {
			rel.Confidence = 0.8
		}
		if rel.Confidence < minConfidence {
			continue
		}
		if !known[rel.SourceID] || !known[rel.TargetID] || rel.SourceID == rel.TargetID {
			continue
		}
		edges = append(edges, &models.Edge{
			ID:      models.NewEdgeID(),
			Source:  rel.SourceID,
			Target:  rel.TargetID,
			Type:    NormalizeEdgeType(rel.EdgeType),
			GraphID: graphID,
			Properties: map[string]any{
				"confidence":    rel.Confidence,
				"reasoning":     rel.Reasoning,
				"detected_by":   "llm",
				"raw_edge_type": rel.EdgeType,
			},
		})
	}
	return edges, nil
}

// parseRelations accepts either a bare JSON array or an object wrapping a
// relationships array.
func parseRelations(text string) ([]relationCandidate, error) {
	raw := llm.ExtractJSON(text)
	if raw == "" {
		return nil, fmt.Errorf("no JSON payload in model response")
	}
	var list []relationCandidate
	if err := json.Unmarshal([]byte(raw), &list); err == nil {
		return list, nil
	}
	var wrapper struct {
		Relationships []relationCandidate `json:"relationships"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapper); err != nil {
		return nil, fmt.Errorf("decode relationships: %w", err)
	}
	return wrapper.Relationships, nil
}

// NormalizeEdgeType maps a raw relation name onto the closed edge-type set,
// falling back to RELATED_TO.
func NormalizeEdgeType(raw string) models.EdgeType {
	key := strings.ToUpper(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "-", "_")
	key = strings.ReplaceAll(key, " ", "_")
	if key == "" {
		return models.EdgeRelatedTo
	}
	if t := models.EdgeType(key); t.IsValid() {
		return t
	}
	if t, ok := edgeTypeAliases[key]; ok {
		return t
	}
	return models.EdgeRelatedTo
}

// Enhance layers heuristic edges over the LLM findings: the first company
// gets HAS_METRIC links to every metric, and entities sharing a grouping
// property value are linked pairwise. narrativeEdges only suppress
// duplicates; they are not returned.
func (d *Detector) Enhance(llmEdges, narrativeEdges []*models.Edge, entities []*models.Entity, graphID string) []*models.Edge {
	var heuristic []*models.Edge

	var mainCompany *models.Entity
	for _, e := range entities {
		if e.Type == models.EntityCompany {
			mainCompany = e
			break
		}
	}
	if mainCompany != nil {
		for _, e := range entities {
			if e.Type != models.EntityMetric {
				continue
			}
			if hasEdge(llmEdges, mainCompany.ID, e.ID, models.EdgeHasMetric) {
				continue
			}
			heuristic = append(heuristic, &models.Edge{
				ID:         models.NewEdgeID(),
				Source:     mainCompany.ID,
				Target:     e.ID,
				Type:       models.EdgeHasMetric,
				GraphID:    graphID,
				Properties: map[string]any{"detected_by": "heuristic"},
			})
		}
	}

	suppress := make([]*models.Edge, 0, len(llmEdges)+len(heuristic)+len(narrativeEdges))
	suppress = append(suppress, llmEdges...)
	suppress = append(suppress, heuristic...)
	suppress = append(suppress, narrativeEdges...)
	propertyEdges := sharedPropertyEdges(entities, suppress, graphID)
	if len(propertyEdges) > 0 {
		d.logger.Info("added property-based relationships", "count", len(propertyEdges))
	}
	heuristic = append(heuristic, propertyEdges...)

	return Deduplicate(append(append([]*models.Edge{}, llmEdges...), heuristic...))
}

// sharedPropertyEdges links every pair of entities that carry the same
// non-trivial value for a grouping property. County groupings become
// LOCATED_IN; everything else is RELATED_TO.
func sharedPropertyEdges(entities []*models.Entity, existing []*models.Edge, graphID string) []*models.Edge {
	connected := make(map[string]bool, len(existing)*2)
	link := func(a, b string) string { return a + "|" + b }
	for _, e := range existing {
		connected[link(e.Source, e.Target)] = true
		connected[link(e.Target, e.Source)] = true
	}

	var edges []*models.Edge
	for _, prop := range groupingProperties {
		groups := make(map[string][]*models.Entity)
		for _, e := range entities {
			value := propertyGroupValue(e.Properties, prop)
			if value == "" {
				continue
			}
			groups[value] = append(groups[value], e)
		}
		for value, group := range groups {
			if len(group) < 2 {
				continue
			}
			for i, source := range group {
				for _, target := range group[i+1:] {
					if connected[link(source.ID, target.ID)] {
						continue
					}
					edgeType := models.EdgeRelatedTo
					if prop == "county" {
						edgeType = models.EdgeLocatedIn
					}
					edges = append(edges, &models.Edge{
						ID:      models.NewEdgeID(),
						Source:  source.ID,
						Target:  target.ID,
						Type:    edgeType,
						GraphID: graphID,
						Properties: map[string]any{
							"detected_by":  "heuristic",
							"relationship": "shared_" + prop,
							prop:           value,
							"confidence":   0.9,
							"reasoning":    fmt.Sprintf("Both entities share %s: %s", prop, value),
						},
					})
					connected[link(source.ID, target.ID)] = true
					connected[link(target.ID, source.ID)] = true
				}
			}
		}
	}
	return edges
}

// propertyGroupValue returns the entity's value for prop as a comparable
// string, or "" when the value is missing or a null-like placeholder.
func propertyGroupValue(properties map[string]any, prop string) string {
	v, ok := properties[prop]
	if !ok || v == nil {
		return ""
	}
	s := strings.TrimSpace(fmt.Sprintf("%v", v))
	switch strings.ToLower(s) {
	case "", "null", "none", "0", "n/a":
		return ""
	}
	return s
}

func hasEdge(edges []*models.Edge, source, target string, edgeType models.EdgeType) bool {
	for _, e := range edges {
		if e.Source == source && e.Target == target && e.Type == edgeType {
			return true
		}
	}
	return false
}

// Deduplicate keeps the first edge per (source, target, type) triple.
func Deduplicate(edges []*models.Edge) []*models.Edge {
	seen := make(map[string]bool, len(edges))
	out := make([]*models.Edge, 0, len(edges))
	for _, e := range edges {
		if seen[e.Key()] {
			continue
		}
		seen[e.Key()] = true
		out = append(out, e)
	}
	return out
}

func chunkEntities(entities []*models.Entity, size int) [][]*models.Entity {
	var chunks [][]*models.Entity
	for i := 0; i < len(entities); i += size {
		end := i + size
		if end > len(entities) {
			end = len(entities)
		}
		chunks = append(chunks, entities[i:end])
	}
	return chunks
}
