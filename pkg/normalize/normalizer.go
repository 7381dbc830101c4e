// Package normalize converts extraction records into knowledge graphs. A
// cascade of strategies (schema decode, deterministic parsers, narrative
// extraction) competes per document; the richest result wins.
package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/arthanethra/arthanethra/pkg/models"
	"github.com/arthanethra/arthanethra/pkg/parsers"
	"github.com/arthanethra/arthanethra/pkg/schema"
)

const (
	// Schema extraction with at least this many entities wins outright.
	schemaKeepThreshold = 20
	// Below this entity count a long markdown falls through to narrative
	// extraction.
	narrativeFallbackMin      = 5
	narrativeMarkdownMinChars = 10000
)

// entityTypeMapping decodes raw extraction type labels into the closed
// entity-type set. Unmapped labels are dropped.
var entityTypeMapping = map[string]models.EntityType{
	"ORGANIZATION":     models.EntityCompany,
	"COMPANY":          models.EntityCompany,
	"SUBSIDIARY":       models.EntitySubsidiary,
	"LOAN":             models.EntityLoan,
	"DEBT":             models.EntityLoan,
	"INVOICE":          models.EntityInvoice,
	"METRIC":           models.EntityMetric,
	"FINANCIAL_METRIC": models.EntityMetric,
	"CONTRACT":         models.EntityClause,
	"CLAUSE":           models.EntityClause,
	"PERSON":           models.EntityPerson,
	"LOCATION":         models.EntityLocation,
	"VENDOR":           models.EntityVendor,
}

// EdgeDetector is the relationship-detection surface the normalizer drives.
type EdgeDetector interface {
	Detect(ctx context.Context, entities []*models.Entity, graphID string) []*models.Edge
	Enhance(llmEdges, narrativeEdges []*models.Edge, entities []*models.Entity, graphID string) []*models.Edge
}

// NarrativeExtractor is the LLM-backed narrative parser surface.
type NarrativeExtractor interface {
	Extract(ctx context.Context, markdown, documentID, graphID string) ([]*models.Entity, []*models.Edge, error)
}

// Normalizer turns one document's extraction record into a graph.
type Normalizer struct {
	detector  EdgeDetector
	narrative NarrativeExtractor
	logger    *slog.Logger
}

// New builds a normalizer. narrative may be nil; the pattern-mode parser then
// serves the narrative branch without inferred edges.
func New(detector EdgeDetector, narrative NarrativeExtractor, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{detector: detector, narrative: narrative, logger: logger.With("component", "normalizer")}
}

// Normalize runs the cascade and edge assembly, returning a fresh graph for
// the document. The caller installs it (superseding prior graphs).
func (n *Normalizer) Normalize(ctx context.Context, out *models.ADEOutput, documentID string) (*models.Graph, error) {
	if out == nil {
		return nil, fmt.Errorf("document %s has no extraction output", documentID)
	}
	graphID := models.NewGraphID()
	n.logger.Info("normalizing extraction", "document_id", documentID, "graph_id", graphID)

	schemaSet := n.schemaEntities(out, documentID, graphID)
	tableSet := parsers.ParseTables(out.Markdown, documentID, graphID)
	counties := buildCountyLookup(out.Markdown)

	var selected []*models.Entity
	var narrativeEdges []*models.Edge
	strategy := ""

	switch {
	case len(schemaSet) >= schemaKeepThreshold:
		selected = mergeProperties(schemaSet, tableSet)
		strategy = "schema"
	default:
		detection := schema.DetectDocumentType(out.Markdown)
		specialized := runSpecializedParser(detection.Type, out.Markdown, documentID, graphID)
		selected, strategy = bestOf(schemaSet, specialized, tableSet)
		n.logger.Info("cascade selection", "document_type", detection.Type, "strategy", strategy, "entities", len(selected))
	}

	if len(selected) < narrativeFallbackMin && len(out.Markdown) > narrativeMarkdownMinChars {
		entities, edges := n.runNarrative(ctx, out.Markdown, documentID, graphID)
		if len(entities) > 0 {
			selected = entities
			narrativeEdges = edges
			strategy = "narrative"
		}
	}

	enrichCounties(selected, counties)

	edges := n.assembleEdges(ctx, selected, narrativeEdges, graphID)
	n.logger.Info("normalized graph", "entities", len(selected), "edges", len(edges), "strategy", strategy)

	return &models.Graph{
		GraphID:    graphID,
		DocumentID: documentID,
		Entities:   selected,
		Edges:      edges,
		Metadata:   map[string]any{"strategy": strategy},
	}, nil
}

// schemaEntities decodes the extraction record: typed entities through the
// fixed mapping, key-value pairs as metrics, debt-schedule tables as loans.
// A record carrying only a summary yields fallback metrics from its text.
func (n *Normalizer) schemaEntities(out *models.ADEOutput, documentID, graphID string) []*models.Entity {
	var entities []*models.Entity

	for _, raw := range out.Entities {
		entityType, ok := entityTypeMapping[strings.ToUpper(strings.TrimSpace(raw.Type))]
		if !ok {
			continue
		}
		if raw.Name == "" {
			continue
		}
		props := raw.Properties
		if props == nil {
			props = make(map[string]any)
		}
		entities = append(entities, &models.Entity{
			ID:         models.NewEntityID(),
			Type:       entityType,
			Name:       raw.Name,
			Properties: props,
			Citations:  raw.Citations,
			DocumentID: documentID,
			GraphID:    graphID,
		})
	}

	for _, kv := range out.KeyValues {
		if kv.Key == "" || kv.Value == nil {
			continue
		}
		entities = append(entities, &models.Entity{
			ID:         models.NewEntityID(),
			Type:       models.EntityMetric,
			Name:       kv.Key,
			Properties: map[string]any{"value": kv.Value},
			Citations:  []models.Citation{{Page: kv.Page, Section: "Key Values"}},
			DocumentID: documentID,
			GraphID:    graphID,
		})
	}

	for _, table := range out.Tables {
		entities = append(entities, loansFromDebtTable(table, documentID, graphID)...)
	}

	if len(entities) == 0 {
		entities = summaryFallback(out, documentID, graphID)
	}
	return entities
}

// loansFromDebtTable lifts loan entities out of debt-schedule tables.
func loansFromDebtTable(table models.ExtractedTable, documentID, graphID string) []*models.Entity {
	if !strings.Contains(strings.ToLower(table.Caption), "debt") {
		return nil
	}
	col := func(names ...string) int {
		for i, h := range table.Headers {
			lowered := strings.ToLower(h)
			for _, name := range names {
				if strings.Contains(lowered, name) {
					return i
				}
			}
		}
		return -1
	}
	descIdx := col("description", "name")
	principalIdx := col("principal", "amount")
	rateIdx := col("rate", "interest")
	maturityIdx := col("maturity", "due")

	cell := func(row []string, idx int) string {
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var entities []*models.Entity
	for _, row := range table.Rows {
		name := cell(row, descIdx)
		if name == "" {
			name = "Unknown Loan"
		}
		props := map[string]any{}
		if v := cell(row, principalIdx); v != "" {
			props["principal"] = coerceNumeric(v)
		}
		if v := cell(row, rateIdx); v != "" {
			props["rate"] = coerceNumeric(v)
		}
		if v := cell(row, maturityIdx); v != "" {
			props["maturity"] = v
		}
		entities = append(entities, &models.Entity{
			ID:         models.NewEntityID(),
			Type:       models.EntityLoan,
			Name:       name,
			Properties: props,
			Citations:  []models.Citation{{Page: table.Page, TableID: table.ID}},
			DocumentID: documentID,
			GraphID:    graphID,
		})
	}
	return entities
}

var summaryAmountPattern = regexp.MustCompile(`\$\s*[\d,]+(?:\.\d{1,2})?(?:\s*(?:million|billion|thousand))?`)

// summaryFallback synthesizes metric entities from the summary text of a
// record that carried no structured content.
func summaryFallback(out *models.ADEOutput, documentID, graphID string) []*models.Entity {
	summary, _ := out.StructuredExtraction["summary"].(string)
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return nil
	}
	entities := []*models.Entity{{
		ID:         models.NewEntityID(),
		Type:       models.EntityMetric,
		Name:       "Document Summary",
		Properties: map[string]any{"summary": summary, "source": "summary_fallback"},
		Citations:  []models.Citation{{Page: 1, Section: "Summary"}},
		DocumentID: documentID,
		GraphID:    graphID,
	}}
	seen := make(map[string]bool)
	for _, amount := range summaryAmountPattern.FindAllString(summary, -1) {
		amount = strings.TrimSpace(amount)
		if seen[amount] {
			continue
		}
		seen[amount] = true
		entities = append(entities, &models.Entity{
			ID:         models.NewEntityID(),
			Type:       models.EntityMetric,
			Name:       amount,
			Properties: map[string]any{"source": "summary_fallback"},
			Citations:  []models.Citation{{Page: 1, Section: "Summary"}},
			DocumentID: documentID,
			GraphID:    graphID,
		})
	}
	return entities
}

// mergeProperties fills gaps in the kept set from same-named candidates.
func mergeProperties(kept, candidates []*models.Entity) []*models.Entity {
	byName := make(map[string]*models.Entity, len(candidates))
	for _, c := range candidates {
		key := strings.ToLower(c.Name)
		if _, ok := byName[key]; !ok {
			byName[key] = c
		}
	}
	for _, e := range kept {
		c, ok := byName[strings.ToLower(e.Name)]
		if !ok {
			continue
		}
		for k, v := range c.Properties {
			if cur, exists := e.Properties[k]; !exists || cur == nil || cur == "" {
				e.Properties[k] = v
			}
		}
	}
	return kept
}

func runSpecializedParser(docType, markdown, documentID, graphID string) []*models.Entity {
	switch docType {
	case "invoice":
		return parsers.ParseInvoice(markdown, documentID, graphID)
	case "contract":
		return parsers.ParseContract(markdown, documentID, graphID)
	case "loan_document":
		return parsers.ParseLoan(markdown, documentID, graphID)
	case "receipt":
		return parsers.ParseReceipt(markdown, documentID, graphID)
	case "email":
		return parsers.ParseEmail(markdown, documentID, graphID)
	default:
		return nil
	}
}

func bestOf(schemaSet, specialized, tableSet []*models.Entity) ([]*models.Entity, string) {
	best, strategy := schemaSet, "schema"
	if len(specialized) > len(best) {
		best, strategy = specialized, "specialized"
	}
	if len(tableSet) > len(best) {
		best, strategy = tableSet, "table"
	}
	return best, strategy
}

func (n *Normalizer) runNarrative(ctx context.Context, markdown, documentID, graphID string) ([]*models.Entity, []*models.Edge) {
	if n.narrative != nil {
		entities, edges, err := n.narrative.Extract(ctx, markdown, documentID, graphID)
		if err == nil {
			return entities, edges
		}
		if err == context.Canceled || err == context.DeadlineExceeded {
			return entities, edges
		}
		n.logger.Warn("narrative extraction failed, using pattern mode", "error", err)
	}
	return parsers.ParseNarrative(markdown, documentID, graphID), nil
}

// buildCountyLookup scans markdown tables for a county column and maps each
// row's name to its county.
func buildCountyLookup(markdown string) map[string]string {
	lookup := make(map[string]string)
	for _, t := range parsers.ExtractHTMLTables(markdown) {
		if len(t.Rows) < 2 {
			continue
		}
		countyIdx := -1
		for i, h := range t.Rows[0] {
			if strings.Contains(strings.ToLower(h), "county") {
				countyIdx = i
				break
			}
		}
		if countyIdx <= 0 {
			continue
		}
		for _, row := range t.Rows[1:] {
			if countyIdx >= len(row) || row[0] == "" {
				continue
			}
			county := strings.TrimSpace(row[countyIdx])
			if county == "" || county == "-" {
				continue
			}
			lookup[strings.ToLower(strings.TrimSpace(row[0]))] = county
		}
	}
	return lookup
}

// enrichCounties fills a missing county property from the derived lookup.
func enrichCounties(entities []*models.Entity, counties map[string]string) {
	if len(counties) == 0 {
		return
	}
	for _, e := range entities {
		if v, ok := e.Properties["county"]; ok && v != nil && v != "" {
			continue
		}
		county, ok := counties[strings.ToLower(e.Name)]
		if !ok {
			continue
		}
		if e.Properties == nil {
			e.Properties = make(map[string]any)
		}
		e.Properties["county"] = county
	}
}

// assembleEdges builds the graph's edge set: structural edges from entity
// ordering, then either the narrative parser's edges (skipping the LLM pass)
// or chunked LLM detection, then heuristics, then deduplication.
func (n *Normalizer) assembleEdges(ctx context.Context, entities []*models.Entity, narrativeEdges []*models.Edge, graphID string) []*models.Edge {
	structural := structuralEdges(entities, graphID)

	var detected []*models.Edge
	if len(narrativeEdges) > 0 {
		detected = append(detected, narrativeEdges...)
		detected = append(detected, n.detector.Enhance(nil, narrativeEdges, entities, graphID)...)
	} else {
		llmEdges := n.detector.Detect(ctx, entities, graphID)
		detected = n.detector.Enhance(llmEdges, nil, entities, graphID)
	}

	all := make([]*models.Edge, 0, len(detected)+len(structural))
	all = append(all, detected...)
	all = append(all, structural...)
	return dedupeEdges(all)
}

// structuralEdges wires companies to the subsidiaries, loans, and metrics
// that follow them in the entity list.
func structuralEdges(entities []*models.Entity, graphID string) []*models.Edge {
	var edges []*models.Edge
	for i, e := range entities {
		if e.Type != models.EntityCompany {
			continue
		}
		for _, other := range entities[i+1:] {
			var edgeType models.EdgeType
			switch other.Type {
			case models.EntitySubsidiary:
				edgeType = models.EdgeOwns
			case models.EntityLoan:
				edgeType = models.EdgeHasLoan
			case models.EntityMetric:
				edgeType = models.EdgeHasMetric
			default:
				continue
			}
			edges = append(edges, &models.Edge{
				ID:         models.NewEdgeID(),
				Source:     e.ID,
				Target:     other.ID,
				Type:       edgeType,
				GraphID:    graphID,
				Properties: map[string]any{"detected_by": "structure"},
			})
		}
	}
	return edges
}

func dedupeEdges(edges []*models.Edge) []*models.Edge {
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

func coerceNumeric(value string) any {
	clean := strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(value, ",", ""), "$", ""))
	clean = strings.TrimSuffix(clean, "%")
	if f, err := strconv.ParseFloat(clean, 64); err == nil {
		return f
	}
	return value
}
