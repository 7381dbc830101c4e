package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/arthanethra/arthanethra/pkg/indexer"
	"github.com/arthanethra/arthanethra/pkg/llm"
	"github.com/arthanethra/arthanethra/pkg/models"
)

const (
	defaultQueryLimit    = 10
	defaultSearchLimit   = 5
	defaultTraverseDepth = 1
	maxTraverseDepth     = 3
	defaultPatternMin    = 2
)

func toolDefinitions() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Name:        "graph_query",
			Description: "Look up entities in the knowledge graph by type and property filters. Property filters accept plain values for equality or operator objects like {\"$gt\": 500000}.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query_text": map[string]any{
						"type":        "string",
						"description": "Free-text query used for semantic lookup when no filter matches",
					},
					"entity_types": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Entity types to include, e.g. [\"Loan\", \"Company\"]",
					},
					"property_filters": map[string]any{
						"type":        "object",
						"description": "Property name to value or operator object ($gt, $gte, $lt, $lte, $eq, $ne)",
					},
					"limit": map[string]any{"type": "integer", "description": "Maximum entities to return"},
				},
			},
		},
		{
			Name:        "document_search",
			Description: "Semantic search over document text chunks. Returns passages with page numbers for citation.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string", "description": "Search query"},
					"limit": map[string]any{"type": "integer", "description": "Maximum chunks to return"},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        "doc_lookup",
			Description: "Build an evidence URL for a document page so the analyst can view the source.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"document_id": map[string]any{"type": "string", "description": "Document identifier"},
					"page":        map[string]any{"type": "integer", "description": "Page number"},
				},
				"required": []string{"document_id"},
			},
		},
		{
			Name:        "metric_compute",
			Description: "Compute a financial analytics metric. Available metrics include debt_risk, liquidity_analysis, loan_maturity, property_threshold, property_comparison, grouped_aggregation and sequential_drop.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"metric_name": map[string]any{"type": "string", "description": "Metric to compute"},
					"params":      map[string]any{"type": "object", "description": "Metric parameters"},
				},
				"required": []string{"metric_name"},
			},
		},
		{
			Name:        "graph_traverse",
			Description: "Expand the neighborhood of a named entity to a bounded depth.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"entity_name": map[string]any{"type": "string", "description": "Entity name to start from"},
					"depth":       map[string]any{"type": "integer", "description": "Hops to expand, 1 to 3"},
					"limit":       map[string]any{"type": "integer", "description": "Maximum neighbors to return"},
				},
				"required": []string{"entity_name"},
			},
		},
		{
			Name:        "graph_path",
			Description: "Find the shortest relationship path between two named entities.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"from_entity": map[string]any{"type": "string", "description": "Start entity name"},
					"to_entity":   map[string]any{"type": "string", "description": "End entity name"},
				},
				"required": []string{"from_entity", "to_entity"},
			},
		},
		{
			Name:        "graph_pattern",
			Description: "Find highly connected entities with at least a minimum number of relationships.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"min_relationships": map[string]any{"type": "integer", "description": "Minimum relationship count"},
					"limit":             map[string]any{"type": "integer", "description": "Maximum entities to return"},
				},
			},
		},
	}
}

// dispatch routes a tool call to its handler. Unknown tools return an error
// payload so the model can recover.
func (a *Agent) dispatch(ctx context.Context, st *runState, call llm.ToolCall) any {
	switch call.Name {
	case "graph_query":
		return a.graphQuery(ctx, st, call.Input)
	case "document_search":
		return a.documentSearch(ctx, call.Input)
	case "doc_lookup":
		return a.docLookup(call.Input)
	case "metric_compute":
		return a.metricCompute(ctx, st.cc, call.Input)
	case "graph_traverse":
		return a.graphTraverse(ctx, call.Input)
	case "graph_path":
		return a.graphPath(ctx, call.Input)
	case "graph_pattern":
		return a.graphPattern(ctx, call.Input)
	default:
		return map[string]any{"error": fmt.Sprintf("unknown tool: %s", call.Name)}
	}
}

type graphQueryArgs struct {
	QueryText       string         `json:"query_text"`
	EntityTypes     []string       `json:"entity_types"`
	PropertyFilters map[string]any `json:"property_filters"`
	Limit           int            `json:"limit"`
}

func (a *Agent) graphQuery(ctx context.Context, st *runState, input json.RawMessage) any {
	var args graphQueryArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return map[string]any{"error": "invalid graph_query arguments"}
	}
	if args.Limit <= 0 {
		args.Limit = defaultQueryLimit
	}

	candidates := a.contextEntities(st.cc)
	if len(args.EntityTypes) > 0 {
		candidates = filterByType(candidates, args.EntityTypes)
	}
	if len(args.PropertyFilters) > 0 {
		known := knownProperties(candidates)
		filtered := candidates[:0:0]
		for _, e := range candidates {
			if matchesFilters(e.Properties, args.PropertyFilters, known) {
				filtered = append(filtered, e)
			}
		}
		candidates = filtered
	}

	if len(candidates) == 0 && args.QueryText != "" && a.search != nil {
		return a.semanticEntityQuery(ctx, st, args)
	}

	if len(candidates) > args.Limit {
		candidates = candidates[:args.Limit]
	}
	rows := make([]map[string]any, 0, len(candidates))
	for _, e := range candidates {
		st.record(e)
		rows = append(rows, map[string]any{
			"id":         e.ID,
			"name":       e.Name,
			"type":       string(e.Type),
			"properties": e.Properties,
			"citations":  e.Citations,
		})
	}
	return map[string]any{"entities": rows, "count": len(rows)}
}

func (a *Agent) semanticEntityQuery(ctx context.Context, st *runState, args graphQueryArgs) any {
	hits := a.search.SearchEntities(ctx, args.QueryText, args.Limit, st.cc.GraphID)
	rows := make([]map[string]any, 0, len(hits))
	for _, h := range hits {
		st.record(&models.Entity{
			ID:         h.ID,
			Type:       models.EntityType(h.Type),
			Name:       h.Name,
			Properties: h.Properties,
			DocumentID: h.DocumentID,
			GraphID:    h.GraphID,
		})
		rows = append(rows, map[string]any{
			"id":         h.ID,
			"name":       h.Name,
			"type":       h.Type,
			"properties": h.Properties,
			"score":      h.Score,
		})
	}
	return map[string]any{"entities": rows, "count": len(rows)}
}

func (a *Agent) contextEntities(cc Context) []*models.Entity {
	if len(cc.Entities) > 0 {
		return cc.Entities
	}
	if a.entities == nil {
		return nil
	}
	if cc.GraphID != "" {
		return a.entities.EntitiesForGraph(cc.GraphID)
	}
	return a.entities.AllEntities()
}

type documentSearchArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func (a *Agent) documentSearch(ctx context.Context, input json.RawMessage) any {
	var args documentSearchArgs
	if err := json.Unmarshal(input, &args); err != nil || args.Query == "" {
		return map[string]any{"error": "query is required"}
	}
	if args.Limit <= 0 {
		args.Limit = defaultSearchLimit
	}
	if a.search == nil {
		return map[string]any{"chunks": []map[string]any{}, "count": 0}
	}
	hits := a.search.SearchChunks(ctx, args.Query, args.Limit)
	rows := make([]map[string]any, 0, len(hits))
	for _, h := range hits {
		rows = append(rows, map[string]any{
			"chunk_id":    h.ChunkID,
			"document_id": h.DocumentID,
			"content":     h.Content,
			"page_number": h.PageNumber,
			"filename":    h.Filename,
			"score":       h.Score,
		})
	}
	return map[string]any{"chunks": rows, "count": len(rows)}
}

type docLookupArgs struct {
	DocumentID string `json:"document_id"`
	Page       int    `json:"page"`
}

func (a *Agent) docLookup(input json.RawMessage) any {
	var args docLookupArgs
	if err := json.Unmarshal(input, &args); err != nil || args.DocumentID == "" {
		return map[string]any{"error": "document_id is required"}
	}
	url := fmt.Sprintf("%s/evidence/%s", a.apiPrefix, args.DocumentID)
	if args.Page > 0 {
		url = fmt.Sprintf("%s?page=%d", url, args.Page)
	}
	return map[string]any{
		"document_id": args.DocumentID,
		"page":        args.Page,
		"url":         url,
	}
}

type metricComputeArgs struct {
	MetricName string         `json:"metric_name"`
	Params     map[string]any `json:"params"`
}

func (a *Agent) metricCompute(ctx context.Context, cc Context, input json.RawMessage) any {
	var args metricComputeArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return map[string]any{"error": "invalid metric_compute arguments"}
	}
	if a.metrics == nil {
		return map[string]any{"error": "analytics engine not available"}
	}
	callContext := map[string]any{}
	if cc.GraphID != "" {
		callContext["graph_id"] = cc.GraphID
	}
	if cc.DocumentID != "" {
		callContext["document_id"] = cc.DocumentID
	}
	return a.metrics.Compute(ctx, args.MetricName, args.Params, callContext)
}

type graphTraverseArgs struct {
	EntityName string `json:"entity_name"`
	Depth      int    `json:"depth"`
	Limit      int    `json:"limit"`
}

func (a *Agent) graphTraverse(ctx context.Context, input json.RawMessage) any {
	var args graphTraverseArgs
	if err := json.Unmarshal(input, &args); err != nil || args.EntityName == "" {
		return map[string]any{"error": "entity_name is required"}
	}
	if args.Depth <= 0 {
		args.Depth = defaultTraverseDepth
	}
	if args.Depth > maxTraverseDepth {
		args.Depth = maxTraverseDepth
	}
	if a.search == nil {
		return map[string]any{"entities": []map[string]any{}, "count": 0}
	}
	records := a.search.Traverse(ctx, args.EntityName, args.Depth, args.Limit)
	return map[string]any{"entities": recordRows(records), "count": len(records)}
}

type graphPathArgs struct {
	FromEntity string `json:"from_entity"`
	ToEntity   string `json:"to_entity"`
}

func (a *Agent) graphPath(ctx context.Context, input json.RawMessage) any {
	var args graphPathArgs
	if err := json.Unmarshal(input, &args); err != nil || args.FromEntity == "" || args.ToEntity == "" {
		return map[string]any{"error": "from_entity and to_entity are required"}
	}
	if a.search == nil {
		return map[string]any{"found": false}
	}
	path := a.search.FindPath(ctx, args.FromEntity, args.ToEntity)
	out := map[string]any{
		"found":         path.Found,
		"nodes":         path.Nodes,
		"relationships": path.Relationships,
		"length":        path.Length,
	}
	if len(path.Missing) > 0 {
		out["missing_entities"] = path.Missing
	}
	return out
}

type graphPatternArgs struct {
	MinRelationships int `json:"min_relationships"`
	Limit            int `json:"limit"`
}

func (a *Agent) graphPattern(ctx context.Context, input json.RawMessage) any {
	var args graphPatternArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return map[string]any{"error": "invalid graph_pattern arguments"}
	}
	if args.MinRelationships <= 0 {
		args.MinRelationships = defaultPatternMin
	}
	if a.search == nil {
		return map[string]any{"entities": []map[string]any{}, "count": 0}
	}
	records := a.search.FindPattern(ctx, args.MinRelationships, args.Limit)
	return map[string]any{"entities": recordRows(records), "count": len(records)}
}

func recordRows(records []indexer.EntityRecord) []map[string]any {
	rows := make([]map[string]any, 0, len(records))
	for _, r := range records {
		row := map[string]any{
			"id":         r.ID,
			"name":       r.Name,
			"type":       r.Type,
			"properties": r.Properties,
		}
		if r.RelationshipCount > 0 {
			row["relationship_count"] = r.RelationshipCount
		}
		rows = append(rows, row)
	}
	return rows
}

func filterByType(entities []*models.Entity, types []string) []*models.Entity {
	want := make(map[string]bool, len(types))
	for _, t := range types {
		want[strings.ToLower(t)] = true
	}
	out := entities[:0:0]
	for _, e := range entities {
		if want[strings.ToLower(string(e.Type))] {
			out = append(out, e)
		}
	}
	return out
}

func knownProperties(entities []*models.Entity) []string {
	seen := make(map[string]bool)
	var names []string
	for _, e := range entities {
		for k := range e.Properties {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	return names
}

func matchesFilters(properties map[string]any, filters map[string]any, known []string) bool {
	for name, cond := range filters {
		resolved := normalizeProperty(name, known)
		value, ok := properties[resolved]
		if !ok {
			return false
		}
		if !matchesCondition(value, cond) {
			return false
		}
	}
	return true
}

// matchesCondition evaluates one filter condition. Operator objects compare
// numerically; plain values compare by number when both sides parse and by
// case-insensitive string otherwise.
func matchesCondition(value, cond any) bool {
	if ops, ok := cond.(map[string]any); ok {
		v, numeric := numericValue(value)
		if !numeric {
			return false
		}
		for op, bound := range ops {
			b, ok := numericValue(bound)
			if !ok {
				return false
			}
			switch op {
			case "$gt":
				if !(v > b) {
					return false
				}
			case "$gte":
				if !(v >= b) {
					return false
				}
			case "$lt":
				if !(v < b) {
					return false
				}
			case "$lte":
				if !(v <= b) {
					return false
				}
			case "$eq":
				if v != b {
					return false
				}
			case "$ne":
				if v == b {
					return false
				}
			default:
				return false
			}
		}
		return true
	}
	if v, ok := numericValue(value); ok {
		if c, ok := numericValue(cond); ok {
			return v == c
		}
	}
	return strings.EqualFold(fmt.Sprint(value), fmt.Sprint(cond))
}

// normalizeProperty maps a user-supplied field name onto a property that
// actually exists on the candidate entities, so "cash balance" resolves to
// cash_and_cash_equivalents.
func normalizeProperty(requested string, known []string) string {
	for _, k := range known {
		if k == requested {
			return k
		}
	}
	canon := canonName(requested)
	for _, k := range known {
		if canonName(k) == canon {
			return k
		}
	}
	tokens := nameTokens(requested)
	if len(tokens) == 0 {
		return requested
	}
	best := ""
	bestScore := 0
	for _, k := range known {
		score := tokenOverlap(tokens, k)
		if score > bestScore || (score == bestScore && score > 0 && len(k) < len(best)) {
			best = k
			bestScore = score
		}
	}
	if bestScore > 0 {
		return best
	}
	return requested
}

func tokenOverlap(tokens []string, candidate string) int {
	candidateTokens := nameTokens(candidate)
	set := make(map[string]bool, len(candidateTokens))
	for _, t := range candidateTokens {
		set[t] = true
	}
	score := 0
	for _, t := range tokens {
		if set[t] {
			score++
		}
	}
	return score
}

func canonName(s string) string {
	return strings.Join(nameTokens(s), "_")
}

func nameTokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
}

// numericValue coerces property values to float64. Strings are parsed with
// thousands separators stripped.
func numericValue(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(t, ",", ""))
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
