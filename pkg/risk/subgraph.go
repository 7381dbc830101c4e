package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/arthanethra/arthanethra/pkg/llm"
	"github.com/arthanethra/arthanethra/pkg/models"
)

const subgraphSystemPrompt = `You select the part of a knowledge graph relevant to a detected risk. You are given the risk, the graph's entities (with ids), and its relationships (with indices).

Respond with ONLY a JSON object:
{"entity_ids": ["ent_..."], "relationship_indices": [0]}

Include the affected entities, their direct counterparties, and anything the risk description names. Keep it small.`

type subgraphSelection struct {
	EntityIDs           []string `json:"entity_ids"`
	RelationshipIndices []int    `json:"relationship_indices"`
}

// synthesizeSubgraph attaches the graph slice relevant to a risk. The model
// picks entity ids and relationship indices; any failure falls back to the
// one-hop closure of the affected entities.
func (d *Detector) synthesizeSubgraph(ctx context.Context, r *models.Risk, graph *models.Graph) *models.Graph {
	if d.client != nil {
		if sub := d.selectSubgraph(ctx, r, graph); sub != nil {
			return sub
		}
	}
	return oneHopClosure(r, graph)
}

func (d *Detector) selectSubgraph(ctx context.Context, r *models.Risk, graph *models.Graph) *models.Graph {
	var b strings.Builder
	fmt.Fprintf(&b, "Risk: %s (%s)\n%s\n\nEntities:\n", r.Type, r.Severity, r.Description)
	for _, entity := range graph.Entities {
		fmt.Fprintf(&b, "- %s: %s (%s)\n", entity.ID, entity.Name, entity.Type)
	}
	b.WriteString("\nRelationships:\n")
	for i, edge := range graph.Edges {
		fmt.Fprintf(&b, "- %d: %s -> %s (%s)\n", i, edge.Source, edge.Target, edge.Type)
	}

	resp, err := d.client.Generate(ctx, &llm.Request{
		ModelID:     d.modelID,
		System:      subgraphSystemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Text: b.String()}},
		MaxTokens:   1024,
		Temperature: 0,
	})
	if err != nil {
		d.logger.Warn("Subgraph selection failed", "risk_id", r.ID, "error", err)
		return nil
	}

	payload := llm.ExtractJSON(resp.Text)
	if payload == "" {
		return nil
	}
	var selection subgraphSelection
	if err := json.Unmarshal([]byte(payload), &selection); err != nil || len(selection.EntityIDs) == 0 {
		return nil
	}

	sub := &models.Graph{GraphID: graph.GraphID, DocumentID: graph.DocumentID}
	for _, id := range selection.EntityIDs {
		if entity := graph.EntityByID(id); entity != nil {
			sub.Entities = append(sub.Entities, entity.Clone())
		}
	}
	if len(sub.Entities) == 0 {
		return nil
	}
	for _, index := range selection.RelationshipIndices {
		if index >= 0 && index < len(graph.Edges) {
			sub.Edges = append(sub.Edges, graph.Edges[index].Clone())
		}
	}
	return sub
}

// oneHopClosure returns the affected entities, every edge touching them, and
// the entities on the far end of those edges.
func oneHopClosure(r *models.Risk, graph *models.Graph) *models.Graph {
	included := map[string]bool{}
	for _, id := range r.AffectedEntityIDs {
		included[id] = true
	}

	sub := &models.Graph{GraphID: graph.GraphID, DocumentID: graph.DocumentID}
	neighbors := map[string]bool{}
	for _, edge := range graph.Edges {
		if included[edge.Source] || included[edge.Target] {
			sub.Edges = append(sub.Edges, edge.Clone())
			neighbors[edge.Source] = true
			neighbors[edge.Target] = true
		}
	}
	for id := range neighbors {
		included[id] = true
	}
	for _, entity := range graph.Entities {
		if included[entity.ID] {
			sub.Entities = append(sub.Entities, entity.Clone())
		}
	}
	return sub
}
