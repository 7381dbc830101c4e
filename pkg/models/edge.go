package models

import "time"

// EdgeType is the closed set of relationship kinds.
type EdgeType string

const (
	EdgeHasLoan            EdgeType = "HAS_LOAN"
	EdgeOwns               EdgeType = "OWNS"
	EdgePartyTo            EdgeType = "PARTY_TO"
	EdgeHasMetric          EdgeType = "HAS_METRIC"
	EdgeContains           EdgeType = "CONTAINS"
	EdgeReportsTo          EdgeType = "REPORTS_TO"
	EdgeIssuedBy           EdgeType = "ISSUED_BY"
	EdgeGuarantees         EdgeType = "GUARANTEES"
	EdgeRelatedTo          EdgeType = "RELATED_TO"
	EdgeLocatedIn          EdgeType = "LOCATED_IN"
	EdgeWorksFor           EdgeType = "WORKS_FOR"
	EdgeSubsidiaryOf       EdgeType = "SUBSIDIARY_OF"
	EdgeSuppliesTo         EdgeType = "SUPPLIES_TO"
	EdgeMentionedIn        EdgeType = "MENTIONED_IN"
	EdgeAcquired           EdgeType = "ACQUIRED"
	EdgeInvestedIn         EdgeType = "INVESTED_IN"
	EdgePartnersWith       EdgeType = "PARTNERS_WITH"
	EdgeProvidesServiceFor EdgeType = "PROVIDES_SERVICE_FOR"
	EdgeReceivesServiceFrom EdgeType = "RECEIVES_SERVICE_FROM"
	EdgeOwes               EdgeType = "OWES"
	EdgeHasRisk            EdgeType = "HAS_RISK"
	EdgeRegulatedBy        EdgeType = "REGULATED_BY"
	EdgeFinancedBy         EdgeType = "FINANCED_BY"
	EdgeReportsOn          EdgeType = "REPORTS_ON"
	EdgeReferences         EdgeType = "REFERENCES"
	EdgeAssociatedWith     EdgeType = "ASSOCIATED_WITH"
)

// validEdgeTypes holds the closed set for membership checks.
var validEdgeTypes = map[EdgeType]bool{
	EdgeHasLoan: true, EdgeOwns: true, EdgePartyTo: true, EdgeHasMetric: true,
	EdgeContains: true, EdgeReportsTo: true, EdgeIssuedBy: true, EdgeGuarantees: true,
	EdgeRelatedTo: true, EdgeLocatedIn: true, EdgeWorksFor: true, EdgeSubsidiaryOf: true,
	EdgeSuppliesTo: true, EdgeMentionedIn: true, EdgeAcquired: true, EdgeInvestedIn: true,
	EdgePartnersWith: true, EdgeProvidesServiceFor: true, EdgeReceivesServiceFrom: true,
	EdgeOwes: true, EdgeHasRisk: true, EdgeRegulatedBy: true, EdgeFinancedBy: true,
	EdgeReportsOn: true, EdgeReferences: true, EdgeAssociatedWith: true,
}

// IsValid reports whether t is a member of the closed edge-type set.
func (t EdgeType) IsValid() bool { return validEdgeTypes[t] }

// Edge is one directed relationship between two entities of the same graph.
type Edge struct {
	ID         string         `json:"id"`
	Source     string         `json:"source"`
	Target     string         `json:"target"`
	Type       EdgeType       `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
	GraphID    string         `json:"graph_id"`
	CreatedAt  time.Time      `json:"created_at,omitempty"`
}

// Clone returns a deep copy of the edge.
func (e *Edge) Clone() *Edge {
	out := *e
	if e.Properties != nil {
		out.Properties = make(map[string]any, len(e.Properties))
		for k, v := range e.Properties {
			out.Properties[k] = v
		}
	}
	return &out
}

// Key identifies an edge for deduplication. Reverse duplicates map to
// distinct keys; directionality is semantic.
func (e *Edge) Key() string {
	return e.Source + "|" + e.Target + "|" + string(e.Type)
}

// Graph is one knowledge-graph instance: the entities and edges derived
// from one document's most recent normalization.
type Graph struct {
	GraphID    string         `json:"graph_id"`
	DocumentID string         `json:"document_id"`
	Entities   []*Entity      `json:"entities"`
	Edges      []*Edge        `json:"edges"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	out := &Graph{GraphID: g.GraphID, DocumentID: g.DocumentID}
	out.Entities = make([]*Entity, len(g.Entities))
	for i, e := range g.Entities {
		out.Entities[i] = e.Clone()
	}
	out.Edges = make([]*Edge, len(g.Edges))
	for i, e := range g.Edges {
		out.Edges[i] = e.Clone()
	}
	if g.Metadata != nil {
		out.Metadata = make(map[string]any, len(g.Metadata))
		for k, v := range g.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// EntityByID returns the entity with the given id, or nil.
func (g *Graph) EntityByID(id string) *Entity {
	for _, e := range g.Entities {
		if e.ID == id {
			return e
		}
	}
	return nil
}
