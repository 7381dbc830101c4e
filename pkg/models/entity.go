package models

import "time"

// EntityType is the closed set of entity kinds in the knowledge graph.
type EntityType string

const (
	EntityCompany    EntityType = "Company"
	EntitySubsidiary EntityType = "Subsidiary"
	EntityLoan       EntityType = "Loan"
	EntityInvoice    EntityType = "Invoice"
	EntityMetric     EntityType = "Metric"
	EntityClause     EntityType = "Clause"
	EntityInstrument EntityType = "Instrument"
	EntityVendor     EntityType = "Vendor"
	EntityPerson     EntityType = "Person"
	EntityLocation   EntityType = "Location"
)

// Entity is one node of a knowledge graph. Properties are a flat mapping;
// nested inputs are flattened at normalization.
type Entity struct {
	ID           string         `json:"id"`
	Type         EntityType     `json:"type"`
	Name         string         `json:"name"`
	DisplayType  string         `json:"display_type,omitempty"`
	OriginalType string         `json:"original_type,omitempty"`
	Properties   map[string]any `json:"properties"`
	Citations    []Citation     `json:"citations,omitempty"`
	Embedding    []float32      `json:"embedding,omitempty"`
	DocumentID   string         `json:"document_id"`
	GraphID      string         `json:"graph_id"`
	CreatedAt    time.Time      `json:"created_at,omitempty"`
}

// Clone returns a deep copy of the entity.
func (e *Entity) Clone() *Entity {
	out := *e
	out.Properties = make(map[string]any, len(e.Properties))
	for k, v := range e.Properties {
		out.Properties[k] = v
	}
	out.Citations = append([]Citation(nil), e.Citations...)
	out.Embedding = append([]float32(nil), e.Embedding...)
	return &out
}

// Citation anchors an entity or risk to a location in the source document.
type Citation struct {
	Page       int     `json:"page"`
	Section    string  `json:"section,omitempty"`
	TableID    string  `json:"table_id,omitempty"`
	Cell       string  `json:"cell,omitempty"`
	Clause     string  `json:"clause,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}
