package models

import "time"

// RiskSeverity grades detected risks.
type RiskSeverity string

const (
	SeverityLow      RiskSeverity = "low"
	SeverityMedium   RiskSeverity = "medium"
	SeverityHigh     RiskSeverity = "high"
	SeverityCritical RiskSeverity = "critical"
)

// Risk is one detected financial risk, optionally carrying a subgraph of
// the entities and edges relevant to it.
type Risk struct {
	ID                string       `json:"id"`
	Type              string       `json:"type"`
	Severity          RiskSeverity `json:"severity"`
	Description       string       `json:"description"`
	AffectedEntityIDs []string     `json:"affected_entity_ids"`
	Citations         []Citation   `json:"citations,omitempty"`
	Score             float64      `json:"score"`
	Threshold         float64      `json:"threshold"`
	ActualValue       float64      `json:"actual_value"`
	Recommendation    string       `json:"recommendation"`
	GraphData         *Graph       `json:"graph_data,omitempty"`
	DocumentID        string       `json:"document_id"`
	GraphID           string       `json:"graph_id"`
	DetectedAt        time.Time    `json:"detected_at"`
}

// Clone returns a deep copy of the risk.
func (r *Risk) Clone() *Risk {
	out := *r
	out.AffectedEntityIDs = append([]string(nil), r.AffectedEntityIDs...)
	out.Citations = append([]Citation(nil), r.Citations...)
	if r.GraphData != nil {
		out.GraphData = r.GraphData.Clone()
	}
	return &out
}
