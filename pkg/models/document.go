// Package models contains the core domain types shared across the pipeline:
// documents, entities, edges, citations, risks, chat sessions, and jobs.
package models

import "time"

// DocumentStatus is the processing state of a document. Statuses advance
// monotonically through the pipeline; the only backward transition is to
// StatusFailed.
type DocumentStatus string

const (
	StatusPending     DocumentStatus = "pending"
	StatusUploaded    DocumentStatus = "uploaded"
	StatusExtracting  DocumentStatus = "extracting"
	StatusExtracted   DocumentStatus = "extracted"
	StatusNormalizing DocumentStatus = "normalizing"
	StatusNormalized  DocumentStatus = "normalized"
	StatusIndexing    DocumentStatus = "indexing"
	StatusIndexed     DocumentStatus = "indexed"
	StatusFailed      DocumentStatus = "failed"
)

// statusRank orders the lattice for monotonicity checks.
var statusRank = map[DocumentStatus]int{
	StatusPending:     0,
	StatusUploaded:    1,
	StatusExtracting:  2,
	StatusExtracted:   3,
	StatusNormalizing: 4,
	StatusNormalized:  5,
	StatusIndexing:    6,
	StatusIndexed:     7,
}

// CanTransition reports whether moving from s to next is a legal status
// change. Any status may move to failed; otherwise only forward moves
// are allowed.
func (s DocumentStatus) CanTransition(next DocumentStatus) bool {
	if next == StatusFailed {
		return true
	}
	from, ok := statusRank[s]
	if !ok {
		// Recovering from failed restores a prior terminal status.
		return s == StatusFailed
	}
	to, ok := statusRank[next]
	return ok && to >= from
}

// AtLeast reports whether the status has reached the given stage.
func (s DocumentStatus) AtLeast(other DocumentStatus) bool {
	return statusRank[s] >= statusRank[other]
}

// Document is one uploaded file tracked through the pipeline.
type Document struct {
	ID              string         `json:"id"`
	Filename        string         `json:"filename"`
	FilePath        string         `json:"file_path"`
	FileSize        int64          `json:"file_size"`
	MimeType        string         `json:"mime_type"`
	Status          DocumentStatus `json:"status"`
	ExtractionID    string         `json:"extraction_id,omitempty"`
	GraphID         string         `json:"graph_id,omitempty"`
	EntitiesCount   int            `json:"entities_count"`
	EdgesCount      int            `json:"edges_count"`
	ADEOutput       *ADEOutput     `json:"ade_output,omitempty"`
	TotalPages      int            `json:"total_pages,omitempty"`
	ConfidenceScore float64        `json:"confidence_score,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	UploadedAt      time.Time      `json:"uploaded_at"`
	ProcessedAt     *time.Time     `json:"processed_at,omitempty"`
}

// Clone returns a deep copy safe to hand to concurrent readers.
func (d *Document) Clone() *Document {
	out := *d
	if d.ProcessedAt != nil {
		t := *d.ProcessedAt
		out.ProcessedAt = &t
	}
	if d.ADEOutput != nil {
		out.ADEOutput = d.ADEOutput.Clone()
	}
	return &out
}

// ADEOutput is the normalized result of remote document extraction:
// parsed markdown plus the structured record derived from it.
type ADEOutput struct {
	Markdown             string           `json:"markdown"`
	StructuredExtraction map[string]any   `json:"structured_extraction,omitempty"`
	Entities             []ExtractedEntry `json:"entities"`
	Tables               []ExtractedTable `json:"tables"`
	KeyValues            []KeyValue       `json:"key_values"`
	Metadata             ADEMetadata      `json:"metadata"`
}

// Clone returns a deep copy of the extraction output, including the nested
// property maps and table rows.
func (o *ADEOutput) Clone() *ADEOutput {
	out := *o
	out.StructuredExtraction = cloneJSONMap(o.StructuredExtraction)
	if len(o.Entities) > 0 {
		out.Entities = make([]ExtractedEntry, len(o.Entities))
		for i, e := range o.Entities {
			e.Properties = cloneJSONMap(e.Properties)
			e.Citations = append([]Citation(nil), e.Citations...)
			out.Entities[i] = e
		}
	}
	if len(o.Tables) > 0 {
		out.Tables = make([]ExtractedTable, len(o.Tables))
		for i, tbl := range o.Tables {
			tbl.Headers = append([]string(nil), tbl.Headers...)
			if len(tbl.Rows) > 0 {
				rows := make([][]string, len(tbl.Rows))
				for j, row := range tbl.Rows {
					rows[j] = append([]string(nil), row...)
				}
				tbl.Rows = rows
			}
			out.Tables[i] = tbl
		}
	}
	if len(o.KeyValues) > 0 {
		out.KeyValues = make([]KeyValue, len(o.KeyValues))
		for i, kv := range o.KeyValues {
			kv.Value = cloneJSONValue(kv.Value)
			out.KeyValues[i] = kv
		}
	}
	return &out
}

// cloneJSONMap deep-copies a JSON-shaped map. Nil stays nil.
func cloneJSONMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneJSONValue(v)
	}
	return out
}

func cloneJSONValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneJSONMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneJSONValue(item)
		}
		return out
	default:
		return val
	}
}

// ExtractedEntry is one raw entity as returned by the extraction service,
// before normalization into the typed Entity set.
type ExtractedEntry struct {
	Type       string         `json:"type"`
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties,omitempty"`
	Citations  []Citation     `json:"citations,omitempty"`
}

// ExtractedTable is one table as reported by the extraction service.
type ExtractedTable struct {
	ID      string     `json:"id,omitempty"`
	Page    int        `json:"page,omitempty"`
	Headers []string   `json:"headers,omitempty"`
	Rows    [][]string `json:"rows,omitempty"`
	Caption string     `json:"caption,omitempty"`
}

// KeyValue is one key-value pair lifted from the document.
type KeyValue struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
	Page  int    `json:"page,omitempty"`
}

// ADEMetadata carries extraction-level metadata.
type ADEMetadata struct {
	TotalPages      int     `json:"total_pages"`
	ConfidenceScore float64 `json:"confidence_score"`
	ExtractionID    string  `json:"extraction_id,omitempty"`
}
