// Package schema synthesizes extraction schemas from parsed markdown without
// any LLM involvement: table structure when present, keyword-classified
// templates otherwise. It also hosts the document-type detector used by the
// normalizer cascade.
package schema

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/arthanethra/arthanethra/pkg/parsers"
)

// Analyzer derives extraction schemas from markdown structure.
type Analyzer struct {
	logger *slog.Logger
}

// NewAnalyzer builds a schema analyzer.
func NewAnalyzer(logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{logger: logger}
}

// Synthesize generates an extraction schema for the markdown. Table-bearing
// documents get a schema shaped after their columns; everything else falls
// through to a keyword-classified template. Never fails.
func (a *Analyzer) Synthesize(markdown string) (map[string]any, string, error) {
	if tables := parsers.ExtractHTMLTables(markdown); len(tables) > 0 {
		if schema, label, ok := a.fromTables(tables); ok {
			return schema, label, nil
		}
	}
	if parsers.HasPipeTables(markdown) {
		if schema, label, ok := a.fromTables(parsers.ExtractPipeTables(markdown)); ok {
			return schema, label, nil
		}
	}
	schema, label := genericSchema(markdown)
	a.logger.Info("No usable tables detected, using template schema", "template", label)
	return schema, label, nil
}

// fromTables unions headers across all tables in first-seen order. Tables
// are often continuations of one logical table split across pages.
func (a *Analyzer) fromTables(tables []parsers.Table) (map[string]any, string, bool) {
	var headers []string
	seen := make(map[string]bool)
	for _, t := range tables {
		for _, h := range bestHeaderRow(t) {
			if !seen[h] {
				headers = append(headers, h)
				seen[h] = true
			}
		}
	}
	if len(headers) == 0 {
		return nil, "", false
	}
	a.logger.Info("Building schema from table structure",
		"columns", len(headers),
		"tables", len(tables))
	schema, label := buildSchemaFromHeaders(headers)
	return schema, label, true
}

// bestHeaderRow picks the row with the most valid header cells among the
// first three rows; the first row is sometimes a category banner with the
// real headers underneath.
func bestHeaderRow(t parsers.Table) []string {
	var best []string
	limit := len(t.Rows)
	if limit > 3 {
		limit = 3
	}
	for i := 0; i < limit; i++ {
		var current []string
		for _, cell := range t.Rows[i] {
			if cell == "" || len(cell) >= 100 {
				continue
			}
			if h := ToSnakeCase(cell); h != "" && h != "field" {
				current = append(current, h)
			}
		}
		if len(current) > len(best) {
			best = current
		}
	}
	return best
}

func buildSchemaFromHeaders(headers []string) (map[string]any, string) {
	properties := make(map[string]any, len(headers))
	for _, h := range headers {
		properties[h] = map[string]any{"type": inferFieldType(h)}
	}
	arrayName := generateArrayName(headers)
	schema := map[string]any{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"title":   "Auto-generated Schema from Table Structure",
		"type":    "object",
		"properties": map[string]any{
			arrayName: map[string]any{
				"type":        "array",
				"description": "Extracted table data",
				"items": map[string]any{
					"type":       "object",
					"required":   []string{headers[0]},
					"properties": properties,
				},
			},
		},
	}
	return schema, "table_" + arrayName
}

// generateArrayName classifies the table's subject from its headers.
func generateArrayName(headers []string) string {
	has := func(subs ...string) bool {
		for _, h := range headers {
			lower := strings.ToLower(h)
			for _, sub := range subs {
				if strings.Contains(lower, sub) {
					return true
				}
			}
		}
		return false
	}
	switch {
	case has("city"):
		return "cities"
	case has("company", "organization"):
		return "companies"
	case has("person", "employee"):
		return "people"
	case has("product", "item"):
		return "items"
	case has("transaction", "payment"):
		return "transactions"
	default:
		return "records"
	}
}

// numericKeywords flag header names carrying quantitative values.
var numericKeywords = []string{
	"amount", "total", "balance", "price", "cost", "value",
	"count", "quantity", "number", "rate", "percent", "tax",
	"receivable", "payable", "asset", "liability", "equity",
	"revenue", "expense", "income", "cash", "investment",
}

func inferFieldType(fieldName string) string {
	lower := strings.ToLower(fieldName)
	for _, kw := range numericKeywords {
		if strings.Contains(lower, kw) {
			return "number"
		}
	}
	return "string"
}

var (
	nonWordPattern    = regexp.MustCompile(`[^\w\s]`)
	spacePattern      = regexp.MustCompile(`\s+`)
	underscorePattern = regexp.MustCompile(`_+`)
)

// ToSnakeCase normalizes a header cell into a schema field name. Returns
// "field" when nothing usable remains.
func ToSnakeCase(text string) string {
	text = nonWordPattern.ReplaceAllString(text, "")
	text = spacePattern.ReplaceAllString(text, "_")
	text = strings.ToLower(text)
	text = underscorePattern.ReplaceAllString(text, "_")
	text = strings.Trim(text, "_")
	if text == "" {
		return "field"
	}
	return text
}

// genericSchema picks a domain template from document keywords.
func genericSchema(markdown string) (map[string]any, string) {
	lower := strings.ToLower(markdown)
	contains := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return true
			}
		}
		return false
	}
	switch {
	case contains("invoice", "bill", "receipt"):
		return invoiceSchema(), "invoice"
	case contains("contract", "agreement"):
		return contractSchema(), "contract"
	case contains("financial", "balance sheet", "income statement"):
		return financialSchema(), "financial"
	default:
		return defaultSchema(), "default"
	}
}

func invoiceSchema() map[string]any {
	return map[string]any{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"title":   "Invoice",
		"type":    "object",
		"properties": map[string]any{
			"invoice_number": map[string]any{"type": "string"},
			"date":           map[string]any{"type": "string"},
			"vendor":         map[string]any{"type": "string"},
			"customer":       map[string]any{"type": "string"},
			"total_amount":   map[string]any{"type": "number"},
			"line_items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"description": map[string]any{"type": "string"},
						"quantity":    map[string]any{"type": "number"},
						"unit_price":  map[string]any{"type": "number"},
						"amount":      map[string]any{"type": "number"},
					},
				},
			},
		},
	}
}

func contractSchema() map[string]any {
	return map[string]any{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"title":   "Contract",
		"type":    "object",
		"properties": map[string]any{
			"contract_title": map[string]any{"type": "string"},
			"effective_date": map[string]any{"type": "string"},
			"parties": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"terms": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"signatures": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"party": map[string]any{"type": "string"},
						"date":  map[string]any{"type": "string"},
					},
				},
			},
		},
	}
}

func financialSchema() map[string]any {
	return map[string]any{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"title":   "Financial Statement",
		"type":    "object",
		"properties": map[string]any{
			"report_title": map[string]any{"type": "string"},
			"period":       map[string]any{"type": "string"},
			"entity":       map[string]any{"type": "string"},
			"financial_metrics": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"metric_name": map[string]any{"type": "string"},
						"value":       map[string]any{"type": "number"},
						"category":    map[string]any{"type": "string"},
					},
				},
			},
		},
	}
}

func defaultSchema() map[string]any {
	return map[string]any{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"title":   "Document Data",
		"type":    "object",
		"properties": map[string]any{
			"title":   map[string]any{"type": "string"},
			"summary": map[string]any{"type": "string"},
			"key_entities": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name":  map[string]any{"type": "string"},
						"type":  map[string]any{"type": "string"},
						"value": map[string]any{"type": "string"},
					},
				},
			},
		},
	}
}
