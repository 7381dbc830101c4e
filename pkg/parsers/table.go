package parsers

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/arthanethra/arthanethra/pkg/models"
)

// MaxTableEntities bounds a single document's table extraction.
const MaxTableEntities = 500

var (
	nonWordPattern = regexp.MustCompile(`[^\w\s]`)
	spacePattern   = regexp.MustCompile(`\s+`)
)

// ParseTables converts HTML and pipe tables in markdown into entities, one
// per data row, keyed by the first column. This is the workhorse fallback
// when schema extraction under-delivers.
func ParseTables(markdown, documentID, graphID string) []*models.Entity {
	var entities []*models.Entity
	for tableIdx, t := range ExtractHTMLTables(markdown) {
		if len(entities) >= MaxTableEntities {
			break
		}
		entities = append(entities, parseHTMLTable(t, tableIdx, documentID, graphID, MaxTableEntities-len(entities))...)
	}
	if len(entities) < MaxTableEntities {
		for tableIdx, t := range ExtractPipeTables(markdown) {
			if len(entities) >= MaxTableEntities {
				break
			}
			entities = append(entities, parsePipeTable(t, tableIdx, documentID, graphID, MaxTableEntities-len(entities))...)
		}
	}
	return entities
}

func parseHTMLTable(t Table, tableIdx int, documentID, graphID string, budget int) []*models.Entity {
	headers, headerRowIdx := chooseHeaderRow(t)
	if len(headers) == 0 {
		return nil
	}

	var entities []*models.Entity
	for rowIdx, row := range t.Rows[headerRowIdx+1:] {
		if len(entities) >= budget {
			break
		}
		// Malformed or continuation rows carry too few cells.
		if len(row) < 2 {
			continue
		}
		// A first data row without any digit is usually a second header.
		if rowIdx == 0 && !anyDigit(row) {
			continue
		}
		if e := entityFromRow(headers, row, tableIdx, rowIdx, documentID, graphID); e != nil {
			entities = append(entities, e)
		}
	}
	return entities
}

// chooseHeaderRow scans the first three rows for the one with the most
// non-empty headers; banners and category rows lose to the real header.
func chooseHeaderRow(t Table) ([]string, int) {
	var best []string
	bestIdx := 0
	limit := len(t.Rows)
	if limit > 3 {
		limit = 3
	}
	for i := 0; i < limit; i++ {
		headers := make([]string, 0, len(t.Rows[i]))
		for _, cell := range t.Rows[i] {
			headers = append(headers, cleanHeader(cell))
		}
		if countValidHeaders(headers) > countValidHeaders(best) || len(headers) > len(best) {
			best = headers
			bestIdx = i
		}
	}
	return best, bestIdx
}

func countValidHeaders(headers []string) int {
	n := 0
	for _, h := range headers {
		if h != "" && h != "column" {
			n++
		}
	}
	return n
}

func cleanHeader(header string) string {
	cleaned := strings.ToLower(strings.TrimSpace(header))
	cleaned = nonWordPattern.ReplaceAllString(cleaned, "")
	cleaned = spacePattern.ReplaceAllString(cleaned, "_")
	cleaned = strings.Trim(cleaned, "_")
	if cleaned == "" {
		return "column"
	}
	return cleaned
}

func anyDigit(cells []string) bool {
	for _, c := range cells {
		for _, r := range c {
			if r >= '0' && r <= '9' {
				return true
			}
		}
	}
	return false
}

func entityFromRow(headers, values []string, tableIdx, rowIdx int, documentID, graphID string) *models.Entity {
	if len(values) < 2 {
		return nil
	}

	entityType := models.EntityLocation
	firstCol := strings.ToLower(values[0])
	switch {
	case containsAny(firstCol, "city", "town", "village", "municipality"):
		entityType = models.EntityLocation
	case containsAny(firstCol, "company", "corp", "inc", "llc"):
		entityType = models.EntityCompany
	}

	// Pad the shorter side so columns stay aligned.
	for len(headers) < len(values) {
		headers = append(headers, "")
	}
	for len(values) < len(headers) {
		values = append(values, "")
	}

	properties := make(map[string]any)
	for i, header := range headers {
		value := values[i]
		if i == 0 {
			if header != "" && value != "" {
				properties[header] = value
			}
			continue
		}
		if header == "" {
			continue
		}
		if value == "" || value == "-" || strings.EqualFold(value, "n/a") {
			// Geographic grouping columns stay null; numeric columns zero.
			if header == "county" || header == "state" || header == "country" {
				properties[header] = nil
			} else {
				properties[header] = 0
			}
			continue
		}
		properties[header] = coerceValue(value)
	}
	if len(properties) == 0 {
		return nil
	}

	return &models.Entity{
		ID:         models.NewEntityID(),
		Type:       entityType,
		Name:       values[0],
		Properties: properties,
		Citations: []models.Citation{
			{Page: 1, Section: fmt.Sprintf("Table %d, Row %d", tableIdx+1, rowIdx+1)},
		},
		DocumentID: documentID,
		GraphID:    graphID,
	}
}

// coerceValue converts a cell to int or float when the cleaned string is
// numeric; currency symbols and thousands separators are stripped first.
func coerceValue(value string) any {
	clean := strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(value, ",", ""), "$", ""))
	if clean == "" {
		return value
	}
	if strings.Contains(clean, ".") {
		if f, err := strconv.ParseFloat(clean, 64); err == nil {
			return f
		}
	} else if hasDigit(clean) {
		if n, err := strconv.Atoi(clean); err == nil {
			return n
		}
	}
	return value
}

func hasDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func parsePipeTable(t Table, tableIdx int, documentID, graphID string, budget int) []*models.Entity {
	if len(t.Rows) < 2 {
		return nil
	}
	headers := make([]string, len(t.Rows[0]))
	for i, cell := range t.Rows[0] {
		headers[i] = cleanHeader(cell)
	}

	var entities []*models.Entity
	for rowIdx, cells := range t.Rows[1:] {
		if len(entities) >= budget {
			break
		}
		if len(cells) != len(headers) || len(cells) == 0 {
			continue
		}
		properties := make(map[string]any)
		for i := 1; i < len(cells); i++ {
			if cells[i] != "" && cells[i] != "-" {
				properties[headers[i]] = cells[i]
			}
		}
		if len(properties) == 0 {
			continue
		}
		entities = append(entities, &models.Entity{
			ID:         models.NewEntityID(),
			Type:       models.EntityMetric,
			Name:       cells[0],
			Properties: properties,
			Citations: []models.Citation{
				{Page: 1, Section: fmt.Sprintf("Pipe Table %d, Row %d", tableIdx+1, rowIdx+1)},
			},
			DocumentID: documentID,
			GraphID:    graphID,
		})
	}
	return entities
}
