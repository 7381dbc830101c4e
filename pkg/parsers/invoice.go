package parsers

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/arthanethra/arthanethra/pkg/models"
)

var (
	invoiceNumberPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)invoice\s*#:?\s*([A-Z0-9\-]+)`),
		regexp.MustCompile(`(?i)inv\s*#:?\s*([A-Z0-9\-]+)`),
		regexp.MustCompile(`(?i)invoice\s+number:?\s*([A-Z0-9\-]+)`),
	}
	invoiceDatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)invoice\s+date:?\s*` + datePattern),
		regexp.MustCompile(`(?i)date:?\s*` + datePattern),
		regexp.MustCompile(`(?i)dated\s+` + datePattern),
	}
	dueDatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)due\s+date:?\s*` + datePattern),
		regexp.MustCompile(`(?i)payment\s+due:?\s*` + datePattern),
	}
	subtotalPattern = regexp.MustCompile(`(?i)sub\s*total:?\s*\$?\s*([\d,]+\.?\d{0,2})`)
	taxPattern      = regexp.MustCompile(`(?i)tax:?\s*\$?\s*([\d,]+\.?\d{0,2})`)
	totalPatterns   = []*regexp.Regexp{
		regexp.MustCompile(`(?i)total\s+(?:amount\s+)?due:?\s*\$?\s*([\d,]+\.?\d{0,2})`),
		regexp.MustCompile(`(?i)(?:grand\s+)?total:?\s*\$?\s*([\d,]+\.?\d{0,2})`),
		regexp.MustCompile(`(?i)amount\s+due:?\s*\$?\s*([\d,]+\.?\d{0,2})`),
	}

	vendorLinePattern   = regexp.MustCompile(`(?i)(?:from|vendor|seller|billed?\s+from):?\s*([^\n]+)`)
	customerLinePattern = regexp.MustCompile(`(?i)(?:bill\s+to|customer|buyer|sold\s+to):?\s*([^\n]+)`)
	companyNamePattern  = regexp.MustCompile(`([A-Z][A-Za-z&\s]+(?:Inc|LLC|Ltd|Corp|Company)\.?)`)
	streetPattern       = regexp.MustCompile(`(?i)(\d+\s+[A-Za-z\s]+(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Drive|Dr|Lane|Ln|Way|Suite|Ste)\.?[^\n]*)`)
	phonePattern        = regexp.MustCompile(`(?i)(?:phone|tel):?\s*([\d\-\(\)\s\+\.]{7,20})`)
	emailPattern        = regexp.MustCompile(`([a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,})`)

	lineItemTextPattern = regexp.MustCompile(`(?m)^([A-Za-z][A-Za-z\s\-]+?)\s+(\d+)\s+\$?([\d,]+\.?\d{0,2})\s+\$?([\d,]+\.?\d{0,2})\s*$`)
)

// ParseInvoice extracts the invoice header, vendor, customer, and line items
// from markdown.
func ParseInvoice(markdown, documentID, graphID string) []*models.Entity {
	text := StripHTML(markdown)
	var entities []*models.Entity

	if inv := parseInvoiceHeader(text, documentID, graphID); inv != nil {
		entities = append(entities, inv)
	}
	if vendor := parseInvoiceParty(text, vendorLinePattern, models.EntityVendor, "vendor", documentID, graphID); vendor != nil {
		entities = append(entities, vendor)
	}
	if customer := parseInvoiceParty(text, customerLinePattern, models.EntityCompany, "customer", documentID, graphID); customer != nil {
		entities = append(entities, customer)
	}
	entities = append(entities, parseLineItems(markdown, text, documentID, graphID)...)
	return entities
}

func parseInvoiceHeader(text, documentID, graphID string) *models.Entity {
	properties := make(map[string]any)
	if v := firstMatch(invoiceNumberPatterns, text); v != "" {
		properties["invoice_number"] = v
	}
	if v := firstMatch(invoiceDatePatterns, text); v != "" {
		properties["invoice_date"] = v
	}
	if v := firstMatch(dueDatePatterns, text); v != "" {
		properties["due_date"] = v
	}
	if m := subtotalPattern.FindStringSubmatch(text); m != nil {
		properties["subtotal"] = parseAmount(m[1])
	}
	if m := taxPattern.FindStringSubmatch(text); m != nil {
		properties["tax"] = parseAmount(m[1])
	}
	if v := firstMatch(totalPatterns, text); v != "" {
		properties["total"] = parseAmount(v)
		properties["currency"] = "USD"
	}
	if len(properties) == 0 {
		return nil
	}
	properties["status"] = "pending"

	name := "Invoice Unknown"
	if num, ok := properties["invoice_number"].(string); ok {
		name = "Invoice " + num
	}
	return &models.Entity{
		ID:         models.NewEntityID(),
		Type:       models.EntityInvoice,
		Name:       name,
		Properties: properties,
		Citations:  []models.Citation{{Page: 1, Section: "Invoice Header"}},
		DocumentID: documentID,
		GraphID:    graphID,
	}
}

func parseInvoiceParty(text string, linePattern *regexp.Regexp, entityType models.EntityType, role, documentID, graphID string) *models.Entity {
	var name string
	if m := linePattern.FindStringSubmatch(text); m != nil {
		name = cleanPartyName(m[1])
	}
	if name == "" && role == "vendor" {
		if m := companyNamePattern.FindStringSubmatch(text); m != nil {
			name = strings.TrimSpace(m[1])
		}
	}
	if name == "" {
		return nil
	}

	properties := map[string]any{"role": role}
	if role == "vendor" {
		if m := streetPattern.FindStringSubmatch(text); m != nil {
			properties["address"] = strings.TrimSpace(m[1])
		}
		if m := phonePattern.FindStringSubmatch(text); m != nil {
			properties["phone"] = strings.TrimSpace(m[1])
		}
		if m := emailPattern.FindStringSubmatch(text); m != nil {
			properties["email"] = m[1]
		}
	}
	return &models.Entity{
		ID:         models.NewEntityID(),
		Type:       entityType,
		Name:       name,
		Properties: properties,
		Citations:  []models.Citation{{Page: 1, Section: strings.ToUpper(role[:1]) + role[1:] + " Information"}},
		DocumentID: documentID,
		GraphID:    graphID,
	}
}

var lineItemHeaderKeys = []string{"description", "item", "qty", "quantity", "price", "amount"}

// parseLineItems pulls line items from HTML tables whose header mentions an
// item column; if no such table exists, it falls back to a positional text
// scan of "description qty price amount" lines.
func parseLineItems(markdown, text, documentID, graphID string) []*models.Entity {
	var entities []*models.Entity
	for _, t := range ExtractHTMLTables(markdown) {
		if len(t.Rows) < 2 || !isLineItemHeader(t.Rows[0]) {
			continue
		}
		headers := make([]string, len(t.Rows[0]))
		for i, cell := range t.Rows[0] {
			headers[i] = strings.ToLower(strings.TrimSpace(cell))
		}
		for _, row := range t.Rows[1:] {
			if len(row) < 2 {
				continue
			}
			if item := lineItemFromRow(headers, row); item != nil {
				entities = append(entities, lineItemEntity(item, len(entities)+1, documentID, graphID))
			}
		}
	}
	if len(entities) > 0 {
		return entities
	}
	for _, m := range lineItemTextPattern.FindAllStringSubmatch(text, -1) {
		desc := strings.TrimSpace(m[1])
		if desc == "" {
			continue
		}
		qty, _ := strconv.Atoi(m[2])
		item := map[string]any{
			"description": desc,
			"quantity":    qty,
			"unit_price":  parseAmount(m[3]),
			"amount":      parseAmount(m[4]),
		}
		entities = append(entities, lineItemEntity(item, len(entities)+1, documentID, graphID))
	}
	return entities
}

func isLineItemHeader(row []string) bool {
	joined := strings.ToLower(strings.Join(row, " "))
	for _, key := range lineItemHeaderKeys {
		if strings.Contains(joined, key) {
			return true
		}
	}
	return false
}

func lineItemFromRow(headers, row []string) map[string]any {
	item := make(map[string]any)
	for i, header := range headers {
		if i >= len(row) {
			break
		}
		value := strings.TrimSpace(row[i])
		if value == "" {
			continue
		}
		switch {
		case strings.Contains(header, "desc") || strings.Contains(header, "item"):
			item["description"] = value
		case strings.Contains(header, "qty") || strings.Contains(header, "quantity"):
			if n, err := strconv.Atoi(stripNonNumeric(value)); err == nil {
				item["quantity"] = n
			}
		case strings.Contains(header, "price") || strings.Contains(header, "rate"):
			item["unit_price"] = parseAmount(value)
		case strings.Contains(header, "amount") || strings.Contains(header, "total"):
			item["amount"] = parseAmount(value)
		}
	}
	if _, ok := item["description"]; !ok {
		return nil
	}
	return item
}

func lineItemEntity(item map[string]any, ordinal int, documentID, graphID string) *models.Entity {
	item["category"] = "invoice_line_item"
	name, _ := item["description"].(string)
	return &models.Entity{
		ID:         models.NewEntityID(),
		Type:       models.EntityMetric,
		Name:       name,
		Properties: item,
		Citations:  []models.Citation{{Page: 1, Section: fmt.Sprintf("Line Item %d", ordinal)}},
		DocumentID: documentID,
		GraphID:    graphID,
	}
}

func parseAmount(value string) float64 {
	f, _ := strconv.ParseFloat(stripNonNumeric(value), 64)
	return f
}

func stripNonNumeric(value string) string {
	var b strings.Builder
	for _, r := range value {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
