package parsers

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/arthanethra/arthanethra/pkg/models"
)

var (
	merchantPattern      = regexp.MustCompile(`(?i)(?:merchant|store|sold\s+by):?\s*([^\n]+)`)
	receiptNumberPattern = regexp.MustCompile(`(?i)(?:receipt|transaction)\s*(?:#|no\.?|number):?\s*([A-Z0-9\-]+)`)
	paymentMethodPattern = regexp.MustCompile(`(?i)(?:paid\s+(?:by|with)|payment\s+method):?\s*([^\n]+)`)
	receiptItemPattern   = regexp.MustCompile(`(?m)^([A-Za-z][A-Za-z\s\-]+?)\s+\$?([\d,]+\.\d{2})\s*$`)

	emailFromPattern    = regexp.MustCompile(`(?im)^from:?\s*([^\n]+)$`)
	emailToPattern      = regexp.MustCompile(`(?im)^to:?\s*([^\n]+)$`)
	emailSubjectPattern = regexp.MustCompile(`(?im)^subject:?\s*([^\n]+)$`)
	emailDatePattern    = regexp.MustCompile(`(?im)^(?:date|sent):?\s*([^\n]+)$`)
	emailMoneyPattern   = regexp.MustCompile(`\$\s*[\d,]+(?:\.\d{1,2})?(?:\s*(?:million|billion|thousand|M|B|K))?`)
)

// ParseReceipt extracts the merchant, totals, and purchased items from a
// receipt. Line items are positional "description price" lines; tables fall
// through to the invoice line-item logic.
func ParseReceipt(markdown, documentID, graphID string) []*models.Entity {
	text := StripHTML(markdown)
	var entities []*models.Entity

	properties := make(map[string]any)
	if m := receiptNumberPattern.FindStringSubmatch(text); m != nil {
		properties["receipt_number"] = strings.TrimSpace(m[1])
	}
	if v := firstMatch(invoiceDatePatterns, text); v != "" {
		properties["date"] = v
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
	if m := paymentMethodPattern.FindStringSubmatch(text); m != nil {
		properties["payment_method"] = strings.ToLower(strings.TrimSpace(m[1]))
	}
	if len(properties) > 0 {
		name := "Receipt"
		if num, ok := properties["receipt_number"].(string); ok {
			name = "Receipt " + num
		}
		entities = append(entities, &models.Entity{
			ID:         models.NewEntityID(),
			Type:       models.EntityInvoice,
			Name:       name,
			Properties: properties,
			Citations:  []models.Citation{{Page: 1, Section: "Receipt Header"}},
			DocumentID: documentID,
			GraphID:    graphID,
		})
	}

	if m := merchantPattern.FindStringSubmatch(text); m != nil {
		if name := cleanPartyName(m[1]); name != "" {
			entities = append(entities, &models.Entity{
				ID:         models.NewEntityID(),
				Type:       models.EntityVendor,
				Name:       name,
				Properties: map[string]any{"role": "merchant"},
				Citations:  []models.Citation{{Page: 1, Section: "Merchant Information"}},
				DocumentID: documentID,
				GraphID:    graphID,
			})
		}
	}

	items := parseLineItems(markdown, text, documentID, graphID)
	if len(items) == 0 {
		for _, m := range receiptItemPattern.FindAllStringSubmatch(text, -1) {
			desc := strings.TrimSpace(m[1])
			if desc == "" || strings.EqualFold(desc, "total") || strings.EqualFold(desc, "subtotal") || strings.EqualFold(desc, "tax") {
				continue
			}
			items = append(items, lineItemEntity(map[string]any{
				"description": desc,
				"amount":      parseAmount(m[2]),
			}, len(items)+1, documentID, graphID))
		}
	}
	return append(entities, items...)
}

// ParseEmail splits an email into its header fields and body, emitting the
// correspondence as a clause entity plus sender/recipient entities and any
// monetary amounts mentioned in the body.
func ParseEmail(markdown, documentID, graphID string) []*models.Entity {
	text := StripHTML(markdown)
	var entities []*models.Entity

	properties := make(map[string]any)
	subject := ""
	if m := emailSubjectPattern.FindStringSubmatch(text); m != nil {
		subject = strings.TrimSpace(m[1])
		properties["subject"] = subject
	}
	if m := emailDatePattern.FindStringSubmatch(text); m != nil {
		properties["date"] = strings.TrimSpace(m[1])
	}
	if m := emailFromPattern.FindStringSubmatch(text); m != nil {
		properties["from"] = strings.TrimSpace(m[1])
	}
	if m := emailToPattern.FindStringSubmatch(text); m != nil {
		properties["to"] = strings.TrimSpace(m[1])
	}

	name := "Email"
	if subject != "" {
		name = "Email: " + subject
	}
	entities = append(entities, &models.Entity{
		ID:         models.NewEntityID(),
		Type:       models.EntityClause,
		Name:       name,
		Properties: properties,
		Citations:  []models.Citation{{Page: 1, Section: "Email Header"}},
		DocumentID: documentID,
		GraphID:    graphID,
	})

	for field, role := range map[string]string{"from": "sender", "to": "recipient"} {
		raw, ok := properties[field].(string)
		if !ok {
			continue
		}
		party := emailAddressName(raw)
		if party == "" {
			continue
		}
		props := map[string]any{"role": role}
		if m := emailPattern.FindStringSubmatch(raw); m != nil {
			props["email"] = m[1]
		}
		entities = append(entities, &models.Entity{
			ID:         models.NewEntityID(),
			Type:       partyType(party),
			Name:       party,
			Properties: props,
			Citations:  []models.Citation{{Page: 1, Section: "Email Header"}},
			DocumentID: documentID,
			GraphID:    graphID,
		})
	}

	body := emailBody(text)
	seen := make(map[string]bool)
	for i, amount := range emailMoneyPattern.FindAllString(body, -1) {
		amount = strings.TrimSpace(amount)
		if seen[amount] {
			continue
		}
		seen[amount] = true
		entities = append(entities, &models.Entity{
			ID:   models.NewEntityID(),
			Type: models.EntityMetric,
			Name: amount,
			Properties: map[string]any{
				"extracted_from": "email_body",
				"source_type":    "MONEY",
			},
			Citations:  []models.Citation{{Page: 1, Section: fmt.Sprintf("Email Body, Amount %d", i+1)}},
			DocumentID: documentID,
			GraphID:    graphID,
		})
	}
	return entities
}

// emailAddressName prefers the display name over the bare address.
func emailAddressName(raw string) string {
	name := raw
	if idx := strings.Index(name, "<"); idx >= 0 {
		name = name[:idx]
	}
	name = strings.Trim(strings.TrimSpace(name), `"`)
	if name == "" {
		if m := emailPattern.FindStringSubmatch(raw); m != nil {
			return m[1]
		}
	}
	return name
}

// emailBody drops leading header lines so amount extraction only sees the
// message itself.
func emailBody(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" && i > 0 {
			return strings.Join(lines[i+1:], "\n")
		}
		lower := strings.ToLower(trimmed)
		if !strings.HasPrefix(lower, "from:") && !strings.HasPrefix(lower, "to:") &&
			!strings.HasPrefix(lower, "subject:") && !strings.HasPrefix(lower, "date:") &&
			!strings.HasPrefix(lower, "sent:") && !strings.HasPrefix(lower, "cc:") {
			return strings.Join(lines[i:], "\n")
		}
	}
	return text
}
