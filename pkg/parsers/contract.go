package parsers

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/arthanethra/arthanethra/pkg/models"
)

var (
	contractTitlePattern = regexp.MustCompile(`(?m)^([A-Z\s]+(?:AGREEMENT|CONTRACT|LICENSE))\s*$`)

	effectiveDatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)effective\s+date:?\s*` + datePattern),
		regexp.MustCompile(`(?i)dated\s+as\s+of\s+` + datePattern),
		regexp.MustCompile(`(?i)entered\s+into\s+on\s+` + datePattern),
	}
	expirationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)expiration\s+date:?\s*` + datePattern),
		regexp.MustCompile(`(?i)termination\s+date:?\s*` + datePattern),
		regexp.MustCompile(`(?i)expires\s+on\s+` + datePattern),
	}
	contractTermPattern = regexp.MustCompile(`(?i)term\s+of\s+(\d+)\s+(year|month|day)s?`)
	governingLawPattern = regexp.MustCompile(`(?i)governed\s+by\s+(?:the\s+)?laws?\s+of\s+([A-Za-z\s]+?)(?:\.|,)`)

	betweenPattern = regexp.MustCompile(`(?i)between\s+([A-Z][A-Za-z&\s,\.]+?(?:Inc|LLC|Ltd|Corp|Company)\.?|[A-Z][a-z]+\s+[A-Z][a-z]+)\s+and\s+([A-Z][A-Za-z&\s,\.]+?(?:Inc|LLC|Ltd|Corp|Company)\.?|[A-Z][a-z]+\s+[A-Z][a-z]+)`)
	rolePatterns   = []struct {
		re   *regexp.Regexp
		role string
	}{
		{regexp.MustCompile(`(?i)lender:?\s*([^\n]+)`), "lender"},
		{regexp.MustCompile(`(?i)borrower:?\s*([^\n]+)`), "borrower"},
		{regexp.MustCompile(`(?i)seller:?\s*([^\n]+)`), "seller"},
		{regexp.MustCompile(`(?i)buyer:?\s*([^\n]+)`), "buyer"},
		{regexp.MustCompile(`(?i)licensor:?\s*([^\n]+)`), "licensor"},
		{regexp.MustCompile(`(?i)licensee:?\s*([^\n]+)`), "licensee"},
		{regexp.MustCompile(`(?i)lessor:?\s*([^\n]+)`), "lessor"},
		{regexp.MustCompile(`(?i)lessee:?\s*([^\n]+)`), "lessee"},
	}

	sectionNumberPattern  = regexp.MustCompile(`^(\d+\.?\d*)`)
	textSectionPatterns   = []*regexp.Regexp{
		regexp.MustCompile(`(?m)^(\d+\.?\s+[A-Z][A-Za-z\s]+)$`),
		regexp.MustCompile(`(?m)^([A-Z][A-Z\s]{3,60})$`),
		regexp.MustCompile(`(?m)^(ARTICLE\s+[IVX\d]+[^\n]*)`),
		regexp.MustCompile(`(?m)^(Section\s+\d+\.?\d*[^\n]*)`),
	}
	// The party group stays on one line so headings do not bleed into it.
	obligationPattern = regexp.MustCompile(`([A-Za-z][A-Za-z ]+?)\s+(?:shall|must)\s+([^\.]+)\.`)
)

const (
	maxContractSections   = 20
	maxObligations        = 10
	sectionContentMaxLen  = 500
	obligationSummaryLen  = 50
)

// ParseContract extracts a contract's header terms, parties, section clauses,
// and obligations from markdown.
func ParseContract(markdown, documentID, graphID string) []*models.Entity {
	text := StripHTML(markdown)
	var entities []*models.Entity

	entities = append(entities, parseContractHeader(text, documentID, graphID))
	entities = append(entities, parseContractParties(text, documentID, graphID)...)
	entities = append(entities, parseContractSections(markdown, text, documentID, graphID)...)
	entities = append(entities, parseObligations(text, documentID, graphID)...)
	return entities
}

func parseContractHeader(text, documentID, graphID string) *models.Entity {
	name := "Contract Agreement"
	if m := contractTitlePattern.FindStringSubmatch(text); m != nil {
		name = strings.TrimSpace(m[1])
	}

	properties := make(map[string]any)
	head := strings.ToLower(text)
	if len(head) > 500 {
		head = head[:500]
	}
	for _, ct := range []string{"agreement", "contract", "license", "lease", "loan", "service"} {
		if strings.Contains(head, ct) {
			properties["contract_type"] = ct
			break
		}
	}
	if v := firstMatch(effectiveDatePatterns, text); v != "" {
		properties["effective_date"] = v
	}
	if v := firstMatch(expirationPatterns, text); v != "" {
		properties["expiration_date"] = v
	}
	if m := contractTermPattern.FindStringSubmatch(text); m != nil {
		properties["term_length"] = m[1] + " " + strings.ToLower(m[2]) + "s"
	}
	if m := governingLawPattern.FindStringSubmatch(text); m != nil {
		properties["governing_law"] = strings.TrimSpace(m[1])
	}

	return &models.Entity{
		ID:         models.NewEntityID(),
		Type:       models.EntityClause,
		Name:       name,
		Properties: properties,
		Citations:  []models.Citation{{Page: 1, Section: "Contract Header"}},
		DocumentID: documentID,
		GraphID:    graphID,
	}
}

func parseContractParties(text, documentID, graphID string) []*models.Entity {
	type party struct {
		name string
		role string
	}
	var parties []party
	seen := make(map[string]bool)
	add := func(name, role string) {
		name = cleanPartyName(name)
		if name == "" || seen[strings.ToLower(name)] {
			return
		}
		seen[strings.ToLower(name)] = true
		parties = append(parties, party{name: name, role: role})
	}

	if m := betweenPattern.FindStringSubmatch(text); m != nil {
		add(m[1], "party_1")
		add(m[2], "party_2")
	}
	for _, rp := range rolePatterns {
		if m := rp.re.FindStringSubmatch(text); m != nil {
			add(m[1], rp.role)
		}
	}

	entities := make([]*models.Entity, 0, len(parties))
	for _, p := range parties {
		entities = append(entities, &models.Entity{
			ID:         models.NewEntityID(),
			Type:       partyType(p.name),
			Name:       p.name,
			Properties: map[string]any{"role": p.role},
			Citations:  []models.Citation{{Page: 1, Section: "Parties"}},
			DocumentID: documentID,
			GraphID:    graphID,
		})
	}
	return entities
}

type contractSection struct {
	title   string
	content string
}

func parseContractSections(markdown, text, documentID, graphID string) []*models.Entity {
	sections := extractHTMLSections(markdown)
	if len(sections) == 0 {
		sections = extractTextSections(text)
	}
	if len(sections) > maxContractSections {
		sections = sections[:maxContractSections]
	}

	entities := make([]*models.Entity, 0, len(sections))
	for _, s := range sections {
		properties := map[string]any{
			"clause_type": classifyClause(s.title, s.content),
		}
		if s.content != "" {
			properties["content"] = s.content
		}
		if m := sectionNumberPattern.FindStringSubmatch(s.title); m != nil {
			properties["section_number"] = m[1]
		}
		entities = append(entities, &models.Entity{
			ID:         models.NewEntityID(),
			Type:       models.EntityClause,
			Name:       s.title,
			Properties: properties,
			Citations:  []models.Citation{{Page: 1, Section: s.title}},
			DocumentID: documentID,
			GraphID:    graphID,
		})
	}
	return entities
}

// extractHTMLSections pairs each h1-h4 heading with the text of its following
// siblings up to the next heading.
func extractHTMLSections(markdown string) []contractSection {
	if !strings.Contains(markdown, "<h") {
		return nil
	}
	doc, err := html.Parse(strings.NewReader(markdown))
	if err != nil {
		return nil
	}
	var sections []contractSection
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && isHeading(n.Data) {
			title := strings.TrimSpace(nodeText(n))
			if title != "" {
				sections = append(sections, contractSection{
					title:   title,
					content: headingContent(n),
				})
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return sections
}

func isHeading(tag string) bool {
	return tag == "h1" || tag == "h2" || tag == "h3" || tag == "h4"
}

func headingContent(heading *html.Node) string {
	var b strings.Builder
	for sib := heading.NextSibling; sib != nil; sib = sib.NextSibling {
		if sib.Type == html.ElementNode && isHeading(sib.Data) {
			break
		}
		b.WriteString(nodeText(sib))
		if b.Len() >= sectionContentMaxLen {
			break
		}
	}
	content := strings.TrimSpace(spacePattern.ReplaceAllString(b.String(), " "))
	if len(content) > sectionContentMaxLen {
		content = content[:sectionContentMaxLen]
	}
	return content
}

func extractTextSections(text string) []contractSection {
	var sections []contractSection
	seen := make(map[string]bool)
	for _, re := range textSectionPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			title := strings.TrimSpace(m[1])
			if title == "" || seen[title] {
				continue
			}
			seen[title] = true
			sections = append(sections, contractSection{title: title})
			if len(sections) >= maxContractSections {
				return sections
			}
		}
	}
	return sections
}

func classifyClause(title, content string) string {
	lowered := strings.ToLower(title)
	switch {
	case containsAny(lowered, "payment", "price", "fee", "compensation"):
		return "payment"
	case containsAny(lowered, "term", "duration"):
		return "term"
	case containsAny(lowered, "termination", "cancellation"):
		return "termination"
	case containsAny(lowered, "warranty", "guarantee"):
		return "warranty"
	case containsAny(lowered, "liability", "indemnity"):
		return "liability"
	case containsAny(lowered, "confidential", "nda", "non-disclosure"):
		return "confidentiality"
	case containsAny(lowered, "delivery", "performance"):
		return "performance"
	}
	if containsAny(strings.ToLower(content), "shall", "must") {
		return "obligation"
	}
	return "general"
}

func parseObligations(text, documentID, graphID string) []*models.Entity {
	var entities []*models.Entity
	for _, m := range obligationPattern.FindAllStringSubmatch(text, -1) {
		if len(entities) >= maxObligations {
			break
		}
		party := strings.TrimSpace(m[1])
		description := strings.TrimSpace(m[2])
		if party == "" || description == "" {
			continue
		}
		summary := description
		if len(summary) > obligationSummaryLen {
			summary = summary[:obligationSummaryLen] + "..."
		}
		entities = append(entities, &models.Entity{
			ID:   models.NewEntityID(),
			Type: models.EntityClause,
			Name: "Obligation: " + summary,
			Properties: map[string]any{
				"description": description,
				"party":       party,
				"type":        "obligation",
			},
			Citations:  []models.Citation{{Page: 1, Section: "Obligations"}},
			DocumentID: documentID,
			GraphID:    graphID,
		})
	}
	return entities
}
