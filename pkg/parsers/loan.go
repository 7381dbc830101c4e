package parsers

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/arthanethra/arthanethra/pkg/models"
)

var (
	loanNumberPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)loan\s*#?:?\s*([A-Z0-9\-]+)`),
		regexp.MustCompile(`(?i)loan\s+number:?\s*([A-Z0-9\-]+)`),
		regexp.MustCompile(`(?i)agreement\s+(?:no|number)\.?:?\s*([A-Z0-9\-]+)`),
	}
	principalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)principal\s+amount:?\s*\$?\s*([\d,]+\.?\d{0,2})`),
		regexp.MustCompile(`(?i)loan\s+amount:?\s*\$?\s*([\d,]+\.?\d{0,2})`),
		regexp.MustCompile(`(?i)(?:sum|amount)\s+of\s*\$?\s*([\d,]+\.?\d{0,2})`),
	}
	interestPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)interest\s+rate:?\s*([\d\.]+)\s*%`),
		regexp.MustCompile(`(?i)at\s+a\s+rate\s+of\s+([\d\.]+)\s*%`),
		regexp.MustCompile(`(?i)apr:?\s*([\d\.]+)\s*%`),
	}
	termPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)term\s+of\s+(\d+)\s+(year|month)s?`),
		regexp.MustCompile(`(?i)(\d+)[- ](year|month)\s+(?:term|loan)`),
		regexp.MustCompile(`(?i)repayment\s+period\s+of\s+(\d+)\s+(year|month)s?`),
	}
	datePattern = `(\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4})`

	originationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)dated\s+(?:as\s+of\s+)?` + datePattern),
		regexp.MustCompile(`(?i)origination\s+date:?\s*` + datePattern),
		regexp.MustCompile(`(?i)effective\s+date:?\s*` + datePattern),
	}
	maturityPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)maturity\s+date:?\s*` + datePattern),
		regexp.MustCompile(`(?i)due\s+(?:on|date):?\s*` + datePattern),
		regexp.MustCompile(`(?i)final\s+payment\s+date:?\s*` + datePattern),
	}

	lenderPattern   = regexp.MustCompile(`(?i)lender:?\s*([^\n]+)`)
	borrowerPattern = regexp.MustCompile(`(?i)borrower:?\s*([^\n]+)`)

	collateralPattern = regexp.MustCompile(`(?i)(?:secured\s+by|collateral|security):?\s*([^\.\n]+)`)
	purposePattern    = regexp.MustCompile(`(?i)purpose:?\s*([^\.\n]+)`)

	covenantPatterns = []struct {
		re           *regexp.Regexp
		covenantType string
	}{
		{regexp.MustCompile(`(?i)debt[- ]to[- ]equity\s+ratio\s+(?:of\s+)?(?:not\s+(?:more|greater)\s+than\s+)?([\d\.]+)`), "debt_to_equity_ratio"},
		{regexp.MustCompile(`(?i)minimum\s+(?:net\s+)?(?:working\s+)?capital\s+of\s*\$?\s*([\d,]+)`), "minimum_capital"},
		{regexp.MustCompile(`(?i)debt\s+service\s+coverage\s+ratio\s+(?:of\s+)?(?:at\s+least\s+)?([\d\.]+)`), "debt_service_coverage_ratio"},
		{regexp.MustCompile(`(?i)leverage\s+ratio\s+(?:of\s+)?(?:not\s+(?:more|greater)\s+than\s+)?([\d\.]+)`), "leverage_ratio"},
		{regexp.MustCompile(`(?i)interest\s+coverage\s+ratio\s+(?:of\s+)?(?:at\s+least\s+)?([\d\.]+)`), "interest_coverage_ratio"},
	}
	generalCovenantPattern = regexp.MustCompile(`(?i)(?:borrower|company)\s+shall\s+(?:maintain|not\s+exceed)\s+([^\.]+)\.`)

	feeAmountPatterns = []struct {
		re      *regexp.Regexp
		feeType string
	}{
		{regexp.MustCompile(`(?i)origination\s+fee:?\s*\$?\s*([\d,]+\.?\d{0,2})`), "origination_fee"},
		{regexp.MustCompile(`(?i)processing\s+fee:?\s*\$?\s*([\d,]+\.?\d{0,2})`), "processing_fee"},
		{regexp.MustCompile(`(?i)late\s+(?:payment\s+)?fee:?\s*\$?\s*([\d,]+\.?\d{0,2})`), "late_fee"},
		{regexp.MustCompile(`(?i)prepayment\s+penalty:?\s*\$?\s*([\d,]+\.?\d{0,2})`), "prepayment_penalty"},
	}
	commitmentFeePattern = regexp.MustCompile(`(?i)commitment\s+fee:?\s*([\d\.]+)\s*%`)
)

const maxCovenants = 10

// ParseLoan extracts a loan agreement's core terms, parties, covenants, and
// fees from markdown. It always returns at least the loan entity itself when
// any term is present.
func ParseLoan(markdown, documentID, graphID string) []*models.Entity {
	text := StripHTML(markdown)
	var entities []*models.Entity

	if loan := parseLoanTerms(text, documentID, graphID); loan != nil {
		entities = append(entities, loan)
	}
	entities = append(entities, parseLoanParties(text, documentID, graphID)...)
	entities = append(entities, parseCovenants(text, documentID, graphID)...)
	entities = append(entities, parseFees(text, documentID, graphID)...)
	return entities
}

func parseLoanTerms(text, documentID, graphID string) *models.Entity {
	properties := make(map[string]any)
	lowered := strings.ToLower(text)

	if v := firstMatch(loanNumberPatterns, text); v != "" {
		properties["loan_number"] = v
	}
	for _, lt := range []string{"term loan", "revolving credit", "line of credit", "mortgage", "bridge loan"} {
		if strings.Contains(lowered, lt) {
			properties["loan_type"] = lt
			break
		}
	}
	if v := firstMatch(principalPatterns, text); v != "" {
		if f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64); err == nil {
			properties["principal_amount"] = f
			properties["currency"] = "USD"
		}
	}
	if v := firstMatch(interestPatterns, text); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			properties["interest_rate"] = f
		}
	}
	switch {
	case strings.Contains(lowered, "fixed rate") || strings.Contains(lowered, "fixed interest"):
		properties["rate_type"] = "fixed"
	case strings.Contains(lowered, "variable rate") || strings.Contains(lowered, "adjustable") || strings.Contains(lowered, "floating"):
		properties["rate_type"] = "variable"
	}
	for _, re := range termPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			if strings.EqualFold(m[2], "year") {
				n *= 12
			}
			properties["term_months"] = n
			break
		}
	}
	if v := firstMatch(originationPatterns, text); v != "" {
		properties["origination_date"] = v
	}
	if v := firstMatch(maturityPatterns, text); v != "" {
		properties["maturity_date"] = v
	}
	for _, freq := range []string{"monthly", "quarterly", "annually"} {
		if strings.Contains(lowered, freq) {
			properties["payment_frequency"] = freq
			break
		}
	}
	if m := collateralPattern.FindStringSubmatch(text); m != nil {
		properties["collateral"] = strings.TrimSpace(m[1])
	}
	if m := purposePattern.FindStringSubmatch(text); m != nil {
		properties["purpose"] = strings.TrimSpace(m[1])
	}

	if len(properties) == 0 {
		return nil
	}

	name := "Loan Agreement"
	if num, ok := properties["loan_number"].(string); ok {
		name = "Loan " + num
	} else if m := borrowerPattern.FindStringSubmatch(text); m != nil {
		name = "Loan " + cleanPartyName(m[1])
	}

	return &models.Entity{
		ID:         models.NewEntityID(),
		Type:       models.EntityLoan,
		Name:       name,
		Properties: properties,
		Citations:  []models.Citation{{Page: 1, Section: "Loan Terms"}},
		DocumentID: documentID,
		GraphID:    graphID,
	}
}

func parseLoanParties(text, documentID, graphID string) []*models.Entity {
	var entities []*models.Entity
	if m := lenderPattern.FindStringSubmatch(text); m != nil {
		if name := cleanPartyName(m[1]); name != "" {
			entities = append(entities, &models.Entity{
				ID:         models.NewEntityID(),
				Type:       models.EntityCompany,
				Name:       name,
				Properties: map[string]any{"role": "lender"},
				Citations:  []models.Citation{{Page: 1, Section: "Lender Information"}},
				DocumentID: documentID,
				GraphID:    graphID,
			})
		}
	}
	if m := borrowerPattern.FindStringSubmatch(text); m != nil {
		if name := cleanPartyName(m[1]); name != "" {
			entities = append(entities, &models.Entity{
				ID:         models.NewEntityID(),
				Type:       partyType(name),
				Name:       name,
				Properties: map[string]any{"role": "borrower"},
				Citations:  []models.Citation{{Page: 1, Section: "Borrower Information"}},
				DocumentID: documentID,
				GraphID:    graphID,
			})
		}
	}
	return entities
}

// partyType distinguishes organizations from individuals by the corporate
// suffix in the name.
func partyType(name string) models.EntityType {
	upper := strings.ToUpper(name)
	for _, suffix := range []string{"INC", "LLC", "CORP", "LTD", "COMPANY"} {
		if strings.Contains(upper, suffix) {
			return models.EntityCompany
		}
	}
	return models.EntityPerson
}

func cleanPartyName(raw string) string {
	name := strings.TrimSpace(raw)
	if idx := strings.IndexAny(name, ",("); idx > 0 {
		name = strings.TrimSpace(name[:idx])
	}
	return name
}

func parseCovenants(text, documentID, graphID string) []*models.Entity {
	var entities []*models.Entity
	for _, cp := range covenantPatterns {
		if len(entities) >= maxCovenants {
			break
		}
		m := cp.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		threshold := coerceValue(m[1])
		title := titleWords(cp.covenantType)
		entities = append(entities, &models.Entity{
			ID:   models.NewEntityID(),
			Type: models.EntityClause,
			Name: title,
			Properties: map[string]any{
				"covenant_type": cp.covenantType,
				"threshold":     threshold,
				"description":   fmt.Sprintf("Must maintain %s of %v", strings.ReplaceAll(cp.covenantType, "_", " "), threshold),
			},
			Citations:  []models.Citation{{Page: 1, Section: "Covenants"}},
			DocumentID: documentID,
			GraphID:    graphID,
		})
	}
	for _, m := range generalCovenantPattern.FindAllStringSubmatch(text, -1) {
		if len(entities) >= maxCovenants {
			break
		}
		entities = append(entities, &models.Entity{
			ID:   models.NewEntityID(),
			Type: models.EntityClause,
			Name: "Financial Covenant",
			Properties: map[string]any{
				"covenant_type": "general",
				"description":   strings.TrimSpace(m[1]),
			},
			Citations:  []models.Citation{{Page: 1, Section: "Covenants"}},
			DocumentID: documentID,
			GraphID:    graphID,
		})
	}
	return entities
}

func parseFees(text, documentID, graphID string) []*models.Entity {
	var entities []*models.Entity
	for _, fp := range feeAmountPatterns {
		m := fp.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			continue
		}
		entities = append(entities, &models.Entity{
			ID:   models.NewEntityID(),
			Type: models.EntityMetric,
			Name: titleWords(fp.feeType),
			Properties: map[string]any{
				"fee_type": fp.feeType,
				"amount":   f,
				"currency": "USD",
			},
			Citations:  []models.Citation{{Page: 1, Section: "Fees"}},
			DocumentID: documentID,
			GraphID:    graphID,
		})
	}
	if m := commitmentFeePattern.FindStringSubmatch(text); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			entities = append(entities, &models.Entity{
				ID:   models.NewEntityID(),
				Type: models.EntityMetric,
				Name: "Commitment Fee",
				Properties: map[string]any{
					"fee_type":   "commitment_fee",
					"percentage": f,
				},
				Citations:  []models.Citation{{Page: 1, Section: "Fees"}},
				DocumentID: documentID,
				GraphID:    graphID,
			})
		}
	}
	return entities
}

func firstMatch(patterns []*regexp.Regexp, text string) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// titleWords converts a snake_case identifier into a Title Case display name.
func titleWords(s string) string {
	words := strings.Split(s, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
