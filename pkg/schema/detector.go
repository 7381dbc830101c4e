package schema

import (
	"regexp"
	"strings"
)

// Detection is the outcome of document-type classification.
type Detection struct {
	Type            string   `json:"type"`
	Confidence      float64  `json:"confidence"`
	Structure       []string `json:"structure"`
	ParsingStrategy string   `json:"parsing_strategy"`
}

type typePattern struct {
	keywords   []string
	indicators []string
	structure  []string
	threshold  float64
}

// typePatterns scores each document family: keywords and indicators weigh
// 40% each, structural markers 20%.
var typePatterns = map[string]typePattern{
	"financial_statement": {
		keywords:   []string{"balance sheet", "income statement", "cash flow", "assets", "liabilities", "equity"},
		indicators: []string{"total assets", "net income", "revenue", "expenses"},
		structure:  []string{"table"},
		threshold:  0.6,
	},
	"invoice": {
		keywords:   []string{"invoice", "bill to", "ship to", "invoice number", "due date", "amount due"},
		indicators: []string{"subtotal", "tax", "total", "quantity", "price"},
		structure:  []string{"key_value", "line_items"},
		threshold:  0.7,
	},
	"contract": {
		keywords:   []string{"whereas", "parties", "agreement", "contract", "hereby", "witnesseth"},
		indicators: []string{"term", "conditions", "obligations", "effective date"},
		structure:  []string{"sections", "clauses"},
		threshold:  0.6,
	},
	"receipt": {
		keywords:   []string{"receipt", "transaction", "purchased", "paid", "store"},
		indicators: []string{"date", "time", "items", "total", "payment method"},
		structure:  []string{"line_items"},
		threshold:  0.7,
	},
	"email": {
		keywords:   []string{"from:", "to:", "subject:", "date:", "cc:", "bcc:"},
		indicators: []string{"sent", "received", "reply", "forward"},
		structure:  []string{"headers", "body"},
		threshold:  0.8,
	},
	"form": {
		keywords:   []string{"application", "form", "applicant", "please fill"},
		indicators: []string{"name:", "address:", "phone:", "signature:"},
		structure:  []string{"key_value"},
		threshold:  0.6,
	},
	"loan_document": {
		keywords:   []string{"loan", "borrower", "lender", "principal", "interest rate", "maturity"},
		indicators: []string{"loan amount", "apr", "monthly payment", "term"},
		structure:  []string{"key_value", "clauses"},
		threshold:  0.7,
	},
}

var (
	keyValuePattern = regexp.MustCompile(`\w+:\s*\w+`)
	headingPattern  = regexp.MustCompile(`(?m)^#+\s+`)
)

// DetectDocumentType classifies markdown into one of the known families.
// Falls back to "generic" when the best score misses its threshold.
func DetectDocumentType(markdown string) Detection {
	lower := strings.ToLower(markdown)

	bestType := ""
	bestScore := -1.0
	for docType, p := range typePatterns {
		score := scoreType(markdown, lower, p)
		if score > bestScore || (score == bestScore && docType < bestType) {
			bestType, bestScore = docType, score
		}
	}
	if bestType == "" || bestScore < typePatterns[bestType].threshold {
		return defaultDetection(markdown)
	}
	return Detection{
		Type:            bestType,
		Confidence:      bestScore,
		Structure:       typePatterns[bestType].structure,
		ParsingStrategy: parsingStrategy(bestType, markdown),
	}
}

func scoreType(markdown, lower string, p typePattern) float64 {
	keywordMatches := 0
	for _, kw := range p.keywords {
		if strings.Contains(lower, kw) {
			keywordMatches++
		}
	}
	indicatorMatches := 0
	for _, ind := range p.indicators {
		if strings.Contains(lower, ind) {
			indicatorMatches++
		}
	}
	score := float64(keywordMatches)/float64(len(p.keywords))*0.4 +
		float64(indicatorMatches)/float64(len(p.indicators))*0.4
	for _, s := range p.structure {
		switch {
		case s == "table" && strings.Contains(markdown, "<table"):
			score += 0.2
		case s == "key_value" && keyValuePattern.MatchString(markdown):
			score += 0.2
		case s == "sections" && headingPattern.MatchString(markdown):
			score += 0.2
		}
	}
	return score
}

func parsingStrategy(docType, markdown string) string {
	hasTables := strings.Contains(markdown, "<table") || strings.Contains(markdown, "|")
	switch docType {
	case "financial_statement":
		if hasTables {
			return "deterministic_table"
		}
		return "ade_with_template"
	case "invoice", "form":
		return "template_extraction"
	case "contract":
		return "clause_extraction"
	case "receipt":
		return "line_item_extraction"
	case "email":
		return "header_body_split"
	case "loan_document":
		return "hybrid"
	default:
		return "ade_generic"
	}
}

func defaultDetection(markdown string) Detection {
	hasTables := strings.Contains(markdown, "<table") || strings.Contains(markdown, "|")
	d := Detection{Type: "generic", Confidence: 0, Structure: []string{"text"}, ParsingStrategy: "ade_generic"}
	if hasTables {
		d.Structure = []string{"table"}
		d.ParsingStrategy = "deterministic_table"
	}
	return d
}
