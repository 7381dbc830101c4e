package schema

// Presets are hand-tuned extraction schemas for common financial document
// families, selectable by label instead of adaptive synthesis.
var Presets = map[string]map[string]any{
	"financial_basic": financialBasic,
	"invoice_basic":   invoiceBasic,
}

var financialBasic = map[string]any{
	"type":  "object",
	"title": "Financial Report Extraction",
	"properties": map[string]any{
		"company_info": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"company_name": map[string]any{"type": "string", "description": "Official company name"},
				"ticker":       map[string]any{"type": "string", "description": "Ticker symbol if present"},
				"report_type":  map[string]any{"type": "string", "description": "10-K, 10-Q, annual report, etc."},
				"fiscal_year":  map[string]any{"type": "string", "description": "Fiscal year or period"},
			},
			"required":    []string{"company_name"},
			"description": "High-level identity of the issuer",
		},
		"report_info": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"filing_date": map[string]any{"type": "string"},
				"period_end":  map[string]any{"type": "string"},
				"auditor":     map[string]any{"type": "string"},
			},
		},
		"loans": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"lender":     map[string]any{"type": "string"},
					"instrument": map[string]any{"type": "string", "description": "Term loan, revolver, notes, etc."},
					"principal":  map[string]any{"type": "string"},
					"rate":       map[string]any{"type": "string"},
					"maturity":   map[string]any{"type": "string"},
					"covenants":  map[string]any{"type": "string", "description": "Key financial covenants if present"},
				},
			},
			"description": "Debt instruments and key terms",
		},
		"metrics": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"revenue":    map[string]any{"type": "string"},
				"ebitda":     map[string]any{"type": "string"},
				"net_income": map[string]any{"type": "string"},
				"debt_ratio": map[string]any{"type": "string"},
				"cash_flow":  map[string]any{"type": "string"},
			},
			"description": "Key financial metrics if explicitly present",
		},
		"risks": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"risk_title":  map[string]any{"type": "string"},
					"description": map[string]any{"type": "string"},
				},
			},
			"description": "Risk factors summarized from the document",
		},
		"summary": map[string]any{"type": "string", "description": "Executive summary"},
	},
	"required": []string{"company_info"},
}

var invoiceBasic = map[string]any{
	"type":  "object",
	"title": "Invoice Extraction",
	"properties": map[string]any{
		"seller":         map[string]any{"type": "string"},
		"buyer":          map[string]any{"type": "string"},
		"invoice_number": map[string]any{"type": "string"},
		"invoice_date":   map[string]any{"type": "string"},
		"due_date":       map[string]any{"type": "string"},
		"line_items": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"description": map[string]any{"type": "string"},
					"quantity":    map[string]any{"type": "string"},
					"unit_price":  map[string]any{"type": "string"},
					"amount":      map[string]any{"type": "string"},
				},
			},
		},
		"total": map[string]any{"type": "string"},
	},
	"required": []string{"seller", "buyer", "invoice_number"},
}
