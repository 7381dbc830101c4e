package analytics

// fieldCategories groups the financial statement fields the parsers produce,
// used to attach context to metric results.
var fieldCategories = map[string][]string{
	"receivables": {
		"accounts_receivable",
		"accrued_interest_receivable",
		"intergovernmental_receivable",
		"income_tax_receivable",
		"property_taxes_receivable",
		"special_assessments_receivable",
		"revenue_in_lieu_of_taxes_receivable",
		"due_from_other_governments",
		"notes_receivable",
		"loans_receivable",
	},
	"liabilities": {
		"accounts_payable",
		"accrued_wages_and_benefits",
		"contracts_payable",
		"retainage_payable",
		"intergovernmental_payable",
		"accrued_interest_payable",
		"matured_compensated_absences_payable",
		"claims_payable",
		"due_to_other_governments",
		"unearned_revenue",
		"long_term_liabilities_due_within_one_year",
		"long_term_liabilities_due_in_more_than_one_year",
		"net_pension_liability",
		"net_opeb_liability",
		"total_liabilities",
	},
	"deferred_inflows": {
		"deferred_inflows_pension_related",
		"deferred_inflows_opeb_related",
		"deferred_inflows_property_taxes",
		"deferred_inflows_special_assessments",
		"deferred_inflows_other_amounts",
		"total_deferred_inflows_of_resources",
	},
	"assets": {
		"cash_and_cash_equivalents",
		"investments",
		"inventory_held_for_resale",
		"materials_and_supplies_inventory",
		"restricted_assets",
		"nondepreciable_capital_assets",
		"depreciable_capital_assets",
		"total_assets",
	},
	"debt": {
		"total_debt",
		"long_term_debt",
		"short_term_debt",
		"bonds_payable",
		"notes_payable",
		"loan_principal",
	},
}

// collectNonzeroFields pulls the named numeric fields out of properties,
// dropping missing and zero values.
func collectNonzeroFields(properties map[string]any, fields []string) map[string]float64 {
	collected := map[string]float64{}
	for _, field := range fields {
		value, ok := toFloat(properties[field])
		if !ok || value == 0 {
			continue
		}
		collected[field] = value
	}
	return collected
}

// collectFieldSummary aggregates the named categories across a result set,
// excluding the field the metric already ordered on.
func collectFieldSummary(entities []map[string]any, excludeField string, categories []string) map[string]any {
	summary := map[string]any{}
	for _, category := range categories {
		fields := fieldCategories[category]
		categoryData := map[string][]float64{}
		for _, entity := range entities {
			properties, _ := entity["properties"].(map[string]any)
			for _, field := range fields {
				if field == excludeField {
					continue
				}
				value, ok := toFloat(properties[field])
				if !ok || value == 0 {
					continue
				}
				categoryData[field] = append(categoryData[field], value)
			}
		}
		if len(categoryData) == 0 {
			continue
		}
		categorySummary := map[string]any{}
		for field, values := range categoryData {
			sum := 0.0
			for _, v := range values {
				sum += v
			}
			categorySummary[field] = map[string]any{
				"sum":   sum,
				"avg":   sum / float64(len(values)),
				"count": len(values),
			}
		}
		summary[category] = categorySummary
	}
	return summary
}
