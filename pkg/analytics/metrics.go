package analytics

import (
	"context"
	"fmt"
	"sort"

	"github.com/arthanethra/arthanethra/pkg/indexer"
)

func (e *Engine) propertyThreshold(ctx context.Context, params, callContext map[string]any) Result {
	entityType := paramString(params, "entity_type", "Location")
	propertyName := paramString(params, "property_name", "")
	threshold := paramFloat(params, "threshold", 0)
	operator := paramString(params, "operator", "gt")
	limit := paramInt(params, "limit", 100)
	graphID := resolveGraphID(params, callContext)

	if propertyName == "" {
		return Result{"error": "property_name is required"}
	}

	entities := e.fetch(ctx, entityType, graphID, limit)
	if len(entities) == 0 {
		return Result{
			"metric_name":   "property_threshold",
			"entity_type":   entityType,
			"property_name": propertyName,
			"operator":      operator,
			"threshold":     threshold,
			"results":       []map[string]any{},
			"count":         0,
			"message":       fmt.Sprintf("No %s entities found. Please upload and index documents first.", entityType),
		}
	}

	matches := []map[string]any{}
	for _, entity := range entities {
		value, ok := toFloat(entity.Properties[propertyName])
		if !ok {
			continue
		}
		if compareThreshold(value, threshold, operator) {
			matches = append(matches, map[string]any{
				"id":         entity.ID,
				"name":       entity.Name,
				"type":       entity.Type,
				propertyName: value,
				"properties": entity.Properties,
			})
		}
	}

	return Result{
		"metric_name":   "property_threshold",
		"entity_type":   entityType,
		"property_name": propertyName,
		"operator":      operator,
		"threshold":     threshold,
		"results":       matches,
		"count":         len(matches),
	}
}

func (e *Engine) propertyComparison(ctx context.Context, params, callContext map[string]any) Result {
	entityType := paramString(params, "entity_type", "Location")
	propertyA := paramString(params, "property_a", "")
	propertyB := paramString(params, "property_b", "")
	comparisonType := paramString(params, "comparison_type", "ratio")
	threshold := paramFloat(params, "threshold", 0)
	operator := paramString(params, "operator", "gt")
	limit := paramInt(params, "limit", 100)
	graphID := resolveGraphID(params, callContext)

	if propertyA == "" || propertyB == "" {
		return Result{"error": "property_a and property_b are required"}
	}

	entities := e.fetch(ctx, entityType, graphID, limit)

	matches := []map[string]any{}
	for _, entity := range entities {
		valueA, okA := toFloat(entity.Properties[propertyA])
		valueB, okB := toFloat(entity.Properties[propertyB])
		if !okA || !okB {
			continue
		}

		var result float64
		switch {
		case comparisonType == "ratio" && valueB != 0:
			result = valueA / valueB
		case comparisonType == "diff":
			result = valueA - valueB
		case comparisonType == "pct" && valueB != 0:
			result = (valueA - valueB) / valueB * 100
		default:
			continue
		}

		if compareThreshold(result, threshold, operator) {
			matches = append(matches, map[string]any{
				"id":                entity.ID,
				"name":              entity.Name,
				propertyA:           valueA,
				propertyB:           valueB,
				"comparison_result": result,
				"properties":        entity.Properties,
			})
		}
	}

	return Result{
		"metric_name": "property_comparison",
		"entity_type": entityType,
		"comparison":  fmt.Sprintf("%s %s %s", propertyA, comparisonType, propertyB),
		"threshold":   threshold,
		"results":     matches,
		"count":       len(matches),
	}
}

func (e *Engine) groupedAggregation(ctx context.Context, params, callContext map[string]any) Result {
	entityType := paramString(params, "entity_type", "Location")
	groupBy := paramString(params, "group_by", "county")
	aggregateProperty := paramString(params, "aggregate_property", "total_assets")
	operation := paramString(params, "operation", "sum")
	limit := paramInt(params, "limit", 1000)
	graphID := resolveGraphID(params, callContext)

	entities := e.fetch(ctx, entityType, graphID, limit)
	groups := groupEntities(entities, groupBy)

	results := []map[string]any{}
	for groupName, groupEntities := range groups {
		var values []float64
		for _, entity := range groupEntities {
			if value, ok := toFloat(entity.Properties[aggregateProperty]); ok {
				values = append(values, value)
			}
		}
		if len(values) == 0 {
			continue
		}

		var aggregate float64
		switch operation {
		case "avg":
			aggregate = sum(values) / float64(len(values))
		case "max":
			aggregate = values[0]
			for _, v := range values[1:] {
				if v > aggregate {
					aggregate = v
				}
			}
		case "min":
			aggregate = values[0]
			for _, v := range values[1:] {
				if v < aggregate {
					aggregate = v
				}
			}
		case "count":
			aggregate = float64(len(values))
		default:
			aggregate = sum(values)
		}

		members := make([]map[string]any, 0, len(groupEntities))
		for _, entity := range groupEntities {
			members = append(members, map[string]any{"id": entity.ID, "name": entity.Name})
		}
		results = append(results, map[string]any{
			"group":           groupName,
			"count":           len(groupEntities),
			"aggregate_value": aggregate,
			"entities":        members,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i]["aggregate_value"].(float64) > results[j]["aggregate_value"].(float64)
	})

	return Result{
		"metric_name":        "grouped_aggregation",
		"entity_type":        entityType,
		"group_by":           groupBy,
		"aggregate_property": aggregateProperty,
		"operation":          operation,
		"results":            results,
		"count":              len(results),
	}
}

func (e *Engine) sequentialDrop(ctx context.Context, params, callContext map[string]any) Result {
	entityType := paramString(params, "entity_type", "Location")
	groupBy := paramString(params, "group_by", "county")
	orderBy := paramString(params, "order_by", "total_assets")
	dropThreshold := paramFloat(params, "drop_threshold", 0.30)
	limit := paramInt(params, "limit", 1000)
	graphID := resolveGraphID(params, callContext)

	entities := e.fetch(ctx, entityType, graphID, limit)
	if len(entities) == 0 {
		return Result{
			"metric_name":    "sequential_drop",
			"entity_type":    entityType,
			"group_by":       groupBy,
			"order_by":       orderBy,
			"drop_threshold": dropThreshold,
			"results":        []map[string]any{},
			"count":          0,
			"message":        fmt.Sprintf("No %s entities found in knowledge graph. Please upload and index documents first.", entityType),
			"graph_id":       graphID,
		}
	}

	groups := groupEntities(entities, groupBy)

	results := []map[string]any{}
	for groupName, groupEntities := range groups {
		enriched := make([]map[string]any, 0, len(groupEntities))
		for _, entity := range groupEntities {
			value, ok := toFloat(entity.Properties[orderBy])
			if !ok {
				continue
			}
			enriched = append(enriched, map[string]any{
				"id":         entity.ID,
				"name":       entity.Name,
				orderBy:      value,
				"properties": entity.Properties,
			})
		}
		if len(enriched) < 2 {
			continue
		}
		sort.Slice(enriched, func(i, j int) bool {
			return enriched[i][orderBy].(float64) > enriched[j][orderBy].(float64)
		})

		drops := []map[string]any{}
		for i := 0; i < len(enriched)-1; i++ {
			first := enriched[i][orderBy].(float64)
			second := enriched[i+1][orderBy].(float64)
			if first == 0 {
				continue
			}
			drop := first - second
			if drop <= 0 {
				continue
			}
			dropRatio := drop / first
			if dropRatio >= dropThreshold {
				drops = append(drops, map[string]any{
					"from_entity": enriched[i]["name"],
					"to_entity":   enriched[i+1]["name"],
					"from_value":  first,
					"to_value":    second,
					"drop_amount": drop,
					"drop_ratio":  dropRatio,
				})
			}
		}

		if len(drops) > 0 {
			results = append(results, map[string]any{
				"group":              groupName,
				"ordered_entities":   enriched,
				"drops":              drops,
				"additional_context": collectFieldSummary(enriched, orderBy, []string{"receivables", "liabilities"}),
			})
		}
	}

	return Result{
		"metric_name":    "sequential_drop",
		"entity_type":    entityType,
		"group_by":       groupBy,
		"order_by":       orderBy,
		"drop_threshold": dropThreshold,
		"results":        results,
		"count":          len(results),
	}
}

func (e *Engine) liquidityAnalysis(ctx context.Context, params, callContext map[string]any) Result {
	entityType := paramString(params, "entity_type", "Location")
	assetThreshold := paramFloat(params, "asset_threshold", 50_000_000)
	cashThreshold := paramFloat(params, "cash_threshold", 3_000_000)
	graphID := resolveGraphID(params, callContext)

	entities := e.fetch(ctx, entityType, graphID, 1000)

	matches := []map[string]any{}
	for _, entity := range entities {
		properties := entity.Properties
		totalAssets, okAssets := toFloat(properties["total_assets"])
		cash, okCash := toFloat(properties["cash_and_cash_equivalents"])
		if !okCash {
			cash, okCash = toFloat(properties["cash"])
		}
		if !okAssets || !okCash {
			continue
		}
		// Asset rich, cash poor.
		if totalAssets <= assetThreshold || cash >= cashThreshold {
			continue
		}

		liquidityRatio := 0.0
		if totalAssets != 0 {
			liquidityRatio = cash / totalAssets
		}
		riskLevel := "medium"
		if liquidityRatio < 0.02 {
			riskLevel = "high"
		}

		matches = append(matches, map[string]any{
			"id":                    entity.ID,
			"name":                  entity.Name,
			"type":                  entity.Type,
			"total_assets":          totalAssets,
			"cash":                  cash,
			"liquidity_ratio":       liquidityRatio,
			"long_term_liabilities": collectNonzeroFields(properties, fieldCategories["liabilities"]),
			"deferred_inflows":      collectNonzeroFields(properties, fieldCategories["deferred_inflows"]),
			"risk_level":            riskLevel,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i]["total_assets"].(float64) > matches[j]["total_assets"].(float64)
	})

	return Result{
		"metric_name":     "liquidity_analysis",
		"entity_type":     entityType,
		"asset_threshold": assetThreshold,
		"cash_threshold":  cashThreshold,
		"results":         matches,
		"count":           len(matches),
	}
}

func (e *Engine) debtRisk(ctx context.Context, params, callContext map[string]any) Result {
	entityType := paramString(params, "entity_type", "Location")
	debtRatioThreshold := paramFloat(params, "debt_ratio_threshold", 0.70)
	graphID := resolveGraphID(params, callContext)

	entities := e.fetch(ctx, entityType, graphID, 1000)

	matches := []map[string]any{}
	for _, entity := range entities {
		totalAssets, okAssets := toFloat(entity.Properties["total_assets"])
		totalLiabilities, okLiabilities := toFloat(entity.Properties["total_liabilities"])
		if !okAssets || !okLiabilities || totalAssets == 0 {
			continue
		}

		debtRatio := totalLiabilities / totalAssets
		if debtRatio < debtRatioThreshold {
			continue
		}
		riskLevel := "high"
		if debtRatio > 0.90 {
			riskLevel = "critical"
		}
		matches = append(matches, map[string]any{
			"id":                entity.ID,
			"name":              entity.Name,
			"type":              entity.Type,
			"total_assets":      totalAssets,
			"total_liabilities": totalLiabilities,
			"debt_ratio":        debtRatio,
			"risk_level":        riskLevel,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i]["debt_ratio"].(float64) > matches[j]["debt_ratio"].(float64)
	})

	return Result{
		"metric_name":          "debt_risk",
		"entity_type":          entityType,
		"debt_ratio_threshold": debtRatioThreshold,
		"results":              matches,
		"count":                len(matches),
	}
}

func (e *Engine) loanMaturity(ctx context.Context, params, callContext map[string]any) Result {
	monthsThreshold := paramFloat(params, "months_threshold", 12)
	balanceThreshold := paramFloat(params, "balance_threshold", 1_000_000)
	graphID := resolveGraphID(params, callContext)

	loans := e.fetch(ctx, "Loan", graphID, 1000)

	matches := []map[string]any{}
	for _, loan := range loans {
		properties := loan.Properties
		balance, okBalance := toFloat(properties["principal_balance"])
		if !okBalance {
			balance, okBalance = toFloat(properties["outstanding_balance"])
		}
		if !okBalance {
			balance, okBalance = toFloat(properties["balance"])
		}
		maturityMonths, okMaturity := toFloat(properties["maturity_months"])
		if !okBalance || !okMaturity {
			continue
		}

		if balance >= balanceThreshold && maturityMonths <= monthsThreshold {
			entry := map[string]any{
				"id":              loan.ID,
				"name":            loan.Name,
				"balance":         balance,
				"maturity_months": maturityMonths,
				"borrower":        properties["borrower"],
				"lender":          properties["lender"],
			}
			if rate, ok := toFloat(properties["interest_rate"]); ok {
				entry["interest_rate"] = rate
			}
			matches = append(matches, entry)
		}
	}

	// Soonest maturity first, largest balance breaking ties.
	sort.Slice(matches, func(i, j int) bool {
		mi := matches[i]["maturity_months"].(float64)
		mj := matches[j]["maturity_months"].(float64)
		if mi != mj {
			return mi < mj
		}
		return matches[i]["balance"].(float64) > matches[j]["balance"].(float64)
	})

	return Result{
		"metric_name":       "loan_maturity",
		"months_threshold":  monthsThreshold,
		"balance_threshold": balanceThreshold,
		"results":           matches,
		"count":             len(matches),
	}
}

// groupEntities buckets entities by a property value, skipping entities
// where the value is missing or empty.
func groupEntities(entities []indexer.EntityRecord, groupBy string) map[string][]indexer.EntityRecord {
	groups := map[string][]indexer.EntityRecord{}
	for _, entity := range entities {
		value := entity.Properties[groupBy]
		if value == nil {
			continue
		}
		key := fmt.Sprintf("%v", value)
		if key == "" || key == "0" {
			continue
		}
		groups[key] = append(groups[key], entity)
	}
	return groups
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}
