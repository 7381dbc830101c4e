// Package analytics computes reusable metrics over the indexed knowledge
// graph: generic threshold, comparison, and aggregation queries plus a set
// of financial health checks. Metrics are config-driven; handlers receive
// merged default and caller parameters.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/arthanethra/arthanethra/pkg/indexer"
)

// EntityFetcher is the slice of the indexer the engine reads entities
// through.
type EntityFetcher interface {
	GraphAvailable() bool
	EntitiesByType(ctx context.Context, entityType, graphID string, limit int) []indexer.EntityRecord
}

// Result is a metric computation response, serialized as-is to callers.
type Result map[string]any

type handlerFunc func(ctx context.Context, params, callContext map[string]any) Result

// Metric describes one registered analytics metric.
type Metric struct {
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	EntityTypes   []string       `json:"entity_types"`
	DefaultParams map[string]any `json:"default_params"`
	handler       handlerFunc
}

// Engine dispatches metric computations by name.
type Engine struct {
	fetcher EntityFetcher
	metrics map[string]*Metric
	logger  *slog.Logger
}

// New builds the engine with the full metric registry.
func New(fetcher EntityFetcher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	engine := &Engine{fetcher: fetcher, logger: logger}
	engine.metrics = map[string]*Metric{
		"property_threshold": {
			Name:          "property_threshold",
			Description:   "Find entities where a property meets threshold criteria",
			EntityTypes:   []string{"Location", "Company", "Loan", "Invoice"},
			DefaultParams: map[string]any{"operator": "gt", "threshold": 0},
			handler:       engine.propertyThreshold,
		},
		"property_comparison": {
			Name:          "property_comparison",
			Description:   "Compare two properties within entities",
			EntityTypes:   []string{"Location", "Company", "Loan", "Invoice"},
			DefaultParams: map[string]any{"comparison_type": "ratio", "threshold": 0.0},
			handler:       engine.propertyComparison,
		},
		"grouped_aggregation": {
			Name:          "grouped_aggregation",
			Description:   "Group entities by a field and aggregate properties",
			EntityTypes:   []string{"Location", "Company", "Loan", "Invoice"},
			DefaultParams: map[string]any{"operation": "sum"},
			handler:       engine.groupedAggregation,
		},
		"sequential_drop": {
			Name:          "sequential_drop",
			Description:   "Detect drops between consecutive entities in ordered groups",
			EntityTypes:   []string{"Location", "Company"},
			DefaultParams: map[string]any{"drop_threshold": 0.30, "order_by": "total_assets"},
			handler:       engine.sequentialDrop,
		},
		"liquidity_analysis": {
			Name:          "liquidity_analysis",
			Description:   "Analyze cash vs assets for liquidity concerns",
			EntityTypes:   []string{"Location", "Company"},
			DefaultParams: map[string]any{"asset_threshold": 50_000_000, "cash_threshold": 3_000_000},
			handler:       engine.liquidityAnalysis,
		},
		"debt_risk": {
			Name:          "debt_risk",
			Description:   "Identify high debt-to-asset ratios",
			EntityTypes:   []string{"Location", "Company"},
			DefaultParams: map[string]any{"debt_ratio_threshold": 0.70},
			handler:       engine.debtRisk,
		},
		"loan_maturity": {
			Name:          "loan_maturity",
			Description:   "Find loans approaching maturity with high balances",
			EntityTypes:   []string{"Loan"},
			DefaultParams: map[string]any{"months_threshold": 12, "balance_threshold": 1_000_000},
			handler:       engine.loanMaturity,
		},
	}
	return engine
}

// ListMetrics returns registry descriptions for metric discovery.
func (e *Engine) ListMetrics() []*Metric {
	names := make([]string, 0, len(e.metrics))
	for name := range e.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*Metric, 0, len(names))
	for _, name := range names {
		out = append(out, e.metrics[name])
	}
	return out
}

// Compute dispatches a metric by name. Caller params override the metric's
// defaults; callContext may carry the active graph id.
func (e *Engine) Compute(ctx context.Context, metricName string, params, callContext map[string]any) Result {
	if metricName == "" {
		return Result{"error": "metric_name is required"}
	}
	metric, ok := e.metrics[metricName]
	if !ok {
		available := make([]string, 0, len(e.metrics))
		for name := range e.metrics {
			available = append(available, name)
		}
		sort.Strings(available)
		return Result{
			"metric_name":       metricName,
			"error":             fmt.Sprintf("Unsupported metric '%s'. Available: %v", metricName, available),
			"available_metrics": available,
		}
	}
	if e.fetcher == nil || !e.fetcher.GraphAvailable() {
		return Result{
			"metric_name": metricName,
			"error":       "Graph store not available for analytics",
		}
	}

	merged := make(map[string]any, len(metric.DefaultParams)+len(params))
	for k, v := range metric.DefaultParams {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}
	if callContext == nil {
		callContext = map[string]any{}
	}
	return metric.handler(ctx, merged, callContext)
}

func (e *Engine) fetch(ctx context.Context, entityType, graphID string, limit int) []indexer.EntityRecord {
	entities := e.fetcher.EntitiesByType(ctx, entityType, graphID, limit)
	e.logger.Info("Analytics entity fetch", "type", entityType, "graph_id", graphID, "count", len(entities))
	return entities
}

func resolveGraphID(params, callContext map[string]any) string {
	if id := paramString(params, "graph_id", ""); id != "" {
		return id
	}
	return paramString(callContext, "graph_id", "")
}

func paramString(params map[string]any, key, fallback string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

func paramFloat(params map[string]any, key string, fallback float64) float64 {
	if v, ok := params[key]; ok {
		if f, ok := toFloat(v); ok {
			return f
		}
	}
	return fallback
}

func paramInt(params map[string]any, key string, fallback int) int {
	if v, ok := params[key]; ok {
		if f, ok := toFloat(v); ok {
			return int(f)
		}
	}
	return fallback
}

// toFloat converts scalars and numeric strings. nil, "", and "null" are
// treated as absent.
func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case nil:
		return 0, false
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		if v == "" || v == "null" {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func compareThreshold(value, threshold float64, operator string) bool {
	switch operator {
	case "gt":
		return value > threshold
	case "lt":
		return value < threshold
	case "gte":
		return value >= threshold
	case "lte":
		return value <= threshold
	case "eq":
		return value == threshold
	default:
		return false
	}
}
