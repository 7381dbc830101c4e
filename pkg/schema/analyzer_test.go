package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const htmlTableDoc = `
# County Financial Summary
<table>
<tr><th>County Name</th><th>Total Assets</th><th>Cash Balance</th></tr>
<tr><td>Adams</td><td>$1,000,000</td><td>$50,000</td></tr>
<tr><td>Boone</td><td>$2,000,000</td><td>$75,000</td></tr>
</table>
`

func entityProps(t *testing.T, schema map[string]any, arrayName string) map[string]any {
	t.Helper()
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	arr, ok := props[arrayName].(map[string]any)
	require.True(t, ok, "array %q missing, have %v", arrayName, props)
	items, ok := arr["items"].(map[string]any)
	require.True(t, ok)
	ip, ok := items["properties"].(map[string]any)
	require.True(t, ok)
	return ip
}

func TestSynthesizeFromHTMLTable(t *testing.T) {
	a := NewAnalyzer(nil)
	schema, label, err := a.Synthesize(htmlTableDoc)
	require.NoError(t, err)
	assert.Equal(t, "table_records", label)

	props := entityProps(t, schema, "records")
	assert.Equal(t, map[string]any{"type": "string"}, props["county_name"])
	assert.Equal(t, map[string]any{"type": "number"}, props["total_assets"])
	assert.Equal(t, map[string]any{"type": "number"}, props["cash_balance"])
}

func TestSynthesizeUnionsHeadersAcrossTables(t *testing.T) {
	doc := `
<table><tr><th>Company</th><th>Revenue</th></tr><tr><td>A</td><td>1</td></tr></table>
<table><tr><th>Company</th><th>Net Income</th></tr><tr><td>A</td><td>2</td></tr></table>
`
	a := NewAnalyzer(nil)
	schema, label, err := a.Synthesize(doc)
	require.NoError(t, err)
	assert.Equal(t, "table_companies", label)

	props := entityProps(t, schema, "companies")
	assert.Len(t, props, 3)
	assert.Contains(t, props, "company")
	assert.Contains(t, props, "revenue")
	assert.Contains(t, props, "net_income")
}

func TestSynthesizeSkipsBannerRow(t *testing.T) {
	doc := `
<table>
<tr><td>Quarterly Results</td></tr>
<tr><th>City</th><th>Population</th><th>Budget Amount</th></tr>
<tr><td>Springfield</td><td>50000</td><td>1000000</td></tr>
</table>
`
	a := NewAnalyzer(nil)
	schema, label, err := a.Synthesize(doc)
	require.NoError(t, err)
	assert.Equal(t, "table_cities", label)
	props := entityProps(t, schema, "cities")
	assert.Contains(t, props, "city")
	assert.Contains(t, props, "budget_amount")
}

func TestSynthesizeFromPipeTable(t *testing.T) {
	doc := "Report\n\n| Item Name | Quantity | Price |\n|---|---|---|\n| Widget | 3 | 9.99 |\n"
	a := NewAnalyzer(nil)
	schema, label, err := a.Synthesize(doc)
	require.NoError(t, err)
	assert.Equal(t, "table_items", label)
	props := entityProps(t, schema, "items")
	assert.Equal(t, map[string]any{"type": "number"}, props["quantity"])
}

func TestSynthesizeTemplates(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		label string
	}{
		{"invoice", "INVOICE #123\nBill to: Acme", "invoice"},
		{"contract", "This Agreement is made between the parties", "contract"},
		{"financial", "Consolidated balance sheet for FY2025", "financial"},
		{"default", "Meeting notes from Tuesday", "default"},
	}
	a := NewAnalyzer(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema, label, err := a.Synthesize(tt.doc)
			require.NoError(t, err)
			assert.Equal(t, tt.label, label)
			assert.NotEmpty(t, schema["properties"])
		})
	}
}

func TestToSnakeCase(t *testing.T) {
	assert.Equal(t, "total_assets", ToSnakeCase("Total Assets"))
	assert.Equal(t, "cash_balance", ToSnakeCase("Cash Balance ($)"))
	assert.Equal(t, "net_income", ToSnakeCase("Net   Income"))
	assert.Equal(t, "field", ToSnakeCase("!!!"))
}

func TestPresetsPresent(t *testing.T) {
	require.Contains(t, Presets, "financial_basic")
	require.Contains(t, Presets, "invoice_basic")
	fb := Presets["financial_basic"]
	props, ok := fb["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "loans")
	assert.Contains(t, props, "metrics")
}
