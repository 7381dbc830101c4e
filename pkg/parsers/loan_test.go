package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthanethra/arthanethra/pkg/models"
)

const loanAgreementText = `TERM CREDIT AGREEMENT

Loan #: TL-2024-0042
Lender: First National Bank, N.A.
Borrower: Acme Industries LLC

This term loan is dated as of 01/15/2024 with a principal amount: $5,000,000.00
at an interest rate: 7.5% on a fixed rate basis for a term of 5 years.
Maturity Date: 01/15/2029. Payments are due monthly.
Purpose: working capital and equipment purchases
Secured by: all accounts receivable and inventory

The borrower shall maintain a debt-to-equity ratio of not more than 2.5 at all times.
Origination fee: $50,000 payable at closing. Commitment fee: 0.5% per annum.
`

func findEntity(entities []*models.Entity, entityType models.EntityType, name string) *models.Entity {
	for _, e := range entities {
		if e.Type == entityType && e.Name == name {
			return e
		}
	}
	return nil
}

func TestParseLoanTerms(t *testing.T) {
	entities := ParseLoan(loanAgreementText, "doc-1", "graph-1")

	loan := findEntity(entities, models.EntityLoan, "Loan TL-2024-0042")
	require.NotNil(t, loan)
	assert.Equal(t, "TL-2024-0042", loan.Properties["loan_number"])
	assert.Equal(t, "term loan", loan.Properties["loan_type"])
	assert.Equal(t, 5000000.0, loan.Properties["principal_amount"])
	assert.Equal(t, "USD", loan.Properties["currency"])
	assert.Equal(t, 7.5, loan.Properties["interest_rate"])
	assert.Equal(t, "fixed", loan.Properties["rate_type"])
	assert.Equal(t, 60, loan.Properties["term_months"])
	assert.Equal(t, "01/15/2024", loan.Properties["origination_date"])
	assert.Equal(t, "01/15/2029", loan.Properties["maturity_date"])
	assert.Equal(t, "monthly", loan.Properties["payment_frequency"])
	assert.Equal(t, "working capital and equipment purchases", loan.Properties["purpose"])
	require.Len(t, loan.Citations, 1)
	assert.Equal(t, "Loan Terms", loan.Citations[0].Section)
}

func TestParseLoanParties(t *testing.T) {
	entities := ParseLoan(loanAgreementText, "doc-1", "graph-1")

	lender := findEntity(entities, models.EntityCompany, "First National Bank")
	require.NotNil(t, lender)
	assert.Equal(t, "lender", lender.Properties["role"])

	borrower := findEntity(entities, models.EntityCompany, "Acme Industries LLC")
	require.NotNil(t, borrower)
	assert.Equal(t, "borrower", borrower.Properties["role"])
}

func TestParseLoanIndividualBorrower(t *testing.T) {
	entities := ParseLoan("Borrower: Jane Doe\nPrincipal amount: $25,000", "doc-1", "graph-1")
	borrower := findEntity(entities, models.EntityPerson, "Jane Doe")
	require.NotNil(t, borrower)
	assert.Equal(t, "borrower", borrower.Properties["role"])
}

func TestParseLoanCovenants(t *testing.T) {
	entities := ParseLoan(loanAgreementText, "doc-1", "graph-1")

	covenant := findEntity(entities, models.EntityClause, "Debt To Equity Ratio")
	require.NotNil(t, covenant)
	assert.Equal(t, "debt_to_equity_ratio", covenant.Properties["covenant_type"])
	assert.Equal(t, 2.5, covenant.Properties["threshold"])
	assert.Equal(t, "Must maintain debt to equity ratio of 2.5", covenant.Properties["description"])

	general := findEntity(entities, models.EntityClause, "Financial Covenant")
	require.NotNil(t, general)
	assert.Equal(t, "general", general.Properties["covenant_type"])
}

func TestParseLoanFees(t *testing.T) {
	entities := ParseLoan(loanAgreementText, "doc-1", "graph-1")

	origination := findEntity(entities, models.EntityMetric, "Origination Fee")
	require.NotNil(t, origination)
	assert.Equal(t, 50000.0, origination.Properties["amount"])
	assert.Equal(t, "USD", origination.Properties["currency"])

	commitment := findEntity(entities, models.EntityMetric, "Commitment Fee")
	require.NotNil(t, commitment)
	assert.Equal(t, 0.5, commitment.Properties["percentage"])
	_, hasAmount := commitment.Properties["amount"]
	assert.False(t, hasAmount)
}

func TestParseLoanEmptyText(t *testing.T) {
	assert.Empty(t, ParseLoan("Nothing relevant here.", "doc-1", "graph-1"))
}
