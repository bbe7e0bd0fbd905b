package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AccountKind distinguishes the two analytic account namespaces tracked by the ERP.
type AccountKind string

// Account kinds.
const (
	AccountKindProject    AccountKind = "project"
	AccountKindDepartment AccountKind = "department"
)

// AccountRef identifies an analytic account within one of the two namespaces.
type AccountRef struct {
	Kind AccountKind `json:"kind"`
	ID   int64       `json:"id"`
}

// Key returns a stable map key for the reference.
func (r AccountRef) Key() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// ApprovedInvoiceRecord is one invoice approved during the current session
// but not yet reflected in the ERP's stored totals.
type ApprovedInvoiceRecord struct {
	InvoiceID  int64           `json:"invoice_id"`
	Amount     decimal.Decimal `json:"amount"`
	AccountRef AccountRef      `json:"account_ref"`
	Timestamp  time.Time       `json:"timestamp"`
}

// BudgetSummary is the budget/spend position of one analytic account.
type BudgetSummary struct {
	TotalBudget     decimal.Decimal `json:"total_budget"`
	TotalSpent      decimal.Decimal `json:"total_spent"`
	RemainingBudget decimal.Decimal `json:"remaining_budget"`
	PercentageUsed  decimal.Decimal `json:"percentage_used"`
}

// BudgetImpact is a before/after projection for one pending invoice.
// CurrentBudget already folds in the session-approved total; ProjectedBudget
// additionally folds in the pending invoice amount.
type BudgetImpact struct {
	CurrentBudget   BudgetSummary   `json:"current_budget"`
	ProjectedBudget BudgetSummary   `json:"projected_budget"`
	SessionTotal    decimal.Decimal `json:"session_total"`
}

// SessionStats is a derived read over a session ledger.
type SessionStats struct {
	SessionID              string          `json:"session_id"`
	TotalApprovedInvoices  int             `json:"total_approved_invoices"`
	TotalApprovedAmount    decimal.Decimal `json:"total_approved_amount"`
	UniqueAnalyticAccounts int             `json:"unique_analytic_accounts"`
}
