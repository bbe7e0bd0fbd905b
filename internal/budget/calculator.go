package budget

import (
	"github.com/shopspring/decimal"

	"github.com/lewisdonovan/isleno-sub001/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Compute combines an authoritative ERP budget snapshot with the total
// approved during the current session and one pending invoice amount.
//
// CurrentBudget reflects authoritative spend plus the session total;
// ProjectedBudget additionally includes the pending invoice. All three
// impact variants share this single implementation.
func Compute(authoritative models.BudgetSummary, sessionApproved, pending decimal.Decimal) models.BudgetImpact {
	currentSpent := authoritative.TotalSpent.Add(sessionApproved)
	return models.BudgetImpact{
		CurrentBudget:   summarize(authoritative.TotalBudget, currentSpent),
		ProjectedBudget: summarize(authoritative.TotalBudget, currentSpent.Add(pending)),
		SessionTotal:    sessionApproved,
	}
}

// summarize derives remaining and percentage-used figures. A non-positive
// total budget yields 0% rather than a division error.
func summarize(totalBudget, totalSpent decimal.Decimal) models.BudgetSummary {
	summary := models.BudgetSummary{
		TotalBudget:     totalBudget,
		TotalSpent:      totalSpent,
		RemainingBudget: totalBudget.Sub(totalSpent),
	}
	if totalBudget.IsPositive() {
		summary.PercentageUsed = totalSpent.Div(totalBudget).Mul(hundred)
	}
	return summary
}
