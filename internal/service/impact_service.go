package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lewisdonovan/isleno-sub001/internal/budget"
	"github.com/lewisdonovan/isleno-sub001/internal/models"
)

// ERPReader is the ERP budget lookup surface. Implementations return
// (nil, nil) when the ERP has no record.
type ERPReader interface {
	ProjectBudget(ctx context.Context, projectID int64) (*models.BudgetSummary, error)
	DepartmentBudget(ctx context.Context, departmentID int64, asOf time.Time) (*models.BudgetSummary, error)
	ConstructionBudget(ctx context.Context, projectID, spendCategoryID int64) (*models.BudgetSummary, error)
}

// PermissionOracle answers budget view permission checks.
type PermissionOracle interface {
	CanViewBudget(ctx context.Context, userID int64) (bool, error)
}

// ImpactService computes budget impact projections. All three variants fetch
// authoritative figures and delegate the arithmetic to budget.Compute; they
// differ only in how the authoritative snapshot is located.
type ImpactService struct {
	erp    ERPReader
	perms  PermissionOracle
	logger *zap.Logger
}

// NewImpactService builds service.
func NewImpactService(erp ERPReader, perms PermissionOracle, logger *zap.Logger) *ImpactService {
	return &ImpactService{
		erp:    erp,
		perms:  perms,
		logger: logger,
	}
}

// AccountImpactInput parameters for the analytic-account variant.
type AccountImpactInput struct {
	UserID                int64
	AnalyticAccountID     int64
	InvoiceAmount         decimal.Decimal
	SessionApprovedAmount decimal.Decimal
}

// ConstructionImpactInput parameters for the construction variant.
type ConstructionImpactInput struct {
	UserID                int64
	ProjectID             int64
	SpendCategoryID       int64
	InvoiceAmount         decimal.Decimal
	SessionApprovedAmount decimal.Decimal
}

// DepartmentImpactInput parameters for the department variant. Department
// budgets are period-scoped; the ERP resolves the fiscal period from the
// invoice issue date.
type DepartmentImpactInput struct {
	UserID                int64
	DepartmentID          int64
	DepartmentName        string
	InvoiceAmount         decimal.Decimal
	InvoiceIssueDate      time.Time
	SessionApprovedAmount decimal.Decimal
}

// ImpactByAccount computes the impact for an analytic account. The id is
// tried as a project resource first, then as a department; the fallback is
// deliberate, not an error path.
func (s *ImpactService) ImpactByAccount(ctx context.Context, in AccountImpactInput) (*models.BudgetImpact, error) {
	if in.AnalyticAccountID <= 0 {
		return nil, validationErr("analyticAccountId", "must be a positive integer")
	}
	if err := validateAmounts(in.InvoiceAmount, in.SessionApprovedAmount); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, in.UserID); err != nil {
		return nil, err
	}

	summary, err := s.erp.ProjectBudget(ctx, in.AnalyticAccountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrERPUnavailable, err)
	}
	if summary == nil {
		summary, err = s.erp.DepartmentBudget(ctx, in.AnalyticAccountID, time.Now().UTC())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrERPUnavailable, err)
		}
	}
	if summary == nil {
		return nil, ErrBudgetNotFound
	}

	impact := budget.Compute(*summary, in.SessionApprovedAmount, in.InvoiceAmount)
	return &impact, nil
}

// ImpactByConstruction computes the impact for a construction project and
// spend category. All identifiers are required.
func (s *ImpactService) ImpactByConstruction(ctx context.Context, in ConstructionImpactInput) (*models.BudgetImpact, error) {
	if in.ProjectID <= 0 {
		return nil, validationErr("projectId", "must be a positive integer")
	}
	if in.SpendCategoryID <= 0 {
		return nil, validationErr("spendCategoryId", "must be a positive integer")
	}
	if err := validateAmounts(in.InvoiceAmount, in.SessionApprovedAmount); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, in.UserID); err != nil {
		return nil, err
	}

	summary, err := s.erp.ConstructionBudget(ctx, in.ProjectID, in.SpendCategoryID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrERPUnavailable, err)
	}
	if summary == nil {
		return nil, ErrBudgetNotFound
	}

	impact := budget.Compute(*summary, in.SessionApprovedAmount, in.InvoiceAmount)
	return &impact, nil
}

// ImpactByDepartment computes the impact for a period-scoped department budget.
func (s *ImpactService) ImpactByDepartment(ctx context.Context, in DepartmentImpactInput) (*models.BudgetImpact, error) {
	if in.DepartmentID <= 0 {
		return nil, validationErr("departmentId", "must be a positive integer")
	}
	if strings.TrimSpace(in.DepartmentName) == "" {
		return nil, validationErr("departmentName", "is required")
	}
	if in.InvoiceIssueDate.IsZero() {
		return nil, validationErr("invoiceIssueDate", "is required")
	}
	if err := validateAmounts(in.InvoiceAmount, in.SessionApprovedAmount); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, in.UserID); err != nil {
		return nil, err
	}

	summary, err := s.erp.DepartmentBudget(ctx, in.DepartmentID, in.InvoiceIssueDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrERPUnavailable, err)
	}
	if summary == nil {
		s.logger.Debug("department budget missing",
			zap.Int64("department_id", in.DepartmentID),
			zap.String("department_name", in.DepartmentName),
		)
		return nil, ErrBudgetNotFound
	}

	impact := budget.Compute(*summary, in.SessionApprovedAmount, in.InvoiceAmount)
	return &impact, nil
}

// authorize rejects before any ERP call is made.
func (s *ImpactService) authorize(ctx context.Context, userID int64) error {
	allowed, err := s.perms.CanViewBudget(ctx, userID)
	if err != nil {
		return fmt.Errorf("permission check: %w", err)
	}
	if !allowed {
		return ErrForbidden
	}
	return nil
}

func validateAmounts(invoiceAmount, sessionApproved decimal.Decimal) error {
	if invoiceAmount.IsNegative() {
		return validationErr("invoiceAmount", "must not be negative")
	}
	if sessionApproved.IsNegative() {
		return validationErr("sessionApprovedAmount", "must not be negative")
	}
	return nil
}
