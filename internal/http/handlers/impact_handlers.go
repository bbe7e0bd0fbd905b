package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lewisdonovan/isleno-sub001/internal/http/middleware"
	"github.com/lewisdonovan/isleno-sub001/internal/service"
)

// ImpactHandler holds the three stateless budget-impact endpoints. Session
// state never enters here; callers pass their session-approved amount
// explicitly.
type ImpactHandler struct {
	svc    *service.ImpactService
	logger *zap.Logger
}

// NewImpactHandler builds handler set.
func NewImpactHandler(svc *service.ImpactService, logger *zap.Logger) *ImpactHandler {
	return &ImpactHandler{
		svc:    svc,
		logger: logger,
	}
}

type accountImpactRequest struct {
	AnalyticAccountID     int64           `json:"analyticAccountId"`
	InvoiceAmount         decimal.Decimal `json:"invoiceAmount"`
	SessionApprovedAmount decimal.Decimal `json:"sessionApprovedAmount"`
}

// constructionImpactRequest decodes the amounts as pointers: all four fields
// are required here, and an absent amount must be a client error rather than
// silently defaulting to zero.
type constructionImpactRequest struct {
	ProjectID             int64            `json:"projectId"`
	SpendCategoryID       int64            `json:"spendCategoryId"`
	InvoiceAmount         *decimal.Decimal `json:"invoiceAmount"`
	SessionApprovedAmount *decimal.Decimal `json:"sessionApprovedAmount"`
}

type departmentImpactRequest struct {
	DepartmentID          int64           `json:"departmentId"`
	DepartmentName        string          `json:"departmentName"`
	InvoiceAmount         decimal.Decimal `json:"invoiceAmount"`
	InvoiceIssueDate      string          `json:"invoiceIssueDate"`
	SessionApprovedAmount decimal.Decimal `json:"sessionApprovedAmount"`
}

// HandleByAccount handles POST /api/budget/impact/account.
func (h *ImpactHandler) HandleByAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req accountImpactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	impact, err := h.svc.ImpactByAccount(r.Context(), service.AccountImpactInput{
		UserID:                userID,
		AnalyticAccountID:     req.AnalyticAccountID,
		InvoiceAmount:         req.InvoiceAmount,
		SessionApprovedAmount: req.SessionApprovedAmount,
	})
	if err != nil {
		h.logger.Debug("impact by account rejected", zap.Int64("account_id", req.AnalyticAccountID), zap.Error(err))
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, impact)
}

// HandleByConstruction handles POST /api/budget/impact/construction.
func (h *ImpactHandler) HandleByConstruction(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req constructionImpactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.InvoiceAmount == nil {
		writeError(w, http.StatusBadRequest, "invoiceAmount is required")
		return
	}
	if req.SessionApprovedAmount == nil {
		writeError(w, http.StatusBadRequest, "sessionApprovedAmount is required")
		return
	}

	impact, err := h.svc.ImpactByConstruction(r.Context(), service.ConstructionImpactInput{
		UserID:                userID,
		ProjectID:             req.ProjectID,
		SpendCategoryID:       req.SpendCategoryID,
		InvoiceAmount:         *req.InvoiceAmount,
		SessionApprovedAmount: *req.SessionApprovedAmount,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, impact)
}

// HandleByDepartment handles POST /api/budget/impact/department.
func (h *ImpactHandler) HandleByDepartment(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req departmentImpactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	issueDate, err := parseIssueDate(req.InvoiceIssueDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid invoiceIssueDate")
		return
	}

	impact, err := h.svc.ImpactByDepartment(r.Context(), service.DepartmentImpactInput{
		UserID:                userID,
		DepartmentID:          req.DepartmentID,
		DepartmentName:        req.DepartmentName,
		InvoiceAmount:         req.InvoiceAmount,
		InvoiceIssueDate:      issueDate,
		SessionApprovedAmount: req.SessionApprovedAmount,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, impact)
}

func parseIssueDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}
