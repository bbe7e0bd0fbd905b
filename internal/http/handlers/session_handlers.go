package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lewisdonovan/isleno-sub001/internal/coordinator"
	"github.com/lewisdonovan/isleno-sub001/internal/http/middleware"
	"github.com/lewisdonovan/isleno-sub001/internal/models"
	"github.com/lewisdonovan/isleno-sub001/internal/service"
	"github.com/lewisdonovan/isleno-sub001/internal/session"
)

// SessionHandler exposes the per-tab ledger and coordinator to the UI.
type SessionHandler struct {
	sessions *session.Manager
	svc      *service.ImpactService
	logger   *zap.Logger
}

// NewSessionHandler builds handler set.
func NewSessionHandler(sessions *session.Manager, svc *service.ImpactService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		svc:      svc,
		logger:   logger,
	}
}

type recordApprovalRequest struct {
	InvoiceID   int64              `json:"invoiceId"`
	Amount      decimal.Decimal    `json:"amount"`
	AccountKind models.AccountKind `json:"accountKind"`
	AccountID   int64              `json:"accountId"`
}

type sessionImpactRequest struct {
	AnalyticAccountID int64              `json:"analyticAccountId"`
	AccountKind       models.AccountKind `json:"accountKind"`
	InvoiceAmount     decimal.Decimal    `json:"invoiceAmount"`
}

func (h *SessionHandler) coordinator(r *http.Request) (*coordinator.Coordinator, bool) {
	sessionID, ok := middleware.SessionIDFromContext(r.Context())
	if !ok {
		return nil, false
	}
	return h.sessions.Coordinator(r.Context(), sessionID), true
}

// HandleRecordApproval handles POST /api/session/approvals. The approval
// itself was committed to the ERP by the invoice-approval flow; this only
// records it in the session ledger so later projections account for it.
func (h *SessionHandler) HandleRecordApproval(w http.ResponseWriter, r *http.Request) {
	c, ok := h.coordinator(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "session not resolved")
		return
	}

	var req recordApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.InvoiceID <= 0 {
		writeError(w, http.StatusBadRequest, "invoiceId is required")
		return
	}
	if req.Amount.IsNegative() {
		writeError(w, http.StatusBadRequest, "amount must not be negative")
		return
	}
	kind, ok := normalizeKind(req.AccountKind)
	if !ok || req.AccountID <= 0 {
		writeError(w, http.StatusBadRequest, "accountKind and accountId are required")
		return
	}

	c.RecordApproval(r.Context(), req.InvoiceID, req.Amount, models.AccountRef{Kind: kind, ID: req.AccountID})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "ok"})
}

// HandleIsApproved handles GET /api/session/approvals/{invoiceID}.
func (h *SessionHandler) HandleIsApproved(w http.ResponseWriter, r *http.Request) {
	c, ok := h.coordinator(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "session not resolved")
		return
	}

	invoiceID, err := strconv.ParseInt(r.PathValue("invoiceID"), 10, 64)
	if err != nil || invoiceID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid invoice id")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"invoice_id": invoiceID,
		"approved":   c.Ledger().IsInvoiceApproved(invoiceID),
	})
}

// HandleStats handles GET /api/session/stats.
func (h *SessionHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	c, ok := h.coordinator(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "session not resolved")
		return
	}
	writeJSON(w, http.StatusOK, c.Ledger().Stats())
}

// HandleClear handles DELETE /api/session.
func (h *SessionHandler) HandleClear(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.SessionIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "session not resolved")
		return
	}
	h.sessions.Clear(r.Context(), sessionID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// HandleImpact handles POST /api/session/impact/account. Unlike the
// stateless endpoints, the session-approved amount is read from the ledger
// here, and the result is cached per account until the next approval.
func (h *SessionHandler) HandleImpact(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	c, ok := h.coordinator(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "session not resolved")
		return
	}

	var req sessionImpactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	kind, ok := normalizeKind(req.AccountKind)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid accountKind")
		return
	}
	ref := models.AccountRef{Kind: kind, ID: req.AnalyticAccountID}

	fetch := func(ctx context.Context, sessionApproved decimal.Decimal) (*models.BudgetImpact, error) {
		return h.svc.ImpactByAccount(ctx, service.AccountImpactInput{
			UserID:                userID,
			AnalyticAccountID:     req.AnalyticAccountID,
			InvoiceAmount:         req.InvoiceAmount,
			SessionApprovedAmount: sessionApproved,
		})
	}

	impact, err := c.RequestImpact(r.Context(), ref, fetch)
	if err != nil {
		if errors.Is(err, coordinator.ErrSuperseded) {
			writeError(w, http.StatusConflict, "impact changed, retry")
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, impact)
}

// normalizeKind defaults an absent kind to the project namespace, matching
// the account variant's project-first lookup.
func normalizeKind(kind models.AccountKind) (models.AccountKind, bool) {
	switch kind {
	case "":
		return models.AccountKindProject, true
	case models.AccountKindProject, models.AccountKindDepartment:
		return kind, true
	default:
		return "", false
	}
}
