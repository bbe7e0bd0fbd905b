package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lewisdonovan/isleno-sub001/internal/ledger/storage"
	"github.com/lewisdonovan/isleno-sub001/internal/models"
)

// Ledger tracks invoices approved during one browser session that are not
// yet reflected in the ERP's stored totals. It is owned by exactly one
// session; mutations within a session are strictly ordered under the lock.
//
// Durable storage is best-effort: a failed write is logged and the ledger
// keeps operating in memory for the rest of the session's life.
type Ledger struct {
	mu        sync.Mutex
	sessionID string
	invoices  []models.ApprovedInvoiceRecord
	impacts   map[models.AccountRef]models.BudgetImpact
	store     storage.Store
	logger    *zap.Logger
}

type persistedState struct {
	SessionID string                         `json:"session_id"`
	Invoices  []models.ApprovedInvoiceRecord `json:"approved_invoices"`
}

// New returns an empty ledger. A nil store disables persistence.
func New(sessionID string, store storage.Store, logger *zap.Logger) *Ledger {
	return &Ledger{
		sessionID: sessionID,
		impacts:   make(map[models.AccountRef]models.BudgetImpact),
		store:     store,
		logger:    logger,
	}
}

// Restore loads any previously persisted ledger for the session, falling
// back to an empty one. Load failures are logged, never returned.
func Restore(ctx context.Context, sessionID string, store storage.Store, logger *zap.Logger) *Ledger {
	l := New(sessionID, store, logger)
	if store == nil {
		return l
	}

	data, err := store.Read(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logger.Warn("session ledger restore failed", zap.String("session_id", sessionID), zap.Error(err))
		}
		return l
	}

	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		logger.Warn("session ledger corrupt, starting fresh", zap.String("session_id", sessionID), zap.Error(err))
		return l
	}

	l.invoices = state.Invoices
	return l
}

// SessionID returns the owning session's identifier.
func (l *Ledger) SessionID() string {
	return l.sessionID
}

// AddApprovedInvoice inserts or overwrites the record for invoiceID. At most
// one record per invoice exists; a re-approval replaces the earlier one in
// place. Never fails.
func (l *Ledger) AddApprovedInvoice(ctx context.Context, invoiceID int64, amount decimal.Decimal, ref models.AccountRef) {
	l.mu.Lock()
	defer l.mu.Unlock()

	record := models.ApprovedInvoiceRecord{
		InvoiceID:  invoiceID,
		Amount:     amount,
		AccountRef: ref,
		Timestamp:  time.Now().UTC(),
	}

	replaced := false
	for i := range l.invoices {
		if l.invoices[i].InvoiceID == invoiceID {
			l.invoices[i] = record
			replaced = true
			break
		}
	}
	if !replaced {
		l.invoices = append(l.invoices, record)
	}

	l.persistLocked(ctx)
}

// SessionApprovedAmount sums the amounts of all records whose account id
// matches, regardless of the record's namespace tag. Returns zero for no
// matches.
func (l *Ledger) SessionApprovedAmount(accountID int64) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := decimal.Zero
	for _, record := range l.invoices {
		if record.AccountRef.ID == accountID {
			total = total.Add(record.Amount)
		}
	}
	return total
}

// IsInvoiceApproved reports whether the invoice was approved this session.
func (l *Ledger) IsInvoiceApproved(invoiceID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, record := range l.invoices {
		if record.InvoiceID == invoiceID {
			return true
		}
	}
	return false
}

// SetBudgetImpact caches a computed impact for the account.
func (l *Ledger) SetBudgetImpact(ref models.AccountRef, impact models.BudgetImpact) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.impacts[ref] = impact
}

// BudgetImpact returns the cached impact for the account, if any.
func (l *Ledger) BudgetImpact(ref models.AccountRef) (models.BudgetImpact, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	impact, ok := l.impacts[ref]
	return impact, ok
}

// DropImpacts removes cached impacts for every account whose raw id matches,
// in either namespace. Called after an approval changes the session total.
func (l *Ledger) DropImpacts(accountID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ref := range l.impacts {
		if ref.ID == accountID {
			delete(l.impacts, ref)
		}
	}
}

// ClearSession empties records and cached impacts. The session keeps its
// identity; only discarding the ledger object assigns a new one.
func (l *Ledger) ClearSession(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.invoices = nil
	l.impacts = make(map[models.AccountRef]models.BudgetImpact)
	l.persistLocked(ctx)
}

// Stats returns derived totals over the ledger.
func (l *Ledger) Stats() models.SessionStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := decimal.Zero
	accounts := make(map[int64]struct{})
	for _, record := range l.invoices {
		total = total.Add(record.Amount)
		accounts[record.AccountRef.ID] = struct{}{}
	}

	return models.SessionStats{
		SessionID:              l.sessionID,
		TotalApprovedInvoices:  len(l.invoices),
		TotalApprovedAmount:    total,
		UniqueAnalyticAccounts: len(accounts),
	}
}

func (l *Ledger) persistLocked(ctx context.Context) {
	if l.store == nil {
		return
	}

	data, err := json.Marshal(persistedState{
		SessionID: l.sessionID,
		Invoices:  l.invoices,
	})
	if err != nil {
		l.logger.Warn("session ledger encode failed", zap.String("session_id", l.sessionID), zap.Error(err))
		return
	}

	if err := l.store.Write(ctx, l.sessionID, data); err != nil {
		l.logger.Warn("session ledger persist failed, continuing in memory",
			zap.String("session_id", l.sessionID), zap.Error(err))
	}
}
