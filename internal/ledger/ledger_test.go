package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lewisdonovan/isleno-sub001/internal/ledger/storage"
	"github.com/lewisdonovan/isleno-sub001/internal/models"
)

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func projectRef(id int64) models.AccountRef {
	return models.AccountRef{Kind: models.AccountKindProject, ID: id}
}

func departmentRef(id int64) models.AccountRef {
	return models.AccountRef{Kind: models.AccountKindDepartment, ID: id}
}

func TestSessionApprovedAmountSumsPerAccount(t *testing.T) {
	l := New("tab-1", nil, zap.NewNop())
	ctx := context.Background()

	l.AddApprovedInvoice(ctx, 1, dec(5000), projectRef(42))
	l.AddApprovedInvoice(ctx, 2, dec(1500), projectRef(42))
	l.AddApprovedInvoice(ctx, 3, dec(700), projectRef(7))

	assert.True(t, l.SessionApprovedAmount(42).Equal(dec(6500)))
	assert.True(t, l.SessionApprovedAmount(7).Equal(dec(700)))
	assert.True(t, l.SessionApprovedAmount(99).IsZero())
}

func TestSessionApprovedAmountMatchesAcrossNamespaces(t *testing.T) {
	l := New("tab-1", nil, zap.NewNop())
	ctx := context.Background()

	l.AddApprovedInvoice(ctx, 1, dec(100), projectRef(5))
	l.AddApprovedInvoice(ctx, 2, dec(200), departmentRef(5))

	// Matching is by raw id, regardless of namespace tag.
	assert.True(t, l.SessionApprovedAmount(5).Equal(dec(300)))
}

func TestReApprovalOverwritesNotDuplicates(t *testing.T) {
	l := New("tab-1", nil, zap.NewNop())
	ctx := context.Background()

	l.AddApprovedInvoice(ctx, 10, dec(1000), projectRef(42))
	l.AddApprovedInvoice(ctx, 10, dec(2500), projectRef(42))

	assert.True(t, l.SessionApprovedAmount(42).Equal(dec(2500)))
	assert.Equal(t, 1, l.Stats().TotalApprovedInvoices)
}

func TestIsInvoiceApproved(t *testing.T) {
	l := New("tab-1", nil, zap.NewNop())
	ctx := context.Background()

	assert.False(t, l.IsInvoiceApproved(10))
	l.AddApprovedInvoice(ctx, 10, dec(1000), projectRef(42))
	assert.True(t, l.IsInvoiceApproved(10))
	assert.False(t, l.IsInvoiceApproved(11))
}

func TestClearSessionResetsEverythingKeepsIdentity(t *testing.T) {
	l := New("tab-1", nil, zap.NewNop())
	ctx := context.Background()

	l.AddApprovedInvoice(ctx, 1, dec(100), projectRef(1))
	l.AddApprovedInvoice(ctx, 2, dec(200), departmentRef(2))
	l.SetBudgetImpact(projectRef(1), models.BudgetImpact{SessionTotal: dec(100)})

	l.ClearSession(ctx)

	for _, id := range []int64{1, 2, 99} {
		assert.True(t, l.SessionApprovedAmount(id).IsZero())
	}
	stats := l.Stats()
	assert.Equal(t, 0, stats.TotalApprovedInvoices)
	assert.True(t, stats.TotalApprovedAmount.IsZero())
	assert.Equal(t, "tab-1", stats.SessionID)

	_, ok := l.BudgetImpact(projectRef(1))
	assert.False(t, ok)
}

func TestStats(t *testing.T) {
	l := New("tab-9", nil, zap.NewNop())
	ctx := context.Background()

	l.AddApprovedInvoice(ctx, 1, dec(100), projectRef(1))
	l.AddApprovedInvoice(ctx, 2, dec(200), projectRef(1))
	l.AddApprovedInvoice(ctx, 3, dec(300), departmentRef(2))

	stats := l.Stats()
	assert.Equal(t, "tab-9", stats.SessionID)
	assert.Equal(t, 3, stats.TotalApprovedInvoices)
	assert.True(t, stats.TotalApprovedAmount.Equal(dec(600)))
	assert.Equal(t, 2, stats.UniqueAnalyticAccounts)
}

func TestImpactCacheSetGetDrop(t *testing.T) {
	l := New("tab-1", nil, zap.NewNop())

	impact := models.BudgetImpact{SessionTotal: dec(500)}
	l.SetBudgetImpact(projectRef(42), impact)

	got, ok := l.BudgetImpact(projectRef(42))
	require.True(t, ok)
	assert.True(t, got.SessionTotal.Equal(dec(500)))

	// Raw-id match drops both namespace entries.
	l.SetBudgetImpact(departmentRef(42), impact)
	l.DropImpacts(42)

	_, ok = l.BudgetImpact(projectRef(42))
	assert.False(t, ok)
	_, ok = l.BudgetImpact(departmentRef(42))
	assert.False(t, ok)
}

func TestRestoreRoundTrip(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	l := New("tab-1", store, zap.NewNop())
	l.AddApprovedInvoice(ctx, 1, dec(5000), projectRef(42))
	l.AddApprovedInvoice(ctx, 2, dec(700), departmentRef(7))

	restored := Restore(ctx, "tab-1", store, zap.NewNop())
	assert.True(t, restored.SessionApprovedAmount(42).Equal(dec(5000)))
	assert.True(t, restored.SessionApprovedAmount(7).Equal(dec(700)))
	assert.Equal(t, 2, restored.Stats().TotalApprovedInvoices)
}

func TestRestoreMissingStartsFresh(t *testing.T) {
	restored := Restore(context.Background(), "never-seen", storage.NewMemoryStore(), zap.NewNop())
	assert.Equal(t, 0, restored.Stats().TotalApprovedInvoices)
}

func TestRestoreCorruptStartsFresh(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Write(ctx, "tab-1", []byte("{not json")))

	restored := Restore(ctx, "tab-1", store, zap.NewNop())
	assert.Equal(t, 0, restored.Stats().TotalApprovedInvoices)
}

type failingStore struct{}

func (failingStore) Read(context.Context, string) ([]byte, error) {
	return nil, errors.New("read refused")
}

func (failingStore) Write(context.Context, string, []byte) error {
	return errors.New("write refused")
}

func (failingStore) Delete(context.Context, string) error {
	return errors.New("delete refused")
}

func TestLedgerUsableWhenPersistenceBroken(t *testing.T) {
	l := New("tab-1", failingStore{}, zap.NewNop())
	ctx := context.Background()

	l.AddApprovedInvoice(ctx, 1, dec(5000), projectRef(42))
	l.ClearSession(ctx)
	l.AddApprovedInvoice(ctx, 2, dec(300), projectRef(42))

	assert.True(t, l.SessionApprovedAmount(42).Equal(dec(300)))
}
