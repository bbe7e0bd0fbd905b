package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lewisdonovan/isleno-sub001/internal/budget"
	"github.com/lewisdonovan/isleno-sub001/internal/ledger"
	"github.com/lewisdonovan/isleno-sub001/internal/models"
	"github.com/lewisdonovan/isleno-sub001/internal/service"
)

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func projectRef(id int64) models.AccountRef {
	return models.AccountRef{Kind: models.AccountKindProject, ID: id}
}

func newCoordinator() *Coordinator {
	return New(ledger.New("tab-1", nil, zap.NewNop()), zap.NewNop())
}

// computeFetch mimics the impact service over a fixed authoritative snapshot.
func computeFetch(calls *int64) FetchFunc {
	authoritative := models.BudgetSummary{
		TotalBudget: dec(100000),
		TotalSpent:  dec(20000),
	}
	return func(_ context.Context, sessionApproved decimal.Decimal) (*models.BudgetImpact, error) {
		if calls != nil {
			atomic.AddInt64(calls, 1)
		}
		impact := budget.Compute(authoritative, sessionApproved, dec(3000))
		return &impact, nil
	}
}

func TestRequestImpactFetchesAndCaches(t *testing.T) {
	c := newCoordinator()
	ref := projectRef(42)
	c.Ledger().AddApprovedInvoice(context.Background(), 1, dec(5000), ref)

	var calls int64
	impact, err := c.RequestImpact(context.Background(), ref, computeFetch(&calls))
	require.NoError(t, err)

	assert.True(t, impact.CurrentBudget.TotalSpent.Equal(dec(25000)))
	assert.True(t, impact.ProjectedBudget.TotalSpent.Equal(dec(28000)))
	assert.Equal(t, PhaseReady, c.Phase(ref))

	// Second request within the same render cycle hits the cache.
	_, err = c.RequestImpact(context.Background(), ref, computeFetch(&calls))
	require.NoError(t, err)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))

	cached, ok := c.Ledger().BudgetImpact(ref)
	require.True(t, ok)
	assert.True(t, cached.SessionTotal.Equal(dec(5000)))
}

func TestConcurrentFetchNotDuplicated(t *testing.T) {
	c := newCoordinator()
	ref := projectRef(42)

	var calls int64
	release := make(chan struct{})
	fetch := func(_ context.Context, sessionApproved decimal.Decimal) (*models.BudgetImpact, error) {
		atomic.AddInt64(&calls, 1)
		<-release
		impact := budget.Compute(models.BudgetSummary{TotalBudget: dec(1000)}, sessionApproved, dec(10))
		return &impact, nil
	}

	var wg sync.WaitGroup
	results := make([]*models.BudgetImpact, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			impact, err := c.RequestImpact(context.Background(), ref, fetch)
			assert.NoError(t, err)
			results[i] = impact
		}(i)
	}

	// Let both goroutines reach the coordinator before releasing the fetch.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&calls), "in-flight fetch must be shared, not duplicated")
	require.NotNil(t, results[0])
	require.NotNil(t, results[1])
	assert.True(t, results[0].ProjectedBudget.TotalSpent.Equal(results[1].ProjectedBudget.TotalSpent))
}

func TestRecordApprovalInvalidatesCache(t *testing.T) {
	c := newCoordinator()
	ref := projectRef(42)

	var calls int64
	_, err := c.RequestImpact(context.Background(), ref, computeFetch(&calls))
	require.NoError(t, err)

	c.RecordApproval(context.Background(), 1, dec(5000), ref)

	assert.True(t, c.Ledger().SessionApprovedAmount(42).Equal(dec(5000)))

	// The refresh is asynchronous; wait for the cache to carry the new total.
	require.Eventually(t, func() bool {
		cached, ok := c.Ledger().BudgetImpact(ref)
		return ok && cached.SessionTotal.Equal(dec(5000))
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSupersededFetchResultIsDiscarded(t *testing.T) {
	c := newCoordinator()
	ref := projectRef(42)

	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})
	var once sync.Once
	authoritative := models.BudgetSummary{TotalBudget: dec(100000), TotalSpent: dec(20000)}

	fetch := func(_ context.Context, sessionApproved decimal.Decimal) (*models.BudgetImpact, error) {
		once.Do(func() {
			close(firstStarted)
			<-releaseFirst
		})
		impact := budget.Compute(authoritative, sessionApproved, dec(3000))
		return &impact, nil
	}

	done := make(chan *models.BudgetImpact, 1)
	go func() {
		impact, err := c.RequestImpact(context.Background(), ref, fetch)
		assert.NoError(t, err)
		done <- impact
	}()

	<-firstStarted
	// Approval lands while the first fetch is in flight; its snapshot of the
	// session-approved amount (zero) is now stale.
	c.RecordApproval(context.Background(), 1, dec(5000), ref)
	close(releaseFirst)

	impact := <-done
	require.NotNil(t, impact)
	assert.True(t, impact.SessionTotal.Equal(dec(5000)),
		"stale snapshot must be discarded and refetched, got session total %s", impact.SessionTotal)

	cached, ok := c.Ledger().BudgetImpact(ref)
	require.True(t, ok)
	assert.True(t, cached.SessionTotal.Equal(dec(5000)))
}

func TestNotFoundTransitionsToUnavailable(t *testing.T) {
	c := newCoordinator()
	ref := projectRef(42)

	fetch := func(context.Context, decimal.Decimal) (*models.BudgetImpact, error) {
		return nil, service.ErrBudgetNotFound
	}

	impact, err := c.RequestImpact(context.Background(), ref, fetch)
	require.ErrorIs(t, err, service.ErrBudgetNotFound)
	assert.Nil(t, impact)
	assert.Equal(t, PhaseUnavailable, c.Phase(ref))
}

func TestFetchErrorTransitionsToFailed(t *testing.T) {
	c := newCoordinator()
	ref := projectRef(42)

	fetch := func(context.Context, decimal.Decimal) (*models.BudgetImpact, error) {
		return nil, errors.New("erp timeout")
	}

	_, err := c.RequestImpact(context.Background(), ref, fetch)
	require.Error(t, err)
	assert.Equal(t, PhaseFailed, c.Phase(ref))

	// A later request retries rather than serving the failure forever.
	var calls int64
	impact, err := c.RequestImpact(context.Background(), ref, computeFetch(&calls))
	require.NoError(t, err)
	require.NotNil(t, impact)
	assert.Equal(t, PhaseReady, c.Phase(ref))
}

func TestSubscribeReceivesTransitions(t *testing.T) {
	c := newCoordinator()
	ref := projectRef(42)

	events, cancel := c.Subscribe()
	defer cancel()

	var calls int64
	_, err := c.RequestImpact(context.Background(), ref, computeFetch(&calls))
	require.NoError(t, err)

	seen := make(map[Phase]bool)
	timeout := time.After(time.Second)
	for len(seen) < 2 {
		select {
		case ev := <-events:
			assert.Equal(t, "project:42", ev.AccountKey)
			seen[ev.Phase] = true
		case <-timeout:
			t.Fatalf("missing transitions, saw %v", seen)
		}
	}
	assert.True(t, seen[PhaseFetching])
	assert.True(t, seen[PhaseReady])
}

// A session clear can land between a fetch settling and a waiting caller
// reading its outcome. The waiter must consult the ledger cache like a fresh
// request would, not resurrect the projection computed from the cleared
// approvals.
func TestWaiterConsultsLedgerCacheAfterClear(t *testing.T) {
	c := newCoordinator()
	ref := projectRef(42)
	ctx := context.Background()
	c.Ledger().AddApprovedInvoice(ctx, 1, dec(5000), ref)

	var calls int64
	_, err := c.RequestImpact(ctx, ref, computeFetch(&calls))
	require.NoError(t, err)
	require.Equal(t, PhaseReady, c.Phase(ref))

	// The clear drops the cached projection but leaves the account ready,
	// the state a waiter wakes into when the clear wins the race.
	c.Ledger().ClearSession(ctx)
	_, ok := c.Ledger().BudgetImpact(ref)
	require.False(t, ok)

	impact, err := c.settled(ctx, ref, computeFetch(&calls), maxAttempts)
	require.NoError(t, err)

	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
	assert.True(t, impact.SessionTotal.IsZero())
	assert.True(t, impact.ProjectedBudget.TotalSpent.Equal(dec(23000)))
}
