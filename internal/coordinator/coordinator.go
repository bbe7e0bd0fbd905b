package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lewisdonovan/isleno-sub001/internal/ledger"
	"github.com/lewisdonovan/isleno-sub001/internal/models"
	"github.com/lewisdonovan/isleno-sub001/internal/service"
)

// Phase is the per-account fetch state.
type Phase string

// Phases of the per-account state machine.
const (
	PhaseIdle        Phase = "idle"
	PhaseFetching    Phase = "fetching"
	PhaseReady       Phase = "ready"
	PhaseUnavailable Phase = "unavailable"
	PhaseFailed      Phase = "failed"
)

// ErrSuperseded is returned when a caller's fetch kept being invalidated by
// newer approvals before it could settle.
var ErrSuperseded = errors.New("impact fetch superseded")

const (
	maxAttempts    = 3
	refreshTimeout = 15 * time.Second
)

// FetchFunc computes an impact given the freshest session-approved snapshot.
// The coordinator supplies the snapshot so callers cannot read a stale one.
type FetchFunc func(ctx context.Context, sessionApproved decimal.Decimal) (*models.BudgetImpact, error)

// Event is one state transition, delivered to stream subscribers.
type Event struct {
	AccountKey string               `json:"account_key"`
	Phase      Phase                `json:"phase"`
	Impact     *models.BudgetImpact `json:"impact,omitempty"`
}

type accountState struct {
	phase     Phase
	seq       uint64
	done      chan struct{} // non-nil while a fetch is in flight
	err       error
	lastFetch FetchFunc
}

// Coordinator sequences impact fetches for one session. It guarantees a
// single outstanding fetch per account key, and that a fetch superseded by a
// newer approval has its result discarded on arrival rather than overwriting
// fresher state.
type Coordinator struct {
	mu     sync.Mutex
	ledger *ledger.Ledger
	logger *zap.Logger
	states map[models.AccountRef]*accountState
	subs   map[chan Event]struct{}
}

// New builds a coordinator over the session's ledger.
func New(l *ledger.Ledger, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		ledger: l,
		logger: logger,
		states: make(map[models.AccountRef]*accountState),
		subs:   make(map[chan Event]struct{}),
	}
}

// Ledger exposes the session ledger to UI-facing handlers.
func (c *Coordinator) Ledger() *ledger.Ledger {
	return c.ledger
}

// RequestImpact returns the impact for the account, fetching if needed.
// A fetch already in flight for the same key is not duplicated; the caller
// waits for it and shares its outcome. Cached results are served until an
// approval invalidates them.
func (c *Coordinator) RequestImpact(ctx context.Context, ref models.AccountRef, fetch FetchFunc) (*models.BudgetImpact, error) {
	return c.requestImpact(ctx, ref, fetch, maxAttempts)
}

func (c *Coordinator) requestImpact(ctx context.Context, ref models.AccountRef, fetch FetchFunc, attempts int) (*models.BudgetImpact, error) {
	if attempts <= 0 {
		return nil, ErrSuperseded
	}

	c.mu.Lock()
	st := c.state(ref)

	if st.phase == PhaseFetching {
		done := st.done
		c.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return c.settled(ctx, ref, fetch, attempts)
	}

	if st.phase == PhaseReady {
		if cached, ok := c.ledger.BudgetImpact(ref); ok {
			c.mu.Unlock()
			return &cached, nil
		}
	}

	st.phase = PhaseFetching
	st.seq++
	seq := st.seq
	done := make(chan struct{})
	st.done = done
	st.lastFetch = fetch
	approved := c.ledger.SessionApprovedAmount(ref.ID)
	c.mu.Unlock()

	c.notify(Event{AccountKey: ref.Key(), Phase: PhaseFetching})

	impact, err := fetch(ctx, approved)

	c.mu.Lock()
	defer close(done)
	if st.seq != seq {
		// A newer approval or fetch superseded this one: discard the result.
		if st.done == done {
			st.done = nil
			st.phase = PhaseIdle
		}
		c.mu.Unlock()
		return c.requestImpact(ctx, ref, fetch, attempts-1)
	}

	st.done = nil
	switch {
	case err == nil:
		st.phase = PhaseReady
		st.err = nil
		c.ledger.SetBudgetImpact(ref, *impact)
	case errors.Is(err, service.ErrBudgetNotFound):
		st.phase = PhaseUnavailable
		st.err = err
	default:
		st.phase = PhaseFailed
		st.err = err
		c.logger.Warn("impact fetch failed", zap.String("account", ref.Key()), zap.Error(err))
	}
	phase := st.phase
	c.mu.Unlock()

	c.notify(Event{AccountKey: ref.Key(), Phase: phase, Impact: impact})
	return impact, err
}

// settled reads the outcome after waiting out another caller's fetch.
func (c *Coordinator) settled(ctx context.Context, ref models.AccountRef, fetch FetchFunc, attempts int) (*models.BudgetImpact, error) {
	c.mu.Lock()
	st := c.state(ref)
	switch st.phase {
	case PhaseReady:
		// Serve from the ledger cache, not the state snapshot: a session
		// clear may have dropped the cache while we were waiting, and the
		// snapshot would resurrect the cleared projection.
		if cached, ok := c.ledger.BudgetImpact(ref); ok {
			c.mu.Unlock()
			return &cached, nil
		}
		c.mu.Unlock()
		return c.requestImpact(ctx, ref, fetch, attempts-1)
	case PhaseUnavailable, PhaseFailed:
		err := st.err
		c.mu.Unlock()
		return nil, err
	default:
		// Invalidated or refetching; try again with a fresh snapshot.
		c.mu.Unlock()
		return c.requestImpact(ctx, ref, fetch, attempts-1)
	}
}

// RecordApproval appends the invoice to the ledger, drops cached impacts for
// every account the approval affects, and refreshes any view that was
// showing one. The ledger append and the invalidation happen under the
// coordinator lock, so no fetch can observe the half-applied state.
func (c *Coordinator) RecordApproval(ctx context.Context, invoiceID int64, amount decimal.Decimal, ref models.AccountRef) {
	c.mu.Lock()
	c.ledger.AddApprovedInvoice(ctx, invoiceID, amount, ref)
	c.ledger.DropImpacts(ref.ID)

	type refresh struct {
		ref   models.AccountRef
		fetch FetchFunc
	}
	var refreshes []refresh
	for stateRef, st := range c.states {
		if stateRef.ID != ref.ID {
			continue
		}
		st.seq++ // discard any in-flight result for this account
		if st.lastFetch != nil && (st.phase == PhaseReady || st.phase == PhaseFetching) {
			refreshes = append(refreshes, refresh{ref: stateRef, fetch: st.lastFetch})
		}
		if st.phase != PhaseFetching {
			st.phase = PhaseIdle
		}
	}
	c.mu.Unlock()

	c.notify(Event{AccountKey: ref.Key(), Phase: PhaseIdle})

	for _, r := range refreshes {
		go func(r refresh) {
			refreshCtx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
			defer cancel()
			if _, err := c.RequestImpact(refreshCtx, r.ref, r.fetch); err != nil {
				c.logger.Debug("post-approval refresh failed", zap.String("account", r.ref.Key()), zap.Error(err))
			}
		}(r)
	}
}

// Phase returns the current phase for the account key.
func (c *Coordinator) Phase(ref models.AccountRef) Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[ref]
	if !ok {
		return PhaseIdle
	}
	return st.phase
}

// Subscribe returns a channel of state transition events and a cancel
// function. Slow subscribers drop events rather than block the coordinator.
func (c *Coordinator) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		if _, ok := c.subs[ch]; ok {
			delete(c.subs, ch)
			close(ch)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

func (c *Coordinator) notify(event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

func (c *Coordinator) state(ref models.AccountRef) *accountState {
	st, ok := c.states[ref]
	if !ok {
		st = &accountState{phase: PhaseIdle}
		c.states[ref] = st
	}
	return st
}
