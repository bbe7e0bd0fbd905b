package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/lewisdonovan/isleno-sub001/internal/coordinator"
	"github.com/lewisdonovan/isleno-sub001/internal/ledger"
	"github.com/lewisdonovan/isleno-sub001/internal/ledger/storage"
)

// Manager tracks one coordinator per browser session. Sessions are created
// lazily on first use, restoring any persisted ledger, and live until the
// session is explicitly cleared or the process exits.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*coordinator.Coordinator
	store    storage.Store
	logger   *zap.Logger
}

// NewManager builds manager. A nil store disables ledger persistence.
func NewManager(store storage.Store, logger *zap.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*coordinator.Coordinator),
		store:    store,
		logger:   logger,
	}
}

// Coordinator returns the session's coordinator, creating it on first use.
func (m *Manager) Coordinator(ctx context.Context, sessionID string) *coordinator.Coordinator {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.sessions[sessionID]; ok {
		return c
	}

	l := ledger.Restore(ctx, sessionID, m.store, m.logger)
	c := coordinator.New(l, m.logger)
	m.sessions[sessionID] = c
	return c
}

// Clear empties the session's ledger. The coordinator and session identity
// survive; only the approved-invoice records and cached impacts are dropped.
func (m *Manager) Clear(ctx context.Context, sessionID string) {
	m.mu.Lock()
	c, ok := m.sessions[sessionID]
	m.mu.Unlock()

	if ok {
		c.Ledger().ClearSession(ctx)
		return
	}

	// Never materialized this process; drop any persisted copy directly.
	if m.store != nil {
		if err := m.store.Delete(ctx, sessionID); err != nil {
			m.logger.Warn("session clear failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
}
