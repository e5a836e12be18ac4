// ABOUTME: Process-wide engine lifecycle: lazy construction, configured replacement, reset
// ABOUTME: Guards the singleton so concurrent first requests build exactly one engine

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/memos-gateway/internal/config"
	"github.com/2389/memos-gateway/internal/memory"
	"github.com/2389/memos-gateway/internal/store"
)

// ErrEngineConstruction wraps any failure while building an engine instance.
// The previous instance, if any, stays in service when construction fails.
var ErrEngineConstruction = errors.New("engine construction failed")

// Manager owns the process-wide engine singleton. The engine is built lazily
// from the environment baseline on first use, and replaced (or adjusted in
// place) when an explicit configuration arrives. All accessors are safe for
// concurrent use.
type Manager struct {
	mu     sync.RWMutex
	dbPath string
	engine *memory.Engine
	store  store.Store

	// openStore is swappable for tests
	openStore func(path string) (store.Store, error)
	opts      []memory.Option
	logger    *slog.Logger
}

// NewManager creates a manager whose engines persist to the SQLite database
// at dbPath. The options are passed through to every engine it constructs.
func NewManager(dbPath string, opts ...memory.Option) *Manager {
	return &Manager{
		dbPath: dbPath,
		openStore: func(path string) (store.Store, error) {
			return store.NewSQLiteStore(path)
		},
		opts:   opts,
		logger: slog.Default().With("component", "lifecycle"),
	}
}

// GetOrCreate returns the current engine, constructing one from the
// environment baseline if none exists yet. Concurrent callers during first
// use all receive the same instance.
func (m *Manager) GetOrCreate(ctx context.Context) (*memory.Engine, error) {
	m.mu.RLock()
	if m.engine != nil {
		eng := m.engine
		m.mu.RUnlock()
		return eng, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another caller may have won the race
	if m.engine != nil {
		return m.engine, nil
	}

	eng, err := m.build(ctx, config.Baseline())
	if err != nil {
		return nil, err
	}
	m.engine = eng
	m.logger.Info("engine initialized from baseline", "user_id", eng.UserID())
	return eng, nil
}

// Configure applies a partial configuration to the running instance. Fields
// absent from the overrides keep their current values (the live engine's
// settings when one exists, the environment baseline otherwise) — a
// configure never silently resets earlier configuration.
func (m *Manager) Configure(ctx context.Context, o config.EngineOverrides) (*memory.Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// The base snapshot and the swap share one critical section, so two
	// concurrent configures cannot overlay the same base and lose an update
	base := config.Baseline()
	if m.engine != nil {
		base = m.engine.Config()
	}

	cfg, err := config.Overlay(base, o)
	if err != nil {
		return nil, err
	}
	return m.replaceLocked(ctx, cfg)
}

// Replace applies an explicit configuration. When only the engine's mutable
// fields differ from the running instance (user, session, top-k, toggles),
// the instance is adjusted in place; otherwise a fresh engine is built and
// swapped in. The old engine stays in service if construction fails.
func (m *Manager) Replace(ctx context.Context, cfg config.EngineConfig) (*memory.Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replaceLocked(ctx, cfg)
}

func (m *Manager) replaceLocked(ctx context.Context, cfg config.EngineConfig) (*memory.Engine, error) {
	if m.engine != nil && onlyMutableDiff(m.engine.Config(), cfg) {
		if err := m.bootstrapUser(ctx, cfg.UserID); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEngineConstruction, err)
		}
		m.engine.Apply(memory.Settings{
			UserID:                 &cfg.UserID,
			SessionID:              &cfg.SessionID,
			TopK:                   &cfg.TopK,
			EnableTextualMemory:    &cfg.EnableTextualMemory,
			EnableActivationMemory: &cfg.EnableActivationMemory,
		})
		m.logger.Info("engine settings adjusted in place", "user_id", cfg.UserID)
		return m.engine, nil
	}

	eng, err := m.build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	m.engine = eng
	m.logger.Info("engine replaced", "user_id", cfg.UserID)
	return eng, nil
}

// build opens the store if needed, bootstraps the config's default user, and
// constructs an engine.
func (m *Manager) build(ctx context.Context, cfg config.EngineConfig) (*memory.Engine, error) {
	if m.store == nil {
		st, err := m.openStore(m.dbPath)
		if err != nil {
			return nil, fmt.Errorf("%w: opening store: %w", ErrEngineConstruction, err)
		}
		m.store = st
	}

	if err := m.bootstrapUser(ctx, cfg.UserID); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngineConstruction, err)
	}

	eng, err := memory.New(ctx, cfg, m.store, m.opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngineConstruction, err)
	}
	return eng, nil
}

// bootstrapUser makes sure the config's default user exists before the
// engine validates it. Losing the creation race to a concurrent bootstrap is
// fine.
func (m *Manager) bootstrapUser(ctx context.Context, userID string) error {
	ok, err := m.store.ValidateUser(ctx, userID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	err = m.store.CreateUser(ctx, &store.User{
		ID:        userID,
		Name:      userID,
		Role:      store.RoleUser,
		Active:    true,
		CreatedAt: time.Now(),
	})
	if err != nil && !errors.Is(err, store.ErrDuplicateUser) {
		return err
	}
	return nil
}

// Current returns the running engine without constructing one. Nil when no
// engine has been built yet.
func (m *Manager) Current() *memory.Engine {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.engine
}

// Reset drops the current engine and closes the store. The next GetOrCreate
// rebuilds from the baseline.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.engine = nil
	if m.store != nil {
		err := m.store.Close()
		m.store = nil
		return err
	}
	return nil
}

// Close releases the manager's resources
func (m *Manager) Close() error {
	return m.Reset()
}

// onlyMutableDiff reports whether two configs differ at most in the fields
// Apply can change on a live instance. Everything else (models, embedder,
// chunker) requires a rebuild.
func onlyMutableDiff(current, next config.EngineConfig) bool {
	current.UserID = next.UserID
	current.SessionID = next.SessionID
	current.TopK = next.TopK
	current.EnableTextualMemory = next.EnableTextualMemory
	current.EnableActivationMemory = next.EnableActivationMemory
	return current == next
}
