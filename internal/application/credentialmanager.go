// Package application wires the domain's credential lifecycle: the
// manager that layers an in-memory record over the encrypted store, and
// the guard that serializes interactive reauthentication.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ewinther/portalsync/internal/domain/model"
	"github.com/ewinther/portalsync/internal/domain/port/driven"
)

// DefaultRefreshBuffer is the minimum remaining lifetime a credential
// must have to be served. It exists so a credential cannot expire
// mid-flight during a downstream request.
const DefaultRefreshBuffer = 5 * time.Minute

// Manager resolves a usable credential from memory, then disk, then
// reports none. All state transitions hold the mutex; memory and disk can
// never silently disagree in the manager's favor because SetCredential
// writes disk before memory.
type Manager struct {
	mu     sync.Mutex
	store  driven.CredentialStore
	buffer time.Duration
	logger *slog.Logger
	now    func() time.Time

	cached *model.Credential
}

// NewManager creates a Manager over the given store. A non-positive
// buffer selects DefaultRefreshBuffer.
func NewManager(store driven.CredentialStore, buffer time.Duration, logger *slog.Logger) *Manager {
	if buffer <= 0 {
		buffer = DefaultRefreshBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  store,
		buffer: buffer,
		logger: logger,
		now:    time.Now,
	}
}

// GetCredential returns a credential whose remaining lifetime exceeds the
// refresh buffer, or (nil, nil) when none is available. Callers interpret
// (nil, nil) as "reauthentication required". Store read failures degrade
// to absence; a missing session is a normal operating state.
func (m *Manager) GetCredential(ctx context.Context) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.cached != nil && m.cached.ValidAt(now, m.buffer) {
		return m.cached, nil
	}
	m.cached = nil

	loaded, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Warn("session store read failed, treating as absent", "error", err)
		return nil, nil
	}
	if loaded == nil || !loaded.ValidAt(now, m.buffer) {
		return nil, nil
	}

	m.cached = loaded
	m.logger.Debug("credential restored from session file", "expires_at", loaded.ExpiresAt)
	return loaded, nil
}

// SetCredential persists the record and then publishes it to the memory
// layer. If the disk write fails the memory cache is left untouched.
func (m *Manager) SetCredential(ctx context.Context, cred *model.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Save(ctx, cred); err != nil {
		return fmt.Errorf("persisting credential: %w", err)
	}
	m.cached = cred
	return nil
}

// ClearCredential empties both the memory layer and the disk store.
func (m *Manager) ClearCredential(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cached = nil
	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("clearing credential: %w", err)
	}
	return nil
}

// IsValid reports whether cred would currently be served by GetCredential.
func (m *Manager) IsValid(cred *model.Credential) bool {
	return cred != nil && cred.ValidAt(m.now(), m.buffer)
}
