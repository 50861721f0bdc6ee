package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ewinther/portalsync/internal/domain/model"
)

// fakeAuthenticator blocks on release until the test lets it finish.
type fakeAuthenticator struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
	cred    *model.Credential
	err     error
}

func (f *fakeAuthenticator) Authenticate(ctx context.Context) (*model.Credential, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.release != nil {
		<-f.release
	}
	return f.cred, f.err
}

func (f *fakeAuthenticator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestGuard_RunPersistsCapturedCredential(t *testing.T) {
	store := &fakeStore{}
	mgr := NewManager(store, 0, slog.Default())
	auth := &fakeAuthenticator{cred: freshCredential(time.Hour)}
	guard := NewGuard(auth, mgr, slog.Default())

	started, err := guard.Run(context.Background())

	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, 1, store.saves)

	cred, err := mgr.GetCredential(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, cred)
}

func TestGuard_ConcurrentCallersRejectedImmediately(t *testing.T) {
	store := &fakeStore{}
	mgr := NewManager(store, 0, slog.Default())
	auth := &fakeAuthenticator{
		cred:    freshCredential(time.Hour),
		release: make(chan struct{}),
	}
	guard := NewGuard(auth, mgr, slog.Default())

	firstDone := make(chan error, 1)
	go func() {
		_, err := guard.Run(context.Background())
		firstDone <- err
	}()

	// Wait for the first ceremony to be in flight.
	require.Eventually(t, func() bool { return auth.callCount() == 1 },
		time.Second, 5*time.Millisecond)

	// The second caller must be rejected without waiting.
	rejectedAt := time.Now()
	started, err := guard.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, started)
	assert.Less(t, time.Since(rejectedAt), 200*time.Millisecond)
	assert.Equal(t, 1, auth.callCount(), "exactly one ceremony executes")

	close(auth.release)
	require.NoError(t, <-firstDone)

	// Once released, the guard accepts callers again.
	started, err = guard.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, started)
}

func TestGuard_AuthFailurePropagatesAndReleases(t *testing.T) {
	store := &fakeStore{}
	mgr := NewManager(store, 0, slog.Default())
	auth := &fakeAuthenticator{err: errors.New("mfa timed out")}
	guard := NewGuard(auth, mgr, slog.Default())

	started, err := guard.Run(context.Background())
	assert.True(t, started)
	require.Error(t, err)
	assert.Equal(t, 0, store.saves)

	// The slot is free again after a failure.
	auth.err = nil
	auth.cred = freshCredential(time.Hour)
	started, err = guard.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, started)
}

// Fresh machine: no stored session, first lookup reports none, one
// ceremony captures and persists a credential, and later lookups are
// served from memory without touching disk.
func TestLifecycle_FreshMachineThroughLoginToMemoryServe(t *testing.T) {
	store := &fakeStore{}
	mgr := NewManager(store, 0, slog.Default())
	guard := NewGuard(&fakeAuthenticator{cred: freshCredential(time.Hour)}, mgr, slog.Default())
	ctx := context.Background()

	cred, err := mgr.GetCredential(ctx)
	require.NoError(t, err)
	assert.Nil(t, cred)

	started, err := guard.Run(ctx)
	require.NoError(t, err)
	require.True(t, started)
	assert.Equal(t, 1, store.saves)

	store.loads = 0
	cred, err = mgr.GetCredential(ctx)
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, 0, store.loads, "within the TTL the credential is served from memory")
}
