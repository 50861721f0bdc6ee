package application

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ewinther/portalsync/internal/domain/model"
)

// fakeStore is an in-memory CredentialStore that counts operations.
type fakeStore struct {
	cred    *model.Credential
	saveErr error
	loadErr error
	loads   int
	saves   int
	clears  int
}

func (f *fakeStore) Save(ctx context.Context, cred *model.Credential) error {
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.cred = cred
	return nil
}

func (f *fakeStore) Load(ctx context.Context) (*model.Credential, error) {
	f.loads++
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.cred, nil
}

func (f *fakeStore) Clear(ctx context.Context) error {
	f.clears++
	f.cred = nil
	return nil
}

func freshCredential(ttl time.Duration) *model.Credential {
	return model.NewCredential("tok", model.KindBearer, time.Now(), ttl)
}

func TestManager_GetCredential_EmptyIsNone(t *testing.T) {
	store := &fakeStore{}
	mgr := NewManager(store, 0, slog.Default())

	cred, err := mgr.GetCredential(context.Background())

	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestManager_SetThenGetServesFromMemory(t *testing.T) {
	store := &fakeStore{}
	mgr := NewManager(store, 0, slog.Default())
	ctx := context.Background()

	require.NoError(t, mgr.SetCredential(ctx, freshCredential(time.Hour)))
	store.loads = 0

	cred, err := mgr.GetCredential(ctx)
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, 0, store.loads, "a valid memory record never touches disk")
}

func TestManager_GetFallsBackToStore(t *testing.T) {
	store := &fakeStore{cred: freshCredential(time.Hour)}
	mgr := NewManager(store, 0, slog.Default())

	cred, err := mgr.GetCredential(context.Background())

	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, 1, store.loads)

	// Second read is served from memory.
	_, err = mgr.GetCredential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, store.loads)
}

func TestManager_RefreshBufferRejectsNearExpiry(t *testing.T) {
	// 4 minutes of lifetime left against the default 5 minute buffer.
	store := &fakeStore{cred: freshCredential(4 * time.Minute)}
	mgr := NewManager(store, 0, slog.Default())

	cred, err := mgr.GetCredential(context.Background())

	require.NoError(t, err)
	assert.Nil(t, cred)

	// 6 minutes of lifetime clears the buffer.
	store.cred = freshCredential(6 * time.Minute)
	cred, err = mgr.GetCredential(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, cred)
}

func TestManager_SetCredential_DiskFailureLeavesMemoryUntouched(t *testing.T) {
	store := &fakeStore{}
	mgr := NewManager(store, 0, slog.Default())
	ctx := context.Background()

	store.saveErr = errors.New("disk full")
	err := mgr.SetCredential(ctx, freshCredential(time.Hour))
	require.Error(t, err)

	store.saveErr = nil
	cred, err := mgr.GetCredential(ctx)
	require.NoError(t, err)
	assert.Nil(t, cred, "a failed save must not populate the memory layer")
}

func TestManager_StoreReadFailureDegradesToNone(t *testing.T) {
	store := &fakeStore{loadErr: errors.New("io error")}
	mgr := NewManager(store, 0, slog.Default())

	cred, err := mgr.GetCredential(context.Background())

	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestManager_ClearCredential_EmptiesBothLayers(t *testing.T) {
	store := &fakeStore{}
	mgr := NewManager(store, 0, slog.Default())
	ctx := context.Background()

	require.NoError(t, mgr.SetCredential(ctx, freshCredential(time.Hour)))
	require.NoError(t, mgr.ClearCredential(ctx))

	assert.Equal(t, 1, store.clears)
	cred, err := mgr.GetCredential(ctx)
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestManager_IsValid(t *testing.T) {
	mgr := NewManager(&fakeStore{}, 0, slog.Default())

	assert.False(t, mgr.IsValid(nil))
	assert.False(t, mgr.IsValid(freshCredential(4*time.Minute)))
	assert.True(t, mgr.IsValid(freshCredential(6*time.Minute)))
}
