package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/ewinther/portalsync/internal/domain/port/driven"
)

// Guard runs the interactive login ceremony at most once concurrently.
// Callers that arrive while a ceremony is in flight are rejected
// immediately rather than queued: duplicating an interactive SSO flow
// would fire duplicate MFA prompts, which is strictly worse than having
// the loser fail fast and retry later.
type Guard struct {
	sem     *semaphore.Weighted
	auth    driven.Authenticator
	manager *Manager
	logger  *slog.Logger
}

// NewGuard creates a Guard around the given authenticator and manager.
func NewGuard(auth driven.Authenticator, manager *Manager, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		sem:     semaphore.NewWeighted(1),
		auth:    auth,
		manager: manager,
		logger:  logger,
	}
}

// Run executes the ceremony and persists the captured credential through
// the manager. It returns (false, nil) without waiting when a ceremony is
// already in progress; such callers are expected to retry later. When it
// returns (true, nil) a fresh credential has been stored.
func (g *Guard) Run(ctx context.Context) (bool, error) {
	if !g.sem.TryAcquire(1) {
		g.logger.Debug("login ceremony already in progress, rejecting caller")
		return false, nil
	}
	defer g.sem.Release(1)

	runID := uuid.NewString()
	g.logger.Info("login ceremony started", "run_id", runID)

	cred, err := g.auth.Authenticate(ctx)
	if err != nil {
		g.logger.Error("login ceremony failed", "run_id", runID, "error", err)
		return true, err
	}
	if err := g.manager.SetCredential(ctx, cred); err != nil {
		return true, fmt.Errorf("storing captured credential: %w", err)
	}

	g.logger.Info("login ceremony succeeded",
		"run_id", runID,
		"kind", string(cred.Kind),
		"expires_at", cred.ExpiresAt,
	)
	return true, nil
}
