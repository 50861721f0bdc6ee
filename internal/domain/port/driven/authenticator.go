package driven

import (
	"context"

	"github.com/ewinther/portalsync/internal/domain/model"
)

// Authenticator runs one interactive login ceremony against the SSO
// gateway and returns the freshly captured credential. Implementations
// never retry themselves; retry is always the caller's decision.
type Authenticator interface {
	Authenticate(ctx context.Context) (*model.Credential, error)
}
