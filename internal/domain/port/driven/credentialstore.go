package driven

import (
	"context"

	"github.com/ewinther/portalsync/internal/domain/model"
)

// CredentialStore defines the driven port for encrypted persistence of the
// single credential record. The adapter owns encryption, key derivation
// and file permissions; this interface operates on domain records.
type CredentialStore interface {
	// Save persists the record, replacing any previous one. The write
	// either completes or fails; a failed Save leaves the previous
	// record untouched.
	Save(ctx context.Context, cred *model.Credential) error

	// Load returns the persisted record, or (nil, nil) when none is
	// available. A missing file, malformed content and a failed
	// authentication-tag check all collapse into (nil, nil): a corrupted
	// session is operationally identical to no session.
	Load(ctx context.Context) (*model.Credential, error)

	// Clear deletes the backing file. Clearing an absent file succeeds.
	Clear(ctx context.Context) error
}
