// Package sessionfile persists the single credential record as an
// encrypted JSON envelope on disk. The encryption key is derived from the
// local user and machine identity, binding the file to this account on
// this host without a user-supplied password.
package sessionfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ewinther/portalsync/internal/domain/model"
	"github.com/ewinther/portalsync/internal/domain/port/driven"
)

const sessionFileName = "session.json"

// cookiePrefix tags a serialized-cookie secret inside the envelope
// payload. Kept for compatibility with existing session files; in memory
// the distinction is the explicit Kind on the record.
const cookiePrefix = "cookie:"

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*Store)(nil)

// Store is the file-backed implementation of the CredentialStore port.
type Store struct {
	path   string
	key    []byte
	logger *slog.Logger
}

// New creates a Store rooted at dir. Key derivation runs once here; it is
// deliberately slow (argon2id), so constructing a Store is not free.
func New(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	key, err := deriveKey()
	if err != nil {
		return nil, fmt.Errorf("deriving session key: %w", err)
	}
	return &Store{
		path:   filepath.Join(dir, sessionFileName),
		key:    key,
		logger: logger,
	}, nil
}

// Save encrypts and persists the record, creating the parent directory
// with owner-only permissions. The file is written to a temp path and
// renamed so a crash never leaves a half-written envelope behind.
func (s *Store) Save(ctx context.Context, cred *model.Credential) error {
	if cred == nil {
		return errors.New("cannot save nil credential")
	}

	plaintext := cred.Secret.Value()
	if cred.Kind == model.KindCookie {
		plaintext = cookiePrefix + plaintext
	}

	payload, err := seal(s.key, []byte(plaintext))
	if err != nil {
		return fmt.Errorf("sealing credential: %w", err)
	}

	env := envelope{
		Version:   envelopeVersion,
		Encrypted: *payload,
		CreatedAt: cred.CapturedAt.UnixMilli(),
		ExpiresAt: cred.ExpiresAt.UnixMilli(),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating session dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing session file: %w", err)
	}

	s.logger.Debug("session saved", "path", s.path, "expires_at", cred.ExpiresAt)
	return nil
}

// Load returns the persisted record or (nil, nil) when no usable record
// exists. Missing file, malformed JSON, an unknown envelope version and a
// failed authentication tag all take the same degraded path: a corrupted
// session is operationally identical to no session.
func (s *Store) Load(ctx context.Context) (*model.Credential, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Debug("session file unreadable", "path", s.path, "error", err)
		}
		return nil, nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Debug("session file malformed", "path", s.path, "error", err)
		return nil, nil
	}
	if env.Version != envelopeVersion {
		s.logger.Debug("session file version unsupported", "version", env.Version)
		return nil, nil
	}

	plaintext, err := open(s.key, &env.Encrypted)
	if err != nil {
		s.logger.Debug("session file failed verification", "path", s.path, "error", err)
		return nil, nil
	}

	secret := string(plaintext)
	kind := model.KindBearer
	if trimmed, ok := strings.CutPrefix(secret, cookiePrefix); ok {
		secret = trimmed
		kind = model.KindCookie
	}

	return &model.Credential{
		Secret:     model.NewSecret(secret),
		Kind:       kind,
		Source:     model.SourceCache,
		CapturedAt: time.UnixMilli(env.CreatedAt),
		ExpiresAt:  time.UnixMilli(env.ExpiresAt),
	}, nil
}

// Clear deletes the session file. Deleting a nonexistent file succeeds.
func (s *Store) Clear(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing session file: %w", err)
	}
	return nil
}

// Path returns the resolved location of the session file.
func (s *Store) Path() string {
	return s.path
}
