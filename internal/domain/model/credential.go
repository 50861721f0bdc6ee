package model

import (
	"time"
)

// CredentialKind distinguishes how a credential is presented to the gateway.
type CredentialKind string

const (
	// KindBearer is sent as "Authorization: Bearer <secret>".
	KindBearer CredentialKind = "bearer"
	// KindCookie is a serialized cookie header sent as "Cookie: <secret>".
	// Produced by the login flow's cookie fallback when no bearer token
	// could be captured from the authenticated session.
	KindCookie CredentialKind = "cookie"
)

// CredentialSource records how a credential was obtained.
type CredentialSource string

const (
	// SourceInteractive marks a credential captured by the login flow.
	SourceInteractive CredentialSource = "interactive"
	// SourceCache marks a credential loaded back from the session file.
	SourceCache CredentialSource = "cache"
)

// Credential is a captured gateway credential. Records are immutable:
// refreshing always produces a new record, never a mutation, and the
// expiry is fixed at capture time as CapturedAt plus the configured TTL.
type Credential struct {
	Secret     Secret
	Kind       CredentialKind
	Source     CredentialSource
	CapturedAt time.Time
	ExpiresAt  time.Time
}

// NewCredential builds an interactively captured credential whose expiry
// is now plus ttl.
func NewCredential(secret string, kind CredentialKind, now time.Time, ttl time.Duration) *Credential {
	return &Credential{
		Secret:     NewSecret(secret),
		Kind:       kind,
		Source:     SourceInteractive,
		CapturedAt: now,
		ExpiresAt:  now.Add(ttl),
	}
}

// Header returns the HTTP request header carrying this credential:
// "Authorization: Bearer <secret>" for bearer records, "Cookie: <secret>"
// for cookie records.
func (c *Credential) Header() (name, value string) {
	if c.Kind == KindCookie {
		return "Cookie", c.Secret.Value()
	}
	return "Authorization", "Bearer " + c.Secret.Value()
}

// ValidAt reports whether the credential's remaining lifetime at now
// exceeds the given refresh buffer.
func (c *Credential) ValidAt(now time.Time, buffer time.Duration) bool {
	return c.ExpiresAt.Sub(now) > buffer
}

// SameSecret reports whether other carries the same secret value.
// Used by the API client to decide whether a 401 retry is worthwhile.
func (c *Credential) SameSecret(other *Credential) bool {
	return other != nil && c.Secret.Value() == other.Secret.Value()
}
