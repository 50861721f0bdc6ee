// Package logging provides the process-wide redacting log sink. Redaction
// is a mandatory formatting step of the sink itself, not an opt-in at call
// sites, so no log statement can leak a captured credential.
package logging

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

// secretKeyFragments marks attribute keys whose values are always
// rewritten, matched case-insensitively as substrings.
var secretKeyFragments = []string{
	"token",
	"secret",
	"password",
	"authorization",
	"cookie",
	"credential",
}

// bearerPattern matches bearer tokens embedded in free-form message text.
var bearerPattern = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9\-._~+/]+=*`)

// RedactHandler wraps a slog.Handler and scrubs secrets from every record
// before delegating.
type RedactHandler struct {
	inner slog.Handler
}

var _ slog.Handler = (*RedactHandler)(nil)

// NewRedactHandler wraps inner with mandatory secret redaction.
func NewRedactHandler(inner slog.Handler) *RedactHandler {
	return &RedactHandler{inner: inner}
}

// Enabled implements slog.Handler.
func (h *RedactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler. It rewrites the message and all attrs.
func (h *RedactHandler) Handle(ctx context.Context, record slog.Record) error {
	clean := slog.NewRecord(record.Time, record.Level, RedactText(record.Message), record.PC)
	record.Attrs(func(attr slog.Attr) bool {
		clean.AddAttrs(redactAttr(attr))
		return true
	})
	return h.inner.Handle(ctx, clean)
}

// WithAttrs implements slog.Handler.
func (h *RedactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cleaned := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		cleaned[i] = redactAttr(attr)
	}
	return &RedactHandler{inner: h.inner.WithAttrs(cleaned)}
}

// WithGroup implements slog.Handler.
func (h *RedactHandler) WithGroup(name string) slog.Handler {
	return &RedactHandler{inner: h.inner.WithGroup(name)}
}

// RedactText masks bearer-shaped substrings in free-form text.
func RedactText(text string) string {
	return bearerPattern.ReplaceAllString(text, "Bearer "+redacted)
}

func redactAttr(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() == slog.KindGroup {
		members := attr.Value.Group()
		cleaned := make([]slog.Attr, len(members))
		for i, member := range members {
			cleaned[i] = redactAttr(member)
		}
		return slog.Attr{Key: attr.Key, Value: slog.GroupValue(cleaned...)}
	}

	if isSecretKey(attr.Key) {
		return slog.String(attr.Key, redacted)
	}

	if attr.Value.Kind() == slog.KindString {
		return slog.String(attr.Key, RedactText(attr.Value.String()))
	}
	return attr
}

func isSecretKey(key string) bool {
	lower := strings.ToLower(key)
	for _, fragment := range secretKeyFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}
