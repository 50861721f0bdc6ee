package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCaptureLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	handler := NewRedactHandler(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return slog.New(handler), &buf
}

func TestRedactHandler_SecretKeys(t *testing.T) {
	logger, buf := newCaptureLogger()

	logger.Info("saved", "access_token", "tok-abc123", "path", "/tmp/session.json")

	out := buf.String()
	assert.NotContains(t, out, "tok-abc123")
	assert.Contains(t, out, "[REDACTED]")
	assert.Contains(t, out, "/tmp/session.json")
}

func TestRedactHandler_KeyMatchIsCaseInsensitive(t *testing.T) {
	logger, buf := newCaptureLogger()

	logger.Warn("rejected", "Authorization", "Bearer abc", "Set-Cookie", "sid=1")

	out := buf.String()
	assert.NotContains(t, out, "abc")
	assert.NotContains(t, out, "sid=1")
}

func TestRedactHandler_BearerInMessage(t *testing.T) {
	logger, buf := newCaptureLogger()

	logger.Debug("observed header Bearer eyJhbGciOi.payload-sig")

	out := buf.String()
	assert.NotContains(t, out, "eyJhbGciOi")
	assert.Contains(t, out, "Bearer [REDACTED]")
}

func TestRedactHandler_BearerInPlainStringAttr(t *testing.T) {
	logger, buf := newCaptureLogger()

	logger.Info("request sent", "header", "Bearer abc123def")

	assert.NotContains(t, buf.String(), "abc123def")
}

func TestRedactHandler_WithAttrsAndGroups(t *testing.T) {
	logger, buf := newCaptureLogger()

	logger.With("totp_secret", "JBSWY3DP").WithGroup("req").Info("sent", "cookie", "sid=2")

	out := buf.String()
	assert.NotContains(t, out, "JBSWY3DP")
	assert.NotContains(t, out, "sid=2")
}

func TestRedactHandler_PreservesNonSecretAttrs(t *testing.T) {
	logger, buf := newCaptureLogger()

	logger.Info("versions discovered", "portal", "2.41", "widgets", "1.9")

	out := buf.String()
	require.Contains(t, out, "2.41")
	require.Contains(t, out, "1.9")
}
