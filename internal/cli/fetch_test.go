package cli

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ewinther/portalsync/internal/domain/model"
)

func TestDescribeAPIError(t *testing.T) {
	err := describeAPIError(model.ErrUnauthenticated)
	assert.Contains(t, err.Error(), "portalsync login")

	err = describeAPIError(model.ErrAuthExpired)
	assert.Contains(t, err.Error(), "portalsync login")

	err = describeAPIError(&model.RateLimitError{RetryAfter: 30 * time.Second})
	assert.Contains(t, err.Error(), "30s")

	err = describeAPIError(&model.RateLimitError{})
	assert.Contains(t, err.Error(), "retry later")

	err = describeAPIError(&model.APIError{StatusCode: 403, Body: "nope"})
	assert.Contains(t, err.Error(), "403")

	plain := errors.New("connection refused")
	assert.Same(t, plain, describeAPIError(plain))
}

func TestNewRootCmd_RegistersSubcommands(t *testing.T) {
	root := NewRootCmd()

	var names []string
	for _, sub := range root.Commands() {
		names = append(names, sub.Name())
	}
	assert.Subset(t, names, []string{"login", "logout", "status", "versions", "fetch"})
}
