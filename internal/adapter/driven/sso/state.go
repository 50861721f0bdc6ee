package sso

import (
	"errors"
	"fmt"
)

// State names a step of the login ceremony. The flow is an explicit
// state machine so every branch, timeout and failure is attributable to
// a single named state.
type State int

const (
	StateStart State = iota
	StateInstitution
	StateCredentials
	StateMFA
	StateStayPrompt
	StateCapture
	StateAuthenticated
	StateFailed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateStart:
		return "Start"
	case StateInstitution:
		return "InstitutionSelect"
	case StateCredentials:
		return "CredentialEntry"
	case StateMFA:
		return "MFAChallenge"
	case StateStayPrompt:
		return "SessionPersistencePrompt"
	case StateCapture:
		return "TokenCapture"
	case StateAuthenticated:
		return "Authenticated"
	case StateFailed:
		return "Failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ErrMissingCredentials marks the fatal configuration error of reaching
// credential entry without a configured username and password. Not
// retryable; re-running the ceremony cannot help.
var ErrMissingCredentials = errors.New("username and password must be configured")

// FlowError reports which ceremony state failed. The state name is for
// diagnostics only; callers never branch on it.
type FlowError struct {
	State State
	Err   error
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("login failed at %s: %v", e.State, e.Err)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}
