// Package sso drives the interactive login ceremony against the
// institutional single-sign-on gateway. The ceremony is modeled as an
// explicit state machine over a BrowserSession port; the vendor-specific
// page mechanics live behind that port and the Selectors table.
package sso

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ewinther/portalsync/internal/domain/model"
	"github.com/ewinther/portalsync/internal/domain/port/driven"
)

// Config holds the ceremony's inputs.
type Config struct {
	// LoginURL is the SSO entry point.
	LoginURL string
	// PortalURL is a known authenticated endpoint, navigated to when the
	// capture step needs to provoke bearer-bearing API traffic.
	PortalURL string
	// APIPrefix filters observed requests: only requests whose URL starts
	// with this prefix are considered for passive token capture.
	APIPrefix string

	Username string
	Password model.Secret
	// TOTPSecret enables automated MFA when set. When empty the flow
	// waits for an out-of-band approval instead.
	TOTPSecret model.Secret
	// Institution is the search text for the institution picker. Only
	// needed when the gateway serves multiple institutions.
	Institution string

	// CredentialTTL fixes the captured credential's lifetime.
	CredentialTTL time.Duration
}

// Timeouts bounds every wait in the ceremony. Each expiry transitions to
// Failed; there is no external cancellation beyond ctx.
type Timeouts struct {
	// Step bounds individual page transitions.
	Step time.Duration
	// MFAApproval bounds the wait for an out-of-band approval.
	MFAApproval time.Duration
	// Poll is the page-state sampling interval during waits.
	Poll time.Duration
	// Capture bounds the passive wait for an observed bearer request.
	Capture time.Duration
	// Provoke bounds the second passive wait after deliberately
	// navigating to an authenticated endpoint.
	Provoke time.Duration
}

// DefaultTimeouts returns the production timeout profile.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Step:        10 * time.Second,
		MFAApproval: 120 * time.Second,
		Poll:        time.Second,
		Capture:     30 * time.Second,
		Provoke:     10 * time.Second,
	}
}

// Selectors locates the gateway's login-page elements. The defaults match
// the common institutional SSO markup; deployments against a different
// vendor override them wholesale. CSRFTokenExpr is a JavaScript
// expression, not a CSS selector.
type Selectors struct {
	InstitutionPicker   string
	InstitutionOption   string
	UsernameField       string
	PasswordField       string
	SubmitButton        string
	MFACodeField        string
	MFASubmitButton     string
	AlternateMethodLink string
	MFAApprovedMarker   string
	StaySignedInPrompt  string
	StaySignedInYes     string
	ErrorBanner         string
	LoggedInMarker      string
	CSRFTokenExpr       string
}

// DefaultSelectors returns the selector table for the supported gateway.
func DefaultSelectors() Selectors {
	return Selectors{
		InstitutionPicker:   "#institution-search",
		InstitutionOption:   ".institution-list li:first-child",
		UsernameField:       "#username",
		PasswordField:       "#password",
		SubmitButton:        "button[type=submit]",
		MFACodeField:        "#otp-code",
		MFASubmitButton:     "#otp-submit",
		AlternateMethodLink: "a.alternate-mfa-method",
		MFAApprovedMarker:   ".mfa-approved",
		StaySignedInPrompt:  "#stay-signed-in",
		StaySignedInYes:     "#stay-signed-in .confirm",
		ErrorBanner:         ".login-error",
		LoggedInMarker:      "#app-root[data-authenticated]",
		CSRFTokenExpr:       `(window.__APP_STATE__ && window.__APP_STATE__.csrfToken) || ""`,
	}
}

// Compile-time interface satisfaction check.
var _ driven.Authenticator = (*Flow)(nil)

// Flow is the login ceremony. One Flow runs one ceremony; the browser
// session it owns is torn down on every exit path.
type Flow struct {
	session  driven.BrowserSession
	cfg      Config
	sel      Selectors
	timeouts Timeouts
	logger   *slog.Logger
	now      func() time.Time

	observed  <-chan driven.CapturedRequest
	cred      *model.Credential
	failure   *FlowError
	restarted bool
}

// Option configures a Flow.
type Option func(*Flow)

// WithLogger sets the flow's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Flow) { f.logger = logger }
}

// WithSelectors replaces the selector table.
func WithSelectors(sel Selectors) Option {
	return func(f *Flow) { f.sel = sel }
}

// WithTimeouts replaces the timeout profile.
func WithTimeouts(t Timeouts) Option {
	return func(f *Flow) { f.timeouts = t }
}

// NewFlow creates a ceremony over the given session.
func NewFlow(session driven.BrowserSession, cfg Config, opts ...Option) *Flow {
	if cfg.CredentialTTL <= 0 {
		cfg.CredentialTTL = time.Hour
	}
	f := &Flow{
		session:  session,
		cfg:      cfg,
		sel:      DefaultSelectors(),
		timeouts: DefaultTimeouts(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Authenticate implements driven.Authenticator. It walks the state
// machine from Start until Authenticated or Failed and unconditionally
// closes the browser session before returning.
func (f *Flow) Authenticate(ctx context.Context) (*model.Credential, error) {
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := f.session.Close(closeCtx); err != nil {
			f.logger.Warn("browser session close failed", "error", err)
		}
	}()

	state := StateStart
	for {
		switch state {
		case StateAuthenticated:
			return f.cred, nil
		case StateFailed:
			return nil, f.failure
		}

		f.logger.Debug("login state entered", "state", state.String())
		next, err := f.step(ctx, state)
		if err != nil {
			f.failure = &FlowError{State: state, Err: err}
			next = StateFailed
		}
		state = next
	}
}

func (f *Flow) step(ctx context.Context, state State) (State, error) {
	switch state {
	case StateStart:
		return f.stepStart(ctx)
	case StateInstitution:
		return f.stepInstitution(ctx)
	case StateCredentials:
		return f.stepCredentials(ctx)
	case StateMFA:
		return f.stepMFA(ctx)
	case StateStayPrompt:
		return f.stepStayPrompt(ctx)
	case StateCapture:
		return f.stepCapture(ctx)
	}
	return StateFailed, fmt.Errorf("no transition from state %s", state)
}

// stepStart registers the request observer, loads the login page and
// branches on what the gateway serves: an institution picker, a direct
// credential form, or an already-authenticated app shell when persisted
// cookies are still good.
func (f *Flow) stepStart(ctx context.Context) (State, error) {
	if f.observed == nil {
		// Registered before navigation so tokens sent during the
		// redirect chain are not missed.
		ch, err := f.session.ObserveAuthorization(ctx, f.cfg.APIPrefix)
		if err != nil {
			return StateFailed, fmt.Errorf("registering request observer: %w", err)
		}
		f.observed = ch
	}

	if err := f.session.Navigate(ctx, f.cfg.LoginURL); err != nil {
		return StateFailed, fmt.Errorf("opening login page: %w", err)
	}

	outcome, err := f.pollAny(ctx, f.timeouts.Step,
		f.sel.InstitutionPicker, f.sel.UsernameField, f.sel.LoggedInMarker)
	if err != nil {
		return StateFailed, fmt.Errorf("login page did not settle: %w", err)
	}
	switch outcome {
	case f.sel.InstitutionPicker:
		return StateInstitution, nil
	case f.sel.UsernameField:
		return StateCredentials, nil
	default:
		f.logger.Info("session already authenticated via persisted cookies")
		return StateCapture, nil
	}
}

func (f *Flow) stepInstitution(ctx context.Context) (State, error) {
	if f.cfg.Institution == "" {
		return StateFailed, errors.New("gateway requires institution selection but none is configured")
	}
	if err := f.session.Type(ctx, f.sel.InstitutionPicker, f.cfg.Institution); err != nil {
		return StateFailed, fmt.Errorf("searching institution: %w", err)
	}
	if err := f.session.WaitVisible(ctx, f.sel.InstitutionOption, f.timeouts.Step); err != nil {
		return StateFailed, fmt.Errorf("institution %q not offered: %w", f.cfg.Institution, err)
	}
	if err := f.session.Click(ctx, f.sel.InstitutionOption); err != nil {
		return StateFailed, fmt.Errorf("selecting institution: %w", err)
	}
	return StateCredentials, nil
}

func (f *Flow) stepCredentials(ctx context.Context) (State, error) {
	if f.cfg.Username == "" || f.cfg.Password.IsEmpty() {
		return StateFailed, ErrMissingCredentials
	}

	if err := f.session.WaitVisible(ctx, f.sel.UsernameField, f.timeouts.Step); err != nil {
		return StateFailed, fmt.Errorf("credential form: %w", err)
	}
	if err := f.session.Type(ctx, f.sel.UsernameField, f.cfg.Username); err != nil {
		return StateFailed, fmt.Errorf("entering username: %w", err)
	}
	if err := f.session.Type(ctx, f.sel.PasswordField, f.cfg.Password.Value()); err != nil {
		return StateFailed, fmt.Errorf("entering password: %w", err)
	}
	if err := f.session.Click(ctx, f.sel.SubmitButton); err != nil {
		return StateFailed, fmt.Errorf("submitting credentials: %w", err)
	}
	return StateMFA, nil
}

// stepMFA resolves the post-credential page: a rejection banner, an MFA
// challenge (automated code or out-of-band approval), or no challenge at
// all when the provider trusts the device.
func (f *Flow) stepMFA(ctx context.Context) (State, error) {
	outcome, err := f.pollAny(ctx, f.timeouts.Step,
		f.sel.ErrorBanner,
		f.sel.MFACodeField,
		f.sel.AlternateMethodLink,
		f.sel.StaySignedInPrompt,
		f.sel.LoggedInMarker,
	)
	if err != nil {
		return StateFailed, fmt.Errorf("post-credential page did not settle: %w", err)
	}

	switch outcome {
	case f.sel.ErrorBanner:
		return StateFailed, errors.New("credentials rejected by identity provider")
	case f.sel.StaySignedInPrompt:
		return StateStayPrompt, nil
	case f.sel.LoggedInMarker:
		return StateCapture, nil
	}

	if !f.cfg.TOTPSecret.IsEmpty() {
		return f.submitCode(ctx, outcome)
	}
	return f.awaitApproval(ctx)
}

// submitCode answers the challenge with a generated time-based code,
// first switching away from the provider's default push-notification
// method when an alternate-method link is on screen.
func (f *Flow) submitCode(ctx context.Context, visible string) (State, error) {
	if visible == f.sel.AlternateMethodLink {
		if err := f.session.Click(ctx, f.sel.AlternateMethodLink); err != nil {
			return StateFailed, fmt.Errorf("selecting alternate mfa method: %w", err)
		}
		if err := f.session.WaitVisible(ctx, f.sel.MFACodeField, f.timeouts.Step); err != nil {
			return StateFailed, fmt.Errorf("code entry did not appear: %w", err)
		}
	}

	code, err := totpCode(f.cfg.TOTPSecret.Value(), f.now())
	if err != nil {
		return StateFailed, err
	}
	if err := f.session.Type(ctx, f.sel.MFACodeField, code); err != nil {
		return StateFailed, fmt.Errorf("entering one-time code: %w", err)
	}
	if err := f.session.Click(ctx, f.sel.MFASubmitButton); err != nil {
		return StateFailed, fmt.Errorf("submitting one-time code: %w", err)
	}
	return StateStayPrompt, nil
}

// awaitApproval observes page state until the user approves the prompt
// on a second device. The flow takes no action here beyond watching.
func (f *Flow) awaitApproval(ctx context.Context) (State, error) {
	f.logger.Info("waiting for out-of-band mfa approval",
		"timeout", f.timeouts.MFAApproval)

	deadline := time.Now().Add(f.timeouts.MFAApproval)
	for {
		for _, sel := range []string{f.sel.MFAApprovedMarker, f.sel.StaySignedInPrompt, f.sel.LoggedInMarker} {
			ok, err := f.session.Exists(ctx, sel)
			if err != nil {
				return StateFailed, fmt.Errorf("observing approval state: %w", err)
			}
			if ok {
				if sel == f.sel.LoggedInMarker {
					return StateCapture, nil
				}
				return StateStayPrompt, nil
			}
		}
		if time.Now().After(deadline) {
			return StateFailed, fmt.Errorf("out-of-band approval timed out after %s", f.timeouts.MFAApproval)
		}
		select {
		case <-ctx.Done():
			return StateFailed, ctx.Err()
		case <-time.After(f.timeouts.Poll):
		}
	}
}

// stepStayPrompt confirms the optional "remain signed in" prompt.
// Presence or absence is tolerated either way.
func (f *Flow) stepStayPrompt(ctx context.Context) (State, error) {
	ok, err := f.session.Exists(ctx, f.sel.StaySignedInPrompt)
	if err != nil {
		return StateFailed, fmt.Errorf("checking persistence prompt: %w", err)
	}
	if ok {
		if err := f.session.Click(ctx, f.sel.StaySignedInYes); err != nil {
			return StateFailed, fmt.Errorf("confirming persistence prompt: %w", err)
		}
	}
	return StateCapture, nil
}

// stepCapture extracts a credential from the authenticated session,
// preferring passive observation and falling back through the ladder:
// provoke API traffic, read the runtime CSRF token, synthesize a cookie
// credential, and finally clear cookies and rerun the whole ceremony.
func (f *Flow) stepCapture(ctx context.Context) (State, error) {
	if cred, ok := f.waitObserved(ctx, f.timeouts.Capture); ok {
		f.cred = cred
		return StateAuthenticated, nil
	}

	if err := f.session.Navigate(ctx, f.cfg.PortalURL); err != nil {
		f.logger.Debug("provoking navigation failed", "error", err)
	} else if cred, ok := f.waitObserved(ctx, f.timeouts.Provoke); ok {
		f.cred = cred
		return StateAuthenticated, nil
	}

	token, err := f.session.Evaluate(ctx, f.sel.CSRFTokenExpr)
	if err != nil {
		f.logger.Debug("runtime token read failed", "error", err)
	} else if token != "" && token != "null" {
		f.logger.Info("credential captured from runtime context")
		f.cred = model.NewCredential(token, model.KindBearer, f.now(), f.cfg.CredentialTTL)
		return StateAuthenticated, nil
	}

	header, err := f.session.CookieHeader(ctx, f.cfg.PortalURL)
	if err != nil {
		f.logger.Debug("cookie export failed", "error", err)
	} else if header != "" {
		f.logger.Info("synthesized cookie credential from authenticated session")
		f.cred = model.NewCredential(header, model.KindCookie, f.now(), f.cfg.CredentialTTL)
		return StateAuthenticated, nil
	}

	if !f.restarted {
		f.restarted = true
		f.observed = nil
		if err := f.session.ClearCookies(ctx); err != nil {
			return StateFailed, fmt.Errorf("clearing cookies for retry: %w", err)
		}
		f.logger.Warn("no credential captured, clearing cookies and rerunning login")
		return StateStart, nil
	}
	return StateFailed, errors.New("no credential could be captured from the authenticated session")
}

// waitObserved waits up to timeout for the first observed request
// carrying a bearer token. Non-bearer schemes (Basic, Negotiate) are
// not usable as portal credentials and are skipped.
func (f *Flow) waitObserved(ctx context.Context, timeout time.Duration) (*model.Credential, bool) {
	if f.observed == nil {
		return nil, false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case req, ok := <-f.observed:
		if !ok {
			f.observed = nil
			return nil, false
		}
		token, isBearer := strings.CutPrefix(req.Authorization, "Bearer ")
		if !isBearer {
			f.logger.Debug("ignoring non-bearer authorization capture", "url", req.URL)
			return nil, false
		}
		token = strings.TrimSpace(token)
		if token == "" {
			return nil, false
		}
		f.logger.Info("bearer credential observed passively", "url", req.URL)
		return model.NewCredential(token, model.KindBearer, f.now(), f.cfg.CredentialTTL), true
	case <-timer.C:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// pollAny samples the given selectors until one matches or timeout
// elapses, returning the matching selector.
func (f *Flow) pollAny(ctx context.Context, timeout time.Duration, selectors ...string) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		for _, sel := range selectors {
			ok, err := f.session.Exists(ctx, sel)
			if err != nil {
				return "", err
			}
			if ok {
				return sel, nil
			}
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("none of the expected elements appeared within %s", timeout)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(f.timeouts.Poll):
		}
	}
}
