// Package browser implements the BrowserSession port on a real Chrome
// instance driven over the DevTools protocol via chromedp.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"github.com/ewinther/portalsync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.BrowserSession = (*Session)(nil)

// existsPollInterval is the DOM sampling interval for WaitVisible.
const existsPollInterval = 100 * time.Millisecond

// Options configures a Session.
type Options struct {
	// Headless runs Chrome without a window. Interactive ceremonies that
	// need a visible browser (out-of-band MFA on a slow phone, manual
	// institution hunting) set it false.
	Headless bool
	// ProfileDir is the Chrome user-data directory. Keeping it inside
	// the session directory lets persisted SSO cookies shortcut the next
	// ceremony. Empty means a throwaway profile.
	ProfileDir string
	Logger     *slog.Logger
}

// Session is a live Chrome browsing context.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewSession launches Chrome and waits for it to accept commands.
func NewSession(opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	allocOpts := append([]chromedp.ExecAllocatorOption{},
		chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts,
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if opts.ProfileDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(filepath.Clean(opts.ProfileDir)))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	cancel := func() {
		browserCancel()
		allocCancel()
	}

	if err := chromedp.Run(browserCtx, network.Enable()); err != nil {
		cancel()
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	logger.Debug("browser session started", "headless", opts.Headless)
	return &Session{ctx: browserCtx, cancel: cancel, logger: logger}, nil
}

// run executes chromedp actions on the browser context while honoring
// the caller's context for cancellation.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(s.ctx, actions...)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Navigate implements driven.BrowserSession.
func (s *Session) Navigate(ctx context.Context, pageURL string) error {
	if err := s.run(ctx, chromedp.Navigate(pageURL)); err != nil {
		return fmt.Errorf("navigating to %s: %w", pageURL, err)
	}
	return nil
}

// WaitVisible polls Exists until the element shows up or timeout
// elapses. Polling a point-in-time check survives the page navigations
// an SSO redirect chain performs mid-wait, which chromedp's own
// WaitVisible does not.
func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := s.Exists(ctx, selector)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("element %q not visible after %s", selector, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(existsPollInterval):
		}
	}
}

// Exists implements driven.BrowserSession.
func (s *Session) Exists(ctx context.Context, selector string) (bool, error) {
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		return !!(el && (el.offsetWidth || el.offsetHeight || el.getClientRects().length));
	})()`, selector)

	var visible bool
	if err := s.run(ctx, chromedp.Evaluate(expr, &visible)); err != nil {
		return false, fmt.Errorf("probing %q: %w", selector, err)
	}
	return visible, nil
}

// Type implements driven.BrowserSession.
func (s *Session) Type(ctx context.Context, selector, text string) error {
	if err := s.run(ctx,
		chromedp.Click(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("typing into %q: %w", selector, err)
	}
	return nil
}

// Click implements driven.BrowserSession.
func (s *Session) Click(ctx context.Context, selector string) error {
	if err := s.run(ctx, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("clicking %q: %w", selector, err)
	}
	return nil
}

// Evaluate implements driven.BrowserSession.
func (s *Session) Evaluate(ctx context.Context, expr string) (string, error) {
	var result string
	if err := s.run(ctx, chromedp.Evaluate("String("+expr+")", &result)); err != nil {
		return "", fmt.Errorf("evaluating expression: %w", err)
	}
	return result, nil
}

// CookieHeader implements driven.BrowserSession. Cookies are matched
// against the URL's host the way the browser would send them.
func (s *Session) CookieHeader(ctx context.Context, pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parsing cookie URL: %w", err)
	}

	var cookies []*network.Cookie
	err = s.run(ctx, chromedp.ActionFunc(func(cdpCtx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(cdpCtx)
		return err
	}))
	if err != nil {
		return "", fmt.Errorf("reading cookies: %w", err)
	}

	var pairs []string
	for _, c := range cookies {
		if domainMatches(u.Hostname(), c.Domain) {
			pairs = append(pairs, c.Name+"="+c.Value)
		}
	}
	return strings.Join(pairs, "; "), nil
}

func domainMatches(host, cookieDomain string) bool {
	domain := strings.TrimPrefix(cookieDomain, ".")
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// ClearCookies implements driven.BrowserSession.
func (s *Session) ClearCookies(ctx context.Context) error {
	err := s.run(ctx, chromedp.ActionFunc(func(cdpCtx context.Context) error {
		return storage.ClearCookies().Do(cdpCtx)
	}))
	if err != nil {
		return fmt.Errorf("clearing cookies: %w", err)
	}
	return nil
}

// ObserveAuthorization implements driven.BrowserSession. The DevTools
// event listener stays registered for the life of the browser context;
// a delivered flag makes the observer one-shot.
func (s *Session) ObserveAuthorization(ctx context.Context, urlPrefix string) (<-chan driven.CapturedRequest, error) {
	ch := make(chan driven.CapturedRequest, 1)
	var once sync.Once

	chromedp.ListenTarget(s.ctx, func(ev interface{}) {
		req, ok := ev.(*network.EventRequestWillBeSent)
		if !ok {
			return
		}
		if !strings.HasPrefix(req.Request.URL, urlPrefix) {
			return
		}
		auth := headerValue(req.Request.Headers, "Authorization")
		if auth == "" {
			return
		}
		once.Do(func() {
			s.logger.Debug("authorization header observed", "url", req.Request.URL)
			ch <- driven.CapturedRequest{URL: req.Request.URL, Authorization: auth}
			close(ch)
		})
	})

	go func() {
		select {
		case <-ctx.Done():
		case <-s.ctx.Done():
		}
		once.Do(func() { close(ch) })
	}()

	return ch, nil
}

func headerValue(headers network.Headers, name string) string {
	for key, value := range headers {
		if strings.EqualFold(key, name) {
			if s, ok := value.(string); ok {
				return s
			}
		}
	}
	return ""
}

// Close implements driven.BrowserSession.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	done := make(chan error, 1)
	go func() {
		done <- chromedp.Cancel(s.ctx)
	}()
	select {
	case err := <-done:
		s.cancel()
		if err != nil {
			return fmt.Errorf("closing browser: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}
