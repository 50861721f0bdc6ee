package driven

import (
	"context"
	"time"
)

// CapturedRequest is an outbound request observed inside the automated
// browser session.
type CapturedRequest struct {
	URL           string
	Authorization string
}

// BrowserSession is the automation collaborator the login flow drives.
// The flow owns the ceremony's branching and timeouts; the session owns
// the vendor-specific mechanics of navigation, DOM access and network
// observation. Implementations scope cookie storage to the session
// directory so persisted SSO cookies survive across runs.
type BrowserSession interface {
	// Navigate loads the given URL and waits for the main document.
	Navigate(ctx context.Context, url string) error

	// WaitVisible blocks until the selector matches a visible element or
	// the timeout elapses.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error

	// Exists reports whether the selector currently matches an element.
	// A point-in-time check; it never waits.
	Exists(ctx context.Context, selector string) (bool, error)

	// Type fills the element matched by selector with text.
	Type(ctx context.Context, selector, text string) error

	// Click clicks the element matched by selector.
	Click(ctx context.Context, selector string) error

	// Evaluate runs a JavaScript expression in the page's runtime context
	// and returns its string result.
	Evaluate(ctx context.Context, expr string) (string, error)

	// CookieHeader returns the session's cookies for the given URL,
	// serialized as a Cookie request-header value.
	CookieHeader(ctx context.Context, url string) (string, error)

	// ClearCookies removes all cookies from the session.
	ClearCookies(ctx context.Context) error

	// ObserveAuthorization registers an observer for outgoing requests
	// whose URL starts with urlPrefix and which carry an Authorization
	// header. The first match is delivered on the returned channel, which
	// is then closed. The channel is also closed, without a value, when
	// ctx is done or the session closes.
	ObserveAuthorization(ctx context.Context, urlPrefix string) (<-chan CapturedRequest, error)

	// Close tears the session down. Safe to call more than once.
	Close(ctx context.Context) error
}
