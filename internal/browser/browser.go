// Package browser is the headless-browser capability the fetch engine drives:
// open an isolated session, navigate, and observe the network responses the
// page triggers.
package browser

import (
	"context"
	"errors"
)

// ErrNavigation marks a page navigation that failed (DNS, connection refused,
// navigation timeout).
var ErrNavigation = errors.New("navigation failed")

// Response is one observed network response with its body loaded.
type Response struct {
	URL      string
	Status   int
	MIMEType string
	Body     []byte
}

// Launcher opens browser sessions.
type Launcher interface {
	// Launch starts a fresh session with no state shared with earlier ones.
	Launch(ctx context.Context) (Session, error)
}

// Session is one browser instance with a single page.
type Session interface {
	// Observe delivers every response whose URL satisfies match. The returned
	// func deregisters the observer; it is safe to call more than once. The
	// channel is never closed.
	Observe(match func(url string) bool) (<-chan Response, func())

	// Navigate loads url and returns once the initial document has been parsed,
	// without waiting for subresources. It returns an error wrapping
	// ErrNavigation if the page could not be reached or ctx expired first.
	Navigate(ctx context.Context, url string) error

	// Close terminates the browser.
	Close() error
}
