// Package browser defines the page-automation capability the crawler needs
// and provides a headless-Chrome implementation. The crawler never sees the
// driver directly; it classifies failures through the error kinds here.
package browser

import (
	"context"
	"time"
)

// Session is the minimal capability surface over one exclusive browser tab.
// A Session has one current page; it must not serve concurrent navigations.
type Session interface {
	// Navigate loads the given URL in the current tab.
	Navigate(ctx context.Context, url string) error

	// Fill types text into the element matched by selector.
	Fill(ctx context.Context, selector, text string) error

	// Click clicks the element matched by selector.
	Click(ctx context.Context, selector string) error

	// WaitVisible polls until selector is present and visible, up to
	// timeout. Exceeding the ceiling returns a Timeout-kind error.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error

	// Text returns the rendered text of the first element matched by
	// selector.
	Text(ctx context.Context, selector string) (string, error)

	// Attributes returns the named attribute of every element matched by
	// selector, in document order.
	Attributes(ctx context.Context, selector, attr string) ([]string, error)

	// Back navigates the tab's history one step back.
	Back(ctx context.Context) error

	// Snapshot captures a PNG screenshot of the current page.
	Snapshot(ctx context.Context) ([]byte, error)

	// Close releases the tab and the underlying browser.
	Close() error
}
