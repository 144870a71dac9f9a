package browser

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
)

// Error kinds the crawler classifies on. Implementations wrap these so the
// crawler stays ignorant of the driver.
var (
	// ErrTimeout marks a bounded wait that exceeded its ceiling. Terminal
	// for the current citation, never a retry signal.
	ErrTimeout = errors.New("browser: wait timed out")

	// ErrStaleReference marks a page that mutated under us mid-query.
	// Callers may retry once within the same traversal loop.
	ErrStaleReference = errors.New("browser: stale element reference")

	// ErrNavigatedAway marks the browser leaving the page mid-operation.
	// Benign during extraction: the data is gone but nothing is broken.
	ErrNavigatedAway = errors.New("browser: navigated away")
)

// IsTimeout reports whether err is a bounded-wait timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// IsStaleReference reports whether err is a stale element reference.
func IsStaleReference(err error) bool {
	return errors.Is(err, ErrStaleReference)
}

// IsNavigatedAway reports whether err means the page left under us.
func IsNavigatedAway(err error) bool {
	return errors.Is(err, ErrNavigatedAway)
}

// wrapTimeout converts a context deadline from a bounded wait into the
// portable timeout kind, preserving the original chain.
func wrapTimeout(err error, selector string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return eris.Wrapf(ErrTimeout, "waiting for %s", selector)
	}
	return err
}
