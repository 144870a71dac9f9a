package browser

import (
	"context"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ChromeOptions configures the headless Chrome session.
type ChromeOptions struct {
	Headless bool
}

// ChromeSession implements Session on a dedicated headless Chrome tab via
// the DevTools protocol. The tab is an exclusive, stateful resource: all
// calls run against its single current page.
type ChromeSession struct {
	tabCtx      context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
}

// NewChrome launches a browser and opens one tab. The returned session owns
// the browser process; Close releases it.
func NewChrome(ctx context.Context, opts ChromeOptions) (*ChromeSession, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	// Force the browser to start now so launch failures surface here
	// rather than on the first navigation.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, eris.Wrap(err, "browser: launch chrome")
	}

	zap.L().Info("browser: chrome ready", zap.Bool("headless", opts.Headless))
	return &ChromeSession{
		tabCtx:      tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
	}, nil
}

// Navigate implements Session.
func (s *ChromeSession) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := chromedp.Run(s.tabCtx, chromedp.Navigate(url)); err != nil {
		return mapChromeErr(eris.Wrapf(err, "browser: navigate %s", url))
	}
	return nil
}

// Fill implements Session.
func (s *ChromeSession) Fill(ctx context.Context, selector, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := chromedp.Run(s.tabCtx, chromedp.SendKeys(selector, text, queryOpt(selector))); err != nil {
		return mapChromeErr(eris.Wrapf(err, "browser: fill %s", selector))
	}
	return nil
}

// Click implements Session.
func (s *ChromeSession) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := chromedp.Run(s.tabCtx, chromedp.Click(selector, queryOpt(selector))); err != nil {
		return mapChromeErr(eris.Wrapf(err, "browser: click %s", selector))
	}
	return nil
}

// WaitVisible implements Session. The ceiling is enforced with a derived
// deadline; exceeding it reports the portable timeout kind.
func (s *ChromeSession) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	waitCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	defer cancel()

	if err := chromedp.Run(waitCtx, chromedp.WaitVisible(selector, queryOpt(selector))); err != nil {
		return mapChromeErr(wrapTimeout(err, selector))
	}
	return nil
}

// Text implements Session.
func (s *ChromeSession) Text(ctx context.Context, selector string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var out string
	if err := chromedp.Run(s.tabCtx, chromedp.Text(selector, &out, queryOpt(selector))); err != nil {
		return "", mapChromeErr(eris.Wrapf(err, "browser: read text %s", selector))
	}
	return out, nil
}

// Attributes implements Session.
func (s *ChromeSession) Attributes(ctx context.Context, selector, attr string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var attrMaps []map[string]string
	opt := chromedp.ByQueryAll
	if isXPath(selector) {
		opt = chromedp.BySearch
	}
	if err := chromedp.Run(s.tabCtx, chromedp.AttributesAll(selector, &attrMaps, opt)); err != nil {
		return nil, mapChromeErr(eris.Wrapf(err, "browser: list attributes %s", selector))
	}

	values := make([]string, 0, len(attrMaps))
	for _, m := range attrMaps {
		if v, ok := m[attr]; ok {
			values = append(values, v)
		}
	}
	return values, nil
}

// Back implements Session.
func (s *ChromeSession) Back(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := chromedp.Run(s.tabCtx, chromedp.NavigateBack()); err != nil {
		return mapChromeErr(eris.Wrap(err, "browser: navigate back"))
	}
	return nil
}

// Snapshot implements Session.
func (s *ChromeSession) Snapshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf []byte
	if err := chromedp.Run(s.tabCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, eris.Wrap(err, "browser: capture snapshot")
	}
	return buf, nil
}

// Close implements Session.
func (s *ChromeSession) Close() error {
	s.cancelTab()
	s.cancelAlloc()
	zap.L().Info("browser: chrome closed")
	return nil
}

// queryOpt picks the chromedp query strategy: DevTools search for XPath
// selectors, querySelector for CSS.
func queryOpt(selector string) chromedp.QueryOption {
	if isXPath(selector) {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

func isXPath(selector string) bool {
	return strings.HasPrefix(selector, "/") || strings.HasPrefix(selector, "(")
}

// mapChromeErr folds driver-specific failure text into the portable error
// kinds. The DevTools protocol reports a detached or replaced node as a
// missing/foreign node id; a navigation tearing down the page surfaces as a
// cancelled or destroyed target context.
func mapChromeErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "does not belong to the document"),
		strings.Contains(msg, "could not find node"),
		strings.Contains(msg, "node not found"):
		return eris.Wrap(ErrStaleReference, msg)
	case strings.Contains(msg, "context with specified id"),
		strings.Contains(msg, "target closed"),
		strings.Contains(msg, "inspected target navigated or closed"):
		return eris.Wrap(ErrNavigatedAway, msg)
	}
	return err
}
