package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/slugwatch/citation-cli/internal/browser"
	"github.com/slugwatch/citation-cli/internal/crawler"
	"github.com/slugwatch/citation-cli/internal/cycle"
	"github.com/slugwatch/citation-cli/internal/geo"
	"github.com/slugwatch/citation-cli/internal/ledger"
	"github.com/slugwatch/citation-cli/internal/mailer"
	"github.com/slugwatch/citation-cli/internal/metrics"
	"github.com/slugwatch/citation-cli/internal/recordstore"
)

// baseEnv holds the resources every command needs: the local files, the lot
// index, the record store, and the alert path.
type baseEnv struct {
	Store    recordstore.Store
	Ledger   *ledger.Ledger
	Sent     *ledger.SentAlerts
	Index    *geo.LocationIndex
	Metrics  *metrics.Metrics
	Dispatch *cycle.Dispatcher
}

// Close releases base resources.
func (e *baseEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initBase opens the store and local files and wires the alert dispatcher.
// Callers should defer env.Close().
func initBase(ctx context.Context) (*baseEnv, error) {
	st, err := recordstore.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	ldg, err := ledger.Open(cfg.Ledger.ScrapedPath)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	sent, err := ledger.OpenSentAlerts(cfg.Ledger.SentAlertsPath)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	index, err := geo.LoadIndex(cfg.Geo.LocationsPath)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	mail, err := mailer.NewSMTP(cfg.Mail)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	m := metrics.NewDefault()
	dispatch := cycle.NewDispatcher(index, mail, sent, m, cfg.Geo.RadiusFeet, nil)

	return &baseEnv{
		Store:    st,
		Ledger:   ldg,
		Sent:     sent,
		Index:    index,
		Metrics:  m,
		Dispatch: dispatch,
	}, nil
}

// crawlEnv extends baseEnv with the exclusive browser session, the crawler,
// the periodic snapshotter, and the reconciliation cycle.
type crawlEnv struct {
	*baseEnv
	Session  *browser.ChromeSession
	Snapshot *browser.Snapshotter
	Cycle    *cycle.Cycle
}

// Close stops the snapshotter, releases the browser, then the base.
func (e *crawlEnv) Close() {
	if e.Snapshot != nil {
		e.Snapshot.Stop()
	}
	if e.Session != nil {
		_ = e.Session.Close()
	}
	e.baseEnv.Close()
}

// initCrawl builds the full crawl stack. The snapshotter is started here;
// Close joins it before the session goes away.
func initCrawl(ctx context.Context) (*crawlEnv, error) {
	base, err := initBase(ctx)
	if err != nil {
		return nil, err
	}

	session, err := browser.NewChrome(ctx, browser.ChromeOptions{Headless: cfg.Browser.Headless})
	if err != nil {
		base.Close()
		return nil, err
	}

	snap := browser.NewSnapshotter(session, cfg.Browser.SnapshotDir,
		time.Duration(cfg.Browser.SnapshotIntervalSecs)*time.Second)
	if err := snap.Start(ctx); err != nil {
		_ = session.Close()
		base.Close()
		return nil, err
	}

	crawl := crawler.New(session, base.Ledger, base.Dispatch, crawler.Config{
		BaseURL:        cfg.Browser.BaseURL,
		NavTimeout:     time.Duration(cfg.Browser.NavTimeoutSecs) * time.Second,
		RelatedTimeout: time.Duration(cfg.Browser.RelatedTimeoutSecs) * time.Second,
	})

	c := cycle.New(base.Store, crawl, base.Ledger, base.Dispatch, base.Metrics, cycle.Config{
		PendingPath:     cfg.Ledger.PendingPath,
		SessionsPath:    cfg.Ledger.SessionsPath,
		SubmissionGrace: time.Duration(cfg.Cycle.SubmissionGraceHours) * time.Hour,
	}, nil)

	return &crawlEnv{
		baseEnv:  base,
		Session:  session,
		Snapshot: snap,
		Cycle:    c,
	}, nil
}
