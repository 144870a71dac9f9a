// Package cycle runs the reconciliation pass: expire remote parking
// sessions, promote user submissions, drain the legacy queue, and re-verify
// the local pending queue. Stages run in order on a single goroutine; the
// browser session is an exclusive resource and the cycle is its only driver.
package cycle

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/slugwatch/citation-cli/internal/crawler"
	"github.com/slugwatch/citation-cli/internal/ledger"
	"github.com/slugwatch/citation-cli/internal/metrics"
	"github.com/slugwatch/citation-cli/internal/model"
	"github.com/slugwatch/citation-cli/internal/recordstore"
)

// Lookup is the crawl operation the cycle invokes per (citation, plate)
// pair. Satisfied by *crawler.Crawler.
type Lookup interface {
	Lookup(ctx context.Context, citationID, plate string) (crawler.Result, error)
}

// Config bounds cycle behavior.
type Config struct {
	PendingPath  string
	SessionsPath string
	// SubmissionGrace is how long a malformed or unproductive submission is
	// kept for retry before being evicted.
	SubmissionGrace time.Duration
}

// Cycle executes reconciliation passes. Construct with New; one Cycle may
// run many passes but never concurrently.
type Cycle struct {
	store    recordstore.Store
	lookup   Lookup
	ledger   *ledger.Ledger
	dispatch *Dispatcher
	metrics  *metrics.Metrics
	cfg      Config
	now      func() time.Time
	log      *zap.Logger
}

// New wires a Cycle. now may be nil for time.Now.
func New(store recordstore.Store, lookup Lookup, ldg *ledger.Ledger,
	dispatch *Dispatcher, m *metrics.Metrics, cfg Config, now func() time.Time) *Cycle {
	if now == nil {
		now = time.Now
	}
	return &Cycle{
		store:    store,
		lookup:   lookup,
		ledger:   ldg,
		dispatch: dispatch,
		metrics:  m,
		cfg:      cfg,
		now:      now,
		log:      zap.L().With(zap.String("component", "cycle")),
	}
}

// Run executes one full reconciliation pass. A permission-denied stage is
// skipped with a warning; any other stage failure is logged, the remaining
// stages still run, and the failures come back joined. Context cancellation
// stops the pass immediately.
func (c *Cycle) Run(ctx context.Context) error {
	stages := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"expire_sessions", c.expireSessions},
		{"promote_submissions", c.promoteSubmissions},
		{"drain_legacy", c.drainLegacy},
		{"verify_pending", c.verifyPending},
	}

	var errs []error
	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		log := c.log.With(zap.String("stage", stage.name))
		log.Info("cycle: stage start")

		start := c.now()
		err := stage.fn(ctx)
		c.metrics.StageDuration.WithLabelValues(stage.name).Observe(c.now().Sub(start).Seconds())

		switch {
		case err == nil:
			log.Info("cycle: stage done")
		case ctx.Err() != nil:
			return err
		case recordstore.IsPermissionDenied(err):
			log.Warn("cycle: stage skipped, collection access denied", zap.Error(err))
		default:
			log.Error("cycle: stage failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// expireSessions drops lapsed parking sessions from the record store, keeps
// the rest as the live set, and rewrites the local session cache from it.
func (c *Cycle) expireSessions(ctx context.Context) error {
	sessions, err := c.store.Sessions(ctx)
	if err != nil {
		return err
	}

	now := c.now()
	live := make([]model.ParkingSession, 0, len(sessions))
	for _, sess := range sessions {
		if sess.Expired(now) {
			if err := c.store.DeleteSession(ctx, sess.DocID); err != nil {
				c.log.Warn("cycle: session delete failed",
					zap.String("doc", sess.DocID), zap.Error(err))
			}
			continue
		}
		live = append(live, sess)
	}

	c.dispatch.SetSessions(live)
	c.metrics.SessionsActive.Set(float64(len(live)))

	return ledger.WriteSessions(c.cfg.SessionsPath, live)
}

// promoteSubmissions validates each user submission and either promotes it
// into the pending queue, leaves it flagged invalid for retry, or evicts it
// once the grace window lapses.
func (c *Cycle) promoteSubmissions(ctx context.Context) error {
	subs, err := c.store.Submissions(ctx)
	if err != nil {
		return err
	}

	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return err
		}
		log := c.log.With(zap.String("doc", sub.DocID), zap.String("citation", sub.Citation))

		// Only structurally unusable submissions skip the crawl; a flagged
		// one still retries each cycle until its grace window lapses, since
		// the ticket may simply not have been published yet.
		if sub.Malformed() {
			c.rejectOrFlag(ctx, sub, log)
			continue
		}

		res, err := c.lookup.Lookup(ctx, sub.Citation, sub.Plate)
		if err != nil {
			return err
		}
		c.metrics.CitationsDiscovered.Add(float64(len(res.NewRecords)))
		if !res.Verified {
			c.metrics.CrawlFailures.Inc()
		}
		if !res.Verified || len(res.NewRecords) == 0 {
			// Nothing gained; retry while young, evict once stale.
			c.rejectOrFlag(ctx, sub, log)
			continue
		}

		tickets := make([]string, 0, len(res.NewRecords))
		for _, rec := range res.NewRecords {
			tickets = append(tickets, rec.ID)
		}
		if err := c.store.UpsertRoster(ctx, model.RosterEntry{
			FullName:    sub.FullName,
			Email:       sub.Email,
			Plate:       sub.Plate,
			Tickets:     tickets,
			LastUpdated: c.now(),
		}); err != nil {
			log.Error("cycle: roster upsert failed", zap.Error(err))
		}

		entry := model.PendingEntry{CitationID: model.CanonicalID(sub.Citation), Plate: sub.Plate}
		if _, err := ledger.AppendPending(c.cfg.PendingPath, []model.PendingEntry{entry}); err != nil {
			log.Error("cycle: pending append failed", zap.Error(err))
			continue // keep the submission so the pair is not lost
		}

		if err := c.store.DeleteSubmission(ctx, sub.DocID); err != nil {
			log.Warn("cycle: submission delete failed", zap.Error(err))
		}
		log.Info("cycle: submission promoted", zap.Int("new_records", len(res.NewRecords)))
	}
	return nil
}

// rejectOrFlag deletes a submission whose grace window has lapsed, or marks
// it invalid so the next cycle retries it. A submission aged exactly the
// grace window is still retained.
func (c *Cycle) rejectOrFlag(ctx context.Context, sub model.Submission, log *zap.Logger) {
	if c.now().Sub(sub.Timestamp) > c.cfg.SubmissionGrace {
		if err := c.store.DeleteSubmission(ctx, sub.DocID); err != nil {
			log.Warn("cycle: submission delete failed", zap.Error(err))
			return
		}
		log.Info("cycle: submission evicted, grace window lapsed")
		return
	}
	if !sub.MarkedInvalid() {
		if err := c.store.MarkSubmissionInvalid(ctx, sub.DocID); err != nil {
			log.Warn("cycle: submission flag failed", zap.Error(err))
			return
		}
	}
	log.Info("cycle: submission flagged invalid, pending retry")
}

// drainLegacy moves every usable legacy-queue entry into the local pending
// queue and deletes each remote doc regardless of outcome. One-shot drain,
// no retry.
func (c *Cycle) drainLegacy(ctx context.Context) error {
	queue, err := c.store.LegacyQueue(ctx)
	if err != nil {
		return err
	}

	entries := make([]model.PendingEntry, 0, len(queue))
	for _, t := range queue {
		if t.Citation != "" && t.Plate != "" {
			entries = append(entries, model.PendingEntry{
				CitationID: model.CanonicalID(t.Citation),
				Plate:      t.Plate,
			})
		} else {
			c.log.Warn("cycle: legacy entry missing citation or plate, dropping",
				zap.String("doc", t.DocID))
		}
		if err := c.store.DeleteLegacy(ctx, t.DocID); err != nil {
			c.log.Warn("cycle: legacy delete failed",
				zap.String("doc", t.DocID), zap.Error(err))
		}
	}

	if len(entries) == 0 {
		return nil
	}
	added, err := ledger.AppendPending(c.cfg.PendingPath, entries)
	if err != nil {
		return err
	}
	c.log.Info("cycle: legacy queue drained",
		zap.Int("candidates", len(queue)), zap.Int("added", added))
	return nil
}

// verifyPending crawls every pending-queue line and atomically rewrites the
// file keeping only lines that verified or whose citation is already
// ledgered.
func (c *Cycle) verifyPending(ctx context.Context) error {
	entries, err := ledger.ReadPending(c.cfg.PendingPath)
	if err != nil {
		return err
	}

	kept := make([]model.PendingEntry, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := c.lookup.Lookup(ctx, entry.CitationID, entry.Plate)
		if err != nil {
			return err
		}
		c.metrics.CitationsDiscovered.Add(float64(len(res.NewRecords)))

		if res.Verified || c.ledger.IsKnown(model.CanonicalID(entry.CitationID)) {
			kept = append(kept, entry)
			continue
		}
		c.metrics.CrawlFailures.Inc()
		c.log.Info("cycle: pending entry dropped, verification failed",
			zap.String("citation", entry.CitationID))
	}

	if err := ledger.RewritePending(c.cfg.PendingPath, kept); err != nil {
		return err
	}
	c.metrics.PendingDepth.Set(float64(len(kept)))
	return nil
}
