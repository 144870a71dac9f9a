// Package crawler drives the per-citation lookup workflow: submit the
// search form, extract the primary record, then walk the related-ticket
// links. Related tickets form a linked structure whose edges only exist
// after page script runs, so the walk is a frontier over rendered pages,
// not an HTTP fetch.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/slugwatch/citation-cli/internal/browser"
	"github.com/slugwatch/citation-cli/internal/model"
)

// Page selectors for the ticket-lookup site. The detail panel exposes its
// fields only through fixed label text, and related tickets only through
// aria-labeled anchors.
const (
	selPlateField    = "#plate_vin"
	selTicketField   = "#ticket_number"
	selSearchButton  = "#search_ticket"
	selTicketInfo    = `//h3[normalize-space()='Ticket Information']`
	selRelated       = `//a[contains(@aria-label,'View ticket')]`
	selIssueField    = `//p[strong[text()='Issue Date and Time:']]`
	selLocationField = `//p[strong[text()='Location:']]`

	labelIssue    = "Issue Date and Time:"
	labelLocation = "Location:"
)

// relatedAnchor selects the related-ticket anchor whose aria-label names
// exactly the given id. A contains() match would also hit anchors whose id
// merely starts with this one (TK1 vs TK10), clicking the wrong page.
func relatedAnchor(id string) string {
	return fmt.Sprintf(`//a[substring-after(@aria-label,'#')='%s']`, id)
}

// errListGone signals that the related-ticket list never reappeared after
// navigating back. Terminal for the walk, not fatal for the citation.
var errListGone = errors.New("crawler: related list gone")

// Ledger is the membership/persistence surface the crawler needs.
type Ledger interface {
	IsKnown(id string) bool
	Record(rec model.CitationRecord) error
}

// Notifier receives every newly recorded citation, synchronously, while the
// crawler still holds the page. Implementations must not fail the crawl.
type Notifier interface {
	CitationDiscovered(ctx context.Context, rec model.CitationRecord)
}

// Config bounds the crawler's waits.
type Config struct {
	BaseURL        string
	NavTimeout     time.Duration
	RelatedTimeout time.Duration
}

// Result is the outcome of one citation lookup. Verified=false tells the
// caller to drop the (citation, plate) pair from the pending queue.
type Result struct {
	Verified   bool
	NewRecords []model.CitationRecord
}

// Crawler runs citation lookups against an exclusive browser session.
type Crawler struct {
	session browser.Session
	ledger  Ledger
	notify  Notifier
	cfg     Config
	log     *zap.Logger
}

// New creates a Crawler. notify may be nil.
func New(session browser.Session, ledger Ledger, notify Notifier, cfg Config) *Crawler {
	return &Crawler{
		session: session,
		ledger:  ledger,
		notify:  notify,
		cfg:     cfg,
		log:     zap.L().With(zap.String("component", "crawler")),
	}
}

// walkState accumulates per-lookup progress so partial results survive a
// failure deep in the walk.
type walkState struct {
	visited map[string]struct{}
	records []model.CitationRecord
}

// Lookup runs the full workflow for one (citation, plate) pair. Failures
// inside the lookup never propagate as errors unless the context itself was
// cancelled: they are classified into the Verified flag. A failure with the
// id already ledgered, or caused by the browser merely navigating away
// mid-extraction, counts as success with whatever was gathered.
func (c *Crawler) Lookup(ctx context.Context, citationID, plate string) (Result, error) {
	id := model.CanonicalID(citationID)
	log := c.log.With(zap.String("citation", id), zap.String("plate", plate))
	log.Info("crawler: processing citation")

	st := &walkState{visited: map[string]struct{}{id: {}}}
	err := c.lookup(ctx, id, plate, st)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		if c.ledger.IsKnown(id) {
			log.Info("crawler: failure on already-ledgered citation, keeping", zap.Error(err))
			return Result{Verified: true, NewRecords: st.records}, nil
		}
		if browser.IsNavigatedAway(err) {
			log.Info("crawler: page left mid-extraction, treating as benign", zap.Error(err))
			return Result{Verified: true, NewRecords: st.records}, nil
		}
		log.Warn("crawler: citation failed", zap.Error(err))
		return Result{Verified: false, NewRecords: st.records}, nil
	}

	log.Info("crawler: citation done", zap.Int("new_records", len(st.records)))
	return Result{Verified: true, NewRecords: st.records}, nil
}

func (c *Crawler) lookup(ctx context.Context, id, plate string, st *walkState) error {
	// Searching: drive the multi-step form.
	if err := c.session.Navigate(ctx, c.cfg.BaseURL); err != nil {
		return err
	}
	if err := c.session.Fill(ctx, selPlateField, plate); err != nil {
		return err
	}
	if err := c.session.Fill(ctx, selTicketField, id); err != nil {
		return err
	}
	if err := c.session.Click(ctx, selSearchButton); err != nil {
		return err
	}
	if err := c.session.WaitVisible(ctx, selTicketInfo, c.cfg.NavTimeout); err != nil {
		return err
	}

	// ResultLoaded: collect every citation id reachable from this page. If
	// all of them are ledgered there is nothing to gain from re-rendering
	// each one; every full visit costs seconds of page waits.
	pageIDs, err := c.relatedIDs(ctx)
	if err != nil {
		c.log.Debug("crawler: related scan failed on result page", zap.Error(err))
		pageIDs = nil
	}
	if c.allKnown(id, pageIDs) {
		c.log.Info("crawler: all page citations already ledgered, skipping",
			zap.String("citation", id), zap.Int("page_ids", len(pageIDs)+1))
		return nil
	}

	// Extracting: the primary record.
	if !c.ledger.IsKnown(id) {
		c.extractAndRecord(ctx, id, st)
	}

	// RelatedDiscovery: frontier walk over the anchor list.
	return c.walkRelated(ctx, st)
}

// allKnown reports whether the primary id and every related id are already
// in the ledger.
func (c *Crawler) allKnown(primary string, related []string) bool {
	if !c.ledger.IsKnown(primary) {
		return false
	}
	for _, rid := range related {
		if !c.ledger.IsKnown(rid) {
			return false
		}
	}
	return true
}

// relatedIDs scans the current page's related-ticket anchors and returns
// the embedded citation ids. A stale read is retried once; the page may
// legitimately mutate between render and scan.
func (c *Crawler) relatedIDs(ctx context.Context) ([]string, error) {
	labels, err := c.session.Attributes(ctx, selRelated, "aria-label")
	if browser.IsStaleReference(err) {
		c.log.Debug("crawler: stale related scan, retrying once")
		labels, err = c.session.Attributes(ctx, selRelated, "aria-label")
	}
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(labels))
	for _, label := range labels {
		_, after, found := strings.Cut(label, "#")
		if !found {
			continue
		}
		if id := model.CanonicalID(after); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// walkRelated repeatedly rescans the related-ticket anchors and visits the
// first candidate that is neither visited this session nor ledgered. The
// loop ends when a scan finds no candidate or the list page never comes
// back after navigating away.
func (c *Crawler) walkRelated(ctx context.Context, st *walkState) error {
	if err := c.session.WaitVisible(ctx, selRelated, c.cfg.RelatedTimeout); err != nil {
		if browser.IsTimeout(err) {
			return nil // no related tickets on this page
		}
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ids, err := c.relatedIDs(ctx)
		if err != nil {
			return err
		}

		next := ""
		for _, rid := range ids {
			if _, seen := st.visited[rid]; seen {
				continue
			}
			if c.ledger.IsKnown(rid) {
				continue
			}
			next = rid
			break
		}
		if next == "" {
			return nil
		}

		// Visited is marked up front so a candidate that fails to render
		// cannot be re-picked forever.
		st.visited[next] = struct{}{}

		err = c.visitRelated(ctx, next, st)
		if errors.Is(err, errListGone) {
			c.log.Info("crawler: related list did not return, ending walk")
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// visitRelated clicks one related-ticket anchor, extracts its detail page,
// and navigates back to the list.
func (c *Crawler) visitRelated(ctx context.Context, rid string, st *walkState) error {
	log := c.log.With(zap.String("related", rid))

	err := c.session.Click(ctx, relatedAnchor(rid))
	if browser.IsStaleReference(err) {
		log.Debug("crawler: stale anchor, retrying once")
		err = c.session.Click(ctx, relatedAnchor(rid))
	}
	if err != nil {
		return err
	}

	if err := c.session.WaitVisible(ctx, selTicketInfo, c.cfg.NavTimeout); err != nil {
		// The detail panel not appearing for one related ticket skips that
		// ticket, nothing more.
		log.Warn("crawler: related detail never appeared", zap.Error(err))
	} else {
		c.extractAndRecord(ctx, rid, st)
	}

	if err := c.session.Back(ctx); err != nil {
		return err
	}
	if err := c.session.WaitVisible(ctx, selRelated, c.cfg.NavTimeout); err != nil {
		if browser.IsTimeout(err) {
			return errListGone
		}
		return err
	}
	return nil
}

// extractAndRecord parses the detail panel's two labeled fields, appends
// the record to the ledger, and hands it to the notifier. Unparseable
// fields skip the record; a page with no usable detail is not a failure.
func (c *Crawler) extractAndRecord(ctx context.Context, id string, st *walkState) {
	log := c.log.With(zap.String("citation", id))

	issueRaw, err := c.session.Text(ctx, selIssueField)
	if err != nil {
		log.Warn("crawler: issue field unreadable", zap.Error(err))
		return
	}
	locationRaw, err := c.session.Text(ctx, selLocationField)
	if err != nil {
		log.Warn("crawler: location field unreadable", zap.Error(err))
		return
	}

	issuedAt, err := model.ParseIssuedAt(stripLabel(issueRaw, labelIssue))
	if err != nil {
		log.Warn("crawler: bad issue timestamp", zap.String("raw", issueRaw), zap.Error(err))
		return
	}
	location := strings.TrimSpace(stripLabel(locationRaw, labelLocation))
	if location == "" {
		log.Warn("crawler: empty location field")
		return
	}

	rec := model.CitationRecord{
		ID:       id,
		Location: location,
		IssuedAt: issuedAt,
	}
	if err := c.ledger.Record(rec); err != nil {
		log.Error("crawler: ledger append failed", zap.Error(err))
		return
	}
	st.records = append(st.records, rec)

	if c.notify != nil {
		c.notify.CitationDiscovered(ctx, rec)
	}
}

// stripLabel removes the fixed field label from the rendered paragraph text.
func stripLabel(text, label string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), label))
}
