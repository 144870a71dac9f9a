package crawler

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slugwatch/citation-cli/internal/browser"
	"github.com/slugwatch/citation-cli/internal/model"
)

// fakePage is one renderable ticket page in the scripted site.
type fakePage struct {
	issue    string
	location string
	related  []string
}

// fakeSession simulates the ticket site as a graph of pages. The crawler
// only ever sees it through the browser.Session surface.
type fakeSession struct {
	pages   map[string]fakePage
	cur     string
	typedID string
	history []string

	anchorClicks int
	staleClicks  int  // clicks that fail stale before succeeding
	backNavAway  bool // Back() reports the tab left the site
}

func (s *fakeSession) Navigate(_ context.Context, _ string) error {
	s.cur, s.history = "", nil
	return nil
}

func (s *fakeSession) Fill(_ context.Context, sel, value string) error {
	if sel == selTicketField {
		s.typedID = value
	}
	return nil
}

func (s *fakeSession) Click(_ context.Context, sel string) error {
	if sel == selSearchButton {
		s.cur = s.typedID
		return nil
	}
	// Resolve the anchor the way a DOM would: the first related anchor on
	// the current page whose aria-label satisfies the selector's predicate.
	id, err := s.matchAnchor(sel)
	if err != nil {
		return err
	}
	s.anchorClicks++
	if s.staleClicks > 0 {
		s.staleClicks--
		return browser.ErrStaleReference
	}
	s.history = append(s.history, s.cur)
	s.cur = id
	return nil
}

func (s *fakeSession) matchAnchor(sel string) (string, error) {
	page := s.pages[s.cur]
	for _, rid := range page.related {
		if matchesAnchorSelector(sel, "View ticket #"+rid) {
			return rid, nil
		}
	}
	return "", fmt.Errorf("no anchor matches: %s", sel)
}

// matchesAnchorSelector evaluates the XPath predicate shapes the crawler
// emits against a rendered aria-label.
func matchesAnchorSelector(sel, label string) bool {
	if want, ok := cutAffix(sel, `//a[substring-after(@aria-label,'#')='`, `']`); ok {
		_, after, _ := strings.Cut(label, "#")
		return after == want
	}
	if want, ok := cutAffix(sel, `//a[contains(@aria-label,'`, `')]`); ok {
		return strings.Contains(label, want)
	}
	return false
}

func cutAffix(s, prefix, suffix string) (string, bool) {
	if strings.HasPrefix(s, prefix) && strings.HasSuffix(s, suffix) && len(s) > len(prefix)+len(suffix) {
		return s[len(prefix) : len(s)-len(suffix)], true
	}
	return "", false
}

func (s *fakeSession) WaitVisible(_ context.Context, sel string, _ time.Duration) error {
	page, ok := s.pages[s.cur]
	switch sel {
	case selTicketInfo:
		if !ok {
			return browser.ErrTimeout
		}
	case selRelated:
		if !ok || len(page.related) == 0 {
			return browser.ErrTimeout
		}
	}
	return nil
}

func (s *fakeSession) Text(_ context.Context, sel string) (string, error) {
	page := s.pages[s.cur]
	switch sel {
	case selIssueField:
		return "Issue Date and Time: " + page.issue, nil
	case selLocationField:
		return "Location: " + page.location, nil
	}
	return "", fmt.Errorf("unexpected text query: %s", sel)
}

func (s *fakeSession) Attributes(_ context.Context, _, _ string) ([]string, error) {
	page := s.pages[s.cur]
	labels := make([]string, 0, len(page.related))
	for _, rid := range page.related {
		labels = append(labels, "View ticket #"+rid)
	}
	return labels, nil
}

func (s *fakeSession) Back(_ context.Context) error {
	if s.backNavAway {
		return browser.ErrNavigatedAway
	}
	if n := len(s.history); n > 0 {
		s.cur, s.history = s.history[n-1], s.history[:n-1]
	}
	return nil
}

func (s *fakeSession) Snapshot(_ context.Context) ([]byte, error) { return nil, nil }
func (s *fakeSession) Close() error                               { return nil }

// fakeLedger is an in-memory Ledger.
type fakeLedger struct {
	known   map[string]struct{}
	records []model.CitationRecord
}

func newFakeLedger(known ...string) *fakeLedger {
	l := &fakeLedger{known: map[string]struct{}{}}
	for _, id := range known {
		l.known[id] = struct{}{}
	}
	return l
}

func (l *fakeLedger) IsKnown(id string) bool {
	_, ok := l.known[id]
	return ok
}

func (l *fakeLedger) Record(rec model.CitationRecord) error {
	l.known[rec.ID] = struct{}{}
	l.records = append(l.records, rec)
	return nil
}

type fakeNotifier struct {
	seen []string
}

func (n *fakeNotifier) CitationDiscovered(_ context.Context, rec model.CitationRecord) {
	n.seen = append(n.seen, rec.ID)
}

func testConfig() Config {
	return Config{
		BaseURL:        "https://campus.example.com/tickets/",
		NavTimeout:     time.Second,
		RelatedTimeout: 100 * time.Millisecond,
	}
}

func TestLookupPrimaryOnly(t *testing.T) {
	session := &fakeSession{pages: map[string]fakePage{
		"TK100": {issue: "3/1/2024 2:30 PM", location: "112 CORE WEST STRUCTURE"},
	}}
	ledger := newFakeLedger()
	notify := &fakeNotifier{}
	c := New(session, ledger, notify, testConfig())

	res, err := c.Lookup(context.Background(), "tk100", "7ABC123")
	require.NoError(t, err)
	assert.True(t, res.Verified)
	require.Len(t, res.NewRecords, 1)

	rec := res.NewRecords[0]
	assert.Equal(t, "TK100", rec.ID)
	assert.Equal(t, "112 CORE WEST STRUCTURE", rec.Location)
	assert.Equal(t, time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC), rec.IssuedAt)
	assert.Equal(t, []string{"TK100"}, notify.seen)
	assert.True(t, ledger.IsKnown("TK100"))
}

func TestLookupWalksUnknownRelated(t *testing.T) {
	session := &fakeSession{pages: map[string]fakePage{
		"TK100": {issue: "3/1/2024 2:30 PM", location: "LOT 127", related: []string{"TK101", "TK102"}},
		"TK101": {issue: "3/2/2024 9:05 AM", location: "LOT 127"},
		"TK102": {issue: "3/3/2024 11:00 AM", location: "LOT 127"},
	}}
	ledger := newFakeLedger("TK101") // already ledgered, must be skipped
	c := New(session, ledger, nil, testConfig())

	res, err := c.Lookup(context.Background(), "TK100", "7ABC123")
	require.NoError(t, err)
	assert.True(t, res.Verified)

	ids := make([]string, 0, len(res.NewRecords))
	for _, rec := range res.NewRecords {
		ids = append(ids, rec.ID)
	}
	assert.Equal(t, []string{"TK100", "TK102"}, ids)
	assert.Equal(t, 1, session.anchorClicks)
}

func TestLookupClicksExactRelatedAnchor(t *testing.T) {
	// TK1 is a prefix of TK10 and TK10's anchor sits first in document
	// order; each click must land on its own ticket's page.
	session := &fakeSession{pages: map[string]fakePage{
		"TK100": {issue: "3/1/2024 2:30 PM", location: "LOT 127", related: []string{"TK10", "TK1"}},
		"TK10":  {issue: "3/2/2024 9:05 AM", location: "112 CORE WEST STRUCTURE"},
		"TK1":   {issue: "3/3/2024 11:00 AM", location: "103A EAST FIELD HOUSE"},
	}}
	c := New(session, newFakeLedger(), nil, testConfig())

	res, err := c.Lookup(context.Background(), "TK100", "7ABC123")
	require.NoError(t, err)
	assert.True(t, res.Verified)

	locations := map[string]string{}
	for _, rec := range res.NewRecords {
		locations[rec.ID] = rec.Location
	}
	assert.Equal(t, map[string]string{
		"TK100": "LOT 127",
		"TK10":  "112 CORE WEST STRUCTURE",
		"TK1":   "103A EAST FIELD HOUSE",
	}, locations)
}

func TestLookupAllKnownShortCircuits(t *testing.T) {
	session := &fakeSession{pages: map[string]fakePage{
		"TK100": {issue: "3/1/2024 2:30 PM", location: "LOT 127", related: []string{"TK101"}},
		"TK101": {issue: "3/2/2024 9:05 AM", location: "LOT 127"},
	}}
	ledger := newFakeLedger("TK100", "TK101")
	c := New(session, ledger, nil, testConfig())

	res, err := c.Lookup(context.Background(), "TK100", "7ABC123")
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Empty(t, res.NewRecords)
	assert.Zero(t, session.anchorClicks)
}

func TestLookupMissingTicketFails(t *testing.T) {
	session := &fakeSession{pages: map[string]fakePage{}}
	c := New(session, newFakeLedger(), nil, testConfig())

	res, err := c.Lookup(context.Background(), "TKNONE", "7ABC123")
	require.NoError(t, err)
	assert.False(t, res.Verified)
	assert.Empty(t, res.NewRecords)
}

func TestLookupFailureOnLedgeredIDIsBenign(t *testing.T) {
	// Detail panel never renders, but the id is already in the ledger: the
	// pair stays verified instead of being dropped from the queue.
	session := &fakeSession{pages: map[string]fakePage{}}
	c := New(session, newFakeLedger("TK100"), nil, testConfig())

	res, err := c.Lookup(context.Background(), "TK100", "7ABC123")
	require.NoError(t, err)
	assert.True(t, res.Verified)
}

func TestLookupNavigatedAwayIsBenign(t *testing.T) {
	session := &fakeSession{
		pages: map[string]fakePage{
			"TK100": {issue: "3/1/2024 2:30 PM", location: "LOT 127", related: []string{"TK101"}},
			"TK101": {issue: "3/2/2024 9:05 AM", location: "LOT 127"},
		},
		backNavAway: true,
	}
	c := New(session, newFakeLedger(), nil, testConfig())

	res, err := c.Lookup(context.Background(), "TK100", "7ABC123")
	require.NoError(t, err)
	assert.True(t, res.Verified)
	// Both extractions landed before the back-navigation blew up.
	assert.Len(t, res.NewRecords, 2)
}

func TestLookupRetriesStaleAnchorOnce(t *testing.T) {
	session := &fakeSession{
		pages: map[string]fakePage{
			"TK100": {issue: "3/1/2024 2:30 PM", location: "LOT 127", related: []string{"TK101"}},
			"TK101": {issue: "3/2/2024 9:05 AM", location: "LOT 127"},
		},
		staleClicks: 1,
	}
	c := New(session, newFakeLedger(), nil, testConfig())

	res, err := c.Lookup(context.Background(), "TK100", "7ABC123")
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Len(t, res.NewRecords, 2)
	assert.Equal(t, 2, session.anchorClicks)
}

func TestLookupCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session := &fakeSession{pages: map[string]fakePage{}}
	c := New(session, newFakeLedger(), nil, testConfig())

	_, err := c.Lookup(ctx, "TK100", "7ABC123")
	assert.ErrorIs(t, err, context.Canceled)
}
