// Package ledger owns the local files of the reconciliation cycle: the
// append-only citation ledger, the pending-queue file, the session cache,
// and the sent-alert ledger. One writer (the cycle) mutates them; rewrites
// go through a temp file and an atomic rename.
package ledger

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/slugwatch/citation-cli/internal/model"
)

// Ledger is the deduplicated on-disk record of already-scraped citations.
// The file is append-only: records are never edited or removed, and at most
// one line exists per citation id (case-insensitive).
type Ledger struct {
	path string

	mu      sync.RWMutex
	known   map[string]struct{}
	records []model.CitationRecord
}

// Open loads the ledger file at path, creating an empty ledger if the file
// does not exist yet.
func Open(path string) (*Ledger, error) {
	l := &Ledger{
		path:  path,
		known: make(map[string]struct{}),
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, eris.Wrapf(err, "ledger: open %s", path)
	}
	defer func() { _ = f.Close() }()

	log := zap.L().With(zap.String("component", "ledger"))

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		rec, err := parseLine(line)
		if err != nil {
			log.Warn("ledger: skipping malformed line", zap.String("line", line), zap.Error(err))
			continue
		}
		if _, dup := l.known[rec.ID]; dup {
			continue
		}
		l.known[rec.ID] = struct{}{}
		l.records = append(l.records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "ledger: scan %s", path)
	}

	log.Info("ledger: loaded", zap.Int("records", len(l.records)))
	return l, nil
}

// IsKnown reports whether a citation id is already ledgered.
func (l *Ledger) IsKnown(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.known[model.CanonicalID(id)]
	return ok
}

// Len returns the number of ledgered records.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Records returns a copy of all ledgered records in file order.
func (l *Ledger) Records() []model.CitationRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.CitationRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Record appends a citation to the ledger. A no-op if the id is already
// known. The append is the only persisted mutation the ledger ever makes.
func (l *Ledger) Record(rec model.CitationRecord) error {
	rec.ID = model.CanonicalID(rec.ID)
	if rec.ID == "" {
		return eris.New("ledger: empty citation id")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.known[rec.ID]; ok {
		return nil
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrapf(err, "ledger: open %s for append", l.path)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.WriteString(FormatLine(rec) + "\n"); err != nil {
		return eris.Wrap(err, "ledger: append record")
	}

	l.known[rec.ID] = struct{}{}
	l.records = append(l.records, rec)

	zap.L().Info("ledger: recorded citation",
		zap.String("id", rec.ID),
		zap.String("location", rec.Location),
	)
	return nil
}

// FormatLine renders a record in the ledger file format: a quoted,
// comma-terminated line ready for direct embedding in the generated site's
// data list.
func FormatLine(rec model.CitationRecord) string {
	return fmt.Sprintf("\"%s,%s,%s,%d/%d/%d\",",
		model.CanonicalID(rec.ID),
		rec.Location,
		rec.IssuedAt.Format("1504"),
		int(rec.IssuedAt.Month()), rec.IssuedAt.Day(), rec.IssuedAt.Year(),
	)
}

// parseLine decodes one ledger line back into a record. The location field
// is everything between the id and the trailing time/date pair, so lot
// names containing commas survive the round trip.
func parseLine(line string) (model.CitationRecord, error) {
	s := strings.TrimSuffix(line, ",")
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return model.CitationRecord{}, eris.Errorf("ledger: line not quoted: %q", line)
	}
	parts := strings.Split(s[1:len(s)-1], ",")
	if len(parts) < 4 {
		return model.CitationRecord{}, eris.Errorf("ledger: expected 4 fields, got %d", len(parts))
	}

	id := model.CanonicalID(parts[0])
	location := strings.Join(parts[1:len(parts)-2], ",")
	hhmm := parts[len(parts)-2]
	date := parts[len(parts)-1]

	issuedAt, err := parseLedgerTime(date, hhmm)
	if err != nil {
		return model.CitationRecord{}, err
	}

	return model.CitationRecord{ID: id, Location: location, IssuedAt: issuedAt}, nil
}

// parseLedgerTime combines the M/D/YYYY and HHMM ledger fields.
func parseLedgerTime(date, hhmm string) (time.Time, error) {
	day, err := time.Parse("1/2/2006", date)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "ledger: bad date %q", date)
	}

	// Short times like "230" are zero-padded before splitting. Anything
	// longer than 4 digits would slice into a nonsense hour/minute pair that
	// time.Date silently normalizes, so it is rejected instead.
	for len(hhmm) < 4 {
		hhmm = "0" + hhmm
	}
	if len(hhmm) != 4 {
		return time.Time{}, eris.Errorf("ledger: bad time %q", hhmm)
	}
	hour, err := strconv.Atoi(hhmm[:2])
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "ledger: bad time %q", hhmm)
	}
	minute, err := strconv.Atoi(hhmm[2:])
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "ledger: bad time %q", hhmm)
	}
	if hour > 23 || minute > 59 {
		return time.Time{}, eris.Errorf("ledger: bad time %q", hhmm)
	}

	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, time.UTC), nil
}
