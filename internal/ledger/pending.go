package ledger

import (
	"bufio"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/slugwatch/citation-cli/internal/model"
)

// ReadPending reads the pending-queue file: one `CITATIONID,PLATE` line per
// entry. Blank lines are skipped; malformed lines are dropped with a
// warning. A missing file is an empty queue.
func ReadPending(path string) ([]model.PendingEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "ledger: open pending queue %s", path)
	}
	defer func() { _ = f.Close() }()

	var entries []model.PendingEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry, err := ParsePendingLine(line)
		if err != nil {
			zap.L().Warn("ledger: dropping malformed pending line",
				zap.String("line", line), zap.Error(err))
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "ledger: scan pending queue %s", path)
	}
	return entries, nil
}

// ParsePendingLine decodes one `CITATIONID,PLATE` line.
func ParsePendingLine(line string) (model.PendingEntry, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 2 {
		return model.PendingEntry{}, eris.Errorf("ledger: expected CITATIONID,PLATE, got %d fields", len(parts))
	}
	id := model.CanonicalID(parts[0])
	plate := strings.TrimSpace(parts[1])
	if id == "" || plate == "" {
		return model.PendingEntry{}, eris.New("ledger: empty citation id or plate")
	}
	return model.PendingEntry{CitationID: id, Plate: plate, Raw: line}, nil
}

// RewritePending replaces the pending-queue file with exactly the given
// entries, order-preserving. The content is written to a temp file and
// renamed over the live file, so a reader never sees a partial write and a
// crash mid-write leaves the previous version intact.
func RewritePending(path string, entries []model.PendingEntry) error {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.Line())
		b.WriteByte('\n')
	}
	if err := atomicWrite(path, []byte(b.String())); err != nil {
		return eris.Wrapf(err, "ledger: rewrite pending queue %s", path)
	}
	zap.L().Info("ledger: pending queue rewritten",
		zap.String("path", path), zap.Int("entries", len(entries)))
	return nil
}

// AppendPending appends entries to the pending-queue file, skipping any
// (citation, plate) pair already present. Returns the number appended.
func AppendPending(path string, entries []model.PendingEntry) (int, error) {
	existing, err := ReadPending(path)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		seen[strings.ToUpper(e.Line())] = struct{}{}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, eris.Wrapf(err, "ledger: open pending queue %s for append", path)
	}
	defer func() { _ = f.Close() }()

	var appended int
	for _, e := range entries {
		key := strings.ToUpper(e.Line())
		if _, dup := seen[key]; dup {
			continue
		}
		if _, err := f.WriteString(e.Line() + "\n"); err != nil {
			return appended, eris.Wrap(err, "ledger: append pending entry")
		}
		seen[key] = struct{}{}
		appended++
	}
	return appended, nil
}

// atomicWrite writes data to path via a temp file in the same directory and
// an atomic rename.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
