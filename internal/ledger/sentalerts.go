package ledger

import (
	"bufio"
	"os"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// SentAlerts is the append-only record of (session email, citation id)
// pairs already emailed, so a user is alerted at most once per citation
// across cycles.
type SentAlerts struct {
	path string

	mu   sync.Mutex
	sent map[string]struct{}
}

// OpenSentAlerts loads the sent-alert ledger, creating an empty one if the
// file does not exist.
func OpenSentAlerts(path string) (*SentAlerts, error) {
	s := &SentAlerts{
		path: path,
		sent: make(map[string]struct{}),
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, eris.Wrapf(err, "ledger: open sent alerts %s", path)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		s.sent[strings.ToUpper(line)] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "ledger: scan sent alerts %s", path)
	}
	return s, nil
}

func sentKey(email, citationID string) string {
	return strings.ToUpper(strings.TrimSpace(email) + "," + strings.TrimSpace(citationID))
}

// IsSent reports whether this (email, citation) pair was already alerted.
func (s *SentAlerts) IsSent(email, citationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sent[sentKey(email, citationID)]
	return ok
}

// Record marks the pair as alerted. A no-op if already recorded.
func (s *SentAlerts) Record(email, citationID string) error {
	key := sentKey(email, citationID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sent[key]; ok {
		return nil
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrapf(err, "ledger: open sent alerts %s for append", s.path)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.WriteString(key + "\n"); err != nil {
		return eris.Wrap(err, "ledger: append sent alert")
	}
	s.sent[key] = struct{}{}

	zap.L().Debug("ledger: sent alert recorded",
		zap.String("email", email), zap.String("citation", citationID))
	return nil
}
