package recordstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slugwatch/citation-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLiteStore_LegacyQueueRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := s.db.Exec(
		`INSERT INTO legacy_queue (id, citation, plate) VALUES (?, ?, ?)`,
		"doc1", "TK100", "7ABC123")
	require.NoError(t, err)

	queue, err := s.LegacyQueue(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, model.LegacyTicket{DocID: "doc1", Citation: "TK100", Plate: "7ABC123"}, queue[0])

	require.NoError(t, s.DeleteLegacy(ctx, "doc1"))
	queue, err = s.LegacyQueue(ctx)
	require.NoError(t, err)
	assert.Empty(t, queue)
}

func TestSQLiteStore_SubmissionsValidTristate(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	_, err := s.db.Exec(
		`INSERT INTO pending_submissions (id, plate, citation, email, full_name, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		"sub1", "7ABC123", "TK100", "kai@ucsc.edu", "Kai Rivera", ts)
	require.NoError(t, err)

	subs, err := s.Submissions(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Nil(t, subs[0].Valid, "unvalidated submission must have nil Valid")

	require.NoError(t, s.MarkSubmissionInvalid(ctx, "sub1"))
	subs, err = s.Submissions(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.NotNil(t, subs[0].Valid)
	assert.False(t, *subs[0].Valid)
	assert.True(t, subs[0].MarkedInvalid())

	require.NoError(t, s.DeleteSubmission(ctx, "sub1"))
	subs, err = s.Submissions(ctx)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestSQLiteStore_SessionsCoord(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	_, err := s.db.Exec(
		`INSERT INTO parking_sessions (id, email, full_name, location, start_at, hours, lat, lng)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		"sess1", "kai@ucsc.edu", "Kai Rivera", "LOT 127", start, 2.0, 36.9961, -122.0583)
	require.NoError(t, err)
	_, err = s.db.Exec(
		`INSERT INTO parking_sessions (id, email, full_name, location, start_at, hours, lat, lng)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		"sess2", "max@ucsc.edu", "Max Chen", "UNKNOWN LOT", start.Add(time.Hour), 4.0, 0.0, 0.0)
	require.NoError(t, err)

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	require.NotNil(t, sessions[0].Coord)
	assert.InDelta(t, 36.9961, sessions[0].Coord.Lat, 1e-9)
	assert.Nil(t, sessions[1].Coord, "zero lat/lng means no coordinate")

	require.NoError(t, s.DeleteSession(ctx, "sess1"))
	sessions, err = s.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "sess2", sessions[0].DocID)
}

func TestSQLiteStore_UpsertRosterUnionsTickets(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	entry := model.RosterEntry{
		FullName:    "Kai Rivera",
		Email:       "kai@ucsc.edu",
		Plate:       "7ABC123",
		Tickets:     []string{"TK100"},
		LastUpdated: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.UpsertRoster(ctx, entry))

	// Second upsert carries one duplicate and one new ticket, lower-cased.
	entry.Tickets = []string{"tk100", "tk200"}
	entry.LastUpdated = entry.LastUpdated.Add(time.Hour)
	require.NoError(t, s.UpsertRoster(ctx, entry))

	var ticketsJSON string
	require.NoError(t, s.db.QueryRow(
		`SELECT tickets FROM user_roster WHERE email = ?`, "kai@ucsc.edu").Scan(&ticketsJSON))
	assert.JSONEq(t, `["TK100","TK200"]`, ticketsJSON)
}
