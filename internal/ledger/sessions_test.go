package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slugwatch/citation-cli/internal/model"
)

func TestSessionCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.txt")
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	sessions := []model.ParkingSession{
		{
			Email:    "sammy@ucsc.edu",
			FullName: "Sammy Slug",
			Location: "112 CORE WEST STRUCTURE",
			Start:    start,
			Hours:    2.5,
			Coord:    &model.Coordinate{Lat: 36.9972, Lng: -122.0637},
		},
		{
			Email:    "banana@ucsc.edu",
			FullName: "Banana Slug",
			Location: "REMOTE",
			Start:    start,
			Hours:    4,
		},
	}
	require.NoError(t, WriteSessions(path, sessions))

	got, err := ReadSessions(path)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "sammy@ucsc.edu", got[0].Email)
	assert.Equal(t, "Sammy Slug", got[0].FullName)
	assert.Equal(t, 2.5, got[0].Hours)
	require.NotNil(t, got[0].Coord)
	assert.InDelta(t, 36.9972, got[0].Coord.Lat, 1e-5)
	assert.True(t, got[0].Expiry().Equal(sessions[0].Expiry()), "expiry survives the round trip")

	assert.Nil(t, got[1].Coord, "zero coordinate reads back as none")
}

func TestSessionCacheCommaFields(t *testing.T) {
	// Names and lot labels may carry commas; the cache quotes them.
	path := filepath.Join(t.TempDir(), "sessions.txt")
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, WriteSessions(path, []model.ParkingSession{{
		Email:    "sammy@ucsc.edu",
		FullName: "Slug, Sammy",
		Location: "LOT 3: OVERFLOW, NORTH",
		Start:    start,
		Hours:    2,
		Coord:    &model.Coordinate{Lat: 36.9901, Lng: -122.0512},
	}}))

	got, err := ReadSessions(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Slug, Sammy", got[0].FullName)
	assert.Equal(t, "LOT 3: OVERFLOW, NORTH", got[0].Location)
	require.NotNil(t, got[0].Coord)
	assert.InDelta(t, -122.0512, got[0].Coord.Lng, 1e-9)
}

func TestWriteSessionsRewritesWholesale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.txt")
	start := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, WriteSessions(path, []model.ParkingSession{
		{Email: "a@ucsc.edu", FullName: "A", Location: "L1", Start: start, Hours: 1},
		{Email: "b@ucsc.edu", FullName: "B", Location: "L2", Start: start, Hours: 1},
	}))
	require.NoError(t, WriteSessions(path, []model.ParkingSession{
		{Email: "c@ucsc.edu", FullName: "C", Location: "L3", Start: start, Hours: 1},
	}))

	got, err := ReadSessions(path)
	require.NoError(t, err)
	require.Len(t, got, 1, "cache is rewritten, never appended")
	assert.Equal(t, "c@ucsc.edu", got[0].Email)
}

func TestReadSessionsMissingFile(t *testing.T) {
	got, err := ReadSessions(filepath.Join(t.TempDir(), "absent.txt"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSentAlertsDedup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sent_alerts.txt")

	s, err := OpenSentAlerts(path)
	require.NoError(t, err)

	assert.False(t, s.IsSent("sammy@ucsc.edu", "AB1234"))
	require.NoError(t, s.Record("sammy@ucsc.edu", "AB1234"))
	assert.True(t, s.IsSent("sammy@ucsc.edu", "AB1234"))
	assert.True(t, s.IsSent("SAMMY@UCSC.EDU", "ab1234"), "case-insensitive")
	assert.False(t, s.IsSent("sammy@ucsc.edu", "CD5678"))

	// Recording again is a no-op.
	require.NoError(t, s.Record("sammy@ucsc.edu", "AB1234"))

	// Survives reopen.
	reopened, err := OpenSentAlerts(path)
	require.NoError(t, err)
	assert.True(t, reopened.IsSent("sammy@ucsc.edu", "AB1234"))
}
