package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slugwatch/citation-cli/internal/model"
)

func testRecord(id string) model.CitationRecord {
	return model.CitationRecord{
		ID:       id,
		Location: "LOT 12",
		IssuedAt: time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC),
	}
}

func TestFormatLine(t *testing.T) {
	line := FormatLine(testRecord("ab1234"))
	assert.Equal(t, `"AB1234,LOT 12,1430,3/1/2024",`, line)

	morning := model.CitationRecord{
		ID:       "CD5",
		Location: "102 QUARRY PLAZA",
		IssuedAt: time.Date(2024, 11, 22, 2, 5, 0, 0, time.UTC),
	}
	assert.Equal(t, `"CD5,102 QUARRY PLAZA,0205,11/22/2024",`, FormatLine(morning))
}

func TestRecordIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scraped.txt")
	l, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, l.Record(testRecord("AB1234")))
	require.NoError(t, l.Record(testRecord("ab1234"))) // same id, different case
	require.NoError(t, l.Record(testRecord("AB1234")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 1, "exactly one ledger line per citation id")

	assert.True(t, l.IsKnown("AB1234"))
	assert.True(t, l.IsKnown("ab1234"))
	assert.False(t, l.IsKnown("ZZ9999"))
	assert.Equal(t, 1, l.Len())
}

func TestOpenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scraped.txt")

	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Record(testRecord("AB1234")))
	require.NoError(t, l.Record(model.CitationRecord{
		ID:       "EF9",
		Location: "152 CROWN - MERRILL APARTMENTS",
		IssuedAt: time.Date(2023, 7, 4, 9, 5, 0, 0, time.UTC),
	}))

	reopened, err := Open(path)
	require.NoError(t, err)
	require.Equal(t, 2, reopened.Len())

	recs := reopened.Records()
	assert.Equal(t, "AB1234", recs[0].ID)
	assert.Equal(t, "LOT 12", recs[0].Location)
	assert.True(t, recs[0].IssuedAt.Equal(time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)))
	assert.Equal(t, "EF9", recs[1].ID)
	assert.True(t, recs[1].IssuedAt.Equal(time.Date(2023, 7, 4, 9, 5, 0, 0, time.UTC)))
}

func TestOpenSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scraped.txt")
	content := strings.Join([]string{
		`"AB1234,LOT 12,1430,3/1/2024",`,
		`not a ledger line`,
		``,
		`"EF111,LOT 9,14305,3/1/2024",`, // 5-digit time token
		`"EF222,LOT 9,2505,3/1/2024",`,  // hour out of range
		`"CD5678,LOT 9,0900,4/2/2024",`,
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	l, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 2, l.Len())
	assert.True(t, l.IsKnown("CD5678"))
	assert.False(t, l.IsKnown("EF111"))
	assert.False(t, l.IsKnown("EF222"))
}

func TestRecordEmptyID(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "scraped.txt"))
	require.NoError(t, err)
	require.Error(t, l.Record(model.CitationRecord{ID: "  "}))
}
