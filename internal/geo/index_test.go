package geo

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTable = `[
  {name: "112 CORE WEST STRUCTURE", lat: 36.9972, lng: -122.0637},
  {name: "LOT 127", lat: 36.9995, lng: -122.0626},
  {name: "127 NORTH REMOTE ANNEX", lat: 36.9900, lng: -122.0600},
  {name: "103A EAST FIELD HOUSE", lat: 36.9912, lng: -122.0548},
  {name: "MCHENRY LIBRARY", lat: 36.9959, lng: -122.0582},
]`

func loadTestIndex(t *testing.T) *LocationIndex {
	t.Helper()
	idx, err := ParseIndex([]byte(testTable))
	require.NoError(t, err)
	return idx
}

func TestParseIndexTolerantSyntax(t *testing.T) {
	// Unquoted keys and a trailing comma, as the table file ships.
	idx := loadTestIndex(t)
	assert.Equal(t, 5, idx.Len())
}

func TestParseIndexBareKeysQuotedValues(t *testing.T) {
	// Colons and commas inside quoted lot names must survive the bare-key
	// rewrite, and comments are stripped.
	raw := `[
	  // hand-maintained overrides
	  {name: "LOT 3: OVERFLOW, NORTH", lat: 36.9901, lng: -122.0512},
	]`
	idx, err := ParseIndex([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, 1, idx.Len())
	assert.Equal(t, "LOT 3: OVERFLOW, NORTH", idx.Entries()[0].Name)

	coord, ok := idx.Resolve("lot 3: overflow, north")
	require.True(t, ok)
	assert.InDelta(t, 36.9901, coord.Lat, 1e-9)
}

func TestParseIndexStandardJSON(t *testing.T) {
	raw := `[{"name": "LOT 9", "lat": 36.98, "lng": -122.06}]`
	idx, err := ParseIndex([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())
}

func TestResolveExact(t *testing.T) {
	idx := loadTestIndex(t)

	coord, ok := idx.Resolve("MCHENRY LIBRARY")
	require.True(t, ok)
	assert.InDelta(t, 36.9959, coord.Lat, 1e-9)

	// Case and whitespace insensitive.
	coord2, ok := idx.Resolve("  mchenry library ")
	require.True(t, ok)
	assert.Equal(t, coord, coord2)
}

func TestResolveNumericPrefix(t *testing.T) {
	idx := loadTestIndex(t)

	// "127 WEST LOT" shares prefix 127 with table entry "LOT 127", which
	// comes before "127 NORTH REMOTE ANNEX" in table order.
	coord, ok := idx.Resolve("127 WEST LOT")
	require.True(t, ok)
	assert.InDelta(t, 36.9995, coord.Lat, 1e-9)
	assert.InDelta(t, -122.0626, coord.Lng, 1e-9)

	// Alphanumeric token.
	coord, ok = idx.Resolve("103A SOMEWHERE ELSE")
	require.True(t, ok)
	assert.InDelta(t, 36.9912, coord.Lat, 1e-9)
}

func TestResolveNotFound(t *testing.T) {
	idx := loadTestIndex(t)

	_, ok := idx.Resolve("WEST GATEHOUSE")
	assert.False(t, ok, "no numeric prefix and no exact match")

	_, ok = idx.Resolve("999 NOWHERE")
	assert.False(t, ok, "numeric prefix with no table match")

	_, ok = idx.Resolve("")
	assert.False(t, ok)
}

func TestLoadIndexRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lots.json")

	entries := []LocationEntry{
		{Name: "102 QUARRY PLAZA", Lat: 36.9974, Lng: -122.0556},
		{Name: "119 MERRILL COLLEGE", Lat: 36.9997, Lng: -122.0531},
	}
	require.NoError(t, WriteTable(path, entries))

	idx, err := LoadIndex(path)
	require.NoError(t, err)
	assert.Equal(t, entries, idx.Entries())

	coord, ok := idx.Resolve("119 merrill college")
	require.True(t, ok)
	assert.InDelta(t, 36.9997, coord.Lat, 1e-9)
}

func TestLoadIndexMissingFile(t *testing.T) {
	_, err := LoadIndex(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read location table")
}
