package publish

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slugwatch/citation-cli/internal/ledger"
	"github.com/slugwatch/citation-cli/internal/model"
)

func testLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	ldg, err := ledger.Open(filepath.Join(t.TempDir(), "scraped.txt"))
	require.NoError(t, err)
	require.NoError(t, ldg.Record(model.CitationRecord{
		ID: "TK100", Location: "LOT 127",
		IssuedAt: time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC),
	}))
	require.NoError(t, ldg.Record(model.CitationRecord{
		ID: "TK101", Location: "112 CORE WEST STRUCTURE",
		IssuedAt: time.Date(2024, 3, 2, 9, 5, 0, 0, time.UTC),
	}))
	return ldg
}

func TestRender(t *testing.T) {
	got := string(Render(testLedger(t)))
	want := "\"TK100,LOT 127,1430,3/1/2024\",\n" +
		"\"TK101,112 CORE WEST STRUCTURE,0905,3/2/2024\",\n"
	assert.Equal(t, want, got)
}

func TestWriteLocal(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "public")
	path, err := WriteLocal(testLedger(t), dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "citations.txt"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\"TK100,LOT 127,1430,3/1/2024\",")
}

func TestParseFTPURL(t *testing.T) {
	cases := []struct {
		name     string
		url      string
		wantHost string
		wantDir  string
		wantErr  bool
	}{
		{"default port", "ftp://files.example.com/htdocs", "files.example.com:21", "/htdocs", false},
		{"explicit port", "ftp://files.example.com:2121/htdocs", "files.example.com:2121", "/htdocs", false},
		{"wrong scheme", "https://files.example.com/htdocs", "", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			host, dir, err := parseFTPURL(tc.url)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantHost, host)
			assert.Equal(t, tc.wantDir, dir)
		})
	}
}
