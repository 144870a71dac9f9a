package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIssuedAt(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    time.Time
		wantErr bool
	}{
		{
			name: "12-hour with PM suffix",
			raw:  "03/01/2024 2:30 PM",
			want: time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC),
		},
		{
			name: "12-hour with AM suffix",
			raw:  "03/01/2024 2:30 AM",
			want: time.Date(2024, 3, 1, 2, 30, 0, 0, time.UTC),
		},
		{
			name: "24-hour without suffix",
			raw:  "03/01/2024 14:30",
			want: time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC),
		},
		{
			name: "24-hour with seconds",
			raw:  "3/1/2024 14:30:45",
			want: time.Date(2024, 3, 1, 14, 30, 45, 0, time.UTC),
		},
		{
			name: "unpadded date",
			raw:  "3/1/2024 9:05 AM",
			want: time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC),
		},
		{
			name: "trailing junk ignored",
			raw:  "03/01/2024 14:30 (approx)",
			want: time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC),
		},
		{
			name:    "date only",
			raw:     "03/01/2024",
			wantErr: true,
		},
		{
			name:    "garbage",
			raw:     "not a timestamp",
			wantErr: true,
		},
		{
			name:    "empty",
			raw:     "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIssuedAt(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestParkingSessionExpiry(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s := ParkingSession{Start: start, Hours: 2.5}

	assert.Equal(t, start.Add(150*time.Minute), s.Expiry())
	assert.False(t, s.Expired(start.Add(150*time.Minute)), "boundary instant is still live")
	assert.True(t, s.Expired(start.Add(150*time.Minute+time.Second)))
}

func TestSubmissionMalformed(t *testing.T) {
	assert.True(t, Submission{Plate: "", Citation: "AB1"}.Malformed())
	assert.True(t, Submission{Plate: "7XYZ999", Citation: "  "}.Malformed())
	assert.False(t, Submission{Plate: "7XYZ999", Citation: "AB1"}.Malformed())
}

func TestCanonicalID(t *testing.T) {
	assert.Equal(t, "AB1234", CanonicalID("  ab1234 "))
}

func TestPendingEntryLine(t *testing.T) {
	assert.Equal(t, "AB1234,7XYZ999", PendingEntry{CitationID: "AB1234", Plate: "7XYZ999"}.Line())
	assert.Equal(t, "ab1234 , 7xyz999", PendingEntry{CitationID: "AB1234", Plate: "7XYZ999", Raw: "ab1234 , 7xyz999"}.Line())
}
