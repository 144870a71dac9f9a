package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// issuedAtLayouts covers both timestamp shapes the ticket site has emitted
// over time. A trailing AM/PM marker is authoritative when present; without
// one the hour is taken as already 24-hour.
var issuedAtLayouts = []string{
	"1/2/2006 3:04 PM",
	"1/2/2006 3:04PM",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
}

// ParseIssuedAt parses a citation issue timestamp of the form
// "MM/DD/YYYY HH:MM" with an optional AM/PM suffix. Extra trailing text
// beyond the recognized tokens is ignored.
func ParseIssuedAt(raw string) (time.Time, error) {
	fields := strings.Fields(strings.TrimSpace(raw))
	if len(fields) < 2 {
		return time.Time{}, eris.Errorf("model: malformed issue timestamp %q", raw)
	}

	candidate := fields[0] + " " + fields[1]
	if len(fields) >= 3 {
		if suffix := strings.ToUpper(fields[2]); suffix == "AM" || suffix == "PM" {
			candidate += " " + suffix
		}
	}

	for _, layout := range issuedAtLayouts {
		if t, err := time.Parse(layout, candidate); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("model: unparseable issue timestamp %q", raw)
}
