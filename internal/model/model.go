// Package model defines the domain types shared across the citation pipeline.
package model

import (
	"strings"
	"time"
)

// Coordinate is a WGS84 latitude/longitude pair.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// CitationRecord is a single verified parking citation. Records are immutable
// once written to the ledger; the ID is the case-insensitive canonical key.
type CitationRecord struct {
	ID       string    `json:"id"`
	Location string    `json:"location"`
	IssuedAt time.Time `json:"issued_at"`
	Plate    string    `json:"plate,omitempty"`
}

// PendingEntry is a (citation, plate) pair awaiting verification. Raw holds
// the original queue-file line so rewrites preserve the source text.
type PendingEntry struct {
	CitationID string `json:"citation_id"`
	Plate      string `json:"plate"`
	Raw        string `json:"-"`
}

// Line renders the entry in the pending-queue file format.
func (e PendingEntry) Line() string {
	if e.Raw != "" {
		return e.Raw
	}
	return e.CitationID + "," + e.Plate
}

// ParkingSession is a time-bounded claim that a user's vehicle occupies a
// location. DocID identifies the backing record-store document.
type ParkingSession struct {
	DocID    string      `json:"doc_id,omitempty"`
	Email    string      `json:"email"`
	FullName string      `json:"full_name"`
	Location string      `json:"location"`
	Start    time.Time   `json:"start"`
	Hours    float64     `json:"hours"`
	Coord    *Coordinate `json:"coord,omitempty"`
}

// Expiry returns the moment the session lapses.
func (s ParkingSession) Expiry() time.Time {
	return s.Start.Add(time.Duration(s.Hours * float64(time.Hour)))
}

// Expired reports whether the session has lapsed at the given instant.
func (s ParkingSession) Expired(now time.Time) bool {
	return now.After(s.Expiry())
}

// Submission is a user-submitted (plate, citation) pair pending promotion
// into the local queue. Valid is nil until the validator has seen it.
type Submission struct {
	DocID     string    `json:"doc_id,omitempty"`
	Plate     string    `json:"plate"`
	Citation  string    `json:"citation"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Timestamp time.Time `json:"timestamp"`
	Valid     *bool     `json:"valid,omitempty"`
}

// Malformed reports whether the submission is structurally unusable: a crawl
// needs both a plate and a citation number.
func (s Submission) Malformed() bool {
	return strings.TrimSpace(s.Plate) == "" || strings.TrimSpace(s.Citation) == ""
}

// MarkedInvalid reports whether the validator has already flagged this
// submission as bad.
func (s Submission) MarkedInvalid() bool {
	return s.Valid != nil && !*s.Valid
}

// LegacyTicket is an entry from the legacy transfer queue.
type LegacyTicket struct {
	DocID    string `json:"doc_id,omitempty"`
	Citation string `json:"citation"`
	Plate    string `json:"plate"`
}

// RosterEntry is a user in the verified-user roster. Upserts merge by Email
// and union the Tickets list.
type RosterEntry struct {
	FullName    string    `json:"full_name"`
	Email       string    `json:"email"`
	Plate       string    `json:"plate"`
	Tickets     []string  `json:"tickets"`
	LastUpdated time.Time `json:"last_updated"`
}

// AlertEvent pairs a parking session with a nearby citation. It exists only
// long enough to be handed to the mailer and is never persisted.
type AlertEvent struct {
	Session      ParkingSession
	Citation     CitationRecord
	DistanceFeet float64
}

// CanonicalID upper-cases and trims a citation id so membership checks are
// case-insensitive everywhere.
func CanonicalID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
