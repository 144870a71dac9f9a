package geo

import (
	"time"

	"github.com/slugwatch/citation-cli/internal/model"
)

// FindAlertTargets returns one AlertEvent for every session that is still
// live at now and within radiusFeet of the citation coordinate. A session
// without an explicit coordinate is placed by resolving its location label
// through the index; sessions that cannot be placed either way are skipped.
// The engine keeps no memory of past alerts; cross-cycle deduplication is
// the caller's concern (see the sent-alert ledger).
func FindAlertTargets(citation model.CitationRecord, coord model.Coordinate, idx *LocationIndex, sessions []model.ParkingSession, radiusFeet float64, now time.Time) []model.AlertEvent {
	var events []model.AlertEvent
	for _, s := range sessions {
		if s.Expired(now) {
			continue
		}
		sc := s.Coord
		if sc == nil && idx != nil {
			if c, ok := idx.Resolve(s.Location); ok {
				sc = &c
			}
		}
		if sc == nil {
			continue
		}
		d := DistanceFeet(coord, *sc)
		if d <= radiusFeet {
			events = append(events, model.AlertEvent{
				Session:      s,
				Citation:     citation,
				DistanceFeet: d,
			})
		}
	}
	return events
}
