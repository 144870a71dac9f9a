package ledger

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/slugwatch/citation-cli/internal/model"
)

// WriteSessions rewrites the session cache file wholesale from the live
// session set: one `EMAIL,FULLNAME,LOCATION,ISO8601_EXPIRY,HOURS,LAT,LNG`
// record per session, CSV-quoted so names and lot labels may carry commas.
// The cache is derived state; it is never appended to.
func WriteSessions(path string, sessions []model.ParkingSession) error {
	var b strings.Builder
	w := csv.NewWriter(&b)
	for _, s := range sessions {
		var lat, lng float64
		if s.Coord != nil {
			lat, lng = s.Coord.Lat, s.Coord.Lng
		}
		_ = w.Write([]string{
			s.Email, s.FullName, s.Location,
			s.Expiry().UTC().Format(time.RFC3339),
			strconv.FormatFloat(s.Hours, 'g', -1, 64),
			strconv.FormatFloat(lat, 'f', -1, 64),
			strconv.FormatFloat(lng, 'f', -1, 64),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrapf(err, "ledger: encode session cache %s", path)
	}
	if err := atomicWrite(path, []byte(b.String())); err != nil {
		return eris.Wrapf(err, "ledger: write session cache %s", path)
	}
	zap.L().Info("ledger: session cache written",
		zap.String("path", path), zap.Int("sessions", len(sessions)))
	return nil
}

// ReadSessions loads the session cache file. Expiry is stored rather than
// start, so Start is back-computed from Expiry and Hours.
func ReadSessions(path string) ([]model.ParkingSession, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "ledger: open session cache %s", path)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var sessions []model.ParkingSession
	for {
		parts, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			zap.L().Warn("ledger: skipping unreadable session record", zap.Error(err))
			continue
		}
		s, err := parseSessionFields(parts)
		if err != nil {
			zap.L().Warn("ledger: skipping malformed session record",
				zap.Strings("fields", parts), zap.Error(err))
			continue
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func parseSessionFields(parts []string) (model.ParkingSession, error) {
	if len(parts) != 7 {
		return model.ParkingSession{}, eris.Errorf("ledger: expected 7 session fields, got %d", len(parts))
	}

	expiry, err := time.Parse(time.RFC3339, parts[3])
	if err != nil {
		return model.ParkingSession{}, eris.Wrapf(err, "ledger: bad expiry %q", parts[3])
	}
	hours, err := strconv.ParseFloat(parts[4], 64)
	if err != nil {
		return model.ParkingSession{}, eris.Wrapf(err, "ledger: bad hours %q", parts[4])
	}
	lat, err := strconv.ParseFloat(parts[5], 64)
	if err != nil {
		return model.ParkingSession{}, eris.Wrapf(err, "ledger: bad lat %q", parts[5])
	}
	lng, err := strconv.ParseFloat(parts[6], 64)
	if err != nil {
		return model.ParkingSession{}, eris.Wrapf(err, "ledger: bad lng %q", parts[6])
	}

	s := model.ParkingSession{
		Email:    parts[0],
		FullName: parts[1],
		Location: parts[2],
		Start:    expiry.Add(-time.Duration(hours * float64(time.Hour))),
		Hours:    hours,
	}
	if lat != 0 || lng != 0 {
		s.Coord = &model.Coordinate{Lat: lat, Lng: lng}
	}
	return s, nil
}
