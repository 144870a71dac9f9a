package recordstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/slugwatch/citation-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS legacy_queue (
	id         TEXT PRIMARY KEY,
	citation   TEXT NOT NULL,
	plate      TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS pending_submissions (
	id           TEXT PRIMARY KEY,
	plate        TEXT NOT NULL DEFAULT '',
	citation     TEXT NOT NULL DEFAULT '',
	email        TEXT NOT NULL DEFAULT '',
	full_name    TEXT NOT NULL DEFAULT '',
	submitted_at DATETIME NOT NULL DEFAULT (datetime('now')),
	valid        INTEGER
);

CREATE TABLE IF NOT EXISTS parking_sessions (
	id        TEXT PRIMARY KEY,
	email     TEXT NOT NULL,
	full_name TEXT NOT NULL DEFAULT '',
	location  TEXT NOT NULL DEFAULT '',
	start_at  DATETIME NOT NULL,
	hours     REAL NOT NULL,
	lat       REAL NOT NULL DEFAULT 0,
	lng       REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS user_roster (
	email        TEXT PRIMARY KEY,
	full_name    TEXT NOT NULL DEFAULT '',
	plate        TEXT NOT NULL DEFAULT '',
	tickets      TEXT NOT NULL DEFAULT '[]',
	last_updated DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_submissions_submitted_at ON pending_submissions(submitted_at);
CREATE INDEX IF NOT EXISTS idx_sessions_start_at ON parking_sessions(start_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LegacyQueue(ctx context.Context) ([]model.LegacyTicket, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, citation, plate FROM legacy_queue ORDER BY created_at`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query legacy queue")
	}
	defer rows.Close()

	var out []model.LegacyTicket
	for rows.Next() {
		var t model.LegacyTicket
		if err := rows.Scan(&t.DocID, &t.Citation, &t.Plate); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan legacy ticket")
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate legacy queue")
}

func (s *SQLiteStore) DeleteLegacy(ctx context.Context, docID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM legacy_queue WHERE id = ?`, docID)
	return eris.Wrapf(err, "sqlite: delete legacy %s", docID)
}

func (s *SQLiteStore) Submissions(ctx context.Context) ([]model.Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, plate, citation, email, full_name, submitted_at, valid
		 FROM pending_submissions ORDER BY submitted_at`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query submissions")
	}
	defer rows.Close()

	var out []model.Submission
	for rows.Next() {
		var (
			sub   model.Submission
			valid sql.NullBool
		)
		if err := rows.Scan(&sub.DocID, &sub.Plate, &sub.Citation, &sub.Email,
			&sub.FullName, &sub.Timestamp, &valid); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan submission")
		}
		if valid.Valid {
			v := valid.Bool
			sub.Valid = &v
		}
		out = append(out, sub)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate submissions")
}

func (s *SQLiteStore) DeleteSubmission(ctx context.Context, docID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_submissions WHERE id = ?`, docID)
	return eris.Wrapf(err, "sqlite: delete submission %s", docID)
}

func (s *SQLiteStore) MarkSubmissionInvalid(ctx context.Context, docID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE pending_submissions SET valid = 0 WHERE id = ?`, docID)
	return eris.Wrapf(err, "sqlite: mark submission invalid %s", docID)
}

func (s *SQLiteStore) Sessions(ctx context.Context) ([]model.ParkingSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, email, full_name, location, start_at, hours, lat, lng
		 FROM parking_sessions ORDER BY start_at`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query sessions")
	}
	defer rows.Close()

	var out []model.ParkingSession
	for rows.Next() {
		var (
			sess     model.ParkingSession
			lat, lng float64
		)
		if err := rows.Scan(&sess.DocID, &sess.Email, &sess.FullName, &sess.Location,
			&sess.Start, &sess.Hours, &lat, &lng); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan session")
		}
		if lat != 0 || lng != 0 {
			sess.Coord = &model.Coordinate{Lat: lat, Lng: lng}
		}
		out = append(out, sess)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate sessions")
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, docID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM parking_sessions WHERE id = ?`, docID)
	return eris.Wrapf(err, "sqlite: delete session %s", docID)
}

// UpsertRoster merges by email; the ticket union is computed Go-side since
// SQLite has no array type. Tickets are stored as a JSON array.
func (s *SQLiteStore) UpsertRoster(ctx context.Context, entry model.RosterEntry) error {
	var existingJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT tickets FROM user_roster WHERE email = ?`, entry.Email).Scan(&existingJSON)
	if err != nil && err != sql.ErrNoRows {
		return eris.Wrapf(err, "sqlite: read roster %s", entry.Email)
	}

	var existing []string
	if existingJSON != "" {
		if err := json.Unmarshal([]byte(existingJSON), &existing); err != nil {
			return eris.Wrapf(err, "sqlite: decode roster tickets %s", entry.Email)
		}
	}
	merged, err := json.Marshal(unionTickets(existing, entry.Tickets))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal roster tickets")
	}

	updated := entry.LastUpdated
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_roster (email, full_name, plate, tickets, last_updated)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(email) DO UPDATE SET
			full_name = excluded.full_name,
			plate = excluded.plate,
			tickets = excluded.tickets,
			last_updated = excluded.last_updated`,
		entry.Email, entry.FullName, entry.Plate, string(merged), updated,
	)
	return eris.Wrapf(err, "sqlite: upsert roster %s", entry.Email)
}
