package recordstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/slugwatch/citation-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS legacy_queue (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	citation   TEXT NOT NULL,
	plate      TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pending_submissions (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	plate        TEXT NOT NULL DEFAULT '',
	citation     TEXT NOT NULL DEFAULT '',
	email        TEXT NOT NULL DEFAULT '',
	full_name    TEXT NOT NULL DEFAULT '',
	submitted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	valid        BOOLEAN
);

CREATE TABLE IF NOT EXISTS parking_sessions (
	id        TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	email     TEXT NOT NULL,
	full_name TEXT NOT NULL DEFAULT '',
	location  TEXT NOT NULL DEFAULT '',
	start_at  TIMESTAMPTZ NOT NULL,
	hours     DOUBLE PRECISION NOT NULL,
	lat       DOUBLE PRECISION NOT NULL DEFAULT 0,
	lng       DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS user_roster (
	email        TEXT PRIMARY KEY,
	full_name    TEXT NOT NULL DEFAULT '',
	plate        TEXT NOT NULL DEFAULT '',
	tickets      JSONB NOT NULL DEFAULT '[]',
	last_updated TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_submissions_submitted_at ON pending_submissions(submitted_at);
CREATE INDEX IF NOT EXISTS idx_sessions_start_at ON parking_sessions(start_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return mapPostgresErr(err, "migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// mapPostgresErr folds insufficient_privilege (42501) into the package
// sentinel, mirroring the firestore driver.
func mapPostgresErr(err error, op string) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "42501" {
		return eris.Wrapf(ErrPermissionDenied, "postgres: %s", op)
	}
	return eris.Wrapf(err, "postgres: %s", op)
}

func (s *PostgresStore) LegacyQueue(ctx context.Context) ([]model.LegacyTicket, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, citation, plate FROM legacy_queue ORDER BY created_at`)
	if err != nil {
		return nil, mapPostgresErr(err, "query legacy queue")
	}
	defer rows.Close()

	var out []model.LegacyTicket
	for rows.Next() {
		var t model.LegacyTicket
		if err := rows.Scan(&t.DocID, &t.Citation, &t.Plate); err != nil {
			return nil, eris.Wrap(err, "postgres: scan legacy ticket")
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate legacy queue")
}

func (s *PostgresStore) DeleteLegacy(ctx context.Context, docID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM legacy_queue WHERE id = $1`, docID)
	return mapPostgresErr(err, "delete legacy "+docID)
}

func (s *PostgresStore) Submissions(ctx context.Context) ([]model.Submission, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, plate, citation, email, full_name, submitted_at, valid
		 FROM pending_submissions ORDER BY submitted_at`)
	if err != nil {
		return nil, mapPostgresErr(err, "query submissions")
	}
	defer rows.Close()

	var out []model.Submission
	for rows.Next() {
		var sub model.Submission
		if err := rows.Scan(&sub.DocID, &sub.Plate, &sub.Citation, &sub.Email,
			&sub.FullName, &sub.Timestamp, &sub.Valid); err != nil {
			return nil, eris.Wrap(err, "postgres: scan submission")
		}
		out = append(out, sub)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate submissions")
}

func (s *PostgresStore) DeleteSubmission(ctx context.Context, docID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM pending_submissions WHERE id = $1`, docID)
	return mapPostgresErr(err, "delete submission "+docID)
}

func (s *PostgresStore) MarkSubmissionInvalid(ctx context.Context, docID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE pending_submissions SET valid = false WHERE id = $1`, docID)
	return mapPostgresErr(err, "mark submission invalid "+docID)
}

func (s *PostgresStore) Sessions(ctx context.Context) ([]model.ParkingSession, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, email, full_name, location, start_at, hours, lat, lng
		 FROM parking_sessions ORDER BY start_at`)
	if err != nil {
		return nil, mapPostgresErr(err, "query sessions")
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
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		if lat != 0 || lng != 0 {
			sess.Coord = &model.Coordinate{Lat: lat, Lng: lng}
		}
		out = append(out, sess)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate sessions")
}

func (s *PostgresStore) DeleteSession(ctx context.Context, docID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM parking_sessions WHERE id = $1`, docID)
	return mapPostgresErr(err, "delete session "+docID)
}

func (s *PostgresStore) UpsertRoster(ctx context.Context, entry model.RosterEntry) error {
	var existingJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT tickets FROM user_roster WHERE email = $1`, entry.Email).Scan(&existingJSON)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return mapPostgresErr(err, "read roster "+entry.Email)
	}

	var existing []string
	if len(existingJSON) > 0 {
		if err := json.Unmarshal(existingJSON, &existing); err != nil {
			return eris.Wrapf(err, "postgres: decode roster tickets %s", entry.Email)
		}
	}
	merged, err := json.Marshal(unionTickets(existing, entry.Tickets))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal roster tickets")
	}

	updated := entry.LastUpdated
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO user_roster (email, full_name, plate, tickets, last_updated)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (email) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			plate = EXCLUDED.plate,
			tickets = EXCLUDED.tickets,
			last_updated = EXCLUDED.last_updated`,
		entry.Email, entry.FullName, entry.Plate, merged, updated,
	)
	return mapPostgresErr(err, "upsert roster "+entry.Email)
}
