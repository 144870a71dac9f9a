// Package recordstore is the typed surface over the shared record store:
// the legacy transfer queue, user submissions, parking sessions, and the
// verified-user roster. Firestore is the production backend; sqlite and
// postgres exist for local development and self-hosted deployments.
package recordstore

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/slugwatch/citation-cli/internal/config"
	"github.com/slugwatch/citation-cli/internal/model"
)

// Collection names shared by every driver. The relational drivers map them
// to snake_case tables.
const (
	CollectionLegacyQueue = "legacyQueue"
	CollectionSubmissions = "pendingSubmissions"
	CollectionSessions    = "parkingSessions"
	CollectionRoster      = "userRoster"
)

// ErrPermissionDenied marks an operation rejected by the backend's access
// rules. The reconciliation cycle skips the affected stage and continues,
// so drivers must surface this condition losslessly.
var ErrPermissionDenied = errors.New("recordstore: permission denied")

// IsPermissionDenied reports whether err represents a backend access
// rejection.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// Store defines the persistence interface for the reconciliation cycle.
type Store interface {
	// Legacy transfer queue
	LegacyQueue(ctx context.Context) ([]model.LegacyTicket, error)
	DeleteLegacy(ctx context.Context, docID string) error

	// User submissions
	Submissions(ctx context.Context) ([]model.Submission, error)
	DeleteSubmission(ctx context.Context, docID string) error
	MarkSubmissionInvalid(ctx context.Context, docID string) error

	// Parking sessions
	Sessions(ctx context.Context) ([]model.ParkingSession, error)
	DeleteSession(ctx context.Context, docID string) error

	// Verified-user roster; merge by email, tickets unioned
	UpsertRoster(ctx context.Context, entry model.RosterEntry) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open constructs the Store named by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "firestore":
		return NewFirestore(ctx, cfg.ProjectID, cfg.CredentialsFile)
	case "sqlite":
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("recordstore: unknown driver %q", cfg.Driver)
	}
}

// unionTickets merges new ticket ids into existing ones, preserving the
// existing order and dropping duplicates, for the relational drivers.
// Firestore gets the same semantics from ArrayUnion.
func unionTickets(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, lst := range [][]string{existing, incoming} {
		for _, t := range lst {
			id := model.CanonicalID(t)
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
