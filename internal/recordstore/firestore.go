package recordstore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/rotisserie/eris"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/slugwatch/citation-cli/internal/model"
)

// FirestoreStore implements Store on Cloud Firestore.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestore connects to the given project. credentialsFile may be empty
// to use application-default credentials.
func NewFirestore(ctx context.Context, projectID, credentialsFile string) (*FirestoreStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "firestore: connect")
	}
	return &FirestoreStore{client: client}, nil
}

// Migrate is a no-op: Firestore collections are created on first write.
func (s *FirestoreStore) Migrate(_ context.Context) error { return nil }

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

// mapFirestoreErr folds gRPC permission rejections into the package
// sentinel so callers can stage-skip without importing grpc.
func mapFirestoreErr(err error, op string) error {
	if err == nil {
		return nil
	}
	if status.Code(err) == codes.PermissionDenied {
		return eris.Wrapf(ErrPermissionDenied, "firestore: %s", op)
	}
	return eris.Wrapf(err, "firestore: %s", op)
}

// Document shapes as stored by the submission site.
type legacyDoc struct {
	Citation string `firestore:"citation"`
	Plate    string `firestore:"plate"`
}

type submissionDoc struct {
	Plate     string    `firestore:"plate"`
	Citation  string    `firestore:"citation"`
	Email     string    `firestore:"email"`
	FullName  string    `firestore:"name"`
	Timestamp time.Time `firestore:"timestamp"`
	Valid     *bool     `firestore:"valid"`
}

type sessionDoc struct {
	Email    string    `firestore:"email"`
	FullName string    `firestore:"name"`
	Location string    `firestore:"location"`
	Start    time.Time `firestore:"start"`
	Hours    float64   `firestore:"hours"`
	Lat      float64   `firestore:"lat"`
	Lng      float64   `firestore:"lng"`
}

func (s *FirestoreStore) LegacyQueue(ctx context.Context) ([]model.LegacyTicket, error) {
	iter := s.client.Collection(CollectionLegacyQueue).Documents(ctx)
	defer iter.Stop()

	var out []model.LegacyTicket
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, mapFirestoreErr(err, "stream legacy queue")
		}
		var doc legacyDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, eris.Wrapf(err, "firestore: decode legacy %s", snap.Ref.ID)
		}
		out = append(out, model.LegacyTicket{
			DocID:    snap.Ref.ID,
			Citation: doc.Citation,
			Plate:    doc.Plate,
		})
	}
	return out, nil
}

func (s *FirestoreStore) DeleteLegacy(ctx context.Context, docID string) error {
	_, err := s.client.Collection(CollectionLegacyQueue).Doc(docID).Delete(ctx)
	return mapFirestoreErr(err, "delete legacy "+docID)
}

func (s *FirestoreStore) Submissions(ctx context.Context) ([]model.Submission, error) {
	iter := s.client.Collection(CollectionSubmissions).Documents(ctx)
	defer iter.Stop()

	var out []model.Submission
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, mapFirestoreErr(err, "stream submissions")
		}
		var doc submissionDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, eris.Wrapf(err, "firestore: decode submission %s", snap.Ref.ID)
		}
		out = append(out, model.Submission{
			DocID:     snap.Ref.ID,
			Plate:     doc.Plate,
			Citation:  doc.Citation,
			Email:     doc.Email,
			FullName:  doc.FullName,
			Timestamp: doc.Timestamp,
			Valid:     doc.Valid,
		})
	}
	return out, nil
}

func (s *FirestoreStore) DeleteSubmission(ctx context.Context, docID string) error {
	_, err := s.client.Collection(CollectionSubmissions).Doc(docID).Delete(ctx)
	return mapFirestoreErr(err, "delete submission "+docID)
}

func (s *FirestoreStore) MarkSubmissionInvalid(ctx context.Context, docID string) error {
	_, err := s.client.Collection(CollectionSubmissions).Doc(docID).Update(ctx, []firestore.Update{
		{Path: "valid", Value: false},
	})
	return mapFirestoreErr(err, "mark submission invalid "+docID)
}

func (s *FirestoreStore) Sessions(ctx context.Context) ([]model.ParkingSession, error) {
	iter := s.client.Collection(CollectionSessions).Documents(ctx)
	defer iter.Stop()

	var out []model.ParkingSession
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, mapFirestoreErr(err, "stream sessions")
		}
		var doc sessionDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, eris.Wrapf(err, "firestore: decode session %s", snap.Ref.ID)
		}
		sess := model.ParkingSession{
			DocID:    snap.Ref.ID,
			Email:    doc.Email,
			FullName: doc.FullName,
			Location: doc.Location,
			Start:    doc.Start,
			Hours:    doc.Hours,
		}
		if doc.Lat != 0 || doc.Lng != 0 {
			sess.Coord = &model.Coordinate{Lat: doc.Lat, Lng: doc.Lng}
		}
		out = append(out, sess)
	}
	return out, nil
}

func (s *FirestoreStore) DeleteSession(ctx context.Context, docID string) error {
	_, err := s.client.Collection(CollectionSessions).Doc(docID).Delete(ctx)
	return mapFirestoreErr(err, "delete session "+docID)
}

// UpsertRoster merges by email. ArrayUnion gives the tickets-union
// semantics server-side, so concurrent upserts cannot clobber each other.
func (s *FirestoreStore) UpsertRoster(ctx context.Context, entry model.RosterEntry) error {
	tickets := make([]any, 0, len(entry.Tickets))
	for _, t := range entry.Tickets {
		tickets = append(tickets, model.CanonicalID(t))
	}
	_, err := s.client.Collection(CollectionRoster).Doc(entry.Email).Set(ctx, map[string]any{
		"name":         entry.FullName,
		"email":        entry.Email,
		"plate":        entry.Plate,
		"tickets":      firestore.ArrayUnion(tickets...),
		"last_updated": entry.LastUpdated,
	}, firestore.MergeAll)
	return mapFirestoreErr(err, "upsert roster "+entry.Email)
}
