package backend

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore keeps every table in a Firestore collection of the same
// name. Document ids are the record ids.
type FirestoreStore struct {
	client *firestore.Client
	now    func() time.Time
}

// NewFirestoreStore connects to projectID. An empty credentialsFile falls
// back to application default credentials.
func NewFirestoreStore(ctx context.Context, projectID, credentialsFile string) (*FirestoreStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	return &FirestoreStore{client: client, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *FirestoreStore) Get(ctx context.Context, table, id string) (Record, error) {
	doc, err := s.client.Collection(table).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("%s/%s: %w", table, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", table, id, err)
	}
	return fromSnapshot(doc), nil
}

func (s *FirestoreStore) Select(ctx context.Context, table string, q Query) ([]Record, error) {
	query := s.client.Collection(table).Query
	for _, f := range q.Filters {
		query = query.Where(f.Field, f.Op.String(), f.Value)
	}
	if q.OrderBy != "" {
		dir := firestore.Asc
		if q.Desc {
			dir = firestore.Desc
		}
		query = query.OrderBy(q.OrderBy, dir)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var records []Record
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("select %s: %w", table, err)
		}
		records = append(records, fromSnapshot(doc))
	}
	return records, nil
}

func (s *FirestoreStore) Insert(ctx context.Context, table string, rec Record) (Record, error) {
	stored := rec.Clone()
	id := stored.String(FieldID)
	if id == "" {
		id = uuid.New().String()
		stored[FieldID] = id
	}
	stored[FieldCreatedAt] = s.now()

	// Create fails if the document already exists.
	if _, err := s.client.Collection(table).Doc(id).Create(ctx, map[string]interface{}(stored)); err != nil {
		return nil, fmt.Errorf("insert %s/%s: %w", table, id, err)
	}
	return stored, nil
}

func (s *FirestoreStore) Update(ctx context.Context, table, id string, fields Record) (Record, error) {
	ref := s.client.Collection(table).Doc(id)

	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		if k == FieldID || k == FieldCreatedAt {
			continue
		}
		updates = append(updates, firestore.Update{Path: k, Value: v})
	}
	if len(updates) > 0 {
		// Update, unlike Set with MergeAll, refuses to create a missing document.
		_, err := ref.Update(ctx, updates)
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%s/%s: %w", table, id, ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("update %s/%s: %w", table, id, err)
		}
	}
	return s.Get(ctx, table, id)
}

// Delete removes the document. Without the Exists precondition Firestore
// reports success for a missing document.
func (s *FirestoreStore) Delete(ctx context.Context, table, id string) error {
	_, err := s.client.Collection(table).Doc(id).Delete(ctx, firestore.Exists)
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%s/%s: %w", table, id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", table, id, err)
	}
	return nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func fromSnapshot(doc *firestore.DocumentSnapshot) Record {
	rec := Record(doc.Data())
	if rec == nil {
		rec = Record{}
	}
	rec[FieldID] = doc.Ref.ID
	return rec
}
