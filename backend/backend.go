// Package backend holds the clients the application delegates persistence
// and file storage to: a record store addressed by table and id, and an
// object store addressed by bucket and key.
//
// Clients are built once at startup and handed to the components that need
// them; nothing in this package is global.
package backend

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"
)

// ErrNotFound is returned when a record or object does not exist.
var ErrNotFound = errors.New("not found")

// ErrExists is returned by ObjectStore.Upload when the key is already taken.
var ErrExists = errors.New("already exists")

// Field names shared by every record.
const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
)

// Record is a single row of a table. Values are strings, string slices,
// times, numbers, booleans or nil.
type Record map[string]interface{}

// Clone returns a shallow copy of r with slices copied.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		switch s := v.(type) {
		case []string:
			out[k] = append([]string(nil), s...)
		case []interface{}:
			out[k] = append([]interface{}(nil), s...)
		default:
			out[k] = v
		}
	}
	return out
}

// String returns the string stored under key, or "" when absent.
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// StringPtr returns nil when key is absent, null or empty.
func (r Record) StringPtr(key string) *string {
	s, ok := r[key].(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}

// Strings returns the string slice stored under key. Stores that decode
// arrays generically ([]interface{}) are handled too.
func (r Record) Strings(key string) []string {
	switch v := r[key].(type) {
	case []string:
		return append([]string{}, v...)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{}
	}
}

// Time returns the time stored under key. RFC 3339 strings are parsed.
func (r Record) Time(key string) time.Time {
	switch v := r[key].(type) {
	case time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err == nil {
			return t
		}
	}
	return time.Time{}
}

// Op is a filter operator.
type Op int

const (
	// Eq matches records whose field equals the value.
	Eq Op = iota
	// ArrayContains matches records whose array field has an element equal
	// to the value.
	ArrayContains
)

func (o Op) String() string {
	switch o {
	case Eq:
		return "=="
	case ArrayContains:
		return "array-contains"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

type Filter struct {
	Field string
	Op    Op
	Value interface{}
}

// Query selects records. An empty OrderBy leaves the order to the store.
type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
}

// Where returns a copy of q with an extra filter.
func (q Query) Where(field string, op Op, value interface{}) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Op: op, Value: value})
	return q
}

// Matches reports whether rec satisfies every filter of q.
func (q Query) Matches(rec Record) bool {
	for _, f := range q.Filters {
		if !f.matches(rec) {
			return false
		}
	}
	return true
}

func (f Filter) matches(rec Record) bool {
	v, ok := rec[f.Field]
	switch f.Op {
	case Eq:
		return ok && reflect.DeepEqual(v, f.Value)
	case ArrayContains:
		switch arr := v.(type) {
		case []string:
			for _, item := range arr {
				if reflect.DeepEqual(item, f.Value) {
					return true
				}
			}
		case []interface{}:
			for _, item := range arr {
				if reflect.DeepEqual(item, f.Value) {
					return true
				}
			}
		}
	}
	return false
}

// RecordStore is a table/id addressed record store.
type RecordStore interface {
	// Get returns the record, or ErrNotFound.
	Get(ctx context.Context, table, id string) (Record, error)
	Select(ctx context.Context, table string, q Query) ([]Record, error)
	// Insert stores rec under rec["id"] (a new id when empty), stamps
	// created_at and returns the stored record.
	Insert(ctx context.Context, table string, rec Record) (Record, error)
	// Update merges fields into the record and returns the result.
	Update(ctx context.Context, table, id string, fields Record) (Record, error)
	Delete(ctx context.Context, table, id string) error
	Close() error
}

// ObjectStore is a bucket/key addressed blob store.
type ObjectStore interface {
	// Upload stores a new object. An existing key is never overwritten; the
	// call fails with ErrExists.
	Upload(ctx context.Context, bucket, key string, data []byte, contentType string) error
	Remove(ctx context.Context, bucket, key string) error
	// PublicURL derives the retrieval URL of an object. It does not check
	// that the object exists.
	PublicURL(bucket, key string) string
}
