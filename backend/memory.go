package backend

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process RecordStore. Records do not survive a
// restart.
type MemoryStore struct {
	// Now stamps created_at on insert.
	Now func() time.Time

	mu     sync.Mutex
	seq    int64
	tables map[string]map[string]memRow
}

type memRow struct {
	seq int64
	rec Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Now:    func() time.Time { return time.Now().UTC() },
		tables: make(map[string]map[string]memRow),
	}
}

func (s *MemoryStore) Get(_ context.Context, table, id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.tables[table][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", table, id, ErrNotFound)
	}
	return row.rec.Clone(), nil
}

func (s *MemoryStore) Select(_ context.Context, table string, q Query) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []memRow
	for _, row := range s.tables[table] {
		if q.Matches(row.rec) {
			rows = append(rows, row)
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		if q.OrderBy != "" {
			a, b := rows[i].rec, rows[j].rec
			if c := compareValues(a[q.OrderBy], b[q.OrderBy]); c != 0 {
				if q.Desc {
					return c > 0
				}
				return c < 0
			}
		}
		if q.Desc {
			return rows[i].seq > rows[j].seq
		}
		return rows[i].seq < rows[j].seq
	})

	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.rec.Clone())
	}
	return out, nil
}

func (s *MemoryStore) Insert(_ context.Context, table string, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := rec.Clone()
	id := stored.String(FieldID)
	if id == "" {
		id = uuid.New().String()
		stored[FieldID] = id
	}
	if _, exists := s.tables[table][id]; exists {
		return nil, fmt.Errorf("%s/%s already exists", table, id)
	}
	stored[FieldCreatedAt] = s.Now()

	if s.tables[table] == nil {
		s.tables[table] = make(map[string]memRow)
	}
	s.seq++
	s.tables[table][id] = memRow{seq: s.seq, rec: stored}
	return stored.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, table, id string, fields Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.tables[table][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", table, id, ErrNotFound)
	}
	for k, v := range fields.Clone() {
		if k == FieldID || k == FieldCreatedAt {
			continue
		}
		row.rec[k] = v
	}
	s.tables[table][id] = row
	return row.rec.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, table, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tables[table][id]; !ok {
		return fmt.Errorf("%s/%s: %w", table, id, ErrNotFound)
	}
	delete(s.tables[table], id)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// compareValues orders times, strings and numbers. Mixed or unknown types
// compare equal.
func compareValues(a, b interface{}) int {
	switch x := a.(type) {
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	case string:
		if y, ok := b.(string); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
		}
	case int64:
		if y, ok := b.(int64); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
		}
	case float64:
		if y, ok := b.(float64); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
		}
	}
	return 0
}
