package backend

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	tbl        TEXT    NOT NULL,
	id         TEXT    NOT NULL,
	created_at INTEGER NOT NULL,
	data       TEXT    NOT NULL,
	UNIQUE (tbl, id)
);
CREATE INDEX IF NOT EXISTS records_tbl_created ON records (tbl, created_at);
`

var fieldName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// SQLiteStore keeps records of every table as JSON documents in a single
// SQLite table. Filters run through the JSON1 functions.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (and creates) the database at path. Use ":memory:"
// for a throwaway store.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, table, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, data FROM records WHERE tbl = ? AND id = ?`, table, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", table, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", table, id, err)
	}
	return rec, nil
}

func (s *SQLiteStore) Select(ctx context.Context, table string, q Query) ([]Record, error) {
	var (
		where = []string{"tbl = ?"}
		args  = []interface{}{table}
	)
	for _, f := range q.Filters {
		if !fieldName.MatchString(f.Field) {
			return nil, fmt.Errorf("invalid field name %q", f.Field)
		}
		switch f.Op {
		case Eq:
			if f.Field == FieldID {
				where = append(where, "id = ?")
			} else {
				where = append(where, "json_extract(data, ?) = ?")
				args = append(args, "$."+f.Field)
			}
			args = append(args, f.Value)
		case ArrayContains:
			where = append(where, "EXISTS (SELECT 1 FROM json_each(data, ?) WHERE json_each.value = ?)")
			args = append(args, "$."+f.Field, f.Value)
		default:
			return nil, fmt.Errorf("unsupported operator %s", f.Op)
		}
	}

	order := "seq ASC"
	if q.OrderBy != "" {
		if !fieldName.MatchString(q.OrderBy) {
			return nil, fmt.Errorf("invalid order field %q", q.OrderBy)
		}
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		col := "json_extract(data, '$." + q.OrderBy + "')"
		if q.OrderBy == FieldCreatedAt {
			col = "created_at"
		}
		order = fmt.Sprintf("%s %s, seq %s", col, dir, dir)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, data FROM records WHERE `+strings.Join(where, " AND ")+` ORDER BY `+order,
		args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("select %s: %w", table, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Insert(ctx context.Context, table string, rec Record) (Record, error) {
	stored := rec.Clone()
	id := stored.String(FieldID)
	if id == "" {
		id = uuid.New().String()
	}
	created := s.now()
	data, err := encodeData(stored)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (tbl, id, created_at, data) VALUES (?, ?, ?, ?)`,
		table, id, created.UnixNano(), data)
	if err != nil {
		return nil, fmt.Errorf("insert %s/%s: %w", table, id, err)
	}
	stored[FieldID] = id
	stored[FieldCreatedAt] = created
	return stored, nil
}

func (s *SQLiteStore) Update(ctx context.Context, table, id string, fields Record) (Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", table, id, err)
	}
	defer tx.Rollback()

	rec, err := scanRecord(tx.QueryRowContext(ctx,
		`SELECT id, created_at, data FROM records WHERE tbl = ? AND id = ?`, table, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", table, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", table, id, err)
	}

	for k, v := range fields {
		if k == FieldID || k == FieldCreatedAt {
			continue
		}
		rec[k] = v
	}
	data, err := encodeData(rec)
	if err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", table, id, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE records SET data = ? WHERE tbl = ? AND id = ?`, data, table, id); err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", table, id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", table, id, err)
	}
	return rec, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, table, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE tbl = ? AND id = ?`, table, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", table, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s/%s: %w", table, id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		id      string
		created int64
		data    string
	)
	if err := row.Scan(&id, &created, &data); err != nil {
		return nil, err
	}
	rec := Record{}
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", id, err)
	}
	rec[FieldID] = id
	rec[FieldCreatedAt] = time.Unix(0, created).UTC()
	return rec, nil
}

// encodeData serialises everything but the columns stored on their own.
func encodeData(rec Record) (string, error) {
	doc := make(map[string]interface{}, len(rec))
	for k, v := range rec {
		if k == FieldID || k == FieldCreatedAt {
			continue
		}
		doc[k] = v
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
