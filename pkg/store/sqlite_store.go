package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hyperledger-archives/quilt-sub000/pkg/conditions"

	_ "modernc.org/sqlite"
)

// sqliteTimeLayout keeps fractional seconds at a fixed width so that text
// order on created_at matches time order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store on SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore wraps db and creates the schema if needed.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS conditions (
        id TEXT PRIMARY KEY,
        uri TEXT NOT NULL UNIQUE,
        kind TEXT NOT NULL,
        cost INTEGER NOT NULL,
        condition BLOB NOT NULL,
        state TEXT NOT NULL,
        fulfillment BLOB,
        created_at TEXT NOT NULL,
        updated_at TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS conditions_state_created ON conditions (state, created_at);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteStore) Put(ctx context.Context, c conditions.Condition) (*Record, error) {
	rec, err := NewRecord(c, s.now())
	if err != nil {
		return nil, err
	}
	if rec.Cost > math.MaxInt64 {
		return nil, fmt.Errorf("store: cost %d exceeds column range", rec.Cost)
	}
	query := `INSERT OR IGNORE INTO conditions (
		id, uri, kind, cost, condition, state, fulfillment, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, NULL, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		rec.ID, rec.URI, rec.Kind, int64(rec.Cost), rec.Condition, string(rec.State),
		rec.CreatedAt.UTC().Format(sqliteTimeLayout), rec.UpdatedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert condition: %w", err)
	}
	return s.Get(ctx, rec.URI)
}

func (s *SQLiteStore) Get(ctx context.Context, uri string) (*Record, error) {
	query := `
        SELECT id, uri, kind, cost, condition, state, fulfillment, created_at, updated_at
        FROM conditions
        WHERE uri = ?`
	return scanRecord(s.db.QueryRowContext(ctx, query, uri))
}

func (s *SQLiteStore) MarkFulfilled(ctx context.Context, uri string, fulfillment []byte) error {
	query := `UPDATE conditions SET state = ?, fulfillment = ?, updated_at = ?
        WHERE uri = ? AND state = ?`
	res, err := s.db.ExecContext(ctx, query,
		string(StateFulfilled), fulfillment, s.now().UTC().Format(sqliteTimeLayout), uri, string(StatePending))
	if err != nil {
		return fmt.Errorf("failed to update condition: %w", err)
	}
	return settleUpdate(ctx, s, res, uri)
}

func (s *SQLiteStore) ListPending(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `
        SELECT id, uri, kind, cost, condition, state, fulfillment, created_at, updated_at
        FROM conditions
        WHERE state = ?
        ORDER BY created_at ASC, uri ASC
        LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, string(StatePending), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanRecords(rows)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord reads one row with created_at and updated_at either as text
// (SQLite) or as time.Time (Postgres).
func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec         Record
		cost        int64
		state       string
		fulfillment []byte
		createdAt   any
		updatedAt   any
	)
	err := row.Scan(&rec.ID, &rec.URI, &rec.Kind, &cost, &rec.Condition, &state, &fulfillment, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan condition: %w", err)
	}
	if cost < 0 {
		return nil, fmt.Errorf("store: negative cost %d for %s", cost, rec.URI)
	}
	rec.Cost = uint64(cost)
	rec.State = State(state)
	if len(fulfillment) > 0 {
		rec.Fulfillment = fulfillment
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

func scanRecords(rows *sql.Rows) ([]*Record, error) {
	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func parseTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return time.Parse(time.RFC3339Nano, t)
	case []byte:
		return time.Parse(time.RFC3339Nano, string(t))
	default:
		return time.Time{}, fmt.Errorf("store: unexpected timestamp type %T", v)
	}
}

// settleUpdate turns a zero-row conditional update into ErrNotFound or
// ErrAlreadyFulfilled.
func settleUpdate(ctx context.Context, s Store, res sql.Result, uri string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	rec, err := s.Get(ctx, uri)
	if err != nil {
		return err
	}
	if rec.State == StateFulfilled {
		return ErrAlreadyFulfilled
	}
	return fmt.Errorf("store: condition %s left in state %s", uri, rec.State)
}
