package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/lib/pq"

	"github.com/hyperledger-archives/quilt-sub000/pkg/conditions"
)

// uniqueViolation is the Postgres SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

const pgConditionSchema = `
CREATE TABLE IF NOT EXISTS conditions (
	id UUID PRIMARY KEY,
	uri TEXT NOT NULL UNIQUE,
	kind TEXT NOT NULL,
	cost BIGINT NOT NULL CHECK (cost >= 0),
	condition BYTEA NOT NULL,
	state TEXT NOT NULL,
	fulfillment BYTEA,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS conditions_state_created ON conditions (state, created_at);
`

func (s *PostgresStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, pgConditionSchema)
	return err
}

func (s *PostgresStore) Put(ctx context.Context, c conditions.Condition) (*Record, error) {
	rec, err := NewRecord(c, s.now())
	if err != nil {
		return nil, err
	}
	if rec.Cost > math.MaxInt64 {
		return nil, fmt.Errorf("store: cost %d exceeds column range", rec.Cost)
	}
	query := `INSERT INTO conditions (id, uri, kind, cost, condition, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = s.db.ExecContext(ctx, query,
		rec.ID, rec.URI, rec.Kind, int64(rec.Cost), rec.Condition, string(rec.State), rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return s.Get(ctx, rec.URI)
		}
		return nil, fmt.Errorf("failed to insert condition: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Get(ctx context.Context, uri string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, uri, kind, cost, condition, state, fulfillment, created_at, updated_at FROM conditions WHERE uri = $1",
		uri)
	return scanRecord(row)
}

func (s *PostgresStore) MarkFulfilled(ctx context.Context, uri string, fulfillment []byte) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE conditions SET state = $1, fulfillment = $2, updated_at = $3 WHERE uri = $4 AND state = $5",
		string(StateFulfilled), fulfillment, s.now().UTC(), uri, string(StatePending))
	if err != nil {
		return fmt.Errorf("failed to update condition: %w", err)
	}
	return settleUpdate(ctx, s, res, uri)
}

func (s *PostgresStore) ListPending(ctx context.Context, limit int) ([]*Record, error) {
	query := `SELECT id, uri, kind, cost, condition, state, fulfillment, created_at, updated_at
		FROM conditions WHERE state = $1 ORDER BY created_at ASC, uri ASC`
	args := []any{string(StatePending)}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanRecords(rows)
}

// ListByKinds returns pending records whose kind is in kinds.
func (s *PostgresStore) ListByKinds(ctx context.Context, kinds conditions.KindSet) ([]*Record, error) {
	names := make([]string, 0, kinds.Len())
	for _, k := range kinds.Kinds() {
		names = append(names, k.String())
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, uri, kind, cost, condition, state, fulfillment, created_at, updated_at
		FROM conditions WHERE state = $1 AND kind = ANY($2) ORDER BY created_at ASC, uri ASC`,
		string(StatePending), pq.Array(names))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanRecords(rows)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
