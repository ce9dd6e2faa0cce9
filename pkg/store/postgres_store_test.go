package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger-archives/quilt-sub000/pkg/conditions"
)

var recordColumns = []string{"id", "uri", "kind", "cost", "condition", "state", "fulfillment", "created_at", "updated_at"}

func TestPostgresStore_Put(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer func() { _ = db.Close() }()

	s := NewPostgresStore(db)
	cond := conditions.NewPreimageCondition([]byte("abc"))

	mock.ExpectExec("INSERT INTO conditions").
		WithArgs(sqlmock.AnyArg(), cond.String(), "preimage-sha-256", int64(3), sqlmock.AnyArg(), "PENDING", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	rec, err := s.Put(context.Background(), cond)
	require.NoError(t, err)
	assert.Equal(t, cond.String(), rec.URI)
	assert.Equal(t, StatePending, rec.State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PutDuplicateReturnsExisting(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewPostgresStore(db)
	cond := conditions.NewPreimageCondition([]byte("abc"))
	encoded, err := conditions.WriteCondition(cond)
	require.NoError(t, err)
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO conditions").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectQuery("SELECT id, uri").
		WithArgs(cond.String()).
		WillReturnRows(sqlmock.NewRows(recordColumns).
			AddRow("6f1c2a4e-8d1b-4a8e-9d55-0e5d3c1f7a10", cond.String(), "preimage-sha-256", int64(3), encoded, "PENDING", nil, created, created))

	rec, err := s.Put(context.Background(), cond)
	require.NoError(t, err)
	assert.Equal(t, "6f1c2a4e-8d1b-4a8e-9d55-0e5d3c1f7a10", rec.ID)
	assert.True(t, created.Equal(rec.CreatedAt))
	assert.Nil(t, rec.Fulfillment)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PutOtherErrorsSurface(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("INSERT INTO conditions").
		WillReturnError(&pq.Error{Code: "23514", Message: "check constraint"})

	_, err = NewPostgresStore(db).Put(context.Background(), conditions.NewPreimageCondition(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert condition")
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT id, uri").
		WithArgs("ni:///missing").
		WillReturnRows(sqlmock.NewRows(recordColumns))

	_, err = NewPostgresStore(db).Get(context.Background(), "ni:///missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_MarkFulfilled(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewPostgresStore(db)
	uri := conditions.NewPreimageCondition(nil).String()
	ful := []byte{0xa0, 0x02, 0x80, 0x00}

	mock.ExpectExec("UPDATE conditions").
		WithArgs("FULFILLED", ful, sqlmock.AnyArg(), uri, "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.MarkFulfilled(context.Background(), uri, ful))

	now := time.Now().UTC()
	mock.ExpectExec("UPDATE conditions").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT id, uri").
		WithArgs(uri).
		WillReturnRows(sqlmock.NewRows(recordColumns).
			AddRow("id-1", uri, "preimage-sha-256", int64(0), []byte{0xa0}, "FULFILLED", ful, now, now))
	assert.ErrorIs(t, s.MarkFulfilled(context.Background(), uri, ful), ErrAlreadyFulfilled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListByKinds(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, uri").
		WithArgs("PENDING", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(recordColumns).
			AddRow("id-1", "ni:///a", "ed25519-sha-256", int64(131072), []byte{0xa4}, "PENDING", nil, now, now).
			AddRow("id-2", "ni:///b", "rsa-sha-256", int64(65536), []byte{0xa3}, "PENDING", nil, now, now))

	recs, err := NewPostgresStore(db).ListByKinds(context.Background(),
		conditions.NewKindSet(conditions.Ed25519Sha256, conditions.RsaSha256))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, uint64(131072), recs[0].Cost)
	assert.Equal(t, "rsa-sha-256", recs[1].Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListPendingLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT id, uri").
		WithArgs("PENDING", 5).
		WillReturnRows(sqlmock.NewRows(recordColumns))

	recs, err := NewPostgresStore(db).ListPending(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.NoError(t, mock.ExpectationsWereMet())
}
