// Package store persists conditions awaiting fulfillment and records the
// fulfillment that unlocked them.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hyperledger-archives/quilt-sub000/pkg/conditions"
)

var (
	// ErrNotFound is returned when no record exists for a URI.
	ErrNotFound = errors.New("store: condition not found")
	// ErrAlreadyFulfilled is returned when marking a fulfilled record again.
	ErrAlreadyFulfilled = errors.New("store: condition already fulfilled")
)

// State is the lifecycle state of a stored condition.
type State string

const (
	StatePending   State = "PENDING"
	StateFulfilled State = "FULFILLED"
)

// Record is a stored condition. URI is the lookup key.
type Record struct {
	ID          string    `json:"id"`
	URI         string    `json:"uri"`
	Kind        string    `json:"kind"`
	Cost        uint64    `json:"cost"`
	Condition   []byte    `json:"condition"`
	State       State     `json:"state"`
	Fulfillment []byte    `json:"fulfillment,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store persists condition records.
type Store interface {
	// Put stores c as pending. Storing a condition that already exists
	// returns the existing record.
	Put(ctx context.Context, c conditions.Condition) (*Record, error)
	Get(ctx context.Context, uri string) (*Record, error)
	// MarkFulfilled moves a pending record to fulfilled.
	MarkFulfilled(ctx context.Context, uri string, fulfillment []byte) error
	// ListPending returns up to limit pending records, oldest first.
	ListPending(ctx context.Context, limit int) ([]*Record, error)
	Close() error
}

// NewRecord builds a pending record for c.
func NewRecord(c conditions.Condition, now time.Time) (*Record, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: condition", conditions.ErrNilArgument)
	}
	encoded, err := conditions.WriteCondition(c)
	if err != nil {
		return nil, err
	}
	now = now.UTC()
	return &Record{
		ID:        uuid.NewString(),
		URI:       c.String(),
		Kind:      c.Kind().String(),
		Cost:      c.Cost(),
		Condition: encoded,
		State:     StatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// DecodeCondition parses the stored binary condition.
func (r *Record) DecodeCondition() (conditions.Condition, error) {
	return conditions.ReadCondition(r.Condition)
}

func (r *Record) clone() *Record {
	out := *r
	out.Condition = append([]byte(nil), r.Condition...)
	if r.Fulfillment != nil {
		out.Fulfillment = append([]byte(nil), r.Fulfillment...)
	}
	return &out
}
