// Package store persists SendRecords and reads user profiles. It translates
// db rows into domain values and driver errors into the sentinels below.
//
// Two implementations satisfy Repository: Store over Postgres and Memory for
// tests and local development. Components receive a Repository explicitly;
// nothing in this package is a process-wide singleton.
//
// Dependency rule: store imports db and order only.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/nyashahama/maison-checkout-notifier/internal/db"
)

// ─── ERRORS ──────────────────────────────────────────────────────────────────

var (
	// ErrNotFound is returned when no profile or SendRecord matches the key.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicate is returned by InsertSendRecord when the send id (or a
	// non-empty provider message id) is already recorded. The retry runner
	// treats it as success: an earlier attempt landed.
	ErrDuplicate = errors.New("store: send record already exists")
)

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// ─── INTERFACE ───────────────────────────────────────────────────────────────

// Repository is the persistence surface used by the checkout notifier, the
// delivery event receiver, and the record retry runner.
type Repository interface {
	GetProfile(ctx context.Context, userID string) (Profile, error)
	InsertSendRecord(ctx context.Context, rec SendRecord) (SendRecord, error)
	GetSendRecord(ctx context.Context, sendID uuid.UUID) (SendRecord, error)

	// RecordOpenByProviderID and RecordOpenBySendID increment OpenedCount,
	// set LastOpenedAt to at, and set OpenedAt to at only when it is unset.
	// Each call is a single atomic update.
	RecordOpenByProviderID(ctx context.Context, providerMessageID string, at time.Time) (SendRecord, error)
	RecordOpenBySendID(ctx context.Context, sendID uuid.UUID, at time.Time) (SendRecord, error)

	Ping(ctx context.Context) error
}

var (
	_ Repository = (*Store)(nil)
	_ Repository = (*Memory)(nil)
)

// ─── POSTGRES ────────────────────────────────────────────────────────────────

// Store is the Postgres-backed Repository.
type Store struct {
	// pool is the raw connection pool, used for readiness pings.
	pool *sql.DB
	q    db.Querier
}

// New creates a Store from a live connection pool. The pool must already be
// open and verified (db.Open does both).
func New(pool *sql.DB, q db.Querier) *Store {
	return &Store{pool: pool, q: q}
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.pool == nil {
		return errors.New("store: no connection pool")
	}
	return s.pool.PingContext(ctx)
}

func (s *Store) GetProfile(ctx context.Context, userID string) (Profile, error) {
	row, err := s.q.GetProfileByUserID(ctx, userID)
	if err != nil {
		return Profile{}, translate("get profile", err)
	}
	return profileFromRow(row), nil
}

// InsertSendRecord writes rec and returns the stored row. OpenedCount,
// OpenedAt and LastOpenedAt on rec are ignored: a new record is always
// unopened.
func (s *Store) InsertSendRecord(ctx context.Context, rec SendRecord) (SendRecord, error) {
	params, err := insertParams(rec)
	if err != nil {
		return SendRecord{}, err
	}
	row, err := s.q.InsertSendRecord(ctx, params)
	if err != nil {
		return SendRecord{}, translate("insert send record", err)
	}
	return recordFromRow(row)
}

func (s *Store) GetSendRecord(ctx context.Context, sendID uuid.UUID) (SendRecord, error) {
	row, err := s.q.GetSendRecordBySendID(ctx, sendID)
	if err != nil {
		return SendRecord{}, translate("get send record", err)
	}
	return recordFromRow(row)
}

func (s *Store) RecordOpenByProviderID(ctx context.Context, providerMessageID string, at time.Time) (SendRecord, error) {
	// A record without a provider id is terminal-unmatched; never match on "".
	if providerMessageID == "" {
		return SendRecord{}, ErrNotFound
	}
	row, err := s.q.RecordOpenByProviderMessageID(ctx, db.RecordOpenByProviderMessageIDParams{
		ProviderMessageID: providerMessageID,
		OpenedAt:          at.UTC(),
	})
	if err != nil {
		return SendRecord{}, translate("record open by provider id", err)
	}
	return recordFromRow(row)
}

func (s *Store) RecordOpenBySendID(ctx context.Context, sendID uuid.UUID, at time.Time) (SendRecord, error) {
	row, err := s.q.RecordOpenBySendID(ctx, db.RecordOpenBySendIDParams{
		SendID:   sendID,
		OpenedAt: at.UTC(),
	})
	if err != nil {
		return SendRecord{}, translate("record open by send id", err)
	}
	return recordFromRow(row)
}

// translate maps driver errors onto the package sentinels and prefixes the
// operation name.
func translate(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("store: %s: %w", op, ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("store: %s: %w", op, ErrDuplicate)
	}
	return fmt.Errorf("store: %s: %w", op, err)
}
