package db

import (
	"context"

	"github.com/google/uuid"
)

// Querier is every query this service runs. The store package and tests
// depend on the interface, never on *Queries directly.
type Querier interface {
	GetProfileByUserID(ctx context.Context, userID string) (Profile, error)
	InsertSendRecord(ctx context.Context, arg InsertSendRecordParams) (SendRecord, error)
	GetSendRecordBySendID(ctx context.Context, sendID uuid.UUID) (SendRecord, error)
	RecordOpenByProviderMessageID(ctx context.Context, arg RecordOpenByProviderMessageIDParams) (SendRecord, error)
	RecordOpenBySendID(ctx context.Context, arg RecordOpenBySendIDParams) (SendRecord, error)
}

var _ Querier = (*Queries)(nil)

const sendRecordColumns = `send_id, provider_message_id, user_id, recipient_email, recipient_name,
	subject, order_total, order_items, sent_at, opened_at, last_opened_at, opened_count,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSendRecord(row rowScanner) (SendRecord, error) {
	var r SendRecord
	err := row.Scan(
		&r.SendID,
		&r.ProviderMessageID,
		&r.UserID,
		&r.RecipientEmail,
		&r.RecipientName,
		&r.Subject,
		&r.OrderTotal,
		&r.OrderItems,
		&r.SentAt,
		&r.OpenedAt,
		&r.LastOpenedAt,
		&r.OpenedCount,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	return r, err
}

const getProfileByUserID = `-- name: GetProfileByUserID :one
SELECT user_id, name, email FROM profiles WHERE user_id = $1`

func (q *Queries) GetProfileByUserID(ctx context.Context, userID string) (Profile, error) {
	var p Profile
	err := q.db.QueryRowContext(ctx, getProfileByUserID, userID).Scan(&p.UserID, &p.Name, &p.Email)
	return p, err
}

const insertSendRecord = `-- name: InsertSendRecord :one
INSERT INTO send_records (
	send_id, provider_message_id, user_id, recipient_email, recipient_name,
	subject, order_total, order_items, sent_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + sendRecordColumns

func (q *Queries) InsertSendRecord(ctx context.Context, arg InsertSendRecordParams) (SendRecord, error) {
	row := q.db.QueryRowContext(ctx, insertSendRecord,
		arg.SendID,
		arg.ProviderMessageID,
		arg.UserID,
		arg.RecipientEmail,
		arg.RecipientName,
		arg.Subject,
		arg.OrderTotal,
		arg.OrderItems,
		arg.SentAt,
	)
	return scanSendRecord(row)
}

const getSendRecordBySendID = `-- name: GetSendRecordBySendID :one
SELECT ` + sendRecordColumns + ` FROM send_records WHERE send_id = $1`

func (q *Queries) GetSendRecordBySendID(ctx context.Context, sendID uuid.UUID) (SendRecord, error) {
	return scanSendRecord(q.db.QueryRowContext(ctx, getSendRecordBySendID, sendID))
}

// The open updates are a single statement so the row lock taken by UPDATE
// serialises concurrent opens: every caller increments the counter, and
// COALESCE lets only the first writer set opened_at.

const recordOpenByProviderMessageID = `-- name: RecordOpenByProviderMessageID :one
UPDATE send_records
SET opened_count   = opened_count + 1,
    opened_at      = COALESCE(opened_at, $2),
    last_opened_at = $2,
    updated_at     = now()
WHERE provider_message_id = $1
RETURNING ` + sendRecordColumns

func (q *Queries) RecordOpenByProviderMessageID(ctx context.Context, arg RecordOpenByProviderMessageIDParams) (SendRecord, error) {
	row := q.db.QueryRowContext(ctx, recordOpenByProviderMessageID, arg.ProviderMessageID, arg.OpenedAt)
	return scanSendRecord(row)
}

const recordOpenBySendID = `-- name: RecordOpenBySendID :one
UPDATE send_records
SET opened_count   = opened_count + 1,
    opened_at      = COALESCE(opened_at, $2),
    last_opened_at = $2,
    updated_at     = now()
WHERE send_id = $1
RETURNING ` + sendRecordColumns

func (q *Queries) RecordOpenBySendID(ctx context.Context, arg RecordOpenBySendIDParams) (SendRecord, error) {
	row := q.db.QueryRowContext(ctx, recordOpenBySendID, arg.SendID, arg.OpenedAt)
	return scanSendRecord(row)
}
