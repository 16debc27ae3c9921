package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// Profile is a row of profiles.
type Profile struct {
	UserID string
	Name   sql.NullString
	Email  sql.NullString
}

// SendRecord is a row of send_records.
type SendRecord struct {
	SendID            uuid.UUID
	ProviderMessageID sql.NullString
	UserID            string
	RecipientEmail    string
	RecipientName     string
	Subject           string
	OrderTotal        float64
	OrderItems        pqtype.NullRawMessage
	SentAt            time.Time
	OpenedAt          sql.NullTime
	LastOpenedAt      sql.NullTime
	OpenedCount       int32
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// InsertSendRecordParams are the columns written when a send is accepted.
type InsertSendRecordParams struct {
	SendID            uuid.UUID
	ProviderMessageID sql.NullString
	UserID            string
	RecipientEmail    string
	RecipientName     string
	Subject           string
	OrderTotal        float64
	OrderItems        pqtype.NullRawMessage
	SentAt            time.Time
}

// RecordOpenByProviderMessageIDParams identifies the record and the open time.
type RecordOpenByProviderMessageIDParams struct {
	ProviderMessageID string
	OpenedAt          time.Time
}

// RecordOpenBySendIDParams identifies the record and the open time.
type RecordOpenBySendIDParams struct {
	SendID   uuid.UUID
	OpenedAt time.Time
}
