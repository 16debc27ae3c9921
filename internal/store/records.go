package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/nyashahama/maison-checkout-notifier/internal/db"
	"github.com/nyashahama/maison-checkout-notifier/internal/order"
)

// ─── DOMAIN TYPES ────────────────────────────────────────────────────────────

// Profile is the read-only view of a user the notifier needs. Either field
// may be empty.
type Profile struct {
	UserID string
	Name   string
	Email  string
}

// SendRecord is the durable record of one accepted order confirmation and
// its open-tracking state.
//
// Recipient, RecipientName, Subject, OrderTotal and OrderItems are snapshots
// taken at send time. Only the open fields change after insert.
type SendRecord struct {
	SendID uuid.UUID
	// ProviderMessageID is empty when the provider accepted the message
	// without returning an id. Such a record can never be matched by a
	// lifecycle event.
	ProviderMessageID string
	UserID            string
	Recipient         string
	RecipientName     string
	Subject           string
	OrderTotal        float64
	OrderItems        []order.LineItem
	SentAt            time.Time

	OpenedAt     *time.Time // first open; set once
	LastOpenedAt *time.Time // most recent open
	OpenedCount  int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Opened reports whether at least one open has been recorded.
func (r SendRecord) Opened() bool {
	return r.OpenedAt != nil
}

// ─── ROW CONVERSION ──────────────────────────────────────────────────────────

func profileFromRow(row db.Profile) Profile {
	return Profile{
		UserID: row.UserID,
		Name:   row.Name.String,
		Email:  row.Email.String,
	}
}

func insertParams(rec SendRecord) (db.InsertSendRecordParams, error) {
	items, err := json.Marshal(rec.OrderItems)
	if err != nil {
		return db.InsertSendRecordParams{}, fmt.Errorf("store: marshal order items: %w", err)
	}
	return db.InsertSendRecordParams{
		SendID: rec.SendID,
		ProviderMessageID: sql.NullString{
			String: rec.ProviderMessageID,
			Valid:  rec.ProviderMessageID != "",
		},
		UserID:         rec.UserID,
		RecipientEmail: rec.Recipient,
		RecipientName:  rec.RecipientName,
		Subject:        rec.Subject,
		OrderTotal:     rec.OrderTotal,
		OrderItems:     pqtype.NullRawMessage{RawMessage: items, Valid: true},
		SentAt:         rec.SentAt.UTC(),
	}, nil
}

func recordFromRow(row db.SendRecord) (SendRecord, error) {
	rec := SendRecord{
		SendID:            row.SendID,
		ProviderMessageID: row.ProviderMessageID.String,
		UserID:            row.UserID,
		Recipient:         row.RecipientEmail,
		RecipientName:     row.RecipientName,
		Subject:           row.Subject,
		OrderTotal:        row.OrderTotal,
		SentAt:            row.SentAt,
		OpenedAt:          nullTime(row.OpenedAt),
		LastOpenedAt:      nullTime(row.LastOpenedAt),
		OpenedCount:       int(row.OpenedCount),
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
	}
	if row.OrderItems.Valid && len(row.OrderItems.RawMessage) > 0 {
		if err := json.Unmarshal(row.OrderItems.RawMessage, &rec.OrderItems); err != nil {
			return SendRecord{}, fmt.Errorf("store: unmarshal order items for %s: %w", row.SendID, err)
		}
	}
	return rec, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
