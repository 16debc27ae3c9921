package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Repository. A single mutex serialises every
// operation, which gives the open update the same atomicity as the Postgres
// statement.
type Memory struct {
	mu         sync.Mutex
	profiles   map[string]Profile
	records    map[uuid.UUID]*SendRecord
	byProvider map[string]uuid.UUID
	now        func() time.Time
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		profiles:   make(map[string]Profile),
		records:    make(map[uuid.UUID]*SendRecord),
		byProvider: make(map[string]uuid.UUID),
		now:        time.Now,
	}
}

// PutProfile inserts or replaces a profile.
func (m *Memory) PutProfile(p Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.UserID] = p
}

// Count returns the number of stored SendRecords.
func (m *Memory) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) GetProfile(_ context.Context, userID string) (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return Profile{}, fmt.Errorf("store: get profile: %w", ErrNotFound)
	}
	return p, nil
}

func (m *Memory) InsertSendRecord(_ context.Context, rec SendRecord) (SendRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[rec.SendID]; ok {
		return SendRecord{}, fmt.Errorf("store: insert send record: %w", ErrDuplicate)
	}
	if rec.ProviderMessageID != "" {
		if _, ok := m.byProvider[rec.ProviderMessageID]; ok {
			return SendRecord{}, fmt.Errorf("store: insert send record: %w", ErrDuplicate)
		}
	}

	now := m.now().UTC()
	stored := rec
	stored.OrderItems = slices.Clone(rec.OrderItems)
	stored.SentAt = rec.SentAt.UTC()
	stored.OpenedAt = nil
	stored.LastOpenedAt = nil
	stored.OpenedCount = 0
	stored.CreatedAt = now
	stored.UpdatedAt = now

	m.records[stored.SendID] = &stored
	if stored.ProviderMessageID != "" {
		m.byProvider[stored.ProviderMessageID] = stored.SendID
	}
	return stored.clone(), nil
}

func (m *Memory) GetSendRecord(_ context.Context, sendID uuid.UUID) (SendRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[sendID]
	if !ok {
		return SendRecord{}, fmt.Errorf("store: get send record: %w", ErrNotFound)
	}
	return rec.clone(), nil
}

func (m *Memory) RecordOpenByProviderID(_ context.Context, providerMessageID string, at time.Time) (SendRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if providerMessageID == "" {
		return SendRecord{}, ErrNotFound
	}
	id, ok := m.byProvider[providerMessageID]
	if !ok {
		return SendRecord{}, fmt.Errorf("store: record open by provider id: %w", ErrNotFound)
	}
	return m.recordOpen(id, at), nil
}

func (m *Memory) RecordOpenBySendID(_ context.Context, sendID uuid.UUID, at time.Time) (SendRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[sendID]; !ok {
		return SendRecord{}, fmt.Errorf("store: record open by send id: %w", ErrNotFound)
	}
	return m.recordOpen(sendID, at), nil
}

// recordOpen must be called with mu held and id present.
func (m *Memory) recordOpen(id uuid.UUID, at time.Time) SendRecord {
	rec := m.records[id]
	at = at.UTC()
	rec.OpenedCount++
	if rec.OpenedAt == nil {
		first := at
		rec.OpenedAt = &first
	}
	last := at
	rec.LastOpenedAt = &last
	rec.UpdatedAt = m.now().UTC()
	return rec.clone()
}

func (r *SendRecord) clone() SendRecord {
	c := *r
	c.OrderItems = slices.Clone(r.OrderItems)
	if r.OpenedAt != nil {
		t := *r.OpenedAt
		c.OpenedAt = &t
	}
	if r.LastOpenedAt != nil {
		t := *r.LastOpenedAt
		c.LastOpenedAt = &t
	}
	return c
}
