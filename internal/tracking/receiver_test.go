package tracking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyashahama/maison-checkout-notifier/internal/store"
)

var base = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

// tickingClock returns base, base+1s, base+2s … on successive calls.
func tickingClock() func() time.Time {
	var n atomic.Int64
	return func() time.Time {
		return base.Add(time.Duration(n.Add(1)-1) * time.Second)
	}
}

func newTestReceiver(st OpenRecorder) *Receiver {
	r := NewReceiver(st, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.now = tickingClock()
	return r
}

func seed(t *testing.T, mem *store.Memory, providerID string) store.SendRecord {
	t.Helper()
	rec, err := mem.InsertSendRecord(context.Background(), store.SendRecord{
		SendID:            uuid.New(),
		ProviderMessageID: providerID,
		UserID:            "u1",
		Recipient:         "ann@example.com",
		SentAt:            base.Add(-time.Hour),
	})
	require.NoError(t, err)
	return rec
}

func opened(id string) Event {
	return Event{Type: EventOpened, CreatedAt: "2026-06-01T08:59:00.000Z", Data: EventData{EmailID: id}}
}

func TestHandle_SequentialOpens(t *testing.T) {
	mem := store.NewMemory()
	rec := seed(t, mem, "re_1")
	r := newTestReceiver(mem)

	const n = 4
	for range n {
		assert.Equal(t, OutcomeApplied, r.Handle(context.Background(), opened("re_1")))
	}

	got, err := mem.GetSendRecord(context.Background(), rec.SendID)
	require.NoError(t, err)
	assert.Equal(t, n, got.OpenedCount)
	require.NotNil(t, got.OpenedAt)
	require.NotNil(t, got.LastOpenedAt)
	assert.True(t, base.Equal(*got.OpenedAt), "openedAt is the first processed event")
	assert.True(t, base.Add((n-1)*time.Second).Equal(*got.LastOpenedAt), "lastOpenedAt is the last processed event")
}

func TestHandle_ConcurrentOpens(t *testing.T) {
	mem := store.NewMemory()
	rec := seed(t, mem, "re_1")
	r := newTestReceiver(mem)

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Handle(context.Background(), opened("re_1"))
		}()
	}
	wg.Wait()

	got, err := mem.GetSendRecord(context.Background(), rec.SendID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.OpenedCount)
	require.NotNil(t, got.OpenedAt)
	require.NotNil(t, got.LastOpenedAt)

	t0, t1 := base, base.Add(time.Second)
	assert.True(t, got.OpenedAt.Equal(t0) || got.OpenedAt.Equal(t1))
	assert.True(t, got.LastOpenedAt.Equal(t0) || got.LastOpenedAt.Equal(t1))
	assert.False(t, got.OpenedAt.Equal(*got.LastOpenedAt), "each event sets its own time; only the first sets openedAt")
}

func TestHandle_OpenForUnknownMessage(t *testing.T) {
	mem := store.NewMemory()
	rec := seed(t, mem, "re_known")
	r := newTestReceiver(mem)

	assert.Equal(t, OutcomeUnmatched, r.Handle(context.Background(), opened("re_unknown")))
	assert.Equal(t, OutcomeUnmatched, r.Handle(context.Background(), opened("")))

	got, err := mem.GetSendRecord(context.Background(), rec.SendID)
	require.NoError(t, err)
	assert.Zero(t, got.OpenedCount)
	assert.Nil(t, got.OpenedAt)
}

func TestHandle_RecordWithoutProviderIDIsNeverMatched(t *testing.T) {
	mem := store.NewMemory()
	rec := seed(t, mem, "")
	r := newTestReceiver(mem)

	assert.Equal(t, OutcomeUnmatched, r.Handle(context.Background(), opened("")))

	got, err := mem.GetSendRecord(context.Background(), rec.SendID)
	require.NoError(t, err)
	assert.Zero(t, got.OpenedCount)
}

func TestHandle_NonOpenEventsOnlyLog(t *testing.T) {
	mem := store.NewMemory()
	rec := seed(t, mem, "re_1")
	r := newTestReceiver(mem)

	for _, typ := range []EventType{EventSent, EventDelivered, EventClicked, EventBounced, EventComplained} {
		out := r.Handle(context.Background(), Event{Type: typ, Data: EventData{EmailID: "re_1"}})
		assert.Equal(t, OutcomeLogged, out, typ)
	}
	assert.Equal(t, OutcomeUnknown, r.Handle(context.Background(), Event{Type: "email.delivery_delayed"}))

	got, err := mem.GetSendRecord(context.Background(), rec.SendID)
	require.NoError(t, err)
	assert.Zero(t, got.OpenedCount)
	assert.Equal(t, rec.UpdatedAt, got.UpdatedAt)
}

type brokenStore struct{}

func (brokenStore) RecordOpenByProviderID(context.Context, string, time.Time) (store.SendRecord, error) {
	return store.SendRecord{}, errors.New("connection reset")
}

func (brokenStore) RecordOpenBySendID(context.Context, uuid.UUID, time.Time) (store.SendRecord, error) {
	return store.SendRecord{}, errors.New("connection reset")
}

func TestHandle_StoreErrorIsSwallowed(t *testing.T) {
	r := newTestReceiver(brokenStore{})
	assert.Equal(t, OutcomeFailed, r.Handle(context.Background(), opened("re_1")))
	assert.Equal(t, OutcomeFailed, r.RecordPixelOpen(context.Background(), uuid.New()))
}

func TestHandle_CancelledRequestStillApplies(t *testing.T) {
	mem := store.NewMemory()
	rec := seed(t, mem, "re_1")
	r := newTestReceiver(mem)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, OutcomeApplied, r.Handle(ctx, opened("re_1")))

	got, err := mem.GetSendRecord(context.Background(), rec.SendID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.OpenedCount)
}

func TestRecordPixelOpen(t *testing.T) {
	mem := store.NewMemory()
	rec := seed(t, mem, "")
	r := newTestReceiver(mem)

	assert.Equal(t, OutcomeApplied, r.RecordPixelOpen(context.Background(), rec.SendID))
	assert.Equal(t, OutcomeUnmatched, r.RecordPixelOpen(context.Background(), uuid.New()))

	got, err := mem.GetSendRecord(context.Background(), rec.SendID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.OpenedCount)
	require.NotNil(t, got.OpenedAt)
	assert.True(t, base.Equal(*got.OpenedAt))
}

func TestPixelAndWebhookOpensShareCounter(t *testing.T) {
	mem := store.NewMemory()
	rec := seed(t, mem, "re_1")
	r := newTestReceiver(mem)

	r.RecordPixelOpen(context.Background(), rec.SendID)
	r.Handle(context.Background(), opened("re_1"))

	got, err := mem.GetSendRecord(context.Background(), rec.SendID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.OpenedCount)
	assert.True(t, base.Equal(*got.OpenedAt))
	assert.True(t, base.Add(time.Second).Equal(*got.LastOpenedAt))
}
