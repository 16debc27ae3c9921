package tracking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	body := []byte(`{
		"type": "email.opened",
		"created_at": "2026-06-01T09:00:00.123Z",
		"data": {
			"email_id": "re_1",
			"from": "MAISON <orders@maison.test>",
			"to": ["ann@example.com"],
			"subject": "Thank You for Your Order!",
			"created_at": "2026-06-01T08:00:00.000Z",
			"tags": {"send_id": "abc"}
		}
	}`)

	ev, err := ParseEvent(body)
	require.NoError(t, err)
	assert.Equal(t, EventOpened, ev.Type)
	assert.True(t, ev.Type.Known())
	assert.Equal(t, "re_1", ev.Data.EmailID)
	assert.Equal(t, []string{"ann@example.com"}, ev.Data.To)
	assert.True(t, time.Date(2026, 6, 1, 9, 0, 0, 123_000_000, time.UTC).Equal(ev.DeclaredAt()))
}

func TestParseEvent_Invalid(t *testing.T) {
	for _, body := range []string{``, `not json`, `{"data":{"email_id":"x"}}`, `[]`} {
		_, err := ParseEvent([]byte(body))
		assert.ErrorIs(t, err, ErrInvalidPayload, "body %q", body)
	}
}

func TestDeclaredAt_FallsBackToDataCreatedAt(t *testing.T) {
	ev := Event{CreatedAt: "yesterday", Data: EventData{CreatedAt: "2026-06-01T08:00:00Z"}}
	assert.True(t, time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC).Equal(ev.DeclaredAt()))
	assert.True(t, Event{}.DeclaredAt().IsZero())
}

func TestEventTypeKnown(t *testing.T) {
	assert.False(t, EventType("email.delivery_delayed").Known())
	assert.True(t, EventComplained.Known())
}
