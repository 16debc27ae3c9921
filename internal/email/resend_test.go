package email_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyashahama/maison-checkout-notifier/internal/email"
)

// fakeResend is an httptest stand-in for the Resend /emails endpoint.
type fakeResend struct {
	srv    *httptest.Server
	calls  atomic.Int32
	mu     sync.Mutex
	last   map[string]any
	status int
	body   string
	delay  atomic.Int64 // nanoseconds
}

func newFakeResend(t *testing.T, status int, body string) *fakeResend {
	t.Helper()
	f := &fakeResend{status: status, body: body}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/emails") || r.Header.Get("Authorization") != "Bearer re_test" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.last = body
		f.mu.Unlock()
		if d := time.Duration(f.delay.Load()); d > 0 {
			time.Sleep(d)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(f.body))
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func testMessage() email.Message {
	return email.Message{
		From:    "MAISON <orders@maison.test>",
		To:      []string{"ann@example.com"},
		Subject: "Thank You for Your Order!",
		HTML:    "<p>hi</p>",
		Text:    "hi",
		Tags:    map[string]string{"send_id": "abc", "kind": "order_confirmation"},
	}
}

func TestResendSender_ReturnsProviderID(t *testing.T) {
	t.Parallel()

	fake := newFakeResend(t, http.StatusOK, `{"id":"re_msg_1"}`)
	sender, err := email.NewResendSender(email.ResendConfig{APIKey: "re_test", BaseURL: fake.srv.URL})
	require.NoError(t, err)

	id, err := sender.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, "re_msg_1", id)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, "Thank You for Your Order!", fake.last["subject"])
	assert.Equal(t, []any{"ann@example.com"}, fake.last["to"])
	assert.Equal(t, "<p>hi</p>", fake.last["html"])
}

func TestResendSender_ServerErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	fake := newFakeResend(t, http.StatusInternalServerError,
		`{"statusCode":500,"name":"internal_server_error","message":"upstream exploded"}`)
	sender, err := email.NewResendSender(email.ResendConfig{APIKey: "re_test", BaseURL: fake.srv.URL})
	require.NoError(t, err)

	_, err = sender.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.Equal(t, int32(1), fake.calls.Load(), "submission must not be retried")
}

func TestResendSender_TimeoutIsBounded(t *testing.T) {
	t.Parallel()

	fake := newFakeResend(t, http.StatusOK, `{"id":"late"}`)
	fake.delay.Store(int64(500 * time.Millisecond))
	sender, err := email.NewResendSender(email.ResendConfig{
		APIKey:  "re_test",
		BaseURL: fake.srv.URL,
		Timeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	start := time.Now()
	_, err = sender.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestResendSender_RejectsInvalidMessage(t *testing.T) {
	t.Parallel()

	fake := newFakeResend(t, http.StatusOK, `{"id":"x"}`)
	sender, err := email.NewResendSender(email.ResendConfig{APIKey: "re_test", BaseURL: fake.srv.URL})
	require.NoError(t, err)

	m := testMessage()
	m.To = nil
	_, err = sender.Send(context.Background(), m)
	require.ErrorIs(t, err, email.ErrNoRecipient)
	assert.Zero(t, fake.calls.Load())
}

func TestNewResendSender_RequiresAPIKey(t *testing.T) {
	t.Parallel()
	_, err := email.NewResendSender(email.ResendConfig{})
	require.Error(t, err)
}
