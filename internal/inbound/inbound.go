// Package inbound logs messages the delivery service forwards from the
// store's inbound address. It keeps no state and never correlates inbound
// mail with sends.
package inbound

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/nyashahama/maison-checkout-notifier/internal/metrics"
)

// ExcerptLimit is the maximum number of runes of body logged per message.
const ExcerptLimit = 500

var ErrInvalidPayload = errors.New("inbound: invalid payload")

// ─── PAYLOAD ──────────────────────────────────────────────────────────────────

// Message is an inbound email as posted by the delivery service.
type Message struct {
	From        string       `json:"from"`
	To          Addresses    `json:"to"`
	Subject     string       `json:"subject"`
	HTML        string       `json:"html,omitempty"`
	Text        string       `json:"text,omitempty"`
	ReplyTo     Addresses    `json:"reply_to,omitempty"`
	Headers     Headers      `json:"headers,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is attachment metadata; content is never logged.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Addresses accepts either a single address string or a list.
type Addresses []string

func (a *Addresses) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*a = nil
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*a = nil
		} else {
			*a = Addresses{s}
		}
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	*a = list
	return nil
}

func (a Addresses) String() string {
	return strings.Join(a, ", ")
}

// Headers accepts either an object of name → value or a list of
// {"name": ..., "value": ...} pairs.
type Headers map[string]string

func (h *Headers) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*h = nil
		return nil
	}
	if b[0] == '[' {
		var pairs []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		}
		if err := json.Unmarshal(b, &pairs); err != nil {
			return err
		}
		out := make(Headers, len(pairs))
		for _, p := range pairs {
			out[p.Name] = p.Value
		}
		*h = out
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*h = m
	return nil
}

// Parse decodes an inbound webhook body.
func Parse(body []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return m, nil
}

// ─── LOGGER ───────────────────────────────────────────────────────────────────

// Logger writes one structured record per inbound message.
type Logger struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	policy  *bluemonday.Policy
}

// NewLogger constructs a Logger. m may be nil.
func NewLogger(m *metrics.Metrics, logger *slog.Logger) *Logger {
	return &Logger{
		logger:  logger,
		metrics: m,
		policy:  bluemonday.StrictPolicy(),
	}
}

// Log records msg.
func (l *Logger) Log(ctx context.Context, msg Message) {
	attachments := make([]any, 0, len(msg.Attachments))
	for i, a := range msg.Attachments {
		attachments = append(attachments, slog.Group(strconv.Itoa(i),
			"filename", a.Filename,
			"content_type", a.ContentType,
			"size", a.Size,
		))
	}

	l.logger.InfoContext(ctx, "inbound: message received",
		"from", msg.From,
		"to", msg.To.String(),
		"subject", msg.Subject,
		"reply_to", msg.ReplyTo.String(),
		"excerpt", l.Excerpt(msg),
		slog.Int("attachment_count", len(msg.Attachments)),
		slog.Group("attachments", attachments...),
		slog.Group("headers", headerAttrs(msg.Headers)...),
	)
	l.metrics.IncInbound("logged")
}

// Excerpt returns up to ExcerptLimit runes of the text body, or of the HTML
// body with every tag stripped when there is no text body. Whitespace runs
// collapse to a single space.
func (l *Logger) Excerpt(msg Message) string {
	body := msg.Text
	if strings.TrimSpace(body) == "" {
		body = html.UnescapeString(l.policy.Sanitize(msg.HTML))
	}
	body = strings.Join(strings.Fields(body), " ")
	return truncate(body, ExcerptLimit)
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

func headerAttrs(h Headers) []any {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	attrs := make([]any, 0, len(names))
	for _, name := range names {
		attrs = append(attrs, slog.String(name, h[name]))
	}
	return attrs
}
