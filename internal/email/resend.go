package email

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/resend/resend-go/v3"
)

const defaultSendTimeout = 10 * time.Second

// ResendConfig configures the Resend-backed Sender.
type ResendConfig struct {
	APIKey string

	// BaseURL overrides the Resend API endpoint. Empty means the SDK default
	// (https://api.resend.com/).
	BaseURL string

	// Timeout bounds every submission, including connection setup and reading
	// the response. Default: 10s.
	Timeout time.Duration
}

// ResendSender is the concrete Sender backed by the Resend API.
type ResendSender struct {
	client *resend.Client
}

var _ Sender = (*ResendSender)(nil)

// NewResendSender returns a Sender that delivers email via Resend. The
// underlying HTTP client has a hard timeout and the SDK performs no retries.
func NewResendSender(cfg ResendConfig) (*ResendSender, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("email: resend api key is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}

	client := resend.NewCustomClient(&http.Client{Timeout: timeout}, cfg.APIKey)

	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		// ResolveReference drops the last path segment without a trailing slash.
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("email: parse resend base url: %w", err)
		}
		client.BaseURL = u
	}

	return &ResendSender{client: client}, nil
}

// Send implements Sender.
func (s *ResendSender) Send(ctx context.Context, m Message) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}

	req := &resend.SendEmailRequest{
		From:    m.From,
		To:      m.To,
		Subject: m.Subject,
		Html:    m.HTML,
		Text:    m.Text,
	}
	if len(m.Tags) > 0 {
		req.Tags = convertTags(m.Tags)
	}

	resp, err := s.client.Emails.SendWithContext(ctx, req)
	if err != nil {
		return "", fmt.Errorf("email: resend send: %w", err)
	}
	if resp == nil {
		return "", nil
	}

	return resp.Id, nil
}

// convertTags returns tags sorted by name so the request body is stable.
func convertTags(tags map[string]string) []resend.Tag {
	names := make([]string, 0, len(tags))
	for name := range tags {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]resend.Tag, 0, len(names))
	for _, name := range names {
		out = append(out, resend.Tag{Name: name, Value: tags[name]})
	}
	return out
}
