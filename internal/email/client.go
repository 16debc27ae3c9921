// Package email defines the interface for transactional email delivery,
// renders the order confirmation, and provides a Resend-backed implementation.
package email

import (
	"context"
	"errors"
)

// Message is a fully rendered email ready for submission.
type Message struct {
	From    string
	To      []string
	Subject string
	HTML    string
	Text    string

	// Tags are attached to the provider-side message so lifecycle events can
	// be searched by them in the provider dashboard. Keys and values must be
	// ASCII letters, digits, underscores or dashes.
	Tags map[string]string
}

// Sender is the interface the checkout notifier uses to hand a message to the
// delivery service. Tests inject a stub that records calls without hitting
// the network.
type Sender interface {
	// Send submits m and returns the provider-assigned message id. The id may
	// be empty when the provider accepted the message but did not return one.
	// Implementations must not retry: a retried submission can reach the
	// recipient twice.
	Send(ctx context.Context, m Message) (string, error)
}

var (
	ErrNoRecipient = errors.New("email: message must have at least one recipient")
	ErrNoSubject   = errors.New("email: message must have a subject")
	ErrNoContent   = errors.New("email: message must have an HTML or text body")
)

// Validate reports the first structural problem with m.
func (m Message) Validate() error {
	switch {
	case len(m.To) == 0:
		return ErrNoRecipient
	case m.Subject == "":
		return ErrNoSubject
	case m.HTML == "" && m.Text == "":
		return ErrNoContent
	}
	return nil
}
