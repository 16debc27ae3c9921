// Package client is the storefront side of the checkout trigger: it posts an
// assembled order payload to the notification service.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nyashahama/maison-checkout-notifier/internal/order"
)

const (
	defaultTimeout = 15 * time.Second
	checkoutPath   = "/api/checkout"
)

// APIError is a non-2xx answer from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("checkout api: status %d: %s", e.StatusCode, e.Message)
}

// CheckoutResponse is the success body of POST /api/checkout.
type CheckoutResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	SendID  string `json:"sendId"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Client calls the notification service.
type Client struct {
	http    *resty.Client
	baseURL string
}

// New returns a Client for baseURL, e.g. "http://localhost:8080".
func New(baseURL string) (*Client, error) {
	return NewWithClient(baseURL, resty.New())
}

// NewWithClient uses rc, forcing retries off: a retried checkout sends a
// second email.
func NewWithClient(baseURL string, rc *resty.Client) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errors.New("client: base url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("client: invalid base url: %w", err)
	}
	if rc == nil {
		return nil, errors.New("client: resty client is required")
	}
	if rc.GetClient().Timeout == 0 {
		rc.SetTimeout(defaultTimeout)
	}
	rc.SetRetryCount(0)

	return &Client{http: rc, baseURL: trimmed}, nil
}

// Checkout posts payload with token as the bearer credential and returns the
// send id.
func (c *Client) Checkout(ctx context.Context, token string, payload order.Payload) (string, error) {
	var ok CheckoutResponse
	var fail errorBody

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		SetResult(&ok).
		SetError(&fail).
		Post(c.baseURL + checkoutPath)
	if err != nil {
		return "", fmt.Errorf("client: checkout request: %w", err)
	}

	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		msg := fail.Error
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		return "", &APIError{StatusCode: resp.StatusCode(), Message: msg}
	}
	if !ok.Success || ok.SendID == "" {
		return "", fmt.Errorf("client: unexpected checkout response: %s", resp.String())
	}
	return ok.SendID, nil
}

// CheckoutCart assembles the cart for userID and posts it.
func (c *Client) CheckoutCart(ctx context.Context, token, userID string, cart *order.Cart) (string, error) {
	return c.Checkout(ctx, token, order.Assemble(cart, userID))
}
