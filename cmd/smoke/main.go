// Command smoke posts one checkout to a running notifier the way the
// storefront does: it signs a session token, builds a cart and prints the
// returned sendId. Useful against a local stack with RESEND_BASE_URL pointed
// at a mock, or with EMAIL_RECIPIENT_OVERRIDE set.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nyashahama/maison-checkout-notifier/internal/auth"
	"github.com/nyashahama/maison-checkout-notifier/internal/client"
	"github.com/nyashahama/maison-checkout-notifier/internal/order"
)

func main() {
	var (
		baseURL = flag.String("url", "http://localhost:8080", "notifier base URL")
		secret  = flag.String("secret", os.Getenv("JWT_SECRET"), "token signing secret (defaults to $JWT_SECRET)")
		userID  = flag.String("user", "", "profile user id to check out as")
		timeout = flag.Duration("timeout", 15*time.Second, "request timeout")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := run(*baseURL, *secret, *userID, *timeout); err != nil {
		logger.Error("smoke checkout failed", "error", err)
		os.Exit(1)
	}
}

func run(baseURL, secret, userID string, timeout time.Duration) error {
	if userID == "" {
		return errors.New("-user is required")
	}

	token, err := auth.Issue(secret, userID, 10*time.Minute)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	c, err := client.New(baseURL)
	if err != nil {
		return err
	}

	var cart order.Cart
	cart.Add(order.Product{ID: "linen-shirt", Name: "Linen Shirt", Price: 89}, "M", "Sand", 2)
	cart.Add(order.Product{ID: "canvas-tote", Name: "Canvas Tote", Price: 34.5}, "One Size", "Natural", 1)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	sendID, err := c.CheckoutCart(ctx, token, userID, &cart)
	if err != nil {
		return err
	}

	fmt.Printf("sent: items=%d total=%s sendId=%s\n", cart.TotalItems(), order.Format(cart.Total()), sendID)
	return nil
}
