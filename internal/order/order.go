// Package order holds the checkout payload shared by the storefront and the
// notification service, and the cents arithmetic used to render and verify
// order totals.
//
// All money is carried as float64 on the wire (the storefront sends plain JSON
// numbers) and converted to integer cents before any arithmetic, so a line
// subtotal of 0.1 × 3 renders as $0.30 and never as $0.30000000000000004.
package order

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ─── WIRE TYPES ───────────────────────────────────────────────────────────────

// Product is the subset of a catalog product the pipeline consumes. The
// storefront sends the full catalog object; unknown fields are ignored.
type Product struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// LineItem is one cart row: a product in a given size and colour.
type LineItem struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
	Size     string  `json:"size"`
	Color    string  `json:"color"`
}

// Payload is the checkout trigger posted by the storefront.
type Payload struct {
	UserID     string     `json:"userId"`
	Items      []LineItem `json:"items"`
	TotalPrice float64    `json:"totalPrice"`
}

// ─── ERRORS ──────────────────────────────────────────────────────────────────

var (
	ErrNoItems         = errors.New("order: at least one line item is required")
	ErrInvalidQuantity = errors.New("order: quantity must be positive")
	ErrNegativePrice   = errors.New("order: price must not be negative")
	ErrMissingProduct  = errors.New("order: product id and name are required")
	ErrOrderTooLarge   = errors.New("order: order exceeds the maximum amount")
)

// ─── LIMITS ──────────────────────────────────────────────────────────────────

const (
	// MaxQuantity bounds a single line item.
	MaxQuantity = 10_000

	// MaxTotalCents is the largest order total the send record can store
	// (order_total NUMERIC(12,2)): $9,999,999,999.99. Unit prices and line
	// subtotals are bounded by it too.
	MaxTotalCents int64 = 999_999_999_999
)

// ─── VALIDATION ──────────────────────────────────────────────────────────────

// Validate checks the line items of a checkout. The returned error wraps one
// of the sentinels above and names the offending item by index.
func Validate(items []LineItem) error {
	if len(items) == 0 {
		return ErrNoItems
	}

	for i, item := range items {
		if strings.TrimSpace(item.Product.ID) == "" || strings.TrimSpace(item.Product.Name) == "" {
			return fmt.Errorf("item %d: %w", i, ErrMissingProduct)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("item %d (%s): %w", i, item.Product.ID, ErrInvalidQuantity)
		}
		if item.Product.Price < 0 || math.IsNaN(item.Product.Price) || math.IsInf(item.Product.Price, 0) {
			return fmt.Errorf("item %d (%s): %w", i, item.Product.ID, ErrNegativePrice)
		}
		if item.Quantity > MaxQuantity {
			return fmt.Errorf("item %d (%s): quantity above %d: %w", i, item.Product.ID, MaxQuantity, ErrOrderTooLarge)
		}
		if Cents(item.Product.Price) > MaxTotalCents {
			return fmt.Errorf("item %d (%s): %w", i, item.Product.ID, ErrOrderTooLarge)
		}
	}

	// Each subtotal is at most MaxTotalCents × MaxQuantity and the running
	// total stops at the first excess, so neither can overflow int64.
	var total int64
	for i, item := range items {
		total += item.SubtotalCents()
		if total > MaxTotalCents {
			return fmt.Errorf("item %d (%s): total above %s: %w", i, item.Product.ID, FormatCents(MaxTotalCents), ErrOrderTooLarge)
		}
	}

	return nil
}

// ─── MONEY ───────────────────────────────────────────────────────────────────

// Cents converts a currency amount to integer cents, rounding half away from
// zero. Amounts outside the int64 range saturate; NaN is 0.
func Cents(amount float64) int64 {
	c := math.Round(amount * 100)
	switch {
	case math.IsNaN(c):
		return 0
	case c >= math.MaxInt64:
		return math.MaxInt64
	case c <= math.MinInt64:
		return math.MinInt64
	}
	return int64(c)
}

// SubtotalCents is unit price × quantity in cents. Only items that passed
// Validate are guaranteed not to overflow.
func (li LineItem) SubtotalCents() int64 {
	return Cents(li.Product.Price) * int64(li.Quantity)
}

// Options renders the size/colour pair the way the confirmation email shows
// it, e.g. "M/Black".
func (li LineItem) Options() string {
	return li.Size + "/" + li.Color
}

// TotalCents sums the line subtotals.
func TotalCents(items []LineItem) int64 {
	var total int64
	for _, item := range items {
		total += item.SubtotalCents()
	}
	return total
}

// FormatCents renders cents as "$1234.50". Negative values get a leading
// minus sign before the currency symbol.
func FormatCents(c int64) string {
	sign := ""
	u := uint64(c)
	if c < 0 {
		sign = "-"
		u = -u // two's complement; exact for math.MinInt64
	}
	return fmt.Sprintf("%s$%d.%02d", sign, u/100, u%100)
}

// Format renders a currency amount with two decimal places.
func Format(amount float64) string {
	return FormatCents(Cents(amount))
}
