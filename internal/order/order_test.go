package order_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyashahama/maison-checkout-notifier/internal/order"
)

func tee(qty int) order.LineItem {
	return order.LineItem{
		Product:  order.Product{ID: "p1", Name: "Tee", Price: 49},
		Quantity: qty,
		Size:     "M",
		Color:    "Black",
	}
}

// ─── Validate ────────────────────────────────────────────────────────────────

func TestValidate(t *testing.T) {
	t.Parallel()

	freeItem := tee(1)
	freeItem.Product.Price = 0

	tests := []struct {
		name    string
		items   []order.LineItem
		wantErr error
	}{
		{"valid", []order.LineItem{tee(2)}, nil},
		{"zero price is allowed", []order.LineItem{freeItem}, nil},
		{"empty", nil, order.ErrNoItems},
		{"zero quantity", []order.LineItem{tee(0)}, order.ErrInvalidQuantity},
		{"negative quantity", []order.LineItem{tee(-1)}, order.ErrInvalidQuantity},
		{"negative price", []order.LineItem{{Product: order.Product{ID: "p2", Name: "Cap", Price: -1}, Quantity: 1}}, order.ErrNegativePrice},
		{"missing product id", []order.LineItem{{Product: order.Product{Name: "Cap", Price: 1}, Quantity: 1}}, order.ErrMissingProduct},
		{"quantity that would wrap the subtotal", []order.LineItem{tee(1 << 62)}, order.ErrOrderTooLarge},
		{"quantity above the line limit", []order.LineItem{tee(order.MaxQuantity + 1)}, order.ErrOrderTooLarge},
		{"price above the storable total", []order.LineItem{{Product: order.Product{ID: "p3", Name: "Yacht", Price: 1e17}, Quantity: 1000}}, order.ErrOrderTooLarge},
		{"subtotal above the storable total", []order.LineItem{{Product: order.Product{ID: "p3", Name: "Watch", Price: 5e9}, Quantity: 2}}, order.ErrOrderTooLarge},
		{"sum above the storable total", []order.LineItem{
			{Product: order.Product{ID: "p4", Name: "Watch", Price: 6e9}, Quantity: 1},
			{Product: order.Product{ID: "p5", Name: "Ring", Price: 4e9}, Quantity: 1},
		}, order.ErrOrderTooLarge},
		{"largest storable total", []order.LineItem{{Product: order.Product{ID: "p6", Name: "Estate", Price: 9999999999.99}, Quantity: 1}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := order.Validate(tt.items)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// ─── Money ───────────────────────────────────────────────────────────────────

func TestSubtotalCents(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(9800), tee(2).SubtotalCents())

	dime := order.LineItem{Product: order.Product{ID: "d", Name: "Dime", Price: 0.1}, Quantity: 3}
	assert.Equal(t, int64(30), dime.SubtotalCents(), "float artefacts must not leak into cents")
}

func TestTotalCents(t *testing.T) {
	t.Parallel()

	items := []order.LineItem{
		tee(2),
		{Product: order.Product{ID: "p2", Name: "Cap", Price: 19.99}, Quantity: 3},
	}
	assert.Equal(t, int64(9800+5997), order.TotalCents(items))
	assert.Zero(t, order.TotalCents(nil))
}

func TestFormatCents(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "$98.00", order.FormatCents(9800))
	assert.Equal(t, "$0.05", order.FormatCents(5))
	assert.Equal(t, "$1234.50", order.FormatCents(123450))
	assert.Equal(t, "-$1.50", order.FormatCents(-150))
	assert.Equal(t, "$59.97", order.Format(59.97))
	assert.Equal(t, "-$92233720368547758.08", order.FormatCents(math.MinInt64))
}

func TestCents_SaturatesOutOfRange(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(math.MaxInt64), order.Cents(1e300))
	assert.Equal(t, int64(math.MinInt64), order.Cents(-1e300))
	assert.Zero(t, order.Cents(math.NaN()))
	assert.Equal(t, "$92233720368547758.07", order.Format(1e300))
}

func TestOptions(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "M/Black", tee(1).Options())
}
