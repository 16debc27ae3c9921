package order_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyashahama/maison-checkout-notifier/internal/order"
)

var (
	teeProduct = order.Product{ID: "p1", Name: "Tee", Price: 49}
	capProduct = order.Product{ID: "p2", Name: "Cap", Price: 19.5}
)

func TestCart_AddMergesSameVariant(t *testing.T) {
	t.Parallel()

	var c order.Cart
	c.Add(teeProduct, "M", "Black", 1)
	c.Add(teeProduct, "M", "Black", 2)
	c.Add(teeProduct, "L", "Black", 1)

	items := c.Items()
	require.Len(t, items, 2)
	assert.Equal(t, 3, items[0].Quantity)
	assert.Equal(t, "L", items[1].Size)
	assert.Equal(t, 4, c.TotalItems())
}

func TestCart_AddIgnoresNonPositiveQuantity(t *testing.T) {
	t.Parallel()

	var c order.Cart
	c.Add(teeProduct, "M", "Black", 0)
	c.Add(teeProduct, "M", "Black", -2)
	assert.Empty(t, c.Items())
}

func TestCart_UpdateQuantityAndRemove(t *testing.T) {
	t.Parallel()

	var c order.Cart
	c.Add(teeProduct, "M", "Black", 1)
	c.Add(capProduct, "One", "Red", 1)

	c.UpdateQuantity("p1", "M", "Black", 5)
	assert.Equal(t, 5, c.Items()[0].Quantity)

	c.UpdateQuantity("p2", "One", "Red", 0)
	require.Len(t, c.Items(), 1)
	assert.Equal(t, "p1", c.Items()[0].Product.ID)

	c.Remove("p1", "M", "Black")
	assert.Empty(t, c.Items())
}

func TestCart_ItemsReturnsCopy(t *testing.T) {
	t.Parallel()

	var c order.Cart
	c.Add(teeProduct, "M", "Black", 1)

	items := c.Items()
	items[0].Quantity = 99
	assert.Equal(t, 1, c.Items()[0].Quantity)
}

func TestAssemble(t *testing.T) {
	t.Parallel()

	var c order.Cart
	c.Add(teeProduct, "M", "Black", 2)
	c.Add(capProduct, "One", "Red", 1)

	p := order.Assemble(&c, "user-1")
	assert.Equal(t, "user-1", p.UserID)
	assert.Len(t, p.Items, 2)
	assert.InDelta(t, 117.5, p.TotalPrice, 1e-9)
	assert.Equal(t, order.TotalCents(p.Items), order.Cents(p.TotalPrice))

	c.Clear()
	assert.Len(t, p.Items, 2, "payload is a snapshot")
	assert.Zero(t, c.Total())
}
