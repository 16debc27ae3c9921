package order

// Cart is an ordered set of line items keyed by (product id, size, colour).
// It is the client-side state the storefront assembles a checkout from; the
// zero value is an empty cart ready to use. A Cart is not safe for concurrent
// use.
type Cart struct {
	items []LineItem
}

func (c *Cart) indexOf(productID, size, color string) int {
	for i, item := range c.items {
		if item.Product.ID == productID && item.Size == size && item.Color == color {
			return i
		}
	}
	return -1
}

// Add puts qty units of product into the cart. Adding a product/size/colour
// combination that is already present increases its quantity instead of
// creating a second row. Non-positive quantities are ignored.
func (c *Cart) Add(product Product, size, color string, qty int) {
	if qty <= 0 {
		return
	}
	if i := c.indexOf(product.ID, size, color); i >= 0 {
		c.items[i].Quantity += qty
		return
	}
	c.items = append(c.items, LineItem{
		Product:  product,
		Quantity: qty,
		Size:     size,
		Color:    color,
	})
}

// Remove deletes the matching row, if any.
func (c *Cart) Remove(productID, size, color string) {
	i := c.indexOf(productID, size, color)
	if i < 0 {
		return
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
}

// UpdateQuantity sets the quantity of the matching row. A quantity of zero or
// less removes the row.
func (c *Cart) UpdateQuantity(productID, size, color string, qty int) {
	if qty <= 0 {
		c.Remove(productID, size, color)
		return
	}
	if i := c.indexOf(productID, size, color); i >= 0 {
		c.items[i].Quantity = qty
	}
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.items = nil
}

// Items returns a copy of the cart rows in insertion order.
func (c *Cart) Items() []LineItem {
	out := make([]LineItem, len(c.items))
	copy(out, c.items)
	return out
}

// TotalItems is the number of units across all rows.
func (c *Cart) TotalItems() int {
	n := 0
	for _, item := range c.items {
		n += item.Quantity
	}
	return n
}

// Total is the cart value as a currency amount.
func (c *Cart) Total() float64 {
	return float64(TotalCents(c.items)) / 100
}

// Assemble snapshots the cart into a checkout payload for userID.
func Assemble(c *Cart, userID string) Payload {
	return Payload{
		UserID:     userID,
		Items:      c.Items(),
		TotalPrice: c.Total(),
	}
}
