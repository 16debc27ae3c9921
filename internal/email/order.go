package email

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/nyashahama/maison-checkout-notifier/internal/order"
)

// DefaultRecipientName is used in the greeting when the profile has no name.
const DefaultRecipientName = "Valued Customer"

// OrderView is everything the order confirmation needs. Rendering is a pure
// function of this value: the caller supplies the year and tracking URL so
// repeated renders of the same view are byte-identical.
type OrderView struct {
	StoreName     string
	RecipientName string
	Items         []order.LineItem
	// Total is the declared order total, shown as-is in the total row.
	Total float64
	Year  int
	// TrackingURL is the open-tracking pixel source. Empty omits the pixel.
	TrackingURL string
}

// OrderRow is one rendered line of the order summary.
type OrderRow struct {
	Name     string
	Options  string
	Quantity int
	Subtotal string
}

// Line formats the row for the plain-text body, e.g.
// "Tee | M/Black | 2 | $98.00".
func (r OrderRow) Line() string {
	return fmt.Sprintf("%s | %s | %d | %s", r.Name, r.Options, r.Quantity, r.Subtotal)
}

// Rendered holds both bodies of the confirmation.
type Rendered struct {
	HTML string
	Text string
}

// OrderRows converts line items into display rows, preserving order.
func OrderRows(items []order.LineItem) []OrderRow {
	rows := make([]OrderRow, len(items))
	for i, item := range items {
		rows[i] = OrderRow{
			Name:     item.Product.Name,
			Options:  item.Options(),
			Quantity: item.Quantity,
			Subtotal: order.FormatCents(item.SubtotalCents()),
		}
	}
	return rows
}

// RenderOrderConfirmation renders the HTML and plain-text bodies.
func RenderOrderConfirmation(v OrderView) (Rendered, error) {
	name := strings.TrimSpace(v.RecipientName)
	if name == "" {
		name = DefaultRecipientName
	}

	data := orderTemplateData{
		StoreName:     v.StoreName,
		RecipientName: name,
		Rows:          OrderRows(v.Items),
		Total:         order.Format(v.Total),
		Year:          v.Year,
		TrackingURL:   v.TrackingURL,
	}

	var html bytes.Buffer
	if err := orderHTML.Execute(&html, data); err != nil {
		return Rendered{}, fmt.Errorf("email: render order html: %w", err)
	}

	return Rendered{
		HTML: html.String(),
		Text: orderText(data),
	}, nil
}

// ─── TEMPLATES ────────────────────────────────────────────────────────────────

type orderTemplateData struct {
	StoreName     string
	RecipientName string
	Rows          []OrderRow
	Total         string
	Year          int
	TrackingURL   string
}

func orderText(d orderTemplateData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Thank You, %s!\n\n", d.RecipientName)
	b.WriteString("Your order has been received and we're preparing it with care.\n\n")
	b.WriteString("Order Summary\n")
	b.WriteString("Item | Options | Qty | Price\n")
	for _, row := range d.Rows {
		b.WriteString(row.Line())
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "Total: %s\n\n", d.Total)
	b.WriteString("We'll send you another email once your order ships.\n")
	fmt.Fprintf(&b, "© %d %s. All rights reserved.\n", d.Year, d.StoreName)
	return b.String()
}

var orderHTML = template.Must(template.New("order").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1.0"></head>
<body style="font-family: -apple-system, 'Segoe UI', Roboto, Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
  <div style="background-color: #f9fafb; padding: 40px 20px; text-align: center; border-radius: 8px 8px 0 0;">
    <h1 style="margin: 0; font-size: 32px; font-weight: 600; color: #111;">{{.StoreName}}</h1>
  </div>
  <div style="background-color: #ffffff; padding: 40px 30px; border: 1px solid #e5e7eb; border-top: none;">
    <h2 style="margin-top: 0; font-size: 24px; font-weight: 600; color: #111;">Thank You, {{.RecipientName}}!</h2>
    <p style="font-size: 16px; color: #6b7280; margin-bottom: 30px;">Your order has been received and we're preparing it with care.</p>
    <h3 style="font-size: 18px; font-weight: 600; color: #111; margin-bottom: 20px;">Order Summary</h3>
    <table style="width: 100%; border-collapse: collapse; margin-bottom: 30px;">
      <thead>
        <tr style="background-color: #f9fafb;">
          <th style="padding: 12px; text-align: left;">Item</th>
          <th style="padding: 12px; text-align: center;">Options</th>
          <th style="padding: 12px; text-align: center;">Qty</th>
          <th style="padding: 12px; text-align: right;">Price</th>
        </tr>
      </thead>
      <tbody>
{{- range .Rows}}
        <tr>
          <td style="padding: 12px; border-bottom: 1px solid #e5e7eb;">{{.Name}}</td>
          <td style="padding: 12px; border-bottom: 1px solid #e5e7eb; text-align: center;">{{.Options}}</td>
          <td style="padding: 12px; border-bottom: 1px solid #e5e7eb; text-align: center;">{{.Quantity}}</td>
          <td style="padding: 12px; border-bottom: 1px solid #e5e7eb; text-align: right;">{{.Subtotal}}</td>
        </tr>
{{- end}}
      </tbody>
      <tfoot>
        <tr>
          <td colspan="3" style="padding: 16px 12px; text-align: right; font-weight: 600;">Total:</td>
          <td style="padding: 16px 12px; text-align: right; font-weight: 600; color: #111;">{{.Total}}</td>
        </tr>
      </tfoot>
    </table>
    <p style="font-size: 14px; color: #6b7280;">We'll send you another email once your order ships.</p>
    <p style="font-size: 14px; color: #6b7280;">If you have any questions, feel free to reply to this email.</p>
  </div>
  <div style="background-color: #f9fafb; padding: 20px; text-align: center; border-radius: 0 0 8px 8px; border: 1px solid #e5e7eb; border-top: none;">
    <p style="margin: 0; font-size: 12px; color: #9ca3af;">&copy; {{.Year}} {{.StoreName}}. All rights reserved.</p>
  </div>
{{- if .TrackingURL}}
  <img src="{{.TrackingURL}}" width="1" height="1" style="display:none" alt="">
{{- end}}
</body>
</html>
`))
