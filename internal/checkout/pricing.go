package checkout

import "github.com/shopspring/decimal"

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Discount reduces the running total. Percentage discounts compound: each
// one is computed against the total remaining after the discounts before
// it, not against the original subtotal.
type Discount struct {
	Type        DiscountType
	Value       decimal.Decimal
	Description string
}

// LineItem is a priced item snapshot captured when the draft was created.
type LineItem struct {
	ID       int
	Name     string
	Price    decimal.Decimal
	Quantity int
}

var hundred = decimal.NewFromInt(100)

// Subtotal sums price x quantity over all items, exactly.
func Subtotal(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// ApplyDiscounts walks the discounts in order against a running total and
// clamps the result at zero. Negative discount values count as zero.
// Rounding happens at display time only; the running total stays exact.
func ApplyDiscounts(subtotal decimal.Decimal, discounts []Discount) decimal.Decimal {
	running := subtotal
	for _, d := range discounts {
		value := d.Value
		if value.IsNegative() {
			value = decimal.Zero
		}
		switch d.Type {
		case DiscountPercentage:
			running = running.Sub(running.Mul(value).Div(hundred))
		case DiscountFixed:
			running = running.Sub(value)
		}
	}
	if running.IsNegative() {
		return decimal.Zero
	}
	return running
}
