// Package money contains the pure monetary arithmetic shared by invoice
// creation, recurring generation and payment application.
//
// All amounts are int64 minor units (cents). Tax rates are basis points,
// so a 7.5% rate is 750. Integer minor units avoid the floating point
// accumulation error a float subtotal would pick up across many lines.
package money

// Line is one billable line: a frozen unit amount and a quantity.
type Line struct {
	UnitAmount int64
	Quantity   int64
}

// LineTotal returns unitAmount × quantity.
func LineTotal(unitAmount, quantity int64) int64 {
	return unitAmount * quantity
}

// Subtotal sums the line totals.
func Subtotal(lines []Line) int64 {
	var total int64
	for _, line := range lines {
		total += LineTotal(line.UnitAmount, line.Quantity)
	}
	return total
}

// TaxAmount applies a basis-point rate to a subtotal, rounding half up.
// A zero rate (no tax attached) yields zero.
func TaxAmount(subtotal, rateBps int64) int64 {
	if rateBps <= 0 || subtotal <= 0 {
		return 0
	}
	return (subtotal*rateBps + 5000) / 10000
}

// AmountDue is subtotal plus tax.
func AmountDue(subtotal, taxAmount int64) int64 {
	return subtotal + taxAmount
}
