package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubtotal(t *testing.T) {
	lines := []Line{
		{UnitAmount: 2500, Quantity: 4},
		{UnitAmount: 990, Quantity: 1},
		{UnitAmount: 0, Quantity: 10},
	}
	assert.Equal(t, int64(10990), Subtotal(lines))
	assert.Equal(t, int64(0), Subtotal(nil))
}

func TestTaxAmount(t *testing.T) {
	tests := []struct {
		name     string
		subtotal int64
		rateBps  int64
		want     int64
	}{
		{"no tax", 10000, 0, 0},
		{"negative rate ignored", 10000, -100, 0},
		{"flat ten percent", 10000, 1000, 1000},
		{"rounds half up", 333, 750, 25}, // 24.975 -> 25
		{"rounds down below half", 100, 10, 0},
		{"zero subtotal", 0, 750, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TaxAmount(tt.subtotal, tt.rateBps))
		})
	}
}

func TestAmountDue(t *testing.T) {
	assert.Equal(t, int64(10750), AmountDue(10000, 750))
}
