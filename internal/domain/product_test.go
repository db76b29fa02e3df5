package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProduct_IsAvailable(t *testing.T) {
	tests := []struct {
		name     string
		active   bool
		stock    int
		quantity int
		want     bool
	}{
		{"active with enough stock", true, 5, 3, true},
		{"active with exact stock", true, 3, 3, true},
		{"active with insufficient stock", true, 2, 3, false},
		{"inactive with stock", false, 10, 1, false},
		{"zero stock", true, 0, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Product{Active: tt.active, StockQuantity: tt.stock}
			assert.Equal(t, tt.want, p.IsAvailable(tt.quantity))
		})
	}
}

func TestProduct_DecrementStock(t *testing.T) {
	p := Product{Active: true, StockQuantity: 5}

	p.DecrementStock(2)
	assert.Equal(t, 3, p.StockQuantity)

	// Insufficient stock leaves the quantity unchanged.
	p.DecrementStock(4)
	assert.Equal(t, 3, p.StockQuantity)

	p.DecrementStock(3)
	assert.Equal(t, 0, p.StockQuantity)
}
