package format

import (
	"testing"

	"btcpaper/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCalculatePnL(t *testing.T) {
	tests := []struct {
		name    string
		side    types.PositionSide
		entry   string
		exit    string
		qty     string
		amount  string
		percent string
	}{
		{"long gain", types.PositionSideLong, "50000", "55000", "0.1", "500", "10"},
		{"long loss", types.PositionSideLong, "50000", "45000", "0.1", "-500", "-10"},
		{"short gain on drop", types.PositionSideShort, "50000", "45000", "0.1", "500", "10"},
		{"short loss on rise", types.PositionSideShort, "50000", "55000", "0.1", "-500", "-10"},
		{"flat", types.PositionSideLong, "50000", "50000", "1", "0", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pnl := CalculatePnL(tt.side, d(tt.entry), d(tt.exit), d(tt.qty))
			assert.True(t, pnl.Amount.Equal(d(tt.amount)), "amount: got %s", pnl.Amount)
			assert.True(t, pnl.Percent.Equal(d(tt.percent)), "percent: got %s", pnl.Percent)
		})
	}
}

func TestCalculatePnLZeroEntryPrice(t *testing.T) {
	pnl := CalculatePnL(types.PositionSideLong, decimal.Zero, d("100"), d("1"))
	assert.True(t, pnl.Amount.Equal(d("100")))
	assert.True(t, pnl.Percent.IsZero(), "zero entry must not divide")
}

func TestCurrency(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "$0.00"},
		{"1234567.8", "$1,234,567.80"},
		{"999.999", "$1,000.00"},
		{"-42.5", "-$42.50"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Currency(d(tt.in)))
	}
}

func TestPrice(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"50000", "$50,000"},
		{"999", "$999"},
		{"108250.4", "$108,250"},
		{"-1500", "-$1,500"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Price(d(tt.in)))
	}
}
