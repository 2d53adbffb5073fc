// Package format holds the pure display and P&L helpers shared by the
// ledger engine and the HTTP layer. No side effects, no I/O.
package format

import (
	"strings"

	"btcpaper/internal/types"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PnL is the result of CalculatePnL.
type PnL struct {
	Amount  decimal.Decimal
	Percent decimal.Decimal
}

// CalculatePnL computes side-aware profit and loss for a filled quantity.
// A long gains when the price rises, a short gains when it falls. An entry
// price of zero yields a zero percentage instead of dividing by zero.
func CalculatePnL(side types.PositionSide, entry, exit, qty decimal.Decimal) PnL {
	diff := exit.Sub(entry)
	if side == types.PositionSideShort {
		diff = entry.Sub(exit)
	}
	pnl := diff.Mul(qty)

	var pct decimal.Decimal
	if !entry.IsZero() {
		pct = diff.Div(entry).Mul(hundred)
	}
	return PnL{Amount: pnl, Percent: pct}
}

// Currency renders a USD amount with two decimals and thousands grouping,
// e.g. 1234567.8 -> "$1,234,567.80".
func Currency(v decimal.Decimal) string {
	s := v.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	out := "$" + group(whole) + "." + frac
	if neg {
		out = "-" + out
	}
	return out
}

// Price renders a price with no decimals and thousands grouping,
// e.g. 50000 -> "$50,000".
func Price(v decimal.Decimal) string {
	s := v.Round(0).StringFixed(0)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	out := "$" + group(s)
	if neg {
		out = "-" + out
	}
	return out
}

func group(digits string) string {
	n := len(digits)
	if n <= 3 {
		return digits
	}
	var b strings.Builder
	head := n % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
