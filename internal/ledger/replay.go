package ledger

import (
	"fmt"

	"btcpaper/internal/model"

	"github.com/shopspring/decimal"
)

// ReplayBalance reconstructs a balance by folding a transaction history,
// oldest first, and verifies the before/after chain of every record along the
// way. It is a consistency check over the append-only ledger: for a healthy
// history the returned amount equals the stored balance.
func ReplayBalance(history []model.Transaction) (decimal.Decimal, error) {
	balance := decimal.Zero
	for _, txn := range history {
		if !txn.BalanceBefore.Equal(balance) {
			return decimal.Zero, fmt.Errorf("transaction %s: balance_before %s does not match running balance %s", txn.ID, txn.BalanceBefore, balance)
		}
		expected := balance.Add(txn.Amount)
		if !txn.BalanceAfter.Equal(expected) {
			return decimal.Zero, fmt.Errorf("transaction %s: balance_after %s does not match %s + %s", txn.ID, txn.BalanceAfter, balance, txn.Amount)
		}
		balance = expected
	}
	return balance, nil
}
