package ledger

import (
	"context"
	"sync"
	"testing"

	"btcpaper/internal/model"
	"btcpaper/internal/notify"
	"btcpaper/internal/store"
	"btcpaper/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T, checkShortMargin bool) (*Service, *store.Memory, model.Owner) {
	t.Helper()
	mem := store.NewMemory()
	notifier := notify.NewService(mem, zap.NewNop())
	svc := NewService(mem, notifier, checkShortMargin)
	return svc, mem, model.Owner{UserID: "u-1", PrivyUserID: "did:privy:u-1"}
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestWithdrawNeverDrivesBalanceNegative(t *testing.T) {
	svc, _, owner := newTestService(t, false)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, owner, dec(t, "100"), nil)
	require.NoError(t, err)

	_, err = svc.Withdraw(ctx, owner, dec(t, "150"), nil)
	require.ErrorIs(t, err, store.ErrInsufficientBalance)

	balance, err := svc.Balance(ctx, owner)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec(t, "100")), "balance must be unchanged after a rejected withdrawal, got %s", balance)

	// the rejected call must not leave a ledger entry
	txs, err := svc.TransactionHistory(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestOpenLongFeeAndMargin(t *testing.T) {
	ctx := context.Background()
	entry := "50000"
	qty := "0.1"

	t.Run("rejected at notional without fee", func(t *testing.T) {
		svc, _, owner := newTestService(t, false)
		_, err := svc.Deposit(ctx, owner, dec(t, "5000"), nil)
		require.NoError(t, err)

		_, err = svc.OpenPosition(ctx, owner, types.PositionSideLong, dec(t, entry), dec(t, qty))
		require.ErrorIs(t, err, store.ErrInsufficientBalance)
	})

	t.Run("succeeds at notional plus fee", func(t *testing.T) {
		svc, _, owner := newTestService(t, false)
		_, err := svc.Deposit(ctx, owner, dec(t, "5005"), nil)
		require.NoError(t, err)

		res, err := svc.OpenPosition(ctx, owner, types.PositionSideLong, dec(t, entry), dec(t, qty))
		require.NoError(t, err)
		assert.True(t, res.Balance.IsZero(), "expected zero balance, got %s", res.Balance)
		assert.True(t, res.Position.IsOpen)
		assert.Equal(t, types.PositionSideLong, res.Position.Side)
	})
}

func TestCloseLongRealizedPnL(t *testing.T) {
	svc, _, owner := newTestService(t, false)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, owner, dec(t, "10000"), nil)
	require.NoError(t, err)

	open, err := svc.OpenPosition(ctx, owner, types.PositionSideLong, dec(t, "50000"), dec(t, "0.1"))
	require.NoError(t, err)

	res, err := svc.ClosePosition(ctx, owner, open.Position.ID, dec(t, "55000"))
	require.NoError(t, err)

	assert.True(t, res.Trade.PnL.Equal(dec(t, "499.5")), "realized pnl: got %s", res.Trade.PnL)
	assert.True(t, res.Trade.Fee.Equal(dec(t, "0.5")), "fee: got %s", res.Trade.Fee)
	assert.True(t, res.Trade.PnLPercent.Equal(dec(t, "10")), "pnl percent: got %s", res.Trade.PnLPercent)
	// 10000 - 5005 margin + 499.5 realized
	assert.True(t, res.Balance.Equal(dec(t, "5494.5")), "balance: got %s", res.Balance)
}

func TestCloseShortGainsWhenPriceDrops(t *testing.T) {
	svc, _, owner := newTestService(t, false)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, owner, dec(t, "10000"), nil)
	require.NoError(t, err)

	open, err := svc.OpenPosition(ctx, owner, types.PositionSideShort, dec(t, "50000"), dec(t, "0.1"))
	require.NoError(t, err)

	res, err := svc.ClosePosition(ctx, owner, open.Position.ID, dec(t, "45000"))
	require.NoError(t, err)
	assert.True(t, res.Trade.PnL.GreaterThan(decimal.Zero), "short pnl on a price drop must be positive, got %s", res.Trade.PnL)
	assert.True(t, res.Trade.PnL.Equal(dec(t, "499.5")), "realized pnl: got %s", res.Trade.PnL)
}

func TestShortMarginPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("unchecked by default", func(t *testing.T) {
		svc, _, owner := newTestService(t, false)
		res, err := svc.OpenPosition(ctx, owner, types.PositionSideShort, dec(t, "50000"), dec(t, "0.1"))
		require.NoError(t, err)
		// short credits notional minus fee with no margin on hand
		assert.True(t, res.Balance.Equal(dec(t, "4995")), "balance: got %s", res.Balance)
	})

	t.Run("enforced when enabled", func(t *testing.T) {
		svc, _, owner := newTestService(t, true)
		_, err := svc.OpenPosition(ctx, owner, types.PositionSideShort, dec(t, "50000"), dec(t, "0.1"))
		require.ErrorIs(t, err, store.ErrInsufficientBalance)
	})
}

func TestCloseIsIdempotentGuarded(t *testing.T) {
	svc, _, owner := newTestService(t, false)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, owner, dec(t, "10000"), nil)
	require.NoError(t, err)
	open, err := svc.OpenPosition(ctx, owner, types.PositionSideLong, dec(t, "50000"), dec(t, "0.1"))
	require.NoError(t, err)

	_, err = svc.ClosePosition(ctx, owner, open.Position.ID, dec(t, "55000"))
	require.NoError(t, err)

	_, err = svc.ClosePosition(ctx, owner, open.Position.ID, dec(t, "60000"))
	require.ErrorIs(t, err, store.ErrPositionNotFound)

	trades, err := svc.TradeHistory(ctx, owner, 0)
	require.NoError(t, err)
	assert.Len(t, trades, 1, "second close must not create a second trade")

	txs, err := svc.TransactionHistory(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, txs, 3, "deposit, open, close; second close must not append")
}

func TestConcurrentCloseSettlesExactlyOnce(t *testing.T) {
	svc, _, owner := newTestService(t, false)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, owner, dec(t, "10000"), nil)
	require.NoError(t, err)
	open, err := svc.OpenPosition(ctx, owner, types.PositionSideLong, dec(t, "50000"), dec(t, "0.1"))
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ClosePosition(ctx, owner, open.Position.ID, dec(t, "55000"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded int
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, store.ErrPositionNotFound)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one concurrent close must win")

	trades, err := svc.TradeHistory(ctx, owner, 0)
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestTransactionLedgerReplaysToStoredBalance(t *testing.T) {
	svc, _, owner := newTestService(t, false)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, owner, dec(t, "20000"), nil)
	require.NoError(t, err)

	openLong, err := svc.OpenPosition(ctx, owner, types.PositionSideLong, dec(t, "50000"), dec(t, "0.1"))
	require.NoError(t, err)
	_, err = svc.ClosePosition(ctx, owner, openLong.Position.ID, dec(t, "48000"))
	require.NoError(t, err)

	openShort, err := svc.OpenPosition(ctx, owner, types.PositionSideShort, dec(t, "48000"), dec(t, "0.05"))
	require.NoError(t, err)
	_, err = svc.ClosePosition(ctx, owner, openShort.Position.ID, dec(t, "47000"))
	require.NoError(t, err)

	_, err = svc.Withdraw(ctx, owner, dec(t, "1000"), nil)
	require.NoError(t, err)

	txs, err := svc.TransactionHistory(ctx, owner)
	require.NoError(t, err)
	require.NotEmpty(t, txs)

	// history is newest-first; replay wants creation order
	history := make([]model.Transaction, 0, len(txs))
	for i := len(txs) - 1; i >= 0; i-- {
		history = append(history, txs[i])
	}

	replayed, err := ReplayBalance(history)
	require.NoError(t, err)

	stored, err := svc.Balance(ctx, owner)
	require.NoError(t, err)
	assert.True(t, replayed.Equal(stored), "replayed %s, stored %s", replayed, stored)
}

func TestReplayBalanceDetectsBrokenChain(t *testing.T) {
	history := []model.Transaction{
		{ID: "t1", Amount: dec(t, "100"), BalanceBefore: decimal.Zero, BalanceAfter: dec(t, "100")},
		{ID: "t2", Amount: dec(t, "-30"), BalanceBefore: dec(t, "90"), BalanceAfter: dec(t, "60")},
	}
	_, err := ReplayBalance(history)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "t2")
}

func TestBalanceIsCreatedLazilyOnce(t *testing.T) {
	svc, _, owner := newTestService(t, false)
	ctx := context.Background()

	first, err := svc.Balance(ctx, owner)
	require.NoError(t, err)
	assert.True(t, first.IsZero())

	// repeat calls must keep returning the same single zero row
	for i := 0; i < 3; i++ {
		again, err := svc.Balance(ctx, owner)
		require.NoError(t, err)
		assert.True(t, again.IsZero())
	}
}

func TestOpenPositionValidation(t *testing.T) {
	svc, _, owner := newTestService(t, false)
	ctx := context.Background()

	_, err := svc.OpenPosition(ctx, owner, "sideways", dec(t, "50000"), dec(t, "0.1"))
	assert.ErrorIs(t, err, ErrInvalidSide)

	_, err = svc.OpenPosition(ctx, owner, types.PositionSideLong, decimal.Zero, dec(t, "0.1"))
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, err = svc.OpenPosition(ctx, owner, types.PositionSideLong, dec(t, "50000"), dec(t, "-1"))
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}
