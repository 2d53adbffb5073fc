// Package ledger is the balance ledger engine: the only component that moves
// Balance, Position, Trade and Transaction state together for a logical
// operation. Each operation is a single atomic store call, so a failure
// between steps can never leave the ledger partially updated.
package ledger

import (
	"context"
	"errors"
	"time"

	"btcpaper/internal/format"
	"btcpaper/internal/metrics"
	"btcpaper/internal/model"
	"btcpaper/internal/notify"
	"btcpaper/internal/store"
	"btcpaper/internal/types"

	"github.com/shopspring/decimal"
)

// feeRate is 10 basis points, charged on notional at open and on |pnl| at
// close.
var feeRate = decimal.RequireFromString("0.001")

var (
	ErrInvalidSide     = errors.New("invalid position side")
	ErrInvalidPrice    = errors.New("price must be positive")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidAmount   = errors.New("amount must be positive")
)

// Service runs the position lifecycle and balance adjustments against a
// store.Store. The same engine serves the persisted (Postgres) and the demo
// (Memory) backends.
type Service struct {
	store    store.Store
	notifier *notify.Service

	// checkShortMargin gates whether opening a short requires the same
	// notional+fee margin as a long. The original product only checked
	// longs; the asymmetry is kept behind this flag.
	checkShortMargin bool
}

func NewService(st store.Store, notifier *notify.Service, checkShortMargin bool) *Service {
	return &Service{store: st, notifier: notifier, checkShortMargin: checkShortMargin}
}

type OpenResult struct {
	Position model.Position  `json:"position"`
	Balance  decimal.Decimal `json:"balance"`
}

type CloseResult struct {
	Trade   model.Trade     `json:"trade"`
	Balance decimal.Decimal `json:"balance"`
}

type AdjustResult struct {
	Transaction model.Transaction `json:"transaction"`
	Balance     decimal.Decimal   `json:"balance"`
}

// Balance returns the current amount, lazily creating the zero row on first
// access.
func (s *Service) Balance(ctx context.Context, owner model.Owner) (decimal.Decimal, error) {
	return s.store.EnsureBalance(ctx, owner)
}

// OpenPosition opens a long or short exposure at the given entry price.
//
// notional = entryPrice * quantity, fee = notional * 0.001. A long debits
// notional+fee and requires that much balance up front; a short credits
// notional-fee and is only margin-checked when the engine was built with
// checkShortMargin.
func (s *Service) OpenPosition(ctx context.Context, owner model.Owner, side types.PositionSide, entryPrice, quantity decimal.Decimal) (OpenResult, error) {
	res, err := s.openPosition(ctx, owner, side, entryPrice, quantity)
	metrics.LedgerOperationsTotal.WithLabelValues("open", metrics.OutcomeFor(err)).Inc()
	return res, err
}

func (s *Service) openPosition(ctx context.Context, owner model.Owner, side types.PositionSide, entryPrice, quantity decimal.Decimal) (OpenResult, error) {
	if !side.Valid() {
		return OpenResult{}, ErrInvalidSide
	}
	if !entryPrice.GreaterThan(decimal.Zero) {
		return OpenResult{}, ErrInvalidPrice
	}
	if !quantity.GreaterThan(decimal.Zero) {
		return OpenResult{}, ErrInvalidQuantity
	}

	notional := entryPrice.Mul(quantity)
	fee := notional.Abs().Mul(feeRate)

	var (
		delta    decimal.Decimal
		required *decimal.Decimal
	)
	if side == types.PositionSideLong {
		margin := notional.Add(fee)
		delta = margin.Neg()
		required = &margin
	} else {
		delta = notional.Sub(fee)
		if s.checkShortMargin {
			margin := notional.Add(fee)
			required = &margin
		}
	}

	pos := &model.Position{
		UserID:      owner.UserID,
		PrivyUserID: owner.PrivyUserID,
		Side:        side,
		EntryPrice:  entryPrice,
		Quantity:    quantity,
	}
	txn := &model.Transaction{
		UserID:      owner.UserID,
		PrivyUserID: owner.PrivyUserID,
		Type:        types.TransactionTypeTradeOpen,
		Amount:      delta,
		Status:      types.TransactionStatusCompleted,
		Metadata: map[string]any{
			"side":        string(side),
			"quantity":    quantity.String(),
			"entry_price": entryPrice.String(),
			"fee":         fee.String(),
		},
	}

	balance, err := s.store.CreateOpenPosition(ctx, pos, txn, delta, required)
	if err != nil {
		return OpenResult{}, err
	}
	s.notifier.TradeOpened(owner, side, quantity, entryPrice)
	return OpenResult{Position: *pos, Balance: balance}, nil
}

// ClosePosition settles an open position at the given exit price. P&L is
// side-aware, the fee is 10 bps of |pnl|, and the realized amount (pnl - fee)
// is credited to the balance. Closing a position twice fails with
// store.ErrPositionNotFound and writes nothing.
func (s *Service) ClosePosition(ctx context.Context, owner model.Owner, positionID string, exitPrice decimal.Decimal) (CloseResult, error) {
	res, err := s.closePosition(ctx, owner, positionID, exitPrice)
	metrics.LedgerOperationsTotal.WithLabelValues("close", metrics.OutcomeFor(err)).Inc()
	return res, err
}

func (s *Service) closePosition(ctx context.Context, owner model.Owner, positionID string, exitPrice decimal.Decimal) (CloseResult, error) {
	if !exitPrice.GreaterThan(decimal.Zero) {
		return CloseResult{}, ErrInvalidPrice
	}

	pos, err := s.store.GetOpenPosition(ctx, owner, positionID)
	if err != nil {
		return CloseResult{}, err
	}

	pnl := format.CalculatePnL(pos.Side, pos.EntryPrice, exitPrice, pos.Quantity)
	fee := pnl.Amount.Abs().Mul(feeRate)
	realized := pnl.Amount.Sub(fee)
	closedAt := time.Now().UTC()

	trade := &model.Trade{
		UserID:      owner.UserID,
		PrivyUserID: owner.PrivyUserID,
		Side:        pos.Side,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   exitPrice,
		Quantity:    pos.Quantity,
		PnL:         realized,
		PnLPercent:  pnl.Percent,
		Fee:         fee,
		OpenedAt:    pos.CreatedAt,
		ClosedAt:    closedAt,
	}
	txn := &model.Transaction{
		UserID:      owner.UserID,
		PrivyUserID: owner.PrivyUserID,
		Type:        types.TransactionTypeTradeClose,
		Amount:      realized,
		Status:      types.TransactionStatusCompleted,
		Metadata: map[string]any{
			"side":        string(pos.Side),
			"quantity":    pos.Quantity.String(),
			"entry_price": pos.EntryPrice.String(),
			"exit_price":  exitPrice.String(),
			"pnl":         pnl.Amount.String(),
			"fee":         fee.String(),
		},
	}

	balance, err := s.store.SettleClose(ctx, owner, positionID, exitPrice, closedAt, trade, txn, realized)
	if err != nil {
		return CloseResult{}, err
	}
	s.notifier.TradeClosed(owner, pos.Side, pos.Quantity, exitPrice, realized)
	return CloseResult{Trade: *trade, Balance: balance}, nil
}

// Deposit credits a positive amount to the balance.
func (s *Service) Deposit(ctx context.Context, owner model.Owner, amount decimal.Decimal, metadata map[string]any) (AdjustResult, error) {
	res, err := s.adjust(ctx, owner, types.TransactionTypeDeposit, amount, metadata)
	metrics.LedgerOperationsTotal.WithLabelValues("deposit", metrics.OutcomeFor(err)).Inc()
	return res, err
}

// Withdraw debits a positive amount, refused when it would take the balance
// below zero.
func (s *Service) Withdraw(ctx context.Context, owner model.Owner, amount decimal.Decimal, metadata map[string]any) (AdjustResult, error) {
	res, err := s.adjust(ctx, owner, types.TransactionTypeWithdrawal, amount.Neg(), metadata)
	metrics.LedgerOperationsTotal.WithLabelValues("withdrawal", metrics.OutcomeFor(err)).Inc()
	return res, err
}

func (s *Service) adjust(ctx context.Context, owner model.Owner, typ types.TransactionType, delta decimal.Decimal, metadata map[string]any) (AdjustResult, error) {
	if delta.IsZero() {
		return AdjustResult{}, ErrInvalidAmount
	}
	if typ == types.TransactionTypeDeposit && delta.LessThan(decimal.Zero) {
		return AdjustResult{}, ErrInvalidAmount
	}
	if typ == types.TransactionTypeWithdrawal && delta.GreaterThan(decimal.Zero) {
		return AdjustResult{}, ErrInvalidAmount
	}

	txn := &model.Transaction{
		UserID:      owner.UserID,
		PrivyUserID: owner.PrivyUserID,
		Type:        typ,
		Amount:      delta,
		Status:      types.TransactionStatusCompleted,
		Metadata:    metadata,
	}
	balance, err := s.store.ApplyAdjustment(ctx, txn, delta)
	if err != nil {
		return AdjustResult{}, err
	}
	s.notifier.BalanceAdjusted(owner, typ, delta)
	return AdjustResult{Transaction: *txn, Balance: balance}, nil
}

// OpenPositions lists the owner's open positions, newest first.
func (s *Service) OpenPositions(ctx context.Context, owner model.Owner) ([]model.Position, error) {
	return s.store.OpenPositions(ctx, owner)
}

// TradeHistory lists closed trades, newest first.
func (s *Service) TradeHistory(ctx context.Context, owner model.Owner, limit int) ([]model.Trade, error) {
	return s.store.Trades(ctx, owner, limit)
}

// TransactionHistory lists the full ledger, newest first.
func (s *Service) TransactionHistory(ctx context.Context, owner model.Owner) ([]model.Transaction, error) {
	return s.store.Transactions(ctx, owner)
}
