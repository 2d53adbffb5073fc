// Package store is the persistence gateway for the paper-trading ledger.
// Postgres is the authoritative implementation; Memory backs the demo mode
// used when no database is configured, and the tests.
//
// Every row is scoped by the (user_id, privy_user_id) pair and every logical
// ledger operation is a single store call so that balance, position, trade
// and transaction rows commit or fail together.
package store

import (
	"context"
	"errors"
	"time"

	"btcpaper/internal/model"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound signals an absent row (user, notification).
	ErrNotFound = errors.New("not found")

	// ErrInsufficientBalance signals that a conditional balance move was
	// refused because it would breach the required floor.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrPositionNotFound signals a close against a position that does not
	// exist, is not owned by the caller, or is already closed.
	ErrPositionNotFound = errors.New("position not found or already closed")
)

// UserPatch carries only the profile fields that changed; nil means keep.
type UserPatch struct {
	WalletAddress *string
	Email         *string
	LoginMethod   *string
}

// Empty reports whether the patch would change nothing.
func (p UserPatch) Empty() bool {
	return p.WalletAddress == nil && p.Email == nil && p.LoginMethod == nil
}

// Store is the gateway contract shared by the Postgres and Memory backends.
type Store interface {
	// GetUserByPrivyID returns ErrNotFound when no user row exists yet.
	GetUserByPrivyID(ctx context.Context, privyUserID string) (*model.User, error)

	// CreateUser inserts the user and fills ID and timestamps. When a
	// concurrent request created the same privy_user_id first, u is
	// overwritten with the winner's row and created is false, so two
	// parallel first sights can never split the owner scope.
	CreateUser(ctx context.Context, u *model.User) (created bool, err error)

	// UpdateUser applies a minimal patch of changed profile fields.
	UpdateUser(ctx context.Context, owner model.Owner, patch UserPatch) error

	// EnsureBalance returns the balance amount, lazily creating a single
	// zero-amount row on first access. Repeat calls never create a second
	// row for the same owner.
	EnsureBalance(ctx context.Context, owner model.Owner) (decimal.Decimal, error)

	// CreateOpenPosition atomically moves the balance by delta, inserts
	// the position and the trade_open transaction, and returns the new
	// balance. A non-nil required refuses the move with
	// ErrInsufficientBalance when the current amount is below it; nil
	// moves the balance unconditionally. pos.ID and the transaction
	// snapshots are filled in.
	CreateOpenPosition(ctx context.Context, pos *model.Position, txn *model.Transaction, delta decimal.Decimal, required *decimal.Decimal) (decimal.Decimal, error)

	// GetOpenPosition returns an owner-scoped open position or
	// ErrPositionNotFound.
	GetOpenPosition(ctx context.Context, owner model.Owner, positionID string) (*model.Position, error)

	// SettleClose atomically flips the position to closed (guarded by
	// is_open so a second close fails with ErrPositionNotFound and writes
	// nothing), inserts the trade and the trade_close transaction, moves
	// the balance by delta and returns the new balance.
	SettleClose(ctx context.Context, owner model.Owner, positionID string, exitPrice decimal.Decimal, closedAt time.Time, trade *model.Trade, txn *model.Transaction, delta decimal.Decimal) (decimal.Decimal, error)

	// ApplyAdjustment atomically moves the balance by delta, refusing with
	// ErrInsufficientBalance when the result would be negative, and inserts
	// the deposit/withdrawal transaction. Returns the new balance.
	ApplyAdjustment(ctx context.Context, txn *model.Transaction, delta decimal.Decimal) (decimal.Decimal, error)

	// OpenPositions lists open positions, newest first.
	OpenPositions(ctx context.Context, owner model.Owner) ([]model.Position, error)

	// Trades lists closed trades, newest first. limit <= 0 means the
	// default of 50.
	Trades(ctx context.Context, owner model.Owner, limit int) ([]model.Trade, error)

	// Transactions lists the full ledger, newest first.
	Transactions(ctx context.Context, owner model.Owner) ([]model.Transaction, error)

	// CreateNotification inserts a notification row and fills its ID.
	CreateNotification(ctx context.Context, n *model.Notification) error

	// Notifications lists notifications, newest first. limit <= 0 means
	// the default of 20.
	Notifications(ctx context.Context, owner model.Owner, limit int) ([]model.Notification, error)

	// MarkNotificationRead flags one owner-scoped notification as read.
	MarkNotificationRead(ctx context.Context, owner model.Owner, id string) error

	// MarkAllNotificationsRead flags every unread notification as read.
	MarkAllNotificationsRead(ctx context.Context, owner model.Owner) error
}

const (
	defaultTradeLimit        = 50
	defaultNotificationLimit = 20
	maxListLimit             = 200
)

func normalizeTradeLimit(limit int) int {
	if limit <= 0 {
		return defaultTradeLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func normalizeNotificationLimit(limit int) int {
	if limit <= 0 {
		return defaultNotificationLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
