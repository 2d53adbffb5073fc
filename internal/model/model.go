package model

import (
	"time"

	"btcpaper/internal/types"

	"github.com/shopspring/decimal"
)

// Owner identifies the (user, external identity) pair every row is scoped by.
type Owner struct {
	UserID      string
	PrivyUserID string
}

type User struct {
	ID            string            `json:"id"`
	PrivyUserID   string            `json:"privy_user_id"`
	WalletAddress string            `json:"wallet_address,omitempty"`
	Email         string            `json:"email,omitempty"`
	LoginMethod   types.LoginMethod `json:"login_method,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// UserWithBalance is the shape returned to the UI on login.
type UserWithBalance struct {
	User
	Balance decimal.Decimal `json:"balance"`
}

type Balance struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	PrivyUserID string          `json:"privy_user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type Position struct {
	ID          string             `json:"id"`
	UserID      string             `json:"user_id"`
	PrivyUserID string             `json:"privy_user_id"`
	Side        types.PositionSide `json:"type"`
	EntryPrice  decimal.Decimal    `json:"entry_price"`
	Quantity    decimal.Decimal    `json:"quantity"`
	IsOpen      bool               `json:"is_open"`
	ExitPrice   *decimal.Decimal   `json:"exit_price,omitempty"`
	ClosedAt    *time.Time         `json:"closed_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// Trade is the immutable record created when a position closes.
type Trade struct {
	ID          string             `json:"id"`
	UserID      string             `json:"user_id"`
	PrivyUserID string             `json:"privy_user_id"`
	Side        types.PositionSide `json:"type"`
	EntryPrice  decimal.Decimal    `json:"entry_price"`
	ExitPrice   decimal.Decimal    `json:"exit_price"`
	Quantity    decimal.Decimal    `json:"quantity"`
	PnL         decimal.Decimal    `json:"pnl"`
	PnLPercent  decimal.Decimal    `json:"pnl_percent"`
	Fee         decimal.Decimal    `json:"fee"`
	OpenedAt    time.Time          `json:"opened_at"`
	ClosedAt    time.Time          `json:"closed_at"`
}

// Transaction is one append-only ledger entry. Amount is the signed balance
// delta; BalanceBefore + Amount must equal BalanceAfter.
type Transaction struct {
	ID            string                  `json:"id"`
	UserID        string                  `json:"user_id"`
	PrivyUserID   string                  `json:"privy_user_id"`
	Type          types.TransactionType   `json:"type"`
	Amount        decimal.Decimal         `json:"amount"`
	BalanceBefore decimal.Decimal         `json:"balance_before"`
	BalanceAfter  decimal.Decimal         `json:"balance_after"`
	Status        types.TransactionStatus `json:"status"`
	ReferenceID   *string                 `json:"reference_id,omitempty"`
	Metadata      map[string]any          `json:"metadata,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
}

type Notification struct {
	ID          string                 `json:"id"`
	UserID      string                 `json:"user_id"`
	PrivyUserID string                 `json:"privy_user_id"`
	Type        types.NotificationType `json:"type"`
	Title       string                 `json:"title"`
	Message     string                 `json:"message"`
	Read        bool                   `json:"read"`
	CreatedAt   time.Time              `json:"created_at"`
}
