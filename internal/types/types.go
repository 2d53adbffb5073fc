package types

type PositionSide string

type TransactionType string

type TransactionStatus string

type NotificationType string

type LoginMethod string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

const (
	TransactionTypeTradeOpen  TransactionType = "trade_open"
	TransactionTypeTradeClose TransactionType = "trade_close"
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
)

const (
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

const (
	NotificationTypeTrade    NotificationType = "trade"
	NotificationTypeTransfer NotificationType = "transfer"
	NotificationTypeSystem   NotificationType = "system"
)

const (
	LoginMethodEmail  LoginMethod = "email"
	LoginMethodWallet LoginMethod = "wallet"
	LoginMethodGoogle LoginMethod = "google"
)

func (s PositionSide) Valid() bool {
	return s == PositionSideLong || s == PositionSideShort
}
