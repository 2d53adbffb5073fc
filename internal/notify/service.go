// Package notify emits informational notification rows. Notifications are a
// side effect of ledger operations, never part of their financial invariants:
// emission is fire-and-forget and failures are logged, not returned.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"btcpaper/internal/format"
	"btcpaper/internal/model"
	"btcpaper/internal/store"
	"btcpaper/internal/types"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const emitTimeout = 5 * time.Second

type Service struct {
	store store.Store
	log   *zap.Logger
}

func NewService(st store.Store, log *zap.Logger) *Service {
	return &Service{store: st, log: log}
}

// emit writes the notification in the background with its own deadline so a
// slow backend never blocks or fails the operation that triggered it.
func (s *Service) emit(owner model.Owner, typ types.NotificationType, title, message string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		n := &model.Notification{
			UserID:      owner.UserID,
			PrivyUserID: owner.PrivyUserID,
			Type:        typ,
			Title:       title,
			Message:     message,
		}
		if err := s.store.CreateNotification(ctx, n); err != nil {
			s.log.Warn("notification dropped",
				zap.String("user_id", owner.UserID),
				zap.String("title", title),
				zap.Error(err))
		}
	}()
}

func (s *Service) Welcome(owner model.Owner) {
	s.emit(owner, types.NotificationTypeSystem,
		"Welcome!", "Your trading account is ready. Deposit demo funds to start trading.")
}

func (s *Service) TradeOpened(owner model.Owner, side types.PositionSide, qty, entryPrice decimal.Decimal) {
	s.emit(owner, types.NotificationTypeTrade,
		"Position opened",
		fmt.Sprintf("Opened %s %s BTC @ %s", side, qty.String(), format.Price(entryPrice)))
}

func (s *Service) TradeClosed(owner model.Owner, side types.PositionSide, qty, exitPrice, realized decimal.Decimal) {
	s.emit(owner, types.NotificationTypeTrade,
		"Position closed",
		fmt.Sprintf("Closed %s %s BTC @ %s, P&L %s", side, qty.String(), format.Price(exitPrice), format.Currency(realized)))
}

func (s *Service) BalanceAdjusted(owner model.Owner, typ types.TransactionType, amount decimal.Decimal) {
	title := "Deposit completed"
	if typ == types.TransactionTypeWithdrawal {
		title = "Withdrawal completed"
	}
	s.emit(owner, types.NotificationTypeTransfer, title, format.Currency(amount.Abs()))
}

// List returns the newest notifications, default limit 20.
func (s *Service) List(ctx context.Context, owner model.Owner, limit int) ([]model.Notification, error) {
	return s.store.Notifications(ctx, owner, limit)
}

// MarkRead flags a single notification. Errors other than a missing row are
// logged and swallowed, matching the fire-and-forget contract.
func (s *Service) MarkRead(ctx context.Context, owner model.Owner, id string) error {
	err := s.store.MarkNotificationRead(ctx, owner, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.log.Warn("mark notification read failed", zap.String("id", id), zap.Error(err))
		return nil
	}
	return err
}

// MarkAllRead flags every unread notification for the owner.
func (s *Service) MarkAllRead(ctx context.Context, owner model.Owner) {
	if err := s.store.MarkAllNotificationsRead(ctx, owner); err != nil {
		s.log.Warn("mark all notifications read failed", zap.String("user_id", owner.UserID), zap.Error(err))
	}
}
