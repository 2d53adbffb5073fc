// Package users resolves external identities into local users. Authentication
// itself happens upstream (Privy issues the tokens); this service only
// mirrors the identity into the users table and keeps profile fields fresh.
package users

import (
	"context"
	"errors"
	"fmt"

	"btcpaper/internal/model"
	"btcpaper/internal/notify"
	"btcpaper/internal/store"
	"btcpaper/internal/types"

	"go.uber.org/zap"
)

// Identity is what the verified token (plus optional profile headers) tells
// us about the caller.
type Identity struct {
	PrivyUserID   string
	WalletAddress string
	Email         string
	LoginMethod   types.LoginMethod
}

type Service struct {
	store    store.Store
	notifier *notify.Service
	log      *zap.Logger
}

func NewService(st store.Store, notifier *notify.Service, log *zap.Logger) *Service {
	return &Service{store: st, notifier: notifier, log: log}
}

// GetOrCreate returns the local user for an identity, creating it on first
// sight. Profile fields that changed upstream are patched; the balance row is
// created lazily so every caller leaves with one.
func (s *Service) GetOrCreate(ctx context.Context, id Identity) (*model.UserWithBalance, error) {
	u, err := s.store.GetUserByPrivyID(ctx, id.PrivyUserID)
	switch {
	case err == nil:
		patch := store.UserPatch{}
		if id.WalletAddress != "" && id.WalletAddress != u.WalletAddress {
			patch.WalletAddress = &id.WalletAddress
		}
		if id.Email != "" && id.Email != u.Email {
			patch.Email = &id.Email
		}
		if id.LoginMethod != "" && id.LoginMethod != u.LoginMethod {
			lm := string(id.LoginMethod)
			patch.LoginMethod = &lm
		}
		if !patch.Empty() {
			owner := model.Owner{UserID: u.ID, PrivyUserID: u.PrivyUserID}
			if err := s.store.UpdateUser(ctx, owner, patch); err != nil {
				return nil, fmt.Errorf("update user: %w", err)
			}
			if patch.WalletAddress != nil {
				u.WalletAddress = *patch.WalletAddress
			}
			if patch.Email != nil {
				u.Email = *patch.Email
			}
			if patch.LoginMethod != nil {
				u.LoginMethod = types.LoginMethod(*patch.LoginMethod)
			}
		}
	case errors.Is(err, store.ErrNotFound):
		u = &model.User{
			PrivyUserID:   id.PrivyUserID,
			WalletAddress: id.WalletAddress,
			Email:         id.Email,
			LoginMethod:   id.LoginMethod,
		}
		created, err := s.store.CreateUser(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		if created {
			s.log.Info("user created", zap.String("user_id", u.ID), zap.String("privy_user_id", u.PrivyUserID))
			s.notifier.Welcome(model.Owner{UserID: u.ID, PrivyUserID: u.PrivyUserID})
		}
	default:
		return nil, fmt.Errorf("get user: %w", err)
	}

	owner := model.Owner{UserID: u.ID, PrivyUserID: u.PrivyUserID}
	balance, err := s.store.EnsureBalance(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("ensure balance: %w", err)
	}
	return &model.UserWithBalance{User: *u, Balance: balance}, nil
}
