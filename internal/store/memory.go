package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"btcpaper/internal/model"
	"btcpaper/internal/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Memory implements Store with process-local state. It backs the demo mode
// when no database is configured and the engine tests. State is lost on
// restart and is not authoritative.
type Memory struct {
	mu            sync.Mutex
	users         map[string]model.User // keyed by privy_user_id
	balances      map[model.Owner]decimal.Decimal
	positions     map[string]model.Position
	trades        []model.Trade
	transactions  []model.Transaction
	notifications []model.Notification
}

func NewMemory() *Memory {
	return &Memory{
		users:     make(map[string]model.User),
		balances:  make(map[model.Owner]decimal.Decimal),
		positions: make(map[string]model.Position),
	}
}

func (s *Memory) GetUserByPrivyID(_ context.Context, privyUserID string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[privyUserID]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *Memory) CreateUser(_ context.Context, u *model.User) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// re-check under the lock: a concurrent first sight may have won the
	// get-then-insert race, and its owner scope must not be orphaned
	if existing, ok := s.users[u.PrivyUserID]; ok {
		*u = existing
		return false, nil
	}
	now := time.Now().UTC()
	u.ID = uuid.NewString()
	u.CreatedAt = now
	u.UpdatedAt = now
	s.users[u.PrivyUserID] = *u
	return true, nil
}

func (s *Memory) UpdateUser(_ context.Context, owner model.Owner, patch UserPatch) error {
	if patch.Empty() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[owner.PrivyUserID]
	if !ok || u.ID != owner.UserID {
		return ErrNotFound
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
	u.UpdatedAt = time.Now().UTC()
	s.users[owner.PrivyUserID] = u
	return nil
}

// ensureBalanceLocked lazily creates the single zero entry for an owner.
func (s *Memory) ensureBalanceLocked(owner model.Owner) decimal.Decimal {
	amount, ok := s.balances[owner]
	if !ok {
		amount = decimal.Zero
		s.balances[owner] = amount
	}
	return amount
}

func (s *Memory) EnsureBalance(_ context.Context, owner model.Owner) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureBalanceLocked(owner), nil
}

// moveBalanceLocked mirrors the Postgres conditional increment: the move is
// refused when required is non-nil and the current amount is below it.
func (s *Memory) moveBalanceLocked(owner model.Owner, delta decimal.Decimal, required *decimal.Decimal) (before, after decimal.Decimal, err error) {
	before = s.ensureBalanceLocked(owner)
	if required != nil && before.LessThan(*required) {
		return decimal.Zero, decimal.Zero, ErrInsufficientBalance
	}
	after = before.Add(delta)
	s.balances[owner] = after
	return before, after, nil
}

func (s *Memory) appendTransactionLocked(txn *model.Transaction, before, after decimal.Decimal) {
	txn.ID = uuid.NewString()
	txn.BalanceBefore = before
	txn.BalanceAfter = after
	txn.CreatedAt = time.Now().UTC()
	s.transactions = append(s.transactions, *txn)
}

func (s *Memory) CreateOpenPosition(_ context.Context, pos *model.Position, txn *model.Transaction, delta decimal.Decimal, required *decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	owner := model.Owner{UserID: pos.UserID, PrivyUserID: pos.PrivyUserID}
	before, after, err := s.moveBalanceLocked(owner, delta, required)
	if err != nil {
		return decimal.Zero, err
	}

	pos.ID = uuid.NewString()
	pos.IsOpen = true
	pos.CreatedAt = time.Now().UTC()
	s.positions[pos.ID] = *pos

	txn.ReferenceID = &pos.ID
	s.appendTransactionLocked(txn, before, after)
	return after, nil
}

func (s *Memory) GetOpenPosition(_ context.Context, owner model.Owner, positionID string) (*model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[positionID]
	if !ok || !p.IsOpen || p.UserID != owner.UserID || p.PrivyUserID != owner.PrivyUserID {
		return nil, ErrPositionNotFound
	}
	return &p, nil
}

func (s *Memory) SettleClose(_ context.Context, owner model.Owner, positionID string, exitPrice decimal.Decimal, closedAt time.Time, trade *model.Trade, txn *model.Transaction, delta decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.positions[positionID]
	if !ok || !p.IsOpen || p.UserID != owner.UserID || p.PrivyUserID != owner.PrivyUserID {
		return decimal.Zero, ErrPositionNotFound
	}
	p.IsOpen = false
	p.ExitPrice = &exitPrice
	p.ClosedAt = &closedAt
	s.positions[positionID] = p

	trade.ID = uuid.NewString()
	s.trades = append(s.trades, *trade)

	before, after, err := s.moveBalanceLocked(owner, delta, nil)
	if err != nil {
		return decimal.Zero, err
	}
	txn.ReferenceID = &positionID
	s.appendTransactionLocked(txn, before, after)
	return after, nil
}

func (s *Memory) ApplyAdjustment(_ context.Context, txn *model.Transaction, delta decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	owner := model.Owner{UserID: txn.UserID, PrivyUserID: txn.PrivyUserID}
	floor := delta.Neg()
	before, after, err := s.moveBalanceLocked(owner, delta, &floor)
	if err != nil {
		return decimal.Zero, err
	}
	s.appendTransactionLocked(txn, before, after)
	return after, nil
}

func (s *Memory) OpenPositions(_ context.Context, owner model.Owner) ([]model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Position
	for _, p := range s.positions {
		if p.IsOpen && p.UserID == owner.UserID && p.PrivyUserID == owner.PrivyUserID {
			out = append(out, p)
		}
	}
	sortByCreatedDesc(out)
	return out, nil
}

func (s *Memory) Trades(_ context.Context, owner model.Owner, limit int) ([]model.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit = normalizeTradeLimit(limit)
	var out []model.Trade
	for i := len(s.trades) - 1; i >= 0 && len(out) < limit; i-- {
		t := s.trades[i]
		if t.UserID == owner.UserID && t.PrivyUserID == owner.PrivyUserID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Memory) Transactions(_ context.Context, owner model.Owner) ([]model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Transaction
	for i := len(s.transactions) - 1; i >= 0; i-- {
		t := s.transactions[i]
		if t.UserID == owner.UserID && t.PrivyUserID == owner.PrivyUserID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Memory) CreateNotification(_ context.Context, n *model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = uuid.NewString()
	n.CreatedAt = time.Now().UTC()
	s.notifications = append(s.notifications, *n)
	return nil
}

func (s *Memory) Notifications(_ context.Context, owner model.Owner, limit int) ([]model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit = normalizeNotificationLimit(limit)
	var out []model.Notification
	for i := len(s.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		n := s.notifications[i]
		if n.UserID == owner.UserID && n.PrivyUserID == owner.PrivyUserID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *Memory) MarkNotificationRead(_ context.Context, owner model.Owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		n := &s.notifications[i]
		if n.ID == id && n.UserID == owner.UserID && n.PrivyUserID == owner.PrivyUserID {
			n.Read = true
			return nil
		}
	}
	return ErrNotFound
}

func (s *Memory) MarkAllNotificationsRead(_ context.Context, owner model.Owner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		n := &s.notifications[i]
		if n.UserID == owner.UserID && n.PrivyUserID == owner.PrivyUserID {
			n.Read = true
		}
	}
	return nil
}

func sortByCreatedDesc(positions []model.Position) {
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].CreatedAt.After(positions[j].CreatedAt)
	})
}
