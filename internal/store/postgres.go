package store

import (
	"context"
	"errors"
	"time"

	"btcpaper/internal/model"
	"btcpaper/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Postgres implements Store on pgx. Each ledger operation runs in one
// Serializable transaction; the balance is only ever moved with conditional
// server-side arithmetic, never with a read-modify-write from the client.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) GetUserByPrivyID(ctx context.Context, privyUserID string) (*model.User, error) {
	var u model.User
	var method string
	err := s.pool.QueryRow(ctx, `
		SELECT id, privy_user_id, COALESCE(wallet_address, ''), COALESCE(email, ''), COALESCE(login_method, ''), created_at, updated_at
		FROM users
		WHERE privy_user_id = $1
	`, privyUserID).Scan(&u.ID, &u.PrivyUserID, &u.WalletAddress, &u.Email, &method, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.LoginMethod = types.LoginMethod(method)
	return &u, nil
}

// CreateUser inserts with ON CONFLICT DO NOTHING and re-reads on a lost
// race, the same idiom ensureBalanceTx uses: two parallel first sights end up
// sharing one row instead of splitting the owner scope.
func (s *Postgres) CreateUser(ctx context.Context, u *model.User) (bool, error) {
	now := time.Now().UTC()
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (privy_user_id, wallet_address, email, login_method, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), $5, $5)
		ON CONFLICT (privy_user_id) DO NOTHING
		RETURNING id
	`, u.PrivyUserID, u.WalletAddress, u.Email, string(u.LoginMethod), now).Scan(&u.ID)
	if err == nil {
		u.CreatedAt = now
		u.UpdatedAt = now
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}
	existing, err := s.GetUserByPrivyID(ctx, u.PrivyUserID)
	if err != nil {
		return false, err
	}
	*u = *existing
	return false, nil
}

func (s *Postgres) UpdateUser(ctx context.Context, owner model.Owner, patch UserPatch) error {
	if patch.Empty() {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE users
		SET wallet_address = COALESCE($3, wallet_address),
		    email          = COALESCE($4, email),
		    login_method   = COALESCE($5, login_method),
		    updated_at     = NOW()
		WHERE id = $1 AND privy_user_id = $2
	`, owner.UserID, owner.PrivyUserID, patch.WalletAddress, patch.Email, patch.LoginMethod)
	return err
}

// ensureBalanceTx creates the zero row if missing and returns the current
// amount. The unique (user_id, privy_user_id) constraint keeps repeat calls
// from ever producing a second row.
func (s *Postgres) ensureBalanceTx(ctx context.Context, tx pgx.Tx, owner model.Owner) (decimal.Decimal, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO balances (user_id, privy_user_id, amount, currency, updated_at)
		VALUES ($1, $2, 0, 'USD', NOW())
		ON CONFLICT (user_id, privy_user_id) DO NOTHING
	`, owner.UserID, owner.PrivyUserID)
	if err != nil {
		return decimal.Zero, err
	}
	var amount decimal.Decimal
	err = tx.QueryRow(ctx, `
		SELECT amount FROM balances WHERE user_id = $1 AND privy_user_id = $2
	`, owner.UserID, owner.PrivyUserID).Scan(&amount)
	return amount, err
}

func (s *Postgres) EnsureBalance(ctx context.Context, owner model.Owner) (decimal.Decimal, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return decimal.Zero, err
	}
	defer tx.Rollback(ctx)
	amount, err := s.ensureBalanceTx(ctx, tx, owner)
	if err != nil {
		return decimal.Zero, err
	}
	return amount, tx.Commit(ctx)
}

// moveBalanceTx applies delta with a server-side increment. When required is
// non-nil the update only lands if the current amount is at least *required,
// so the lost-update race of read-then-write never occurs. A nil required
// moves the balance unconditionally (settling a losing close may legitimately
// leave the amount negative).
func (s *Postgres) moveBalanceTx(ctx context.Context, tx pgx.Tx, owner model.Owner, delta decimal.Decimal, required *decimal.Decimal) (before, after decimal.Decimal, err error) {
	if _, err = s.ensureBalanceTx(ctx, tx, owner); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if required != nil {
		err = tx.QueryRow(ctx, `
			UPDATE balances
			SET amount = amount + $3, updated_at = NOW()
			WHERE user_id = $1 AND privy_user_id = $2 AND amount >= $4
			RETURNING amount
		`, owner.UserID, owner.PrivyUserID, delta, *required).Scan(&after)
	} else {
		err = tx.QueryRow(ctx, `
			UPDATE balances
			SET amount = amount + $3, updated_at = NOW()
			WHERE user_id = $1 AND privy_user_id = $2
			RETURNING amount
		`, owner.UserID, owner.PrivyUserID, delta).Scan(&after)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, decimal.Zero, ErrInsufficientBalance
		}
		return decimal.Zero, decimal.Zero, err
	}
	return after.Sub(delta), after, nil
}

func (s *Postgres) insertTransactionTx(ctx context.Context, tx pgx.Tx, txn *model.Transaction) error {
	now := time.Now().UTC()
	err := tx.QueryRow(ctx, `
		INSERT INTO transactions (user_id, privy_user_id, type, amount, balance_before, balance_after, status, reference_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, txn.UserID, txn.PrivyUserID, string(txn.Type), txn.Amount, txn.BalanceBefore, txn.BalanceAfter,
		string(txn.Status), txn.ReferenceID, txn.Metadata, now).Scan(&txn.ID)
	if err != nil {
		return err
	}
	txn.CreatedAt = now
	return nil
}

func (s *Postgres) CreateOpenPosition(ctx context.Context, pos *model.Position, txn *model.Transaction, delta decimal.Decimal, required *decimal.Decimal) (decimal.Decimal, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return decimal.Zero, err
	}
	defer tx.Rollback(ctx)

	owner := model.Owner{UserID: pos.UserID, PrivyUserID: pos.PrivyUserID}
	before, after, err := s.moveBalanceTx(ctx, tx, owner, delta, required)
	if err != nil {
		return decimal.Zero, err
	}

	now := time.Now().UTC()
	err = tx.QueryRow(ctx, `
		INSERT INTO positions (user_id, privy_user_id, type, entry_price, quantity, is_open, created_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)
		RETURNING id
	`, pos.UserID, pos.PrivyUserID, string(pos.Side), pos.EntryPrice, pos.Quantity, now).Scan(&pos.ID)
	if err != nil {
		return decimal.Zero, err
	}
	pos.IsOpen = true
	pos.CreatedAt = now

	txn.BalanceBefore = before
	txn.BalanceAfter = after
	txn.ReferenceID = &pos.ID
	if err := s.insertTransactionTx(ctx, tx, txn); err != nil {
		return decimal.Zero, err
	}
	return after, tx.Commit(ctx)
}

func (s *Postgres) GetOpenPosition(ctx context.Context, owner model.Owner, positionID string) (*model.Position, error) {
	var p model.Position
	var side string
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, privy_user_id, type, entry_price, quantity, is_open, created_at
		FROM positions
		WHERE id = $1 AND user_id = $2 AND privy_user_id = $3 AND is_open = TRUE
	`, positionID, owner.UserID, owner.PrivyUserID).Scan(
		&p.ID, &p.UserID, &p.PrivyUserID, &side, &p.EntryPrice, &p.Quantity, &p.IsOpen, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPositionNotFound
		}
		return nil, err
	}
	p.Side = types.PositionSide(side)
	return &p, nil
}

func (s *Postgres) SettleClose(ctx context.Context, owner model.Owner, positionID string, exitPrice decimal.Decimal, closedAt time.Time, trade *model.Trade, txn *model.Transaction, delta decimal.Decimal) (decimal.Decimal, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return decimal.Zero, err
	}
	defer tx.Rollback(ctx)

	// The is_open guard makes a concurrent second close a no-op: only one
	// transaction can flip the flag, the other rolls back entirely.
	tag, err := tx.Exec(ctx, `
		UPDATE positions
		SET is_open = FALSE, exit_price = $4, closed_at = $5
		WHERE id = $1 AND user_id = $2 AND privy_user_id = $3 AND is_open = TRUE
	`, positionID, owner.UserID, owner.PrivyUserID, exitPrice, closedAt)
	if err != nil {
		return decimal.Zero, err
	}
	if tag.RowsAffected() == 0 {
		return decimal.Zero, ErrPositionNotFound
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO trades (user_id, privy_user_id, type, entry_price, exit_price, quantity, pnl, pnl_percent, fee, opened_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, trade.UserID, trade.PrivyUserID, string(trade.Side), trade.EntryPrice, trade.ExitPrice,
		trade.Quantity, trade.PnL, trade.PnLPercent, trade.Fee, trade.OpenedAt, trade.ClosedAt).Scan(&trade.ID)
	if err != nil {
		return decimal.Zero, err
	}

	before, after, err := s.moveBalanceTx(ctx, tx, owner, delta, nil)
	if err != nil {
		return decimal.Zero, err
	}
	txn.BalanceBefore = before
	txn.BalanceAfter = after
	txn.ReferenceID = &positionID
	if err := s.insertTransactionTx(ctx, tx, txn); err != nil {
		return decimal.Zero, err
	}
	return after, tx.Commit(ctx)
}

func (s *Postgres) ApplyAdjustment(ctx context.Context, txn *model.Transaction, delta decimal.Decimal) (decimal.Decimal, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return decimal.Zero, err
	}
	defer tx.Rollback(ctx)

	owner := model.Owner{UserID: txn.UserID, PrivyUserID: txn.PrivyUserID}
	// amount >= -delta keeps the resulting balance at or above zero.
	floor := delta.Neg()
	before, after, err := s.moveBalanceTx(ctx, tx, owner, delta, &floor)
	if err != nil {
		return decimal.Zero, err
	}
	txn.BalanceBefore = before
	txn.BalanceAfter = after
	if err := s.insertTransactionTx(ctx, tx, txn); err != nil {
		return decimal.Zero, err
	}
	return after, tx.Commit(ctx)
}

func (s *Postgres) OpenPositions(ctx context.Context, owner model.Owner) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, privy_user_id, type, entry_price, quantity, is_open, created_at
		FROM positions
		WHERE user_id = $1 AND privy_user_id = $2 AND is_open = TRUE
		ORDER BY created_at DESC
	`, owner.UserID, owner.PrivyUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Position
	for rows.Next() {
		var p model.Position
		var side string
		if err := rows.Scan(&p.ID, &p.UserID, &p.PrivyUserID, &side, &p.EntryPrice, &p.Quantity, &p.IsOpen, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Side = types.PositionSide(side)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Postgres) Trades(ctx context.Context, owner model.Owner, limit int) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, privy_user_id, type, entry_price, exit_price, quantity, pnl, pnl_percent, fee, opened_at, closed_at
		FROM trades
		WHERE user_id = $1 AND privy_user_id = $2
		ORDER BY closed_at DESC
		LIMIT $3
	`, owner.UserID, owner.PrivyUserID, normalizeTradeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Trade
	for rows.Next() {
		var t model.Trade
		var side string
		if err := rows.Scan(&t.ID, &t.UserID, &t.PrivyUserID, &side, &t.EntryPrice, &t.ExitPrice,
			&t.Quantity, &t.PnL, &t.PnLPercent, &t.Fee, &t.OpenedAt, &t.ClosedAt); err != nil {
			return nil, err
		}
		t.Side = types.PositionSide(side)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Postgres) Transactions(ctx context.Context, owner model.Owner) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, privy_user_id, type, amount, balance_before, balance_after, status, reference_id, metadata, created_at
		FROM transactions
		WHERE user_id = $1 AND privy_user_id = $2
		ORDER BY created_at DESC
	`, owner.UserID, owner.PrivyUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var typ, status string
		if err := rows.Scan(&t.ID, &t.UserID, &t.PrivyUserID, &typ, &t.Amount, &t.BalanceBefore,
			&t.BalanceAfter, &status, &t.ReferenceID, &t.Metadata, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Type = types.TransactionType(typ)
		t.Status = types.TransactionStatus(status)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Postgres) CreateNotification(ctx context.Context, n *model.Notification) error {
	now := time.Now().UTC()
	err := s.pool.QueryRow(ctx, `
		INSERT INTO notifications (user_id, privy_user_id, type, title, message, read, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)
		RETURNING id
	`, n.UserID, n.PrivyUserID, string(n.Type), n.Title, n.Message, now).Scan(&n.ID)
	if err != nil {
		return err
	}
	n.CreatedAt = now
	return nil
}

func (s *Postgres) Notifications(ctx context.Context, owner model.Owner, limit int) ([]model.Notification, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, privy_user_id, type, title, message, read, created_at
		FROM notifications
		WHERE user_id = $1 AND privy_user_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, owner.UserID, owner.PrivyUserID, normalizeNotificationLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		var typ string
		if err := rows.Scan(&n.ID, &n.UserID, &n.PrivyUserID, &typ, &n.Title, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Type = types.NotificationType(typ)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Postgres) MarkNotificationRead(ctx context.Context, owner model.Owner, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications SET read = TRUE
		WHERE id = $1 AND user_id = $2 AND privy_user_id = $3
	`, id, owner.UserID, owner.PrivyUserID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) MarkAllNotificationsRead(ctx context.Context, owner model.Owner) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE notifications SET read = TRUE
		WHERE user_id = $1 AND privy_user_id = $2 AND read = FALSE
	`, owner.UserID, owner.PrivyUserID)
	return err
}
