package wallet

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const foreignKeyViolation = "23503"

// Postgres keeps balances in the users table. Credits are recorded in
// settlement_credits so a retried credit is applied once.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Balance(ctx context.Context, userID string) (float64, error) {
	id, err := parseUserID(userID)
	if err != nil {
		return 0, err
	}

	var bal float64
	err = p.pool.QueryRow(ctx, `SELECT balance FROM users WHERE id = $1`, id).Scan(&bal)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("select balance: %w", err)
	}
	return bal, nil
}

func (p *Postgres) Debit(ctx context.Context, userID string, amount float64) (float64, error) {
	id, err := parseUserID(userID)
	if err != nil {
		return 0, err
	}

	var bal float64
	err = p.pool.QueryRow(ctx,
		`UPDATE users SET balance = balance - $1 WHERE id = $2 AND balance >= $1 RETURNING balance`,
		amount, id).Scan(&bal)
	if err == nil {
		return bal, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("debit: %w", err)
	}

	// Nothing updated: either the account is missing or the funds are short.
	bal, err = p.Balance(ctx, userID)
	if err != nil {
		return 0, err
	}
	return bal, ErrInsufficientFunds
}

func (p *Postgres) Credit(ctx context.Context, c Credit) (float64, error) {
	id, err := parseUserID(c.UserID)
	if err != nil {
		return 0, err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO settlement_credits (round_id, user_id, amount) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		c.RoundID, id, c.Amount)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("record credit: %w", err)
	}

	var bal float64
	if tag.RowsAffected() == 0 {
		err = tx.QueryRow(ctx, `SELECT balance FROM users WHERE id = $1`, id).Scan(&bal)
	} else {
		err = tx.QueryRow(ctx,
			`UPDATE users SET balance = balance + $1 WHERE id = $2 RETURNING balance`,
			c.Amount, id).Scan(&bal)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("credit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return bal, nil
}

func parseUserID(userID string) (int64, error) {
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return 0, ErrAccountNotFound
	}
	return id, nil
}
