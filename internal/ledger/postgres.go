// Package ledger is the internal account-balance store. Balances live in
// Postgres and are credited upon confirmed payment success.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/punchamoorthee/payflow/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{db: pool}, nil
}

func (s *Store) Close() {
	s.db.Close()
}

// Credit applies a read-modify-write balance increase for the account
// identified by phone number. The row lock is held for the duration of the
// transaction so concurrent credits to the same account serialize cleanly.
func (s *Store) Credit(ctx context.Context, phoneNumber string, amount decimal.Decimal) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	var balanceStr string
	err = tx.QueryRow(ctx,
		"SELECT id, balance::text FROM users WHERE phone = $1 FOR UPDATE",
		phoneNumber,
	).Scan(&id, &balanceStr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("balance lookup failed: %w", err)
	}

	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return fmt.Errorf("stored balance is not numeric: %w", err)
	}
	newBalance := balance.Add(amount)

	_, err = tx.Exec(ctx,
		"UPDATE users SET balance = $1::numeric WHERE id = $2",
		newBalance.String(), id,
	)
	if err != nil {
		return fmt.Errorf("balance update failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

// Balance retrieves the current balance for a phone number.
func (s *Store) Balance(ctx context.Context, phoneNumber string) (decimal.Decimal, error) {
	var balanceStr string
	err := s.db.QueryRow(ctx,
		"SELECT balance::text FROM users WHERE phone = $1",
		phoneNumber,
	).Scan(&balanceStr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrAccountNotFound
		}
		return decimal.Zero, fmt.Errorf("balance lookup failed: %w", err)
	}

	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("stored balance is not numeric: %w", err)
	}
	return balance, nil
}

// GetAccount retrieves the full account row for a phone number.
func (s *Store) GetAccount(ctx context.Context, phoneNumber string) (*domain.Account, error) {
	var account domain.Account
	var balanceStr string
	err := s.db.QueryRow(ctx,
		"SELECT id, phone, balance::text, created_at FROM users WHERE phone = $1",
		phoneNumber,
	).Scan(&account.ID, &account.PhoneNumber, &balanceStr, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("account lookup failed: %w", err)
	}

	account.Balance, err = decimal.NewFromString(balanceStr)
	if err != nil {
		return nil, fmt.Errorf("stored balance is not numeric: %w", err)
	}
	return &account, nil
}

// CreateAccount inserts a new account with a zero balance.
func (s *Store) CreateAccount(ctx context.Context, phoneNumber string) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx,
		"INSERT INTO users (phone, balance) VALUES ($1, 0) RETURNING id",
		phoneNumber,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrAccountExists
		}
		return 0, fmt.Errorf("account insert failed: %w", err)
	}
	return id, nil
}
