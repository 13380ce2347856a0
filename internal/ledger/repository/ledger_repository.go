package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"live_session_service/internal/ledger/domain"
	errprocess "live_session_service/pkg/err"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// LedgerRepository wallet storage, every mutation is one indivisible step.
// Credit / Debit / Transfer return applied=false when entry.Reference was already booked.
type LedgerRepository interface {
	CreateWallet(ctx context.Context, ownerID string) error
	GetWallet(ctx context.Context, ownerID string) (*domain.Wallet, error)
	Credit(ctx context.Context, ownerID string, entry domain.Entry) (bool, error)
	Debit(ctx context.Context, ownerID string, entry domain.Entry) (bool, error)
	Transfer(ctx context.Context, fromID, toID string, entry domain.Entry) (bool, error)
	RecentEntries(ctx context.Context, ownerID string, limit int) ([]domain.Entry, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS wallets (
	owner_id   TEXT PRIMARY KEY,
	balance    BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS ledger_entries (
	id         TEXT PRIMARY KEY,
	reference  TEXT NOT NULL UNIQUE,
	kind       TEXT NOT NULL,
	from_id    TEXT NOT NULL DEFAULT '',
	to_id      TEXT NOT NULL DEFAULT '',
	amount     BIGINT NOT NULL CHECK (amount > 0),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ledger_entries_from_idx ON ledger_entries (from_id, created_at DESC);
CREATE INDEX IF NOT EXISTS ledger_entries_to_idx ON ledger_entries (to_id, created_at DESC);
`

type ledgerRepository struct {
	db *pgxpool.Pool
}

// NewLedgerRepository create a postgres LedgerRepository
func NewLedgerRepository(db *pgxpool.Pool) LedgerRepository {
	return &ledgerRepository{db: db}
}

// EnsureSchema create the ledger tables when missing
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, schema)
	return err
}

func (r *ledgerRepository) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *ledgerRepository) CreateWallet(ctx context.Context, ownerID string) error {
	_, err := r.db.Exec(ctx,
		"INSERT INTO wallets (owner_id, balance) VALUES ($1, 0) ON CONFLICT (owner_id) DO NOTHING", ownerID)
	return err
}

func (r *ledgerRepository) GetWallet(ctx context.Context, ownerID string) (*domain.Wallet, error) {
	var w domain.Wallet
	err := r.db.QueryRow(ctx,
		"SELECT owner_id, balance, updated_at FROM wallets WHERE owner_id = $1", ownerID).
		Scan(&w.OwnerID, &w.Balance, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errprocess.ErrUnknownAccount
		}
		return nil, err
	}
	return &w, nil
}

// lockBalance SELECT ... FOR UPDATE, 同一帳戶的併發操作在此排隊
func lockBalance(ctx context.Context, tx pgx.Tx, ownerID string) (int64, error) {
	var balance int64
	err := tx.QueryRow(ctx, "SELECT balance FROM wallets WHERE owner_id = $1 FOR UPDATE", ownerID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, errprocess.ErrUnknownAccount
	}
	return balance, err
}

// insertEntry returns false when the reference is already booked
func insertEntry(ctx context.Context, tx pgx.Tx, e domain.Entry) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO ledger_entries (id, reference, kind, from_id, to_id, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (reference) DO NOTHING`,
		e.ID, e.Reference, string(e.Kind), e.FromID, e.ToID, e.Amount, e.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func addBalance(ctx context.Context, tx pgx.Tx, ownerID string, delta int64) error {
	_, err := tx.Exec(ctx,
		"UPDATE wallets SET balance = balance + $2, updated_at = $3 WHERE owner_id = $1", ownerID, delta, time.Now())
	return err
}

func (r *ledgerRepository) Credit(ctx context.Context, ownerID string, e domain.Entry) (bool, error) {
	var applied bool
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		balance, err := lockBalance(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		ok, err := insertEntry(ctx, tx, e)
		if err != nil || !ok {
			return err
		}
		// bigint 溢位在 postgres 會是 internal error, 先以 invalid amount 拒絕
		if !domain.CanReceive(balance, e.Amount) {
			return errprocess.ErrInvalidAmount
		}
		if err := addBalance(ctx, tx, ownerID, e.Amount); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

func (r *ledgerRepository) Debit(ctx context.Context, ownerID string, e domain.Entry) (bool, error) {
	var applied bool
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		balance, err := lockBalance(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		ok, err := insertEntry(ctx, tx, e)
		if err != nil || !ok {
			return err
		}
		// 餘額不足直接拒絕, rollback 會一併撤銷 entry
		if balance < e.Amount {
			return errprocess.ErrInsufficientBalance
		}
		if err := addBalance(ctx, tx, ownerID, -e.Amount); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

func (r *ledgerRepository) Transfer(ctx context.Context, fromID, toID string, e domain.Entry) (bool, error) {
	var applied bool
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		// 依 owner_id 排序上鎖避免 deadlock
		rows, err := tx.Query(ctx,
			"SELECT owner_id, balance FROM wallets WHERE owner_id = ANY($1) ORDER BY owner_id FOR UPDATE",
			[]string{fromID, toID})
		if err != nil {
			return err
		}
		balances := make(map[string]int64, 2)
		for rows.Next() {
			var (
				id      string
				balance int64
			)
			if err := rows.Scan(&id, &balance); err != nil {
				rows.Close()
				return err
			}
			balances[id] = balance
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		fromBalance, okFrom := balances[fromID]
		toBalance, okTo := balances[toID]
		if !okFrom || !okTo {
			return errprocess.ErrUnknownAccount
		}

		ok, err := insertEntry(ctx, tx, e)
		if err != nil || !ok {
			return err
		}
		if fromBalance < e.Amount {
			return errprocess.ErrInsufficientBalance
		}
		if fromID != toID && !domain.CanReceive(toBalance, e.Amount) {
			return errprocess.ErrInvalidAmount
		}
		if err := addBalance(ctx, tx, fromID, -e.Amount); err != nil {
			return err
		}
		if err := addBalance(ctx, tx, toID, e.Amount); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

func (r *ledgerRepository) RecentEntries(ctx context.Context, ownerID string, limit int) ([]domain.Entry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, reference, kind, from_id, to_id, amount, created_at
		FROM ledger_entries
		WHERE from_id = $1 OR to_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		var (
			e    domain.Entry
			kind string
		)
		if err := rows.Scan(&e.ID, &e.Reference, &kind, &e.FromID, &e.ToID, &e.Amount, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = domain.EntryKind(kind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
