package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"stakehouse/database"
	"stakehouse/models"
)

// LedgerRepository implements account and ledger entry data access.
// Entries are only ever inserted; a trigger rejects updates and deletes.
type LedgerRepository struct {
	q queryable
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *database.DB) *LedgerRepository {
	return &LedgerRepository{q: db.Pool}
}

func newLedgerRepositoryWithTx(tx queryable) *LedgerRepository {
	return &LedgerRepository{q: tx}
}

// EnsureAccount returns the account for ref, creating it on first use
func (r *LedgerRepository) EnsureAccount(ctx context.Context, ref models.AccountRef) (*models.Account, error) {
	// the no-op update makes RETURNING yield the existing row
	query := `
		INSERT INTO accounts (user_id, currency)
		VALUES ($1, $2)
		ON CONFLICT (user_id, currency) DO UPDATE SET currency = EXCLUDED.currency
		RETURNING id, user_id, currency, created_at
	`

	var account models.Account
	err := r.q.QueryRow(ctx, query, ref.UserID, ref.Currency).Scan(
		&account.ID,
		&account.UserID,
		&account.Currency,
		&account.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure account %s/%s: %w", ref.UserID, ref.Currency, err)
	}
	return &account, nil
}

// LockAccount ensures the account exists and holds its row lock until the
// transaction ends
func (r *LedgerRepository) LockAccount(ctx context.Context, ref models.AccountRef) (*models.Account, error) {
	if _, err := r.EnsureAccount(ctx, ref); err != nil {
		return nil, err
	}

	query := `
		SELECT id, user_id, currency, created_at
		FROM accounts
		WHERE user_id = $1 AND currency = $2
		FOR UPDATE
	`

	var account models.Account
	err := r.q.QueryRow(ctx, query, ref.UserID, ref.Currency).Scan(
		&account.ID,
		&account.UserID,
		&account.Currency,
		&account.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to lock account %s/%s: %w", ref.UserID, ref.Currency, err)
	}
	return &account, nil
}

// Balance sums every entry of the account
func (r *LedgerRepository) Balance(ctx context.Context, ref models.AccountRef) (int64, error) {
	query := `
		SELECT COALESCE(SUM(e.amount), 0)::BIGINT
		FROM ledger_entries e
		JOIN accounts a ON a.id = e.account_id
		WHERE a.user_id = $1 AND a.currency = $2
	`

	var balance int64
	if err := r.q.QueryRow(ctx, query, ref.UserID, ref.Currency).Scan(&balance); err != nil {
		return 0, fmt.Errorf("failed to get balance of %s/%s: %w", ref.UserID, ref.Currency, err)
	}
	return balance, nil
}

// Append inserts an entry and fills its ID and CreatedAt
func (r *LedgerRepository) Append(ctx context.Context, entry *models.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (account_id, type, amount, ref_type, ref_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query, entry.AccountID, entry.Type, entry.Amount, entry.RefType, entry.RefID).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append %s entry to account %d: %w", entry.Type, entry.AccountID, err)
	}
	return nil
}

const entryColumns = `e.id, e.account_id, a.user_id, a.currency, e.type, e.amount, e.ref_type, e.ref_id, e.created_at`

func scanEntry(row pgx.Row) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := row.Scan(&e.ID, &e.AccountID, &e.UserID, &e.Currency, &e.Type, &e.Amount, &e.RefType, &e.RefID, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// FindByReference returns the oldest entry of a type carrying the reference
func (r *LedgerRepository) FindByReference(ctx context.Context, entryType models.EntryType, refType, refID string) (*models.LedgerEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries e
		JOIN accounts a ON a.id = e.account_id
		WHERE e.type = $1 AND e.ref_type = $2 AND e.ref_id = $3
		ORDER BY e.id ASC
		LIMIT 1
	`

	entry, err := scanEntry(r.q.QueryRow(ctx, query, entryType, refType, refID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find %s entry %s/%s: %w", entryType, refType, refID, err)
	}
	return entry, nil
}

// ListByAccount returns the newest entries of the account
func (r *LedgerRepository) ListByAccount(ctx context.Context, ref models.AccountRef, limit int) ([]*models.LedgerEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries e
		JOIN accounts a ON a.id = e.account_id
		WHERE a.user_id = $1 AND a.currency = $2
		ORDER BY e.id DESC
		LIMIT $3
	`

	rows, err := r.q.Query(ctx, query, ref.UserID, ref.Currency, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries of %s/%s: %w", ref.UserID, ref.Currency, err)
	}
	defer rows.Close()

	var entries []*models.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entries: %w", err)
	}
	return entries, nil
}

// BalancesByUser sums entries per currency
func (r *LedgerRepository) BalancesByUser(ctx context.Context, userID uuid.UUID) (map[models.Currency]int64, error) {
	query := `
		SELECT a.currency, COALESCE(SUM(e.amount), 0)::BIGINT
		FROM accounts a
		LEFT JOIN ledger_entries e ON e.account_id = a.id
		WHERE a.user_id = $1
		GROUP BY a.currency
	`

	rows, err := r.q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get balances of %s: %w", userID, err)
	}
	defer rows.Close()

	balances := make(map[models.Currency]int64)
	for rows.Next() {
		var currency models.Currency
		var sum int64
		if err := rows.Scan(&currency, &sum); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		balances[currency] = sum
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating balances: %w", err)
	}
	return balances, nil
}
