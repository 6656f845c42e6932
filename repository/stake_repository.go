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

const stakeColumns = `id, user_id, amount, status, locked_at, unlock_at, last_reward_at, unlocked_at`

// StakeRepository implements staking position data access
type StakeRepository struct {
	q queryable
}

// NewStakeRepository creates a new stake repository
func NewStakeRepository(db *database.DB) *StakeRepository {
	return &StakeRepository{q: db.Pool}
}

func newStakeRepositoryWithTx(tx queryable) *StakeRepository {
	return &StakeRepository{q: tx}
}

func scanStake(row pgx.Row) (*models.Stake, error) {
	var s models.Stake
	err := row.Scan(&s.ID, &s.UserID, &s.Amount, &s.Status, &s.LockedAt, &s.UnlockAt, &s.LastRewardAt, &s.UnlockedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a stake
func (r *StakeRepository) Create(ctx context.Context, stake *models.Stake) error {
	query := `
		INSERT INTO stakes (` + stakeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.q.Exec(ctx, query,
		stake.ID,
		stake.UserID,
		stake.Amount,
		stake.Status,
		stake.LockedAt,
		stake.UnlockAt,
		stake.LastRewardAt,
		stake.UnlockedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create stake: %w", err)
	}
	return nil
}

// GetForUserForUpdate returns and row-locks a stake owned by userID
func (r *StakeRepository) GetForUserForUpdate(ctx context.Context, userID, stakeID uuid.UUID) (*models.Stake, error) {
	query := `
		SELECT ` + stakeColumns + `
		FROM stakes
		WHERE id = $1 AND user_id = $2
		FOR UPDATE
	`

	stake, err := scanStake(r.q.QueryRow(ctx, query, stakeID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stake %s: %w", stakeID, err)
	}
	return stake, nil
}

// ListLockedForUpdate returns and row-locks the LOCKED stakes of a user
func (r *StakeRepository) ListLockedForUpdate(ctx context.Context, userID uuid.UUID) ([]*models.Stake, error) {
	query := `
		SELECT ` + stakeColumns + `
		FROM stakes
		WHERE user_id = $1 AND status = 'LOCKED'
		ORDER BY locked_at ASC
		FOR UPDATE
	`
	return r.list(ctx, query, userID)
}

// ListByUser returns the newest stakes of a user
func (r *StakeRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Stake, error) {
	query := `
		SELECT ` + stakeColumns + `
		FROM stakes
		WHERE user_id = $1
		ORDER BY locked_at DESC
		LIMIT $2
	`
	return r.list(ctx, query, userID, limit)
}

func (r *StakeRepository) list(ctx context.Context, query string, args ...any) ([]*models.Stake, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stakes: %w", err)
	}
	defer rows.Close()

	var stakes []*models.Stake
	for rows.Next() {
		stake, err := scanStake(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stake: %w", err)
		}
		stakes = append(stakes, stake)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stakes: %w", err)
	}
	return stakes, nil
}

// Update persists the mutable fields of a stake
func (r *StakeRepository) Update(ctx context.Context, stake *models.Stake) error {
	query := `
		UPDATE stakes
		SET status = $2, last_reward_at = $3, unlocked_at = $4
		WHERE id = $1
	`

	tag, err := r.q.Exec(ctx, query, stake.ID, stake.Status, stake.LastRewardAt, stake.UnlockedAt)
	if err != nil {
		return fmt.Errorf("failed to update stake %s: %w", stake.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("stake %s not found", stake.ID)
	}
	return nil
}
