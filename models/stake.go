package models

import (
	"time"

	"github.com/google/uuid"
)

// StakeStatus is the state of a TON staking position
type StakeStatus string

const (
	StakeStatusLocked   StakeStatus = "LOCKED"
	StakeStatusUnlocked StakeStatus = "UNLOCKED"
)

// Stake is a TON amount locked for a minimum period and earning rewards
type Stake struct {
	ID           uuid.UUID   `db:"id"`
	UserID       uuid.UUID   `db:"user_id"`
	Amount       int64       `db:"amount"`
	Status       StakeStatus `db:"status"`
	LockedAt     time.Time   `db:"locked_at"`
	UnlockAt     time.Time   `db:"unlock_at"`
	LastRewardAt time.Time   `db:"last_reward_at"`
	UnlockedAt   *time.Time  `db:"unlocked_at"`
}

// IsUnlockable checks whether the lock period has elapsed at now
func (s *Stake) IsUnlockable(now time.Time) bool {
	return s.Status == StakeStatusLocked && !now.Before(s.UnlockAt)
}
