package models

import (
	"time"

	"github.com/google/uuid"
)

// EntryType classifies a ledger movement
type EntryType string

const (
	EntryDeposit     EntryType = "DEPOSIT"
	EntryWithdraw    EntryType = "WITHDRAW"
	EntryBetLock     EntryType = "BET_LOCK"
	EntryBetUnlock   EntryType = "BET_UNLOCK"
	EntryPayout      EntryType = "PAYOUT"
	EntryRefund      EntryType = "REFUND"
	EntryStakeLock   EntryType = "STAKE_LOCK"
	EntryStakeUnlock EntryType = "STAKE_UNLOCK"
	EntryStakeReward EntryType = "STAKE_REWARD"
)

// IsValid reports whether the entry type is known
func (t EntryType) IsValid() bool {
	switch t {
	case EntryDeposit, EntryWithdraw, EntryBetLock, EntryBetUnlock, EntryPayout,
		EntryRefund, EntryStakeLock, EntryStakeUnlock, EntryStakeReward:
		return true
	}
	return false
}

// Reference types tie ledger entries back to the record that caused them
const (
	RefTypeRoom        = "ROOM"
	RefTypeRoomPayout  = "ROOM_PAYOUT"
	RefTypeRoomRefund  = "ROOM_REFUND"
	RefTypeStake       = "STAKE"
	RefTypeStakeReward = "STAKE_REWARD"
	RefTypeDeposit     = "DEPOSIT"
	RefTypeWithdrawal  = "WITHDRAWAL"
)

// AccountRef addresses a (user, currency) account
type AccountRef struct {
	UserID   uuid.UUID
	Currency Currency
}

// Account is the ledger's per-user, per-currency grouping key
type Account struct {
	ID        int64     `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	Currency  Currency  `db:"currency"`
	CreatedAt time.Time `db:"created_at"`
}

// Ref returns the account's address
func (a *Account) Ref() AccountRef {
	return AccountRef{UserID: a.UserID, Currency: a.Currency}
}

// LedgerEntry is a single signed, append-only movement
type LedgerEntry struct {
	ID        int64     `db:"id"`
	AccountID int64     `db:"account_id"`
	UserID    uuid.UUID `db:"user_id"`
	Currency  Currency  `db:"currency"`
	Type      EntryType `db:"type"`
	Amount    int64     `db:"amount"` // nano units, signed
	RefType   string    `db:"ref_type"`
	RefID     string    `db:"ref_id"`
	CreatedAt time.Time `db:"created_at"`
}
