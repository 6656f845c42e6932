package testutil

import (
	"time"

	"github.com/google/uuid"

	"stakehouse/fairness"
	"stakehouse/models"
)

// CreateTestRoom creates an OPEN room with a fresh commitment
func CreateTestRoom(kind models.RoomKind, currency models.Currency, game models.GameKind, stake int64) *models.Room {
	seed, err := fairness.NewServerSeed()
	if err != nil {
		panic(err)
	}
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Room{
		ID:             uuid.New(),
		Kind:           kind,
		Currency:       currency,
		Game:           game,
		StakeAmount:    stake,
		MaxPlayers:     4,
		StartMode:      models.StartModeFill,
		Status:         models.RoomStatusOpen,
		ServerSeedHash: fairness.Commit(seed),
		ServerSeed:     seed,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// CreateTestPlayer creates a join record for room
func CreateTestPlayer(roomID, userID uuid.UUID, clientSeed string, betLockEntryID int64) *models.RoomPlayer {
	return &models.RoomPlayer{
		RoomID:         roomID,
		UserID:         userID,
		ClientSeed:     clientSeed,
		BetLockEntryID: betLockEntryID,
		JoinedAt:       time.Now().UTC().Truncate(time.Microsecond),
	}
}

// CreateTestEntry creates an unsaved ledger entry for account
func CreateTestEntry(account *models.Account, entryType models.EntryType, amount int64, refType, refID string) *models.LedgerEntry {
	return &models.LedgerEntry{
		AccountID: account.ID,
		UserID:    account.UserID,
		Currency:  account.Currency,
		Type:      entryType,
		Amount:    amount,
		RefType:   refType,
		RefID:     refID,
	}
}

// CreateTestStake creates a LOCKED stake locked at now
func CreateTestStake(userID uuid.UUID, amount int64, lockFor time.Duration) *models.Stake {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Stake{
		ID:           uuid.New(),
		UserID:       userID,
		Amount:       amount,
		Status:       models.StakeStatusLocked,
		LockedAt:     now,
		UnlockAt:     now.Add(lockFor),
		LastRewardAt: now,
	}
}
