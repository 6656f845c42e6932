package service

import (
	"context"
	"fmt"

	"stakehouse/events"
	"stakehouse/models"
)

// PostLedgerEntry appends an entry to account and emits a
// LedgerEntryPostedEvent. This is the single entry point for all balance
// changes in the system. It never checks sufficiency.
func PostLedgerEntry(ctx context.Context, uow UnitOfWork, account *models.Account, entryType models.EntryType, amount int64, refType, refID string) (*models.LedgerEntry, error) {
	entry := &models.LedgerEntry{
		AccountID: account.ID,
		UserID:    account.UserID,
		Currency:  account.Currency,
		Type:      entryType,
		Amount:    amount,
		RefType:   refType,
		RefID:     refID,
	}
	if err := uow.LedgerRepository().Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("%w: failed to post %s entry for user %s: %w", ErrAccountUnavailable, entryType, account.UserID, err)
	}

	// flushed after the transaction commits
	uow.EventBus().Publish(events.LedgerEntryPostedEvent{
		EntryID:   entry.ID,
		UserID:    entry.UserID,
		Currency:  entry.Currency,
		EntryType: entry.Type,
		Amount:    entry.Amount,
		RefType:   entry.RefType,
		RefID:     entry.RefID,
	})
	return entry, nil
}

// ensureAccount wraps EnsureAccount storage failures as ErrAccountUnavailable
func ensureAccount(ctx context.Context, uow UnitOfWork, ref models.AccountRef) (*models.Account, error) {
	account, err := uow.LedgerRepository().EnsureAccount(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAccountUnavailable, err)
	}
	return account, nil
}

// lockedBalance row-locks the account and returns it with its balance.
// Callers must hold the lock for the rest of the transaction before posting
// a debit.
func lockedBalance(ctx context.Context, uow UnitOfWork, ref models.AccountRef) (*models.Account, int64, error) {
	account, err := uow.LedgerRepository().LockAccount(ctx, ref)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrAccountUnavailable, err)
	}
	balance, err := uow.LedgerRepository().Balance(ctx, ref)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrAccountUnavailable, err)
	}
	return account, balance, nil
}
