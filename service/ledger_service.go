package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"stakehouse/models"
	"stakehouse/money"
)

type ledgerService struct {
	uowFactory UnitOfWorkFactory
}

// NewLedgerService creates a ledger service
func NewLedgerService(uowFactory UnitOfWorkFactory) LedgerService {
	return &ledgerService{uowFactory: uowFactory}
}

func validateRef(ref models.AccountRef) error {
	if ref.UserID == uuid.Nil {
		return fmt.Errorf("%w: missing user", ErrInvalidAmount)
	}
	if !ref.Currency.IsValid() {
		return fmt.Errorf("%w: unsupported currency %q", ErrInvalidAmount, ref.Currency)
	}
	return nil
}

// inTx runs fn in one unit of work
func (s *ledgerService) inTx(ctx context.Context, fn func(uow UnitOfWork) error) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", ErrAccountUnavailable, err)
	}
	defer uow.Rollback()

	if err := fn(uow); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %w", ErrAccountUnavailable, err)
	}
	return nil
}

// Balance returns the sum of all entries of the account
func (s *ledgerService) Balance(ctx context.Context, ref models.AccountRef) (int64, error) {
	if err := validateRef(ref); err != nil {
		return 0, err
	}

	var balance int64
	err := s.inTx(ctx, func(uow UnitOfWork) error {
		var err error
		balance, err = uow.LedgerRepository().Balance(ctx, ref)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrAccountUnavailable, err)
		}
		return nil
	})
	return balance, err
}

// Post appends an unconditional entry. Sufficiency is the caller's concern.
func (s *ledgerService) Post(ctx context.Context, ref models.AccountRef, entryType models.EntryType, amount int64, refType, refID string) (int64, error) {
	if err := validateRef(ref); err != nil {
		return 0, err
	}
	if !entryType.IsValid() {
		return 0, fmt.Errorf("%w: unknown entry type %q", ErrInvalidAmount, entryType)
	}

	var entryID int64
	err := s.inTx(ctx, func(uow UnitOfWork) error {
		account, err := ensureAccount(ctx, uow, ref)
		if err != nil {
			return err
		}
		entry, err := PostLedgerEntry(ctx, uow, account, entryType, amount, refType, refID)
		if err != nil {
			return err
		}
		entryID = entry.ID
		return nil
	})
	return entryID, err
}

// Credit posts +amount. A repeated DEPOSIT for the same reference returns
// the original entry.
func (s *ledgerService) Credit(ctx context.Context, ref models.AccountRef, entryType models.EntryType, amount int64, refType, refID string) (int64, error) {
	if err := validateRef(ref); err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, fmt.Errorf("%w: credit amount must be positive", ErrInvalidAmount)
	}

	var entryID int64
	err := s.inTx(ctx, func(uow UnitOfWork) error {
		account, err := uow.LedgerRepository().LockAccount(ctx, ref)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrAccountUnavailable, err)
		}

		if entryType == models.EntryDeposit && refID != "" {
			existing, err := uow.LedgerRepository().FindByReference(ctx, entryType, refType, refID)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrAccountUnavailable, err)
			}
			if existing != nil {
				log.WithFields(log.Fields{
					"userID":  ref.UserID,
					"refType": refType,
					"refID":   refID,
					"entryID": existing.ID,
				}).Info("Deposit already credited")
				entryID = existing.ID
				return nil
			}
		}

		entry, err := PostLedgerEntry(ctx, uow, account, entryType, amount, refType, refID)
		if err != nil {
			return err
		}
		entryID = entry.ID
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.WithFields(log.Fields{
		"userID":   ref.UserID,
		"currency": ref.Currency,
		"type":     entryType,
		"amount":   money.FromNano(amount),
	}).Info("Credited account")
	return entryID, nil
}

// Debit posts -amount once the locked balance is known to cover it
func (s *ledgerService) Debit(ctx context.Context, ref models.AccountRef, entryType models.EntryType, amount int64, refType, refID string) (int64, error) {
	if err := validateRef(ref); err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, fmt.Errorf("%w: debit amount must be positive", ErrInvalidAmount)
	}

	var entryID int64
	err := s.inTx(ctx, func(uow UnitOfWork) error {
		account, balance, err := lockedBalance(ctx, uow, ref)
		if err != nil {
			return err
		}
		if balance < amount {
			return fmt.Errorf("%w: balance %s %s, requested %s", ErrInsufficientFunds,
				money.FromNano(balance), ref.Currency, money.FromNano(amount))
		}
		entry, err := PostLedgerEntry(ctx, uow, account, entryType, -amount, refType, refID)
		if err != nil {
			return err
		}
		entryID = entry.ID
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.WithFields(log.Fields{
		"userID":   ref.UserID,
		"currency": ref.Currency,
		"type":     entryType,
		"amount":   money.FromNano(amount),
	}).Info("Debited account")
	return entryID, nil
}

// Balances returns every supported currency, zero when no account exists
func (s *ledgerService) Balances(ctx context.Context, userID uuid.UUID) (map[models.Currency]string, error) {
	var sums map[models.Currency]int64
	err := s.inTx(ctx, func(uow UnitOfWork) error {
		var err error
		sums, err = uow.LedgerRepository().BalancesByUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrAccountUnavailable, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := map[models.Currency]string{
		models.CurrencyXTR: money.FromNano(sums[models.CurrencyXTR]),
		models.CurrencyTON: money.FromNano(sums[models.CurrencyTON]),
	}
	return result, nil
}

// Entries returns the newest entries of the account
func (s *ledgerService) Entries(ctx context.Context, ref models.AccountRef, limit int) ([]*models.LedgerEntry, error) {
	if err := validateRef(ref); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	var entries []*models.LedgerEntry
	err := s.inTx(ctx, func(uow UnitOfWork) error {
		var err error
		entries, err = uow.LedgerRepository().ListByAccount(ctx, ref, limit)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrAccountUnavailable, err)
		}
		return nil
	})
	return entries, err
}
