package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stakehouse/models"
	"stakehouse/money"
)

func TestLedgerService_CreditDebit(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewLedgerService(store)
	ref := models.AccountRef{UserID: TestUser1ID, Currency: models.CurrencyTON}

	_, err := svc.Credit(ctx, ref, models.EntryDeposit, 3*money.One, models.RefTypeDeposit, "tx-1")
	require.NoError(t, err)

	_, err = svc.Debit(ctx, ref, models.EntryWithdraw, money.One, models.RefTypeWithdrawal, "w-1")
	require.NoError(t, err)

	balance, err := svc.Balance(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 2*money.One, balance)

	_, err = svc.Debit(ctx, ref, models.EntryWithdraw, 2*money.One+1, models.RefTypeWithdrawal, "w-2")
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	balance, err = svc.Balance(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 2*money.One, balance)
}

func TestLedgerService_DepositIdempotentPerReference(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewLedgerService(store)
	ref := models.AccountRef{UserID: TestUser1ID, Currency: models.CurrencyXTR}

	first, err := svc.Credit(ctx, ref, models.EntryDeposit, 50*money.One, models.RefTypeDeposit, "invoice-9")
	require.NoError(t, err)
	second, err := svc.Credit(ctx, ref, models.EntryDeposit, 50*money.One, models.RefTypeDeposit, "invoice-9")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 50*money.One, store.Balance(TestUser1ID, models.CurrencyXTR))
	assert.Len(t, store.Entries(models.EntryDeposit), 1)
}

func TestLedgerService_PostIsUnconditional(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewLedgerService(store)
	ref := models.AccountRef{UserID: TestUser1ID, Currency: models.CurrencyTON}

	id, err := svc.Post(ctx, ref, models.EntryBetLock, -money.One, models.RefTypeRoom, uuid.NewString())
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Equal(t, -money.One, store.Balance(TestUser1ID, models.CurrencyTON))

	_, err = svc.Post(ctx, ref, "BONUS", 1, "", "")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestLedgerService_Validation(t *testing.T) {
	ctx := context.Background()
	svc := NewLedgerService(newMemStore())

	_, err := svc.Credit(ctx, models.AccountRef{UserID: TestUser1ID, Currency: "USD"}, models.EntryDeposit, 1, "", "")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Credit(ctx, models.AccountRef{Currency: models.CurrencyTON}, models.EntryDeposit, 1, "", "")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Debit(ctx, models.AccountRef{UserID: TestUser1ID, Currency: models.CurrencyTON}, models.EntryWithdraw, 0, "", "")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestLedgerService_BalancesAndEntries(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewLedgerService(store)

	store.deposit(TestUser1ID, models.CurrencyTON, money.MustToNano("1.25"))
	store.deposit(TestUser1ID, models.CurrencyTON, money.MustToNano("0.5"))

	balances, err := svc.Balances(ctx, TestUser1ID)
	require.NoError(t, err)
	assert.Equal(t, map[models.Currency]string{
		models.CurrencyTON: "1.75",
		models.CurrencyXTR: "0",
	}, balances)

	entries, err := svc.Entries(ctx, models.AccountRef{UserID: TestUser1ID, Currency: models.CurrencyTON}, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, money.MustToNano("0.5"), entries[0].Amount)
}

func TestLedgerService_StorageFailure(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.failAppend = errors.New("disk full")
	svc := NewLedgerService(store)

	_, err := svc.Credit(ctx, models.AccountRef{UserID: TestUser1ID, Currency: models.CurrencyTON}, models.EntryDeposit, 1, models.RefTypeDeposit, "x")
	assert.ErrorIs(t, err, ErrAccountUnavailable)
}
