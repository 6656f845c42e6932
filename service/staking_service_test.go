package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stakehouse/models"
	"stakehouse/money"
)

type stakingFixture struct {
	svc   *stakingService
	store *memStore
	now   time.Time
}

func newStakingFixture(t *testing.T) *stakingFixture {
	t.Helper()
	f := &stakingFixture{
		store: newMemStore(),
		now:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	cfg := DefaultEngineConfig()
	cfg.StakingAPRBps = 1000
	cfg.StakingMinLock = 24 * time.Hour
	f.svc = NewStakingService(f.store, newMemLocker(), cfg).(*stakingService)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func TestStakeReward(t *testing.T) {
	// 10% APR on 365 TON for one day is 0.1 TON
	assert.Equal(t, money.MustToNano("0.1"), StakeReward(365*money.One, 1000, 24*3600))
	assert.Equal(t, int64(0), StakeReward(1, 500, 1))
	assert.Equal(t, int64(0), StakeReward(money.One, 0, 3600))
	// large products do not overflow
	assert.Equal(t, int64(9223372036854775807/10), StakeReward(9223372036854775807, 1000, 365*24*3600))
}

func TestStakingService_LockAccrueUnlock(t *testing.T) {
	ctx := context.Background()
	f := newStakingFixture(t)
	f.store.deposit(TestUser1ID, models.CurrencyTON, 500*money.One)

	id, err := f.svc.Lock(ctx, TestUser1ID, 365*money.One, 3600)
	require.NoError(t, err)
	assert.Equal(t, 135*money.One, f.store.Balance(TestUser1ID, models.CurrencyTON))

	lockEntries := f.store.Entries(models.EntryStakeLock)
	require.Len(t, lockEntries, 1)
	assert.Equal(t, -365*money.One, lockEntries[0].Amount)
	assert.Equal(t, id.String(), lockEntries[0].RefID)

	state, err := f.svc.State(ctx, TestUser1ID)
	require.NoError(t, err)
	require.Len(t, state, 1)
	assert.Equal(t, "365", state[0].Amount)
	// requested lock is shorter than the minimum
	assert.Equal(t, f.now.Add(24*time.Hour), state[0].UnlockAt)

	f.now = f.now.Add(12 * time.Hour)
	err = f.svc.Unlock(ctx, TestUser1ID, id)
	assert.ErrorIs(t, err, ErrStakeNotUnlockable)

	reward, err := f.svc.AccrueRewards(ctx, TestUser1ID)
	require.NoError(t, err)
	assert.Equal(t, money.MustToNano("0.05"), reward)

	f.now = f.now.Add(12 * time.Hour)
	require.NoError(t, f.svc.Unlock(ctx, TestUser1ID, id))

	rewards := f.store.Entries(models.EntryStakeReward)
	require.Len(t, rewards, 2)
	for _, r := range rewards {
		assert.Equal(t, money.MustToNano("0.05"), r.Amount)
		assert.Equal(t, models.RefTypeStakeReward, r.RefType)
		assert.Equal(t, id.String(), r.RefID)
	}
	assert.Equal(t, money.MustToNano("500.1"), f.store.Balance(TestUser1ID, models.CurrencyTON))

	err = f.svc.Unlock(ctx, TestUser1ID, id)
	assert.ErrorIs(t, err, ErrStakeNotLocked)

	reward, err = f.svc.AccrueRewards(ctx, TestUser1ID)
	require.NoError(t, err)
	assert.Zero(t, reward)
}

func TestStakingService_Lock_InsufficientFunds(t *testing.T) {
	ctx := context.Background()
	f := newStakingFixture(t)
	f.store.deposit(TestUser1ID, models.CurrencyTON, money.One)
	f.store.deposit(TestUser1ID, models.CurrencyXTR, 100*money.One)

	_, err := f.svc.Lock(ctx, TestUser1ID, 2*money.One, 0)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Empty(t, f.store.Entries(models.EntryStakeLock))

	_, err = f.svc.Lock(ctx, TestUser1ID, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestStakingService_Unlock_Errors(t *testing.T) {
	ctx := context.Background()
	f := newStakingFixture(t)
	f.store.deposit(TestUser1ID, models.CurrencyTON, 10*money.One)

	err := f.svc.Unlock(ctx, TestUser1ID, uuid.New())
	assert.ErrorIs(t, err, ErrStakeNotFound)

	id, err := f.svc.Lock(ctx, TestUser1ID, money.One, 0)
	require.NoError(t, err)

	// another user's stake is invisible
	err = f.svc.Unlock(ctx, TestUser2ID, id)
	assert.ErrorIs(t, err, ErrStakeNotFound)
}

func TestStakingService_AccrueKeepsFractionalSeconds(t *testing.T) {
	ctx := context.Background()
	f := newStakingFixture(t)
	f.store.deposit(TestUser1ID, models.CurrencyTON, 365*money.One)

	_, err := f.svc.Lock(ctx, TestUser1ID, 365*money.One, 0)
	require.NoError(t, err)

	f.now = f.now.Add(1500 * time.Millisecond)
	_, err = f.svc.AccrueRewards(ctx, TestUser1ID)
	require.NoError(t, err)
	f.now = f.now.Add(500 * time.Millisecond)
	_, err = f.svc.AccrueRewards(ctx, TestUser1ID)
	require.NoError(t, err)

	var total int64
	for _, e := range f.store.Entries(models.EntryStakeReward) {
		total += e.Amount
	}
	assert.Equal(t, StakeReward(365*money.One, 1000, 1)*2, total)
}
