package service

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"stakehouse/lock"
	"stakehouse/models"
	"stakehouse/money"
)

// secondsPerYear is the APR accrual period
const secondsPerYear = 365 * 24 * 3600

// StakeLockKey serializes staking operations of one user
func StakeLockKey(userID uuid.UUID) string {
	return "stake:" + userID.String()
}

type stakingService struct {
	uowFactory UnitOfWorkFactory
	locker     lock.Locker
	cfg        EngineConfig
	now        func() time.Time
}

// NewStakingService creates a staking service
func NewStakingService(uowFactory UnitOfWorkFactory, locker lock.Locker, cfg EngineConfig) StakingService {
	return &stakingService{
		uowFactory: uowFactory,
		locker:     locker,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *stakingService) withUserLock(ctx context.Context, userID uuid.UUID, op string, fn func(uow UnitOfWork) error) error {
	return runLocked(ctx, s.locker, s.uowFactory, s.cfg.LockTTL, StakeLockKey(userID), op, s.cfg.LockBudgets.Join, fn)
}

// StakeReward returns amount * aprBps * seconds / (10000 * year), truncated
func StakeReward(amount, aprBps, seconds int64) int64 {
	if amount <= 0 || aprBps <= 0 || seconds <= 0 {
		return 0
	}
	r := new(big.Int).Mul(big.NewInt(amount), big.NewInt(aprBps))
	r.Mul(r, big.NewInt(seconds))
	r.Quo(r, big.NewInt(10000*secondsPerYear))
	if !r.IsInt64() {
		return 0
	}
	return r.Int64()
}

// Lock moves amount of TON from the user's balance into a new stake
func (s *stakingService) Lock(ctx context.Context, userID uuid.UUID, amount int64, lockSeconds int64) (uuid.UUID, error) {
	if amount <= 0 {
		return uuid.Nil, fmt.Errorf("%w: stake amount must be positive", ErrInvalidAmount)
	}

	lockFor := time.Duration(lockSeconds) * time.Second
	if lockFor < s.cfg.StakingMinLock {
		lockFor = s.cfg.StakingMinLock
	}

	now := s.now()
	stake := &models.Stake{
		ID:           uuid.New(),
		UserID:       userID,
		Amount:       amount,
		Status:       models.StakeStatusLocked,
		LockedAt:     now,
		UnlockAt:     now.Add(lockFor),
		LastRewardAt: now,
	}

	err := s.withUserLock(ctx, userID, "stake_lock", func(uow UnitOfWork) error {
		ref := models.AccountRef{UserID: userID, Currency: models.CurrencyTON}
		account, balance, err := lockedBalance(ctx, uow, ref)
		if err != nil {
			return err
		}
		if balance < amount {
			return fmt.Errorf("%w: balance %s TON, stake %s", ErrInsufficientFunds,
				money.FromNano(balance), money.FromNano(amount))
		}

		if _, err := PostLedgerEntry(ctx, uow, account, models.EntryStakeLock, -amount, models.RefTypeStake, stake.ID.String()); err != nil {
			return err
		}
		if err := uow.StakeRepository().Create(ctx, stake); err != nil {
			return fmt.Errorf("failed to create stake: %w", err)
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	log.WithFields(log.Fields{
		"userID":   userID,
		"stakeID":  stake.ID,
		"amount":   money.FromNano(amount),
		"unlockAt": stake.UnlockAt,
	}).Info("Locked stake")
	return stake.ID, nil
}

// Unlock returns a matured stake after crediting its final reward
func (s *stakingService) Unlock(ctx context.Context, userID, stakeID uuid.UUID) error {
	err := s.withUserLock(ctx, userID, "stake_unlock", func(uow UnitOfWork) error {
		stake, err := uow.StakeRepository().GetForUserForUpdate(ctx, userID, stakeID)
		if err != nil {
			return fmt.Errorf("failed to get stake: %w", err)
		}
		if stake == nil {
			return ErrStakeNotFound
		}
		if stake.Status != models.StakeStatusLocked {
			return ErrStakeNotLocked
		}
		now := s.now()
		if !stake.IsUnlockable(now) {
			return fmt.Errorf("%w: unlocks at %s", ErrStakeNotUnlockable, stake.UnlockAt.Format(time.RFC3339))
		}

		account, err := ensureAccount(ctx, uow, models.AccountRef{UserID: userID, Currency: models.CurrencyTON})
		if err != nil {
			return err
		}
		if _, err := s.accrue(ctx, uow, account, stake, now); err != nil {
			return err
		}

		stake.Status = models.StakeStatusUnlocked
		stake.UnlockedAt = &now
		if err := uow.StakeRepository().Update(ctx, stake); err != nil {
			return fmt.Errorf("failed to update stake: %w", err)
		}
		_, err = PostLedgerEntry(ctx, uow, account, models.EntryStakeUnlock, stake.Amount, models.RefTypeStake, stake.ID.String())
		return err
	})
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"userID":  userID,
		"stakeID": stakeID,
	}).Info("Unlocked stake")
	return nil
}

// AccrueRewards credits every LOCKED stake of the user up to now
func (s *stakingService) AccrueRewards(ctx context.Context, userID uuid.UUID) (int64, error) {
	var total int64
	err := s.withUserLock(ctx, userID, "stake_accrue", func(uow UnitOfWork) error {
		total = 0
		stakes, err := uow.StakeRepository().ListLockedForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to list stakes: %w", err)
		}
		if len(stakes) == 0 {
			return nil
		}

		account, err := ensureAccount(ctx, uow, models.AccountRef{UserID: userID, Currency: models.CurrencyTON})
		if err != nil {
			return err
		}
		now := s.now()
		for _, stake := range stakes {
			reward, err := s.accrue(ctx, uow, account, stake, now)
			if err != nil {
				return err
			}
			if err := uow.StakeRepository().Update(ctx, stake); err != nil {
				return fmt.Errorf("failed to update stake: %w", err)
			}
			total += reward
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if total > 0 {
		log.WithFields(log.Fields{
			"userID": userID,
			"reward": money.FromNano(total),
		}).Info("Accrued staking rewards")
	}
	return total, nil
}

// accrue posts the reward earned since stake.LastRewardAt and advances it
// by the whole seconds it paid for. The caller persists the stake.
func (s *stakingService) accrue(ctx context.Context, uow UnitOfWork, account *models.Account, stake *models.Stake, now time.Time) (int64, error) {
	seconds := int64(now.Sub(stake.LastRewardAt) / time.Second)
	if seconds <= 0 {
		return 0, nil
	}

	reward := StakeReward(stake.Amount, s.cfg.StakingAPRBps, seconds)
	if reward > 0 {
		if _, err := PostLedgerEntry(ctx, uow, account, models.EntryStakeReward, reward, models.RefTypeStakeReward, stake.ID.String()); err != nil {
			return 0, err
		}
	}
	stake.LastRewardAt = stake.LastRewardAt.Add(time.Duration(seconds) * time.Second)
	return reward, nil
}

// State returns the user's newest stakes
func (s *stakingService) State(ctx context.Context, userID uuid.UUID) ([]StakeView, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	stakes, err := uow.StakeRepository().ListByUser(ctx, userID, s.cfg.StakeLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stakes: %w", err)
	}

	views := make([]StakeView, 0, len(stakes))
	for _, stake := range stakes {
		views = append(views, StakeView{
			ID:           stake.ID,
			Amount:       money.FromNano(stake.Amount),
			Status:       stake.Status,
			LockedAt:     stake.LockedAt,
			UnlockAt:     stake.UnlockAt,
			LastRewardAt: stake.LastRewardAt,
		})
	}
	return views, nil
}
