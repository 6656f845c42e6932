package service

import (
	"time"

	"stakehouse/models"
	"stakehouse/money"
)

// StakeTier is one lobby slot kept populated with a SYSTEM room
type StakeTier struct {
	Currency    models.Currency
	Game        models.GameKind
	StakeAmount int64
	MaxPlayers  int
}

// LockBudgets are per-operation acquire waits for the room lock
type LockBudgets struct {
	Join   time.Duration
	Cancel time.Duration
	Refund time.Duration
	Settle time.Duration
}

// EngineConfig is everything the engine needs besides its collaborators
type EngineConfig struct {
	Tiers        []StakeTier
	HouseEdgeBps int64

	LockTTL     time.Duration // must exceed the slowest critical section
	LockBudgets LockBudgets

	FillGrace           time.Duration
	TimerSettleSlack    time.Duration
	UserRoomCancelAfter time.Duration
	DefaultStartDelay   time.Duration
	MinStartDelay       time.Duration
	MaxStartDelay       time.Duration
	MinUserPlayers      int
	MaxUserPlayers      int

	StakingMinLock time.Duration
	StakingAPRBps  int64

	ListLimit    int
	HistoryLimit int
	StakeLimit   int
}

var defaultMaxPlayers = map[models.GameKind]int{
	models.GameRoulette: 20,
	models.GameCoinflip: 2,
	models.GameJackpot:  30,
	models.GameCrash:    20,
}

// DefaultMaxPlayers is the seat count of a system room for game
func DefaultMaxPlayers(game models.GameKind) int {
	return defaultMaxPlayers[game]
}

// DefaultTiers returns the lobby tiers: XTR 10/50/100 and TON 0.1/0.5/1
// for each of roulette, coinflip and jackpot
func DefaultTiers() []StakeTier {
	stakes := map[models.Currency][]string{
		models.CurrencyXTR: {"10", "50", "100"},
		models.CurrencyTON: {"0.1", "0.5", "1"},
	}
	games := []models.GameKind{models.GameRoulette, models.GameCoinflip, models.GameJackpot}

	var tiers []StakeTier
	for _, currency := range []models.Currency{models.CurrencyXTR, models.CurrencyTON} {
		for _, game := range games {
			for _, s := range stakes[currency] {
				tiers = append(tiers, StakeTier{
					Currency:    currency,
					Game:        game,
					StakeAmount: money.MustToNano(s),
					MaxPlayers:  DefaultMaxPlayers(game),
				})
			}
		}
	}
	return tiers
}

// DefaultEngineConfig returns production defaults
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Tiers:        DefaultTiers(),
		HouseEdgeBps: 100,
		LockTTL:      30 * time.Second,
		LockBudgets: LockBudgets{
			Join:   5 * time.Second,
			Cancel: 5 * time.Second,
			Refund: 8 * time.Second,
			Settle: 10 * time.Second,
		},
		FillGrace:           1500 * time.Millisecond,
		TimerSettleSlack:    2 * time.Second,
		UserRoomCancelAfter: 10 * time.Minute,
		DefaultStartDelay:   30 * time.Second,
		MinStartDelay:       10 * time.Second,
		MaxStartDelay:       time.Hour,
		MinUserPlayers:      2,
		MaxUserPlayers:      50,
		StakingMinLock:      7 * 24 * time.Hour,
		StakingAPRBps:       500,
		ListLimit:           200,
		HistoryLimit:        100,
		StakeLimit:          50,
	}
}
