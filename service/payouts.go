package service

import (
	"fmt"

	"github.com/google/uuid"

	"stakehouse/models"
)

// CrashCashoutBps is the fixed auto-cashout for crash rooms
const CrashCashoutBps int64 = 20000

// Payout is one ledger credit produced by a settlement
type Payout struct {
	UserID uuid.UUID
	Amount int64
	Type   models.EntryType // PAYOUT or REFUND
}

// RefType returns the ledger reference type for the payout
func (p Payout) RefType() string {
	if p.Type == models.EntryRefund {
		return models.RefTypeRoomRefund
	}
	return models.RefTypeRoomPayout
}

// RouletteSide returns the color a player bets on from their join index
func RouletteSide(index int) models.RouletteColor {
	if index%2 == 0 {
		return models.RouletteRed
	}
	return models.RouletteBlack
}

// ComputePayouts applies the game rule to players in join order. Integer
// remainders stay with the house.
func ComputePayouts(room *models.Room, players []*models.RoomPlayer, outcome models.Outcome) ([]Payout, error) {
	if err := outcome.Validate(); err != nil {
		return nil, err
	}
	if outcome.Game != room.Game {
		return nil, fmt.Errorf("outcome for %s cannot settle a %s room", outcome.Game, room.Game)
	}

	stake := room.StakeAmount
	pot := room.Pot(len(players))

	switch room.Game {
	case models.GameCoinflip:
		if len(players) != 2 {
			return nil, fmt.Errorf("coinflip needs exactly 2 players, have %d", len(players))
		}
		winner := players[0]
		if outcome.Coinflip.Side == models.CoinTails {
			winner = players[1]
		}
		return []Payout{{UserID: winner.UserID, Amount: pot, Type: models.EntryPayout}}, nil

	case models.GameRoulette:
		if outcome.Roulette.Color == models.RouletteGreen {
			payouts := make([]Payout, 0, len(players))
			for _, p := range players {
				payouts = append(payouts, Payout{UserID: p.UserID, Amount: stake / 2, Type: models.EntryRefund})
			}
			return payouts, nil
		}

		var winners []*models.RoomPlayer
		for i, p := range players {
			if RouletteSide(i) == outcome.Roulette.Color {
				winners = append(winners, p)
			}
		}
		if len(winners) == 0 {
			return nil, nil
		}
		share := pot / int64(len(winners))
		payouts := make([]Payout, 0, len(winners))
		for _, w := range winners {
			payouts = append(payouts, Payout{UserID: w.UserID, Amount: share, Type: models.EntryPayout})
		}
		return payouts, nil

	case models.GameJackpot:
		winner := outcome.Jackpot.WinnerUserID
		found := false
		for _, p := range players {
			if p.UserID == winner {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("jackpot winner %s is not a player", winner)
		}
		return []Payout{{UserID: winner, Amount: pot, Type: models.EntryPayout}}, nil

	case models.GameCrash:
		if outcome.Crash.MultiplierBps < CrashCashoutBps {
			return nil, nil
		}
		payouts := make([]Payout, 0, len(players))
		for _, p := range players {
			payouts = append(payouts, Payout{UserID: p.UserID, Amount: 2 * stake, Type: models.EntryPayout})
		}
		return payouts, nil
	}

	return nil, fmt.Errorf("unknown game %s", room.Game)
}
