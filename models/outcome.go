package models

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// RouletteColor is the color of a European wheel pocket
type RouletteColor string

const (
	RouletteRed   RouletteColor = "RED"
	RouletteBlack RouletteColor = "BLACK"
	RouletteGreen RouletteColor = "GREEN"
)

// CoinSide is the face a coin lands on
type CoinSide string

const (
	CoinHeads CoinSide = "HEADS"
	CoinTails CoinSide = "TAILS"
)

// RouletteOutcome is the pocket selected by a roulette spin
type RouletteOutcome struct {
	Number int           `json:"number"`
	Color  RouletteColor `json:"color"`
}

// CoinflipOutcome is the side selected by a coin flip
type CoinflipOutcome struct {
	Side CoinSide `json:"side"`
}

// JackpotOutcome identifies the weighted draw winner
type JackpotOutcome struct {
	WinnerUserID uuid.UUID `json:"winnerUserId"`
	WinnerIndex  int       `json:"winnerIndex"`
}

// CrashOutcome is the crash point in basis points (10000 = 1.00x)
type CrashOutcome struct {
	MultiplierBps int64 `json:"multiplierBps"`
}

// Outcome is a tagged union keyed by Game. Exactly one variant is set and
// it matches Game.
type Outcome struct {
	Game     GameKind         `json:"game"`
	Roulette *RouletteOutcome `json:"roulette,omitempty"`
	Coinflip *CoinflipOutcome `json:"coinflip,omitempty"`
	Jackpot  *JackpotOutcome  `json:"jackpot,omitempty"`
	Crash    *CrashOutcome    `json:"crash,omitempty"`
}

var errOutcomeShape = errors.New("malformed outcome")

// Validate checks that exactly the variant named by Game is populated
func (o Outcome) Validate() error {
	set := 0
	for _, present := range []bool{o.Roulette != nil, o.Coinflip != nil, o.Jackpot != nil, o.Crash != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: %d variants set", errOutcomeShape, set)
	}

	var ok bool
	switch o.Game {
	case GameRoulette:
		ok = o.Roulette != nil
	case GameCoinflip:
		ok = o.Coinflip != nil
	case GameJackpot:
		ok = o.Jackpot != nil
	case GameCrash:
		ok = o.Crash != nil
	}
	if !ok {
		return fmt.Errorf("%w: variant does not match game %s", errOutcomeShape, o.Game)
	}
	return nil
}
