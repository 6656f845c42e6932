// Package fairness derives verifiable game outcomes from a commit-reveal
// seed triple. Every function here is pure.
package fairness

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"stakehouse/models"
)

const (
	// RouletteNumbers is the pocket count of a European wheel
	RouletteNumbers = 37
	// BaseMultiplierBps is 1.00x in basis points
	BaseMultiplierBps int64 = 10000
	// MaxMultiplierBps is returned when the crash draw leaves no room for division
	MaxMultiplierBps int64 = math.MaxInt64

	crashBits = 52
)

var (
	ErrNoPlayers       = errors.New("weighted draw needs at least one player")
	ErrInvalidWeight   = errors.New("player weights must be positive")
	ErrUnknownGame     = errors.New("unknown game")
	ErrCommitMismatch  = errors.New("server seed does not match commitment")
	ErrOutcomeMismatch = errors.New("outcome does not match reveal")
)

var redNumbers = map[int]bool{
	1: true, 3: true, 5: true, 7: true, 9: true, 12: true, 14: true, 16: true, 18: true,
	19: true, 21: true, 23: true, 25: true, 27: true, 30: true, 32: true, 34: true, 36: true,
}

// Input is the seed triple plus room identity fed to the digest
type Input struct {
	ServerSeed string
	ClientSeed string
	Nonce      int64
	RoomID     uuid.UUID
}

// Weighted is one participant in a jackpot draw
type Weighted struct {
	UserID uuid.UUID
	Weight int64
}

// NewServerSeed returns 32 random bytes, hex encoded
func NewServerSeed() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate server seed: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Commit returns the public commitment for a server seed
func Commit(serverSeed string) string {
	sum := sha256.Sum256([]byte(serverSeed))
	return hex.EncodeToString(sum[:])
}

// JoinClientSeeds concatenates client seeds in join order
func JoinClientSeeds(seeds []string) string {
	return strings.Join(seeds, "|")
}

// Message is the HMAC payload: clientSeed:nonce:roomId
func (in Input) Message() string {
	return in.ClientSeed + ":" + strconv.FormatInt(in.Nonce, 10) + ":" + in.RoomID.String()
}

// Digest computes HMAC-SHA256 keyed by the server seed
func Digest(in Input) [sha256.Size]byte {
	mac := hmac.New(sha256.New, []byte(in.ServerSeed))
	mac.Write([]byte(in.Message()))

	var out [sha256.Size]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// DigestHex is Digest rendered as lowercase hex
func DigestHex(in Input) string {
	d := Digest(in)
	return hex.EncodeToString(d[:])
}

// Roulette reduces the first four digest bytes mod 37
func Roulette(in Input) models.RouletteOutcome {
	d := Digest(in)
	n := int(binary.BigEndian.Uint32(d[:4]) % RouletteNumbers)
	return models.RouletteOutcome{Number: n, Color: RouletteColor(n)}
}

// RouletteColor maps a pocket to its color on the European layout
func RouletteColor(n int) models.RouletteColor {
	switch {
	case n == 0:
		return models.RouletteGreen
	case redNumbers[n]:
		return models.RouletteRed
	default:
		return models.RouletteBlack
	}
}

// Coinflip takes the parity of the first digest byte; even is heads
func Coinflip(in Input) models.CoinflipOutcome {
	d := Digest(in)
	if d[0]%2 == 0 {
		return models.CoinflipOutcome{Side: models.CoinHeads}
	}
	return models.CoinflipOutcome{Side: models.CoinTails}
}

// Jackpot draws one winner with probability proportional to weight.
// target = floor(digest * total / 2^256); the winner is the first player
// whose cumulative weight exceeds target.
func Jackpot(in Input, players []Weighted) (models.JackpotOutcome, error) {
	if len(players) == 0 {
		return models.JackpotOutcome{}, ErrNoPlayers
	}

	total := new(big.Int)
	for _, p := range players {
		if p.Weight <= 0 {
			return models.JackpotOutcome{}, fmt.Errorf("%w: user %s has weight %d", ErrInvalidWeight, p.UserID, p.Weight)
		}
		total.Add(total, big.NewInt(p.Weight))
	}

	d := Digest(in)
	target := new(big.Int).SetBytes(d[:])
	target.Mul(target, total)
	target.Rsh(target, 256)

	acc := new(big.Int)
	for i, p := range players {
		acc.Add(acc, big.NewInt(p.Weight))
		if target.Cmp(acc) < 0 {
			return models.JackpotOutcome{WinnerUserID: p.UserID, WinnerIndex: i}, nil
		}
	}

	// unreachable: target < total always holds
	last := len(players) - 1
	return models.JackpotOutcome{WinnerUserID: players[last].UserID, WinnerIndex: last}, nil
}

// Crash derives the crash point from the top 52 digest bits:
// floor((10000 - edge) * 2^52 / (2^52 - h)), at least 1.00x.
func Crash(in Input, houseEdgeBps int64) models.CrashOutcome {
	d := Digest(in)
	h := binary.BigEndian.Uint64(d[:8]) >> (64 - crashBits)
	return models.CrashOutcome{MultiplierBps: crashMultiplier(h, houseEdgeBps)}
}

func crashMultiplier(h uint64, houseEdgeBps int64) int64 {
	space := uint64(1) << crashBits
	if h >= space {
		return MaxMultiplierBps
	}

	num := new(big.Int).SetInt64(BaseMultiplierBps - houseEdgeBps)
	num.Lsh(num, crashBits)
	bps := num.Quo(num, new(big.Int).SetUint64(space-h))

	if !bps.IsInt64() {
		return MaxMultiplierBps
	}
	if v := bps.Int64(); v > BaseMultiplierBps {
		return v
	}
	return BaseMultiplierBps
}

// Derive computes the outcome for game. players is only read for JACKPOT.
func Derive(game models.GameKind, in Input, players []Weighted, houseEdgeBps int64) (models.Outcome, error) {
	out := models.Outcome{Game: game}
	switch game {
	case models.GameRoulette:
		r := Roulette(in)
		out.Roulette = &r
	case models.GameCoinflip:
		c := Coinflip(in)
		out.Coinflip = &c
	case models.GameJackpot:
		j, err := Jackpot(in, players)
		if err != nil {
			return models.Outcome{}, err
		}
		out.Jackpot = &j
	case models.GameCrash:
		c := Crash(in, houseEdgeBps)
		out.Crash = &c
	default:
		return models.Outcome{}, fmt.Errorf("%w: %s", ErrUnknownGame, game)
	}
	return out, nil
}
