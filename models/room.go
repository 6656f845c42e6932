package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidTransition is returned when a room is moved to a status its
// current status cannot reach.
var ErrInvalidTransition = errors.New("invalid room status transition")

// ErrStatusConflict is returned when a compare-and-set status update finds
// the room in a different status than expected.
var ErrStatusConflict = errors.New("room status changed concurrently")

// RoomKind distinguishes persistent lobby rooms from user-created ones
type RoomKind string

const (
	RoomKindSystem RoomKind = "SYSTEM"
	RoomKindUser   RoomKind = "USER"
)

// Currency is the settlement currency of a room or account
type Currency string

const (
	CurrencyXTR Currency = "XTR"
	CurrencyTON Currency = "TON"
)

// IsValid reports whether the currency is supported
func (c Currency) IsValid() bool {
	return c == CurrencyXTR || c == CurrencyTON
}

// GameKind is the game variant played in a room
type GameKind string

const (
	GameRoulette GameKind = "ROULETTE"
	GameCoinflip GameKind = "COINFLIP"
	GameJackpot  GameKind = "JACKPOT"
	GameCrash    GameKind = "CRASH"
)

// IsValid reports whether the game variant is supported
func (g GameKind) IsValid() bool {
	switch g {
	case GameRoulette, GameCoinflip, GameJackpot, GameCrash:
		return true
	}
	return false
}

// StartMode controls when a room settles
type StartMode string

const (
	StartModeFill  StartMode = "FILL"  // settle as soon as every seat is taken
	StartModeTimer StartMode = "TIMER" // settle at StartsAt
)

// IsValid reports whether the start mode is supported
func (m StartMode) IsValid() bool {
	return m == StartModeFill || m == StartModeTimer
}

// RoomStatus represents the lifecycle state of a room
type RoomStatus string

const (
	RoomStatusOpen      RoomStatus = "OPEN"
	RoomStatusLocked    RoomStatus = "LOCKED"
	RoomStatusRunning   RoomStatus = "RUNNING"
	RoomStatusSettled   RoomStatus = "SETTLED"
	RoomStatusCancelled RoomStatus = "CANCELLED"
	RoomStatusRefunded  RoomStatus = "REFUNDED"
)

var roomTransitions = map[RoomStatus][]RoomStatus{
	RoomStatusOpen:      {RoomStatusLocked, RoomStatusCancelled, RoomStatusRunning, RoomStatusRefunded},
	RoomStatusLocked:    {RoomStatusRunning, RoomStatusCancelled, RoomStatusRefunded},
	RoomStatusRunning:   {RoomStatusSettled},
	RoomStatusCancelled: {RoomStatusRefunded},
}

// CanTransitionTo reports whether next is reachable from s in one step
func (s RoomStatus) CanTransitionTo(next RoomStatus) bool {
	for _, candidate := range roomTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s
func (s RoomStatus) IsTerminal() bool {
	return s == RoomStatusSettled || s == RoomStatusRefunded
}

// ActiveRoomStatuses are the statuses shown in the lobby
var ActiveRoomStatuses = []RoomStatus{RoomStatusOpen, RoomStatusLocked, RoomStatusRunning}

// Room is a stake-matching unit
type Room struct {
	ID             uuid.UUID  `db:"id"`
	Kind           RoomKind   `db:"kind"`
	Currency       Currency   `db:"currency"`
	Game           GameKind   `db:"game"`
	StakeAmount    int64      `db:"stake_amount"` // nano units
	MaxPlayers     int        `db:"max_players"`
	StartMode      StartMode  `db:"start_mode"`
	StartsAt       *time.Time `db:"starts_at"`
	CancelAt       *time.Time `db:"cancel_at"`
	Status         RoomStatus `db:"status"`
	ServerSeedHash string     `db:"server_seed_hash"`
	ServerSeed     string     `db:"server_seed"`
	Nonce          int64      `db:"nonce"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// IsJoinable checks if players may still take a seat
func (r *Room) IsJoinable() bool {
	return r.Status == RoomStatusOpen || r.Status == RoomStatusLocked
}

// IsRefundable checks if locked stakes may be returned
func (r *Room) IsRefundable() bool {
	return r.Status == RoomStatusCancelled || r.Status == RoomStatusOpen || r.Status == RoomStatusLocked
}

// IsSettleable checks if a settlement attempt should proceed
func (r *Room) IsSettleable() bool {
	return r.Status == RoomStatusOpen || r.Status == RoomStatusLocked
}

// IsSystem checks if this is a lobby room that must be replaced after it ends
func (r *Room) IsSystem() bool {
	return r.Kind == RoomKindSystem
}

// IsFull checks whether playerCount occupies every seat
func (r *Room) IsFull(playerCount int) bool {
	return playerCount >= r.MaxPlayers
}

// Pot returns the total stake collected from playerCount players
func (r *Room) Pot(playerCount int) int64 {
	return r.StakeAmount * int64(playerCount)
}

// TransitionTo moves the room to next, rejecting unreachable statuses
func (r *Room) TransitionTo(next RoomStatus) error {
	if !r.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, next)
	}
	r.Status = next
	return nil
}

// RoomPlayer is a join record
type RoomPlayer struct {
	ID             int64     `db:"id"` // monotonic, defines join order
	RoomID         uuid.UUID `db:"room_id"`
	UserID         uuid.UUID `db:"user_id"`
	ClientSeed     string    `db:"client_seed"`
	BetLockEntryID int64     `db:"bet_lock_entry_id"`
	JoinedAt       time.Time `db:"joined_at"`
}

// RoomFilter narrows lobby listings
type RoomFilter struct {
	Currency *Currency
	Game     *GameKind
	Kind     *RoomKind
}
