package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"stakehouse/events"
	"stakehouse/models"
)

// RoomRepository defines the interface for room data access
type RoomRepository interface {
	// Create inserts a new room
	Create(ctx context.Context, room *models.Room) error

	// CreateSystemIfAbsent inserts a SYSTEM room unless its tier already has
	// an OPEN or LOCKED room. Reports whether a row was inserted.
	CreateSystemIfAbsent(ctx context.Context, room *models.Room) (bool, error)

	// GetByID retrieves a room, nil when missing
	GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error)

	// GetByIDForUpdate retrieves and row-locks a room for the current transaction
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Room, error)

	// UpdateStatus moves a room from one status to another, failing with
	// models.ErrStatusConflict if it is no longer in from
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.RoomStatus) error

	// MarkSettled moves a RUNNING room to SETTLED and persists its nonce
	MarkSettled(ctx context.Context, id uuid.UUID, nonce int64) error

	// FindActiveSystemRoom returns the OPEN or LOCKED system room of a tier
	FindActiveSystemRoom(ctx context.Context, currency models.Currency, game models.GameKind, stake int64) (*models.Room, error)

	// ListActive returns lobby rows, system rooms first then newest
	ListActive(ctx context.Context, filter models.RoomFilter, limit int) ([]*models.RoomSummary, error)
}

// RoomPlayerRepository defines the interface for join records
type RoomPlayerRepository interface {
	// Create inserts a join record and assigns its join-order id
	Create(ctx context.Context, player *models.RoomPlayer) error

	// ListByRoom returns players in join order
	ListByRoom(ctx context.Context, roomID uuid.UUID) ([]*models.RoomPlayer, error)
}

// SettlementRepository defines the interface for settlement records
type SettlementRepository interface {
	// Create inserts the settlement of a room
	Create(ctx context.Context, settlement *models.Settlement) error

	// GetByRoom returns the settlement of a room, nil when unsettled
	GetByRoom(ctx context.Context, roomID uuid.UUID) (*models.Settlement, error)

	// ListByUser returns settled rooms the user played, newest first
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.HistoryItem, error)
}

// LedgerRepository defines the interface for accounts and ledger entries
type LedgerRepository interface {
	// EnsureAccount returns the account for ref, creating it if needed
	EnsureAccount(ctx context.Context, ref models.AccountRef) (*models.Account, error)

	// LockAccount ensures the account exists and row-locks it, serializing
	// balance checks for that account across rooms
	LockAccount(ctx context.Context, ref models.AccountRef) (*models.Account, error)

	// Balance sums all entries of ref; zero when the account does not exist
	Balance(ctx context.Context, ref models.AccountRef) (int64, error)

	// Append inserts an entry and fills its ID and CreatedAt
	Append(ctx context.Context, entry *models.LedgerEntry) error

	// FindByReference returns the entry of a type with the given reference
	FindByReference(ctx context.Context, entryType models.EntryType, refType, refID string) (*models.LedgerEntry, error)

	// ListByAccount returns the newest entries of ref
	ListByAccount(ctx context.Context, ref models.AccountRef, limit int) ([]*models.LedgerEntry, error)

	// BalancesByUser sums entries per currency for a user
	BalancesByUser(ctx context.Context, userID uuid.UUID) (map[models.Currency]int64, error)
}

// StakeRepository defines the interface for staking positions
type StakeRepository interface {
	// Create inserts a stake
	Create(ctx context.Context, stake *models.Stake) error

	// GetForUserForUpdate returns and row-locks a user's stake, nil when missing
	GetForUserForUpdate(ctx context.Context, userID, stakeID uuid.UUID) (*models.Stake, error)

	// ListLockedForUpdate returns and row-locks a user's LOCKED stakes
	ListLockedForUpdate(ctx context.Context, userID uuid.UUID) ([]*models.Stake, error)

	// ListByUser returns a user's newest stakes
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Stake, error)

	// Update persists status, reward and unlock timestamps
	Update(ctx context.Context, stake *models.Stake) error
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event)
}

// UnitOfWork binds repositories to one transaction
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	RoomRepository() RoomRepository
	RoomPlayerRepository() RoomPlayerRepository
	SettlementRepository() SettlementRepository
	LedgerRepository() LedgerRepository
	StakeRepository() StakeRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory creates units of work
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}

// CreateRoomParams are the inputs of a user room request
type CreateRoomParams struct {
	UserID            uuid.UUID
	Currency          models.Currency
	Game              models.GameKind
	StakeAmount       string // decimal
	MaxPlayers        int
	StartMode         models.StartMode
	StartDelaySeconds int // TIMER only; zero selects the default
}

// RoomService is the settlement engine
type RoomService interface {
	// CreateUserRoom opens a USER room and schedules its triggers
	CreateUserRoom(ctx context.Context, params CreateRoomParams) (uuid.UUID, error)

	// EnsureSystemRooms creates any missing lobby room and reports how many
	EnsureSystemRooms(ctx context.Context) (int, error)

	// Join locks the user's stake and seats them
	Join(ctx context.Context, roomID, userID uuid.UUID, clientSeed string) error

	// CancelIfEmpty cancels an OPEN room nobody joined
	CancelIfEmpty(ctx context.Context, roomID uuid.UUID) error

	// Refund returns every player's stake and closes the room
	Refund(ctx context.Context, roomID uuid.UUID) error

	// Settle derives the outcome and pays winners, at most once per room
	Settle(ctx context.Context, roomID uuid.UUID) error

	// SettleDue is Settle as run by a fired settle_room trigger
	SettleDue(ctx context.Context, roomID uuid.UUID) error

	// ListRooms returns the lobby
	ListRooms(ctx context.Context, filter models.RoomFilter) ([]*models.RoomSummary, error)

	// RoomDetails returns the public view of one room
	RoomDetails(ctx context.Context, roomID uuid.UUID) (*models.RoomDetails, error)

	// History returns the user's settled rooms, newest first
	History(ctx context.Context, userID uuid.UUID) ([]*models.HistoryItem, error)
}

// LedgerService is the only write path to balances
type LedgerService interface {
	// Balance returns the derived balance of an account
	Balance(ctx context.Context, ref models.AccountRef) (int64, error)

	// Post appends one unconditional entry and returns its id
	Post(ctx context.Context, ref models.AccountRef, entryType models.EntryType, amount int64, refType, refID string) (int64, error)

	// Credit posts a positive amount. DEPOSIT credits are idempotent per reference.
	Credit(ctx context.Context, ref models.AccountRef, entryType models.EntryType, amount int64, refType, refID string) (int64, error)

	// Debit posts a negative amount after checking the balance covers it
	Debit(ctx context.Context, ref models.AccountRef, entryType models.EntryType, amount int64, refType, refID string) (int64, error)

	// Balances returns decimal balances per currency for a user
	Balances(ctx context.Context, userID uuid.UUID) (map[models.Currency]string, error)

	// Entries returns the newest entries of an account
	Entries(ctx context.Context, ref models.AccountRef, limit int) ([]*models.LedgerEntry, error)
}

// StakeView is the public form of a stake
type StakeView struct {
	ID           uuid.UUID          `json:"id"`
	Amount       string             `json:"amount"`
	Status       models.StakeStatus `json:"status"`
	LockedAt     time.Time          `json:"lockedAt"`
	UnlockAt     time.Time          `json:"unlockAt"`
	LastRewardAt time.Time          `json:"lastRewardAt"`
}

// StakingService manages TON staking positions
type StakingService interface {
	// Lock moves amount of TON into a new stake
	Lock(ctx context.Context, userID uuid.UUID, amount int64, lockSeconds int64) (uuid.UUID, error)

	// Unlock returns a matured stake and its accrued reward
	Unlock(ctx context.Context, userID, stakeID uuid.UUID) error

	// AccrueRewards posts rewards earned since the last accrual and returns the total
	AccrueRewards(ctx context.Context, userID uuid.UUID) (int64, error)

	// State returns the user's newest stakes
	State(ctx context.Context, userID uuid.UUID) ([]StakeView, error)
}
