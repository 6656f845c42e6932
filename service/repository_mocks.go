package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"stakehouse/events"
	"stakehouse/lock"
	"stakehouse/models"
	"stakehouse/scheduler"
)

// MockRoomRepository is a mock implementation of RoomRepository
type MockRoomRepository struct {
	mock.Mock
}

func (m *MockRoomRepository) Create(ctx context.Context, room *models.Room) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

func (m *MockRoomRepository) CreateSystemIfAbsent(ctx context.Context, room *models.Room) (bool, error) {
	args := m.Called(ctx, room)
	return args.Bool(0), args.Error(1)
}

func (m *MockRoomRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Room), args.Error(1)
}

func (m *MockRoomRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Room), args.Error(1)
}

func (m *MockRoomRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.RoomStatus) error {
	args := m.Called(ctx, id, from, to)
	return args.Error(0)
}

func (m *MockRoomRepository) MarkSettled(ctx context.Context, id uuid.UUID, nonce int64) error {
	args := m.Called(ctx, id, nonce)
	return args.Error(0)
}

func (m *MockRoomRepository) FindActiveSystemRoom(ctx context.Context, currency models.Currency, game models.GameKind, stake int64) (*models.Room, error) {
	args := m.Called(ctx, currency, game, stake)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Room), args.Error(1)
}

func (m *MockRoomRepository) ListActive(ctx context.Context, filter models.RoomFilter, limit int) ([]*models.RoomSummary, error) {
	args := m.Called(ctx, filter, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.RoomSummary), args.Error(1)
}

// MockRoomPlayerRepository is a mock implementation of RoomPlayerRepository
type MockRoomPlayerRepository struct {
	mock.Mock
}

func (m *MockRoomPlayerRepository) Create(ctx context.Context, player *models.RoomPlayer) error {
	args := m.Called(ctx, player)
	return args.Error(0)
}

func (m *MockRoomPlayerRepository) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]*models.RoomPlayer, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.RoomPlayer), args.Error(1)
}

// MockSettlementRepository is a mock implementation of SettlementRepository
type MockSettlementRepository struct {
	mock.Mock
}

func (m *MockSettlementRepository) Create(ctx context.Context, settlement *models.Settlement) error {
	args := m.Called(ctx, settlement)
	return args.Error(0)
}

func (m *MockSettlementRepository) GetByRoom(ctx context.Context, roomID uuid.UUID) (*models.Settlement, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Settlement), args.Error(1)
}

func (m *MockSettlementRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.HistoryItem, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.HistoryItem), args.Error(1)
}

// MockLedgerRepository is a mock implementation of LedgerRepository
type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) EnsureAccount(ctx context.Context, ref models.AccountRef) (*models.Account, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockLedgerRepository) LockAccount(ctx context.Context, ref models.AccountRef) (*models.Account, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockLedgerRepository) Balance(ctx context.Context, ref models.AccountRef) (int64, error) {
	args := m.Called(ctx, ref)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedgerRepository) Append(ctx context.Context, entry *models.LedgerEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockLedgerRepository) FindByReference(ctx context.Context, entryType models.EntryType, refType, refID string) (*models.LedgerEntry, error) {
	args := m.Called(ctx, entryType, refType, refID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LedgerEntry), args.Error(1)
}

func (m *MockLedgerRepository) ListByAccount(ctx context.Context, ref models.AccountRef, limit int) ([]*models.LedgerEntry, error) {
	args := m.Called(ctx, ref, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.LedgerEntry), args.Error(1)
}

func (m *MockLedgerRepository) BalancesByUser(ctx context.Context, userID uuid.UUID) (map[models.Currency]int64, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[models.Currency]int64), args.Error(1)
}

// MockStakeRepository is a mock implementation of StakeRepository
type MockStakeRepository struct {
	mock.Mock
}

func (m *MockStakeRepository) Create(ctx context.Context, stake *models.Stake) error {
	args := m.Called(ctx, stake)
	return args.Error(0)
}

func (m *MockStakeRepository) GetForUserForUpdate(ctx context.Context, userID, stakeID uuid.UUID) (*models.Stake, error) {
	args := m.Called(ctx, userID, stakeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Stake), args.Error(1)
}

func (m *MockStakeRepository) ListLockedForUpdate(ctx context.Context, userID uuid.UUID) ([]*models.Stake, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Stake), args.Error(1)
}

func (m *MockStakeRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Stake, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Stake), args.Error(1)
}

func (m *MockStakeRepository) Update(ctx context.Context, stake *models.Stake) error {
	args := m.Called(ctx, stake)
	return args.Error(0)
}

// MockEventPublisher is a mock implementation of EventPublisher for testing
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) {
	m.Called(event)
}

// MockUnitOfWork is a mock implementation of UnitOfWork. Repository
// getters return whatever SetRepositories installed.
type MockUnitOfWork struct {
	mock.Mock

	rooms       RoomRepository
	players     RoomPlayerRepository
	settlements SettlementRepository
	ledger      LedgerRepository
	stakes      StakeRepository
	bus         EventPublisher
}

// SetRepositories installs the repositories returned by the getters
func (m *MockUnitOfWork) SetRepositories(rooms RoomRepository, players RoomPlayerRepository, settlements SettlementRepository, ledger LedgerRepository, stakes StakeRepository, bus EventPublisher) {
	m.rooms = rooms
	m.players = players
	m.settlements = settlements
	m.ledger = ledger
	m.stakes = stakes
	m.bus = bus
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) RoomRepository() RoomRepository             { return m.rooms }
func (m *MockUnitOfWork) RoomPlayerRepository() RoomPlayerRepository { return m.players }
func (m *MockUnitOfWork) SettlementRepository() SettlementRepository { return m.settlements }
func (m *MockUnitOfWork) LedgerRepository() LedgerRepository         { return m.ledger }
func (m *MockUnitOfWork) StakeRepository() StakeRepository           { return m.stakes }
func (m *MockUnitOfWork) EventBus() EventPublisher                   { return m.bus }

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) Create() UnitOfWork {
	args := m.Called()
	return args.Get(0).(UnitOfWork)
}

// MockLocker is a mock implementation of lock.Locker
type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (lock.Lease, error) {
	args := m.Called(ctx, key, ttl, wait)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(lock.Lease), args.Error(1)
}

// MockLease is a mock implementation of lock.Lease
type MockLease struct {
	mock.Mock
}

func (m *MockLease) Key() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockLease) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockScheduler is a mock implementation of scheduler.Scheduler
type MockScheduler struct {
	mock.Mock
}

func (m *MockScheduler) Schedule(ctx context.Context, kind scheduler.Kind, roomID uuid.UUID, delay time.Duration) error {
	args := m.Called(ctx, kind, roomID, delay)
	return args.Error(0)
}
