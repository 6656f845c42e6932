package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"stakehouse/fairness"
	"stakehouse/models"
)

// Test fixtures shared by the engine tests
var (
	TestRoomID  = uuid.MustParse("6f1c2d3e-4b5a-4c6d-8e7f-0123456789ab")
	TestUser1ID = uuid.MustParse("00000000-0000-4000-8000-000000000001")
	TestUser2ID = uuid.MustParse("00000000-0000-4000-8000-000000000002")
	TestUser3ID = uuid.MustParse("00000000-0000-4000-8000-000000000003")
	TestUser4ID = uuid.MustParse("00000000-0000-4000-8000-000000000004")
)

// TestMocks holds all mock collaborators for easy access
type TestMocks struct {
	Factory     *MockUnitOfWorkFactory
	UoW         *MockUnitOfWork
	Rooms       *MockRoomRepository
	Players     *MockRoomPlayerRepository
	Settlements *MockSettlementRepository
	Ledger      *MockLedgerRepository
	Stakes      *MockStakeRepository
	Events      *MockEventPublisher
	Locker      *MockLocker
	Lease       *MockLease
	Scheduler   *MockScheduler
}

// NewTestMocks creates a new set of mocks with the unit of work wired to
// the repository mocks
func NewTestMocks() *TestMocks {
	m := &TestMocks{
		Factory:     new(MockUnitOfWorkFactory),
		UoW:         new(MockUnitOfWork),
		Rooms:       new(MockRoomRepository),
		Players:     new(MockRoomPlayerRepository),
		Settlements: new(MockSettlementRepository),
		Ledger:      new(MockLedgerRepository),
		Stakes:      new(MockStakeRepository),
		Events:      new(MockEventPublisher),
		Locker:      new(MockLocker),
		Lease:       new(MockLease),
		Scheduler:   new(MockScheduler),
	}
	m.UoW.SetRepositories(m.Rooms, m.Players, m.Settlements, m.Ledger, m.Stakes, m.Events)
	return m
}

// AssertAllExpectations asserts all mock expectations
func (m *TestMocks) AssertAllExpectations(t *testing.T) {
	m.Factory.AssertExpectations(t)
	m.UoW.AssertExpectations(t)
	m.Rooms.AssertExpectations(t)
	m.Players.AssertExpectations(t)
	m.Settlements.AssertExpectations(t)
	m.Ledger.AssertExpectations(t)
	m.Stakes.AssertExpectations(t)
	m.Events.AssertExpectations(t)
	m.Locker.AssertExpectations(t)
	m.Lease.AssertExpectations(t)
	m.Scheduler.AssertExpectations(t)
}

// MockHelper provides common mock setups
type MockHelper struct {
	mocks *TestMocks
	ctx   context.Context
}

// NewMockHelper creates a helper bound to ctx
func NewMockHelper(mocks *TestMocks, ctx context.Context) *MockHelper {
	return &MockHelper{mocks: mocks, ctx: ctx}
}

// ExpectLock sets up a successful acquire and release of key
func (h *MockHelper) ExpectLock(key string) {
	h.mocks.Locker.On("Acquire", h.ctx, key, mock.AnythingOfType("time.Duration"), mock.AnythingOfType("time.Duration")).
		Return(h.mocks.Lease, nil).Once()
	h.mocks.Lease.On("Release", mock.Anything).Return(nil).Once()
}

// ExpectTransaction sets up a unit of work that begins and rolls back,
// committing when commit is set
func (h *MockHelper) ExpectTransaction(commit bool) {
	h.mocks.Factory.On("Create").Return(h.mocks.UoW).Once()
	h.mocks.UoW.On("Begin", h.ctx).Return(nil).Once()
	if commit {
		h.mocks.UoW.On("Commit").Return(nil).Once()
	}
	h.mocks.UoW.On("Rollback").Return(nil).Once()
}

// ExpectRoom returns room from the row-locking lookup
func (h *MockHelper) ExpectRoom(room *models.Room) {
	h.mocks.Rooms.On("GetByIDForUpdate", h.ctx, room.ID).Return(room, nil).Once()
}

// ExpectPlayers returns players for the room
func (h *MockHelper) ExpectPlayers(roomID uuid.UUID, players []*models.RoomPlayer) {
	h.mocks.Players.On("ListByRoom", h.ctx, roomID).Return(players, nil).Once()
}

// ExpectLockedBalance sets up the account row lock and balance read
func (h *MockHelper) ExpectLockedBalance(account *models.Account, balance int64) {
	ref := account.Ref()
	h.mocks.Ledger.On("LockAccount", h.ctx, ref).Return(account, nil).Once()
	h.mocks.Ledger.On("Balance", h.ctx, ref).Return(balance, nil).Once()
}

// ExpectAppend accepts one ledger entry matching type and amount and assigns id
func (h *MockHelper) ExpectAppend(entryType models.EntryType, amount int64, id int64) {
	h.mocks.Ledger.On("Append", h.ctx, mock.MatchedBy(func(e *models.LedgerEntry) bool {
		return e.Type == entryType && e.Amount == amount
	})).Run(func(args mock.Arguments) {
		entry := args.Get(1).(*models.LedgerEntry)
		entry.ID = id
		entry.CreatedAt = time.Now()
	}).Return(nil).Once()
}

// TestRoom returns an OPEN FILL room with a fixed id committed to seed
func TestRoom(game models.GameKind, seed string, stake int64, maxPlayers int) *models.Room {
	now := time.Now().UTC()
	return &models.Room{
		ID:             TestRoomID,
		Kind:           models.RoomKindUser,
		Currency:       models.CurrencyTON,
		Game:           game,
		StakeAmount:    stake,
		MaxPlayers:     maxPlayers,
		StartMode:      models.StartModeFill,
		Status:         models.RoomStatusOpen,
		ServerSeedHash: fairness.Commit(seed),
		ServerSeed:     seed,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
