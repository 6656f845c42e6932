package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"stakehouse/models"
	"stakehouse/scheduler"
)

// MockRoomService is a mock implementation of RoomService
type MockRoomService struct {
	mock.Mock
}

func (m *MockRoomService) CreateUserRoom(ctx context.Context, params CreateRoomParams) (uuid.UUID, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockRoomService) EnsureSystemRooms(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockRoomService) Join(ctx context.Context, roomID, userID uuid.UUID, clientSeed string) error {
	return m.Called(ctx, roomID, userID, clientSeed).Error(0)
}

func (m *MockRoomService) CancelIfEmpty(ctx context.Context, roomID uuid.UUID) error {
	return m.Called(ctx, roomID).Error(0)
}

func (m *MockRoomService) Refund(ctx context.Context, roomID uuid.UUID) error {
	return m.Called(ctx, roomID).Error(0)
}

func (m *MockRoomService) Settle(ctx context.Context, roomID uuid.UUID) error {
	return m.Called(ctx, roomID).Error(0)
}

func (m *MockRoomService) SettleDue(ctx context.Context, roomID uuid.UUID) error {
	return m.Called(ctx, roomID).Error(0)
}

func (m *MockRoomService) ListRooms(ctx context.Context, filter models.RoomFilter) ([]*models.RoomSummary, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]*models.RoomSummary), args.Error(1)
}

func (m *MockRoomService) RoomDetails(ctx context.Context, roomID uuid.UUID) (*models.RoomDetails, error) {
	args := m.Called(ctx, roomID)
	return args.Get(0).(*models.RoomDetails), args.Error(1)
}

func (m *MockRoomService) History(ctx context.Context, userID uuid.UUID) ([]*models.HistoryItem, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]*models.HistoryItem), args.Error(1)
}

type recordingRegistrar struct {
	kinds []scheduler.Kind
}

func (r *recordingRegistrar) Handle(kind scheduler.Kind, handler scheduler.Handler) {
	r.kinds = append(r.kinds, kind)
}

func TestTriggerHandlers_Register(t *testing.T) {
	reg := &recordingRegistrar{}
	NewTriggerHandlers(new(MockRoomService)).Register(reg)
	assert.ElementsMatch(t, []scheduler.Kind{scheduler.KindCancelIfEmpty, scheduler.KindSettleRoom}, reg.kinds)
}

func TestTriggerHandlers_SettleRoom(t *testing.T) {
	ctx := context.Background()
	job := scheduler.Job{ID: "job-1", Kind: scheduler.KindSettleRoom, RoomID: TestRoomID}

	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"success acks", nil, false},
		{"missing room is dropped", ErrRoomNotFound, false},
		{"lock timeout is retried", fmt.Errorf("%w: settle", ErrLockTimeout), true},
		{"storage failure is retried", errors.New("connection reset"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rooms := new(MockRoomService)
			rooms.On("SettleDue", ctx, TestRoomID).Return(tt.err)

			err := NewTriggerHandlers(rooms).SettleRoom(ctx, job)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			rooms.AssertExpectations(t)
		})
	}
}

func TestTriggerHandlers_CancelIfEmpty(t *testing.T) {
	ctx := context.Background()
	rooms := new(MockRoomService)
	rooms.On("CancelIfEmpty", ctx, TestRoomID).Return(nil)

	job := scheduler.Job{ID: "job-2", Kind: scheduler.KindCancelIfEmpty, RoomID: TestRoomID}
	assert.NoError(t, NewTriggerHandlers(rooms).CancelIfEmpty(ctx, job))
	rooms.AssertExpectations(t)
}
