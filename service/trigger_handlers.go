package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"stakehouse/scheduler"
)

// TriggerHandlers adapts delayed scheduler jobs to engine operations.
// Returning an error asks the worker to retry the job.
type TriggerHandlers struct {
	rooms RoomService
}

// NewTriggerHandlers creates trigger handlers backed by rooms
func NewTriggerHandlers(rooms RoomService) *TriggerHandlers {
	return &TriggerHandlers{rooms: rooms}
}

// JobRegistrar is satisfied by scheduler.Worker
type JobRegistrar interface {
	Handle(kind scheduler.Kind, handler scheduler.Handler)
}

// Register binds every trigger kind on worker
func (h *TriggerHandlers) Register(worker JobRegistrar) {
	worker.Handle(scheduler.KindCancelIfEmpty, h.CancelIfEmpty)
	worker.Handle(scheduler.KindSettleRoom, h.SettleRoom)
}

// CancelIfEmpty handles scheduler.KindCancelIfEmpty
func (h *TriggerHandlers) CancelIfEmpty(ctx context.Context, job scheduler.Job) error {
	return h.dispatch(ctx, job, h.rooms.CancelIfEmpty)
}

// SettleRoom handles scheduler.KindSettleRoom
func (h *TriggerHandlers) SettleRoom(ctx context.Context, job scheduler.Job) error {
	return h.dispatch(ctx, job, h.rooms.SettleDue)
}

func (h *TriggerHandlers) dispatch(ctx context.Context, job scheduler.Job, op func(context.Context, uuid.UUID) error) error {
	err := op(ctx, job.RoomID)
	if err == nil {
		return nil
	}

	fields := log.Fields{
		"jobID":    job.ID,
		"kind":     job.Kind,
		"roomID":   job.RoomID,
		"attempts": job.Attempts,
	}
	if errors.Is(err, ErrRoomNotFound) {
		log.WithFields(fields).Warn("Trigger fired for missing room, dropping")
		return nil
	}

	log.WithFields(fields).WithError(err).Warn("Trigger failed, will retry")
	return err
}
