// Package scheduler delivers delayed room triggers at least once.
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind names a trigger
type Kind string

const (
	KindCancelIfEmpty Kind = "cancel_if_empty"
	KindSettleRoom    Kind = "settle_room"
)

// Job is one scheduled trigger
type Job struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	RoomID    uuid.UUID `json:"roomId"`
	Attempts  int       `json:"attempts"`
	DueAt     time.Time `json:"dueAt"`
	LastError string    `json:"lastError,omitempty"`
}

// Scheduler enqueues a trigger for roomID after delay
type Scheduler interface {
	Schedule(ctx context.Context, kind Kind, roomID uuid.UUID, delay time.Duration) error
}

// Handler processes a delivered job. A nil return acknowledges it; any
// error schedules a retry.
type Handler func(ctx context.Context, job Job) error
