package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"stakehouse/events"
	"stakehouse/fairness"
	"stakehouse/lock"
	"stakehouse/models"
	"stakehouse/money"
	"stakehouse/scheduler"
)

// LobbyLockKey serializes lobby bootstrap runs
const LobbyLockKey = "lobby:system-rooms"

// RoomLockKey is the single exclusion domain shared by every mutating
// operation on a room
func RoomLockKey(roomID uuid.UUID) string {
	return "room:" + roomID.String()
}

type roomService struct {
	uowFactory UnitOfWorkFactory
	locker     lock.Locker
	scheduler  scheduler.Scheduler
	cfg        EngineConfig
	now        func() time.Time
	newSeed    func() (string, error)
}

// NewRoomService creates the settlement engine
func NewRoomService(uowFactory UnitOfWorkFactory, locker lock.Locker, sched scheduler.Scheduler, cfg EngineConfig) RoomService {
	return &roomService{
		uowFactory: uowFactory,
		locker:     locker,
		scheduler:  sched,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
		newSeed:    fairness.NewServerSeed,
	}
}

// withLock runs fn inside one transaction while holding key
func (s *roomService) withLock(ctx context.Context, key, op string, wait time.Duration, fn func(uow UnitOfWork) error) error {
	return runLocked(ctx, s.locker, s.uowFactory, s.cfg.LockTTL, key, op, wait, fn)
}

func (s *roomService) withRoomLock(ctx context.Context, roomID uuid.UUID, op string, wait time.Duration, fn func(uow UnitOfWork) error) error {
	return s.withLock(ctx, RoomLockKey(roomID), op, wait, fn)
}

// runLocked acquires key, opens a unit of work, runs fn and commits. The
// lease is released only after the commit so the next holder sees every
// write.
func runLocked(ctx context.Context, locker lock.Locker, uowFactory UnitOfWorkFactory, ttl time.Duration, key, op string, wait time.Duration, fn func(uow UnitOfWork) error) error {
	lease, err := locker.Acquire(ctx, key, ttl, wait)
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			return fmt.Errorf("%w: %s %s: %w", ErrLockTimeout, op, key, err)
		}
		return fmt.Errorf("failed to acquire lock for %s: %w", op, err)
	}
	defer func() {
		if rerr := lease.Release(context.WithoutCancel(ctx)); rerr != nil {
			log.WithFields(log.Fields{
				"key":       key,
				"operation": op,
				"error":     rerr,
			}).Warn("Failed to release lock")
		}
	}()

	uow := uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := fn(uow); err != nil {
		return err
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// transition moves room to next and records the change
func (s *roomService) transition(ctx context.Context, uow UnitOfWork, room *models.Room, next models.RoomStatus) error {
	prev := room.Status
	if err := room.TransitionTo(next); err != nil {
		return err
	}
	if err := uow.RoomRepository().UpdateStatus(ctx, room.ID, prev, next); err != nil {
		return fmt.Errorf("failed to update room status: %w", err)
	}

	uow.EventBus().Publish(events.RoomStatusChangedEvent{
		RoomID:    room.ID,
		Game:      room.Game,
		OldStatus: prev,
		NewStatus: next,
	})
	return nil
}

// newRoom builds an OPEN room with a fresh commitment
func (s *roomService) newRoom(kind models.RoomKind, currency models.Currency, game models.GameKind, stake int64, maxPlayers int, mode models.StartMode) (*models.Room, error) {
	seed, err := s.newSeed()
	if err != nil {
		return nil, err
	}
	now := s.now()
	return &models.Room{
		ID:             uuid.New(),
		Kind:           kind,
		Currency:       currency,
		Game:           game,
		StakeAmount:    stake,
		MaxPlayers:     maxPlayers,
		StartMode:      mode,
		Status:         models.RoomStatusOpen,
		ServerSeedHash: fairness.Commit(seed),
		ServerSeed:     seed,
		Nonce:          0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func roomCreatedEvent(room *models.Room, replaces *uuid.UUID) events.RoomCreatedEvent {
	return events.RoomCreatedEvent{
		RoomID:      room.ID,
		Kind:        room.Kind,
		Currency:    room.Currency,
		Game:        room.Game,
		StakeAmount: room.StakeAmount,
		StartMode:   room.StartMode,
		Commitment:  room.ServerSeedHash,
		Replaces:    replaces,
	}
}

// spawnReplacement keeps a SYSTEM room's lobby slot populated
func (s *roomService) spawnReplacement(ctx context.Context, uow UnitOfWork, old *models.Room) error {
	room, err := s.newRoom(models.RoomKindSystem, old.Currency, old.Game, old.StakeAmount, old.MaxPlayers, models.StartModeFill)
	if err != nil {
		return fmt.Errorf("failed to build replacement room: %w", err)
	}

	created, err := uow.RoomRepository().CreateSystemIfAbsent(ctx, room)
	if err != nil {
		return fmt.Errorf("failed to create replacement room: %w", err)
	}
	if !created {
		log.WithField("roomID", old.ID).Debug("Lobby tier already has a live room, skipping replacement")
		return nil
	}

	replaces := old.ID
	uow.EventBus().Publish(roomCreatedEvent(room, &replaces))
	log.WithFields(log.Fields{
		"roomID":   room.ID,
		"replaces": old.ID,
		"currency": room.Currency,
		"game":     room.Game,
		"stake":    money.FromNano(room.StakeAmount),
	}).Info("Spawned replacement system room")
	return nil
}

// Join locks the user's stake and seats them. Re-joining is a no-op.
func (s *roomService) Join(ctx context.Context, roomID, userID uuid.UUID, clientSeed string) error {
	fields := log.Fields{"roomID": roomID, "userID": userID, "operation": "join"}

	err := s.withRoomLock(ctx, roomID, "join", s.cfg.LockBudgets.Join, func(uow UnitOfWork) error {
		room, err := uow.RoomRepository().GetByIDForUpdate(ctx, roomID)
		if err != nil {
			return fmt.Errorf("failed to get room: %w", err)
		}
		if room == nil {
			return ErrRoomNotFound
		}
		if !room.IsJoinable() {
			return fmt.Errorf("%w: status %s", ErrRoomNotJoinable, room.Status)
		}

		players, err := uow.RoomPlayerRepository().ListByRoom(ctx, roomID)
		if err != nil {
			return fmt.Errorf("failed to list room players: %w", err)
		}
		for _, p := range players {
			if p.UserID == userID {
				log.WithFields(fields).Debug("User already joined room")
				return nil
			}
		}
		if room.IsFull(len(players)) {
			return ErrRoomFull
		}

		ref := models.AccountRef{UserID: userID, Currency: room.Currency}
		account, balance, err := lockedBalance(ctx, uow, ref)
		if err != nil {
			return err
		}
		if balance < room.StakeAmount {
			return fmt.Errorf("%w: balance %s %s, stake %s", ErrInsufficientFunds,
				money.FromNano(balance), room.Currency, money.FromNano(room.StakeAmount))
		}

		entry, err := PostLedgerEntry(ctx, uow, account, models.EntryBetLock, -room.StakeAmount, models.RefTypeRoom, room.ID.String())
		if err != nil {
			return err
		}

		player := &models.RoomPlayer{
			RoomID:         room.ID,
			UserID:         userID,
			ClientSeed:     clientSeed,
			BetLockEntryID: entry.ID,
			JoinedAt:       s.now(),
		}
		if err := uow.RoomPlayerRepository().Create(ctx, player); err != nil {
			return fmt.Errorf("failed to create room player: %w", err)
		}

		count := len(players) + 1
		uow.EventBus().Publish(events.PlayerJoinedEvent{
			RoomID:       room.ID,
			UserID:       userID,
			Currency:     room.Currency,
			Game:         room.Game,
			StakeAmount:  room.StakeAmount,
			PlayersCount: count,
			MaxPlayers:   room.MaxPlayers,
		})

		if !room.IsFull(count) || room.Status != models.RoomStatusOpen {
			return nil
		}
		if err := s.transition(ctx, uow, room, models.RoomStatusLocked); err != nil {
			return err
		}
		if room.StartMode == models.StartModeFill {
			// a failed schedule rolls the join back so the caller can retry
			if err := s.scheduler.Schedule(ctx, scheduler.KindSettleRoom, room.ID, s.cfg.FillGrace); err != nil {
				return fmt.Errorf("failed to schedule settlement: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		log.WithFields(fields).WithField("code", ErrorCode(err)).Debugf("Join rejected: %v", err)
		return err
	}

	log.WithFields(fields).Info("Player joined room")
	return nil
}

// CancelIfEmpty cancels an OPEN room nobody joined; anything else is a no-op
func (s *roomService) CancelIfEmpty(ctx context.Context, roomID uuid.UUID) error {
	fields := log.Fields{"roomID": roomID, "operation": "cancel_if_empty"}

	return s.withRoomLock(ctx, roomID, "cancel", s.cfg.LockBudgets.Cancel, func(uow UnitOfWork) error {
		room, err := uow.RoomRepository().GetByIDForUpdate(ctx, roomID)
		if err != nil {
			return fmt.Errorf("failed to get room: %w", err)
		}
		if room == nil {
			log.WithFields(fields).Warn("Cancel trigger for unknown room")
			return nil
		}
		if room.Status != models.RoomStatusOpen {
			log.WithFields(fields).WithField("status", room.Status).Debug("Room no longer open, skipping cancel")
			return nil
		}

		players, err := uow.RoomPlayerRepository().ListByRoom(ctx, roomID)
		if err != nil {
			return fmt.Errorf("failed to list room players: %w", err)
		}
		if len(players) > 0 {
			log.WithFields(fields).WithField("players", len(players)).Debug("Room has players, skipping cancel")
			return nil
		}

		if err := s.transition(ctx, uow, room, models.RoomStatusCancelled); err != nil {
			return err
		}
		log.WithFields(fields).Info("Cancelled empty room")
		return nil
	})
}

// Refund returns every player's stake and closes the room
func (s *roomService) Refund(ctx context.Context, roomID uuid.UUID) error {
	return s.withRoomLock(ctx, roomID, "refund", s.cfg.LockBudgets.Refund, func(uow UnitOfWork) error {
		room, err := uow.RoomRepository().GetByIDForUpdate(ctx, roomID)
		if err != nil {
			return fmt.Errorf("failed to get room: %w", err)
		}
		if room == nil {
			return ErrRoomNotFound
		}

		players, err := uow.RoomPlayerRepository().ListByRoom(ctx, roomID)
		if err != nil {
			return fmt.Errorf("failed to list room players: %w", err)
		}
		return s.refundLocked(ctx, uow, room, players)
	})
}

// refundLocked runs inside a critical section already holding the room lock
func (s *roomService) refundLocked(ctx context.Context, uow UnitOfWork, room *models.Room, players []*models.RoomPlayer) error {
	if !room.IsRefundable() {
		return fmt.Errorf("%w: status %s", ErrRoomNotRefundable, room.Status)
	}

	for _, p := range players {
		account, err := ensureAccount(ctx, uow, models.AccountRef{UserID: p.UserID, Currency: room.Currency})
		if err != nil {
			return err
		}
		if _, err := PostLedgerEntry(ctx, uow, account, models.EntryRefund, room.StakeAmount, models.RefTypeRoomRefund, room.ID.String()); err != nil {
			return err
		}
	}

	if err := s.transition(ctx, uow, room, models.RoomStatusRefunded); err != nil {
		return err
	}

	if room.IsSystem() {
		if err := s.spawnReplacement(ctx, uow, room); err != nil {
			return err
		}
	}

	log.WithFields(log.Fields{
		"roomID":  room.ID,
		"players": len(players),
		"stake":   money.FromNano(room.StakeAmount),
	}).Info("Refunded room")
	return nil
}

// Settle derives the outcome and pays winners. A room with a Settlement
// record is left untouched.
func (s *roomService) Settle(ctx context.Context, roomID uuid.UUID) error {
	return s.settle(ctx, roomID, false)
}

// SettleDue is the settle_room trigger entry point. It leaves a FILL room
// alone until the room has locked.
func (s *roomService) SettleDue(ctx context.Context, roomID uuid.UUID) error {
	return s.settle(ctx, roomID, true)
}

func (s *roomService) settle(ctx context.Context, roomID uuid.UUID, due bool) error {
	fields := log.Fields{"roomID": roomID, "operation": "settle", "trigger": due}

	return s.withRoomLock(ctx, roomID, "settle", s.cfg.LockBudgets.Settle, func(uow UnitOfWork) error {
		room, err := uow.RoomRepository().GetByIDForUpdate(ctx, roomID)
		if err != nil {
			return fmt.Errorf("failed to get room: %w", err)
		}
		if room == nil {
			return ErrRoomNotFound
		}

		existing, err := uow.SettlementRepository().GetByRoom(ctx, roomID)
		if err != nil {
			return fmt.Errorf("failed to get settlement: %w", err)
		}
		if existing != nil {
			log.WithFields(fields).Debug("Room already settled")
			return nil
		}
		if !room.IsSettleable() {
			log.WithFields(fields).WithField("status", room.Status).Debug("Room not settleable, skipping")
			return nil
		}
		if due && room.StartMode == models.StartModeFill && room.Status == models.RoomStatusOpen {
			log.WithFields(fields).Warn("Settle trigger for unlocked fill room, skipping")
			return nil
		}

		players, err := uow.RoomPlayerRepository().ListByRoom(ctx, roomID)
		if err != nil {
			return fmt.Errorf("failed to list room players: %w", err)
		}

		if len(players) < 2 {
			log.WithFields(fields).WithField("players", len(players)).Info("Room under-filled, refunding")
			if err := s.transition(ctx, uow, room, models.RoomStatusCancelled); err != nil {
				return err
			}
			return s.refundLocked(ctx, uow, room, players)
		}

		return s.settlePlayers(ctx, uow, room, players)
	})
}

func (s *roomService) settlePlayers(ctx context.Context, uow UnitOfWork, room *models.Room, players []*models.RoomPlayer) error {
	if err := s.transition(ctx, uow, room, models.RoomStatusRunning); err != nil {
		return err
	}

	seeds := make([]string, len(players))
	weights := make([]fairness.Weighted, len(players))
	for i, p := range players {
		seeds[i] = p.ClientSeed
		weights[i] = fairness.Weighted{UserID: p.UserID, Weight: room.StakeAmount}
	}

	reveal := models.Reveal{
		ServerSeed: room.ServerSeed,
		ClientSeed: fairness.JoinClientSeeds(seeds),
		Nonce:      room.Nonce + 1,
	}
	in := fairness.Input{
		ServerSeed: reveal.ServerSeed,
		ClientSeed: reveal.ClientSeed,
		Nonce:      reveal.Nonce,
		RoomID:     room.ID,
	}

	outcome, err := fairness.Derive(room.Game, in, weights, s.cfg.HouseEdgeBps)
	if err != nil {
		return fmt.Errorf("failed to derive outcome: %w", err)
	}
	payouts, err := ComputePayouts(room, players, outcome)
	if err != nil {
		return fmt.Errorf("failed to compute payouts: %w", err)
	}

	settlement := &models.Settlement{
		RoomID:           room.ID,
		Outcome:          outcome,
		RevealServerSeed: reveal.ServerSeed,
		RevealClientSeed: reveal.ClientSeed,
		RevealNonce:      reveal.Nonce,
		SettledAt:        s.now(),
	}
	if err := uow.SettlementRepository().Create(ctx, settlement); err != nil {
		return fmt.Errorf("failed to create settlement: %w", err)
	}

	var totalPaid int64
	for _, p := range payouts {
		account, err := ensureAccount(ctx, uow, models.AccountRef{UserID: p.UserID, Currency: room.Currency})
		if err != nil {
			return err
		}
		if _, err := PostLedgerEntry(ctx, uow, account, p.Type, p.Amount, p.RefType(), room.ID.String()); err != nil {
			return err
		}
		totalPaid += p.Amount
	}

	prev := room.Status
	if err := room.TransitionTo(models.RoomStatusSettled); err != nil {
		return err
	}
	if err := uow.RoomRepository().MarkSettled(ctx, room.ID, reveal.Nonce); err != nil {
		return fmt.Errorf("failed to mark room settled: %w", err)
	}
	room.Nonce = reveal.Nonce

	bus := uow.EventBus()
	bus.Publish(events.RoomStatusChangedEvent{RoomID: room.ID, Game: room.Game, OldStatus: prev, NewStatus: room.Status})
	bus.Publish(events.RoomSettledEvent{
		RoomID:      room.ID,
		Currency:    room.Currency,
		Outcome:     outcome,
		Reveal:      reveal,
		Pot:         room.Pot(len(players)),
		TotalPaid:   totalPaid,
		PlayerCount: len(players),
	})

	if room.IsSystem() {
		if err := s.spawnReplacement(ctx, uow, room); err != nil {
			return err
		}
	}

	log.WithFields(log.Fields{
		"roomID":  room.ID,
		"game":    room.Game,
		"players": len(players),
		"pot":     money.FromNano(room.Pot(len(players))),
		"paid":    money.FromNano(totalPaid),
		"nonce":   reveal.Nonce,
	}).Info("Settled room")
	return nil
}
