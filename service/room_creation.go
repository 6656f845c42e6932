package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"stakehouse/models"
	"stakehouse/money"
	"stakehouse/scheduler"
)

func (s *roomService) validateUserRoom(params CreateRoomParams) (int64, time.Duration, error) {
	if !params.Currency.IsValid() {
		return 0, 0, fmt.Errorf("%w: unsupported currency %q", ErrInvalidRoomParams, params.Currency)
	}
	if !params.Game.IsValid() {
		return 0, 0, fmt.Errorf("%w: unsupported game %q", ErrInvalidRoomParams, params.Game)
	}
	if !params.StartMode.IsValid() {
		return 0, 0, fmt.Errorf("%w: unsupported start mode %q", ErrInvalidRoomParams, params.StartMode)
	}

	stake, err := money.ToNano(params.StakeAmount)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrInvalidAmount, err)
	}
	if stake <= 0 {
		return 0, 0, fmt.Errorf("%w: stake must be positive", ErrInvalidAmount)
	}

	if params.Game == models.GameCoinflip && params.MaxPlayers != 2 {
		return 0, 0, fmt.Errorf("%w: coinflip rooms seat exactly 2 players", ErrInvalidRoomParams)
	}
	if params.MaxPlayers < s.cfg.MinUserPlayers || params.MaxPlayers > s.cfg.MaxUserPlayers {
		return 0, 0, fmt.Errorf("%w: maxPlayers must be between %d and %d",
			ErrInvalidRoomParams, s.cfg.MinUserPlayers, s.cfg.MaxUserPlayers)
	}

	var delay time.Duration
	if params.StartMode == models.StartModeTimer {
		delay = s.cfg.DefaultStartDelay
		if params.StartDelaySeconds != 0 {
			delay = time.Duration(params.StartDelaySeconds) * time.Second
		}
		if delay < s.cfg.MinStartDelay || delay > s.cfg.MaxStartDelay {
			return 0, 0, fmt.Errorf("%w: start delay must be between %s and %s",
				ErrInvalidRoomParams, s.cfg.MinStartDelay, s.cfg.MaxStartDelay)
		}
	}
	return stake, delay, nil
}

// CreateUserRoom opens a USER room and schedules its triggers in the same
// transaction, so a room never exists without them.
func (s *roomService) CreateUserRoom(ctx context.Context, params CreateRoomParams) (uuid.UUID, error) {
	stake, delay, err := s.validateUserRoom(params)
	if err != nil {
		return uuid.Nil, err
	}

	room, err := s.newRoom(models.RoomKindUser, params.Currency, params.Game, stake, params.MaxPlayers, params.StartMode)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to build room: %w", err)
	}
	cancelAt := room.CreatedAt.Add(s.cfg.UserRoomCancelAfter)
	room.CancelAt = &cancelAt
	if params.StartMode == models.StartModeTimer {
		startsAt := room.CreatedAt.Add(delay)
		room.StartsAt = &startsAt
	}

	err = s.withRoomLock(ctx, room.ID, "create", s.cfg.LockBudgets.Join, func(uow UnitOfWork) error {
		if err := uow.RoomRepository().Create(ctx, room); err != nil {
			return fmt.Errorf("failed to create room: %w", err)
		}
		uow.EventBus().Publish(roomCreatedEvent(room, nil))

		if err := s.scheduler.Schedule(ctx, scheduler.KindCancelIfEmpty, room.ID, s.cfg.UserRoomCancelAfter); err != nil {
			return fmt.Errorf("failed to schedule cancel: %w", err)
		}
		if room.StartMode == models.StartModeTimer {
			if err := s.scheduler.Schedule(ctx, scheduler.KindSettleRoom, room.ID, delay+s.cfg.TimerSettleSlack); err != nil {
				return fmt.Errorf("failed to schedule settlement: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	log.WithFields(log.Fields{
		"roomID":     room.ID,
		"userID":     params.UserID,
		"game":       room.Game,
		"currency":   room.Currency,
		"stake":      money.FromNano(room.StakeAmount),
		"maxPlayers": room.MaxPlayers,
		"startMode":  room.StartMode,
	}).Info("Created user room")
	return room.ID, nil
}

// EnsureSystemRooms creates a FILL room for every tier without a live one.
// Concurrent runs are serialized by the lobby lock and the tier index.
func (s *roomService) EnsureSystemRooms(ctx context.Context) (int, error) {
	created := 0
	err := s.withLock(ctx, LobbyLockKey, "ensure_system_rooms", s.cfg.LockBudgets.Settle, func(uow UnitOfWork) error {
		created = 0
		for _, tier := range s.cfg.Tiers {
			existing, err := uow.RoomRepository().FindActiveSystemRoom(ctx, tier.Currency, tier.Game, tier.StakeAmount)
			if err != nil {
				return fmt.Errorf("failed to find system room: %w", err)
			}
			if existing != nil {
				continue
			}

			maxPlayers := tier.MaxPlayers
			if maxPlayers == 0 {
				maxPlayers = DefaultMaxPlayers(tier.Game)
			}
			room, err := s.newRoom(models.RoomKindSystem, tier.Currency, tier.Game, tier.StakeAmount, maxPlayers, models.StartModeFill)
			if err != nil {
				return fmt.Errorf("failed to build system room: %w", err)
			}
			ok, err := uow.RoomRepository().CreateSystemIfAbsent(ctx, room)
			if err != nil {
				return fmt.Errorf("failed to create system room: %w", err)
			}
			if !ok {
				continue
			}
			uow.EventBus().Publish(roomCreatedEvent(room, nil))
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.WithFields(log.Fields{
		"created": created,
		"tiers":   len(s.cfg.Tiers),
	}).Info("Ensured system rooms")
	return created, nil
}

// ListRooms returns the lobby
func (s *roomService) ListRooms(ctx context.Context, filter models.RoomFilter) ([]*models.RoomSummary, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	rooms, err := uow.RoomRepository().ListActive(ctx, filter, s.cfg.ListLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, nil
}

// RoomDetails returns the public view of a room. The server seed is only
// included once a settlement exists.
func (s *roomService) RoomDetails(ctx context.Context, roomID uuid.UUID) (*models.RoomDetails, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	room, err := uow.RoomRepository().GetByID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}

	players, err := uow.RoomPlayerRepository().ListByRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list room players: %w", err)
	}
	settlement, err := uow.SettlementRepository().GetByRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}

	details := &models.RoomDetails{
		RoomSummary: summarize(room, len(players)),
		Players:     make([]models.PlayerView, 0, len(players)),
		ProvablyFair: models.Commitment{
			ServerSeedHash: room.ServerSeedHash,
			Nonce:          room.Nonce,
		},
	}
	for _, p := range players {
		details.Players = append(details.Players, models.PlayerView{UserID: p.UserID, JoinedAt: p.JoinedAt})
	}
	if settlement != nil {
		details.Settled = &models.SettlementView{
			Outcome: settlement.Outcome,
			Reveal: models.Reveal{
				ServerSeed: settlement.RevealServerSeed,
				ClientSeed: settlement.RevealClientSeed,
				Nonce:      settlement.RevealNonce,
			},
			SettledAt: settlement.SettledAt,
			TxProof:   settlement.TxProof,
		}
	}
	return details, nil
}

// History returns the rooms a user played that have settled
func (s *roomService) History(ctx context.Context, userID uuid.UUID) ([]*models.HistoryItem, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	items, err := uow.SettlementRepository().ListByUser(ctx, userID, s.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return items, nil
}

func summarize(room *models.Room, playersCount int) models.RoomSummary {
	return models.RoomSummary{
		ID:           room.ID,
		Kind:         room.Kind,
		Currency:     room.Currency,
		Game:         room.Game,
		StakeAmount:  money.FromNano(room.StakeAmount),
		MaxPlayers:   room.MaxPlayers,
		StartMode:    room.StartMode,
		Status:       room.Status,
		StartsAt:     room.StartsAt,
		CreatedAt:    room.CreatedAt,
		PlayersCount: playersCount,
	}
}

