package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"stakehouse/database"
	"stakehouse/models"
	"stakehouse/money"
)

const roomColumns = `
	id, kind, currency, game, stake_amount, max_players, start_mode,
	starts_at, cancel_at, status, server_seed_hash, server_seed, nonce,
	created_at, updated_at`

// RoomRepository implements room data access
type RoomRepository struct {
	q queryable
}

// NewRoomRepository creates a new room repository
func NewRoomRepository(db *database.DB) *RoomRepository {
	return &RoomRepository{q: db.Pool}
}

// newRoomRepositoryWithTx creates a new room repository with a transaction
func newRoomRepositoryWithTx(tx queryable) *RoomRepository {
	return &RoomRepository{q: tx}
}

func scanRoom(row pgx.Row) (*models.Room, error) {
	var room models.Room
	err := row.Scan(
		&room.ID,
		&room.Kind,
		&room.Currency,
		&room.Game,
		&room.StakeAmount,
		&room.MaxPlayers,
		&room.StartMode,
		&room.StartsAt,
		&room.CancelAt,
		&room.Status,
		&room.ServerSeedHash,
		&room.ServerSeed,
		&room.Nonce,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func roomArgs(room *models.Room) []any {
	return []any{
		room.ID, room.Kind, room.Currency, room.Game, room.StakeAmount, room.MaxPlayers,
		room.StartMode, room.StartsAt, room.CancelAt, room.Status, room.ServerSeedHash,
		room.ServerSeed, room.Nonce,
	}
}

// Create inserts a new room
func (r *RoomRepository) Create(ctx context.Context, room *models.Room) error {
	query := `
		INSERT INTO rooms (
			id, kind, currency, game, stake_amount, max_players, start_mode,
			starts_at, cancel_at, status, server_seed_hash, server_seed, nonce
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query, roomArgs(room)...).Scan(&room.CreatedAt, &room.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create room %s: %w", room.ID, err)
	}
	return nil
}

// CreateSystemIfAbsent inserts a SYSTEM room unless the tier index already
// holds a live room
func (r *RoomRepository) CreateSystemIfAbsent(ctx context.Context, room *models.Room) (bool, error) {
	query := `
		INSERT INTO rooms (
			id, kind, currency, game, stake_amount, max_players, start_mode,
			starts_at, cancel_at, status, server_seed_hash, server_seed, nonce
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (currency, game, stake_amount)
			WHERE kind = 'SYSTEM' AND status IN ('OPEN', 'LOCKED')
			DO NOTHING
		RETURNING created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query, roomArgs(room)...).Scan(&room.CreatedAt, &room.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create system room %s: %w", room.ID, err)
	}
	return true, nil
}

// GetByID retrieves a room by id
func (r *RoomRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE id = $1`

	room, err := scanRoom(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room %s: %w", id, err)
	}
	return room, nil
}

// GetByIDForUpdate retrieves a room and locks its row until the transaction ends
func (r *RoomRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE id = $1 FOR UPDATE`

	room, err := scanRoom(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock room %s: %w", id, err)
	}
	return room, nil
}

// UpdateStatus moves a room from one status to another
func (r *RoomRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.RoomStatus) error {
	query := `
		UPDATE rooms
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`

	result, err := r.q.Exec(ctx, query, id, from, to)
	if err != nil {
		return fmt.Errorf("failed to update room %s status: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: room %s is not %s", models.ErrStatusConflict, id, from)
	}
	return nil
}

// MarkSettled moves a RUNNING room to SETTLED and records the consumed nonce
func (r *RoomRepository) MarkSettled(ctx context.Context, id uuid.UUID, nonce int64) error {
	query := `
		UPDATE rooms
		SET status = 'SETTLED', nonce = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'RUNNING'
	`

	result, err := r.q.Exec(ctx, query, id, nonce)
	if err != nil {
		return fmt.Errorf("failed to mark room %s settled: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: room %s is not RUNNING", models.ErrStatusConflict, id)
	}
	return nil
}

// FindActiveSystemRoom returns the live SYSTEM room of a tier
func (r *RoomRepository) FindActiveSystemRoom(ctx context.Context, currency models.Currency, game models.GameKind, stake int64) (*models.Room, error) {
	query := `
		SELECT ` + roomColumns + `
		FROM rooms
		WHERE kind = 'SYSTEM'
		  AND status IN ('OPEN', 'LOCKED')
		  AND currency = $1 AND game = $2 AND stake_amount = $3
		LIMIT 1
	`

	room, err := scanRoom(r.q.QueryRow(ctx, query, currency, game, stake))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find system room %s/%s/%d: %w", currency, game, stake, err)
	}
	return room, nil
}

// ListActive returns lobby rows, SYSTEM first then newest
func (r *RoomRepository) ListActive(ctx context.Context, filter models.RoomFilter, limit int) ([]*models.RoomSummary, error) {
	conditions := []string{"r.status IN ('OPEN', 'LOCKED', 'RUNNING')"}
	args := []any{}
	if filter.Currency != nil {
		args = append(args, *filter.Currency)
		conditions = append(conditions, fmt.Sprintf("r.currency = $%d", len(args)))
	}
	if filter.Game != nil {
		args = append(args, *filter.Game)
		conditions = append(conditions, fmt.Sprintf("r.game = $%d", len(args)))
	}
	if filter.Kind != nil {
		args = append(args, *filter.Kind)
		conditions = append(conditions, fmt.Sprintf("r.kind = $%d", len(args)))
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT
			r.id, r.kind, r.currency, r.game, r.stake_amount, r.max_players,
			r.start_mode, r.status, r.starts_at, r.created_at,
			(SELECT COUNT(*) FROM room_players p WHERE p.room_id = r.id) AS players_count
		FROM rooms r
		WHERE %s
		ORDER BY (r.kind = 'SYSTEM') DESC, r.created_at DESC
		LIMIT $%d
	`, strings.Join(conditions, " AND "), len(args))

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*models.RoomSummary
	for rows.Next() {
		var s models.RoomSummary
		var stake int64
		err := rows.Scan(
			&s.ID,
			&s.Kind,
			&s.Currency,
			&s.Game,
			&stake,
			&s.MaxPlayers,
			&s.StartMode,
			&s.Status,
			&s.StartsAt,
			&s.CreatedAt,
			&s.PlayersCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		s.StakeAmount = money.FromNano(stake)
		rooms = append(rooms, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rooms: %w", err)
	}
	return rooms, nil
}
