package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"stakehouse/database"
	"stakehouse/models"
)

// RoomPlayerRepository implements join record data access
type RoomPlayerRepository struct {
	q queryable
}

// NewRoomPlayerRepository creates a new room player repository
func NewRoomPlayerRepository(db *database.DB) *RoomPlayerRepository {
	return &RoomPlayerRepository{q: db.Pool}
}

func newRoomPlayerRepositoryWithTx(tx queryable) *RoomPlayerRepository {
	return &RoomPlayerRepository{q: tx}
}

// Create inserts a join record. The BIGSERIAL id is the join order.
func (r *RoomPlayerRepository) Create(ctx context.Context, player *models.RoomPlayer) error {
	query := `
		INSERT INTO room_players (room_id, user_id, client_seed, bet_lock_entry_id, joined_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, joined_at
	`

	err := r.q.QueryRow(ctx, query,
		player.RoomID,
		player.UserID,
		player.ClientSeed,
		player.BetLockEntryID,
		player.JoinedAt,
	).Scan(&player.ID, &player.JoinedAt)
	if err != nil {
		return fmt.Errorf("failed to add user %s to room %s: %w", player.UserID, player.RoomID, err)
	}
	return nil
}

// ListByRoom returns the players of a room in join order
func (r *RoomPlayerRepository) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]*models.RoomPlayer, error) {
	query := `
		SELECT id, room_id, user_id, client_seed, bet_lock_entry_id, joined_at
		FROM room_players
		WHERE room_id = $1
		ORDER BY id ASC
	`

	rows, err := r.q.Query(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list players of room %s: %w", roomID, err)
	}
	defer rows.Close()

	var players []*models.RoomPlayer
	for rows.Next() {
		var p models.RoomPlayer
		if err := rows.Scan(&p.ID, &p.RoomID, &p.UserID, &p.ClientSeed, &p.BetLockEntryID, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan room player: %w", err)
		}
		players = append(players, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating room players: %w", err)
	}
	return players, nil
}
