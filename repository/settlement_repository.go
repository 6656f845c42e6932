package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"stakehouse/database"
	"stakehouse/models"
	"stakehouse/money"
)

// SettlementRepository implements settlement data access
type SettlementRepository struct {
	q queryable
}

// NewSettlementRepository creates a new settlement repository
func NewSettlementRepository(db *database.DB) *SettlementRepository {
	return &SettlementRepository{q: db.Pool}
}

func newSettlementRepositoryWithTx(tx queryable) *SettlementRepository {
	return &SettlementRepository{q: tx}
}

// Create inserts the settlement of a room. The unique room_id constraint
// rejects a second settlement.
func (r *SettlementRepository) Create(ctx context.Context, settlement *models.Settlement) error {
	outcome, err := json.Marshal(settlement.Outcome)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	query := `
		INSERT INTO settlements (room_id, outcome, reveal_server_seed, reveal_client_seed, reveal_nonce, tx_proof, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, settled_at
	`

	err = r.q.QueryRow(ctx, query,
		settlement.RoomID,
		outcome,
		settlement.RevealServerSeed,
		settlement.RevealClientSeed,
		settlement.RevealNonce,
		settlement.TxProof,
		settlement.SettledAt,
	).Scan(&settlement.ID, &settlement.SettledAt)
	if err != nil {
		return fmt.Errorf("failed to create settlement for room %s: %w", settlement.RoomID, err)
	}
	return nil
}

// GetByRoom returns the settlement of a room
func (r *SettlementRepository) GetByRoom(ctx context.Context, roomID uuid.UUID) (*models.Settlement, error) {
	query := `
		SELECT id, room_id, outcome, reveal_server_seed, reveal_client_seed, reveal_nonce, tx_proof, settled_at
		FROM settlements
		WHERE room_id = $1
	`

	var s models.Settlement
	var outcome []byte
	err := r.q.QueryRow(ctx, query, roomID).Scan(
		&s.ID,
		&s.RoomID,
		&outcome,
		&s.RevealServerSeed,
		&s.RevealClientSeed,
		&s.RevealNonce,
		&s.TxProof,
		&s.SettledAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement for room %s: %w", roomID, err)
	}
	if err := json.Unmarshal(outcome, &s.Outcome); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outcome of room %s: %w", roomID, err)
	}
	return &s, nil
}

// ListByUser returns the settled rooms a user played, newest first
func (r *SettlementRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.HistoryItem, error) {
	query := `
		SELECT
			s.id, r.id, r.game, r.currency, r.stake_amount, r.created_at, s.settled_at,
			s.outcome, r.server_seed_hash, s.reveal_server_seed, s.reveal_client_seed, s.reveal_nonce
		FROM settlements s
		JOIN rooms r ON r.id = s.room_id
		JOIN room_players p ON p.room_id = r.id
		WHERE p.user_id = $1
		ORDER BY s.settled_at DESC, s.id DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history for user %s: %w", userID, err)
	}
	defer rows.Close()

	var items []*models.HistoryItem
	for rows.Next() {
		var item models.HistoryItem
		var stake int64
		var outcome []byte
		err := rows.Scan(
			&item.SettlementID,
			&item.RoomID,
			&item.Game,
			&item.Currency,
			&stake,
			&item.StartedAt,
			&item.SettledAt,
			&outcome,
			&item.ServerSeedHash,
			&item.Reveal.ServerSeed,
			&item.Reveal.ClientSeed,
			&item.Reveal.Nonce,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history item: %w", err)
		}
		if err := json.Unmarshal(outcome, &item.Outcome); err != nil {
			return nil, fmt.Errorf("failed to unmarshal outcome: %w", err)
		}
		item.StakeAmount = money.FromNano(stake)
		items = append(items, &item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}
	return items, nil
}
