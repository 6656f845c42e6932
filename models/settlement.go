package models

import (
	"time"

	"github.com/google/uuid"
)

// Settlement is the immutable result of a settled room. At most one exists
// per room.
type Settlement struct {
	ID               int64     `db:"id"`
	RoomID           uuid.UUID `db:"room_id"`
	Outcome          Outcome   `db:"outcome"`
	RevealServerSeed string    `db:"reveal_server_seed"`
	RevealClientSeed string    `db:"reveal_client_seed"`
	RevealNonce      int64     `db:"reveal_nonce"`
	TxProof          *string   `db:"tx_proof"`
	SettledAt        time.Time `db:"settled_at"`
}
