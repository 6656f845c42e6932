package models

import (
	"time"

	"github.com/google/uuid"
)

// RoomSummary is a lobby listing row
type RoomSummary struct {
	ID           uuid.UUID  `json:"id"`
	Kind         RoomKind   `json:"kind"`
	Currency     Currency   `json:"currency"`
	Game         GameKind   `json:"game"`
	StakeAmount  string     `json:"stakeAmount"`
	MaxPlayers   int        `json:"maxPlayers"`
	StartMode    StartMode  `json:"startMode"`
	Status       RoomStatus `json:"status"`
	StartsAt     *time.Time `json:"startsAt"`
	CreatedAt    time.Time  `json:"createdAt"`
	PlayersCount int        `json:"playersCount"`
}

// PlayerView is a public join record
type PlayerView struct {
	UserID   uuid.UUID `json:"userId"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Commitment is the public half of the commit-reveal contract
type Commitment struct {
	ServerSeedHash string `json:"serverSeedHash"`
	Nonce          int64  `json:"nonce"`
}

// Reveal is the triple published at settlement
type Reveal struct {
	ServerSeed string `json:"serverSeed"`
	ClientSeed string `json:"clientSeed"`
	Nonce      int64  `json:"nonce"`
}

// SettlementView is the public form of a settlement
type SettlementView struct {
	Outcome   Outcome   `json:"outcome"`
	Reveal    Reveal    `json:"reveal"`
	SettledAt time.Time `json:"settledAt"`
	TxProof   *string   `json:"txProof"`
}

// RoomDetails is the full public view of one room. The server seed only
// appears inside Settled.
type RoomDetails struct {
	RoomSummary
	Players      []PlayerView    `json:"players"`
	ProvablyFair Commitment      `json:"provablyFair"`
	Settled      *SettlementView `json:"settled"`
}

// HistoryItem is one settled room a user took part in
type HistoryItem struct {
	SettlementID   int64     `json:"id"`
	RoomID         uuid.UUID `json:"roomId"`
	Game           GameKind  `json:"game"`
	Currency       Currency  `json:"currency"`
	StakeAmount    string    `json:"stakeAmount"`
	StartedAt      time.Time `json:"startedAt"`
	SettledAt      time.Time `json:"settledAt"`
	Outcome        Outcome   `json:"outcome"`
	ServerSeedHash string    `json:"serverSeedHash"`
	Reveal         Reveal    `json:"reveal"`
}
