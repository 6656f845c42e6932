package fairness

import (
	"fmt"
	"reflect"

	"github.com/google/uuid"

	"stakehouse/models"
)

// Claim is everything a third party needs to re-derive a settlement
type Claim struct {
	RoomID       uuid.UUID
	Commitment   string
	Reveal       models.Reveal
	Outcome      models.Outcome
	Players      []Weighted
	HouseEdgeBps int64
}

// Verify checks that the revealed seed matches the published commitment and
// that the recorded outcome is the one the reveal produces.
func Verify(c Claim) error {
	if Commit(c.Reveal.ServerSeed) != c.Commitment {
		return ErrCommitMismatch
	}

	in := Input{
		ServerSeed: c.Reveal.ServerSeed,
		ClientSeed: c.Reveal.ClientSeed,
		Nonce:      c.Reveal.Nonce,
		RoomID:     c.RoomID,
	}
	derived, err := Derive(c.Outcome.Game, in, c.Players, c.HouseEdgeBps)
	if err != nil {
		return fmt.Errorf("failed to derive outcome: %w", err)
	}
	if !reflect.DeepEqual(derived, c.Outcome) {
		return ErrOutcomeMismatch
	}
	return nil
}
