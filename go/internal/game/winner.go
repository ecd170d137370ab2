package game

import (
	"math/rand"

	"github.com/mcurtis22/triviarena/go/internal/models"
)

// SelectWinnerFunc resolves a round winner from the room's participants and
// the recorded first correct responder. Returning "" means no winner.
type SelectWinnerFunc func(participants []*models.Participant, firstCorrect string) string

// FirstCorrectWinner is the default selection strategy: the first correct
// responder wins, or nobody does.
func FirstCorrectWinner(_ []*models.Participant, firstCorrect string) string {
	return firstCorrect
}

// ForcedWinnerPolicy returns a strategy that overrides fair resolution: if
// any of the given identities are online in the room, one of them is picked
// uniformly at random regardless of who answered first or correctly. With no
// forced identity online it falls back to the first correct responder.
//
// This exists as an explicit, configurable policy (cfg forced_winners) for
// demos and staging; it must never be enabled silently.
func ForcedWinnerPolicy(identities []string, rng *rand.Rand) SelectWinnerFunc {
	forced := make(map[string]bool, len(identities))
	for _, id := range identities {
		forced[id] = true
	}
	return func(participants []*models.Participant, firstCorrect string) string {
		var online []string
		for _, p := range participants {
			if forced[p.Identity] {
				online = append(online, p.Identity)
			}
		}
		if len(online) == 0 {
			return firstCorrect
		}
		return online[rng.Intn(len(online))]
	}
}
