// Package assign deals catalog roles to the players of a game.
package assign

import (
	"math/rand"

	"conclave.org/internal/catalog"
	"conclave.org/internal/game"
)

// Shuffler permutes n elements through swap, with the signature of rand.Shuffle.
type Shuffler func(n int, swap func(i, j int))

// RandomShuffler uses a private source seeded with seed.
func RandomShuffler(seed int64) Shuffler {
	return rand.New(rand.NewSource(seed)).Shuffle
}

// Assign returns players with CurrentRole and OriginalRole set. The input slice is
// not modified. Unique roles go out first in tier order, then the fillers
// alternate round-robin.
func Assign(players []game.Player, c *catalog.Catalog, shuffle Shuffler) ([]game.Player, error) {
	unique, fillers := c.Assignable()
	if len(fillers) == 0 {
		return nil, game.ErrCatalogMisconfigured
	}

	dealt := append([]game.Player(nil), players...)
	if shuffle != nil {
		shuffle(len(dealt), func(i, j int) { dealt[i], dealt[j] = dealt[j], dealt[i] })
	}

	next := 0
	for i := range dealt {
		var role game.Role
		if i < len(unique) {
			role = unique[i]
		} else {
			role = fillers[next%len(fillers)]
			next++
		}
		dealt[i].CurrentRole = role.Name
		dealt[i].OriginalRole = role.Name
	}
	return dealt, nil
}
