package identity

import (
	"fmt"
	"math/rand/v2"

	"readingroom/pkg/types"
)

// IntN picks a pseudo-random index in [0, n). Injected so tests are deterministic.
type IntN func(n int) int

// Allocate assigns the lowest catalogue entry not present in used.
// ARCHITECTURAL DISCOVERY: Pure function over the session's current assignments.
// The caller holds the registry lock, which is what stops two simultaneous joiners
// from racing to the same index.
//
// When every entry is taken, a random entry is reused with its label suffixed by
// participantCount+1 so the join still succeeds with a displayable name.
func Allocate(used map[int]bool, participantCount int, intn IntN) types.Identity {
	// TECHNICAL DISCOVERY: Linear scan is fine at classroom scale (28 entries)
	for _, candidate := range catalogue {
		if !used[candidate.Index] {
			return candidate
		}
	}

	if intn == nil {
		intn = rand.IntN
	}
	fallback := catalogue[intn(len(catalogue))]
	fallback.Label = fmt.Sprintf("%s %d", fallback.Label, participantCount+1)
	return fallback
}
