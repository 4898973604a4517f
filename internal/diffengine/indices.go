package diffengine

import (
	"errors"
	"fmt"
)

// ErrInvalidServerName is returned by PrepareIndices when the configured
// target does not appear in the declared server list.
var ErrInvalidServerName = errors.New("invalid server name")

// Indices precomputes the position pairs the two engine passes compare,
// from the declared server order and the configured target name.
type Indices struct {
	Target      int      // position of the target server
	Others      []int    // positions of every non-target server, declared order
	PairTarget  [2]int   // (reference-other, target) used by pass 2
	PairsOthers [][2]int // adjacent (other, other) chain used by pass 1
}

// PrepareIndices validates the server list (target must be present; at
// least two servers total) and builds the index sets both
// differential-engine passes iterate over.
func PrepareIndices(servers []string, target string) (Indices, error) {
	if len(servers) < 2 {
		return Indices{}, fmt.Errorf("%w: need at least two servers, got %d", ErrInvalidServerName, len(servers))
	}

	targetPos := -1
	var others []int
	for i, name := range servers {
		if name == target {
			targetPos = i
			continue
		}
		others = append(others, i)
	}
	if targetPos < 0 {
		return Indices{}, fmt.Errorf("%w: target %q not in declared servers", ErrInvalidServerName, target)
	}

	idx := Indices{Target: targetPos, Others: others}
	if len(others) > 0 {
		idx.PairTarget = [2]int{others[0], targetPos}
	}
	for i := 0; i+1 < len(others); i++ {
		idx.PairsOthers = append(idx.PairsOthers, [2]int{others[i], others[i+1]})
	}
	return idx, nil
}
