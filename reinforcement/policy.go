package reinforcement

import (
	"math/rand"

	. "windy/grid_world"
)

// Policy is the epsilon-greedy action selector. Ties on the maximum value are
// broken uniformly at random, never by lowest index.
type Policy struct {
	rng *rand.Rand
}

func NewPolicy(rng *rand.Rand) *Policy {
	return &Policy{rng: rng}
}

// Select explores uniformly with probability epsilon, else exploits Q at state.
func (p *Policy) Select(state GridState, q ValueReader, epsilon float64) Action {
	if p.rng.Float64() < epsilon {
		return Action(p.rng.Intn(NumActions))
	}
	return p.Greedy(state, q)
}

// Greedy returns a uniformly chosen member of argmax_a Q(state,a). Used for
// evaluation and demos.
func (p *Policy) Greedy(state GridState, q ValueReader) Action {
	best := Action(0)
	bestVal := q.Value(state, best)
	ties := 1
	for a := Action(1); a < NumActions; a++ {
		val := q.Value(state, a)
		switch {
		case val > bestVal:
			best, bestVal, ties = a, val, 1
		case val == bestVal:
			// Reservoir sampling: the k-th tie replaces the pick with probability 1/k.
			ties++
			if p.rng.Intn(ties) == 0 {
				best = a
			}
		}
	}
	return best
}

// MaximizingSet returns every action attaining max_a Q(state,a).
func MaximizingSet(state GridState, q ValueReader) (actions []Action) {
	bestVal := MaxValue(q, state)
	for a := Action(0); a < NumActions; a++ {
		if q.Value(state, a) == bestVal {
			actions = append(actions, a)
		}
	}
	return
}
