package reinforcement

import (
	"fmt"

	. "windy/grid_world"
)

// Rollout follows the greedy policy from the start state with deterministic
// wind and returns the visited path, start and goal included. A policy that
// fails to reach the goal within maxSteps yields the partial path and an error
// wrapping ErrEpisodeStepCap.
func Rollout(env *Environment, q ValueReader, policy *Policy, maxSteps int) ([]GridState, error) {
	state := env.Start()
	path := []GridState{state}
	for steps := 0; !env.IsTerminal(state); steps++ {
		if steps >= maxSteps {
			return path, fmt.Errorf("greedy rollout stopped at %v after %d steps: %w", state, steps, ErrEpisodeStepCap)
		}
		state, _ = env.Step(state, policy.Greedy(state, q), false)
		path = append(path, state)
	}
	return path, nil
}
