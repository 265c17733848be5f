package grid_world

import (
	"fmt"
	"math/rand"
)

// Environment holds the grid geometry, wind field and the transition/reward
// function. It keeps no episode state: callers pass GridStates in and get
// GridStates back. The random source is only drawn from for stochastic wind.
type Environment struct {
	rows, cols  int
	start, goal GridState
	wind        *WindField
	rng         *rand.Rand
}

// NewEnvironment validates cfg and builds an environment drawing wind noise from rng.
func NewEnvironment(cfg Config, rng *rand.Rand) (*Environment, error) {
	if cfg.Rows <= 0 || cfg.Cols <= 0 {
		return nil, fmt.Errorf("grid must be at least 1x1, got %dx%d: %w", cfg.Rows, cfg.Cols, ErrInvalidWorld)
	}
	if rng == nil {
		return nil, fmt.Errorf("nil random source: %w", ErrInvalidWorld)
	}

	strengths := cfg.Wind
	if len(strengths) == 0 {
		columns := cfg.WindColumns
		if len(columns) == 0 {
			columns = make([]int, cfg.Cols)
		}
		strengths = ColumnWind(cfg.Rows, columns)
	}
	wind, err := NewWindField(strengths)
	if err != nil {
		return nil, err
	}
	if wind.Rows() != cfg.Rows || wind.Cols() != cfg.Cols {
		return nil, fmt.Errorf("wind field is %dx%d but grid is %dx%d: %w",
			wind.Rows(), wind.Cols(), cfg.Rows, cfg.Cols, ErrInvalidWorld)
	}

	env := &Environment{
		rows:  cfg.Rows,
		cols:  cfg.Cols,
		start: cfg.Start,
		goal:  cfg.Goal,
		wind:  wind,
		rng:   rng,
	}
	if !env.OnGrid(cfg.Start) {
		return nil, fmt.Errorf("start %v is off the grid: %w", cfg.Start, ErrInvalidWorld)
	}
	if !env.OnGrid(cfg.Goal) {
		return nil, fmt.Errorf("goal %v is off the grid: %w", cfg.Goal, ErrInvalidWorld)
	}
	if cfg.Start == cfg.Goal {
		return nil, fmt.Errorf("start and goal are both %v: %w", cfg.Start, ErrInvalidWorld)
	}
	return env, nil
}

// NewReferenceEnvironment builds the classic 7x10 world.
func NewReferenceEnvironment(rng *rand.Rand) *Environment {
	env, err := NewEnvironment(Reference(), rng)
	if err != nil {
		panic(err)
	}
	return env
}

func (env *Environment) Rows() int { return env.rows }
func (env *Environment) Cols() int { return env.cols }

// Start returns the fixed start cell.
func (env *Environment) Start() GridState {
	return env.start
}

// Goal returns the terminal cell.
func (env *Environment) Goal() GridState {
	return env.goal
}

// IsTerminal reports whether s is the goal.
func (env *Environment) IsTerminal(s GridState) bool {
	return s == env.goal
}

// Wind returns the base (unperturbed) wind strength at s.
func (env *Environment) Wind(s GridState) int {
	return env.wind.At(s)
}

// OnGrid reports whether s lies within the grid bounds.
func (env *Environment) OnGrid(s GridState) bool {
	return s.Row >= 0 && s.Row < env.rows && s.Col >= 0 && s.Col < env.cols
}

// Step applies action from state and returns the successor and reward.
// Wind decreases the row (pushes north) after the action's displacement, and both
// coordinates are clamped to the grid. With stochastic set, windy cells get one
// uniform draw u: u >= 2/3 adds one to the wind, u <= 1/3 subtracts one (not below
// zero), otherwise the base wind applies. Calm cells are never perturbed.
func (env *Environment) Step(state GridState, action Action, stochastic bool) (GridState, float64) {
	move := action.Move()
	wind := env.effectiveWind(state, stochastic)

	next := GridState{
		Row: clamp(state.Row+move.DRow-wind, 0, env.rows-1),
		Col: clamp(state.Col+move.DCol, 0, env.cols-1),
	}
	if !env.OnGrid(next) {
		// Unreachable with correct clamping.
		panic(fmt.Sprintf("successor %v of %v/%v is off the %dx%d grid", next, state, action, env.rows, env.cols))
	}

	if env.IsTerminal(next) {
		return next, GoalReward
	}
	return next, StepReward
}

func (env *Environment) effectiveWind(state GridState, stochastic bool) int {
	wind := env.wind.At(state)
	if !stochastic || wind == 0 {
		return wind
	}

	u := env.rng.Float64()
	switch {
	case u >= 2.0/3.0:
		return wind + 1
	case u <= 1.0/3.0:
		return max(wind-1, 0)
	}
	return wind
}

// States returns every cell in row-major order.
func (env *Environment) States() []GridState {
	states := make([]GridState, 0, env.rows*env.cols)
	env.Visit(func(s GridState) {
		states = append(states, s)
	})
	return states
}

// Visit calls fn for every cell in row-major order.
func (env *Environment) Visit(fn func(s GridState)) {
	for r := 0; r < env.rows; r++ {
		for c := 0; c < env.cols; c++ {
			fn(GridState{Row: r, Col: c})
		}
	}
}

func clamp(val, lo, hi int) int {
	return min(max(val, lo), hi)
}
