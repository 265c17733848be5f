package grid_world

import (
	"errors"
	"fmt"
)

// GridState is a cell position. Row 0 is the top of the grid, and wind pushes
// toward it. GridState is comparable and is used directly as a table index.
type GridState struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (s GridState) String() string {
	return fmt.Sprintf("(%d,%d)", s.Row, s.Col)
}

// Action is one of the eight compass unit steps, indexed [0, NumActions).
type Action int

const (
	West Action = iota
	NorthWest
	North
	NorthEast
	East
	SouthEast
	South
	SouthWest

	NumActions = 8
)

// Move is the (row, col) displacement of an action before wind is applied.
type Move struct {
	DRow, DCol int
}

var (
	moves = [NumActions]Move{
		West:      {0, -1},
		NorthWest: {-1, -1},
		North:     {-1, 0},
		NorthEast: {-1, 1},
		East:      {0, 1},
		SouthEast: {1, 1},
		South:     {1, 0},
		SouthWest: {1, -1},
	}
	actionNames  = [NumActions]string{"W", "NW", "N", "NE", "E", "SE", "S", "SW"}
	actionArrows = [NumActions]rune{'←', '↖', '↑', '↗', '→', '↘', '↓', '↙'}
)

// Valid reports whether a indexes the action table.
func (a Action) Valid() bool {
	return a >= 0 && a < NumActions
}

// Move returns the action's displacement. Panics for an invalid action.
func (a Action) Move() Move {
	if !a.Valid() {
		panic(fmt.Sprintf("invalid action %d", int(a)))
	}
	return moves[a]
}

func (a Action) String() string {
	if !a.Valid() {
		return fmt.Sprintf("Action(%d)", int(a))
	}
	return actionNames[a]
}

// Arrow returns a console/html glyph pointing in the action's direction.
func (a Action) Arrow() rune {
	if !a.Valid() {
		return '?'
	}
	return actionArrows[a]
}

// Actions returns all actions in index order.
func Actions() []Action {
	all := make([]Action, NumActions)
	for i := range all {
		all[i] = Action(i)
	}
	return all
}

const (
	// Rewards: every step costs one until the goal is entered.
	StepReward = -1.0
	GoalReward = 0.0

	// Reference geometry.
	ReferenceRows = 7
	ReferenceCols = 10
)

var (
	ReferenceStart = GridState{Row: 3, Col: 0}
	ReferenceGoal  = GridState{Row: 3, Col: 7}
	// Base wind strength per column: columns 3-8 get 1, columns 6-7 get one more.
	ReferenceWindColumns = []int{0, 0, 0, 1, 1, 1, 2, 2, 1, 0}
)

// ErrInvalidWorld is returned for world geometry that cannot be built.
var ErrInvalidWorld = errors.New("invalid world")

// Config describes a windy gridworld. Wind takes precedence over WindColumns
// when both are given; with neither, the grid is calm.
// Fields decode from yaml by their lower-cased names (see reinforcement.FromYaml).
type Config struct {
	Rows, Cols  int
	Start, Goal GridState
	// WindColumns is a base strength per column, uniform down each column.
	WindColumns []int
	// Wind is a per-cell strength, indexed [row][col].
	Wind [][]int
}

// Reference returns the classic 7x10 layout.
func Reference() Config {
	cols := make([]int, len(ReferenceWindColumns))
	copy(cols, ReferenceWindColumns)
	return Config{
		Rows:        ReferenceRows,
		Cols:        ReferenceCols,
		Start:       ReferenceStart,
		Goal:        ReferenceGoal,
		WindColumns: cols,
	}
}

// WindField is a fixed per-cell map of non-negative base wind strengths.
type WindField struct {
	rows, cols int
	cells      []int
}

// NewWindField copies the [row][col] strengths. All rows must have equal
// length and every strength must be >= 0.
func NewWindField(strengths [][]int) (*WindField, error) {
	if len(strengths) == 0 || len(strengths[0]) == 0 {
		return nil, fmt.Errorf("wind field is empty: %w", ErrInvalidWorld)
	}
	rows, cols := len(strengths), len(strengths[0])
	wf := &WindField{rows: rows, cols: cols, cells: make([]int, 0, rows*cols)}
	for r, row := range strengths {
		if len(row) != cols {
			return nil, fmt.Errorf("wind row %d has %d columns, want %d: %w", r, len(row), cols, ErrInvalidWorld)
		}
		for c, w := range row {
			if w < 0 {
				return nil, fmt.Errorf("wind at (%d,%d) is negative (%d): %w", r, c, w, ErrInvalidWorld)
			}
			wf.cells = append(wf.cells, w)
		}
	}
	return wf, nil
}

// ColumnWind expands a per-column strength list into a rows x len(columns) field.
func ColumnWind(rows int, columns []int) [][]int {
	strengths := make([][]int, rows)
	for r := range strengths {
		strengths[r] = make([]int, len(columns))
		copy(strengths[r], columns)
	}
	return strengths
}

// At returns the base strength at s, which must be on the field.
func (wf *WindField) At(s GridState) int {
	return wf.cells[s.Row*wf.cols+s.Col]
}

func (wf *WindField) Rows() int { return wf.rows }
func (wf *WindField) Cols() int { return wf.cols }
