package reinforcement

import (
	"fmt"

	"windy/atomic_float"
	. "windy/grid_world"
)

// ActionValueTable is a dense rows x cols x NumActions table of Q(s,a), zero
// initialized. Cells are atomic floats: the learner is the single writer, and
// views may sample the table from other goroutines while it trains.
type ActionValueTable struct {
	rows, cols int
	vals       []atomic_float.AtomicFloat64
}

func NewActionValueTable(rows, cols int) *ActionValueTable {
	return &ActionValueTable{
		rows: rows,
		cols: cols,
		vals: make([]atomic_float.AtomicFloat64, rows*cols*NumActions),
	}
}

func (q *ActionValueTable) Rows() int { return q.rows }
func (q *ActionValueTable) Cols() int { return q.cols }

func (q *ActionValueTable) index(s GridState, a Action) int {
	if s.Row < 0 || s.Row >= q.rows || s.Col < 0 || s.Col >= q.cols || !a.Valid() {
		panic(fmt.Sprintf("Q index %v/%v outside %dx%dx%d table", s, a, q.rows, q.cols, NumActions))
	}
	return (s.Row*q.cols+s.Col)*NumActions + int(a)
}

// Value returns Q(s,a).
func (q *ActionValueTable) Value(s GridState, a Action) float64 {
	return q.vals[q.index(s, a)].AtomicRead()
}

// Set overwrites Q(s,a).
func (q *ActionValueTable) Set(s GridState, a Action, val float64) {
	q.vals[q.index(s, a)].AtomicSet(val)
}

// Add adds delta to Q(s,a) and returns the new value. A lost compare-and-swap
// means a second writer exists, which breaks the table's ownership rule.
func (q *ActionValueTable) Add(s GridState, a Action, delta float64) float64 {
	newVal, ok := q.vals[q.index(s, a)].AtomicAdd(delta)
	if !ok {
		panic(fmt.Sprintf("concurrent write to Q%v/%v", s, a))
	}
	return newVal
}

// Row copies the NumActions values at s.
func (q *ActionValueTable) Row(s GridState) []float64 {
	row := make([]float64, NumActions)
	for a := range row {
		row[a] = q.Value(s, Action(a))
	}
	return row
}

// Snapshot copies the table as [row][col][action].
func (q *ActionValueTable) Snapshot() [][][]float64 {
	snap := make([][][]float64, q.rows)
	for r := range snap {
		snap[r] = make([][]float64, q.cols)
		for c := range snap[r] {
			snap[r][c] = q.Row(GridState{Row: r, Col: c})
		}
	}
	return snap
}
