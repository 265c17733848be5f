// cell_views contains views derived from the Cell view-model.
package cell_views

import (
	"fmt"
	"math/rand"

	. "windy/grid_world"
	"windy/reinforcement"
)

// CellDim is the rendered width and height of a grid cell, in pixels.
const CellDim = 80

// Cell is a flattened, ready-to-render description of one grid cell: the svg
// coordinates of its top-left corner, its max action value, and the greedy
// action's arrow. Fields should be immediately usable as template parameters.
type Cell struct {
	Row, Col int
	X, Y     int
	Max      float64
	Arrow    string
	Wind     int
	Fill     string
	Text     string
	IsGoal   bool
	IsStart  bool
}

// Converter builds cells from a live action-value table of env.
type Converter struct {
	env *Environment
}

func NewConverter(env *Environment) *Converter {
	return &Converter{env: env}
}

// Convert samples q into [row][col] cells. Each call draws greedy tie-breaks
// from its own random source, so Convert may run on any goroutine.
func (cv *Converter) Convert(q *reinforcement.ActionValueTable) [][]Cell {
	policy := reinforcement.NewPolicy(rand.New(rand.NewSource(1)))
	cells := make([][]Cell, cv.env.Rows())
	for r := range cells {
		cells[r] = make([]Cell, cv.env.Cols())
	}

	cv.env.Visit(func(s GridState) {
		wind := cv.env.Wind(s)
		cell := Cell{
			Row:     s.Row,
			Col:     s.Col,
			X:       s.Col * CellDim,
			Y:       s.Row * CellDim,
			Max:     MaxValue(q, s),
			Wind:    wind,
			Fill:    getFill(wind, cv.env.IsTerminal(s)),
			Text:    getTextFill(wind),
			IsGoal:  cv.env.IsTerminal(s),
			IsStart: s == cv.env.Start(),
		}
		if !cell.IsGoal {
			cell.Arrow = string(policy.Greedy(s, q).Arrow())
		}
		cells[s.Row][s.Col] = cell
	})
	return cells
}

// ValueId and ArrowId are the element ids of a cell's value text and policy arrow.
func ValueId(row, col int) string { return fmt.Sprintf("%d-%d-value-text", row, col) }
func ArrowId(row, col int) string { return fmt.Sprintf("%d-%d-policy-arrow", row, col) }

// Deeper blue for stronger wind; the goal is green.
func getFill(wind int, goal bool) string {
	switch {
	case goal:
		return "rgb(0,255,0)"
	case wind > 0:
		return fmt.Sprintf("rgb(0,0,%d)", max(255-wind*60, 0))
	}
	return "white"
}

func getTextFill(wind int) string {
	if wind > 0 {
		return "white"
	}
	return "black"
}
