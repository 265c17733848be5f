package grid_world

import (
	"fmt"
	"io"
	"math"

	"github.com/logrusorgru/aurora"
)

// ValueReader is the read side of an action-value table, which is all the
// console views need.
type ValueReader interface {
	Value(s GridState, a Action) float64
}

// MaxValue returns the largest action value at s.
func MaxValue(q ValueReader, s GridState) float64 {
	best := math.Inf(-1)
	for a := Action(0); a < NumActions; a++ {
		best = math.Max(best, q.Value(s, a))
	}
	return best
}

// Printer renders the world to a console. Rows print top (row 0) to bottom,
// so wind pushes toward the top of the output.
type Printer struct {
	w  io.Writer
	au aurora.Aurora
}

// NewPrinter writes to w, with ANSI colors when color is set.
func NewPrinter(w io.Writer, color bool) *Printer {
	return &Printer{w: w, au: aurora.NewAurora(color)}
}

// ShowGrid prints the wind strength of each cell, marking start, goal, and any
// cells on path.
func (p *Printer) ShowGrid(env *Environment, path []GridState) {
	onPath := map[GridState]bool{}
	for _, s := range path {
		onPath[s] = true
	}

	for r := 0; r < env.Rows(); r++ {
		for c := 0; c < env.Cols(); c++ {
			s := GridState{Row: r, Col: c}
			switch {
			case s == env.Goal():
				fmt.Fprint(p.w, p.au.Green(" G "))
			case s == env.Start():
				fmt.Fprint(p.w, p.au.Cyan(" S "))
			case onPath[s]:
				fmt.Fprint(p.w, p.au.Red(fmt.Sprintf(" %d ", env.Wind(s))))
			default:
				fmt.Fprint(p.w, p.au.Blue(fmt.Sprintf(" %d ", env.Wind(s))))
			}
			fmt.Fprint(p.w, p.au.White("|"))
		}
		fmt.Fprintln(p.w)
	}
	fmt.Fprintln(p.w, "wind:", windRow(env))
}

func windRow(env *Environment) (row string) {
	for c := 0; c < env.Cols(); c++ {
		row += fmt.Sprintf("%d ", env.Wind(GridState{Row: 0, Col: c}))
	}
	return
}

// ShowPolicy prints an arrow per cell for the action chosen by policy.
func (p *Printer) ShowPolicy(env *Environment, policy func(GridState) Action) {
	for r := 0; r < env.Rows(); r++ {
		fmt.Fprint(p.w, " ")
		for c := 0; c < env.Cols(); c++ {
			s := GridState{Row: r, Col: c}
			if env.IsTerminal(s) {
				fmt.Fprint(p.w, p.au.Green("G "))
				continue
			}
			fmt.Fprint(p.w, p.au.Yellow(fmt.Sprintf("%c ", policy(s).Arrow())))
		}
		fmt.Fprintln(p.w)
	}
}

// ShowMaxValues prints max_a Q(s,a) for each cell and the sum over all cells.
func (p *Printer) ShowMaxValues(env *Environment, q ValueReader) {
	fmt.Fprintln(p.w, "Max vals:")
	total := 0.0
	for r := 0; r < env.Rows(); r++ {
		fmt.Fprint(p.w, " ")
		for c := 0; c < env.Cols(); c++ {
			val := MaxValue(q, GridState{Row: r, Col: c})
			total += val
			fmt.Fprint(p.w, p.au.Blue(formatValue(val)))
			fmt.Fprint(p.w, p.au.White("|"))
		}
		fmt.Fprintln(p.w)
	}
	fmt.Fprintf(p.w, "Total: %.2f\n", total)
}

func formatValue(x float64) string {
	if x < 0 {
		return fmt.Sprintf(" -%06.2f", -x)
	}
	return fmt.Sprintf("  %06.2f", x)
}
