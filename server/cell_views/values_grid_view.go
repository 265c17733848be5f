package cell_views

import (
	"fmt"
	"html/template"

	"windy/server/fastview"

	channerics "github.com/niceyeti/channerics/channels"
)

// AgentId is the element id of the agent marker drawn over the grid.
const AgentId = "agent"

// ValuesGrid draws the world as an svg grid shaded by wind strength, with each
// cell's max action value and greedy arrow, plus a hidden agent marker that
// the demo moves around.
type ValuesGrid struct {
	id      string
	updates <-chan []fastview.EleUpdate
}

func NewValuesGrid(
	done <-chan struct{},
	cells <-chan [][]Cell,
) (vg *ValuesGrid) {
	vg = &ValuesGrid{id: "valuesgrid"}
	vg.updates = channerics.Convert(done, cells, vg.onUpdate)
	return
}

func (vg *ValuesGrid) Updates() <-chan []fastview.EleUpdate {
	return vg.updates
}

// Returns the set of view updates needed for the view to reflect the current values.
func (vg *ValuesGrid) onUpdate(cells [][]Cell) (ops []fastview.EleUpdate) {
	for _, row := range cells {
		for _, cell := range row {
			ops = append(ops, fastview.SetText(ValueId(cell.Row, cell.Col), fmt.Sprintf("%.2f", cell.Max)))
			if !cell.IsGoal {
				ops = append(ops, fastview.SetText(ArrowId(cell.Row, cell.Col), cell.Arrow))
			}
		}
	}
	return
}

// AgentAt returns the update placing the agent marker on (row, col).
func AgentAt(row, col int) fastview.EleUpdate {
	const inset = 5
	return fastview.SetAttrs(AgentId,
		"x", fmt.Sprintf("%d", col*CellDim+inset),
		"y", fmt.Sprintf("%d", row*CellDim+inset),
		"visibility", "visible")
}

// HideAgent returns the update hiding the agent marker.
func HideAgent() fastview.EleUpdate {
	return fastview.SetAttrs(AgentId, "visibility", "hidden")
}

// Parse defines the grid template, which is executed with [][]Cell.
func (vg *ValuesGrid) Parse(t *template.Template) (name string, err error) {
	name = vg.id
	_, err = t.Parse(`{{ define "` + name + `" }}
		<div id="` + vg.id + `-container">
			{{ $rows := len . }}
			{{ $cols := len (index . 0) }}
			{{ $dim := ` + fmt.Sprintf("%d", CellDim) + ` }}
			{{ $half := div $dim 2 }}
			<svg id="` + vg.id + `" xmlns="http://www.w3.org/2000/svg"
				width="{{ add (mult $cols $dim) 1 }}px"
				height="{{ add (mult $rows $dim) 1 }}px"
				style="shape-rendering: crispEdges; font-family: sans-serif;">
				{{ range $row := . }}
					{{ range $cell := $row }}
					<g>
						<rect x="{{ $cell.X }}" y="{{ $cell.Y }}" width="{{ $dim }}" height="{{ $dim }}"
							fill="{{ $cell.Fill }}" stroke="black" stroke-width="1"/>
						<text id="{{ $cell.Row }}-{{ $cell.Col }}-value-text"
							x="{{ add $cell.X $half }}" y="{{ add $cell.Y (sub $half 12) }}"
							fill="{{ $cell.Text }}" font-size="14"
							dominant-baseline="middle" text-anchor="middle"
							>{{ printf "%.2f" $cell.Max }}</text>
						{{ if $cell.IsGoal }}
						<text x="{{ add $cell.X $half }}" y="{{ add $cell.Y (add $half 16) }}"
							fill="black" font-size="18" dominant-baseline="middle" text-anchor="middle">G</text>
						{{ else }}
						<text id="{{ $cell.Row }}-{{ $cell.Col }}-policy-arrow"
							x="{{ add $cell.X $half }}" y="{{ add $cell.Y (add $half 16) }}"
							fill="{{ $cell.Text }}" font-size="22"
							dominant-baseline="middle" text-anchor="middle"
							>{{ $cell.Arrow }}</text>
						{{ end }}
						<text x="{{ add $cell.X 6 }}" y="{{ add $cell.Y 12 }}" fill="{{ $cell.Text }}" font-size="10"
							>{{ if $cell.IsStart }}S {{ end }}w{{ $cell.Wind }}</text>
					</g>
					{{ end }}
				{{ end }}
				<rect id="` + AgentId + `" x="5" y="5" width="{{ sub $dim 10 }}" height="{{ sub $dim 10 }}"
					fill="red" fill-opacity="0.7" visibility="hidden"/>
			</svg>
		</div>
	{{ end }}`)
	return
}
