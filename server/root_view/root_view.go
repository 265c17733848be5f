package root_view

import (
	"context"
	"html/template"
	"time"

	"windy/grid_world"
	"windy/reinforcement"
	"windy/server/cell_views"
	"windy/server/fastview"
)

// StatusId is the element id of the page's status line.
const StatusId = "status"

// batchRate is the window within which ele-updates for the same element are coalesced.
const batchRate = time.Millisecond * 20

// Page is the data the main template is executed with.
type Page struct {
	Cells  [][]cell_views.Cell
	Status string
}

// RootView is the main page's index.html, which is the container for all the
// view components, the wiring for their channels, etc.
type RootView struct {
	views   []fastview.ViewComponent
	updates <-chan []fastview.EleUpdate
}

// NewRootView creates the main page and the views it contains. Table updates
// are converted to cells once and broadcast to every view; extra carries
// updates that do not derive from the table, such as the agent's position.
func NewRootView(
	ctx context.Context,
	env *grid_world.Environment,
	tableUpdates <-chan *reinforcement.ActionValueTable,
	extra ...<-chan []fastview.EleUpdate,
) (*RootView, error) {
	converter := cell_views.NewConverter(env)
	views, err := fastview.NewViewBuilder(tableUpdates, converter.Convert).
		WithContext(ctx).
		WithView(func(
			done <-chan struct{},
			cellUpdates <-chan [][]cell_views.Cell) fastview.ViewComponent {
			return cell_views.NewValuesGrid(done, cellUpdates)
		}).
		Build()
	if err != nil {
		return nil, err
	}

	return &RootView{
		views:   views,
		updates: fastview.FanIn(ctx.Done(), batchRate, views, extra...),
	}, nil
}

// Updates returns the main ele-update channel for all the views.
func (rv *RootView) Updates() <-chan []fastview.EleUpdate {
	return rv.updates
}

// Parse builds the main page's template, with websocket bootstrap code, and returns its name.
// It also sets up the func-map that the child components depend on.
func (rv *RootView) Parse(
	parent *template.Template,
) (name string, err error) {
	rt := parent.Funcs(
		template.FuncMap{
			"add":  func(i, j int) int { return i + j },
			"sub":  func(i, j int) int { return i - j },
			"mult": func(i, j int) int { return i * j },
			"div":  func(i, j int) int { return i / j },
		})

	viewTemplates := []string{}
	for _, vc := range rv.views {
		tname, parseErr := vc.Parse(rt)
		if parseErr != nil {
			err = parseErr
			return
		}
		viewTemplates = append(viewTemplates, tname)
	}

	var bodySpec string
	for _, tname := range viewTemplates {
		bodySpec += `{{ template "` + tname + `" .Cells }}`
	}

	// The main template bootstraps the rest: sets up the client websocket and
	// updates, the demo controls, and aggregates the views.
	name = "mainpage"
	indexTemplate := `
	{{ define "` + name + `" }}
	<!DOCTYPE html>
	<html>
		<head>
			<title>windy gridworld</title>
			<link rel="icon" href="data:,">
			<script>
				const ws = new WebSocket("ws://" + location.host + "/ws");
				ws.onopen = function (event) {
					console.log("Web socket opened")
				};

				ws.onerror = function (event) {
					console.log('WebSocket error: ', event);
				};

				// When the server pushes view updates, find these eles and update them.
				ws.onmessage = function (event) {
					const items = JSON.parse(event.data)
					for (const update of items) {
						const ele = document.getElementById(update.EleId)
						if (ele === null) {
							continue
						}
						for (const op of update.Ops) {
							if (op.Key === "` + fastview.TextContent + `") {
								ele.textContent = op.Value;
							} else {
								ele.setAttribute(op.Key, op.Value)
							}
						}
					}
				}

				function demo() {
					ws.send("continue")
				}
			</script>
		</head>
		<body style="font-family: sans-serif;">
			<div>
				<button id="continue" onclick="demo()">Continue</button>
				<span id="` + StatusId + `" style="margin-left: 1em;">{{ .Status }}</span>
				<a href="/charts/steps" style="margin-left: 1em;">steps per episode</a>
			</div>
			<br>
		` + bodySpec + `
		</body></html>
	{{ end }}
	`

	_, err = rt.Parse(indexTemplate)
	return
}
