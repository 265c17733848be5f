package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"windy/grid_world"
	"windy/reinforcement"
	"windy/server/cell_views"
	"windy/server/fastview"
	"windy/server/root_view"
	"windy/step_charts"

	"github.com/gorilla/mux"
	channerics "github.com/niceyeti/channerics/channels"
)

// ErrNotTrained is reported when a demo or the step chart is requested before
// training has completed.
var ErrNotTrained error = errors.New("training has not completed")

const (
	// The client message requesting a greedy demo.
	continueCommand = "continue"
	// Agent animation rate for the demo.
	demoFrameRate = time.Millisecond * 100

	shutdownGracePeriod = time.Second * 5
)

// Server serves a single page showing the live action values and, once training
// completes, animates greedy rollouts on request. The ele-update channel can be
// listened to by a single client at a time.
type Server struct {
	ctx       context.Context
	addr      string
	env       *grid_world.Environment
	q         *reinforcement.ActionValueTable
	maxSteps  int
	converter *cell_views.Converter
	rootView  *root_view.RootView
	demo      chan []fastview.EleUpdate
	router    *mux.Router

	mu      sync.RWMutex
	summary *reinforcement.Summary
}

// NewServer initializes all of the views and returns a server. The table is
// read for page loads, the values endpoint and demos; tableUpdates signals the
// live views that it has changed. Demos stop after maxSteps moves.
func NewServer(
	ctx context.Context,
	addr string,
	env *grid_world.Environment,
	q *reinforcement.ActionValueTable,
	tableUpdates <-chan *reinforcement.ActionValueTable,
	maxSteps int,
) (*Server, error) {
	demo := make(chan []fastview.EleUpdate)
	rootView, err := root_view.NewRootView(ctx, env, tableUpdates, demo)
	if err != nil {
		return nil, fmt.Errorf("root view: %w", err)
	}

	server := &Server{
		ctx:       ctx,
		addr:      addr,
		env:       env,
		q:         q,
		maxSteps:  maxSteps,
		converter: cell_views.NewConverter(env),
		rootView:  rootView,
		demo:      demo,
	}

	router := mux.NewRouter()
	router.HandleFunc("/", server.serveIndex).Methods(http.MethodGet)
	router.HandleFunc("/ws", server.serveWebsocket)
	router.HandleFunc("/charts/steps", server.serveStepsChart).Methods(http.MethodGet)
	router.HandleFunc("/values", server.serveValues).Methods(http.MethodGet)
	server.router = router

	return server, nil
}

// Handler returns the server's routes.
func (server *Server) Handler() http.Handler {
	return server.router
}

// TrainingDone records the training summary, enables demos and the step chart,
// and updates the status line of a connected page.
func (server *Server) TrainingDone(summary *reinforcement.Summary) {
	server.mu.Lock()
	server.summary = summary
	server.mu.Unlock()

	// Delivered once a client is listening.
	go server.publish(server.ctx, fastview.SetText(root_view.StatusId, server.status()))
}

func (server *Server) trainingSummary() *reinforcement.Summary {
	server.mu.RLock()
	defer server.mu.RUnlock()
	return server.summary
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (server *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              server.addr,
		Handler:           server.router,
		ReadHeaderTimeout: time.Second * 5,
	}

	errs := make(chan error, 1)
	go func() {
		errs <- srv.ListenAndServe()
	}()
	log.Printf("serving on %s\n", server.addr)

	select {
	case err := <-errs:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (server *Server) status() string {
	summary := server.trainingSummary()
	if summary == nil {
		return "training..."
	}
	return fmt.Sprintf(
		"trained %d episodes (%d capped), press Continue to run the greedy policy",
		summary.Episodes, summary.Failed)
}

// serveWebsocket publishes view updates to the client and runs demos when it
// asks for them.
func (server *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	commands := make(chan string)
	cli, err := fastview.NewClient(server.rootView.Updates(), commands, w, r)
	if err != nil {
		log.Println(err)
		return
	}

	ctx, cancel := context.WithCancel(server.ctx)
	defer cancel()
	go server.runDemos(ctx, commands)

	if err := cli.Sync(ctx); err != nil {
		log.Println("websocket:", err)
	}
}

// runDemos runs at most one demo at a time; commands arriving while one is
// animating are dropped. Commands are always received promptly, since a
// blocked client read loop stops answering pings.
func (server *Server) runDemos(ctx context.Context, commands <-chan string) {
	var busy atomic.Bool
	for cmd := range channerics.OrDone(ctx.Done(), commands) {
		if cmd != continueCommand {
			log.Printf("ignoring client command %q\n", cmd)
			continue
		}
		if !busy.CompareAndSwap(false, true) {
			log.Println("demo already running, ignoring continue")
			continue
		}
		go func() {
			defer busy.Store(false)
			if err := server.runDemo(ctx); err != nil {
				log.Println("demo:", err)
			}
		}()
	}
}

// runDemo animates one greedy rollout over the grid and reports how it ended.
func (server *Server) runDemo(ctx context.Context) error {
	if server.trainingSummary() == nil {
		server.publish(ctx,
			cell_views.HideAgent(),
			fastview.SetText(root_view.StatusId, "cannot run demo: "+ErrNotTrained.Error()))
		return ErrNotTrained
	}

	policy := reinforcement.NewPolicy(rand.New(rand.NewSource(time.Now().UnixNano())))
	path, rolloutErr := reinforcement.Rollout(server.env, server.q, policy, server.maxSteps)
	server.publish(ctx, fastview.SetText(root_view.StatusId, "running greedy policy..."))

	frames := channerics.NewTicker(ctx.Done(), demoFrameRate)
	for i, state := range path {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-frames:
		}
		server.publish(ctx,
			cell_views.AgentAt(state.Row, state.Col),
			fastview.SetText(root_view.StatusId, fmt.Sprintf("step %d: %v", i, state)))
	}

	if rolloutErr != nil {
		server.publish(ctx, fastview.SetText(root_view.StatusId, rolloutErr.Error()))
		return rolloutErr
	}
	server.publish(ctx, fastview.SetText(root_view.StatusId,
		fmt.Sprintf("reached goal in %d steps", len(path)-1)))
	return nil
}

func (server *Server) publish(ctx context.Context, updates ...fastview.EleUpdate) {
	select {
	case server.demo <- updates:
	case <-ctx.Done():
	}
}

// Serve the index.html main page, rendered from the table's current values.
func (server *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")

	page := root_view.Page{
		Cells:  server.converter.Convert(server.q),
		Status: server.status(),
	}
	if err := renderTemplate(w, server.rootView, page); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (server *Server) serveStepsChart(w http.ResponseWriter, r *http.Request) {
	summary := server.trainingSummary()
	if summary == nil {
		http.Error(w, ErrNotTrained.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	if err := step_charts.Render(w, "Windy gridworld SARSA", summary.Steps); err != nil {
		log.Println("steps chart:", err)
	}
}

// Values is the JSON form of the action-value table, indexed [row][col][action].
type Values struct {
	Rows    int           `json:"rows"`
	Cols    int           `json:"cols"`
	Actions []string      `json:"actions"`
	Trained bool          `json:"trained"`
	Values  [][][]float64 `json:"values"`
}

func (server *Server) serveValues(w http.ResponseWriter, r *http.Request) {
	actions := make([]string, 0, grid_world.NumActions)
	for _, a := range grid_world.Actions() {
		actions = append(actions, a.String())
	}

	values := Values{
		Rows:    server.q.Rows(),
		Cols:    server.q.Cols(),
		Actions: actions,
		Trained: server.trainingSummary() != nil,
		Values:  server.q.Snapshot(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(values); err != nil {
		log.Println("values:", err)
	}
}

func renderTemplate(
	w io.Writer,
	vc fastview.ViewComponent,
	data interface{},
) (err error) {
	t := template.New("index.html")
	var tname string
	if tname, err = vc.Parse(t); err != nil {
		return
	}
	if _, err = t.Parse(`{{ template "` + tname + `" . }}`); err != nil {
		return
	}

	err = t.Execute(w, data)
	return
}
