package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"windy/grid_world"
	"windy/reinforcement"
	"windy/server/cell_views"
	"windy/server/fastview"
	"windy/server/root_view"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"
)

func newTestServer(ctx context.Context, maxSteps int) (*Server, *reinforcement.ActionValueTable) {
	env := grid_world.NewReferenceEnvironment(rand.New(rand.NewSource(1)))
	q := reinforcement.NewActionValueTable(env.Rows(), env.Cols())
	server, err := NewServer(ctx, "127.0.0.1:0", env, q, make(chan *reinforcement.ActionValueTable), maxSteps)
	So(err, ShouldBeNil)
	return server, q
}

func get(handler http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRoutes(t *testing.T) {
	Convey("Given a server over the reference world", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		server, q := newTestServer(ctx, 100)
		handler := server.Handler()

		Convey("The index renders the grid with the current values", func() {
			q.Set(grid_world.GridState{Row: 2, Col: 4}, grid_world.East, -3.25)
			rec := get(handler, "/")
			So(rec.Code, ShouldEqual, http.StatusOK)
			body := rec.Body.String()
			So(body, ShouldContainSubstring, `id="valuesgrid"`)
			So(body, ShouldContainSubstring, `id="2-4-value-text"`)
			So(body, ShouldContainSubstring, "-3.25")
			So(body, ShouldContainSubstring, `id="`+cell_views.AgentId+`"`)
			So(body, ShouldContainSubstring, "training...")
		})

		Convey("The index rejects other methods", func() {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
			So(rec.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})

		Convey("Values are served as json indexed by row, column and action", func() {
			q.Set(grid_world.GridState{Row: 6, Col: 9}, grid_world.SouthWest, 1.5)
			rec := get(handler, "/values")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Header().Get("Content-Type"), ShouldEqual, "application/json")

			var values Values
			So(json.NewDecoder(rec.Body).Decode(&values), ShouldBeNil)
			So(values.Rows, ShouldEqual, 7)
			So(values.Cols, ShouldEqual, 10)
			So(values.Trained, ShouldBeFalse)
			So(values.Actions, ShouldResemble, []string{"W", "NW", "N", "NE", "E", "SE", "S", "SW"})
			So(len(values.Values), ShouldEqual, 7)
			So(len(values.Values[0]), ShouldEqual, 10)
			So(values.Values[6][9][grid_world.SouthWest], ShouldEqual, 1.5)
		})

		Convey("The steps chart is unavailable until training completes", func() {
			rec := get(handler, "/charts/steps")
			So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(rec.Body.String(), ShouldContainSubstring, ErrNotTrained.Error())
		})

		Convey("When training completes", func() {
			server.TrainingDone(&reinforcement.Summary{
				Episodes: 3,
				Failed:   1,
				Steps:    []int{40, 20, 15},
				AvgSteps: 25,
			})

			Convey("The index reports it", func() {
				body := get(handler, "/").Body.String()
				So(body, ShouldContainSubstring, "trained 3 episodes (1 capped)")
			})

			Convey("The steps chart is rendered", func() {
				rec := get(handler, "/charts/steps")
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Body.String(), ShouldContainSubstring, "echarts")
			})

			Convey("Values are flagged as trained", func() {
				var values Values
				So(json.NewDecoder(get(handler, "/values").Body).Decode(&values), ShouldBeNil)
				So(values.Trained, ShouldBeTrue)
			})
		})

		Convey("Unknown paths are not found", func() {
			So(get(handler, "/nope").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

// awaitStatus reads updates until the status element's text satisfies match.
func awaitStatus(conn *websocket.Conn, match func(string) bool) (status string, agentMoves int, err error) {
	deadline := time.Now().Add(time.Second * 10)
	for time.Now().Before(deadline) {
		if err = conn.SetReadDeadline(deadline); err != nil {
			return
		}
		var updates []fastview.EleUpdate
		if err = conn.ReadJSON(&updates); err != nil {
			return
		}
		for _, update := range updates {
			switch update.EleId {
			case cell_views.AgentId:
				agentMoves++
			case root_view.StatusId:
				status = update.Ops[0].Value
				if match(status) {
					return
				}
			}
		}
	}
	err = errors.New("status not seen before deadline")
	return
}

func TestDemo(t *testing.T) {
	Convey("Given a websocket client", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		server, _ := newTestServer(ctx, 3)
		ts := httptest.NewServer(server.Handler())
		defer ts.Close()
		defer cancel()

		url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
		conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
		So(err, ShouldBeNil)
		defer conn.Close()
		if resp != nil && resp.Body != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
		}

		Convey("A demo before training completes is refused", func() {
			So(conn.WriteMessage(websocket.TextMessage, []byte(continueCommand)), ShouldBeNil)
			status, _, err := awaitStatus(conn, func(s string) bool {
				return strings.Contains(s, ErrNotTrained.Error())
			})
			So(err, ShouldBeNil)
			So(status, ShouldStartWith, "cannot run demo")
		})

		Convey("A demo after training animates the agent until the step cap", func() {
			server.TrainingDone(&reinforcement.Summary{Episodes: 1, Steps: []int{1}})
			So(conn.WriteMessage(websocket.TextMessage, []byte(continueCommand)), ShouldBeNil)
			status, moves, err := awaitStatus(conn, func(s string) bool {
				return strings.Contains(s, reinforcement.ErrEpisodeStepCap.Error())
			})
			So(err, ShouldBeNil)
			So(status, ShouldContainSubstring, "greedy rollout stopped")
			// Start plus three steps; batching may coalesce frames.
			So(moves, ShouldBeBetweenOrEqual, 1, 4)
		})

		Convey("Completing training updates the status of a connected page", func() {
			server.TrainingDone(&reinforcement.Summary{Episodes: 4, Failed: 2, Steps: []int{1, 1, 1, 1}})
			status, _, err := awaitStatus(conn, func(s string) bool {
				return strings.HasPrefix(s, "trained")
			})
			So(err, ShouldBeNil)
			So(status, ShouldContainSubstring, "trained 4 episodes (2 capped)")
		})
	})
}

func TestDemoInFlight(t *testing.T) {
	Convey("Given a long demo of a policy that never reaches the goal", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		// 200 frames at 10/s outlasts the test.
		server, q := newTestServer(ctx, 200)
		for r := 0; r < q.Rows(); r++ {
			for c := 0; c < q.Cols(); c++ {
				q.Set(grid_world.GridState{Row: r, Col: c}, grid_world.West, 1)
			}
		}
		server.TrainingDone(&reinforcement.Summary{Episodes: 1, Steps: []int{1}})

		ts := httptest.NewServer(server.Handler())
		defer ts.Close()
		defer cancel()

		url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
		conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
		So(err, ShouldBeNil)
		defer conn.Close()
		if resp != nil && resp.Body != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
		}

		var frames atomic.Int64
		readErr := make(chan error, 1)
		go func() {
			for {
				var updates []fastview.EleUpdate
				if err := conn.ReadJSON(&updates); err != nil {
					readErr <- err
					return
				}
				for _, update := range updates {
					if update.EleId == cell_views.AgentId {
						frames.Add(1)
					}
				}
			}
		}()

		Convey("Repeated continues are dropped and the connection stays open", func() {
			So(conn.WriteMessage(websocket.TextMessage, []byte(continueCommand)), ShouldBeNil)
			for i := 0; i < 4; i++ {
				time.Sleep(time.Millisecond * 300)
				So(conn.WriteMessage(websocket.TextMessage, []byte(continueCommand)), ShouldBeNil)
			}
			// Past the server's pong deadline.
			time.Sleep(time.Second * 3)

			select {
			case err := <-readErr:
				So(err, ShouldBeNil)
			default:
			}
			So(frames.Load(), ShouldBeGreaterThan, 20)
		})
	})
}
