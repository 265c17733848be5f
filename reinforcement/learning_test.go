package reinforcement

import (
	"context"
	"errors"
	"io"
	"log"
	"math/rand"
	"testing"

	. "windy/grid_world"

	. "github.com/smartystreets/goconvey/convey"
)

func testParams() Params {
	return Params{
		Epsilon:         0.1,
		EpsilonDecay:    1,
		Alpha:           0.5,
		Gamma:           1,
		Episodes:        10,
		MaxEpisodeSteps: DefaultMaxEpisodeSteps,
		Stochastic:      false,
		ProgressEvery:   5,
	}
}

func newTestLearner(params Params, seed int64) *Learner {
	rng := rand.New(rand.NewSource(seed))
	learner, err := NewLearner(NewReferenceEnvironment(rng), params, rng)
	So(err, ShouldBeNil)
	learner.SetLogger(log.New(io.Discard, "", 0))
	return learner
}

func TestSarsaUpdate(t *testing.T) {
	Convey("Given a learner", t, func() {
		learner := newTestLearner(testParams(), 1)
		q := learner.Q()
		s := GridState{Row: 3, Col: 2}
		next := GridState{Row: 3, Col: 3}

		Convey("An update at its fixed point leaves Q unchanged", func() {
			q.Set(s, East, -3)
			q.Set(next, East, -2)
			learner.update(Step{State: s, Action: East, Reward: -1, Successor: next, NextAction: East})
			So(q.Value(s, East), ShouldEqual, -3.0)
		})

		Convey("An update moves Q by alpha times the TD error", func() {
			q.Set(next, North, -4)
			learner.update(Step{State: s, Action: East, Reward: -1, Successor: next, NextAction: North})
			// 0 + 0.5 * (-1 + -4 - 0)
			So(q.Value(s, East), ShouldEqual, -2.5)
		})

		Convey("The terminal successor contributes no bootstrap value", func() {
			goal := ReferenceGoal
			q.Set(goal, West, 100)
			before := GridState{Row: 5, Col: 6}
			learner.update(Step{State: before, Action: East, Reward: 0, Successor: goal, NextAction: West})
			So(q.Value(before, East), ShouldEqual, 0.0)
		})
	})
}

func TestRunEpisode(t *testing.T) {
	Convey("Given a learner on the deterministic world", t, func() {
		Convey("An episode reaches the goal and never writes the goal's row", func() {
			learner := newTestLearner(testParams(), 2)
			result := learner.RunEpisode(1)
			So(result.Err, ShouldBeNil)
			So(result.Steps, ShouldBeGreaterThan, 0)
			// Every step costs -1 except the final one into the goal.
			So(result.Reward, ShouldEqual, -float64(result.Steps-1))
			So(learner.Q().Row(ReferenceGoal), ShouldResemble, make([]float64, NumActions))
		})

		Convey("An episode over the step cap is reported, not looped on", func() {
			params := testParams()
			params.MaxEpisodeSteps = 3
			learner := newTestLearner(params, 3)
			result := learner.RunEpisode(7)
			So(errors.Is(result.Err, ErrEpisodeStepCap), ShouldBeTrue)
			So(result.Steps, ShouldEqual, 3)
			So(result.Episode, ShouldEqual, 7)
		})
	})
}

func TestTrain(t *testing.T) {
	Convey("When training", t, func() {
		Convey("Capped episodes are counted and training continues", func() {
			params := testParams()
			params.MaxEpisodeSteps = 2
			learner := newTestLearner(params, 4)
			summary, err := learner.Train(context.Background(), nil)
			So(err, ShouldBeNil)
			So(summary.Episodes, ShouldEqual, params.Episodes)
			So(summary.Failed, ShouldEqual, params.Episodes)
			So(summary.Steps, ShouldResemble, []int{2, 2, 2, 2, 2, 2, 2, 2, 2, 2})
		})

		Convey("Progress is reported on the configured interval and at the end", func() {
			params := testParams()
			params.Episodes = 12
			learner := newTestLearner(params, 5)
			var seen []int
			_, err := learner.Train(context.Background(), func(_ context.Context, result EpisodeResult) {
				seen = append(seen, result.Episode)
			})
			So(err, ShouldBeNil)
			So(seen, ShouldResemble, []int{5, 10, 12})
		})

		Convey("Epsilon decays toward its floor", func() {
			params := testParams()
			params.Epsilon = 0.5
			params.EpsilonDecay = 0.5
			params.EpsilonMin = 0.1
			learner := newTestLearner(params, 6)
			_, err := learner.Train(context.Background(), nil)
			So(err, ShouldBeNil)
			So(learner.Epsilon(), ShouldEqual, 0.1)
		})

		Convey("A cancelled context stops between episodes", func() {
			params := testParams()
			params.Episodes = 1000
			learner := newTestLearner(params, 7)
			ctx, cancel := context.WithCancel(context.Background())
			summary, err := learner.Train(ctx, func(context.Context, EpisodeResult) { cancel() })
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			So(summary.Episodes, ShouldEqual, params.ProgressEvery)
		})

		Convey("Invalid parameters are rejected up front", func() {
			params := testParams()
			params.Alpha = 0
			_, err := NewLearner(NewReferenceEnvironment(rand.New(rand.NewSource(1))), params, rand.New(rand.NewSource(1)))
			So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
		})
	})
}

func TestConvergence(t *testing.T) {
	if testing.Short() {
		t.Skip("long training run")
	}

	Convey("Training on deterministic wind with decaying epsilon", t, func() {
		params := testParams()
		params.Episodes = 3000
		params.Epsilon = 0.2
		params.EpsilonDecay = 0.995
		params.ProgressEvery = 1000
		learner := newTestLearner(params, 11)

		summary, err := learner.Train(context.Background(), nil)
		So(err, ShouldBeNil)
		So(summary.Failed, ShouldEqual, 0)

		Convey("The greedy rollout reaches the goal on a near-optimal path", func() {
			env := NewReferenceEnvironment(rand.New(rand.NewSource(1)))
			path, err := Rollout(env, learner.Q(), learner.Policy(), 100)
			So(err, ShouldBeNil)
			So(path[0], ShouldResemble, ReferenceStart)
			So(path[len(path)-1], ShouldResemble, ReferenceGoal)
			// Seven moves is optimal with diagonal steps on this layout.
			So(len(path)-1, ShouldBeBetweenOrEqual, 7, 10)

			Convey("And the path is stable across rollouts", func() {
				again, err := Rollout(env, learner.Q(), learner.Policy(), 100)
				So(err, ShouldBeNil)
				So(len(again), ShouldEqual, len(path))
			})
		})

		Convey("Late episodes are short", func() {
			tail := summary.Tail(100)
			So(tail.N, ShouldEqual, 100)
			So(tail.Mean, ShouldBeLessThan, 12)
		})
	})
}

func TestRollout(t *testing.T) {
	Convey("A greedy rollout on an untrained table", t, func() {
		rng := rand.New(rand.NewSource(9))
		env := NewReferenceEnvironment(rng)
		q := NewActionValueTable(env.Rows(), env.Cols())
		// Pin the policy to West so the agent sits against the left wall.
		env.Visit(func(s GridState) { q.Set(s, West, 1) })

		path, err := Rollout(env, q, NewPolicy(rng), 5)
		So(errors.Is(err, ErrEpisodeStepCap), ShouldBeTrue)
		So(len(path), ShouldEqual, 6)
		for _, s := range path {
			So(s, ShouldResemble, ReferenceStart)
		}
	})
}
