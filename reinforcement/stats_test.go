package reinforcement

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSummary(t *testing.T) {
	Convey("Given recorded episodes", t, func() {
		summary := newSummary(4)
		for i, steps := range []int{40, 20, 10, 10} {
			result := EpisodeResult{Episode: i + 1, Steps: steps}
			if steps == 40 {
				result.Err = ErrEpisodeStepCap
			}
			summary.record(result)
		}

		Convey("The running average matches the mean", func() {
			So(summary.Episodes, ShouldEqual, 4)
			So(summary.Failed, ShouldEqual, 1)
			So(summary.AvgSteps, ShouldAlmostEqual, 20.0, 1e-9)
		})

		Convey("Tail describes the trailing window", func() {
			tail := summary.Tail(3)
			So(tail.N, ShouldEqual, 3)
			So(tail.First, ShouldEqual, 2)
			So(tail.Last, ShouldEqual, 4)
			So(tail.Mean, ShouldAlmostEqual, 40.0/3.0, 1e-9)
			So(tail.Min, ShouldEqual, 10)
			So(tail.Max, ShouldEqual, 20)
		})

		Convey("An oversized window covers the whole run", func() {
			tail := summary.Tail(100)
			So(tail.N, ShouldEqual, 4)
			So(tail.Max, ShouldEqual, 40)
		})
	})

	Convey("An empty summary has empty stats", t, func() {
		So(newSummary(0).Tail(10), ShouldResemble, StepStats{})
	})
}
