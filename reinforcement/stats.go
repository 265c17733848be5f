package reinforcement

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary accumulates per-episode step counts over a training run.
type Summary struct {
	Episodes int
	// Failed counts episodes cut off by the step cap.
	Failed int
	// Steps holds the step count of every episode, in order.
	Steps []int
	// AvgSteps is the running mean of Steps.
	AvgSteps float64
}

func newSummary(episodes int) *Summary {
	return &Summary{Steps: make([]int, 0, min(episodes, 1<<16))}
}

func (s *Summary) record(result EpisodeResult) {
	s.Episodes++
	if result.Err != nil {
		s.Failed++
	}
	s.Steps = append(s.Steps, result.Steps)
	s.AvgSteps += (float64(result.Steps) - s.AvgSteps) / float64(s.Episodes)
}

// StepStats describes the step counts of a window of episodes.
type StepStats struct {
	N            int
	Mean, StdDev float64
	Min, Max     float64
	First, Last  int
}

// Tail returns statistics over the last n episodes (all of them if n <= 0 or
// n exceeds the run).
func (s *Summary) Tail(n int) (stats StepStats) {
	if n <= 0 || n > len(s.Steps) {
		n = len(s.Steps)
	}
	if n == 0 {
		return
	}
	window := s.Steps[len(s.Steps)-n:]
	xs := make([]float64, n)
	for i, steps := range window {
		xs[i] = float64(steps)
	}

	stats.N = n
	stats.First = len(s.Steps) - n + 1
	stats.Last = len(s.Steps)
	stats.Mean, stats.StdDev = stat.MeanStdDev(xs, nil)
	stats.Min = floats.Min(xs)
	stats.Max = floats.Max(xs)
	return
}
