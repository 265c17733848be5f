package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"windy/grid_world"
	"windy/reinforcement"
	"windy/step_charts"

	"github.com/spf13/cobra"
)

// Episodes summarized in the trailing statistics.
const tailEpisodes = 100

func newTrainCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train headless and print the learned policy and values",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			r, err := newRun(flags)
			if err != nil {
				return err
			}
			chartPath, err := flags.GetString("chart")
			if err != nil {
				return err
			}
			color, err := flags.GetBool("color")
			if err != nil {
				return err
			}

			ctx, cancel, err := r.cfg.WithTrainingDeadline(cmd.Context())
			if err != nil {
				return err
			}
			defer cancel()

			summary, err := r.learner.Train(ctx, nil)
			if err != nil {
				// Deadline or interrupt: report what was learned so far.
				log.Printf("training ended early: %v\n", err)
			}

			report(cmd.OutOrStdout(), r, summary, color)
			if chartPath != "" {
				return writeChart(chartPath, summary)
			}
			return nil
		},
	}
	cmd.Flags().String("chart", "", "write an html chart of steps per episode to this file")
	return cmd
}

// report prints the greedy path over the grid, the greedy policy, the max
// values and step statistics.
func report(w io.Writer, r *run, summary *reinforcement.Summary, color bool) {
	q := r.learner.Q()
	policy := r.learner.Policy()
	printer := grid_world.NewPrinter(w, color)

	path, rolloutErr := reinforcement.Rollout(r.env, q, policy, r.params.MaxEpisodeSteps)
	printer.ShowGrid(r.env, path)
	fmt.Fprintln(w)
	printer.ShowPolicy(r.env, func(s grid_world.GridState) grid_world.Action {
		return policy.Greedy(s, q)
	})
	fmt.Fprintln(w)
	printer.ShowMaxValues(r.env, q)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "episodes: %d (%d capped), average steps %.2f, final epsilon %.4f\n",
		summary.Episodes, summary.Failed, summary.AvgSteps, r.learner.Epsilon())
	if stats := summary.Tail(tailEpisodes); stats.N > 0 {
		fmt.Fprintf(w, "episodes %d-%d: mean steps %.2f, std dev %.2f, min %.0f, max %.0f\n",
			stats.First, stats.Last, stats.Mean, stats.StdDev, stats.Min, stats.Max)
	}
	if rolloutErr != nil {
		fmt.Fprintf(w, "greedy rollout: %v\n", rolloutErr)
		return
	}
	fmt.Fprintf(w, "greedy rollout reaches the goal in %d steps\n", len(path)-1)
}

func writeChart(path string, summary *reinforcement.Summary) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("chart: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()

	if err = step_charts.Render(f, "Windy gridworld SARSA", summary.Steps); err != nil {
		return fmt.Errorf("chart: %w", err)
	}
	log.Printf("wrote steps chart to %s\n", path)
	return nil
}
