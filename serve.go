package main

import (
	"context"
	"log"

	"windy/reinforcement"
	"windy/server"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Train while serving live values, then demo the greedy policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			r, err := newRun(flags)
			if err != nil {
				return err
			}
			addr, err := flags.GetString("addr")
			if err != nil {
				return err
			}
			return serve(cmd.Context(), r, addr)
		},
	}
	cmd.Flags().String("addr", ":8080", "host:port to serve on")
	return cmd
}

// serve runs the server and training side by side. Training stopping early is
// not an error; the server runs until ctx ends.
func serve(ctx context.Context, r *run, addr string) error {
	q := r.learner.Q()
	tableUpdates := make(chan *reinforcement.ActionValueTable)
	srv, err := server.NewServer(ctx, addr, r.env, q, tableUpdates, r.params.MaxEpisodeSteps)
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	trainingCtx, cancel, err := r.cfg.WithTrainingDeadline(groupCtx)
	if err != nil {
		return err
	}
	defer cancel()

	group.Go(func() error {
		return srv.Serve(groupCtx)
	})
	group.Go(func() error {
		summary, err := r.learner.Train(trainingCtx, exportTable(tableUpdates, q))
		if err != nil {
			if groupCtx.Err() != nil {
				return nil
			}
			log.Printf("training ended early: %v\n", err)
		}
		exportTable(tableUpdates, q)(groupCtx, reinforcement.EpisodeResult{})
		srv.TrainingDone(summary)
		log.Printf("training done: %d episodes, average steps %.2f\n", summary.Episodes, summary.AvgSteps)
		return nil
	})

	return group.Wait()
}

// exportTable notifies the views that q has changed. Views that are still busy
// with the previous update miss this one; training never waits on them.
func exportTable(
	updates chan<- *reinforcement.ActionValueTable,
	q *reinforcement.ActionValueTable,
) reinforcement.ProgressFunc {
	return func(ctx context.Context, _ reinforcement.EpisodeResult) {
		select {
		case updates <- q:
		case <-ctx.Done():
		default:
		}
	}
}
