/*
Windy trains a SARSA agent on the windy gridworld: a grid whose columns push
the agent upward as it moves toward a goal, optionally with random gusts. The
train command runs headless and prints the learned policy and values. The serve
command trains while a single page shows the action values updating live, then
animates the greedy policy on request.
*/

package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"windy/grid_world"
	"windy/reinforcement"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// run is a configured environment and learner, ready to train.
type run struct {
	cfg     *reinforcement.TrainingConfig
	params  reinforcement.Params
	env     *grid_world.Environment
	learner *reinforcement.Learner
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "windy",
		Short:         "SARSA control over the windy gridworld",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "training config file (kind: training)")
	flags.Int("episodes", 0, "number of training episodes")
	flags.Float64("epsilon", 0, "exploration rate in [0,1]")
	flags.Float64("epsilon-decay", 0, "multiplicative epsilon decay per episode")
	flags.Float64("epsilon-min", 0, "epsilon floor")
	flags.Float64("alpha", 0, "step size in (0,1]")
	flags.Float64("gamma", 0, "discount in [0,1]")
	flags.Bool("stochastic", true, "randomly perturb the wind while training")
	flags.Int64("seed", 0, "random seed, zero seeds from the clock")
	flags.Int("max-steps", 0, "step cap per episode")
	flags.Int("progress-every", 0, "episodes between progress reports")
	flags.Bool("color", true, "color console output")

	root.AddCommand(newTrainCommand(), newServeCommand())
	return root
}

// loadConfig reads the config file if one is given, otherwise starts from
// defaults, then applies any flags set on the command line.
func loadConfig(flags *pflag.FlagSet) (cfg *reinforcement.TrainingConfig, err error) {
	var path string
	if path, err = flags.GetString("config"); err != nil {
		return
	}

	cfg = &reinforcement.TrainingConfig{}
	if path != "" {
		if cfg, err = reinforcement.FromYaml(path); err != nil {
			return
		}
	}

	err = applyOverrides(flags, cfg)
	return
}

// Flags for hyper-parameters, by config key.
var hyperParamFlags = []struct {
	flag, key string
}{
	{"epsilon", reinforcement.Epsilon},
	{"epsilon-decay", reinforcement.EpsilonDecay},
	{"epsilon-min", reinforcement.EpsilonMin},
	{"alpha", reinforcement.Alpha},
	{"gamma", reinforcement.Gamma},
}

// applyOverrides copies explicitly set flags into cfg; unset flags leave the
// file's values alone.
func applyOverrides(flags *pflag.FlagSet, cfg *reinforcement.TrainingConfig) (err error) {
	for _, hp := range hyperParamFlags {
		if !flags.Changed(hp.flag) {
			continue
		}
		var val float64
		if val, err = flags.GetFloat64(hp.flag); err != nil {
			return
		}
		cfg.SetHyperParam(hp.key, val)
	}

	ints := map[string]*int{
		"episodes":       &cfg.Episodes,
		"max-steps":      &cfg.MaxEpisodeSteps,
		"progress-every": &cfg.ProgressEvery,
	}
	for name, field := range ints {
		if flags.Changed(name) {
			if *field, err = flags.GetInt(name); err != nil {
				return
			}
		}
	}

	if flags.Changed("seed") {
		if cfg.Seed, err = flags.GetInt64("seed"); err != nil {
			return
		}
	}
	if flags.Changed("stochastic") {
		var stochastic bool
		if stochastic, err = flags.GetBool("stochastic"); err != nil {
			return
		}
		cfg.StochasticWind = &stochastic
	}
	return
}

// newRun builds the world and learner from the resolved config. The environment
// and learner share one random source, seeded from the config.
func newRun(flags *pflag.FlagSet) (*run, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	params, err := cfg.Params()
	if err != nil {
		return nil, err
	}

	seed := params.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	log.Printf("seed %d, stochastic wind %t\n", seed, params.Stochastic)
	rng := rand.New(rand.NewSource(seed))

	env, err := grid_world.NewEnvironment(cfg.WorldConfig(), rng)
	if err != nil {
		return nil, err
	}
	learner, err := reinforcement.NewLearner(env, params, rng)
	if err != nil {
		return nil, err
	}

	return &run{
		cfg:     cfg,
		params:  params,
		env:     env,
		learner: learner,
	}, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
