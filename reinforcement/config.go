package reinforcement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"windy/grid_world"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Hyper-parameter keys recognized in TrainingConfig.HyperParams.
const (
	Epsilon      = "epsilon"
	EpsilonDecay = "epsilonDecay"
	EpsilonMin   = "epsilonMin"
	Alpha        = "alpha"
	Gamma        = "gamma"
)

// Defaults applied to anything a config leaves unset.
const (
	DefaultEpsilon         = 0.1
	DefaultEpsilonDecay    = 1.0
	DefaultEpsilonMin      = 0.0
	DefaultAlpha           = 0.5
	DefaultGamma           = 1.0
	DefaultEpisodes        = 10000
	DefaultMaxEpisodeSteps = 10000
	DefaultProgressEvery   = 1000
)

// ErrInvalidConfig wraps every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid training config")

// OuterConfig is the file envelope: a kind selector and the definition body.
type OuterConfig struct {
	Kind string      `mapstructure:"kind"`
	Def  interface{} `mapstructure:"def"`
}

// TrainingConfig encodes algorithm and training parameters outside of code.
// Viper lower-cases all keys it reads, so fields are decoded by their lower-cased
// names; a file may still spell them in camelCase.
type TrainingConfig struct {
	// HyperParams is a list of key/val pairs: epsilon, alpha, gamma, etc.
	HyperParams []HyperParameter
	// Episodes is the number of training episodes.
	Episodes int
	// MaxEpisodeSteps bounds a single episode; exceeding it fails that episode only.
	MaxEpisodeSteps int
	// StochasticWind perturbs wind during training. Defaults to true.
	StochasticWind *bool
	// Seed for the run's random source; zero seeds from the clock.
	Seed int64
	// ProgressEvery is the episode interval for progress logs and hooks.
	ProgressEvery int
	// TrainingDeadline optionally bounds training time, e.g. {duration: 10m}.
	TrainingDeadline map[string]string
	// World overrides the reference gridworld when set.
	World *grid_world.Config
}

type HyperParameter struct {
	Key string  `yaml:"key"`
	Val float64 `yaml:"val"`
}

func (cfg *TrainingConfig) GetHyperParamOrDefault(param string, defaultVal float64) float64 {
	for _, kvp := range cfg.HyperParams {
		if kvp.Key == param {
			return kvp.Val
		}
	}
	return defaultVal
}

// SetHyperParam overwrites param, or appends it if absent.
func (cfg *TrainingConfig) SetHyperParam(param string, val float64) {
	for i := range cfg.HyperParams {
		if cfg.HyperParams[i].Key == param {
			cfg.HyperParams[i].Val = val
			return
		}
	}
	cfg.HyperParams = append(cfg.HyperParams, HyperParameter{Key: param, Val: val})
}

// WithTrainingDeadline returns a context extended by the training deadline, if one is specified.
func (cfg *TrainingConfig) WithTrainingDeadline(
	ctx context.Context,
) (context.Context, context.CancelFunc, error) {
	if val, ok := cfg.TrainingDeadline["duration"]; ok {
		duration, err := time.ParseDuration(val)
		if err != nil {
			return nil, nil, fmt.Errorf("training deadline %q: %v: %w", val, err, ErrInvalidConfig)
		}
		innerCtx, cancel := context.WithTimeout(ctx, duration)
		return innerCtx, cancel, nil
	}
	defaultCtx, cancel := context.WithCancel(ctx)
	return defaultCtx, cancel, nil
}

// Params are the resolved, validated settings of one training run.
type Params struct {
	Epsilon         float64
	EpsilonDecay    float64
	EpsilonMin      float64
	Alpha           float64
	Gamma           float64
	Episodes        int
	MaxEpisodeSteps int
	Stochastic      bool
	Seed            int64
	ProgressEvery   int
}

// Params resolves defaults and validates ranges. Any failure wraps ErrInvalidConfig.
func (cfg *TrainingConfig) Params() (p Params, err error) {
	p = Params{
		Epsilon:         cfg.GetHyperParamOrDefault(Epsilon, DefaultEpsilon),
		EpsilonDecay:    cfg.GetHyperParamOrDefault(EpsilonDecay, DefaultEpsilonDecay),
		EpsilonMin:      cfg.GetHyperParamOrDefault(EpsilonMin, DefaultEpsilonMin),
		Alpha:           cfg.GetHyperParamOrDefault(Alpha, DefaultAlpha),
		Gamma:           cfg.GetHyperParamOrDefault(Gamma, DefaultGamma),
		Episodes:        orDefault(cfg.Episodes, DefaultEpisodes),
		MaxEpisodeSteps: orDefault(cfg.MaxEpisodeSteps, DefaultMaxEpisodeSteps),
		Stochastic:      cfg.StochasticWind == nil || *cfg.StochasticWind,
		Seed:            cfg.Seed,
		ProgressEvery:   orDefault(cfg.ProgressEvery, DefaultProgressEvery),
	}
	err = p.Validate()
	return
}

func orDefault(val, def int) int {
	if val == 0 {
		return def
	}
	return val
}

// Validate checks every parameter range. The comparisons are written so NaN fails them.
func (p Params) Validate() error {
	switch {
	case !(p.Epsilon >= 0 && p.Epsilon <= 1):
		return fmt.Errorf("epsilon %v not in [0,1]: %w", p.Epsilon, ErrInvalidConfig)
	case !(p.EpsilonDecay > 0 && p.EpsilonDecay <= 1):
		return fmt.Errorf("epsilon decay %v not in (0,1]: %w", p.EpsilonDecay, ErrInvalidConfig)
	case !(p.EpsilonMin >= 0 && p.EpsilonMin <= p.Epsilon):
		return fmt.Errorf("epsilon min %v not in [0,epsilon]: %w", p.EpsilonMin, ErrInvalidConfig)
	case !(p.Alpha > 0 && p.Alpha <= 1):
		return fmt.Errorf("alpha %v not in (0,1]: %w", p.Alpha, ErrInvalidConfig)
	case !(p.Gamma >= 0 && p.Gamma <= 1):
		return fmt.Errorf("gamma %v not in [0,1]: %w", p.Gamma, ErrInvalidConfig)
	case p.Episodes < 1:
		return fmt.Errorf("episodes %d < 1: %w", p.Episodes, ErrInvalidConfig)
	case p.MaxEpisodeSteps < 1:
		return fmt.Errorf("max episode steps %d < 1: %w", p.MaxEpisodeSteps, ErrInvalidConfig)
	case p.ProgressEvery < 1:
		return fmt.Errorf("progress interval %d < 1: %w", p.ProgressEvery, ErrInvalidConfig)
	}
	return nil
}

// WorldConfig returns the configured world, or the reference layout.
func (cfg *TrainingConfig) WorldConfig() grid_world.Config {
	if cfg.World == nil {
		return grid_world.Reference()
	}
	return *cfg.World
}

// FromYaml reads a `kind: training` envelope. Viper reads the file and yaml.v3
// re-decodes the `def` body into the typed config.
func FromYaml(path string) (*TrainingConfig, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	var err error
	if err = vp.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	outerConfig := &OuterConfig{}
	if err = vp.Unmarshal(outerConfig); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if outerConfig.Kind != "training" {
		return nil, fmt.Errorf("config %s has kind %q, want \"training\": %w", path, outerConfig.Kind, ErrInvalidConfig)
	}

	var spec []byte
	if spec, err = yaml.Marshal(outerConfig.Def); err != nil {
		return nil, err
	}

	innerConfig := &TrainingConfig{}
	if err = yaml.Unmarshal(spec, innerConfig); err != nil {
		return nil, fmt.Errorf("decode training def: %w", err)
	}

	return innerConfig, nil
}
