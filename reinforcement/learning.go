package reinforcement

/*
SARSA control over the windy gridworld. A single goroutine owns the table and
runs episodes back to back: each update reads the pair chosen on the previous
step, so there is nothing to parallelize inside a run. Cancellation is checked
between episodes, which leaves Q consistent whenever training stops.
*/

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"

	. "windy/grid_world"
)

// ErrEpisodeStepCap is reported when an episode exceeds MaxEpisodeSteps
// without reaching the goal.
var ErrEpisodeStepCap = errors.New("episode step cap exceeded")

// Step is a single SARSA transition: do Action in State, observe Reward and
// Successor, then choose NextAction there.
type Step struct {
	State      GridState
	Action     Action
	Reward     float64
	Successor  GridState
	NextAction Action
}

// EpisodeResult summarizes one finished (or capped) episode.
type EpisodeResult struct {
	Episode int
	Steps   int
	Reward  float64
	Epsilon float64
	// Err is non-nil when the episode was cut off, wrapping ErrEpisodeStepCap.
	Err error
}

// ProgressFunc is a callback by which training lends progress details. It is
// called synchronously on the training goroutine every ProgressEvery episodes
// and after the last one, so it should complete quickly.
type ProgressFunc func(context.Context, EpisodeResult)

// Learner runs SARSA episodes against an environment and owns the resulting table.
type Learner struct {
	env     *Environment
	q       *ActionValueTable
	policy  *Policy
	params  Params
	epsilon float64
	logger  *log.Logger
}

// NewLearner builds a learner with a zeroed table shaped to env.
func NewLearner(env *Environment, params Params, rng *rand.Rand) (*Learner, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Learner{
		env:     env,
		q:       NewActionValueTable(env.Rows(), env.Cols()),
		policy:  NewPolicy(rng),
		params:  params,
		epsilon: params.Epsilon,
		logger:  log.Default(),
	}, nil
}

// SetLogger redirects progress logging.
func (l *Learner) SetLogger(logger *log.Logger) {
	l.logger = logger
}

// Q returns the learner's action-value table.
func (l *Learner) Q() *ActionValueTable { return l.q }

// Policy returns the learner's action selector.
func (l *Learner) Policy() *Policy { return l.policy }

// Epsilon returns the current, possibly decayed, exploration rate.
func (l *Learner) Epsilon() float64 { return l.epsilon }

// Train runs params.Episodes episodes, or fewer if ctx ends first, in which
// case the partial summary is returned along with ctx.Err().
func (l *Learner) Train(ctx context.Context, progressFn ProgressFunc) (*Summary, error) {
	summary := newSummary(l.params.Episodes)
	for episode := 1; episode <= l.params.Episodes; episode++ {
		// done-guard
		select {
		case <-ctx.Done():
			l.logger.Printf("training stopped after %d episodes: %v", summary.Episodes, ctx.Err())
			return summary, ctx.Err()
		default:
		}

		result := l.RunEpisode(episode)
		summary.record(result)
		if result.Err != nil {
			l.logger.Printf("%v (epsilon %.4f)", result.Err, result.Epsilon)
		}

		if episode%l.params.ProgressEvery == 0 || episode == l.params.Episodes {
			l.logger.Printf("episode %d completed in %d steps, average %.2f, epsilon %.4f",
				episode, result.Steps, summary.AvgSteps, result.Epsilon)
			if progressFn != nil {
				progressFn(ctx, result)
			}
		}

		l.decayEpsilon()
	}
	return summary, nil
}

func (l *Learner) decayEpsilon() {
	l.epsilon = math.Max(l.epsilon*l.params.EpsilonDecay, l.params.EpsilonMin)
}

// RunEpisode runs one episode from the start state until the goal or the step cap.
func (l *Learner) RunEpisode(episode int) (result EpisodeResult) {
	result = EpisodeResult{Episode: episode, Epsilon: l.epsilon}

	state := l.env.Start()
	action := l.policy.Select(state, l.q, l.epsilon)
	for !l.env.IsTerminal(state) {
		if result.Steps >= l.params.MaxEpisodeSteps {
			result.Err = fmt.Errorf("episode %d stopped at %v after %d steps: %w",
				episode, state, result.Steps, ErrEpisodeStepCap)
			return
		}

		successor, reward := l.env.Step(state, action, l.params.Stochastic)
		// The next action is drawn even at the goal; its value is not bootstrapped.
		nextAction := l.policy.Select(successor, l.q, l.epsilon)
		l.update(Step{
			State:      state,
			Action:     action,
			Reward:     reward,
			Successor:  successor,
			NextAction: nextAction,
		})

		state, action = successor, nextAction
		result.Reward += reward
		result.Steps++
	}
	return
}

// update applies Q(s,a) += alpha * (r + gamma*Q(s',a') - Q(s,a)), with
// Q(s',a') taken as zero when s' is terminal.
func (l *Learner) update(step Step) {
	next := 0.0
	if !l.env.IsTerminal(step.Successor) {
		next = l.q.Value(step.Successor, step.NextAction)
	}
	target := step.Reward + l.params.Gamma*next
	current := l.q.Value(step.State, step.Action)
	l.q.Add(step.State, step.Action, l.params.Alpha*(target-current))
}
