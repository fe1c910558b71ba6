// Package environment outlines the interfaces needed to implement
// concrete environments whose reward functions are linear in a vector
// of state features (cumulants). A Task pairs a task vector with the
// feature scheme; the active reward is always task · cumulants.
package environment

import (
	"gonum.org/v1/gonum/mat"

	"github.com/wcarvalho/neurorl/timestep"
)

// Starter implements a distribution of starting states and samples
// starting states for environments
type Starter interface {
	Start() *mat.VecDense
}

// Ender decides whether the current episode should end, modifying the
// timestep's type to Last when it does
type Ender interface {
	End(t *timestep.TimeStep) bool
}

// Task implements the reward scheme for acting in an environment. The
// reward of a transition is the dot product of the task vector with
// the transition's cumulants.
type Task interface {
	Starter

	// TaskVector returns the task's weighting over cumulants
	TaskVector() *mat.VecDense

	// GetReward returns the reward for a transition emitting the given
	// cumulants
	GetReward(cumulants mat.Vector) float64

	// AtGoal returns whether a transition emitting the given cumulants
	// completes the task
	AtGoal(cumulants mat.Vector) bool
}

// Environment implements a simulated environment with a Task to
// complete. Observations carry the cumulant and task vectors so agents
// can learn successor features from them.
type Environment interface {
	Task

	// Reset resets the environment between episodes
	Reset() timestep.TimeStep

	// Step takes one environment step, returning the next timestep and
	// whether the episode ended
	Step(action int) (timestep.TimeStep, bool, error)

	// TrainTasks returns the [N, C] support set of training task
	// vectors used for off-task learning
	TrainTasks() *mat.Dense

	DiscountSpec() Spec
	ObservationSpec() Spec
	ActionSpec() Spec
	CumulantSpec() Spec
}
