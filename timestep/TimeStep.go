// Package timestep implements timesteps of the agent-environment interaction
package timestep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// StepType denotes the type of step that a TimeStep can be, either  first
// environmental step, a middle step, or a last step
type StepType int

const (
	First StepType = iota
	Mid
	Last
)

func (s StepType) String() string {
	switch s {
	case First:
		return "First"
	case Last:
		return "Last"
	default:
		return "Mid"
	}
}

// TimeStep packages together a single timestep in an environment. In
// addition to the usual observation, reward, and discount, a TimeStep
// carries the state-feature (cumulant) vector emitted by the
// transition that produced it and the task vector defining the current
// reward function as task · cumulants.
type TimeStep struct {
	stepType    StepType
	Reward      float64
	Discount    float64
	Observation mat.Vector
	Number      int

	// Cumulants is the state-feature vector of the transition that
	// led to this step. Zero on the first step of an episode.
	Cumulants mat.Vector

	// Task has the same length as Cumulants.
	Task mat.Vector
}

func New(t StepType, r, d float64, o mat.Vector, n int) TimeStep {
	return TimeStep{stepType: t, Reward: r, Discount: d, Observation: o,
		Number: n}
}

// NewCumulant creates a TimeStep that carries cumulants and a task
// vector alongside the usual observation.
func NewCumulant(t StepType, r, d float64, o, cumulants, task mat.Vector,
	n int) TimeStep {
	return TimeStep{stepType: t, Reward: r, Discount: d, Observation: o,
		Number: n, Cumulants: cumulants, Task: task}
}

// First returns whether a TimeStep is the first in an environment
func (t *TimeStep) First() bool {
	return t.stepType == First
}

// Mid returns whether a TimeStep is a middle step in an environment
func (t *TimeStep) Mid() bool {
	return t.stepType == Mid
}

// Last returns whether a TimeStep is the last step in an environment
func (t *TimeStep) Last() bool {
	return t.stepType == Last
}

// SetLast marks the timestep as the final step of its episode. Enders
// use this to cut episodes at step limits.
func (t *TimeStep) SetLast() {
	t.stepType = Last
}

func (t TimeStep) String() string {
	str := "TimeStep | Type: %v  |  Reward:  %.2f  |  Discount: %.2f  |  " +
		"Step Number:  %v"

	return fmt.Sprintf(str, t.stepType, t.Reward, t.Discount, t.Number)
}

// Transition packages together a single (s, a, r, ℽ, s', a')
// transition together with the cumulants observed on arrival in s'
// and the task vector active during the transition.
type Transition struct {
	State      mat.Vector
	Action     mat.Vector
	Reward     float64
	Discount   float64
	NextState  mat.Vector
	NextAction mat.Vector

	Cumulants mat.Vector
	Task      mat.Vector
}

// NewTransition creates a Transition from two consecutive timesteps
func NewTransition(step TimeStep, action mat.Vector, nextStep TimeStep,
	nextAction mat.Vector) Transition {
	return Transition{
		State:      step.Observation,
		Action:     action,
		Reward:     nextStep.Reward,
		Discount:   nextStep.Discount,
		NextState:  nextStep.Observation,
		NextAction: nextAction,
		Cumulants:  nextStep.Cumulants,
		Task:       nextStep.Task,
	}
}
