package collect

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/wcarvalho/neurorl/environment"
)

// Task defines the reward function of a collection gridworld as a
// linear weighting over object-pickup features. An optional goal
// feature ends the episode when an object of that kind is picked up.
type Task struct {
	environment.Starter
	task        *mat.VecDense
	goalFeature int
}

// NewTask creates a collection task. goalFeature is the cumulant
// dimension whose pickup completes the task, or -1 for none.
func NewTask(starter environment.Starter, task *mat.VecDense,
	goalFeature int) (*Task, error) {
	if task == nil || task.Len() < 1 {
		return nil, fmt.Errorf("newtask: no task vector given")
	}
	if goalFeature >= task.Len() {
		return nil, fmt.Errorf("newtask: goal feature out of range "+
			"\n\twant(< %v)\n\thave(%v)", task.Len(), goalFeature)
	}
	return &Task{Starter: starter, task: task, goalFeature: goalFeature}, nil
}

// TaskVector returns the task's weighting over cumulants
func (t *Task) TaskVector() *mat.VecDense {
	return t.task
}

// GetReward returns the task-weighted sum of the transition's
// cumulants
func (t *Task) GetReward(cumulants mat.Vector) float64 {
	return mat.Dot(t.task, cumulants)
}

// AtGoal returns whether the transition picked up a goal object
func (t *Task) AtGoal(cumulants mat.Vector) bool {
	if t.goalFeature < 0 {
		return false
	}
	return cumulants.AtVec(t.goalFeature) > 0
}
