// Package collect implements an object-collection gridworld. Objects
// of a handful of kinds are scattered over a grid; walking onto an
// object picks it up and activates the cumulant dimension of its kind
// for that transition. The reward is the active task's weighting of
// those cumulants, so the same world serves every task in the training
// support.
package collect

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	"github.com/wcarvalho/neurorl/environment"
	"github.com/wcarvalho/neurorl/timestep"
	"github.com/wcarvalho/neurorl/utils/floatutils"
)

// Actions available in the gridworld
const (
	MoveUp int = iota
	MoveRight
	MoveDown
	MoveLeft
	numActions
)

// Object is a pickup placed on the grid. Feature is the cumulant
// dimension the pickup activates.
type Object struct {
	Row, Col int
	Feature  int
}

// Config configures a collection gridworld
type Config struct {
	Rows, Cols int

	// CumulantDim is the number of object kinds C
	Cumulants int

	Objects []Object

	// StepLimit cuts episodes that never reach a goal object
	StepLimit int

	// TrainTasks is the [N, C] support set of training tasks
	TrainTasks *mat.Dense
}

// Validate ensures the configuration is legal
func (c Config) Validate() error {
	if c.Rows < 1 || c.Cols < 1 {
		return fmt.Errorf("validate: non-positive grid size [%v, %v]",
			c.Rows, c.Cols)
	}
	if c.Cumulants < 1 {
		return fmt.Errorf("validate: need at least one cumulant dimension")
	}
	if c.StepLimit < 1 {
		return fmt.Errorf("validate: non-positive step limit %v",
			c.StepLimit)
	}
	for i, object := range c.Objects {
		if object.Row < 0 || object.Row >= c.Rows || object.Col < 0 ||
			object.Col >= c.Cols {
			return fmt.Errorf("validate: object %v off the grid at "+
				"(%v, %v)", i, object.Row, object.Col)
		}
		if object.Feature < 0 || object.Feature >= c.Cumulants {
			return fmt.Errorf("validate: object %v feature \n\twant([0, "+
				"%v))\n\thave(%v)", i, c.Cumulants, object.Feature)
		}
	}
	if c.TrainTasks != nil {
		if _, cols := c.TrainTasks.Dims(); cols != c.Cumulants {
			return fmt.Errorf("validate: train task dimension "+
				"\n\twant(%v)\n\thave(%v)", c.Cumulants, cols)
		}
	}
	return nil
}

// Collect is a collection gridworld environment. Observations are the
// one-hot agent position concatenated with the transition's cumulant
// vector and the active task vector.
type Collect struct {
	*Task
	config Config
	ender  environment.Ender

	rowBounds r1.Interval
	colBounds r1.Interval

	row, col  int
	collected []bool
	stepNum   int
}

// New creates a collection gridworld and returns its first timestep
func New(config Config, task *Task) (*Collect, timestep.TimeStep, error) {
	if err := config.Validate(); err != nil {
		return nil, timestep.TimeStep{}, fmt.Errorf("new: %v", err)
	}
	if task == nil {
		return nil, timestep.TimeStep{}, fmt.Errorf("new: no task given")
	}
	if task.TaskVector().Len() != config.Cumulants {
		return nil, timestep.TimeStep{}, fmt.Errorf("new: task dimension "+
			"\n\twant(%v)\n\thave(%v)", config.Cumulants,
			task.TaskVector().Len())
	}

	c := &Collect{
		Task:      task,
		config:    config,
		ender:     environment.NewStepLimit(config.StepLimit),
		rowBounds: r1.Interval{Min: 0, Max: float64(config.Rows - 1)},
		colBounds: r1.Interval{Min: 0, Max: float64(config.Cols - 1)},
		collected: make([]bool, len(config.Objects)),
	}
	return c, c.Reset(), nil
}

// Reset resets the environment between episodes
func (c *Collect) Reset() timestep.TimeStep {
	start := c.Start()
	c.row = int(floatutils.ClipInterval(start.AtVec(0), c.rowBounds))
	c.col = int(floatutils.ClipInterval(start.AtVec(1), c.colBounds))
	for i := range c.collected {
		c.collected[i] = false
	}
	c.stepNum = 0

	cumulants := mat.NewVecDense(c.config.Cumulants, nil)
	return timestep.NewCumulant(timestep.First, 0, 1.0,
		c.observation(cumulants), cumulants, c.TaskVector(), 0)
}

// Step takes one environment step
func (c *Collect) Step(action int) (timestep.TimeStep, bool, error) {
	switch action {
	case MoveUp:
		c.row--
	case MoveDown:
		c.row++
	case MoveLeft:
		c.col--
	case MoveRight:
		c.col++
	default:
		return timestep.TimeStep{}, false, fmt.Errorf("step: action out "+
			"of range \n\twant([0, %v))\n\thave(%v)", numActions, action)
	}
	c.row = int(floatutils.ClipInterval(float64(c.row), c.rowBounds))
	c.col = int(floatutils.ClipInterval(float64(c.col), c.colBounds))
	c.stepNum++

	// Pick up any object at the new position
	cumulants := mat.NewVecDense(c.config.Cumulants, nil)
	for i, object := range c.config.Objects {
		if c.collected[i] || object.Row != c.row || object.Col != c.col {
			continue
		}
		c.collected[i] = true
		cumulants.SetVec(object.Feature, 1.0)
	}

	reward := c.GetReward(cumulants)

	stepType := timestep.Mid
	discount := 1.0
	if c.AtGoal(cumulants) {
		stepType = timestep.Last
		discount = 0.0
	}

	step := timestep.NewCumulant(stepType, reward, discount,
		c.observation(cumulants), cumulants, c.TaskVector(), c.stepNum)
	last := c.ender.End(&step) || step.Last()

	return step, last, nil
}

// TrainTasks returns the training task support set
func (c *Collect) TrainTasks() *mat.Dense {
	return c.config.TrainTasks
}

// ObsDim returns the observation length: one-hot position plus
// cumulants plus task
func (c *Collect) ObsDim() int {
	return c.config.Rows*c.config.Cols + 2*c.config.Cumulants
}

// NumActions returns the size of the action set
func (c *Collect) NumActions() int {
	return numActions
}

func (c *Collect) observation(cumulants mat.Vector) *mat.VecDense {
	cells := c.config.Rows * c.config.Cols
	obs := mat.NewVecDense(c.ObsDim(), nil)
	obs.SetVec(c.row*c.config.Cols+c.col, 1.0)
	for i := 0; i < c.config.Cumulants; i++ {
		obs.SetVec(cells+i, cumulants.AtVec(i))
		obs.SetVec(cells+c.config.Cumulants+i, c.TaskVector().AtVec(i))
	}
	return obs
}

// DiscountSpec returns the discount specification
func (c *Collect) DiscountSpec() environment.Spec {
	bound := mat.NewVecDense(1, []float64{1})
	return environment.NewSpec(mat.NewVecDense(1, nil),
		environment.Discount, mat.NewVecDense(1, nil), bound,
		environment.Continuous)
}

// ObservationSpec returns the observation specification
func (c *Collect) ObservationSpec() environment.Spec {
	shape := mat.NewVecDense(c.ObsDim(), nil)
	lower := mat.NewVecDense(c.ObsDim(), nil)
	upper := mat.NewVecDense(c.ObsDim(), nil)
	for i := 0; i < c.ObsDim(); i++ {
		upper.SetVec(i, 1.0)
	}
	return environment.NewSpec(shape, environment.Observation, lower,
		upper, environment.Discrete)
}

// ActionSpec returns the action specification
func (c *Collect) ActionSpec() environment.Spec {
	bound := mat.NewVecDense(1, []float64{float64(numActions - 1)})
	return environment.NewSpec(mat.NewVecDense(1, nil),
		environment.Action, mat.NewVecDense(1, nil), bound,
		environment.Discrete)
}

// CumulantSpec returns the cumulant specification
func (c *Collect) CumulantSpec() environment.Spec {
	shape := mat.NewVecDense(c.config.Cumulants, nil)
	upper := mat.NewVecDense(c.config.Cumulants, nil)
	for i := 0; i < c.config.Cumulants; i++ {
		upper.SetVec(i, 1.0)
	}
	return environment.NewSpec(shape, environment.Cumulant,
		mat.NewVecDense(c.config.Cumulants, nil), upper,
		environment.Discrete)
}
