// Package linearsf implements a linear universal successor-feature
// agent with a learned one-step model. The agent gathers fixed-length
// trajectory windows, evaluates the combined on-task, Dyna, and model
// losses on each window, and adapts its weights with semi-gradient
// updates.
package linearsf

import (
	"fmt"
	"os"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/wcarvalho/neurorl/environment"
	"github.com/wcarvalho/neurorl/randkey"
	"github.com/wcarvalho/neurorl/sfnet"
	ts "github.com/wcarvalho/neurorl/timestep"
	"github.com/wcarvalho/neurorl/trajectory"
	"github.com/wcarvalho/neurorl/usfa"
	"github.com/wcarvalho/neurorl/utils/floatutils"
)

// step is one gathered transition. Row t of a trajectory window holds
// the observation at step t together with the transition leaving it.
type step struct {
	obs       mat.Vector
	action    int
	reward    float64
	discount  float64
	cumulants mat.Vector
	task      mat.Vector
	nextObs   mat.Vector
}

// LinearSF implements a linear successor-feature agent. Successor
// features, the transition model, and the feature head are all linear
// in the observation, so learning steps are plain outer-product
// updates.
type LinearSF struct {
	config Config

	net          *sfnet.LinearSF
	params       sfnet.Params
	targetParams sfnet.Params
	loss         *usfa.MtrlDynaUsfaLoss

	key randkey.Key
	rng *rand.Rand

	numActions  int
	cumulantDim int
	obsDim      int
	trainTasks  *mat.Dense

	prevStep      ts.TimeStep
	window        []step
	gradientSteps int
	metrics       map[string]float64
	eval          bool
}

// New creates and returns a new LinearSF agent acting in env
func New(env environment.Environment, config Config,
	seed uint64) (*LinearSF, error) {
	if env.ActionSpec().Cardinality != environment.Discrete {
		return nil, fmt.Errorf("linearsf: cannot use non-discrete actions")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("linearsf: %v", err)
	}

	obsDim := env.ObservationSpec().Shape.Len()
	numActions := int(env.ActionSpec().UpperBound.AtVec(0)) + 1
	cumulantDim := env.CumulantSpec().Shape.Len()

	net, params, err := sfnet.NewLinearSF(sfnet.LinearSFConfig{
		StateDim:          obsDim,
		NumActions:        numActions,
		CumulantDim:       cumulantDim,
		PredictActionMask: config.Loss.ActionMask,
		InitScale:         config.InitScale,
	}, seed)
	if err != nil {
		return nil, fmt.Errorf("linearsf: %v", err)
	}

	loss, err := usfa.NewMtrlDynaUsfaLoss(net, config.Loss)
	if err != nil {
		return nil, fmt.Errorf("linearsf: %v", err)
	}

	key, policyKey := randkey.New(seed).Next()

	return &LinearSF{
		config:       config,
		net:          net,
		params:       params,
		targetParams: params.Clone(),
		loss:         loss,
		key:          key,
		rng:          policyKey.Rand(),
		numActions:   numActions,
		cumulantDim:  cumulantDim,
		obsDim:       obsDim,
		trainTasks:   env.TrainTasks(),
		window:       make([]step, 0, config.WindowLength),
	}, nil
}

// ObserveFirst observes and records the first episodic timestep
func (l *LinearSF) ObserveFirst(t ts.TimeStep) error {
	if !t.First() {
		fmt.Fprintf(os.Stderr, "Warning: ObserveFirst() should only be "+
			"called on the first timestep (current timestep = %d)\n", t.Number)
	}
	l.prevStep = t
	return nil
}

// Observe observes and records any timestep other than the first.
// Windows run straight through episode boundaries; the episode mask of
// the loss handles steps past termination.
func (l *LinearSF) Observe(action int, nextStep ts.TimeStep) error {
	if l.prevStep.Observation == nil {
		return fmt.Errorf("observe: no first timestep observed")
	}

	l.window = append(l.window, step{
		obs:       l.prevStep.Observation,
		action:    action,
		reward:    nextStep.Reward,
		discount:  nextStep.Discount,
		cumulants: nextStep.Cumulants,
		task:      l.prevStep.Task,
		nextObs:   nextStep.Observation,
	})
	l.prevStep = nextStep
	return nil
}

// Step evaluates the loss on the gathered window and updates the
// agent's weights. Steps taken before a full window has been gathered
// are no-ops.
func (l *LinearSF) Step() error {
	if len(l.window) < l.config.WindowLength {
		return nil
	}

	data, online, target, err := l.buildWindow()
	if err != nil {
		return fmt.Errorf("step: %v", err)
	}

	var lossKey randkey.Key
	l.key, lossKey = l.key.Next()
	_, _, metrics, err := l.loss.Compute(data, online, target, l.params,
		l.targetParams, lossKey)
	if err != nil {
		return fmt.Errorf("step: %v", err)
	}
	l.metrics = metrics

	for _, e := range l.window {
		l.updateSF(e)
		if l.config.ModelLearningRate > 0 {
			l.updateModel(e)
		}
	}

	l.gradientSteps++
	if l.gradientSteps%l.config.TargetUpdateInterval == 0 {
		if l.config.Tau == 1.0 {
			l.targetParams.Set(l.params)
		} else {
			l.targetParams.Polyak(l.params, l.config.Tau)
		}
	}

	l.window = l.window[:0]
	return nil
}

// buildWindow packages the gathered steps as a [T, 1] trajectory batch
// together with the online and target predictions along it.
func (l *LinearSF) buildWindow() (*trajectory.Batch,
	[][]sfnet.Predictions, [][]sfnet.Predictions, error) {
	t := l.config.WindowLength
	data, err := trajectory.NewBatch(t, 1, l.numActions, l.cumulantDim,
		l.obsDim, l.trainTasks)
	if err != nil {
		return nil, nil, nil, err
	}

	online := make([][]sfnet.Predictions, t)
	target := make([][]sfnet.Predictions, t)
	for i, e := range l.window {
		err := data.SetStep(i, 0, e.action, e.reward, e.discount,
			raw(e.obs), raw(e.cumulants), raw(e.task))
		if err != nil {
			return nil, nil, nil, err
		}
		online[i] = []sfnet.Predictions{
			l.net.ComputeSFs(l.params, l.key, e.obs, e.task),
		}
		target[i] = []sfnet.Predictions{
			l.net.ComputeSFs(l.targetParams, l.key, e.obs, e.task),
		}
	}
	return data, online, target, nil
}

// updateSF performs the one-step double-Q semi-gradient update of the
// successor-feature head on a single transition.
func (l *LinearSF) updateSF(e step) {
	cur := l.net.ComputeSFs(l.params, l.key, e.obs, e.task)
	next := l.net.ComputeSFs(l.params, l.key, e.nextObs, e.task)
	targetNext := l.net.ComputeSFs(l.targetParams, l.key, e.nextObs, e.task)

	// Online net selects the bootstrap action, target net evaluates it
	_, greedy := floatutils.MaxSlice(next.QValues.RawVector().Data)
	aStar := greedy[0]

	gamma := l.config.Loss.Discount
	input := make([]float64, l.obsDim+l.cumulantDim)
	for i := 0; i < l.obsDim; i++ {
		input[i] = e.obs.AtVec(i)
	}
	for i := 0; i < l.cumulantDim; i++ {
		input[l.obsDim+i] = e.task.AtVec(i)
	}

	weights := l.params["sf"]
	for c := 0; c < l.cumulantDim; c++ {
		delta := e.cumulants.AtVec(c) +
			gamma*e.discount*targetNext.SF.At(aStar, c) -
			cur.SF.At(e.action, c)
		row := e.action*l.cumulantDim + c
		for j := range input {
			weights.Set(row, j, weights.At(row, j)+
				l.config.LearningRate*delta*input[j])
		}
	}
}

// updateModel performs supervised updates of the transition and
// feature heads: the model regresses the next observation, and the
// feature head regresses the transition's cumulants from it.
func (l *LinearSF) updateModel(e step) {
	lr := l.config.ModelLearningRate

	model := l.params["model"]
	base := e.action * l.obsDim
	for i := 0; i < l.obsDim; i++ {
		var pred float64
		for j := 0; j < l.obsDim; j++ {
			pred += model.At(base+i, j) * e.obs.AtVec(j)
		}
		residual := e.nextObs.AtVec(i) - pred
		for j := 0; j < l.obsDim; j++ {
			model.Set(base+i, j, model.At(base+i, j)+
				lr*residual*e.obs.AtVec(j))
		}
	}

	features := l.params["features"]
	for c := 0; c < l.cumulantDim; c++ {
		var pred float64
		for j := 0; j < l.obsDim; j++ {
			pred += features.At(c, j) * e.nextObs.AtVec(j)
		}
		residual := e.cumulants.AtVec(c) - pred
		for j := 0; j < l.obsDim; j++ {
			features.Set(c, j, features.At(c, j)+
				lr*residual*e.nextObs.AtVec(j))
		}
	}
}

// SelectAction returns an ε-greedy action with respect to the online
// task-weighted values. In evaluation mode the action is greedy.
func (l *LinearSF) SelectAction(t ts.TimeStep) int {
	if !l.eval && l.rng.Float64() < l.config.Epsilon {
		return l.rng.Intn(l.numActions)
	}

	preds := l.net.ComputeSFs(l.params, l.key, t.Observation, t.Task)
	_, greedy := floatutils.MaxSlice(preds.QValues.RawVector().Data)
	return greedy[0]
}

// TdError returns the one-step value TD error on a transition
func (l *LinearSF) TdError(t ts.Transition) float64 {
	_, actions := floatutils.MaxSlice(rawDense(t.Action))
	action := actions[0]

	cur := l.net.ComputeSFs(l.params, l.key, t.State, t.Task)
	next := l.net.ComputeSFs(l.targetParams, l.key, t.NextState, t.Task)
	nextValue, _ := floatutils.MaxSlice(next.QValues.RawVector().Data)

	return t.Reward + l.config.Loss.Discount*t.Discount*nextValue -
		cur.QValues.AtVec(action)
}

// Metrics returns the loss metrics of the most recent learning step
func (l *LinearSF) Metrics() map[string]float64 {
	return l.metrics
}

// Eval sets the agent into evaluation mode
func (l *LinearSF) Eval() { l.eval = true }

// Train sets the agent into training mode
func (l *LinearSF) Train() { l.eval = false }

// IsEval returns whether the agent is in evaluation mode
func (l *LinearSF) IsEval() bool { return l.eval }

// EndEpisode performs cleanup at the end of an episode
func (l *LinearSF) EndEpisode() {}

func raw(v mat.Vector) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}

func rawDense(v mat.Vector) []float64 {
	if dense, ok := v.(*mat.VecDense); ok {
		return dense.RawVector().Data
	}
	return raw(v)
}
