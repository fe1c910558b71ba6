// Package deepsf implements a deep successor-feature agent. The agent
// learns an MLP mapping observations to the successor features of
// every action and regresses them towards one-step bootstrapped
// cumulant targets from a target network, replaying transitions from
// an experience replay buffer. Action values are recovered as the
// task-weighted sum of the predicted successor features.
package deepsf

import (
	"fmt"
	"os"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/wcarvalho/neurorl/environment"
	"github.com/wcarvalho/neurorl/expreplay"
	"github.com/wcarvalho/neurorl/network"
	ts "github.com/wcarvalho/neurorl/timestep"
	"github.com/wcarvalho/neurorl/utils/floatutils"
)

// DeepSF implements deep successor-feature learning with a target
// network. The update regresses the successor features of the taken
// action towards
//
//	ψ(s, a) <- c + ℽ * ψ'(s', a*),  a* = argmax[ψ'(s', a) · w]
//
// where c are the transition's cumulants, ψ' is the target network,
// and w is the task vector the transition was gathered under.
type DeepSF struct {
	// Behaviour network for selecting single actions
	behaviourNet network.NeuralNet
	behaviourVM  G.VM

	// Network whose weights are adapted, taking batches of inputs
	trainNet network.NeuralNet
	trainVM  G.VM
	solver   G.Solver

	// Network that provides the update target for a batch of inputs
	targetNet network.NeuralNet
	targetVM  G.VM

	// sfTargets holds the bootstrapped cumulant targets and
	// selectedSF masks the output block of the taken action, so that
	// only the taken action's successor features generate gradient
	sfTargets  *G.Node
	selectedSF *G.Node
	lossVal    G.Value

	tau                  float64
	targetUpdateInterval int
	gradientSteps        int

	replay expreplay.ExperienceReplayer
	rng    *rand.Rand

	numActions  int
	cumulantDim int
	obsDim      int
	batchSize   int
	discount    float64
	epsilon     float64

	prevStep ts.TimeStep
	metrics  map[string]float64
	eval     bool
}

// New creates and returns a new DeepSF agent acting in env
func New(env environment.Environment, config Config,
	seed uint64) (*DeepSF, error) {
	if env.ActionSpec().Cardinality != environment.Discrete {
		return nil, fmt.Errorf("deepsf: cannot use non-discrete actions")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("deepsf: %v", err)
	}

	obsDim := env.ObservationSpec().Shape.Len()
	numActions := int(env.ActionSpec().UpperBound.AtVec(0)) + 1
	cumulantDim := env.CumulantSpec().Shape.Len()
	batchSize := config.batchSize()

	// Training network, learning the weights on batches of inputs
	gTrain := G.NewGraph()
	trainNet, err := network.NewSfMLP(obsDim, batchSize, numActions,
		cumulantDim, gTrain, config.PolicyLayers, config.Biases,
		config.InitWFn, config.Activations)
	if err != nil {
		return nil, fmt.Errorf("deepsf: could not create training "+
			"network: %v", err)
	}

	// Behaviour network for selecting actions one state at a time
	behaviourNet, err := trainNet.CloneWithBatch(1)
	if err != nil {
		return nil, fmt.Errorf("deepsf: could not create behaviour "+
			"network: %v", err)
	}
	behaviourVM := G.NewTapeMachine(behaviourNet.Graph())

	// Target network providing the update target
	targetNet, err := trainNet.CloneWithBatch(batchSize)
	if err != nil {
		return nil, fmt.Errorf("deepsf: could not create target "+
			"network: %v", err)
	}
	targetVM := G.NewTapeMachine(targetNet.Graph())

	// Nodes carrying the bootstrapped targets and the block mask of
	// the taken actions
	outputs := numActions * cumulantDim
	sfTargets := G.NewMatrix(gTrain, tensor.Float64,
		G.WithShape(batchSize, outputs), G.WithName("sfTargets"))
	selectedSF := G.NewMatrix(gTrain, tensor.Float64,
		G.WithShape(batchSize, outputs), G.WithName("selectedSF"))

	// Mean squared error on the taken action's successor features
	losses := G.Must(G.Sub(sfTargets, trainNet.Prediction()))
	losses = G.Must(G.HadamardProd(losses, selectedSF))
	losses = G.Must(G.Square(losses))
	cost := G.Must(G.Mean(losses))

	agent := &DeepSF{
		behaviourNet: behaviourNet,
		behaviourVM:  behaviourVM,
		trainNet:     trainNet,
		solver:       config.Solver,
		targetNet:    targetNet,
		targetVM:     targetVM,

		sfTargets:  sfTargets,
		selectedSF: selectedSF,

		tau:                  config.Tau,
		targetUpdateInterval: config.TargetUpdateInterval,

		rng: rand.New(rand.NewSource(seed)),

		numActions:  numActions,
		cumulantDim: cumulantDim,
		obsDim:      obsDim,
		batchSize:   batchSize,
		discount:    config.Discount,
		epsilon:     config.Epsilon,
	}
	G.Read(cost, &agent.lossVal)

	if _, err := G.Grad(cost, trainNet.Learnables()...); err != nil {
		return nil, fmt.Errorf("deepsf: could not compute gradient: %v", err)
	}
	agent.trainVM = G.NewTapeMachine(gTrain,
		G.BindDualValues(trainNet.Learnables()...))

	agent.replay, err = expreplay.New(
		expreplay.NewFifoSelector(1),
		expreplay.NewUniformSelector(batchSize, seed),
		config.MinReplayCapacity,
		config.MaxReplayCapacity,
		obsDim,
		numActions,
		cumulantDim,
	)
	if err != nil {
		return nil, fmt.Errorf("deepsf: could not create experience "+
			"replay buffer: %v", err)
	}

	return agent, nil
}

// ObserveFirst observes and records the first episodic timestep
func (d *DeepSF) ObserveFirst(t ts.TimeStep) error {
	if !t.First() {
		fmt.Fprintf(os.Stderr, "Warning: ObserveFirst() should only be "+
			"called on the first timestep (current timestep = %d)\n", t.Number)
	}
	d.prevStep = t
	return nil
}

// Observe records that taking action in the previously observed state
// led to nextStep, adding the transition to the replay buffer.
func (d *DeepSF) Observe(action int, nextStep ts.TimeStep) error {
	if d.prevStep.Observation == nil {
		return fmt.Errorf("observe: no first timestep observed")
	}

	oneHot := mat.NewVecDense(d.numActions, nil)
	oneHot.SetVec(action, 1.0)

	err := d.replay.Add(ts.Transition{
		State:     d.prevStep.Observation,
		Action:    oneHot,
		Reward:    nextStep.Reward,
		Discount:  nextStep.Discount,
		NextState: nextStep.Observation,
		Cumulants: nextStep.Cumulants,
		Task:      d.prevStep.Task,
	})
	if err != nil {
		return fmt.Errorf("observe: %v", err)
	}

	d.prevStep = nextStep
	return nil
}

// Step updates the weights of the agent's networks from a replayed
// batch of transitions. Steps taken before the replay buffer reaches
// its minimum capacity are no-ops.
func (d *DeepSF) Step() error {
	batch, err := d.replay.Sample()
	if expreplay.IsEmptyBuffer(err) || expreplay.IsInsufficientSamples(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("step: %v", err)
	}

	// Successor features of the next states under the target network
	if err := d.targetNet.SetInput(batch.NextStates); err != nil {
		return fmt.Errorf("step: could not set target net input: %v", err)
	}
	if err := d.targetVM.RunAll(); err != nil {
		return fmt.Errorf("step: could not run target net: %v", err)
	}
	targetSF := d.targetNet.Output().Data().([]float64)

	targets, mask := d.buildTargets(batch, targetSF)
	d.targetVM.Reset()

	outputs := d.numActions * d.cumulantDim
	err = G.Let(d.sfTargets, tensor.New(
		tensor.WithShape(d.batchSize, outputs),
		tensor.WithBacking(targets)))
	if err != nil {
		return fmt.Errorf("step: could not set targets: %v", err)
	}
	err = G.Let(d.selectedSF, tensor.New(
		tensor.WithShape(d.batchSize, outputs),
		tensor.WithBacking(mask)))
	if err != nil {
		return fmt.Errorf("step: could not set action mask: %v", err)
	}

	if err := d.trainNet.SetInput(batch.States); err != nil {
		return fmt.Errorf("step: could not set train net input: %v", err)
	}

	// Run the learning step
	if err := d.trainVM.RunAll(); err != nil {
		return fmt.Errorf("step: could not run training step: %v", err)
	}
	if err := d.solver.Step(d.trainNet.Model()); err != nil {
		return fmt.Errorf("step: could not adapt weights: %v", err)
	}
	d.metrics = map[string]float64{
		"0.total_loss": d.lossVal.Data().(float64),
	}
	d.trainVM.Reset()
	d.gradientSteps++

	// Update the target network by moving it towards the newly learned
	// weights
	if d.gradientSteps%d.targetUpdateInterval == 0 {
		if d.tau == 1.0 {
			if err := d.targetNet.Set(d.trainNet); err != nil {
				return fmt.Errorf("step: could not update target net: %v", err)
			}
		} else {
			err := d.targetNet.Polyak(d.trainNet, d.tau)
			if err != nil {
				return fmt.Errorf("step: could not update target net: %v", err)
			}
		}
	}

	if err := d.behaviourNet.Set(d.trainNet); err != nil {
		return fmt.Errorf("step: could not update behaviour net: %v", err)
	}
	return nil
}

// buildTargets computes the flat [batch, actions*cumulants]
// bootstrapped targets and the block mask selecting the taken actions.
// The target network selects and evaluates the bootstrap action under
// the task each transition was gathered with.
func (d *DeepSF) buildTargets(batch *expreplay.Batch,
	targetSF []float64) (targets, mask []float64) {
	outputs := d.numActions * d.cumulantDim
	targets = make([]float64, d.batchSize*outputs)
	mask = make([]float64, d.batchSize*outputs)

	for i := 0; i < d.batchSize; i++ {
		task := batch.Tasks[i*d.cumulantDim : (i+1)*d.cumulantDim]
		row := targetSF[i*outputs : (i+1)*outputs]

		// Greedy action in the next state by task-weighted value
		aStar, best := 0, 0.0
		for a := 0; a < d.numActions; a++ {
			var q float64
			for c := 0; c < d.cumulantDim; c++ {
				q += row[a*d.cumulantDim+c] * task[c]
			}
			if a == 0 || q > best {
				aStar, best = a, q
			}
		}

		action := 0
		for a := 0; a < d.numActions; a++ {
			if batch.Actions[i*d.numActions+a] > 0 {
				action = a
				break
			}
		}

		base := i*outputs + action*d.cumulantDim
		for c := 0; c < d.cumulantDim; c++ {
			targets[base+c] = batch.Cumulants[i*d.cumulantDim+c] +
				d.discount*batch.Discounts[i]*row[aStar*d.cumulantDim+c]
			mask[base+c] = 1.0
		}
	}
	return targets, mask
}

// SelectAction returns an ε-greedy action with respect to the
// task-weighted values of the behaviour network's successor features.
// In evaluation mode the action is greedy.
func (d *DeepSF) SelectAction(t ts.TimeStep) int {
	if !d.eval && d.rng.Float64() < d.epsilon {
		return d.rng.Intn(d.numActions)
	}

	obs := make([]float64, d.obsDim)
	for i := range obs {
		obs[i] = t.Observation.AtVec(i)
	}
	if err := d.behaviourNet.SetInput(obs); err != nil {
		panic(fmt.Sprintf("selectaction: %v", err))
	}
	if err := d.behaviourVM.RunAll(); err != nil {
		panic(fmt.Sprintf("selectaction: %v", err))
	}
	sf := d.behaviourNet.Output().Data().([]float64)
	d.behaviourVM.Reset()

	q := make([]float64, d.numActions)
	for a := 0; a < d.numActions; a++ {
		for c := 0; c < d.cumulantDim; c++ {
			q[a] += sf[a*d.cumulantDim+c] * t.Task.AtVec(c)
		}
	}
	_, greedy := floatutils.MaxSlice(q)
	return greedy[0]
}

// Metrics returns the loss of the most recent learning step
func (d *DeepSF) Metrics() map[string]float64 {
	return d.metrics
}

// Eval sets the agent into evaluation mode
func (d *DeepSF) Eval() { d.eval = true }

// Train sets the agent into training mode
func (d *DeepSF) Train() { d.eval = false }

// IsEval returns whether the agent is in evaluation mode
func (d *DeepSF) IsEval() bool { return d.eval }

// EndEpisode performs cleanup at the end of an episode
func (d *DeepSF) EndEpisode() {}

// Close closes the agent's virtual machines. The agent cannot learn or
// select actions afterwards.
func (d *DeepSF) Close() error {
	if err := d.behaviourVM.Close(); err != nil {
		return err
	}
	if err := d.targetVM.Close(); err != nil {
		return err
	}
	return d.trainVM.Close()
}
