package sfnet

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/wcarvalho/neurorl/randkey"
)

// TaskSupport selects which policy vectors a GpiHead evaluates over at
// evaluation time.
type TaskSupport int

const (
	// TrainSupport evaluates over the training task set
	TrainSupport TaskSupport = iota

	// EvalSupport evaluates over the current task only
	EvalSupport

	// TrainEvalSupport evaluates over the training tasks plus the
	// current task
	TrainEvalSupport
)

// GpiHead wraps a Network with generalized policy improvement: it
// evaluates successor features under several policy vectors and acts
// greedily with respect to the per-action maximum over policies.
// During training the policy set is the current task plus NSamples
// gaussian perturbations of it.
type GpiHead struct {
	net Network

	// NSamples is the number of gaussian policy samples added to the
	// current task during training. Zero evaluates the task alone.
	NSamples int

	// Variance of the policy samples around the task vector
	Variance float64

	// Support selects the evaluation-time policy set
	Support TaskSupport
}

// NewGpiHead returns a GpiHead over net
func NewGpiHead(net Network, nSamples int, variance float64,
	support TaskSupport) (*GpiHead, error) {
	if nSamples < 0 {
		return nil, fmt.Errorf("newgpihead: nSamples must be >= 0")
	}
	if variance < 0 {
		return nil, fmt.Errorf("newgpihead: variance must be >= 0")
	}
	return &GpiHead{
		net:      net,
		NSamples: nSamples,
		Variance: variance,
		Support:  support,
	}, nil
}

// Predict evaluates the head for training: the policy set is the task
// vector plus NSamples gaussian samples around it.
func (h *GpiHead) Predict(params Params, key randkey.Key, state mat.Vector,
	task mat.Vector) Predictions {
	n := 1 + h.NSamples
	policies := mat.NewDense(n, task.Len(), nil)
	for c := 0; c < task.Len(); c++ {
		policies.Set(0, c, task.AtVec(c))
	}

	key, sampleKey := key.Next()
	std := math.Sqrt(h.Variance)
	for i := 1; i < n; i++ {
		for c := 0; c < task.Len(); c++ {
			policies.Set(i, c, task.AtVec(c)+std*sampleKey.Rand().NormFloat64())
		}
	}

	return h.gpi(params, key, state, task, policies)
}

// Evaluate evaluates the head with the configured evaluation-time
// policy support.
func (h *GpiHead) Evaluate(params Params, key randkey.Key, state mat.Vector,
	task mat.Vector, trainTasks *mat.Dense) Predictions {
	var policies *mat.Dense
	switch h.Support {
	case TrainSupport:
		policies = trainTasks
	case EvalSupport:
		policies = mat.NewDense(1, task.Len(), nil)
		for c := 0; c < task.Len(); c++ {
			policies.Set(0, c, task.AtVec(c))
		}
	case TrainEvalSupport:
		n, c := trainTasks.Dims()
		policies = mat.NewDense(n+1, c, nil)
		policies.Slice(0, n, 0, c).(*mat.Dense).Copy(trainTasks)
		for j := 0; j < c; j++ {
			policies.Set(n, j, task.AtVec(j))
		}
	default:
		panic(fmt.Sprintf("evaluate: unsupported task support %v", h.Support))
	}

	return h.gpi(params, key, state, task, policies)
}

// gpi computes SFs for every policy vector and takes the per-action
// maximum value over policies.
func (h *GpiHead) gpi(params Params, key randkey.Key, state mat.Vector,
	task mat.Vector, policies *mat.Dense) Predictions {
	n, _ := policies.Dims()
	numActions := h.net.NumActions()

	key, sfKeys := key.Split(n)
	policySFs := make([]*mat.Dense, n)
	policyQ := make([]*mat.VecDense, n)
	for i := 0; i < n; i++ {
		preds := h.net.ComputeSFs(params, sfKeys[i], state,
			policies.RowView(i))
		policySFs[i] = preds.SF
		policyQ[i] = preds.QValues
	}

	// GPI: per-action maximum over the policy set. The returned SF
	// rows come from the policy that achieves the max for each action.
	q := mat.NewVecDense(numActions, nil)
	sf := mat.NewDense(numActions, h.net.CumulantDim(), nil)
	for a := 0; a < numActions; a++ {
		best, bestVal := 0, policyQ[0].AtVec(a)
		for i := 1; i < n; i++ {
			if v := policyQ[i].AtVec(a); v > bestVal {
				best, bestVal = i, v
			}
		}
		q.SetVec(a, bestVal)
		for c := 0; c < h.net.CumulantDim(); c++ {
			sf.Set(a, c, policySFs[best].At(a, c))
		}
	}

	return Predictions{
		State:     mat.VecDenseCopyOf(state),
		SF:        sf,
		QValues:   q,
		Task:      mat.VecDenseCopyOf(task),
		PolicySFs: policySFs,
		PolicyQ:   policyQ,
	}
}
