package sfnet

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/wcarvalho/neurorl/randkey"
)

// LinearSF is a linear universal successor-feature network together
// with a linear one-step transition model. Successor features are
// linear in the concatenation of the latent state and the policy
// (task) vector; the model applies a per-action linear map to the
// state and predicts state features from the result.
//
// LinearSF carries no weights itself. All weights live in a Params
// value so the same network can be evaluated under online and target
// parameters.
type LinearSF struct {
	stateDim    int
	numActions  int
	cumulantDim int

	// binaryFeatures switches the feature head from an identity
	// readout of the logits to a Bernoulli sample of them.
	binaryFeatures bool

	// predictActionMask enables the per-action availability head
	predictActionMask bool
}

// LinearSFConfig configures a LinearSF network
type LinearSFConfig struct {
	StateDim    int
	NumActions  int
	CumulantDim int

	// BinaryFeatures models state features as independent binary
	// indicators sampled from the feature logits
	BinaryFeatures bool

	// PredictActionMask adds a head predicting which actions are
	// available in the successor state
	PredictActionMask bool

	// InitScale is the half-width of the uniform weight
	// initialization
	InitScale float64
}

// NewLinearSF creates a LinearSF network and an initial parameter set
func NewLinearSF(config LinearSFConfig, seed uint64) (*LinearSF, Params,
	error) {
	if config.StateDim < 1 || config.NumActions < 1 ||
		config.CumulantDim < 1 {
		return nil, nil, fmt.Errorf("newlinearsf: non-positive dimension "+
			"[D=%v A=%v C=%v]", config.StateDim, config.NumActions,
			config.CumulantDim)
	}

	net := &LinearSF{
		stateDim:          config.StateDim,
		numActions:        config.NumActions,
		cumulantDim:       config.CumulantDim,
		binaryFeatures:    config.BinaryFeatures,
		predictActionMask: config.PredictActionMask,
	}

	scale := config.InitScale
	rng := rand.New(rand.NewSource(seed))
	uniform := func(r, c int) *mat.Dense {
		data := make([]float64, r*c)
		for i := range data {
			data[i] = scale * (2*rng.Float64() - 1)
		}
		return mat.NewDense(r, c, data)
	}

	d, a, c := config.StateDim, config.NumActions, config.CumulantDim
	params := Params{
		"sf":       uniform(a*c, d+c),
		"model":    uniform(a*d, d),
		"features": uniform(c, d),
	}
	if config.PredictActionMask {
		params["actionmask"] = uniform(a, d)
	}

	return net, params, nil
}

// NumActions returns the size of the action set
func (l *LinearSF) NumActions() int { return l.numActions }

// CumulantDim returns the state-feature dimension
func (l *LinearSF) CumulantDim() int { return l.cumulantDim }

// StateDim returns the latent state dimension
func (l *LinearSF) StateDim() int { return l.stateDim }

// ComputeSFs evaluates the successor features at state under the
// given task vector: sf[a] = W_sf[a] · (state ⊕ task) and
// q[a] = sf[a] · task.
func (l *LinearSF) ComputeSFs(params Params, key randkey.Key,
	state mat.Vector, task mat.Vector) Predictions {
	if state.Len() != l.stateDim {
		panic(fmt.Sprintf("computesfs: state dimension "+
			"\n\twant(%v)\n\thave(%v)", l.stateDim, state.Len()))
	}
	if task.Len() != l.cumulantDim {
		panic(fmt.Sprintf("computesfs: task dimension "+
			"\n\twant(%v)\n\thave(%v)", l.cumulantDim, task.Len()))
	}

	// Input to the SF head is the state-task concatenation
	input := mat.NewVecDense(l.stateDim+l.cumulantDim, nil)
	for i := 0; i < l.stateDim; i++ {
		input.SetVec(i, state.AtVec(i))
	}
	for i := 0; i < l.cumulantDim; i++ {
		input.SetVec(l.stateDim+i, task.AtVec(i))
	}

	flat := mat.NewVecDense(l.numActions*l.cumulantDim, nil)
	flat.MulVec(params["sf"], input)

	sf := mat.NewDense(l.numActions, l.cumulantDim, nil)
	q := mat.NewVecDense(l.numActions, nil)
	for a := 0; a < l.numActions; a++ {
		var qa float64
		for c := 0; c < l.cumulantDim; c++ {
			value := flat.AtVec(a*l.cumulantDim + c)
			sf.Set(a, c, value)
			qa += value * task.AtVec(c)
		}
		q.SetVec(a, qa)
	}

	return Predictions{
		State:   mat.VecDenseCopyOf(state),
		SF:      sf,
		QValues: q,
		Task:    mat.VecDenseCopyOf(task),
	}
}

// ApplyModel applies the per-action transition map to state and
// predicts the features of the resulting state.
func (l *LinearSF) ApplyModel(params Params, key randkey.Key,
	state mat.Vector, action int) (ModelOutput, *mat.VecDense) {
	if action < 0 || action >= l.numActions {
		panic(fmt.Sprintf("applymodel: action out of range "+
			"\n\twant([0, %v))\n\thave(%v)", l.numActions, action))
	}

	// Rows [action*D, (action+1)*D) of the model matrix hold the
	// transition map for this action
	transition := params["model"].Slice(action*l.stateDim,
		(action+1)*l.stateDim, 0, l.stateDim)
	next := mat.NewVecDense(l.stateDim, nil)
	next.MulVec(transition, state)

	logits := mat.NewVecDense(l.cumulantDim, nil)
	logits.MulVec(params["features"], next)

	features := mat.VecDenseCopyOf(logits)
	if l.binaryFeatures {
		for c := 0; c < l.cumulantDim; c++ {
			p := 1.0 / (1.0 + math.Exp(-logits.AtVec(c)))
			bern := distuv.Bernoulli{P: p, Src: key.Rand()}
			features.SetVec(c, bern.Rand())
		}
	}

	out := ModelOutput{
		State:              next,
		StateFeatureLogits: logits,
		StateFeatures:      features,
	}

	if l.predictActionMask {
		maskLogits := mat.NewVecDense(l.numActions, nil)
		maskLogits.MulVec(params["actionmask"], next)
		available := make([]float64, l.numActions)
		for a := 0; a < l.numActions; a++ {
			if maskLogits.AtVec(a) > 0 {
				available[a] = 1.0
			}
		}
		out.ActionMaskLogits = maskLogits
		out.ActionMask = available
	}

	return out, next
}
