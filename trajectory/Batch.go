// Package trajectory implements fixed-length windows of environment
// interaction used as learner input. A Batch is a [T, B] window of T
// consecutive steps across B parallel episodes, stored time-major in
// flat slices.
package trajectory

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Batch is a read-only trajectory window handed to a loss function.
//
// Alignment convention: row t of the cumulants describes the
// transition leaving step t (t → t+1). The final cumulant row of a
// window is therefore padding and is never read by a loss. Discounts
// follow the usual convention of being 0 on the transition immediately
// following a terminal step; everything two or more steps past
// termination is padding.
type Batch struct {
	t, b        int
	numActions  int
	cumulantDim int
	obsDim      int

	actions   []int     // [T*B]
	rewards   []float64 // [T*B]
	discounts []float64 // [T*B]
	obs       []float64 // [T*B*obsDim]
	cumulants []float64 // [T*B*cumulantDim]
	tasks     []float64 // [T*B*cumulantDim]

	// trainTasks is the support set of training tasks shared by every
	// element of the batch.
	trainTasks *mat.Dense

	// actionMask is nil unless the environment reports per-step action
	// availability.
	actionMask []float64 // [T*B*numActions]
}

// NewBatch creates an empty [T, B] Batch with the given dimensions.
// Data is filled in with the Set* methods.
func NewBatch(t, b, numActions, cumulantDim, obsDim int,
	trainTasks *mat.Dense) (*Batch, error) {
	if t < 2 {
		return nil, fmt.Errorf("newbatch: trajectory window must have at "+
			"least 2 timesteps \n\twant(>=2)\n\thave(%v)", t)
	}
	if b < 1 || numActions < 1 || cumulantDim < 1 || obsDim < 1 {
		return nil, fmt.Errorf("newbatch: non-positive dimension "+
			"[B=%v A=%v C=%v D=%v]", b, numActions, cumulantDim, obsDim)
	}
	if trainTasks != nil {
		if _, c := trainTasks.Dims(); c != cumulantDim {
			return nil, fmt.Errorf("newbatch: train task dimension "+
				"\n\twant(%v)\n\thave(%v)", cumulantDim, c)
		}
	}

	return &Batch{
		t:           t,
		b:           b,
		numActions:  numActions,
		cumulantDim: cumulantDim,
		obsDim:      obsDim,
		actions:     make([]int, t*b),
		rewards:     make([]float64, t*b),
		discounts:   make([]float64, t*b),
		obs:         make([]float64, t*b*obsDim),
		cumulants:   make([]float64, t*b*cumulantDim),
		tasks:       make([]float64, t*b*cumulantDim),
		trainTasks:  trainTasks,
	}, nil
}

// EnableActionMask allocates storage for per-step action availability.
// All actions start available.
func (d *Batch) EnableActionMask() {
	d.actionMask = make([]float64, d.t*d.b*d.numActions)
	for i := range d.actionMask {
		d.actionMask[i] = 1.0
	}
}

// HasActionMask returns whether the batch carries action availability
func (d *Batch) HasActionMask() bool { return d.actionMask != nil }

// Dims returns the window length T and batch size B
func (d *Batch) Dims() (t, b int) { return d.t, d.b }

// NumActions returns the size of the action set A
func (d *Batch) NumActions() int { return d.numActions }

// CumulantDim returns the state-feature dimension C
func (d *Batch) CumulantDim() int { return d.cumulantDim }

// ObsDim returns the observation dimension
func (d *Batch) ObsDim() int { return d.obsDim }

// TrainTasks returns the [N, C] matrix of training task vectors
func (d *Batch) TrainTasks() *mat.Dense { return d.trainTasks }

func (d *Batch) index(t, b int) int {
	if t < 0 || t >= d.t || b < 0 || b >= d.b {
		panic(fmt.Sprintf("batch: index (%v, %v) out of range [%v, %v]",
			t, b, d.t, d.b))
	}
	return t*d.b + b
}

// SetStep fills in a single (t, b) cell of the window
func (d *Batch) SetStep(t, b, action int, reward, discount float64,
	obs, cumulants, task []float64) error {
	if len(obs) != d.obsDim {
		return fmt.Errorf("setstep: observation length "+
			"\n\twant(%v)\n\thave(%v)", d.obsDim, len(obs))
	}
	if len(cumulants) != d.cumulantDim || len(task) != d.cumulantDim {
		return fmt.Errorf("setstep: cumulant length "+
			"\n\twant(%v)\n\thave(%v, %v)", d.cumulantDim, len(cumulants),
			len(task))
	}
	if action < 0 || action >= d.numActions {
		return fmt.Errorf("setstep: action out of range "+
			"\n\twant([0, %v))\n\thave(%v)", d.numActions, action)
	}

	i := d.index(t, b)
	d.actions[i] = action
	d.rewards[i] = reward
	d.discounts[i] = discount
	copy(d.obs[i*d.obsDim:(i+1)*d.obsDim], obs)
	copy(d.cumulants[i*d.cumulantDim:(i+1)*d.cumulantDim], cumulants)
	copy(d.tasks[i*d.cumulantDim:(i+1)*d.cumulantDim], task)
	return nil
}

// SetActionMask records the available actions at (t, b). The mask must
// be enabled first.
func (d *Batch) SetActionMask(t, b int, available []float64) error {
	if d.actionMask == nil {
		return fmt.Errorf("setactionmask: action mask not enabled")
	}
	if len(available) != d.numActions {
		return fmt.Errorf("setactionmask: mask length "+
			"\n\twant(%v)\n\thave(%v)", d.numActions, len(available))
	}
	i := d.index(t, b)
	copy(d.actionMask[i*d.numActions:(i+1)*d.numActions], available)
	return nil
}

// Action returns the action taken at (t, b)
func (d *Batch) Action(t, b int) int { return d.actions[d.index(t, b)] }

// Reward returns the reward at (t, b)
func (d *Batch) Reward(t, b int) float64 { return d.rewards[d.index(t, b)] }

// Discount returns the discount at (t, b)
func (d *Batch) Discount(t, b int) float64 {
	return d.discounts[d.index(t, b)]
}

// Observation returns a copy of the observation at (t, b)
func (d *Batch) Observation(t, b int) *mat.VecDense {
	i := d.index(t, b)
	out := make([]float64, d.obsDim)
	copy(out, d.obs[i*d.obsDim:(i+1)*d.obsDim])
	return mat.NewVecDense(d.obsDim, out)
}

// Cumulants returns a copy of the state-feature vector for the
// transition leaving (t, b)
func (d *Batch) Cumulants(t, b int) *mat.VecDense {
	i := d.index(t, b)
	out := make([]float64, d.cumulantDim)
	copy(out, d.cumulants[i*d.cumulantDim:(i+1)*d.cumulantDim])
	return mat.NewVecDense(d.cumulantDim, out)
}

// CumulantAt returns a single cumulant entry without allocating
func (d *Batch) CumulantAt(t, b, c int) float64 {
	return d.cumulants[d.index(t, b)*d.cumulantDim+c]
}

// Task returns a copy of the task vector active at (t, b)
func (d *Batch) Task(t, b int) *mat.VecDense {
	i := d.index(t, b)
	out := make([]float64, d.cumulantDim)
	copy(out, d.tasks[i*d.cumulantDim:(i+1)*d.cumulantDim])
	return mat.NewVecDense(d.cumulantDim, out)
}

// ActionMask returns a copy of the action availability at (t, b), or
// nil when the batch carries none
func (d *Batch) ActionMask(t, b int) []float64 {
	if d.actionMask == nil {
		return nil
	}
	i := d.index(t, b)
	out := make([]float64, d.numActions)
	copy(out, d.actionMask[i*d.numActions:(i+1)*d.numActions])
	return out
}
