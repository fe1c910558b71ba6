// Package sfnet defines the contract between the successor-feature
// loss core and the networks it trains. The loss never owns
// parameters; it is handed online and target parameter sets and a
// Network that can evaluate successor features and apply a learned
// one-step transition model under either set.
package sfnet

import (
	"gonum.org/v1/gonum/mat"

	"github.com/wcarvalho/neurorl/randkey"
)

// Params is a named collection of weight matrices. Online and target
// parameters of the same Network share key names and shapes.
type Params map[string]*mat.Dense

// Clone deep-copies a parameter set. Target parameters start as a
// clone of the online ones.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for name, w := range p {
		out[name] = mat.DenseCopyOf(w)
	}
	return out
}

// Set copies the values of source into p. Shapes must already agree.
func (p Params) Set(source Params) {
	for name, w := range p {
		w.Copy(source[name])
	}
}

// Polyak moves p towards source: p <- (1-τ)p + τ·source
func (p Params) Polyak(source Params, tau float64) {
	for name, w := range p {
		r, c := w.Dims()
		src := source[name]
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				w.Set(i, j, (1-tau)*w.At(i, j)+tau*src.At(i, j))
			}
		}
	}
}

// Predictions is the output of evaluating successor features at a
// latent state under one policy (task) vector.
type Predictions struct {
	// State is the latent state the prediction was made at
	State *mat.VecDense

	// SF is the [A, C] successor-feature matrix: one C-vector per
	// action
	SF *mat.Dense

	// QValues is the [A] vector of task-weighted values, q = sf · task
	QValues *mat.VecDense

	// Task is the policy (task) vector the SFs are conditioned on
	Task *mat.VecDense

	// ActionMask records the availability mask applied to this
	// prediction, if any
	ActionMask []float64

	// PolicySFs and PolicyQ are only populated by GPI heads that
	// evaluate several policy vectors at once: entry n holds the
	// [A, C] SF matrix (resp. [A] value vector) under policy n.
	PolicySFs []*mat.Dense
	PolicyQ   []*mat.VecDense
}

// ModelOutput is the result of applying the learned transition model
// for one action.
type ModelOutput struct {
	// State is the predicted next latent state
	State *mat.VecDense

	// StateFeatureLogits parameterize the predicted state features. If
	// the network models features as independent binary indicators,
	// these are Bernoulli logits; otherwise they are the features
	// themselves.
	StateFeatureLogits *mat.VecDense

	// StateFeatures is the predicted state-feature vector
	StateFeatures *mat.VecDense

	// ActionMaskLogits predict per-action availability in the next
	// state. Nil when action-mask modelling is disabled.
	ActionMaskLogits *mat.VecDense

	// ActionMask is the binarized availability prediction
	ActionMask []float64
}

// Network evaluates successor features and the learned transition
// model under a supplied parameter set. Implementations must not
// retain state between calls: the same (params, key, inputs) always
// produces the same outputs.
type Network interface {
	// ComputeSFs evaluates successor features at a latent state under
	// a policy (task) vector, returning the [A, C] SF matrix and the
	// task-weighted action values.
	ComputeSFs(params Params, key randkey.Key, state mat.Vector,
		task mat.Vector) Predictions

	// ApplyModel applies the learned transition model once, returning
	// the model's predictions and the next latent state.
	ApplyModel(params Params, key randkey.Key, state mat.Vector,
		action int) (ModelOutput, *mat.VecDense)

	// NumActions returns the size of the action set A
	NumActions() int

	// CumulantDim returns the state-feature dimension C
	CumulantDim() int
}
