package usfa

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// TDKind selects the temporal-difference target used for
// successor-feature learning.
type TDKind int

const (
	// QLearning uses n-step double-Q bootstrapped targets
	QLearning TDKind = iota

	// QLambda uses λ-return targets
	QLambda
)

func (k TDKind) String() string {
	switch k {
	case QLearning:
		return "qlearning"
	case QLambda:
		return "qlambda"
	default:
		return fmt.Sprintf("TDKind(%d)", int(k))
	}
}

// SFTDError computes per-cumulant temporal-difference errors for
// successor features. The same engine serves both n-step Q-learning
// and λ-return targets; each cumulant dimension is treated as an
// independent scalar value-learning problem sharing the action and
// selector sequences.
type SFTDError struct {
	// BootstrapN is the n-step horizon for QLearning targets
	BootstrapN int

	// Kind selects the target computation
	Kind TDKind
}

// NewSFTDError validates the configuration and returns the engine
func NewSFTDError(bootstrapN int, kind TDKind) (SFTDError, error) {
	if bootstrapN < 1 {
		return SFTDError{}, fmt.Errorf("newsftderror: bootstrapN must be "+
			">= 1 \n\thave(%v)", bootstrapN)
	}
	if kind != QLearning && kind != QLambda {
		return SFTDError{}, fmt.Errorf("newsftderror: unsupported loss "+
			"fn %v", kind)
	}
	return SFTDError{BootstrapN: bootstrapN, Kind: kind}, nil
}

// Compute returns the [T, C] TD error for one batch element.
//
//	onlineSF[t]   [A, C] online successor features at step t
//	actions[t]    action taken at step t
//	cumulants     [T, C] per-step state features
//	discounts[t]  ℽ-scaled discount of transition t
//	targetSF[t]   [A, C] bootstrap successor features (step t+1 of the
//	              trajectory, target parameters)
//	lambdas[t]    per-step λ schedule, only read in QLambda mode
//	selector[t]   double-Q selector action (argmax of online Q at the
//	              bootstrap step)
//
// Post-terminal positions are not treated specially here; the caller
// owns masking.
func (e SFTDError) Compute(onlineSF []*mat.Dense, actions []int,
	cumulants *mat.Dense, discounts []float64, targetSF []*mat.Dense,
	lambdas []float64, selector []int) *mat.Dense {

	seqLen := len(onlineSF)
	if len(actions) != seqLen || len(discounts) != seqLen ||
		len(targetSF) != seqLen || len(selector) != seqLen {
		panic(fmt.Sprintf("sftderror: sequence lengths must agree "+
			"\n\thave(sf=%v actions=%v discounts=%v target=%v selector=%v)",
			seqLen, len(actions), len(discounts), len(targetSF),
			len(selector)))
	}
	cumT, cumulantDim := cumulants.Dims()
	if cumT != seqLen {
		panic(fmt.Sprintf("sftderror: cumulant rows \n\twant(%v)"+
			"\n\thave(%v)", seqLen, cumT))
	}

	tdErrors := mat.NewDense(seqLen, cumulantDim, nil)

	// One scalar TD problem per cumulant dimension
	rewards := make([]float64, seqLen)
	values := make([]float64, seqLen)
	for c := 0; c < cumulantDim; c++ {
		for t := 0; t < seqLen; t++ {
			rewards[t] = cumulants.At(t, c)
			values[t] = targetSF[t].At(selector[t], c)
		}

		var targets []float64
		switch e.Kind {
		case QLearning:
			targets = nStepBootstrappedReturns(rewards, discounts, values,
				e.BootstrapN)
		case QLambda:
			targets = lambdaReturns(rewards, discounts, values, lambdas)
		default:
			panic(fmt.Sprintf("sftderror: unsupported loss fn %v", e.Kind))
		}

		for t := 0; t < seqLen; t++ {
			tdErrors.Set(t, c, targets[t]-onlineSF[t].At(actions[t], c))
		}
	}
	return tdErrors
}

// oneStepSFTD computes the one-step double-Q successor-feature TD
// error used by the Dyna loss:
//
//	td[c] = φ'[c] + ℽ · targetNextSF[argmax q', c] - sf[action, c]
//
// All "next" quantities are treated as constants (no gradient flows
// through them when the error is consumed by a learner).
func oneStepSFTD(sf *mat.Dense, action int, nextFeatures mat.Vector,
	targetNextSF *mat.Dense, discount float64,
	nextQValues mat.Vector) *mat.VecDense {

	_, cumulantDim := sf.Dims()

	// Double-Q: select with the online values, evaluate with the
	// target successor features
	selector, best := 0, nextQValues.AtVec(0)
	for a := 1; a < nextQValues.Len(); a++ {
		if v := nextQValues.AtVec(a); v > best {
			selector, best = a, v
		}
	}

	td := mat.NewVecDense(cumulantDim, nil)
	for c := 0; c < cumulantDim; c++ {
		target := nextFeatures.AtVec(c) +
			discount*targetNextSF.At(selector, c)
		td.SetVec(c, target-sf.At(action, c))
	}
	return td
}
