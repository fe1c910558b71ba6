package sfnet

import (
	"gonum.org/v1/gonum/mat"
)

// largeNegative replaces the value of unavailable actions so they can
// never win an argmax.
const largeNegative = -1e7

// MaskPredictions returns a copy of p with unavailable actions
// suppressed: their Q-values are pushed to a large negative constant
// and their successor-feature rows zeroed. The mask has one entry per
// action; nonzero means available.
func MaskPredictions(p Predictions, actionMask []float64) Predictions {
	if actionMask == nil {
		return p
	}

	numActions, cumulantDim := p.SF.Dims()
	if len(actionMask) != numActions {
		panic("maskpredictions: mask length does not match action count")
	}

	sf := mat.DenseCopyOf(p.SF)
	q := mat.VecDenseCopyOf(p.QValues)
	for a := 0; a < numActions; a++ {
		if actionMask[a] != 0 {
			continue
		}
		q.SetVec(a, largeNegative)
		for c := 0; c < cumulantDim; c++ {
			sf.Set(a, c, 0.0)
		}
	}

	masked := p
	masked.SF = sf
	masked.QValues = q
	masked.ActionMask = actionMask
	return masked
}
