package usfa

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// WeightKind selects how per-cumulant loss weights are derived from
// the task vector.
type WeightKind int

const (
	// WeightReg uses the task values as weights unchanged
	WeightReg WeightKind = iota

	// WeightMag uses the absolute task values
	WeightMag

	// WeightIndicator weights only the dimensions the task ignores:
	// 1 where |task| < 1e-5, else 0
	WeightIndicator
)

func (k WeightKind) String() string {
	switch k {
	case WeightReg:
		return "reg"
	case WeightMag:
		return "mag"
	case WeightIndicator:
		return "indicator"
	default:
		return fmt.Sprintf("WeightKind(%d)", int(k))
	}
}

// CombinationKind selects where the task weights enter the loss.
type CombinationKind int

const (
	// CombineTD weights the TD error before squaring
	CombineTD CombinationKind = iota

	// CombineLoss squares each per-cumulant error first, then weights
	CombineLoss
)

func (k CombinationKind) String() string {
	switch k {
	case CombineTD:
		return "td"
	case CombineLoss:
		return "loss"
	default:
		return fmt.Sprintf("CombinationKind(%d)", int(k))
	}
}

// TaskWeightedSFLoss converts a vector TD error into two scalars: a
// loss weighted by the active task vector, which pushes gradient
// emphasis towards the cumulants the task cares about, and an
// unweighted loss that regularizes the remaining dimensions so the
// representation does not collapse onto the task.
type TaskWeightedSFLoss struct {
	Weight      WeightKind
	Combination CombinationKind

	// SumCumulants sums the TD error across cumulants for the
	// unweighted loss; otherwise it averages
	SumCumulants bool
}

// NewTaskWeightedSFLoss validates the configuration
func NewTaskWeightedSFLoss(weight WeightKind, combination CombinationKind,
	sumCumulants bool) (TaskWeightedSFLoss, error) {
	switch weight {
	case WeightReg, WeightMag, WeightIndicator:
	default:
		return TaskWeightedSFLoss{}, fmt.Errorf("newtaskweightedsfloss: "+
			"unsupported weight type %v", weight)
	}
	switch combination {
	case CombineTD, CombineLoss:
	default:
		return TaskWeightedSFLoss{}, fmt.Errorf("newtaskweightedsfloss: "+
			"unsupported combination %v", combination)
	}
	return TaskWeightedSFLoss{
		Weight:       weight,
		Combination:  combination,
		SumCumulants: sumCumulants,
	}, nil
}

// Compute returns the task-weighted and unweighted losses for a single
// TD error vector. Both use the squared-error loss 0.5·x².
func (l TaskWeightedSFLoss) Compute(tdError mat.Vector,
	task mat.Vector) (weighted, unweighted float64) {
	if tdError.Len() != task.Len() {
		panic(fmt.Sprintf("taskweightedsfloss: dimension "+
			"\n\twant(%v)\n\thave(%v)", task.Len(), tdError.Len()))
	}

	halfSquare := func(x float64) float64 { return 0.5 * x * x }

	weightAt := func(c int) float64 {
		w := task.AtVec(c)
		switch l.Weight {
		case WeightMag:
			return math.Abs(w)
		case WeightReg:
			return w
		case WeightIndicator:
			if math.Abs(w) < 1e-5 {
				return 1.0
			}
			return 0.0
		default:
			panic(fmt.Sprintf("taskweightedsfloss: unsupported weight "+
				"type %v", l.Weight))
		}
	}

	switch l.Combination {
	case CombineTD:
		// Weight the TD errors, then apply the loss to their sum
		var weightedTD float64
		for c := 0; c < tdError.Len(); c++ {
			weightedTD += tdError.AtVec(c) * weightAt(c)
		}
		weighted = halfSquare(weightedTD)
	case CombineLoss:
		// Apply the loss per cumulant, then weight
		for c := 0; c < tdError.Len(); c++ {
			weighted += halfSquare(tdError.AtVec(c)) * weightAt(c)
		}
	default:
		panic(fmt.Sprintf("taskweightedsfloss: unsupported combination %v",
			l.Combination))
	}

	var pooled float64
	for c := 0; c < tdError.Len(); c++ {
		pooled += tdError.AtVec(c)
	}
	if !l.SumCumulants {
		pooled /= float64(tdError.Len())
	}
	unweighted = halfSquare(pooled)

	return weighted, unweighted
}
