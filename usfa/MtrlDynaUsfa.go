package usfa

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/wcarvalho/neurorl/randkey"
	"github.com/wcarvalho/neurorl/sfnet"
	"github.com/wcarvalho/neurorl/trajectory"
	"github.com/wcarvalho/neurorl/utils/floatutils"
)

// MtrlDynaUsfaLoss is the top-level successor-feature loss: an on-task
// TD loss along the real trajectory, a Dyna loss over imagined one-step
// transitions under sampled tasks and actions, and a multi-step model
// loss, combined with independent coefficients. A coefficient <= 0
// skips its term entirely.
//
// The loss is a pure function of (data, online and target predictions,
// parameters, key): it never mutates its inputs and holds no state
// between calls.
type MtrlDynaUsfaLoss struct {
	config   Config
	net      sfnet.Network
	td       SFTDError
	combiner TaskWeightedSFLoss
}

// NewMtrlDynaUsfaLoss validates config and creates the loss
func NewMtrlDynaUsfaLoss(net sfnet.Network, config Config) (*MtrlDynaUsfaLoss,
	error) {
	if net == nil {
		return nil, fmt.Errorf("newmtrldynausfaloss: no network given")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("newmtrldynausfaloss: %v", err)
	}

	td, err := NewSFTDError(config.BootstrapN, config.LossFn)
	if err != nil {
		return nil, fmt.Errorf("newmtrldynausfaloss: %v", err)
	}
	combiner, err := NewTaskWeightedSFLoss(config.Weight, config.Combination,
		config.SumCumulants)
	if err != nil {
		return nil, fmt.Errorf("newmtrldynausfaloss: %v", err)
	}

	return &MtrlDynaUsfaLoss{
		config:   config,
		net:      net,
		td:       td,
		combiner: combiner,
	}, nil
}

// Compute evaluates the combined loss on a [T, B] trajectory window.
// online and target hold the network's predictions along the real
// trajectory under the online and target parameters, indexed [t][b].
//
// It returns the [T, B] on-task TD error (zero-padded at the final
// step, the shape replay prioritization expects), the [B] per-element
// total loss, and a flat metrics mapping with keys namespaced per term.
func (l *MtrlDynaUsfaLoss) Compute(data *trajectory.Batch,
	online, target [][]sfnet.Predictions, params,
	targetParams sfnet.Params, key randkey.Key) (*mat.Dense, *mat.VecDense,
	map[string]float64, error) {

	t, b := data.Dims()
	if err := checkPredictions(online, t, b); err != nil {
		return nil, nil, nil, fmt.Errorf("compute: online %v", err)
	}
	if err := checkPredictions(target, t, b); err != nil {
		return nil, nil, nil, fmt.Errorf("compute: target %v", err)
	}

	metrics := make(map[string]float64)
	totalTDError := mat.NewDense(t, b, nil)
	totalLoss := mat.NewVecDense(b, nil)

	// Ones for all timesteps except terminal
	episodeMask := data.EpisodeMask(false)

	if l.config.DynaCoeff > 0 {
		key2, dynaKey := key.Next()
		key = key2

		_, dynaLoss, dynaMetrics, err := l.dynaLoss(data, online, target,
			params, targetParams, episodeMask, dynaKey)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("compute: %v", err)
		}

		dynaBatchLoss := trajectory.EpisodeMean(dynaLoss, episodeMask)
		for j := 0; j < b; j++ {
			totalLoss.SetVec(j, totalLoss.AtVec(j)+
				l.config.DynaCoeff*dynaBatchLoss.AtVec(j))
		}
		for name, value := range dynaMetrics {
			metrics["2.dyna."+name] = value
		}
	}

	if l.config.TaskCoeff > 0 {
		ontaskTDError, ontaskLoss, ontaskMetrics := l.ontaskLoss(data,
			online, target, episodeMask)

		// [T-1, B] --> [T, B]: the final step has no next step to
		// bootstrap from
		for i := 0; i < t-1; i++ {
			for j := 0; j < b; j++ {
				totalTDError.Set(i, j, totalTDError.At(i, j)+
					l.config.TaskCoeff*ontaskTDError.At(i, j))
			}
		}
		for j := 0; j < b; j++ {
			totalLoss.SetVec(j, totalLoss.AtVec(j)+
				l.config.TaskCoeff*ontaskLoss.AtVec(j))
		}
		for name, value := range ontaskMetrics {
			metrics["1.online."+name] = value
		}
	}

	if l.config.ModelCoeff > 0 {
		if l.config.SimulationSteps >= t {
			return nil, nil, nil, fmt.Errorf("compute: simulation steps "+
				"must be < window length \n\twant(<%v)\n\thave(%v)", t,
				l.config.SimulationSteps)
		}
		key2, modelKey := key.Next()
		key = key2

		modelLoss, modelMetrics, err := l.modelLoss(data, online, target,
			params, episodeMask, modelKey)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("compute: %v", err)
		}

		for j := 0; j < b; j++ {
			totalLoss.SetVec(j, totalLoss.AtVec(j)+
				l.config.ModelCoeff*modelLoss.AtVec(j))
		}
		for name, value := range modelMetrics {
			metrics["3.model."+name] = value
		}
	}

	metrics["0.total_loss"] = meanVec(totalLoss)

	return totalTDError, totalLoss, metrics, nil
}

// ontaskLoss computes the TD loss along the real trajectory, comparing
// online predictions at step t against bootstrapped targets at step
// t+1. Returns the [T-1, B] TD error averaged over cumulants, the [B]
// masked time-mean loss, and metrics.
func (l *MtrlDynaUsfaLoss) ontaskLoss(data *trajectory.Batch,
	online, target [][]sfnet.Predictions,
	episodeMask *mat.Dense) (*mat.Dense, *mat.VecDense, map[string]float64) {

	t, b := data.Dims()
	cumulantDim := data.CumulantDim()
	seqLen := t - 1

	tdMean := mat.NewDense(seqLen, b, nil)
	lossMat := mat.NewDense(seqLen, b, nil)

	var weightedSum, unweightedSum, tdAbsSum, cumulantSum float64
	var sfSum, sfSquareSum float64
	var sfCount int

	onlineSF := make([]*mat.Dense, seqLen)
	targetSF := make([]*mat.Dense, seqLen)
	actions := make([]int, seqLen)
	discounts := make([]float64, seqLen)
	lambdas := make([]float64, seqLen)
	selector := make([]int, seqLen)
	cumulants := mat.NewDense(seqLen, cumulantDim, nil)

	for j := 0; j < b; j++ {
		for i := 0; i < seqLen; i++ {
			// SFs are zeroed past episode termination before the TD
			// computation
			onlineSF[i] = scaleSF(online[i][j].SF, episodeMask.At(i, j))
			targetSF[i] = scaleSF(target[i+1][j].SF, episodeMask.At(i+1, j))
			actions[i] = data.Action(i, j)
			discounts[i] = data.Discount(i, j) * l.config.Discount
			lambdas[i] = data.Discount(i, j) * l.config.Lambda
			selector[i] = argmax(online[i+1][j].QValues)
			for c := 0; c < cumulantDim; c++ {
				cumulants.Set(i, c, data.CumulantAt(i, j, c))
				cumulantSum += data.CumulantAt(i, j, c)
			}
		}

		tdErrors := l.td.Compute(onlineSF, actions, cumulants, discounts,
			targetSF, lambdas, selector)

		for i := 0; i < seqLen; i++ {
			weighted, unweighted := l.combiner.Compute(
				tdErrors.RowView(i), data.Task(i, j))
			lossMat.Set(i, j, weighted*l.config.WeightedCoeff+
				unweighted*l.config.UnweightedCoeff)
			weightedSum += weighted
			unweightedSum += unweighted

			var rowMean float64
			for c := 0; c < cumulantDim; c++ {
				rowMean += tdErrors.At(i, c)
			}
			rowMean /= float64(cumulantDim)
			tdMean.Set(i, j, rowMean)
			tdAbsSum += math.Abs(rowMean)
		}

		// SF statistics are taken over the same mask-scaled SFs the TD
		// computation sees
		for i := 0; i < t; i++ {
			sf := online[i][j].SF
			m := episodeMask.At(i, j)
			r, c := sf.Dims()
			for a := 0; a < r; a++ {
				for k := 0; k < c; k++ {
					v := sf.At(a, k) * m
					sfSum += v
					sfSquareSum += v * v
					sfCount++
				}
			}
		}
	}

	maskHead := episodeMask.Slice(0, seqLen, 0, b).(*mat.Dense)
	batchLoss := trajectory.EpisodeMean(lossMat, maskHead)

	n := float64(seqLen * b)
	sfMean := sfSum / float64(sfCount)
	metrics := map[string]float64{
		"0.total_loss":         meanVec(batchLoss),
		"1.task_weighted_loss": weightedSum / n,
		"1.unweighted_loss":    unweightedSum / n,
		"2.td_error":           tdAbsSum / n,
		"3.cumulants":          cumulantSum / (n * float64(cumulantDim)),
		"3.sf_mean":            sfMean,
		"3.sf_var":             sfSquareSum/float64(sfCount) - sfMean*sfMean,
	}

	return tdMean, batchLoss, metrics
}

// checkPredictions verifies a [T][B] prediction grid has the window's
// shape
func checkPredictions(preds [][]sfnet.Predictions, t, b int) error {
	if len(preds) != t {
		return fmt.Errorf("predictions \n\twant(%v timesteps)"+
			"\n\thave(%v)", t, len(preds))
	}
	for i := range preds {
		if len(preds[i]) != b {
			return fmt.Errorf("predictions \n\twant(%v batch elements)"+
				"\n\thave(%v)", b, len(preds[i]))
		}
	}
	return nil
}

// scaleSF returns a copy of sf with every entry scaled by weight
func scaleSF(sf *mat.Dense, weight float64) *mat.Dense {
	out := mat.DenseCopyOf(sf)
	out.Scale(weight, sf)
	return out
}

// argmax returns the first maximizing index of v
func argmax(v *mat.VecDense) int {
	_, indices := floatutils.MaxSlice(v.RawVector().Data)
	return indices[0]
}

// meanVec returns the mean of a vector's entries
func meanVec(v *mat.VecDense) float64 {
	return floats.Sum(v.RawVector().Data) / float64(v.Len())
}
