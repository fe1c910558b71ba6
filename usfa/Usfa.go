package usfa

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/wcarvalho/neurorl/sfnet"
	"github.com/wcarvalho/neurorl/trajectory"
)

// UsfaLoss is the plain universal successor-feature loss: n-step
// double-Q SF TD learning along the real trajectory, applied under
// every policy vector the network evaluated. It is the model-free
// counterpart of MtrlDynaUsfaLoss and needs no transition model.
type UsfaLoss struct {
	discount float64
	maskLoss bool
	td       SFTDError
}

// NewUsfaLoss creates the loss. With maskLoss the per-element loss is a
// masked time mean; otherwise a plain mean over all steps.
func NewUsfaLoss(discount float64, bootstrapN int, maskLoss bool) (*UsfaLoss,
	error) {
	if discount < 0 || discount > 1 {
		return nil, fmt.Errorf("newusfaloss: discount must be in [0, 1] "+
			"\n\thave(%v)", discount)
	}
	td, err := NewSFTDError(bootstrapN, QLearning)
	if err != nil {
		return nil, fmt.Errorf("newusfaloss: %v", err)
	}
	return &UsfaLoss{discount: discount, maskLoss: maskLoss, td: td}, nil
}

// Compute evaluates the loss on a [T, B] window. Predictions that carry
// several policies (GPI heads) contribute one TD error per policy;
// otherwise the single task policy is used. Returns the [T-1, B] TD
// error averaged over policies and cumulants, the [B] loss, and
// metrics.
func (l *UsfaLoss) Compute(data *trajectory.Batch,
	online, target [][]sfnet.Predictions) (*mat.Dense, *mat.VecDense,
	map[string]float64, error) {

	t, b := data.Dims()
	if err := checkPredictions(online, t, b); err != nil {
		return nil, nil, nil, fmt.Errorf("compute: online %v", err)
	}
	if err := checkPredictions(target, t, b); err != nil {
		return nil, nil, nil, fmt.Errorf("compute: target %v", err)
	}

	cumulantDim := data.CumulantDim()
	seqLen := t - 1

	tdMean := mat.NewDense(seqLen, b, nil)
	squaredMean := mat.NewDense(seqLen, b, nil)

	var cumulantSum, cumulantRewardSum, rewardErrSum float64
	var sfSum, sfSquareSum float64
	sfMax, sfMin := math.Inf(-1), math.Inf(1)
	var sfCount int

	actions := make([]int, seqLen)
	discounts := make([]float64, seqLen)
	lambdas := make([]float64, seqLen)
	selector := make([]int, seqLen)
	cumulants := mat.NewDense(seqLen, cumulantDim, nil)
	onlineSF := make([]*mat.Dense, seqLen)
	targetSF := make([]*mat.Dense, seqLen)

	for j := 0; j < b; j++ {
		numPolicies := len(policySFs(online[0][j]))

		for i := 0; i < seqLen; i++ {
			actions[i] = data.Action(i, j)
			discounts[i] = data.Discount(i, j) * l.discount
			for c := 0; c < cumulantDim; c++ {
				cumulants.Set(i, c, data.CumulantAt(i, j, c))
				cumulantSum += data.CumulantAt(i, j, c)
			}
		}

		for n := 0; n < numPolicies; n++ {
			for i := 0; i < seqLen; i++ {
				onlineSF[i] = policySFs(online[i][j])[n]
				targetSF[i] = policySFs(target[i+1][j])[n]
				selector[i] = argmax(policyQ(online[i+1][j])[n])
			}

			tdErrors := l.td.Compute(onlineSF, actions, cumulants,
				discounts, targetSF, lambdas, selector)

			for i := 0; i < seqLen; i++ {
				for c := 0; c < cumulantDim; c++ {
					e := tdErrors.At(i, c)
					tdMean.Set(i, j, tdMean.At(i, j)+e)
					squaredMean.Set(i, j, squaredMean.At(i, j)+0.5*e*e)
				}
			}
		}

		scale := 1.0 / float64(numPolicies*cumulantDim)
		for i := 0; i < seqLen; i++ {
			tdMean.Set(i, j, tdMean.At(i, j)*scale)
			squaredMean.Set(i, j, squaredMean.At(i, j)*scale)
		}

		for i := 0; i < t; i++ {
			for _, sf := range policySFs(online[i][j]) {
				r, c := sf.Dims()
				for a := 0; a < r; a++ {
					for k := 0; k < c; k++ {
						v := sf.At(a, k)
						sfSum += v
						sfSquareSum += v * v
						sfMax = math.Max(sfMax, v)
						sfMin = math.Min(sfMin, v)
						sfCount++
					}
				}
			}

			if i < seqLen {
				cr := mat.Dot(data.Cumulants(i, j), data.Task(i, j))
				cumulantRewardSum += cr
				rewardErrSum += data.Reward(i, j) - cr
			}
		}
	}

	var batchLoss *mat.VecDense
	if l.maskLoss {
		episodeMask := data.EpisodeMask(false)
		maskHead := episodeMask.Slice(0, seqLen, 0, b).(*mat.Dense)
		batchLoss = trajectory.EpisodeMean(squaredMean, maskHead)
	} else {
		batchLoss = mat.NewVecDense(b, nil)
		for j := 0; j < b; j++ {
			var sum float64
			for i := 0; i < seqLen; i++ {
				sum += squaredMean.At(i, j)
			}
			batchLoss.SetVec(j, sum/float64(seqLen))
		}
	}

	n := float64(seqLen * b)
	sfMean := sfSum / float64(sfCount)
	metrics := map[string]float64{
		"0.loss_Sf":         meanVec(batchLoss),
		"2.cumulants":       cumulantSum / (n * float64(cumulantDim)),
		"2.cumulant_reward": cumulantRewardSum / n,
		"2.reward_error":    rewardErrSum / n,
		"2.sf_mean":         sfMean,
		"2.sf_var":          sfSquareSum/float64(sfCount) - sfMean*sfMean,
		"2.sf_max":          sfMax,
		"2.sf_min":          sfMin,
	}

	return tdMean, batchLoss, metrics, nil
}

// policySFs returns the per-policy SF matrices of a prediction, falling
// back to the single task policy when the head evaluated no extra
// policies.
func policySFs(p sfnet.Predictions) []*mat.Dense {
	if len(p.PolicySFs) > 0 {
		return p.PolicySFs
	}
	return []*mat.Dense{p.SF}
}

// policyQ is policySFs for the per-policy value vectors
func policyQ(p sfnet.Predictions) []*mat.VecDense {
	if len(p.PolicyQ) > 0 {
		return p.PolicyQ
	}
	return []*mat.VecDense{p.QValues}
}
