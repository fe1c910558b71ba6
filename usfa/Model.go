package usfa

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/wcarvalho/neurorl/randkey"
	"github.com/wcarvalho/neurorl/sfnet"
	"github.com/wcarvalho/neurorl/trajectory"
)

// modelLoss trains the learned transition model to predict several
// steps ahead and the successor features to stay consistent along
// model-imagined rollouts. From every valid start step the model is
// unrolled simulationSteps steps with the actions actually taken in the
// environment, and the predictions are supervised against
// rolling-window ground-truth targets.
func (l *MtrlDynaUsfaLoss) modelLoss(data *trajectory.Batch,
	online, target [][]sfnet.Predictions, params sfnet.Params,
	episodeMask *mat.Dense, key randkey.Key) (*mat.VecDense,
	map[string]float64, error) {

	t, b := data.Dims()
	cumulantDim := data.CumulantDim()
	k := l.config.SimulationSteps
	starts := t - k

	batchLoss := mat.NewVecDense(b, nil)
	var featureSum, sfSum, actionSum float64

	var includeMask *mat.Dense
	if l.config.ActionMask {
		includeMask = data.EpisodeMask(true)
	}

	key, elemKeys := key.Split(b)
	for j := 0; j < b; j++ {
		elemKey := elemKeys[j]

		discounts := make([]float64, t)
		for i := 0; i < t; i++ {
			discounts[i] = data.Discount(i, j) * l.config.Discount
		}

		// Ground-truth state features of the transitions leaving steps
		// 0..T-2; the final cumulant row is padding
		stateFeatures := make([][]float64, t-1)
		for i := 0; i < t-1; i++ {
			row := make([]float64, cumulantDim)
			for c := 0; c < cumulantDim; c++ {
				row[c] = data.CumulantAt(i, j, c)
			}
			stateFeatures[i] = row
		}

		maskT := make([]float64, t-1)
		for i := 0; i < t-1; i++ {
			maskT[i] = episodeMask.At(i, j)
		}

		featuresMask := make([][]float64, t-1)
		for i := 0; i < t-1; i++ {
			row := make([]float64, cumulantDim)
			for c := 0; c < cumulantDim; c++ {
				row[c] = maskT[i]
			}
			featuresMask[i] = row
		}
		if l.config.MaskZeroFeatures > 0 {
			// Drop a proportion of the all-zero feature entries to
			// counter class imbalance
			elemKey2, maskKey := elemKey.Next()
			elemKey = elemKey2
			zeroMask := zeroEntriesMask(stateFeatures, maskKey,
				1.0-l.config.MaskZeroFeatures)
			for i := range featuresMask {
				for c := range featuresMask[i] {
					featuresMask[i][c] *= zeroMask[i][c]
				}
			}
		}

		// Bootstrapped SF targets over the real trajectory, evaluated
		// with the target network at the greedy action, then shifted one
		// step since the model predicts from t+1 onwards
		targetNetSF := make([][]float64, t)
		for i := 0; i < t; i++ {
			selector := argmax(online[i][j].QValues)
			row := make([]float64, cumulantDim)
			for c := 0; c < cumulantDim; c++ {
				row[c] = target[i][j].SF.At(selector, c)
			}
			targetNetSF[i] = row
		}

		sfTargets := make([][]float64, t-1)
		for i := range sfTargets {
			sfTargets[i] = make([]float64, cumulantDim)
		}
		rewards := make([]float64, t-1)
		values := make([]float64, t-1)
		for c := 0; c < cumulantDim; c++ {
			for i := 0; i < t-1; i++ {
				rewards[i] = stateFeatures[i][c]
				values[i] = targetNetSF[i+1][c]
			}
			returns := nStepBootstrappedReturns(rewards, discounts[:t-1],
				values, l.config.BootstrapN)
			for i := 0; i < t-1; i++ {
				sfTargets[i][c] = returns[i]
			}
		}
		shifted := make([][]float64, t-1)
		copy(shifted, sfTargets[1:])
		shifted[t-2] = make([]float64, cumulantDim)
		sfTargets = shifted

		numSFTargets := t - 2
		sfMask := make([]float64, t-1)
		for i := 1; i < numSFTargets; i++ {
			sfMask[i-1] = episodeMask.At(i, j)
		}

		// Rolling windows over the T-1 valid transitions give T-k
		// length-k targets
		modelActions := make([]int, t-1)
		nextActions := make([]int, t-1)
		for i := 0; i < t-1; i++ {
			modelActions[i] = data.Action(i, j)
			nextActions[i] = data.Action(i+1, j)
		}
		modelActionsRolled := trajectory.RollingWindowInts(modelActions, k)
		nextActionsRolled := trajectory.RollingWindowInts(nextActions, k)
		featuresTargetRolled := trajectory.RollingWindowVecs(stateFeatures, k)
		featuresMaskRolled := trajectory.RollingWindowVecs(featuresMask, k)
		sfTargetsRolled := trajectory.RollingWindowVecs(sfTargets, k)

		featureLoss := make([]float64, starts)
		sfLoss := make([]float64, starts)
		actionLoss := make([]float64, starts)

		elemKey, startKeys := elemKey.Split(starts)
		for s := 0; s < starts; s++ {
			startKey := startKeys[s]

			// Unroll the model with the real action sequence
			outputs := make([]sfnet.ModelOutput, k)
			state := mat.Vector(online[s][j].State)
			for i := 0; i < k; i++ {
				startKey2, modelKey := startKey.Next()
				startKey = startKey2
				out, next := l.net.ApplyModel(params, modelKey, state,
					modelActionsRolled[s][i])
				outputs[i] = out
				state = next
			}

			perStepFeature := make([]float64, k)
			perStepFeatureMask := make([]float64, k)
			perStepSF := make([]float64, k)
			perStepAction := make([]float64, k)
			perStepActionMask := make([]float64, k)

			for i := 0; i < k; i++ {
				// Model predictions at unroll step i describe real step
				// s+1+i
				step := s + 1 + i

				featureErrs := make([]float64, cumulantDim)
				for c := 0; c < cumulantDim; c++ {
					logit := outputs[i].StateFeatureLogits.AtVec(c)
					targetValue := featuresTargetRolled[s][i][c]
					if l.config.BinaryFeatureLoss {
						featureErrs[c] = bceWithLogit(logit, targetValue)
					} else {
						diff := logit - targetValue
						featureErrs[c] = 0.5 * diff * diff
					}
				}
				perStepFeature[i] = trajectory.EpisodeMeanVec(featureErrs,
					featuresMaskRolled[s][i])
				var maskOn float64
				for c := 0; c < cumulantDim; c++ {
					maskOn += featuresMaskRolled[s][i][c]
				}
				if maskOn > 0 {
					perStepFeatureMask[i] = 1.0
				}

				startKey2, sfKey := startKey.Next()
				startKey = startKey2
				preds := l.net.ComputeSFs(params, sfKey, outputs[i].State,
					online[step][j].Task)
				if l.config.ActionMask {
					preds = sfnet.MaskPredictions(preds,
						data.ActionMask(step, j))
				}

				td := mat.NewVecDense(cumulantDim, nil)
				for c := 0; c < cumulantDim; c++ {
					td.SetVec(c, sfTargetsRolled[s][i][c]-
						preds.SF.At(nextActionsRolled[s][i], c))
				}
				weighted, unweighted := l.combiner.Compute(td,
					online[step][j].Task)
				perStepSF[i] = weighted*l.config.WeightedCoeff +
					unweighted*l.config.UnweightedCoeff

				if l.config.ActionMask {
					truth := data.ActionMask(step, j)
					logits := outputs[i].ActionMaskLogits
					var bce float64
					for a := 0; a < data.NumActions(); a++ {
						bce += bceWithLogit(logits.AtVec(a), truth[a])
					}
					perStepAction[i] = bce / float64(data.NumActions())
					perStepActionMask[i] = includeMask.At(step, j)
				}
			}

			featureLoss[s] = trajectory.EpisodeMeanVec(perStepFeature,
				perStepFeatureMask)
			var sfMean float64
			for i := 0; i < k; i++ {
				sfMean += perStepSF[i]
			}
			sfLoss[s] = sfMean / float64(k)
			if l.config.ActionMask {
				actionLoss[s] = trajectory.EpisodeMeanVec(perStepAction,
					perStepActionMask)
			}
		}

		featureElem := trajectory.EpisodeMeanVec(featureLoss, maskT[:starts])
		sfElem := trajectory.EpisodeMeanVec(sfLoss, sfMask[:starts])
		var actionElem float64
		if l.config.ActionMask {
			includeT := make([]float64, starts)
			for i := 0; i < starts; i++ {
				includeT[i] = includeMask.At(i, j)
			}
			actionElem = trajectory.EpisodeMeanVec(actionLoss, includeT)
		}

		batchLoss.SetVec(j,
			featureElem*l.config.FeatureCoeff*l.config.CatCoeff+
				sfElem*l.config.ModelSFCoeff+
				actionElem*l.config.ActionCoeff*l.config.CatCoeff)

		featureSum += featureElem
		sfSum += sfElem
		actionSum += actionElem
	}

	metrics := map[string]float64{
		"0.feature_loss":     featureSum / float64(b),
		"0.sf_loss":          sfSum / float64(b),
		"1.action_mask_loss": actionSum / float64(b),
	}

	return batchLoss, metrics, nil
}

// zeroEntriesMask builds a per-entry keep mask for the feature loss:
// nonzero entries are always kept, zero entries survive with the given
// keep probability.
func zeroEntriesMask(x [][]float64, key randkey.Key,
	keepProb float64) [][]float64 {
	const eps = 1e-5

	out := make([][]float64, len(x))
	for i := range x {
		row := make([]float64, len(x[i]))
		for c := range x[i] {
			if x[i][c] > 0 {
				row[c] += 1.0
			}
			if math.Abs(x[i][c]) < eps {
				bern := distuv.Bernoulli{P: keepProb, Src: key.Rand()}
				row[c] += bern.Rand()
			}
		}
		out[i] = row
	}
	return out
}

// bceWithLogit is the binary cross-entropy of a Bernoulli logit against
// a {0, 1} target, computed stably as softplus(logit) - target*logit.
func bceWithLogit(logit, target float64) float64 {
	softplus := math.Log1p(math.Exp(-math.Abs(logit)))
	if logit > 0 {
		softplus += logit
	}
	return softplus - target*logit
}
