package usfa

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/wcarvalho/neurorl/randkey"
	"github.com/wcarvalho/neurorl/sfnet"
	"github.com/wcarvalho/neurorl/trajectory"
)

// dynaLoss computes the imagined-rollout loss: at every (t, b) it
// samples auxiliary tasks and actions, rolls the learned model one step
// forward from the real latent state, and applies one-step double-Q SF
// TD learning to the imagined transitions. This injects extra learning
// signal for off-task successor features without extra environment
// steps.
//
// Sampling counts are capped at what is available, never an error. The
// raw trajectory discounts are used; the caller owns masking via the
// returned [T, B] loss matrix.
func (l *MtrlDynaUsfaLoss) dynaLoss(data *trajectory.Batch,
	online, target [][]sfnet.Predictions, params,
	targetParams sfnet.Params, episodeMask *mat.Dense,
	key randkey.Key) (*mat.Dense, *mat.Dense, map[string]float64, error) {

	t, b := data.Dims()
	trainTasks := data.TrainTasks()
	if trainTasks == nil {
		return nil, nil, nil, fmt.Errorf("dynaloss: batch carries no " +
			"train tasks")
	}
	numTasks, _ := trainTasks.Dims()

	tdError := mat.NewDense(t, b, nil)
	lossMat := mat.NewDense(t, b, nil)

	var weightedSum, unweightedSum, tdAbsSum float64

	key, cellKeys := key.Split(t * b)
	for i := 0; i < t; i++ {
		for j := 0; j < b; j++ {
			cellKey := cellKeys[i*b+j]

			var actionMask []float64
			if l.config.ActionMask {
				actionMask = data.ActionMask(i, j)
				if actionMask == nil {
					return nil, nil, nil, fmt.Errorf("dynaloss: action " +
						"mask modelling enabled but batch carries no mask")
				}
			}

			cellKey, sampleKey := cellKey.Next()
			sampledTasks := randkey.SampleWithoutReplacement(sampleKey,
				numTasks, l.config.NTasksDyna)

			var tdSum float64
			var tdCount int
			var cellWeighted, cellUnweighted float64
			var cellCount int

			cellKey, taskKeys := cellKey.Split(len(sampledTasks))
			for m, taskIdx := range sampledTasks {
				task := trainTasks.RowView(taskIdx)

				taskKey, sfKey := taskKeys[m].Next()
				preds := l.net.ComputeSFs(params, sfKey,
					online[i][j].State, task)
				preds = sfnet.MaskPredictions(preds, actionMask)

				weighted, unweighted, tds := l.sfDynaTD(preds, task,
					online[i][j].State, target[i][j].State,
					data.Discount(i, j), params, targetParams, taskKey)

				cellWeighted += weighted
				cellUnweighted += unweighted
				cellCount++
				for _, td := range tds {
					tdSum += td
					tdCount++
				}
			}

			n := float64(cellCount)
			cellWeighted /= n
			cellUnweighted /= n
			lossMat.Set(i, j, cellWeighted*l.config.WeightedCoeff+
				cellUnweighted*l.config.UnweightedCoeff)
			tdError.Set(i, j, tdSum/float64(tdCount))

			weightedSum += cellWeighted
			unweightedSum += cellUnweighted
			tdAbsSum += math.Abs(tdError.At(i, j))
		}
	}

	cells := float64(t * b)
	metrics := map[string]float64{
		"0.total_loss":         meanDense(lossMat),
		"1.task_weighted_loss": weightedSum / cells,
		"1.unweighted_loss":    unweightedSum / cells,
		"2.td_error":           tdAbsSum / cells,
	}

	return tdError, lossMat, metrics, nil
}

// sfDynaTD runs the one-step Dyna backup for a single sampled task:
// sample candidate actions (always including the greedy one), apply the
// model once per candidate under both parameter sets, recompute SFs at
// the predicted next states, and accumulate the task-weighted loss over
// the candidates' TD errors. Returns the mean weighted and unweighted
// losses and the flattened TD errors.
func (l *MtrlDynaUsfaLoss) sfDynaTD(preds sfnet.Predictions,
	task mat.Vector, onlineState, targetState mat.Vector, discount float64,
	params, targetParams sfnet.Params,
	key randkey.Key) (weighted, unweighted float64, tds []float64) {

	numActions := l.net.NumActions()
	greedy := argmax(preds.QValues)

	key, sampleKey := key.Next()
	candidates := randkey.SampleWithoutReplacement(sampleKey, numActions,
		l.config.NActionsDyna)
	candidates = append(candidates, greedy)

	for _, action := range candidates {
		key2, modelKey := key.Next()
		key3, targetModelKey := key2.Next()
		key4, sfKey := key3.Next()
		key5, targetSFKey := key4.Next()
		key = key5

		modelOut, _ := l.net.ApplyModel(params, modelKey, onlineState,
			action)
		targetModelOut, _ := l.net.ApplyModel(targetParams, targetModelKey,
			targetState, action)

		// Online SFs at the imagined next state drive action selection;
		// target SFs define the bootstrap. Next-step quantities act as
		// constants.
		nextPreds := l.net.ComputeSFs(params, sfKey, modelOut.State, task)
		targetNextPreds := l.net.ComputeSFs(targetParams, targetSFKey,
			targetModelOut.State, task)
		if l.config.ActionMask {
			nextPreds = sfnet.MaskPredictions(nextPreds, modelOut.ActionMask)
			targetNextPreds = sfnet.MaskPredictions(targetNextPreds,
				modelOut.ActionMask)
		}

		td := oneStepSFTD(preds.SF, action, modelOut.StateFeatures,
			targetNextPreds.SF, discount, nextPreds.QValues)

		w, u := l.combiner.Compute(td, task)
		weighted += w
		unweighted += u
		for c := 0; c < td.Len(); c++ {
			tds = append(tds, td.AtVec(c))
		}
	}

	n := float64(len(candidates))
	return weighted / n, unweighted / n, tds
}

// meanDense returns the mean of a matrix's entries
func meanDense(x *mat.Dense) float64 {
	r, c := x.Dims()
	var sum float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			sum += x.At(i, j)
		}
	}
	return sum / float64(r*c)
}
