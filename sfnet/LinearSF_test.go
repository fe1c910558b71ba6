package sfnet

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/wcarvalho/neurorl/randkey"
)

func testNet(t *testing.T) (*LinearSF, Params) {
	net, params, err := NewLinearSF(LinearSFConfig{
		StateDim:          3,
		NumActions:        2,
		CumulantDim:       2,
		PredictActionMask: true,
		InitScale:         0.5,
	}, 7)
	if err != nil {
		t.Fatal(err)
	}
	return net, params
}

func TestLinearSFQValues(t *testing.T) {
	net, params := testNet(t)

	state := mat.NewVecDense(3, []float64{0.1, -0.4, 0.7})
	task := mat.NewVecDense(2, []float64{1, -0.5})

	preds := net.ComputeSFs(params, randkey.New(1), state, task)

	r, c := preds.SF.Dims()
	if r != 2 || c != 2 {
		t.Fatalf("sf shape \n\twant(2, 2)\n\thave(%v, %v)", r, c)
	}

	// q must be the task-weighted sum of the SF rows
	for a := 0; a < 2; a++ {
		want := preds.SF.At(a, 0)*1 + preds.SF.At(a, 1)*(-0.5)
		if math.Abs(preds.QValues.AtVec(a)-want) > 1e-12 {
			t.Errorf("q value %d \n\twant(%v)\n\thave(%v)", a, want,
				preds.QValues.AtVec(a))
		}
	}

	// Deterministic in (params, state, task)
	again := net.ComputeSFs(params, randkey.New(99), state, task)
	if !mat.EqualApprox(preds.SF, again.SF, 1e-15) {
		t.Error("sf computation is not deterministic")
	}
}

func TestLinearSFModel(t *testing.T) {
	net, params := testNet(t)

	state := mat.NewVecDense(3, []float64{1, 0, -1})
	out, next := net.ApplyModel(params, randkey.New(1), state, 1)

	if next.Len() != 3 {
		t.Fatalf("next state length \n\twant(3)\n\thave(%v)", next.Len())
	}
	if out.StateFeatures.Len() != 2 {
		t.Fatalf("feature length \n\twant(2)\n\thave(%v)",
			out.StateFeatures.Len())
	}
	if out.ActionMaskLogits == nil || len(out.ActionMask) != 2 {
		t.Fatal("action-mask head missing")
	}

	// Different actions use different transition maps
	_, next0 := net.ApplyModel(params, randkey.New(1), state, 0)
	if mat.EqualApprox(next, next0, 1e-15) {
		t.Error("transition map does not depend on the action")
	}
}

func TestMaskPredictions(t *testing.T) {
	preds := Predictions{
		SF:      mat.NewDense(2, 2, []float64{1, 2, 3, 4}),
		QValues: mat.NewVecDense(2, []float64{0.5, 0.7}),
	}

	masked := MaskPredictions(preds, []float64{1, 0})

	if masked.QValues.AtVec(0) != 0.5 {
		t.Errorf("available action q \n\twant(0.5)\n\thave(%v)",
			masked.QValues.AtVec(0))
	}
	if masked.QValues.AtVec(1) != largeNegative {
		t.Errorf("unavailable action q \n\twant(%v)\n\thave(%v)",
			largeNegative, masked.QValues.AtVec(1))
	}
	for c := 0; c < 2; c++ {
		if masked.SF.At(1, c) != 0 {
			t.Errorf("unavailable sf (1, %d) \n\twant(0)\n\thave(%v)", c,
				masked.SF.At(1, c))
		}
	}

	// Input is untouched
	if preds.QValues.AtVec(1) != 0.7 {
		t.Error("masking mutated its input")
	}
}

func TestGpiHead(t *testing.T) {
	net, params := testNet(t)

	head, err := NewGpiHead(net, 2, 0.1, TrainSupport)
	if err != nil {
		t.Fatal(err)
	}

	state := mat.NewVecDense(3, []float64{0.2, 0.4, -0.1})
	task := mat.NewVecDense(2, []float64{1, 0})

	preds := head.Predict(params, randkey.New(5), state, task)
	if len(preds.PolicySFs) != 3 || len(preds.PolicyQ) != 3 {
		t.Fatalf("policy count \n\twant(3)\n\thave(%v, %v)",
			len(preds.PolicySFs), len(preds.PolicyQ))
	}

	// GPI: the returned value is the per-action max over policies
	for a := 0; a < 2; a++ {
		best := math.Inf(-1)
		for _, q := range preds.PolicyQ {
			best = math.Max(best, q.AtVec(a))
		}
		if math.Abs(preds.QValues.AtVec(a)-best) > 1e-12 {
			t.Errorf("gpi value %d \n\twant(%v)\n\thave(%v)", a, best,
				preds.QValues.AtVec(a))
		}
	}

	// Same key, same samples
	again := head.Predict(params, randkey.New(5), state, task)
	if !mat.EqualApprox(preds.QValues, again.QValues, 1e-15) {
		t.Error("gpi prediction is not reproducible")
	}

	trainTasks := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	evalPreds := head.Evaluate(params, randkey.New(5), state, task,
		trainTasks)
	if len(evalPreds.PolicySFs) != 2 {
		t.Errorf("train-support policy count \n\twant(2)\n\thave(%v)",
			len(evalPreds.PolicySFs))
	}
}
