package usfa

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestSFTDErrorPerfectPrediction(t *testing.T) {
	// Zero cumulants, unit discounts, and online SFs that equal the
	// bootstrap values everywhere: every TD error must vanish
	const seqLen, numActions, cumulantDim = 4, 3, 2

	constant := func(value float64) []*mat.Dense {
		sf := make([]*mat.Dense, seqLen)
		for i := range sf {
			sf[i] = mat.NewDense(numActions, cumulantDim, nil)
			for a := 0; a < numActions; a++ {
				for c := 0; c < cumulantDim; c++ {
					sf[i].Set(a, c, value)
				}
			}
		}
		return sf
	}

	onlineSF := constant(3.0)
	targetSF := constant(3.0)
	actions := []int{0, 1, 2, 0}
	selector := []int{1, 1, 0, 2}
	discounts := []float64{1, 1, 1, 1}
	cumulants := mat.NewDense(seqLen, cumulantDim, nil)

	for _, n := range []int{1, 3} {
		engine, err := NewSFTDError(n, QLearning)
		if err != nil {
			t.Fatal(err)
		}
		tdErrors := engine.Compute(onlineSF, actions, cumulants, discounts,
			targetSF, nil, selector)
		for i := 0; i < seqLen; i++ {
			for c := 0; c < cumulantDim; c++ {
				if math.Abs(tdErrors.At(i, c)) > 1e-12 {
					t.Errorf("n=%d td error (%d, %d) \n\twant(0)"+
						"\n\thave(%v)", n, i, c, tdErrors.At(i, c))
				}
			}
		}
	}
}

func TestSFTDErrorOneStep(t *testing.T) {
	// Hand-computed one-step case: td = r + d*target[selector] - online[a]
	const numActions, cumulantDim = 2, 1

	onlineSF := []*mat.Dense{
		mat.NewDense(numActions, cumulantDim, []float64{1, 2}),
		mat.NewDense(numActions, cumulantDim, []float64{3, 4}),
	}
	targetSF := []*mat.Dense{
		mat.NewDense(numActions, cumulantDim, []float64{5, 6}),
		mat.NewDense(numActions, cumulantDim, []float64{7, 8}),
	}
	actions := []int{0, 1}
	selector := []int{1, 0}
	discounts := []float64{0.5, 0.5}
	cumulants := mat.NewDense(2, cumulantDim, []float64{10, 20})

	engine, err := NewSFTDError(1, QLearning)
	if err != nil {
		t.Fatal(err)
	}
	tdErrors := engine.Compute(onlineSF, actions, cumulants, discounts,
		targetSF, nil, selector)

	want := []float64{
		10 + 0.5*6 - 1, // selector 1 of target step 0, action 0 online
		20 + 0.5*7 - 4, // selector 0 of target step 1, action 1 online
	}
	for i, w := range want {
		if math.Abs(tdErrors.At(i, 0)-w) > 1e-12 {
			t.Errorf("td error %d \n\twant(%v)\n\thave(%v)", i, w,
				tdErrors.At(i, 0))
		}
	}
}

func TestOneStepSFTD(t *testing.T) {
	sf := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	nextFeatures := mat.NewVecDense(2, []float64{0.5, 0.25})
	targetNextSF := mat.NewDense(2, 2, []float64{10, 20, 30, 40})
	// Action 1 has the larger next value, so the bootstrap row is 1
	nextQ := mat.NewVecDense(2, []float64{0.1, 0.9})

	td := oneStepSFTD(sf, 0, nextFeatures, targetNextSF, 0.5, nextQ)

	want := []float64{
		0.5 + 0.5*30 - 1,
		0.25 + 0.5*40 - 2,
	}
	for c, w := range want {
		if math.Abs(td.AtVec(c)-w) > 1e-12 {
			t.Errorf("one-step td %d \n\twant(%v)\n\thave(%v)", c, w,
				td.AtVec(c))
		}
	}
}

func TestNewSFTDErrorRejectsBadConfig(t *testing.T) {
	if _, err := NewSFTDError(0, QLearning); err == nil {
		t.Error("expected error for bootstrapN=0")
	}
	if _, err := NewSFTDError(1, TDKind(42)); err == nil {
		t.Error("expected error for unknown loss fn")
	}
}
