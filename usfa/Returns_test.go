package usfa

import (
	"math"
	"testing"
)

func TestNStepBootstrappedReturns(t *testing.T) {
	rewards := []float64{1, 2, 3}
	discounts := []float64{0.5, 0.5, 0.5}
	values := []float64{10, 20, 30}

	// n=1: target[t] = r[t] + d[t]*v[t]
	targets := nStepBootstrappedReturns(rewards, discounts, values, 1)
	want := []float64{1 + 0.5*10, 2 + 0.5*20, 3 + 0.5*30}
	for i := range want {
		if math.Abs(targets[i]-want[i]) > 1e-12 {
			t.Errorf("one-step target %d \n\twant(%v)\n\thave(%v)", i,
				want[i], targets[i])
		}
	}

	// n=2: target[0] = r0 + d0*(r1 + d1*v1); the final step bootstraps
	// from the last value
	targets = nStepBootstrappedReturns(rewards, discounts, values, 2)
	want = []float64{
		1 + 0.5*(2+0.5*20),
		2 + 0.5*(3+0.5*30),
		3 + 0.5*(30),
	}
	for i := range want {
		if math.Abs(targets[i]-want[i]) > 1e-12 {
			t.Errorf("two-step target %d \n\twant(%v)\n\thave(%v)", i,
				want[i], targets[i])
		}
	}
}

func TestNStepReturnsPerfectPrediction(t *testing.T) {
	// Zero rewards, unit discounts, constant values: every n-step
	// target equals the constant, so TD against it is zero
	rewards := make([]float64, 6)
	discounts := []float64{1, 1, 1, 1, 1, 1}
	values := []float64{3, 3, 3, 3, 3, 3}

	for _, n := range []int{1, 2, 5} {
		targets := nStepBootstrappedReturns(rewards, discounts, values, n)
		for i, target := range targets {
			if math.Abs(target-3) > 1e-12 {
				t.Errorf("n=%d target %d \n\twant(3)\n\thave(%v)", n, i,
					target)
			}
		}
	}
}

func TestLambdaReturns(t *testing.T) {
	rewards := []float64{1, 2}
	discounts := []float64{0.9, 0.9}
	values := []float64{5, 6}

	// λ=0 reduces to the one-step target
	targets := lambdaReturns(rewards, discounts, values,
		[]float64{0, 0})
	want := []float64{1 + 0.9*5, 2 + 0.9*6}
	for i := range want {
		if math.Abs(targets[i]-want[i]) > 1e-12 {
			t.Errorf("λ=0 target %d \n\twant(%v)\n\thave(%v)", i, want[i],
				targets[i])
		}
	}

	// λ=1 gives the Monte-Carlo return bootstrapped at the tail
	targets = lambdaReturns(rewards, discounts, values, []float64{1, 1})
	wantLast := 2 + 0.9*6.0
	wantFirst := 1 + 0.9*wantLast
	if math.Abs(targets[1]-wantLast) > 1e-12 {
		t.Errorf("λ=1 target 1 \n\twant(%v)\n\thave(%v)", wantLast,
			targets[1])
	}
	if math.Abs(targets[0]-wantFirst) > 1e-12 {
		t.Errorf("λ=1 target 0 \n\twant(%v)\n\thave(%v)", wantFirst,
			targets[0])
	}
}
