// Package usfa implements the loss machinery for universal
// successor-feature approximators: n-step and λ-return temporal
// difference errors over vector-valued successor features,
// task-weighted loss combination, an imagined-rollout (Dyna) loss
// driven by a learned transition model, a multi-step model loss, and
// the orchestrator that combines them.
package usfa

// nStepBootstrappedReturns computes n-step bootstrapped return targets
// for a single cumulant dimension. rewards[t] is the cumulant emitted
// by transition t, discounts[t] the (ℽ-scaled) discount of that
// transition, and values[t] the bootstrap value at step t+1. For each
// t the target accumulates up to n rewards and bootstraps from
// values[min(t+n, T)-1].
//
// The recursion runs backwards over n shifted windows, padding the
// sequence tail with the final bootstrap value so every step receives
// a full-length target.
func nStepBootstrappedReturns(rewards, discounts, values []float64,
	n int) []float64 {
	seqLen := len(rewards)
	if len(discounts) != seqLen || len(values) != seqLen {
		panic("nstepbootstrappedreturns: sequence lengths must agree")
	}
	if n < 1 {
		panic("nstepbootstrappedreturns: n must be >= 1")
	}

	pad := n - 1
	r := make([]float64, seqLen+pad)
	d := make([]float64, seqLen+pad)
	v := make([]float64, seqLen+pad)
	copy(r, rewards)
	copy(d, discounts)
	copy(v, values)
	for i := seqLen; i < seqLen+pad; i++ {
		d[i] = 1.0
		v[i] = values[seqLen-1]
	}

	// Bootstrap n-1 steps ahead, clamped to the end of the sequence
	targets := make([]float64, seqLen)
	for t := 0; t < seqLen; t++ {
		targets[t] = v[t+pad]
	}

	for i := n - 1; i >= 0; i-- {
		for t := 0; t < seqLen; t++ {
			targets[t] = r[t+i] + d[t+i]*targets[t]
		}
	}
	return targets
}

// lambdaReturns computes λ-return targets for a single cumulant
// dimension: a λ-weighted mixture of all n-step returns. lambdas[t]
// interpolates per step between the one-step bootstrap (λ=0) and the
// full Monte-Carlo return (λ=1).
func lambdaReturns(rewards, discounts, values, lambdas []float64) []float64 {
	seqLen := len(rewards)
	if len(discounts) != seqLen || len(values) != seqLen ||
		len(lambdas) != seqLen {
		panic("lambdareturns: sequence lengths must agree")
	}

	targets := make([]float64, seqLen)
	acc := values[seqLen-1]
	for t := seqLen - 1; t >= 0; t-- {
		acc = rewards[t] +
			discounts[t]*((1-lambdas[t])*values[t]+lambdas[t]*acc)
		targets[t] = acc
	}
	return targets
}
