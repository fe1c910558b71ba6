package trajectory

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// EpisodeMask returns the [T, B] mask of steps that count towards a
// masked loss. Discounts trail episode validity by one step: for valid
// data [x1, x2, x3, 0, 0] the discount column reads [1, 1, 1, 0, 0]
// only when the terminal lands exactly at the window edge; in general
// the discount hits 0 on the transition after the final valid step.
//
// With includeFinal the mask is ones(2) ++ discount[:-2] per column,
// admitting the final valid step; without it the mask is
// ones(1) ++ discount[:-1], which excludes the final transition. Loss
// code relies on this exact off-by-one convention.
func (d *Batch) EpisodeMask(includeFinal bool) *mat.Dense {
	mask := mat.NewDense(d.t, d.b, nil)
	lead := 1
	if includeFinal {
		lead = 2
	}

	for b := 0; b < d.b; b++ {
		for t := 0; t < lead && t < d.t; t++ {
			mask.Set(t, b, 1.0)
		}
		for t := lead; t < d.t; t++ {
			mask.Set(t, b, d.Discount(t-lead, b))
		}
	}
	return mask
}

// EpisodeMean computes, for each column b, the mask-weighted mean of x
// over time: sum_t(x * mask) / (sum_t mask + 1e-5). The small constant
// keeps fully-masked columns finite rather than erroring, matching how
// post-terminal padding is neutralized instead of filtered.
func EpisodeMean(x, mask *mat.Dense) *mat.VecDense {
	t, b := x.Dims()
	mt, mb := mask.Dims()
	if t != mt || b != mb {
		panic("episodemean: x and mask must have equal dimensions")
	}

	out := mat.NewVecDense(b, nil)
	for j := 0; j < b; j++ {
		var num, den float64
		for i := 0; i < t; i++ {
			num += x.At(i, j) * mask.At(i, j)
			den += mask.At(i, j)
		}
		out.SetVec(j, num/(den+1e-5))
	}
	return out
}

// EpisodeMeanVec is EpisodeMean for a single column
func EpisodeMeanVec(x, mask []float64) float64 {
	if len(x) != len(mask) {
		panic("episodemeanvec: x and mask must have equal length")
	}
	return floats.Dot(x, mask) / (floats.Sum(mask) + 1e-5)
}
