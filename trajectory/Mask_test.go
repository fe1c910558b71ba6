package trajectory

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// maskBatch builds a [T, 1] batch whose discount column is given
func maskBatch(t *testing.T, discounts []float64) *Batch {
	data, err := NewBatch(len(discounts), 1, 2, 1, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i, d := range discounts {
		err := data.SetStep(i, 0, 0, 0.0, d, []float64{0},
			[]float64{0}, []float64{0})
		if err != nil {
			t.Fatal(err)
		}
	}
	return data
}

func TestEpisodeMask(t *testing.T) {
	// Episode terminates mid-window: the discount hits 0 on the
	// transition after the final valid step
	data := maskBatch(t, []float64{1, 1, 0, 0, 0})

	exclude := data.EpisodeMask(false)
	wantExclude := []float64{1, 1, 1, 0, 0}
	for i, want := range wantExclude {
		if have := exclude.At(i, 0); have != want {
			t.Errorf("exclude-final mask at %d \n\twant(%v)\n\thave(%v)",
				i, want, have)
		}
	}

	include := data.EpisodeMask(true)
	wantInclude := []float64{1, 1, 1, 1, 0}
	for i, want := range wantInclude {
		if have := include.At(i, 0); have != want {
			t.Errorf("include-final mask at %d \n\twant(%v)\n\thave(%v)",
				i, want, have)
		}
	}
}

func TestEpisodeMaskNoTerminal(t *testing.T) {
	data := maskBatch(t, []float64{1, 1, 1, 1, 1})

	for _, includeFinal := range []bool{false, true} {
		mask := data.EpisodeMask(includeFinal)
		for i := 0; i < 5; i++ {
			if mask.At(i, 0) != 1 {
				t.Errorf("mask(includeFinal=%v) at %d \n\twant(1)"+
					"\n\thave(%v)", includeFinal, i, mask.At(i, 0))
			}
		}
	}
}

func TestEpisodeMean(t *testing.T) {
	x := mat.NewDense(4, 1, []float64{2, 4, 6, 100})
	mask := mat.NewDense(4, 1, []float64{1, 1, 1, 0})

	mean := EpisodeMean(x, mask)
	want := 12.0 / (3.0 + 1e-5)
	if math.Abs(mean.AtVec(0)-want) > 1e-12 {
		t.Errorf("episode mean \n\twant(%v)\n\thave(%v)", want,
			mean.AtVec(0))
	}

	// A fully masked column stays finite
	zeroMask := mat.NewDense(4, 1, nil)
	mean = EpisodeMean(x, zeroMask)
	if math.IsNaN(mean.AtVec(0)) || math.IsInf(mean.AtVec(0), 0) {
		t.Errorf("fully-masked episode mean is not finite: %v",
			mean.AtVec(0))
	}
}

func TestRollingWindow(t *testing.T) {
	windows := RollingWindow([]float64{1, 2, 3, 4, 5}, 3)
	if len(windows) != 3 {
		t.Fatalf("window count \n\twant(3)\n\thave(%v)", len(windows))
	}
	want := [][]float64{{1, 2, 3}, {2, 3, 4}, {3, 4, 5}}
	for i := range want {
		for j := range want[i] {
			if windows[i][j] != want[i][j] {
				t.Errorf("window %d element %d \n\twant(%v)\n\thave(%v)",
					i, j, want[i][j], windows[i][j])
			}
		}
	}

	// Windows are copies
	windows[0][0] = -1
	if windows[1][0] != 2 {
		t.Error("rolling windows share backing storage")
	}
}

func TestRollingWindowInts(t *testing.T) {
	windows := RollingWindowInts([]int{0, 1, 2, 1}, 2)
	if len(windows) != 3 {
		t.Fatalf("window count \n\twant(3)\n\thave(%v)", len(windows))
	}
	if windows[1][0] != 1 || windows[1][1] != 2 {
		t.Errorf("window 1 \n\twant([1 2])\n\thave(%v)", windows[1])
	}
}
