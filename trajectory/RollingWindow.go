package trajectory

// RollingWindow returns the len(x)-size+1 contiguous windows of x of
// the given length. Window i is a copy of x[i : i+size], so windows
// may be mutated independently of the input.
func RollingWindow(x []float64, size int) [][]float64 {
	if size < 1 || size > len(x) {
		panic("rollingwindow: size must be in [1, len(x)]")
	}

	windows := make([][]float64, len(x)-size+1)
	for i := range windows {
		w := make([]float64, size)
		copy(w, x[i:i+size])
		windows[i] = w
	}
	return windows
}

// RollingWindowInts is RollingWindow for integer sequences such as
// action indices.
func RollingWindowInts(x []int, size int) [][]int {
	if size < 1 || size > len(x) {
		panic("rollingwindowints: size must be in [1, len(x)]")
	}

	windows := make([][]int, len(x)-size+1)
	for i := range windows {
		w := make([]int, size)
		copy(w, x[i:i+size])
		windows[i] = w
	}
	return windows
}

// RollingWindowVecs rolls a [T, C] sequence stored as a slice of
// per-step vectors, returning [T-size+1][size] windows that reference
// the input rows without copying them.
func RollingWindowVecs(x [][]float64, size int) [][][]float64 {
	if size < 1 || size > len(x) {
		panic("rollingwindowvecs: size must be in [1, len(x)]")
	}

	windows := make([][][]float64, len(x)-size+1)
	for i := range windows {
		windows[i] = x[i : i+size]
	}
	return windows
}
