// Package floatutils provides small float64 helpers shared by the
// agents and environments.
package floatutils

import (
	"math"

	"gonum.org/v1/gonum/spatial/r1"
)

// Clip bounds value to [min, max]
func Clip(value, min, max float64) float64 {
	clipped := math.Min(value, max)
	return math.Max(clipped, min)
}

// ClipInterval bounds value to an r1.Interval
func ClipInterval(value float64, interval r1.Interval) float64 {
	return Clip(value, interval.Min, interval.Max)
}

// MaxSlice returns the maximum of values together with every index at
// which it occurs
func MaxSlice(values []float64) (max float64, indices []int) {
	max, indices = values[0], []int{0}

	for i := 1; i < len(values); i++ {
		if values[i] > max {
			max = values[i]
			indices = []int{i}
		} else if values[i] == max {
			indices = append(indices, i)
		}
	}
	return
}
