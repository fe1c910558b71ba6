package deepsf

import (
	"fmt"

	G "gorgonia.org/gorgonia"

	"github.com/wcarvalho/neurorl/network"
	"github.com/wcarvalho/neurorl/solver"
)

// Config implements a configuration for a DeepSF agent
type Config struct {
	// PolicyLayers, Biases, and Activations describe the hidden layers
	// of the successor-feature network. A linear head of
	// actions*cumulants units is always appended.
	PolicyLayers []int
	Biases       []bool
	Activations  []*network.Activation

	// InitWFn is the weight initialization scheme
	InitWFn G.InitWFn

	// Solver adapts the network weights
	Solver *solver.Solver

	// Epsilon is the exploration rate of the behaviour policy
	Epsilon float64

	// Discount scales the bootstrapped successor features
	Discount float64

	// Tau is the target network Polyak averaging constant, with
	// Tau = 1.0 denoting a hard copy. TargetUpdateInterval is the
	// number of gradient steps between target updates.
	Tau                  float64
	TargetUpdateInterval int

	// Replay buffer layout
	BatchSize         int
	MinReplayCapacity int
	MaxReplayCapacity int
}

// BatchSize returns the batch size of the agent constructed with this
// Config
func (c Config) batchSize() int {
	return c.BatchSize
}

// Validate ensures the configuration is legal
func (c Config) Validate() error {
	if len(c.PolicyLayers) != len(c.Biases) ||
		len(c.PolicyLayers) != len(c.Activations) {
		return fmt.Errorf("validate: policy layers, biases, and "+
			"activations must agree \n\twant(%v)\n\thave(%v, %v)",
			len(c.PolicyLayers), len(c.Biases), len(c.Activations))
	}
	if c.InitWFn == nil {
		return fmt.Errorf("validate: no weight initialization given")
	}
	if c.Solver == nil {
		return fmt.Errorf("validate: no solver given")
	}
	if c.Epsilon < 0 || c.Epsilon > 1 {
		return fmt.Errorf("validate: epsilon out of range "+
			"\n\twant([0, 1])\n\thave(%v)", c.Epsilon)
	}
	if c.Discount < 0 || c.Discount > 1 {
		return fmt.Errorf("validate: discount out of range "+
			"\n\twant([0, 1])\n\thave(%v)", c.Discount)
	}
	if c.Tau <= 0 || c.Tau > 1 {
		return fmt.Errorf("validate: tau out of range \n\twant((0, 1])"+
			"\n\thave(%v)", c.Tau)
	}
	if c.TargetUpdateInterval < 1 {
		return fmt.Errorf("validate: non-positive target update interval")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("validate: non-positive batch size")
	}
	if c.MinReplayCapacity < 1 ||
		c.MaxReplayCapacity < c.MinReplayCapacity {
		return fmt.Errorf("validate: illegal replay capacity range "+
			"[%v, %v]", c.MinReplayCapacity, c.MaxReplayCapacity)
	}
	return nil
}
