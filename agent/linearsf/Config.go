package linearsf

import (
	"fmt"

	"github.com/wcarvalho/neurorl/usfa"
)

// Config implements a configuration for a LinearSF agent
type Config struct {
	// Epsilon is the exploration rate of the behaviour policy
	Epsilon float64

	// LearningRate scales the semi-gradient updates of the
	// successor-feature head; ModelLearningRate scales the supervised
	// updates of the transition and feature heads.
	LearningRate      float64
	ModelLearningRate float64

	// WindowLength is the number of consecutive transitions gathered
	// before each learning step
	WindowLength int

	// Tau is the target network Polyak averaging constant, with
	// Tau = 1.0 denoting a hard copy. TargetUpdateInterval is the
	// number of learning steps between target updates.
	Tau                  float64
	TargetUpdateInterval int

	// InitScale is the half-width of the uniform weight initialization
	InitScale float64

	// Loss configures the successor-feature loss evaluated on each
	// window
	Loss usfa.Config
}

// Validate ensures the configuration is legal
func (c Config) Validate() error {
	if c.Epsilon < 0 || c.Epsilon > 1 {
		return fmt.Errorf("validate: epsilon out of range "+
			"\n\twant([0, 1])\n\thave(%v)", c.Epsilon)
	}
	if c.LearningRate <= 0 || c.ModelLearningRate < 0 {
		return fmt.Errorf("validate: non-positive learning rate")
	}
	if c.WindowLength < 2 {
		return fmt.Errorf("validate: window length \n\twant(>=2)"+
			"\n\thave(%v)", c.WindowLength)
	}
	if c.Loss.ModelCoeff > 0 && c.Loss.SimulationSteps >= c.WindowLength {
		return fmt.Errorf("validate: simulation steps must be shorter "+
			"than the window \n\twant(<%v)\n\thave(%v)", c.WindowLength,
			c.Loss.SimulationSteps)
	}
	if c.Tau <= 0 || c.Tau > 1 {
		return fmt.Errorf("validate: tau out of range \n\twant((0, 1])"+
			"\n\thave(%v)", c.Tau)
	}
	if c.TargetUpdateInterval < 1 {
		return fmt.Errorf("validate: non-positive target update interval")
	}
	return c.Loss.Validate()
}
