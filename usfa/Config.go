package usfa

import "fmt"

// Config configures a MtrlDynaUsfaLoss. Every field has a sensible
// default; construct with DefaultConfig and override as needed.
//
// The three term coefficients (TaskCoeff, DynaCoeff, ModelCoeff) gate
// whole loss terms: a coefficient <= 0 skips that term's computation
// entirely rather than weighting it by zero.
type Config struct {
	// Discount is the per-step discount factor ℽ applied on top of the
	// trajectory's own discounts
	Discount float64

	// BootstrapN is the n-step bootstrapping horizon
	BootstrapN int

	// LossFn selects the on-task TD target computation
	LossFn TDKind

	// Lambda is the per-step λ used when LossFn is QLambda
	Lambda float64

	// WeightedCoeff and UnweightedCoeff scale the task-weighted and
	// unweighted halves of every SF loss
	WeightedCoeff   float64
	UnweightedCoeff float64

	// Weight, Combination, and SumCumulants configure the task-weighted
	// loss combiner
	Weight       WeightKind
	Combination  CombinationKind
	SumCumulants bool

	// TaskCoeff scales the on-task loss; <= 0 disables it
	TaskCoeff float64

	// DynaCoeff scales the imagined-rollout loss; <= 0 disables it
	DynaCoeff float64

	// NActionsDyna and NTasksDyna are the per-step sample counts for
	// the Dyna loss, capped at what is available
	NActionsDyna int
	NTasksDyna   int

	// ModelCoeff scales the multi-step model loss; <= 0 disables it
	ModelCoeff float64

	// SimulationSteps is the model unroll length. Must be strictly less
	// than the trajectory window length.
	SimulationSteps int

	// FeatureCoeff, ModelSFCoeff, and ActionCoeff weight the three
	// parts of the model loss; CatCoeff additionally scales the
	// categorical (feature and action-mask) parts
	FeatureCoeff float64
	ModelSFCoeff float64
	ActionCoeff  float64
	CatCoeff     float64

	// BinaryFeatureLoss trains the feature head with binary
	// cross-entropy instead of squared error
	BinaryFeatureLoss bool

	// MaskZeroFeatures in [0, 1] is the proportion of all-zero feature
	// entries dropped from the feature loss, countering the class
	// imbalance of mostly-zero cumulants. Zero keeps everything.
	MaskZeroFeatures float64

	// ActionMask enables action-availability modelling: predictions are
	// masked by per-step availability and the model's availability head
	// is trained with cross-entropy
	ActionMask bool
}

// DefaultConfig returns the default loss configuration
func DefaultConfig() Config {
	return Config{
		Discount:        0.99,
		BootstrapN:      5,
		LossFn:          QLearning,
		Lambda:          0.9,
		WeightedCoeff:   1.0,
		UnweightedCoeff: 1.0,
		Weight:          WeightReg,
		Combination:     CombineLoss,
		SumCumulants:    true,
		TaskCoeff:       1.0,
		DynaCoeff:       0.1,
		NActionsDyna:    1,
		NTasksDyna:      5,
		ModelCoeff:      1.0,
		SimulationSteps: 5,
		FeatureCoeff:    1.0,
		ModelSFCoeff:    1.0,
		ActionCoeff:     1.0,
		CatCoeff:        1e-2,
	}
}

// Validate ensures the configuration is legal
func (c Config) Validate() error {
	if c.Discount < 0 || c.Discount > 1 {
		return fmt.Errorf("validate: discount must be in [0, 1] "+
			"\n\thave(%v)", c.Discount)
	}
	if c.BootstrapN < 1 {
		return fmt.Errorf("validate: bootstrapN must be >= 1 "+
			"\n\thave(%v)", c.BootstrapN)
	}
	if c.LossFn != QLearning && c.LossFn != QLambda {
		return fmt.Errorf("validate: unsupported loss fn %v", c.LossFn)
	}
	if c.Lambda < 0 || c.Lambda > 1 {
		return fmt.Errorf("validate: lambda must be in [0, 1] "+
			"\n\thave(%v)", c.Lambda)
	}
	switch c.Weight {
	case WeightReg, WeightMag, WeightIndicator:
	default:
		return fmt.Errorf("validate: unsupported weight type %v", c.Weight)
	}
	switch c.Combination {
	case CombineTD, CombineLoss:
	default:
		return fmt.Errorf("validate: unsupported combination %v",
			c.Combination)
	}
	if c.DynaCoeff > 0 {
		if c.NActionsDyna < 1 {
			return fmt.Errorf("validate: nActionsDyna must be >= 1 "+
				"\n\thave(%v)", c.NActionsDyna)
		}
		if c.NTasksDyna < 1 {
			return fmt.Errorf("validate: nTasksDyna must be >= 1 "+
				"\n\thave(%v)", c.NTasksDyna)
		}
	}
	if c.ModelCoeff > 0 && c.SimulationSteps < 1 {
		return fmt.Errorf("validate: simulationSteps must be >= 1 "+
			"\n\thave(%v)", c.SimulationSteps)
	}
	if c.MaskZeroFeatures < 0 || c.MaskZeroFeatures > 1 {
		return fmt.Errorf("validate: maskZeroFeatures must be in [0, 1] "+
			"\n\thave(%v)", c.MaskZeroFeatures)
	}
	return nil
}
