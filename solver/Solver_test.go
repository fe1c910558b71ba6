package solver

import (
	"encoding/json"
	"testing"
)

func TestSolverConstruction(t *testing.T) {
	vanilla, err := NewVanilla(0.01, 8, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	if vanilla.Solver == nil || vanilla.Type != Vanilla {
		t.Error("vanilla solver not constructed")
	}

	rmsprop, err := NewDefaultRMSProp(0.001, 8)
	if err != nil {
		t.Fatal(err)
	}
	if rmsprop.Solver == nil || rmsprop.Type != RMSProp {
		t.Error("rmsprop solver not constructed")
	}

	// Gorgonia only supports the default η
	if _, err := NewRMSProp(0.001, 1e-8, 0.5, 0.999, 8, -1.0); err == nil {
		t.Error("non-default η was not rejected")
	}
}

func TestSolverJSON(t *testing.T) {
	rmsprop, err := NewDefaultRMSProp(0.001, 4)
	if err != nil {
		t.Fatal(err)
	}

	data, err := json.Marshal(rmsprop)
	if err != nil {
		t.Fatal(err)
	}

	var loaded Solver
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatal(err)
	}

	if loaded.Type != RMSProp {
		t.Errorf("solver type \n\twant(%v)\n\thave(%v)", RMSProp,
			loaded.Type)
	}
	config, ok := loaded.Config.(*RMSPropConfig)
	if !ok {
		t.Fatalf("config type \n\twant(*RMSPropConfig)\n\thave(%T)",
			loaded.Config)
	}
	if config.StepSize != 0.001 || config.Batch != 4 {
		t.Errorf("config values \n\twant(0.001, 4)\n\thave(%v, %v)",
			config.StepSize, config.Batch)
	}
	if loaded.Solver == nil {
		t.Error("unmarshalling did not rebuild the Gorgonia solver")
	}
}
