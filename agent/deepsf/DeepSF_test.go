package deepsf

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"

	"github.com/wcarvalho/neurorl/environment"
	"github.com/wcarvalho/neurorl/environment/collect"
	"github.com/wcarvalho/neurorl/network"
	"github.com/wcarvalho/neurorl/solver"
)

func testEnv(t *testing.T) environment.Environment {
	task, err := collect.NewTask(
		environment.NewCategoricalStarter([]int{1, 1}, 1),
		mat.NewVecDense(2, []float64{1, 2}), 1)
	if err != nil {
		t.Fatal(err)
	}

	world, _, err := collect.New(collect.Config{
		Rows:      3,
		Cols:      3,
		Cumulants: 2,
		Objects: []collect.Object{
			{Row: 0, Col: 1, Feature: 0},
			{Row: 2, Col: 2, Feature: 1},
		},
		StepLimit: 20,
		TrainTasks: mat.NewDense(2, 2, []float64{
			1, 0,
			0, 1,
		}),
	}, task)
	if err != nil {
		t.Fatal(err)
	}
	return world
}

func testConfig(t *testing.T) Config {
	adam, err := solver.NewDefaultAdam(0.001, 4)
	if err != nil {
		t.Fatal(err)
	}
	return Config{
		PolicyLayers:         []int{8},
		Biases:               []bool{true},
		Activations:          []*network.Activation{network.ReLU()},
		InitWFn:              G.GlorotU(1.0),
		Solver:               adam,
		Epsilon:              0.1,
		Discount:             0.9,
		Tau:                  1.0,
		TargetUpdateInterval: 4,
		BatchSize:            4,
		MinReplayCapacity:    4,
		MaxReplayCapacity:    32,
	}
}

func TestDeepSFStepBeforeMinCapacity(t *testing.T) {
	env := testEnv(t)
	agent, err := New(env, testConfig(t), 11)
	if err != nil {
		t.Fatal(err)
	}
	defer agent.Close()

	step := env.Reset()
	if err := agent.ObserveFirst(step); err != nil {
		t.Fatal(err)
	}

	// With an empty buffer, Step is a no-op and records no metrics
	if err := agent.Step(); err != nil {
		t.Fatal(err)
	}
	if agent.Metrics() != nil {
		t.Error("learning step ran on an empty replay buffer")
	}
}

func TestDeepSFLearns(t *testing.T) {
	env := testEnv(t)
	agent, err := New(env, testConfig(t), 11)
	if err != nil {
		t.Fatal(err)
	}
	defer agent.Close()

	step := env.Reset()
	if err := agent.ObserveFirst(step); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 20; i++ {
		action := agent.SelectAction(step)
		next, done, err := env.Step(action)
		if err != nil {
			t.Fatal(err)
		}
		if err := agent.Observe(action, next); err != nil {
			t.Fatal(err)
		}
		if err := agent.Step(); err != nil {
			t.Fatal(err)
		}

		if done {
			agent.EndEpisode()
			step = env.Reset()
			if err := agent.ObserveFirst(step); err != nil {
				t.Fatal(err)
			}
		} else {
			step = next
		}
	}

	metrics := agent.Metrics()
	if metrics == nil {
		t.Fatal("no metrics recorded after learning steps")
	}
	loss, ok := metrics["0.total_loss"]
	if !ok {
		t.Fatal("missing loss metric")
	}
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		t.Errorf("loss is not finite: %v", loss)
	}
}

func TestDeepSFSolvers(t *testing.T) {
	vanilla, err := solver.NewVanilla(0.01, 4, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	rmsprop, err := solver.NewDefaultRMSProp(0.001, 4)
	if err != nil {
		t.Fatal(err)
	}

	for name, s := range map[string]*solver.Solver{
		"vanilla": vanilla,
		"rmsprop": rmsprop,
	} {
		env := testEnv(t)
		config := testConfig(t)
		config.Solver = s
		agent, err := New(env, config, 7)
		if err != nil {
			t.Fatalf("%v: %v", name, err)
		}

		step := env.Reset()
		if err := agent.ObserveFirst(step); err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 10; i++ {
			action := agent.SelectAction(step)
			next, done, err := env.Step(action)
			if err != nil {
				t.Fatal(err)
			}
			if err := agent.Observe(action, next); err != nil {
				t.Fatal(err)
			}
			if err := agent.Step(); err != nil {
				t.Fatalf("%v: %v", name, err)
			}
			if done {
				break
			}
			step = next
		}

		metrics := agent.Metrics()
		if metrics == nil {
			t.Fatalf("%v: no metrics recorded", name)
		}
		if loss := metrics["0.total_loss"]; math.IsNaN(loss) ||
			math.IsInf(loss, 0) {
			t.Errorf("%v loss is not finite: %v", name, loss)
		}
		agent.Close()
	}
}

func TestDeepSFEvalIsGreedy(t *testing.T) {
	env := testEnv(t)
	config := testConfig(t)
	config.Epsilon = 1.0
	agent, err := New(env, config, 3)
	if err != nil {
		t.Fatal(err)
	}
	defer agent.Close()

	agent.Eval()
	step := env.Reset()
	want := agent.SelectAction(step)
	for i := 0; i < 5; i++ {
		if have := agent.SelectAction(step); have != want {
			t.Fatalf("eval action \n\twant(%v)\n\thave(%v)", want, have)
		}
	}
}

func TestDeepSFConfigValidate(t *testing.T) {
	config := testConfig(t)
	config.Biases = nil
	if err := config.Validate(); err == nil {
		t.Error("mismatched layer configuration was not rejected")
	}

	config = testConfig(t)
	config.MaxReplayCapacity = 1
	if err := config.Validate(); err == nil {
		t.Error("replay capacity below minimum was not rejected")
	}
}
