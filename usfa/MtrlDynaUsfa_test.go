package usfa

import (
	"math"
	"strings"
	"testing"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/wcarvalho/neurorl/randkey"
	"github.com/wcarvalho/neurorl/sfnet"
	"github.com/wcarvalho/neurorl/trajectory"
)

const (
	testT = 5
	testB = 2
	testA = 3
	testC = 4
	testD = 4
)

// buildScenario creates a fixed-seed network, parameter sets, a [5, 2]
// trajectory window, and the prediction grids along it.
func buildScenario(t *testing.T) (*sfnet.LinearSF, sfnet.Params,
	sfnet.Params, *trajectory.Batch, [][]sfnet.Predictions,
	[][]sfnet.Predictions) {
	return buildScenarioWith(t, false)
}

// buildScenarioWith optionally adds per-step action availability to
// the window and an availability head to the network.
func buildScenarioWith(t *testing.T, actionMask bool) (*sfnet.LinearSF,
	sfnet.Params, sfnet.Params, *trajectory.Batch, [][]sfnet.Predictions,
	[][]sfnet.Predictions) {

	net, params, err := sfnet.NewLinearSF(sfnet.LinearSFConfig{
		StateDim:          testD,
		NumActions:        testA,
		CumulantDim:       testC,
		PredictActionMask: actionMask,
		InitScale:         0.5,
	}, 11)
	if err != nil {
		t.Fatal(err)
	}
	targetParams := params.Clone()

	trainTasks := mat.NewDense(3, testC, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0.5, 0, -1, 0,
	})

	data, err := trajectory.NewBatch(testT, testB, testA, testC, testD,
		trainTasks)
	if err != nil {
		t.Fatal(err)
	}

	discounts := [][]float64{
		{1, 1, 1, 0, 0},
		{1, 1, 1, 1, 0},
	}
	if actionMask {
		data.EnableActionMask()
	}

	rng := rand.New(rand.NewSource(13))
	for i := 0; i < testT; i++ {
		for j := 0; j < testB; j++ {
			obs := make([]float64, testD)
			cumulants := make([]float64, testC)
			for d := 0; d < testD; d++ {
				obs[d] = rng.Float64()
			}
			for c := 0; c < testC; c++ {
				cumulants[c] = rng.Float64() * 0.1
			}
			task := make([]float64, testC)
			task[j] = 1.0

			action := rng.Intn(testA)
			err := data.SetStep(i, j, action, rng.Float64(),
				discounts[j][i], obs, cumulants, task)
			if err != nil {
				t.Fatal(err)
			}

			if actionMask {
				// One action other than the taken one is unavailable
				// on odd steps
				available := []float64{1, 1, 1}
				if i%2 == 1 {
					available[(action+1)%testA] = 0
				}
				if err := data.SetActionMask(i, j, available); err != nil {
					t.Fatal(err)
				}
			}
		}
	}

	predictions := func(p sfnet.Params) [][]sfnet.Predictions {
		key := randkey.New(17)
		grid := make([][]sfnet.Predictions, testT)
		for i := 0; i < testT; i++ {
			grid[i] = make([]sfnet.Predictions, testB)
			for j := 0; j < testB; j++ {
				key2, sfKey := key.Next()
				key = key2
				grid[i][j] = net.ComputeSFs(p, sfKey, data.Observation(i, j),
					data.Task(i, j))
			}
		}
		return grid
	}

	return net, params, targetParams, data, predictions(params),
		predictions(targetParams)
}

func fullConfig() Config {
	config := DefaultConfig()
	config.SimulationSteps = 2
	config.NTasksDyna = 2
	config.NActionsDyna = 1
	return config
}

func TestOrchestratorShapeInvariant(t *testing.T) {
	net, params, targetParams, data, online, target := buildScenario(t)

	configs := []Config{fullConfig()}

	ontaskOnly := fullConfig()
	ontaskOnly.DynaCoeff = 0
	ontaskOnly.ModelCoeff = 0
	configs = append(configs, ontaskOnly)

	dynaOnly := fullConfig()
	dynaOnly.TaskCoeff = 0
	dynaOnly.ModelCoeff = 0
	configs = append(configs, dynaOnly)

	for i, config := range configs {
		loss, err := NewMtrlDynaUsfaLoss(net, config)
		if err != nil {
			t.Fatal(err)
		}
		tdError, batchLoss, _, err := loss.Compute(data, online, target,
			params, targetParams, randkey.New(3))
		if err != nil {
			t.Fatal(err)
		}

		r, c := tdError.Dims()
		if r != testT || c != testB {
			t.Errorf("config %d td shape \n\twant(%v, %v)\n\thave(%v, %v)",
				i, testT, testB, r, c)
		}
		if batchLoss.Len() != testB {
			t.Errorf("config %d loss length \n\twant(%v)\n\thave(%v)", i,
				testB, batchLoss.Len())
		}

		// Final row is always the zero pad
		for j := 0; j < testB; j++ {
			if tdError.At(testT-1, j) != 0 {
				t.Errorf("config %d td pad row at %d \n\twant(0)"+
					"\n\thave(%v)", i, j, tdError.At(testT-1, j))
			}
		}
	}
}

func TestOrchestratorShortCircuit(t *testing.T) {
	net, params, targetParams, data, online, target := buildScenario(t)

	config := fullConfig()
	config.DynaCoeff = 0
	config.ModelCoeff = 0
	loss, err := NewMtrlDynaUsfaLoss(net, config)
	if err != nil {
		t.Fatal(err)
	}

	// With only the on-task term active the result cannot depend on the
	// random key
	td1, loss1, metrics1, err := loss.Compute(data, online, target, params,
		targetParams, randkey.New(1))
	if err != nil {
		t.Fatal(err)
	}
	td2, loss2, metrics2, err := loss.Compute(data, online, target, params,
		targetParams, randkey.New(999))
	if err != nil {
		t.Fatal(err)
	}

	if !mat.EqualApprox(td1, td2, 1e-15) {
		t.Error("on-task td errors depend on the random key")
	}
	if !mat.EqualApprox(loss1, loss2, 1e-15) {
		t.Error("on-task loss depends on the random key")
	}

	for name := range metrics1 {
		if strings.HasPrefix(name, "2.dyna.") ||
			strings.HasPrefix(name, "3.model.") {
			t.Errorf("skipped term produced metric %q", name)
		}
		if metrics1[name] != metrics2[name] {
			t.Errorf("metric %q differs across keys \n\twant(%v)"+
				"\n\thave(%v)", name, metrics1[name], metrics2[name])
		}
	}

	// Total loss is exactly the on-task term
	if metrics1["0.total_loss"] != metrics1["1.online.0.total_loss"] {
		t.Errorf("total loss \n\twant(%v)\n\thave(%v)",
			metrics1["1.online.0.total_loss"], metrics1["0.total_loss"])
	}
}

func TestOrchestratorDeterminism(t *testing.T) {
	net, params, targetParams, data, online, target := buildScenario(t)

	loss, err := NewMtrlDynaUsfaLoss(net, fullConfig())
	if err != nil {
		t.Fatal(err)
	}

	td1, loss1, metrics1, err := loss.Compute(data, online, target, params,
		targetParams, randkey.New(7))
	if err != nil {
		t.Fatal(err)
	}
	td2, loss2, metrics2, err := loss.Compute(data, online, target, params,
		targetParams, randkey.New(7))
	if err != nil {
		t.Fatal(err)
	}

	if !mat.EqualApprox(td1, td2, 1e-15) {
		t.Error("td errors are not reproducible for the same key")
	}
	if !mat.EqualApprox(loss1, loss2, 1e-15) {
		t.Error("loss is not reproducible for the same key")
	}
	for name := range metrics1 {
		if metrics1[name] != metrics2[name] {
			t.Errorf("metric %q not reproducible \n\twant(%v)\n\thave(%v)",
				name, metrics1[name], metrics2[name])
		}
	}
}

func TestOrchestratorPerturbationSensitivity(t *testing.T) {
	net, params, targetParams, data, online, target := buildScenario(t)

	config := fullConfig()
	config.DynaCoeff = 0
	config.ModelCoeff = 0
	config.BootstrapN = 1
	loss, err := NewMtrlDynaUsfaLoss(net, config)
	if err != nil {
		t.Fatal(err)
	}

	_, before, _, err := loss.Compute(data, online, target, params,
		targetParams, randkey.New(3))
	if err != nil {
		t.Fatal(err)
	}

	// Perturb the online SF at a valid unmasked position: step 0 of
	// element 0, at the action actually taken
	action := data.Action(0, 0)
	online[0][0].SF.Set(action, 2, online[0][0].SF.At(action, 2)+1.0)

	_, after, _, err := loss.Compute(data, online, target, params,
		targetParams, randkey.New(3))
	if err != nil {
		t.Fatal(err)
	}

	if math.Abs(before.AtVec(0)-after.AtVec(0)) < 1e-10 {
		t.Error("loss did not respond to a perturbation at a valid position")
	}
}

func TestDynaSamplingCaps(t *testing.T) {
	net, params, targetParams, data, online, target := buildScenario(t)

	// Request far more tasks and actions than exist; sampling must cap
	// silently
	config := fullConfig()
	config.TaskCoeff = 0
	config.ModelCoeff = 0
	config.DynaCoeff = 1.0
	config.NTasksDyna = 50
	config.NActionsDyna = 50
	loss, err := NewMtrlDynaUsfaLoss(net, config)
	if err != nil {
		t.Fatal(err)
	}

	_, batchLoss, metrics, err := loss.Compute(data, online, target,
		params, targetParams, randkey.New(5))
	if err != nil {
		t.Fatal(err)
	}
	if batchLoss.Len() != testB {
		t.Fatalf("loss length \n\twant(%v)\n\thave(%v)", testB,
			batchLoss.Len())
	}
	if _, ok := metrics["2.dyna.0.total_loss"]; !ok {
		t.Error("dyna metrics missing")
	}
}

func TestModelStepPrecondition(t *testing.T) {
	net, params, targetParams, data, online, target := buildScenario(t)

	config := fullConfig()
	config.SimulationSteps = testT
	loss, err := NewMtrlDynaUsfaLoss(net, config)
	if err != nil {
		t.Fatal(err)
	}

	_, _, _, err = loss.Compute(data, online, target, params, targetParams,
		randkey.New(3))
	if err == nil {
		t.Error("expected error for simulationSteps >= window length")
	}
}

func TestOrchestratorActionMask(t *testing.T) {
	net, params, targetParams, data, online, target :=
		buildScenarioWith(t, true)

	config := fullConfig()
	config.ActionMask = true
	config.BinaryFeatureLoss = true
	config.MaskZeroFeatures = 0.5
	loss, err := NewMtrlDynaUsfaLoss(net, config)
	if err != nil {
		t.Fatal(err)
	}

	tdError, batchLoss, metrics, err := loss.Compute(data, online, target,
		params, targetParams, randkey.New(3))
	if err != nil {
		t.Fatal(err)
	}

	r, c := tdError.Dims()
	if r != testT || c != testB {
		t.Errorf("td shape \n\twant(%v, %v)\n\thave(%v, %v)", testT, testB,
			r, c)
	}
	if batchLoss.Len() != testB {
		t.Errorf("loss length \n\twant(%v)\n\thave(%v)", testB,
			batchLoss.Len())
	}

	// The availability head contributes its own loss term
	if _, ok := metrics["3.model.1.action_mask_loss"]; !ok {
		t.Error("action mask loss metric missing")
	}

	for name, value := range metrics {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			t.Errorf("metric %q is not finite: %v", name, value)
		}
	}
	for j := 0; j < testB; j++ {
		if v := batchLoss.AtVec(j); math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("loss at %d is not finite: %v", j, v)
		}
	}
}

func TestOrchestratorQLambda(t *testing.T) {
	net, params, targetParams, data, online, target := buildScenario(t)

	// λ = 0 collapses the λ-return to the one-step bootstrap, so it
	// must agree exactly with 1-step Q-learning targets
	qlambda := fullConfig()
	qlambda.DynaCoeff = 0
	qlambda.ModelCoeff = 0
	qlambda.LossFn = QLambda
	qlambda.Lambda = 0

	onestep := qlambda
	onestep.LossFn = QLearning
	onestep.BootstrapN = 1

	lossA, err := NewMtrlDynaUsfaLoss(net, qlambda)
	if err != nil {
		t.Fatal(err)
	}
	lossB, err := NewMtrlDynaUsfaLoss(net, onestep)
	if err != nil {
		t.Fatal(err)
	}

	tdA, batchA, _, err := lossA.Compute(data, online, target, params,
		targetParams, randkey.New(3))
	if err != nil {
		t.Fatal(err)
	}
	tdB, batchB, _, err := lossB.Compute(data, online, target, params,
		targetParams, randkey.New(3))
	if err != nil {
		t.Fatal(err)
	}

	if !mat.EqualApprox(tdA, tdB, 1e-12) {
		t.Error("λ = 0 td errors do not match 1-step q-learning")
	}
	if !mat.EqualApprox(batchA, batchB, 1e-12) {
		t.Error("λ = 0 loss does not match 1-step q-learning")
	}

	// A nonzero λ mixes longer returns in and must change the result
	mixed := qlambda
	mixed.Lambda = 0.9
	lossC, err := NewMtrlDynaUsfaLoss(net, mixed)
	if err != nil {
		t.Fatal(err)
	}
	tdC, _, _, err := lossC.Compute(data, online, target, params,
		targetParams, randkey.New(3))
	if err != nil {
		t.Fatal(err)
	}
	if mat.EqualApprox(tdA, tdC, 1e-12) {
		t.Error("λ = 0.9 td errors are identical to the one-step bootstrap")
	}
}

func TestOnTaskSFStatsMasked(t *testing.T) {
	net, params, targetParams, data, online, target := buildScenario(t)

	config := fullConfig()
	config.DynaCoeff = 0
	config.ModelCoeff = 0
	loss, err := NewMtrlDynaUsfaLoss(net, config)
	if err != nil {
		t.Fatal(err)
	}

	_, _, before, err := loss.Compute(data, online, target, params,
		targetParams, randkey.New(3))
	if err != nil {
		t.Fatal(err)
	}

	// The final step of element 0 lies past episode termination, so the
	// SF statistics must not see its raw values
	online[testT-1][0].SF.Set(0, 0, online[testT-1][0].SF.At(0, 0)+100.0)

	_, _, after, err := loss.Compute(data, online, target, params,
		targetParams, randkey.New(3))
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"1.online.3.sf_mean",
		"1.online.3.sf_var", "0.total_loss"} {
		if before[name] != after[name] {
			t.Errorf("metric %q saw a masked SF \n\twant(%v)\n\thave(%v)",
				name, before[name], after[name])
		}
	}
}

func TestConfigValidate(t *testing.T) {
	config := DefaultConfig()
	if err := config.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}

	bad := DefaultConfig()
	bad.Discount = 1.5
	if err := bad.Validate(); err == nil {
		t.Error("expected error for discount > 1")
	}

	bad = DefaultConfig()
	bad.LossFn = TDKind(12)
	if err := bad.Validate(); err == nil {
		t.Error("expected error for unknown loss fn")
	}

	bad = DefaultConfig()
	bad.MaskZeroFeatures = 2
	if err := bad.Validate(); err == nil {
		t.Error("expected error for maskZeroFeatures > 1")
	}
}
