package expreplay

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/wcarvalho/neurorl/timestep"
)

func testTransition(id float64) timestep.Transition {
	return timestep.Transition{
		State:      mat.NewVecDense(2, []float64{id, 0}),
		Action:     mat.NewVecDense(2, []float64{1, 0}),
		Reward:     id,
		Discount:   1,
		NextState:  mat.NewVecDense(2, []float64{id + 1, 0}),
		NextAction: mat.NewVecDense(2, []float64{0, 1}),
		Cumulants:  mat.NewVecDense(3, []float64{id, 0, 0}),
		Task:       mat.NewVecDense(3, []float64{1, 0, 0}),
	}
}

func TestCacheSampleErrors(t *testing.T) {
	replay, err := New(NewFifoSelector(1), NewFifoSelector(1), 2, 4, 2, 2, 3)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := replay.Sample(); !IsEmptyBuffer(err) {
		t.Errorf("sampling an empty buffer \n\twant(empty buffer error)"+
			"\n\thave(%v)", err)
	}

	if err := replay.Add(testTransition(1)); err != nil {
		t.Fatal(err)
	}
	if _, err := replay.Sample(); !IsInsufficientSamples(err) {
		t.Errorf("sampling below min capacity \n\twant(insufficient "+
			"samples error)\n\thave(%v)", err)
	}
}

func TestCacheFifoSample(t *testing.T) {
	replay, err := New(NewFifoSelector(1), NewFifoSelector(2), 1, 4, 2, 2, 3)
	if err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 3; i++ {
		if err := replay.Add(testTransition(float64(i))); err != nil {
			t.Fatal(err)
		}
	}
	if replay.Capacity() != 3 {
		t.Errorf("capacity \n\twant(3)\n\thave(%v)", replay.Capacity())
	}

	// A FiFo sampler returns the two oldest transitions in insertion
	// order
	batch, err := replay.Sample()
	if err != nil {
		t.Fatal(err)
	}
	if batch.Rewards[0] != 1 || batch.Rewards[1] != 2 {
		t.Errorf("fifo sample rewards \n\twant([1 2])\n\thave(%v)",
			batch.Rewards)
	}
	if batch.Cumulants[0] != 1 || batch.Cumulants[3] != 2 {
		t.Errorf("fifo sample cumulants \n\twant(1, 2)\n\thave(%v, %v)",
			batch.Cumulants[0], batch.Cumulants[3])
	}
	if batch.Tasks[0] != 1 || batch.Tasks[1] != 0 {
		t.Errorf("fifo sample task \n\twant([1 0 ...])\n\thave(%v)",
			batch.Tasks[:3])
	}
}

func TestCacheEviction(t *testing.T) {
	replay, err := New(NewFifoSelector(1), NewFifoSelector(1), 1, 2, 2, 2, 3)
	if err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 3; i++ {
		if err := replay.Add(testTransition(float64(i))); err != nil {
			t.Fatal(err)
		}
	}

	// The FiFo remover evicted the oldest transition to make room
	if replay.Capacity() != 2 {
		t.Errorf("capacity after eviction \n\twant(2)\n\thave(%v)",
			replay.Capacity())
	}
	batch, err := replay.Sample()
	if err != nil {
		t.Fatal(err)
	}
	if batch.Rewards[0] != 2 {
		t.Errorf("oldest remaining reward \n\twant(2)\n\thave(%v)",
			batch.Rewards[0])
	}
}

func TestCacheRejectsMissingCumulants(t *testing.T) {
	replay, err := New(NewFifoSelector(1), NewFifoSelector(1), 1, 2, 2, 2, 3)
	if err != nil {
		t.Fatal(err)
	}

	transition := testTransition(1)
	transition.Cumulants = nil
	if err := replay.Add(transition); err == nil {
		t.Error("transition without cumulants was not rejected")
	}
}
