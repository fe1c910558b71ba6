// Package expreplay implements experience replay for successor-feature
// agents. Alongside the usual (s, a, r, ℽ, s') tuple, the buffer
// stores the cumulant vector emitted by each transition and the task
// vector active when it was gathered, since successor features are
// regressed towards cumulants rather than rewards.
package expreplay

import (
	"container/list"
	"fmt"

	"github.com/wcarvalho/neurorl/timestep"
	"github.com/wcarvalho/neurorl/utils/intutils"
)

// Batch is a batch of transitions sampled from a replay buffer. All
// fields are flat, row major slices with BatchSize rows. Actions are
// stored as one-hot vectors.
type Batch struct {
	States     []float64 // [batch, featureSize]
	Actions    []float64 // [batch, actionSize]
	Rewards    []float64 // [batch]
	Discounts  []float64 // [batch]
	Cumulants  []float64 // [batch, cumulantSize]
	Tasks      []float64 // [batch, cumulantSize]
	NextStates []float64 // [batch, featureSize]
}

// ExperienceReplayer implements an experience replay buffer
type ExperienceReplayer interface {
	// Add adds a transition to the buffer
	Add(t timestep.Transition) error

	// Sample samples a batch of experience from the buffer
	Sample() (*Batch, error)

	// Capacity returns the current number of samples in the buffer
	Capacity() int

	// MaxCapacity returns the maximum allowable samples in the buffer
	MaxCapacity() int

	// MinCapacity returns the number of samples required to be in
	// the buffer before the buffer can be sampled
	MinCapacity() int

	// BatchSize returns the number of samples returned by Sample()
	BatchSize() int
}

// cache implements a concrete ExperienceReplayer
type cache struct {
	stateCache     []float64
	actionCache    []float64
	rewardCache    []float64
	discountCache  []float64
	cumulantCache  []float64
	taskCache      []float64
	nextStateCache []float64

	// The indices of the cache that are empty and have no data
	emptyIndices []int

	// The indices of the cache that have data
	inUseIndices []int

	// orderOfInsert outlines the chronological order of inserts. For
	// i > j, the data at index orderOfInsert[i] was inserted into the
	// buffer after the data at index orderOfInsert[j]
	orderOfInsert *list.List

	// Outlines how data is removed and sampled
	remover Selector
	sampler Selector

	minCapacity  int
	maxCapacity  int
	featureSize  int
	actionSize   int
	cumulantSize int
}

// New creates and returns a new ExperienceReplayer. The remover and
// sampler parameters are Selectors which determine how data is removed
// and sampled from the replay buffer. The featureSize, actionSize, and
// cumulantSize parameters define the sizes of the observation, one-hot
// action, and cumulant vectors.
func New(remover, sampler Selector, minCapacity, maxCapacity, featureSize,
	actionSize, cumulantSize int) (ExperienceReplayer, error) {
	if minCapacity <= 0 {
		return &cache{}, fmt.Errorf("new: minCapacity must be > 0")
	}
	if maxCapacity < 1 {
		return &cache{}, fmt.Errorf("new: maxCapacity must be >= 1")
	}
	if maxCapacity < sampler.BatchSize() {
		return &cache{}, fmt.Errorf("new: cannot have batch size(%v) > max "+
			"buffer capacity (%v)", sampler.BatchSize(), maxCapacity)
	}

	orderOfInsert := list.New()

	remover.registerAsRemover()

	emptyIndices := make([]int, maxCapacity)
	for i := 0; i < maxCapacity; i++ {
		emptyIndices[i] = i
	}

	return &cache{
		stateCache:     make([]float64, maxCapacity*featureSize),
		actionCache:    make([]float64, maxCapacity*actionSize),
		rewardCache:    make([]float64, maxCapacity),
		discountCache:  make([]float64, maxCapacity),
		cumulantCache:  make([]float64, maxCapacity*cumulantSize),
		taskCache:      make([]float64, maxCapacity*cumulantSize),
		nextStateCache: make([]float64, maxCapacity*featureSize),

		emptyIndices:  emptyIndices,
		inUseIndices:  make([]int, 0, maxCapacity),
		orderOfInsert: orderOfInsert,

		remover: remover,
		sampler: sampler,

		minCapacity:  minCapacity,
		maxCapacity:  maxCapacity,
		featureSize:  featureSize,
		actionSize:   actionSize,
		cumulantSize: cumulantSize,
	}, nil
}

// sampleFrom returns the indices to sample from
func (c *cache) sampleFrom() []int {
	return c.inUseIndices
}

// insertOrder returns a slice of at most n indices which describes
// the order that the first n data were inserted into the buffer.
// The length of the returned slice is the minimum between n and the
// number of elements currently in the buffer
func (c *cache) insertOrder(n int) []int {
	size := intutils.Min(n, c.Capacity())
	insertOrder := make([]int, size)
	element := c.orderOfInsert.Front()

	for i := 0; i < size; i++ {
		insertOrder[i] = element.Value.(int)
		element = element.Next()
		if element == nil {
			break
		}
	}
	return insertOrder
}

// BatchSize returns the number of samples sampled using Sample()
func (c *cache) BatchSize() int {
	return c.sampler.BatchSize()
}

// remove removes elements from the cache using indices sampled from the
// cache's remover
func (c *cache) remove() error {
	if c.Capacity() <= c.minCapacity {
		return fmt.Errorf("remove: cannot remove, cache at min capacity")
	}

	indices := c.remover.choose(c)
	for _, index := range indices {
		for i := range c.inUseIndices {
			if c.inUseIndices[i] == index {
				c.inUseIndices[i] = c.inUseIndices[len(c.inUseIndices)-1]
				c.inUseIndices = c.inUseIndices[:len(c.inUseIndices)-1]
				break
			}
		}
		c.emptyIndices = append(c.emptyIndices, index)
	}
	return nil
}

// removeFront removes the earliest tracked index at which data was
// inserted.
func (c *cache) removeFront() {
	c.orderOfInsert.Remove(c.orderOfInsert.Front())
}

// Sample samples and returns a batch of transitions from the replay
// buffer
func (c *cache) Sample() (*Batch, error) {
	if c.Capacity() == 0 {
		return nil, &ExpReplayError{Op: "sample", Err: errEmptyCache}
	}
	if c.Capacity() < c.MinCapacity() {
		return nil, &ExpReplayError{Op: "sample", Err: errInsufficientSamples}
	}

	indices := c.sampler.choose(c)

	batch := &Batch{
		States:     make([]float64, c.BatchSize()*c.featureSize),
		Actions:    make([]float64, c.BatchSize()*c.actionSize),
		Rewards:    make([]float64, c.BatchSize()),
		Discounts:  make([]float64, c.BatchSize()),
		Cumulants:  make([]float64, c.BatchSize()*c.cumulantSize),
		Tasks:      make([]float64, c.BatchSize()*c.cumulantSize),
		NextStates: make([]float64, c.BatchSize()*c.featureSize),
	}

	for i, index := range indices {
		batchStart := i * c.featureSize
		expStart := index * c.featureSize
		copy(batch.States[batchStart:batchStart+c.featureSize],
			c.stateCache[expStart:expStart+c.featureSize])
		copy(batch.NextStates[batchStart:batchStart+c.featureSize],
			c.nextStateCache[expStart:expStart+c.featureSize])

		batchStart = i * c.actionSize
		expStart = index * c.actionSize
		copy(batch.Actions[batchStart:batchStart+c.actionSize],
			c.actionCache[expStart:expStart+c.actionSize])

		batchStart = i * c.cumulantSize
		expStart = index * c.cumulantSize
		copy(batch.Cumulants[batchStart:batchStart+c.cumulantSize],
			c.cumulantCache[expStart:expStart+c.cumulantSize])
		copy(batch.Tasks[batchStart:batchStart+c.cumulantSize],
			c.taskCache[expStart:expStart+c.cumulantSize])

		batch.Rewards[i] = c.rewardCache[index]
		batch.Discounts[i] = c.discountCache[index]
	}

	return batch, nil
}

// Capacity returns the current number of elements in the cache that
// are available for sampling
func (c *cache) Capacity() int {
	return len(c.inUseIndices)
}

// MaxCapacity returns the maximum number of elements that are allowed
// in the cache
func (c *cache) MaxCapacity() int {
	return c.maxCapacity
}

// MinCapacity returns the minimum number of elements required in the
// cache before sampling is allowed
func (c *cache) MinCapacity() int {
	return c.minCapacity
}

// Add adds a transition to the cache
func (c *cache) Add(t timestep.Transition) error {
	if c.Capacity() >= c.maxCapacity {
		err := c.remove()
		if err != nil {
			return fmt.Errorf("add: cannot add to buffer: %v", err)
		}
	}

	if t.State.Len() != c.featureSize || t.NextState.Len() != c.featureSize {
		return fmt.Errorf("add: invalid feature size \n\twant(%v)\n\thave(%v)",
			c.featureSize, t.State.Len())
	}
	if t.Action.Len() != c.actionSize {
		return fmt.Errorf("add: invalid action size \n\twant(%v)\n\thave(%v)",
			c.actionSize, t.Action.Len())
	}
	if t.Cumulants == nil || t.Cumulants.Len() != c.cumulantSize {
		return fmt.Errorf("add: transition carries no cumulants of size %v",
			c.cumulantSize)
	}
	if t.Task == nil || t.Task.Len() != c.cumulantSize {
		return fmt.Errorf("add: transition carries no task of size %v",
			c.cumulantSize)
	}

	emptyIndicesLength := len(c.emptyIndices)
	index := c.emptyIndices[emptyIndicesLength-1]
	c.emptyIndices = c.emptyIndices[:emptyIndicesLength-1]
	c.orderOfInsert.PushBack(index)
	c.inUseIndices = append(c.inUseIndices, index)

	stateInd := index * c.featureSize
	for i := 0; i < c.featureSize; i++ {
		c.stateCache[stateInd+i] = t.State.AtVec(i)
		c.nextStateCache[stateInd+i] = t.NextState.AtVec(i)
	}

	actionInd := index * c.actionSize
	for i := 0; i < c.actionSize; i++ {
		c.actionCache[actionInd+i] = t.Action.AtVec(i)
	}

	cumulantInd := index * c.cumulantSize
	for i := 0; i < c.cumulantSize; i++ {
		c.cumulantCache[cumulantInd+i] = t.Cumulants.AtVec(i)
		c.taskCache[cumulantInd+i] = t.Task.AtVec(i)
	}

	c.rewardCache[index] = t.Reward
	c.discountCache[index] = t.Discount

	return nil
}
