// Package network implements neural network function approximators
// for successor-feature agents. Networks are built on Gorgonia
// computational graphs and leave running the graph to the caller so
// that a single VM can serve both a learner and its policies.
package network

import (
	G "gorgonia.org/gorgonia"
)

// NeuralNet implements a neural network on a Gorgonia computational
// graph. A NeuralNet only builds the graph; callers construct a VM
// over Graph() and run it after SetInput().
type NeuralNet interface {
	Graph() *G.ExprGraph

	// Clone clones the network to a new computational graph, keeping
	// the batch size. CloneWithBatch clones to a new graph with a new
	// input batch size.
	Clone() (NeuralNet, error)
	CloneWithBatch(int) (NeuralNet, error)

	BatchSize() int
	Features() int
	Outputs() int

	// SetInput sets the input node's value before running the graph.
	// The input is a batch of observation vectors in row major order.
	SetInput([]float64) error

	// Set copies the weights of another network of the same
	// architecture. Polyak moves the weights towards those of another
	// network: w <- (1-τ)w + τ·source.
	Set(NeuralNet) error
	Polyak(NeuralNet, float64) error

	Learnables() G.Nodes
	Model() []G.ValueGrad

	// Output returns the value of the output node after the graph has
	// been run; Prediction returns the output node itself.
	Output() G.Value
	Prediction() *G.Node
}
