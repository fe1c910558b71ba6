package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Layer implements a single layer of a neural network
type Layer interface {
	fwd(*G.Node) (*G.Node, error)
	CloneTo(g *G.ExprGraph) Layer

	Weights() *G.Node
	Bias() *G.Node
	Activation() *Activation
}

// fcLayer implements a fully connected layer of a feed forward neural
// network
type fcLayer struct {
	weights *G.Node
	bias    *G.Node
	act     *Activation
}

// newFCLayer creates a fully connected layer of out units on graph g,
// taking in units as input. The prefix and suffix parameters
// disambiguate node names when a graph holds several networks.
func newFCLayer(g *G.ExprGraph, in, out int, useBias bool,
	act *Activation, init G.InitWFn, prefix, suffix string) *fcLayer {
	weightName := fmt.Sprintf("%vL%vW%v", prefix, out, suffix)
	weights := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(in, out),
		G.WithName(weightName),
		G.WithInit(init),
	)

	var bias *G.Node
	if useBias {
		biasName := fmt.Sprintf("%vL%vB%v", prefix, out, suffix)
		bias = G.NewVector(
			g,
			tensor.Float64,
			G.WithShape(out),
			G.WithName(biasName),
			G.WithInit(init),
		)
	}

	return &fcLayer{weights: weights, bias: bias, act: act}
}

// addfcLayers creates the fully connected layers of an MLP on graph g.
// For index i, sizes[i] is the number of units in layer i, biases[i]
// denotes whether layer i has a bias unit, and activations[i] is the
// activation function of layer i.
func addfcLayers(g *G.ExprGraph, sizes []int, biases []bool,
	activations []*Activation, init G.InitWFn, features int,
	prefix, suffix string) []Layer {
	layers := make([]Layer, len(sizes))
	in := features
	for i, out := range sizes {
		name := fmt.Sprintf("%v%v", prefix, i)
		layers[i] = newFCLayer(g, in, out, biases[i], activations[i], init,
			name, suffix)
		in = out
	}
	return layers
}

// fwd adds the forward pass of the fcLayer to the computational graph
func (f *fcLayer) fwd(x *G.Node) (*G.Node, error) {
	if f.Weights() != nil {
		x = G.Must(G.Mul(x, f.Weights()))
	}
	if f.Bias() != nil {
		// Broadcast the bias weights to all samples along the batch
		// dimension
		x = G.Must(G.BroadcastAdd(x, f.Bias(), nil, []byte{0}))
	}
	if act := f.Activation(); act == nil || act.IsNil() {
		return x, nil
	}
	return f.act.fwd(x)
}

// CloneTo clones an fcLayer to a new computational graph
func (f *fcLayer) CloneTo(g *G.ExprGraph) Layer {
	var newWeights, newBias *G.Node

	if f.Weights() != nil {
		newWeights = f.Weights().CloneTo(g)
	}
	if f.Bias() != nil {
		newBias = f.Bias().CloneTo(g)
	}

	return &fcLayer{
		weights: newWeights,
		bias:    newBias,
		act:     f.act,
	}
}

func (f *fcLayer) Activation() *Activation {
	return f.act
}

func (f *fcLayer) Bias() *G.Node {
	return f.bias
}

func (f *fcLayer) Weights() *G.Node {
	return f.weights
}
