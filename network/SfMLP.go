package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// sfMLP implements a multi-layered perceptron predicting successor
// features. Given a batch of observation vectors, the network outputs
// a [batch, actions*cumulants] matrix where the C contiguous entries
// starting at a*C in each row are the successor features of action a.
type sfMLP struct {
	g         *G.ExprGraph
	layers    []Layer
	input     *G.Node
	actions   int
	cumulants int
	numInputs int
	batchSize int

	hiddenSizes []int
	biases      []bool
	activations []*Activation
	init        G.InitWFn

	learnables G.Nodes
	model      []G.ValueGrad

	prediction *G.Node
	predVal    G.Value
}

// NewSfMLP creates and returns a new MLP that predicts the successor
// features of every action at its input observations. The graph
// parameter g is populated with the network.
//
// The network has len(hiddenSizes) + 1 layers: a final linear layer of
// actions*cumulants units with a bias and no activation is always
// added. For index i, hiddenSizes[i] is the number of units in hidden
// layer i, biases[i] denotes whether hidden layer i has a bias unit,
// and activations[i] is the activation of hidden layer i.
func NewSfMLP(features, batch, actions, cumulants int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation) (NeuralNet, error) {
	if actions < 1 || cumulants < 1 {
		return nil, fmt.Errorf("newsfmlp: non-positive head size "+
			"[A=%v C=%v]", actions, cumulants)
	}
	if len(hiddenSizes) != len(activations) {
		msg := "newsfmlp: invalid number of activations" +
			"\n\twant(%d)\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(activations))
	}
	if len(hiddenSizes) != len(biases) {
		msg := "newsfmlp: invalid number of biases\n\twant(%d)" +
			"\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(biases))
	}

	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName("input"), G.WithInit(G.Zeroes()))

	return newSfMLPFromInput(input, actions, cumulants, g, hiddenSizes,
		biases, init, activations)
}

// newSfMLPFromInput builds an sfMLP whose forward pass starts at a
// specific input node.
func newSfMLPFromInput(input *G.Node, actions, cumulants int,
	g *G.ExprGraph, hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation) (NeuralNet, error) {
	if !input.IsMatrix() {
		return nil, fmt.Errorf("newsfmlpfrominput: input must be a matrix")
	}

	batch := input.Shape()[0]
	features := input.Shape()[1]

	// Final linear layer producing the flattened [A, C] successor
	// features
	sizes := append([]int{}, hiddenSizes...)
	sizes = append(sizes, actions*cumulants)
	layerBiases := append([]bool{}, biases...)
	layerBiases = append(layerBiases, true)
	layerActivations := append([]*Activation{}, activations...)
	layerActivations = append(layerActivations, Identity())

	layers := addfcLayers(g, sizes, layerBiases, layerActivations, init,
		features, "", "")

	network := sfMLP{
		g:           g,
		layers:      layers,
		input:       input,
		actions:     actions,
		cumulants:   cumulants,
		numInputs:   features,
		batchSize:   batch,
		hiddenSizes: hiddenSizes,
		biases:      biases,
		activations: activations,
		init:        init,
	}
	_, err := network.fwd(input)
	if err != nil {
		msg := "newsfmlp: could not compute forward pass: %v"
		return &sfMLP{}, fmt.Errorf(msg, err)
	}

	return &network, nil
}

// Graph returns the computational graph of the sfMLP
func (e *sfMLP) Graph() *G.ExprGraph {
	return e.g
}

// Clone clones an sfMLP
func (e *sfMLP) Clone() (NeuralNet, error) {
	return e.CloneWithBatch(e.batchSize)
}

// CloneWithBatch clones an sfMLP with a new input batch size
func (e *sfMLP) CloneWithBatch(batchSize int) (NeuralNet, error) {
	graph := G.NewGraph()

	if !e.input.IsMatrix() {
		return nil, fmt.Errorf("clonewithbatch: invalid input type")
	}
	input := G.NewMatrix(
		graph,
		tensor.Float64,
		G.WithShape(batchSize, e.numInputs),
		G.WithName("input"),
		G.WithInit(G.Zeroes()),
	)

	// Copy fully connected layers
	layers := make([]Layer, len(e.layers))
	for i := range e.layers {
		layers[i] = e.layers[i].CloneTo(graph)
	}

	network := sfMLP{
		g:           graph,
		layers:      layers,
		input:       input,
		actions:     e.actions,
		cumulants:   e.cumulants,
		numInputs:   e.numInputs,
		batchSize:   batchSize,
		hiddenSizes: e.hiddenSizes,
		biases:      e.biases,
		activations: e.activations,
		init:        e.init,
	}
	_, err := network.fwd(input)
	if err != nil {
		return nil, fmt.Errorf("clonewithbatch: could not clone: %v", err)
	}

	return &network, nil
}

// BatchSize returns the batch size of inputs to the network
func (e *sfMLP) BatchSize() int {
	return e.batchSize
}

// Features returns the number of features in a single observation
// vector that the network takes as input.
func (e *sfMLP) Features() int {
	return e.numInputs
}

// Outputs returns the number of outputs from the network, which is
// the flattened successor-feature size actions*cumulants.
func (e *sfMLP) Outputs() int {
	return e.actions * e.cumulants
}

// SetInput sets the value of the input node before running the forward
// pass.
func (e *sfMLP) SetInput(input []float64) error {
	if len(input) != e.numInputs*e.batchSize {
		msg := fmt.Sprintf("setinput: invalid number of inputs"+
			"\n\twant(%v)\n\thave(%v)", e.numInputs*e.batchSize, len(input))
		panic(msg)
	}
	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(e.input.Shape()...),
	)
	return G.Let(e.input, inputTensor)
}

// Set sets the weights of an sfMLP to be equal to the weights of
// another sfMLP
func (dest *sfMLP) Set(source NeuralNet) error {
	sourceNodes := source.Learnables()
	nodes := dest.Learnables()
	for i, destLearnable := range nodes {
		sourceLearnable := sourceNodes[i].Clone()
		err := G.Let(destLearnable, sourceLearnable.(*G.Node).Value())
		if err != nil {
			return err
		}
	}
	return nil
}

// Polyak sets the weights of an sfMLP to be a polyak average between
// its existing weights and the weights of another sfMLP
func (dest *sfMLP) Polyak(source NeuralNet, tau float64) error {
	sourceNodes := source.Learnables()
	nodes := dest.Learnables()
	for i := range nodes {
		weights := nodes[i].Value().(*tensor.Dense)
		sourceWeights := sourceNodes[i].Value().(*tensor.Dense)

		weights, err := weights.MulScalar(1-tau, true)
		if err != nil {
			return err
		}

		sourceWeights, err = sourceWeights.MulScalar(tau, true)
		if err != nil {
			return err
		}

		var newWeights *tensor.Dense
		newWeights, err = weights.Add(sourceWeights)
		if err != nil {
			return err
		}

		err = G.Let(nodes[i], newWeights)
		if err != nil {
			return err
		}
	}
	return nil
}

// Learnables returns the learnable nodes in an sfMLP
func (e *sfMLP) Learnables() G.Nodes {
	// Lazy instantiation
	if e.learnables == nil {
		learnables := make([]*G.Node, 0, 2*len(e.layers))
		for i := range e.layers {
			learnables = append(learnables, e.layers[i].Weights())
			if bias := e.layers[i].Bias(); bias != nil {
				learnables = append(learnables, bias)
			}
		}
		e.learnables = G.Nodes(learnables)
	}
	return e.learnables
}

// Model returns the learnable nodes with their gradients
func (e *sfMLP) Model() []G.ValueGrad {
	// Lazy instantiation
	if e.model == nil {
		model := make([]G.ValueGrad, 0, 2*len(e.layers))
		for _, node := range e.Learnables() {
			model = append(model, node)
		}
		e.model = model
	}
	return e.model
}

// fwd performs the forward pass of the sfMLP on the input node
func (e *sfMLP) fwd(input *G.Node) (*G.Node, error) {
	inputShape := input.Shape()[len(input.Shape())-1]
	if inputShape != e.numInputs {
		return nil, fmt.Errorf("fwd: invalid shape for input to neural net:"+
			" \n\twant(%v) \n\thave(%v)", e.numInputs, inputShape)
	}

	pred := input
	var err error
	for i, l := range e.layers {
		if pred, err = l.fwd(pred); err != nil {
			msg := "fwd: could not compute forward pass of layer %v: %v"
			return nil, fmt.Errorf(msg, i, err)
		}
	}

	e.prediction = pred

	G.Read(e.prediction, &e.predVal)

	return pred, nil
}

// Output returns the output of the sfMLP after its graph has been run
func (e *sfMLP) Output() G.Value {
	return e.predVal
}

// Prediction returns the node of the computational graph that stores
// the output of the sfMLP
func (e *sfMLP) Prediction() *G.Node {
	return e.prediction
}
