package nn

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrInputSize is returned by Forward for an input of the wrong width.
var ErrInputSize = errors.New("input size does not match network")

// Network is a stack of dense layers ending in a softmax.
// Forward is safe for concurrent use; Fit is not.
type Network struct {
	Layers []*Dense
	// Dropout is the rate applied after every hidden layer during Fit.
	Dropout float64
}

// Architecture describes the layers New builds.
type Architecture struct {
	Inputs  int
	Hidden  []int
	Outputs int
	Dropout float64
}

// New builds an untrained network: Hidden layers use ReLU, the output softmax.
func New(arch Architecture, rng *rand.Rand) (*Network, error) {
	if arch.Inputs <= 0 || arch.Outputs <= 0 {
		return nil, fmt.Errorf("network needs positive input and output sizes, got %d and %d", arch.Inputs, arch.Outputs)
	}
	if arch.Dropout < 0 || arch.Dropout >= 1 {
		return nil, fmt.Errorf("dropout must be in [0,1), got %v", arch.Dropout)
	}

	init := distuv.Uniform{Src: rng}
	n := &Network{Dropout: arch.Dropout}
	prev := arch.Inputs
	for _, width := range arch.Hidden {
		if width <= 0 {
			return nil, fmt.Errorf("hidden layer width must be positive, got %d", width)
		}
		n.Layers = append(n.Layers, NewDense(prev, width, ReLU, init))
		prev = width
	}
	n.Layers = append(n.Layers, NewDense(prev, arch.Outputs, Softmax, init))
	return n, nil
}

// InputSize is the expected input vector length.
func (n *Network) InputSize() int {
	return n.Layers[0].Inputs()
}

// OutputSize is the number of classes.
func (n *Network) OutputSize() int {
	return n.Layers[len(n.Layers)-1].Outputs()
}

// Forward runs a single sample through the network and returns the output
// probabilities.
func (n *Network) Forward(input []float64) ([]float64, error) {
	if len(input) != n.InputSize() {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrInputSize, n.InputSize(), len(input))
	}
	x := mat.NewDense(1, len(input), append([]float64(nil), input...))
	out := n.predict(x)
	return mat.Row(nil, 0, out), nil
}

// predict runs a batch without dropout.
func (n *Network) predict(x mat.Matrix) *mat.Dense {
	var a mat.Matrix = x
	var out *mat.Dense
	for _, l := range n.Layers {
		_, out = l.forward(a)
		a = out
	}
	return out
}

func (n *Network) validate() error {
	if len(n.Layers) == 0 {
		return errors.New("network has no layers")
	}
	for i, l := range n.Layers {
		if err := l.check(); err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}
		if i > 0 && l.Inputs() != n.Layers[i-1].Outputs() {
			return fmt.Errorf("layer %d expects %d inputs, previous layer has %d outputs", i, l.Inputs(), n.Layers[i-1].Outputs())
		}
	}
	return nil
}
