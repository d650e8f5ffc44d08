// Package nn implements the small fully connected classifier used for gesture
// recognition, on top of gonum matrices.
package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Activation names the nonlinearity applied after a layer's affine transform.
type Activation string

const (
	ReLU    Activation = "relu"
	Softmax Activation = "softmax"
	Linear  Activation = "linear"
)

func (a Activation) valid() bool {
	switch a {
	case ReLU, Softmax, Linear:
		return true
	}
	return false
}

// Dense is a fully connected layer: a = act(x·W + b).
type Dense struct {
	Activation Activation
	W          *mat.Dense // inputs x outputs
	B          *mat.VecDense
}

// NewDense builds a layer with Glorot-uniform weights and zero bias.
func NewDense(inputs, outputs int, act Activation, init distuv.Uniform) *Dense {
	limit := math.Sqrt(6.0 / float64(inputs+outputs))
	init.Min, init.Max = -limit, limit

	data := make([]float64, inputs*outputs)
	for i := range data {
		data[i] = init.Rand()
	}
	return &Dense{
		Activation: act,
		W:          mat.NewDense(inputs, outputs, data),
		B:          mat.NewVecDense(outputs, nil),
	}
}

// Inputs is the width of the layer's input.
func (l *Dense) Inputs() int {
	r, _ := l.W.Dims()
	return r
}

// Outputs is the width of the layer's output.
func (l *Dense) Outputs() int {
	_, c := l.W.Dims()
	return c
}

// affine returns x·W + b for a batch x (rows are samples).
func (l *Dense) affine(x mat.Matrix) *mat.Dense {
	var z mat.Dense
	z.Mul(x, l.W)
	z.Apply(func(_, j int, v float64) float64 {
		return v + l.B.AtVec(j)
	}, &z)
	return &z
}

// activate applies the layer nonlinearity to z and returns a new matrix.
func (l *Dense) activate(z *mat.Dense) *mat.Dense {
	var a mat.Dense
	switch l.Activation {
	case ReLU:
		a.Apply(func(_, _ int, v float64) float64 {
			return math.Max(0, v)
		}, z)
	case Softmax:
		a.CloneFrom(z)
		rows, _ := a.Dims()
		for i := range rows {
			softmaxInPlace(a.RawRowView(i))
		}
	default:
		a.CloneFrom(z)
	}
	return &a
}

// forward returns the pre-activation and activation for a batch.
func (l *Dense) forward(x mat.Matrix) (z, a *mat.Dense) {
	z = l.affine(x)
	return z, l.activate(z)
}

func (l *Dense) check() error {
	if !l.Activation.valid() {
		return fmt.Errorf("unknown activation %q", l.Activation)
	}
	if l.W == nil || l.B == nil {
		return fmt.Errorf("missing weights")
	}
	if l.B.Len() != l.Outputs() {
		return fmt.Errorf("bias length %d does not match %d outputs", l.B.Len(), l.Outputs())
	}
	return nil
}

// softmaxInPlace normalizes row into a probability distribution.
func softmaxInPlace(row []float64) {
	shift := floats.Max(row)
	for i, v := range row {
		row[i] = math.Exp(v - shift)
	}
	floats.Scale(1/floats.Sum(row), row)
}
