package nn

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gonum.org/v1/gonum/mat"
)

const (
	// Format identifies a serialized dense network.
	Format = "mudra-dense"
	// Version is the current serialization version.
	Version = 1
)

// ErrInvalidModel is returned when a model file cannot be decoded into a network.
var ErrInvalidModel = errors.New("invalid model file")

type modelFile struct {
	Format  string      `json:"format"`
	Version int         `json:"version"`
	Inputs  int         `json:"inputs"`
	Layers  []layerFile `json:"layers"`
}

type layerFile struct {
	Activation Activation `json:"activation"`
	// Weights holds the gonum binary encoding of W.
	Weights []byte    `json:"weights"`
	Bias    []float64 `json:"bias"`
}

// Save writes the network's architecture and weights to w.
func (n *Network) Save(w io.Writer) error {
	if err := n.validate(); err != nil {
		return err
	}
	file := modelFile{
		Format:  Format,
		Version: Version,
		Inputs:  n.InputSize(),
		Layers:  make([]layerFile, 0, len(n.Layers)),
	}
	for i, l := range n.Layers {
		weights, err := l.W.MarshalBinary()
		if err != nil {
			return fmt.Errorf("encode layer %d: %w", i, err)
		}
		file.Layers = append(file.Layers, layerFile{
			Activation: l.Activation,
			Weights:    weights,
			Bias:       append([]float64(nil), l.B.RawVector().Data...),
		})
	}

	enc := json.NewEncoder(w)
	return enc.Encode(file)
}

// Load reads a network written by Save.
func Load(r io.Reader) (*Network, error) {
	var file modelFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	if file.Format != Format {
		return nil, fmt.Errorf("%w: unexpected format %q", ErrInvalidModel, file.Format)
	}
	if file.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidModel, file.Version)
	}

	n := &Network{Layers: make([]*Dense, 0, len(file.Layers))}
	for i, lf := range file.Layers {
		var w mat.Dense
		if err := w.UnmarshalBinary(lf.Weights); err != nil {
			return nil, fmt.Errorf("%w: layer %d weights: %v", ErrInvalidModel, i, err)
		}
		if len(lf.Bias) == 0 {
			return nil, fmt.Errorf("%w: layer %d has no bias", ErrInvalidModel, i)
		}
		n.Layers = append(n.Layers, &Dense{
			Activation: lf.Activation,
			W:          &w,
			B:          mat.NewVecDense(len(lf.Bias), lf.Bias),
		})
	}

	if err := n.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	if last := n.Layers[len(n.Layers)-1].Activation; last != Softmax {
		return nil, fmt.Errorf("%w: output layer activation is %q, not %q", ErrInvalidModel, last, Softmax)
	}
	if n.InputSize() != file.Inputs {
		return nil, fmt.Errorf("%w: header says %d inputs, first layer takes %d", ErrInvalidModel, file.Inputs, n.InputSize())
	}
	return n, nil
}
