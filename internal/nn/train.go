package nn

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// probability clipping used by the cross-entropy loss
const clipEpsilon = 1e-7

// Dataset is a batch of samples and their one-hot targets.
type Dataset struct {
	X *mat.Dense
	Y *mat.Dense
}

// NewDataset builds a Dataset from row vectors and one-hot targets.
func NewDataset(x, targets [][]float64) (*Dataset, error) {
	if len(x) == 0 {
		return nil, errors.New("dataset is empty")
	}
	if len(x) != len(targets) {
		return nil, fmt.Errorf("%d samples but %d targets", len(x), len(targets))
	}
	width, classes := len(x[0]), len(targets[0])
	if classes == 0 {
		return nil, errors.New("targets are empty")
	}
	xs := mat.NewDense(len(x), width, nil)
	ys := mat.NewDense(len(x), classes, nil)
	for i, row := range x {
		if len(row) != width {
			return nil, fmt.Errorf("sample %d has %d values, expected %d", i, len(row), width)
		}
		if !isOneHot(targets[i], classes) {
			return nil, fmt.Errorf("sample %d target is not a one-hot vector of width %d", i, classes)
		}
		xs.SetRow(i, row)
		ys.SetRow(i, targets[i])
	}
	return &Dataset{X: xs, Y: ys}, nil
}

func isOneHot(v []float64, width int) bool {
	if len(v) != width {
		return false
	}
	ones := 0
	for _, x := range v {
		switch x {
		case 0:
		case 1:
			ones++
		default:
			return false
		}
	}
	return ones == 1
}

// Len is the number of samples.
func (d *Dataset) Len() int {
	r, _ := d.X.Dims()
	return r
}

func (d *Dataset) rows(idx []int) *Dataset {
	_, xc := d.X.Dims()
	_, yc := d.Y.Dims()
	x := mat.NewDense(len(idx), xc, nil)
	y := mat.NewDense(len(idx), yc, nil)
	for k, i := range idx {
		x.SetRow(k, d.X.RawRowView(i))
		y.SetRow(k, d.Y.RawRowView(i))
	}
	return &Dataset{X: x, Y: y}
}

// TrainConfig controls Fit.
type TrainConfig struct {
	Epochs    int
	BatchSize int
	Optimizer Adam
	// Rand drives shuffling and dropout.
	Rand *rand.Rand
}

// EpochStats are the metrics recorded after each epoch.
type EpochStats struct {
	Epoch       int     `json:"epoch"`
	Loss        float64 `json:"loss"`
	Accuracy    float64 `json:"accuracy"`
	ValLoss     float64 `json:"val_loss,omitempty"`
	ValAccuracy float64 `json:"val_accuracy,omitempty"`
}

// History is the per-epoch training record.
type History []EpochStats

// Last returns the final epoch's stats, or the zero value.
func (h History) Last() EpochStats {
	if len(h) == 0 {
		return EpochStats{}
	}
	return h[len(h)-1]
}

type gradient struct {
	dW *mat.Dense
	dB *mat.VecDense
}

// Fit trains the network with mini-batch Adam on categorical cross-entropy.
// val may be nil. onEpoch, if set, is called after every epoch.
func (n *Network) Fit(ctx context.Context, train, val *Dataset, cfg TrainConfig, onEpoch func(EpochStats)) (History, error) {
	if err := n.validate(); err != nil {
		return nil, err
	}
	if n.Layers[len(n.Layers)-1].Activation != Softmax {
		return nil, errors.New("output layer must be softmax to train with cross-entropy")
	}
	if train == nil || train.Len() == 0 {
		return nil, errors.New("no training samples")
	}
	if _, c := train.X.Dims(); c != n.InputSize() {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrInputSize, n.InputSize(), c)
	}
	if cfg.Epochs <= 0 || cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("epochs and batch size must be positive, got %d and %d", cfg.Epochs, cfg.BatchSize)
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(0, 0))
	}

	opt := newAdamState(cfg.Optimizer, n.Layers)
	history := make(History, 0, cfg.Epochs)

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		perm := cfg.Rand.Perm(train.Len())

		var lossSum float64
		var correct int
		for start := 0; start < len(perm); start += cfg.BatchSize {
			if err := ctx.Err(); err != nil {
				return history, err
			}
			batch := train.rows(perm[start:min(start+cfg.BatchSize, len(perm))])
			loss, ok, grads := n.backprop(batch, cfg.Rand)
			opt.step(n.Layers, grads)
			lossSum += loss * float64(batch.Len())
			correct += ok
		}

		stats := EpochStats{
			Epoch:    epoch,
			Loss:     lossSum / float64(train.Len()),
			Accuracy: float64(correct) / float64(train.Len()),
		}
		if val != nil && val.Len() > 0 {
			stats.ValLoss, stats.ValAccuracy = n.Evaluate(val)
		}
		history = append(history, stats)
		if onEpoch != nil {
			onEpoch(stats)
		}
	}
	return history, nil
}

// Evaluate returns the mean loss and accuracy on d without dropout.
func (n *Network) Evaluate(d *Dataset) (loss, accuracy float64) {
	probs := n.predict(d.X)
	return crossEntropy(probs, d.Y), float64(countCorrect(probs, d.Y)) / float64(d.Len())
}

// backprop runs one forward/backward pass and returns the batch loss, the
// number of correct predictions and per-layer gradients.
func (n *Network) backprop(batch *Dataset, rng *rand.Rand) (float64, int, []gradient) {
	last := len(n.Layers) - 1
	acts := make([]mat.Matrix, 0, len(n.Layers)+1)
	zs := make([]*mat.Dense, len(n.Layers))
	masks := make([]*mat.Dense, len(n.Layers))

	acts = append(acts, batch.X)
	for i, l := range n.Layers {
		z, out := l.forward(acts[i])
		if i < last && n.Dropout > 0 {
			masks[i] = dropoutMask(out, n.Dropout, rng)
			out.MulElem(out, masks[i])
		}
		zs[i] = z
		acts = append(acts, out)
	}

	probs := acts[last+1].(*mat.Dense)
	loss := crossEntropy(probs, batch.Y)
	correct := countCorrect(probs, batch.Y)

	grads := make([]gradient, len(n.Layers))
	delta := new(mat.Dense)
	delta.Sub(probs, batch.Y)
	delta.Scale(1/float64(batch.Len()), delta)

	for i := last; i >= 0; i-- {
		dW := new(mat.Dense)
		dW.Mul(acts[i].T(), delta)
		grads[i] = gradient{dW: dW, dB: columnSums(delta)}
		if i == 0 {
			break
		}

		dA := new(mat.Dense)
		dA.Mul(delta, n.Layers[i].W.T())
		if masks[i-1] != nil {
			dA.MulElem(dA, masks[i-1])
		}
		if n.Layers[i-1].Activation == ReLU {
			z := zs[i-1]
			dA.Apply(func(r, c int, v float64) float64 {
				if z.At(r, c) <= 0 {
					return 0
				}
				return v
			}, dA)
		}
		delta = dA
	}
	return loss, correct, grads
}

// dropoutMask zeroes each unit with probability rate and scales the rest by
// 1/(1-rate) so the expected activation is unchanged.
func dropoutMask(like *mat.Dense, rate float64, rng *rand.Rand) *mat.Dense {
	r, c := like.Dims()
	keep := 1 / (1 - rate)
	data := make([]float64, r*c)
	for i := range data {
		if rng.Float64() >= rate {
			data[i] = keep
		}
	}
	return mat.NewDense(r, c, data)
}

func columnSums(m *mat.Dense) *mat.VecDense {
	r, c := m.Dims()
	sums := mat.NewVecDense(c, nil)
	for i := range r {
		floats.Add(sums.RawVector().Data, m.RawRowView(i))
	}
	return sums
}

func crossEntropy(probs, targets *mat.Dense) float64 {
	r, c := probs.Dims()
	var total float64
	for i := range r {
		for j := range c {
			if y := targets.At(i, j); y != 0 {
				p := math.Min(math.Max(probs.At(i, j), clipEpsilon), 1-clipEpsilon)
				total -= y * math.Log(p)
			}
		}
	}
	return total / float64(r)
}

func countCorrect(probs, targets *mat.Dense) int {
	r, _ := probs.Dims()
	var correct int
	for i := range r {
		if floats.MaxIdx(probs.RawRowView(i)) == floats.MaxIdx(targets.RawRowView(i)) {
			correct++
		}
	}
	return correct
}
