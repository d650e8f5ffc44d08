package nn

import (
	"bytes"
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"testing"
)

func testArch(outputs int) Architecture {
	return Architecture{Inputs: 63, Hidden: []int{128, 64}, Outputs: outputs, Dropout: 0.3}
}

func newTestNetwork(t *testing.T, outputs int, seed uint64) *Network {
	t.Helper()
	n, err := New(testArch(outputs), rand.New(rand.NewPCG(seed, seed)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return n
}

// separable returns two clusters around -1 and +1 in every dimension, with
// one-hot targets.
func separable(perClass int, seed uint64) ([][]float64, [][]float64) {
	rng := rand.New(rand.NewPCG(seed, seed))
	var x, y [][]float64
	for class := range 2 {
		center := float64(2*class - 1)
		for range perClass {
			row := make([]float64, 63)
			for j := range row {
				row[j] = center + rng.NormFloat64()*0.1
			}
			target := make([]float64, 2)
			target[class] = 1
			x = append(x, row)
			y = append(y, target)
		}
	}
	return x, y
}

func TestNew(t *testing.T) {
	t.Run("builds requested shape", func(t *testing.T) {
		n := newTestNetwork(t, 5, 1)

		if n.InputSize() != 63 {
			t.Errorf("expected input size 63, got %d", n.InputSize())
		}
		if n.OutputSize() != 5 {
			t.Errorf("expected output size 5, got %d", n.OutputSize())
		}
		if len(n.Layers) != 3 {
			t.Fatalf("expected 3 layers, got %d", len(n.Layers))
		}
		if n.Layers[0].Activation != ReLU || n.Layers[2].Activation != Softmax {
			t.Errorf("unexpected activations: %s, %s", n.Layers[0].Activation, n.Layers[2].Activation)
		}
	})

	t.Run("rejects bad architectures", func(t *testing.T) {
		rng := rand.New(rand.NewPCG(1, 1))
		bad := []Architecture{
			{Inputs: 0, Outputs: 2},
			{Inputs: 63, Outputs: 0},
			{Inputs: 63, Outputs: 2, Dropout: 1},
			{Inputs: 63, Outputs: 2, Hidden: []int{0}},
		}
		for _, arch := range bad {
			if _, err := New(arch, rng); err == nil {
				t.Errorf("expected error for %+v", arch)
			}
		}
	})
}

func TestForward(t *testing.T) {
	n := newTestNetwork(t, 4, 7)

	t.Run("outputs a distribution", func(t *testing.T) {
		input := make([]float64, 63)
		for i := range input {
			input[i] = float64(i) / 63
		}

		out, err := n.Forward(input)
		if err != nil {
			t.Fatalf("Forward() error = %v", err)
		}
		if len(out) != 4 {
			t.Fatalf("expected 4 outputs, got %d", len(out))
		}
		var sum float64
		for _, p := range out {
			if p < 0 || p > 1 {
				t.Errorf("probability out of range: %f", p)
			}
			sum += p
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("expected probabilities to sum to 1, got %f", sum)
		}
	})

	t.Run("rejects wrong width", func(t *testing.T) {
		_, err := n.Forward(make([]float64, 62))
		if !errors.Is(err, ErrInputSize) {
			t.Errorf("expected ErrInputSize, got %v", err)
		}
	})

	t.Run("does not modify input", func(t *testing.T) {
		input := make([]float64, 63)
		input[0] = 0.5
		n.Forward(input)
		if input[0] != 0.5 {
			t.Error("input was modified")
		}
	})
}

func TestSoftmaxInPlace(t *testing.T) {
	row := []float64{1000, 1001, 1002}
	softmaxInPlace(row)

	var sum float64
	for _, v := range row {
		if math.IsNaN(v) {
			t.Fatal("softmax overflowed to NaN")
		}
		sum += v
	}
	if math.Abs(sum-1) > 1e-12 {
		t.Errorf("expected sum 1, got %f", sum)
	}
	if !(row[2] > row[1] && row[1] > row[0]) {
		t.Errorf("softmax should preserve order, got %v", row)
	}
}

func TestSaveLoad(t *testing.T) {
	n := newTestNetwork(t, 3, 11)

	var buf bytes.Buffer
	if err := n.Save(&buf); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loaded.InputSize() != n.InputSize() || loaded.OutputSize() != n.OutputSize() {
		t.Fatalf("shape changed: %d->%d vs %d->%d", loaded.InputSize(), loaded.OutputSize(), n.InputSize(), n.OutputSize())
	}

	x, _ := separable(3, 2)
	for i, input := range x {
		want, _ := n.Forward(input)
		got, err := loaded.Forward(input)
		if err != nil {
			t.Fatalf("Forward() error = %v", err)
		}
		for j := range want {
			if got[j] != want[j] {
				t.Errorf("sample %d class %d: expected %v, got %v", i, j, want[j], got[j])
			}
		}
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "not json", input: "not a model"},
		{name: "wrong format", input: `{"format":"keras","version":1,"inputs":63,"layers":[]}`},
		{name: "wrong version", input: `{"format":"mudra-dense","version":9,"inputs":63,"layers":[]}`},
		{name: "no layers", input: `{"format":"mudra-dense","version":1,"inputs":63,"layers":[]}`},
		{name: "garbage weights", input: `{"format":"mudra-dense","version":1,"inputs":63,"layers":[{"activation":"softmax","weights":"AAAA","bias":[0]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.input))
			if !errors.Is(err, ErrInvalidModel) {
				t.Errorf("expected ErrInvalidModel, got %v", err)
			}
		})
	}
}

func TestLoad_OutputActivation(t *testing.T) {
	for _, act := range []Activation{ReLU, Linear} {
		t.Run(string(act), func(t *testing.T) {
			n := newTestNetwork(t, 3, 5)
			n.Layers[len(n.Layers)-1].Activation = act

			var buf bytes.Buffer
			if err := n.Save(&buf); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			_, err := Load(&buf)
			if !errors.Is(err, ErrInvalidModel) {
				t.Errorf("expected ErrInvalidModel, got %v", err)
			}
		})
	}
}

func TestFit(t *testing.T) {
	x, y := separable(100, 3)
	train, err := NewDataset(x, y)
	if err != nil {
		t.Fatalf("NewDataset() error = %v", err)
	}
	vx, vy := separable(20, 4)
	val, _ := NewDataset(vx, vy)

	cfg := TrainConfig{
		Epochs:    30,
		BatchSize: 32,
		Optimizer: Adam{LearningRate: 0.01, Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-7},
	}

	t.Run("learns separable classes", func(t *testing.T) {
		n := newTestNetwork(t, 2, 5)
		cfg := cfg
		cfg.Rand = rand.New(rand.NewPCG(42, 42))

		var epochs int
		history, err := n.Fit(context.Background(), train, val, cfg, func(EpochStats) { epochs++ })
		if err != nil {
			t.Fatalf("Fit() error = %v", err)
		}

		if len(history) != 30 || epochs != 30 {
			t.Fatalf("expected 30 epochs, got history=%d callbacks=%d", len(history), epochs)
		}
		if last := history.Last(); last.ValAccuracy < 0.95 {
			t.Errorf("expected validation accuracy >= 0.95, got %f", last.ValAccuracy)
		}
		if history.Last().Loss >= history[0].Loss {
			t.Errorf("expected loss to decrease, got %f -> %f", history[0].Loss, history.Last().Loss)
		}
		if n.OutputSize() != 2 {
			t.Errorf("expected 2 outputs, got %d", n.OutputSize())
		}
	})

	t.Run("same seed gives same history", func(t *testing.T) {
		run := func() History {
			n := newTestNetwork(t, 2, 5)
			cfg := cfg
			cfg.Epochs = 3
			cfg.Rand = rand.New(rand.NewPCG(42, 42))
			h, err := n.Fit(context.Background(), train, nil, cfg, nil)
			if err != nil {
				t.Fatalf("Fit() error = %v", err)
			}
			return h
		}

		a, b := run(), run()
		for i := range a {
			if a[i] != b[i] {
				t.Errorf("epoch %d differs: %+v vs %+v", i+1, a[i], b[i])
			}
		}
	})

	t.Run("stops on cancelled context", func(t *testing.T) {
		n := newTestNetwork(t, 2, 5)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := n.Fit(ctx, train, nil, cfg, nil)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("rejects wrong input width", func(t *testing.T) {
		n, _ := New(Architecture{Inputs: 10, Outputs: 2}, rand.New(rand.NewPCG(1, 1)))

		_, err := n.Fit(context.Background(), train, nil, cfg, nil)
		if !errors.Is(err, ErrInputSize) {
			t.Errorf("expected ErrInputSize, got %v", err)
		}
	})
}

func TestNewDataset(t *testing.T) {
	t.Run("stores one-hot targets", func(t *testing.T) {
		d, err := NewDataset([][]float64{{1, 2}, {3, 4}}, [][]float64{{0, 1, 0}, {1, 0, 0}})
		if err != nil {
			t.Fatalf("NewDataset() error = %v", err)
		}
		if d.Len() != 2 || d.Y.At(0, 1) != 1 || d.Y.At(1, 0) != 1 || d.Y.At(0, 0) != 0 {
			t.Error("unexpected targets")
		}
	})

	t.Run("rejects bad input", func(t *testing.T) {
		tests := []struct {
			name    string
			x       [][]float64
			targets [][]float64
		}{
			{name: "empty", x: nil, targets: nil},
			{name: "count mismatch", x: [][]float64{{1}, {2}}, targets: [][]float64{{1, 0}}},
			{name: "ragged rows", x: [][]float64{{1}, {1, 2}}, targets: [][]float64{{1, 0}, {0, 1}}},
			{name: "ragged targets", x: [][]float64{{1}, {2}}, targets: [][]float64{{1, 0}, {0, 0, 1}}},
			{name: "not one-hot", x: [][]float64{{1}}, targets: [][]float64{{0.5, 0.5}}},
			{name: "no hot entry", x: [][]float64{{1}}, targets: [][]float64{{0, 0}}},
		}
		for _, tt := range tests {
			if _, err := NewDataset(tt.x, tt.targets); err == nil {
				t.Errorf("%s: expected error", tt.name)
			}
		}
	})
}
