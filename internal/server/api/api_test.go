package api

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/inference"
	"github.com/ayusman/mudra/internal/store"
)

// newTestStore creates a new Store with a temporary database for testing.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fixedNetwork always returns the same distribution, or err.
type fixedNetwork struct {
	probs []float64
	err   error
}

func (n fixedNetwork) Forward([]float64) ([]float64, error) {
	if n.err != nil {
		return nil, n.err
	}
	return append([]float64(nil), n.probs...), nil
}
func (n fixedNetwork) InputSize() int  { return detector.VectorLen }
func (n fixedNetwork) OutputSize() int { return len(n.probs) }

// newReadyPredictor classifies everything as "Peace" with confidence 0.8.
func newReadyPredictor(t *testing.T, net fixedNetwork) *inference.Predictor {
	t.Helper()
	if net.probs == nil {
		net.probs = []float64{0.2, 0.8}
	}
	p, err := inference.NewPredictor(net, gesture.FitEncoder([]string{"Hello", "Peace"}), inference.RawLandmarks{})
	if err != nil {
		t.Fatalf("NewPredictor() error = %v", err)
	}
	return p
}

func newNotReadyPredictor(t *testing.T) *inference.Predictor {
	t.Helper()
	cfg := config.New().Model
	cfg.Path = filepath.Join(t.TempDir(), "missing.json")
	cfg.EncoderPath = filepath.Join(t.TempDir(), "missing_encoder.json")
	return inference.LoadPredictor(context.Background(), cfg)
}

// imageNetwork accepts size inputs and answers uniformly over two classes.
type imageNetwork struct {
	size int
}

func (n imageNetwork) Forward([]float64) ([]float64, error) { return []float64{0.5, 0.5}, nil }
func (n imageNetwork) InputSize() int                       { return n.size }
func (n imageNetwork) OutputSize() int                      { return 2 }

func newEncoder() *gesture.LabelEncoder {
	return gesture.FitEncoder([]string{"Hello", "Peace"})
}
