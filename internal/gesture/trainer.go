package gesture

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/ayusman/mudra/internal/dataset"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/nn"
	"github.com/ayusman/mudra/pkg/logger"
	"github.com/ayusman/mudra/pkg/metrics"
)

// TrainerConfig holds the training hyperparameters.
type TrainerConfig struct {
	Epochs          int
	BatchSize       int
	ValidationSplit float64
	Seed            uint64
	LearningRate    float64
	Dropout         float64
	Hidden          []int

	// AugmentOnLoad adds AugmentCopies noisy variants of every loaded sample
	// before splitting.
	AugmentOnLoad bool
	AugmentCopies int
	NoiseStdDev   float64
}

// DefaultTrainerConfig returns 30 epochs of batch 32, an 80/20 split with
// seed 42, and a 128-64 hidden stack with dropout 0.3.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		Epochs:          30,
		BatchSize:       32,
		ValidationSplit: 0.2,
		Seed:            42,
		LearningRate:    0.001,
		Dropout:         0.3,
		Hidden:          []int{128, 64},
		AugmentCopies:   2,
		NoiseStdDev:     0.01,
	}
}

// TrainResult is a trained network with the encoder it was trained against.
type TrainResult struct {
	Network   *nn.Network
	Encoder   *LabelEncoder
	History   nn.History
	TrainSize int
	ValSize   int
}

// Trainer fits the landmark classifier.
type Trainer struct {
	cfg     TrainerConfig
	log     logger.Logger
	metrics *metrics.Manager
}

// TrainerOption configures a Trainer.
type TrainerOption func(*Trainer)

// WithLogger sets the logger used for per-epoch progress.
func WithLogger(l logger.Logger) TrainerOption {
	return func(t *Trainer) { t.log = l }
}

// WithMetrics publishes epoch counts and validation accuracy.
func WithMetrics(m *metrics.Manager) TrainerOption {
	return func(t *Trainer) { t.metrics = m }
}

// NewTrainer creates a new Trainer instance.
func NewTrainer(cfg TrainerConfig, opts ...TrainerOption) *Trainer {
	t := &Trainer{cfg: cfg, log: logger.Nop()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Train validates samples, encodes their labels, splits them and fits a new
// network. Datasets without samples or with fewer than two labels are
// rejected with ErrInsufficientLabels before any training happens.
func (t *Trainer) Train(ctx context.Context, samples []dataset.Sample) (*TrainResult, error) {
	labels := dataset.Labels(samples)
	if len(samples) == 0 || len(labels) < 2 {
		return nil, fmt.Errorf("%w: got %d samples over %d labels", ErrInsufficientLabels, len(samples), len(labels))
	}
	for i, s := range samples {
		if err := s.Vector.Validate(); err != nil {
			return nil, fmt.Errorf("sample %d (%s): %w", i, s.Label, err)
		}
	}

	rng := rand.New(rand.NewPCG(t.cfg.Seed, t.cfg.Seed))

	if t.cfg.AugmentOnLoad && t.cfg.AugmentCopies > 0 {
		samples = augment(samples, dataset.NewAugmenter(t.cfg.AugmentCopies, t.cfg.NoiseStdDev, t.cfg.Seed))
	}

	encoder := FitEncoder(labels)
	x := make([][]float64, len(samples))
	y := make([][]float64, len(samples))
	for i, s := range samples {
		target, err := encoder.OneHot(s.Label)
		if err != nil {
			return nil, err
		}
		x[i], y[i] = s.Vector, target
	}

	trainIdx, valIdx := split(len(samples), t.cfg.ValidationSplit, rng)
	train, err := nn.NewDataset(pick(x, trainIdx), pick(y, trainIdx))
	if err != nil {
		return nil, err
	}
	var val *nn.Dataset
	if len(valIdx) > 0 {
		if val, err = nn.NewDataset(pick(x, valIdx), pick(y, valIdx)); err != nil {
			return nil, err
		}
	}

	network, err := nn.New(nn.Architecture{
		Inputs:  detector.VectorLen,
		Hidden:  t.cfg.Hidden,
		Outputs: encoder.Len(),
		Dropout: t.cfg.Dropout,
	}, rng)
	if err != nil {
		return nil, err
	}

	t.log.Info(ctx, "training started",
		logger.Int("samples", len(samples)),
		logger.Int("classes", encoder.Len()),
		logger.Int("train", len(trainIdx)),
		logger.Int("validation", len(valIdx)),
	)

	adam := nn.DefaultAdam()
	if t.cfg.LearningRate > 0 {
		adam.LearningRate = t.cfg.LearningRate
	}
	history, err := network.Fit(ctx, train, val, nn.TrainConfig{
		Epochs:    t.cfg.Epochs,
		BatchSize: t.cfg.BatchSize,
		Optimizer: adam,
		Rand:      rng,
	}, t.onEpoch(ctx))
	if err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}

	return &TrainResult{
		Network:   network,
		Encoder:   encoder,
		History:   history,
		TrainSize: len(trainIdx),
		ValSize:   len(valIdx),
	}, nil
}

func (t *Trainer) onEpoch(ctx context.Context) func(nn.EpochStats) {
	return func(s nn.EpochStats) {
		t.log.Info(ctx, "epoch",
			logger.Int("epoch", s.Epoch),
			logger.Float64("loss", s.Loss),
			logger.Float64("accuracy", s.Accuracy),
			logger.Float64("val_loss", s.ValLoss),
			logger.Float64("val_accuracy", s.ValAccuracy),
		)
		if t.metrics != nil {
			t.metrics.RecordEpoch(s.ValAccuracy)
		}
	}
}

// split shuffles [0,n) and holds out ceil(n*fraction) indices for validation,
// always leaving at least one training sample.
func split(n int, fraction float64, rng *rand.Rand) (train, val []int) {
	perm := rng.Perm(n)
	size := int(math.Ceil(float64(n) * fraction))
	size = min(max(size, 0), n-1)
	return perm[size:], perm[:size]
}

func pick[T any](all []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = all[j]
	}
	return out
}

func augment(samples []dataset.Sample, aug *dataset.Augmenter) []dataset.Sample {
	out := make([]dataset.Sample, 0, len(samples)*(aug.Copies()+1))
	for _, s := range samples {
		out = append(out, s)
		for range aug.Copies() {
			out = append(out, dataset.Sample{Label: s.Label, Vector: aug.Perturb(s.Vector)})
		}
	}
	return out
}
