// Package inference turns requests into gesture predictions using a trained
// network and its label encoder.
package inference

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/pkg/logger"
	"github.com/ayusman/mudra/pkg/metrics"
)

// State is the load state of a Predictor.
type State int

const (
	NotReady State = iota
	Ready
)

func (s State) String() string {
	if s == Ready {
		return "READY"
	}
	return "NOT_READY"
}

// Prediction is the most likely class for one input and the full distribution.
type Prediction struct {
	Label         string             `json:"predicted_label"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
}

// Predictor serves predictions from one network and encoder pair. It is
// immutable after construction and safe for concurrent use.
type Predictor struct {
	state   State
	loadErr error

	network Network
	encoder *gesture.LabelEncoder
	pre     Preprocessor

	log     logger.Logger
	metrics *metrics.Manager
}

// Option configures a Predictor.
type Option func(*Predictor)

// WithLogger sets the predictor's logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Predictor) { p.log = l }
}

// WithMetrics records predictions, errors and latency.
func WithMetrics(m *metrics.Manager) Option {
	return func(p *Predictor) { p.metrics = m }
}

// NewPredictor builds a ready predictor from already loaded artifacts.
// The network must accept the preprocessor's vectors and emit one
// probability per encoder class.
func NewPredictor(network Network, encoder *gesture.LabelEncoder, pre Preprocessor, opts ...Option) (*Predictor, error) {
	p := newPredictor(opts)
	if err := checkArtifacts(network, encoder, pre); err != nil {
		return nil, err
	}
	p.network, p.encoder, p.pre = network, encoder, pre
	p.state = Ready
	if p.metrics != nil {
		p.metrics.SetPredictorReady(true)
	}
	return p, nil
}

// LoadPredictor loads the artifact pair named by cfg. Loading happens once:
// on failure the returned predictor stays NOT_READY for its lifetime and
// every call returns ErrNotReady. The result is never nil.
func LoadPredictor(ctx context.Context, cfg config.ModelConfig, opts ...Option) *Predictor {
	p := newPredictor(opts)

	network, encoder, pre, err := loadArtifacts(cfg)
	if err == nil {
		err = checkArtifacts(network, encoder, pre)
	}
	if err != nil {
		if c, ok := network.(io.Closer); ok {
			c.Close()
		}
		p.loadErr = err
		p.log.Error(ctx, "model artifacts failed to load, predictions disabled",
			logger.String("model", cfg.Path),
			logger.String("encoder", cfg.EncoderPath),
			logger.Error(err))
		if p.metrics != nil {
			p.metrics.SetPredictorReady(false)
		}
		return p
	}

	p.network, p.encoder, p.pre = network, encoder, pre
	p.state = Ready
	p.log.Info(ctx, "model loaded",
		logger.String("variant", cfg.Variant),
		logger.String("backend", cfg.Backend),
		logger.Int("classes", encoder.Len()))
	if p.metrics != nil {
		p.metrics.SetPredictorReady(true)
	}
	return p
}

func newPredictor(opts []Option) *Predictor {
	p := &Predictor{state: NotReady, log: logger.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func loadArtifacts(cfg config.ModelConfig) (Network, *gesture.LabelEncoder, Preprocessor, error) {
	encoder, err := gesture.LoadEncoderFile(cfg.EncoderPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load encoder: %w", err)
	}

	var (
		pre   Preprocessor
		shape []int64
	)
	switch cfg.Variant {
	case config.VariantImage:
		img := ImageBytes{Size: cfg.ImageSize}
		pre = img
		shape = []int64{1, int64(img.size()), int64(img.size()), 3}
	default:
		pre = RawLandmarks{}
		shape = []int64{1, detector.VectorLen}
	}

	switch cfg.Backend {
	case config.BackendONNX:
		network, err := NewONNXNetwork(ONNXConfig{
			ModelPath:   cfg.Path,
			LibraryPath: cfg.ONNXLibrary,
			InputName:   cfg.InputName,
			OutputName:  cfg.OutputName,
			InputShape:  shape,
			Outputs:     encoder.Len(),
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("load onnx model: %w", err)
		}
		return network, encoder, pre, nil
	default:
		network, err := gesture.LoadNetworkFile(cfg.Path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("load model: %w", err)
		}
		return network, encoder, pre, nil
	}
}

func checkArtifacts(network Network, encoder *gesture.LabelEncoder, pre Preprocessor) error {
	switch {
	case network == nil || encoder == nil || pre == nil:
		return errors.New("predictor needs a network, an encoder and a preprocessor")
	case network.OutputSize() != encoder.Len():
		return fmt.Errorf("%w: network has %d outputs, encoder has %d classes",
			ErrArtifactMismatch, network.OutputSize(), encoder.Len())
	case network.InputSize() != pre.InputSize():
		return fmt.Errorf("%w: network takes %d inputs, %s preprocessor produces %d",
			ErrArtifactMismatch, network.InputSize(), pre.Name(), pre.InputSize())
	}
	return nil
}

// State reports whether the artifacts loaded.
func (p *Predictor) State() State { return p.state }

// Ready is shorthand for State() == Ready.
func (p *Predictor) Ready() bool { return p.state == Ready }

// Err returns the load failure of a NOT_READY predictor.
func (p *Predictor) Err() error { return p.loadErr }

// Classes returns the labels the predictor can emit, or nil when NOT_READY.
func (p *Predictor) Classes() []string {
	if !p.Ready() {
		return nil
	}
	return p.encoder.Classes()
}

// Preprocessor returns the name of the configured preprocessor.
func (p *Predictor) Preprocessor() string {
	if p.pre == nil {
		return ""
	}
	return p.pre.Name()
}

// Predict classifies one already prepared vector. A vector of the wrong
// length is rejected before the network runs.
func (p *Predictor) Predict(ctx context.Context, input []float64) (*Prediction, error) {
	if !p.Ready() {
		p.recordError("not_ready")
		return nil, ErrNotReady
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(input) != p.network.InputSize() {
		p.recordError("invalid_input")
		return nil, fmt.Errorf("%w: expected %d values, got %d",
			ErrInputLength, p.network.InputSize(), len(input))
	}

	start := time.Now()
	probs, err := p.network.Forward(input)
	if err != nil {
		p.recordError("inference")
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}
	if len(probs) != p.encoder.Len() {
		p.recordError("inference")
		return nil, fmt.Errorf("%w: network returned %d values for %d classes", ErrInference, len(probs), p.encoder.Len())
	}
	elapsed := time.Since(start)

	idx := floats.MaxIdx(probs)
	label, err := p.encoder.Inverse(idx)
	if err != nil {
		p.recordError("inference")
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}

	dist := make(map[string]float64, len(probs))
	for i, class := range p.encoder.Classes() {
		dist[class] = probs[i]
	}

	if p.metrics != nil {
		p.metrics.RecordPrediction(label, p.pre.Name())
		p.metrics.RecordInferenceLatency(float64(elapsed.Microseconds()) / 1000)
	}
	p.log.Debug(ctx, "prediction",
		logger.String("label", label),
		logger.Float64("confidence", probs[idx]))

	return &Prediction{Label: label, Confidence: probs[idx], Probabilities: dist}, nil
}

// PredictRequest runs req through the preprocessor and classifies the result.
func (p *Predictor) PredictRequest(ctx context.Context, req Request) (*Prediction, error) {
	if !p.Ready() {
		p.recordError("not_ready")
		return nil, ErrNotReady
	}
	input, err := p.pre.Prepare(req)
	if err != nil {
		p.recordError("invalid_input")
		return nil, err
	}
	return p.Predict(ctx, input)
}

// PredictImage classifies a decoded image. Only image-variant predictors accept it.
func (p *Predictor) PredictImage(ctx context.Context, img image.Image) (*Prediction, error) {
	if !p.Ready() {
		p.recordError("not_ready")
		return nil, ErrNotReady
	}
	pre, ok := p.pre.(ImageBytes)
	if !ok {
		return nil, fmt.Errorf("%w: %s predictor cannot classify images", ErrArtifactMismatch, p.pre.Name())
	}
	return p.Predict(ctx, pre.Vector(img))
}

// Close releases the network if it holds native resources.
func (p *Predictor) Close() error {
	if c, ok := p.network.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (p *Predictor) recordError(kind string) {
	if p.metrics != nil {
		p.metrics.RecordPredictionError(kind)
	}
}
