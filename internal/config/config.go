// Package config defines mudra's configuration and its layered loading.
package config

import (
	"fmt"
	"path/filepath"
	"slices"
)

// Model variants. Each variant has its own artifact pair.
const (
	VariantLandmarks = "landmarks"
	VariantImage     = "image"
)

// Network backends.
const (
	BackendDense = "dense"
	BackendONNX  = "onnx"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DataDir is the base directory for relative artifact, dataset and db paths.
	DataDir string `koanf:"data_dir"`

	// DatasetDir holds one <label>.json sample file per gesture.
	DatasetDir string `koanf:"dataset_dir"`

	// DBPath is the sqlite catalog of labels, capture sessions and training runs.
	DBPath string `koanf:"db_path"`

	// Tray shows a system tray toggle for live detection.
	Tray bool `koanf:"tray"`

	Model    ModelConfig    `koanf:"model"`
	Detector DetectorConfig `koanf:"detector"`
	Camera   CameraConfig   `koanf:"camera"`
	Capture  CaptureConfig  `koanf:"capture"`
	Train    TrainConfig    `koanf:"train"`
	Metrics  MetricsConfig  `koanf:"metrics"`
}

// ModelConfig selects the artifact pair the inference service loads.
type ModelConfig struct {
	Variant     string `koanf:"variant"`
	Backend     string `koanf:"backend"`
	Path        string `koanf:"path"`
	EncoderPath string `koanf:"encoder_path"`
	ImageSize   int    `koanf:"image_size"`
	ONNXLibrary string `koanf:"onnx_library"`
	InputName   string `koanf:"input_name"`
	OutputName  string `koanf:"output_name"`
}

// DetectorConfig configures the MediaPipe landmark service.
type DetectorConfig struct {
	ScriptPath            string  `koanf:"script_path"`
	PythonPath            string  `koanf:"python_path"`
	MinConfidence         float64 `koanf:"min_confidence"`
	MinTrackingConfidence float64 `koanf:"min_tracking_confidence"`
}

// CameraConfig configures the capture device.
type CameraConfig struct {
	Enabled         bool    `koanf:"enabled"`
	Device          int     `koanf:"device"`
	FPS             int     `koanf:"fps"`
	MotionThreshold float64 `koanf:"motion_threshold"`
}

// CaptureConfig configures the dataset builder.
type CaptureConfig struct {
	Labels          []string `koanf:"labels"`
	SamplesPerLabel int      `koanf:"samples_per_label"`
	AugmentCopies   int      `koanf:"augment_copies"`
	NoiseStdDev     float64  `koanf:"noise_stddev"`
	Preview         bool     `koanf:"preview"`
	Seed            uint64   `koanf:"seed"`
}

// TrainConfig configures the classifier trainer.
type TrainConfig struct {
	Epochs          int     `koanf:"epochs"`
	BatchSize       int     `koanf:"batch_size"`
	ValidationSplit float64 `koanf:"validation_split"`
	Seed            uint64  `koanf:"seed"`
	LearningRate    float64 `koanf:"learning_rate"`
	Dropout         float64 `koanf:"dropout"`
	Hidden          []int   `koanf:"hidden"`
	AugmentOnLoad   bool    `koanf:"augment_on_load"`
}

// MetricsConfig configures the Prometheus collectors. Batch commands (capture,
// train) write them to <textfile_dir>/<command>.prom on exit; an empty
// TextfileDir disables the export.
type MetricsConfig struct {
	Namespace      string    `koanf:"namespace"`
	Subsystem      string    `koanf:"subsystem"`
	LatencyBuckets []float64 `koanf:"latency_buckets"`
	TextfileDir    string    `koanf:"textfile_dir"`
}

// DefaultLabels is the gesture vocabulary captured when none is configured.
var DefaultLabels = []string{"Hello", "Love", "ILoveYou", "Peace", "ThumbsUp", "ThumbsDown"}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:   "info",
		Addr:       ":8080",
		DataDir:    "data",
		DatasetDir: "landmark_dataset",
		DBPath:     "mudra.db",
		Model: ModelConfig{
			Variant:     VariantLandmarks,
			Backend:     BackendDense,
			Path:        "gesture_landmark_model.json",
			EncoderPath: "label_encoder.json",
			ImageSize:   224,
			InputName:   "input",
			OutputName:  "output",
		},
		Detector: DetectorConfig{
			MinConfidence:         0.5,
			MinTrackingConfidence: 0.5,
		},
		Camera: CameraConfig{
			Enabled:         false,
			Device:          0,
			FPS:             15,
			MotionThreshold: 1.0,
		},
		Capture: CaptureConfig{
			Labels:          slices.Clone(DefaultLabels),
			SamplesPerLabel: 100,
			AugmentCopies:   2,
			NoiseStdDev:     0.01,
		},
		Train: TrainConfig{
			Epochs:          30,
			BatchSize:       32,
			ValidationSplit: 0.2,
			Seed:            42,
			LearningRate:    0.001,
			Dropout:         0.3,
			Hidden:          []int{128, 64},
		},
		Metrics: MetricsConfig{
			Namespace:      "mudra",
			LatencyBuckets: []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500},
			TextfileDir:    "metrics",
		},
	}
}

// Validate reports the first invalid setting wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.Model.Variant != VariantLandmarks && c.Model.Variant != VariantImage:
		return fmt.Errorf("%w: model.variant must be %q or %q, got %q", ErrInvalidConfig, VariantLandmarks, VariantImage, c.Model.Variant)
	case c.Model.Backend != BackendDense && c.Model.Backend != BackendONNX:
		return fmt.Errorf("%w: model.backend must be %q or %q, got %q", ErrInvalidConfig, BackendDense, BackendONNX, c.Model.Backend)
	case c.Model.Variant == VariantImage && c.Model.ImageSize <= 0:
		return fmt.Errorf("%w: model.image_size must be positive", ErrInvalidConfig)
	case c.Detector.MinConfidence < 0 || c.Detector.MinConfidence > 1 ||
		c.Detector.MinTrackingConfidence < 0 || c.Detector.MinTrackingConfidence > 1:
		return fmt.Errorf("%w: detector confidences must be in [0, 1]", ErrInvalidConfig)
	case len(c.Capture.Labels) == 0:
		return fmt.Errorf("%w: capture.labels must not be empty", ErrInvalidConfig)
	case c.Capture.SamplesPerLabel <= 0:
		return fmt.Errorf("%w: capture.samples_per_label must be positive", ErrInvalidConfig)
	case c.Capture.AugmentCopies < 0:
		return fmt.Errorf("%w: capture.augment_copies must not be negative", ErrInvalidConfig)
	case c.Train.Epochs <= 0 || c.Train.BatchSize <= 0:
		return fmt.Errorf("%w: train.epochs and train.batch_size must be positive", ErrInvalidConfig)
	case c.Train.ValidationSplit <= 0 || c.Train.ValidationSplit >= 1:
		return fmt.Errorf("%w: train.validation_split must be in (0, 1)", ErrInvalidConfig)
	case c.Train.Dropout < 0 || c.Train.Dropout >= 1:
		return fmt.Errorf("%w: train.dropout must be in [0, 1)", ErrInvalidConfig)
	case c.Metrics.Namespace == "":
		return fmt.Errorf("%w: metrics.namespace must not be empty", ErrInvalidConfig)
	case !increasing(c.Metrics.LatencyBuckets):
		return fmt.Errorf("%w: metrics.latency_buckets must be strictly increasing", ErrInvalidConfig)
	}
	return nil
}

func increasing(v []float64) bool {
	for i := 1; i < len(v); i++ {
		if v[i] <= v[i-1] {
			return false
		}
	}
	return true
}

// resolvePaths joins relative file locations onto DataDir.
func (c *Config) resolvePaths() {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) || c.DataDir == "" {
			return p
		}
		return filepath.Join(c.DataDir, p)
	}
	c.DatasetDir = resolve(c.DatasetDir)
	c.DBPath = resolve(c.DBPath)
	c.Model.Path = resolve(c.Model.Path)
	c.Model.EncoderPath = resolve(c.Model.EncoderPath)
	c.Metrics.TextfileDir = resolve(c.Metrics.TextfileDir)
}
