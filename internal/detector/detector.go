package detector

import (
	"errors"
	"time"

	"gocv.io/x/gocv"
)

// ErrNoHand is returned by Extract when the frame contains no hand.
var ErrNoHand = errors.New("no hand detected")

// Detector defines the interface for hand detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns detected hand landmarks.
	// Returns an empty slice if no hands are detected.
	Detect(frame *gocv.Mat) ([]HandLandmarks, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for hand detection.
type Config struct {
	// MaxHands is the maximum number of hands to detect.
	MaxHands int

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64

	// ScriptPath overrides the lookup of mediapipe_service.py.
	ScriptPath string

	// PythonPath overrides the interpreter; a venv next to the binary is
	// preferred, then python3 on PATH.
	PythonPath string

	// IdleTimeout stops the service after this long without frames.
	IdleTimeout time.Duration
}

// DefaultConfig returns the single-hand configuration the classifier is trained on.
func DefaultConfig() Config {
	return Config{
		MaxHands:        1,
		MinConfidence:   0.5,
		MinTrackingConf: 0.5,
		IdleTimeout:     DefaultIdleTimeout,
	}
}

// Extract runs d on frame and returns the landmark vector of the first hand.
// It returns ErrNoHand when nothing is detected.
func Extract(d Detector, frame *gocv.Mat) (Vector, error) {
	hands, err := d.Detect(frame)
	if err != nil {
		return nil, err
	}
	if len(hands) == 0 {
		return nil, ErrNoHand
	}
	return hands[0].Vector(), nil
}
