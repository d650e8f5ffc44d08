package inference

import "errors"

var (
	// ErrNotReady is returned by every operation of a predictor whose artifacts failed to load.
	ErrNotReady = errors.New("model not loaded")

	// ErrArtifactMismatch is returned when the network and encoder (or the
	// configured preprocessor) disagree on shape.
	ErrArtifactMismatch = errors.New("model artifacts do not match")

	// ErrMissingInput is returned when a request lacks the field the preprocessor reads.
	ErrMissingInput = errors.New("missing input")

	// ErrInputLength is returned by Predict for a prepared vector whose
	// length differs from the network's input width.
	ErrInputLength = errors.New("input has wrong length")

	// ErrInvalidImage is returned for an image payload that cannot be decoded.
	ErrInvalidImage = errors.New("invalid image")

	// ErrInference wraps failures of the forward pass itself.
	ErrInference = errors.New("inference failed")
)
