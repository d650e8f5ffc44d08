package gesture

import "errors"

var (
	// ErrInsufficientLabels is returned before training when the dataset has
	// no samples or fewer than two distinct labels.
	ErrInsufficientLabels = errors.New("need samples for at least 2 labels")

	// ErrUnknownLabel is returned when encoding a label outside the vocabulary.
	ErrUnknownLabel = errors.New("unknown label")

	// ErrUnknownIndex is returned when decoding an index outside [0, Len).
	ErrUnknownIndex = errors.New("class index out of range")

	// ErrInvalidEncoder is returned for an encoder file that is not a valid bijection.
	ErrInvalidEncoder = errors.New("invalid label encoder")
)
