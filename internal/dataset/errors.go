package dataset

import "errors"

var (
	// ErrAborted is returned when the operator quits a capture run.
	ErrAborted = errors.New("capture aborted")

	// ErrInvalidLabel is returned for a label that cannot be used as a file name.
	ErrInvalidLabel = errors.New("invalid label")
)
