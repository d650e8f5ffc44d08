// Package detector provides hand landmark extraction for gesture recognition.
package detector

import (
	"errors"
	"fmt"
)

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// VectorLen is the length of a flattened landmark vector: 21 points x {x,y,z}.
const VectorLen = NumLandmarks * 3

// ErrInvalidVectorLength is returned for a landmark vector whose length is not VectorLen.
var ErrInvalidVectorLength = errors.New("invalid landmark vector length")

// Point3D represents a 3D point in space with x, y, z coordinates.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// HandLandmarks represents the 21 hand landmarks detected by MediaPipe.
type HandLandmarks struct {
	Points     [NumLandmarks]Point3D `json:"points"`
	Handedness string                `json:"handedness"` // "Left" or "Right"
	Score      float64               `json:"score"`
}

// Vector is a flattened hand pose: x0, y0, z0, x1, y1, z1, ...
type Vector []float64

// Vector flattens the landmarks in point order.
func (h *HandLandmarks) Vector() Vector {
	v := make(Vector, 0, VectorLen)
	for _, p := range h.Points {
		v = append(v, p.X, p.Y, p.Z)
	}
	return v
}

// Validate reports ErrInvalidVectorLength unless v has exactly VectorLen values.
func (v Vector) Validate() error {
	if len(v) != VectorLen {
		return fmt.Errorf("%w: expected %d landmark features, got %d", ErrInvalidVectorLength, VectorLen, len(v))
	}
	return nil
}
