package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"iter"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/inference"
	"github.com/ayusman/mudra/pkg/logger"
)

// Overlay texts.
const (
	TextPaused   = "Detection paused"
	TextNoHand   = "No hand"
	TextNotReady = "Model not loaded"
	TextLoading  = "Detecting..."
	TextError    = "Detection error"
)

// Frame states reported to metrics.
const (
	statePaused     = "paused"
	stateNoHand     = "no_hand"
	statePrediction = "prediction"
	stateHeld       = "held"
	stateError      = "error"
)

var (
	overlayOrigin = image.Pt(10, 30)
	overlayColor  = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	pausedColor   = color.RGBA{R: 0, G: 165, B: 255, A: 0}
)

// Frames returns the annotated JPEG stream of the session's camera.
//
// The sequence is lazy and ends when the camera stops yielding frames, after
// too many consecutive read failures (the failure is yielded last), or when
// ctx is done. Only one consumer may iterate at a time; a second one receives
// ErrSessionBusy and nothing else.
func (s *Session) Frames(ctx context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if !s.busy.CompareAndSwap(false, true) {
			yield(nil, ErrSessionBusy)
			return
		}
		defer s.busy.Store(false)

		if !s.camera.IsOpen() {
			if err := s.camera.Open(); err != nil {
				yield(nil, fmt.Errorf("open camera: %w", err))
				return
			}
		}
		s.log.Info(ctx, "stream started")
		defer s.log.Info(ctx, "stream stopped")

		var (
			failures int
			last     = TextLoading
		)
		for frame, err := range capture.Frames(ctx, s.camera) {
			if err != nil {
				if errors.Is(err, capture.ErrCameraNotOpen) {
					return
				}
				failures++
				if failures >= s.maxReadFailures {
					yield(nil, fmt.Errorf("%d consecutive reads failed: %w", failures, err))
					return
				}
				continue
			}
			failures = 0

			text, state, textColor := s.annotate(ctx, frame, last)
			if state != statePaused && state != stateHeld {
				last = text
			}
			if s.metrics != nil {
				s.metrics.RecordStreamFrame(state)
			}

			jpeg, err := encodeFrame(frame, text, textColor)
			frame.Close()
			if err != nil {
				s.log.Warn(ctx, "failed to encode frame", logger.Error(err))
				continue
			}
			if !yield(jpeg, nil) {
				return
			}
		}
	}
}

// annotate decides the overlay for one frame. Frames the motion gate holds
// back reuse the previous overlay text.
func (s *Session) annotate(ctx context.Context, frame *gocv.Mat, last string) (string, string, color.RGBA) {
	if !s.Detecting() {
		return TextPaused, statePaused, pausedColor
	}
	if !s.gate.Allow(frame) {
		return last, stateHeld, overlayColor
	}

	vec, err := detector.Extract(s.detector, frame)
	switch {
	case errors.Is(err, detector.ErrNoHand):
		s.publish(Update{Hand: false})
		return TextNoHand, stateNoHand, overlayColor
	case err != nil:
		s.log.Warn(ctx, "landmark extraction failed", logger.Error(err))
		return TextError, stateError, overlayColor
	}

	pred, err := s.classify(ctx, frame, vec)
	switch {
	case errors.Is(err, inference.ErrNotReady):
		return TextNotReady, stateError, overlayColor
	case err != nil:
		s.log.Warn(ctx, "live prediction failed", logger.Error(err))
		return TextError, stateError, overlayColor
	}

	s.publish(Update{
		Hand:          true,
		Label:         pred.Label,
		Confidence:    pred.Confidence,
		Probabilities: pred.Probabilities,
	})
	return FormatPrediction(pred), statePrediction, overlayColor
}

// classify feeds the landmarks to a landmark model and the whole frame to an image model.
func (s *Session) classify(ctx context.Context, frame *gocv.Mat, vec detector.Vector) (*inference.Prediction, error) {
	if s.predictor.Preprocessor() != (inference.ImageBytes{}).Name() {
		return s.predictor.Predict(ctx, vec)
	}
	img, err := frame.ToImage()
	if err != nil {
		return nil, err
	}
	return s.predictor.PredictImage(ctx, img)
}

// FormatPrediction renders a prediction as "<label> (xx.x%)".
func FormatPrediction(p *inference.Prediction) string {
	return fmt.Sprintf("%s (%.1f%%)", p.Label, p.Confidence*100)
}

func encodeFrame(frame *gocv.Mat, text string, c color.RGBA) ([]byte, error) {
	gocv.PutText(frame, text, overlayOrigin, gocv.FontHersheySimplex, 0.9, c, 2)

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, err
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}
