package capture

import (
	"context"
	"errors"
	"iter"
	"time"

	"gocv.io/x/gocv"
)

// Frames paces reads from cam at its FPS until ctx is done or the consumer stops.
//
// Each yielded Mat belongs to the consumer. A failed read is yielded as
// (nil, ErrReadFailed) so the consumer can skip it; ErrCameraNotOpen ends
// the sequence after being yielded once.
func Frames(ctx context.Context, cam Camera) iter.Seq2[*gocv.Mat, error] {
	return func(yield func(*gocv.Mat, error) bool) {
		fps := cam.FPS()
		if fps <= 0 {
			fps = DefaultFPS
		}
		ticker := time.NewTicker(time.Second / time.Duration(fps))
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			frame, err := cam.ReadFrame()
			if err != nil {
				if !yield(nil, err) || errors.Is(err, ErrCameraNotOpen) {
					return
				}
				continue
			}
			if !yield(frame, nil) {
				return
			}
		}
	}
}
