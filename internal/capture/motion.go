package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Motion detection constants
const (
	// GaussianBlurSize is the kernel size for Gaussian blur (21x21)
	GaussianBlurSize = 21
	// DiffThreshold is the binary threshold for difference detection
	DiffThreshold = 25
	// DefaultKeepalive is how many still frames pass before one is let through anyway.
	DefaultKeepalive = 10
)

// MotionGate decides whether a frame is worth sending to the hand detector.
//
// Frames whose pixel change against the previous frame exceeds the threshold
// pass. A held, motionless gesture still passes once every keepalive frames so
// the overlay label does not go stale.
type MotionGate struct {
	threshold   float64
	keepalive   int
	still       int
	prevGray    gocv.Mat
	initialized bool
	mu          sync.Mutex
}

// NewMotionGate creates a gate. threshold is the percentage of pixels that
// must change; keepalive <= 0 uses DefaultKeepalive.
func NewMotionGate(threshold float64, keepalive int) *MotionGate {
	if keepalive <= 0 {
		keepalive = DefaultKeepalive
	}
	return &MotionGate{
		threshold: threshold,
		keepalive: keepalive,
		prevGray:  gocv.NewMat(),
	}
}

// Allow reports whether frame should be analyzed. The first frame always passes.
func (g *MotionGate) Allow(frame *gocv.Mat) bool {
	g.mu.Lock()
	first := !g.initialized
	g.mu.Unlock()

	moving, _ := g.Detect(frame)

	g.mu.Lock()
	defer g.mu.Unlock()

	if first || moving {
		g.still = 0
		return true
	}
	g.still++
	if g.still >= g.keepalive {
		g.still = 0
		return true
	}
	return false
}

// Detect compares frame to the previous one and returns whether motion was
// seen and the percentage of pixels that changed.
//
// The frame is converted to gray, blurred 21x21, differenced against the
// previous frame and thresholded at 25; the changed pixel ratio is compared
// with the gate threshold.
func (g *MotionGate) Detect(frame *gocv.Mat) (bool, float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	gray := gocv.NewMat()
	defer gray.Close()

	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: GaussianBlurSize, Y: GaussianBlurSize}, 0, 0, gocv.BorderDefault)

	if !g.initialized {
		blurred.CopyTo(&g.prevGray)
		g.initialized = true
		return false, 0
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, g.prevGray, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, DiffThreshold, 255, gocv.ThresholdBinary)

	nonZero := gocv.CountNonZero(thresh)
	totalPixels := thresh.Rows() * thresh.Cols()
	changePercent := float64(nonZero) / float64(totalPixels) * 100.0

	blurred.CopyTo(&g.prevGray)

	return changePercent > g.threshold, changePercent
}

// Reset forgets the previous frame.
func (g *MotionGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reset()
}

// Close releases the stored frame.
func (g *MotionGate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reset()
}

func (g *MotionGate) reset() {
	if !g.prevGray.Empty() {
		g.prevGray.Close()
		g.prevGray = gocv.NewMat()
	}
	g.initialized = false
	g.still = 0
}
