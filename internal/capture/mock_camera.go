package capture

import (
	"image"
	"image/color"
	"sync"

	"gocv.io/x/gocv"
)

// MockCamera plays back in-memory frames for testing.
type MockCamera struct {
	frames    []*gocv.Mat
	index     int
	loop      bool
	failEvery int
	reads     int
	fps       int
	mu        sync.Mutex
	running   bool
}

// NewMockCamera plays frames in order, restarting at the end when loop is set.
func NewMockCamera(frames []*gocv.Mat, loop bool) *MockCamera {
	return &MockCamera{
		frames: frames,
		loop:   loop,
		fps:    100,
	}
}

// FailEvery makes every n-th read return ErrReadFailed. Zero disables it.
func (c *MockCamera) FailEvery(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failEvery = n
}

// SetFPS changes the rate reported to Frames.
func (c *MockCamera) SetFPS(fps int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fps = fps
}

func (c *MockCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = true
	c.index = 0
	return nil
}

func (c *MockCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	return nil
}

func (c *MockCamera) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil, ErrCameraNotOpen
	}

	c.reads++
	if c.failEvery > 0 && c.reads%c.failEvery == 0 {
		return nil, ErrReadFailed
	}

	if c.index >= len(c.frames) {
		if !c.loop || len(c.frames) == 0 {
			return nil, ErrReadFailed
		}
		c.index = 0
	}

	frame := c.frames[c.index].Clone()
	c.index++

	return &frame, nil
}

func (c *MockCamera) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fps
}

func (c *MockCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// SyntheticFrames draws n BGR frames with a square sliding left to right,
// enough movement for the motion gate to fire on every frame.
func SyntheticFrames(n, width, height int) []*gocv.Mat {
	frames := make([]*gocv.Mat, 0, n)
	side := height / 4
	for i := range n {
		mat := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
		x := (i * width / max(n, 1)) % (width - side)
		gocv.Rectangle(&mat, image.Rect(x, height/2-side/2, x+side, height/2+side/2), color.RGBA{R: 255, G: 255, B: 255}, -1)
		frames = append(frames, &mat)
	}
	return frames
}

// CloseFrames releases frames built by SyntheticFrames.
func CloseFrames(frames []*gocv.Mat) {
	for _, f := range frames {
		f.Close()
	}
}
