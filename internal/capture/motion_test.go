package capture

import (
	"testing"

	"gocv.io/x/gocv"
)

func TestNewMotionGate(t *testing.T) {
	tests := []struct {
		name          string
		keepalive     int
		wantKeepalive int
	}{
		{name: "explicit", keepalive: 5, wantKeepalive: 5},
		{name: "zero uses default", keepalive: 0, wantKeepalive: DefaultKeepalive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewMotionGate(1.0, tt.keepalive)
			defer g.Close()

			if g.keepalive != tt.wantKeepalive {
				t.Errorf("keepalive = %d, want %d", g.keepalive, tt.wantKeepalive)
			}
			if g.initialized {
				t.Error("gate should not be initialized initially")
			}
		})
	}
}

func TestMotionGate_Detect(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	t.Run("identical frames have no motion", func(t *testing.T) {
		g := NewMotionGate(1.0, 0)
		defer g.Close()

		frame := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
		defer frame.Close()

		if moving, pct := g.Detect(&frame); moving || pct != 0 {
			t.Errorf("first frame: moving=%v pct=%f", moving, pct)
		}
		if moving, pct := g.Detect(&frame); moving {
			t.Errorf("identical frames should not move, pct = %f", pct)
		}
	})

	t.Run("black to white moves", func(t *testing.T) {
		g := NewMotionGate(1.0, 0)
		defer g.Close()

		black := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
		defer black.Close()
		white := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
		defer white.Close()
		white.SetTo(gocv.NewScalar(255, 255, 255, 0))

		g.Detect(&black)
		moving, pct := g.Detect(&white)
		if !moving || pct < 50 {
			t.Errorf("expected motion above 50%%, got moving=%v pct=%f", moving, pct)
		}
	})

	t.Run("empty frame is ignored", func(t *testing.T) {
		g := NewMotionGate(1.0, 0)
		defer g.Close()

		if moving, _ := g.Detect(nil); moving {
			t.Error("nil frame should not move")
		}
	})
}

func TestMotionGate_Allow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	t.Run("still frames pass on keepalive", func(t *testing.T) {
		g := NewMotionGate(1.0, 3)
		defer g.Close()

		frame := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
		defer frame.Close()

		var allowed []bool
		for range 7 {
			allowed = append(allowed, g.Allow(&frame))
		}

		want := []bool{true, false, false, true, false, false, true}
		for i := range want {
			if allowed[i] != want[i] {
				t.Errorf("frame %d: allowed = %v, want %v", i, allowed[i], want[i])
			}
		}
	})

	t.Run("moving frames always pass", func(t *testing.T) {
		g := NewMotionGate(1.0, 100)
		defer g.Close()

		frames := SyntheticFrames(4, 320, 240)
		defer CloseFrames(frames)

		for i, f := range frames {
			if !g.Allow(f) {
				t.Errorf("frame %d should pass", i)
			}
		}
	})

	t.Run("reset makes the next frame first", func(t *testing.T) {
		g := NewMotionGate(1.0, 100)
		defer g.Close()

		frame := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
		defer frame.Close()

		g.Allow(&frame)
		if g.Allow(&frame) {
			t.Fatal("second still frame should be held back")
		}
		g.Reset()
		if !g.Allow(&frame) {
			t.Error("first frame after Reset should pass")
		}
	})
}

func TestMotionGate_Close_Multiple(t *testing.T) {
	g := NewMotionGate(1.0, 0)
	g.Close()
	g.Close()
}
