package dataset

import (
	"bytes"
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/store"
)

type builderFixture struct {
	dir    string
	camera *capture.MockCamera
	det    *detector.MockDetector
	store  *store.Store
}

func newBuilderFixture(t *testing.T) *builderFixture {
	t.Helper()

	frames := capture.SyntheticFrames(4, 320, 240)
	t.Cleanup(func() { capture.CloseFrames(frames) })

	cam := capture.NewMockCamera(frames, true)
	cam.Open()
	t.Cleanup(func() { cam.Close() })

	det := detector.NewMockDetector()
	// every other frame has no hand
	det.SetSequence([][]detector.HandLandmarks{nil, {detector.PeaceLandmarks()}})

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return &builderFixture{dir: t.TempDir(), camera: cam, det: det, store: s}
}

func (f *builderFixture) config() Config {
	return Config{Dir: f.dir, SamplesPerLabel: 5, AugmentCopies: 2, NoiseStdDev: 0.01, Seed: 1}
}

func TestBuilder_Run(t *testing.T) {
	f := newBuilderFixture(t)
	f.camera.FailEvery(3)

	var out bytes.Buffer
	b := NewBuilder(f.config(), f.camera, f.det, strings.NewReader("\n\n"), &out, WithStore(f.store))

	if err := b.Run(context.Background(), []string{"Peace", "Hello"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := detector.PeaceLandmarks()
	wantVec := want.Vector()
	for _, label := range []string{"Peace", "Hello"} {
		vectors, err := ReadLabel(LabelPath(f.dir, label))
		if err != nil {
			t.Fatalf("ReadLabel(%s) error = %v", label, err)
		}
		if len(vectors) != 15 {
			t.Fatalf("%s: expected 15 samples, got %d", label, len(vectors))
		}
		for i, v := range vectors {
			for j := range v {
				d := math.Abs(v[j] - wantVec[j])
				if i%3 == 0 && d != 0 {
					t.Fatalf("%s sample %d should be a captured vector", label, i)
				}
				if d >= 0.05 {
					t.Fatalf("%s sample %d coord %d drifted by %f", label, i, j, d)
				}
			}
		}

		g, err := f.store.Gestures().GetByLabel(label)
		if err != nil {
			t.Fatalf("GetByLabel(%s) error = %v", label, err)
		}
		if g.Samples != 15 || g.Captured != 5 || g.Augmented != 10 {
			t.Errorf("%s: unexpected catalog entry %+v", label, g)
		}
	}

	sessions, _ := f.store.Captures().List()
	if len(sessions) != 1 || sessions[0].Status != store.CaptureCompleted || sessions[0].Samples != 30 {
		t.Errorf("unexpected sessions: %+v", sessions)
	}
	if !strings.Contains(out.String(), `"Hello"`) {
		t.Errorf("expected prompt for Hello, got %q", out.String())
	}
}

func TestBuilder_DefaultCounts(t *testing.T) {
	f := newBuilderFixture(t)
	f.camera.SetFPS(1000)
	defaults := config.New().Capture

	b := NewBuilder(Config{
		Dir:             f.dir,
		SamplesPerLabel: defaults.SamplesPerLabel,
		AugmentCopies:   defaults.AugmentCopies,
		NoiseStdDev:     defaults.NoiseStdDev,
		Seed:            defaults.Seed,
	}, f.camera, f.det, strings.NewReader("\n"), &bytes.Buffer{}, WithStore(f.store))

	if err := b.Run(context.Background(), []string{"Peace"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	vectors, err := ReadLabel(LabelPath(f.dir, "Peace"))
	if err != nil {
		t.Fatalf("ReadLabel() error = %v", err)
	}
	if len(vectors) != 300 {
		t.Errorf("expected 300 samples, got %d", len(vectors))
	}

	g, err := f.store.Gestures().GetByLabel("Peace")
	if err != nil {
		t.Fatalf("GetByLabel() error = %v", err)
	}
	if g.Captured != 100 || g.Augmented != 200 || g.Samples != 300 {
		t.Errorf("unexpected catalog entry %+v", g)
	}
}

func TestBuilder_Abort(t *testing.T) {
	t.Run("q on the prompt", func(t *testing.T) {
		f := newBuilderFixture(t)
		b := NewBuilder(f.config(), f.camera, f.det, strings.NewReader("\nq\n"), &bytes.Buffer{}, WithStore(f.store))

		err := b.Run(context.Background(), []string{"Peace", "Hello"})
		if !errors.Is(err, ErrAborted) {
			t.Fatalf("expected ErrAborted, got %v", err)
		}

		if _, err := ReadLabel(LabelPath(f.dir, "Peace")); err != nil {
			t.Errorf("completed label should keep its file: %v", err)
		}
		if _, err := ReadLabel(LabelPath(f.dir, "Hello")); err == nil {
			t.Error("aborted label should not be written")
		}

		sessions, _ := f.store.Captures().List()
		if len(sessions) != 1 || sessions[0].Status != store.CaptureAborted {
			t.Errorf("expected aborted session, got %+v", sessions)
		}
	})

	t.Run("q in the preview", func(t *testing.T) {
		f := newBuilderFixture(t)
		preview := &quitAfter{n: 3}
		b := NewBuilder(f.config(), f.camera, f.det, strings.NewReader("\n"), &bytes.Buffer{}, WithPreview(preview))

		if err := b.Run(context.Background(), []string{"Peace"}); !errors.Is(err, ErrAborted) {
			t.Fatalf("expected ErrAborted, got %v", err)
		}
		if !strings.HasPrefix(preview.last, "Peace: ") {
			t.Errorf("expected progress overlay, got %q", preview.last)
		}
	})

	t.Run("closed prompt", func(t *testing.T) {
		f := newBuilderFixture(t)
		b := NewBuilder(f.config(), f.camera, f.det, strings.NewReader(""), &bytes.Buffer{})

		if err := b.Run(context.Background(), []string{"Peace"}); !errors.Is(err, ErrAborted) {
			t.Fatalf("expected ErrAborted, got %v", err)
		}
	})

	t.Run("context cancelled", func(t *testing.T) {
		f := newBuilderFixture(t)
		f.det.SetHands(nil)
		b := NewBuilder(f.config(), f.camera, f.det, strings.NewReader("\n"), &bytes.Buffer{})

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		if err := b.Run(ctx, []string{"Peace"}); !errors.Is(err, ErrAborted) {
			t.Fatalf("expected ErrAborted, got %v", err)
		}
	})
}

func TestBuilder_CameraNotOpen(t *testing.T) {
	f := newBuilderFixture(t)
	f.camera.Close()
	b := NewBuilder(f.config(), f.camera, f.det, strings.NewReader("\n"), &bytes.Buffer{}, WithStore(f.store))

	err := b.Run(context.Background(), []string{"Peace"})
	if !errors.Is(err, capture.ErrCameraNotOpen) {
		t.Fatalf("expected ErrCameraNotOpen, got %v", err)
	}

	sessions, _ := f.store.Captures().List()
	if len(sessions) != 1 || sessions[0].Status != store.CaptureFailed {
		t.Errorf("expected failed session, got %+v", sessions)
	}
}

func TestBuilder_InvalidLabel(t *testing.T) {
	f := newBuilderFixture(t)
	b := NewBuilder(f.config(), f.camera, f.det, strings.NewReader("\n"), &bytes.Buffer{})

	if err := b.Run(context.Background(), []string{"../escape"}); !errors.Is(err, ErrInvalidLabel) {
		t.Errorf("expected ErrInvalidLabel, got %v", err)
	}
}

// quitAfter asks to quit on the n-th frame.
type quitAfter struct {
	n     int
	shown int
	last  string
}

func (q *quitAfter) Show(_ *gocv.Mat, text string) bool {
	q.shown++
	q.last = text
	return q.shown >= q.n
}

func (q *quitAfter) Close() error { return nil }
