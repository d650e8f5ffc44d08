package dataset

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/pkg/logger"
	"github.com/ayusman/mudra/pkg/metrics"
)

// Config controls a capture run.
type Config struct {
	Dir             string
	SamplesPerLabel int
	AugmentCopies   int
	NoiseStdDev     float64
	Seed            uint64
}

// Builder runs interactive capture sessions: for each label it waits for the
// operator, records landmark vectors from the camera, augments them and
// writes the label file.
type Builder struct {
	cfg      Config
	camera   capture.Camera
	detector detector.Detector
	prompt   *bufio.Reader
	out      io.Writer
	aug      *Augmenter
	preview  Preview
	store    *store.Store
	metrics  *metrics.Manager
	log      logger.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithPreview shows each frame with a progress overlay.
func WithPreview(p Preview) Option {
	return func(b *Builder) { b.preview = p }
}

// WithStore records sessions and label counts in the catalog.
func WithStore(s *store.Store) Option {
	return func(b *Builder) { b.store = s }
}

// WithMetrics counts captured and augmented samples.
func WithMetrics(m *metrics.Manager) Option {
	return func(b *Builder) { b.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(b *Builder) { b.log = l }
}

// NewBuilder creates a Builder. prompt supplies the operator's lines: an
// empty line starts a label, "q" aborts. Instructions are written to out.
func NewBuilder(cfg Config, cam capture.Camera, det detector.Detector, prompt io.Reader, out io.Writer, opts ...Option) *Builder {
	b := &Builder{
		cfg:      cfg,
		camera:   cam,
		detector: det,
		prompt:   bufio.NewReader(prompt),
		out:      out,
		aug:      NewAugmenter(cfg.AugmentCopies, cfg.NoiseStdDev, cfg.Seed),
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run captures every label in order. An operator abort or ctx cancellation
// stops the whole run with ErrAborted; labels finished before that keep
// their files.
func (b *Builder) Run(ctx context.Context, labels []string) (err error) {
	for _, label := range labels {
		if err := checkLabel(label); err != nil {
			return err
		}
	}

	var session *store.CaptureSession
	if b.store != nil {
		if session, err = b.store.Captures().Start(labels); err != nil {
			return fmt.Errorf("record capture session: %w", err)
		}
		defer func() {
			status := store.CaptureCompleted
			switch {
			case errors.Is(err, ErrAborted):
				status = store.CaptureAborted
			case err != nil:
				status = store.CaptureFailed
			}
			if ferr := b.store.Captures().Finish(session.ID, status, err); ferr != nil {
				b.log.Warn(ctx, "failed to finish capture session", logger.Error(ferr))
			}
		}()
	}

	for _, label := range labels {
		if err := b.waitForOperator(label); err != nil {
			return err
		}

		captured, err := b.collect(ctx, label)
		if err != nil {
			return err
		}

		vectors := b.aug.Expand(captured)
		if err := WriteLabel(b.cfg.Dir, label, vectors); err != nil {
			return fmt.Errorf("write %s: %w", label, err)
		}

		augmented := len(vectors) - len(captured)
		b.log.Info(ctx, "label captured",
			logger.String("label", label),
			logger.Int("captured", len(captured)),
			logger.Int("augmented", augmented),
			logger.String("file", LabelPath(b.cfg.Dir, label)),
		)
		fmt.Fprintf(b.out, "Saved %d samples for %s\n", len(vectors), label)

		if b.metrics != nil {
			b.metrics.RecordCapturedSamples(label, "captured", len(captured))
			b.metrics.RecordCapturedSamples(label, "augmented", augmented)
		}
		if err := b.record(session, label, len(captured), augmented); err != nil {
			b.log.Warn(ctx, "failed to record label", logger.String("label", label), logger.Error(err))
		}
	}
	return nil
}

func (b *Builder) waitForOperator(label string) error {
	fmt.Fprintf(b.out, "Get ready to show %q. Press Enter to start, q to quit.\n", label)

	line, err := b.prompt.ReadString('\n')
	if strings.EqualFold(strings.TrimSpace(line), "q") {
		return ErrAborted
	}
	if err != nil && (err != io.EOF || line == "") {
		return fmt.Errorf("%w: prompt closed", ErrAborted)
	}
	return nil
}

// collect reads frames until SamplesPerLabel vectors are extracted.
func (b *Builder) collect(ctx context.Context, label string) ([]detector.Vector, error) {
	want := b.cfg.SamplesPerLabel
	captured := make([]detector.Vector, 0, want)

	for frame, err := range capture.Frames(ctx, b.camera) {
		if err != nil {
			if errors.Is(err, capture.ErrCameraNotOpen) {
				return nil, err
			}
			b.log.Debug(ctx, "frame skipped", logger.Error(err))
			continue
		}

		quit := b.show(frame, fmt.Sprintf("%s: %d/%d", label, len(captured), want))
		v, err := detector.Extract(b.detector, frame)
		frame.Close()

		if quit {
			return nil, ErrAborted
		}
		if err != nil {
			if !errors.Is(err, detector.ErrNoHand) {
				b.log.Debug(ctx, "extraction failed", logger.Error(err))
			}
			continue
		}

		captured = append(captured, v)
		if len(captured) == want {
			return captured, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAborted, err)
	}
	return nil, fmt.Errorf("camera stopped after %d of %d samples", len(captured), want)
}

func (b *Builder) show(frame *gocv.Mat, text string) bool {
	if b.preview == nil {
		return false
	}
	return b.preview.Show(frame, text)
}

func (b *Builder) record(session *store.CaptureSession, label string, captured, augmented int) error {
	if b.store == nil {
		return nil
	}
	g := &store.Gesture{
		Label:     label,
		Samples:   captured + augmented,
		Captured:  captured,
		Augmented: augmented,
	}
	if err := b.store.Gestures().Upsert(g); err != nil {
		return err
	}
	return b.store.Captures().AddLabel(session.ID, g.ID, g.Samples)
}
