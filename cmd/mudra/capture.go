package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/dataset"
	"github.com/ayusman/mudra/pkg/logger"
)

func runCapture(ctx context.Context, cfg *config.Config, args []string) error {
	fs := newFlagSet("capture", cfg)
	fs.Func("labels", "comma separated labels to record (default "+strings.Join(cfg.Capture.Labels, ",")+")", func(v string) error {
		cfg.Capture.Labels = splitLabels(v)
		return nil
	})
	fs.IntVar(&cfg.Capture.SamplesPerLabel, "samples", cfg.Capture.SamplesPerLabel, "captured samples per label")
	fs.IntVar(&cfg.Capture.AugmentCopies, "augment", cfg.Capture.AugmentCopies, "noisy copies added per captured sample")
	fs.BoolVar(&cfg.Capture.Preview, "preview", cfg.Capture.Preview, "show a preview window")
	fs.IntVar(&cfg.Camera.Device, "device", cfg.Camera.Device, "webcam device index")
	if err := parseFlags(fs, cfg, args); err != nil {
		return err
	}

	log := logger.Named("capture")
	m := newMetrics(cfg.Metrics)
	defer func() {
		if _, err := exportMetrics(ctx, log, m, cfg.Metrics.TextfileDir, "capture"); err != nil {
			log.Warn(ctx, "failed to export metrics", logger.Error(err))
		}
	}()

	st, err := openStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	det, err := newDetector(cfg.Detector)
	if err != nil {
		return fmt.Errorf("hand detector: %w", err)
	}
	defer det.Close()

	cam := capture.NewCamera(capture.Options{Device: cfg.Camera.Device, FPS: cfg.Camera.FPS})
	if err := cam.Open(); err != nil {
		return err
	}
	defer cam.Close()

	opts := []dataset.Option{
		dataset.WithStore(st),
		dataset.WithMetrics(m),
		dataset.WithLogger(log),
	}
	if cfg.Capture.Preview {
		window := dataset.NewWindow("mudra capture")
		defer window.Close()
		opts = append(opts, dataset.WithPreview(window))
	}

	builder := dataset.NewBuilder(dataset.Config{
		Dir:             cfg.DatasetDir,
		SamplesPerLabel: cfg.Capture.SamplesPerLabel,
		AugmentCopies:   cfg.Capture.AugmentCopies,
		NoiseStdDev:     cfg.Capture.NoiseStdDev,
		Seed:            cfg.Capture.Seed,
	}, cam, det, os.Stdin, os.Stdout, opts...)

	log.Info(ctx, "capture started",
		logger.Any("labels", cfg.Capture.Labels),
		logger.String("dir", cfg.DatasetDir))
	return builder.Run(ctx, cfg.Capture.Labels)
}

func splitLabels(s string) []string {
	var labels []string
	for _, l := range strings.Split(s, ",") {
		if l = strings.TrimSpace(l); l != "" {
			labels = append(labels, l)
		}
	}
	return labels
}
