package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/pkg/logger"
	"github.com/ayusman/mudra/pkg/metrics"
)

func newMetrics(cfg config.MetricsConfig) *metrics.Manager {
	return metrics.NewManager(
		metrics.WithNamespace(cfg.Namespace),
		metrics.WithSubsystem(cfg.Subsystem),
		metrics.WithHistogramBuckets(cfg.LatencyBuckets),
	)
}

// exportMetrics writes m to <dir>/<name>.prom. An empty dir disables it.
func exportMetrics(ctx context.Context, log logger.Logger, m *metrics.Manager, dir, name string) (string, error) {
	if dir == "" {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create metrics directory: %w", err)
	}
	path := filepath.Join(dir, name+".prom")
	if err := m.WriteTextfile(path); err != nil {
		return "", fmt.Errorf("write metrics: %w", err)
	}
	log.Info(ctx, "metrics written", logger.String("path", path))
	return path, nil
}
