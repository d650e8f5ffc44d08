// Command mudra captures hand-gesture datasets, trains the landmark
// classifier and serves live sign recognition.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/pkg/logger"
)

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, cfg *config.Config, args []string) error
}

var commands = []command{
	{name: "serve", usage: "serve predictions, the annotated video feed and the catalog API", run: runServe},
	{name: "capture", usage: "record landmark samples for each label from the webcam", run: runCapture},
	{name: "train", usage: "train the landmark classifier and write the model artifacts", run: runTrain},
}

// The tray and the preview window must run on the main thread.
func init() { runtime.LockOSThread() }

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Get()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	name, args := os.Args[1], os.Args[2:]

	var cmd *command
	for i := range commands {
		if commands[i].name == name {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// defaults -> optional file -> env; flags are applied per command
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := cmd.run(ctx, cfg, args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Error(ctx, name+" failed", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: mudra <command> [flags]")
	fmt.Fprintln(os.Stderr)
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", c.name, c.usage)
	}
}

// newFlagSet returns a flag set for name with the flags shared by every command.
func newFlagSet(name string, cfg *config.Config) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	fs.StringVar(&cfg.DatasetDir, "dataset", cfg.DatasetDir, "landmark dataset directory")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "sqlite catalog path")
	fs.StringVar(&cfg.Model.Path, "model", cfg.Model.Path, "model artifact path")
	fs.StringVar(&cfg.Model.EncoderPath, "encoder", cfg.Model.EncoderPath, "label encoder artifact path")
	fs.StringVar(&cfg.Metrics.TextfileDir, "metrics-dir", cfg.Metrics.TextfileDir, "directory for the Prometheus textfile written on exit; empty disables it")
	return fs
}

// parseFlags parses args into cfg and re-validates the merged result.
func parseFlags(fs *flag.FlagSet, cfg *config.Config, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return logger.SetLevelString(cfg.LogLevel)
}

// openStore creates the catalog's directory if needed and opens it.
func openStore(path string) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return store.New(path)
}

func newDetector(cfg config.DetectorConfig) (*detector.MediaPipeDetector, error) {
	dc := detector.DefaultConfig()
	dc.ScriptPath = cfg.ScriptPath
	dc.PythonPath = cfg.PythonPath
	dc.MinConfidence = cfg.MinConfidence
	dc.MinTrackingConf = cfg.MinTrackingConfidence
	return detector.NewMediaPipeDetector(dc, detector.WithLogger(logger.Named("mediapipe")))
}
