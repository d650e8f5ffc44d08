package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/inference"
	"github.com/ayusman/mudra/internal/server"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/tray"
	"github.com/ayusman/mudra/pkg/logger"
	"github.com/ayusman/mudra/pkg/metrics"
)

func runServe(ctx context.Context, cfg *config.Config, args []string) error {
	fs := newFlagSet("serve", cfg)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	fs.StringVar(&cfg.Model.Variant, "variant", cfg.Model.Variant, "model variant: landmarks or image")
	fs.StringVar(&cfg.Model.Backend, "backend", cfg.Model.Backend, "network backend: dense or onnx")
	fs.BoolVar(&cfg.Camera.Enabled, "camera", cfg.Camera.Enabled, "open the webcam for /video_feed")
	fs.IntVar(&cfg.Camera.Device, "device", cfg.Camera.Device, "webcam device index")
	fs.BoolVar(&cfg.Tray, "tray", cfg.Tray, "show the system tray toggle")
	staticDir := fs.String("web", findWebDir(cfg.DataDir), "directory of static files to serve")
	if err := parseFlags(fs, cfg, args); err != nil {
		return err
	}

	log := logger.Named("serve")
	m := newMetrics(cfg.Metrics)

	st, err := openStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	predictor := inference.LoadPredictor(ctx, cfg.Model,
		inference.WithLogger(logger.Named("inference")),
		inference.WithMetrics(m))
	defer predictor.Close()

	var session *app.Session
	if cfg.Camera.Enabled {
		session, err = newSession(cfg, predictor, st.Settings(), m)
		if err != nil {
			log.Error(ctx, "live stream disabled", logger.Error(err))
		} else {
			defer session.Close()
		}
	}

	if *staticDir != "" {
		log.Info(ctx, "serving static files", logger.String("dir", *staticDir))
	}
	srv := server.New(server.Config{
		Predictor: predictor,
		Session:   session,
		Store:     st,
		Metrics:   m,
		Logger:    logger.Named("server"),
		StaticDir: *staticDir,
	})

	if !cfg.Tray || session == nil {
		return srv.Run(ctx, cfg.Addr)
	}
	return serveWithTray(ctx, cfg, srv, session, log)
}

// newSession builds the live session. The camera opens with the first viewer.
func newSession(cfg *config.Config, predictor *inference.Predictor, settings *store.SettingsRepository, m *metrics.Manager) (*app.Session, error) {
	det, err := newDetector(cfg.Detector)
	if err != nil {
		return nil, fmt.Errorf("hand detector: %w", err)
	}
	session, err := app.New(app.Config{
		Camera:          capture.NewCamera(capture.Options{Device: cfg.Camera.Device, FPS: cfg.Camera.FPS}),
		Detector:        det,
		Predictor:       predictor,
		Settings:        settings,
		DetectByDefault: true,
		MotionThreshold: cfg.Camera.MotionThreshold,
		Logger:          logger.Named("session"),
		Metrics:         m,
	})
	if err != nil {
		det.Close()
		return nil, err
	}
	return session, nil
}

// serveWithTray runs the server in the background because the tray must own
// the main goroutine. Quitting the tray stops the server.
func serveWithTray(ctx context.Context, cfg *config.Config, srv *server.Server, session *app.Session, log logger.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	t := tray.New(session, logger.Named("tray"))
	t.OnOpen(func() {
		log.Info(ctx, "video feed", logger.String("url", feedURL(cfg.Addr)))
	})
	t.OnQuit(cancel)

	updates, unsubscribe := session.Subscribe()
	defer unsubscribe()
	go t.Follow(ctx, updates)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(ctx, cfg.Addr)
		t.Quit()
	}()

	t.Run()
	cancel()
	return <-errCh
}

func feedURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr + "/video_feed"
	}
	if host == "" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/video_feed"
}

// findWebDir returns the first existing static directory among "web",
// "../web" and <dataDir>/web, or "" when there is none.
func findWebDir(dataDir string) string {
	for _, p := range []string{"web", filepath.Join("..", "web"), filepath.Join(dataDir, "web")} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}
