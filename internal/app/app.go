// Package app owns the live camera session: it reads frames, extracts hand
// landmarks, classifies them and annotates the frames it streams.
package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/inference"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/pkg/logger"
	"github.com/ayusman/mudra/pkg/metrics"
)

// ErrSessionBusy is yielded to a second consumer while another one is streaming.
var ErrSessionBusy = errors.New("stream session already has a consumer")

// DefaultMaxReadFailures ends a stream after this many consecutive failed reads.
const DefaultMaxReadFailures = 30

// subscriberBuffer is how many updates a slow subscriber may lag before updates are dropped.
const subscriberBuffer = 16

// Config holds the collaborators of a Session.
type Config struct {
	Camera    capture.Camera
	Detector  detector.Detector
	Predictor *inference.Predictor

	// Settings, when set, persists the detection toggle across restarts.
	Settings *store.SettingsRepository

	// DetectByDefault is the toggle state used when nothing was persisted.
	DetectByDefault bool

	MotionThreshold float64
	Keepalive       int
	MaxReadFailures int

	Logger  logger.Logger
	Metrics *metrics.Manager
}

// Update is one live prediction published to subscribers.
type Update struct {
	Hand          bool               `json:"hand"`
	Label         string             `json:"label,omitempty"`
	Confidence    float64            `json:"confidence,omitempty"`
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
	Timestamp     int64              `json:"timestamp"`
}

// Session is the single owner of a camera and its detector. The detection
// toggle lives on the session and only affects the streamed overlay.
type Session struct {
	camera    capture.Camera
	detector  detector.Detector
	predictor *inference.Predictor
	settings  *store.SettingsRepository
	gate      *capture.MotionGate

	maxReadFailures int
	log             logger.Logger
	metrics         *metrics.Manager

	detect atomic.Bool
	busy   atomic.Bool

	mu   sync.Mutex
	subs map[chan Update]struct{}

	closeOnce sync.Once
}

// New creates a session. The camera is opened lazily by the first consumer.
func New(cfg Config) (*Session, error) {
	if cfg.Camera == nil {
		return nil, errors.New("session needs a camera")
	}
	if cfg.Detector == nil {
		return nil, errors.New("session needs a detector")
	}
	if cfg.Predictor == nil {
		return nil, errors.New("session needs a predictor")
	}

	threshold := cfg.MotionThreshold
	if threshold <= 0 {
		threshold = 1.0
	}
	maxFailures := cfg.MaxReadFailures
	if maxFailures <= 0 {
		maxFailures = DefaultMaxReadFailures
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	s := &Session{
		camera:          cfg.Camera,
		detector:        cfg.Detector,
		predictor:       cfg.Predictor,
		settings:        cfg.Settings,
		gate:            capture.NewMotionGate(threshold, cfg.Keepalive),
		maxReadFailures: maxFailures,
		log:             log,
		metrics:         cfg.Metrics,
		subs:            make(map[chan Update]struct{}),
	}

	detect := cfg.DetectByDefault
	if s.settings != nil {
		detect = s.settings.Bool(store.SettingDetect, detect)
	}
	s.detect.Store(detect)
	return s, nil
}

// SetDetect turns the live prediction overlay on or off and persists the choice.
func (s *Session) SetDetect(ctx context.Context, enabled bool) error {
	if s.detect.Swap(enabled) != enabled && enabled {
		s.gate.Reset()
	}
	s.log.Info(ctx, "detection toggled", logger.Bool("enabled", enabled))
	if s.settings != nil {
		if err := s.settings.SetBool(store.SettingDetect, enabled); err != nil {
			return err
		}
	}
	return nil
}

// Detecting reports the toggle state.
func (s *Session) Detecting() bool {
	return s.detect.Load()
}

// Streaming reports whether a consumer currently holds the session.
func (s *Session) Streaming() bool {
	return s.busy.Load()
}

// Subscribe returns a channel of live predictions and a function that
// unsubscribes it. Updates are dropped for subscribers that fall behind.
func (s *Session) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, subscriberBuffer)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	n := len(s.subs)
	s.mu.Unlock()
	s.publishSubscribers(n)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			n := len(s.subs)
			close(ch)
			s.mu.Unlock()
			s.publishSubscribers(n)
		})
	}
}

func (s *Session) publish(u Update) {
	if u.Timestamp == 0 {
		u.Timestamp = time.Now().UnixMilli()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

func (s *Session) publishSubscribers(n int) {
	if s.metrics != nil {
		s.metrics.SetSubscribers(n)
	}
}

// Close releases the camera, the detector and the motion gate.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.gate.Close()
		if cerr := s.camera.Close(); cerr != nil {
			err = cerr
		}
		if cerr := s.detector.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}
