package detector

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/pkg/logger"
)

const (
	scriptName = "mediapipe_service.py"

	// DefaultIdleTimeout stops the python process after this long without frames.
	DefaultIdleTimeout = 30 * time.Second
)

var (
	// ErrUnavailable is returned when the landmark service cannot be found or started.
	ErrUnavailable = errors.New("hand landmark service unavailable")

	// ErrEmptyFrame is returned for a nil or empty frame.
	ErrEmptyFrame = errors.New("empty frame")
)

// MediaPipeDetector implements Detector on top of a Python MediaPipe subprocess.
//
// Each frame is written to the child's stdin as a 4-byte big-endian length
// followed by JPEG bytes; the child answers with one JSON line
// {"hands": [{"points": [{x,y,z} x21], "handedness": "...", "score": f}]}.
// The child starts on the first frame and stops when idle. A broken pipe
// stops it too, so the next frame starts a fresh one.
type MediaPipeDetector struct {
	config Config
	script string
	python string
	log    logger.Logger

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	idleTimer *time.Timer
}

// MediaPipeOption configures a MediaPipeDetector.
type MediaPipeOption func(*MediaPipeDetector)

// WithLogger logs the lifecycle of the python process.
func WithLogger(l logger.Logger) MediaPipeOption {
	return func(d *MediaPipeDetector) { d.log = l }
}

// NewMediaPipeDetector locates the service script and interpreter. Nothing
// is started until the first Detect.
func NewMediaPipeDetector(config Config, opts ...MediaPipeOption) (*MediaPipeDetector, error) {
	script := config.ScriptPath
	if script == "" {
		script = lookup(filepath.Join("scripts", scriptName), filepath.Join(".mudra", "scripts", scriptName))
	}
	if script == "" {
		return nil, fmt.Errorf("%w: %s not found", ErrUnavailable, scriptName)
	}
	if _, err := os.Stat(script); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	python := config.PythonPath
	if python == "" {
		python = lookup(filepath.Join("venv", "bin", "python"), filepath.Join(".mudra", "venv", "bin", "python"))
	}
	if python == "" {
		python = "python3"
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}

	d := &MediaPipeDetector{
		config: config,
		script: script,
		python: python,
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Detect sends frame to the service and returns the hands it found.
func (d *MediaPipeDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	if frame == nil || frame.Empty() {
		return nil, ErrEmptyFrame
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()
	data := buf.GetBytes()

	msg := binary.BigEndian.AppendUint32(make([]byte, 0, 4+len(data)), uint32(len(data)))
	msg = append(msg, data...)

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.start(); err != nil {
		return nil, err
	}

	line, err := d.roundTrip(msg)
	if err != nil {
		d.log.Warn(context.Background(), "landmark service failed, restarting on next frame", logger.Error(err))
		d.stop()
		return nil, err
	}
	d.touch()

	return parseResponse(line)
}

func (d *MediaPipeDetector) roundTrip(msg []byte) ([]byte, error) {
	if _, err := d.stdin.Write(msg); err != nil {
		return nil, fmt.Errorf("write frame: %w", err)
	}
	line, err := d.stdout.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return line, nil
}

// Close stops the python process.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stop()
}

func (d *MediaPipeDetector) start() error {
	if d.cmd != nil {
		return nil
	}

	cmd := exec.Command(d.python, d.script,
		"--max-hands", strconv.Itoa(d.config.MaxHands),
		"--min-detection-confidence", strconv.FormatFloat(d.config.MinConfidence, 'f', -1, 64),
		"--min-tracking-confidence", strconv.FormatFloat(d.config.MinTrackingConf, 'f', -1, 64),
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	d.log.Info(context.Background(), "landmark service started",
		logger.String("python", d.python),
		logger.String("script", d.script),
		logger.Int("pid", cmd.Process.Pid))

	d.cmd = cmd
	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	return nil
}

func (d *MediaPipeDetector) stop() error {
	if d.cmd == nil {
		return nil
	}
	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	d.stdin.Close()
	err := d.cmd.Wait()
	d.log.Info(context.Background(), "landmark service stopped")

	d.cmd, d.stdin, d.stdout = nil, nil, nil
	return err
}

// touch restarts the idle countdown. Callers hold d.mu.
func (d *MediaPipeDetector) touch() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(d.config.IdleTimeout, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.stop()
	})
}

// parseResponse decodes one JSON line from the python service.
func parseResponse(line []byte) ([]HandLandmarks, error) {
	var response struct {
		Hands []jsonHand `json:"hands"`
		Error string     `json:"error,omitempty"`
	}
	if err := json.Unmarshal(line, &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("mediapipe service: %s", response.Error)
	}

	result := make([]HandLandmarks, 0, len(response.Hands))
	for i, h := range response.Hands {
		if len(h.Points) != NumLandmarks {
			return nil, fmt.Errorf("hand %d has %d points, expected %d", i, len(h.Points), NumLandmarks)
		}
		result = append(result, HandLandmarks{Handedness: h.Handedness, Score: h.Score})
		copy(result[i].Points[:], h.Points)
	}
	return result, nil
}

type jsonHand struct {
	Points     []Point3D `json:"points"`
	Handedness string    `json:"handedness"`
	Score      float64   `json:"score"`
}

// lookup returns the absolute path of the first rel that exists under the
// working directory, its parent, the executable's directory or $HOME.
// homeRel is used for the $HOME location.
func lookup(rel, homeRel string) string {
	candidates := []string{rel, filepath.Join("..", rel)}
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), rel))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, homeRel))
	}

	for _, p := range candidates {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			return abs
		}
		return p
	}
	return ""
}
