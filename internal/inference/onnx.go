package inference

import (
	"errors"
	"fmt"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"gonum.org/v1/gonum/floats"
)

// ONNXConfig locates an exported model and the runtime library that runs it.
type ONNXConfig struct {
	ModelPath   string
	LibraryPath string
	InputName   string
	OutputName  string
	// InputShape is the full tensor shape including the batch dimension,
	// e.g. [1, 63] or [1, 224, 224, 3].
	InputShape []int64
	Outputs    int
}

// ONNXNetwork runs a classifier exported to ONNX. The session owns fixed
// input and output tensors, so calls to Forward are serialized.
type ONNXNetwork struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]

	inputSize  int
	outputSize int
}

var envMu sync.Mutex

func initEnvironment(libraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	return ort.InitializeEnvironment()
}

// NewONNXNetwork initializes the runtime if needed and opens a session on cfg.ModelPath.
func NewONNXNetwork(cfg ONNXConfig) (*ONNXNetwork, error) {
	if len(cfg.InputShape) == 0 || cfg.Outputs <= 0 {
		return nil, errors.New("onnx network needs an input shape and a positive output count")
	}
	inputSize := 1
	for _, d := range cfg.InputShape {
		if d <= 0 {
			return nil, fmt.Errorf("invalid input dimension %d", d)
		}
		inputSize *= int(d)
	}

	if err := initEnvironment(cfg.LibraryPath); err != nil {
		return nil, fmt.Errorf("initialize onnx runtime: %w", err)
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(cfg.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(cfg.Outputs)))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{cfg.InputName}, []string{cfg.OutputName},
		[]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output}, nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &ONNXNetwork{
		session:    session,
		input:      input,
		output:     output,
		inputSize:  inputSize,
		outputSize: cfg.Outputs,
	}, nil
}

func (n *ONNXNetwork) InputSize() int  { return n.inputSize }
func (n *ONNXNetwork) OutputSize() int { return n.outputSize }

// Forward copies input into the session's tensor, runs it and returns the output row.
func (n *ONNXNetwork) Forward(input []float64) ([]float64, error) {
	if len(input) != n.inputSize {
		return nil, fmt.Errorf("expected %d inputs, got %d", n.inputSize, len(input))
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.session == nil {
		return nil, errors.New("onnx session closed")
	}

	data := n.input.GetData()
	for i, v := range input {
		data[i] = float32(v)
	}
	if err := n.session.Run(); err != nil {
		return nil, err
	}

	raw := n.output.GetData()
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = float64(v)
	}
	if !isDistribution(out) {
		softmax(out)
	}
	return out, nil
}

// isDistribution reports whether p is non-negative and sums to one.
func isDistribution(p []float64) bool {
	var sum float64
	for _, v := range p {
		if v < 0 {
			return false
		}
		sum += v
	}
	return math.Abs(sum-1) < 1e-3
}

// softmax converts exported logits in place.
func softmax(p []float64) {
	if len(p) == 0 {
		return
	}
	maxV := floats.Max(p)
	var sum float64
	for i, v := range p {
		p[i] = math.Exp(v - maxV)
		sum += p[i]
	}
	floats.Scale(1/sum, p)
}

// Close releases the session and its tensors.
func (n *ONNXNetwork) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.session == nil {
		return nil
	}
	n.session.Destroy()
	n.input.Destroy()
	n.output.Destroy()
	n.session = nil
	return nil
}
