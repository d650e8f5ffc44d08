package gesture

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ayusman/mudra/internal/nn"
)

// SaveArtifacts writes the network and encoder of res side by side. Both
// files are staged next to their targets and renamed only after both were
// written, so a failed save leaves any previous pair untouched.
func SaveArtifacts(modelPath, encoderPath string, res *TrainResult) error {
	if res == nil || res.Network == nil || res.Encoder == nil {
		return errors.New("nothing to save")
	}
	if res.Network.OutputSize() != res.Encoder.Len() {
		return fmt.Errorf("network has %d outputs but encoder has %d classes", res.Network.OutputSize(), res.Encoder.Len())
	}

	modelTmp, err := stage(modelPath, res.Network.Save)
	if err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	encoderTmp, err := stage(encoderPath, res.Encoder.Save)
	if err != nil {
		os.Remove(modelTmp)
		return fmt.Errorf("write encoder: %w", err)
	}

	if err := os.Rename(modelTmp, modelPath); err != nil {
		os.Remove(modelTmp)
		os.Remove(encoderTmp)
		return fmt.Errorf("install model: %w", err)
	}
	if err := os.Rename(encoderTmp, encoderPath); err != nil {
		os.Remove(encoderTmp)
		return fmt.Errorf("install encoder: %w", err)
	}
	return nil
}

// stage writes a temporary sibling of path and returns its name.
func stage(path string, write func(io.Writer) error) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", err
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// LoadEncoderFile reads an encoder artifact.
func LoadEncoderFile(path string) (*LabelEncoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadEncoder(f)
}

// LoadNetworkFile reads a dense network artifact.
func LoadNetworkFile(path string) (*nn.Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return nn.Load(f)
}
