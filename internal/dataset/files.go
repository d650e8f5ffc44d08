package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ayusman/mudra/internal/detector"
)

const fileExt = ".json"

// LabelPath returns the sample file for label inside dir.
func LabelPath(dir, label string) string {
	return filepath.Join(dir, label+fileExt)
}

func checkLabel(label string) error {
	if label == "" || label == "." || label == ".." || strings.ContainsAny(label, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}
	return nil
}

// WriteLabel replaces <dir>/<label>.json with vectors as an array of arrays.
func WriteLabel(dir, label string, vectors []detector.Vector) error {
	if err := checkLabel(label); err != nil {
		return err
	}
	for i, v := range vectors {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dataset dir: %w", err)
	}

	rows := make([][]float64, len(vectors))
	for i, v := range vectors {
		rows[i] = v
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return err
	}

	return os.WriteFile(LabelPath(dir, label), data, 0o644)
}

// ReadLabel reads one sample file.
func ReadLabel(path string) ([]detector.Vector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var rows [][]float64
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}

	vectors := make([]detector.Vector, len(rows))
	for i, row := range rows {
		v := detector.Vector(row)
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("%s sample %d: %w", filepath.Base(path), i, err)
		}
		vectors[i] = v
	}
	return vectors, nil
}

// ReadDir loads every *.json file in dir. Each file's base name is the label
// of all vectors inside it. Files are read in name order.
func ReadDir(dir string) ([]Sample, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+fileExt))
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("dataset dir: %w", err)
	}
	slices.Sort(paths)

	var samples []Sample
	for _, path := range paths {
		label := strings.TrimSuffix(filepath.Base(path), fileExt)
		vectors, err := ReadLabel(path)
		if err != nil {
			return nil, err
		}
		for _, v := range vectors {
			samples = append(samples, Sample{Label: label, Vector: v})
		}
	}
	return samples, nil
}
