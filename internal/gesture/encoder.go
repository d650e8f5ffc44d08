// Package gesture trains the landmark classifier and manages its label encoder.
package gesture

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
)

// LabelEncoder maps the sorted distinct labels to indices [0, Len).
// It is immutable after construction.
type LabelEncoder struct {
	classes []string
	index   map[string]int
}

// FitEncoder builds an encoder over the sorted distinct values of labels.
func FitEncoder(labels []string) *LabelEncoder {
	classes := slices.Clone(labels)
	slices.Sort(classes)
	classes = slices.Compact(classes)
	return newEncoder(classes)
}

func newEncoder(classes []string) *LabelEncoder {
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	return &LabelEncoder{classes: classes, index: index}
}

// Len is the number of classes.
func (e *LabelEncoder) Len() int {
	return len(e.classes)
}

// Classes returns a copy of the labels in index order.
func (e *LabelEncoder) Classes() []string {
	return slices.Clone(e.classes)
}

// Transform returns the index of label.
func (e *LabelEncoder) Transform(label string) (int, error) {
	i, ok := e.index[label]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownLabel, label)
	}
	return i, nil
}

// OneHot returns a vector of width Len with a 1 at label's index.
func (e *LabelEncoder) OneHot(label string) ([]float64, error) {
	i, err := e.Transform(label)
	if err != nil {
		return nil, err
	}
	v := make([]float64, len(e.classes))
	v[i] = 1
	return v, nil
}

// Inverse returns the label at index i.
func (e *LabelEncoder) Inverse(i int) (string, error) {
	if i < 0 || i >= len(e.classes) {
		return "", fmt.Errorf("%w: %d not in [0,%d)", ErrUnknownIndex, i, len(e.classes))
	}
	return e.classes[i], nil
}

type encoderFile struct {
	Classes []string `json:"classes"`
}

// MarshalJSON encodes the encoder as {"classes": [...]}.
func (e *LabelEncoder) MarshalJSON() ([]byte, error) {
	return json.Marshal(encoderFile{Classes: e.classes})
}

// UnmarshalJSON decodes {"classes": [...]} and checks the classes are distinct.
func (e *LabelEncoder) UnmarshalJSON(data []byte) error {
	var file encoderFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEncoder, err)
	}
	if len(file.Classes) == 0 {
		return fmt.Errorf("%w: no classes", ErrInvalidEncoder)
	}
	decoded := newEncoder(file.Classes)
	if len(decoded.index) != len(file.Classes) {
		return fmt.Errorf("%w: duplicate classes", ErrInvalidEncoder)
	}
	*e = *decoded
	return nil
}

// Save writes the encoder as JSON.
func (e *LabelEncoder) Save(w io.Writer) error {
	return json.NewEncoder(w).Encode(e)
}

// LoadEncoder reads an encoder written by Save.
func LoadEncoder(r io.Reader) (*LabelEncoder, error) {
	var e LabelEncoder
	if err := json.NewDecoder(r).Decode(&e); err != nil {
		if errors.Is(err, ErrInvalidEncoder) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoder, err)
	}
	return &e, nil
}
