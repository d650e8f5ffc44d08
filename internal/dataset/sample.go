// Package dataset builds and reads the per-label landmark sample files.
package dataset

import (
	"slices"

	"github.com/ayusman/mudra/internal/detector"
)

// Sample is one landmark vector tagged with its gesture label.
type Sample struct {
	Label  string
	Vector detector.Vector
}

// Labels returns the sorted distinct labels in samples.
func Labels(samples []Sample) []string {
	seen := make(map[string]struct{})
	var labels []string
	for _, s := range samples {
		if _, ok := seen[s.Label]; ok {
			continue
		}
		seen[s.Label] = struct{}{}
		labels = append(labels, s.Label)
	}
	slices.Sort(labels)
	return labels
}
