package dataset

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ayusman/mudra/internal/detector"
)

// Augmenter synthesizes noisy copies of landmark vectors.
type Augmenter struct {
	copies int
	noise  distuv.Normal
}

// NewAugmenter adds zero-mean Gaussian noise with the given standard deviation
// to every coordinate. Copies must be non-negative.
func NewAugmenter(copies int, stddev float64, seed uint64) *Augmenter {
	return &Augmenter{
		copies: max(copies, 0),
		noise: distuv.Normal{
			Mu:    0,
			Sigma: stddev,
			Src:   rand.NewPCG(seed, seed^0x9e3779b97f4a7c15),
		},
	}
}

// Copies is the number of noisy variants made per vector.
func (a *Augmenter) Copies() int {
	return a.copies
}

// Perturb returns a copy of v with independent noise on each coordinate.
func (a *Augmenter) Perturb(v detector.Vector) detector.Vector {
	out := make(detector.Vector, len(v))
	for i, x := range v {
		out[i] = x + a.noise.Rand()
	}
	return out
}

// Expand returns every captured vector followed by its noisy copies:
// v0, v0+n1, v0+n2, v1, v1+n1, v1+n2, ...
func (a *Augmenter) Expand(captured []detector.Vector) []detector.Vector {
	out := make([]detector.Vector, 0, len(captured)*(a.copies+1))
	for _, v := range captured {
		out = append(out, v)
		for range a.copies {
			out = append(out, a.Perturb(v))
		}
	}
	return out
}
