package nn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Adam holds the optimizer hyperparameters.
type Adam struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64
}

// DefaultAdam returns the usual defaults: lr 0.001, betas 0.9/0.999, eps 1e-7.
func DefaultAdam() Adam {
	return Adam{
		LearningRate: 0.001,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-7,
	}
}

// moments are the running first and second moment estimates of one layer.
type moments struct {
	mW, vW *mat.Dense
	mB, vB *mat.VecDense
}

type adamState struct {
	cfg Adam
	t   int
	m   []moments
}

func newAdamState(cfg Adam, layers []*Dense) *adamState {
	s := &adamState{cfg: cfg, m: make([]moments, len(layers))}
	for i, l := range layers {
		r, c := l.W.Dims()
		s.m[i] = moments{
			mW: mat.NewDense(r, c, nil),
			vW: mat.NewDense(r, c, nil),
			mB: mat.NewVecDense(c, nil),
			vB: mat.NewVecDense(c, nil),
		}
	}
	return s
}

// step applies one update given per-layer gradients.
func (s *adamState) step(layers []*Dense, grads []gradient) {
	s.t++
	b1, b2 := s.cfg.Beta1, s.cfg.Beta2
	lr := s.cfg.LearningRate * math.Sqrt(1-math.Pow(b2, float64(s.t))) / (1 - math.Pow(b1, float64(s.t)))
	eps := s.cfg.Epsilon

	update := func(p, m, v, g []float64) {
		for i := range p {
			m[i] = b1*m[i] + (1-b1)*g[i]
			v[i] = b2*v[i] + (1-b2)*g[i]*g[i]
			p[i] -= lr * m[i] / (math.Sqrt(v[i]) + eps)
		}
	}

	for i, l := range layers {
		mo := s.m[i]
		update(l.W.RawMatrix().Data, mo.mW.RawMatrix().Data, mo.vW.RawMatrix().Data, grads[i].dW.RawMatrix().Data)
		update(l.B.RawVector().Data, mo.mB.RawVector().Data, mo.vB.RawVector().Data, grads[i].dB.RawVector().Data)
	}
}
