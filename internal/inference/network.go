package inference

// Network maps one input vector to a probability per class.
// Implementations must be safe for concurrent use.
type Network interface {
	Forward(input []float64) ([]float64, error)
	InputSize() int
	OutputSize() int
}
