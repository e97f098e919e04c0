// Package metrics implements classification accuracy, running averages and
// the Prometheus collectors of the training loop.
package metrics

import (
	"fmt"
	"sync"

	"gorgonia.org/tensor"
)

// Predictions returns the argmax class of every row of (n, k) logits. Ties go to the lowest class.
func Predictions(logits *tensor.Dense) ([]int, error) {
	if logits == nil || logits.Dims() != 2 {
		return nil, fmt.Errorf("metrics: expected (n, k) logits")
	}
	n, k := logits.Shape()[0], logits.Shape()[1]
	x := logits.Data().([]float32)
	out := make([]int, n)
	for i := range out {
		row := x[i*k : (i+1)*k]
		for c, v := range row {
			if v > row[out[i]] {
				out[i] = c
			}
		}
	}
	return out, nil
}

// Accuracy returns the fraction of rows whose argmax equals target.
func Accuracy(logits *tensor.Dense, target []int) (float64, error) {
	pred, err := Predictions(logits)
	if err != nil {
		return 0, err
	}
	if len(pred) != len(target) {
		return 0, fmt.Errorf("metrics: %d predictions with %d targets", len(pred), len(target))
	}
	if len(pred) == 0 {
		return 0, fmt.Errorf("metrics: empty batch")
	}
	hits := 0
	for i, p := range pred {
		if p == target[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(pred)), nil
}

// Mean is a concurrency safe running average.
type Mean struct {
	mu    sync.Mutex
	sum   float64
	count int
}

// Add records one value.
func (m *Mean) Add(v float64) {
	m.mu.Lock()
	m.sum += v
	m.count++
	m.mu.Unlock()
}

// Value returns the average, 0 when empty.
func (m *Mean) Value() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

// Count returns the number of recorded values.
func (m *Mean) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// Reset forgets all values.
func (m *Mean) Reset() {
	m.mu.Lock()
	m.sum, m.count = 0, 0
	m.mu.Unlock()
}
