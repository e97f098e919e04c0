// Package loss implements the softmax cross-entropy objective
package loss

import "fmt"
import "math"

import "gorgonia.org/tensor"

import "github.com/neurlang/musicfsl/layer"

// Softmax returns the row-wise softmax of (n, k) logits, stabilized by subtracting the row maximum.
func Softmax(logits *tensor.Dense) (*tensor.Dense, error) {
	if logits == nil || logits.Dims() != 2 {
		return nil, fmt.Errorf("loss: expected (n, k) logits")
	}
	n, k := logits.Shape()[0], logits.Shape()[1]
	out := layer.Zeros(n, k)
	softmax(layer.Float32s(logits), layer.Float32s(out), n, k)
	return out, nil
}

func softmax(x, out []float32, n, k int) {
	for i := 0; i < n; i++ {
		row := x[i*k : (i+1)*k]
		max := row[0]
		for _, v := range row {
			if v > max {
				max = v
			}
		}
		var sum float64
		for c, v := range row {
			e := math.Exp(float64(v - max))
			out[i*k+c] = float32(e)
			sum += e
		}
		for c := range row {
			out[i*k+c] = float32(float64(out[i*k+c]) / sum)
		}
	}
}

// CrossEntropy returns the mean negative log likelihood of target under the
// softmax of (n, k) logits, and the gradient (softmax - onehot) / n.
func CrossEntropy(logits *tensor.Dense, target []int) (float64, *tensor.Dense, error) {
	if logits == nil || logits.Dims() != 2 {
		return 0, nil, fmt.Errorf("loss: expected (n, k) logits")
	}
	n, k := logits.Shape()[0], logits.Shape()[1]
	if n != len(target) {
		return 0, nil, fmt.Errorf("loss: %d logit rows with %d targets", n, len(target))
	}
	if n == 0 {
		return 0, nil, fmt.Errorf("loss: empty batch")
	}
	x := layer.Float32s(logits)
	grad := layer.Zeros(n, k)
	g := layer.Float32s(grad)
	softmax(x, g, n, k)
	var total float64
	for i, t := range target {
		if t < 0 || t >= k {
			return 0, nil, fmt.Errorf("loss: target %d out of range [0, %d)", t, k)
		}
		row := x[i*k : (i+1)*k]
		max := row[0]
		for _, v := range row {
			if v > max {
				max = v
			}
		}
		var sum float64
		for _, v := range row {
			sum += math.Exp(float64(v - max))
		}
		total += math.Log(sum) - float64(row[t]-max)
		g[i*k+t] -= 1
	}
	inv := 1 / float32(n)
	for i := range g {
		g[i] *= inv
	}
	return total / float64(n), grad, nil
}
