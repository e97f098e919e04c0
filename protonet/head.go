package protonet

import "fmt"

import "gorgonia.org/tensor"

import "github.com/neurlang/musicfsl/layer"

// Prototypes averages the (n, d) embeddings of every class in 0..nWay-1.
// Classes may have different numbers of examples but not zero.
func Prototypes(emb *tensor.Dense, target []int, nWay int) (*tensor.Dense, error) {
	if emb == nil || emb.Dims() != 2 {
		return nil, fmt.Errorf("protonet: expected (n, d) embeddings")
	}
	n, d := emb.Shape()[0], emb.Shape()[1]
	if n != len(target) {
		return nil, fmt.Errorf("protonet: %d embeddings with %d targets", n, len(target))
	}
	protos, _, err := prototypes(layer.Float32s(emb), d, target, nWay)
	if err != nil {
		return nil, err
	}
	return layer.FromFloat32s(protos, nWay, d), nil
}

func prototypes(emb []float32, d int, target []int, nWay int) ([]float32, []int, error) {
	if nWay <= 0 {
		return nil, nil, fmt.Errorf("protonet: no classes")
	}
	sums := make([]float64, nWay*d)
	counts := make([]int, nWay)
	for i, t := range target {
		if t < 0 || t >= nWay {
			return nil, nil, fmt.Errorf("protonet: target %d out of range [0, %d)", t, nWay)
		}
		counts[t]++
		row := emb[i*d : (i+1)*d]
		for j, v := range row {
			sums[t*d+j] += float64(v)
		}
	}
	protos := make([]float32, nWay*d)
	for k, c := range counts {
		if c == 0 {
			return nil, nil, fmt.Errorf("%w: class %d", ErrEmptyClass, k)
		}
		for j := 0; j < d; j++ {
			protos[k*d+j] = float32(sums[k*d+j] / float64(c))
		}
	}
	return protos, counts, nil
}

// Logits returns the negative squared euclidean distances between (q, d)
// queries and (k, d) prototypes as a (q, k) tensor.
func Logits(query, protos *tensor.Dense) (*tensor.Dense, error) {
	if query == nil || protos == nil || query.Dims() != 2 || protos.Dims() != 2 {
		return nil, fmt.Errorf("protonet: expected (n, d) queries and prototypes")
	}
	q, d, k := query.Shape()[0], query.Shape()[1], protos.Shape()[0]
	if protos.Shape()[1] != d {
		return nil, fmt.Errorf("protonet: query dimension %d, prototype dimension %d", d, protos.Shape()[1])
	}
	return layer.FromFloat32s(logits(layer.Float32s(query), layer.Float32s(protos), q, k, d), q, k), nil
}

func logits(query, protos []float32, q, k, d int) []float32 {
	out := make([]float32, q*k)
	for i := 0; i < q; i++ {
		qi := query[i*d : (i+1)*d]
		for c := 0; c < k; c++ {
			pc := protos[c*d : (c+1)*d]
			var dist float64
			for j := range qi {
				diff := float64(qi[j]) - float64(pc[j])
				dist += diff * diff
			}
			out[i*k+c] = float32(-dist)
		}
	}
	return out
}

// head keeps what the backward pass through prototypes and distances needs
type head struct {
	emb      []float32
	d        int
	nSupport int
	target   []int
	counts   []int
	protos   []float32
	nWay     int
}

// newHead computes logits from (n, d) embeddings of support rows followed by query rows
func newHead(emb []float32, d, nSupport int, target []int, nWay int) (*head, *tensor.Dense, error) {
	if d <= 0 || len(emb)%d != 0 || len(emb)/d <= nSupport {
		return nil, nil, fmt.Errorf("protonet: %d values do not hold %d support rows and a query of width %d", len(emb), nSupport, d)
	}
	if nSupport != len(target) {
		return nil, nil, fmt.Errorf("protonet: %d support embeddings with %d targets", nSupport, len(target))
	}
	protos, counts, err := prototypes(emb[:nSupport*d], d, target, nWay)
	if err != nil {
		return nil, nil, err
	}
	h := &head{emb: emb, d: d, nSupport: nSupport, target: target, counts: counts, protos: protos, nWay: nWay}
	q := len(emb)/d - nSupport
	return h, layer.FromFloat32s(logits(emb[nSupport*d:], protos, q, nWay, d), q, nWay), nil
}

// backward maps the (q, k) logit gradient to the gradient of all embeddings
func (h *head) backward(dLogits *tensor.Dense) (*tensor.Dense, error) {
	d, k := h.d, h.nWay
	n := len(h.emb) / d
	q := n - h.nSupport
	if err := layer.CheckShape(dLogits, q, k); err != nil {
		return nil, fmt.Errorf("protonet: logit gradient %w", err)
	}
	g := layer.Float32s(dLogits)
	query := h.emb[h.nSupport*d:]
	demb := make([]float64, n*d)
	dq := demb[h.nSupport*d:]
	dc := make([]float64, k*d)
	for i := 0; i < q; i++ {
		for c := 0; c < k; c++ {
			gic := float64(g[i*k+c])
			if gic == 0 {
				continue
			}
			for j := 0; j < d; j++ {
				diff := float64(query[i*d+j]) - float64(h.protos[c*d+j])
				dq[i*d+j] -= 2 * gic * diff
				dc[c*d+j] += 2 * gic * diff
			}
		}
	}
	// each support example contributes 1/count to its prototype
	for s, t := range h.target {
		inv := 1 / float64(h.counts[t])
		for j := 0; j < d; j++ {
			demb[s*d+j] = dc[t*d+j] * inv
		}
	}
	out := layer.Zeros(n, d)
	outs := layer.Float32s(out)
	for i, v := range demb {
		outs[i] = float32(v)
	}
	return out, nil
}
