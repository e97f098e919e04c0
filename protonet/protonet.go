// Package protonet implements the prototypical network classification head.
//
// Support and query clips are embedded by the backbone, each class prototype
// is the mean of its support embeddings and the logit of a query for a class
// is the negative squared euclidean distance to the class prototype.
package protonet

import "errors"
import "fmt"

import "gorgonia.org/tensor"

import "github.com/neurlang/musicfsl/backbone"
import "github.com/neurlang/musicfsl/datasets"
import "github.com/neurlang/musicfsl/layer"

// ErrEmptyClass reports a class without any support example.
var ErrEmptyClass = errors.New("protonet: class has no support examples")

// PrototypicalNet classifies query clips against prototypes built from support clips.
type PrototypicalNet struct {
	backbone *backbone.Backbone

	// recorded by ForwardGrad
	head *head
}

// New wraps a backbone.
func New(b *backbone.Backbone) *PrototypicalNet {
	return &PrototypicalNet{backbone: b}
}

// Backbone returns the embedding network.
func (p *PrototypicalNet) Backbone() *backbone.Backbone {
	return p.backbone
}

func ways(s *datasets.Set) (n int) {
	if len(s.Classes) > 0 {
		return len(s.Classes)
	}
	for _, t := range s.Target {
		if t+1 > n {
			n = t + 1
		}
	}
	return
}

// Forward returns the (queries, classes) logits of the query set.
func (p *PrototypicalNet) Forward(support, query *datasets.Set) (*tensor.Dense, error) {
	if err := check(support, query); err != nil {
		return nil, err
	}
	s, err := p.backbone.Forward(support.Audio)
	if err != nil {
		return nil, fmt.Errorf("protonet: support: %w", err)
	}
	protos, err := Prototypes(s, support.Target, ways(support))
	if err != nil {
		return nil, err
	}
	q, err := p.backbone.Forward(query.Audio)
	if err != nil {
		return nil, fmt.Errorf("protonet: query: %w", err)
	}
	return Logits(q, protos)
}

// ForwardGrad is Forward that embeds support and query in a single recorded
// backbone pass, so that Backward can train the backbone. Both sets must hold
// clips of equal length.
func (p *PrototypicalNet) ForwardGrad(support, query *datasets.Set) (*tensor.Dense, error) {
	if err := check(support, query); err != nil {
		return nil, err
	}
	ss, qs := support.Audio.Shape(), query.Audio.Shape()
	if len(ss) != 3 || len(qs) != 3 || ss[1] != qs[1] || ss[2] != qs[2] {
		return nil, fmt.Errorf("protonet: support %v and query %v clips differ: %w", ss, qs, backbone.ErrInputShape)
	}
	audio := make([]float32, 0, ss.TotalSize()+qs.TotalSize())
	audio = append(audio, layer.Float32s(support.Audio)...)
	audio = append(audio, layer.Float32s(query.Audio)...)
	emb, err := p.backbone.ForwardGrad(layer.FromFloat32s(audio, ss[0]+qs[0], ss[1], ss[2]))
	if err != nil {
		return nil, fmt.Errorf("protonet: %w", err)
	}
	h, logits, err := newHead(layer.Float32s(emb), emb.Shape()[1], ss[0], support.Target, ways(support))
	if err != nil {
		return nil, err
	}
	p.head = h
	return logits, nil
}

// Backward propagates the gradient of the loss with respect to the logits of
// the last ForwardGrad into the backbone.
func (p *PrototypicalNet) Backward(dLogits *tensor.Dense) error {
	if p.head == nil {
		return fmt.Errorf("protonet: backward without recorded forward")
	}
	h := p.head
	p.head = nil
	demb, err := h.backward(dLogits)
	if err != nil {
		return err
	}
	return p.backbone.Backward(demb)
}

func check(support, query *datasets.Set) error {
	if support == nil || query == nil || support.Audio == nil || query.Audio == nil {
		return fmt.Errorf("protonet: missing support or query audio")
	}
	if support.Audio.Dims() < 1 || support.Audio.Shape()[0] != len(support.Target) {
		return fmt.Errorf("protonet: %d support clips with %d targets", support.Audio.Shape()[0], len(support.Target))
	}
	if len(support.Target) == 0 {
		return fmt.Errorf("protonet: empty support set")
	}
	return nil
}
