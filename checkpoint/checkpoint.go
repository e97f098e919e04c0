// Package checkpoint reads and writes network weights as LZW compressed JSON
package checkpoint

import "compress/lzw"
import "context"
import "encoding/json"
import "fmt"
import "io"

import "github.com/neurlang/musicfsl/layer"
import "github.com/neurlang/musicfsl/layer/convblock"
import "github.com/neurlang/musicfsl/optim"
import "github.com/neurlang/musicfsl/storage"

// Tensor is one named parameter.
type Tensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// Checkpoint holds the weights of a backbone and the training state they were saved at.
type Checkpoint struct {
	SampleRate  int                `json:"sample_rate"`
	Blocks      []convblock.Config `json:"blocks,omitempty"`
	Step        int                `json:"step"`
	ValAccuracy float64            `json:"val_accuracy"`
	RunID       string             `json:"run_id,omitempty"`
	Params      []Tensor           `json:"params"`

	// Optimizer is absent in weights only checkpoints.
	Optimizer *optim.State `json:"optimizer,omitempty"`
}

// FromParams copies parameter values.
func FromParams(params []*layer.Param) []Tensor {
	out := make([]Tensor, len(params))
	for i, p := range params {
		out[i] = Tensor{
			Name:  p.Name,
			Shape: p.Value.Shape().Clone(),
			Data:  append([]float32(nil), layer.Float32s(p.Value)...),
		}
	}
	return out
}

// Apply copies the stored values into params. Names, order and shapes must match.
func (c *Checkpoint) Apply(params []*layer.Param) error {
	if len(c.Params) != len(params) {
		return fmt.Errorf("checkpoint: %d tensors stored, network has %d", len(c.Params), len(params))
	}
	for i, p := range params {
		t := c.Params[i]
		if t.Name != p.Name {
			return fmt.Errorf("checkpoint: tensor %d is %q, network expects %q", i, t.Name, p.Name)
		}
		if err := layer.CheckShape(p.Value, t.Shape...); err != nil {
			return fmt.Errorf("checkpoint: %s: %w", t.Name, err)
		}
		if len(t.Data) != p.Len() {
			return fmt.Errorf("checkpoint: %s holds %d values, shape needs %d", t.Name, len(t.Data), p.Len())
		}
	}
	for i, p := range params {
		copy(layer.Float32s(p.Value), c.Params[i].Data)
	}
	return nil
}

// Write writes the checkpoint to a writer
func Write(w io.Writer, c *Checkpoint) error {
	lw := lzw.NewWriter(w, lzw.LSB, 8)
	if err := json.NewEncoder(lw).Encode(c); err != nil {
		lw.Close()
		return err
	}
	return lw.Close()
}

// Read reads a checkpoint from a reader
func Read(r io.Reader) (*Checkpoint, error) {
	lr := lzw.NewReader(r, lzw.LSB, 8)
	defer lr.Close()
	var c Checkpoint
	if err := json.NewDecoder(lr).Decode(&c); err != nil {
		return nil, fmt.Errorf("checkpoint: %w", err)
	}
	return &c, nil
}

// Save writes the checkpoint to path in store.
func Save(ctx context.Context, store storage.FileStore, path string, c *Checkpoint) error {
	w, err := store.Write(ctx, path)
	if err != nil {
		return err
	}
	if err := Write(w, c); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// Load reads the checkpoint at path in store.
func Load(ctx context.Context, store storage.FileStore, path string) (*Checkpoint, error) {
	r, err := store.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return Read(r)
}
