// Package optim implements gradient based parameter updates
package optim

import "fmt"
import "math"

import "github.com/neurlang/musicfsl/layer"

// Adam hyper parameters
const (
	DefaultLearningRate = 1e-3
	DefaultBeta1        = 0.9
	DefaultBeta2        = 0.999
	DefaultEpsilon      = 1e-8
)

// Adam is the bias corrected adaptive moment estimation optimizer.
type Adam struct {
	params []*layer.Param

	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64

	step int
	m, v [][]float32
}

// NewAdam creates an optimizer over params with default betas and epsilon.
func NewAdam(params []*layer.Param, learningRate float64) (*Adam, error) {
	if learningRate <= 0 {
		return nil, fmt.Errorf("optim: learning rate must be positive, got %v", learningRate)
	}
	a := &Adam{
		params:       params,
		LearningRate: learningRate,
		Beta1:        DefaultBeta1,
		Beta2:        DefaultBeta2,
		Epsilon:      DefaultEpsilon,
		m:            make([][]float32, len(params)),
		v:            make([][]float32, len(params)),
	}
	for i, p := range params {
		a.m[i] = make([]float32, p.Len())
		a.v[i] = make([]float32, p.Len())
	}
	return a, nil
}

// Steps returns the number of updates applied.
func (a *Adam) Steps() int {
	return a.step
}

// Step updates every parameter from its accumulated gradient.
func (a *Adam) Step() {
	a.step++
	c1 := 1 - math.Pow(a.Beta1, float64(a.step))
	c2 := 1 - math.Pow(a.Beta2, float64(a.step))
	b1, b2 := float32(a.Beta1), float32(a.Beta2)
	for i, p := range a.params {
		w, g := layer.Float32s(p.Value), layer.Float32s(p.Grad)
		m, v := a.m[i], a.v[i]
		for j := range w {
			m[j] = b1*m[j] + (1-b1)*g[j]
			v[j] = b2*v[j] + (1-b2)*g[j]*g[j]
			mhat := float64(m[j]) / c1
			vhat := float64(v[j]) / c2
			w[j] -= float32(a.LearningRate * mhat / (math.Sqrt(vhat) + a.Epsilon))
		}
	}
}

// ZeroGrad clears the gradients of all parameters.
func (a *Adam) ZeroGrad() {
	for _, p := range a.params {
		p.ZeroGrad()
	}
}

// State is the resumable part of the optimizer: the step count and the
// first and second moment of every parameter.
type State struct {
	Step int         `json:"step"`
	M    [][]float32 `json:"m"`
	V    [][]float32 `json:"v"`
}

// State copies the optimizer state.
func (a *Adam) State() *State {
	s := &State{Step: a.step, M: make([][]float32, len(a.m)), V: make([][]float32, len(a.v))}
	for i := range a.m {
		s.M[i] = append([]float32(nil), a.m[i]...)
		s.V[i] = append([]float32(nil), a.v[i]...)
	}
	return s
}

// SetState restores a state taken from an optimizer over parameters of the same shapes.
func (a *Adam) SetState(s *State) error {
	if s == nil {
		return fmt.Errorf("optim: nil state")
	}
	if s.Step < 0 {
		return fmt.Errorf("optim: negative step %d", s.Step)
	}
	if len(s.M) != len(a.m) || len(s.V) != len(a.v) {
		return fmt.Errorf("optim: state for %d/%d parameters, optimizer has %d", len(s.M), len(s.V), len(a.m))
	}
	for i := range a.m {
		if len(s.M[i]) != len(a.m[i]) || len(s.V[i]) != len(a.v[i]) {
			return fmt.Errorf("optim: parameter %d: state holds %d/%d values, want %d", i, len(s.M[i]), len(s.V[i]), len(a.m[i]))
		}
	}
	for i := range a.m {
		copy(a.m[i], s.M[i])
		copy(a.v[i], s.V[i])
	}
	a.step = s.Step
	return nil
}
