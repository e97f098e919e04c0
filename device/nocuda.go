//go:build !cuda

package device

// GPUs lists the CUDA devices. Without the cuda build tag there are none.
func GPUs() ([]GPU, error) {
	return nil, ErrNoCUDA
}
