//go:build cuda

package device

import "gorgonia.org/cu"

// GPUs lists the CUDA devices.
func GPUs() ([]GPU, error) {
	n, err := cu.NumDevices()
	if err != nil {
		return nil, err
	}
	out := make([]GPU, 0, n)
	for i := 0; i < n; i++ {
		d := cu.Device(i)
		name, err := d.Name()
		if err != nil {
			return nil, err
		}
		mem, err := d.TotalMem()
		if err != nil {
			return nil, err
		}
		maj, _ := d.Attribute(cu.ComputeCapabilityMajor)
		min, _ := d.Attribute(cu.ComputeCapabilityMinor)
		out = append(out, GPU{Index: i, Name: name, Memory: mem, ComputeMajor: maj, ComputeMinor: min})
	}
	return out, nil
}
