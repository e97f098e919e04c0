// Package device reports the compute resources available for training and
// inference.
package device

import "errors"
import "log/slog"
import "runtime"

import "github.com/klauspost/cpuid/v2"

// ErrNoCUDA is returned by GPUs in builds without the cuda tag.
var ErrNoCUDA = errors.New("device: built without cuda support")

// CPU describes the host processor.
type CPU struct {
	Brand         string
	PhysicalCores int
	LogicalCores  int
	AVX2          bool
	AVX512        bool
	FMA3          bool
}

// GPU describes one CUDA device.
type GPU struct {
	Index        int
	Name         string
	Memory       int64
	ComputeMajor int
	ComputeMinor int
}

// Host returns the processor of this machine.
func Host() CPU {
	return CPU{
		Brand:         cpuid.CPU.BrandName,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
		AVX2:          cpuid.CPU.Supports(cpuid.AVX2),
		AVX512:        cpuid.CPU.Supports(cpuid.AVX512F, cpuid.AVX512DQ),
		FMA3:          cpuid.CPU.Supports(cpuid.FMA3),
	}
}

// DefaultWorkers returns the number of goroutines worth running numeric
// kernels on: the physical core count, capped by GOMAXPROCS.
func DefaultWorkers() int {
	n := cpuid.CPU.PhysicalCores
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if m := runtime.GOMAXPROCS(0); n > m {
		n = m
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Log writes the host description to logger.
func Log(logger *slog.Logger) {
	c := Host()
	logger.Info("cpu",
		"brand", c.Brand,
		"physical_cores", c.PhysicalCores,
		"logical_cores", c.LogicalCores,
		"avx2", c.AVX2,
		"avx512", c.AVX512,
		"fma3", c.FMA3,
		"workers", DefaultWorkers(),
	)
	gpus, err := GPUs()
	if err != nil {
		logger.Debug("gpu", "error", err)
		return
	}
	for _, g := range gpus {
		logger.Info("gpu",
			"index", g.Index,
			"name", g.Name,
			"memory", g.Memory,
			"compute", []int{g.ComputeMajor, g.ComputeMinor},
		)
	}
}
