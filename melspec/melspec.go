// Package melspec computes mel power spectrograms from mono audio batches.
//
// Defaults follow the common research front-end:
//
//	NFFT:       400
//	HopLength:  200
//	NumMels:    64
//	LowFreq:    0
//	HighFreq:   SampleRate / 2
//	Window:     periodic Hann
//	Center:     frames are centered, signal reflect-padded by NFFT/2
//
// The output is the power |X|^2 projected on HTK mel filters, without log compression.
package melspec

import (
	"fmt"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gorgonia.org/tensor"

	"github.com/neurlang/musicfsl/layer"
	"github.com/neurlang/musicfsl/parallel"
)

// Config controls spectrogram extraction.
type Config struct {
	SampleRate int
	NFFT       int
	HopLength  int
	NumMels    int
	LowFreq    float64
	HighFreq   float64
	Center     bool
}

// DefaultConfig returns the 64 bin configuration for sampleRate.
func DefaultConfig(sampleRate int) Config {
	return Config{
		SampleRate: sampleRate,
		NFFT:       400,
		HopLength:  200,
		NumMels:    64,
		LowFreq:    0,
		HighFreq:   float64(sampleRate / 2),
		Center:     true,
	}
}

// MelSpectrogram converts waveforms into mel power spectrograms.
type MelSpectrogram struct {
	cfg     Config
	window  []float64
	melBank [][]float64
}

// New validates cfg and precomputes the window and filter bank.
func New(cfg Config) (*MelSpectrogram, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("melspec: sample rate %d must be positive", cfg.SampleRate)
	}
	if cfg.NFFT < 2 || cfg.HopLength <= 0 || cfg.NumMels <= 0 {
		return nil, fmt.Errorf("melspec: invalid nfft %d, hop %d or mels %d", cfg.NFFT, cfg.HopLength, cfg.NumMels)
	}
	if cfg.LowFreq < 0 || cfg.HighFreq <= cfg.LowFreq || cfg.HighFreq > float64(cfg.SampleRate)/2 {
		return nil, fmt.Errorf("melspec: invalid frequency range %g..%g Hz", cfg.LowFreq, cfg.HighFreq)
	}
	return &MelSpectrogram{
		cfg:     cfg,
		window:  hannWindow(cfg.NFFT),
		melBank: melFilterBank(cfg.NumMels, cfg.NFFT, cfg.SampleRate, cfg.LowFreq, cfg.HighFreq),
	}, nil
}

// Config returns the extraction parameters.
func (m *MelSpectrogram) Config() Config {
	return m.cfg
}

// Frames returns the number of time frames produced for a clip of the given
// length, or 0 when the clip is too short.
func (m *MelSpectrogram) Frames(samples int) int {
	if m.cfg.Center {
		if samples <= m.cfg.NFFT/2 {
			return 0
		}
		return 1 + samples/m.cfg.HopLength
	}
	if samples < m.cfg.NFFT {
		return 0
	}
	return 1 + (samples-m.cfg.NFFT)/m.cfg.HopLength
}

// sample reads x at position i of the (reflect padded when centered) signal.
func (m *MelSpectrogram) sample(x []float32, i int) float64 {
	if m.cfg.Center {
		i -= m.cfg.NFFT / 2
		if i < 0 {
			i = -i
		}
		if i >= len(x) {
			i = 2*(len(x)-1) - i
		}
	}
	return float64(x[i])
}

// Compute writes the (NumMels, frames) spectrogram of x into out, row major.
// fft must be created with fourier.NewFFT(NFFT) and not shared between goroutines.
func (m *MelSpectrogram) Compute(fft *fourier.FFT, x []float32, out []float32) error {
	frames := m.Frames(len(x))
	if frames == 0 {
		return fmt.Errorf("melspec: clip of %d samples too short for nfft %d", len(x), m.cfg.NFFT)
	}
	if len(out) != frames*m.cfg.NumMels {
		return fmt.Errorf("melspec: output length %d, want %d", len(out), frames*m.cfg.NumMels)
	}
	nfft := m.cfg.NFFT
	buf := make([]float64, nfft)
	coeff := make([]complex128, nfft/2+1)
	power := make([]float64, nfft/2+1)
	for t := 0; t < frames; t++ {
		start := t * m.cfg.HopLength
		for k := 0; k < nfft; k++ {
			buf[k] = m.sample(x, start+k) * m.window[k]
		}
		coeff = fft.Coefficients(coeff, buf)
		for k, c := range coeff {
			power[k] = real(c)*real(c) + imag(c)*imag(c)
		}
		for b, filter := range m.melBank {
			out[b*frames+t] = float32(floats.Dot(filter, power))
		}
	}
	return nil
}

// Forward converts a (batch, 1, samples) waveform batch into a
// (batch, 1, NumMels, frames) spectrogram batch.
func (m *MelSpectrogram) Forward(x *tensor.Dense) (*tensor.Dense, error) {
	if x == nil || x.Dtype() != tensor.Float32 || x.Dims() != 3 || x.Shape()[1] != 1 {
		return nil, fmt.Errorf("melspec: expected float32 (batch, 1, samples) tensor")
	}
	batch, samples := x.Shape()[0], x.Shape()[2]
	frames := m.Frames(samples)
	if frames == 0 {
		return nil, fmt.Errorf("melspec: clip of %d samples too short for nfft %d", samples, m.cfg.NFFT)
	}
	plane := m.cfg.NumMels * frames
	y := layer.Zeros(batch, 1, m.cfg.NumMels, frames)
	xs, ys := layer.Float32s(x), layer.Float32s(y)
	errs := make([]error, batch)
	parallel.Chunks(batch, parallel.Limit(), func(_ int, r parallel.Range) {
		fft := fourier.NewFFT(m.cfg.NFFT)
		for s := r.Lo; s < r.Hi; s++ {
			errs[s] = m.Compute(fft, xs[s*samples:(s+1)*samples], ys[s*plane:(s+1)*plane])
		}
	})
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return y, nil
}
