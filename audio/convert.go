package audio

import "fmt"

import resampling "github.com/tphakala/go-audio-resampling"

// Mono averages channels into a single channel.
func Mono(channels [][]float32) []float32 {
	if len(channels) == 0 {
		return nil
	}
	if len(channels) == 1 {
		return channels[0]
	}
	out := make([]float32, len(channels[0]))
	for _, ch := range channels {
		for i, v := range ch {
			out[i] += v
		}
	}
	scale := 1 / float32(len(channels))
	for i := range out {
		out[i] *= scale
	}
	return out
}

// Resample converts mono samples between sample rates.
func Resample(samples []float32, from, to int) ([]float32, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("sample rates must be positive, got %d -> %d", from, to)
	}
	if from == to || len(samples) == 0 {
		return samples, nil
	}
	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}
	input := make([]float64, len(samples))
	for i, v := range samples {
		input[i] = float64(v)
	}
	output, err := rs.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}
	// the filter holds back its latency until flushed
	tail, err := rs.Flush()
	if err != nil {
		return nil, fmt.Errorf("resample flush error: %w", err)
	}
	output = append(output, tail...)
	out := make([]float32, len(output))
	for i, v := range output {
		out[i] = float32(v)
	}
	return out, nil
}

// Fix crops samples to n or pads them with trailing silence.
func Fix(samples []float32, n int) []float32 {
	out := make([]float32, n)
	copy(out, samples)
	return out
}
