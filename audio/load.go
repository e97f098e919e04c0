package audio

import "context"
import "fmt"
import "math"
import "os"

// DefaultDuration is the clip length used by the datasets, in seconds.
const DefaultDuration = 1.0

// Samples returns the number of samples of duration seconds at sampleRate.
func Samples(sampleRate int, duration float64) int {
	return int(math.Round(float64(sampleRate) * duration))
}

// Decode turns WAV bytes into a mono clip at sampleRate, exactly duration seconds long.
func Decode(data []byte, sampleRate int, duration float64) ([]float32, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %v", duration)
	}
	a, err := DecodeWAV(data)
	if err != nil {
		return nil, err
	}
	x, err := Resample(Mono(a.Channels), a.SampleRate, sampleRate)
	if err != nil {
		return nil, err
	}
	return Fix(x, Samples(sampleRate, duration)), nil
}

// Load reads a WAV file from disk, see Decode.
func Load(ctx context.Context, path string, sampleRate int, duration float64) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	x, err := Decode(data, sampleRate, duration)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return x, nil
}
