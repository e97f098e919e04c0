package melspec

import "math"

// hannWindow generates a periodic Hann window of the given length.
func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// hzToMel converts frequency in Hz to the HTK mel scale.
func hzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

// melToHz converts HTK mel scale frequency back to Hz.
func melToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// melFilterBank creates triangular filters on the continuous frequency axis.
// Returns [numMels][numFreqs], numFreqs = nfft/2 + 1. Filters are not area normalized.
func melFilterBank(numMels, nfft, sampleRate int, lowFreq, highFreq float64) [][]float64 {
	numFreqs := nfft/2 + 1
	freqs := make([]float64, numFreqs)
	nyquist := float64(sampleRate / 2)
	for i := range freqs {
		freqs[i] = nyquist * float64(i) / float64(numFreqs-1)
	}

	// numMels + 2 equally spaced mel points
	lowMel, highMel := hzToMel(lowFreq), hzToMel(highFreq)
	points := make([]float64, numMels+2)
	for i := range points {
		points[i] = melToHz(lowMel + (highMel-lowMel)*float64(i)/float64(numMels+1))
	}

	bank := make([][]float64, numMels)
	for m := range bank {
		filter := make([]float64, numFreqs)
		left, center, right := points[m], points[m+1], points[m+2]
		for k, f := range freqs {
			down := (f - left) / (center - left)
			up := (right - f) / (right - center)
			v := math.Min(down, up)
			if v > 0 {
				filter[k] = v
			}
		}
		bank[m] = filter
	}
	return bank
}
