// Package audio loads labeled sound clips for the embedding network.
// It decodes RIFF/WAVE files, averages channels down to mono, converts the
// sample rate and crops or pads the result to a fixed duration.
package audio
