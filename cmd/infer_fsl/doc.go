// Package main provides the few-shot inference program. It loads a trained
// checkpoint, builds one prototype per subdirectory of the support directory
// and prints the closest label of every query file.
//
// Usage:
//
//	infer_fsl --checkpoint best.json.lzw --support support/ query1.wav query2.wav
package main
