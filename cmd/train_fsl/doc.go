// Package main provides the few-shot training program. It trains the audio
// embedding backbone on episodes drawn from the TinySOL train instruments,
// validates on the held out instruments and keeps the best checkpoint.
//
// Usage:
//
//	train_fsl [flags]
//
// Checkpoints may live on local disk or in S3 (s3://bucket/prefix/best.json.lzw).
// Pass --pgo to write a CPU profile to default.pgo.
package main
