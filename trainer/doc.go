// Package trainer provides high-level episodic training orchestration for the
// few-shot audio classifier. It runs training episodes through the
// prototypical network, validates on held out classes every few steps, keeps
// the best checkpoint and logs per step metrics.
package trainer
