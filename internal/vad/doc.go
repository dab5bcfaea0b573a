// Package vad provides voice-onset detection for reaction-time scoring.
// It implements RMS energy analysis over a sliding window of normalized
// time-domain samples and latches the elapsed time of the first threshold
// crossing once per recording.
package vad
