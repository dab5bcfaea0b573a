// Package capture implements the audio capture pipeline for exam responses.
// It runs an explicit Idle/Capturing/Stopping state machine around a frame
// Source, drives the voice-onset detector on a cancellable analysis tick,
// and finalizes captured frames into a single clip on stop.
package capture
