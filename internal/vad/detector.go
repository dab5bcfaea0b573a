package vad

import (
	"fmt"
	"math"
	"sync"
	"time"
)

const (
	// DefaultThreshold is the RMS level above which a window counts as voice.
	DefaultThreshold = 0.02

	// DefaultWindowSize is the analysis frame in samples.
	DefaultWindowSize = 2048
)

// Detector detects voice onset over the most recent window of time-domain
// samples. Samples are normalized to [-1, 1]; each Tick computes the RMS of
// the current window and the first crossing of the threshold latches the
// reaction time. The latch is write-once per arming.
type Detector struct {
	threshold  float64
	windowSize int

	window []float64
	pos    int
	filled int

	startedAt   time.Time
	reaction    time.Duration
	hasReaction bool

	// Statistics
	totalTicks  uint64
	voiceTicks  uint64
	lastRMS     float64
	lastTicked  time.Time

	mu sync.Mutex
}

// Stats reports detector counters for monitoring.
type Stats struct {
	Threshold  float64   `json:"threshold"`
	WindowSize int       `json:"window_size"`
	TotalTicks uint64    `json:"total_ticks"`
	VoiceTicks uint64    `json:"voice_ticks"`
	LastRMS    float64   `json:"last_rms"`
	LastTicked time.Time `json:"last_ticked"`
}

// NewDetector creates a voice-onset detector.
func NewDetector(threshold float64, windowSize int) (*Detector, error) {
	if threshold <= 0 || threshold >= 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1 (exclusive), got %f", threshold)
	}

	if windowSize < 256 || windowSize > 8192 {
		return nil, fmt.Errorf("window size must be between 256 and 8192 samples, got %d", windowSize)
	}

	if windowSize&(windowSize-1) != 0 {
		return nil, fmt.Errorf("window size must be a power of two, got %d", windowSize)
	}

	return &Detector{
		threshold:  threshold,
		windowSize: windowSize,
		window:     make([]float64, windowSize),
	}, nil
}

// Arm resets the detector for a new recording starting at start. Any latched
// reaction time from the previous recording is discarded.
func (d *Detector) Arm(start time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range d.window {
		d.window[i] = 0
	}
	d.pos = 0
	d.filled = 0
	d.startedAt = start
	d.reaction = 0
	d.hasReaction = false
	d.lastRMS = 0
}

// Feed pushes captured PCM-16 samples into the sliding window. Only the most
// recent windowSize samples are retained.
func (d *Detector) Feed(samples []int16) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, s := range samples {
		d.window[d.pos] = float64(s) / 32768.0
		d.pos = (d.pos + 1) % d.windowSize
		if d.filled < d.windowSize {
			d.filled++
		}
	}
}

// Tick computes the RMS of the current window and, on the first crossing of
// the threshold since Arm, latches the reaction time now - start. Later
// crossings within the same recording never update the latched value.
func (d *Detector) Tick(now time.Time) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	rms := rmsLocked(d.window)

	d.totalTicks++
	d.lastRMS = rms
	d.lastTicked = now

	if rms > d.threshold {
		d.voiceTicks++
		if !d.hasReaction {
			d.reaction = now.Sub(d.startedAt)
			d.hasReaction = true
		}
	}

	return rms
}

// ReactionTime returns the latched voice-onset delay, if any threshold
// crossing occurred since the last Arm.
func (d *Detector) ReactionTime() (time.Duration, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reaction, d.hasReaction
}

// Threshold returns the configured RMS threshold.
func (d *Detector) Threshold() float64 {
	return d.threshold
}

// WindowSize returns the analysis frame size in samples.
func (d *Detector) WindowSize() int {
	return d.windowSize
}

// GetStats returns current detector statistics.
func (d *Detector) GetStats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	return Stats{
		Threshold:  d.threshold,
		WindowSize: d.windowSize,
		TotalTicks: d.totalTicks,
		VoiceTicks: d.voiceTicks,
		LastRMS:    d.lastRMS,
		LastTicked: d.lastTicked,
	}
}

// RMS computes sqrt(mean(x^2)) over a window of normalized samples.
func RMS(window []float64) float64 {
	return rmsLocked(window)
}

func rmsLocked(window []float64) float64 {
	if len(window) == 0 {
		return 0
	}

	var sum float64
	for _, x := range window {
		sum += x * x
	}

	return math.Sqrt(sum / float64(len(window)))
}
