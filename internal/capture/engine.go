package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BrianHuang880507/CogScreen-AI/internal/vad"
)

// State is the capture lifecycle state.
type State int

const (
	// StateIdle means no recording is active and the guard is free.
	StateIdle State = iota
	// StateCapturing means frames are being collected from the source.
	StateCapturing
	// StateStopping means capture ended but the guard is still held while
	// the resulting upload is in flight.
	StateStopping
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Clip is the finalized result of one recording.
type Clip struct {
	Samples    []int16
	SampleRate int
	Duration   time.Duration

	// Voice-onset reaction time latched by the detector, if any crossing
	// occurred during the recording.
	ReactionTime time.Duration
	HasReaction  bool
}

// Config contains capture engine parameters.
type Config struct {
	SampleRate   int
	TickInterval time.Duration
}

// Engine owns one recording at a time. A second Begin while the guard is
// held is a silent no-op; the guard is released by Finish, which the caller
// invokes only after the upload of the stopped clip settles.
type Engine struct {
	source   Source
	detector *vad.Detector
	config   Config
	logger   *slog.Logger

	state     State
	startedAt time.Time
	take      []int16
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu sync.Mutex
}

// NewEngine creates a capture engine around a frame source and detector.
func NewEngine(source Source, detector *vad.Detector, config Config, logger *slog.Logger) (*Engine, error) {
	if source == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}

	if detector == nil {
		return nil, fmt.Errorf("detector cannot be nil")
	}

	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}

	if config.TickInterval <= 0 {
		config.TickInterval = 16 * time.Millisecond
	}

	return &Engine{
		source:   source,
		detector: detector,
		config:   config,
		logger:   logger,
	}, nil
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Begin starts a new recording. While the guard is held (Capturing or
// Stopping) it does nothing and returns nil. A source failure, such as a
// denied capture device, leaves the engine idle.
func (e *Engine) Begin(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateIdle {
		return nil
	}

	captureCtx, cancel := context.WithCancel(ctx)

	frames, err := e.source.Start(captureCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to start capture source: %w", err)
	}

	now := time.Now()
	e.state = StateCapturing
	e.startedAt = now
	e.take = e.take[:0]
	e.cancel = cancel
	e.detector.Arm(now)

	e.wg.Add(2)
	go e.collect(frames)
	go e.analyze(captureCtx)

	if e.logger != nil {
		e.logger.Debug("Recording started",
			slog.Int("sample_rate", e.config.SampleRate),
			slog.Duration("tick_interval", e.config.TickInterval),
		)
	}

	return nil
}

// collect drains source frames into the take and feeds the detector window.
func (e *Engine) collect(frames <-chan []int16) {
	defer e.wg.Done()

	for frame := range frames {
		e.mu.Lock()
		e.take = append(e.take, frame...)
		e.mu.Unlock()

		e.detector.Feed(frame)
	}
}

// analyze runs the recurring RMS tick until the capture context is
// cancelled. Stop waits for this goroutine, so no tick ever fires after the
// pipeline is released.
func (e *Engine) analyze(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.detector.Tick(now)
		}
	}
}

// Stop ends capture and finalizes the recorded frames into a single clip.
// The engine moves to Stopping and remains guarded until Finish.
func (e *Engine) Stop() (*Clip, error) {
	e.mu.Lock()
	if e.state != StateCapturing {
		state := e.state
		e.mu.Unlock()
		return nil, fmt.Errorf("cannot stop recording in state %s", state)
	}
	e.state = StateStopping
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()

	cancel()
	if err := e.source.Close(); err != nil && e.logger != nil {
		e.logger.Warn("Error closing capture source", slog.String("error", err.Error()))
	}
	e.wg.Wait()

	e.mu.Lock()
	samples := make([]int16, len(e.take))
	copy(samples, e.take)
	startedAt := e.startedAt
	e.mu.Unlock()

	clip := &Clip{
		Samples:    samples,
		SampleRate: e.config.SampleRate,
		Duration:   time.Since(startedAt),
	}

	if reaction, ok := e.detector.ReactionTime(); ok {
		clip.ReactionTime = reaction
		clip.HasReaction = true
	}

	if e.logger != nil {
		e.logger.Info("Recording stopped",
			slog.Int("samples", len(clip.Samples)),
			slog.Float64("duration", clip.Duration.Seconds()),
			slog.Bool("voice_detected", clip.HasReaction),
		)
	}

	return clip, nil
}

// Finish releases the single-flight guard after the upload of the stopped
// clip has settled.
func (e *Engine) Finish() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateStopping {
		e.state = StateIdle
	}
}
