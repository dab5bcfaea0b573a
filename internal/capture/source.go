package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
)

// Source produces PCM-16 frames for the capture engine. Start may be called
// again after Close for the next recording.
type Source interface {
	// Start begins capture and returns a channel of sample frames. The
	// channel is closed when the context is cancelled, the stream ends, or
	// Close is called.
	Start(ctx context.Context) (<-chan []int16, error)

	// Close releases the underlying device or stream.
	Close() error
}

// defaultFrameSize is the samples per frame delivered to the engine.
const defaultFrameSize = 512

// ReaderSource reads little-endian PCM-16 frames from a byte stream.
type ReaderSource struct {
	open      func(ctx context.Context) (io.ReadCloser, error)
	frameSize int

	rc io.ReadCloser
	mu sync.Mutex
}

// NewReaderSource creates a source over a stream opener. The opener runs on
// every Start, so one source serves many recordings.
func NewReaderSource(open func(ctx context.Context) (io.ReadCloser, error), frameSize int) *ReaderSource {
	if frameSize <= 0 {
		frameSize = defaultFrameSize
	}

	return &ReaderSource{open: open, frameSize: frameSize}
}

// Start opens the stream and pumps frames until EOF or cancellation.
func (s *ReaderSource) Start(ctx context.Context) (<-chan []int16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rc != nil {
		return nil, fmt.Errorf("source already started")
	}

	rc, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	s.rc = rc

	frames := make(chan []int16, 8)

	go func() {
		defer close(frames)

		raw := make([]byte, s.frameSize*2)
		for {
			if _, err := io.ReadFull(rc, raw); err != nil {
				return
			}

			frame := make([]int16, s.frameSize)
			for i := range frame {
				frame[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
			}

			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()

	return frames, nil
}

// Close closes the stream, which also ends the pump goroutine.
func (s *ReaderSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rc == nil {
		return nil
	}

	err := s.rc.Close()
	s.rc = nil
	return err
}

// NewMicrophoneSource captures from the default input device by piping raw
// PCM out of arecord. A missing binary or denied device surfaces as a Start
// error, which the controller reports as a precondition failure.
func NewMicrophoneSource(sampleRate int) *ReaderSource {
	open := func(ctx context.Context) (io.ReadCloser, error) {
		cmd := exec.CommandContext(ctx, "arecord",
			"-q",
			"-f", "S16_LE",
			"-c", "1",
			"-r", strconv.Itoa(sampleRate),
			"-t", "raw",
		)

		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("failed to open capture pipe: %w", err)
		}

		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("failed to start audio capture: %w", err)
		}

		return &processStream{ReadCloser: stdout, cmd: cmd}, nil
	}

	return NewReaderSource(open, defaultFrameSize)
}

// processStream couples a command's stdout with its process lifetime.
type processStream struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (p *processStream) Close() error {
	closeErr := p.ReadCloser.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}

	waitErr := p.cmd.Wait()
	if closeErr != nil {
		return closeErr
	}
	if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		// arecord exits non-zero when killed mid-stream; that is the
		// normal stop path, not a failure.
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return nil
		}
		return waitErr
	}
	return nil
}
