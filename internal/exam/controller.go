package exam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BrianHuang880507/CogScreen-AI/internal/api"
	"github.com/BrianHuang880507/CogScreen-AI/internal/audio"
	"github.com/BrianHuang880507/CogScreen-AI/internal/capture"
	"github.com/BrianHuang880507/CogScreen-AI/internal/metrics"
)

// Direction is a navigation intent. It doubles as the single-slot deferred
// navigation register: at most one intent is held, newer requests overwrite
// it, and it is consumed exactly once after a settling upload.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionNext
	DirectionPrev
)

// String returns a human-readable direction name.
func (d Direction) String() string {
	switch d {
	case DirectionNone:
		return "none"
	case DirectionNext:
		return "next"
	case DirectionPrev:
		return "prev"
	default:
		return fmt.Sprintf("unknown(%d)", int(d))
	}
}

// Precondition failures. These never reach the backend.
var (
	ErrNoSession         = errors.New("no active session")
	ErrNoQuestion        = errors.New("no current question")
	ErrRecordingDisabled = errors.New("recording disabled for this question")
	ErrUnknownInstrument = errors.New("unknown instrument")
)

// Instruments lists the supported cognitive-assessment protocols.
var Instruments = map[string]string{
	"mmse":  "MMSE",
	"spmsq": "SPMSQ",
	"ad8":   "AD8",
	"moca":  "MoCA",
}

const (
	responseFilename = "response.wav"
	silenceFilename  = "silence.wav"
	manualFilename   = "manual.wav"
)

// Backend is the exam backend surface consumed by the controller.
type Backend interface {
	CreateSession(ctx context.Context, req api.CreateSessionRequest) (string, error)
	NextQuestion(ctx context.Context, sessionID string) (*api.Question, error)
	Progress(ctx context.Context, sessionID string) (*api.Progress, error)
	UploadResponse(ctx context.Context, sessionID string, req api.UploadRequest) (*api.UploadResult, error)
	SubmitReport(ctx context.Context, sessionID string) error
}

// ResumeStore persists the instrument to session-id map across runs.
type ResumeStore interface {
	Lookup(instrument string) (string, bool, error)
	Save(instrument, sessionID string) error
	Clear(instrument string) error
}

// Recorder is the capture engine surface consumed by the controller.
type Recorder interface {
	State() capture.State
	Begin(ctx context.Context) error
	Stop() (*capture.Clip, error)
	Finish()
}

// Options contains controller parameters.
type Options struct {
	// PatientID identifies the participant; generated when empty.
	PatientID string

	// SessionConfig is passed through to session creation (age etc).
	SessionConfig map[string]any

	// SilenceDuration and SampleRate shape synthesized placeholders.
	SilenceDuration time.Duration
	SampleRate      int

	// ResultsURL is opened after a user-requested report submission.
	ResultsURL string
}

// SubmitOptions controls report submission side effects.
type SubmitOptions struct {
	ShowStatus  bool
	OpenResults bool
}

// Controller orchestrates one exam at a time: session creation and resume,
// question sequencing, recording, response upload, progress polling, and
// report submission. All methods are serialized by an internal mutex;
// navigation and upload continuations run on the caller's goroutine.
type Controller struct {
	backend  Backend
	store    ResumeStore
	recorder Recorder
	notifier Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	opts     Options

	sessionID       string
	instrument      string
	history         *History
	pending         Direction
	manualConfirmed bool
	totalQuestions  *int
	answered        int

	mu sync.Mutex
}

// NewController creates an exam session controller.
func NewController(backend Backend, store ResumeStore, recorder Recorder, notifier Notifier, logger *slog.Logger, m *metrics.Metrics, opts Options) (*Controller, error) {
	if backend == nil || store == nil || recorder == nil || notifier == nil {
		return nil, fmt.Errorf("backend, store, recorder, and notifier are required")
	}

	if logger == nil {
		logger = slog.Default()
	}

	if m == nil {
		return nil, fmt.Errorf("metrics are required")
	}

	if opts.PatientID == "" {
		opts.PatientID = uuid.NewString()
	}

	if opts.SilenceDuration <= 0 {
		opts.SilenceDuration = audio.DefaultSilenceDuration
	}

	if opts.SampleRate <= 0 {
		opts.SampleRate = audio.DefaultSampleRate
	}

	return &Controller{
		backend:  backend,
		store:    store,
		recorder: recorder,
		notifier: notifier,
		logger:   logger,
		metrics:  m,
		opts:     opts,
		history:  NewHistory(),
	}, nil
}

// StartExam resets all per-exam state and starts or resumes a session for
// the instrument. A persisted session id is validated with a progress query
// and adopted on success; otherwise it is discarded and a new session is
// created. Failure to obtain a session id is fatal for the attempt.
func (c *Controller) StartExam(ctx context.Context, instrument string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := Instruments[instrument]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownInstrument, instrument)
	}

	c.sessionID = ""
	c.instrument = instrument
	c.history.Reset()
	c.pending = DirectionNone
	c.manualConfirmed = false
	c.totalQuestions = nil
	c.answered = 0

	c.notifier.Status(StatusStarting)

	if stored, ok, err := c.store.Lookup(instrument); err != nil {
		c.logger.Warn("Resume lookup failed", slog.String("instrument", instrument), slog.String("error", err.Error()))
	} else if ok {
		if _, perr := c.backend.Progress(ctx, stored); perr == nil {
			c.sessionID = stored
			c.metrics.SessionsResumed.Inc()
			c.logger.Info("Resumed exam session",
				slog.String("instrument", instrument),
				slog.String("session_id", stored),
			)
			c.refreshProgress(ctx)
			c.loadNextQuestion(ctx)
			return nil
		}

		c.logger.Warn("Discarding stale session id",
			slog.String("instrument", instrument),
			slog.String("session_id", stored),
		)
		if cerr := c.store.Clear(instrument); cerr != nil {
			c.logger.Warn("Failed to clear stale session id", slog.String("error", cerr.Error()))
		}
	}

	sessionID, err := c.backend.CreateSession(ctx, api.CreateSessionRequest{
		PatientID:  c.opts.PatientID,
		Instrument: instrument,
		Config:     c.opts.SessionConfig,
	})
	if err != nil {
		c.metrics.SessionFailures.Inc()
		c.notifier.Status(StatusTryLater)
		c.logger.Error("Failed to create session",
			slog.String("instrument", instrument),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create session: %w", err)
	}

	c.sessionID = sessionID
	c.metrics.SessionsCreated.Inc()
	c.logger.Info("Created exam session",
		slog.String("instrument", instrument),
		slog.String("session_id", sessionID),
	)

	if err := c.store.Save(instrument, sessionID); err != nil {
		c.logger.Warn("Failed to persist session id", slog.String("error", err.Error()))
	}

	c.refreshProgress(ctx)
	c.loadNextQuestion(ctx)
	return nil
}

// HandleNavigation is the sole entry point for user-driven movement. When a
// recording is active the intent is deferred: the recording is stopped and
// navigation resumes automatically once the resulting upload settles.
func (c *Controller) HandleNavigation(ctx context.Context, dir Direction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handleNavigation(ctx, dir)
}

func (c *Controller) handleNavigation(ctx context.Context, dir Direction) {
	if dir != DirectionNext && dir != DirectionPrev {
		return
	}

	if c.sessionID == "" {
		c.notifier.Toast(ToastPickTest)
		return
	}

	cur, ok := c.history.Current()
	if !ok {
		if dir == DirectionNext {
			c.loadNextQuestion(ctx)
		}
		return
	}

	if c.recorder.State() == capture.StateCapturing {
		c.pending = dir
		c.stopRecording(ctx)
		return
	}

	if dir == DirectionPrev {
		// Back navigation bypasses the deferred slot entirely.
		c.loadPreviousQuestion()
		return
	}

	if _, answered := c.history.Answer(cur.QuestionID); !answered {
		// An explicit skip is recorded as an empty answer, not a gap.
		c.pending = DirectionNext
		c.metrics.SilentPlaceholders.Inc()
		if err := c.uploadResponse(ctx, c.silentClip(), silenceFilename, nil, nil); err != nil {
			c.logger.Debug("Skip placeholder upload failed", slog.String("error", err.Error()))
		}
		return
	}

	c.loadNextQuestion(ctx)
}

// BeginRecording starts capturing a spoken response for the current
// question. A second call while a recording is active is a silent no-op.
func (c *Controller) BeginRecording(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessionID == "" {
		c.notifier.Status(StatusNeedQuestion)
		return ErrNoSession
	}

	cur, ok := c.history.Current()
	if !ok {
		c.notifier.Status(StatusNeedQuestion)
		return ErrNoQuestion
	}

	if cur.RecordingDisabled {
		c.notifier.Status(StatusWaitAudio)
		return ErrRecordingDisabled
	}

	if c.recorder.State() != capture.StateIdle {
		return nil
	}

	if err := c.recorder.Begin(ctx); err != nil {
		c.notifier.Status(StatusMicUnavailable)
		return fmt.Errorf("failed to begin recording: %w", err)
	}

	c.metrics.RecordingsStarted.Inc()
	c.notifier.Status(StatusRecording)
	return nil
}

// StopRecording finalizes the active recording and uploads the result. The
// single-flight guard is released only after the upload settles, so a new
// recording cannot start while the previous upload is still in flight.
func (c *Controller) StopRecording(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopRecording(ctx)
}

func (c *Controller) stopRecording(ctx context.Context) {
	if c.recorder.State() != capture.StateCapturing {
		return
	}

	c.notifier.Status(StatusUploading)

	clip, err := c.recorder.Stop()
	if err != nil {
		c.recorder.Finish()
		c.pending = DirectionNone
		c.notifier.Status(StatusUploadFail)
		c.logger.Error("Failed to stop recording", slog.String("error", err.Error()))
		return
	}

	c.metrics.RecordingDuration.Observe(clip.Duration.Seconds())
	if clip.HasReaction {
		c.metrics.VoiceLatched.Inc()
	}

	blob, filename := c.encodeClip(clip)
	if err := c.uploadResponse(ctx, blob, filename, clip, nil); err != nil {
		c.logger.Debug("Recording upload failed", slog.String("error", err.Error()))
	}
	c.recorder.Finish()
}

// encodeClip turns captured samples into a WAV blob. A take with no frames,
// such as a source that ended immediately, falls back to a placeholder so
// the stop path always produces a well-formed payload.
func (c *Controller) encodeClip(clip *capture.Clip) ([]byte, string) {
	if len(clip.Samples) == 0 {
		c.metrics.SilentPlaceholders.Inc()
		return c.silentClip(), silenceFilename
	}

	blob, err := audio.EncodeWAV(clip.Samples, clip.SampleRate)
	if err != nil {
		c.logger.Warn("Failed to encode recording", slog.String("error", err.Error()))
		c.metrics.SilentPlaceholders.Inc()
		return c.silentClip(), silenceFilename
	}

	return blob, responseFilename
}

// SubmitManualDecision records an explicit accept/reject for a
// manual-confirm question through the normal upload/advance pipeline.
func (c *Controller) SubmitManualDecision(ctx context.Context, confirmed bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessionID == "" {
		c.notifier.Status(StatusNeedQuestion)
		return ErrNoSession
	}

	if _, ok := c.history.Current(); !ok {
		c.notifier.Status(StatusNeedQuestion)
		return ErrNoQuestion
	}

	c.notifier.Status(StatusUploading)
	c.pending = DirectionNext
	c.metrics.SilentPlaceholders.Inc()
	return c.uploadResponse(ctx, c.silentClip(), manualFilename, nil, &confirmed)
}

// SetManualConfirm toggles the manual-confirm flag sent with the next
// regular upload. An explicit decision override always wins over it.
func (c *Controller) SetManualConfirm(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manualConfirmed = on
}

// SubmitReport posts the submit request for the active session.
func (c *Controller) SubmitReport(ctx context.Context, opts SubmitOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitReport(ctx, opts)
}

func (c *Controller) submitReport(ctx context.Context, opts SubmitOptions) error {
	if c.sessionID == "" {
		return ErrNoSession
	}

	if opts.ShowStatus {
		c.notifier.Status(StatusReporting)
	}

	if err := c.backend.SubmitReport(ctx, c.sessionID); err != nil {
		c.metrics.ReportFailures.Inc()
		if opts.ShowStatus {
			c.notifier.Status(StatusReportFail)
		}
		c.logger.Warn("Report submission failed",
			slog.String("session_id", c.sessionID),
			slog.String("error", err.Error()),
		)
		return err
	}

	c.metrics.ReportsSubmitted.Inc()
	c.notifier.ResultsAvailable()
	if opts.ShowStatus {
		c.notifier.Status(StatusReportOK)
	}
	if opts.OpenResults && c.opts.ResultsURL != "" {
		c.notifier.OpenResults(c.opts.ResultsURL)
	}

	return nil
}

// loadNextQuestion replays a cached question when the user had gone back;
// otherwise it fetches fresh. A fetch that repeats the current question id
// means the backend still has an outstanding answer: one silent placeholder
// is uploaded and the fetch retried exactly once.
func (c *Controller) loadNextQuestion(ctx context.Context) {
	if c.sessionID == "" {
		return
	}

	if q, ok := c.history.Forward(); ok {
		c.metrics.QuestionsReplayed.Inc()
		c.showQuestion(q)
		return
	}

	q := c.fetchNextQuestion(ctx)
	if q == nil {
		return
	}

	if cur, ok := c.history.Current(); ok && q.QuestionID == cur.QuestionID {
		c.metrics.StuckRetries.Inc()
		c.metrics.SilentPlaceholders.Inc()
		if err := c.uploadResponse(ctx, c.silentClip(), silenceFilename, nil, nil); err != nil {
			c.logger.Debug("Stuck-question placeholder upload failed", slog.String("error", err.Error()))
		}

		retry := c.fetchNextQuestion(ctx)
		if retry != nil && retry.QuestionID != cur.QuestionID {
			c.history.Append(*retry)
			c.showQuestion(*retry)
			return
		}

		c.notifier.Status(StatusTryLater)
		return
	}

	c.history.Append(*q)
	c.showQuestion(*q)
}

// loadPreviousQuestion replays the previous cached question. Purely local.
func (c *Controller) loadPreviousQuestion() {
	if q, ok := c.history.Back(); ok {
		c.metrics.QuestionsReplayed.Inc()
		c.showQuestion(q)
	}
}

func (c *Controller) fetchNextQuestion(ctx context.Context) *api.Question {
	q, err := c.backend.NextQuestion(ctx, c.sessionID)
	if err != nil {
		c.metrics.FetchFailures.Inc()
		c.notifier.Status(StatusTryLater)
		c.notifier.ResultsAvailable()
		c.logger.Warn("Failed to fetch next question",
			slog.String("session_id", c.sessionID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	c.metrics.QuestionsFetched.Inc()
	return q
}

func (c *Controller) showQuestion(q api.Question) {
	c.manualConfirmed = false

	position := c.history.Index() + 1
	answer, ok := c.history.Answer(q.QuestionID)
	if !ok {
		answer = NoResult
	}

	c.notifier.ShowQuestion(q, position, answer)
	if c.totalQuestions == nil {
		c.notifier.ShowProgress(position, position)
	}
	c.notifier.Status(StatusWaitAudio)
}

// uploadResponse posts one response blob and, on success, caches the
// transcript, refreshes progress, re-evaluates completion, and finally
// drains the deferred navigation slot exactly once. A failed upload clears
// the slot so the exam never auto-advances past a failure.
func (c *Controller) uploadResponse(ctx context.Context, blob []byte, filename string, clip *capture.Clip, manualOverride *bool) error {
	if c.sessionID == "" {
		c.notifier.Status(StatusNeedQuestion)
		c.pending = DirectionNone
		return ErrNoSession
	}

	cur, ok := c.history.Current()
	if !ok {
		c.notifier.Status(StatusNeedQuestion)
		c.pending = DirectionNone
		return ErrNoQuestion
	}

	if cur.QuestionID == "" || len(blob) == 0 {
		c.notifier.Status(StatusUploadFail)
		c.pending = DirectionNone
		return fmt.Errorf("nothing to upload for question %q", cur.QuestionID)
	}

	req := api.UploadRequest{
		QuestionID: cur.QuestionID,
		Audio:      blob,
		Filename:   filename,
	}

	if clip != nil && clip.HasReaction {
		req.ReactionTime = clip.ReactionTime
		req.HasReaction = true
	}

	if manualOverride != nil {
		req.ManualConfirmed = manualOverride
	} else if c.manualConfirmed {
		confirmed := true
		req.ManualConfirmed = &confirmed
	}

	c.metrics.UploadsTotal.Inc()
	start := time.Now()
	result, err := c.backend.UploadResponse(ctx, c.sessionID, req)
	c.metrics.UploadDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		c.metrics.UploadsFailed.Inc()
		c.notifier.Status(StatusUploadFail)
		c.pending = DirectionNone
		c.logger.Warn("Response upload failed",
			slog.String("session_id", c.sessionID),
			slog.String("question_id", cur.QuestionID),
			slog.String("error", err.Error()),
		)
		return err
	}

	c.history.SetAnswer(cur.QuestionID, result.Transcript)
	transcript := result.Transcript
	if transcript == "" {
		transcript = NoResult
	}
	c.notifier.ShowAnswer(transcript)

	c.manualConfirmed = false
	c.notifier.Status(StatusAnswered)

	c.refreshProgress(ctx)
	c.maybeSubmitReport(ctx)

	if c.pending != DirectionNone {
		dir := c.pending
		c.pending = DirectionNone
		switch dir {
		case DirectionNext:
			c.loadNextQuestion(ctx)
		case DirectionPrev:
			c.loadPreviousQuestion()
		}
	}

	return nil
}

// refreshProgress updates the answered/total counts, best effort. Failures
// leave the counts stale and surface nothing.
func (c *Controller) refreshProgress(ctx context.Context) {
	if c.sessionID == "" {
		return
	}

	p, err := c.backend.Progress(ctx, c.sessionID)
	if err != nil {
		c.logger.Debug("Progress refresh failed", slog.String("error", err.Error()))
		return
	}

	c.totalQuestions = p.TotalQuestions
	c.answered = p.Answered

	total := 0
	if p.TotalQuestions != nil {
		total = *p.TotalQuestions
	}
	c.notifier.ShowProgress(p.Answered, total)
}

// maybeSubmitReport re-evaluates completion after every successful upload.
// The total may become known mid-exam, so this cannot wait for exam end.
func (c *Controller) maybeSubmitReport(ctx context.Context) {
	if c.sessionID == "" {
		return
	}

	p, err := c.backend.Progress(ctx, c.sessionID)
	if err != nil {
		c.logger.Debug("Completion check failed", slog.String("error", err.Error()))
		return
	}

	position := c.history.Index() + 1
	if p.IsComplete || (c.totalQuestions != nil && position >= *c.totalQuestions) {
		if err := c.submitReport(ctx, SubmitOptions{ShowStatus: true}); err != nil {
			return
		}
		if err := c.store.Clear(c.instrument); err != nil {
			c.logger.Warn("Failed to clear resumable session id", slog.String("error", err.Error()))
		}
	}
}

func (c *Controller) silentClip() []byte {
	return audio.SilentClip(c.opts.SilenceDuration, c.opts.SampleRate)
}

// SessionID returns the active session id, empty when no exam is running.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Instrument returns the active instrument id.
func (c *Controller) Instrument() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.instrument
}

// Position returns the 1-based position of the current question.
func (c *Controller) Position() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Index() + 1
}

// AnsweredCount returns the last answered count reported by the backend.
func (c *Controller) AnsweredCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.answered
}

// CurrentQuestion returns the question at the current history position.
func (c *Controller) CurrentQuestion() (api.Question, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Current()
}

// Pending returns the deferred navigation intent.
func (c *Controller) Pending() Direction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}
