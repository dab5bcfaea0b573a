package exam

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/BrianHuang880507/CogScreen-AI/internal/api"
	"github.com/BrianHuang880507/CogScreen-AI/internal/capture"
	"github.com/BrianHuang880507/CogScreen-AI/internal/metrics"
)

type fakeBackend struct {
	questions []api.Question
	fetchIdx  int

	createErr   error
	nextErr     error
	uploadErr   error
	submitErr   error
	progressErr error

	progress   api.Progress
	transcript string

	createCalls   int
	progressCalls int
	submitCalls   int
	uploads       []api.UploadRequest
}

func (b *fakeBackend) CreateSession(_ context.Context, req api.CreateSessionRequest) (string, error) {
	b.createCalls++
	if b.createErr != nil {
		return "", b.createErr
	}
	return "session-" + req.Instrument, nil
}

func (b *fakeBackend) NextQuestion(_ context.Context, _ string) (*api.Question, error) {
	if b.nextErr != nil {
		return nil, b.nextErr
	}
	if len(b.questions) == 0 {
		return nil, errors.New("no scripted questions")
	}
	idx := b.fetchIdx
	if idx >= len(b.questions) {
		idx = len(b.questions) - 1
	}
	b.fetchIdx++
	q := b.questions[idx]
	return &q, nil
}

func (b *fakeBackend) Progress(_ context.Context, _ string) (*api.Progress, error) {
	b.progressCalls++
	if b.progressErr != nil {
		return nil, b.progressErr
	}
	p := b.progress
	return &p, nil
}

func (b *fakeBackend) UploadResponse(_ context.Context, _ string, req api.UploadRequest) (*api.UploadResult, error) {
	b.uploads = append(b.uploads, req)
	if b.uploadErr != nil {
		return nil, b.uploadErr
	}
	return &api.UploadResult{Transcript: b.transcript}, nil
}

func (b *fakeBackend) SubmitReport(_ context.Context, _ string) error {
	b.submitCalls++
	return b.submitErr
}

func (b *fakeBackend) placeholderUploads() int {
	n := 0
	for _, u := range b.uploads {
		if u.Filename == silenceFilename {
			n++
		}
	}
	return n
}

type fakeStore struct {
	sessions   map[string]string
	lookupErr  error
	saveCalls  int
	clearCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]string)}
}

func (s *fakeStore) Lookup(instrument string) (string, bool, error) {
	if s.lookupErr != nil {
		return "", false, s.lookupErr
	}
	id, ok := s.sessions[instrument]
	return id, ok, nil
}

func (s *fakeStore) Save(instrument, sessionID string) error {
	s.saveCalls++
	s.sessions[instrument] = sessionID
	return nil
}

func (s *fakeStore) Clear(instrument string) error {
	s.clearCalls++
	delete(s.sessions, instrument)
	return nil
}

type fakeRecorder struct {
	state    capture.State
	clip     *capture.Clip
	beginErr error
	stopErr  error

	beginCalls  int
	stopCalls   int
	finishCalls int
}

func (r *fakeRecorder) State() capture.State { return r.state }

func (r *fakeRecorder) Begin(_ context.Context) error {
	r.beginCalls++
	if r.beginErr != nil {
		return r.beginErr
	}
	r.state = capture.StateCapturing
	return nil
}

func (r *fakeRecorder) Stop() (*capture.Clip, error) {
	r.stopCalls++
	r.state = capture.StateStopping
	if r.stopErr != nil {
		return nil, r.stopErr
	}
	clip := r.clip
	if clip == nil {
		clip = &capture.Clip{SampleRate: 16000}
	}
	return clip, nil
}

func (r *fakeRecorder) Finish() {
	r.finishCalls++
	r.state = capture.StateIdle
}

type recordingNotifier struct {
	statuses    []string
	toasts      []string
	questions   []api.Question
	answers     []string
	resultsSeen int
	opened      []string
}

func (n *recordingNotifier) Status(message string) { n.statuses = append(n.statuses, message) }
func (n *recordingNotifier) Toast(message string)  { n.toasts = append(n.toasts, message) }
func (n *recordingNotifier) ShowQuestion(q api.Question, _ int, _ string) {
	n.questions = append(n.questions, q)
}
func (n *recordingNotifier) ShowAnswer(transcript string) { n.answers = append(n.answers, transcript) }
func (n *recordingNotifier) ShowProgress(_, _ int)        {}
func (n *recordingNotifier) ResultsAvailable()            { n.resultsSeen++ }
func (n *recordingNotifier) OpenResults(url string)       { n.opened = append(n.opened, url) }

func (n *recordingNotifier) lastStatus() string {
	if len(n.statuses) == 0 {
		return ""
	}
	return n.statuses[len(n.statuses)-1]
}

func (n *recordingNotifier) lastQuestionID() string {
	if len(n.questions) == 0 {
		return ""
	}
	return n.questions[len(n.questions)-1].QuestionID
}

func question(id string) api.Question {
	return api.Question{QuestionID: id, Text: "question " + id}
}

func newTestController(t *testing.T, backend Backend, store ResumeStore, recorder Recorder) (*Controller, *recordingNotifier) {
	t.Helper()

	notifier := &recordingNotifier{}
	m := metrics.NewMetrics(prometheus.NewRegistry())
	c, err := NewController(backend, store, recorder, notifier, nil, m, Options{
		ResultsURL:      "http://localhost/results",
		SilenceDuration: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}
	return c, notifier
}

func TestStartExamCreatesSession(t *testing.T) {
	backend := &fakeBackend{questions: []api.Question{question("q1")}}
	store := newFakeStore()
	c, notifier := newTestController(t, backend, store, &fakeRecorder{})

	if err := c.StartExam(context.Background(), "mmse"); err != nil {
		t.Fatalf("StartExam failed: %v", err)
	}

	if backend.createCalls != 1 {
		t.Errorf("Expected 1 create call, got %d", backend.createCalls)
	}
	if got := c.SessionID(); got != "session-mmse" {
		t.Errorf("Expected session id session-mmse, got %q", got)
	}
	if store.sessions["mmse"] != "session-mmse" {
		t.Errorf("Expected session id persisted, got %q", store.sessions["mmse"])
	}
	if notifier.lastQuestionID() != "q1" {
		t.Errorf("Expected first question shown, got %q", notifier.lastQuestionID())
	}
	if c.Position() != 1 {
		t.Errorf("Expected position 1, got %d", c.Position())
	}
}

func TestStartExamUnknownInstrument(t *testing.T) {
	backend := &fakeBackend{}
	c, _ := newTestController(t, backend, newFakeStore(), &fakeRecorder{})

	err := c.StartExam(context.Background(), "iq-test")
	if !errors.Is(err, ErrUnknownInstrument) {
		t.Fatalf("Expected ErrUnknownInstrument, got %v", err)
	}
	if backend.createCalls != 0 {
		t.Errorf("Expected no create call, got %d", backend.createCalls)
	}
}

func TestStartExamResumesStoredSession(t *testing.T) {
	backend := &fakeBackend{questions: []api.Question{question("q3")}}
	store := newFakeStore()
	store.sessions["mmse"] = "session-old"
	c, _ := newTestController(t, backend, store, &fakeRecorder{})

	if err := c.StartExam(context.Background(), "mmse"); err != nil {
		t.Fatalf("StartExam failed: %v", err)
	}

	if backend.createCalls != 0 {
		t.Errorf("Expected no create call on resume, got %d", backend.createCalls)
	}
	if got := c.SessionID(); got != "session-old" {
		t.Errorf("Expected resumed session id, got %q", got)
	}
}

func TestStartExamDiscardsStaleSession(t *testing.T) {
	backend := &fakeBackend{questions: []api.Question{question("q1")}}
	store := newFakeStore()
	store.sessions["mmse"] = "session-gone"
	c, _ := newTestController(t, backend, store, &fakeRecorder{})

	// First progress probe rejects the stale id, everything after works.
	probe := 0
	c.backend = &staleProbeBackend{fakeBackend: backend, probe: &probe}

	if err := c.StartExam(context.Background(), "mmse"); err != nil {
		t.Fatalf("StartExam failed: %v", err)
	}

	if got := c.SessionID(); got != "session-mmse" {
		t.Errorf("Expected fresh session id, got %q", got)
	}
	if store.clearCalls != 1 {
		t.Errorf("Expected stale session id cleared once, got %d", store.clearCalls)
	}
	if store.sessions["mmse"] != "session-mmse" {
		t.Errorf("Expected fresh session id persisted, got %q", store.sessions["mmse"])
	}
}

// staleProbeBackend fails only the first progress call.
type staleProbeBackend struct {
	*fakeBackend
	probe *int
}

func (b *staleProbeBackend) Progress(ctx context.Context, sessionID string) (*api.Progress, error) {
	*b.probe++
	if *b.probe == 1 {
		return nil, errors.New("session not found")
	}
	return b.fakeBackend.Progress(ctx, sessionID)
}

func TestStartExamCreateFailure(t *testing.T) {
	backend := &fakeBackend{createErr: errors.New("backend down")}
	c, notifier := newTestController(t, backend, newFakeStore(), &fakeRecorder{})

	if err := c.StartExam(context.Background(), "mmse"); err == nil {
		t.Fatal("Expected StartExam error")
	}
	if c.SessionID() != "" {
		t.Errorf("Expected no session id, got %q", c.SessionID())
	}
	if notifier.lastStatus() != StatusTryLater {
		t.Errorf("Expected try-later status, got %q", notifier.lastStatus())
	}
}

func TestNavigationWithoutSession(t *testing.T) {
	backend := &fakeBackend{}
	c, notifier := newTestController(t, backend, newFakeStore(), &fakeRecorder{})

	c.HandleNavigation(context.Background(), DirectionNext)

	if len(notifier.toasts) != 1 || notifier.toasts[0] != ToastPickTest {
		t.Errorf("Expected pick-test toast, got %v", notifier.toasts)
	}
	if backend.fetchIdx != 0 {
		t.Error("Expected no question fetch without a session")
	}
}

func TestPreviousNavigationIsLocal(t *testing.T) {
	backend := &fakeBackend{
		questions:  []api.Question{question("q1"), question("q2")},
		transcript: "forty two",
	}
	c, notifier := newTestController(t, backend, newFakeStore(), &fakeRecorder{})

	if err := c.StartExam(context.Background(), "mmse"); err != nil {
		t.Fatalf("StartExam failed: %v", err)
	}

	// Answer q1 via skip, landing on q2.
	c.HandleNavigation(context.Background(), DirectionNext)
	if notifier.lastQuestionID() != "q2" {
		t.Fatalf("Expected q2 current, got %q", notifier.lastQuestionID())
	}

	fetchesBefore := backend.fetchIdx
	uploadsBefore := len(backend.uploads)

	c.HandleNavigation(context.Background(), DirectionPrev)

	if notifier.lastQuestionID() != "q1" {
		t.Errorf("Expected q1 shown after prev, got %q", notifier.lastQuestionID())
	}
	if backend.fetchIdx != fetchesBefore {
		t.Error("Expected prev navigation to make no fetch")
	}
	if len(backend.uploads) != uploadsBefore {
		t.Error("Expected prev navigation to make no upload")
	}
	if c.Position() != 1 {
		t.Errorf("Expected position 1, got %d", c.Position())
	}
}

func TestForwardReplaysCachedQuestion(t *testing.T) {
	backend := &fakeBackend{
		questions:  []api.Question{question("q1"), question("q2")},
		transcript: "answer",
	}
	c, notifier := newTestController(t, backend, newFakeStore(), &fakeRecorder{})

	if err := c.StartExam(context.Background(), "mmse"); err != nil {
		t.Fatalf("StartExam failed: %v", err)
	}
	c.HandleNavigation(context.Background(), DirectionNext) // skip q1, land on q2
	c.HandleNavigation(context.Background(), DirectionPrev) // back to q1

	fetchesBefore := backend.fetchIdx
	uploadsBefore := len(backend.uploads)

	c.HandleNavigation(context.Background(), DirectionNext) // q1 is answered

	if notifier.lastQuestionID() != "q2" {
		t.Errorf("Expected cached q2 replayed, got %q", notifier.lastQuestionID())
	}
	if backend.fetchIdx != fetchesBefore {
		t.Error("Expected replay to make no fetch")
	}
	if len(backend.uploads) != uploadsBefore {
		t.Error("Expected replay to make no upload")
	}
}

func TestSkipUploadsSilentPlaceholder(t *testing.T) {
	backend := &fakeBackend{
		questions:  []api.Question{question("q1"), question("q2")},
		transcript: "",
	}
	c, notifier := newTestController(t, backend, newFakeStore(), &fakeRecorder{})

	if err := c.StartExam(context.Background(), "mmse"); err != nil {
		t.Fatalf("StartExam failed: %v", err)
	}

	c.HandleNavigation(context.Background(), DirectionNext)

	if got := backend.placeholderUploads(); got != 1 {
		t.Fatalf("Expected 1 placeholder upload, got %d", got)
	}
	if backend.uploads[0].QuestionID != "q1" {
		t.Errorf("Expected placeholder for q1, got %q", backend.uploads[0].QuestionID)
	}
	if backend.uploads[0].HasReaction {
		t.Error("Expected no reaction time on a placeholder")
	}
	if notifier.lastQuestionID() != "q2" {
		t.Errorf("Expected advance to q2 after skip, got %q", notifier.lastQuestionID())
	}
	if c.Pending() != DirectionNone {
		t.Errorf("Expected pending drained, got %v", c.Pending())
	}
}

func TestStuckQuestionRetriesOnce(t *testing.T) {
	t.Run("retry recovers", func(t *testing.T) {
		// q1 answered and advanced to q2 via skip; then the backend keeps
		// serving q2 once before moving on.
		backend := &fakeBackend{
			questions:  []api.Question{question("q1"), question("q2"), question("q2"), question("q3")},
			transcript: "ok",
		}
		c, notifier := newTestController(t, backend, newFakeStore(), &fakeRecorder{})

		if err := c.StartExam(context.Background(), "mmse"); err != nil {
			t.Fatalf("StartExam failed: %v", err)
		}
		c.HandleNavigation(context.Background(), DirectionNext) // answer q1, show q2
		c.HandleNavigation(context.Background(), DirectionNext) // answer q2, fetch repeats q2

		if notifier.lastQuestionID() != "q3" {
			t.Errorf("Expected retry to reach q3, got %q", notifier.lastQuestionID())
		}
		// One placeholder for the q1 skip, one for the q2 skip, one for the
		// stuck retry.
		if got := backend.placeholderUploads(); got != 3 {
			t.Errorf("Expected 3 placeholder uploads, got %d", got)
		}
	})

	t.Run("retry exhausted", func(t *testing.T) {
		backend := &fakeBackend{
			questions:  []api.Question{question("q1"), question("q2"), question("q2"), question("q2")},
			transcript: "ok",
		}
		c, notifier := newTestController(t, backend, newFakeStore(), &fakeRecorder{})

		if err := c.StartExam(context.Background(), "mmse"); err != nil {
			t.Fatalf("StartExam failed: %v", err)
		}
		c.HandleNavigation(context.Background(), DirectionNext)
		uploadsBefore := len(backend.uploads)
		c.HandleNavigation(context.Background(), DirectionNext)

		if notifier.lastStatus() != StatusTryLater {
			t.Errorf("Expected try-later status, got %q", notifier.lastStatus())
		}
		if notifier.lastQuestionID() != "q2" {
			t.Errorf("Expected to stay on q2, got %q", notifier.lastQuestionID())
		}
		// The q2 skip plus exactly one stuck placeholder, never a second.
		if got := len(backend.uploads) - uploadsBefore; got != 2 {
			t.Errorf("Expected 2 uploads after stuck fetch, got %d", got)
		}
	})
}

func TestRecordingFlow(t *testing.T) {
	backend := &fakeBackend{
		questions:  []api.Question{question("q1"), question("q2")},
		transcript: "the year is 2026",
	}
	recorder := &fakeRecorder{
		clip: &capture.Clip{
			Samples:      make([]int16, 1600),
			SampleRate:   16000,
			Duration:     100 * time.Millisecond,
			ReactionTime: 230 * time.Millisecond,
			HasReaction:  true,
		},
	}
	c, notifier := newTestController(t, backend, newFakeStore(), recorder)

	if err := c.StartExam(context.Background(), "mmse"); err != nil {
		t.Fatalf("StartExam failed: %v", err)
	}
	if err := c.BeginRecording(context.Background()); err != nil {
		t.Fatalf("BeginRecording failed: %v", err)
	}
	if notifier.lastStatus() != StatusRecording {
		t.Errorf("Expected recording status, got %q", notifier.lastStatus())
	}

	c.StopRecording(context.Background())

	if len(backend.uploads) != 1 {
		t.Fatalf("Expected 1 upload, got %d", len(backend.uploads))
	}
	up := backend.uploads[0]
	if up.Filename != responseFilename {
		t.Errorf("Expected filename %q, got %q", responseFilename, up.Filename)
	}
	if !up.HasReaction || up.ReactionTime != 230*time.Millisecond {
		t.Errorf("Expected reaction time forwarded, got %v (has=%t)", up.ReactionTime, up.HasReaction)
	}
	if len(notifier.answers) != 1 || notifier.answers[0] != "the year is 2026" {
		t.Errorf("Expected transcript shown, got %v", notifier.answers)
	}
	if recorder.finishCalls != 1 {
		t.Errorf("Expected recorder released once, got %d", recorder.finishCalls)
	}
	if recorder.state != capture.StateIdle {
		t.Errorf("Expected recorder idle after settle, got %v", recorder.state)
	}
}

func TestBeginRecordingPreconditions(t *testing.T) {
	t.Run("no session", func(t *testing.T) {
		c, _ := newTestController(t, &fakeBackend{}, newFakeStore(), &fakeRecorder{})
		if err := c.BeginRecording(context.Background()); !errors.Is(err, ErrNoSession) {
			t.Errorf("Expected ErrNoSession, got %v", err)
		}
	})

	t.Run("recording disabled", func(t *testing.T) {
		q := question("q1")
		q.RecordingDisabled = true
		backend := &fakeBackend{questions: []api.Question{q}}
		recorder := &fakeRecorder{}
		c, _ := newTestController(t, backend, newFakeStore(), recorder)

		if err := c.StartExam(context.Background(), "mmse"); err != nil {
			t.Fatalf("StartExam failed: %v", err)
		}
		if err := c.BeginRecording(context.Background()); !errors.Is(err, ErrRecordingDisabled) {
			t.Errorf("Expected ErrRecordingDisabled, got %v", err)
		}
		if recorder.beginCalls != 0 {
			t.Errorf("Expected recorder untouched, got %d begins", recorder.beginCalls)
		}
	})

	t.Run("microphone failure", func(t *testing.T) {
		backend := &fakeBackend{questions: []api.Question{question("q1")}}
		recorder := &fakeRecorder{beginErr: errors.New("no device")}
		c, notifier := newTestController(t, backend, newFakeStore(), recorder)

		if err := c.StartExam(context.Background(), "mmse"); err != nil {
			t.Fatalf("StartExam failed: %v", err)
		}
		if err := c.BeginRecording(context.Background()); err == nil {
			t.Fatal("Expected begin error")
		}
		if notifier.lastStatus() != StatusMicUnavailable {
			t.Errorf("Expected mic-unavailable status, got %q", notifier.lastStatus())
		}
	})

	t.Run("already recording", func(t *testing.T) {
		backend := &fakeBackend{questions: []api.Question{question("q1")}}
		recorder := &fakeRecorder{}
		c, _ := newTestController(t, backend, newFakeStore(), recorder)

		if err := c.StartExam(context.Background(), "mmse"); err != nil {
			t.Fatalf("StartExam failed: %v", err)
		}
		if err := c.BeginRecording(context.Background()); err != nil {
			t.Fatalf("First begin failed: %v", err)
		}
		if err := c.BeginRecording(context.Background()); err != nil {
			t.Fatalf("Second begin should be a no-op, got %v", err)
		}
		if recorder.beginCalls != 1 {
			t.Errorf("Expected 1 begin call, got %d", recorder.beginCalls)
		}
	})
}

func TestNavigationDuringRecordingDefersAndDrains(t *testing.T) {
	backend := &fakeBackend{
		questions:  []api.Question{question("q1"), question("q2")},
		transcript: "spoken answer",
	}
	recorder := &fakeRecorder{
		clip: &capture.Clip{Samples: make([]int16, 160), SampleRate: 16000},
	}
	c, notifier := newTestController(t, backend, newFakeStore(), recorder)

	if err := c.StartExam(context.Background(), "mmse"); err != nil {
		t.Fatalf("StartExam failed: %v", err)
	}
	if err := c.BeginRecording(context.Background()); err != nil {
		t.Fatalf("BeginRecording failed: %v", err)
	}

	c.HandleNavigation(context.Background(), DirectionNext)

	if len(backend.uploads) != 1 {
		t.Fatalf("Expected 1 upload, got %d", len(backend.uploads))
	}
	if notifier.lastQuestionID() != "q2" {
		t.Errorf("Expected deferred navigation to advance to q2, got %q", notifier.lastQuestionID())
	}
	if c.Pending() != DirectionNone {
		t.Errorf("Expected pending drained, got %v", c.Pending())
	}
	if recorder.state != capture.StateIdle {
		t.Errorf("Expected recorder idle, got %v", recorder.state)
	}
}

func TestUploadFailureClearsPending(t *testing.T) {
	backend := &fakeBackend{
		questions: []api.Question{question("q1"), question("q2")},
		uploadErr: errors.New("503"),
	}
	recorder := &fakeRecorder{
		clip: &capture.Clip{Samples: make([]int16, 160), SampleRate: 16000},
	}
	c, notifier := newTestController(t, backend, newFakeStore(), recorder)

	if err := c.StartExam(context.Background(), "mmse"); err != nil {
		t.Fatalf("StartExam failed: %v", err)
	}
	if err := c.BeginRecording(context.Background()); err != nil {
		t.Fatalf("BeginRecording failed: %v", err)
	}

	c.HandleNavigation(context.Background(), DirectionNext)

	if notifier.lastStatus() != StatusUploadFail {
		t.Errorf("Expected upload-fail status, got %q", notifier.lastStatus())
	}
	if notifier.lastQuestionID() != "q1" {
		t.Errorf("Expected no advance past a failed upload, still on %q", notifier.lastQuestionID())
	}
	if c.Pending() != DirectionNone {
		t.Errorf("Expected pending cleared after failure, got %v", c.Pending())
	}
	if recorder.finishCalls != 1 {
		t.Errorf("Expected recorder released once, got %d", recorder.finishCalls)
	}
}

func TestManualDecision(t *testing.T) {
	backend := &fakeBackend{
		questions:  []api.Question{question("q1"), question("q2")},
		transcript: "",
	}
	c, notifier := newTestController(t, backend, newFakeStore(), &fakeRecorder{})

	if err := c.StartExam(context.Background(), "mmse"); err != nil {
		t.Fatalf("StartExam failed: %v", err)
	}
	if err := c.SubmitManualDecision(context.Background(), true); err != nil {
		t.Fatalf("SubmitManualDecision failed: %v", err)
	}

	if len(backend.uploads) != 1 {
		t.Fatalf("Expected 1 upload, got %d", len(backend.uploads))
	}
	up := backend.uploads[0]
	if up.Filename != manualFilename {
		t.Errorf("Expected filename %q, got %q", manualFilename, up.Filename)
	}
	if up.ManualConfirmed == nil || !*up.ManualConfirmed {
		t.Errorf("Expected manual_confirmed=true, got %v", up.ManualConfirmed)
	}
	if notifier.lastQuestionID() != "q2" {
		t.Errorf("Expected advance after manual decision, got %q", notifier.lastQuestionID())
	}
}

func TestManualDecisionWithoutSession(t *testing.T) {
	backend := &fakeBackend{}
	c, _ := newTestController(t, backend, newFakeStore(), &fakeRecorder{})

	if err := c.SubmitManualDecision(context.Background(), false); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Expected ErrNoSession, got %v", err)
	}
	if len(backend.uploads) != 0 {
		t.Errorf("Expected no network traffic, got %d uploads", len(backend.uploads))
	}
}

func TestManualConfirmFlagSentOnce(t *testing.T) {
	backend := &fakeBackend{
		questions:  []api.Question{question("q1"), question("q2"), question("q3")},
		transcript: "yes",
	}
	c, _ := newTestController(t, backend, newFakeStore(), &fakeRecorder{})

	if err := c.StartExam(context.Background(), "mmse"); err != nil {
		t.Fatalf("StartExam failed: %v", err)
	}

	c.SetManualConfirm(true)
	c.HandleNavigation(context.Background(), DirectionNext) // skip q1 with the flag set
	c.HandleNavigation(context.Background(), DirectionNext) // skip q2 without

	if len(backend.uploads) != 2 {
		t.Fatalf("Expected 2 uploads, got %d", len(backend.uploads))
	}
	first, second := backend.uploads[0], backend.uploads[1]
	if first.ManualConfirmed == nil || !*first.ManualConfirmed {
		t.Errorf("Expected first upload confirmed, got %v", first.ManualConfirmed)
	}
	if second.ManualConfirmed != nil {
		t.Errorf("Expected flag reset after one upload, got %v", second.ManualConfirmed)
	}
}

func TestCompletionSubmitsReportOnce(t *testing.T) {
	total := 2
	backend := &fakeBackend{
		questions:  []api.Question{question("q1"), question("q2")},
		transcript: "done",
		progress:   api.Progress{Answered: 2, TotalQuestions: &total, IsComplete: true},
	}
	store := newFakeStore()
	c, notifier := newTestController(t, backend, store, &fakeRecorder{})

	if err := c.StartExam(context.Background(), "mmse"); err != nil {
		t.Fatalf("StartExam failed: %v", err)
	}
	c.HandleNavigation(context.Background(), DirectionNext)

	if backend.submitCalls != 1 {
		t.Errorf("Expected exactly 1 report submission, got %d", backend.submitCalls)
	}
	if _, ok := store.sessions["mmse"]; ok {
		t.Error("Expected resumable session id cleared after completion")
	}
	if notifier.resultsSeen == 0 {
		t.Error("Expected results made available")
	}

	found := false
	for _, s := range notifier.statuses {
		if s == StatusReportOK {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected completion status, got %v", notifier.statuses)
	}
}

func TestIncompleteExamDoesNotSubmit(t *testing.T) {
	total := 10
	backend := &fakeBackend{
		questions:  []api.Question{question("q1"), question("q2")},
		transcript: "partial",
		progress:   api.Progress{Answered: 1, TotalQuestions: &total},
	}
	c, _ := newTestController(t, backend, newFakeStore(), &fakeRecorder{})

	if err := c.StartExam(context.Background(), "mmse"); err != nil {
		t.Fatalf("StartExam failed: %v", err)
	}
	c.HandleNavigation(context.Background(), DirectionNext)

	if backend.submitCalls != 0 {
		t.Errorf("Expected no report submission mid-exam, got %d", backend.submitCalls)
	}
}

func TestSubmitReportExplicit(t *testing.T) {
	backend := &fakeBackend{questions: []api.Question{question("q1")}}
	c, notifier := newTestController(t, backend, newFakeStore(), &fakeRecorder{})

	if err := c.SubmitReport(context.Background(), SubmitOptions{}); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Expected ErrNoSession, got %v", err)
	}

	if err := c.StartExam(context.Background(), "mmse"); err != nil {
		t.Fatalf("StartExam failed: %v", err)
	}
	if err := c.SubmitReport(context.Background(), SubmitOptions{ShowStatus: true, OpenResults: true}); err != nil {
		t.Fatalf("SubmitReport failed: %v", err)
	}

	if backend.submitCalls != 1 {
		t.Errorf("Expected 1 submission, got %d", backend.submitCalls)
	}
	if len(notifier.opened) != 1 || notifier.opened[0] != "http://localhost/results" {
		t.Errorf("Expected results page opened, got %v", notifier.opened)
	}
}

func TestEmptyTakeFallsBackToSilence(t *testing.T) {
	backend := &fakeBackend{
		questions:  []api.Question{question("q1"), question("q2")},
		transcript: "",
	}
	recorder := &fakeRecorder{clip: &capture.Clip{SampleRate: 16000}}
	c, _ := newTestController(t, backend, newFakeStore(), recorder)

	if err := c.StartExam(context.Background(), "mmse"); err != nil {
		t.Fatalf("StartExam failed: %v", err)
	}
	if err := c.BeginRecording(context.Background()); err != nil {
		t.Fatalf("BeginRecording failed: %v", err)
	}
	c.StopRecording(context.Background())

	if len(backend.uploads) != 1 {
		t.Fatalf("Expected 1 upload, got %d", len(backend.uploads))
	}
	if backend.uploads[0].Filename != silenceFilename {
		t.Errorf("Expected silent placeholder for empty take, got %q", backend.uploads[0].Filename)
	}
}

func TestEmptyTranscriptShownAsNoResult(t *testing.T) {
	backend := &fakeBackend{
		questions:  []api.Question{question("q1"), question("q2")},
		transcript: "",
	}
	c, notifier := newTestController(t, backend, newFakeStore(), &fakeRecorder{})

	if err := c.StartExam(context.Background(), "mmse"); err != nil {
		t.Fatalf("StartExam failed: %v", err)
	}
	c.HandleNavigation(context.Background(), DirectionNext)

	if len(notifier.answers) != 1 || notifier.answers[0] != NoResult {
		t.Errorf("Expected %q shown for an empty transcript, got %v", NoResult, notifier.answers)
	}
}
