package exam

import (
	"github.com/BrianHuang880507/CogScreen-AI/internal/api"
)

// Status messages shown to the participant. Failure paths surface these
// short lines only, never raw error detail.
const (
	StatusStarting       = "starting the exam..."
	StatusTryLater       = "questions are unavailable right now"
	StatusWaitAudio      = "wait for the question audio to finish"
	StatusNeedQuestion   = "no question loaded yet"
	StatusRecording      = "recording..."
	StatusUploading      = "uploading response..."
	StatusUploadFail     = "upload failed, please try again"
	StatusAnswered       = "answer recorded, checking progress"
	StatusReporting      = "generating report..."
	StatusReportFail     = "report generation failed"
	StatusReportOK       = "exam complete"
	StatusMicUnavailable = "microphone unavailable"

	ToastPickTest = "pick a test first"
)

// Notifier receives participant-facing updates from the controller. The CLI
// prints them; tests record them.
type Notifier interface {
	// Status replaces the persistent status line.
	Status(message string)

	// Toast shows a transient message.
	Toast(message string)

	// ShowQuestion presents a question at a 1-based position together with
	// its cached answer (or the NoResult sentinel).
	ShowQuestion(q api.Question, position int, answer string)

	// ShowAnswer presents the transcript of the answer just uploaded.
	ShowAnswer(transcript string)

	// ShowProgress presents the answered/total counts.
	ShowProgress(answered, total int)

	// ResultsAvailable reveals the view-results escape hatch.
	ResultsAvailable()

	// OpenResults navigates to the external results page.
	OpenResults(url string)
}
