package exam

import (
	"github.com/BrianHuang880507/CogScreen-AI/internal/api"
)

// NoResult is the answer-cache sentinel for a blank transcript.
const NoResult = "no result"

// History is the ordered record of fetched questions plus the answer cache.
// The index always satisfies -1 <= index <= len(questions)-1; the displayed
// position is index+1.
type History struct {
	questions []api.Question
	answers   map[string]string
	index     int
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{
		answers: make(map[string]string),
		index:   -1,
	}
}

// Reset clears all questions and cached answers for a new exam attempt.
func (h *History) Reset() {
	h.questions = h.questions[:0]
	h.answers = make(map[string]string)
	h.index = -1
}

// Index returns the current history index, -1 before the first question.
func (h *History) Index() int {
	return h.index
}

// Len returns the number of fetched questions.
func (h *History) Len() int {
	return len(h.questions)
}

// Current returns the question at the current index.
func (h *History) Current() (api.Question, bool) {
	if h.index < 0 || h.index >= len(h.questions) {
		return api.Question{}, false
	}
	return h.questions[h.index], true
}

// HasAhead reports whether a later question is already cached, which happens
// after the user navigated back.
func (h *History) HasAhead() bool {
	return h.index < len(h.questions)-1
}

// Forward replays the next cached question without any fetch.
func (h *History) Forward() (api.Question, bool) {
	if !h.HasAhead() {
		return api.Question{}, false
	}
	h.index++
	return h.questions[h.index], true
}

// Back replays the previous cached question. Replay is purely local and
// never touches the server-side question cursor.
func (h *History) Back() (api.Question, bool) {
	if h.index <= 0 {
		return api.Question{}, false
	}
	h.index--
	return h.questions[h.index], true
}

// Append records a freshly fetched question and moves the index to it.
func (h *History) Append(q api.Question) {
	h.questions = append(h.questions, q)
	h.index = len(h.questions) - 1
}

// Answer returns the cached transcript for a question id.
func (h *History) Answer(questionID string) (string, bool) {
	answer, ok := h.answers[questionID]
	return answer, ok
}

// SetAnswer caches the transcript for a question id, overwriting any earlier
// answer. A blank transcript is stored as the NoResult sentinel.
func (h *History) SetAnswer(questionID, transcript string) {
	if transcript == "" {
		transcript = NoResult
	}
	h.answers[questionID] = transcript
}
