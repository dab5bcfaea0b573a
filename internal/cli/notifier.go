package cli

import (
	"fmt"
	"io"

	"github.com/BrianHuang880507/CogScreen-AI/internal/api"
	"github.com/BrianHuang880507/CogScreen-AI/internal/exam"
)

// consoleNotifier renders controller updates as plain lines on the terminal.
type consoleNotifier struct {
	out io.Writer
}

func newConsoleNotifier(out io.Writer) *consoleNotifier {
	return &consoleNotifier{out: out}
}

func (n *consoleNotifier) Status(message string) {
	fmt.Fprintf(n.out, "[%s]\n", message)
}

func (n *consoleNotifier) Toast(message string) {
	fmt.Fprintf(n.out, "! %s\n", message)
}

func (n *consoleNotifier) ShowQuestion(q api.Question, position int, answer string) {
	fmt.Fprintf(n.out, "\nQ%d: %s\n", position, q.Text)
	if q.AudioURL != "" {
		fmt.Fprintf(n.out, "    audio: %s\n", q.AudioURL)
	}
	if q.ImageURL != "" {
		fmt.Fprintf(n.out, "    image: %s\n", q.ImageURL)
	}
	if q.ManualConfirm {
		fmt.Fprintln(n.out, "    answer with 'yes' or 'no'")
	}
	if answer != exam.NoResult {
		fmt.Fprintf(n.out, "    previous answer: %s\n", answer)
	}
}

func (n *consoleNotifier) ShowAnswer(transcript string) {
	fmt.Fprintf(n.out, "  -> %s\n", transcript)
}

func (n *consoleNotifier) ShowProgress(answered, total int) {
	if total > 0 {
		fmt.Fprintf(n.out, "progress: %d/%d\n", answered, total)
		return
	}
	fmt.Fprintf(n.out, "progress: %d answered\n", answered)
}

func (n *consoleNotifier) ResultsAvailable() {
	fmt.Fprintln(n.out, "results are ready, type 'report' to view them")
}

func (n *consoleNotifier) OpenResults(url string) {
	fmt.Fprintf(n.out, "results: %s\n", url)
}
