package pyenv

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// stepError signals a failed install step. It carries the step index and a
// bounded tail of the step's captured output for diagnostics.
type stepError struct {
	index int
	tail  string
	cause error
}

func (e *stepError) at(i int) *stepError { e.index = i; return e }

func (e *stepError) Error() string {
	msg := fmt.Sprintf("install step %d failed: %v", e.index, e.cause)
	if e.tail != "" {
		msg += "\noutput tail:\n" + e.tail
	}
	return msg
}

func (e *stepError) Unwrap() error { return e.cause }

// IsStepFailed reports whether err indicates a failed install step.
func IsStepFailed(err error) bool {
	var se *stepError
	return errors.As(err, &se)
}

// StepIndex returns the zero-based index of the failed step.
func StepIndex(err error) (int, bool) {
	var se *stepError
	if errors.As(err, &se) {
		return se.index, true
	}
	return 0, false
}

// StepTail returns the bounded output tail of the failed step.
func StepTail(err error) string {
	var se *stepError
	if errors.As(err, &se) {
		return se.tail
	}
	return ""
}

// tailBuffer keeps the last max lines written to it.
type tailBuffer struct {
	mu    sync.Mutex
	max   int
	lines []string
}

func (t *tailBuffer) add(line string) {
	t.mu.Lock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
	t.mu.Unlock()
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}
