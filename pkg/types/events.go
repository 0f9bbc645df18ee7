package types

import "sync"

// Progress is one pipeline progress report. Fraction is in [0,1];
// a negative fraction means indeterminate.
type Progress struct {
	Fraction float64
	Message  string
}

// Indeterminate builds a progress report with no known fraction.
func Indeterminate(message string) Progress {
	return Progress{Fraction: -1, Message: message}
}

// ProgressSink receives progress reports from the install and launch
// pipelines. Implementations should be lightweight and non-blocking;
// Publish must not panic.
type ProgressSink interface {
	Publish(Progress)
}

// OutputSink receives console output lines verbatim as they are produced.
type OutputSink interface {
	Line(string)
}

// NoopSink drops progress reports and output lines.
type NoopSink struct{}

func (NoopSink) Publish(Progress) {}
func (NoopSink) Line(string)      {}

// OutputFunc adapts a plain function to OutputSink.
type OutputFunc func(string)

func (f OutputFunc) Line(s string) { f(s) }

// MemorySink stores progress reports and output lines in-memory for tests.
type MemorySink struct {
	mu       sync.Mutex
	progress []Progress
	lines    []string
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (m *MemorySink) Publish(p Progress) {
	m.mu.Lock()
	m.progress = append(m.progress, p)
	m.mu.Unlock()
}

func (m *MemorySink) Line(s string) {
	m.mu.Lock()
	m.lines = append(m.lines, s)
	m.mu.Unlock()
}

func (m *MemorySink) Progress() []Progress {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Progress, len(m.progress))
	copy(out, m.progress)
	return out
}

func (m *MemorySink) Lines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.lines))
	copy(out, m.lines)
	return out
}
