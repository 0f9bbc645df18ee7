package pyenv

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"sync"

	"github.com/Aurelien590/StabilityMatrix/internal/plan"
	"github.com/Aurelien590/StabilityMatrix/pkg/types"
)

// tailLines bounds the captured output tail attached to a step failure.
const tailLines = 40

// Install executes the plan's steps strictly sequentially inside the
// environment. Step output streams live to sink as it is produced; it is
// never buffered and replayed. A failing step aborts the remaining steps and
// returns a step-failed error carrying the step index and a bounded output
// tail. Earlier successful steps are not rolled back.
//
// Cancellation is cooperative between steps; once a step's pip process has
// started, cancelling ctx kills it.
func (e *Env) Install(ctx context.Context, p plan.Plan, sink types.OutputSink) error {
	if sink == nil {
		sink = types.NoopSink{}
	}
	for i, step := range p.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.log.Info().Int("step", i).Strs("args", step.Args()).Msg("pip step")
		if err := e.runStep(ctx, step, sink); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err.at(i)
		}
	}
	return nil
}

// runStep runs one pip invocation with both output streams pumped to sink.
func (e *Env) runStep(ctx context.Context, step plan.Step, sink types.OutputSink) *stepError {
	tail := &tailBuffer{max: tailLines}
	args := append([]string{"-m", "pip"}, step.Args()...)
	cmd := exec.CommandContext(ctx, e.Python(), args...)
	cmd.Dir = e.installRoot

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &stepError{cause: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &stepError{cause: err}
	}
	if err := cmd.Start(); err != nil {
		return &stepError{cause: err}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go pump(&wg, stdout, sink, tail)
	go pump(&wg, stderr, sink, tail)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return &stepError{cause: err, tail: tail.String()}
	}
	return nil
}

func pump(wg *sync.WaitGroup, r io.Reader, sink types.OutputSink, tail *tailBuffer) {
	defer wg.Done()
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for s.Scan() {
		line := s.Text()
		sink.Line(line)
		tail.add(line)
	}
}

// runQuiet runs a command without streaming, used for venv creation.
func runQuiet(ctx context.Context, dir, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &stepError{cause: err, tail: bound(string(out))}
	}
	return nil
}

func bound(s string) string {
	const max = 4096
	if len(s) > max {
		return s[len(s)-max:]
	}
	return s
}
