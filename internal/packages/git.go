package packages

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/Aurelien590/StabilityMatrix/pkg/types"
)

// runGit runs one git command with both output streams pumped to sink.
func runGit(ctx context.Context, dir string, sink types.OutputSink, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("git %v: %w", args, err)
	}
	var wg sync.WaitGroup
	wg.Add(2)
	pump := func(r *bufio.Scanner) {
		defer wg.Done()
		for r.Scan() {
			sink.Line(r.Text())
		}
	}
	go pump(bufio.NewScanner(stdout))
	go pump(bufio.NewScanner(stderr))
	wg.Wait()
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("git %v: %w", args, err)
	}
	return nil
}
