package pyenv

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Aurelien590/StabilityMatrix/internal/plan"
	"github.com/Aurelien590/StabilityMatrix/pkg/types"
)

// fakeEnv plants a shell script in place of the venv interpreter so step
// execution can be exercised without a real Python install.
func fakeEnv(t *testing.T, script string) *Env {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-script interpreter stub requires a POSIX shell")
	}
	root := t.TempDir()
	bin := filepath.Join(root, venvDirName, "bin")
	if err := os.MkdirAll(bin, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	py := filepath.Join(bin, "python")
	if err := os.WriteFile(py, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return &Env{installRoot: root, dir: filepath.Join(root, venvDirName), log: zerolog.Nop()}
}

func TestInstallStreamsAndStopsOnFailure(t *testing.T) {
	// argv: -m pip install <requirement...>; fail when asked to install fail-pkg
	script := "#!/bin/sh\necho \"installing $4\"\nif [ \"$4\" = \"fail-pkg\" ]; then echo boom >&2; exit 3; fi\n"
	e := fakeEnv(t, script)
	p := plan.Plan{Steps: []plan.Step{
		{Requirements: []string{"ok-pkg"}},
		{Requirements: []string{"fail-pkg"}},
		{Requirements: []string{"never-pkg"}},
	}}
	sink := types.NewMemorySink()
	err := e.Install(context.Background(), p, sink)
	if err == nil {
		t.Fatalf("expected step failure")
	}
	if !IsStepFailed(err) {
		t.Fatalf("expected step-failed error, got %v", err)
	}
	if idx, ok := StepIndex(err); !ok || idx != 1 {
		t.Fatalf("expected failing index 1, got %d (ok=%v)", idx, ok)
	}
	if !strings.Contains(StepTail(err), "boom") {
		t.Fatalf("expected stderr in tail, got %q", StepTail(err))
	}
	lines := strings.Join(sink.Lines(), "\n")
	if !strings.Contains(lines, "installing ok-pkg") {
		t.Fatalf("expected streamed output for first step, got %q", lines)
	}
	if strings.Contains(lines, "never-pkg") {
		t.Fatalf("steps after a failure must not run, got %q", lines)
	}
}

func TestInstallCancelledBetweenSteps(t *testing.T) {
	e := fakeEnv(t, "#!/bin/sh\nexit 0\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := e.Install(ctx, plan.Plan{Steps: []plan.Step{{Requirements: []string{"x"}}}}, nil)
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSetupReusesExistingVenv(t *testing.T) {
	e := fakeEnv(t, "#!/bin/sh\nexit 0\n")
	// Re-entry with recreate=false must not touch the existing interpreter.
	got, err := Setup(context.Background(), e.installRoot, false, zerolog.Nop())
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if got.Python() != e.Python() {
		t.Fatalf("expected reuse of %s, got %s", e.Python(), got.Python())
	}
}

func TestTailBufferBounded(t *testing.T) {
	tb := &tailBuffer{max: 3}
	for _, l := range []string{"a", "b", "c", "d", "e"} {
		tb.add(l)
	}
	if got := tb.String(); got != "c\nd\ne" {
		t.Fatalf("expected last 3 lines, got %q", got)
	}
}
