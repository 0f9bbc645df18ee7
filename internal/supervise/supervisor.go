package supervise

import (
	"bufio"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Aurelien590/StabilityMatrix/pkg/types"
)

// Options describes one launch of a package entrypoint.
type Options struct {
	// Entrypoint script relative to InstallRoot (or absolute).
	Entrypoint string
	// Args are the resolved launch arguments appended after the entrypoint.
	Args []string
	// InstallRoot becomes the working directory of the child.
	InstallRoot string
	// Python is the interpreter to run Entrypoint with. Empty launches the
	// entrypoint directly.
	Python string
	// Output receives every line of combined child output as produced.
	Output types.OutputSink
	// Match scans output lines for the package's ready signal.
	Match types.ReadyMatcher
	// OnReady fires exactly once, on the first matched line.
	OnReady func(url string)
	// OnExit fires exactly once with the real exit code, whether or not the
	// process ever became ready.
	OnExit func(code int)

	Log zerolog.Logger
}

// Handle is a supervised package process. The serving URL slot is
// write-once; ready and exit notifications fire at most/exactly once.
type Handle struct {
	cmd *exec.Cmd
	pid int

	mu    sync.Mutex
	url   string
	ready bool

	readyOnce sync.Once
	exitOnce  sync.Once
	done      chan struct{}
	exitCode  int

	opts Options
}

// Launch spawns the entrypoint as a detached child and starts pumping its
// output. It returns as soon as the process is started; readiness and exit
// are reported through the callbacks.
func Launch(opts Options) (*Handle, error) {
	entry := opts.Entrypoint
	if !filepath.IsAbs(entry) {
		entry = filepath.Join(opts.InstallRoot, entry)
	}
	if _, err := os.Stat(entry); err != nil {
		return nil, errLaunchFailed(entry, err)
	}
	if opts.Output == nil {
		opts.Output = types.NoopSink{}
	}

	var cmd *exec.Cmd
	if opts.Python != "" {
		cmd = exec.Command(opts.Python, append([]string{entry}, opts.Args...)...)
	} else {
		cmd = exec.Command(entry, opts.Args...)
	}
	cmd.Dir = opts.InstallRoot
	detach(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errLaunchFailed(entry, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errLaunchFailed(entry, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, errLaunchFailed(entry, err)
	}

	h := &Handle{cmd: cmd, pid: cmd.Process.Pid, done: make(chan struct{}), opts: opts}
	opts.Log.Info().Int("pid", h.pid).Str("entrypoint", entry).Strs("args", opts.Args).Msg("package launched")

	var wg sync.WaitGroup
	wg.Add(2)
	go h.pump(&wg, stdout)
	go h.pump(&wg, stderr)
	go h.wait(&wg)
	return h, nil
}

func (h *Handle) pump(wg *sync.WaitGroup, r io.Reader) {
	defer wg.Done()
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for s.Scan() {
		line := s.Text()
		h.opts.Output.Line(line)
		if h.opts.Match == nil {
			continue
		}
		if url, ok := h.opts.Match(line); ok {
			h.setReady(url)
		}
	}
}

// setReady records the serving URL once; later matches are ignored.
func (h *Handle) setReady(url string) {
	h.readyOnce.Do(func() {
		h.mu.Lock()
		h.url = url
		h.ready = true
		h.mu.Unlock()
		h.opts.Log.Info().Int("pid", h.pid).Str("url", url).Msg("package ready")
		if h.opts.OnReady != nil {
			h.opts.OnReady(url)
		}
	})
}

func (h *Handle) wait(wg *sync.WaitGroup) {
	wg.Wait()
	err := h.cmd.Wait()
	code := 0
	if err != nil {
		code = -1
		if ee, ok := err.(*exec.ExitError); ok {
			code = ee.ExitCode()
		}
	}
	h.exitOnce.Do(func() {
		h.mu.Lock()
		h.exitCode = code
		h.mu.Unlock()
		h.opts.Log.Info().Int("pid", h.pid).Int("code", code).Bool("was_ready", h.Ready()).Msg("package exited")
		if h.opts.OnExit != nil {
			h.opts.OnExit(code)
		}
		close(h.done)
	})
}

// PID returns the OS process id.
func (h *Handle) PID() int { return h.pid }

// URL returns the recorded serving endpoint, empty until ready.
func (h *Handle) URL() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.url
}

// Ready reports whether the ready signal has been seen.
func (h *Handle) Ready() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ready
}

// Done is closed after the exit callback has fired.
func (h *Handle) Done() <-chan struct{} { return h.done }

// ExitCode is valid once Done is closed.
func (h *Handle) ExitCode() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode
}

// Stop terminates the process: SIGTERM first, then a kill after a short
// grace period. The exit callback still fires through the supervisor loop.
func (h *Handle) Stop() error {
	if h.cmd.Process == nil {
		return nil
	}
	_ = h.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		_ = h.cmd.Process.Kill()
		<-h.done
	}
	return nil
}
