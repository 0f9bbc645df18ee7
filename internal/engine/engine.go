// Package engine ties the install pipeline and the process supervisor into
// one orchestration hub. External surfaces (CLI, status API) use public
// methods only; internal state is subject to change.
package engine

import (
	"context"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Aurelien590/StabilityMatrix/internal/config"
	"github.com/Aurelien590/StabilityMatrix/internal/packages"
	"github.com/Aurelien590/StabilityMatrix/internal/supervise"
	"github.com/Aurelien590/StabilityMatrix/pkg/types"
)

// RunStatus is a snapshot of one supervised package process.
type RunStatus struct {
	PackageID string `json:"package_id"`
	Spec      string `json:"spec"`
	PID       int    `json:"pid"`
	Ready     bool   `json:"ready"`
	URL       string `json:"url,omitempty"`
	Exited    bool   `json:"exited"`
	ExitCode  int    `json:"exit_code,omitempty"`
}

type running struct {
	spec string

	mu       sync.Mutex
	handle   *supervise.Handle // nil while the launch is still in flight
	exited   bool
	exitCode int
}

func (r *running) isExited() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exited
}

func (r *running) getHandle() *supervise.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handle
}

// Engine supervises installs and launched packages for one library.
type Engine struct {
	cfg       config.Config
	installer *packages.Installer
	pm        *supervise.ProcManager
	log       zerolog.Logger

	mu   sync.Mutex
	runs map[string]*running // key: install record ID
}

// New builds an engine over the given configuration. Progress and console
// output flow to the provided sinks; pass nil to drop them.
func New(cfg config.Config, progress types.ProgressSink, output types.OutputSink, log zerolog.Logger) *Engine {
	return &Engine{
		cfg: cfg,
		installer: &packages.Installer{
			Registry:    packages.NewRegistry(),
			PackagesDir: cfg.PackagesDir,
			ModelsDir:   cfg.ModelsDir,
			Progress:    progress,
			Output:      output,
			Log:         log,
		},
		pm:   supervise.NewProcManager(),
		log:  log,
		runs: make(map[string]*running),
	}
}

// Specs lists the known package specs.
func (e *Engine) Specs() []*types.PackageSpec { return e.installer.Registry.List() }

// Installed lists the library's install records.
func (e *Engine) Installed() ([]*types.InstalledPackage, error) {
	return packages.ScanLibrary(e.cfg.PackagesDir)
}

// Find loads the install record for a spec name.
func (e *Engine) Find(specName string) (*types.InstalledPackage, error) {
	installed, err := e.Installed()
	if err != nil {
		return nil, err
	}
	for _, p := range installed {
		if p.SpecName == specName {
			return p, nil
		}
	}
	return nil, packages.ErrNotInstalled(specName)
}

// Install runs the install pipeline for one request.
func (e *Engine) Install(ctx context.Context, req packages.InstallRequest) (*types.InstalledPackage, error) {
	if req.Backend == "" {
		req.Backend = types.Backend(e.cfg.DefaultBackend)
	}
	pkg, err := e.installer.Install(ctx, req)
	installsTotal.WithLabelValues(req.Spec, outcomeLabel(err)).Inc()
	return pkg, err
}

// Update pulls an install forward.
func (e *Engine) Update(ctx context.Context, specName string) error {
	pkg, err := e.Find(specName)
	if err != nil {
		return err
	}
	return e.installer.Update(ctx, pkg)
}

// Uninstall stops a running instance, unwires shared folders, and deletes
// the install tree.
func (e *Engine) Uninstall(ctx context.Context, specName string) error {
	pkg, err := e.Find(specName)
	if err != nil {
		return err
	}
	_ = e.Stop(pkg.ID)
	return e.installer.Uninstall(ctx, pkg)
}

// Launch starts an installed package under supervision and tracks it.
// A package whose previous run is still live cannot be launched again;
// stop it first.
func (e *Engine) Launch(ctx context.Context, specName string) (*types.InstalledPackage, error) {
	pkg, err := e.Find(specName)
	if err != nil {
		return nil, err
	}
	run := &running{spec: pkg.SpecName}
	// Reserve the slot before spawning so two concurrent launches of one
	// install cannot both pass the liveness check.
	e.mu.Lock()
	if cur := e.runs[pkg.ID]; cur != nil && !cur.isExited() {
		e.mu.Unlock()
		return nil, ErrAlreadyRunning(pkg.SpecName)
	}
	e.runs[pkg.ID] = run
	e.mu.Unlock()

	h, err := e.installer.Launch(ctx, pkg, func(code int) {
		run.mu.Lock()
		run.exited = true
		run.exitCode = code
		run.mu.Unlock()
		processExitsTotal.WithLabelValues(run.spec, strconv.Itoa(code)).Inc()
	})
	launchesTotal.WithLabelValues(pkg.SpecName, outcomeLabel(err)).Inc()
	if err != nil {
		e.mu.Lock()
		delete(e.runs, pkg.ID)
		e.mu.Unlock()
		return nil, err
	}
	run.mu.Lock()
	run.handle = h
	run.mu.Unlock()
	e.pm.Add(h)
	return pkg, nil
}

// SetOverrides persists launch-option overrides for an install.
func (e *Engine) SetOverrides(specName string, overrides []types.ArgOverride) error {
	pkg, err := e.Find(specName)
	if err != nil {
		return err
	}
	return e.installer.SetOverrides(pkg, overrides)
}

// Done returns a channel closed when the tracked process of packageID
// exits. A nil-safe closed channel is returned for unknown IDs.
func (e *Engine) Done(packageID string) <-chan struct{} {
	e.mu.Lock()
	run := e.runs[packageID]
	e.mu.Unlock()
	if run == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	h := run.getHandle()
	if h == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return h.Done()
}

// ExitCode reports the exit code of a tracked process after Done.
func (e *Engine) ExitCode(packageID string) int {
	e.mu.Lock()
	run := e.runs[packageID]
	e.mu.Unlock()
	if run == nil {
		return 0
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	return run.exitCode
}

// Stop terminates the tracked process of one install, if any.
func (e *Engine) Stop(packageID string) error {
	e.mu.Lock()
	run := e.runs[packageID]
	e.mu.Unlock()
	if run == nil {
		return nil
	}
	h := run.getHandle()
	if h == nil {
		return nil
	}
	return h.Stop()
}

// Running snapshots all tracked processes.
func (e *Engine) Running() []RunStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]RunStatus, 0, len(e.runs))
	for id, run := range e.runs {
		run.mu.Lock()
		st := RunStatus{
			PackageID: id,
			Spec:      run.spec,
			Exited:    run.exited,
			ExitCode:  run.exitCode,
		}
		h := run.handle
		run.mu.Unlock()
		if h == nil {
			continue
		}
		st.PID = h.PID()
		st.Ready = h.Ready()
		st.URL = h.URL()
		out = append(out, st)
	}
	return out
}

// Ready reports whether any tracked process is serving.
func (e *Engine) Ready() bool {
	for _, st := range e.Running() {
		if st.Ready && !st.Exited {
			return true
		}
	}
	return false
}

// Shutdown stops all tracked processes best-effort.
func (e *Engine) Shutdown() { e.pm.StopAll() }
