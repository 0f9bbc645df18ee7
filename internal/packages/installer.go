package packages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Aurelien590/StabilityMatrix/internal/common/fsutil"
	"github.com/Aurelien590/StabilityMatrix/internal/plan"
	"github.com/Aurelien590/StabilityMatrix/internal/pyenv"
	"github.com/Aurelien590/StabilityMatrix/internal/sharedfolders"
	"github.com/Aurelien590/StabilityMatrix/pkg/types"
)

// Installer coordinates the install pipeline: spec lookup, source fetch,
// dependency plan, environment install, shared-folder wiring, record write.
// One package instance is installed per invocation; callers serialize
// concurrent installs of the same package identity.
type Installer struct {
	Registry    *Registry
	PackagesDir string // install roots live one level below
	ModelsDir   string // shared model library root
	Progress    types.ProgressSink
	Output      types.OutputSink
	Log         zerolog.Logger
}

// InstallRequest describes one install invocation.
type InstallRequest struct {
	Spec         string
	Backend      types.Backend
	Version      string // tag or branch; empty uses the spec's main branch
	RecreateVenv bool
}

func (in *Installer) progress(fraction float64, format string, a ...any) {
	if in.Progress != nil {
		in.Progress.Publish(types.Progress{Fraction: fraction, Message: fmt.Sprintf(format, a...)})
	}
}

func (in *Installer) output() types.OutputSink {
	if in.Output == nil {
		return types.NoopSink{}
	}
	return in.Output
}

// Install runs the full pipeline and returns the install record. A step
// failure surfaces with the failing step's index and output tail; earlier
// steps are not rolled back — recreate-and-retry is the recovery path.
func (in *Installer) Install(ctx context.Context, req InstallRequest) (*types.InstalledPackage, error) {
	spec, err := in.Registry.Get(req.Spec)
	if err != nil {
		return nil, err
	}
	if !spec.SupportsBackend(req.Backend) {
		return nil, plan.ErrUnsupportedBackend(spec.Name, req.Backend)
	}
	installRoot := filepath.Join(in.PackagesDir, spec.Name)
	version := req.Version
	if version == "" {
		version = spec.MainBranch
	}

	in.progress(0.0, "Fetching %s (%s)", spec.DisplayName, version)
	if err := in.fetchSource(ctx, spec, installRoot, version); err != nil {
		return nil, err
	}

	in.progress(0.15, "Building dependency plan for %s", req.Backend)
	manifest, err := readManifest(installRoot)
	if err != nil {
		return nil, err
	}
	p, err := plan.Build(spec, req.Backend, manifest)
	if err != nil {
		return nil, err
	}

	in.progress(0.2, "Preparing environment")
	env, err := pyenv.Setup(ctx, installRoot, req.RecreateVenv, in.Log)
	if err != nil {
		return nil, err
	}

	in.progress(0.25, "Installing %d dependency steps", len(p.Steps))
	if err := env.Install(ctx, p, in.output()); err != nil {
		return nil, err
	}

	in.progress(0.9, "Wiring shared model folders")
	linker := sharedfolders.New(spec, installRoot, in.ModelsDir, in.Log)
	if err := linker.Apply(); err != nil {
		return nil, err
	}

	pkg := &types.InstalledPackage{
		ID:          uuid.NewString(),
		SpecName:    spec.Name,
		DisplayName: spec.DisplayName,
		InstallRoot: installRoot,
		Backend:     req.Backend,
		Version:     version,
		InstalledAt: time.Now().UTC(),
	}
	if err := SaveInstalled(pkg); err != nil {
		return nil, err
	}
	in.progress(1.0, "%s installed", spec.DisplayName)
	in.Log.Info().Str("package", spec.Name).Str("root", installRoot).Msg("install complete")
	return pkg, nil
}

// Update pulls the package source forward and re-runs the dependency
// pipeline in the existing environment.
func (in *Installer) Update(ctx context.Context, pkg *types.InstalledPackage) error {
	spec, err := in.Registry.Get(pkg.SpecName)
	if err != nil {
		return err
	}
	in.progress(0.0, "Updating %s", spec.DisplayName)
	if err := runGit(ctx, pkg.InstallRoot, in.output(), "pull", "--ff-only"); err != nil {
		return err
	}
	manifest, err := readManifest(pkg.InstallRoot)
	if err != nil {
		return err
	}
	p, err := plan.Build(spec, pkg.Backend, manifest)
	if err != nil {
		return err
	}
	env, err := pyenv.Setup(ctx, pkg.InstallRoot, false, in.Log)
	if err != nil {
		return err
	}
	in.progress(0.25, "Installing %d dependency steps", len(p.Steps))
	if err := env.Install(ctx, p, in.output()); err != nil {
		return err
	}
	in.progress(1.0, "%s updated", spec.DisplayName)
	return SaveInstalled(pkg)
}

// Uninstall unwires shared folders and deletes the install tree.
func (in *Installer) Uninstall(ctx context.Context, pkg *types.InstalledPackage) error {
	spec, err := in.Registry.Get(pkg.SpecName)
	if err != nil {
		return err
	}
	in.progress(0.0, "Removing shared folder wiring")
	linker := sharedfolders.New(spec, pkg.InstallRoot, in.ModelsDir, in.Log)
	if err := linker.Remove(); err != nil {
		return err
	}
	in.progress(0.5, "Deleting %s", pkg.InstallRoot)
	if err := os.RemoveAll(pkg.InstallRoot); err != nil {
		return fmt.Errorf("delete install tree: %w", err)
	}
	in.progress(1.0, "%s uninstalled", pkg.DisplayName)
	return nil
}

// fetchSource clones the spec's repository into installRoot, or fast-forwards
// an existing clone, then checks out the requested version.
func (in *Installer) fetchSource(ctx context.Context, spec *types.PackageSpec, installRoot, version string) error {
	sink := in.output()
	if fsutil.PathExists(filepath.Join(installRoot, ".git")) {
		if err := runGit(ctx, installRoot, sink, "fetch", "--tags", "origin"); err != nil {
			return err
		}
		return runGit(ctx, installRoot, sink, "checkout", version)
	}
	if err := os.MkdirAll(filepath.Dir(installRoot), 0o755); err != nil {
		return fmt.Errorf("create packages dir: %w", err)
	}
	if err := runGit(ctx, "", sink, "clone", "--branch", spec.MainBranch, spec.RepoURL, installRoot); err != nil {
		return err
	}
	if version != spec.MainBranch {
		return runGit(ctx, installRoot, sink, "checkout", version)
	}
	return nil
}

// readManifest reads the install tree's requirements manifest. A package
// without one yields an empty manifest.
func readManifest(installRoot string) (string, error) {
	b, err := os.ReadFile(filepath.Join(installRoot, "requirements.txt"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read requirements: %w", err)
	}
	return string(b), nil
}
