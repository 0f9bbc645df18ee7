package packages

import (
	"context"

	"github.com/Aurelien590/StabilityMatrix/internal/launch"
	"github.com/Aurelien590/StabilityMatrix/internal/pyenv"
	"github.com/Aurelien590/StabilityMatrix/internal/supervise"
	"github.com/Aurelien590/StabilityMatrix/pkg/types"
)

// Launch resolves the package's launch arguments and starts its entrypoint
// under supervision. The serving URL is persisted to the install record as
// soon as the ready signal fires; the exit code is reported through onExit
// exactly once. The ready callback runs on the supervisor's output
// goroutine, so it writes a snapshot copy of the record rather than
// mutating pkg, which callers may still be reading.
func (in *Installer) Launch(ctx context.Context, pkg *types.InstalledPackage, onExit func(code int)) (*supervise.Handle, error) {
	spec, err := in.Registry.Get(pkg.SpecName)
	if err != nil {
		return nil, err
	}
	env, err := pyenv.Setup(ctx, pkg.InstallRoot, false, in.Log)
	if err != nil {
		return nil, err
	}
	args := launch.Resolve(spec.LaunchOptions, pkg)
	in.progress(-1, "Launching %s", spec.DisplayName)

	h, err := supervise.Launch(supervise.Options{
		Entrypoint:  spec.Entrypoint,
		Args:        args,
		InstallRoot: pkg.InstallRoot,
		Python:      env.Python(),
		Output:      in.output(),
		Match:       spec.ReadyMatch,
		OnReady: func(url string) {
			rec := *pkg
			rec.LastURL = url
			if err := SaveInstalled(&rec); err != nil {
				in.Log.Error().Err(err).Str("package", rec.SpecName).Msg("persist serving url failed")
			}
			in.progress(1.0, "%s serving at %s", spec.DisplayName, url)
		},
		OnExit: onExit,
		Log:    in.Log,
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// SetOverrides replaces the package's persisted launch overrides, pruning
// entries that match each option's empty or default sentinel so
// runtime-computed initial values stay live.
func (in *Installer) SetOverrides(pkg *types.InstalledPackage, overrides []types.ArgOverride) error {
	spec, err := in.Registry.Get(pkg.SpecName)
	if err != nil {
		return err
	}
	pkg.ArgOverrides = launch.PruneOverrides(spec.LaunchOptions, overrides)
	return SaveInstalled(pkg)
}
