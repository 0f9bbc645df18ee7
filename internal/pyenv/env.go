package pyenv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/rs/zerolog"

	"github.com/Aurelien590/StabilityMatrix/internal/common/fsutil"
)

const venvDirName = "venv"

// Env is one isolated Python interpreter environment rooted in an install
// tree. Environments are disposable: the recovery path for a broken env is
// recreate-and-retry, never in-place repair.
type Env struct {
	installRoot string
	dir         string
	log         zerolog.Logger
}

// Setup creates the environment under installRoot, or reuses an existing one
// when recreate is false. With recreate the old environment is destroyed
// first.
func Setup(ctx context.Context, installRoot string, recreate bool, log zerolog.Logger) (*Env, error) {
	dir := filepath.Join(installRoot, venvDirName)
	e := &Env{installRoot: installRoot, dir: dir, log: log}
	if recreate {
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("remove venv: %w", err)
		}
	}
	if fsutil.PathExists(e.Python()) {
		log.Debug().Str("venv", dir).Msg("reusing existing venv")
		return e, nil
	}
	if err := fsutil.EnsureDir(installRoot); err != nil {
		return nil, fmt.Errorf("create install root: %w", err)
	}
	log.Info().Str("venv", dir).Msg("creating venv")
	if err := runQuiet(ctx, installRoot, hostPython(), "-m", "venv", dir); err != nil {
		return nil, fmt.Errorf("create venv: %w", err)
	}
	return e, nil
}

// Python returns the path of the environment's interpreter.
func (e *Env) Python() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(e.dir, "Scripts", "python.exe")
	}
	return filepath.Join(e.dir, "bin", "python")
}

// Dir returns the environment directory.
func (e *Env) Dir() string { return e.dir }

// InstallRoot returns the install tree the environment belongs to.
func (e *Env) InstallRoot() string { return e.installRoot }

func hostPython() string {
	if runtime.GOOS == "windows" {
		return "python"
	}
	return "python3"
}
