package sharedfolders

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Aurelien590/StabilityMatrix/pkg/types"
)

func symlinkSpec() *types.PackageSpec {
	return &types.PackageSpec{
		Name:         "webui",
		FolderMethod: types.SharedFolderSymlink,
		SharedFolders: map[types.SharedFolderKind][]string{
			types.FolderCheckpoints: {filepath.Join("models", "Stable-diffusion")},
			types.FolderVAE:         {filepath.Join("models", "VAE")},
		},
	}
}

func TestSymlinkApplyRemove(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation needs elevation on windows")
	}
	installRoot := t.TempDir()
	modelsDir := t.TempDir()
	l := New(symlinkSpec(), installRoot, modelsDir, zerolog.Nop())

	if err := l.Apply(); err != nil {
		t.Fatalf("apply: %v", err)
	}
	target := filepath.Join(installRoot, "models", "Stable-diffusion")
	fi, err := os.Lstat(target)
	if err != nil {
		t.Fatalf("lstat: %v", err)
	}
	if fi.Mode()&os.ModeSymlink == 0 {
		t.Fatalf("expected symlink at %s", target)
	}
	ext := filepath.Join(modelsDir, "StableDiffusion")
	if dest, _ := os.Readlink(target); dest != ext {
		t.Fatalf("link points at %s, want %s", dest, ext)
	}
	if _, err := os.Stat(ext); err != nil {
		t.Fatalf("external dir not created: %v", err)
	}

	// Re-apply over an existing link is fine.
	if err := l.Apply(); err != nil {
		t.Fatalf("re-apply: %v", err)
	}

	if err := l.Remove(); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Lstat(target); !os.IsNotExist(err) {
		t.Fatalf("expected link gone, err=%v", err)
	}
	// Library content is never touched by removal.
	if _, err := os.Stat(ext); err != nil {
		t.Fatalf("external dir must survive removal: %v", err)
	}
}

func TestSymlinkRefusesNonEmptyDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation needs elevation on windows")
	}
	installRoot := t.TempDir()
	target := filepath.Join(installRoot, "models", "Stable-diffusion")
	if err := os.MkdirAll(target, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(target, "user.ckpt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	l := New(symlinkSpec(), installRoot, t.TempDir(), zerolog.Nop())
	if err := l.Apply(); err == nil {
		t.Fatalf("expected refusal to replace non-empty directory")
	}
}

func TestConfigLinkerEntriesStable(t *testing.T) {
	spec := &types.PackageSpec{
		Name:         "comfyui",
		FolderMethod: types.SharedFolderConfig,
		ConfigFile:   "extra_model_paths.yaml",
		ConfigKeys: map[types.SharedFolderKind]string{
			types.FolderUpscalers:   "upscale_models",
			types.FolderCheckpoints: "checkpoints",
			types.FolderLora:        "loras",
		},
	}
	l := &configLinker{spec: spec, installRoot: "/pkg", modelsDir: "/lib/Models", log: zerolog.Nop()}
	entries := l.entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	// Stable key order regardless of map iteration.
	if entries[0].Key != "checkpoints" || entries[1].Key != "loras" || entries[2].Key != "upscale_models" {
		t.Fatalf("unexpected order: %+v", entries)
	}
	// Multi-dir categories newline-joined in stable order.
	up := entries[2].Value
	want := []string{"ESRGAN", "RealESRGAN", "SwinIR"}
	parts := strings.Split(up, "\n")
	if len(parts) != 3 {
		t.Fatalf("expected 3 joined dirs, got %q", up)
	}
	for i, w := range want {
		if filepath.Base(parts[i]) != w {
			t.Fatalf("joined order wrong: %q", up)
		}
	}
}

func TestConfigLinkerApplyRemoveRoundTrip(t *testing.T) {
	installRoot := t.TempDir()
	spec := &types.PackageSpec{
		Name:         "comfyui",
		FolderMethod: types.SharedFolderConfig,
		ConfigFile:   "extra_model_paths.yaml",
		ConfigKeys: map[types.SharedFolderKind]string{
			types.FolderCheckpoints: "checkpoints",
		},
	}
	cfgPath := filepath.Join(installRoot, spec.ConfigFile)
	if err := os.WriteFile(cfgPath, []byte(foreignDoc), 0o644); err != nil {
		t.Fatalf("seed config: %v", err)
	}
	l := New(spec, installRoot, "/lib/Models", zerolog.Nop())
	if err := l.Apply(); err != nil {
		t.Fatalf("apply: %v", err)
	}
	b, _ := os.ReadFile(cfgPath)
	if !strings.Contains(string(b), ReservedSection+":") {
		t.Fatalf("reserved section missing:\n%s", b)
	}
	if err := l.Remove(); err != nil {
		t.Fatalf("remove: %v", err)
	}
	b, _ = os.ReadFile(cfgPath)
	if strings.Contains(string(b), ReservedSection) {
		t.Fatalf("reserved section left behind:\n%s", b)
	}
	if !strings.Contains(string(b), "a111:") {
		t.Fatalf("foreign section lost:\n%s", b)
	}
	// Removing again, and removing with the file gone, are both no-ops.
	if err := l.Remove(); err != nil {
		t.Fatalf("second remove: %v", err)
	}
	os.Remove(cfgPath)
	if err := l.Remove(); err != nil {
		t.Fatalf("remove with absent file: %v", err)
	}
}
