package packages

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Aurelien590/StabilityMatrix/pkg/types"
)

func TestRegistryBuiltins(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"comfyui", "sd-webui", "fooocus"} {
		s, err := r.Get(name)
		if err != nil {
			t.Fatalf("missing builtin %s: %v", name, err)
		}
		if s.Entrypoint == "" || s.RepoURL == "" || len(s.Backends) == 0 {
			t.Fatalf("incomplete spec %s: %+v", name, s)
		}
		if s.ReadyMatch == nil {
			t.Fatalf("spec %s has no ready matcher", name)
		}
	}
	if _, err := r.Get("nope"); !IsSpecNotFound(err) {
		t.Fatalf("expected spec-not-found, got %v", err)
	}
	list := r.List()
	for i := 1; i < len(list); i++ {
		if list[i-1].Name > list[i].Name {
			t.Fatalf("list not sorted: %s > %s", list[i-1].Name, list[i].Name)
		}
	}
}

func TestBuiltinReadyMatchers(t *testing.T) {
	r := NewRegistry()
	cases := []struct {
		spec string
		line string
		url  string
	}{
		{"comfyui", "To see the GUI go to: http://127.0.0.1:8188", "http://127.0.0.1:8188"},
		{"sd-webui", "Running on local URL:  http://0.0.0.0:7860", "http://0.0.0.0:7860"},
	}
	for _, c := range cases {
		s, err := r.Get(c.spec)
		if err != nil {
			t.Fatalf("get %s: %v", c.spec, err)
		}
		url, ok := s.ReadyMatch(c.line)
		if !ok || url != c.url {
			t.Fatalf("%s: got (%q,%v) want %q", c.spec, url, ok, c.url)
		}
		if _, ok := s.ReadyMatch("ordinary log line"); ok {
			t.Fatalf("%s: matcher fired on unrelated line", c.spec)
		}
	}
}

func TestInstalledRecordRoundTrip(t *testing.T) {
	root := t.TempDir()
	pkg := &types.InstalledPackage{
		ID:          "0f1e2d3c",
		SpecName:    "comfyui",
		DisplayName: "ComfyUI",
		InstallRoot: root,
		Backend:     types.BackendCUDA,
		Version:     "master",
		ArgOverrides: []types.ArgOverride{{Name: "port", Value: "8189"}},
		InstalledAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := SaveInstalled(pkg); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := LoadInstalled(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.ID != pkg.ID || got.Backend != pkg.Backend || got.Version != pkg.Version {
		t.Fatalf("record mismatch: %+v", got)
	}
	if v, ok := got.Override("port"); !ok || v != "8189" {
		t.Fatalf("override lost: %+v", got.ArgOverrides)
	}
}

func TestLoadInstalledMissing(t *testing.T) {
	_, err := LoadInstalled(t.TempDir())
	if !IsNotInstalled(err) {
		t.Fatalf("expected not-installed, got %v", err)
	}
}

func TestScanLibrary(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b-pkg", "a-pkg"} {
		root := filepath.Join(dir, name)
		if err := os.MkdirAll(root, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		pkg := &types.InstalledPackage{ID: name, SpecName: "comfyui", InstallRoot: root}
		if err := SaveInstalled(pkg); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	// A directory without a record is skipped.
	if err := os.MkdirAll(filepath.Join(dir, "junk"), 0o755); err != nil {
		t.Fatalf("mkdir junk: %v", err)
	}
	got, err := ScanLibrary(dir)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 installs, got %d", len(got))
	}
	if got[0].ID != "a-pkg" || got[1].ID != "b-pkg" {
		t.Fatalf("scan order: %s, %s", got[0].ID, got[1].ID)
	}
	// Absent packages dir is an empty library, not an error.
	if out, err := ScanLibrary(filepath.Join(dir, "missing")); err != nil || out != nil {
		t.Fatalf("missing dir: %v %v", out, err)
	}
}

func TestUninstallRemovesTreeAndWiring(t *testing.T) {
	lib := t.TempDir()
	packagesDir := filepath.Join(lib, "Packages")
	installRoot := filepath.Join(packagesDir, "comfyui")
	if err := os.MkdirAll(installRoot, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	// Seed a patched config so Remove has something to undo.
	cfg := filepath.Join(installRoot, "extra_model_paths.yaml")
	if err := os.WriteFile(cfg, []byte("stability_matrix:\n  checkpoints: /x\n"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	in := &Installer{
		Registry:    NewRegistry(),
		PackagesDir: packagesDir,
		ModelsDir:   filepath.Join(lib, "Models"),
		Log:         zerolog.Nop(),
	}
	pkg := &types.InstalledPackage{ID: "x", SpecName: "comfyui", InstallRoot: installRoot}
	if err := in.Uninstall(context.Background(), pkg); err != nil {
		t.Fatalf("uninstall: %v", err)
	}
	if _, err := os.Stat(installRoot); !os.IsNotExist(err) {
		t.Fatalf("install tree still present")
	}
}

func TestSetOverridesPrunes(t *testing.T) {
	root := t.TempDir()
	in := &Installer{Registry: NewRegistry(), Log: zerolog.Nop()}
	pkg := &types.InstalledPackage{ID: "x", SpecName: "comfyui", InstallRoot: root}
	err := in.SetOverrides(pkg, []types.ArgOverride{
		{Name: "port", Value: "8188"}, // equals spec default: pruned
		{Name: "port", Value: ""},     // empty: pruned
		{Name: "cpu", Value: "true"},  // kept
	})
	if err != nil {
		t.Fatalf("set overrides: %v", err)
	}
	if len(pkg.ArgOverrides) != 1 || pkg.ArgOverrides[0].Name != "cpu" {
		t.Fatalf("unexpected overrides: %+v", pkg.ArgOverrides)
	}
}
