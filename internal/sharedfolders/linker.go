package sharedfolders

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Aurelien590/StabilityMatrix/internal/common/fsutil"
	"github.com/Aurelien590/StabilityMatrix/pkg/types"
)

// Linker wires external model directories into a package's expected layout.
// Apply and Remove are inverses: Remove restores the pre-Apply state.
type Linker interface {
	Apply() error
	Remove() error
}

// New picks the strategy declared by the spec. modelsDir is the shared
// library's models root.
func New(spec *types.PackageSpec, installRoot, modelsDir string, log zerolog.Logger) Linker {
	switch spec.FolderMethod {
	case types.SharedFolderSymlink:
		return &symlinkLinker{spec: spec, installRoot: installRoot, modelsDir: modelsDir, log: log}
	case types.SharedFolderConfig:
		return &configLinker{spec: spec, installRoot: installRoot, modelsDir: modelsDir, log: log}
	default:
		return noopLinker{}
	}
}

// libraryDirs maps a resource category to its directory names under the
// shared models root. Most categories have one home; upscalers span the
// model-family split the library uses.
func libraryDirs(kind types.SharedFolderKind) []string {
	switch kind {
	case types.FolderCheckpoints:
		return []string{"StableDiffusion"}
	case types.FolderDiffusers:
		return []string{"Diffusers"}
	case types.FolderLora:
		return []string{"Lora", "LyCORIS"}
	case types.FolderVAE:
		return []string{"VAE"}
	case types.FolderEmbeddings:
		return []string{"TextualInversion"}
	case types.FolderHypernetworks:
		return []string{"Hypernetwork"}
	case types.FolderControlNet:
		return []string{"ControlNet"}
	case types.FolderUpscalers:
		return []string{"ESRGAN", "RealESRGAN", "SwinIR"}
	case types.FolderCodeFormer:
		return []string{"CodeFormer"}
	case types.FolderGFPGAN:
		return []string{"GFPGAN"}
	default:
		return []string{string(kind)}
	}
}

type noopLinker struct{}

func (noopLinker) Apply() error  { return nil }
func (noopLinker) Remove() error { return nil }

// symlinkLinker replaces package-relative model directories with links into
// the shared library.
type symlinkLinker struct {
	spec        *types.PackageSpec
	installRoot string
	modelsDir   string
	log         zerolog.Logger
}

func (l *symlinkLinker) Apply() error {
	for kind, rels := range l.spec.SharedFolders {
		external := filepath.Join(l.modelsDir, libraryDirs(kind)[0])
		if err := fsutil.EnsureDir(external); err != nil {
			return fmt.Errorf("create shared dir %s: %w", external, err)
		}
		for _, rel := range rels {
			target := filepath.Join(l.installRoot, rel)
			if err := replaceWithLink(target, external); err != nil {
				return fmt.Errorf("link %s: %w", rel, err)
			}
			l.log.Debug().Str("target", target).Str("external", external).Msg("linked shared folder")
		}
	}
	return nil
}

func (l *symlinkLinker) Remove() error {
	for _, rels := range l.spec.SharedFolders {
		for _, rel := range rels {
			target := filepath.Join(l.installRoot, rel)
			if !fsutil.IsSymlink(target) {
				continue
			}
			if err := os.Remove(target); err != nil {
				return fmt.Errorf("unlink %s: %w", rel, err)
			}
		}
	}
	return nil
}

// replaceWithLink removes an existing empty dir or stale link at target and
// links it to external. A non-empty real directory is left alone so user
// content is never discarded.
func replaceWithLink(target, external string) error {
	if fi, err := os.Lstat(target); err == nil {
		if fi.Mode()&os.ModeSymlink != 0 {
			if err := os.Remove(target); err != nil {
				return err
			}
		} else if fi.IsDir() {
			entries, err := os.ReadDir(target)
			if err != nil {
				return err
			}
			if len(entries) > 0 {
				return fmt.Errorf("directory not empty: %s", target)
			}
			if err := os.Remove(target); err != nil {
				return err
			}
		} else {
			return fmt.Errorf("not a directory: %s", target)
		}
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return os.Symlink(external, target)
}

// configLocks serializes read-modify-write cycles per config path. The file
// itself carries no lock, so concurrent installs of one package identity
// must still be excluded by the caller across processes.
var configLocks sync.Map

func lockFor(path string) *sync.Mutex {
	v, _ := configLocks.LoadOrStore(filepath.Clean(path), &sync.Mutex{})
	return v.(*sync.Mutex)
}

// configLinker patches the package's own config document with absolute
// library paths instead of touching its directory layout.
type configLinker struct {
	spec        *types.PackageSpec
	installRoot string
	modelsDir   string
	log         zerolog.Logger
}

func (l *configLinker) path() string {
	return filepath.Join(l.installRoot, l.spec.ConfigFile)
}

// entries resolves the spec's category->key mapping into reserved-section
// entries, multi-directory categories newline-joined, in stable key order.
func (l *configLinker) entries() []SectionEntry {
	out := make([]SectionEntry, 0, len(l.spec.ConfigKeys))
	for kind, key := range l.spec.ConfigKeys {
		dirs := libraryDirs(kind)
		abs := make([]string, len(dirs))
		for i, d := range dirs {
			abs[i] = filepath.Join(l.modelsDir, d)
		}
		out = append(out, SectionEntry{Key: key, Value: strings.Join(abs, "\n")})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (l *configLinker) Apply() error {
	path := l.path()
	mu := lockFor(path)
	mu.Lock()
	defer mu.Unlock()

	doc, err := LoadConfigDoc(path)
	if err != nil {
		return err
	}
	if err := doc.UpsertSection(path, l.entries()); err != nil {
		return err
	}
	if err := doc.Save(path); err != nil {
		return err
	}
	l.log.Debug().Str("config", path).Msg("patched shared model paths")
	return nil
}

func (l *configLinker) Remove() error {
	path := l.path()
	mu := lockFor(path)
	mu.Lock()
	defer mu.Unlock()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	doc, err := LoadConfigDoc(path)
	if err != nil {
		return err
	}
	if !doc.RemoveSection() {
		return nil
	}
	return doc.Save(path)
}
