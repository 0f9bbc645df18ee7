package types

import "time"

// Backend is the compute-accelerator family a package's dependencies are
// installed for.
type Backend string

const (
	BackendCPU      Backend = "cpu"
	BackendCUDA     Backend = "cuda"
	BackendROCm     Backend = "rocm"
	BackendDirectML Backend = "directml"
	BackendMPS      Backend = "mps"
)

// SharedFolderKind is an abstract model-resource category that can be wired
// into a package's expected directory layout.
type SharedFolderKind string

const (
	FolderCheckpoints      SharedFolderKind = "checkpoints"
	FolderDiffusers        SharedFolderKind = "diffusers"
	FolderLora             SharedFolderKind = "lora"
	FolderVAE              SharedFolderKind = "vae"
	FolderEmbeddings       SharedFolderKind = "embeddings"
	FolderHypernetworks    SharedFolderKind = "hypernetworks"
	FolderControlNet       SharedFolderKind = "controlnet"
	FolderUpscalers     SharedFolderKind = "upscalers"
	FolderCodeFormer    SharedFolderKind = "codeformer"
	FolderGFPGAN        SharedFolderKind = "gfpgan"
)

// ReadyMatcher inspects one line of process output and, if the line is the
// package's ready signal, extracts the serving endpoint from it.
type ReadyMatcher func(line string) (url string, ok bool)

// SharedFolderMethod selects how external model directories are wired into a
// package.
type SharedFolderMethod string

const (
	// SharedFolderSymlink replaces package-relative model dirs with links
	// into the shared library.
	SharedFolderSymlink SharedFolderMethod = "symlink"
	// SharedFolderConfig patches the package's own config document with
	// absolute paths instead of touching its directory layout.
	SharedFolderConfig SharedFolderMethod = "config"
	// SharedFolderNone disables shared-folder wiring for the package.
	SharedFolderNone SharedFolderMethod = "none"
)

// PackageSpec is the immutable, declarative description of an installable
// third-party inference tool. Many installs may reference one spec.
type PackageSpec struct {
	// Stable identifier, e.g. "comfyui".
	Name string `json:"name"`
	// Human-friendly name, e.g. "ComfyUI".
	DisplayName string `json:"display_name"`
	Author      string `json:"author,omitempty"`
	Blurb       string `json:"blurb,omitempty"`
	// Git repository the package is cloned from.
	RepoURL    string `json:"repo_url"`
	MainBranch string `json:"main_branch"`
	// Backends the package can be installed for.
	Backends []Backend `json:"backends"`
	// How shared model folders are wired in.
	FolderMethod SharedFolderMethod `json:"folder_method"`
	// Category -> package-relative directories (symlink method).
	SharedFolders map[SharedFolderKind][]string `json:"shared_folders,omitempty"`
	// Category -> key inside the reserved section of the package's own
	// config document (config method).
	ConfigKeys map[SharedFolderKind]string `json:"config_keys,omitempty"`
	// Relative path of the package config document patched by the config
	// method, e.g. "extra_model_paths.yaml".
	ConfigFile string `json:"config_file,omitempty"`
	// Package-relative output directories exposed back to the library.
	SharedOutputs []string `json:"shared_outputs,omitempty"`
	// Ordered launch option definitions; order is the CLI emission order.
	LaunchOptions []LaunchOptionDef `json:"launch_options,omitempty"`
	// Entrypoint script relative to the install root, e.g. "main.py".
	Entrypoint string `json:"entrypoint"`
	// Requirement lines matching this pattern are dropped from the install
	// plan so a backend-specific torch build can be substituted.
	TorchExclude string `json:"torch_exclude,omitempty"`
	// ReadyMatch detects the serving endpoint in process output.
	ReadyMatch ReadyMatcher `json:"-"`
}

// SupportsBackend reports whether backend is in the spec's supported set.
func (s *PackageSpec) SupportsBackend(backend Backend) bool {
	for _, b := range s.Backends {
		if b == backend {
			return true
		}
	}
	return false
}

// ArgOverride is one persisted launch-option override for an install.
type ArgOverride struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// InstalledPackage is the mutable record of one completed install.
type InstalledPackage struct {
	ID           string        `json:"id"`
	SpecName     string        `json:"spec"`
	DisplayName  string        `json:"display_name,omitempty"`
	InstallRoot  string        `json:"install_root"`
	Backend      Backend       `json:"backend"`
	Version      string        `json:"version,omitempty"`
	ArgOverrides []ArgOverride `json:"arg_overrides,omitempty"`
	LastURL      string        `json:"last_url,omitempty"`
	InstalledAt  time.Time     `json:"installed_at"`
}

// Override returns the persisted override for name, if any.
func (p *InstalledPackage) Override(name string) (string, bool) {
	for _, o := range p.ArgOverrides {
		if o.Name == name {
			return o.Value, true
		}
	}
	return "", false
}
