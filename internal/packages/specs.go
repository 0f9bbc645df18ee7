package packages

import (
	"runtime"
	"sort"

	"github.com/Aurelien590/StabilityMatrix/internal/supervise"
	"github.com/Aurelien590/StabilityMatrix/pkg/types"
)

// Registry holds the known package specs, keyed by name.
type Registry struct {
	specs map[string]*types.PackageSpec
}

// NewRegistry returns a registry preloaded with the built-in specs.
func NewRegistry() *Registry {
	r := &Registry{specs: make(map[string]*types.PackageSpec)}
	for _, s := range builtinSpecs() {
		r.specs[s.Name] = s
	}
	return r
}

// Register adds or replaces a spec.
func (r *Registry) Register(s *types.PackageSpec) { r.specs[s.Name] = s }

// Get looks up a spec by name.
func (r *Registry) Get(name string) (*types.PackageSpec, error) {
	s, ok := r.specs[name]
	if !ok {
		return nil, ErrSpecNotFound(name)
	}
	return s, nil
}

// List returns all specs sorted by name.
func (r *Registry) List() []*types.PackageSpec {
	out := make([]*types.PackageSpec, 0, len(r.specs))
	for _, s := range r.specs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// defaultFP16 forces half precision off the CUDA path on Apple silicon,
// where fp32 attention is markedly slower. Computed fresh at every launch.
func defaultFP16() string {
	if runtime.GOOS == "darwin" {
		return "true"
	}
	return "false"
}

func builtinSpecs() []*types.PackageSpec {
	return []*types.PackageSpec{
		{
			Name:        "comfyui",
			DisplayName: "ComfyUI",
			Author:      "comfyanonymous",
			Blurb:       "Node-based Stable Diffusion interface",
			RepoURL:     "https://github.com/comfyanonymous/ComfyUI.git",
			MainBranch:  "master",
			Backends: []types.Backend{
				types.BackendCPU, types.BackendCUDA, types.BackendROCm,
				types.BackendDirectML, types.BackendMPS,
			},
			FolderMethod: types.SharedFolderConfig,
			ConfigFile:   "extra_model_paths.yaml",
			ConfigKeys: map[types.SharedFolderKind]string{
				types.FolderCheckpoints:   "checkpoints",
				types.FolderDiffusers:     "diffusers",
				types.FolderLora:          "loras",
				types.FolderVAE:           "vae",
				types.FolderEmbeddings:    "embeddings",
				types.FolderHypernetworks: "hypernetworks",
				types.FolderControlNet:    "controlnet",
				types.FolderUpscalers:     "upscale_models",
			},
			SharedOutputs: []string{"output"},
			LaunchOptions: []types.LaunchOptionDef{
				{Name: "host", Type: types.OptionString, Token: "--listen", Default: "127.0.0.1"},
				{Name: "port", Type: types.OptionString, Token: "--port", Default: "8188"},
				{Name: "force-fp16", Type: types.OptionBool, Token: "--force-fp16", Initial: defaultFP16},
				{Name: "cpu", Type: types.OptionBool, Token: "--cpu"},
			},
			Entrypoint:   "main.py",
			TorchExclude: `^torch`,
			ReadyMatch:   supervise.RegexMatcher(`To see the GUI go to: (http://\S+)`),
		},
		{
			Name:        "sd-webui",
			DisplayName: "Stable Diffusion WebUI",
			Author:      "AUTOMATIC1111",
			Blurb:       "Gradio web interface for Stable Diffusion",
			RepoURL:     "https://github.com/AUTOMATIC1111/stable-diffusion-webui.git",
			MainBranch:  "master",
			Backends: []types.Backend{
				types.BackendCPU, types.BackendCUDA, types.BackendROCm, types.BackendDirectML,
			},
			FolderMethod: types.SharedFolderSymlink,
			SharedFolders: map[types.SharedFolderKind][]string{
				types.FolderCheckpoints:   {"models/Stable-diffusion"},
				types.FolderLora:          {"models/Lora"},
				types.FolderVAE:           {"models/VAE"},
				types.FolderEmbeddings:    {"embeddings"},
				types.FolderHypernetworks: {"models/hypernetworks"},
				types.FolderControlNet:    {"models/ControlNet"},
				types.FolderUpscalers:     {"models/ESRGAN"},
				types.FolderCodeFormer:    {"models/Codeformer"},
				types.FolderGFPGAN:        {"models/GFPGAN"},
			},
			SharedOutputs: []string{"outputs"},
			LaunchOptions: []types.LaunchOptionDef{
				{Name: "host", Type: types.OptionString, Token: "--server-name"},
				{Name: "port", Type: types.OptionString, Token: "--port", Default: "7860"},
				{Name: "xformers", Type: types.OptionBool, Token: "--xformers"},
				{Name: "api", Type: types.OptionBool, Token: "--api", Default: "true"},
				{Name: "precision", Type: types.OptionFlags},
			},
			Entrypoint:   "launch.py",
			TorchExclude: `^torch`,
			ReadyMatch:   supervise.RegexMatcher(`Running on local URL:\s+(http://\S+)`),
		},
		{
			Name:        "fooocus",
			DisplayName: "Fooocus",
			Author:      "lllyasviel",
			Blurb:       "Streamlined image generation focused on prompting",
			RepoURL:     "https://github.com/lllyasviel/Fooocus.git",
			MainBranch:  "main",
			Backends:    []types.Backend{types.BackendCPU, types.BackendCUDA, types.BackendROCm},
			FolderMethod: types.SharedFolderConfig,
			ConfigFile:   "config.txt",
			ConfigKeys: map[types.SharedFolderKind]string{
				types.FolderCheckpoints: "path_checkpoints",
				types.FolderLora:        "path_loras",
				types.FolderVAE:         "path_vae_approx",
				types.FolderEmbeddings:  "path_embeddings",
				types.FolderUpscalers:   "path_upscale_models",
			},
			SharedOutputs: []string{"outputs"},
			LaunchOptions: []types.LaunchOptionDef{
				{Name: "host", Type: types.OptionString, Token: "--listen", Default: "127.0.0.1"},
				{Name: "port", Type: types.OptionString, Token: "--port", Default: "7865"},
			},
			Entrypoint:   "entry_with_update.py",
			TorchExclude: `^torch`,
			ReadyMatch:   supervise.RegexMatcher(`App started successful.*(http://\S+)`),
		},
	}
}
