package plan

import (
	"regexp"
	"strings"

	"github.com/Aurelien590/StabilityMatrix/pkg/types"
)

// Step is one pip invocation of a dependency plan.
type Step struct {
	// Requirements are the specs installed by this step, e.g.
	// ["torch==2.1.2", "torchvision"] or a single raw manifest line.
	Requirements []string
	// ExtraFlags are passed to pip before the requirements.
	ExtraFlags []string
	// IndexURL overrides the package index for this step.
	IndexURL string
}

// Args returns the argument vector passed to "pip" for this step.
func (s Step) Args() []string {
	args := []string{"install"}
	args = append(args, s.ExtraFlags...)
	args = append(args, s.Requirements...)
	if s.IndexURL != "" {
		args = append(args, "--index-url", s.IndexURL)
	}
	return args
}

// Plan is an ordered list of install steps. It is built fresh per install
// and never persisted. Identical inputs always yield an identical plan.
type Plan struct {
	Steps []Step
}

const (
	torchVersion    = "2.1.2"
	xformersVersion = "0.0.23.post1"

	torchIndexCPU  = "https://download.pytorch.org/whl/cpu"
	torchIndexCUDA = "https://download.pytorch.org/whl/cu121"
	torchIndexROCm = "https://download.pytorch.org/whl/rocm5.6"
)

// Build composes the install plan for one (spec, backend) pair from the raw
// requirements manifest text. Order: base-tool upgrade, backend-specific
// torch step, accelerator kernels (CUDA only), then the filtered manifest
// lines in their original order. Build performs no I/O.
func Build(spec *types.PackageSpec, backend types.Backend, requirementsText string) (Plan, error) {
	if !spec.SupportsBackend(backend) {
		return Plan{}, ErrUnsupportedBackend(spec.Name, backend)
	}

	var p Plan
	p.Steps = append(p.Steps, Step{Requirements: []string{"pip"}, ExtraFlags: []string{"--upgrade"}})
	p.Steps = append(p.Steps, torchStep(backend))
	if backend == types.BackendCUDA {
		p.Steps = append(p.Steps, Step{Requirements: []string{"xformers==" + xformersVersion}, IndexURL: torchIndexCUDA})
	}

	var exclude *regexp.Regexp
	if spec.TorchExclude != "" {
		re, err := regexp.Compile(spec.TorchExclude)
		if err != nil {
			return Plan{}, err
		}
		exclude = re
	}
	for _, req := range ParseRequirements(requirementsText, exclude) {
		p.Steps = append(p.Steps, Step{Requirements: []string{req}})
	}
	return p, nil
}

// torchStep returns the backend-specific tensor-library step. DirectML ships
// as its own wrapper package; MPS wheels come from the default index.
func torchStep(backend types.Backend) Step {
	pin := []string{"torch==" + torchVersion, "torchvision"}
	switch backend {
	case types.BackendCUDA:
		return Step{Requirements: pin, IndexURL: torchIndexCUDA}
	case types.BackendROCm:
		return Step{Requirements: pin, IndexURL: torchIndexROCm}
	case types.BackendDirectML:
		return Step{Requirements: []string{"torch-directml"}}
	case types.BackendMPS:
		return Step{Requirements: pin}
	default:
		return Step{Requirements: pin, IndexURL: torchIndexCPU}
	}
}

// ParseRequirements tokenizes manifest text into one requirement per line,
// dropping blanks, comments, and lines matching exclude. Remaining lines
// keep their original order.
func ParseRequirements(text string, exclude *regexp.Regexp) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if exclude != nil && exclude.MatchString(line) {
			continue
		}
		out = append(out, line)
	}
	return out
}
