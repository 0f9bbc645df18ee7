package plan

import "github.com/Aurelien590/StabilityMatrix/pkg/types"

// unsupportedBackendError signals that a backend is not in a spec's
// supported set.
type unsupportedBackendError struct {
	spec    string
	backend types.Backend
}

func (e unsupportedBackendError) Error() string {
	return "backend " + string(e.backend) + " not supported by package " + e.spec
}

// ErrUnsupportedBackend constructs an unsupportedBackendError.
func ErrUnsupportedBackend(spec string, backend types.Backend) error {
	return unsupportedBackendError{spec: spec, backend: backend}
}

// IsUnsupportedBackend reports whether err indicates an invalid backend
// choice for a package.
func IsUnsupportedBackend(err error) bool {
	_, ok := err.(unsupportedBackendError)
	return ok
}
