package supervise

import (
	"errors"
	"fmt"
)

// launchError signals a missing entrypoint or an OS spawn failure.
type launchError struct {
	entrypoint string
	cause      error
}

func (e launchError) Error() string {
	return fmt.Sprintf("launch %s: %v", e.entrypoint, e.cause)
}

func (e launchError) Unwrap() error { return e.cause }

func errLaunchFailed(entrypoint string, cause error) error {
	return launchError{entrypoint: entrypoint, cause: cause}
}

// IsProcessLaunchFailed reports whether err indicates the package process
// could not be started at all.
func IsProcessLaunchFailed(err error) bool {
	var le launchError
	return errors.As(err, &le)
}
