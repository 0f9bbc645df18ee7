package sharedfolders

import (
	"errors"
	"fmt"
)

// invalidConfigError signals that the external config holds content the
// engine refuses to overwrite.
type invalidConfigError struct {
	path   string
	reason string
}

func (e invalidConfigError) Error() string {
	return "invalid external config " + e.path + ": " + e.reason
}

func errInvalidConfig(path, reason string) error {
	return invalidConfigError{path: path, reason: reason}
}

// IsInvalidExternalConfig reports whether err indicates a reserved-section
// conflict with foreign content.
func IsInvalidExternalConfig(err error) bool {
	var ie invalidConfigError
	return errors.As(err, &ie)
}

// configIOError signals an unreadable or unwritable external config file.
type configIOError struct {
	op    string
	path  string
	cause error
}

func (e configIOError) Error() string {
	return fmt.Sprintf("config %s %s: %v", e.op, e.path, e.cause)
}

func (e configIOError) Unwrap() error { return e.cause }

func errConfigIO(op, path string, cause error) error {
	return configIOError{op: op, path: path, cause: cause}
}

// IsConfigIOFailure reports whether err indicates an external config I/O
// failure.
func IsConfigIOFailure(err error) bool {
	var ce configIOError
	return errors.As(err, &ce)
}
