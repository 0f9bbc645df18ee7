package engine

// alreadyRunningError signals a launch attempt for a package that still has
// a live supervised process.
type alreadyRunningError struct{ spec string }

func (e alreadyRunningError) Error() string { return "package already running: " + e.spec }

// ErrAlreadyRunning constructs an alreadyRunningError.
func ErrAlreadyRunning(spec string) error { return alreadyRunningError{spec: spec} }

// IsAlreadyRunning reports whether err indicates a live run already exists.
func IsAlreadyRunning(err error) bool {
	_, ok := err.(alreadyRunningError)
	return ok
}
