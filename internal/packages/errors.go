package packages

// specNotFoundError signals an unknown package spec name.
type specNotFoundError struct{ name string }

func (e specNotFoundError) Error() string { return "package spec not found: " + e.name }

// ErrSpecNotFound constructs a specNotFoundError.
func ErrSpecNotFound(name string) error { return specNotFoundError{name: name} }

// IsSpecNotFound reports whether err indicates an unknown spec name.
func IsSpecNotFound(err error) bool {
	_, ok := err.(specNotFoundError)
	return ok
}

// notInstalledError signals a missing install record.
type notInstalledError struct{ name string }

func (e notInstalledError) Error() string { return "package not installed: " + e.name }

func ErrNotInstalled(name string) error { return notInstalledError{name: name} }

// IsNotInstalled reports whether err indicates a missing install.
func IsNotInstalled(err error) bool {
	_, ok := err.(notInstalledError)
	return ok
}
