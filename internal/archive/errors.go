package archive

import "fmt"

// ConfigurationError reports an invalid backup job configuration. It is
// raised before any filesystem mutation.
type ConfigurationError struct {
	Field string
	Msg   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// PackagingError reports a failure assembling the archive container. The
// staging area is still removed when it is returned.
type PackagingError struct {
	Op  string
	Err error
}

func (e *PackagingError) Error() string {
	return fmt.Sprintf("packaging: %s: %v", e.Op, e.Err)
}

func (e *PackagingError) Unwrap() error { return e.Err }
