package registry

import (
	"errors"
	"fmt"
)

// ErrUnknownModel is the kind of every UnknownModelError.
var ErrUnknownModel = errors.New("unknown model")

// UnknownModelError is returned for lookups against a name or (name, version)
// pair that was never registered. Version is empty for latest-version lookups.
type UnknownModelError struct {
	Name    string
	Version string
}

func (e *UnknownModelError) Error() string {
	if e.Version == "" {
		return fmt.Sprintf("%s %q", ErrUnknownModel, e.Name)
	}
	return fmt.Sprintf("%s %q version %q", ErrUnknownModel, e.Name, e.Version)
}

func (e *UnknownModelError) Unwrap() error { return ErrUnknownModel }
