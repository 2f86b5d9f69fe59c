package model

import (
	"errors"
	"fmt"
)

// ErrInvalidDescriptor is the kind of every InvalidDescriptorError.
var ErrInvalidDescriptor = errors.New("invalid model descriptor")

// InvalidDescriptorError reports plugin metadata that cannot be registered.
type InvalidDescriptorError struct {
	Model  string
	Source string
	Reason string
}

func (e *InvalidDescriptorError) Error() string {
	name := e.Model
	if name == "" {
		name = "<unnamed>"
	}
	if e.Source != "" {
		return fmt.Sprintf("%s: model %s from %s: %s", ErrInvalidDescriptor, name, e.Source, e.Reason)
	}
	return fmt.Sprintf("%s: model %s: %s", ErrInvalidDescriptor, name, e.Reason)
}

func (e *InvalidDescriptorError) Unwrap() error { return ErrInvalidDescriptor }
