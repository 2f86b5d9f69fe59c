package task

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRecord is returned for task records that are malformed
	// independently of any model, e.g. a missing task id.
	ErrInvalidRecord = errors.New("invalid task record")
	// ErrParameterBinding is the kind of every ParameterBindingError.
	ErrParameterBinding = errors.New("parameter binding failed")
	// ErrModelRun wraps failures of a model's own computation.
	ErrModelRun = errors.New("model run failed")
	// ErrArtifactGeneration is the kind of every ArtifactGenerationError.
	ErrArtifactGeneration = errors.New("artifact generation failed")
	// ErrAttachmentMissing is the kind of every AttachmentMissingError.
	ErrAttachmentMissing = errors.New("declared attachment missing")
)

// ParameterBindingError reports a raw parameter value that does not bind
// against the model's parameter schema.
type ParameterBindingError struct {
	Model     string
	Parameter string
	Reason    string
}

func (e *ParameterBindingError) Error() string {
	return fmt.Sprintf("%s: model %s parameter %q: %s", ErrParameterBinding, e.Model, e.Parameter, e.Reason)
}

func (e *ParameterBindingError) Unwrap() error { return ErrParameterBinding }

// ArtifactGenerationError reports a failure to produce the results document.
type ArtifactGenerationError struct {
	Err error
}

func (e *ArtifactGenerationError) Error() string {
	return fmt.Sprintf("%s: %v", ErrArtifactGeneration, e.Err)
}

func (e *ArtifactGenerationError) Unwrap() []error { return []error{ErrArtifactGeneration, e.Err} }

// AttachmentMissingError reports a declared attachment the model run did not
// leave in the working directory.
type AttachmentMissingError struct {
	Name string
}

func (e *AttachmentMissingError) Error() string {
	return fmt.Sprintf("%s: %s", ErrAttachmentMissing, e.Name)
}

func (e *AttachmentMissingError) Unwrap() error { return ErrAttachmentMissing }
