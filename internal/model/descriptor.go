package model

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"text/template"
)

// Runner is a model's run behaviour. Implementations must be safe for
// concurrent use, since every task bound to a descriptor shares its Runner.
type Runner interface {
	Run(ctx context.Context, rc RunContext) error
}

// RunContext is the view of a task that a Runner operates on.
type RunContext struct {
	// Dir is the task's working directory. Output attachments go here.
	Dir string
	// Values maps parameter name to its typed bound value.
	Values map[string]any
	// Log receives one line of run output per call. May be nil.
	Log func(line string)
}

// Emit forwards line to the log sink, if any.
func (rc RunContext) Emit(line string) {
	if rc.Log != nil {
		rc.Log(line)
	}
}

// Descriptor is a registered model: its identity, display metadata,
// parameter schema, declared outputs, and run behaviour.
//
// A Descriptor is immutable once registered. A new revision of the same
// model is a new Descriptor with a different Version.
type Descriptor struct {
	ShortName   string          `json:"short_name"`
	FullName    string          `json:"full_name"`
	Subtitle    string          `json:"subtitle,omitempty"`
	Version     string          `json:"version"`
	Parameters  []ParameterSpec `json:"parameters"`
	Attachments []string        `json:"attachments,omitempty"`
	Source      string          `json:"source,omitempty"`

	// Document renders the body of the results document. Nil means the
	// default parameter table.
	Document *template.Template `json:"-"`
	// Runner is nil for models that only produce a document.
	Runner Runner `json:"-"`
}

// Parameter returns the spec for the named parameter.
func (d *Descriptor) Parameter(name string) (ParameterSpec, bool) {
	for _, p := range d.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParameterSpec{}, false
}

// Validate checks the required metadata and the parameter schema.
func (d *Descriptor) Validate() error {
	var missing []string
	if d.ShortName == "" {
		missing = append(missing, "shortName")
	}
	if d.FullName == "" {
		missing = append(missing, "fullName")
	}
	if d.Parameters == nil {
		missing = append(missing, "parameters")
	}
	if len(missing) > 0 {
		return d.invalid("missing " + strings.Join(missing, ", "))
	}

	seen := make(map[string]bool, len(d.Parameters))
	for _, p := range d.Parameters {
		if p.Name == "" {
			return d.invalid("parameter without a name")
		}
		if seen[p.Name] {
			return d.invalid(fmt.Sprintf("duplicate parameter %q", p.Name))
		}
		seen[p.Name] = true

		if !validParamType(p.Type) {
			return d.invalid(fmt.Sprintf("parameter %q has unknown type %q", p.Name, p.Type))
		}
		if p.Kind() == ParamChoice && len(p.Choices) == 0 {
			return d.invalid(fmt.Sprintf("choice parameter %q has no choices", p.Name))
		}
		if p.HasDefault() {
			if _, err := p.Parse(p.Default); err != nil {
				return d.invalid(fmt.Sprintf("default for parameter %q: %v", p.Name, err))
			}
		}
	}

	files := make(map[string]bool, len(d.Attachments))
	for _, a := range d.Attachments {
		if a == "" || a == "." || a == ".." || filepath.Base(a) != a {
			return d.invalid(fmt.Sprintf("attachment %q is not a plain file name", a))
		}
		if slices.Contains(reservedAttachments, a) {
			return d.invalid(fmt.Sprintf("attachment %q is reserved for the results document", a))
		}
		if files[a] {
			return d.invalid(fmt.Sprintf("duplicate attachment %q", a))
		}
		files[a] = true
	}

	return nil
}

// Clone returns a copy whose slices are not shared with d.
func (d *Descriptor) Clone() *Descriptor {
	c := *d
	c.Parameters = slices.Clone(d.Parameters)
	for i, p := range c.Parameters {
		c.Parameters[i].Choices = slices.Clone(p.Choices)
	}
	c.Attachments = slices.Clone(d.Attachments)
	return &c
}

func (d *Descriptor) invalid(reason string) error {
	return &InvalidDescriptorError{Model: d.ShortName, Source: d.Source, Reason: reason}
}
