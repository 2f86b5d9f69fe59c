package task

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/seantiz/modeld/internal/model"
)

// BoundParameter is one parameter value bound against its spec.
type BoundParameter struct {
	Spec  model.ParameterSpec
	Raw   string
	Value any
	// Defaulted is set when the record omitted the parameter and the spec
	// default was used. Defaulted parameters are not serialized.
	Defaulted bool
}

// Task is a run request bound to one registered model version.
type Task struct {
	Model        *model.Descriptor
	EmailAddress string
	ID           string
	FailureCount int
	// Parameters holds one entry per model parameter, in schema order.
	Parameters []BoundParameter
	// WorkingDirectory is exclusively owned by this task. It does not exist
	// until the task starts running and is removed when the run ends.
	WorkingDirectory string
}

// New binds rec against d. Every parameter named in rec must exist in d and
// parse; parameters rec omits take their default or fail.
func New(d *model.Descriptor, rec model.TaskRecord, workRoot string) (*Task, error) {
	if rec.TaskID == "" {
		return nil, fmt.Errorf("%w: task id is required", ErrInvalidRecord)
	}
	if rec.FailureCount < 0 {
		return nil, fmt.Errorf("%w: failure count %d is negative", ErrInvalidRecord, rec.FailureCount)
	}

	supplied := make([]string, 0, len(rec.ModelParameters))
	for name := range rec.ModelParameters {
		supplied = append(supplied, name)
	}
	sort.Strings(supplied)
	for _, name := range supplied {
		if _, ok := d.Parameter(name); !ok {
			return nil, &ParameterBindingError{Model: d.ShortName, Parameter: name, Reason: "not a parameter of this model"}
		}
	}

	params := make([]BoundParameter, 0, len(d.Parameters))
	for _, spec := range d.Parameters {
		raw, ok := rec.ModelParameters[spec.Name]
		bp := BoundParameter{Spec: spec, Raw: string(raw)}
		if !ok {
			if !spec.HasDefault() {
				return nil, &ParameterBindingError{Model: d.ShortName, Parameter: spec.Name, Reason: "no value and no default"}
			}
			bp.Raw = spec.Default
			bp.Defaulted = true
		}

		v, err := spec.Parse(bp.Raw)
		if err != nil {
			return nil, &ParameterBindingError{Model: d.ShortName, Parameter: spec.Name, Reason: err.Error()}
		}
		bp.Value = v
		params = append(params, bp)
	}

	return &Task{
		Model:            d,
		EmailAddress:     rec.EmailAddress,
		ID:               rec.TaskID,
		FailureCount:     rec.FailureCount,
		Parameters:       params,
		WorkingDirectory: filepath.Join(workRoot, "task-"+uuid.NewString()),
	}, nil
}

// Record serializes t. Binding the result against the same descriptor yields
// a task with identical observable fields.
func (t *Task) Record() model.TaskRecord {
	values := make(map[string]model.RawValue, len(t.Parameters))
	for _, p := range t.Parameters {
		if p.Defaulted {
			continue
		}
		values[p.Spec.Name] = model.RawValue(p.Raw)
	}
	return model.TaskRecord{
		EmailAddress:    t.EmailAddress,
		TaskID:          t.ID,
		FailureCount:    t.FailureCount,
		ModelName:       t.Model.ShortName,
		ModelVersion:    t.Model.Version,
		ModelParameters: values,
	}
}

// Value returns the typed value bound to the named parameter.
func (t *Task) Value(name string) (any, bool) {
	for _, p := range t.Parameters {
		if p.Spec.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}

// Values returns parameter name → typed value for every bound parameter.
func (t *Task) Values() map[string]any {
	values := make(map[string]any, len(t.Parameters))
	for _, p := range t.Parameters {
		values[p.Spec.Name] = p.Value
	}
	return values
}

// RawValues returns parameter name → raw text for every bound parameter,
// defaults included.
func (t *Task) RawValues() map[string]string {
	values := make(map[string]string, len(t.Parameters))
	for _, p := range t.Parameters {
		values[p.Spec.Name] = p.Raw
	}
	return values
}

// createWorkingDirectory creates the task's working directory. It fails if
// the directory already exists, so two tasks can never share one.
func (t *Task) createWorkingDirectory() error {
	if err := os.MkdirAll(filepath.Dir(t.WorkingDirectory), 0o755); err != nil {
		return err
	}
	return os.Mkdir(t.WorkingDirectory, 0o700)
}
