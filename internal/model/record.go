package model

import (
	"bytes"
	"encoding/json"
	"errors"
)

// TaskRecord is the flat serialized form of a task, as submitted by callers
// and as produced by serializing a bound task.
type TaskRecord struct {
	EmailAddress    string              `json:"emailAddress"`
	TaskID          string              `json:"taskId"`
	FailureCount    int                 `json:"failureCount"`
	ModelName       string              `json:"modelName"`
	ModelVersion    string              `json:"modelVersion"`
	ModelParameters map[string]RawValue `json:"modelParameters"`
}

// RawValue is a parameter's serialized form. It decodes from a JSON string,
// number, or boolean and always encodes as a string.
type RawValue string

// UnmarshalJSON keeps number and boolean literals as their source text so
// that "4.5" and 4.5 bind identically.
func (v *RawValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = RawValue(s)
		return nil
	}

	switch string(b) {
	case "true", "false":
		*v = RawValue(b)
		return nil
	case "null":
		return errors.New("parameter value must not be null")
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.New("parameter value must be a string, number, or boolean")
	}
	*v = RawValue(n.String())
	return nil
}
