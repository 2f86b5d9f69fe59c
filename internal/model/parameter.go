package model

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// ParamType names how a parameter's raw text is parsed.
type ParamType string

// Parameter type constants. An empty type means ParamFloat.
const (
	ParamFloat  ParamType = "float"
	ParamInt    ParamType = "int"
	ParamString ParamType = "string"
	ParamBool   ParamType = "bool"
	ParamChoice ParamType = "choice"
)

// ParameterSpec describes one model input.
type ParameterSpec struct {
	Name    string    `json:"name"`
	Label   string    `json:"label"`
	Unit    string    `json:"unit,omitempty"`
	Type    ParamType `json:"type"`
	Default string    `json:"default,omitempty"`
	Choices []string  `json:"choices,omitempty"`
	Min     *float64  `json:"min,omitempty"`
	Max     *float64  `json:"max,omitempty"`
}

// Kind returns the parameter type, defaulting to ParamFloat.
func (p ParameterSpec) Kind() ParamType {
	if p.Type == "" {
		return ParamFloat
	}
	return p.Type
}

// HasDefault reports whether the parameter can be omitted from a task record.
func (p ParameterSpec) HasDefault() bool {
	return p.Default != ""
}

// Parse converts raw into the parameter's typed value: float64, int64, bool,
// or string depending on Kind.
func (p ParameterSpec) Parse(raw string) (any, error) {
	s := strings.TrimSpace(raw)

	switch p.Kind() {
	case ParamFloat:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%q is not a finite number", raw)
		}
		if err := p.checkRange(v); err != nil {
			return nil, err
		}
		return v, nil
	case ParamInt:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", raw)
		}
		if err := p.checkRange(float64(v)); err != nil {
			return nil, err
		}
		return v, nil
	case ParamBool:
		v, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("%q is not a boolean", raw)
		}
		return v, nil
	case ParamString:
		return raw, nil
	case ParamChoice:
		if !slices.Contains(p.Choices, s) {
			return nil, fmt.Errorf("%q is not one of %s", raw, strings.Join(p.Choices, ", "))
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown parameter type %q", p.Type)
	}
}

func (p ParameterSpec) checkRange(v float64) error {
	if p.Min != nil && v < *p.Min {
		return fmt.Errorf("%v is below the minimum %v", v, *p.Min)
	}
	if p.Max != nil && v > *p.Max {
		return fmt.Errorf("%v is above the maximum %v", v, *p.Max)
	}
	return nil
}

func validParamType(t ParamType) bool {
	switch t {
	case "", ParamFloat, ParamInt, ParamString, ParamBool, ParamChoice:
		return true
	}
	return false
}
