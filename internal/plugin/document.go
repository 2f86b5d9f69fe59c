package plugin

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"text/template"

	schemagen "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"sigs.k8s.io/yaml"

	"github.com/seantiz/modeld/internal/model"
)

// File is the top-level structure of a plugin source file.
type File struct {
	Models []Definition `json:"models"`
}

// Definition is one model definition inside a plugin file.
type Definition struct {
	Name        string      `json:"name,omitempty"`
	Abstract    bool        `json:"abstract,omitempty"`
	Extends     string      `json:"extends,omitempty"`
	ShortName   string      `json:"shortName,omitempty"`
	FullName    string      `json:"fullName,omitempty"`
	Subtitle    string      `json:"subtitle,omitempty"`
	Parameters  []Parameter `json:"parameters,omitempty"`
	Attachments []string    `json:"attachments,omitempty"`
	Run         *Run        `json:"run,omitempty"`
	Document    string      `json:"document,omitempty"`
}

// Parameter declares one model input.
type Parameter struct {
	Name    string   `json:"name"`
	Label   string   `json:"label,omitempty"`
	Unit    string   `json:"unit,omitempty"`
	Type    string   `json:"type,omitempty" jsonschema:"enum=float,enum=int,enum=string,enum=bool,enum=choice"`
	Default any      `json:"default,omitempty" jsonschema:"oneof_type=string;number;boolean"`
	Choices []string `json:"choices,omitempty"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
}

// Run declares a model's run behaviour.
type Run struct {
	Command []string          `json:"command,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Files   map[string]string `json:"files,omitempty"`
	Timeout string            `json:"timeout,omitempty"`
}

const schemaResource = "plugin.schema.json"

// pluginSchema reflects the JSON schema of File once and compiles it for
// validation.
var pluginSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	r := &schemagen.Reflector{Anonymous: true, ExpandedStruct: true}
	raw, err := json.Marshal(r.Reflect(&File{}))
	if err != nil {
		return nil, fmt.Errorf("marshal plugin schema: %w", err)
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal plugin schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaResource, doc); err != nil {
		return nil, fmt.Errorf("add plugin schema: %w", err)
	}
	sch, err := c.Compile(schemaResource)
	if err != nil {
		return nil, fmt.Errorf("compile plugin schema: %w", err)
	}
	return sch, nil
})

// Parse decodes and validates a plugin source and builds a descriptor for
// every concrete definition in it. source is recorded on each descriptor.
// Required metadata is not checked here; the registry does that.
func Parse(src []byte, source string) ([]*model.Descriptor, error) {
	raw, err := yaml.YAMLToJSON(src)
	if err != nil {
		return nil, fmt.Errorf("convert yaml: %w", err)
	}

	sch, err := pluginSchema()
	if err != nil {
		return nil, err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return nil, fmt.Errorf("validate document: %w", err)
	}

	var f File
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}

	byName := make(map[string]Definition, len(f.Models))
	for _, def := range f.Models {
		if def.Name == "" {
			continue
		}
		if _, dup := byName[def.Name]; dup {
			return nil, fmt.Errorf("duplicate definition name %q", def.Name)
		}
		byName[def.Name] = def
	}

	baseDir := filepath.Dir(source)
	var out []*model.Descriptor
	for i, def := range f.Models {
		if def.Abstract {
			continue
		}
		resolved, err := resolve(def, byName)
		if err != nil {
			return nil, fmt.Errorf("definition %d: %w", i, err)
		}
		d, err := buildDescriptor(resolved, source, baseDir)
		if err != nil {
			return nil, fmt.Errorf("definition %d (%s): %w", i, label(resolved), err)
		}
		out = append(out, d)
	}
	return out, nil
}

// resolve applies the extends chain of def, nearest ancestor winning.
func resolve(def Definition, byName map[string]Definition) (Definition, error) {
	visited := map[string]bool{def.Name: def.Name != ""}
	out := def
	for parent := def.Extends; parent != ""; {
		if visited[parent] {
			return Definition{}, fmt.Errorf("extends cycle through %q", parent)
		}
		visited[parent] = true

		base, ok := byName[parent]
		if !ok {
			return Definition{}, fmt.Errorf("extends unknown definition %q", parent)
		}
		out = inherit(out, base)
		parent = base.Extends
	}
	return out, nil
}

// inherit fills the unset fields of child from base.
func inherit(child, base Definition) Definition {
	if child.ShortName == "" {
		child.ShortName = base.ShortName
	}
	if child.FullName == "" {
		child.FullName = base.FullName
	}
	if child.Subtitle == "" {
		child.Subtitle = base.Subtitle
	}
	if child.Parameters == nil {
		child.Parameters = base.Parameters
	}
	if child.Attachments == nil {
		child.Attachments = base.Attachments
	}
	if child.Run == nil {
		child.Run = base.Run
	}
	if child.Document == "" {
		child.Document = base.Document
	}
	return child
}

func buildDescriptor(def Definition, source, baseDir string) (*model.Descriptor, error) {
	d := &model.Descriptor{
		ShortName:   def.ShortName,
		FullName:    def.FullName,
		Subtitle:    def.Subtitle,
		Attachments: def.Attachments,
		Source:      source,
	}

	if def.Parameters != nil {
		d.Parameters = make([]model.ParameterSpec, 0, len(def.Parameters))
	}
	for _, p := range def.Parameters {
		dflt, err := defaultText(p.Default)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		d.Parameters = append(d.Parameters, model.ParameterSpec{
			Name:    p.Name,
			Label:   p.Label,
			Unit:    p.Unit,
			Type:    model.ParamType(p.Type),
			Default: dflt,
			Choices: p.Choices,
			Min:     p.Min,
			Max:     p.Max,
		})
	}

	if def.Document != "" {
		tmpl, err := template.New(label(def)).Delims("<<", ">>").Funcs(model.DocumentFuncs()).Parse(def.Document)
		if err != nil {
			return nil, fmt.Errorf("document template: %w", err)
		}
		d.Document = tmpl
	}

	if def.Run != nil {
		r, err := newTemplateRunner(*def.Run, label(def), baseDir)
		if err != nil {
			return nil, fmt.Errorf("run: %w", err)
		}
		d.Runner = r
	}
	return d, nil
}

// defaultText returns the serialized form of a default value.
func defaultText(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", errors.New("default must be a string, number, or boolean")
	}
}

func label(def Definition) string {
	switch {
	case def.ShortName != "":
		return def.ShortName
	case def.Name != "":
		return def.Name
	default:
		return "unnamed"
	}
}
