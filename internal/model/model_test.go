package model

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"testing"
	"text/template"
)

// crockfordBase32 matches valid ULID strings (26 chars, Crockford Base32 alphabet).
var crockfordBase32 = regexp.MustCompile(`^[0123456789ABCDEFGHJKMNPQRSTVWXYZ]{26}$`)

func TestNewIDFormat(t *testing.T) {
	id := NewID()
	if !crockfordBase32.MatchString(id) {
		t.Errorf("NewID() = %q, does not match Crockford Base32 ULID format", id)
	}
}

func TestNewIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("NewID() produced duplicate: %s", id)
		}
		seen[id] = true
	}
}

func TestValidTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateCreated, StateBound, true},
		{StateBound, StateRunning, true},
		{StateRunning, StateArtifactsGenerated, true},
		{StateRunning, StateFailed, true},
		{StateArtifactsGenerated, StateCompleted, true},
		{StateArtifactsGenerated, StateFailed, true},
		{StateCreated, StateRunning, false},
		{StateBound, StateFailed, false},
		{StateRunning, StateCompleted, false},
		{StateCompleted, StateFailed, false},
		{StateFailed, StateRunning, false},
	}
	for _, tc := range tests {
		if got := ValidTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("ValidTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{StateCompleted, StateFailed} {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
	}
	for _, s := range []State{StateCreated, StateBound, StateRunning, StateArtifactsGenerated} {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true, want false", s)
		}
	}
}

func TestParameterParse(t *testing.T) {
	lo, hi := 0.0, 10.0
	tests := []struct {
		name    string
		spec    ParameterSpec
		raw     string
		want    any
		wantErr bool
	}{
		{"float default type", ParameterSpec{Name: "rate"}, "4.5", 4.5, false},
		{"float trims space", ParameterSpec{Name: "rate", Type: ParamFloat}, " 2 ", 2.0, false},
		{"float rejects text", ParameterSpec{Name: "rate"}, "fast", nil, true},
		{"float rejects NaN", ParameterSpec{Name: "rate"}, "NaN", nil, true},
		{"float below min", ParameterSpec{Name: "rate", Min: &lo}, "-1", nil, true},
		{"float above max", ParameterSpec{Name: "rate", Max: &hi}, "10.5", nil, true},
		{"int", ParameterSpec{Name: "n", Type: ParamInt}, "7", int64(7), false},
		{"int rejects fraction", ParameterSpec{Name: "n", Type: ParamInt}, "7.5", nil, true},
		{"bool", ParameterSpec{Name: "b", Type: ParamBool}, "true", true, false},
		{"bool rejects", ParameterSpec{Name: "b", Type: ParamBool}, "maybe", nil, true},
		{"string kept verbatim", ParameterSpec{Name: "s", Type: ParamString}, " x ", " x ", false},
		{"choice", ParameterSpec{Name: "c", Type: ParamChoice, Choices: []string{"sand", "clay"}}, "clay", "clay", false},
		{"choice rejects", ParameterSpec{Name: "c", Type: ParamChoice, Choices: []string{"sand"}}, "silt", nil, true},
		{"unknown type", ParameterSpec{Name: "x", Type: "complex"}, "1", nil, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.spec.Parse(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) = %v, want error", tc.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q): %v", tc.raw, err)
			}
			if got != tc.want {
				t.Errorf("Parse(%q) = %#v, want %#v", tc.raw, got, tc.want)
			}
		})
	}
}

func validDescriptor() *Descriptor {
	return &Descriptor{
		ShortName:  "erosion",
		FullName:   "Soil Erosion",
		Parameters: []ParameterSpec{{Name: "rate", Label: "Rate", Default: "1"}},
	}
}

func TestDescriptorValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(d *Descriptor)
		wantErr bool
	}{
		{"valid", func(d *Descriptor) {}, false},
		{"empty parameter list is allowed", func(d *Descriptor) { d.Parameters = []ParameterSpec{} }, false},
		{"missing short name", func(d *Descriptor) { d.ShortName = "" }, true},
		{"missing full name", func(d *Descriptor) { d.FullName = "" }, true},
		{"missing parameters", func(d *Descriptor) { d.Parameters = nil }, true},
		{"duplicate parameter", func(d *Descriptor) {
			d.Parameters = append(d.Parameters, ParameterSpec{Name: "rate"})
		}, true},
		{"bad default", func(d *Descriptor) { d.Parameters[0].Default = "fast" }, true},
		{"choice without choices", func(d *Descriptor) { d.Parameters[0] = ParameterSpec{Name: "c", Type: ParamChoice} }, true},
		{"attachment with path", func(d *Descriptor) { d.Attachments = []string{"../etc/passwd"} }, true},
		{"duplicate attachment", func(d *Descriptor) { d.Attachments = []string{"a.csv", "a.csv"} }, true},
		{"results document attachment", func(d *Descriptor) { d.Attachments = []string{"results.pdf"} }, true},
		{"results source attachment", func(d *Descriptor) { d.Attachments = []string{"out.csv", "results.tex"} }, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := validDescriptor()
			tc.mutate(d)
			err := d.Validate()
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidDescriptor) {
					t.Fatalf("Validate() = %v, want ErrInvalidDescriptor", err)
				}
				var ide *InvalidDescriptorError
				if !errors.As(err, &ide) {
					t.Fatalf("Validate() error is %T, want *InvalidDescriptorError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate(): %v", err)
			}
		})
	}
}

func TestLatexEscape(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`50% & 10_000 $`, `50\% \& 10\_000 \$`},
		{`\x`, `\textbackslash{}x`},
		{`\input{/etc/passwd}`, `\textbackslash{}input\{/etc/passwd\}`},
		{"loam", "loam"},
	}
	for _, tc := range tests {
		if got := LatexEscape(tc.in); got != tc.want {
			t.Errorf("LatexEscape(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDocumentFuncsLatex(t *testing.T) {
	tmpl, err := template.New("doc").Delims("<<", ">>").Funcs(DocumentFuncs()).
		Parse(`<< latex .Name >> at << latex .Rate >>`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var buf strings.Builder
	if err := tmpl.Execute(&buf, map[string]any{"Name": `\input{/etc/passwd}`, "Rate": 4.5}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := `\textbackslash{}input\{/etc/passwd\} at 4.5`
	if buf.String() != want {
		t.Errorf("body = %q, want %q", buf.String(), want)
	}
}

func TestDescriptorCloneDoesNotShareSlices(t *testing.T) {
	d := validDescriptor()
	d.Attachments = []string{"out.csv"}
	c := d.Clone()

	c.Parameters[0].Name = "changed"
	c.Attachments[0] = "changed.csv"

	if d.Parameters[0].Name != "rate" {
		t.Errorf("original parameter name = %q, want %q", d.Parameters[0].Name, "rate")
	}
	if d.Attachments[0] != "out.csv" {
		t.Errorf("original attachment = %q, want %q", d.Attachments[0], "out.csv")
	}
}

func TestRawValueUnmarshal(t *testing.T) {
	tests := []struct {
		in      string
		want    RawValue
		wantErr bool
	}{
		{`"4.5"`, "4.5", false},
		{`4.5`, "4.5", false},
		{`10`, "10", false},
		{`true`, "true", false},
		{`null`, "", true},
		{`{"a":1}`, "", true},
		{`[1]`, "", true},
	}
	for _, tc := range tests {
		var v RawValue
		err := json.Unmarshal([]byte(tc.in), &v)
		if tc.wantErr {
			if err == nil {
				t.Errorf("Unmarshal(%s) = %q, want error", tc.in, v)
			}
			continue
		}
		if err != nil {
			t.Errorf("Unmarshal(%s): %v", tc.in, err)
			continue
		}
		if v != tc.want {
			t.Errorf("Unmarshal(%s) = %q, want %q", tc.in, v, tc.want)
		}
	}
}

func TestTaskRecordJSONFieldNames(t *testing.T) {
	in := `{"emailAddress":"a@b.c","taskId":"t1","failureCount":2,"modelName":"erosion","modelVersion":"v1","modelParameters":{"rate":"4.5"}}`
	var rec TaskRecord
	if err := json.Unmarshal([]byte(in), &rec); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	out, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(out) != in {
		t.Errorf("round trip = %s, want %s", out, in)
	}
}
