package render

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// fakePdflatex writes a script that "compiles" results.tex by copying it to
// results.pdf, failing when the source contains FAIL.
func fakePdflatex(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "pdflatex")
	script := `#!/bin/sh
for last; do :; done
if grep -q FAIL "$last"; then
  echo "! LaTeX Error: something broke"
  exit 1
fi
cp "$last" results.pdf
`
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake pdflatex: %v", err)
	}
	return path
}

func newLatex(t *testing.T, binary string, opts ...Option) *Latex {
	t.Helper()
	l, err := NewLatex(binary, opts...)
	if err != nil {
		t.Fatalf("NewLatex: %v", err)
	}
	return l
}

func TestLatexRender(t *testing.T) {
	l := newLatex(t, fakePdflatex(t), WithTemplate(`\begin{document}<< .Body >>\end{document}`))

	dir := t.TempDir()
	pdf, err := l.Render(context.Background(), dir, "rate & 4.5")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := `\begin{document}rate & 4.5\end{document}`
	if string(pdf) != want {
		t.Errorf("pdf = %q, want %q", pdf, want)
	}

	src, err := os.ReadFile(filepath.Join(dir, SourceFile))
	if err != nil {
		t.Fatalf("read source: %v", err)
	}
	if string(src) != string(pdf) {
		t.Errorf("source = %q, want %q", src, pdf)
	}
}

func TestLatexRenderDefaultTemplate(t *testing.T) {
	l := newLatex(t, fakePdflatex(t))

	pdf, err := l.Render(context.Background(), t.TempDir(), "BODY")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, want := range []string{`\documentclass`, "BODY"} {
		if !strings.Contains(string(pdf), want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestLatexRenderFailure(t *testing.T) {
	l := newLatex(t, fakePdflatex(t))

	_, err := l.Render(context.Background(), t.TempDir(), "FAIL")
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("Render() = %v, want *ExitError", err)
	}
	if exitErr.Code != 1 {
		t.Errorf("Code = %d, want 1", exitErr.Code)
	}
	if !strings.Contains(exitErr.Output, "LaTeX Error") {
		t.Errorf("Output = %q, want LaTeX Error", exitErr.Output)
	}
}

func TestLatexMissingBinary(t *testing.T) {
	l := newLatex(t, filepath.Join(t.TempDir(), "no-such-pdflatex"))

	if _, err := l.Render(context.Background(), t.TempDir(), "body"); err == nil {
		t.Error("expected error for missing binary")
	}
}

func TestNewLatexValidation(t *testing.T) {
	tests := []struct {
		name   string
		binary string
		opts   []Option
	}{
		{"empty binary", "", nil},
		{"bad template", "pdflatex", []Option{WithTemplate("<< .Body")}},
		{"missing template file", "pdflatex", []Option{WithTemplateFile(filepath.Join(t.TempDir(), "missing.tex"))}},
		{"zero timeout", "pdflatex", []Option{WithTimeout(0)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewLatex(tc.binary, tc.opts...); err == nil {
				t.Error("expected error")
			}
		})
	}

	tmpl := filepath.Join(t.TempDir(), "results.tex")
	if err := os.WriteFile(tmpl, []byte(`<< .Body >>`), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if _, err := NewLatex("pdflatex", WithTemplateFile(tmpl)); err != nil {
		t.Errorf("NewLatex with template file: %v", err)
	}
}

func TestStubRender(t *testing.T) {
	dir := t.TempDir()
	pdf, err := Stub{}.Render(context.Background(), dir, "body")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.HasPrefix(string(pdf), "%PDF") {
		t.Errorf("stub output does not start with %%PDF: %q", pdf)
	}

	src, err := os.ReadFile(filepath.Join(dir, SourceFile))
	if err != nil {
		t.Fatalf("read source: %v", err)
	}
	if string(src) != "body" {
		t.Errorf("source = %q, want body", src)
	}
}
