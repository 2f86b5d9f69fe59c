// Package render turns results document bodies into PDF files.
package render

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"
	"time"

	"github.com/seantiz/modeld/internal/model"
)

//go:embed results.tex.tmpl
var defaultTemplate string

// SourceFile and OutputFile are the names used inside the working directory.
const (
	SourceFile = model.DocumentSource
	OutputFile = model.DocumentOutput
)

const defaultTimeout = 2 * time.Minute

// ExitError reports a pdflatex run that finished with a non-zero status.
type ExitError struct {
	Code int
	// Output is the tail of the combined pdflatex output.
	Output string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("pdflatex exited with status %d", e.Code)
}

// TemplateData is the data handed to the LaTeX results template.
type TemplateData struct {
	Body string
}

// Latex renders document bodies with pdflatex. It is safe for concurrent use
// as long as each call gets its own directory.
type Latex struct {
	binary  string
	tmpl    *template.Template
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Latex renderer.
type Option func(*Latex) error

// WithTemplateFile replaces the embedded results template with the file at
// path. The template uses << >> delimiters.
func WithTemplateFile(path string) Option {
	return func(l *Latex) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read latex template: %w", err)
		}
		return l.parse(string(data))
	}
}

// WithTemplate replaces the embedded results template with text.
func WithTemplate(text string) Option {
	return func(l *Latex) error { return l.parse(text) }
}

// WithTimeout bounds a single pdflatex run.
func WithTimeout(d time.Duration) Option {
	return func(l *Latex) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", d)
		}
		l.timeout = d
		return nil
	}
}

// WithLogger sets the renderer logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Latex) error {
		l.logger = logger
		return nil
	}
}

// NewLatex creates a renderer that invokes the pdflatex binary at binary.
func NewLatex(binary string, opts ...Option) (*Latex, error) {
	if binary == "" {
		return nil, errors.New("pdflatex path is required")
	}
	l := &Latex{
		binary:  binary,
		timeout: defaultTimeout,
		logger:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	if err := l.parse(defaultTemplate); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *Latex) parse(text string) error {
	tmpl, err := template.New("results").Delims("<<", ">>").Option("missingkey=error").Parse(text)
	if err != nil {
		return fmt.Errorf("parse latex template: %w", err)
	}
	l.tmpl = tmpl
	return nil
}

// Render writes the wrapped body to dir/results.tex, runs pdflatex in dir
// and returns the bytes of dir/results.pdf.
func (l *Latex) Render(ctx context.Context, dir string, body string) ([]byte, error) {
	var src bytes.Buffer
	if err := l.tmpl.Execute(&src, TemplateData{Body: body}); err != nil {
		return nil, fmt.Errorf("execute latex template: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, SourceFile), src.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", SourceFile, err)
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, l.binary, "-halt-on-error", "-interaction=nonstopmode", SourceFile)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	l.logger.Debug("running pdflatex", "binary", l.binary, "dir", dir)
	start := time.Now()
	err := cmd.Run()
	l.logger.Debug("pdflatex finished", "duration_ms", time.Since(start).Milliseconds())
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("pdflatex timed out after %s", l.timeout)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ExitError{Code: exitErr.ExitCode(), Output: tail(out.String(), 2048)}
		}
		return nil, fmt.Errorf("run pdflatex: %w", err)
	}

	pdf, err := os.ReadFile(filepath.Join(dir, OutputFile))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", OutputFile, err)
	}
	return pdf, nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
