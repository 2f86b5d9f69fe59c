package plugin

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"sync"
	"text/template"
	"time"

	"github.com/seantiz/modeld/internal/model"
)

// templateRunner runs a declarative run block: it renders the declared files
// into the working directory and then executes the command there. Every
// string in the block is a text/template evaluated against the bound values.
type templateRunner struct {
	command []*template.Template
	env     map[string]*template.Template
	files   map[string]*template.Template
	timeout time.Duration
}

func newTemplateRunner(run Run, name, baseDir string) (*templateRunner, error) {
	funcs := template.FuncMap{
		"pluginDir": func() string { return baseDir },
	}
	parse := func(kind, text string) (*template.Template, error) {
		tmpl, err := template.New(name + ":" + kind).Funcs(funcs).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", kind, err)
		}
		return tmpl, nil
	}

	r := &templateRunner{
		env:   make(map[string]*template.Template, len(run.Env)),
		files: make(map[string]*template.Template, len(run.Files)),
	}
	for i, arg := range run.Command {
		tmpl, err := parse(fmt.Sprintf("command[%d]", i), arg)
		if err != nil {
			return nil, err
		}
		r.command = append(r.command, tmpl)
	}
	for k, v := range run.Env {
		tmpl, err := parse("env "+k, v)
		if err != nil {
			return nil, err
		}
		r.env[k] = tmpl
	}
	for fname, content := range run.Files {
		if fname == "" || fname == "." || fname == ".." || filepath.Base(fname) != fname {
			return nil, fmt.Errorf("file %q is not a plain file name", fname)
		}
		tmpl, err := parse("file "+fname, content)
		if err != nil {
			return nil, err
		}
		r.files[fname] = tmpl
	}
	if run.Timeout != "" {
		d, err := time.ParseDuration(run.Timeout)
		if err != nil {
			return nil, fmt.Errorf("timeout: %w", err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("timeout must be positive, got %s", run.Timeout)
		}
		r.timeout = d
	}
	return r, nil
}

// Run implements model.Runner.
func (r *templateRunner) Run(ctx context.Context, rc model.RunContext) error {
	names := make([]string, 0, len(r.files))
	for name := range r.files {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		content, err := execute(r.files[name], rc.Values)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(rc.Dir, name), []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		rc.Emit("wrote " + name)
	}

	if len(r.command) == 0 {
		return nil
	}
	return r.runCommand(ctx, rc)
}

func (r *templateRunner) runCommand(ctx context.Context, rc model.RunContext) error {
	args := make([]string, 0, len(r.command))
	for _, tmpl := range r.command {
		arg, err := execute(tmpl, rc.Values)
		if err != nil {
			return err
		}
		args = append(args, arg)
	}

	env := os.Environ()
	keys := make([]string, 0, len(r.env))
	for k := range r.env {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		v, err := execute(r.env[k], rc.Values)
		if err != nil {
			return err
		}
		env = append(env, k+"="+v)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = rc.Dir
	cmd.Env = env

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	var wg sync.WaitGroup
	wg.Go(func() {
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			rc.Emit(scanner.Text())
		}
		// Keep draining so the child never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, pr)
	})

	err := cmd.Run()
	pw.Close()
	wg.Wait()

	if err != nil {
		if r.timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s timed out after %s", args[0], r.timeout)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%s exited with status %d", args[0], exitErr.ExitCode())
		}
		return fmt.Errorf("run %s: %w", args[0], err)
	}
	return nil
}

func execute(tmpl *template.Template, values map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, values); err != nil {
		return "", fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
