package plugin

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/seantiz/modeld/internal/model"
)

// Candidate is one concrete model definition found in a plugin file.
type Candidate struct {
	Descriptor *model.Descriptor
	Version    string
	File       string
}

// Report summarises one pass over the model directory.
type Report struct {
	// Files is the number of plugin files examined.
	Files int
	// Candidates are the definitions handed to the registry.
	Candidates []Candidate
	// Added counts candidates the registry stored as new versions.
	Added int
	// Failures holds one *PluginLoadError per file that did not load.
	Failures []error
	// Rejected holds the registry's errors for candidates it refused.
	Rejected []error
}

// Err joins every failure and rejection in the report, or returns nil.
func (r Report) Err() error {
	return errors.Join(append(slices.Clone(r.Failures), r.Rejected...)...)
}

// Registrar receives loaded descriptors. *registry.Registry implements it.
type Registrar interface {
	Register(d *model.Descriptor, version string) (bool, error)
}

// Loader reads plugin files from one directory.
type Loader struct {
	dir    string
	logger *slog.Logger
}

// NewLoader creates a loader for dir. A nil logger discards output.
func NewLoader(dir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Loader{dir: dir, logger: logger}
}

// Dir returns the directory the loader scans.
func (l *Loader) Dir() string { return l.dir }

// Version returns the version token for a plugin source: the lower-case hex
// SHA-256 of its bytes.
func Version(src []byte) string {
	sum := sha256.Sum256(src)
	return hex.EncodeToString(sum[:])
}

// IsPluginFile reports whether name looks like a plugin source file.
func IsPluginFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	switch filepath.Ext(name) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Scan examines every plugin file directly inside the directory, in name
// order. A file that fails to load is recorded in Report.Failures and does
// not stop the scan. Only an unreadable directory is returned as an error.
func (l *Loader) Scan(ctx context.Context) (Report, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return Report{}, fmt.Errorf("read model directory: %w", err)
	}

	var rep Report
	for _, e := range entries {
		if e.IsDir() || !IsPluginFile(e.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		path := filepath.Join(l.dir, e.Name())
		rep.Files++
		candidates, err := l.LoadFile(path)
		if err != nil {
			loadFailuresTotal.Inc()
			l.logger.Error("failed to load plugin", "file", path, "error", err)
			rep.Failures = append(rep.Failures, err)
			continue
		}
		rep.Candidates = append(rep.Candidates, candidates...)
	}
	return rep, nil
}

// LoadFile reads and parses a single plugin file. Any failure, including a
// panic while parsing, is returned as a *PluginLoadError.
func (l *Loader) LoadFile(path string) (candidates []Candidate, err error) {
	defer func() {
		if p := recover(); p != nil {
			candidates = nil
			err = &PluginLoadError{File: path, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, &PluginLoadError{File: path, Err: err}
	}
	descriptors, err := Parse(src, path)
	if err != nil {
		return nil, &PluginLoadError{File: path, Err: err}
	}

	version := Version(src)
	candidates = make([]Candidate, 0, len(descriptors))
	for _, d := range descriptors {
		candidates = append(candidates, Candidate{Descriptor: d, Version: version, File: path})
	}
	l.logger.Debug("loaded plugin", "file", path, "version", version, "models", len(candidates))
	return candidates, nil
}

// Load scans the directory and registers every candidate with reg.
// Registration failures are collected in Report.Rejected.
func (l *Loader) Load(ctx context.Context, reg Registrar) (Report, error) {
	start := time.Now()
	defer func() {
		scansTotal.Inc()
		scanDuration.Observe(time.Since(start).Seconds())
	}()

	rep, err := l.Scan(ctx)
	if err != nil {
		return rep, err
	}
	for _, c := range rep.Candidates {
		added, err := reg.Register(c.Descriptor, c.Version)
		if err != nil {
			rep.Rejected = append(rep.Rejected, fmt.Errorf("%s: %w", c.File, err))
			continue
		}
		if added {
			rep.Added++
		}
	}
	return rep, nil
}
