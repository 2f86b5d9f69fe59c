package registry

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/seantiz/modeld/internal/model"
	"github.com/seantiz/modeld/internal/task"
)

// Key identifies one registered model version.
type Key struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ModelInfo summarises the registered versions of one model name.
type ModelInfo struct {
	Name     string   `json:"name"`
	Latest   string   `json:"latest"`
	Versions []string `json:"versions"`
}

// Registry maps (name, version) to registered descriptors and keeps a
// latest-version index per name. It is safe for concurrent use.
//
// Both maps are guarded by one mutex so a reader never sees a key in one
// without the other.
type Registry struct {
	mu       sync.RWMutex
	models   map[Key]*model.Descriptor
	latest   map[string]string
	logger   *slog.Logger
	workRoot string
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for registration events.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithWorkRoot sets the directory under which instantiated tasks get their
// working directories.
func WithWorkRoot(dir string) Option {
	return func(r *Registry) { r.workRoot = dir }
}

// NewRegistry creates an empty model registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		models:   make(map[Key]*model.Descriptor),
		latest:   make(map[string]string),
		logger:   slog.New(slog.NewJSONHandler(io.Discard, nil)),
		workRoot: filepath.Join(os.TempDir(), "modeld"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register stores d under (d.ShortName, version) and makes version the latest
// for that name. It reports whether anything was stored.
//
// Descriptors failing validation are logged and rejected with a
// *model.InvalidDescriptorError. Registering an existing key is a no-op and
// leaves the latest index untouched.
func (r *Registry) Register(d *model.Descriptor, version string) (bool, error) {
	if d == nil {
		registrationsTotal.WithLabelValues(outcomeRejected).Inc()
		return false, &model.InvalidDescriptorError{Reason: "nil descriptor"}
	}
	if err := d.Validate(); err != nil {
		registrationsTotal.WithLabelValues(outcomeRejected).Inc()
		r.logger.Warn("rejected model descriptor", "model", d.ShortName, "source", d.Source, "error", err)
		return false, err
	}
	if version == "" {
		registrationsTotal.WithLabelValues(outcomeRejected).Inc()
		err := &model.InvalidDescriptorError{Model: d.ShortName, Source: d.Source, Reason: "empty version"}
		r.logger.Warn("rejected model descriptor", "model", d.ShortName, "source", d.Source, "error", err)
		return false, err
	}

	key := Key{Name: d.ShortName, Version: version}
	stored := d.Clone()
	stored.Version = version

	r.mu.Lock()
	if _, ok := r.models[key]; ok {
		r.mu.Unlock()
		registrationsTotal.WithLabelValues(outcomeUnchanged).Inc()
		return false, nil
	}
	r.models[key] = stored
	r.latest[key.Name] = version
	r.mu.Unlock()

	registeredVersions.Inc()
	registrationsTotal.WithLabelValues(outcomeAdded).Inc()
	r.logger.Info("registered model", "model", key.Name, "version", key.Version, "source", d.Source)
	return true, nil
}

// Lookup returns the descriptor registered under (name, version). The
// returned descriptor is shared and must not be modified.
func (r *Registry) Lookup(name, version string) (*model.Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.models[Key{Name: name, Version: version}]
	if !ok {
		return nil, &UnknownModelError{Name: name, Version: version}
	}
	return d, nil
}

// LookupLatest returns the most recently registered version of name.
func (r *Registry) LookupLatest(name string) (*model.Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	version, ok := r.latest[name]
	if !ok {
		return nil, &UnknownModelError{Name: name}
	}
	return r.models[Key{Name: name, Version: version}], nil
}

// Has reports whether (name, version) is registered.
func (r *Registry) Has(name, version string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.models[Key{Name: name, Version: version}]
	return ok
}

// Names returns every registered model name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.latest))
	for name := range r.latest {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Versions returns every registered (name, version) pair, sorted by name and
// then version.
func (r *Registry) Versions() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]Key, 0, len(r.models))
	for k := range r.models {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}

// List returns one summary per model name, sorted by name for a stable API
// response.
func (r *Registry) List() []ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byName := make(map[string]*ModelInfo, len(r.latest))
	for k := range r.models {
		info, ok := byName[k.Name]
		if !ok {
			info = &ModelInfo{Name: k.Name, Latest: r.latest[k.Name]}
			byName[k.Name] = info
		}
		info.Versions = append(info.Versions, k.Version)
	}

	infos := make([]ModelInfo, 0, len(byName))
	for _, info := range byName {
		sort.Strings(info.Versions)
		infos = append(infos, *info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Len returns the number of registered (name, version) pairs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}

// Instantiate binds rec to the descriptor registered under
// (rec.ModelName, rec.ModelVersion). It fails with *UnknownModelError when the
// pair is not registered and with a *task.ParameterBindingError when a
// parameter does not bind; in both cases nothing is created on disk.
func (r *Registry) Instantiate(rec model.TaskRecord) (*task.Task, error) {
	d, err := r.Lookup(rec.ModelName, rec.ModelVersion)
	if err != nil {
		return nil, err
	}
	return task.New(d, rec, r.workRoot)
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Name != keys[j].Name {
			return keys[i].Name < keys[j].Name
		}
		return keys[i].Version < keys[j].Version
	})
}
