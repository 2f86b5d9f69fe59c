package registry

import (
	"errors"
	"os"
	"reflect"
	"slices"
	"testing"

	"github.com/seantiz/modeld/internal/model"
	"github.com/seantiz/modeld/internal/task"
)

func descriptor(name string) *model.Descriptor {
	return &model.Descriptor{
		ShortName: name,
		FullName:  "Model " + name,
		Parameters: []model.ParameterSpec{
			{Name: "rate", Label: "Rate", Unit: "mm/yr"},
		},
	}
}

func mustRegister(t *testing.T, r *Registry, d *model.Descriptor, version string) bool {
	t.Helper()
	added, err := r.Register(d, version)
	if err != nil {
		t.Fatalf("Register(%s, %s): %v", d.ShortName, version, err)
	}
	return added
}

func mustLookup(t *testing.T, r *Registry, name, version string) *model.Descriptor {
	t.Helper()
	d, err := r.Lookup(name, version)
	if err != nil {
		t.Fatalf("Lookup(%s, %s): %v", name, version, err)
	}
	return d
}

func mustLatest(t *testing.T, r *Registry, name string) *model.Descriptor {
	t.Helper()
	d, err := r.LookupLatest(name)
	if err != nil {
		t.Fatalf("LookupLatest(%s): %v", name, err)
	}
	return d
}

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry()

	if !mustRegister(t, r, descriptor("erosion"), "v1") {
		t.Error("first registration should report added")
	}

	d := mustLookup(t, r, "erosion", "v1")
	if d.ShortName != "erosion" {
		t.Errorf("ShortName = %q, want %q", d.ShortName, "erosion")
	}
	if d.Version != "v1" {
		t.Errorf("Version = %q, want %q", d.Version, "v1")
	}
	if !r.Has("erosion", "v1") {
		t.Error("Has(erosion, v1) = false")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, descriptor("erosion"), "v1")

	second := descriptor("erosion")
	second.FullName = "Replacement"
	if mustRegister(t, r, second, "v1") {
		t.Error("re-registering an existing key should not report added")
	}

	// An existing key is never replaced.
	if d := mustLookup(t, r, "erosion", "v1"); d.FullName != "Model erosion" {
		t.Errorf("FullName = %q, want %q", d.FullName, "Model erosion")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestLatestIsLastRegistered(t *testing.T) {
	r := NewRegistry()
	for _, v := range []string{"v2", "v1"} {
		mustRegister(t, r, descriptor("erosion"), v)
	}

	// Latest follows registration order, not version order.
	if d := mustLatest(t, r, "erosion"); d.Version != "v1" {
		t.Errorf("latest = %q, want v1", d.Version)
	}

	// Re-registering an existing key does not move latest.
	mustRegister(t, r, descriptor("erosion"), "v2")
	if d := mustLatest(t, r, "erosion"); d.Version != "v1" {
		t.Errorf("latest after re-register = %q, want v1", d.Version)
	}

	if old := mustLookup(t, r, "erosion", "v2"); old.Version != "v2" {
		t.Errorf("superseded version = %q, want v2", old.Version)
	}
}

func TestRegisterRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(d *model.Descriptor)
		version string
	}{
		{"missing short name", func(d *model.Descriptor) { d.ShortName = "" }, "v1"},
		{"missing full name", func(d *model.Descriptor) { d.FullName = "" }, "v1"},
		{"missing parameters", func(d *model.Descriptor) { d.Parameters = nil }, "v1"},
		{"empty version", func(*model.Descriptor) {}, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRegistry()
			d := descriptor("erosion")
			tc.mutate(d)

			added, err := r.Register(d, tc.version)
			if added {
				t.Error("invalid descriptor reported as added")
			}
			if !errors.Is(err, model.ErrInvalidDescriptor) {
				t.Errorf("Register() = %v, want ErrInvalidDescriptor", err)
			}
			if r.Len() != 0 || len(r.Names()) != 0 {
				t.Errorf("registry not empty: len=%d names=%v", r.Len(), r.Names())
			}
		})
	}

	if _, err := NewRegistry().Register(nil, "v1"); !errors.Is(err, model.ErrInvalidDescriptor) {
		t.Errorf("Register(nil) = %v, want ErrInvalidDescriptor", err)
	}
}

func TestRegisterCopiesDescriptor(t *testing.T) {
	r := NewRegistry()
	d := descriptor("erosion")
	mustRegister(t, r, d, "v1")

	d.Parameters[0].Name = "mutated"
	d.Version = "changed"

	got := mustLookup(t, r, "erosion", "v1")
	if got.Parameters[0].Name != "rate" {
		t.Errorf("parameter name = %q, want rate", got.Parameters[0].Name)
	}
	if got.Version != "v1" {
		t.Errorf("Version = %q, want v1", got.Version)
	}
}

func TestUnknownModel(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, descriptor("erosion"), "v1")

	_, err := r.Lookup("erosion", "v9")
	if !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("Lookup() = %v, want ErrUnknownModel", err)
	}
	var ume *UnknownModelError
	if !errors.As(err, &ume) {
		t.Fatalf("error is %T, want *UnknownModelError", err)
	}
	if ume.Name != "erosion" || ume.Version != "v9" {
		t.Errorf("UnknownModelError = %+v, want erosion/v9", ume)
	}

	if _, err := r.LookupLatest("glacier"); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("LookupLatest(glacier) = %v, want ErrUnknownModel", err)
	}
	if r.Has("glacier", "v1") {
		t.Error("Has(glacier, v1) = true")
	}
}

func TestListing(t *testing.T) {
	r := NewRegistry()
	for _, reg := range []struct{ name, version string }{
		{"erosion", "b"},
		{"erosion", "a"},
		{"deposition", "x"},
	} {
		mustRegister(t, r, descriptor(reg.name), reg.version)
	}

	if names := r.Names(); !slices.Equal(names, []string{"deposition", "erosion"}) {
		t.Errorf("Names() = %v", names)
	}

	wantKeys := []Key{
		{Name: "deposition", Version: "x"},
		{Name: "erosion", Version: "a"},
		{Name: "erosion", Version: "b"},
	}
	if keys := r.Versions(); !slices.Equal(keys, wantKeys) {
		t.Errorf("Versions() = %v, want %v", keys, wantKeys)
	}

	wantInfo := []ModelInfo{
		{Name: "deposition", Latest: "x", Versions: []string{"x"}},
		{Name: "erosion", Latest: "a", Versions: []string{"a", "b"}},
	}
	if info := r.List(); !reflect.DeepEqual(info, wantInfo) {
		t.Errorf("List() = %+v, want %+v", info, wantInfo)
	}
}

func TestInstantiate(t *testing.T) {
	root := t.TempDir()
	r := NewRegistry(WithWorkRoot(root))
	mustRegister(t, r, descriptor("erosion"), "v1")

	rec := model.TaskRecord{
		EmailAddress:    "someone@example.com",
		TaskID:          "t1",
		ModelName:       "erosion",
		ModelVersion:    "v1",
		ModelParameters: map[string]model.RawValue{"rate": "4.5"},
	}
	tk, err := r.Instantiate(rec)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	if tk.Model.Version != "v1" {
		t.Errorf("model version = %q, want v1", tk.Model.Version)
	}
	if rate, _ := tk.Value("rate"); rate != 4.5 {
		t.Errorf("rate = %v, want 4.5", rate)
	}

	rec.ModelVersion = "v2"
	if _, err := r.Instantiate(rec); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("Instantiate(v2) = %v, want ErrUnknownModel", err)
	}

	rec.ModelVersion = "v1"
	rec.ModelParameters = map[string]model.RawValue{"rate": "fast"}
	if _, err := r.Instantiate(rec); !errors.Is(err, task.ErrParameterBinding) {
		t.Errorf("Instantiate(rate=fast) = %v, want ErrParameterBinding", err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("instantiation touched the work root: %d entries", len(entries))
	}
}

func TestInstantiateUnknownParameterHasNoSideEffects(t *testing.T) {
	root := t.TempDir()
	r := NewRegistry(WithWorkRoot(root))
	mustRegister(t, r, descriptor("erosion"), "v1")

	_, err := r.Instantiate(model.TaskRecord{
		TaskID:          "t1",
		ModelName:       "erosion",
		ModelVersion:    "v1",
		ModelParameters: map[string]model.RawValue{"rate": "1", "depth": "2"},
	})
	var pbe *task.ParameterBindingError
	if !errors.As(err, &pbe) {
		t.Fatalf("Instantiate() = %v, want *ParameterBindingError", err)
	}
	if pbe.Parameter != "depth" {
		t.Errorf("Parameter = %q, want depth", pbe.Parameter)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("work root has %d entries, want 0", len(entries))
	}
}
