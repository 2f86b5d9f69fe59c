package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/seantiz/modeld/internal/model"
)

func TestListModels(t *testing.T) {
	srv := newTestServer(t)
	if _, err := srv.registry.Register(testDescriptor(time.Millisecond), "v2"); err != nil {
		t.Fatalf("Register v2: %v", err)
	}

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/models")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var body listModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if len(body.Models) != 1 {
		t.Fatalf("got %d models, want 1", len(body.Models))
	}
	m := body.Models[0]
	if m.Name != "erosion" || m.Latest != "v2" || len(m.Versions) != 2 {
		t.Errorf("model = %+v, want erosion with latest v2 and two versions", m)
	}
}

func TestGetModel(t *testing.T) {
	srv := newTestServer(t)
	if _, err := srv.registry.Register(testDescriptor(time.Millisecond), "v2"); err != nil {
		t.Fatalf("Register v2: %v", err)
	}

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	tests := []struct {
		path        string
		wantStatus  int
		wantVersion string
	}{
		{"/v1/models/erosion", http.StatusOK, "v2"},
		{"/v1/models/erosion/versions/v1", http.StatusOK, "v1"},
		{"/v1/models/erosion/versions/v9", http.StatusNotFound, ""},
		{"/v1/models/unknown", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(ts.URL + tt.path)
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantVersion == "" {
				return
			}

			var d model.Descriptor
			if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if d.Version != tt.wantVersion {
				t.Errorf("version = %q, want %q", d.Version, tt.wantVersion)
			}
			if len(d.Parameters) != 2 {
				t.Errorf("got %d parameters, want 2", len(d.Parameters))
			}
		})
	}
}
