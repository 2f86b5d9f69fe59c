package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/modeld/internal/registry"
)

// listModelsResponse is the JSON response for GET /v1/models.
type listModelsResponse struct {
	Models []registry.ModelInfo `json:"models"`
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, listModelsResponse{Models: s.registry.List()})
}

func (s *Server) handleGetLatestModel(w http.ResponseWriter, r *http.Request) {
	d, err := s.registry.LookupLatest(chi.URLParam(r, "name"))
	if errors.Is(err, registry.ErrUnknownModel) {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("lookup latest model", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to look up model")
		return
	}

	s.writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleGetModelVersion(w http.ResponseWriter, r *http.Request) {
	d, err := s.registry.Lookup(chi.URLParam(r, "name"), chi.URLParam(r, "version"))
	if errors.Is(err, registry.ErrUnknownModel) {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("lookup model", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to look up model")
		return
	}

	s.writeJSON(w, http.StatusOK, d)
}
