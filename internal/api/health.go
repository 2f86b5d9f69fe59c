package api

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status   string      `json:"status"`
	Models   int         `json:"models"`
	Versions int         `json:"versions"`
	Scanner  *scanHealth `json:"scanner,omitempty"`
}

// scanHealth describes the most recent plugin directory scan.
type scanHealth struct {
	Running  bool       `json:"running"`
	LastScan *time.Time `json:"last_scan,omitempty"`
	Files    int        `json:"files"`
	Added    int        `json:"added"`
	Failures int        `json:"failures"`
	Rejected int        `json:"rejected"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:   "ok",
		Models:   len(s.registry.Names()),
		Versions: s.registry.Len(),
	}

	if s.scanner != nil {
		rep, at := s.scanner.LastReport()
		sh := &scanHealth{
			Running:  s.scanner.Running(),
			Files:    rep.Files,
			Added:    rep.Added,
			Failures: len(rep.Failures),
			Rejected: len(rep.Rejected),
		}
		if !at.IsZero() {
			sh.LastScan = &at
		}
		resp.Scanner = sh
	}

	s.writeJSON(w, http.StatusOK, resp)
}
