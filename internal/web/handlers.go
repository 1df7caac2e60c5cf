package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/user/portage/internal/model"
	"github.com/user/portage/internal/plan"
)

type probeRequest struct {
	Connection model.ConnectionConfig `json:"connection"`
}

type scanRequest struct {
	Connection model.ConnectionConfig   `json:"connection"`
	Limits     model.ScanLimits         `json:"limits"`
	Options    model.ScanOptions        `json:"options"`
	Exclusions []model.ExclusionPattern `json:"exclusions,omitempty"`
}

type planRequest struct {
	Scan        model.ScanResult       `json:"scan_result"`
	SourceProbe model.ProbeResult      `json:"source_probe"`
	DestProbe   model.ProbeResult      `json:"dest_probe"`
	Source      model.ConnectionConfig `json:"source"`
	Dest        model.ConnectionConfig `json:"dest"`
}

type transferRequest struct {
	Method  model.TransferMethod   `json:"method"`
	Source  model.ConnectionConfig `json:"source"`
	Dest    model.ConnectionConfig `json:"dest"`
	Options model.TransferOptions  `json:"options"`
}

type jobCreated struct {
	JobID string `json:"job_id"`
}

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, msg string) {
	s.writeJSON(w, status, apiError{Error: msg, Code: code})
}

// jobError maps orchestrator sentinels to HTTP statuses.
func (s *Server) jobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrJobNotFound):
		s.writeError(w, http.StatusNotFound, "job_not_found", err.Error())
	case errors.Is(err, model.ErrInvalidTransition):
		s.writeError(w, http.StatusConflict, "invalid_job_transition", err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleProbe runs a capability probe synchronously. Expected failures
// (unreachable host, bad credentials) come back as a 200 with
// success=false; only malformed requests are 4xx.
func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is allowed")
		return
	}
	var req probeRequest
	if !s.decode(w, r, &req) {
		return
	}
	res := s.prober.Probe(r.Context(), req.Connection)
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is allowed")
		return
	}
	var req scanRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, err := s.orch.StartScan(req.Connection, req.Limits, req.Options, req.Exclusions)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, jobCreated{JobID: id})
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is allowed")
		return
	}
	var req planRequest
	if !s.decode(w, r, &req) {
		return
	}
	res := plan.Plan(req.Scan, req.SourceProbe, req.DestProbe, req.Source, req.Dest)
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStartTransfer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is allowed")
		return
	}
	var req transferRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, err := s.orch.StartTransfer(req.Method, req.Source, req.Dest, req.Options)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, jobCreated{JobID: id})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only GET is allowed")
		return
	}
	filter := model.JobStatus(r.URL.Query().Get("status"))
	if r.URL.Query().Get("active") == "true" {
		s.writeJSON(w, http.StatusOK, s.orch.ListActive())
		return
	}
	s.writeJSON(w, http.StatusOK, s.orch.List(filter))
}

// handleJob routes /api/jobs/{id} and its subresources.
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "bad_request", "missing job id")
		return
	}

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			j, err := s.orch.Get(id)
			if err != nil {
				s.jobError(w, err)
				return
			}
			s.writeJSON(w, http.StatusOK, j)
		case http.MethodDelete:
			if err := s.orch.Delete(id); err != nil {
				s.jobError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only GET and DELETE are allowed")
		}
	case "cancel":
		s.jobAction(w, r, s.orch.Cancel, id)
	case "pause":
		s.jobAction(w, r, s.orch.Pause, id)
	case "resume":
		s.jobAction(w, r, s.orch.Resume, id)
	case "events":
		s.handleEvents(w, r, id)
	default:
		s.writeError(w, http.StatusNotFound, "not_found", "unknown job action "+action)
	}
}

func (s *Server) jobAction(w http.ResponseWriter, r *http.Request, fn func(string) error, id string) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is allowed")
		return
	}
	if err := fn(id); err != nil {
		s.jobError(w, err)
		return
	}
	j, err := s.orch.Get(id)
	if err != nil {
		s.jobError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, j)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only GET is allowed")
		return
	}
	if s.history == nil {
		s.writeError(w, http.StatusServiceUnavailable, "history_disabled", "history store is not configured")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		limit = n
	}
	sums, err := s.history.Recent(limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, sums)
}
