package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prospectra/outreach-orchestrator/internal/domain"
	"github.com/prospectra/outreach-orchestrator/internal/quota"
)

// StatusResponse is the API response for overall status
type StatusResponse struct {
	Tasks     map[string]int `json:"tasks"`
	Prospects map[string]int `json:"prospects"`
	Quota     []quota.Status `json:"quota"`
}

// ValidationResponse is the API response for a pending validation
type ValidationResponse struct {
	ID          int64  `json:"id"`
	ProspectID  int64  `json:"prospect_id,omitempty"`
	Action      string `json:"action"`
	Source      string `json:"source"`
	Content     string `json:"content,omitempty"`
	Reason      string `json:"reason,omitempty"`
	ScheduledAt string `json:"scheduled_at,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func validationToResponse(e *domain.ActionLogEntry) ValidationResponse {
	resp := ValidationResponse{
		ID:        e.ID,
		Action:    string(e.Action),
		Source:    string(e.Source),
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
	if e.ProspectID != nil {
		resp.ProspectID = *e.ProspectID
	}
	if p, err := e.DecodePayload(); err == nil {
		resp.Content = p.Content
		if resp.Content == "" {
			resp.Content = p.Reply
		}
		resp.Reason = p.Reason
		if !p.ScheduledAt.IsZero() {
			resp.ScheduledAt = p.ScheduledAt.Format(time.RFC3339)
		}
	}
	return resp
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		tasks, err := s.store.CountTasksByStatus(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		prospects, err := s.store.CountProspectsByStatus(r.Context(), s.accountID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		resp := StatusResponse{
			Tasks:     map[string]int{},
			Prospects: map[string]int{},
		}
		for status, n := range tasks {
			resp.Tasks[string(status)] = n
		}
		for status, n := range prospects {
			resp.Prospects[string(status)] = n
		}
		if s.quota != nil {
			overview, err := s.quota.Overview(r.Context(), s.accountID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			resp.Quota = overview
		}

		writeJSON(w, resp)
	}
}

func (s *Server) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		rows, err := s.store.DailyMetrics(r.Context(), time.Now().In(s.loc))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, rows)
	}
}

func (s *Server) listWorkersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		if s.workers == nil {
			writeJSON(w, []interface{}{})
			return
		}
		writeJSON(w, s.workers.Status())
	}
}

// workerActionHandler handles /api/workers/{name}/start and /stop
func (s *Server) workerActionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if s.workers == nil {
			writeError(w, http.StatusServiceUnavailable, "workers not available")
			return
		}

		path := strings.TrimPrefix(r.URL.Path, "/api/workers/")
		name, op, ok := strings.Cut(path, "/")
		if !ok || name == "" {
			writeError(w, http.StatusBadRequest, "worker name and action required")
			return
		}

		var err error
		var status string
		switch op {
		case "start":
			err = s.workers.Start(name)
			status = "started"
		case "stop":
			err = s.workers.Stop(name)
			status = "stopped"
		default:
			writeError(w, http.StatusBadRequest, "unknown action "+op)
			return
		}
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}

		s.Broadcast(Event{Type: "worker_update", Data: s.workers.Status()})
		writeJSON(w, map[string]string{"status": status})
	}
}

func (s *Server) listValidationsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		entries, err := s.store.PendingValidations(r.Context(), s.accountID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		resp := make([]ValidationResponse, 0, len(entries))
		for _, e := range entries {
			resp = append(resp, validationToResponse(e))
		}
		writeJSON(w, resp)
	}
}

// validationActionHandler handles /api/validations/{id}/approve and /reject
func (s *Server) validationActionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if s.validator == nil {
			writeError(w, http.StatusServiceUnavailable, "validator not available")
			return
		}

		path := strings.TrimPrefix(r.URL.Path, "/api/validations/")
		rawID, op, ok := strings.Cut(path, "/")
		if !ok || rawID == "" {
			writeError(w, http.StatusBadRequest, "validation id and action required")
			return
		}
		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid validation id")
			return
		}

		var body struct {
			Content  string `json:"content"`
			Reason   string `json:"reason"`
			Category string `json:"category"`
		}
		if r.Body != nil {
			// empty bodies are fine; decisions need no payload
			_ = json.NewDecoder(r.Body).Decode(&body)
		}

		var resp map[string]interface{}
		switch op {
		case "approve":
			sent, err := s.validator.Approve(r.Context(), id, body.Content)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			resp = map[string]interface{}{"status": "approved", "executed": sent}
		case "reject":
			count, closed, err := s.validator.Reject(r.Context(), id, body.Reason, body.Category)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			resp = map[string]interface{}{
				"status": "rejected", "rejection_count": count, "auto_closed": closed,
			}
		default:
			writeError(w, http.StatusBadRequest, "unknown action "+op)
			return
		}

		s.Broadcast(Event{Type: "validation_update", Data: map[string]interface{}{
			"id": id, "decision": op,
		}})
		writeJSON(w, resp)
	}
}
