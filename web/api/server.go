package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prospectra/outreach-orchestrator/internal/domain"
	"github.com/prospectra/outreach-orchestrator/internal/quota"
	"github.com/prospectra/outreach-orchestrator/internal/store"
	"github.com/prospectra/outreach-orchestrator/internal/worker"
)

// Store is the slice of the database the API reads
type Store interface {
	CountTasksByStatus(ctx context.Context) (map[domain.TaskStatus]int, error)
	CountProspectsByStatus(ctx context.Context, accountID int64) (map[domain.ProspectStatus]int, error)
	PendingValidations(ctx context.Context, accountID int64) ([]*domain.ActionLogEntry, error)
	DailyMetrics(ctx context.Context, day time.Time) ([]store.MetricRow, error)
}

// Validator applies human decisions to validation-gated entries.
// Approve reports whether the entry went out immediately; Reject
// reports the prospect's rejection count and whether it closed them.
type Validator interface {
	Approve(ctx context.Context, actionID int64, modifiedContent string) (bool, error)
	Reject(ctx context.Context, actionID int64, reason, category string) (int, bool, error)
}

// QuotaReader reports today's quota usage
type QuotaReader interface {
	Overview(ctx context.Context, accountID int64) ([]quota.Status, error)
}

// Workers is the supervisor surface the API controls. Start takes no
// context: loops run on the supervisor's own lifetime, not the request's.
type Workers interface {
	Status() []worker.LoopStatus
	Start(name string) error
	Stop(name string) error
}

// Server is the HTTP API server
type Server struct {
	store     Store
	validator Validator
	quota     QuotaReader
	workers   Workers
	accountID int64
	addr      string
	loc       *time.Location
	mux       *http.ServeMux
	events    *eventStream
}

// NewServer creates a new API server
func NewServer(st Store, validator Validator, qr QuotaReader, workers Workers,
	accountID int64, addr string, loc *time.Location) *Server {

	if loc == nil {
		loc = time.UTC
	}
	s := &Server{
		store:     st,
		validator: validator,
		quota:     qr,
		workers:   workers,
		accountID: accountID,
		addr:      addr,
		loc:       loc,
		mux:       http.NewServeMux(),
		events:    newEventStream(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/status", s.statusHandler())
	s.mux.HandleFunc("/api/metrics", s.metricsHandler())
	s.mux.HandleFunc("/api/workers", s.listWorkersHandler())
	s.mux.HandleFunc("/api/workers/", s.workerActionHandler())
	s.mux.HandleFunc("/api/validations", s.listValidationsHandler())
	s.mux.HandleFunc("/api/validations/", s.validationActionHandler())
	s.mux.HandleFunc("/api/events", s.eventsHandler())
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return http.ListenAndServe(s.addr, s.mux)
}

// Handler exposes the routed mux, used by tests and embedding servers
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Broadcast pushes an event to every connected SSE client
func (s *Server) Broadcast(ev Event) {
	s.events.publish(ev)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
