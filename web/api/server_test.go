package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prospectra/outreach-orchestrator/internal/domain"
	"github.com/prospectra/outreach-orchestrator/internal/store"
)

type mockStore struct {
	tasks       map[domain.TaskStatus]int
	prospects   map[domain.ProspectStatus]int
	validations []*domain.ActionLogEntry
	metrics     []store.MetricRow
}

func (m *mockStore) CountTasksByStatus(ctx context.Context) (map[domain.TaskStatus]int, error) {
	return m.tasks, nil
}

func (m *mockStore) CountProspectsByStatus(ctx context.Context, accountID int64) (map[domain.ProspectStatus]int, error) {
	return m.prospects, nil
}

func (m *mockStore) PendingValidations(ctx context.Context, accountID int64) ([]*domain.ActionLogEntry, error) {
	return m.validations, nil
}

func (m *mockStore) DailyMetrics(ctx context.Context, day time.Time) ([]store.MetricRow, error) {
	return m.metrics, nil
}

type mockValidator struct {
	approved map[int64]string
	rejected map[int64]string

	executed       bool
	rejectionCount int
	autoClosed     bool
}

func (m *mockValidator) Approve(ctx context.Context, id int64, content string) (bool, error) {
	m.approved[id] = content
	return m.executed, nil
}

func (m *mockValidator) Reject(ctx context.Context, id int64, reason, category string) (int, bool, error) {
	m.rejected[id] = reason + "/" + category
	return m.rejectionCount, m.autoClosed, nil
}

func newTestServer(st Store, v Validator) *Server {
	return NewServer(st, v, nil, nil, 1, ":0", time.UTC)
}

func TestEventStreamDropsSlowClients(t *testing.T) {
	es := newEventStream()
	fast := es.subscribe()
	slow := es.subscribe()

	// fill the slow client's buffer while the fast one keeps up
	for i := 0; i < 8; i++ {
		es.publish(Event{Type: "tick", Data: i})
		<-fast
	}
	es.publish(Event{Type: "tick", Data: 8})

	if got := <-fast; got.Type != "tick" {
		t.Errorf("fast client got %+v", got)
	}
	// the overflowing publish closed the slow client
	n := 0
	for range slow {
		n++
	}
	if n != 8 {
		t.Errorf("slow client drained %d buffered events, want 8", n)
	}

	es.unsubscribe(fast)
	es.unsubscribe(fast) // second unsubscribe is a no-op
}

func TestStatusHandler(t *testing.T) {
	st := &mockStore{
		tasks:     map[domain.TaskStatus]int{domain.TaskPending: 3, domain.TaskCompleted: 7},
		prospects: map[domain.ProspectStatus]int{domain.ProspectConnected: 12},
	}
	server := newTestServer(st, nil)

	req := httptest.NewRequest("GET", "/api/status", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp StatusResponse
	json.NewDecoder(w.Body).Decode(&resp)

	if resp.Tasks["pending"] != 3 || resp.Tasks["completed"] != 7 {
		t.Errorf("task counts = %v", resp.Tasks)
	}
	if resp.Prospects["connected"] != 12 {
		t.Errorf("prospect counts = %v", resp.Prospects)
	}
}

func TestListValidationsHandler(t *testing.T) {
	pid := int64(4)
	payload, _ := json.Marshal(domain.ActionPayload{Content: "Bonjour !", ScheduledAt: time.Now()})
	st := &mockStore{
		validations: []*domain.ActionLogEntry{{
			ID: 9, ProspectID: &pid, Action: domain.ActionFollowupProposed,
			Source: domain.SourceLLM, Payload: payload, CreatedAt: time.Now(),
		}},
	}
	server := newTestServer(st, nil)

	req := httptest.NewRequest("GET", "/api/validations", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	var resp []ValidationResponse
	json.NewDecoder(w.Body).Decode(&resp)

	if len(resp) != 1 {
		t.Fatalf("validation count = %d, want 1", len(resp))
	}
	if resp[0].ID != 9 || resp[0].ProspectID != 4 {
		t.Errorf("validation = %+v", resp[0])
	}
	if resp[0].Content != "Bonjour !" {
		t.Errorf("content = %q", resp[0].Content)
	}
}

func TestApproveHandler(t *testing.T) {
	v := &mockValidator{approved: map[int64]string{}, rejected: map[int64]string{}, executed: true}
	server := newTestServer(&mockStore{}, v)

	body := strings.NewReader(`{"content": "version corrigée"}`)
	req := httptest.NewRequest("POST", "/api/validations/42/approve", body)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if v.approved[42] != "version corrigée" {
		t.Errorf("approved = %v", v.approved)
	}

	var resp struct {
		Status   string `json:"status"`
		Executed bool   `json:"executed"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Status != "approved" || !resp.Executed {
		t.Errorf("response = %+v", resp)
	}
}

func TestRejectHandler(t *testing.T) {
	v := &mockValidator{approved: map[int64]string{}, rejected: map[int64]string{},
		rejectionCount: 3, autoClosed: true}
	server := newTestServer(&mockStore{}, v)

	body := strings.NewReader(`{"reason": "off brand", "category": "tone"}`)
	req := httptest.NewRequest("POST", "/api/validations/42/reject", body)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if v.rejected[42] != "off brand/tone" {
		t.Errorf("rejected = %v", v.rejected)
	}

	var resp struct {
		Status         string `json:"status"`
		RejectionCount int    `json:"rejection_count"`
		AutoClosed     bool   `json:"auto_closed"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Status != "rejected" || resp.RejectionCount != 3 || !resp.AutoClosed {
		t.Errorf("response = %+v", resp)
	}
}

func TestValidationActionBadRequests(t *testing.T) {
	v := &mockValidator{approved: map[int64]string{}, rejected: map[int64]string{}}
	server := newTestServer(&mockStore{}, v)

	cases := []struct {
		method, path string
		want         int
	}{
		{"GET", "/api/validations/42/approve", http.StatusMethodNotAllowed},
		{"POST", "/api/validations/abc/approve", http.StatusBadRequest},
		{"POST", "/api/validations/42/frobnicate", http.StatusBadRequest},
	}
	for _, c := range cases {
		req := httptest.NewRequest(c.method, c.path, nil)
		w := httptest.NewRecorder()
		server.Handler().ServeHTTP(w, req)
		if w.Code != c.want {
			t.Errorf("%s %s = %d, want %d", c.method, c.path, w.Code, c.want)
		}
	}
	if len(v.approved)+len(v.rejected) != 0 {
		t.Error("bad requests reached the validator")
	}
}
