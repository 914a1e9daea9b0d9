package social

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestListConnectionsStopsAtCutoff(t *testing.T) {
	now := time.Now().UTC()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/users/relations" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-API-KEY") != "key-1" {
			t.Errorf("missing api key header")
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"items": []map[string]interface{}{
				{"member_id": "m1", "public_identifier": "jane-doe", "first_name": "Jane",
					"last_name": "Doe", "headline": "Head of Growth",
					"created_at": now.Add(-time.Hour).UnixMilli()},
				{"member_id": "m2", "public_identifier": "old-one", "first_name": "Old",
					"created_at": now.AddDate(0, 0, -60).UnixMilli()},
			},
			"cursor": "next",
		})
	}))
	defer srv.Close()

	c := NewUnipileClient(srv.URL, "key-1", "acc-1")
	conns, err := c.ListConnections(context.Background(), now.AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("ListConnections: %v", err)
	}

	// the second item predates the cutoff, so pagination stops there
	if len(conns) != 1 {
		t.Fatalf("got %d connections, want 1", len(conns))
	}
	if conns[0].Identifier != "jane-doe" || conns[0].AttendeeID != "m1" {
		t.Errorf("connection = %+v", conns[0])
	}
}

func TestListMessagesOldestFirst(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"items": []map[string]interface{}{
				{"id": "m2", "chat_id": "c1", "text": "reply",
					"timestamp": now.Format(time.RFC3339), "is_sender": 1},
				{"id": "m1", "chat_id": "c1", "text": "hello",
					"timestamp": now.Add(-time.Minute).Format(time.RFC3339), "is_sender": 0},
			},
		})
	}))
	defer srv.Close()

	c := NewUnipileClient(srv.URL, "k", "acc-1")
	msgs, err := c.ListMessages(context.Background(), "c1")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Errorf("messages not oldest first: %s, %s", msgs[0].ID, msgs[1].ID)
	}
	if msgs[0].FromSelf || !msgs[1].FromSelf {
		t.Error("is_sender not mapped")
	}
}

func TestSendMessageReturnsID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["text"] != "Bonjour !" {
			t.Errorf("text = %q", body["text"])
		}
		json.NewEncoder(w).Encode(map[string]string{"message_id": "msg-9"})
	}))
	defer srv.Close()

	c := NewUnipileClient(srv.URL, "k", "acc-1")
	id, err := c.SendMessage(context.Background(), "c1", "Bonjour !")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if id != "msg-9" {
		t.Errorf("message id = %q", id)
	}
}

func TestStartChatAddressesAttendee(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/chats" || r.Method != http.MethodPost {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var body struct {
			AccountID string   `json:"account_id"`
			Attendees []string `json:"attendees_ids"`
			Text      string   `json:"text"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.AccountID != "acc-1" || len(body.Attendees) != 1 || body.Attendees[0] != "att-7" {
			t.Errorf("body = %+v", body)
		}
		json.NewEncoder(w).Encode(map[string]string{"message_id": "msg-1"})
	}))
	defer srv.Close()

	c := NewUnipileClient(srv.URL, "k", "acc-1")
	id, err := c.StartChat(context.Background(), "att-7", "Bonjour !")
	if err != nil {
		t.Fatalf("StartChat: %v", err)
	}
	if id != "msg-1" {
		t.Errorf("message id = %q", id)
	}
}

func TestErrorsAreClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewUnipileClient(srv.URL, "k", "acc-1")
	_, err := c.SendMessage(context.Background(), "c1", "x")
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("429 classified as %v, want ErrRateLimited", err)
	}
	if !Retryable(err) {
		t.Error("rate limited error not retryable")
	}
}

func TestDSNSchemeNormalized(t *testing.T) {
	c := NewUnipileClient("api.example.com", "k", "acc-1")
	if c.baseURL != "https://api.example.com" {
		t.Errorf("baseURL = %q", c.baseURL)
	}
	c = NewUnipileClient("http://localhost:9000/", "k", "acc-1")
	if c.baseURL != "http://localhost:9000" {
		t.Errorf("baseURL = %q", c.baseURL)
	}
}
