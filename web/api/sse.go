package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// Event is one server-pushed update on the /api/events stream
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// eventStream fans events out to connected SSE clients. Clients whose
// buffer is full are dropped instead of stalling the publisher.
type eventStream struct {
	mu      sync.Mutex
	clients map[chan Event]struct{}
}

func newEventStream() *eventStream {
	return &eventStream{clients: make(map[chan Event]struct{})}
}

func (es *eventStream) subscribe() chan Event {
	ch := make(chan Event, 8)
	es.mu.Lock()
	es.clients[ch] = struct{}{}
	es.mu.Unlock()
	return ch
}

func (es *eventStream) unsubscribe(ch chan Event) {
	es.mu.Lock()
	defer es.mu.Unlock()
	if _, ok := es.clients[ch]; ok {
		delete(es.clients, ch)
		close(ch)
	}
}

func (es *eventStream) publish(ev Event) {
	es.mu.Lock()
	defer es.mu.Unlock()
	for ch := range es.clients {
		select {
		case ch <- ev:
		default:
			delete(es.clients, ch)
			close(ch)
		}
	}
}

func (s *Server) eventsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		ch := s.events.subscribe()
		defer s.events.unsubscribe(ch)

		for {
			select {
			case <-r.Context().Done():
				return
			case ev, open := <-ch:
				if !open {
					return
				}
				data, err := json.Marshal(ev.Data)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
				flusher.Flush()
			}
		}
	}
}
