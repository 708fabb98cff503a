package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/mjchen/parley/internal/model/chat"
	"github.com/mjchen/parley/internal/model/persona"
	conversationService "github.com/mjchen/parley/internal/service/conversation"
	"github.com/mjchen/parley/internal/service/engine"
)

type stubStream struct {
	fragments []string
	final     string
	idx       int
}

func (s *stubStream) Recv() (engine.Fragment, error) {
	if s.idx < len(s.fragments) {
		fragment := s.fragments[s.idx]
		s.idx++
		return engine.Fragment{Text: fragment}, nil
	}
	return engine.Fragment{}, io.EOF
}

func (s *stubStream) Final() (string, error) { return s.final, nil }
func (s *stubStream) Close()                 {}

type stubEngine struct {
	mu      sync.Mutex
	streams []*stubStream
}

type stubSession struct {
	eng *stubEngine
}

func (s *stubSession) SendStreaming(_ context.Context, _ string) (engine.Stream, error) {
	s.eng.mu.Lock()
	defer s.eng.mu.Unlock()
	if len(s.eng.streams) == 0 {
		return &stubStream{}, nil
	}
	next := s.eng.streams[0]
	s.eng.streams = s.eng.streams[1:]
	return next, nil
}

func (e *stubEngine) CreateSession(_ context.Context, _ string, _ []chat.Turn) (engine.Session, error) {
	return &stubSession{eng: e}, nil
}

func (e *stubEngine) enqueue(streams ...*stubStream) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.streams = append(e.streams, streams...)
}

func setupRouter() (*chi.Mux, *conversationService.Manager, *stubEngine) {
	eng := &stubEngine{}
	manager := conversationService.NewManager(eng, persona.NewMemoryStore(persona.Seed()), nil)
	handler := New(manager)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, manager, eng
}

func decodeSnapshot(t *testing.T, body *bytes.Buffer) conversationService.Snapshot {
	t.Helper()
	var snapshot conversationService.Snapshot
	if err := json.NewDecoder(body).Decode(&snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return snapshot
}

func TestCreateConversationSeedsGreeting(t *testing.T) {
	r, _, _ := setupRouter()

	payload := []byte(`{"personaId":"study-mentor"}`)
	req := httptest.NewRequest(http.MethodPost, "/conversations", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}

	snapshot := decodeSnapshot(t, resp.Body)
	if snapshot.Persona.ID != "study-mentor" {
		t.Fatalf("expected persona study-mentor, got %s", snapshot.Persona.ID)
	}
	if len(snapshot.Turns) != 1 || snapshot.Turns[0].Text != snapshot.Persona.Greeting {
		t.Fatalf("greeting not seeded: %+v", snapshot.Turns)
	}

	cookies := resp.Result().Cookies()
	var found bool
	for _, cookie := range cookies {
		if cookie.Name == personaCookieName && cookie.Value == "study-mentor" {
			found = true
		}
	}
	if !found {
		t.Fatal("persona preference cookie not set")
	}
}

func TestCreateConversationReadsPreferenceCookie(t *testing.T) {
	r, _, _ := setupRouter()

	req := httptest.NewRequest(http.MethodPost, "/conversations", nil)
	req.AddCookie(&http.Cookie{Name: personaCookieName, Value: "listener"})
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}
	snapshot := decodeSnapshot(t, resp.Body)
	if snapshot.Persona.ID != "listener" {
		t.Fatalf("expected persona from cookie, got %s", snapshot.Persona.ID)
	}
}

func TestCreateConversationUnknownCookieFallsBack(t *testing.T) {
	r, _, _ := setupRouter()

	req := httptest.NewRequest(http.MethodPost, "/conversations", nil)
	req.AddCookie(&http.Cookie{Name: personaCookieName, Value: "gone"})
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	snapshot := decodeSnapshot(t, resp.Body)
	if snapshot.Persona.ID != "first-aid" {
		t.Fatalf("expected catalog default, got %s", snapshot.Persona.ID)
	}
}

func TestGetConversationNotFound(t *testing.T) {
	r, _, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/conversations/missing", nil)
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func sseEvents(t *testing.T, body string) []streamEvent {
	t.Helper()
	var events []streamEvent
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event streamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			t.Fatalf("unmarshal sse line %q: %v", line, err)
		}
		events = append(events, event)
	}
	return events
}

func TestSendMessageStreamsSSE(t *testing.T) {
	r, manager, eng := setupRouter()

	ctrl, err := manager.Create(context.Background(), "first-aid")
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}
	eng.enqueue(&stubStream{fragments: []string{"I ", "recommend ", "rest."}, final: "I recommend rest."})

	payload := []byte(`{"message":"I have a fever"}`)
	req := httptest.NewRequest(http.MethodPost, "/conversations/"+ctrl.ID()+"/messages", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if got := resp.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("expected SSE content type, got %q", got)
	}

	events := sseEvents(t, resp.Body.String())
	var deltas []string
	var message, end bool
	for _, event := range events {
		switch event.Event {
		case "delta":
			deltas = append(deltas, event.Content)
		case "message":
			message = true
			if event.Content != "I recommend rest." {
				t.Fatalf("unexpected final content: %q", event.Content)
			}
		case "end":
			end = event.Finished
		}
	}

	if len(deltas) != 3 || deltas[2] != "I recommend rest." {
		t.Fatalf("unexpected deltas: %v", deltas)
	}
	if !message || !end {
		t.Fatalf("missing message/end events: %+v", events)
	}
}

func TestSendMessageRequiresBody(t *testing.T) {
	r, manager, _ := setupRouter()

	ctrl, err := manager.Create(context.Background(), "first-aid")
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}

	payload := []byte(`{"message":"   "}`)
	req := httptest.NewRequest(http.MethodPost, "/conversations/"+ctrl.ID()+"/messages", bytes.NewReader(payload))
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestSwitchPersonaEndpoint(t *testing.T) {
	r, manager, _ := setupRouter()

	ctrl, err := manager.Create(context.Background(), "first-aid")
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}

	payload := []byte(`{"personaId":"listener"}`)
	req := httptest.NewRequest(http.MethodPut, "/conversations/"+ctrl.ID()+"/persona", bytes.NewReader(payload))
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	snapshot := decodeSnapshot(t, resp.Body)
	if snapshot.Persona.ID != "listener" {
		t.Fatalf("expected persona listener, got %s", snapshot.Persona.ID)
	}
}

func TestSwitchPersonaUnknown(t *testing.T) {
	r, manager, _ := setupRouter()

	ctrl, err := manager.Create(context.Background(), "first-aid")
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}

	payload := []byte(`{"personaId":"ghost"}`)
	req := httptest.NewRequest(http.MethodPut, "/conversations/"+ctrl.ID()+"/persona", bytes.NewReader(payload))
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestResetEndpoint(t *testing.T) {
	r, manager, eng := setupRouter()

	ctrl, err := manager.Create(context.Background(), "first-aid")
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}
	eng.enqueue(&stubStream{fragments: []string{"reply"}, final: "reply"})
	if _, err := ctrl.Submit(context.Background(), "hello", nil); err != nil {
		t.Fatalf("Submit err: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/conversations/"+ctrl.ID()+"/reset", nil)
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	snapshot := decodeSnapshot(t, resp.Body)
	if len(snapshot.Turns) != 1 || snapshot.Turns[0].Text != snapshot.Persona.Greeting {
		t.Fatalf("reset did not restore greeting state: %+v", snapshot.Turns)
	}
}

func TestDismissErrorEndpoint(t *testing.T) {
	r, manager, _ := setupRouter()

	ctrl, err := manager.Create(context.Background(), "first-aid")
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/conversations/"+ctrl.ID()+"/error", nil)
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if ctrl.LastError() != "" {
		t.Fatal("error not dismissed")
	}
}
