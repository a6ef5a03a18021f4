package apiserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/WLONEGI/Sol-LeWitt-sub000/internal/bus"
	"github.com/WLONEGI/Sol-LeWitt-sub000/internal/config"
	"github.com/WLONEGI/Sol-LeWitt-sub000/internal/session"
)

func newTestServer() *Server {
	cfg := &config.Config{ListenAddr: ":0", WSReadLimit: 1 << 20, WSPingSec: 30}
	registry := session.NewRegistry(session.Options{Coalesce: time.Millisecond}, bus.NewMessageBus())
	return New(cfg, registry, bus.NewMessageBus(), nil)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, w.Body.String())
	}
	if !envelope.Success {
		t.Fatalf("response not successful: %s", w.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
}

func TestIngestEventAndTimeline(t *testing.T) {
	s := newTestServer()

	if w := doJSON(t, s, http.MethodPost, "/api/threads/t1/turn/begin", nil); w.Code != http.StatusOK {
		t.Fatalf("turn/begin = %d, want 200", w.Code)
	}
	w := doJSON(t, s, http.MethodPost, "/api/threads/t1/events", map[string]any{
		"type": "visual-image",
		"data": map[string]any{"artifact_id": "d1", "slide_number": 1, "image_url": "u"},
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("events = %d, want 202", w.Code)
	}

	var items []map[string]any
	decodeData(t, doJSON(t, s, http.MethodGet, "/api/threads/t1/timeline", nil), &items)
	if len(items) != 1 {
		t.Fatalf("timeline = %d items, want 1", len(items))
	}
	if items[0]["id"] != "artifact-d1" {
		t.Fatalf("item id = %v, want artifact-d1", items[0]["id"])
	}
}

func TestUpsertMessageGeneratesID(t *testing.T) {
	s := newTestServer()
	var resp struct {
		MessageID string `json:"messageId"`
	}
	w := doJSON(t, s, http.MethodPost, "/api/threads/t1/messages", map[string]any{
		"role":  "user",
		"parts": []map[string]any{{"kind": "text", "text": "hello"}},
	})
	decodeData(t, w, &resp)
	if resp.MessageID == "" {
		t.Fatal("messageId not generated")
	}

	var items []map[string]any
	decodeData(t, doJSON(t, s, http.MethodGet, "/api/threads/t1/timeline", nil), &items)
	if len(items) != 1 || items[0]["text"] != "hello" {
		t.Fatalf("timeline = %+v, want one text run", items)
	}
}

func TestDeckProjectionEndpoint(t *testing.T) {
	s := newTestServer()
	doJSON(t, s, http.MethodPost, "/api/threads/t1/events", map[string]any{
		"type": "visual-pdf",
		"data": map[string]any{"artifact_id": "d1", "pdf_url": "p"},
	})

	var proj struct {
		ArtifactID string `json:"artifactId"`
		Status     string `json:"status"`
	}
	decodeData(t, doJSON(t, s, http.MethodGet, "/api/threads/t1/deck", nil), &proj)
	if proj.ArtifactID != "d1" || proj.Status != "completed" {
		t.Fatalf("projection = %+v, want d1 completed", proj)
	}
}

func TestResumeFromBodySnapshot(t *testing.T) {
	s := newTestServer()
	doJSON(t, s, http.MethodPost, "/api/threads/live/events", map[string]any{
		"type": "visual-image",
		"data": map[string]any{"artifact_id": "d1", "slide_number": 1, "image_url": "u"},
	})
	var snap json.RawMessage
	decodeData(t, doJSON(t, s, http.MethodPost, "/api/threads/live/snapshot", nil), &snap)

	var snapObj map[string]any
	if err := json.Unmarshal(snap, &snapObj); err != nil {
		t.Fatalf("snapshot payload: %v", err)
	}
	w := doJSON(t, s, http.MethodPost, "/api/threads/restored/resume",
		map[string]any{"snapshot": snapObj})
	if w.Code != http.StatusOK {
		t.Fatalf("resume = %d, want 200 (%s)", w.Code, w.Body.String())
	}

	var items []map[string]any
	decodeData(t, doJSON(t, s, http.MethodGet, "/api/threads/restored/timeline", nil), &items)
	if len(items) != 1 || items[0]["id"] != "artifact-d1" {
		t.Fatalf("restored timeline = %+v, want artifact-d1", items)
	}
}

func TestTimelineUnknownThread(t *testing.T) {
	s := newTestServer()
	if w := doJSON(t, s, http.MethodGet, "/api/threads/nope/timeline", nil); w.Code != http.StatusNotFound {
		t.Fatalf("code = %d, want 404", w.Code)
	}
}

func TestIngestRejectsMissingType(t *testing.T) {
	s := newTestServer()
	w := doJSON(t, s, http.MethodPost, "/api/threads/t1/events", map[string]any{
		"data": map[string]any{"x": 1},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, want 400", w.Code)
	}
}

func TestDeleteThreadClosesSession(t *testing.T) {
	s := newTestServer()
	doJSON(t, s, http.MethodPost, "/api/threads/t1/events", map[string]any{
		"type": "visual-plan", "data": map[string]any{"slide_number": 1},
	})
	if w := doJSON(t, s, http.MethodDelete, "/api/threads/t1", nil); w.Code != http.StatusOK {
		t.Fatalf("delete = %d, want 200", w.Code)
	}
	if w := doJSON(t, s, http.MethodGet, "/api/threads/t1/timeline", nil); w.Code != http.StatusNotFound {
		t.Fatalf("timeline after delete = %d, want 404", w.Code)
	}
}
