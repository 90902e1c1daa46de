package voiceflow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(Config{
		APIKey:    "VF.test.key",
		VersionID: "development",
		BaseURL:   baseURL,
		Backoff:   time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestInteractSendsExpectedRequest(t *testing.T) {
	var gotPath, gotAuth, gotVersion string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotAuth = r.Header.Get("Authorization")
		gotVersion = r.Header.Get("versionID")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`[{"type":"text","payload":{"message":"hi there"}}]`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	traces, err := c.Interact(context.Background(), "user 42", TextAction("hello"), InteractOptions{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("Interact: %v", err)
	}

	if gotPath != "/state/user/user%2042/interact" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "VF.test.key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotVersion != "development" {
		t.Errorf("versionID = %q", gotVersion)
	}

	action := gotBody["action"].(map[string]any)
	if action["type"] != "text" || action["payload"] != "hello" {
		t.Errorf("action = %v", action)
	}
	cfg := gotBody["config"].(map[string]any)
	if cfg["tts"] != false {
		t.Errorf("tts = %v, want explicit false", cfg["tts"])
	}
	if cfg["stripSSML"] != true {
		t.Errorf("stripSSML = %v", cfg["stripSSML"])
	}
	if cfg["sessionID"] != "sess-1" {
		t.Errorf("sessionID = %v", cfg["sessionID"])
	}

	if len(traces) != 1 || traces[0].Type != TraceText || traces[0].Payload.Message != "hi there" {
		t.Errorf("traces = %+v", traces)
	}
}

func TestInteractRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[{"type":"text","payload":{"message":"recovered"}}]`))
	}))
	defer srv.Close()

	var retries atomic.Int32
	c := newTestClient(t, srv.URL)
	c.onRetry = func(int) { retries.Add(1) }

	traces, err := c.Interact(context.Background(), "u1", TextAction("hi"), InteractOptions{})
	if err != nil {
		t.Fatalf("Interact: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	if retries.Load() != 2 {
		t.Errorf("retries = %d, want 2", retries.Load())
	}
	if len(traces) != 1 || traces[0].Payload.Message != "recovered" {
		t.Errorf("traces = %+v", traces)
	}
}

func TestInteractExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if _, err := c.Interact(context.Background(), "u1", TextAction("hi"), InteractOptions{}); err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestInteractEmptyBodyIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK) // 200 with no body
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if _, err := c.Interact(context.Background(), "u1", TextAction("hi"), InteractOptions{}); err == nil {
		t.Fatal("expected error for empty bodies")
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestPatchVariables(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if err := c.PatchVariables(context.Background(), "u1", "u1-1700000000000"); err != nil {
		t.Fatalf("PatchVariables: %v", err)
	}
	if gotMethod != http.MethodPatch {
		t.Errorf("method = %q", gotMethod)
	}
	if gotPath != "/state/user/u1/variables" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody["user_id"] != "u1" || gotBody["restart"] != true || gotBody["sessionID"] != "u1-1700000000000" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestButtonRequestHelpers(t *testing.T) {
	path := ButtonRequest{Type: "path-book_now"}
	if tag, ok := path.PathTag(); !ok || tag != "book_now" {
		t.Errorf("PathTag = %q, %v", tag, ok)
	}

	intent := ButtonRequest{Type: "fallback", Payload: ButtonRequestPayload{Intent: &IntentRef{Name: "greet"}}}
	if got := intent.IntentName(); got != "greet" {
		t.Errorf("IntentName = %q", got)
	}
	if _, ok := intent.PathTag(); ok {
		t.Error("intent request should not be a path")
	}
}
