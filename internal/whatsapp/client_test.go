package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendMessage(t *testing.T) {
	var gotPath, gotAuth string
	var gotMsg Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotMsg)
		fmt.Fprint(w, `{"messaging_product":"whatsapp","contacts":[{"input":"15551234567","wa_id":"15551234567"}],"messages":[{"id":"wamid.out1"}]}`)
	}))
	defer srv.Close()

	c := NewClient("token-abc", "v17.0")
	c.SetBaseURL(srv.URL)

	resp, err := c.SendMessage(context.Background(), "pn-123", NewTextMessage("15551234567", "hello"))
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if gotPath != "/v17.0/pn-123/messages" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer token-abc" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotMsg.Type != "text" || gotMsg.Text == nil || gotMsg.Text.Body != "hello" {
		t.Errorf("message = %+v", gotMsg)
	}
	if !gotMsg.Text.PreviewURL {
		t.Error("PreviewURL should be enabled for text messages")
	}
	if len(resp.Messages) != 1 || resp.Messages[0].ID != "wamid.out1" {
		t.Errorf("response = %+v", resp)
	}
}

func TestSendMessageAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"Invalid parameter","type":"OAuthException","code":100,"fbtrace_id":"abc"}}`)
	}))
	defer srv.Close()

	c := NewClient("token-abc", "v17.0")
	c.SetBaseURL(srv.URL)

	_, err := c.SendMessage(context.Background(), "pn-123", NewTextMessage("15551234567", "hello"))
	if err == nil {
		t.Fatal("expected API error")
	}
}

func TestDownloadMedia(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/v17.0/media-1", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token-abc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprintf(w, `{"url":%q,"mime_type":"audio/ogg","file_size":4,"id":"media-1"}`, srv.URL+"/cdn/media-1")
	})
	mux.HandleFunc("/cdn/media-1", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token-abc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte("oggs"))
	})

	c := NewClient("token-abc", "v17.0")
	c.SetBaseURL(srv.URL)

	data, mimeType, err := c.DownloadMedia(context.Background(), "media-1")
	if err != nil {
		t.Fatalf("DownloadMedia: %v", err)
	}
	if string(data) != "oggs" {
		t.Errorf("data = %q", data)
	}
	if mimeType != "audio/ogg" {
		t.Errorf("mimeType = %q", mimeType)
	}
}

func TestProbeMediaSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method = %q, want HEAD", r.Method)
		}
		w.Header().Set("Content-Length", "2048")
	}))
	defer srv.Close()

	c := NewClient("token-abc", "v17.0")
	size, err := c.ProbeMediaSize(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("ProbeMediaSize: %v", err)
	}
	if size != 2048 {
		t.Errorf("size = %d, want 2048", size)
	}
}
