package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSendMessage_PostsToP2PEndpoint(t *testing.T) {
	var gotPath string
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	addr := strings.TrimPrefix(srv.URL, "http://")
	err := SendMessage(context.Background(), addr, []byte(`{"type":"HealthPing"}`))
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if gotPath != "/api/v1/p2p/message" {
		t.Errorf("path = %q, want /api/v1/p2p/message", gotPath)
	}
	if gotBody != `{"type":"HealthPing"}` {
		t.Errorf("body = %q", gotBody)
	}
}

func TestSendMessage_ReturnsErrorOnNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	addr := strings.TrimPrefix(srv.URL, "http://")
	if err := SendMessage(context.Background(), addr, []byte(`{}`)); err == nil {
		t.Error("expected an error for a rejected peer response")
	}
}
