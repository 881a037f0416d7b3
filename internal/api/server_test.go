package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeHandler struct {
	height     uint64
	microblock map[uint64][]byte
	peers      []PeerAddress
	healthy    bool
	lastMsg    *NetworkMessage
}

func (f *fakeHandler) Height(ctx context.Context) uint64 { return f.height }

func (f *fakeHandler) Microblock(ctx context.Context, height uint64) ([]byte, bool) {
	data, ok := f.microblock[height]
	return data, ok
}

func (f *fakeHandler) Peers(ctx context.Context) []PeerAddress { return f.peers }

func (f *fakeHandler) RespondToChallenge(ctx context.Context, challengeHex string) (string, string, error) {
	return "deadbeef", "feedface", nil
}

func (f *fakeHandler) HandleMessage(ctx context.Context, msg NetworkMessage) error {
	f.lastMsg = &msg
	return nil
}

func (f *fakeHandler) Healthy(ctx context.Context) bool { return f.healthy }

func newTestServer() (*Server, *fakeHandler) {
	h := &fakeHandler{microblock: make(map[uint64][]byte), healthy: true}
	return New("127.0.0.1:0", h), h
}

func TestServer_Height(t *testing.T) {
	s, h := newTestServer()
	h.height = 42

	req := httptest.NewRequest(http.MethodGet, "/api/v1/height", nil)
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]uint64
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["height"] != 42 {
		t.Errorf("height = %d, want 42", body["height"])
	}
}

func TestServer_Microblock_Found(t *testing.T) {
	s, h := newTestServer()
	h.microblock[7] = []byte("hello")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/microblock/7", nil)
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestServer_Microblock_NotFound(t *testing.T) {
	s, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/microblock/99", nil)
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestServer_Microblock_InvalidHeight(t *testing.T) {
	s, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/microblock/not-a-number", nil)
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestServer_Peers(t *testing.T) {
	s, h := newTestServer()
	h.peers = []PeerAddress{{Address: "1.2.3.4:8001"}}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/peers", nil)
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)

	var body map[string][]PeerAddress
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body["peers"]) != 1 || body["peers"][0].Address != "1.2.3.4:8001" {
		t.Errorf("peers = %v", body["peers"])
	}
}

func TestServer_P2PMessage_Accepted(t *testing.T) {
	s, h := newTestServer()
	msg := NetworkMessage{Type: MsgHealthPing, HealthPing: &HealthPingPayload{From: "n1", Timestamp: 1}}
	raw, _ := json.Marshal(msg)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/p2p/message", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if h.lastMsg == nil || h.lastMsg.Type != MsgHealthPing {
		t.Error("expected handler to receive the decoded message")
	}
}

func TestServer_P2PMessage_RejectsMalformed(t *testing.T) {
	s, _ := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/p2p/message", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestServer_AuthChallenge(t *testing.T) {
	s, _ := newTestServer()
	body, _ := json.Marshal(ChallengeRequest{Challenge: "deadbeef", Timestamp: 0, ProtocolVersion: 1})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/challenge", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp ChallengeResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Signature != "deadbeef" || resp.PublicKey != "feedface" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestServer_Health(t *testing.T) {
	s, h := newTestServer()
	h.healthy = false

	req := httptest.NewRequest(http.MethodGet, "/api/v1/node/health", nil)
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
