package api

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/qnet-project/qnet-core/internal/errs"
	qlog "github.com/qnet-project/qnet-core/internal/log"
)

// maxBodySize bounds the size of an inbound JSON body (spec §6: "Body
// size bounded").
const maxBodySize = 1 << 20 // 1 MiB

// Handler is the application surface the HTTP server dispatches to. A
// production Node implements this; tests supply a fake.
type Handler interface {
	Height(ctx context.Context) uint64
	Microblock(ctx context.Context, height uint64) ([]byte, bool)
	Peers(ctx context.Context) []PeerAddress
	// RespondToChallenge signs challengeHex with the node's own envelope
	// key, proving identity to the peer that issued it (spec §4.4
	// admission challenge-response).
	RespondToChallenge(ctx context.Context, challengeHex string) (sigHex, pubKeyHex string, err error)
	HandleMessage(ctx context.Context, msg NetworkMessage) error
	Healthy(ctx context.Context) bool
}

// PeerAddress is one entry in the GET /api/v1/peers response.
type PeerAddress struct {
	Address string `json:"address"`
}

// ChallengeRequest is the body of POST /api/v1/auth/challenge.
type ChallengeRequest struct {
	Challenge       string `json:"challenge"`
	Timestamp       int64  `json:"timestamp"`
	ProtocolVersion uint32 `json:"protocol_version"`
}

// ChallengeResponse answers a completed admission challenge.
type ChallengeResponse struct {
	Signature string `json:"signature"`
	PublicKey string `json:"public_key"`
}

// Server is the plain-HTTP peer surface on port 8001 (spec §6).
type Server struct {
	handler Handler
	server  *http.Server
	logger  zerolog.Logger
}

// New builds a Server bound to addr, dispatching to handler.
func New(addr string, handler Handler) *Server {
	s := &Server{handler: handler, logger: qlog.WithComponent("api")}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/p2p/message", s.handleP2PMessage)
	mux.HandleFunc("GET /api/v1/height", s.handleHeight)
	mux.HandleFunc("GET /api/v1/microblock/{h}", s.handleMicroblock)
	mux.HandleFunc("GET /api/v1/peers", s.handlePeers)
	mux.HandleFunc("POST /api/v1/auth/challenge", s.handleAuthChallenge)
	mux.HandleFunc("GET /api/v1/node/health", s.handleHealth)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           withRequestID(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// withRequestID tags every inbound request with a fresh UUID, echoed back
// in the X-Request-Id response header so a peer's logs and this node's
// logs can be correlated for the same exchange.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe blocks serving HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleP2PMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	var msg NetworkMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		s.writeError(w, errs.Wrap(errs.InvalidFormat, "malformed network message body", err))
		return
	}
	if err := msg.Validate(); err != nil {
		s.writeError(w, errs.Wrap(errs.InvalidFormat, "network message failed validation", err))
		return
	}
	if err := s.handler.HandleMessage(r.Context(), msg); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleHeight(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]uint64{"height": s.handler.Height(r.Context())})
}

func (s *Server) handleMicroblock(w http.ResponseWriter, r *http.Request) {
	h, err := strconv.ParseUint(r.PathValue("h"), 10, 64)
	if err != nil {
		s.writeError(w, errs.Wrap(errs.InvalidFormat, "height must be a non-negative integer", err))
		return
	}
	data, ok := s.handler.Microblock(r.Context(), h)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"data": base64.StdEncoding.EncodeToString(data)})
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]PeerAddress{"peers": s.handler.Peers(r.Context())})
}

func (s *Server) handleAuthChallenge(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	var req ChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errs.Wrap(errs.InvalidFormat, "malformed challenge request", err))
		return
	}
	if _, err := hex.DecodeString(req.Challenge); err != nil {
		s.writeError(w, errs.Wrap(errs.InvalidFormat, "challenge must be hex-encoded", err))
		return
	}
	if delta := time.Now().Unix() - req.Timestamp; delta < -30 {
		s.writeError(w, errs.New(errs.FutureTimestamp, "challenge timestamp is too far in the future"))
		return
	}

	sigHex, pubKeyHex, err := s.handler.RespondToChallenge(r.Context(), req.Challenge)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ChallengeResponse{Signature: sigHex, PublicKey: pubKeyHex})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.handler.Healthy(r.Context()) {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind, _ := errs.KindOf(err)
	s.logger.Warn().Err(err).Str("kind", string(kind)).Msg("api request failed")
	body := errs.BodyFor(err)
	writeJSON(w, errs.HTTPStatus(kind), body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
