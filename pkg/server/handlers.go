package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatsync/pkg/auth"
	"github.com/go-go-golems/chatsync/pkg/chat"
	"github.com/go-go-golems/chatsync/pkg/dispatch"
	"github.com/go-go-golems/chatsync/pkg/store"
)

const maxBodyBytes = 64 << 10

func (s *Server) registerHTTPHandlers() {
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.mux.HandleFunc("POST /api/auth/signup", s.handleSignUp)
	s.mux.HandleFunc("POST /api/auth/signin", s.handleSignIn)
	s.mux.HandleFunc("POST /api/auth/signout", s.handleSignOut)
	s.mux.HandleFunc("POST /api/messages/{uid}", s.handlePush)
	s.mux.HandleFunc("GET /ws/messages/{uid}", s.handleWS)
	s.mux.HandleFunc("POST /api/message", s.handleReplyRequest)
	s.mux.HandleFunc("GET /api/products", s.handleListProducts)
	s.mux.HandleFunc("GET /api/products/search", s.handleSearchProducts)
	s.mux.HandleFunc("GET /api/products/{id}", s.handleGetProduct)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, reason string) {
	writeJSON(w, status, auth.ErrorResponse{Error: msg, Reason: reason})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, "invalid json body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// authorize resolves the bearer token and checks it against the uid in the path or body.
// It writes the error response itself and returns false on failure.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, uid string) (chat.Identity, bool) {
	id, ok := s.tokens.Resolve(bearerToken(r))
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing or invalid token", "")
		return chat.NoIdentity, false
	}
	if uid != string(id) {
		writeError(w, http.StatusForbidden, "identity mismatch", "")
		return chat.NoIdentity, false
	}
	return id, true
}

func statusForAuthError(err error) (int, string) {
	var ae *chat.AuthError
	if !errors.As(err, &ae) {
		return http.StatusInternalServerError, ""
	}
	switch ae.Reason {
	case chat.AuthDuplicateAccount:
		return http.StatusConflict, string(ae.Reason)
	case chat.AuthInvalidCredential:
		return http.StatusUnauthorized, string(ae.Reason)
	case chat.AuthInvalidInput:
		return http.StatusBadRequest, string(ae.Reason)
	default:
		return http.StatusServiceUnavailable, string(ae.Reason)
	}
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	s.handleCredentials(w, r, s.accounts.Register)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	s.handleCredentials(w, r, s.accounts.Verify)
}

func (s *Server) handleCredentials(w http.ResponseWriter, r *http.Request, check func(ctx context.Context, email, password string) (chat.Identity, error)) {
	var c auth.Credentials
	if err := decodeJSON(w, r, &c); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), string(chat.AuthInvalidInput))
		return
	}
	id, err := check(r.Context(), c.Email, c.Password)
	if err != nil {
		status, reason := statusForAuthError(err)
		writeError(w, status, err.Error(), reason)
		return
	}
	writeJSON(w, http.StatusOK, auth.SessionResponse{UID: string(id), Token: s.tokens.Issue(id)})
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if tok := bearerToken(r); tok != "" {
		s.tokens.Revoke(tok)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	id, ok := s.authorize(w, r, r.PathValue("uid"))
	if !ok {
		return
	}
	var req store.PushRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	// clients write as the user; bot entries come from the replier only
	if chat.Author(req.User) != chat.AuthorUser {
		writeError(w, http.StatusBadRequest, "user must be \"User\"", "")
		return
	}
	e := store.Entry{Text: req.Text, Author: chat.AuthorUser}
	if err := e.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	key, err := s.store.Push(r.Context(), id, e)
	if err != nil {
		log.Error().Err(err).Str("component", "server").Str("identity", string(id)).Msg("push failed")
		writeError(w, http.StatusInternalServerError, "push failed", "")
		return
	}
	writeJSON(w, http.StatusOK, store.PushResponse{Key: key})
}

func (s *Server) handleReplyRequest(w http.ResponseWriter, r *http.Request) {
	var req dispatch.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "missing text", "")
		return
	}
	id, ok := s.authorize(w, r, req.UserID)
	if !ok {
		return
	}
	if !s.replier.Enqueue(id, req.Text) {
		writeError(w, http.StatusServiceUnavailable, "reply queue is full", "")
		return
	}
	writeJSON(w, http.StatusAccepted, dispatch.Accepted{Status: "accepted"})
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.List())
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := s.catalog.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "product not found", "")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleSearchProducts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.Search(r.URL.Query().Get("q")))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id, ok := s.authorize(w, r, r.PathValue("uid"))
	if !ok {
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	watchers, err := s.hub.Attach(id, conn)
	if err != nil {
		log.Error().Err(err).Str("component", "server").Str("identity", string(id)).Msg("ws attach failed")
		_ = conn.WriteMessage(websocket.TextMessage, store.EncodeErrorFrame("failed to subscribe"))
		_ = conn.Close()
		return
	}
	log.Debug().Str("component", "server").Str("identity", string(id)).Msg("ws connected")

	// the client never sends frames; reading only detects the disconnect
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	watchers.Leave(conn)
	log.Debug().Str("component", "server").Str("identity", string(id)).Msg("ws disconnected")
}
