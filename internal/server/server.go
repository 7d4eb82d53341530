// Package server exposes the bridge over the JSON HTTP API polled by the
// web chat client, and optionally serves the client's static files.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/edgard/webcord/internal/bridge"
)

const maxBodyBytes = 1 << 20

// Bridge is the part of the message bridge the HTTP layer consumes.
type Bridge interface {
	ValidatePassword(password string) bool
	Snapshot(ctx context.Context, password string) (bridge.Snapshot, error)
	SubmitWebMessage(ctx context.Context, author, content, password string, replyTo *bridge.ReplyRef) (bridge.Message, error)
	SetTyping(ctx context.Context, username, password string, isTyping bool) error
	PurgeBotMessages(password string) (int, error)
}

// Options configures the HTTP server.
type Options struct {
	Addr            string
	StaticDir       string
	ShutdownTimeout time.Duration
}

// Server is the HTTP front for the bridge.
type Server struct {
	log    *slog.Logger
	bridge Bridge
	opts   Options
	http   *http.Server
}

// New builds the router and the underlying http.Server. Rate limits follow
// the web client's polling contract: validate-password once per 2s, typing
// once per 4s, send and purge once per 1s, all keyed by client IP.
func New(b Bridge, opts Options, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		log:    log.With("component", "server"),
		bridge: b,
		opts:   opts,
	}

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/validate-password", s.limited(2*time.Second, s.handleValidatePassword)).Methods(http.MethodPost)
	api.HandleFunc("/messages", s.handleMessages).Methods(http.MethodPost)
	api.HandleFunc("/typing", s.limited(4*time.Second, s.handleTyping)).Methods(http.MethodPost)
	api.HandleFunc("/send", s.limited(time.Second, s.handleSend)).Methods(http.MethodPost)
	api.HandleFunc("/purge-bot-messages", s.limited(time.Second, s.handlePurge)).Methods(http.MethodPost)

	if opts.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(opts.StaticDir)))
	}

	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the root handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("listening", "addr", s.opts.Addr)
		if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

type passwordRequest struct {
	Password string `json:"password"`
}

type typingRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	IsTyping bool   `json:"isTyping"`
}

type sendRequest struct {
	Message  string        `json:"message"`
	Username string        `json:"username"`
	Password string        `json:"password"`
	ReplyTo  *sendReplyRef `json:"replyTo"`
}

type sendReplyRef struct {
	ID      string `json:"id"`
	Author  string `json:"author"`
	Content string `json:"content"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleValidatePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{
		"valid": s.bridge.ValidatePassword(req.Password),
	})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if !s.decode(w, r, &req) {
		return
	}
	snap, err := s.bridge.Snapshot(r.Context(), req.Password)
	if err != nil {
		s.writeBridgeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleTyping(w http.ResponseWriter, r *http.Request) {
	var req typingRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.bridge.SetTyping(r.Context(), req.Username, req.Password, req.IsTyping); err != nil {
		s.writeBridgeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if !s.decode(w, r, &req) {
		return
	}

	var replyTo *bridge.ReplyRef
	if req.ReplyTo != nil {
		replyTo = &bridge.ReplyRef{
			ID:      req.ReplyTo.ID,
			Author:  req.ReplyTo.Author,
			Content: req.ReplyTo.Content,
		}
	}

	msg, err := s.bridge.SubmitWebMessage(r.Context(), req.Username, req.Message, req.Password, replyTo)
	if err != nil {
		s.writeBridgeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": msg,
	})
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if !s.decode(w, r, &req) {
		return
	}
	removed, err := s.bridge.PurgeBotMessages(req.Password)
	if err != nil {
		s.writeBridgeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"removedCount": removed,
		"message":      fmt.Sprintf("Removed %d bot message(s)", removed),
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func (s *Server) writeBridgeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, bridge.ErrUnauthorized):
		s.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid password"})
	case errors.Is(err, bridge.ErrEmptyMessage):
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message cannot be empty"})
	case errors.Is(err, bridge.ErrChannelNotFound):
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "destination channel not found"})
	default:
		s.log.Error("request failed", "error", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to encode response", "error", err)
	}
}
