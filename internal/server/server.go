// Package server is the HTTP surface: the OpenAI-compatible chat
// completions endpoint plus the model listing, session operations, and
// health probe around it.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/user/agentgate/internal/agent"
	"github.com/user/agentgate/internal/assemble"
	"github.com/user/agentgate/internal/config"
	"github.com/user/agentgate/internal/normalize"
	"github.com/user/agentgate/internal/session"
	"github.com/user/agentgate/internal/types"
	"github.com/user/agentgate/pkg/oai"
)

// Server wires the pipeline behind the HTTP handlers.
type Server struct {
	cfg        *config.Config
	sessions   *session.Manager
	normalizer *normalize.Normalizer
	invoker    agent.Invoker
	assembler  *assemble.Assembler
	inflight   *semaphore.Weighted
	logger     *slog.Logger
	httpServer *http.Server
}

// New creates a Server. MaxConcurrent bounds the number of runtime
// invocations in flight; requests beyond it are rejected, not queued.
func New(cfg *config.Config, sessions *session.Manager, normalizer *normalize.Normalizer, invoker agent.Invoker, assembler *assemble.Assembler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	max := int64(cfg.MaxConcurrent)
	if max <= 0 {
		max = 10
	}
	return &Server{
		cfg:        cfg,
		sessions:   sessions,
		normalizer: normalizer,
		invoker:    invoker,
		assembler:  assembler,
		inflight:   semaphore.NewWeighted(max),
		logger:     logger,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /v1/chat/completions", s.handleChat)
	mux.HandleFunc("GET /v1/models", s.handleModels)
	mux.HandleFunc("GET /v1/sessions", s.handleSessionList)
	mux.HandleFunc("GET /v1/sessions/stats", s.handleSessionStats)
	mux.HandleFunc("GET /v1/sessions/{key}", s.handleSessionGet)
	mux.HandleFunc("DELETE /v1/sessions/{key}", s.handleSessionDelete)

	return s.withAuth(mux)
}

// Start begins serving on the configured address. It blocks until the
// listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.cfg.Listen,
		Handler: s.Handler(),
	}
	s.logger.Info("http server listening", "addr", s.cfg.Listen)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// withAuth enforces the bearer API key when one is configured. The
// health probe stays open so orchestrators can check liveness without
// credentials.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey == "" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.APIKey)) != 1 {
			s.writeError(w, types.NewError(types.KindAuthentication, "invalid or missing API key"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "agentgate"})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	list := oai.ModelList{Object: oai.ObjectList, Data: make([]oai.Model, 0, len(s.cfg.Models))}
	for _, id := range s.cfg.Models {
		list.Data = append(list.Data, oai.Model{ID: id, Object: oai.ObjectModel, OwnedBy: "anthropic"})
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleSessionList(w http.ResponseWriter, r *http.Request) {
	sessions := s.sessions.List()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

func (s *Server) handleSessionStats(w http.ResponseWriter, r *http.Request) {
	stats := s.sessions.Stats()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"session_stats":       stats,
		"default_ttl_seconds": s.cfg.SessionTTLSeconds,
	})
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	key := types.SessionKey(r.PathValue("key"))
	sum := s.sessions.Get(key)
	if sum == nil {
		s.writeError(w, types.NewError(types.KindSessionNotFound, "session %s not found", key))
		return
	}
	s.writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	key := types.SessionKey(r.PathValue("key"))
	if !s.sessions.Delete(key) {
		s.writeError(w, types.NewError(types.KindSessionNotFound, "session %s not found", key))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Session %s deleted successfully", key),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("write response", "error", err)
		return err
	}
	return nil
}

// writeError renders an error as the OpenAI envelope with the stable
// kind in the code field.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := types.KindOf(err)
	status := types.HTTPStatus(kind)

	msg := err.Error()
	var classified *types.Error
	if errors.As(err, &classified) {
		msg = classified.Message
	}

	s.writeJSON(w, status, oai.ErrorResponse{Error: oai.ErrorDetail{
		Message: msg,
		Type:    errorType(status),
		Code:    string(kind),
	}})
}

func errorType(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return "authentication_error"
	case status == http.StatusNotFound:
		return "not_found_error"
	case status >= 400 && status < 500:
		return "invalid_request_error"
	default:
		return "api_error"
	}
}
