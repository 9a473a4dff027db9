package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/user/agentgate/internal/agent"
	"github.com/user/agentgate/internal/assemble"
	"github.com/user/agentgate/internal/normalize"
	"github.com/user/agentgate/internal/types"
	"github.com/user/agentgate/pkg/oai"
)

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if !s.inflight.TryAcquire(1) {
		s.writeJSON(w, http.StatusTooManyRequests, oai.ErrorResponse{Error: oai.ErrorDetail{
			Message: "too many requests in flight, retry shortly",
			Type:    "rate_limit_error",
			Code:    "rate_limited",
		}})
		return
	}
	defer s.inflight.Release(1)

	var req oai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, types.WrapError(types.KindValidation, err, "malformed request body"))
		return
	}

	norm, err := s.normalizer.Normalize(&req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	id := types.NewRequestID()
	logger := s.logger.With("request", string(id), "model", req.Model, "session", string(norm.SessionKey))
	logger.Info("chat completion", "stream", req.Stream, "messages", len(norm.Desc.Messages), "tools", len(norm.Desc.Tools))

	stream, err := s.invoker.Invoke(r.Context(), norm.Desc)
	if err != nil {
		logger.Error("runtime invocation failed", "error", err)
		s.writeError(w, err)
		return
	}

	if req.Stream {
		s.streamChat(w, r, id, norm, stream, logger)
		return
	}

	completed, err := s.assembler.Collect(r.Context(), stream, norm.Translator, norm.Desc)
	if err != nil {
		logger.Error("assembly failed", "error", err)
		s.writeError(w, err)
		return
	}

	// Persist only once the response has been handed to the transport;
	// the caller must never be missing a turn the session remembers.
	if err := s.writeJSON(w, http.StatusOK, completed.Completion(id, req.Model, time.Now())); err != nil {
		logger.Warn("response not delivered, turn not persisted", "error", err)
		return
	}
	s.persistTurn(norm.SessionKey, completed, norm.NewMessages, logger)
}

// streamChat emits the response as server-sent events. The turn is
// persisted only after the full chunk sequence went out; a disconnect
// mid-stream leaves the session without a partial turn.
func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, id types.RequestID, norm *normalize.Normalized, stream agent.EventStream, logger *slog.Logger) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, types.NewError(types.KindRuntimeProtocol, "streaming unsupported by connection"))
		stream.Close()
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	emit := func(chunk *oai.ChatCompletionChunk) error {
		data, err := json.Marshal(chunk)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	completed, err := s.assembler.Stream(r.Context(), stream, norm.Translator, norm.Desc, id, emit)
	if err != nil {
		// Headers are gone; nothing useful can be sent beyond the
		// best-effort stop chunk the assembler already attempted.
		logger.Warn("stream aborted", "error", err)
		return
	}

	if _, err := fmt.Fprintf(w, "data: %s\n\n", oai.Done); err == nil {
		flusher.Flush()
	}

	s.persistTurn(norm.SessionKey, completed, norm.NewMessages, logger)
}

// persistTurn appends the completed exchange to the session. A stateless
// request persists nothing. Losing the eviction race gets one retry
// against a freshly created session.
func (s *Server) persistTurn(key types.SessionKey, completed *assemble.Completed, newMessages []oai.Message, logger *slog.Logger) {
	if key == "" {
		return
	}
	turn := types.Turn{
		Messages:    newMessages,
		Response:    completed.Message(),
		ToolResults: completed.ToolResults,
		Usage:       completed.Usage,
		CostUSD:     completed.CostUSD,
		At:          time.Now(),
	}

	s.sessions.GetOrCreate(key)
	err := s.sessions.AppendTurn(key, turn)
	if err != nil && types.KindOf(err) == types.KindSessionNotFound {
		s.sessions.GetOrCreate(key)
		err = s.sessions.AppendTurn(key, turn)
	}
	if err != nil {
		logger.Error("persist turn", "error", err)
	}
}
