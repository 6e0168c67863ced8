package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BTreeMap/CastPipe/internal/farcaster"
	"github.com/BTreeMap/CastPipe/internal/models"
	"github.com/BTreeMap/CastPipe/internal/trace"
)

// maxWebhookBody bounds webhook payload reads.
const maxWebhookBody = 1 << 20

// healthHandler handles GET /
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{
		"service": "CastPipe",
		"status":  "ok",
	}))
}

// keepaliveHandler handles GET /keepalive, the target of the self-ping that
// keeps free-tier hosting from idling the process.
func (s *Server) keepaliveHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("alive", nil))
}

// pollHandler handles GET|POST /poll by running one poll pass inline and
// reporting its outcome. An overlapping pass yields skipped=true.
func (s *Server) pollHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	slog.Debug("Server.pollHandler: manual poll triggered")
	res := s.poller.Poll(r.Context())
	writeJSONResponse(w, http.StatusOK, models.Success(res))
}

// webhookHandler handles POST /webhook. Events that mention the bot are
// dispatched in the background; the provider gets an immediate 200 either
// way so it never retries on our processing latency.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		slog.Warn("Server.webhookHandler: body read failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Failed to read request body"))
		return
	}
	if !json.Valid(body) {
		slog.Warn("Server.webhookHandler: invalid JSON payload")
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	if !farcaster.MentionsFID(body, s.botFID) {
		slog.Debug("Server.webhookHandler: event does not mention bot, ignoring")
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("ignored", nil))
		return
	}
	m := farcaster.NormalizeMention(body)
	if m.ID == "" {
		slog.Warn("Server.webhookHandler: mention event without cast id, ignoring")
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("ignored", nil))
		return
	}

	// Detach from the request context: the reply outlives this response.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.dispatcher.Dispatch(ctx, m); err != nil {
			slog.Error("Server.webhookHandler: dispatch failed", "error", err, "id", m.ID)
		}
	}()

	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("accepted", map[string]string{"id": m.ID}))
}

// tracesHandler handles GET /traces?limit=N
func (s *Server) tracesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid limit parameter"))
			return
		}
		limit = n
	}
	entries := []trace.Entry{}
	if s.tracer != nil {
		entries = s.tracer.Recent(limit)
	}
	writeJSONResponse(w, http.StatusOK, models.Success(entries))
}

// pollIntervalHandler handles GET|PUT|DELETE /admin/poll-interval. The
// endpoint is disabled entirely when no admin token is configured.
func (s *Server) pollIntervalHandler(w http.ResponseWriter, r *http.Request) {
	if s.adminToken == "" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Not found"))
		return
	}
	if r.Header.Get("X-Admin-Token") != s.adminToken {
		slog.Warn("Server.pollIntervalHandler: bad admin token", "method", r.Method)
		writeJSONResponse(w, http.StatusUnauthorized, models.Error("Unauthorized"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getPollInterval(w, r)
	case http.MethodPut:
		s.putPollInterval(w, r)
	case http.MethodDelete:
		s.deletePollInterval(w, r)
	default:
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	}
}

func (s *Server) getPollInterval(w http.ResponseWriter, r *http.Request) {
	override, ok, err := s.st.PollIntervalOverride(r.Context())
	if err != nil {
		slog.Error("Server.getPollInterval: store read failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read poll interval"))
		return
	}
	payload := map[string]interface{}{
		"effective_ms": s.poller.EffectiveInterval(r.Context()).Milliseconds(),
	}
	if ok {
		payload["override_ms"] = override.Milliseconds()
	}
	writeJSONResponse(w, http.StatusOK, models.Success(payload))
}

// putPollInterval accepts {"interval_ms": N} to install an override or
// {"interval_ms": "default"} to fall back to the configured default.
func (s *Server) putPollInterval(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IntervalMs json.RawMessage `json:"interval_ms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.IntervalMs) == 0 {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	var sentinel string
	if err := json.Unmarshal(req.IntervalMs, &sentinel); err == nil {
		if sentinel != "default" {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(`interval_ms must be a positive number or "default"`))
			return
		}
		if err := s.st.ClearPollIntervalOverride(r.Context()); err != nil {
			slog.Error("Server.putPollInterval: clear failed", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to clear poll interval override"))
			return
		}
		slog.Info("Server.putPollInterval: override cleared")
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Poll interval reset to default", nil))
		return
	}

	var ms int64
	if err := json.Unmarshal(req.IntervalMs, &ms); err != nil || ms <= 0 {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(`interval_ms must be a positive number or "default"`))
		return
	}
	if err := s.st.SetPollIntervalOverride(r.Context(), time.Duration(ms)*time.Millisecond); err != nil {
		slog.Error("Server.putPollInterval: store write failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to set poll interval override"))
		return
	}
	slog.Info("Server.putPollInterval: override set", "interval_ms", ms)
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"override_ms":  ms,
		"effective_ms": s.poller.EffectiveInterval(r.Context()).Milliseconds(),
	}))
}

func (s *Server) deletePollInterval(w http.ResponseWriter, r *http.Request) {
	if err := s.st.ClearPollIntervalOverride(r.Context()); err != nil {
		slog.Error("Server.deletePollInterval: clear failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to clear poll interval override"))
		return
	}
	slog.Info("Server.deletePollInterval: override cleared")
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Poll interval reset to default", nil))
}
