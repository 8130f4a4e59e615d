// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package httpserver wires the evaluation endpoint, the agent-card and
// health endpoints, and the request-tracing middleware into a chi
// router.
package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/qte77/RDI-AgentBeats-TestBehaveAlign/internal/artifact"
	"github.com/qte77/RDI-AgentBeats-TestBehaveAlign/internal/evaluator"
	"github.com/qte77/RDI-AgentBeats-TestBehaveAlign/internal/model"
	"github.com/qte77/RDI-AgentBeats-TestBehaveAlign/internal/tracing"
)

// agentCard is the static discovery document served at
// /.well-known/agent-card.json.
type agentCard struct {
	Name               string         `json:"name"`
	Description        string         `json:"description"`
	URL                string         `json:"url"`
	Version            string         `json:"version"`
	Capabilities       map[string]any `json:"capabilities"`
	Skills             []any          `json:"skills"`
	DefaultInputModes  []string       `json:"defaultInputModes"`
	DefaultOutputModes []string       `json:"defaultOutputModes"`
}

// evaluateRequest is the minimal stand-in for the agent-protocol
// message:send body this server recognizes: a JSON object carrying the
// participant id and the Purple agent's base URL.
type evaluateRequest struct {
	ParticipantID string `json:"participant_id"`
	PurpleBaseURL string `json:"purple_base_url"`
}

type statusEvent struct {
	Status string `json:"status"`
}

// Server exposes the Green Agent's HTTP surface.
type Server struct {
	Settings model.Settings
	SelfURL  string
	NewEval  func(model.Settings) *evaluator.Evaluator
	mux      *chi.Mux
}

// New builds a Server and its router. newEval is injected so tests can
// substitute a fake evaluator; production callers pass evaluator.New.
func New(settings model.Settings, selfURL string, newEval func(model.Settings) *evaluator.Evaluator) *Server {
	s := &Server{Settings: settings, SelfURL: selfURL, NewEval: newEval}
	s.mux = s.router()
	return s
}

// ServeHTTP makes Server usable directly as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(tracing.Middleware)

	r.Get("/.well-known/agent-card.json", s.handleAgentCard)
	r.Get("/health", s.handleHealth)
	r.Post("/evaluate", s.handleEvaluate)

	return r
}

func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	card := agentCard{
		Name:        "Green Agent",
		Description: "Scores Purple Agent's generated tests by fault detection and mutation kill rate.",
		URL:         s.SelfURL,
		Version:     "0.0.0",
		Capabilities: map[string]any{
			"streaming": false,
		},
		Skills:             []any{},
		DefaultInputModes:  []string{"text"},
		DefaultOutputModes: []string{"text"},
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleEvaluate runs a full evaluation and streams back an artifact
// event followed by a terminal status event. A failure anywhere outside
// the per-task loop, or cooperative cancellation cutting the loop short,
// yields a "failed" terminal status instead of "completed"; the
// evaluator guarantees Purple-client cleanup either way.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	participantID := strings.TrimSpace(req.ParticipantID)
	if participantID == "" {
		participantID = "unknown"
	}

	eval := s.NewEval(s.Settings)

	ctx := r.Context()
	result, err := eval.Run(ctx, req.PurpleBaseURL, participantID)
	switch {
	case errors.Is(err, evaluator.ErrCancelled):
		slog.Warn("evaluation cancelled", "error", err)
		s.emitStream(w, &result, "failed")
	case err != nil:
		slog.Error("evaluation failed", "error", err)
		s.emitStream(w, nil, "failed")
	default:
		s.emitStream(w, &result, "completed")
	}
}

// emitStream writes the artifact event (when present) followed by the
// terminal status event, each as a newline-delimited JSON object, the
// transport-neutral stand-in for the agent-protocol event stream this
// module does not implement.
func (s *Server) emitStream(w http.ResponseWriter, result *model.ResultEnvelope, status string) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	if result != nil {
		raw, err := artifact.Marshal(*result)
		if err != nil {
			slog.Error("failed to marshal result artifact", "error", err)
			status = "failed"
		} else {
			w.Write(raw)
			w.Write([]byte("\n"))
		}
	}
	enc.Encode(statusEvent{Status: status}) //nolint:errcheck
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
