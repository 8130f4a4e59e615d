// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qte77/RDI-AgentBeats-TestBehaveAlign/internal/evaluator"
	"github.com/qte77/RDI-AgentBeats-TestBehaveAlign/internal/model"
)

func newTestServer() *Server {
	settings := model.Settings{Track: model.TrackTDD, TaskCount: 0, TimeoutPerTask: 5}
	return New(settings, "http://localhost:8080", evaluator.New)
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandleAgentCard(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/.well-known/agent-card.json", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var card agentCard
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &card))
	assert.Equal(t, "Green Agent", card.Name)
	assert.Equal(t, "http://localhost:8080", card.URL)
	assert.Equal(t, []string{"text"}, card.DefaultInputModes)
	assert.Equal(t, []string{"text"}, card.DefaultOutputModes)
}

func TestRequestIDHeaderIsDistinctPerRequest(t *testing.T) {
	s := newTestServer()

	req1 := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec1 := httptest.NewRecorder()
	s.ServeHTTP(rec1, req1)

	req2 := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec2 := httptest.NewRecorder()
	s.ServeHTTP(rec2, req2)

	id1 := rec1.Header().Get("X-Request-ID")
	id2 := rec2.Header().Get("X-Request-ID")
	assert.NotEmpty(t, id1)
	assert.NotEmpty(t, id2)
	assert.NotEqual(t, id1, id2)
}

func TestHandleEvaluate_ZeroTaskRunCompletes(t *testing.T) {
	s := newTestServer()

	body, err := json.Marshal(evaluateRequest{ParticipantID: "purple-1", PurpleBaseURL: "http://127.0.0.1:0"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/evaluate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)

	var artifact map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &artifact))
	assert.Equal(t, "purple-1", artifact["participants"].(map[string]any)["agent"])

	var status statusEvent
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &status))
	assert.Equal(t, "completed", status.Status)
}

func TestHandleEvaluate_EmptyParticipantDefaultsToUnknown(t *testing.T) {
	s := newTestServer()

	body, err := json.Marshal(evaluateRequest{PurpleBaseURL: "http://127.0.0.1:0"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/evaluate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	var artifact map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &artifact))
	assert.Equal(t, "unknown", artifact["participants"].(map[string]any)["agent"])
}

func TestHandleEvaluate_CancelledContextYieldsFailedStatus(t *testing.T) {
	settings := model.Settings{Track: model.TrackTDD, TaskCount: 1, TimeoutPerTask: 5}
	s := New(settings, "http://localhost:8080", evaluator.New)

	body, err := json.Marshal(evaluateRequest{ParticipantID: "purple-1", PurpleBaseURL: "http://127.0.0.1:0"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodPost, "/evaluate", bytes.NewReader(body)).WithContext(ctx)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)

	var artifact map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &artifact))
	assert.Equal(t, "purple-1", artifact["participants"].(map[string]any)["agent"])

	var status statusEvent
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &status))
	assert.Equal(t, "failed", status.Status)
}

func TestHandleEvaluate_InvalidBodyIsBadRequest(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/evaluate", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
