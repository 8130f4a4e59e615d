// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package purpleclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qte77/RDI-AgentBeats-TestBehaveAlign/internal/model"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/agent-card.json", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/evaluate/generate", handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func completedTask(text string) taskEnvelope {
	return taskEnvelope{
		State: taskStateCompleted,
		Artifacts: []struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		}{{
			Parts: []struct {
				Text string `json:"text"`
			}{{Text: text}},
		}},
	}
}

const validPythonTest = "def test_add():\n    assert 1 + 1 == 2\n"

func TestGenerateTests_Success(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(completedTask(validPythonTest))
	})

	c := New()
	defer c.Close()

	tests, err := c.GenerateTests(context.Background(), srv.URL, "add two numbers", model.TrackTDD)

	require.NoError(t, err)
	assert.Contains(t, tests, "test_add")
}

func TestGenerateTests_InvalidSyntaxNotRetried(t *testing.T) {
	var calls int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(completedTask("def broken(:\n    pass\n"))
	})

	c := New()
	defer c.Close()

	_, err := c.GenerateTests(context.Background(), srv.URL, "add two numbers", model.TrackTDD)

	require.Error(t, err)
	var purpleErr *PurpleAgentError
	require.ErrorAs(t, err, &purpleErr)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

// The bdd track changes only the prompt text sent to Purple, not the
// shape of what comes back: Purple still replies with a Python test
// module, so it is validated by the same ast.parse check as tdd.
func TestGenerateTests_BDDValidation(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(completedTask(validPythonTest))
	})

	c := New()
	defer c.Close()

	tests, err := c.GenerateTests(context.Background(), srv.URL, "add two numbers", model.TrackBDD)

	require.NoError(t, err)
	assert.Contains(t, tests, "test_add")
}

func TestGenerateTests_RetriesTransportFailureThenSucceeds(t *testing.T) {
	var calls int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(completedTask(validPythonTest))
	})

	c := New()
	c.maxRetries = 3
	defer c.Close()

	tests, err := c.GenerateTests(context.Background(), srv.URL, "add two numbers", model.TrackTDD)

	require.NoError(t, err)
	assert.Contains(t, tests, "test_add")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_CachesConnection(t *testing.T) {
	var discoveries int32
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/agent-card.json", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&discoveries, 1)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/evaluate/generate", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(completedTask(validPythonTest))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New()
	defer c.Close()

	_, err := c.GenerateTests(context.Background(), srv.URL, "spec", model.TrackTDD)
	require.NoError(t, err)
	_, err = c.GenerateTests(context.Background(), srv.URL, "spec", model.TrackTDD)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&discoveries))
}

func TestValidate_RejectsMalformedSource(t *testing.T) {
	err := validate("def broken(:\n    pass\n", model.TrackTDD)
	require.Error(t, err)
}

func TestValidate_AcceptsWellFormedSource(t *testing.T) {
	err := validate(validPythonTest, model.TrackBDD)
	require.NoError(t, err)
}
