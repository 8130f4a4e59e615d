// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package purpleclient discovers, invokes, and drives the external
// test-generation agent ("Purple") with retries, timeouts, response
// validation, and per-URL client caching. The agent-protocol framing
// itself (agent-card discovery, request/artifact envelopes) is an
// external collaborator; this package speaks the minimal request/
// response contract Purple exposes.
package purpleclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/qte77/RDI-AgentBeats-TestBehaveAlign/internal/model"
	"github.com/qte77/RDI-AgentBeats-TestBehaveAlign/internal/tracing"
)

// PythonPath overrides the python3 binary used to validate generated
// test source. Exposed as a package variable, not a struct field, since
// validation has no other state and tests substitute it directly.
var PythonPath = "python3"

// DefaultTimeout is the per-attempt transport timeout.
const DefaultTimeout = 30 * time.Second

// MaxRetries is the maximum number of attempts per logical call.
const MaxRetries = 3

// PurpleAgentError is raised when Purple Agent communication fails,
// either after retries are exhausted or immediately for a non-retriable
// validation failure.
type PurpleAgentError struct {
	msg          string
	nonRetriable bool
}

func (e *PurpleAgentError) Error() string { return e.msg }

func newPurpleAgentError(format string, args ...any) *PurpleAgentError {
	return &PurpleAgentError{msg: fmt.Sprintf(format, args...)}
}

// generateRequest is the wire shape sent to Purple: a single text-part
// message whose content is "<track>:<spec>".
type generateRequest struct {
	Text string `json:"text"`
}

// taskEnvelope models just enough of the expected task-lifecycle stream
// to find a completed task's first artifact text part. The full
// agent-protocol envelope type lives outside this module's scope.
type taskEnvelope struct {
	State     string `json:"state"`
	Artifacts []struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"artifacts"`
}

const taskStateCompleted = "completed"

// transport is the cached per-URL connection. It is a thin wrapper over
// an *http.Client; the implicit agent-card discovery the real
// agent-protocol client performs is modeled as a single cheap GET at
// first connect.
type transport struct {
	baseURL string
	http    *http.Client
}

func connect(ctx context.Context, baseURL string, timeout time.Duration) (*transport, error) {
	httpClient := &http.Client{Timeout: timeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/.well-known/agent-card.json", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build agent-card discovery request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agent-card discovery failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	return &transport{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}, nil
}

// Client discovers, invokes, and retries calls to the Purple agent,
// caching one connection per base URL.
type Client struct {
	timeout    time.Duration
	maxRetries int

	mu      sync.Mutex
	clients map[string]*transport
}

// New returns a Client with the default per-attempt timeout and retry
// budget.
func New() *Client {
	return &Client{
		timeout:    DefaultTimeout,
		maxRetries: MaxRetries,
		clients:    make(map[string]*transport),
	}
}

// getClient returns the cached transport for url, connecting on first
// use. Mutation of the cache is serialized by mu; the map itself is
// never read without holding it. Call volume here does not warrant the
// extra complexity of a sync.Map/atomic pointer split.
func (c *Client) getClient(ctx context.Context, url string) (*transport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.clients[url]; ok {
		return t, nil
	}
	t, err := connect(ctx, url, c.timeout)
	if err != nil {
		return nil, err
	}
	c.clients[url] = t
	return t, nil
}

// Close empties the client cache. The next call for any URL reconnects.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clients = make(map[string]*transport)
}

// GenerateTests sends spec to Purple at baseURL, prefixed with
// "<track>:", and returns the generated test source. It retries
// transport failures up to MaxRetries times with 2^attempt second
// backoff, but surfaces a syntactically invalid response immediately
// without retrying.
func (c *Client) GenerateTests(ctx context.Context, baseURL, spec string, track model.Track) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "purpleclient", "GenerateTests",
		trace.WithAttributes(
			attribute.String("purple.base_url", baseURL),
			attribute.String("purple.track", string(track)),
		),
	)
	defer span.End()

	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		slog.Info("sending request to purple agent", "attempt", attempt+1, "max_attempts", c.maxRetries)

		tests, err := c.attempt(ctx, baseURL, spec, track)
		if err == nil {
			span.SetStatus(codes.Ok, "purple agent responded")
			return tests, nil
		}

		if invalid, ok := err.(*PurpleAgentError); ok && invalid.nonRetriable {
			span.RecordError(err)
			span.SetStatus(codes.Error, "purple response invalid")
			return "", err
		}

		lastErr = err
		slog.Warn("purple agent request failed", "attempt", attempt+1, "error", err)

		if attempt < c.maxRetries-1 {
			delay := time.Duration(1<<uint(attempt)) * time.Second
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				span.RecordError(ctx.Err())
				return "", newPurpleAgentError("cancelled while retrying: %v", ctx.Err())
			}
		}
	}

	finalErr := newPurpleAgentError("failed after %d attempts: %v", c.maxRetries, lastErr)
	span.RecordError(finalErr)
	span.SetStatus(codes.Error, "purple agent exhausted retries")
	return "", finalErr
}

// attempt performs a single request/response round-trip and validates
// the result. Its error, when retriable, is a plain error; when the
// response is syntactically invalid it is a non-retriable
// *PurpleAgentError.
func (c *Client) attempt(ctx context.Context, baseURL, spec string, track model.Track) (string, error) {
	t, err := c.getClient(ctx, baseURL)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(generateRequest{Text: fmt.Sprintf("%s:%s", track, spec)})
	if err != nil {
		return "", fmt.Errorf("failed to encode purple request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/evaluate/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build purple request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("purple transport error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusRequestTimeout {
		return "", fmt.Errorf("purple transport returned status %d", resp.StatusCode)
	}

	var task taskEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return "", fmt.Errorf("failed to decode purple response: %w", err)
	}

	if task.State != taskStateCompleted {
		return "", fmt.Errorf("purple task did not complete (state=%q)", task.State)
	}

	tests := firstArtifactText(task)
	if tests == "" {
		return "", fmt.Errorf("no tests returned from purple agent")
	}

	if err := validate(tests, track); err != nil {
		return "", &PurpleAgentError{msg: fmt.Sprintf("invalid syntax in purple response: %v", err), nonRetriable: true}
	}

	slog.Info("received response from purple agent", "chars", len(tests))
	return tests, nil
}

func firstArtifactText(task taskEnvelope) string {
	for _, artifact := range task.Artifacts {
		for _, part := range artifact.Parts {
			if part.Text != "" {
				return part.Text
			}
		}
	}
	return ""
}

// validate parses the generated source for syntax errors. Purple always
// returns a Python test module for both tracks; the bdd/tdd distinction
// only changes the prompt text sent to Purple, not the shape of what
// comes back, so both tracks are validated the same way: by shelling out
// to python3's ast.parse.
func validate(source string, track model.Track) error {
	cmd := exec.Command(PythonPath, "-c", "import ast, sys; ast.parse(sys.stdin.read())")
	cmd.Stdin = strings.NewReader(source)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("invalid python syntax: %s", strings.TrimSpace(string(output)))
	}
	return nil
}
