// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package runner executes a generated test program against a reference
// implementation inside an ephemeral, network-denied sandbox and
// classifies the outcome strictly by subprocess exit code.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/qte77/RDI-AgentBeats-TestBehaveAlign/internal/model"
	"github.com/qte77/RDI-AgentBeats-TestBehaveAlign/internal/sandbox"
)

// DefaultTimeout is the wall-clock bound applied when the caller does
// not specify one.
const DefaultTimeout = 30 * time.Second

const networkDenyPreload = `
import socket


def _denied_socket(*args, **kwargs):
    raise RuntimeError("network access denied in sandbox")


socket.socket = _denied_socket
socket.create_connection = _denied_socket
`

// Runner executes test programs in isolated, ephemeral workspaces.
type Runner struct {
	// PytestPath overrides the pytest binary name, useful for testing.
	PytestPath string
}

// New returns a Runner invoking the standard pytest binary.
func New() *Runner {
	return &Runner{PytestPath: "pytest"}
}

// Run writes the implementation, the generated test program, and a
// network-denying preload file into a fresh workspace, then invokes
// pytest as a subprocess bounded by timeout. It never leaks the
// workspace, and it never raises for subprocess non-zero exit — only
// for workspace-setup failures.
func (r *Runner) Run(ctx context.Context, testSource, implementationSource, implementationFilename string, track model.Track, timeout time.Duration) (model.TestExecutionResult, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ws, err := sandbox.New("green-runner")
	if err != nil {
		return model.TestExecutionResult{}, err
	}
	defer func() {
		if cerr := ws.Close(); cerr != nil {
			slog.Warn("failed to remove runner sandbox workspace", "dir", ws.Dir(), "error", cerr)
		}
	}()

	if err := ws.WriteFile(implementationFilename, implementationSource); err != nil {
		return model.TestExecutionResult{}, err
	}
	if err := ws.WriteFile("test_generated.py", testSource); err != nil {
		return model.TestExecutionResult{}, err
	}
	if err := ws.WriteFile("conftest.py", networkDenyPreload); err != nil {
		return model.TestExecutionResult{}, err
	}

	args := []string{"test_generated.py", "-v"}
	if track == model.TrackBDD {
		args = append(args, "-p", "pytest_bdd")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(timeoutCtx, r.binary(), args...)
	cmd.Dir = ws.Dir()

	output, runErr := cmd.CombinedOutput()
	elapsed := time.Since(start).Seconds()

	if timeoutCtx.Err() == context.DeadlineExceeded {
		stderr := string(output) + fmt.Sprintf("\nERROR: test execution exceeded %s timeout", timeout)
		return model.TestExecutionResult{
			ExitCode:      -1,
			Stdout:        "",
			Stderr:        stderr,
			ExecutionTime: elapsed,
			Passed:        false,
			FailureType:   model.FailureTimeout,
		}, nil
	}

	exitCode := exitCodeOf(runErr)
	return model.TestExecutionResult{
		ExitCode:      exitCode,
		Stdout:        string(output),
		Stderr:        "",
		ExecutionTime: elapsed,
		Passed:        exitCode == 0,
		FailureType:   classify(exitCode),
	}, nil
}

// AgainstCorrect binds the conventional correct.py filename and forwards
// track unchanged.
func (r *Runner) AgainstCorrect(ctx context.Context, testSource, correctImplementation string, track model.Track, timeout time.Duration) (model.TestExecutionResult, error) {
	return r.Run(ctx, testSource, correctImplementation, "correct.py", track, timeout)
}

// AgainstBuggy binds the conventional buggy.py filename and forwards
// track unchanged.
func (r *Runner) AgainstBuggy(ctx context.Context, testSource, buggyImplementation string, track model.Track, timeout time.Duration) (model.TestExecutionResult, error) {
	return r.Run(ctx, testSource, buggyImplementation, "buggy.py", track, timeout)
}

func (r *Runner) binary() string {
	if r.PytestPath != "" {
		return r.PytestPath
	}
	return "pytest"
}

// classify derives a FailureType strictly from the exit code: 0 is a
// clean pass, 1 is an assertion failure, anything else is treated as an
// infrastructure failure (collection error, import error, usage error).
func classify(exitCode int) model.FailureType {
	switch exitCode {
	case 0:
		return model.FailureNone
	case 1:
		return model.FailureAssertion
	default:
		return model.FailureInfrastructure
	}
}

func exitCodeOf(runErr error) int {
	if runErr == nil {
		return 0
	}
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	// Process never started or some other OS-level failure: treat as an
	// infrastructure failure rather than crashing the caller.
	return 2
}
