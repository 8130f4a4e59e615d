// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package mutation drives the external mutmut mutation-testing tool
// against the correct implementation, using the tests Purple generated,
// and parses its report into a MutationResult.
package mutation

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"
	"time"

	"github.com/bitfield/script"

	"github.com/qte77/RDI-AgentBeats-TestBehaveAlign/internal/model"
	"github.com/qte77/RDI-AgentBeats-TestBehaveAlign/internal/sandbox"
)

// DefaultTimeout is the overall wall-clock bound for one mutation-testing
// pass.
const DefaultTimeout = 600 * time.Second

// perMutantTimeoutSeconds is written into the mutmut tool config inside
// every workspace.
const perMutantTimeoutSeconds = 10

var (
	// "4/4 mutants killed" or "1/1 mutant killed"
	ratioPattern = regexp.MustCompile(`(\d+)\s*/\s*(\d+)\s+mutants?\s+killed`)
	// "Killed: 3" / "Survived: 1" on separate lines
	killedPattern   = regexp.MustCompile(`(?m)^\s*Killed:\s*(\d+)\s*$`)
	survivedPattern = regexp.MustCompile(`(?m)^\s*Survived:\s*(\d+)\s*$`)
)

// Driver runs the mutation-testing tool.
type Driver struct {
	// MutmutPath overrides the mutmut binary name, useful for testing.
	MutmutPath string
}

// New returns a Driver invoking the standard mutmut binary.
func New() *Driver {
	return &Driver{MutmutPath: "mutmut"}
}

// Run writes the correct implementation, the generated tests, and a
// per-mutant-timeout config into a fresh workspace, then invokes mutmut
// under an overall wall-clock bound. It never returns an error for tool
// unavailability, timeout, or crash — those collapse into a zero-count
// MutationResult with Error set.
func (d *Driver) Run(ctx context.Context, testSource, correctImplementation string, track model.Track) (model.MutationResult, error) {
	if !d.binaryAvailable() {
		return unavailable(d.binary() + " unavailable: not found on PATH"), nil
	}

	ws, err := sandbox.New("green-mutation")
	if err != nil {
		return model.MutationResult{}, err
	}
	defer func() {
		if cerr := ws.Close(); cerr != nil {
			slog.Warn("failed to remove mutation sandbox workspace", "dir", ws.Dir(), "error", cerr)
		}
	}()

	if err := ws.WriteFile("correct.py", correctImplementation); err != nil {
		return model.MutationResult{}, err
	}
	if err := ws.WriteFile("test_generated.py", testSource); err != nil {
		return model.MutationResult{}, err
	}
	if err := ws.WriteFile("pyproject.toml", mutmutConfigFor(perMutantTimeoutSeconds)); err != nil {
		return model.MutationResult{}, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(timeoutCtx, d.binary(), "run")
	cmd.Dir = ws.Dir()

	output, runErr := cmd.CombinedOutput()

	if timeoutCtx.Err() == context.DeadlineExceeded {
		return unavailable("mutmut timed out after " + DefaultTimeout.String()), nil
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			// The binary itself could not be located or started.
			return unavailable("mutmut unavailable: " + runErr.Error()), nil
		}
		// Non-zero exit is a normal outcome (mutants survived); fall
		// through to parse stdout.
	}

	return parseReport(string(output)), nil
}

func mutmutConfigFor(timeoutSeconds int) string {
	return "[tool.mutmut]\ntimeout = " + strconv.Itoa(timeoutSeconds) + "\n"
}

func (d *Driver) binary() string {
	if d.MutmutPath != "" {
		return d.MutmutPath
	}
	return "mutmut"
}

// binaryAvailable checks the mutmut binary is resolvable on PATH before
// spending a subprocess invocation on it, using a `which` pipeline rather
// than an extra os/exec call directly.
func (d *Driver) binaryAvailable() bool {
	_, err := script.Exec("which " + d.binary()).String()
	return err == nil
}

// parseReport accepts either the "X/Y mutants killed" shape or the
// multi-line "Killed: K\nSurvived: S" shape. If neither matches, it
// returns a zero result with a non-empty error, never dividing by zero.
func parseReport(output string) model.MutationResult {
	if m := ratioPattern.FindStringSubmatch(output); m != nil {
		killed, _ := strconv.Atoi(m[1])
		total, _ := strconv.Atoi(m[2])
		return resultFrom(killed, total)
	}

	kMatch := killedPattern.FindStringSubmatch(output)
	sMatch := survivedPattern.FindStringSubmatch(output)
	if kMatch != nil && sMatch != nil {
		killed, _ := strconv.Atoi(kMatch[1])
		survived, _ := strconv.Atoi(sMatch[1])
		return resultFrom(killed, killed+survived)
	}

	return unavailable("unrecognized mutmut report format")
}

func resultFrom(killed, total int) model.MutationResult {
	survived := total - killed
	score := 0.0
	if total > 0 {
		score = float64(killed) / float64(total)
	}
	return model.MutationResult{
		Killed:        killed,
		Survived:      survived,
		Total:         total,
		MutationScore: score,
	}
}

func unavailable(reason string) model.MutationResult {
	return model.MutationResult{
		Killed:        0,
		Survived:      0,
		Total:         0,
		MutationScore: 0.0,
		Error:         reason,
	}
}
