// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package model defines the immutable value types shared across the
// evaluation pipeline: tasks, execution results, scores, and the final
// result envelope.
package model

import "path/filepath"

// Track identifies which testing style Purple is being evaluated on.
type Track string

const (
	TrackTDD Track = "tdd"
	TrackBDD Track = "bdd"
)

// FailureType classifies why a test execution did not pass, derived
// strictly from the subprocess exit code (never from string-scanning
// output).
type FailureType string

const (
	FailureNone           FailureType = "none"
	FailureAssertion      FailureType = "assertion"
	FailureInfrastructure FailureType = "infrastructure"
	FailureTimeout        FailureType = "timeout"
)

// Task is a single evaluation task: its specification and the two
// reference implementations it is checked against. Owned exclusively by
// the component that constructs it (the task loader) and handed to
// downstream components by value.
type Task struct {
	TaskID                string
	FunctionName          string
	Track                 Track
	Spec                  string
	CorrectImplementation string
	BuggyImplementation   string
}

// TestExecutionResult is the outcome of running a generated test program
// against one reference implementation inside a sandboxed workspace.
//
// Invariant: Passed == (ExitCode == 0) == (FailureType == FailureNone).
type TestExecutionResult struct {
	ExitCode      int
	Stdout        string
	Stderr        string
	ExecutionTime float64 // seconds
	Passed        bool
	FailureType   FailureType
}

// MutationResult is the outcome of a mutation-testing pass over the
// correct implementation.
//
// Invariant: 0 <= Killed <= Total, Survived == Total-Killed,
// MutationScore == Killed/Total when Total > 0 else 0. Error may be set
// only when Total == 0.
type MutationResult struct {
	Killed        int
	Survived      int
	Total         int
	MutationScore float64
	Error         string
}

// CompositeScore combines mutation score and fault-detection rate into
// the final weighted metric.
//
// Invariant: Composite == round(0.6*Mutation + 0.4*FaultDetection, 2).
type CompositeScore struct {
	MutationScore      float64
	FaultDetectionRate float64
	Composite          float64
}

// TaskDetail is the per-task row carried in the result artifact.
type TaskDetail struct {
	TaskID             string  `json:"task_id"`
	MutationScore      float64 `json:"mutation_score"`
	FaultDetectionRate float64 `json:"fault_detection_rate"`
	CompositeScore     float64 `json:"composite_score"`
	PassedCorrect      bool    `json:"passed_correct"`
	FailedBuggy        bool    `json:"failed_buggy"`
}

// TaskRewards is the run-level aggregate of mutation score and
// fault-detection rate for a given track.
type TaskRewards struct {
	MutationScore      float64 `json:"mutation_score"`
	FaultDetectionRate float64 `json:"fault_detection_rate"`
	Track              Track   `json:"track"`
	TaskCount          int     `json:"task_count"`
}

// EvalResult is one run's composite score, pass rate, aggregate rewards
// and per-task detail.
type EvalResult struct {
	Score      float64      `json:"score"`
	PassRate   float64      `json:"pass_rate"`
	Rewards    TaskRewards  `json:"task_rewards"`
	TaskDetail []TaskDetail `json:"-"` // nested under detail.task_details by package artifact
}

// ResultEnvelope is the top-level artifact payload: participant identity
// mapped to role, a list of eval results (always length 1 for the
// single-agent protocol), a trace id, and total latency in seconds.
type ResultEnvelope struct {
	Participants map[string]string `json:"participants"`
	Results      []EvalResult      `json:"results"`
	TraceID      string            `json:"trace_id"`
	Latency      float64           `json:"latency"`
}

// Settings is the immutable configuration loaded once at process start.
type Settings struct {
	Track          Track
	TaskCount      int
	TimeoutPerTask int // seconds
	OpenAIAPIKey   string
	OpenAIBaseURL  string
}

// TaskDirectory returns the on-disk directory holding this run's tasks,
// e.g. data/tasks/tdd/python.
func (s Settings) TaskDirectory() string {
	return filepath.Join("data", "tasks", string(s.Track), "python")
}
