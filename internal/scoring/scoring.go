// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package scoring derives the per-task fault-detection bit and
// aggregates it across a run.
package scoring

import "github.com/qte77/RDI-AgentBeats-TestBehaveAlign/internal/model"

// DetectionScore is 1.0 iff correct passed and buggy did not. A nil
// result on either side yields 0.0: a test suite that fails the correct
// implementation is broken, and one that passes the buggy implementation
// missed the planted bug.
func DetectionScore(correct, buggy *model.TestExecutionResult) float64 {
	if correct == nil || buggy == nil {
		return 0.0
	}
	if correct.Passed && !buggy.Passed {
		return 1.0
	}
	return 0.0
}

// AggregateDetection returns the arithmetic mean of per-task detection
// scores, or 0.0 for an empty run.
func AggregateDetection(scores []float64) float64 {
	if len(scores) == 0 {
		return 0.0
	}
	total := 0.0
	for _, s := range scores {
		total += s
	}
	return total / float64(len(scores))
}
