// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package evaluator orchestrates one end-to-end evaluation run: it asks
// Purple for tests on every task, runs them against both reference
// implementations, drives mutation testing, and aggregates the
// composite result.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/qte77/RDI-AgentBeats-TestBehaveAlign/internal/aggregate"
	"github.com/qte77/RDI-AgentBeats-TestBehaveAlign/internal/model"
	"github.com/qte77/RDI-AgentBeats-TestBehaveAlign/internal/mutation"
	"github.com/qte77/RDI-AgentBeats-TestBehaveAlign/internal/purpleclient"
	"github.com/qte77/RDI-AgentBeats-TestBehaveAlign/internal/runner"
	"github.com/qte77/RDI-AgentBeats-TestBehaveAlign/internal/scoring"
	"github.com/qte77/RDI-AgentBeats-TestBehaveAlign/internal/taskloader"
	"github.com/qte77/RDI-AgentBeats-TestBehaveAlign/internal/tracing"
)

// ErrCancelled is returned by Run when cooperative cancellation cut the
// per-task loop short. The envelope returned alongside it still carries
// whatever task details completed before cancellation; the caller must
// emit a "failed" terminal status rather than "completed".
var ErrCancelled = errors.New("evaluation cancelled before completing all tasks")

// Evaluator wires the task loader, the Purple client, the sandboxed
// runner, and the mutation-testing driver into a single run.
type Evaluator struct {
	Purple   *purpleclient.Client
	Runner   *runner.Runner
	Mutation *mutation.Driver
	Settings model.Settings
}

// New constructs an Evaluator from the given settings, owning its own
// Purple client, runner, and mutation driver.
func New(settings model.Settings) *Evaluator {
	return &Evaluator{
		Purple:   purpleclient.New(),
		Runner:   runner.New(),
		Mutation: mutation.New(),
		Settings: settings,
	}
}

// Close releases resources held across the lifetime of the Evaluator,
// in particular the Purple client's cached connections.
func (e *Evaluator) Close() {
	if e.Purple != nil {
		e.Purple.Close()
	}
}

// Run executes the full evaluation against the Purple agent reachable at
// purpleBaseURL, returning the final result envelope. A per-task failure
// (Purple error, runner error, mutation error) never aborts the run — it
// is absorbed into a zero-scoring TaskDetail for that task, matching the
// original executor's error-isolation behavior. If ctx is cancelled
// before every task dispatches, Run stops dispatching further tasks and
// returns ErrCancelled alongside the partial envelope; callers must
// surface that as a failed terminal status rather than completed.
func (e *Evaluator) Run(ctx context.Context, purpleBaseURL, participantID string) (model.ResultEnvelope, error) {
	defer e.Close()

	traceID := uuid.NewString()

	ctx, span := tracing.StartSpan(ctx, "evaluator", "Run",
		trace.WithAttributes(
			attribute.String("participant_id", participantID),
			attribute.String("track", string(e.Settings.Track)),
			attribute.String("trace_id", traceID),
		),
	)
	defer span.End()

	start := time.Now()

	details := make([]model.TaskDetail, 0, e.Settings.TaskCount)

	cancelled := false
	for i := 1; i <= e.Settings.TaskCount; i++ {
		if ctx.Err() != nil {
			slog.Warn("evaluation cancelled before completing all tasks", "completed", len(details))
			cancelled = true
			break
		}

		taskID := fmt.Sprintf("task_%03d", i)
		detail := e.runTask(ctx, taskID, purpleBaseURL)
		details = append(details, detail)
	}

	mutationAvg := averageMutation(details)
	faultAvg := averageFaultDetection(details)
	composite := aggregate.Composite(mutationAvg, faultAvg)
	passRate := averagePassRate(details)

	result := aggregate.GenerateResult(participantID, details, composite, passRate, e.Settings.Track)
	result.TraceID = traceID
	result.Latency = time.Since(start).Seconds()

	if cancelled {
		span.SetStatus(codes.Error, "evaluation cancelled")
		return result, ErrCancelled
	}

	span.SetStatus(codes.Ok, "evaluation completed")
	return result, nil
}

// runTask executes one task end to end and never returns an error: any
// failure becomes a zero-scoring detail row so the run as a whole can
// continue.
func (e *Evaluator) runTask(ctx context.Context, taskID, purpleBaseURL string) model.TaskDetail {
	ctx, span := tracing.StartSpan(ctx, "evaluator", "runTask",
		trace.WithAttributes(attribute.String("task_id", taskID)),
	)
	defer span.End()

	// TimeoutPerTask bounds the whole task pipeline (Purple round-trip,
	// both test runs, mutation testing). The individual subprocess calls
	// below keep their own fixed wall-clocks (runner.DefaultTimeout,
	// mutation.DefaultTimeout), but they run under this context, so a
	// subprocess still running when the task budget expires is stopped
	// then.
	if e.Settings.TimeoutPerTask > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(e.Settings.TimeoutPerTask)*time.Second)
		defer cancel()
	}

	detail := model.TaskDetail{TaskID: taskID}

	taskDir := filepath.Join(e.Settings.TaskDirectory(), taskID)
	task, err := taskloader.Load(taskDir, taskID, e.Settings.Track)
	if err != nil {
		slog.Error("failed to load task", "task_id", taskID, "error", err)
		tracing.RecordError(ctx, err)
		return detail
	}

	generated, err := e.Purple.GenerateTests(ctx, purpleBaseURL, task.Spec, task.Track)
	if err != nil {
		slog.Error("purple agent failed to generate tests", "task_id", taskID, "error", err)
		tracing.RecordError(ctx, err)
		return detail
	}

	correctResult, err := e.Runner.AgainstCorrect(ctx, generated, task.CorrectImplementation, task.Track, runner.DefaultTimeout)
	if err != nil {
		slog.Error("failed to run generated tests against correct implementation", "task_id", taskID, "error", err)
		tracing.RecordError(ctx, err)
		return detail
	}

	buggyResult, err := e.Runner.AgainstBuggy(ctx, generated, task.BuggyImplementation, task.Track, runner.DefaultTimeout)
	if err != nil {
		slog.Error("failed to run generated tests against buggy implementation", "task_id", taskID, "error", err)
		tracing.RecordError(ctx, err)
		return detail
	}

	detail.PassedCorrect = correctResult.Passed
	detail.FailedBuggy = !buggyResult.Passed
	detail.FaultDetectionRate = scoring.DetectionScore(&correctResult, &buggyResult)

	mutationResult, err := e.Mutation.Run(ctx, generated, task.CorrectImplementation, task.Track)
	if err != nil {
		slog.Error("mutation testing failed", "task_id", taskID, "error", err)
		tracing.RecordError(ctx, err)
		return detail
	}
	detail.MutationScore = mutationResult.MutationScore

	detail.CompositeScore = aggregate.Composite(detail.MutationScore, detail.FaultDetectionRate)

	tracing.AddEvent(ctx, "task completed",
		attribute.String("task_id", taskID),
		attribute.Float64("composite_score", detail.CompositeScore),
	)

	return detail
}

func averageMutation(details []model.TaskDetail) float64 {
	return averageOf(details, func(d model.TaskDetail) float64 { return d.MutationScore })
}

func averageFaultDetection(details []model.TaskDetail) float64 {
	return averageOf(details, func(d model.TaskDetail) float64 { return d.FaultDetectionRate })
}

// averagePassRate is the fraction of tasks for which the generated tests
// passed the correct implementation AND failed the buggy one, not
// passed_correct alone.
func averagePassRate(details []model.TaskDetail) float64 {
	return averageOf(details, func(d model.TaskDetail) float64 {
		if d.PassedCorrect && d.FailedBuggy {
			return 1.0
		}
		return 0.0
	})
}

func averageOf(details []model.TaskDetail, f func(model.TaskDetail) float64) float64 {
	if len(details) == 0 {
		return 0.0
	}
	total := 0.0
	for _, d := range details {
		total += f(d)
	}
	return total / float64(len(details))
}
