// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package aggregate combines mutation score and fault-detection rate
// into the final composite score and packages result envelopes.
package aggregate

import (
	"math"

	"github.com/qte77/RDI-AgentBeats-TestBehaveAlign/internal/model"
)

// mutationWeight and faultDetectionWeight sum to 1.0. Mutation carries
// more weight because it samples many mutants, while fault detection is
// a single bit per task.
const (
	mutationWeight       = 0.60
	faultDetectionWeight = 0.40
)

// Composite computes round(0.6*mutationScore + 0.4*faultDetectionRate, 2).
// It is non-decreasing in each input when the other is held fixed, and
// equals 1.0 at (1,1) and 0.0 at (0,0); because of the rounding, inputs
// close enough to those corners also yield 1.0 or 0.0.
func Composite(mutationScore, faultDetectionRate float64) float64 {
	raw := mutationWeight*mutationScore + faultDetectionWeight*faultDetectionRate
	return math.Round(raw*100) / 100
}

// GenerateResult packages per-task details and run-level metrics into a
// ResultEnvelope. The envelope always carries exactly one eval result
// and a single "agent" participant key, matching the single-agent
// evaluation protocol.
func GenerateResult(participantID string, details []model.TaskDetail, composite, passRate float64, track model.Track) model.ResultEnvelope {
	mutationAvg := averageMutation(details)
	faultAvg := averageFaultDetection(details)

	result := model.EvalResult{
		Score:    composite,
		PassRate: passRate,
		Rewards: model.TaskRewards{
			MutationScore:      mutationAvg,
			FaultDetectionRate: faultAvg,
			Track:              track,
			TaskCount:          len(details),
		},
		TaskDetail: details,
	}

	return model.ResultEnvelope{
		Participants: map[string]string{"agent": participantID},
		Results:      []model.EvalResult{result},
	}
}

func averageMutation(details []model.TaskDetail) float64 {
	if len(details) == 0 {
		return 0.0
	}
	total := 0.0
	for _, d := range details {
		total += d.MutationScore
	}
	return total / float64(len(details))
}

func averageFaultDetection(details []model.TaskDetail) float64 {
	if len(details) == 0 {
		return 0.0
	}
	total := 0.0
	for _, d := range details {
		total += d.FaultDetectionRate
	}
	return total / float64(len(details))
}
