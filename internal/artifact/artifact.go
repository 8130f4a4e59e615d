// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package artifact serializes a composite evaluation result to the
// fixed, bit-exact JSON schema the agent-protocol artifact payload
// requires.
package artifact

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/qte77/RDI-AgentBeats-TestBehaveAlign/internal/model"
)

// detailWrapper nests task_details under a "detail" object key, a
// wrinkle of the wire schema that model.EvalResult does not carry
// internally since nothing downstream of evaluation needs the nesting.
type detailWrapper struct {
	TaskDetails []model.TaskDetail `json:"task_details"`
}

// wireResult is the exact on-wire shape of one eval result.
type wireResult struct {
	Score      float64           `json:"score"`
	PassRate   float64           `json:"pass_rate"`
	TaskReward model.TaskRewards `json:"task_rewards"`
	Detail     detailWrapper     `json:"detail"`
}

// wireEnvelope is the exact on-wire shape of the artifact payload.
type wireEnvelope struct {
	Participants map[string]string `json:"participants"`
	Results      []wireResult      `json:"results"`
	TraceID      string            `json:"trace_id"`
	Latency      float64           `json:"latency"`
}

func toWire(env model.ResultEnvelope) wireEnvelope {
	results := make([]wireResult, len(env.Results))
	for i, r := range env.Results {
		details := r.TaskDetail
		if details == nil {
			details = []model.TaskDetail{}
		}
		results[i] = wireResult{
			Score:      r.Score,
			PassRate:   r.PassRate,
			TaskReward: r.Rewards,
			Detail:     detailWrapper{TaskDetails: details},
		}
	}
	return wireEnvelope{
		Participants: env.Participants,
		Results:      results,
		TraceID:      env.TraceID,
		Latency:      env.Latency,
	}
}

// Marshal renders env as the exact artifact payload schema.
func Marshal(env model.ResultEnvelope) ([]byte, error) {
	out, err := json.Marshal(toWire(env))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result artifact: %w", err)
	}
	return out, nil
}

// Write encodes env to w as the artifact payload schema.
func Write(w io.Writer, env model.ResultEnvelope) error {
	if err := json.NewEncoder(w).Encode(toWire(env)); err != nil {
		return fmt.Errorf("failed to write result artifact: %w", err)
	}
	return nil
}
