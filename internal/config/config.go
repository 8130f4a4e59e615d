// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package config loads the Green Agent's TOML configuration file and
// the environment variables it recognizes into an immutable
// model.Settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/qte77/RDI-AgentBeats-TestBehaveAlign/internal/model"
)

// localOverlayFilename is an optional YAML file read from the same
// directory as the TOML config. It lets a developer override task_count
// or timeout_per_task for a local run without touching the checked-in
// scenario.toml.
const localOverlayFilename = "scenario.local.yaml"

// localOverlay is the on-disk shape of the optional overlay file.
type localOverlay struct {
	TaskCount      *int `yaml:"task_count"`
	TimeoutPerTask *int `yaml:"timeout_per_task"`
}

// defaultTaskCount and defaultTimeoutPerTask apply when the file omits
// those keys.
const (
	defaultTaskCount      = 5
	defaultTimeoutPerTask = 60
)

// fileConfig is the on-disk [config] table.
type fileConfig struct {
	Config struct {
		Track          string `toml:"track"`
		TaskCount      int    `toml:"task_count"`
		TimeoutPerTask int    `toml:"timeout_per_task"`
	} `toml:"config"`
}

// Load reads path as TOML, reads OPENAI_API_KEY (required) and
// OPENAI_BASE_URL (optional, taken as is) from the environment, and
// returns the resolved model.Settings. track must be "tdd" or "bdd"; any other value, or a
// missing OPENAI_API_KEY, is a fatal configuration error.
func Load(path string) (model.Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Settings{}, fmt.Errorf("configuration file not found: %s: %w", path, err)
	}

	var fc fileConfig
	if _, err := toml.Decode(string(data), &fc); err != nil {
		return model.Settings{}, fmt.Errorf("failed to parse config: %w", err)
	}

	track := model.Track(fc.Config.Track)
	if track != model.TrackTDD && track != model.TrackBDD {
		return model.Settings{}, fmt.Errorf("config: track must be %q or %q, got %q", model.TrackTDD, model.TrackBDD, fc.Config.Track)
	}

	taskCount := fc.Config.TaskCount
	if taskCount == 0 {
		taskCount = defaultTaskCount
	}

	timeoutPerTask := fc.Config.TimeoutPerTask
	if timeoutPerTask == 0 {
		timeoutPerTask = defaultTimeoutPerTask
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return model.Settings{}, fmt.Errorf("config: OPENAI_API_KEY environment variable is required")
	}

	taskCount, timeoutPerTask, err = applyLocalOverlay(path, taskCount, timeoutPerTask)
	if err != nil {
		return model.Settings{}, err
	}

	return model.Settings{
		Track:          track,
		TaskCount:      taskCount,
		TimeoutPerTask: timeoutPerTask,
		OpenAIAPIKey:   apiKey,
		OpenAIBaseURL:  os.Getenv("OPENAI_BASE_URL"),
	}, nil
}

// applyLocalOverlay reads scenario.local.yaml next to the TOML config
// path, if present, and overrides taskCount/timeoutPerTask with whichever
// fields it sets. A missing overlay file is not an error.
func applyLocalOverlay(configPath string, taskCount, timeoutPerTask int) (int, int, error) {
	overlayPath := filepath.Join(filepath.Dir(configPath), localOverlayFilename)

	data, err := os.ReadFile(overlayPath)
	if err != nil {
		if os.IsNotExist(err) {
			return taskCount, timeoutPerTask, nil
		}
		return 0, 0, fmt.Errorf("failed to read local scenario overlay: %w", err)
	}

	var overlay localOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return 0, 0, fmt.Errorf("failed to parse local scenario overlay: %w", err)
	}

	if overlay.TaskCount != nil {
		taskCount = *overlay.TaskCount
	}
	if overlay.TimeoutPerTask != nil {
		timeoutPerTask = *overlay.TimeoutPerTask
	}
	return taskCount, timeoutPerTask, nil
}
