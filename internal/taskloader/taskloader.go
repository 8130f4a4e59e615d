// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package taskloader reads a single evaluation task's on-disk fixtures
// (metadata, specification, and reference implementations) into a
// model.Task.
package taskloader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/qte77/RDI-AgentBeats-TestBehaveAlign/internal/model"
)

// TaskLoadError names the task and the path that could not be read.
type TaskLoadError struct {
	TaskID string
	Path   string
	Err    error
}

func (e *TaskLoadError) Error() string {
	return fmt.Sprintf("failed to load task %q: %s: %v", e.TaskID, e.Path, e.Err)
}

func (e *TaskLoadError) Unwrap() error { return e.Err }

// metadata is the on-disk shape of metadata.json.
type metadata struct {
	TaskID       string `json:"task_id"`
	FunctionName string `json:"function_name"`
}

// specFilename returns the task specification's filename for track.
func specFilename(track model.Track) string {
	if track == model.TrackBDD {
		return "spec.feature"
	}
	return "spec.py"
}

// Load reads one task directory, e.g. data/tasks/tdd/python/task_001, and
// returns its model.Task. The task id is taken from metadata.json's
// "task_id" field, falling back to the directory-derived taskID when
// metadata omits it. Every required file's absence is reported as a
// *TaskLoadError naming the exact missing path.
func Load(taskDir, taskID string, track model.Track) (model.Task, error) {
	meta, err := readMetadata(taskDir, taskID)
	if err != nil {
		return model.Task{}, err
	}

	specPath := filepath.Join(taskDir, specFilename(track))
	spec, err := readFile(specPath)
	if err != nil {
		return model.Task{}, &TaskLoadError{TaskID: taskID, Path: specPath, Err: err}
	}

	correctPath := filepath.Join(taskDir, "implementation", "correct.py")
	correct, err := readFile(correctPath)
	if err != nil {
		return model.Task{}, &TaskLoadError{TaskID: taskID, Path: correctPath, Err: err}
	}

	buggyPath := filepath.Join(taskDir, "implementation", "buggy.py")
	buggy, err := readFile(buggyPath)
	if err != nil {
		return model.Task{}, &TaskLoadError{TaskID: taskID, Path: buggyPath, Err: err}
	}

	resolvedTaskID := meta.TaskID
	if resolvedTaskID == "" {
		resolvedTaskID = taskID
	}

	return model.Task{
		TaskID:                resolvedTaskID,
		FunctionName:          meta.FunctionName,
		Track:                 track,
		Spec:                  spec,
		CorrectImplementation: correct,
		BuggyImplementation:   buggy,
	}, nil
}

func readMetadata(taskDir, taskID string) (metadata, error) {
	path := filepath.Join(taskDir, "metadata.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return metadata{}, &TaskLoadError{TaskID: taskID, Path: path, Err: err}
	}
	var meta metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return metadata{}, &TaskLoadError{TaskID: taskID, Path: path, Err: err}
	}
	return meta, nil
}

func readFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
