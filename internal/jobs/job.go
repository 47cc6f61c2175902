// Package jobs defines pipe jobs, their TOML-backed store, and the runner
// that executes a job's partitions through the pipe engine.
package jobs

import (
	"fmt"

	"github.com/pipeshard/pipeshard/internal/pipe"
)

// Codec names accepted in job definitions.
const (
	CodecLine   = "line"
	CodecRecord = "record"
)

// Job is one named pipe transform over a set of input files. Each input file
// is one partition, and its path doubles as the split provenance exposed to
// the subprocess environment.
type Job struct {
	ID             string            `toml:"-" json:"id"`
	Command        []string          `toml:"command" json:"command"`
	Env            map[string]string `toml:"env,omitempty" json:"env,omitempty"`
	Dir            string            `toml:"dir,omitempty" json:"dir,omitempty"`
	Codec          string            `toml:"codec,omitempty" json:"codec,omitempty"`
	Encoding       string            `toml:"encoding,omitempty" json:"encoding,omitempty"`
	BufferSize     int               `toml:"buffer_size,omitempty" json:"buffer_size,omitempty"`
	Inputs         []string          `toml:"inputs" json:"inputs"`
	OutputDir      string            `toml:"output_dir,omitempty" json:"output_dir,omitempty"`
	StagedFiles    []string          `toml:"staged_files,omitempty" json:"staged_files,omitempty"`
	CleanupTaskDir bool              `toml:"cleanup_task_dir,omitempty" json:"cleanup_task_dir,omitempty"`
	Workers        int               `toml:"workers,omitempty" json:"workers,omitempty"`
	Disabled       bool              `toml:"disabled,omitempty" json:"disabled,omitempty"`
}

// DirMode maps the job's dir field onto the engine's mode, defaulting to
// inherit.
func (j *Job) DirMode() pipe.DirMode {
	if j.Dir == string(pipe.DirIsolated) {
		return pipe.DirIsolated
	}
	return pipe.DirInherit
}

// CodecName returns the effective codec, defaulting to line.
func (j *Job) CodecName() string {
	if j.Codec == "" {
		return CodecLine
	}
	return j.Codec
}

// Validate checks the job definition for the errors that would otherwise
// only surface mid-execution.
func (j *Job) Validate() error {
	if len(j.Command) == 0 {
		return fmt.Errorf("job %s: command must not be empty", j.ID)
	}
	switch j.CodecName() {
	case CodecLine, CodecRecord:
	default:
		return fmt.Errorf("job %s: unknown codec %q", j.ID, j.Codec)
	}
	switch j.Dir {
	case "", string(pipe.DirInherit), string(pipe.DirIsolated):
	default:
		return fmt.Errorf("job %s: unknown dir mode %q", j.ID, j.Dir)
	}
	if j.Encoding != "" {
		if j.CodecName() == CodecRecord {
			return fmt.Errorf("job %s: encoding applies to the line codec only", j.ID)
		}
		if _, err := pipe.NewLineCodec(j.Encoding); err != nil {
			return fmt.Errorf("job %s: %w", j.ID, err)
		}
	}
	if j.BufferSize < 0 {
		return fmt.Errorf("job %s: buffer_size must not be negative", j.ID)
	}
	if j.Workers < 0 {
		return fmt.Errorf("job %s: workers must not be negative", j.ID)
	}
	return nil
}
