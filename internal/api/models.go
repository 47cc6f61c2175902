package api

import (
	"github.com/pipeshard/pipeshard/internal/jobs"
	"github.com/pipeshard/pipeshard/internal/logging"
	"github.com/pipeshard/pipeshard/internal/metrics"
	"github.com/pipeshard/pipeshard/internal/version"
)

// HealthData is the body of the health endpoint.
type HealthData struct {
	Status  string       `json:"status" example:"ok" doc:"Service status"`
	Version version.Info `json:"version" doc:"Build information"`
}

// HealthResponse wraps HealthData.
type HealthResponse struct {
	Body HealthData
}

// JobSummary combines a job definition with its latest run and metrics.
type JobSummary struct {
	Job   jobs.Job           `json:"job" doc:"Job definition"`
	Run   *jobs.RunStatus    `json:"run,omitempty" doc:"Latest run, if any"`
	Stats *metrics.PipeStats `json:"stats,omitempty" doc:"Accumulated execution metrics"`
}

// JobListResponse is the body of the job list endpoint.
type JobListResponse struct {
	Body struct {
		Jobs  []JobSummary `json:"jobs"`
		Count int          `json:"count"`
	}
}

// JobResponse wraps one JobSummary.
type JobResponse struct {
	Body JobSummary
}

// JobCreateRequest carries a new job definition.
type JobCreateRequest struct {
	ID   string   `path:"id" doc:"Job identifier"`
	Body jobs.Job `doc:"Job definition"`
}

// RunResponse is returned when a run is started or cancelled.
type RunResponse struct {
	Body struct {
		JobID  string `json:"job_id"`
		Status string `json:"status" example:"started"`
	}
}

// LogLevelRequest names a module and its new log level.
type LogLevelRequest struct {
	Body struct {
		Module string `json:"module" doc:"Module name"`
		Level  string `json:"level" enum:"debug,info,warn,error" doc:"New level"`
	}
}

// LogLevelResponse echoes the applied level change.
type LogLevelResponse struct {
	Body struct {
		Module string `json:"module"`
		Level  string `json:"level"`
	}
}

// LogsResponse is the body of the recent-logs endpoint.
type LogsResponse struct {
	Body struct {
		Entries []logging.LogEntry `json:"entries"`
		Count   int                `json:"count"`
	}
}
