package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/pipeshard/pipeshard/internal/jobs"
	"github.com/pipeshard/pipeshard/internal/metrics"
)

// registerJobRoutes registers the job definition and run endpoints.
func (s *Server) registerJobRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-jobs",
		Method:      http.MethodGet,
		Path:        "/api/jobs",
		Summary:     "List Jobs",
		Description: "All job definitions with their latest run and metrics",
		Tags:        []string{"jobs"},
	}, func(ctx context.Context, _ *struct{}) (*JobListResponse, error) {
		list := s.store.List()
		resp := &JobListResponse{}
		resp.Body.Jobs = make([]JobSummary, 0, len(list))
		for _, job := range list {
			resp.Body.Jobs = append(resp.Body.Jobs, s.summarize(job))
		}
		resp.Body.Count = len(resp.Body.Jobs)
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-job",
		Method:      http.MethodGet,
		Path:        "/api/jobs/{id}",
		Summary:     "Get Job",
		Tags:        []string{"jobs"},
		Errors:      []int{404},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id" doc:"Job identifier"`
	}) (*JobResponse, error) {
		job, ok := s.store.Get(input.ID)
		if !ok {
			return nil, huma.Error404NotFound("job not found")
		}
		return &JobResponse{Body: s.summarize(job)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "create-job",
		Method:      http.MethodPut,
		Path:        "/api/jobs/{id}",
		Summary:     "Create or Update Job",
		Tags:        []string{"jobs"},
		Errors:      []int{422},
	}, func(ctx context.Context, input *JobCreateRequest) (*JobResponse, error) {
		job := input.Body
		job.ID = input.ID
		if err := s.store.Add(job); err != nil {
			return nil, huma.Error422UnprocessableEntity("invalid job", err)
		}
		return &JobResponse{Body: s.summarize(job)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "delete-job",
		Method:      http.MethodDelete,
		Path:        "/api/jobs/{id}",
		Summary:     "Delete Job",
		Tags:        []string{"jobs"},
		Errors:      []int{404},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id" doc:"Job identifier"`
	}) (*struct{}, error) {
		if err := s.store.Delete(input.ID); err != nil {
			return nil, huma.Error404NotFound(err.Error())
		}
		metrics.Delete(input.ID)
		return nil, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "run-job",
		Method:      http.MethodPost,
		Path:        "/api/jobs/{id}/run",
		Summary:     "Run Job",
		Description: "Start executing the job's partitions in the background",
		Tags:        []string{"jobs"},
		Errors:      []int{404, 409},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id" doc:"Job identifier"`
	}) (*RunResponse, error) {
		if _, ok := s.store.Get(input.ID); !ok {
			return nil, huma.Error404NotFound("job not found")
		}
		if err := s.runner.Start(input.ID); err != nil {
			return nil, huma.Error409Conflict(err.Error())
		}
		resp := &RunResponse{}
		resp.Body.JobID = input.ID
		resp.Body.Status = "started"
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "cancel-job",
		Method:      http.MethodPost,
		Path:        "/api/jobs/{id}/cancel",
		Summary:     "Cancel Job",
		Tags:        []string{"jobs"},
		Errors:      []int{409},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id" doc:"Job identifier"`
	}) (*RunResponse, error) {
		if err := s.runner.Cancel(input.ID); err != nil {
			return nil, huma.Error409Conflict(err.Error())
		}
		resp := &RunResponse{}
		resp.Body.JobID = input.ID
		resp.Body.Status = "cancelling"
		return resp, nil
	})
}

func (s *Server) summarize(job jobs.Job) JobSummary {
	summary := JobSummary{Job: job, Stats: metrics.Get(job.ID)}
	if run, ok := s.runner.Status(job.ID); ok {
		summary.Run = run
	}
	return summary
}
