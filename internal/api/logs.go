package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/pipeshard/pipeshard/internal/logging"
)

// registerLogRoutes registers the recent-logs endpoint backed by the logging
// ring buffer.
func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "recent-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Recent Logs",
		Description: "Recent log entries, oldest first",
		Tags:        []string{"logs"},
	}, func(ctx context.Context, input *struct {
		Module string `query:"module" doc:"Only entries from this module"`
		Level  string `query:"level" doc:"Only entries at this level"`
		Limit  int    `query:"limit" default:"200" minimum:"1" maximum:"1000" doc:"Maximum entries returned"`
	}) (*LogsResponse, error) {
		entries := logging.Buffer().ReadAll()
		filtered := make([]logging.LogEntry, 0, len(entries))
		for _, e := range entries {
			if input.Module != "" && e.Module != input.Module {
				continue
			}
			if input.Level != "" && !strings.EqualFold(e.Level, input.Level) {
				continue
			}
			filtered = append(filtered, e)
		}
		if input.Limit > 0 && len(filtered) > input.Limit {
			filtered = filtered[len(filtered)-input.Limit:]
		}

		resp := &LogsResponse{}
		resp.Body.Entries = filtered
		resp.Body.Count = len(filtered)
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-log-level",
		Method:      http.MethodPut,
		Path:        "/api/logs/level",
		Summary:     "Set Log Level",
		Description: "Change one module's log level at runtime",
		Tags:        []string{"logs"},
		Errors:      []int{404},
	}, func(ctx context.Context, input *LogLevelRequest) (*LogLevelResponse, error) {
		if !logging.SetModuleLevel(input.Body.Module, input.Body.Level) {
			return nil, huma.Error404NotFound("unknown module " + input.Body.Module)
		}
		resp := &LogLevelResponse{}
		resp.Body.Module = input.Body.Module
		resp.Body.Level = input.Body.Level
		return resp, nil
	})
}
