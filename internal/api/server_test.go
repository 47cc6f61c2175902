package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"

	"github.com/pipeshard/pipeshard/internal/events"
	"github.com/pipeshard/pipeshard/internal/jobs"
	"github.com/pipeshard/pipeshard/internal/logging"
)

func newTestServer(t *testing.T, defs ...jobs.Job) (*Server, humatest.TestAPI) {
	t.Helper()
	store := jobs.NewTOML(filepath.Join(t.TempDir(), "jobs.toml"))
	for _, job := range defs {
		if err := store.Add(job); err != nil {
			t.Fatalf("Add %s failed: %v", job.ID, err)
		}
	}
	runner := jobs.NewRunner(store, events.New())
	s := NewServer(&Options{Store: store, Runner: runner})
	return s, humatest.Wrap(t, s.API())
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(resp.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response: %v\n%s", err, resp.Body.String())
	}
}

func TestHealth(t *testing.T) {
	_, api := newTestServer(t)

	resp := api.Get("/api/health")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	var body struct {
		Status string `json:"status"`
	}
	decodeBody(t, resp, &body)
	if body.Status != "ok" {
		t.Errorf("status = %q", body.Status)
	}
}

func TestListJobs(t *testing.T) {
	_, api := newTestServer(t,
		jobs.Job{ID: "alpha", Command: []string{"cat"}},
		jobs.Job{ID: "beta", Command: []string{"wc", "-l"}},
	)

	resp := api.Get("/api/jobs")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	var body struct {
		Jobs []struct {
			Job jobs.Job `json:"job"`
		} `json:"jobs"`
		Count int `json:"count"`
	}
	decodeBody(t, resp, &body)
	if body.Count != 2 {
		t.Fatalf("count = %d", body.Count)
	}
	if body.Jobs[0].Job.ID != "alpha" || body.Jobs[1].Job.ID != "beta" {
		t.Errorf("unexpected order: %+v", body.Jobs)
	}
}

func TestGetJobNotFound(t *testing.T) {
	_, api := newTestServer(t)

	resp := api.Get("/api/jobs/ghost")
	if resp.Code != http.StatusNotFound {
		t.Errorf("status = %d", resp.Code)
	}
}

func TestCreateAndDeleteJob(t *testing.T) {
	_, api := newTestServer(t)

	resp := api.Put("/api/jobs/echo", map[string]any{
		"command": []string{"cat"},
		"inputs":  []string{"in.txt"},
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("create status = %d: %s", resp.Code, resp.Body.String())
	}

	resp = api.Get("/api/jobs/echo")
	if resp.Code != http.StatusOK {
		t.Fatalf("get status = %d", resp.Code)
	}

	resp = api.Delete("/api/jobs/echo")
	if resp.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.Code)
	}

	resp = api.Get("/api/jobs/echo")
	if resp.Code != http.StatusNotFound {
		t.Errorf("status after delete = %d", resp.Code)
	}
}

func TestCreateJobInvalid(t *testing.T) {
	_, api := newTestServer(t)

	resp := api.Put("/api/jobs/bad", map[string]any{
		"command": []string{},
	})
	if resp.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d: %s", resp.Code, resp.Body.String())
	}
}

func TestRunJobNotFound(t *testing.T) {
	_, api := newTestServer(t)

	resp := api.Post("/api/jobs/ghost/run")
	if resp.Code != http.StatusNotFound {
		t.Errorf("status = %d", resp.Code)
	}
}

func TestRunDisabledJobConflicts(t *testing.T) {
	_, api := newTestServer(t, jobs.Job{ID: "off", Command: []string{"cat"}, Disabled: true})

	resp := api.Post("/api/jobs/off/run")
	if resp.Code != http.StatusConflict {
		t.Errorf("status = %d: %s", resp.Code, resp.Body.String())
	}
}

func TestCancelWithoutRunConflicts(t *testing.T) {
	_, api := newTestServer(t, jobs.Job{ID: "idle", Command: []string{"cat"}})

	resp := api.Post("/api/jobs/idle/cancel")
	if resp.Code != http.StatusConflict {
		t.Errorf("status = %d", resp.Code)
	}
}

func TestSetLogLevel(t *testing.T) {
	s, api := newTestServer(t)

	resp := api.Put("/api/logs/level", map[string]any{
		"module": "api",
		"level":  "debug",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.Code, resp.Body.String())
	}
	t.Cleanup(func() { logging.SetModuleLevel("api", "info") })

	// Debug entries now reach the ring buffer
	s.logger.Debug("level check entry")
	found := false
	for _, e := range logging.Buffer().ReadAll() {
		if e.Message == "level check entry" {
			found = true
		}
	}
	if !found {
		t.Error("expected debug entry after lowering the level")
	}

	resp = api.Put("/api/logs/level", map[string]any{
		"module": "no-such-module",
		"level":  "debug",
	})
	if resp.Code != http.StatusNotFound {
		t.Errorf("status = %d", resp.Code)
	}
}

func TestRecentLogs(t *testing.T) {
	s, api := newTestServer(t)
	s.logger.Info("probe entry", "k", "v")

	resp := api.Get("/api/logs?limit=10")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	var body struct {
		Count int `json:"count"`
	}
	decodeBody(t, resp, &body)
	if body.Count < 1 {
		t.Errorf("expected at least the probe entry, count = %d", body.Count)
	}
}
