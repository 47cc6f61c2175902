package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pipeshard/pipeshard/internal/events"
)

func newTestStore(t *testing.T, jobsToAdd ...Job) Store {
	t.Helper()
	store := NewTOML(filepath.Join(t.TempDir(), "jobs.toml"))
	for _, job := range jobsToAdd {
		if err := store.Add(job); err != nil {
			t.Fatalf("Add %s failed: %v", job.ID, err)
		}
	}
	return store
}

func writeInput(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	content := strings.Join(lines, "\n")
	if len(lines) > 0 {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write input %s: %v", name, err)
	}
	return path
}

func TestRunnerEndToEnd(t *testing.T) {
	dir := t.TempDir()
	outDir := t.TempDir()
	inA := writeInput(t, dir, "a.txt", "one", "two", "three")
	inB := writeInput(t, dir, "b.txt", "four")

	store := newTestStore(t, Job{
		ID:        "identity",
		Command:   []string{"cat"},
		Inputs:    []string{inA, inB},
		OutputDir: outDir,
	})
	r := NewRunner(store, events.New())

	status, err := r.Run(context.Background(), "identity")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if status.State != StateDone {
		t.Fatalf("state = %s, partitions = %+v", status.State, status.Partitions)
	}
	if status.Attempt != 1 {
		t.Errorf("attempt = %d", status.Attempt)
	}
	if status.FinishedAt.IsZero() {
		t.Error("expected FinishedAt to be set")
	}

	wantElems := []int64{3, 1}
	wantBody := []string{"one\ntwo\nthree\n", "four\n"}
	for i, ps := range status.Partitions {
		if ps.State != StateDone {
			t.Errorf("partition %d state = %s (%s)", i, ps.State, ps.Error)
		}
		if ps.Elements != wantElems[i] {
			t.Errorf("partition %d elements = %d, want %d", i, ps.Elements, wantElems[i])
		}
		data, err := os.ReadFile(filepath.Join(outDir, fmt.Sprintf("part-%05d", i)))
		if err != nil {
			t.Fatalf("read partition %d output: %v", i, err)
		}
		if string(data) != wantBody[i] {
			t.Errorf("partition %d output = %q, want %q", i, data, wantBody[i])
		}
	}
}

func TestRunnerJobFailure(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "a.txt")

	store := newTestStore(t, Job{
		ID:        "broken",
		Command:   []string{"sh", "-c", "exit 3"},
		Inputs:    []string{in},
		OutputDir: t.TempDir(),
	})
	r := NewRunner(store, events.New())

	status, err := r.Run(context.Background(), "broken")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if status.State != StateFailed {
		t.Fatalf("state = %s", status.State)
	}
	ps := status.Partitions[0]
	if ps.State != StateFailed {
		t.Errorf("partition state = %s", ps.State)
	}
	if !strings.Contains(ps.Error, "code 3") {
		t.Errorf("partition error %q does not carry the exit code", ps.Error)
	}
}

func TestRunnerUnknownJob(t *testing.T) {
	r := NewRunner(newTestStore(t), events.New())
	if _, err := r.Run(context.Background(), "ghost"); err == nil {
		t.Fatal("expected error for unknown job")
	}
	if err := r.Start("ghost"); err == nil {
		t.Fatal("expected error for unknown job")
	}
}

func TestRunnerDisabledJob(t *testing.T) {
	store := newTestStore(t, Job{ID: "off", Command: []string{"cat"}, Disabled: true})
	r := NewRunner(store, events.New())
	if err := r.Start("off"); err == nil || !strings.Contains(err.Error(), "disabled") {
		t.Fatalf("expected disabled error, got %v", err)
	}
}

func TestRunnerRejectsConcurrentRun(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "a.txt")

	store := newTestStore(t, Job{
		ID:        "slow",
		Command:   []string{"sh", "-c", "sleep 30"},
		Inputs:    []string{in},
		OutputDir: t.TempDir(),
	})
	r := NewRunner(store, events.New())

	if err := r.Start("slow"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer r.CancelAll()

	if err := r.Start("slow"); err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected already-running error, got %v", err)
	}
}

func TestRunnerCancel(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "a.txt")

	store := newTestStore(t, Job{
		ID:        "slow",
		Command:   []string{"sh", "-c", "sleep 30"},
		Inputs:    []string{in},
		OutputDir: t.TempDir(),
	})
	r := NewRunner(store, events.New())

	if err := r.Start("slow"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := r.Cancel("slow"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	deadline := time.After(15 * time.Second)
	for {
		status, ok := r.Status("slow")
		if !ok {
			t.Fatal("run disappeared")
		}
		if status.State != StateRunning {
			if status.State != StateCancelled {
				t.Fatalf("state = %s", status.State)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("job did not wind down after cancel")
		case <-time.After(20 * time.Millisecond):
		}
	}

	// A second cancel of a settled run is an error
	if err := r.Cancel("slow"); err == nil {
		t.Error("expected cancel of a finished run to fail")
	}
}

func TestRunnerCancelledContext(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "a.txt")

	store := newTestStore(t, Job{
		ID:        "slow",
		Command:   []string{"sh", "-c", "sleep 30"},
		Inputs:    []string{in},
		OutputDir: t.TempDir(),
	})
	r := NewRunner(store, events.New())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	status, err := r.Run(ctx, "slow")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if status.State != StateCancelled {
		t.Errorf("state = %s", status.State)
	}
}

func TestRunnerAttemptsIncrement(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "a.txt", "x")

	store := newTestStore(t, Job{
		ID:        "identity",
		Command:   []string{"cat"},
		Inputs:    []string{in},
		OutputDir: t.TempDir(),
	})
	r := NewRunner(store, events.New())

	for want := 1; want <= 3; want++ {
		status, err := r.Run(context.Background(), "identity")
		if err != nil {
			t.Fatalf("Run %d failed: %v", want, err)
		}
		if status.Attempt != want {
			t.Errorf("attempt = %d, want %d", status.Attempt, want)
		}
	}
}

func TestRunnerKeepsJobAcrossReload(t *testing.T) {
	dir := t.TempDir()
	outDir := t.TempDir()
	in := writeInput(t, dir, "a.txt", "one", "two")

	store := newTestStore(t, Job{
		ID:        "identity",
		Command:   []string{"cat"},
		Inputs:    []string{in},
		OutputDir: outDir,
	})
	r := NewRunner(store, events.New())

	if err := r.Start("identity"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	// A hot reload that drops the job must not affect the run in flight
	store.Replace(map[string]Job{})

	deadline := time.After(15 * time.Second)
	for {
		status, ok := r.Status("identity")
		if !ok {
			t.Fatal("run disappeared")
		}
		if status.State != StateRunning {
			if status.State != StateDone {
				t.Fatalf("state = %s, partitions = %+v", status.State, status.Partitions)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("job never finished")
		case <-time.After(20 * time.Millisecond):
		}
	}

	data, err := os.ReadFile(filepath.Join(outDir, "part-00000"))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "one\ntwo\n" {
		t.Errorf("output = %q", data)
	}
}

func TestRunnerRecordCodecJob(t *testing.T) {
	dir := t.TempDir()
	outDir := t.TempDir()

	// Framed input: one record, key "k" value "v"
	frame := []byte{0, 0, 0, 1, 'k', 0, 0, 0, 1, 'v'}
	in := filepath.Join(dir, "records.bin")
	if err := os.WriteFile(in, frame, 0o644); err != nil {
		t.Fatalf("write framed input: %v", err)
	}

	store := newTestStore(t, Job{
		ID:        "records",
		Command:   []string{"cat"},
		Codec:     CodecRecord,
		Inputs:    []string{in},
		OutputDir: outDir,
	})
	r := NewRunner(store, events.New())

	status, err := r.Run(context.Background(), "records")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if status.State != StateDone {
		t.Fatalf("state = %s, partitions = %+v", status.State, status.Partitions)
	}
	if status.Partitions[0].Elements != 1 {
		t.Errorf("elements = %d", status.Partitions[0].Elements)
	}

	data, err := os.ReadFile(filepath.Join(outDir, "part-00000"))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != string(frame) {
		t.Errorf("output frame = %v, want %v", data, frame)
	}
}
