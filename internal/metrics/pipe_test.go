package metrics

import "testing"

func TestStatsAccumulate(t *testing.T) {
	const job = "stats-accumulate"
	t.Cleanup(func() { Delete(job) })

	IncExecutions(job)
	IncExecutions(job)
	IncExitFailures(job)
	AddElementsFed(job, 10)
	AddElementsDecoded(job, 8)
	AddBytesWritten(job, 1024)
	AddBytesRead(job, 512)

	s := Get(job)
	if s == nil {
		t.Fatal("expected cached stats")
	}
	if s.Executions != 2 || s.ExitFailures != 1 {
		t.Errorf("counters = %+v", s)
	}
	if s.ElementsFed != 10 || s.ElementsDecoded != 8 {
		t.Errorf("elements = %+v", s)
	}
	if s.BytesWritten != 1024 || s.BytesRead != 512 {
		t.Errorf("bytes = %+v", s)
	}
}

func TestGetReturnsSnapshot(t *testing.T) {
	const job = "stats-snapshot"
	t.Cleanup(func() { Delete(job) })

	IncExecutions(job)
	s := Get(job)
	s.Executions = 99

	if fresh := Get(job); fresh.Executions != 1 {
		t.Errorf("mutating a snapshot leaked into the cache: %+v", fresh)
	}
}

func TestGetUnknownJob(t *testing.T) {
	if s := Get("never-recorded"); s != nil {
		t.Errorf("expected nil, got %+v", s)
	}
}

func TestDelete(t *testing.T) {
	const job = "stats-delete"
	IncLaunchFailures(job)
	IncFeederFailures(job)
	Delete(job)
	if s := Get(job); s != nil {
		t.Errorf("expected stats removed, got %+v", s)
	}
}
