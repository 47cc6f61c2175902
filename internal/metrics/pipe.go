// Package metrics provides Prometheus metrics for pipe executions, with a
// local cache snapshot for the HTTP API.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	execStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pipeshard",
		Subsystem: "pipe",
		Name:      "executions_total",
		Help:      "Partition executions started",
	}, []string{"job"})

	launchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pipeshard",
		Subsystem: "pipe",
		Name:      "launch_failures_total",
		Help:      "Executions whose command failed to start",
	}, []string{"job"})

	exitFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pipeshard",
		Subsystem: "pipe",
		Name:      "exit_failures_total",
		Help:      "Executions whose command exited non-zero",
	}, []string{"job"})

	feederFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pipeshard",
		Subsystem: "pipe",
		Name:      "feeder_failures_total",
		Help:      "Executions with an upstream or stdin write failure",
	}, []string{"job"})

	elementsFed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pipeshard",
		Subsystem: "pipe",
		Name:      "elements_fed_total",
		Help:      "Elements written to subprocess stdin",
	}, []string{"job"})

	elementsDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pipeshard",
		Subsystem: "pipe",
		Name:      "elements_decoded_total",
		Help:      "Elements decoded from subprocess stdout",
	}, []string{"job"})

	bytesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pipeshard",
		Subsystem: "pipe",
		Name:      "stdin_bytes_total",
		Help:      "Bytes written to subprocess stdin",
	}, []string{"job"})

	bytesRead = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pipeshard",
		Subsystem: "pipe",
		Name:      "stdout_bytes_total",
		Help:      "Bytes read from subprocess stdout",
	}, []string{"job"})

	cache   = make(map[string]*PipeStats)
	cacheMu sync.RWMutex
)

// PipeStats is the cached per-job snapshot served by the API.
type PipeStats struct {
	Executions      int64 `json:"executions"`
	LaunchFailures  int64 `json:"launch_failures"`
	ExitFailures    int64 `json:"exit_failures"`
	FeederFailures  int64 `json:"feeder_failures"`
	ElementsFed     int64 `json:"elements_fed"`
	ElementsDecoded int64 `json:"elements_decoded"`
	BytesWritten    int64 `json:"bytes_written"`
	BytesRead       int64 `json:"bytes_read"`
}

func update(job string, fn func(*PipeStats)) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	s, ok := cache[job]
	if !ok {
		s = &PipeStats{}
		cache[job] = s
	}
	fn(s)
}

// IncExecutions records one started partition execution.
func IncExecutions(job string) {
	execStarted.WithLabelValues(job).Inc()
	update(job, func(s *PipeStats) { s.Executions++ })
}

// IncLaunchFailures records a command that could not be started.
func IncLaunchFailures(job string) {
	launchFailures.WithLabelValues(job).Inc()
	update(job, func(s *PipeStats) { s.LaunchFailures++ })
}

// IncExitFailures records a command that exited non-zero.
func IncExitFailures(job string) {
	exitFailures.WithLabelValues(job).Inc()
	update(job, func(s *PipeStats) { s.ExitFailures++ })
}

// IncFeederFailures records a captured upstream or stdin write failure.
func IncFeederFailures(job string) {
	feederFailures.WithLabelValues(job).Inc()
	update(job, func(s *PipeStats) { s.FeederFailures++ })
}

// AddElementsFed adds to the count of elements written to stdin.
func AddElementsFed(job string, n int64) {
	elementsFed.WithLabelValues(job).Add(float64(n))
	update(job, func(s *PipeStats) { s.ElementsFed += n })
}

// AddElementsDecoded adds to the count of elements decoded from stdout.
func AddElementsDecoded(job string, n int64) {
	elementsDecoded.WithLabelValues(job).Add(float64(n))
	update(job, func(s *PipeStats) { s.ElementsDecoded += n })
}

// AddBytesWritten adds to the stdin byte count.
func AddBytesWritten(job string, n int64) {
	bytesWritten.WithLabelValues(job).Add(float64(n))
	update(job, func(s *PipeStats) { s.BytesWritten += n })
}

// AddBytesRead adds to the stdout byte count.
func AddBytesRead(job string, n int64) {
	bytesRead.WithLabelValues(job).Add(float64(n))
	update(job, func(s *PipeStats) { s.BytesRead += n })
}

// Get returns the cached stats for a job, nil if none recorded.
func Get(job string) *PipeStats {
	cacheMu.RLock()
	defer cacheMu.RUnlock()
	s, ok := cache[job]
	if !ok {
		return nil
	}
	snapshot := *s
	return &snapshot
}

// Delete removes a job's cached stats and its Prometheus series.
func Delete(job string) {
	labels := prometheus.Labels{"job": job}
	execStarted.Delete(labels)
	launchFailures.Delete(labels)
	exitFailures.Delete(labels)
	feederFailures.Delete(labels)
	elementsFed.Delete(labels)
	elementsDecoded.Delete(labels)
	bytesWritten.Delete(labels)
	bytesRead.Delete(labels)

	cacheMu.Lock()
	defer cacheMu.Unlock()
	delete(cache, job)
}
