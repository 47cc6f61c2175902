package jobs

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pipeshard/pipeshard/internal/events"
	"github.com/pipeshard/pipeshard/internal/logging"
	"github.com/pipeshard/pipeshard/internal/pipe"
)

// State of a run or of one of its partitions.
type State string

// Run and partition states.
const (
	StateRunning   State = "running"
	StateDone      State = "done"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

const defaultWorkers = 2

// PartitionStatus describes one partition of a run.
type PartitionStatus struct {
	Partition int    `json:"partition"`
	Input     string `json:"input"`
	Output    string `json:"output,omitempty"`
	State     State  `json:"state"`
	Elements  int64  `json:"elements"`
	Error     string `json:"error,omitempty"`
}

// RunStatus describes one execution of a job across its partitions.
type RunStatus struct {
	JobID      string            `json:"job_id"`
	Attempt    int               `json:"attempt"`
	State      State             `json:"state"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at,omitzero"`
	Partitions []PartitionStatus `json:"partitions"`
}

type run struct {
	mu     sync.Mutex
	status RunStatus
	job    Job // captured at begin so a hot reload cannot swap the definition mid-run
	runCtx context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func (r *run) setPartition(i int, fn func(*PartitionStatus)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.status.Partitions[i])
}

func (r *run) snapshot() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.status
	out.Partitions = append([]PartitionStatus(nil), r.status.Partitions...)
	return out
}

// Runner executes jobs, one pipe execution per partition, with a bounded
// worker pool per job. It keeps the status of the latest run of each job.
type Runner struct {
	store  Store
	bus    *events.Bus
	logger logging.Logger

	mu       sync.Mutex
	runs     map[string]*run
	attempts map[string]int
}

// NewRunner creates a runner over the given store.
func NewRunner(store Store, bus *events.Bus) *Runner {
	return &Runner{
		store:    store,
		bus:      bus,
		logger:   logging.GetLogger("jobs"),
		runs:     make(map[string]*run),
		attempts: make(map[string]int),
	}
}

// Start launches a job in the background. It fails if the job is unknown,
// disabled, or already running.
func (r *Runner) Start(jobID string) error {
	st, err := r.begin(jobID)
	if err != nil {
		return err
	}
	go r.execute(jobID, st)
	return nil
}

// Run executes a job in the foreground and returns its final status.
func (r *Runner) Run(ctx context.Context, jobID string) (*RunStatus, error) {
	st, err := r.begin(jobID)
	if err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, st.cancel)
	defer stop()
	r.execute(jobID, st)
	final := st.snapshot()
	return &final, nil
}

// Cancel stops a running job. Partitions already finished keep their result.
func (r *Runner) Cancel(jobID string) error {
	r.mu.Lock()
	st, ok := r.runs[jobID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s has no run", jobID)
	}
	select {
	case <-st.done:
		return fmt.Errorf("job %s is not running", jobID)
	default:
	}
	st.cancel()
	return nil
}

// Status returns the latest run of a job.
func (r *Runner) Status(jobID string) (*RunStatus, bool) {
	r.mu.Lock()
	st, ok := r.runs[jobID]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	snap := st.snapshot()
	return &snap, true
}

// List returns the latest run of every job that has one.
func (r *Runner) List() []RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RunStatus, 0, len(r.runs))
	for _, st := range r.runs {
		out = append(out, st.snapshot())
	}
	return out
}

// CancelAll cancels every running job and waits for them to wind down.
func (r *Runner) CancelAll() {
	r.mu.Lock()
	sts := make([]*run, 0, len(r.runs))
	for _, st := range r.runs {
		sts = append(sts, st)
	}
	r.mu.Unlock()

	for _, st := range sts {
		st.cancel()
	}
	for _, st := range sts {
		<-st.done
	}
}

// begin validates and registers a new run, replacing any finished prior run.
func (r *Runner) begin(jobID string) (*run, error) {
	job, ok := r.store.Get(jobID)
	if !ok {
		return nil, fmt.Errorf("job %s not found", jobID)
	}
	if job.Disabled {
		return nil, fmt.Errorf("job %s is disabled", jobID)
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, exists := r.runs[jobID]; exists {
		select {
		case <-prev.done:
		default:
			return nil, fmt.Errorf("job %s is already running", jobID)
		}
	}

	r.attempts[jobID]++
	ctx, cancel := context.WithCancel(context.Background())

	parts := make([]PartitionStatus, len(job.Inputs))
	for i, input := range job.Inputs {
		parts[i] = PartitionStatus{Partition: i, Input: input, State: StateRunning}
	}

	st := &run{
		status: RunStatus{
			JobID:      jobID,
			Attempt:    r.attempts[jobID],
			State:      StateRunning,
			StartedAt:  time.Now(),
			Partitions: parts,
		},
		job:    job,
		runCtx: ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	r.runs[jobID] = st
	return st, nil
}

// execute runs every partition of the job and settles the run state.
func (r *Runner) execute(jobID string, st *run) {
	defer close(st.done)
	defer st.cancel()

	job := st.job
	r.logger.Info("Job started", "job", jobID, "partitions", len(job.Inputs), "attempt", st.status.Attempt)

	var err error
	switch job.CodecName() {
	case CodecRecord:
		err = runPartitions(st.runCtx, r, st, job, pipe.RecordCodec{}, pipe.Records)
	default:
		var codec *pipe.LineCodec
		codec, err = pipe.NewLineCodec(job.Encoding)
		if err == nil {
			err = runPartitions(st.runCtx, r, st, job, pipe.Codec[string](codec), pipe.Lines)
		}
	}

	st.mu.Lock()
	st.status.FinishedAt = time.Now()
	switch {
	case st.runCtx.Err() != nil:
		st.status.State = StateCancelled
	case err != nil || anyFailed(st.status.Partitions):
		st.status.State = StateFailed
	default:
		st.status.State = StateDone
	}
	final := st.status.State
	st.mu.Unlock()

	r.logger.Info("Job finished", "job", jobID, "state", string(final))
}

func anyFailed(parts []PartitionStatus) bool {
	for _, p := range parts {
		if p.State == StateFailed {
			return true
		}
	}
	return false
}

// runPartitions executes every input file as one partition through a pipe
// built from the job, writing decoded elements to per-partition output files
// with the same codec.
func runPartitions[T any](ctx context.Context, r *Runner, st *run, job Job, codec pipe.Codec[T], open func(io.Reader) pipe.Source[T]) error {
	p, err := pipe.New(pipe.Spec[T]{
		Command:        job.Command,
		Env:            job.Env,
		Dir:            job.DirMode(),
		CleanupTaskDir: job.CleanupTaskDir,
		BufferSize:     job.BufferSize,
		Codec:          codec,
	}, pipe.WithLabel[T](job.ID), pipe.WithEventBus[T](r.bus), pipe.WithLogger[T](r.logger))
	if err != nil {
		return err
	}

	workers := job.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, input := range job.Inputs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, input string) {
			defer wg.Done()
			defer func() { <-sem }()
			elements, output, perr := runOnePartition(ctx, p, st.status.Attempt, i, input, job, codec, open)
			st.setPartition(i, func(ps *PartitionStatus) {
				ps.Elements = elements
				ps.Output = output
				if perr != nil {
					ps.State = StateFailed
					ps.Error = perr.Error()
				} else {
					ps.State = StateDone
				}
			})
		}(i, input)
	}
	wg.Wait()
	return nil
}

// runOnePartition streams one input file through the subprocess and writes
// the decoded elements to the partition's output file.
func runOnePartition[T any](ctx context.Context, p *pipe.Pipe[T], attempt, partition int, input string, job Job, codec pipe.Codec[T], open func(io.Reader) pipe.Source[T]) (int64, string, error) {
	in, err := os.Open(input)
	if err != nil {
		return 0, "", fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	abs, err := filepath.Abs(input)
	if err != nil {
		abs = input
	}
	task := pipe.Task{
		Partition:   partition,
		Attempt:     attempt,
		InputFile:   abs,
		StagedFiles: job.StagedFiles,
	}

	outDir := job.OutputDir
	if outDir == "" {
		outDir = filepath.Join("output", job.ID)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return 0, "", fmt.Errorf("create output directory: %w", err)
	}
	outPath := filepath.Join(outDir, fmt.Sprintf("part-%05d", partition))
	outFile, err := os.Create(outPath)
	if err != nil {
		return 0, "", fmt.Errorf("create output file: %w", err)
	}
	defer outFile.Close()
	bw := bufio.NewWriter(outFile)

	out := p.Run(ctx, task, open(in))
	var elements int64
	for out.Next() {
		if err := codec.Encode(bw, out.Value()); err != nil {
			return elements, outPath, fmt.Errorf("write output: %w", err)
		}
		elements++
	}
	if err := bw.Flush(); err != nil {
		return elements, outPath, fmt.Errorf("write output: %w", err)
	}
	return elements, outPath, out.Err()
}
