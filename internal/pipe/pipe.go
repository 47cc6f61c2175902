// Package pipe implements a partitioned external-process pipe transform:
// for each partition, an external command is spawned, the partition's
// elements are streamed into its stdin on a dedicated feeding goroutine, and
// elements decoded from its stdout are yielded lazily to the consumer.
//
// Upstream failures, launch failures, and non-zero exits are all surfaced to
// the consumer as a single terminal error, and never before output the
// process already produced has been drained.
package pipe

import (
	"bufio"
	"context"
	"errors"
	"io"

	"github.com/pipeshard/pipeshard/internal/events"
	"github.com/pipeshard/pipeshard/internal/logging"
	"github.com/pipeshard/pipeshard/internal/metrics"
)

// DefaultBufferSize is the stdin/stdout buffer size used when a Spec does
// not set one.
const DefaultBufferSize = 64 * 1024

// Spec is the immutable configuration of a pipe transform. Command must be
// non-empty; everything else is optional.
type Spec[T any] struct {
	// Command is the argument vector; Command[0] is the executable.
	Command []string

	// Env overlays the ambient environment of the subprocess.
	Env map[string]string

	// Dir selects the working directory mode. Default DirInherit.
	Dir DirMode

	// CleanupTaskDir removes the isolated task directory once the
	// execution is finished. Default is to leave it for an external sweep.
	CleanupTaskDir bool

	// BufferSize is the pipe I/O buffer size. Default DefaultBufferSize.
	BufferSize int

	// Codec converts elements to and from the process's byte streams.
	Codec Codec[T]

	// Pre runs once before the first element and may emit framing elements.
	Pre func(emit func(T) error) error

	// PerElement runs for each upstream element and may transform it or
	// emit zero or more elements. Nil means emit the element unchanged.
	PerElement func(v T, emit func(T) error) error
}

func (s *Spec[T]) validate() error {
	if len(s.Command) == 0 {
		return errors.New("pipe: command must not be empty")
	}
	if s.Codec == nil {
		return errors.New("pipe: codec must not be nil")
	}
	return nil
}

// Pipe runs a Spec against partitions. A single Pipe is safe for concurrent
// use: each Run builds an independent process session.
type Pipe[T any] struct {
	spec   Spec[T]
	label  string
	logger logging.Logger
	bus    *events.Bus
}

// Option configures a Pipe.
type Option[T any] func(*Pipe[T])

// WithLogger overrides the default module logger.
func WithLogger[T any](l logging.Logger) Option[T] {
	return func(p *Pipe[T]) { p.logger = l }
}

// WithLabel sets the metrics label for executions of this pipe. Default is
// "adhoc".
func WithLabel[T any](label string) Option[T] {
	return func(p *Pipe[T]) { p.label = label }
}

// WithEventBus publishes execution lifecycle events to the given bus.
func WithEventBus[T any](bus *events.Bus) Option[T] {
	return func(p *Pipe[T]) { p.bus = bus }
}

// New validates the spec and builds a Pipe.
func New[T any](spec Spec[T], opts ...Option[T]) (*Pipe[T], error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	p := &Pipe[T]{
		spec:   spec,
		label:  "adhoc",
		logger: logging.GetLogger("pipe"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run executes the transform for one partition. The subprocess and the
// feeder start immediately; the returned Output is driven by the consumer.
// A launch failure is reported on the first pull rather than here, so the
// call sites that wire partitions together stay error-free.
func (p *Pipe[T]) Run(ctx context.Context, task Task, src Source[T]) *Output[T] {
	metrics.IncExecutions(p.label)

	sess, err := startSession(ctx, p.spec.Command, p.spec.Env, p.spec.Dir, p.spec.CleanupTaskDir, task, p.logger)
	if err != nil {
		p.logger.Error("Launch failed", "partition", task.Partition, "error", err)
		metrics.IncLaunchFailures(p.label)
		p.publish(events.ExecFailedEvent{Label: p.label, Partition: task.Partition, Error: err.Error()})
		return failedOutput[T](err)
	}

	p.publish(events.ExecStartedEvent{Label: p.label, Partition: task.Partition, PID: sess.cmd.Process.Pid})

	feed := startFeeder(ctx, &p.spec, sess.stdin, src, p.label)

	bufSize := p.spec.BufferSize
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	out := &Output[T]{
		ctx:   ctx,
		codec: p.spec.Codec,
		r:     bufio.NewReaderSize(&meteredReader{r: sess.stdout, label: p.label}, bufSize),
		sess:  sess,
		feed:  feed,
		label: p.label,
		onDone: func(err error, code int) {
			p.publish(events.ExecFinishedEvent{Label: p.label, Partition: task.Partition, ExitCode: code, Failed: err != nil})
		},
	}
	return out
}

func (p *Pipe[T]) publish(ev events.Event) {
	if p.bus != nil {
		p.bus.Publish(ev)
	}
}

// meteredReader counts bytes drained from the subprocess.
type meteredReader struct {
	r     io.Reader
	label string
}

func (m *meteredReader) Read(b []byte) (int, error) {
	n, err := m.r.Read(b)
	if n > 0 {
		metrics.AddBytesRead(m.label, int64(n))
	}
	return n, err
}
