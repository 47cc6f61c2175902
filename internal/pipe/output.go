package pipe

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/pipeshard/pipeshard/internal/metrics"
)

// Output is the lazy, pull-based sequence of elements decoded from the
// subprocess's stdout. It is single-use and non-restartable: iterate with
// Next/Value, then check Err once Next returns false.
//
// Failure ordering: output the subprocess produced before failing is always
// drained first. Only at end of stream does Output wait for the feeder,
// surface a captured feeder failure, and inspect the exit status.
type Output[T any] struct {
	ctx    context.Context
	codec  Codec[T]
	r      *bufio.Reader
	sess   *session
	feed   *feeder[T]
	label  string
	onDone func(err error, code int)

	cur      T
	err      error
	done     bool
	finished bool
}

// failedOutput returns an Output that yields nothing and reports err. Used
// for launch failures, which surface on the first pull.
func failedOutput[T any](err error) *Output[T] {
	return &Output[T]{err: err, done: true, finished: true}
}

// Next advances to the next decoded element. It returns false at end of
// stream or on failure; Err distinguishes the two.
func (o *Output[T]) Next() bool {
	if o.done {
		return false
	}
	if err := o.ctx.Err(); err != nil {
		o.abort(err)
		return false
	}

	v, err := o.codec.Decode(o.r)
	switch {
	case err == nil:
		o.cur = v
		metrics.AddElementsDecoded(o.label, 1)
		return true
	case err == io.EOF:
		o.finalize()
		return false
	default:
		o.abort(fmt.Errorf("decode process output: %w", err))
		return false
	}
}

// Value returns the element the last successful Next advanced to.
func (o *Output[T]) Value() T {
	return o.cur
}

// Err returns the terminal error, nil after a clean end of stream. The
// concrete type is *LaunchError, *FeederError, *ExitError, or a decode error
// wrapping a *FramingError.
func (o *Output[T]) Err() error {
	return o.err
}

// Drain consumes the remaining elements into a slice and returns them with
// the terminal error.
func (o *Output[T]) Drain() ([]T, error) {
	var out []T
	for o.Next() {
		out = append(out, o.Value())
	}
	return out, o.Err()
}

/// finalize runs the end-of-stream protocol exactly once: feeder first, exit
// status second. A cancelled context takes precedence over both, since the
// kill it triggers manufactures both a feeder failure and a non-zero exit.
func (o *Output[T]) finalize() {
	if o.finished {
		return
	}
	o.finished = true
	o.done = true

	ferr := o.feed.wait(o.ctx)
	code := o.sess.wait()
	o.sess.release()

	switch {
	case o.ctx.Err() != nil:
		o.err = o.ctx.Err()
	case ferr != nil:
		o.err = &FeederError{Command: o.sess.command, Cause: ferr}
		metrics.IncFeederFailures(o.label)
	case code != 0:
		o.err = &ExitError{Command: o.sess.command, Code: code}
		metrics.IncExitFailures(o.label)
	}
	if o.onDone != nil {
		o.onDone(o.err, code)
	}
}

// abort terminates the execution early: kill the process so blocked pipe I/O
// unblocks, let the feeder observe the broken pipe, then reap and release.
func (o *Output[T]) abort(err error) {
	if o.finished {
		return
	}
	o.finished = true
	o.done = true
	o.err = err

	o.sess.kill()
	o.feed.wait(o.ctx)
	code := o.sess.wait()
	o.sess.release()
	if o.onDone != nil {
		o.onDone(o.err, code)
	}
}
