package pipe

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/pipeshard/pipeshard/internal/metrics"
)

// feeder drains the upstream source into the subprocess's stdin on a
// dedicated goroutine, so the subprocess can never deadlock the host by
// filling its stdout buffer while the host blocks writing stdin.
//
// The captured failure is a single-slot cell: only the feeder goroutine
// writes err, and readers observe it strictly after done is closed.
type feeder[T any] struct {
	err  error
	done chan struct{}
}

// startFeeder launches the feeding goroutine. The stdin stream is closed
// exactly once on every exit path; a close error never masks an earlier
// captured failure.
func startFeeder[T any](ctx context.Context, spec *Spec[T], w io.WriteCloser, src Source[T], label string) *feeder[T] {
	f := &feeder[T]{done: make(chan struct{})}

	go func() {
		defer close(f.done)

		cw := &countingWriter{w: w}
		bufSize := spec.BufferSize
		if bufSize <= 0 {
			bufSize = DefaultBufferSize
		}
		bw := bufio.NewWriterSize(cw, bufSize)
		emit := func(v T) error {
			if err := spec.Codec.Encode(bw, v); err != nil {
				return fmt.Errorf("write to process: %w", err)
			}
			metrics.AddElementsFed(label, 1)
			return nil
		}

		var err error
		if spec.Pre != nil {
			err = spec.Pre(emit)
		}
		for err == nil {
			if ctx.Err() != nil {
				err = ctx.Err()
				break
			}
			v, serr := src.Next()
			if serr == io.EOF {
				break
			}
			if serr != nil {
				err = fmt.Errorf("upstream source: %w", serr)
				break
			}
			if spec.PerElement != nil {
				err = spec.PerElement(v, emit)
			} else {
				err = emit(v)
			}
		}

		if ferr := bw.Flush(); err == nil && ferr != nil {
			err = fmt.Errorf("write to process: %w", ferr)
		}
		f.err = err
		if cerr := w.Close(); cerr != nil && f.err == nil {
			f.err = fmt.Errorf("close process stdin: %w", cerr)
		}
		metrics.AddBytesWritten(label, cw.n)
	}()

	return f
}

// wait blocks until the feeding goroutine has finished and returns its
// captured failure, if any. A cancelled context unblocks the wait even when
// the upstream source never returns from a pull.
func (f *feeder[T]) wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
