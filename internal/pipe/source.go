package pipe

import (
	"bufio"
	"io"
	"strings"
)

// Source is a lazily-produced sequence of elements for one partition.
// Next returns io.EOF when the sequence is exhausted; any other error is a
// mid-stream failure and no further elements will be pulled after it.
type Source[T any] interface {
	Next() (T, error)
}

// SourceFunc adapts a plain function to a Source.
type SourceFunc[T any] func() (T, error)

// Next implements Source.
func (f SourceFunc[T]) Next() (T, error) { return f() }

// FromSlice returns a Source yielding the given elements in order.
func FromSlice[T any](elems []T) Source[T] {
	i := 0
	return SourceFunc[T](func() (T, error) {
		if i >= len(elems) {
			var zero T
			return zero, io.EOF
		}
		v := elems[i]
		i++
		return v, nil
	})
}

// Lines returns a Source yielding the lines of r with terminators stripped.
// The final line is yielded even without a trailing newline.
func Lines(r io.Reader) Source[string] {
	br := bufio.NewReader(r)
	return SourceFunc[string](func() (string, error) {
		line, err := br.ReadString('\n')
		if err == io.EOF && line != "" {
			err = nil
		}
		if err != nil {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	})
}

// Records returns a Source yielding length-prefixed key/value records from r,
// in the same wire format RecordCodec produces.
func Records(r io.Reader) Source[Record] {
	br := bufio.NewReader(r)
	codec := RecordCodec{}
	return SourceFunc[Record](func() (Record, error) {
		return codec.Decode(br)
	})
}

// Task identifies one partition execution and carries its provenance.
// Partition and Attempt together name the isolated working directory, so two
// concurrently executing partitions never collide. InputFile, when set, is the
// source file path of a file-based split and is exposed to the subprocess
// through the environment. StagedFiles are symlinked into the isolated
// working directory when isolation is requested; an empty set is fine.
type Task struct {
	Partition   int
	Attempt     int
	InputFile   string
	StagedFiles []string
}
