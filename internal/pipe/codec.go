package pipe

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

// Codec converts elements to and from the byte streams of the external
// process. Decode returns io.EOF once the stream is cleanly exhausted.
type Codec[T any] interface {
	Encode(w *bufio.Writer, v T) error
	Decode(r *bufio.Reader) (T, error)
}

// LineCodec is the newline-delimited text codec. Each element is written as
// its text plus a single '\n'; decoding yields one line per element with the
// terminator stripped. It guarantees line boundaries only; splitting lines
// into whitespace tokens is the consumer's concern.
//
// Lines are split on raw 0x0A bytes, so only charsets that encode newline as
// itself are accepted. Charsets where 0x0A can appear inside a multi-byte
// character (UTF-16, EBCDIC variants) are rejected at construction.
type LineCodec struct {
	enc encoding.Encoding // nil for UTF-8
}

// NewLineCodec builds a line codec for the given IANA character encoding
// name. An empty name or any UTF-8 alias selects the transform-free path.
func NewLineCodec(name string) (*LineCodec, error) {
	if name == "" || strings.EqualFold(name, "utf-8") || strings.EqualFold(name, "utf8") {
		return &LineCodec{}, nil
	}
	e, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	if e == nil {
		return nil, fmt.Errorf("encoding %q has no Go implementation", name)
	}
	nl, err := e.NewEncoder().Bytes([]byte{'\n'})
	if err != nil || len(nl) != 1 || nl[0] != '\n' {
		return nil, fmt.Errorf("encoding %q does not encode newline as a single 0x0A byte", name)
	}
	return &LineCodec{enc: e}, nil
}

// Encode writes one element as a terminated line. A fresh transformer per
// call keeps the codec safe for concurrent streams.
func (c *LineCodec) Encode(w *bufio.Writer, v string) error {
	if c.enc != nil {
		b, err := c.enc.NewEncoder().Bytes([]byte(v + "\n"))
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	}
	if _, err := w.WriteString(v); err != nil {
		return err
	}
	return w.WriteByte('\n')
}

// Decode reads one line. A final unterminated line is still yielded; the
// following call reports io.EOF.
func (c *LineCodec) Decode(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err == io.EOF && line != "" {
		err = nil
	}
	if err != nil {
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	if c.enc != nil {
		b, derr := c.enc.NewDecoder().Bytes([]byte(line))
		if derr != nil {
			return "", derr
		}
		return string(b), nil
	}
	return line, nil
}

// Record is a key/value pair of raw bytes exchanged in framed mode.
type Record struct {
	Key   []byte
	Value []byte
}

// RecordCodec frames a Record as 4-byte big-endian key length, key bytes,
// 4-byte big-endian value length, value bytes.
type RecordCodec struct{}

// Encode writes one framed record.
func (RecordCodec) Encode(w *bufio.Writer, rec Record) error {
	if err := writeChunk(w, rec.Key); err != nil {
		return err
	}
	return writeChunk(w, rec.Value)
}

// Decode reads one framed record. A clean end of stream before the first
// length byte is io.EOF; anything truncated past that point, or a negative
// declared length, is a FramingError.
func (RecordCodec) Decode(r *bufio.Reader) (Record, error) {
	key, err := readChunk(r, true)
	if err != nil {
		return Record{}, err
	}
	value, err := readChunk(r, false)
	if err != nil {
		return Record{}, err
	}
	return Record{Key: key, Value: value}, nil
}

func writeChunk(w *bufio.Writer, b []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(b)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// readChunk reads one length-prefixed chunk. eofOK marks a chunk position
// where a clean end of stream is legal (the start of a record).
func readChunk(r *bufio.Reader, eofOK bool) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF && eofOK {
			return nil, io.EOF
		}
		return nil, &FramingError{Reason: "truncated length header"}
	}
	n := int32(binary.BigEndian.Uint32(hdr[:]))
	if n < 0 {
		return nil, &FramingError{Reason: "negative length", Length: int(n)}
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, &FramingError{Reason: "stream ended inside chunk", Length: int(n)}
	}
	return b, nil
}
