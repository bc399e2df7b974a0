// Package transport implements the TCP front door: length-prefixed JSON
// frames in, length-prefixed JSON frames out. Adapted from the teacher's
// internal/net package — an accept loop, one reader goroutine per
// connection, and a single session handler, with the teacher's fixed-size binary messages replaced by
// length-prefixed JSON (spec.md §6 specifies JSON request/response
// envelopes, not a binary wire format).
package transport

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single frame, guarding against a misbehaving
// client claiming an unbounded length prefix.
const MaxFrameSize = 1 << 20

// ReadFrame reads one length-prefixed frame and unmarshals it into v.
func ReadFrame(r *bufio.Reader, v any) error {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return err
	}
	if length == 0 || length > MaxFrameSize {
		return fmt.Errorf("transport: frame length %d out of bounds", length)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	return json.Unmarshal(buf, v)
}

// WriteFrame marshals v and writes it as one length-prefixed frame.
func WriteFrame(w io.Writer, v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if len(buf) > MaxFrameSize {
		return fmt.Errorf("transport: outgoing frame too large (%d bytes)", len(buf))
	}
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(buf)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}
