// Package wire implements the framing used between the caption server and the
// glasses: a 4-byte big-endian length followed by a UTF-8 JSON body.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// HeaderSize is the length prefix size in bytes.
const HeaderSize = 4

// DefaultMaxFrameSize bounds a single JSON body.
const DefaultMaxFrameSize = 1 << 20

// ErrFrameTooLarge is returned when a frame exceeds the configured maximum.
var ErrFrameTooLarge = errors.New("frame too large")

// Encoder writes length-prefixed JSON frames. Safe for concurrent use.
type Encoder struct {
	mu  sync.Mutex
	w   io.Writer
	max int
	buf []byte
}

// NewEncoder returns an encoder writing to w. max <= 0 uses DefaultMaxFrameSize.
func NewEncoder(w io.Writer, maxSize int) *Encoder {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &Encoder{w: w, max: maxSize}
}

// Encode marshals v and writes it as one frame.
func (e *Encoder) Encode(v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return e.WriteFrame(body)
}

// WriteFrame writes body with its length prefix in a single write.
func (e *Encoder) WriteFrame(body []byte) error {
	if len(body) > e.max {
		return fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, len(body), e.max)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.buf = e.buf[:0]
	e.buf = binary.BigEndian.AppendUint32(e.buf, uint32(len(body)))
	e.buf = append(e.buf, body...)
	if _, err := e.w.Write(e.buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Decoder reads length-prefixed JSON frames.
type Decoder struct {
	r   io.Reader
	max int
	hdr [HeaderSize]byte
	buf []byte
}

// NewDecoder returns a decoder reading from r. max <= 0 uses DefaultMaxFrameSize.
func NewDecoder(r io.Reader, maxSize int) *Decoder {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &Decoder{r: r, max: maxSize}
}

// ReadFrame returns the next frame body. The slice is reused by the next call.
// A clean close between frames returns io.EOF; a close inside a frame
// returns io.ErrUnexpectedEOF.
func (d *Decoder) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(d.r, d.hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(d.hdr[:])
	if uint64(n) > uint64(d.max) {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, n, d.max)
	}
	if cap(d.buf) < int(n) {
		d.buf = make([]byte, n)
	}
	d.buf = d.buf[:n]
	if _, err := io.ReadFull(d.r, d.buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return d.buf, nil
}

// Decode reads the next frame and unmarshals it into v.
func (d *Decoder) Decode(v any) error {
	body, err := d.ReadFrame()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("unmarshal frame: %w", err)
	}
	return nil
}
