// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Reference-counted outbound frame buffer.
//
// One FrameBuffer is encoded once per send and shared by every transmit queue
// it is placed on. The payload is immutable after construction. Every holder
// (the sender and each queue entry) owns one reference; the optional free hook
// runs when the last reference is released, which is how pooled payloads go back
// to their pool.

package protocol

import (
	"io"
	"sync/atomic"
)

// FrameBuffer is an immutable payload plus its precomputed wire header.
type FrameBuffer struct {
	refs    atomic.Int32
	opcode  byte
	hdr     [MaxFrameHeaderLen]byte
	hdrLen  int
	payload []byte
	free    func()
	raw     bool
}

// NewFrameBuffer builds a buffer with one reference held by the caller.
// free, if non-nil, runs once when the count drops to zero.
func NewFrameBuffer(opcode byte, payload []byte, free func()) *FrameBuffer {
	fb := &FrameBuffer{opcode: opcode, payload: payload, free: free}
	fb.hdrLen = len(AppendHeader(fb.hdr[:0], opcode, len(payload)))
	fb.refs.Store(1)
	return fb
}

// NewRawBuffer wraps bytes that go out verbatim with no frame header, such as
// the 101 response that opens a session.
func NewRawBuffer(data []byte) *FrameBuffer {
	fb := &FrameBuffer{payload: data, raw: true}
	fb.refs.Store(1)
	return fb
}

// CloseFrame returns a fresh payload-less close frame.
func CloseFrame() *FrameBuffer {
	return NewFrameBuffer(OpcodeClose, nil, nil)
}

// Retain adds a reference.
func (fb *FrameBuffer) Retain() *FrameBuffer {
	fb.refs.Add(1)
	return fb
}

// Release drops a reference and reports whether it was the last one.
func (fb *FrameBuffer) Release() bool {
	n := fb.refs.Add(-1)
	if n < 0 {
		panic("protocol: FrameBuffer released too many times")
	}
	if n > 0 {
		return false
	}
	if fb.free != nil {
		fb.free()
	}
	fb.payload = nil
	return true
}

// Refs returns the current reference count.
func (fb *FrameBuffer) Refs() int32 { return fb.refs.Load() }

// IsRaw reports whether the buffer carries no frame header.
func (fb *FrameBuffer) IsRaw() bool { return fb.raw }

// IsClose reports whether this is a close frame.
func (fb *FrameBuffer) IsClose() bool { return !fb.raw && fb.opcode == OpcodeClose }

// Opcode returns the frame opcode.
func (fb *FrameBuffer) Opcode() byte { return fb.opcode }

// Header returns the encoded wire header.
func (fb *FrameBuffer) Header() []byte { return fb.hdr[:fb.hdrLen] }

// Payload returns the frame body.
func (fb *FrameBuffer) Payload() []byte { return fb.payload }

// Len is the total number of bytes the frame occupies on the wire.
func (fb *FrameBuffer) Len() int { return fb.hdrLen + len(fb.payload) }

// WriteTo writes header then payload, retrying short writes.
func (fb *FrameBuffer) WriteTo(w io.Writer) (int64, error) {
	n, err := writeFull(w, fb.Header())
	if err != nil {
		return int64(n), err
	}
	m, err := writeFull(w, fb.payload)
	return int64(n + m), err
}

func writeFull(w io.Writer, b []byte) (int, error) {
	total := 0
	for total < len(b) {
		n, err := w.Write(b[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.ErrShortWrite
		}
	}
	return total, nil
}
