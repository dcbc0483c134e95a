// Package protocol
// Author: momentics <momentics@gmail.com>
//
// WebSocket frame encoding/decoding.
//
// Server frames are always final and never masked. Client frames are read in two
// phases: the first two bytes tell how long the rest of the header is.

package protocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/momentics/wsgate/api"
)

// Header is a decoded frame header.
type Header struct {
	Fin     bool
	Opcode  byte
	Masked  bool
	Length  uint64
	MaskKey [4]byte
}

// Frame is a fully read, unmasked frame.
type Frame struct {
	Opcode  byte
	Payload []byte
}

// HeaderLen returns the full header length announced by the first two bytes.
func HeaderLen(b0, b1 byte) int {
	n := 2
	switch b1 & LenMask {
	case len16Marker:
		n += 2
	case len64Marker:
		n += 8
	}
	if b1&MaskBit != 0 {
		n += 4
	}
	return n
}

// ParseHeader decodes a complete header, as sized by HeaderLen.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < 2 || len(b) < HeaderLen(b[0], b[1]) {
		return Header{}, io.ErrUnexpectedEOF
	}
	h := Header{
		Fin:    b[0]&FinBit != 0,
		Opcode: b[0] & OpcodeMask,
		Masked: b[1]&MaskBit != 0,
		Length: uint64(b[1] & LenMask),
	}
	off := 2
	switch h.Length {
	case len16Marker:
		h.Length = uint64(binary.BigEndian.Uint16(b[off:]))
		off += 2
	case len64Marker:
		h.Length = binary.BigEndian.Uint64(b[off:])
		off += 8
	}
	if h.Masked {
		copy(h.MaskKey[:], b[off:off+4])
	}
	return h, nil
}

// AppendHeader appends an unmasked final-frame header for a payload of n bytes.
func AppendHeader(dst []byte, opcode byte, n int) []byte {
	b0 := FinBit | (opcode & OpcodeMask)
	switch {
	case n <= MaxControlPayloadLen:
		return append(dst, b0, byte(n))
	case n <= 0xFFFF:
		dst = append(dst, b0, len16Marker)
		return binary.BigEndian.AppendUint16(dst, uint16(n))
	default:
		dst = append(dst, b0, len64Marker)
		return binary.BigEndian.AppendUint64(dst, uint64(n))
	}
}

// Encode returns the wire header for payload. The payload is not copied.
func Encode(opcode byte, payload []byte) (header, body []byte) {
	return AppendHeader(make([]byte, 0, MaxFrameHeaderLen), opcode, len(payload)), payload
}

// ReadHeader reads one header from r using the two-phase read.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [MaxFrameHeaderLen]byte
	if _, err := io.ReadFull(r, buf[:2]); err != nil {
		return Header{}, err
	}
	n := HeaderLen(buf[0], buf[1])
	if _, err := io.ReadFull(r, buf[2:n]); err != nil {
		return Header{}, err
	}
	return ParseHeader(buf[:n])
}

// ReadPayload reads h.Length bytes into dst, unmasking chunk by chunk as data
// arrives. dst must have length h.Length.
func ReadPayload(r io.Reader, h Header, dst []byte) error {
	m := NewMasker(h.MaskKey)
	for off := 0; off < len(dst); {
		n, err := r.Read(dst[off:])
		if h.Masked {
			m.Apply(dst[off : off+n])
		}
		off += n
		if err != nil {
			if err == io.EOF && off < len(dst) {
				return io.ErrUnexpectedEOF
			}
			if off < len(dst) {
				return err
			}
		}
	}
	return nil
}

// CheckClientHeader enforces the subset of RFC6455 the server accepts from clients.
func CheckClientHeader(h Header, limit int64) error {
	if !h.Fin {
		return fmt.Errorf("%w: fragmented frame", api.ErrProtocol)
	}
	if !h.Masked {
		return fmt.Errorf("%w: unmasked client frame", api.ErrProtocol)
	}
	if h.Opcode == OpcodeContinuation {
		return fmt.Errorf("%w: continuation frame", api.ErrProtocol)
	}
	if h.Opcode >= OpcodeClose && h.Length > MaxControlPayloadLen {
		return fmt.Errorf("%w: control frame payload over %d bytes", api.ErrProtocol, MaxControlPayloadLen)
	}
	if limit <= 0 {
		limit = MaxFramePayload
	}
	if h.Length > uint64(limit) {
		return api.ErrFrameTooLarge
	}
	return nil
}

// ReadFrame reads a header and its payload. It does not apply client rules.
// A non-positive limit means MaxFramePayload.
func ReadFrame(r io.Reader, limit int64) (Frame, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return Frame{}, err
	}
	if limit <= 0 {
		limit = MaxFramePayload
	}
	if h.Length > uint64(limit) {
		return Frame{}, api.ErrFrameTooLarge
	}
	payload := make([]byte, h.Length)
	if err := ReadPayload(r, h, payload); err != nil {
		return Frame{}, err
	}
	return Frame{Opcode: h.Opcode, Payload: payload}, nil
}
