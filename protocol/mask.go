// File: protocol/mask.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Payload masking. XOR with the 4-byte key is its own inverse, so the same
// routine masks and unmasks.

package protocol

import "encoding/binary"

// Masker applies a mask key across consecutive chunks of one payload,
// remembering the key position between calls.
type Masker struct {
	key [4]byte
	pos int
}

// NewMasker returns a Masker positioned at the start of a payload.
func NewMasker(key [4]byte) *Masker {
	return &Masker{key: key}
}

// Apply XORs b in place and advances the key position by len(b).
func (m *Masker) Apply(b []byte) {
	if len(b) == 0 {
		return
	}
	var rot [4]byte
	for i := range rot {
		rot[i] = m.key[(m.pos+i)&3]
	}
	maskBytes(b, rot)
	m.pos = (m.pos + len(b)) & 3
}

// Unmask XORs payload in place with key, starting at key index 0.
func Unmask(payload []byte, key [4]byte) {
	maskBytes(payload, key)
}

// maskBytes XORs eight bytes at a time, then finishes the tail byte by byte.
func maskBytes(b []byte, key [4]byte) {
	k32 := binary.LittleEndian.Uint32(key[:])
	k64 := uint64(k32)<<32 | uint64(k32)
	i := 0
	for ; i+8 <= len(b); i += 8 {
		v := binary.LittleEndian.Uint64(b[i:])
		binary.LittleEndian.PutUint64(b[i:], v^k64)
	}
	for ; i < len(b); i++ {
		b[i] ^= key[i&3]
	}
}
