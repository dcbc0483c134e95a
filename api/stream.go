// File: api/stream.go
// Package api defines contracts shared between wsgate components.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import (
	"io"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// Stream is the duplex byte stream a connection runs on.
// Both net.Conn and *tls.Conn satisfy it, so the engine never cares whether
// transport security is active.
type Stream interface {
	io.Reader
	io.Writer
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// Codec turns structured values into message payloads and back.
type Codec interface {
	Name() string
	Encode(v *structpb.Value) ([]byte, error)
	Decode(data []byte) (*structpb.Value, error)
}
