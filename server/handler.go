// File: server/handler.go
// Package server
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Handler contract. Every event goes through one of two entry points and the
// event is told apart by which arguments are set:
//
//	event    conn  head  data
//	connect  set   set   nil
//	message  set   nil   set
//	close    set   nil   nil
//	GET      nil   set   nil
//	POST     nil   set   body or nil
//
// head.Method separates GET from a POST without a usable body. The returned
// Response is a close reason for WebSocket events and the HTTP answer for
// one-shot requests; a non-empty reply to connect refuses the upgrade.

package server

import (
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/momentics/wsgate/api"
	"github.com/momentics/wsgate/codec"
	"github.com/momentics/wsgate/protocol"
)

// Handler serves the events of the rules it is bound to. Raw selects which
// entry point the engine calls; the other one must still behave sensibly.
type Handler interface {
	HandleValue(c *Conn, head *protocol.Head, v *structpb.Value) api.Response
	HandleRaw(c *Conn, head *protocol.Head, data []byte) api.Response
	Raw() bool
}

// ValueFunc adapts a function taking decoded values into a structured Handler.
type ValueFunc func(c *Conn, head *protocol.Head, v *structpb.Value) api.Response

func (f ValueFunc) Raw() bool { return false }

func (f ValueFunc) HandleValue(c *Conn, head *protocol.Head, v *structpb.Value) api.Response {
	return f(c, head, v)
}

// HandleRaw decodes data with the connection's codec first; undecodable data
// reaches f as nil.
func (f ValueFunc) HandleRaw(c *Conn, head *protocol.Head, data []byte) api.Response {
	var v *structpb.Value
	if data != nil {
		v, _ = codecOf(c).Decode(data)
	}
	return f(c, head, v)
}

// RawFunc adapts a function taking byte payloads into a raw Handler.
type RawFunc func(c *Conn, head *protocol.Head, data []byte) api.Response

func (f RawFunc) Raw() bool { return true }

func (f RawFunc) HandleRaw(c *Conn, head *protocol.Head, data []byte) api.Response {
	return f(c, head, data)
}

// HandleValue encodes v with the connection's codec and passes the bytes on.
func (f RawFunc) HandleValue(c *Conn, head *protocol.Head, v *structpb.Value) api.Response {
	var data []byte
	if v != nil {
		b, err := codecOf(c).Encode(v)
		if err != nil {
			return api.Status(400, "Bad value")
		}
		data = b
	}
	return f(c, head, data)
}

// codecOf returns the codec of the registry that accepted c. One-shot HTTP
// events carry no connection and fall back to JSON.
func codecOf(c *Conn) api.Codec {
	if c != nil && c.reg != nil && c.reg.codec != nil {
		return c.reg.codec
	}
	return codec.JSON{}
}
