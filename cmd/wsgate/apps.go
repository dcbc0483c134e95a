// File: cmd/wsgate/apps.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Built-in applications selectable from the config file.

package main

import (
	"fmt"
	"path"
	"path/filepath"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/momentics/wsgate/api"
	"github.com/momentics/wsgate/codec"
	"github.com/momentics/wsgate/protocol"
	"github.com/momentics/wsgate/server"
)

type apps struct {
	reg *server.Registry
}

func newApps(reg *server.Registry) *apps {
	return &apps{reg: reg}
}

func (a *apps) handler(b BindConfig) (server.Handler, error) {
	switch b.Handler {
	case "", "echo":
		return server.RawFunc(a.echo), nil
	case "broadcast":
		return server.ValueFunc(a.broadcast), nil
	case "session":
		return server.ValueFunc(a.session), nil
	case "stats":
		return server.ValueFunc(a.stats), nil
	case "static":
		reply := api.Response(b.Reply)
		return server.RawFunc(func(c *server.Conn, head *protocol.Head, data []byte) api.Response {
			if c != nil {
				return api.Status(403, "Forbidden")
			}
			return reply
		}), nil
	case "files":
		if b.Root == "" {
			return nil, errors.Errorf("files handler on %q needs a root", b.Addr)
		}
		return server.RawFunc(files(b.Root, b.Path)), nil
	}
	return nil, errors.Errorf("unknown handler %q", b.Handler)
}

// echo returns every message to its sender and answers HTTP with the request.
func (a *apps) echo(c *server.Conn, head *protocol.Head, data []byte) api.Response {
	switch {
	case c == nil:
		if data != nil {
			return api.Text(string(data))
		}
		b, err := codec.JSON{}.Encode(head.Value())
		if err != nil {
			return api.Status(500, "Encoding failed")
		}
		return api.Text(string(b))
	case data != nil:
		if err := a.reg.SendRaw([]*server.Conn{c}, data); err != nil {
			return api.Response(err.Error())
		}
	}
	return api.OK
}

// broadcast relays each message to every live connection.
func (a *apps) broadcast(c *server.Conn, head *protocol.Head, v *structpb.Value) api.Response {
	if c == nil {
		return api.Status(405, "WebSocket only")
	}
	if head == nil && v != nil {
		if err := a.reg.SendAll(v); err != nil {
			return api.Response(err.Error())
		}
	}
	return api.OK
}

// session relays each message to the connections sharing the sender's cookie.
func (a *apps) session(c *server.Conn, head *protocol.Head, v *structpb.Value) api.Response {
	if c == nil {
		return api.Status(405, "WebSocket only")
	}
	if head == nil && v != nil {
		if err := a.reg.SendSession(c.Session(), v); err != nil {
			return api.Response(err.Error())
		}
	}
	return api.OK
}

// stats answers GET with counters and pushes them to sockets on request.
func (a *apps) stats(c *server.Conn, head *protocol.Head, v *structpb.Value) api.Response {
	snap, err := structpb.NewValue(map[string]any{
		"stats": normalize(a.reg.Stats()),
		"debug": normalize(a.reg.Debug()),
	})
	if err != nil {
		return api.Status(500, "Encoding failed")
	}
	if c == nil {
		b, err := codec.JSON{}.Encode(snap)
		if err != nil {
			return api.Status(500, "Encoding failed")
		}
		return api.Text(string(b))
	}
	if head == nil && v != nil {
		a.reg.Send([]*server.Conn{c}, snap)
	}
	return api.OK
}

// files serves a directory over GET. The request path below prefix maps into root.
func files(root, prefix string) server.RawFunc {
	return func(c *server.Conn, head *protocol.Head, data []byte) api.Response {
		if c != nil {
			return api.Status(403, "Forbidden")
		}
		if head.Method != "get" {
			return api.Status(405, "Method not allowed")
		}
		rel := path.Clean("/" + head.URL)
		if prefix != "" && len(rel) >= len(prefix) && rel[:len(prefix)] == prefix {
			rel = path.Clean("/" + rel[len(prefix):])
		}
		if rel == "/" {
			rel = "/index.html"
		}
		return api.File(filepath.Join(root, filepath.FromSlash(rel)))
	}
}

// normalize converts values structpb cannot take into ones it can.
func normalize(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch x := v.(type) {
		case map[string]any:
			out[k] = normalize(x)
		case nil, bool, int, int32, int64, uint32, uint64, float32, float64, string:
			out[k] = x
		default:
			out[k] = fmt.Sprint(x)
		}
	}
	return out
}
