// File: server/conn.go
// Package server
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Conn is one accepted stream driven by two goroutines: receive (handshake,
// then inbound frames) and transmit (queued frames, keep-alive pings, final
// cleanup). The transmit queue and state are guarded by mu; the wake channel
// nudges the transmitter and stop tells it the receiver has finished.

package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/momentics/wsgate/api"
	"github.com/momentics/wsgate/internal/router"
	"github.com/momentics/wsgate/protocol"
)

// Conn is a single client connection.
type Conn struct {
	l      *Listener
	reg    *Registry
	stream api.Stream
	peer   string
	secure bool
	log    logrus.FieldLogger

	// set once under mu when the request is routed; the engine's own
	// goroutines read them without locking after that
	rule *router.Rule[Handler]
	head *protocol.Head

	mu         sync.Mutex
	txq        *queue.Queue // of *protocol.FrameBuffer
	state      State
	opened     bool // reached StateOpen at some point
	closedByUs bool // a close frame was written
	data       any

	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once

	rtt      atomic.Int64 // microseconds
	lastPong atomic.Int64 // unix microseconds
}

func newConn(l *Listener, s api.Stream, peer string, secure bool) *Conn {
	return &Conn{
		l:      l,
		reg:    l.reg,
		stream: s,
		peer:   peer,
		secure: secure,
		log:    l.log.WithField("peer", peer),
		txq:    queue.New(),
		state:  StateAccepted,
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
}

// Peer returns the client IP address.
func (c *Conn) Peer() string { return c.peer }

// Secure reports whether the stream runs over TLS.
func (c *Conn) Secure() bool { return c.secure }

// Listener returns the listener that accepted the connection.
func (c *Conn) Listener() *Listener { return c.l }

// Head returns the parsed request, or nil before the request is routed.
func (c *Conn) Head() *protocol.Head {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head
}

// Session returns the session token, or "" before the request is routed.
func (c *Conn) Session() string {
	if h := c.Head(); h != nil {
		return h.Session
	}
	return ""
}

// Path returns the path filter of the matched rule, falling back to the request path.
func (c *Conn) Path() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rule != nil && c.rule.Path != "" {
		return c.rule.Path
	}
	if c.head != nil {
		return c.head.URL
	}
	return ""
}

func (c *Conn) route(rule *router.Rule[Handler], head *protocol.Head) {
	c.mu.Lock()
	c.rule, c.head = rule, head
	c.mu.Unlock()
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Data returns the application value attached with SetData.
func (c *Conn) Data() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data
}

// SetData attaches an opaque application value to the connection.
func (c *Conn) SetData(v any) {
	c.mu.Lock()
	c.data = v
	c.mu.Unlock()
}

// RTT returns the last measured ping round trip, zero until a pong arrives.
func (c *Conn) RTT() time.Duration {
	return time.Duration(c.rtt.Load()) * time.Microsecond
}

// LastPong returns when the last timestamped pong arrived.
func (c *Conn) LastPong() time.Time {
	us := c.lastPong.Load()
	if us == 0 {
		return time.Time{}
	}
	return time.UnixMicro(us)
}

// Ping returns the last round-trip time of c in microseconds; 0 for nil or unmeasured.
func Ping(c *Conn) uint64 {
	if c == nil {
		return 0
	}
	return uint64(c.rtt.Load())
}

// enqueue appends fb to the transmit queue, taking a reference.
// It fails once the connection is closing or served a plain HTTP request.
func (c *Conn) enqueue(fb *protocol.FrameBuffer) bool {
	c.mu.Lock()
	if c.state >= StateClosing || c.state == StateHTTP {
		c.mu.Unlock()
		return false
	}
	c.txq.Add(fb.Retain())
	c.mu.Unlock()
	c.signal()
	return true
}

// open puts the 101 response ahead of anything the connect handler queued and
// lets the transmitter start writing.
func (c *Conn) open(reply *protocol.FrameBuffer) {
	c.mu.Lock()
	q := queue.New()
	q.Add(reply)
	for c.txq.Length() > 0 {
		q.Add(c.txq.Remove())
	}
	c.txq = q
	c.state = StateOpen
	c.opened = true
	c.mu.Unlock()
	c.signal()
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// signal wakes the transmitter without blocking.
func (c *Conn) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// stopReceiving marks the end of the receive side exactly once.
func (c *Conn) stopReceiving() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		if c.state < StateClosing {
			c.state = StateClosing
		}
		c.mu.Unlock()
		close(c.stop)
	})
}

// shutdown asks the connection to end: a close frame for open sessions,
// an immediate stream close otherwise.
func (c *Conn) shutdown() {
	fb := protocol.CloseFrame()
	defer fb.Release()
	if c.State() == StateOpen && c.enqueue(fb) {
		return
	}
	c.stream.Close()
}

// event calls the bound handler through the entry point it declares.
// A panicking handler is logged and treated as a refusal.
func (c *Conn) event(conn *Conn, head *protocol.Head, data []byte, hasData bool) (resp api.Response) {
	h := c.rule.Handler
	defer func() {
		if p := recover(); p != nil {
			c.log.WithField("panic", p).Error("handler panicked")
			resp = api.Status(500, "Internal error")
		}
	}()
	if h.Raw() {
		if !hasData {
			data = nil
		}
		return h.HandleRaw(conn, head, data)
	}
	return h.HandleValue(conn, head, c.decode(data, hasData))
}

// decode turns a body into a value; a missing or undecodable body becomes nil.
func (c *Conn) decode(data []byte, hasData bool) *structpb.Value {
	if !hasData {
		return nil
	}
	v, err := c.reg.codec.Decode(data)
	if err != nil {
		c.log.WithError(err).Debug("undecodable body")
		return nil
	}
	return v
}
