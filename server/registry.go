// File: server/registry.go
// Package server
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Registry is the explicitly owned set of listeners keyed by bind address.
// It performs binds and fans outbound data out to connections.

package server

import (
	"context"
	"crypto/tls"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/momentics/wsgate/api"
	"github.com/momentics/wsgate/codec"
	"github.com/momentics/wsgate/control"
	"github.com/momentics/wsgate/internal/router"
	"github.com/momentics/wsgate/internal/session"
	"github.com/momentics/wsgate/internal/transport"
	"github.com/momentics/wsgate/pool"
	"github.com/momentics/wsgate/protocol"
)

// Registry owns listeners and the state shared by their connections.
type Registry struct {
	cfg      *Config
	log      logrus.FieldLogger
	codec    api.Codec
	pool     *pool.BytePool
	metrics  *control.MetricsRegistry
	probes   *control.DebugProbes
	sessions *session.Tracker[*Conn]

	mu        sync.Mutex
	listeners map[string]*Listener
	closed    bool

	active atomic.Int64
}

// BindOptions describes one rule to register. Empty filters match anything.
type BindOptions struct {
	Addr     string // "host#port", "host:port" or "port"
	Origin   string
	Host     string
	Path     string
	CertFile string
	KeyFile  string // enables TLS; may hold the certificate too
	Handler  Handler
}

// NewRegistry creates an empty registry. A nil cfg means DefaultConfig.
func NewRegistry(cfg *Config, opts ...Option) *Registry {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		c := *cfg
		cfg = &c
	}
	r := &Registry{
		cfg:       cfg,
		log:       cfg.Logger,
		codec:     cfg.Codec,
		pool:      pool.NewBytePool(),
		metrics:   control.NewMetricsRegistry(),
		probes:    control.NewDebugProbes(),
		listeners: make(map[string]*Listener),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logrus.StandardLogger()
	}
	if r.codec == nil {
		r.codec = codec.JSON{}
	}
	r.sessions = session.NewTracker[*Conn](cfg.SessionShards)

	r.probes.RegisterProbe("listeners", func() any {
		out := make(map[string]any)
		for _, l := range r.snapshot() {
			out[l.addr] = map[string]any{
				"secure": l.Secure(),
				"rules":  l.Rules(),
				"conns":  l.Len(),
			}
		}
		return out
	})
	r.probes.RegisterProbe("pool", func() any { return r.pool.Stats() })
	r.probes.RegisterProbe("sessions", func() any { return r.sessions.Len() })
	r.probes.RegisterProbe("codec", func() any { return r.codec.Name() })
	return r
}

// Bind registers a rule, creating the listener for opts.Addr on first use.
// Rebinding an address must present the same credentials.
func (r *Registry) Bind(opts BindOptions) error {
	if opts.Handler == nil {
		return bindError(api.ErrCodeInvalidArgument, opts.Addr, errors.Wrap(api.ErrInvalidArgument, "nil handler"))
	}
	secure := opts.KeyFile != ""
	addr := transport.NormalizeBind(opts.Addr, secure)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return bindError(api.ErrCodeUnavailable, addr, api.ErrRegistryClosed)
	}

	rule := router.Rule[Handler]{
		Host:    opts.Host,
		Origin:  opts.Origin,
		Path:    opts.Path,
		Handler: opts.Handler,
	}

	if l, ok := r.listeners[addr]; ok {
		if l.certFile != opts.CertFile || l.keyFile != opts.KeyFile {
			return bindError(api.ErrCodeInvalidArgument, addr, api.ErrCredentialMismatch)
		}
		if _, err := l.router.Add(rule); err != nil {
			return bindError(api.ErrCodeAlreadyExists, addr, err)
		}
		l.log.WithFields(logrus.Fields{"host": opts.Host, "origin": opts.Origin, "path": opts.Path}).Info("rule added")
		return nil
	}

	var tlsCfg *tls.Config
	if secure {
		c, err := transport.LoadCredentials(opts.CertFile, opts.KeyFile)
		if err != nil {
			return bindError(api.ErrCodeInvalidArgument, addr, err)
		}
		tlsCfg = c
	}
	ln, err := transport.Listen(context.Background(), addr, secure, r.cfg.SocketBuffer)
	if err != nil {
		return bindError(api.ErrCodeInternal, addr, err)
	}

	l := newListener(r, addr, ln, tlsCfg, opts.CertFile, opts.KeyFile)
	if _, err := l.router.Add(rule); err != nil {
		ln.Close()
		return bindError(api.ErrCodeAlreadyExists, addr, err)
	}
	r.listeners[addr] = l
	l.log.WithFields(logrus.Fields{
		"listen": ln.Addr().String(),
		"secure": secure,
		"path":   opts.Path,
	}).Info("listening")
	go l.acceptLoop()
	return nil
}

// bindError tags a Bind failure with its code and the normalized address.
func bindError(code api.ErrorCode, addr string, err error) error {
	return api.Wrap(code, err).WithContext("addr", addr)
}

// Listener returns the listener bound to addr, or nil.
func (r *Registry) Listener(addr string) *Listener {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.listeners[transport.NormalizeBind(addr, false)]; ok {
		return l
	}
	return r.listeners[transport.NormalizeBind(addr, true)]
}

func (r *Registry) snapshot() []*Listener {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Listener, 0, len(r.listeners))
	for _, l := range r.listeners {
		out = append(out, l)
	}
	return out
}

// Conns returns every live connection across all listeners.
func (r *Registry) Conns() []*Conn {
	var out []*Conn
	for _, l := range r.snapshot() {
		out = append(out, l.Conns()...)
	}
	return out
}

// Send encodes v once and queues it on every target; nil targets are skipped.
// A nil v sends a close frame instead.
func (r *Registry) Send(targets []*Conn, v *structpb.Value) error {
	if v == nil {
		r.deliver(targets, protocol.CloseFrame())
		return nil
	}
	data, err := r.codec.Encode(v)
	if err != nil {
		return errors.Wrap(err, "encode")
	}
	r.deliver(targets, protocol.NewFrameBuffer(protocol.OpcodeText, data, nil))
	return nil
}

// SendRaw queues a copy of data on every target. A nil data sends a close frame.
func (r *Registry) SendRaw(targets []*Conn, data []byte) error {
	if data == nil {
		r.deliver(targets, protocol.CloseFrame())
		return nil
	}
	payload := make([]byte, len(data))
	copy(payload, data)
	r.deliver(targets, protocol.NewFrameBuffer(protocol.OpcodeText, payload, nil))
	return nil
}

// SendAll broadcasts v to every live connection of every listener.
func (r *Registry) SendAll(v *structpb.Value) error {
	return r.Send(r.Conns(), v)
}

// SendSession sends v to every open connection carrying the session token.
func (r *Registry) SendSession(token string, v *structpb.Value) error {
	return r.Send(r.sessions.Members(token), v)
}

// deliver queues fb on each target and drops the sender's reference.
// Targets that are closing keep nothing.
func (r *Registry) deliver(targets []*Conn, fb *protocol.FrameBuffer) {
	n := 0
	for _, c := range targets {
		if c == nil {
			continue
		}
		if c.enqueue(fb) {
			n++
		}
	}
	if skipped := len(targets) - n; skipped > 0 {
		r.log.WithField("skipped", skipped).Debug("send skipped targets")
	}
	fb.Release()
}

// Close stops every accept loop and asks each live connection to close.
// Bind fails afterwards; sends to remaining connections still work.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	var first error
	for _, l := range r.snapshot() {
		if err := l.close(); err != nil && first == nil {
			first = errors.Wrapf(err, "close %s", l.addr)
		}
		for _, c := range l.Conns() {
			c.shutdown()
		}
	}
	r.log.Info("registry closed")
	return first
}

// Stats returns counters plus pool and session figures.
func (r *Registry) Stats() map[string]any {
	out := r.metrics.GetSnapshot()
	ps := r.pool.Stats()
	out["pool_gets"] = ps.Gets
	out["pool_puts"] = ps.Puts
	out["pool_misses"] = ps.Misses
	out["sessions_live"] = r.sessions.Len()
	return out
}

// Debug returns the output of every registered probe.
func (r *Registry) Debug() map[string]any {
	return r.probes.DumpState()
}

// admit reserves a connection slot.
func (r *Registry) admit() bool {
	n := r.active.Add(1)
	if limit := int64(r.cfg.MaxConnections); limit > 0 && n > limit {
		r.active.Add(-1)
		return false
	}
	r.metrics.Counter(mActive).Store(n)
	return true
}

func (r *Registry) release() {
	n := r.active.Add(-1)
	r.metrics.Counter(mActive).Store(n)
}
