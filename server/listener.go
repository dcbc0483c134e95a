// File: server/listener.go
// Package server
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Listener owns one bound socket, its optional TLS config, its rules and the
// set of live connections. The set only tracks connections for broadcast and
// accounting; each connection removes itself when it finishes.

package server

import (
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set"
	"github.com/sirupsen/logrus"

	"github.com/momentics/wsgate/internal/router"
)

// Listener accepts connections on one bind address.
type Listener struct {
	addr     string
	reg      *Registry
	ln       net.Listener
	tls      *tls.Config
	certFile string
	keyFile  string
	router   *router.Router[Handler]
	live     mapset.Set
	log      logrus.FieldLogger

	done      chan struct{}
	closeOnce sync.Once
}

func newListener(reg *Registry, addr string, ln net.Listener, tlsCfg *tls.Config, certFile, keyFile string) *Listener {
	return &Listener{
		addr:     addr,
		reg:      reg,
		ln:       ln,
		tls:      tlsCfg,
		certFile: certFile,
		keyFile:  keyFile,
		router:   router.New[Handler](),
		live:     mapset.NewSet(),
		log:      reg.log.WithField("addr", addr),
		done:     make(chan struct{}),
	}
}

// Name returns the bind address the listener was created for.
func (l *Listener) Name() string { return l.addr }

// Addr returns the bound network address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Secure reports whether connections are wrapped in TLS.
func (l *Listener) Secure() bool { return l.tls != nil }

// Rules returns the number of bound rules.
func (l *Listener) Rules() int { return l.router.Len() }

// Len returns the number of live connections.
func (l *Listener) Len() int { return l.live.Cardinality() }

// Conns returns a snapshot of live connections.
func (l *Listener) Conns() []*Conn {
	items := l.live.ToSlice()
	out := make([]*Conn, 0, len(items))
	for _, it := range items {
		out = append(out, it.(*Conn))
	}
	return out
}

func (l *Listener) acceptLoop() {
	var backoff time.Duration
	for {
		nc, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.reg.metrics.Add(mAcceptErrs, 1)
			backoff = min(max(2*backoff, 5*time.Millisecond), time.Second)
			l.log.WithError(err).Warnf("accept failed; retrying in %v", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0
		l.serve(nc)
	}
}

// serve admits one accepted socket and starts its goroutines, receive first.
func (l *Listener) serve(nc net.Conn) {
	l.reg.metrics.Add(mAccepted, 1)
	if !l.reg.admit() {
		l.reg.metrics.Add(mRejected, 1)
		l.log.WithField("peer", nc.RemoteAddr().String()).Warn("connection limit reached")
		nc.Close()
		return
	}

	var s net.Conn = nc
	if l.tls != nil {
		s = tls.Server(nc, l.tls)
	}
	c := newConn(l, s, peerIP(nc.RemoteAddr()), l.tls != nil)
	l.live.Add(c)
	go c.receive()
	go c.transmit()
}

func (l *Listener) remove(c *Conn) {
	l.live.Remove(c)
}

// close stops accepting; live connections are left to the caller.
func (l *Listener) close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.ln.Close()
	})
	return err
}

// peerIP returns the remote IP with any IPv4-mapped IPv6 prefix removed.
func peerIP(a net.Addr) string {
	if ta, ok := a.(*net.TCPAddr); ok {
		return ta.AddrPort().Addr().Unmap().String()
	}
	host, _, err := net.SplitHostPort(a.String())
	if err != nil {
		return a.String()
	}
	return host
}
