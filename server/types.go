// File: server/types.go
// Package server
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"time"

	defaults "github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"

	"github.com/momentics/wsgate/api"
)

// Config holds all registry-wide configuration parameters.
type Config struct {
	HandshakeTimeout time.Duration `yaml:"handshakeTimeout" default:"10s"` // assembling the request head
	PingInterval     time.Duration `yaml:"pingInterval" default:"60s"`     // keep-alive when the link is idle
	FirstPing        time.Duration `yaml:"firstPing" default:"2s"`         // first RTT probe after open
	WriteTimeout     time.Duration `yaml:"writeTimeout"`                   // per-frame write deadline, 0 = none

	SocketBuffer   int   `yaml:"socketBuffer" default:"32768"`    // SO_RCVBUF/SO_SNDBUF, 0 = OS default
	MaxConnections int   `yaml:"maxConnections"`                  // 0 = unlimited
	MaxPayload     int64 `yaml:"maxPayload" default:"16777216"`   // per inbound frame
	MaxHeaderBytes int   `yaml:"maxHeaderBytes" default:"16384"`  // request line + headers
	MaxBodyBytes   int64 `yaml:"maxBodyBytes" default:"16777216"` // one-shot HTTP body
	SessionShards  int   `yaml:"sessionShards" default:"16"`      // session tracker shards

	Logger logrus.FieldLogger `yaml:"-"`
	Codec  api.Codec          `yaml:"-"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// State is the lifecycle position of a connection.
type State int32

const (
	StateAccepted State = iota
	StateHandshaking
	StateHTTP
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAccepted:
		return "accepted"
	case StateHandshaking:
		return "handshaking"
	case StateHTTP:
		return "http"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// metric names
const (
	mAccepted   = "connections_accepted"
	mRejected   = "connections_rejected"
	mActive     = "connections_active"
	mHandshake  = "handshake_failures"
	mHTTP       = "http_requests"
	mSessions   = "websocket_sessions"
	mFramesIn   = "frames_in"
	mFramesOut  = "frames_out"
	mBytesIn    = "bytes_in"
	mBytesOut   = "bytes_out"
	mPings      = "pings_sent"
	mDropped    = "frames_dropped"
	mAcceptErrs = "accept_errors"
)
