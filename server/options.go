// File: server/options.go
// Package server defines functional options for the Registry.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/momentics/wsgate/api"
)

// Option customizes registry initialization.
type Option func(*Registry)

// WithLogger sets the logger used by listeners and connections.
func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Registry) {
		r.log = log
	}
}

// WithCodec overrides the structured-value codec.
func WithCodec(c api.Codec) Option {
	return func(r *Registry) {
		r.codec = c
	}
}

// WithPingInterval sets the idle keep-alive interval and the first-ping delay.
func WithPingInterval(interval, first time.Duration) Option {
	return func(r *Registry) {
		r.cfg.PingInterval = interval
		r.cfg.FirstPing = first
	}
}

// WithMaxConnections caps concurrent connections across all listeners.
func WithMaxConnections(n int) Option {
	return func(r *Registry) {
		r.cfg.MaxConnections = n
	}
}
