// File: internal/transport/address.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"net"
	"strings"
)

// DefaultPort returns the service name used when a bind address has no port.
func DefaultPort(secure bool) string {
	if secure {
		return "https"
	}
	return "http"
}

// NormalizeBind fills in the default port for an empty bind address. The result
// is the identity of the listener.
func NormalizeBind(addr string, secure bool) string {
	if addr == "" {
		return DefaultPort(secure)
	}
	return addr
}

// ListenAddr converts a bind address into a net.Listen address.
//
//	"host#port"  explicit host and port (port may be a service name)
//	"port"       all interfaces
//	"host:port"  accepted as is
//
// An empty host listens on all interfaces, IPv6 and IPv4 where available.
func ListenAddr(bind string, secure bool) string {
	bind = NormalizeBind(bind, secure)
	if i := strings.LastIndexByte(bind, '#'); i >= 0 {
		host, port := bind[:i], bind[i+1:]
		if port == "" {
			port = DefaultPort(secure)
		}
		return net.JoinHostPort(strings.Trim(host, "[]"), port)
	}
	if _, _, err := net.SplitHostPort(bind); err == nil {
		return bind
	}
	return net.JoinHostPort("", bind)
}
