// File: internal/transport/listen.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"context"
	"crypto/tls"
	"net"
	"os"
	"syscall"

	"github.com/pkg/errors"

	"github.com/momentics/wsgate/api"
)

// Listen opens a TCP listener for bind with SO_REUSEADDR and, when bufSize is
// positive, SO_RCVBUF/SO_SNDBUF set before bind so accepted sockets inherit them.
func Listen(ctx context.Context, bind string, secure bool, bufSize int) (net.Listener, error) {
	addr := ListenAddr(bind, secure)
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var serr error
			if err := c.Control(func(fd uintptr) {
				serr = setSockOpts(fd, bufSize)
			}); err != nil {
				return err
			}
			return serr
		},
	}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "bind %s", bind)
	}
	return ln, nil
}

// LoadCredentials loads a certificate and key. An empty certFile means keyFile
// holds both PEM blocks.
func LoadCredentials(certFile, keyFile string) (*tls.Config, error) {
	if keyFile == "" {
		return nil, errors.Wrap(api.ErrInvalidArgument, "key file required for TLS")
	}
	if certFile == "" {
		certFile = keyFile
	}
	if _, err := os.Stat(keyFile); err != nil {
		return nil, errors.Wrap(err, "load key")
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, errors.Wrapf(err, "load credentials %s", certFile)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
