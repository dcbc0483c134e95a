//go:build unix

// File: internal/transport/sockopt_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func setSockOpts(fd uintptr, bufSize int) error {
	s := int(fd)
	if err := unix.SetsockoptInt(s, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return errors.Wrap(err, "set socket option (REUSE)")
	}
	if bufSize <= 0 {
		return nil
	}
	if err := unix.SetsockoptInt(s, unix.SOL_SOCKET, unix.SO_RCVBUF, bufSize); err != nil {
		return errors.Wrap(err, "set socket option (RCV)")
	}
	if err := unix.SetsockoptInt(s, unix.SOL_SOCKET, unix.SO_SNDBUF, bufSize); err != nil {
		return errors.Wrap(err, "set socket option (SND)")
	}
	return nil
}
