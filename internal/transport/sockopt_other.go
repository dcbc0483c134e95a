//go:build !unix

// File: internal/transport/sockopt_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

// Non-unix platforms keep the runtime's defaults.
func setSockOpts(fd uintptr, bufSize int) error { return nil }
