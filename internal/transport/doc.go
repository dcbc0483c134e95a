// File: internal/transport/doc.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Listening sockets for wsgate: bind-address syntax, socket options applied
// before bind, and TLS credential loading. Socket options are set through
// golang.org/x/sys and partitioned by build tags.

package transport
