// Package pool
// Author: momentics <momentics@gmail.com>
//
// Memory layer for wsgate. Receive payloads and pong echoes are drawn from
// size-classed pools and returned once the last holder is done with them.
package pool
